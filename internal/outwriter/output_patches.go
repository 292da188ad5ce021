package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/olekukonko/tablewriter"
)

// CorpusListing is the comparable corpus as printed by the corpus command.
type CorpusListing struct {
	ReferenceDepth schema.Depth         `json:"reference_depth"`
	Depths         []schema.Depth       `json:"depths"`
	Size           int                  `json:"size"`
	Keys           []schema.ArtifactKey `json:"keys"`
}

// BugPatches groups the candidate patches of one bug.
type BugPatches struct {
	Bug     schema.BugID `json:"bug"`
	Patches []string     `json:"patches"`
}

// WriteCorpus prints the comparable corpus.
func WriteCorpus(listing CorpusListing, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is not supported for corpus listings")
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, listing)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"key"}, func(cw *csv.Writer) error {
				for _, k := range listing.Keys {
					if err := cw.Write([]string{string(k)}); err != nil {
						return fmt.Errorf("failed to write CSV record: %w", err)
					}
				}
				return nil
			})
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			for _, k := range listing.Keys {
				if _, err := fmt.Fprintln(w, k); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(w, "Comparable corpus: %d commits present at reference depth %d and depths %v\n",
				listing.Size, listing.ReferenceDepth, listing.Depths)
			return err
		}, "Wrote text")
	}
}

// GroupPatches turns grouped patch identities into sorted listing rows.
func GroupPatches(bugs []schema.BugID, groups map[schema.BugID][]schema.PatchID) []BugPatches {
	out := make([]BugPatches, 0, len(bugs))
	for _, b := range bugs {
		names := make([]string, 0, len(groups[b]))
		for _, p := range groups[b] {
			names = append(names, p.Name)
		}
		out = append(out, BugPatches{Bug: b, Patches: names})
	}
	return out
}

// WritePatches prints patches grouped by bug.
func WritePatches(rows []BugPatches, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is not supported for patch listings")
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, rows)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCSVWithHeader(w, []string{"patch", "project", "bug"}, func(cw *csv.Writer) error {
				for _, r := range rows {
					for _, p := range r.Patches {
						if err := cw.Write([]string{p, r.Bug.Project, strconv.Itoa(r.Bug.Number)}); err != nil {
							return fmt.Errorf("failed to write CSV record: %w", err)
						}
					}
				}
				return nil
			})
		}, "Wrote CSV")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writePatchesTable(w, rows, cfg)
		}, "Wrote table")
	}
}

func writePatchesTable(w io.Writer, rows []BugPatches, cfg *contract.Config) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Bug", "Count", "Patches"})

	width := GetMaxTablePathWidth(cfg)
	total := 0
	var data [][]string
	for _, r := range rows {
		total += len(r.Patches)
		data = append(data, []string{
			r.Bug.String(),
			strconv.Itoa(len(r.Patches)),
			contract.TruncatePath(strings.Join(r.Patches, " "), width),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d patches across %d bugs\n", total, len(rows))
	return err
}
