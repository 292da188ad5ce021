// Package agg resolves the comparable corpus and aggregates per-depth statistics.
package agg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/khaes-kth/drr-execdiff/core/logrec"
	"github.com/khaes-kth/drr-execdiff/internal/artifact"
	"github.com/khaes-kth/drr-execdiff/schema"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyCorpus is returned when timings would be averaged over zero patches.
var ErrEmptyCorpus = errors.New("comparable corpus is empty")

// ArtifactReader is the read side of the artifact store used by aggregation.
type ArtifactReader interface {
	Exists(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (bool, error)
	Open(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (io.ReadCloser, error)
	Count(d schema.Depth, kind schema.ArtifactKind) (int, error)
	CountBySize(d schema.Depth, kind schema.ArtifactKind) (empty, nonEmpty int, err error)
	CountContaining(d schema.Depth, kind schema.ArtifactKind, needle string) (int, error)
	Keys(d schema.Depth, kind schema.ArtifactKind) ([]schema.ArtifactKey, error)
}

var _ ArtifactReader = &artifact.Store{} // Compile-time check

// Aggregator builds DepthStatistics from the artifacts of several depths.
// It only reads; callers must not aggregate a depth whose runs are in flight.
type Aggregator struct {
	store      ArtifactReader
	traceTable logrec.MarkerTable
	diffTable  logrec.MarkerTable
	workers    int
}

// NewAggregator creates an aggregator with the default marker tables.
// Depths are aggregated concurrently, at most workers at a time.
func NewAggregator(store ArtifactReader, workers int) *Aggregator {
	return &Aggregator{
		store:      store,
		traceTable: logrec.DefaultTraceTable,
		diffTable:  logrec.DefaultDiffTable,
		workers:    max(workers, 1),
	}
}

// ComparableCorpus returns the keys with a state diff at ref and at every
// other depth. Each depth pass builds a new set from a stable snapshot of
// the previous one.
func (a *Aggregator) ComparableCorpus(ref schema.Depth, depths []schema.Depth) (schema.Corpus, error) {
	keys, err := a.store.Keys(ref, schema.StateDiffReport)
	if err != nil {
		return nil, fmt.Errorf("list state diffs at depth %d: %w", ref, err)
	}
	current := schema.NewCorpus(keys...)

	for _, d := range depths {
		if d == ref {
			continue
		}
		next := make(schema.Corpus, len(current))
		for _, key := range current.Sorted() {
			ok, err := a.store.Exists(d, schema.StateDiffReport, key)
			if err != nil {
				return nil, err
			}
			if ok {
				next[key] = struct{}{}
			}
		}
		slog.Debug("Narrowed comparable corpus", "depth", d, "before", len(current), "after", len(next))
		current = next
	}
	return current, nil
}

// BuildReport computes one DepthStatistics per depth in ascending depth order.
// Counts cover every artifact at a depth; timings are summed over corpus and
// divided once by its size.
func (a *Aggregator) BuildReport(ctx context.Context, depths []schema.Depth, corpus schema.Corpus) ([]schema.DepthStatistics, []schema.Diagnostic, error) {
	if len(corpus) == 0 {
		return nil, nil, ErrEmptyCorpus
	}
	keys := corpus.Sorted()
	depths = slices.Compact(slices.Sorted(slices.Values(depths)))

	stats := make([]schema.DepthStatistics, len(depths))
	diags := make([][]schema.Diagnostic, len(depths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, d := range depths {
		g.Go(func() error {
			s, dg, err := a.buildDepth(ctx, d, keys)
			if err != nil {
				return fmt.Errorf("depth %d: %w", d, err)
			}
			stats[i] = s
			diags[i] = dg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var all []schema.Diagnostic
	for _, dg := range diags {
		all = append(all, dg...)
	}
	return stats, all, nil
}

// Report resolves the comparable corpus and aggregates it. On an empty corpus
// the partially filled report is returned together with ErrEmptyCorpus.
func (a *Aggregator) Report(ctx context.Context, ref schema.Depth, depths []schema.Depth) (schema.CorpusReport, error) {
	report := schema.CorpusReport{ReferenceDepth: ref}
	corpus, err := a.ComparableCorpus(ref, depths)
	if err != nil {
		return report, err
	}
	report.CorpusSize = len(corpus)
	report.Corpus = corpus.Sorted()

	stats, diags, err := a.BuildReport(ctx, depths, corpus)
	if err != nil {
		return report, err
	}
	report.Depths = stats
	report.Diagnostics = diags
	return report, nil
}

func (a *Aggregator) buildDepth(ctx context.Context, d schema.Depth, keys []schema.ArtifactKey) (schema.DepthStatistics, []schema.Diagnostic, error) {
	s := schema.DepthStatistics{Depth: d}
	if err := a.countDepth(d, &s); err != nil {
		return s, nil, err
	}

	sums := make(map[schema.RecordKind]int64, len(schema.AllRecordKinds))
	var diags []schema.Diagnostic
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return s, nil, err
		}
		for _, src := range []struct {
			kind  schema.ArtifactKind
			table logrec.MarkerTable
		}{
			{schema.TraceLog, a.traceTable},
			{schema.DiffComputerErrorLog, a.diffTable},
		} {
			dg, err := a.sumLog(d, src.kind, key, src.table, sums)
			if err != nil {
				return s, nil, err
			}
			diags = append(diags, dg...)
		}
	}

	n := float64(len(keys))
	s.SahabTime = float64(sums[schema.SahabTime]) / n
	s.LineVarAndMappingTime = float64(sums[schema.LineVarMappingTime]) / n
	s.DiffComputationTime = float64(sums[schema.DiffComputationTime]) / n
	s.UIManipulationTime = float64(sums[schema.UIManipulationTime]) / n
	return s, diags, nil
}

func (a *Aggregator) countDepth(d schema.Depth, s *schema.DepthStatistics) error {
	var err error
	if s.Analyzed, err = a.store.Count(d, schema.TraceLog); err != nil {
		return err
	}
	if s.WithEmptySahabReport, s.WithNonEmptySahabReport, err = a.store.CountBySize(d, schema.SahabReportRight); err != nil {
		return err
	}
	if s.WithManipulatedDiff, err = a.store.CountContaining(d, schema.ManipulationFlag, artifact.ManipulationMarker); err != nil {
		return err
	}
	if s.WithDiffGenerated, err = a.store.Count(d, schema.StateDiffReport); err != nil {
		return err
	}
	if s.WithDistinctStatesAdded, err = a.store.CountContaining(d, schema.StateDiffReport, artifact.DistinctStatesMarker); err != nil {
		return err
	}
	return nil
}

// sumLog adds the records of one log into sums. A missing log contributes
// nothing and yields a diagnostic, as does every malformed marker line.
func (a *Aggregator) sumLog(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey, table logrec.MarkerTable, sums map[schema.RecordKind]int64) ([]schema.Diagnostic, error) {
	rc, err := a.store.Open(d, kind, key)
	if errors.Is(err, artifact.ErrMissing) {
		slog.Warn("Missing log for corpus member", "depth", d, "key", key, "kind", kind)
		return []schema.Diagnostic{{
			Depth:   d,
			Key:     key,
			Kind:    schema.MissingArtifactDiagnostic,
			Message: err.Error(),
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var diags []schema.Diagnostic
	for rec, err := range logrec.Parse(rc, table) {
		var malformed *logrec.MalformedLineError
		switch {
		case errors.As(err, &malformed):
			slog.Warn("Malformed log line", "depth", d, "key", key, "kind", kind, "err", err)
			diags = append(diags, schema.Diagnostic{
				Depth:   d,
				Key:     key,
				Kind:    schema.MalformedLogDiagnostic,
				Message: fmt.Sprintf("%s: %v", kind, err),
			})
		case err != nil:
			return nil, fmt.Errorf("read %s for %s: %w", kind, key, err)
		default:
			sums[rec.Kind] += rec.Value
		}
	}
	return diags, nil
}
