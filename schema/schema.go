// Package schema holds the shared data model for execdiff.
package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Depth is an analysis configuration index in [0, D).
type Depth int

// BugID identifies a defect by project and bug number, e.g. Time 5.
type BugID struct {
	Project string `json:"project"`
	Number  int    `json:"number"`
}

// String renders the bug the way the patch repository names its directories.
func (b BugID) String() string {
	return fmt.Sprintf("%s-%d", b.Project, b.Number)
}

// PatchID names one candidate fix. Many patches may share a BugID.
type PatchID struct {
	Name string `json:"name"`
	Bug  BugID  `json:"bug"`
}

func (p PatchID) String() string {
	return p.Name
}

// ParsePatchID derives a PatchID from a patch file or branch name such as
// "patch1-Time-5-Arja". Directory components and a file extension are ignored.
func ParsePatchID(name string) (PatchID, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if ext := strings.LastIndex(name, "."); ext > 0 {
		name = name[:ext]
	}
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return PatchID{}, fmt.Errorf("patch name %q does not follow <tool>-<Project>-<bug>[-...]", name)
	}
	project := parts[1]
	if project == "" {
		return PatchID{}, fmt.Errorf("patch name %q has an empty project", name)
	}
	number, err := strconv.Atoi(parts[2])
	if err != nil || number < 0 {
		return PatchID{}, fmt.Errorf("patch name %q has an invalid bug number %q", name, parts[2])
	}
	return PatchID{Name: name, Bug: BugID{Project: project, Number: number}}, nil
}

// ArtifactKey is the identifier artifacts are filed under: the hash of the
// patch commit, one per patch.
type ArtifactKey string

// Corpus is a set of artifact keys.
type Corpus map[ArtifactKey]struct{}

// NewCorpus builds a corpus from the given keys.
func NewCorpus(keys ...ArtifactKey) Corpus {
	c := make(Corpus, len(keys))
	for _, k := range keys {
		c[k] = struct{}{}
	}
	return c
}

// Contains reports whether k is a member.
func (c Corpus) Contains(k ArtifactKey) bool {
	_, ok := c[k]
	return ok
}

// Sorted returns the members in lexical order.
func (c Corpus) Sorted() []ArtifactKey {
	keys := make([]ArtifactKey, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LogRecord is one timing fact parsed from a log line.
type LogRecord struct {
	Kind  RecordKind `json:"kind"`
	Value int64      `json:"value"`
	Line  int        `json:"line"`
}

// DepthStatistics is the aggregate for one depth. Counts are corpus-wide,
// timings are averaged over the comparable corpus.
type DepthStatistics struct {
	Depth                   Depth   `json:"depth"`
	Analyzed                int     `json:"analyzed"`
	WithEmptySahabReport    int     `json:"with_empty_sahab_report"`
	WithNonEmptySahabReport int     `json:"with_not_empty_sahab_report"`
	WithManipulatedDiff     int     `json:"with_manipulated_diff"`
	WithDiffGenerated       int     `json:"with_diff_generated"`
	WithDistinctStatesAdded int     `json:"with_distinct_states_added"`
	SahabTime               float64 `json:"sahab_time"`
	LineVarAndMappingTime   float64 `json:"line_var_and_mapping_computation_time"`
	DiffComputationTime     float64 `json:"diff_computation_time"`
	UIManipulationTime      float64 `json:"ui_manipulation_time"`
}

// Diagnostic is a non-fatal problem seen while aggregating.
type Diagnostic struct {
	Depth   Depth       `json:"depth"`
	Key     ArtifactKey `json:"key,omitempty"`
	Kind    string      `json:"kind"` // MissingArtifactDiagnostic or MalformedLogDiagnostic
	Message string      `json:"message"`
}

// CorpusReport is the full output of one report generation.
type CorpusReport struct {
	GeneratedAt    time.Time         `json:"generated_at"`
	ReferenceDepth Depth             `json:"reference_depth"`
	CorpusSize     int               `json:"corpus_size"`
	Corpus         []ArtifactKey     `json:"corpus"`
	Depths         []DepthStatistics `json:"depths"`
	Diagnostics    []Diagnostic      `json:"diagnostics,omitempty"`
}

// RunRecord is the outcome of one ExecutionRun, i.e. one (patch, depth) pair.
type RunRecord struct {
	Patch            PatchID       `json:"patch"`
	Depth            Depth         `json:"depth"`
	Key              ArtifactKey   `json:"key,omitempty"`
	ChangedFile      string        `json:"changed_file,omitempty"`
	Test             string        `json:"test,omitempty"`
	State            RunState      `json:"state"`
	Trail            []RunState    `json:"trail"`
	Err              string        `json:"error,omitempty"`
	CollectorInvoked bool          `json:"collector_invoked"`
	AnalyzerInvoked  bool          `json:"analyzer_invoked"`
	Started          time.Time     `json:"started"`
	Duration         time.Duration `json:"duration"`
}

// Advance appends a state to the trail and makes it current.
func (r *RunRecord) Advance(s RunState) {
	r.State = s
	r.Trail = append(r.Trail, s)
}
