package contract

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// Default values for configuration.
const (
	DefaultDepths        = 4
	DefaultDepthDir      = "exec-diff%d/output"
	DefaultPrecision     = 1
	MaxPrecision         = 4
	DefaultAppliedMarker = "applied"
	DefaultBaseURL       = "http://example.com"
	DefaultToolTimeout   = 1000 * time.Second
	DefaultReferenceDiff = "{repo}/exec-diff-reports/{patch}/gh_full.html"
	DefaultMetadataDir   = "{repo}/projects-metadata"
	DepthPlaceholder     = "{depth}"
)

// Default external tool invocations.
var (
	DefaultCollectorCmd  = "python3"
	DefaultCollectorArgs = []string{
		"scripts/bribe-sahab.py",
		"-p", "{project_dir}",
		"--left", "{left}",
		"--right", "{right}",
		"-t", "{test}",
		"-c", "{changed}",
	}
	DefaultAnalyzerCmd  = "java"
	DefaultAnalyzerArgs = []string{
		"-jar", "explainer.jar",
		"{left_report}", "{right_report}",
		"{old_src}", "{new_src}",
		"{reference_diff}", "{test}", "{base_url}",
	}
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// ToolConfig describes one external tool invocation template.
type ToolConfig struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// PinRewrite replaces the first occurrence of From with To on every line of File
// inside a materialized tree.
type PinRewrite struct {
	File string
	From string
	To   string
}

// Config holds the runtime configuration.
// This struct remains the "final, validated" config.
type Config struct {
	Root           string
	Depths         int
	ReferenceDepth schema.Depth
	DepthDir       string
	Depth          int // -1 selects every depth

	PatchList     string
	RepoPath      string // may contain {depth} for isolated checkouts
	WorkDir       string
	MetadataDir   string
	ReferenceDiff string
	AppliedMarker string
	Project       string
	LeftRef       string
	BaseURL       string
	Pin           PinRewrite

	Collector ToolConfig
	Analyzer  ToolConfig

	Workers    int
	Precision  int
	Output     schema.OutputMode
	OutputFile string
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool

	LedgerBackend   schema.DatabaseBackend
	LedgerDBConnect string // Please use env var as this is plaintext

	LogLevel  string
	LogFormat string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	PatchListStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	Root            string `mapstructure:"root"`
	Depths          int    `mapstructure:"depths"`
	ReferenceDepth  int    `mapstructure:"reference-depth"`
	DepthDir        string `mapstructure:"depth-dir"`
	Output          string `mapstructure:"output"`
	OutputFile      string `mapstructure:"output-file"`
	Precision       int    `mapstructure:"precision"`
	Width           int    `mapstructure:"width"`
	Color           string `mapstructure:"color"`
	Workers         int    `mapstructure:"workers"`
	LedgerBackend   string `mapstructure:"ledger-backend"`
	LedgerDBConnect string `mapstructure:"ledger-db-connect"`
	LogLevel        string `mapstructure:"log-level"`
	LogFormat       string `mapstructure:"log-format"`

	// --- Fields from runCmd.Flags() ---
	Depth            int      `mapstructure:"depth"`
	RepoPath         string   `mapstructure:"repo-path"`
	WorkDir          string   `mapstructure:"work-dir"`
	MetadataDir      string   `mapstructure:"metadata-dir"`
	ReferenceDiff    string   `mapstructure:"reference-diff"`
	AppliedMarker    string   `mapstructure:"applied-marker"`
	Project          string   `mapstructure:"project"`
	LeftRef          string   `mapstructure:"left-ref"`
	BaseURL          string   `mapstructure:"base-url"`
	PinFile          string   `mapstructure:"pin-file"`
	PinFrom          string   `mapstructure:"pin-from"`
	PinTo            string   `mapstructure:"pin-to"`
	CollectorCmd     string   `mapstructure:"collector-cmd"`
	CollectorArgs    []string `mapstructure:"collector-args"`
	CollectorDir     string   `mapstructure:"collector-dir"`
	CollectorTimeout string   `mapstructure:"collector-timeout"`
	AnalyzerCmd      string   `mapstructure:"analyzer-cmd"`
	AnalyzerArgs     []string `mapstructure:"analyzer-args"`
	AnalyzerDir      string   `mapstructure:"analyzer-dir"`
	AnalyzerTimeout  string   `mapstructure:"analyzer-timeout"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Collector.Args = slices.Clone(c.Collector.Args)
	clone.Analyzer.Args = slices.Clone(c.Analyzer.Args)
	return &clone
}

// AllDepths returns every configured depth in ascending order.
func (c *Config) AllDepths() []schema.Depth {
	depths := make([]schema.Depth, c.Depths)
	for i := range depths {
		depths[i] = schema.Depth(i)
	}
	return depths
}

// SelectedDepths returns the depths a pipeline run should cover.
func (c *Config) SelectedDepths() []schema.Depth {
	if c.Depth >= 0 {
		return []schema.Depth{schema.Depth(c.Depth)}
	}
	return c.AllDepths()
}

// DepthRepoPath returns the repository checkout used at a depth.
func (c *Config) DepthRepoPath(d schema.Depth) string {
	return strings.ReplaceAll(c.RepoPath, DepthPlaceholder, fmt.Sprint(int(d)))
}

// DepthWorkDir returns the materialization root used at a depth.
func (c *Config) DepthWorkDir(d schema.Depth) string {
	return filepath.Join(c.WorkDir, fmt.Sprintf("depth%d", int(d)))
}

// IsolatedCheckouts reports whether each depth has its own repository checkout,
// which is what makes running depths in parallel safe.
func (c *Config) IsolatedCheckouts() bool {
	return strings.Contains(c.RepoPath, DepthPlaceholder)
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(_ context.Context, cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processDepths(cfg, input); err != nil {
		return err
	}
	if err := processPipeline(cfg, input); err != nil {
		return err
	}
	return validateBackendConfigs(cfg, input)
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("ledger-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("ledger-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// ParseDatabaseBackend normalizes a backend name; empty means none.
func ParseDatabaseBackend(s string) (schema.DatabaseBackend, error) {
	if strings.TrimSpace(s) == "" {
		return schema.NoneBackend, nil
	}
	backend := schema.DatabaseBackend(strings.ToLower(s))
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return "", fmt.Errorf("invalid ledger backend '%s'. must be sqlite, mysql, postgresql, none", s)
	}
	return backend, nil
}

// validateBackendConfigs validates the ledger backend configuration.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	backend, err := ParseDatabaseBackend(input.LedgerBackend)
	if err != nil {
		return err
	}
	cfg.LedgerBackend = backend
	cfg.LedgerDBConnect = input.LedgerDBConnect
	return ValidateDatabaseConnectionString(cfg.LedgerBackend, cfg.LedgerDBConnect)
}

// validateSimpleInputs processes and validates output and runtime fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.LogLevel = input.LogLevel
	cfg.LogFormat = input.LogFormat

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for parquet output")
	}

	switch strings.ToLower(input.LogFormat) {
	case "", LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format '%s'. must be text or json", input.LogFormat)
	}
	return nil
}

// processDepths validates the depth layout.
func processDepths(cfg *Config, input *ConfigRawInput) error {
	if input.Depths <= 0 {
		return fmt.Errorf("depths must be greater than 0 (received %d)", input.Depths)
	}
	cfg.Depths = input.Depths

	cfg.ReferenceDepth = schema.Depth(input.ReferenceDepth)
	if input.ReferenceDepth < 0 {
		cfg.ReferenceDepth = schema.Depth(cfg.Depths - 1)
	}
	if int(cfg.ReferenceDepth) >= cfg.Depths {
		return fmt.Errorf("reference-depth %d is outside [0, %d)", cfg.ReferenceDepth, cfg.Depths)
	}

	cfg.Depth = input.Depth
	if cfg.Depth >= cfg.Depths {
		return fmt.Errorf("depth %d is outside [0, %d)", cfg.Depth, cfg.Depths)
	}
	if cfg.Depth < 0 {
		cfg.Depth = -1
	}

	cfg.DepthDir = input.DepthDir
	if cfg.DepthDir == "" {
		cfg.DepthDir = DefaultDepthDir
	}
	if !strings.Contains(cfg.DepthDir, "%d") {
		return fmt.Errorf("depth-dir %q must contain %%d for the depth index", cfg.DepthDir)
	}

	root := input.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	cfg.Root = absRoot
	return nil
}

// processPipeline fills the pipeline driver settings. Paths stay relative to the
// repository when given as templates so {repo} can be substituted later.
func processPipeline(cfg *Config, input *ConfigRawInput) error {
	cfg.PatchList = strings.TrimSpace(input.PatchListStr)
	cfg.RepoPath = input.RepoPath
	if cfg.RepoPath != "" {
		abs, err := filepath.Abs(cfg.RepoPath)
		if err != nil {
			return fmt.Errorf("failed to resolve repo-path %q: %w", cfg.RepoPath, err)
		}
		cfg.RepoPath = abs
	}
	cfg.WorkDir = input.WorkDir
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.Root, "work")
	}

	cfg.MetadataDir = withDefault(input.MetadataDir, DefaultMetadataDir)
	cfg.ReferenceDiff = withDefault(input.ReferenceDiff, DefaultReferenceDiff)
	cfg.AppliedMarker = withDefault(input.AppliedMarker, DefaultAppliedMarker)
	cfg.BaseURL = withDefault(input.BaseURL, DefaultBaseURL)
	cfg.Project = strings.TrimSpace(input.Project)
	cfg.LeftRef = strings.TrimSpace(input.LeftRef)
	cfg.Pin = PinRewrite{File: input.PinFile, From: input.PinFrom, To: input.PinTo}

	collector, err := toolConfig("collector", input.CollectorCmd, input.CollectorArgs, input.CollectorDir, input.CollectorTimeout, DefaultCollectorCmd, DefaultCollectorArgs)
	if err != nil {
		return err
	}
	cfg.Collector = collector

	analyzer, err := toolConfig("analyzer", input.AnalyzerCmd, input.AnalyzerArgs, input.AnalyzerDir, input.AnalyzerTimeout, DefaultAnalyzerCmd, DefaultAnalyzerArgs)
	if err != nil {
		return err
	}
	cfg.Analyzer = analyzer
	return nil
}

func toolConfig(name, cmd string, args []string, dir, timeout, defaultCmd string, defaultArgs []string) (ToolConfig, error) {
	tc := ToolConfig{
		Command: withDefault(cmd, defaultCmd),
		Args:    args,
		Dir:     dir,
		Timeout: DefaultToolTimeout,
	}
	if len(tc.Args) == 0 {
		tc.Args = slices.Clone(defaultArgs)
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return ToolConfig{}, fmt.Errorf("invalid %s-timeout %q: %w", name, timeout, err)
		}
		if d <= 0 {
			return ToolConfig{}, fmt.Errorf("%s-timeout must be positive (received %v)", name, d)
		}
		tc.Timeout = d
	}
	return tc, nil
}

// ValidateRunInputs checks the settings only the pipeline driver needs.
func ValidateRunInputs(cfg *Config) error {
	if cfg.RepoPath == "" {
		return fmt.Errorf("--repo-path is required to drive the pipeline")
	}
	if cfg.PatchList == "" {
		return fmt.Errorf("a patch list file is required")
	}
	return nil
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// ProcessProfilingConfig enables profiling when a file prefix is given.
func ProcessProfilingConfig(profile *ProfileConfig, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		profile.Enabled = false
		return nil
	}
	if strings.ContainsAny(prefix, "*?[") {
		return fmt.Errorf("profile prefix %q must not contain glob characters", prefix)
	}
	profile.Enabled = true
	profile.Prefix = prefix
	return nil
}
