// Package main provides a performance benchmarking tool for the execdiff CLI.
// It generates synthetic experiment roots of increasing size, runs the report
// and corpus commands against each one several times with and without a
// ledger, treats the first run as cold and averages the rest as warm, and
// writes the timings to CSV.
//
// Prerequisites:
// - execdiff binary installed and available in PATH
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Directory where synthetic experiment roots are generated
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-ledger average, cold run and average of warm runs).
type BenchmarkResult struct {
	Commits      int
	Command      string
	NoLedgerTime string
	ColdTime     string
	WarmTime     string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir      string
	Timeout      time.Duration
	Workers      int
	Depths       int
	NoLedgerRuns int
	LedgerRuns   int
	CorpusSizes  []int
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir:      os.Args[1],
		Timeout:      5 * time.Minute,
		Workers:      8,
		Depths:       4,
		NoLedgerRuns: 3,
		LedgerRuns:   4,
		CorpusSizes:  []int{100, 1000, 10000},
	}

	if _, err := exec.LookPath("execdiff"); err != nil {
		fmt.Printf("Prerequisites check failed: execdiff binary not found in PATH\n")
		os.Exit(1)
	}

	results, err := runBenchmarks(config)
	if err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// runBenchmarks generates one experiment root per corpus size and times every command on it
func runBenchmarks(config BenchmarkConfig) ([]BenchmarkResult, error) {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d sizes, %d depths, %v timeout, %d workers, no-ledger: %d runs, ledger: %d runs\n",
		len(config.CorpusSizes), config.Depths, config.Timeout, config.Workers, config.NoLedgerRuns, config.LedgerRuns)

	for _, commits := range config.CorpusSizes {
		root := filepath.Join(config.WorkDir, fmt.Sprintf("experiment-%d", commits))
		fmt.Printf("Generating %d commits under %s\n", commits, root)
		if err := generateExperiment(root, config.Depths, commits); err != nil {
			return nil, err
		}

		for _, command := range []string{"report", "corpus"} {
			results = append(results, runBenchmarkSuite(config, root, commits, command))
		}
	}

	return results, nil
}

// generateExperiment writes trace logs, diff computer logs and state diffs for
// every commit at every depth. Every tenth commit has no state diff at the
// deepest depth so the comparable corpus is a strict subset.
func generateExperiment(root string, depths, commits int) error {
	for d := range depths {
		out := filepath.Join(root, fmt.Sprintf("exec-diff%d", d), "output")
		for _, dir := range []string{"logs", "state_diffs"} {
			if err := os.MkdirAll(filepath.Join(out, dir), 0o755); err != nil {
				return err
			}
		}
		for c := range commits {
			key := fmt.Sprintf("%040x", c)
			trace := fmt.Sprintf("Sahab spent time %d\n", 10+c%50)
			if err := os.WriteFile(filepath.Join(out, "logs", "sahab_"+key+".log"), []byte(trace), 0o644); err != nil {
				return err
			}
			errLog := fmt.Sprintf("line mappings and vars computation %d ms\ndiff computation took %d ms\n", c%7, c%13)
			if err := os.WriteFile(filepath.Join(out, "logs", "diff_computer_"+key+".err"), []byte(errLog), 0o644); err != nil {
				return err
			}
			if d == depths-1 && c%10 == 0 {
				continue
			}
			diff := "<html>state only occurs on the right</html>"
			if err := os.WriteFile(filepath.Join(out, "state_diffs", "state_diff_"+key+".html"), []byte(diff), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// runBenchmarkSuite runs both no-ledger and ledger benchmarks for a command
func runBenchmarkSuite(config BenchmarkConfig, root string, commits int, command string) BenchmarkResult {
	fmt.Printf("Running %s on %d commits\n", command, commits)

	runPhase := func(ledgerBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, root, command, ledgerBackend, numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avgTime = fmt.Sprintf("%.3fs", sum/float64(len(times)))
		}
		return cold, avgTime
	}

	_, noLedgerAvg := runPhase("none", config.NoLedgerRuns, "No-ledger")
	coldTime, warmAvg := runPhase("sqlite", config.LedgerRuns, "Ledger")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-ledger average: %s, Cold time: %s, Warm average: %s\n", noLedgerAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Commits:      commits,
		Command:      command,
		NoLedgerTime: noLedgerAvg,
		ColdTime:     coldTimeStr,
		WarmTime:     warmAvg,
	}
}

// runBenchmark executes an execdiff command multiple times and returns cold time and warm times
func runBenchmark(config BenchmarkConfig, root, command, ledgerBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := []string{
		command,
		"--root", root,
		"--depths", strconv.Itoa(config.Depths),
		"--workers", strconv.Itoa(config.Workers),
		"--output", "csv",
		"--ledger-backend", ledgerBackend,
		"--ledger-db-connect", filepath.Join(config.WorkDir, "benchmark_ledger.db"),
	}

	var times []float64
	for range numRuns {
		start := time.Now()

		cmd := exec.Command("execdiff", args...)

		done := make(chan error, 1)
		go func() {
			done <- cmd.Run()
		}()

		select {
		case err := <-done:
			if err == nil {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// saveResults writes benchmark results to a timestamped CSV file
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(os.TempDir(), fmt.Sprintf("execdiff_benchmark_%s.csv", timestamp))

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"commits", "cmd", "no_ledger_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, result := range results {
		if err := writer.Write([]string{strconv.Itoa(result.Commits), result.Command, result.NoLedgerTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")

	printCommandSummary(results, "report", "Depth Report:")
	printCommandSummary(results, "corpus", "Comparable Corpus:")
}

// printCommandSummary displays results for a specific command type
func printCommandSummary(results []BenchmarkResult, command, title string) {
	fmt.Printf("%s\n", title)
	for _, result := range results {
		if result.Command == command {
			fmt.Printf("  %-8d: No-ledger: %s, Cold: %s, Warm: %s\n", result.Commits, result.NoLedgerTime, result.ColdTime, result.WarmTime)
		}
	}
}
