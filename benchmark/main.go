// Package main provides a performance benchmarking tool for the emission CLI.
// It seeds stores of increasing user counts from the shared fixture, then times
// a full pipeline run and repeated scoring with and without the score cache,
// treating the first cached run as cold and averaging the rest as warm.
//
// Prerequisites:
// - emission binary installed and available in PATH
//
// Usage: go run benchmark/main.go [fixture-file]
//
//	fixture-file: JSON entries file, e.g. core/testdata/real_example.json
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jszwec/csvutil"
)

// BenchmarkResult holds the timings of one workload.
type BenchmarkResult struct {
	Users       int    `csv:"users"`
	Command     string `csv:"cmd"`
	NoCacheTime string `csv:"no_cache_avg"`
	ColdTime    string `csv:"cold_time"`
	WarmTime    string `csv:"warm_avg"`
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	Fixture     string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	UserCounts  []int
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [fixture-file]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		Fixture:     os.Args[1],
		Timeout:     5 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		UserCounts:  []int{1, 10, 100},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	var results []BenchmarkResult
	for _, n := range config.UserCounts {
		res, err := runWorkload(config, n)
		if err != nil {
			fmt.Printf("Workload with %d users failed: %v\n", n, err)
			os.Exit(1)
		}
		results = append(results, res...)
	}

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}
	printSummary(results)
}

// checkPrerequisites verifies that the emission binary and the fixture exist.
func checkPrerequisites(config BenchmarkConfig) error {
	if _, err := exec.LookPath("emission"); err != nil {
		return fmt.Errorf("emission binary not found in PATH")
	}
	if _, err := os.Stat(config.Fixture); err != nil {
		return fmt.Errorf("fixture not found at %s: %w", config.Fixture, err)
	}
	return nil
}

// workloadEnv isolates the stores of one workload under dir.
func workloadEnv(dir, cacheBackend string) []string {
	return append(os.Environ(),
		"EMISSION_DB_CONNECT="+filepath.Join(dir, "store.db"),
		"EMISSION_CACHE_BACKEND="+cacheBackend,
		"EMISSION_CACHE_DB_CONNECT="+filepath.Join(dir, "cache.db"),
		"EMISSION_ARCHIVE_DIR="+filepath.Join(dir, "archived"),
	)
}

// runWorkload seeds users copies of the fixture and benchmarks the commands.
func runWorkload(config BenchmarkConfig, users int) ([]BenchmarkResult, error) {
	dir, err := os.MkdirTemp("", "emission-benchmark-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	fmt.Printf("Seeding %d users\n", users)
	ids := make([]string, users)
	for i := range ids {
		ids[i] = uuid.NewString()
		if _, err := runCommand(config, workloadEnv(dir, "sqlite"), "store", "load", config.Fixture, "--user", ids[i]); err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", ids[i], err)
		}
	}

	pipelineArgs := []string{"pipeline", "run", "--lag", "0s", "--workers", fmt.Sprint(config.Workers), "--output", "csv"}
	pipelineTime := "TIMEOUT"
	if d, err := runCommand(config, workloadEnv(dir, "sqlite"), pipelineArgs...); err == nil {
		pipelineTime = fmt.Sprintf("%.3fs", d.Seconds())
	}
	fmt.Printf("  pipeline run: %s\n", pipelineTime)

	scoreArgs := []string{"score", "--user", ids[0], "--start", "2015-07-22", "--end", "2015-07-23", "--output", "csv"}
	noCache := timeRuns(config, workloadEnv(dir, "none"), config.NoCacheRuns, append(scoreArgs, "--cache=false"))
	cached := timeRuns(config, workloadEnv(dir, "sqlite"), config.CacheRuns, scoreArgs)

	score := BenchmarkResult{Users: users, Command: "score", NoCacheTime: average(noCache), ColdTime: "TIMEOUT", WarmTime: "TIMEOUT"}
	if len(cached) > 0 {
		score.ColdTime = fmt.Sprintf("%.3fs", cached[0])
		score.WarmTime = average(cached[1:])
	}
	fmt.Printf("  score: no-cache %s, cold %s, warm %s\n", score.NoCacheTime, score.ColdTime, score.WarmTime)

	return []BenchmarkResult{
		{Users: users, Command: "pipeline", NoCacheTime: pipelineTime, ColdTime: pipelineTime, WarmTime: "-"},
		score,
	}, nil
}

// timeRuns runs a command numRuns times and returns the durations of successful runs in seconds.
func timeRuns(config BenchmarkConfig, env []string, numRuns int, args []string) []float64 {
	var times []float64
	for range numRuns {
		if d, err := runCommand(config, env, args...); err == nil {
			times = append(times, d.Seconds())
		}
	}
	return times
}

// runCommand runs emission with a timeout and returns its wall time.
func runCommand(config BenchmarkConfig, env []string, args ...string) (time.Duration, error) {
	cmd := exec.Command("emission", args...)
	cmd.Env = env

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		output, err := cmd.CombinedOutput()
		if err != nil {
			err = fmt.Errorf("%w: %s", err, output)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return time.Since(start), err
	case <-time.After(config.Timeout):
		_ = cmd.Process.Kill()
		return 0, fmt.Errorf("timed out after %v", config.Timeout)
	}
}

func average(times []float64) string {
	if len(times) == 0 {
		return "TIMEOUT"
	}
	var sum float64
	for _, t := range times {
		sum += t
	}
	return fmt.Sprintf("%.3fs", sum/float64(len(times)))
}

// saveResults writes benchmark results to a timestamped CSV file.
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/emission_benchmark_%s.csv", timestamp)

	b, err := csvutil.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(filename, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary.
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, result := range results {
		fmt.Printf("  %4d users %-9s: No-cache: %s, Cold: %s, Warm: %s\n",
			result.Users, result.Command, result.NoCacheTime, result.ColdTime, result.WarmTime)
	}
}
