// gtest compiles every test program with nvyc and compares the produced IR,
// diagnostics and exit status against golden files recorded next to the
// sources (tests/foo.nvy -> tests/.foo.nvy.json).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/nvylang/nvyc/pkg/cli"
)

// Execution is one run of the compiler under test.
type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Golden is what a test file is expected to compile to. IRHash is the
// xxhash of Stdout, which holds the IR when the compile succeeds.
type Golden struct {
	SourceHash string    `json:"source_hash"`
	IRHash     string    `json:"ir_hash"`
	Compile    Execution `json:"compile"`
}

type FileTestResult struct {
	File     string  `json:"file"`
	Status   string  `json:"status"` // PASS, FAIL, SKIP, ERROR, UPDATED
	Message  string  `json:"message,omitempty"`
	Diff     string  `json:"diff,omitempty"`
	Expected *Golden `json:"expected,omitempty"`
	Actual   *Golden `json:"actual,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

type options struct {
	compiler     string
	compilerArgs string
	testFiles    string
	skipFiles    string
	outputJSON   string
	jsonDir      string
	timeout      time.Duration
	jobs         int
	update       bool
	verbose      bool
}

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	log.SetFlags(0)

	app := cli.NewApp("gtest")
	app.Synopsis = "[options]"
	app.Description = "Golden-file regression runner for nvyc. Compiles every matching test program and compares the IR, diagnostics and exit status against the recorded golden file."
	app.Authors = []string{"the nvy authors"}
	app.Since = 2025

	var opts options
	fs := app.FlagSet
	fs.String(&opts.compiler, "compiler", "c", "./nvyc", "Path to the compiler under test.", "path")
	fs.String(&opts.compilerArgs, "compiler-args", "", "", "Extra arguments for the compiler (space-separated).", "args")
	fs.String(&opts.testFiles, "test-files", "", "tests/*.nvy", "Glob pattern(s) for files to test (space-separated).", "glob")
	fs.String(&opts.skipFiles, "skip-files", "", "", "Files to skip (space-separated).", "files")
	fs.String(&opts.outputJSON, "output", "o", ".test_results.json", "Output file for the JSON test report.", "file")
	fs.String(&opts.jsonDir, "dir", "", "", "Directory to store/read golden JSON files (defaults to the source file dir).", "dir")
	fs.Duration(&opts.timeout, "timeout", "", 10*time.Second, "Timeout for each compile.")
	fs.Int(&opts.jobs, "jobs", "j", runtime.NumCPU(), "Number of parallel test jobs.")
	fs.Bool(&opts.update, "update", "u", false, "Rewrite the golden files from the current compiler output.")
	fs.Bool(&opts.verbose, "verbose", "v", false, "Show passing tests and their timings.")

	app.Action = func([]string) error {
		if opts.jobs < 1 {
			opts.jobs = 1
		}
		setupInterruptHandler()
		if !runSuite(&opts) {
			return fmt.Errorf("test suite failed")
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// setupInterruptHandler stops the run cleanly on CTRL+C.
func setupInterruptHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(opts *options, sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if opts.jsonDir != "" {
		return filepath.Join(opts.jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

func hashBytes(b []byte) string {
	return fmt.Sprintf("%x", xxhash.Sum64(b))
}

// hashFile computes the xxhash of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// runSuite tests every file and reports whether all of them passed.
func runSuite(opts *options) bool {
	files, err := expandGlobPatterns(opts.testFiles)
	if err != nil {
		log.Printf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
		return false
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return true
	}
	if _, err := exec.LookPath(opts.compiler); err != nil {
		log.Printf("%s[ERROR]%s Compiler '%s' not found: %v\n", cRed, cNone, opts.compiler, err)
		return false
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(opts.skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < opts.jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(opts, file)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(opts, allResults)
	return !hasFailures(writeJSONReport(opts, allResults))
}

func testFile(opts *options, file string) *FileTestResult {
	actual, err := compile(opts, file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error()}
	}

	goldenFile := getJSONPath(opts, file)
	if opts.update {
		if err := writeGolden(opts, goldenFile, actual); err != nil {
			return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Actual: actual}
		}
		return &FileTestResult{File: file, Status: "UPDATED", Message: "Golden file written to " + goldenFile, Actual: actual}
	}

	goldenData, err := os.ReadFile(goldenFile)
	if os.IsNotExist(err) {
		return &FileTestResult{File: file, Status: "SKIP", Message: "No golden file; run with --update to record one", Actual: actual}
	}
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var expected Golden
	if err := json.Unmarshal(goldenData, &expected); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	return compareResults(file, &expected, actual)
}

// compile runs the compiler on file, writing IR to stdout.
func compile(opts *options, file string) (*Golden, error) {
	sourceHash, err := hashFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to hash source file: %w", err)
	}
	args := append(strings.Fields(opts.compilerArgs), "-Fno-color", "-o", "-", file)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	exe := executeCommand(ctx, opts.compiler, args...)

	return &Golden{
		SourceHash: sourceHash,
		IRHash:     hashBytes([]byte(exe.Stdout)),
		Compile:    exe,
	}, nil
}

func writeGolden(opts *options, path string, g *Golden) error {
	stored := *g
	stored.Compile.Duration = 0
	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal golden data to JSON: %w", err)
	}
	if opts.jsonDir != "" {
		if err := os.MkdirAll(opts.jsonDir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", opts.jsonDir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file %s: %w", path, err)
	}
	return nil
}

func compareResults(file string, expected, actual *Golden) *FileTestResult {
	var diffs strings.Builder
	failed := false

	if actual.Compile.TimedOut {
		return &FileTestResult{File: file, Status: "FAIL", Message: "Compiler timed out", Expected: expected, Actual: actual}
	}
	if expected.Compile.ExitCode != actual.Compile.ExitCode {
		failed = true
		fmt.Fprintf(&diffs, "Exit Code mismatch:\n  - Expected: %d\n  - Actual:   %d\n", expected.Compile.ExitCode, actual.Compile.ExitCode)
	}
	if expected.IRHash != actual.IRHash {
		failed = true
		fmt.Fprintf(&diffs, "IR mismatch (%s != %s):\n%s", expected.IRHash, actual.IRHash, lineDiff(expected.Compile.Stdout, actual.Compile.Stdout))
	}
	if expected.Compile.Stderr != actual.Compile.Stderr {
		failed = true
		fmt.Fprintf(&diffs, "Diagnostics mismatch:\n%s", lineDiff(expected.Compile.Stderr, actual.Compile.Stderr))
	}

	if failed {
		msg := "Output or exit code mismatch"
		if expected.SourceHash != actual.SourceHash {
			msg += " (source changed since the golden file was recorded)"
		}
		return &FileTestResult{File: file, Status: "FAIL", Message: msg, Diff: diffs.String(), Expected: expected, Actual: actual}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "IR and diagnostics match", Expected: expected, Actual: actual}
}

func lineDiff(want, got string) string {
	return cmp.Diff(strings.Split(want, "\n"), strings.Split(got, "\n"))
}

// executeCommand runs a command with a timeout and captures its output.
func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	execResult := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	if ctx.Err() == context.DeadlineExceeded {
		execResult.TimedOut = true
		execResult.ExitCode = -1
	} else if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			execResult.ExitCode = exitErr.ExitCode()
		} else {
			execResult.ExitCode = -2
			execResult.Stderr += "\nExecution error: " + err.Error()
		}
	}
	return execResult
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

func printSummary(opts *options, results []*FileTestResult) {
	counts := make(map[string]int)
	var total time.Duration
	for _, result := range results {
		counts[result.Status]++
		if result.Actual != nil {
			total += result.Actual.Compile.Duration
		}

		switch result.Status {
		case "PASS":
			if opts.verbose {
				fmt.Printf("  [%sPASS%s] %s %s\n", cGreen, cNone, result.File, formatDuration(result.Actual.Compile.Duration))
			}
		case "UPDATED":
			fmt.Printf("  [%sUPDATED%s] %s\n", cCyan, cNone, result.File)
		case "SKIP":
			fmt.Printf("  [%sSKIP%s] %s: %s\n", cYellow, cNone, result.File, result.Message)
		case "FAIL":
			fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			if result.Diff != "" {
				fmt.Println(formatDiff(result.Diff))
			}
		case "ERROR":
			fmt.Printf("  [%sERROR%s] %s: %s\n", cRed, cNone, result.File, result.Message)
		}
	}

	fmt.Println("\n----------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s",
		cBold, cNone,
		cGreen, counts["PASS"], cNone,
		cRed, counts["FAIL"], cNone,
		cYellow, counts["SKIP"], cNone,
		cRed, counts["ERROR"], cNone)
	if counts["UPDATED"] > 0 {
		fmt.Printf(", %s%d Updated%s", cCyan, counts["UPDATED"], cNone)
	}
	fmt.Printf(", %d Total\n", len(results))
	if n := len(results) - counts["SKIP"]; n > 0 {
		fmt.Printf("Compiles took %s on average.\n", formatDuration(total/time.Duration(n)))
	}
}

// formatDiff indents a diff and colors its added and removed lines.
func formatDiff(diff string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString("    " + cRed + line + cNone + "\n")
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString("    " + cGreen + line + cNone + "\n")
		default:
			sb.WriteString("    " + line + "\n")
		}
	}
	return sb.String()
}

func writeJSONReport(opts *options, results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults)
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}
	outputFile := opts.outputJSON
	if opts.jsonDir != "" {
		if err := os.MkdirAll(opts.jsonDir, 0o755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, opts.jsonDir, err)
			return resultsMap
		}
		outputFile = filepath.Join(opts.jsonDir, opts.outputJSON)
	}
	if err := os.WriteFile(outputFile, jsonData, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else if opts.verbose {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
