// Package main implements the CLI driver for the default method lowering
// pass.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/715d/defender/pkg/defender"
	"github.com/715d/defender/pkg/jast"
	"github.com/715d/defender/pkg/progfile"
)

// Config holds all command-line configuration options.
type Config struct {
	Files   []string // program descriptions to lower
	Verbose bool     // enables detailed output and statistics
	JSON    bool     // enables JSON output format
	Verify  bool     // check post-conditions after lowering
	Watch   bool     // re-lower files when they change
	Profile bool     // enables CPU and memory profiling
}

const (
	exitVerifyFailed = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "defenderc [files...]",
		Short: "Lower default interface methods to static functions",
		Long: `defenderc lowers the default interface methods of a program description.

For every interface method with a body it:
- creates a static twin taking the receiver as its first parameter
- adds forwarders to implementing classes that do not override the method
- rewrites typed calls and script fragment references to use the twin`,
		Example: `  defenderc program.yaml              # Print the lowered program
  defenderc -v a.yaml b.yaml         # Verbose output
  defenderc --json program.yaml      # JSON output
  defenderc --watch program.yaml     # Re-lower on every change`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("defenderc version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	// Define flags.
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&cfg.Verify, "verify", true, "Check that no call or fragment still targets a default method")
	rootCmd.PersistentFlags().BoolVar(&cfg.Watch, "watch", false, "Watch the files and lower them again when they change")
	rootCmd.PersistentFlags().BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Files = args
	lowerer := defender.NewLowerer(defender.Options{Verify: cfg.Verify})

	if cfg.Watch {
		return watch(cmd.Context(), &cfg, lowerer, cmd.OutOrStdout())
	}

	slog.Info("lowering programs", "files", cfg.Files)
	results, err := lowerFiles(cmd.Context(), lowerer, cfg.Files)
	if err != nil {
		return errWithCode(err, exitError)
	}
	if err := writeResults(cmd.OutOrStdout(), results, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	return exitStatus(results)
}

// FileResult is the outcome of lowering one program description.
type FileResult struct {
	File       string           `json:"file"`
	Stats      *defender.Result `json:"stats,omitempty"`
	Twins      []string         `json:"twins,omitempty"`
	Forwarders []string         `json:"forwarders,omitempty"`
	Program    string           `json:"program,omitempty"`
	Error      string           `json:"error,omitempty"`
	Duration   time.Duration    `json:"duration"`

	err error
}

// lowerFiles lowers every file concurrently. A file that fails to load or
// lower is reported in its result; only cancellation fails the whole run.
func lowerFiles(ctx context.Context, lowerer *defender.Lowerer, files []string) ([]*FileResult, error) {
	results := make([]*FileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for idx, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[idx] = lowerFile(lowerer, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func lowerFile(lowerer *defender.Lowerer, file string) *FileResult {
	start := time.Now()
	fr := &FileResult{File: file}
	defer func() { fr.Duration = time.Since(start) }()

	prog, err := progfile.Load(file)
	if err != nil {
		fr.fail(err)
		return fr
	}
	res, err := lowerer.Lower(prog)
	if res != nil {
		fr.Stats = res
		fr.Twins = methodKeys(res.Twins)
		fr.Forwarders = methodKeys(res.Forwarders)
		fr.Program = jast.DumpString(prog)
	}
	if err != nil {
		fr.fail(err)
		return fr
	}
	slog.Info("lowered program",
		"file", file,
		"twins", res.TwinsCreated,
		"forwarders", res.ForwardersAdded,
		"calls", res.CallsRewritten,
		"fragments", res.FragmentsRewritten)
	return fr
}

func (fr *FileResult) fail(err error) {
	fr.err = err
	fr.Error = err.Error()
	slog.Error("lowering failed", "file", fr.File, "err", err)
}

func methodKeys(methods []*jast.Method) []string {
	keys := make([]string, len(methods))
	for i, m := range methods {
		keys[i] = m.String()
	}
	return keys
}

// exitStatus maps per-file failures to the exit code of the run.
// Verification failures exit with 1, anything else with 2.
func exitStatus(results []*FileResult) error {
	code := 0
	var msgs []string
	for _, r := range results {
		if r.err == nil {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: %v", r.File, r.err))
		if errors.Is(r.err, defender.ErrVerify) {
			code = max(code, exitVerifyFailed)
		} else {
			code = exitError
		}
	}
	if code == 0 {
		return nil
	}
	return errWithCode(errors.New(strings.Join(msgs, "\n")), code)
}

func writeResults(w io.Writer, results []*FileResult, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(results)
	} else {
		output = formatTextOutput(results, cfg)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

type jOutput struct {
	Files     []*FileResult `json:"files"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
}

func formatJSONOutput(results []*FileResult) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Files:     results,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(results []*FileResult, cfg *Config) string {
	var output strings.Builder

	for _, r := range results {
		if cfg.Verbose && r.Stats != nil {
			slog.Info("",
				"file", r.File,
				"twins_created", r.Stats.TwinsCreated,
				"forwarders_added", r.Stats.ForwardersAdded,
				"calls_rewritten", r.Stats.CallsRewritten,
				"fragment_refs_rewritten", r.Stats.FragmentRefsRewritten,
				"fragment_invocations_rewritten", r.Stats.FragmentInvocationsRewritten,
				"duration", r.Duration.String())
		}
		if r.Program == "" {
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(&output, "// %s\n", r.File)
		}
		output.WriteString(r.Program)
	}

	return output.String()
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	// Stop CPU profiling and close file.
	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	// Write memory profile.
	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error { return e.err }
