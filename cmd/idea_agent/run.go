package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/observability"
	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run [title]",
	Short: "Analyze one idea through the analyst, reviewer and fact-checker loop",
	Long: `Runs a single idea through the iterative pipeline. The idea is given as a title
argument (with an optional --description) or as the first level-1 heading of a
markdown file passed with --idea-file.

Artifacts are written to <output-dir>/<slug>/; the previous run, if any, is
archived first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIdeaCmd,
}

var (
	runDescription string
	runIdeaFile    string
	runJSON        bool
)

func init() {
	runCommand.Flags().StringVarP(&runDescription, "description", "d", "", "Idea description")
	runCommand.Flags().StringVarP(&runIdeaFile, "idea-file", "f", "", "Markdown file whose first '# Title' section is the idea")
	runCommand.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON instead of a report")

	rootCmd.AddCommand(runCommand)
}

// runFailure is returned when a run finishes without success, so the exit
// code reflects the outcome.
type runFailure struct {
	status  types.Status
	message string
}

func (e *runFailure) Error() string {
	if e.message == "" {
		return fmt.Sprintf("run finished with status %s", e.status)
	}
	return fmt.Sprintf("run finished with status %s: %s", e.status, e.message)
}

// exitCode maps an error to the process exit status: 130 for interrupted
// runs, 1 otherwise.
func exitCode(err error) int {
	var rf *runFailure
	if errors.As(err, &rf) && rf.status == types.StatusInterrupted {
		return 130
	}
	return 1
}

func runIdeaCmd(cmd *cobra.Command, args []string) error {
	idea, err := resolveIdea(args, runDescription, runIdeaFile)
	if err != nil {
		return err
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx, stop := withSignals(commandContext(cmd))
	defer stop()

	a, err := newApp(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	mode := a.mode()
	runner, err := a.runner(ctx, mode)
	if err != nil {
		return err
	}

	var onProgress pipeline.ProgressCallback
	if !runJSON {
		onProgress = a.progressPrinter(false)
	}
	res := runner.Run(ctx, pipeline.Input{
		Idea:          idea,
		Mode:          mode,
		RunType:       types.RunType(cfg.RunType),
		MaxIterations: cfg.MaxIterations,
		OnProgress:    onProgress,
	})

	return reportResult(cmd, a.printer, res, runJSON)
}

func reportResult(cmd *cobra.Command, printer *observability.Printer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		report := observability.RunReport{
			Slug:          res.Slug,
			Status:        res.Status,
			Success:       res.Success,
			Iterations:    res.Iterations,
			FinalAnalysis: res.FinalAnalysisPath,
			ArchivedTo:    res.ArchivedTo,
			Error:         res.Error,
			Duration:      res.Duration,
		}
		if res.Summary != nil {
			report.CostUSD = res.Summary.Totals.CostUSD
		}
		printer.PrintRunReport(report)
	}

	if !res.Success {
		return &runFailure{status: res.Status, message: res.Error}
	}
	return nil
}

// resolveIdea builds the idea from the positional title or from a markdown file.
func resolveIdea(args []string, description, ideaFile string) (types.Idea, error) {
	switch {
	case ideaFile != "" && len(args) > 0:
		return types.Idea{}, fmt.Errorf("a title argument and --idea-file are mutually exclusive; provide only one")
	case ideaFile != "":
		data, err := os.ReadFile(ideaFile)
		if err != nil {
			return types.Idea{}, fmt.Errorf("failed to read idea file: %w", err)
		}
		ideas := ledger.Parse(data)
		if len(ideas) == 0 {
			return types.Idea{}, fmt.Errorf("no '# Title' heading found in %s", ideaFile)
		}
		idea := ideas[0]
		if description != "" {
			idea.Description = description
		}
		return idea, nil
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		return types.Idea{Title: strings.TrimSpace(args[0]), Description: strings.TrimSpace(description)}, nil
	default:
		return types.Idea{}, fmt.Errorf("an idea title or --idea-file must be provided")
	}
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
