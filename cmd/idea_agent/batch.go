package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-forge/internal/batch"
	"github.com/jonathan/idea-forge/internal/types"
)

var batchCommand = &cobra.Command{
	Use:   "batch",
	Short: "Process every idea in pending.md with bounded concurrency",
	Long: `Reads the ideas from <ledger-dir>/pending.md and runs each through the pipeline,
at most --max-concurrent at a time. Finished ideas move to completed.md or
failed.md; ideas interrupted by Ctrl-C stay pending for the next batch.`,
	Args: cobra.NoArgs,
	RunE: runBatchCmd,
}

var (
	batchAdd         []string
	batchList        bool
	batchDescription string
)

func init() {
	batchCommand.Flags().StringArrayVar(&batchAdd, "add", nil, "Append an idea title to pending.md before processing (repeatable)")
	batchCommand.Flags().StringVar(&batchDescription, "description", "", "Description for the ideas added with --add")
	batchCommand.Flags().BoolVar(&batchList, "list", false, "Only list the pending ideas")

	rootCmd.AddCommand(batchCommand)
}

func runBatchCmd(cmd *cobra.Command, _ []string) error {
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

	files := a.ledger()
	for _, title := range batchAdd {
		if err := files.AddPending(types.Idea{Title: title, Description: batchDescription}); err != nil {
			return err
		}
	}

	ideas, err := files.ReadPending()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if batchList {
		for _, idea := range ideas {
			fmt.Fprintf(out, "%s\t%s\n", idea.Slug(), idea.Title)
		}
		return nil
	}
	if len(ideas) == 0 {
		fmt.Fprintf(out, "No pending ideas in %s\n", files.Dir)
		return nil
	}

	runner, err := a.runner(ctx, a.mode())
	if err != nil {
		return err
	}

	controller := batch.NewController(runner, a.batchOptions(a.progressPrinter(true)), a.printer, a.logger)
	results := controller.ProcessBatch(ctx, ideas, files)

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	if ctx.Err() != nil {
		return &runFailure{status: types.StatusInterrupted, message: "batch interrupted"}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d ideas failed", failed, len(results))
	}
	return nil
}
