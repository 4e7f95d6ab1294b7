package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCommand = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and prune archived runs",
}

var archiveListCommand = &cobra.Command{
	Use:   "list [slug]",
	Short: "List the archived runs of one idea, or of every idea",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchiveList,
}

var archivePruneCommand = &cobra.Command{
	Use:   "prune [slug]",
	Short: "Apply the retention caps to one idea, or to every idea",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchivePrune,
}

func init() {
	archiveCommand.AddCommand(archiveListCommand, archivePruneCommand)
	rootCmd.AddCommand(archiveCommand)
}

func archiveSlugs(a *app, args []string) ([]string, error) {
	if len(args) == 1 {
		return args, nil
	}
	return a.store.Slugs()
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(commandContext(cmd), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	slugs, err := archiveSlugs(a, args)
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		entries, err := a.archiver.List(a.store.WorkingDir(slug).String())
		if err != nil {
			return err
		}
		a.printer.PrintArchives(slug, entries)
	}
	return nil
}

func runArchivePrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(commandContext(cmd), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	slugs, err := archiveSlugs(a, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	total := 0
	for _, slug := range slugs {
		removed, err := a.archiver.Prune(a.store.WorkingDir(slug).String())
		if err != nil {
			return err
		}
		for _, path := range removed {
			fmt.Fprintf(out, "removed %s\n", path)
		}
		total += len(removed)
	}
	fmt.Fprintf(out, "%d archives removed\n", total)
	return nil
}
