package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmbender/internal/secretslifecycle"
)

var (
	pruneKeep   int
	pruneDryRun bool
	pruneScope  string
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove superseded secret versions, keeping the N most recent per key",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 2, "number of most recent versions to keep per key")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would be removed without removing it")
	pruneCmd.Flags().StringVar(&pruneScope, "scope", "", "restrict to secrets labeled with this scope")
}

func runPrune(cmd *cobra.Command, args []string) error {
	adapter, err := newAdapter()
	if err != nil {
		return err
	}
	engine := secretslifecycle.NewEngine(adapter)

	results, err := engine.Prune(cmd.Context(), env, pruneScope, pruneKeep, pruneDryRun)
	if err != nil {
		return err
	}

	verb := "removed"
	if pruneDryRun {
		verb = "would remove"
	}
	for _, r := range results {
		if len(r.Removed) == 0 {
			continue
		}
		printInfo(fmt.Sprintf("%s: kept %d, %s %d", r.Stripped, len(r.Kept), verb, len(r.Removed)))
		for name, failErr := range r.Failures {
			printWarn(fmt.Sprintf("  failed to remove %s: %v", name, failErr))
		}
	}
	printSuccess("prune complete")
	return nil
}
