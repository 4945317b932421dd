package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmbender/internal/secretslifecycle"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Compare the persisted secrets map against what the engine actually has",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if env == "" {
		return fmt.Errorf("--env is required")
	}
	mapPath := fmt.Sprintf("%s/ops/vars/secrets-map.%s.yml", rootPath, env)
	secretsMap, err := secretslifecycle.LoadSecretsMap(mapPath)
	if err != nil {
		return err
	}

	adapter, err := newAdapter()
	if err != nil {
		return err
	}
	engine := secretslifecycle.NewEngine(adapter)

	report, err := engine.Doctor(cmd.Context(), secretsMap)
	if err != nil {
		return err
	}

	if len(report.MissingOnEngine) == 0 && len(report.OrphanedOnEngine) == 0 && len(report.MultiVersions) == 0 {
		printSuccess("secrets map and engine state agree")
		return nil
	}

	for _, name := range report.MissingOnEngine {
		printWarn(fmt.Sprintf("missing on engine: %s", name))
	}
	for _, name := range report.OrphanedOnEngine {
		printWarn(fmt.Sprintf("orphaned on engine: %s", name))
	}
	for _, group := range report.MultiVersions {
		printInfo(fmt.Sprintf("%d versions present for one key:", len(group)))
		for _, r := range group {
			printInfo(fmt.Sprintf("  %s (created %s)", r.Name, r.CreatedAt))
		}
	}
	return nil
}
