package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmbender/internal/sbconfig"
	"swarmbender/internal/secretslifecycle"
	"swarmbender/internal/secretsprovider"
)

var syncKeep int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Aggregate secret providers and publish any new or changed values to the engine",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncKeep, "keep", -1, "prune older versions of a rotated key down to N after sync (-1 disables)")
}

func runSync(cmd *cobra.Command, args []string) error {
	if env == "" {
		return fmt.Errorf("--env is required")
	}
	scope := stackID
	if scope == "" {
		scope = "global"
	}

	policyDoc, err := sbconfig.LoadSecretsPolicy(rootPath + "/ops/policies/secrets.yml")
	if err != nil {
		return err
	}
	if !policyDoc.Secretize.Enabled {
		printInfo("secretize is disabled in ops/policies/secrets.yml, nothing to do")
		return nil
	}
	policy := secretsprovider.Policy{
		IncludeGlobs: policyDoc.Secretize.Paths,
		KeyTemplate:  policyDoc.Secretize.NameTemplate,
	}

	hub := secretsprovider.NewHub()
	aggregated, err := hub.Aggregate(rootPath, scope, env)
	if err != nil {
		return err
	}
	filtered := secretsprovider.Filter(aggregated, policy)

	mapPath := fmt.Sprintf("%s/ops/vars/secrets-map.%s.yml", rootPath, env)
	secretsMap, err := secretslifecycle.LoadSecretsMap(mapPath)
	if err != nil {
		return err
	}

	var requests []secretslifecycle.RotateRequest
	for _, flatKey := range filtered.Keys() {
		value, _ := filtered.Get(flatKey)
		externalKey := secretsprovider.ExternalKey(flatKey, policy, scope)
		requests = append(requests, secretslifecycle.RotateRequest{
			FlatKey:     flatKey,
			Scope:       scope,
			Env:         env,
			Key:         externalKey,
			NewValue:    []byte(value),
			VersionMode: policyDoc.Secretize.VersionMode,
			Labels:      policyDoc.Secretize.Labels,
			Keep:        syncKeep,
		})
	}
	if len(requests) == 0 {
		printInfo("no candidate secrets matched the configured paths")
		return nil
	}

	adapter, err := newAdapter()
	if err != nil {
		return err
	}
	engine := secretslifecycle.NewEngine(adapter)

	results, err := engine.Rotate(cmd.Context(), secretsMap, mapPath, requests)
	if err != nil {
		return err
	}

	created, unchanged := countByCreated(results)
	printSuccess(fmt.Sprintf("sync complete: %d created, %d unchanged", created, unchanged))
	return nil
}

func countByCreated(results []secretslifecycle.RotateResult) (created, unchanged int) {
	for _, r := range results {
		if r.Created {
			created++
		} else {
			unchanged++
		}
	}
	return created, unchanged
}
