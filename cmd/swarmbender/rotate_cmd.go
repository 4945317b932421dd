package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"swarmbender/internal/secretslifecycle"
	"swarmbender/pkg/namesafe"
)

var (
	rotateKey       string
	rotateValueFile string
	rotateKeep      int
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate a single secret to a new value, versioning the previous one",
	RunE:  runRotate,
}

func init() {
	rotateCmd.Flags().StringVar(&rotateKey, "key", "", "flat key to rotate, as referenced by a service's x-sb-secrets")
	rotateCmd.Flags().StringVar(&rotateValueFile, "value-file", "", "path to the new secret value, or \"-\" for stdin")
	rotateCmd.Flags().IntVar(&rotateKeep, "keep", -1, "prune older versions of this key down to N after rotation (-1 disables)")
}

func runRotate(cmd *cobra.Command, args []string) error {
	if rotateKey == "" || env == "" || rotateValueFile == "" {
		return fmt.Errorf("--key, --env and --value-file are required")
	}
	scope := stackID
	if scope == "" {
		scope = "global"
	}

	value, err := readValueFile(rotateValueFile)
	if err != nil {
		return err
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

	requests := []secretslifecycle.RotateRequest{{
		FlatKey:     rotateKey,
		Scope:       scope,
		Env:         env,
		Key:         rotateKey,
		NewValue:    value,
		VersionMode: namesafe.VersionContentSHA,
		Keep:        rotateKeep,
	}}

	results, err := engine.Rotate(cmd.Context(), secretsMap, mapPath, requests)
	if err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("rotated %s -> %s", rotateKey, results[0].NewName))
	return nil
}

func readValueFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
