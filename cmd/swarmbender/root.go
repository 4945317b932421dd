package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/docker/docker/client"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swarmbender/internal/compose"
	"swarmbender/internal/render"
	"swarmbender/internal/swarmengine"
	"swarmbender/pkg/tokenexpand"
)

var (
	rootPath string
	stackID  string
	env      string
	useCLI   bool
)

var rootCmd = &cobra.Command{
	Use:   "swarmbender",
	Short: "Deterministic Docker Swarm stack builder",
	Long: `swarmbender renders a per-stack compose template plus layered
overlays into a canonical docker stack.yml, and manages the lifecycle of
the Swarm secrets that stack references.`,
}

// Execute runs the root command, mapping the error it returns to the
// exit-code contract documented for the render and secrets subsystems.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(render.ExitSuccess)
	}
	fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
	os.Exit(classifyExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", ".", "repository root containing stacks/, services/, ops/, secrets/")
	rootCmd.PersistentFlags().StringVar(&stackID, "stack", "", "stack identifier under stacks/")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment name (e.g. prod, staging)")
	rootCmd.PersistentFlags().BoolVar(&useCLI, "use-cli", false, "talk to the engine through the docker CLI instead of the native API client")

	rootCmd.AddCommand(renderCmd, doctorCmd, pruneCmd, rotateCmd, syncCmd)
}

// classifyExitCode distinguishes a bad input (validation, exit 2) from an
// unexpected failure (exit -1) per §6's exit-code contract.
func classifyExitCode(err error) int {
	var malformed *compose.MalformedDocument
	var schemaViolation *compose.SchemaViolation
	var unresolvedSecret *render.UnresolvedSecretError
	var unresolvedToken *tokenexpand.UnresolvedTokenError
	switch {
	case errors.As(err, &malformed),
		errors.As(err, &schemaViolation),
		errors.As(err, &unresolvedSecret),
		errors.As(err, &unresolvedToken):
		return render.ExitValidation
	default:
		return render.ExitInternal
	}
}

func printSuccess(msg string) { fmt.Println(color.GreenString("✓ " + msg)) }
func printInfo(msg string)    { fmt.Println(color.CyanString(msg)) }
func printWarn(msg string)    { fmt.Println(color.YellowString("! " + msg)) }

// newAdapter builds the Engine Adapter selected by --use-cli: the native
// Docker API client by default, or a docker-CLI-shelling adapter when the
// caller has no API access (e.g. a remote manager reachable only via SSH).
func newAdapter() (swarmengine.Adapter, error) {
	if useCLI {
		return &swarmengine.CLIAdapter{}, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to build docker client: %w", err)
	}
	return swarmengine.NewDockerAPIAdapter(cli), nil
}
