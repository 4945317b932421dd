package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"swarmbender/internal/render"
	"swarmbender/internal/sbconfig"
)

var (
	renderOutDir    string
	renderNoHistory bool
	appSettingsMode string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a stack's template and overlays into a canonical stack.yml",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderOutDir, "out", "", "output directory override (defaults to render.outDir)")
	renderCmd.Flags().BoolVar(&renderNoHistory, "no-history", false, "skip writing a timestamped copy under ops/state")
	renderCmd.Flags().StringVar(&appSettingsMode, "app-settings-mode", "", "override render.appsettingsMode (env|config)")
}

func runRender(cmd *cobra.Command, args []string) error {
	if stackID == "" || env == "" {
		return fmt.Errorf("--stack and --env are required")
	}

	cfg, err := sbconfig.LoadSbConfig(rootPath + "/ops/sb.yml")
	if err != nil {
		return err
	}
	if appSettingsMode != "" {
		cfg.Render.AppSettingsMode = appSettingsMode
	}

	req := render.RenderRequest{
		RootPath:     rootPath,
		StackId:      stackID,
		Env:          env,
		OutDir:       renderOutDir,
		WriteHistory: cfg.Render.WriteHistory && !renderNoHistory,
	}
	rc := render.NewContext(req, cfg)
	orc := render.NewOrchestrator(render.DefaultStages())

	if err := orc.Run(cmd.Context(), rc, render.ModeAll); err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("rendered %s/%s -> %s", stackID, env, rc.ResolvedOutDir()))
	return nil
}
