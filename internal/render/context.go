// Package render implements the Render Pipeline: an ordered sequence of
// Stages that turn a template compose document plus layered overlays into a
// single canonical stack file.
package render

import (
	"path/filepath"

	"swarmbender/internal/compose"
	"swarmbender/internal/sbconfig"
	"swarmbender/pkg/caseinsens"
)

// RenderRequest is the immutable input to one render run.
type RenderRequest struct {
	RootPath        string
	StackId         string
	Env             string
	AppSettingsMode string
	OutDir          string
	WriteHistory    bool
}

// RenderContext is threaded through every Stage. Stages may only write the
// fields the stage table in §4.4 assigns them. Template is fixed once
// LoadTemplate has run; Working is mutated by each later stage in turn.
type RenderContext struct {
	Request RenderRequest

	StacksDir   string
	ServicesDir string
	OpsDir      string
	SecretsDir  string

	Config *sbconfig.SbConfig

	// Template is captured once by LoadTemplate and never mutated again.
	Template *compose.ComposeFile
	// Working starts as a clone of Template and is mutated by every
	// subsequent stage.
	Working *compose.ComposeFile

	// AggregatedEnvironment holds each service's fully resolved environment
	// once EnvironmentApply has run, keyed by service name; TokenExpand
	// reads it as each service's token source, including ${ENVVARS}.
	AggregatedEnvironment map[string]*caseinsens.Map
	// AggregatedLabels holds each service's unified labels (service-level
	// and deploy-level) once Labels has run, keyed by service name.
	AggregatedLabels map[string]*caseinsens.Map
	// SecretsBag is the flatKey -> externalName lookup loaded by
	// SecretsAttach from the persisted secrets map.
	SecretsBag *caseinsens.Map
}

// NewContext builds a RenderContext with the conventional filesystem layout
// resolved relative to req.RootPath.
func NewContext(req RenderRequest, cfg *sbconfig.SbConfig) *RenderContext {
	return &RenderContext{
		Request:               req,
		StacksDir:             filepath.Join(req.RootPath, "stacks"),
		ServicesDir:           filepath.Join(req.RootPath, "services"),
		OpsDir:                filepath.Join(req.RootPath, "ops"),
		SecretsDir:            filepath.Join(req.RootPath, "secrets"),
		Config:                cfg,
		AggregatedEnvironment: make(map[string]*caseinsens.Map),
		AggregatedLabels:      make(map[string]*caseinsens.Map),
		SecretsBag:            caseinsens.New(),
	}
}

// ResolvedOutDir returns the directory a render's primary output is written
// to, defaulting to Config.Render.OutDir under the root.
func (rc *RenderContext) ResolvedOutDir() string {
	outDir := rc.Request.OutDir
	if outDir == "" {
		outDir = rc.Config.Render.OutDir
	}
	if filepath.IsAbs(outDir) {
		return outDir
	}
	return filepath.Join(rc.Request.RootPath, outDir)
}
