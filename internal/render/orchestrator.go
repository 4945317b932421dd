package render

import (
	"context"
	"fmt"
	"sort"

	"swarmbender/pkg/log"
)

// Mode is a bitmask selecting which pipeline runs (render vs. a future
// variant) a Stage participates in. ModeAll matches every run.
type Mode uint8

const (
	ModeAll    Mode = 0
	ModeRender Mode = 1
)

// Stage is one step of the Render Pipeline, ordered by an explicit integer
// per §4.4's stage table rather than discovered through DI wiring.
type Stage struct {
	Order int
	Name  string
	Modes Mode
	Run   func(ctx context.Context, rc *RenderContext) error
}

func (m Mode) matches(stage Mode) bool {
	return stage == ModeAll || m == ModeAll || stage&m != 0
}

// PipelineError wraps the first stage failure the Orchestrator encounters.
type PipelineError struct {
	Stage string
	Cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("render stage %q failed: %v", e.Stage, e.Cause)
}
func (e *PipelineError) Unwrap() error { return e.Cause }

// Orchestrator runs a fixed, ordered set of Stages against a RenderContext.
type Orchestrator struct {
	Stages []Stage
}

// NewOrchestrator sorts stages by Order and returns a ready-to-run
// Orchestrator; a stable sort preserves declaration order among equal
// Order values.
func NewOrchestrator(stages []Stage) *Orchestrator {
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return &Orchestrator{Stages: sorted}
}

// Run executes every stage whose Modes matches mode, in Order, checking for
// cancellation between stages. The first stage error aborts the run and is
// wrapped as a PipelineError; no later stage runs.
func (o *Orchestrator) Run(ctx context.Context, rc *RenderContext, mode Mode) error {
	for _, stage := range o.Stages {
		if !mode.matches(stage.Modes) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug("running render stage", "stage", stage.Name, "order", stage.Order)
		if err := stage.Run(ctx, rc); err != nil {
			return &PipelineError{Stage: stage.Name, Cause: err}
		}
	}
	return nil
}
