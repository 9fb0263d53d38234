// Package executor applies a validated plan to a scene with
// all-or-nothing semantics. Each applied step records an inverse action
// in an execution-scoped undo log; any step failure replays the log in
// reverse so the scene is observably unchanged. The undo log never
// leaves this package and never relies on host undo history.
package executor

import (
	"context"
	"fmt"

	"aimodeler/internal/logging"
	"aimodeler/internal/material"
	"aimodeler/internal/plan"
	"aimodeler/internal/scene"
)

// State tracks one execution attempt through its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateInvalid     State = "invalid"
	StateExecuting   State = "executing"
	StateCommitted   State = "committed"
	StateRollingBack State = "rolling_back"
	StateFailed      State = "failed"
)

// Report lists everything a committed run created or modified.
type Report struct {
	PlanID    string
	State     State
	Objects   []string // created object names, in creation order
	Mutations []string // modifiers added and materials assigned
}

// Executor applies plans against a scene. It is stateless between
// calls; all per-run bookkeeping lives in the run record.
type Executor struct {
	presets *material.Registry
}

// New creates an executor backed by the given preset registry.
func New(presets *material.Registry) *Executor {
	return &Executor{presets: presets}
}

// inverse is one recorded undo action paired with a description used
// when rollback itself fails.
type inverse struct {
	describe string
	undo     func() error
}

// run is the execution record for one Execute call. It is exclusively
// owned by that call and discarded when it returns.
type run struct {
	scene   scene.Mutator
	units   string
	handles map[string]string // declared name -> actual scene handle
	undo    []inverse
	report  *Report
}

type stepHandler func(r *run, params plan.Params) error

var handlers = map[plan.Op]stepHandler{
	plan.OpAddCube:     (*run).addCube,
	plan.OpAddSphere:   (*run).addSphere,
	plan.OpAddCylinder: (*run).addCylinder,
	plan.OpAddCone:     (*run).addCone,
	plan.OpBoolean:     (*run).boolean,
	plan.OpArray:       (*run).array,
	plan.OpBevel:       (*run).bevel,
}

// Execute validates p, then applies its steps to sc strictly in order.
// On any step failure every recorded inverse action is replayed in
// reverse and the originating error is returned as a
// StepExecutionError (or PartialRollbackError if rollback left
// residue). A context cancellation between steps triggers the same
// rollback path.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, sc scene.Mutator) (*Report, error) {
	log := logging.Get(logging.CategoryExecutor)

	log.Info("executing plan %s (%d steps)", p.ID, len(p.Steps))
	if violations := plan.Validate(p, e.presets); len(violations) > 0 {
		log.Info("plan %s invalid: %d violations", p.ID, len(violations))
		return &Report{PlanID: p.ID, State: StateInvalid},
			&ValidationError{Violations: violations}
	}

	r := &run{
		scene:   sc,
		units:   p.Units,
		handles: make(map[string]string),
		report:  &Report{PlanID: p.ID, State: StateExecuting},
	}

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return e.rollback(r, &StepExecutionError{Index: i + 1, Op: step.Op, Err: err})
		}

		log.Debug("step %d: %s", i+1, step.Op)
		if err := r.apply(step, e.presets); err != nil {
			log.Error("step %d (%s) failed: %v", i+1, step.Op, err)
			return e.rollback(r, &StepExecutionError{Index: i + 1, Op: step.Op, Err: err})
		}
	}

	r.report.State = StateCommitted
	log.Info("plan %s committed: %d objects, %d mutations",
		p.ID, len(r.report.Objects), len(r.report.Mutations))
	return r.report, nil
}

// rollback replays the undo log in strict reverse order. Individual
// inverse failures are logged and collected rather than aborting the
// pass; leaving named residue beats leaving the rollback half-finished.
func (e *Executor) rollback(r *run, stepErr *StepExecutionError) (*Report, error) {
	log := logging.Get(logging.CategoryExecutor)
	log.Info("rolling back %d actions after: %v", len(r.undo), stepErr)
	r.report.State = StateRollingBack

	var residue []string
	for i := len(r.undo) - 1; i >= 0; i-- {
		if err := r.undo[i].undo(); err != nil {
			log.Error("rollback of %s failed: %v", r.undo[i].describe, err)
			residue = append(residue, r.undo[i].describe)
		}
	}

	r.report.State = StateFailed
	r.report.Objects = nil
	r.report.Mutations = nil
	if len(residue) > 0 {
		return r.report, &PartialRollbackError{Step: stepErr, Residue: residue}
	}
	return r.report, stepErr
}

// apply dispatches one step to its handler.
func (r *run) apply(step plan.Step, presets *material.Registry) error {
	if step.Op == plan.OpSetMaterial {
		return r.setMaterial(step.Params, presets)
	}
	h, ok := handlers[step.Op]
	if !ok {
		// Unreachable after validation; kept as a hard stop.
		return fmt.Errorf("unsupported op %s", step.Op)
	}
	return h(r, step.Params)
}

// length converts a step's length param into meters, preferring the
// step's own units over the plan's.
func (r *run) length(params plan.Params, key string) float64 {
	v, _ := params.Float(key)
	units := params.String("units")
	if units == "" {
		units = r.units
	}
	return plan.ToMeters(v, units)
}

// resolve maps a declared object name to the actual scene handle; the
// scene may have renamed on collision.
func (r *run) resolve(name string) string {
	if actual, ok := r.handles[name]; ok {
		return actual
	}
	return name
}

func (r *run) createPrimitive(spec scene.PrimitiveSpec, declared string) error {
	handle, err := r.scene.CreatePrimitive(spec)
	if err != nil {
		return err
	}
	if declared != "" {
		r.handles[declared] = handle
	}
	r.report.Objects = append(r.report.Objects, handle)
	r.undo = append(r.undo, inverse{
		describe: fmt.Sprintf("object %s", handle),
		undo:     func() error { return r.scene.DeleteObject(handle) },
	})
	logging.SceneDebug("created %s %q", spec.Kind, handle)
	return nil
}

func (r *run) addCube(params plan.Params) error {
	return r.createPrimitive(scene.PrimitiveSpec{
		Kind: scene.KindCube,
		Name: params.String("name"),
		Size: r.length(params, "size"),
	}, params.String("name"))
}

func (r *run) addSphere(params plan.Params) error {
	return r.createPrimitive(scene.PrimitiveSpec{
		Kind:   scene.KindSphere,
		Name:   params.String("name"),
		Radius: r.length(params, "radius"),
	}, params.String("name"))
}

func (r *run) addCylinder(params plan.Params) error {
	return r.createPrimitive(scene.PrimitiveSpec{
		Kind:   scene.KindCylinder,
		Name:   params.String("name"),
		Radius: r.length(params, "radius"),
		Depth:  r.length(params, "depth"),
	}, params.String("name"))
}

func (r *run) addCone(params plan.Params) error {
	return r.createPrimitive(scene.PrimitiveSpec{
		Kind:   scene.KindCone,
		Name:   params.String("name"),
		Radius: r.length(params, "radius"),
		Depth:  r.length(params, "depth"),
	}, params.String("name"))
}

func (r *run) addModifierUndo(target, modifier string) {
	r.report.Mutations = append(r.report.Mutations,
		fmt.Sprintf("%s on %s", modifier, target))
	r.undo = append(r.undo, inverse{
		describe: fmt.Sprintf("modifier %s on %s", modifier, target),
		undo:     func() error { return r.scene.RemoveModifier(target, modifier) },
	})
}

func (r *run) boolean(params plan.Params) error {
	target := r.resolve(params.String("target"))
	cutter := r.resolve(params.String("cutter"))
	modifier, err := r.scene.ApplyBoolean(target, cutter, params.String("mode"))
	if err != nil {
		return err
	}
	r.addModifierUndo(target, modifier)
	return nil
}

func (r *run) array(params plan.Params) error {
	target := r.resolve(params.String("target"))
	count, _ := params.Int("count")
	modifier, err := r.scene.ApplyArray(target, count, r.length(params, "offset"))
	if err != nil {
		return err
	}
	r.addModifierUndo(target, modifier)
	return nil
}

func (r *run) bevel(params plan.Params) error {
	target := r.resolve(params.String("target"))
	segments, _ := params.Int("segments")
	modifier, err := r.scene.ApplyBevel(target, r.length(params, "amount"), segments)
	if err != nil {
		return err
	}
	r.addModifierUndo(target, modifier)
	return nil
}

func (r *run) setMaterial(params plan.Params, presets *material.Registry) error {
	target := r.resolve(params.String("target"))
	name := params.String("preset")
	preset, ok := presets.Lookup(name)
	if !ok {
		// Unreachable after validation.
		return fmt.Errorf("unknown material preset %q", name)
	}
	previous, err := r.scene.AssignMaterial(target, preset)
	if err != nil {
		return err
	}
	r.report.Mutations = append(r.report.Mutations,
		fmt.Sprintf("material %s on %s", name, target))
	r.undo = append(r.undo, inverse{
		describe: fmt.Sprintf("material %s on %s", name, target),
		undo:     func() error { return r.scene.RestoreMaterial(target, previous) },
	})
	return nil
}
