package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"aimodeler/internal/material"
	"aimodeler/internal/plan"
	"aimodeler/internal/scene"
)

func newExecutor() *Executor {
	return New(material.NewRegistry())
}

func fullPlan() *plan.Plan {
	p := plan.New("a 50cm metal cube with a hole, arrayed and beveled", "M")
	p.Steps = []plan.Step{
		{Op: plan.OpAddCube, Params: plan.Params{"size": 50.0, "units": "CM", "name": "Base"}},
		{Op: plan.OpAddCylinder, Params: plan.Params{"radius": 0.1, "depth": 1.0, "units": "M", "name": "Cutter"}},
		{Op: plan.OpBoolean, Params: plan.Params{"target": "Base", "cutter": "Cutter", "mode": plan.BoolDifference}},
		{Op: plan.OpArray, Params: plan.Params{"target": "Base", "count": 4, "offset": 0.5, "units": "M"}},
		{Op: plan.OpBevel, Params: plan.Params{"target": "Base", "amount": 0.025, "units": "M", "segments": 3}},
		{Op: plan.OpSetMaterial, Params: plan.Params{"target": "Base", "preset": "metal_brushed"}},
	}
	return p
}

func TestExecuteCommits(t *testing.T) {
	sc := scene.NewMemoryScene()
	report, err := newExecutor().Execute(context.Background(), fullPlan(), sc)
	require.NoError(t, err)
	require.Equal(t, StateCommitted, report.State)
	require.Equal(t, []string{"Base", "Cutter"}, report.Objects)
	require.Len(t, report.Mutations, 4)

	base := sc.Object("Base")
	require.NotNil(t, base)
	require.Len(t, base.Modifiers, 3)
	require.Equal(t, "metal_brushed", base.Material)
}

// Step lengths convert through the step's units; 50 CM arrives in the
// scene as 0.5 meters.
func TestExecuteUnitConversion(t *testing.T) {
	sc := scene.NewMemoryScene()
	p := plan.New("cube", "MM")
	p.Steps = []plan.Step{
		{Op: plan.OpAddCube, Params: plan.Params{"size": 50.0, "units": "CM", "name": "A"}},
		// No step units: the plan's MM applies.
		{Op: plan.OpAddSphere, Params: plan.Params{"radius": 250.0, "name": "B"}},
	}

	_, err := newExecutor().Execute(context.Background(), p, sc)
	require.NoError(t, err)
	require.InDelta(t, 0.5, sc.Object("A").Spec.Size, 1e-9)
	require.InDelta(t, 0.25, sc.Object("B").Spec.Radius, 1e-9)
}

// An invalid plan is rejected before the scene is touched at all.
func TestExecuteInvalidPlanTouchesNothing(t *testing.T) {
	var calls int
	sc := scene.NewMemoryScene()
	sc.Fault = func(op, object string) error {
		calls++
		return nil
	}

	p := plan.New("bad", "M")
	p.Steps = []plan.Step{
		{Op: plan.OpBevel, Params: plan.Params{"target": "Ghost", "amount": 0.1, "segments": 3}},
	}

	report, err := newExecutor().Execute(context.Background(), p, sc)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Violations)
	require.Equal(t, StateInvalid, report.State)
	require.Zero(t, calls)
	require.Zero(t, sc.ObjectCount())
}

// A mid-plan failure rolls everything back: object count and materials
// return to their pre-execution state.
func TestExecuteRollsBackOnStepFailure(t *testing.T) {
	sc := scene.NewMemoryScene()
	// Pre-existing object so the plan is not starting from empty.
	_, err := sc.CreatePrimitive(scene.PrimitiveSpec{Kind: scene.KindCube, Name: "Existing", Size: 1})
	require.NoError(t, err)

	boom := errors.New("boom")
	sc.Fault = func(op, object string) error {
		if op == "bevel" {
			return boom
		}
		return nil
	}

	report, err := newExecutor().Execute(context.Background(), fullPlan(), sc)
	var serr *StepExecutionError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, 5, serr.Index)
	require.Equal(t, plan.OpBevel, serr.Op)
	require.ErrorIs(t, err, boom)

	require.Equal(t, StateFailed, report.State)
	require.Empty(t, report.Objects)
	require.Equal(t, 1, sc.ObjectCount())
	require.NotNil(t, sc.Object("Existing"))
	require.Nil(t, sc.Object("Base"))
	require.Nil(t, sc.Object("Cutter"))
}

// Material assignments unwind in reverse. The delete fault pins the
// cube in place so the restored material chain is observable.
func TestExecuteRestoresMaterialOnLaterFailure(t *testing.T) {
	sc := scene.NewMemoryScene()
	p := plan.New("material then failure", "M")
	p.Steps = []plan.Step{
		{Op: plan.OpAddCube, Params: plan.Params{"size": 1.0, "units": "M", "name": "Base"}},
		{Op: plan.OpSetMaterial, Params: plan.Params{"target": "Base", "preset": "wood"}},
		{Op: plan.OpSetMaterial, Params: plan.Params{"target": "Base", "preset": "plastic"}},
		{Op: plan.OpBevel, Params: plan.Params{"target": "Base", "amount": 0.05, "segments": 3}},
	}
	sc.Fault = func(op, object string) error {
		switch op {
		case "bevel":
			return errors.New("no bevel today")
		case "delete":
			return errors.New("object locked")
		}
		return nil
	}

	_, err := newExecutor().Execute(context.Background(), p, sc)
	var perr *PartialRollbackError
	require.ErrorAs(t, err, &perr)
	// plastic -> wood -> "" before the delete failed.
	require.Equal(t, "", sc.Object("Base").Material)
}

// When an inverse action itself fails, the rollback pass continues and
// the residue is reported by name.
func TestExecutePartialRollback(t *testing.T) {
	sc := scene.NewMemoryScene()
	sc.Fault = func(op, object string) error {
		switch {
		case op == "boolean":
			return errors.New("boolean refused")
		case op == "delete" && object == "Base":
			return errors.New("object locked")
		}
		return nil
	}

	report, err := newExecutor().Execute(context.Background(), fullPlan(), sc)
	var perr *PartialRollbackError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, []string{"object Base"}, perr.Residue)
	require.Equal(t, 3, perr.Step.Index)

	// The unwrap chain bottoms out at the original step failure.
	var serr *StepExecutionError
	require.ErrorAs(t, err, &serr)

	require.Equal(t, StateFailed, report.State)
	// Cutter rolled away; Base stuck.
	require.Equal(t, 1, sc.ObjectCount())
	require.NotNil(t, sc.Object("Base"))
}

func TestExecuteCancelledContextRollsBack(t *testing.T) {
	sc := scene.NewMemoryScene()
	ctx, cancel := context.WithCancel(context.Background())

	step := 0
	sc.Fault = func(op, object string) error {
		step++
		if step == 2 {
			// Cancel after the first create; the check before step 3
			// triggers rollback.
			cancel()
		}
		return nil
	}

	report, err := newExecutor().Execute(ctx, fullPlan(), sc)
	var serr *StepExecutionError
	require.ErrorAs(t, err, &serr)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, report.State)
	require.Zero(t, sc.ObjectCount())
}

// Two runs of the same plan against fresh scenes produce identical
// scene contents.
func TestExecuteDeterministicAcrossScenes(t *testing.T) {
	p := fullPlan()
	e := newExecutor()

	summarize := func(sc *scene.MemoryScene) []string {
		var out []string
		for _, obj := range sc.Objects() {
			out = append(out, fmt.Sprintf("%s/%s/mods=%d/mat=%s",
				obj.Name, obj.Kind, len(obj.Modifiers), obj.Material))
		}
		return out
	}

	first := scene.NewMemoryScene()
	second := scene.NewMemoryScene()
	_, err := e.Execute(context.Background(), p, first)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), p, second)
	require.NoError(t, err)
	require.Equal(t, summarize(first), summarize(second))
}

// Duplicate declared names are renamed by the scene; later steps that
// reference the declared name land on the renamed handle.
func TestExecuteResolvesRenamedHandles(t *testing.T) {
	sc := scene.NewMemoryScene()
	_, err := sc.CreatePrimitive(scene.PrimitiveSpec{Kind: scene.KindCube, Name: "Base", Size: 1})
	require.NoError(t, err)

	p := plan.New("collide", "M")
	p.Steps = []plan.Step{
		{Op: plan.OpAddCube, Params: plan.Params{"size": 1.0, "units": "M", "name": "Base"}},
		{Op: plan.OpSetMaterial, Params: plan.Params{"target": "Base", "preset": "wood"}},
	}

	report, err := newExecutor().Execute(context.Background(), p, sc)
	require.NoError(t, err)
	require.Equal(t, []string{"Base.001"}, report.Objects)
	require.Equal(t, "wood", sc.Object("Base.001").Material)
	require.Equal(t, "", sc.Object("Base").Material)
}
