package plan

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stubPresets satisfies PresetLookup for validation tests.
type stubPresets map[string]bool

func (s stubPresets) Has(name string) bool { return s[name] }

var testPresets = stubPresets{"metal_brushed": true, "plastic": true, "wood": true}

func cubeStep(name string) Step {
	return Step{Op: OpAddCube, Params: Params{"size": 1.0, "name": name}}
}

func validPlan() *Plan {
	return &Plan{
		ID: "p", Prompt: "x", Units: UnitMeters,
		Steps: []Step{
			cubeStep("AI_Cube"),
			{Op: OpAddCylinder, Params: Params{"radius": 0.5, "depth": 1.0, "name": "AI_Cylinder"}},
			{Op: OpBoolean, Params: Params{"target": "AI_Cube", "cutter": "AI_Cylinder", "mode": BoolDifference}},
			{Op: OpBevel, Params: Params{"target": "AI_Cube", "amount": 0.05, "segments": 3}},
			{Op: OpArray, Params: Params{"target": "AI_Cube", "count": 4, "offset": 1.5}},
			{Op: OpSetMaterial, Params: Params{"target": "AI_Cube", "preset": "metal_brushed"}},
		},
	}
}

func TestValidateAcceptsValidPlan(t *testing.T) {
	if v := Validate(validPlan(), testPresets); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
}

func TestValidateViolations(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Plan)
		wantSub string
	}{
		{
			name:    "empty steps",
			mutate:  func(p *Plan) { p.Steps = nil },
			wantSub: "no steps",
		},
		{
			name:    "bad plan units",
			mutate:  func(p *Plan) { p.Units = "FT" },
			wantSub: `unknown units "FT"`,
		},
		{
			name:    "unknown op",
			mutate:  func(p *Plan) { p.Steps[0].Op = "EXTRUDE" },
			wantSub: "unknown op",
		},
		{
			name:    "missing required param",
			mutate:  func(p *Plan) { delete(p.Steps[0].Params, "size") },
			wantSub: `missing required param "size"`,
		},
		{
			name:    "size not positive",
			mutate:  func(p *Plan) { p.Steps[0].Params["size"] = 0.0 },
			wantSub: `"size" must be > 0`,
		},
		{
			name:    "size wrong type",
			mutate:  func(p *Plan) { p.Steps[0].Params["size"] = "big" },
			wantSub: `"size" must be a number`,
		},
		{
			name:    "count below one",
			mutate:  func(p *Plan) { p.Steps[4].Params["count"] = 0 },
			wantSub: `"count" must be >= 1`,
		},
		{
			name:    "count fractional",
			mutate:  func(p *Plan) { p.Steps[4].Params["count"] = 2.5 },
			wantSub: `"count" must be an integer`,
		},
		{
			name:    "bevel amount negative",
			mutate:  func(p *Plan) { p.Steps[3].Params["amount"] = -0.1 },
			wantSub: `"amount" must be >= 0`,
		},
		{
			name:    "bad boolean mode",
			mutate:  func(p *Plan) { p.Steps[2].Params["mode"] = "xor" },
			wantSub: `unknown boolean mode "xor"`,
		},
		{
			name:    "bad step units",
			mutate:  func(p *Plan) { p.Steps[0].Params["units"] = "IN" },
			wantSub: `unknown units "IN"`,
		},
		{
			name:    "unknown preset",
			mutate:  func(p *Plan) { p.Steps[5].Params["preset"] = "chrome" },
			wantSub: `unknown material preset "chrome"`,
		},
		{
			name:    "boolean target never created",
			mutate:  func(p *Plan) { p.Steps[2].Params["target"] = "Ghost" },
			wantSub: `"Ghost" does not reference an object created by an earlier step`,
		},
		{
			name: "reference created only later",
			mutate: func(p *Plan) {
				// Move the cube creation after the boolean that uses it.
				p.Steps = []Step{
					{Op: OpAddCylinder, Params: Params{"radius": 0.5, "depth": 1.0, "name": "AI_Cylinder"}},
					{Op: OpBoolean, Params: Params{"target": "AI_Cube", "cutter": "AI_Cylinder", "mode": BoolDifference}},
					cubeStep("AI_Cube"),
				}
			},
			wantSub: `"AI_Cube" does not reference`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPlan()
			tc.mutate(p)
			violations := Validate(p, testPresets)
			if len(violations) == 0 {
				t.Fatal("expected violations, got none")
			}
			found := false
			for _, v := range violations {
				if strings.Contains(v.String(), tc.wantSub) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("no violation containing %q in %v", tc.wantSub, violations)
			}
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	p := &Plan{
		ID: "p", Prompt: "x", Units: UnitMeters,
		Steps: []Step{
			{Op: OpAddCube, Params: Params{"size": -1.0, "name": "AI_Cube"}},
			{Op: OpSetMaterial, Params: Params{"target": "Ghost", "preset": "chrome"}},
		},
	}
	violations := Validate(p, testPresets)
	if len(violations) < 3 {
		t.Errorf("expected at least 3 violations (size, preset, reference), got %v", violations)
	}
}

func TestValidateIsPure(t *testing.T) {
	p := validPlan()
	p.Steps[2].Params["target"] = "Ghost"

	first := Validate(p, testPresets)
	second := Validate(p, testPresets)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Validate not deterministic (-first +second):\n%s", diff)
	}
}

func TestValidateNilPlan(t *testing.T) {
	violations := Validate(nil, testPresets)
	if len(violations) != 1 {
		t.Fatalf("expected single violation, got %v", violations)
	}
}
