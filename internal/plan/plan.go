// Package plan defines the intermediate representation shared by the
// planners and the executor: a Plan is an ordered sequence of geometry
// construction steps plus the prompt and units it was derived from.
// Plans are immutable once a planner returns them; only the executor
// reads them.
package plan

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Op identifies one operation kind from the closed set of supported
// geometry operations.
type Op string

const (
	OpAddCube     Op = "ADD_CUBE"
	OpAddSphere   Op = "ADD_SPHERE"
	OpAddCylinder Op = "ADD_CYLINDER"
	OpAddCone     Op = "ADD_CONE"
	OpBoolean     Op = "BOOLEAN"
	OpArray       Op = "ARRAY"
	OpBevel       Op = "BEVEL"
	OpSetMaterial Op = "SET_MATERIAL"
)

// Known reports whether op is a member of the closed op set.
func (o Op) Known() bool {
	switch o {
	case OpAddCube, OpAddSphere, OpAddCylinder, OpAddCone,
		OpBoolean, OpArray, OpBevel, OpSetMaterial:
		return true
	}
	return false
}

// IsAdd reports whether the op creates a new scene object.
func (o Op) IsAdd() bool {
	switch o {
	case OpAddCube, OpAddSphere, OpAddCylinder, OpAddCone:
		return true
	}
	return false
}

// Boolean modes accepted by the "mode" param of OpBoolean.
const (
	BoolUnion        = "union"
	BoolDifference   = "difference"
	BoolIntersection = "intersection"
)

// Length unit tags carried by Plan.Units and the optional per-step
// "units" param.
const (
	UnitMeters      = "M"
	UnitCentimeters = "CM"
	UnitMillimeters = "MM"
)

// ValidUnit reports whether u is one of the supported unit tags.
func ValidUnit(u string) bool {
	return u == UnitMeters || u == UnitCentimeters || u == UnitMillimeters
}

// ToMeters converts a length expressed in the given unit tag to meters.
// Unknown tags are treated as meters, matching the tolerant behavior of
// the scene boundary.
func ToMeters(value float64, unit string) float64 {
	switch unit {
	case UnitCentimeters:
		return value / 100
	case UnitMillimeters:
		return value / 1000
	default:
		return value
	}
}

// Params holds the typed parameters of a single step. JSON numbers
// decode as float64; the typed accessors below normalize access so the
// executor never touches the raw map.
type Params map[string]any

// String returns the string value for key, or "" if absent or not a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Float returns the numeric value for key. Both float64 and int are
// accepted so hand-built plans behave like wire-decoded ones.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Int returns the integral value for key. A float64 is accepted only if
// it carries no fractional part.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

// Step is one atomic operation within a Plan.
type Step struct {
	Op     Op     `json:"op"`
	Params Params `json:"params"`
	Notes  string `json:"notes,omitempty"`
}

// Plan is an ordered sequence of steps produced by a planner. Order is
// significant: later steps may reference objects created earlier.
type Plan struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Units  string `json:"units"`
	Steps  []Step `json:"steps"`
}

// New creates an empty plan for the given prompt with a fresh ID.
func New(prompt, units string) *Plan {
	if units == "" {
		units = UnitMeters
	}
	return &Plan{
		ID:     uuid.NewString(),
		Prompt: prompt,
		Units:  units,
		Steps:  make([]Step, 0),
	}
}

// Parse decodes a plan from its wire JSON form. The remote planner
// service may nest the plan under a top-level "plan" key; both shapes
// are accepted. Structural deviations are reported as errors so the
// caller can count them against its retry budget.
func Parse(data []byte) (*Plan, error) {
	var envelope struct {
		Plan json.RawMessage `json:"plan"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed plan payload: %w", err)
	}
	if len(envelope.Plan) > 0 {
		data = envelope.Plan
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed plan payload: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("plan payload missing id")
	}
	if p.Units == "" {
		return nil, fmt.Errorf("plan payload missing units")
	}
	if p.Steps == nil {
		return nil, fmt.Errorf("plan payload missing steps")
	}
	for i, step := range p.Steps {
		if step.Op == "" {
			return nil, fmt.Errorf("step %d missing op", i+1)
		}
		if step.Params == nil {
			return nil, fmt.Errorf("step %d missing params", i+1)
		}
	}
	return &p, nil
}

// Marshal encodes the plan to its wire JSON form.
func (p *Plan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
