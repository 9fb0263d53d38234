package plan

import "fmt"

// PresetLookup reports whether a material preset name is registered.
// The registry itself lives outside this package; validation only needs
// the membership test.
type PresetLookup interface {
	Has(name string) bool
}

// Violation describes one way a plan fails validation. StepIndex is
// 1-based; 0 means the violation applies to the plan as a whole.
type Violation struct {
	StepIndex int
	Op        Op
	Reason    string
}

func (v Violation) String() string {
	if v.StepIndex == 0 {
		return v.Reason
	}
	return fmt.Sprintf("step %d (%s): %s", v.StepIndex, v.Op, v.Reason)
}

// paramKind is the expected type of one required parameter.
type paramKind int

const (
	kindString paramKind = iota
	kindFloat
	kindInt
)

// paramSpec is one required parameter with its range constraint.
type paramSpec struct {
	key      string
	kind     paramKind
	minFloat float64 // inclusive lower bound for kindFloat
	minInt   int     // inclusive lower bound for kindInt
	exclMin  bool    // value must be strictly greater than the bound
}

// opSchemas fixes the required-parameter schema per op. Optional params
// ("units", "name", "offset" defaults) are checked only when present.
var opSchemas = map[Op][]paramSpec{
	OpAddCube: {
		{key: "size", kind: kindFloat, exclMin: true},
	},
	OpAddSphere: {
		{key: "radius", kind: kindFloat, exclMin: true},
	},
	OpAddCylinder: {
		{key: "radius", kind: kindFloat, exclMin: true},
		{key: "depth", kind: kindFloat, exclMin: true},
	},
	OpAddCone: {
		{key: "radius", kind: kindFloat, exclMin: true},
		{key: "depth", kind: kindFloat, exclMin: true},
	},
	OpBoolean: {
		{key: "target", kind: kindString},
		{key: "cutter", kind: kindString},
		{key: "mode", kind: kindString},
	},
	OpArray: {
		{key: "target", kind: kindString},
		{key: "count", kind: kindInt, minInt: 1},
		{key: "offset", kind: kindFloat},
	},
	OpBevel: {
		{key: "target", kind: kindString},
		{key: "amount", kind: kindFloat},
		{key: "segments", kind: kindInt, minInt: 1},
	},
	OpSetMaterial: {
		{key: "target", kind: kindString},
		{key: "preset", kind: kindString},
	},
}

// Validate checks a plan against the op schemas, value ranges, preset
// registry and object-reference ordering. It is pure and total: it
// never panics, touches no scene state, and returns every violation it
// finds rather than stopping at the first. An empty result is the
// precondition for execution.
func Validate(p *Plan, presets PresetLookup) []Violation {
	var out []Violation
	if p == nil {
		return []Violation{{Reason: "plan is nil"}}
	}
	if len(p.Steps) == 0 {
		out = append(out, Violation{Reason: "plan has no steps"})
	}
	if p.Units != "" && !ValidUnit(p.Units) {
		out = append(out, Violation{Reason: fmt.Sprintf("unknown units %q", p.Units)})
	}

	// Names created by earlier steps, for reference resolution.
	created := make(map[string]bool)

	for i, step := range p.Steps {
		idx := i + 1
		if !step.Op.Known() {
			out = append(out, Violation{StepIndex: idx, Op: step.Op, Reason: "unknown op"})
			continue
		}
		if step.Params == nil {
			out = append(out, Violation{StepIndex: idx, Op: step.Op, Reason: "missing params"})
			continue
		}

		out = append(out, checkSchema(idx, step)...)

		if units := step.Params.String("units"); units != "" && !ValidUnit(units) {
			out = append(out, Violation{StepIndex: idx, Op: step.Op,
				Reason: fmt.Sprintf("unknown units %q", units)})
		}

		switch step.Op {
		case OpBoolean:
			if mode := step.Params.String("mode"); mode != "" &&
				mode != BoolUnion && mode != BoolDifference && mode != BoolIntersection {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("unknown boolean mode %q", mode)})
			}
			out = append(out, checkRef(idx, step, "target", created)...)
			out = append(out, checkRef(idx, step, "cutter", created)...)
		case OpArray, OpBevel:
			out = append(out, checkRef(idx, step, "target", created)...)
		case OpSetMaterial:
			out = append(out, checkRef(idx, step, "target", created)...)
			if preset := step.Params.String("preset"); preset != "" {
				if presets == nil || !presets.Has(preset) {
					out = append(out, Violation{StepIndex: idx, Op: step.Op,
						Reason: fmt.Sprintf("unknown material preset %q", preset)})
				}
			}
		}

		if step.Op.IsAdd() {
			if name := step.Params.String("name"); name != "" {
				created[name] = true
			}
		}
	}
	return out
}

// checkSchema verifies the required params and their types/ranges.
func checkSchema(idx int, step Step) []Violation {
	var out []Violation
	for _, spec := range opSchemas[step.Op] {
		raw, ok := step.Params[spec.key]
		if !ok {
			out = append(out, Violation{StepIndex: idx, Op: step.Op,
				Reason: fmt.Sprintf("missing required param %q", spec.key)})
			continue
		}
		switch spec.kind {
		case kindString:
			if s, isStr := raw.(string); !isStr || s == "" {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be a non-empty string", spec.key)})
			}
		case kindFloat:
			v, isNum := step.Params.Float(spec.key)
			if !isNum {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be a number", spec.key)})
				continue
			}
			if spec.exclMin && v <= spec.minFloat {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be > %g", spec.key, spec.minFloat)})
			} else if !spec.exclMin && v < spec.minFloat {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be >= %g", spec.key, spec.minFloat)})
			}
		case kindInt:
			v, isInt := step.Params.Int(spec.key)
			if !isInt {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be an integer", spec.key)})
				continue
			}
			if v < spec.minInt {
				out = append(out, Violation{StepIndex: idx, Op: step.Op,
					Reason: fmt.Sprintf("param %q must be >= %d", spec.key, spec.minInt)})
			}
		}
	}
	return out
}

// checkRef verifies that the named param references an object created
// by an earlier step.
func checkRef(idx int, step Step, key string, created map[string]bool) []Violation {
	name := step.Params.String(key)
	if name == "" {
		// Missing/empty is already reported by the schema check.
		return nil
	}
	if !created[name] {
		return []Violation{{StepIndex: idx, Op: step.Op,
			Reason: fmt.Sprintf("%s %q does not reference an object created by an earlier step", key, name)}}
	}
	return nil
}
