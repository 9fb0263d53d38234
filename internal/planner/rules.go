// Package planner turns a natural-language prompt into a plan. Two
// implementations exist: RulePlanner, a deterministic offline keyword
// engine, and RemotePlanner, a client for a hosted planning service
// that falls back to the rule engine when the service is unreachable.
package planner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"aimodeler/internal/logging"
	"aimodeler/internal/material"
	"aimodeler/internal/plan"
)

// Default names given to rule-planned objects. Fixed names keep the
// planner deterministic and let later steps reference earlier ones.
const (
	nameCube     = "AI_Cube"
	nameSphere   = "AI_Sphere"
	nameCylinder = "AI_Cylinder"
	nameCone     = "AI_Cone"
)

// dimensionRE matches an explicit length like "50cm", "2.5 m" or
// "30毫米". Group 1 is the value, group 2 the unit alias.
var dimensionRE = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mm|cm|m|毫米|厘米|米)`)

// bareIntRE matches a standalone integer, used for repeat counts.
var bareIntRE = regexp.MustCompile(`\d+`)

var unitAlias = map[string]string{
	"m":  plan.UnitMeters,
	"米": plan.UnitMeters,
	"cm": plan.UnitCentimeters,
	"厘米": plan.UnitCentimeters,
	"mm": plan.UnitMillimeters,
	"毫米": plan.UnitMillimeters,
}

// ruleKind partitions the rule table: shape rules emit immediately in
// keyword order; the rest are deferred until all shapes exist, because
// they reference previously created objects.
type ruleKind int

const (
	ruleShape ruleKind = iota
	ruleBoolean
	ruleArray
	ruleBevel
	ruleMaterial
)

// rule is one (pattern, emitter) row of the keyword table. Keeping the
// table flat lets tests enumerate coverage rule by rule.
type rule struct {
	name    string
	kind    ruleKind
	pattern *regexp.Regexp
	// shape op for ruleShape rows, boolean mode for ruleBoolean rows,
	// preset name for ruleMaterial rows.
	arg string
}

var ruleTable = []rule{
	{name: "cube", kind: ruleShape, pattern: regexp.MustCompile(`cube|立方|正方体`), arg: string(plan.OpAddCube)},
	{name: "sphere", kind: ruleShape, pattern: regexp.MustCompile(`sphere|球`), arg: string(plan.OpAddSphere)},
	{name: "cylinder", kind: ruleShape, pattern: regexp.MustCompile(`cylinder|圆柱`), arg: string(plan.OpAddCylinder)},
	{name: "cone", kind: ruleShape, pattern: regexp.MustCompile(`cone|圆锥`), arg: string(plan.OpAddCone)},
	{name: "bool_union", kind: ruleBoolean, pattern: regexp.MustCompile(`union|merge|合并|融合`), arg: plan.BoolUnion},
	{name: "bool_diff", kind: ruleBoolean, pattern: regexp.MustCompile(`cut|hole|挖|孔`), arg: plan.BoolDifference},
	{name: "bool_intersect", kind: ruleBoolean, pattern: regexp.MustCompile(`intersect|相交`), arg: plan.BoolIntersection},
	{name: "bool_generic", kind: ruleBoolean, pattern: regexp.MustCompile(`boolean|布尔`), arg: plan.BoolDifference},
	{name: "array", kind: ruleArray, pattern: regexp.MustCompile(`array|radial|阵列`)},
	{name: "bevel", kind: ruleBevel, pattern: regexp.MustCompile(`bevel|rounded|倒角|圆角`)},
	{name: "mat_metal", kind: ruleMaterial, pattern: regexp.MustCompile(`metal|金属`), arg: "metal_brushed"},
	{name: "mat_plastic", kind: ruleMaterial, pattern: regexp.MustCompile(`plastic|塑料`), arg: "plastic"},
	{name: "mat_wood", kind: ruleMaterial, pattern: regexp.MustCompile(`wood|木`), arg: "wood"},
}

// RulePlanner is the deterministic offline planner. It is total: any
// prompt yields a plan (possibly with zero steps), never an error, so
// it can always serve as the remote planner's fallback.
type RulePlanner struct {
	presets *material.Registry
}

// NewRulePlanner creates a rule planner that checks material keywords
// against the given registry.
func NewRulePlanner(presets *material.Registry) *RulePlanner {
	return &RulePlanner{presets: presets}
}

// match is one keyword hit, ordered by prompt position.
type match struct {
	pos  int
	rule rule
}

// Plan translates prompt into a plan. Shape keywords become ADD_* steps
// in order of appearance; combination, repetition, edge-softening and
// material keywords are appended afterwards (still in order of
// appearance) because they reference objects earlier steps create.
// Unknown phrases are ignored. Two calls with identical inputs produce
// structurally identical plans, differing only in ID.
func (rp *RulePlanner) Plan(prompt, units string) *plan.Plan {
	if units == "" || !plan.ValidUnit(units) {
		units = plan.UnitMeters
	}
	p := plan.New(prompt, units)
	normalized := strings.ToLower(prompt)

	size, sizeUnit := extractSize(normalized, units)

	matches := findMatches(normalized)

	var (
		lastObject  string // most recent add, auto-inserted helpers included
		lastMention string // most recent add from a prompt keyword
		firstObj    string
		created     = map[plan.Op]string{}
		deferred    []match
	)

	addShape := func(op plan.Op) {
		var step plan.Step
		switch op {
		case plan.OpAddCube:
			step = plan.Step{Op: op, Params: plan.Params{
				"size": size, "units": sizeUnit, "name": nameCube}}
			lastObject = nameCube
		case plan.OpAddSphere:
			step = plan.Step{Op: op, Params: plan.Params{
				"radius": size / 2, "units": sizeUnit, "name": nameSphere}}
			lastObject = nameSphere
		case plan.OpAddCylinder:
			step = plan.Step{Op: op, Params: plan.Params{
				"radius": size / 2, "depth": size, "units": sizeUnit, "name": nameCylinder}}
			lastObject = nameCylinder
		case plan.OpAddCone:
			step = plan.Step{Op: op, Params: plan.Params{
				"radius": size / 2, "depth": size, "units": sizeUnit, "name": nameCone}}
			lastObject = nameCone
		}
		if firstObj == "" {
			firstObj = lastObject
		}
		created[op] = lastObject
		p.Steps = append(p.Steps, step)
	}

	for _, m := range matches {
		if m.rule.kind != ruleShape {
			deferred = append(deferred, m)
			continue
		}
		op := plan.Op(m.rule.arg)
		if _, dup := created[op]; dup {
			// A shape mentioned twice stays a single object; the second
			// mention adds no information the executor could use.
			continue
		}
		addShape(op)
		lastMention = lastObject
	}

	materialDone := false
	for _, m := range deferred {
		switch m.rule.kind {
		case ruleBoolean:
			// A boolean needs a distinct base and cutter. With no shapes
			// at all, sketch in the cube/cylinder pair; with a single
			// shape, insert whichever half is missing: a cube base when
			// the mentioned shape serves as cutter, a cylinder cutter
			// when the mentioned shape is the cube.
			if len(created) == 0 {
				addShape(plan.OpAddCube)
				lastMention = lastObject
			}
			base := firstObj
			cutter := lastObject
			if cutter == base {
				if _, hasCube := created[plan.OpAddCube]; !hasCube {
					addShape(plan.OpAddCube)
					base = created[plan.OpAddCube]
				} else {
					addShape(plan.OpAddCylinder)
					cutter = lastObject
				}
			}
			p.Steps = append(p.Steps, plan.Step{Op: plan.OpBoolean, Params: plan.Params{
				"target": base, "cutter": cutter, "mode": m.rule.arg}})
		case ruleArray:
			if len(created) == 0 {
				addShape(plan.OpAddCube)
				lastMention = lastObject
			}
			p.Steps = append(p.Steps, plan.Step{Op: plan.OpArray, Params: plan.Params{
				"target": lastMention,
				"count":  extractCount(normalized),
				"offset": size, "units": sizeUnit}})
		case ruleBevel:
			if len(created) == 0 {
				addShape(plan.OpAddCube)
				lastMention = lastObject
			}
			p.Steps = append(p.Steps, plan.Step{Op: plan.OpBevel, Params: plan.Params{
				"target": lastMention,
				"amount": size * 0.05, "units": sizeUnit,
				"segments": 3}})
		case ruleMaterial:
			// One material per plan, applied to the last shape the
			// prompt named — never to an auto-inserted helper. A
			// material word with no shape anywhere is ignored.
			if materialDone || lastMention == "" {
				continue
			}
			if !rp.presets.Has(m.rule.arg) {
				continue
			}
			p.Steps = append(p.Steps, plan.Step{Op: plan.OpSetMaterial, Params: plan.Params{
				"target": lastMention, "preset": m.rule.arg}})
			materialDone = true
		}
	}

	logging.PlannerDebug("rule plan %s: %d steps for %q", p.ID, len(p.Steps), prompt)
	return p
}

// findMatches scans the prompt against every rule and returns the hits
// sorted by position, table order breaking ties.
func findMatches(normalized string) []match {
	var out []match
	for _, r := range ruleTable {
		if loc := r.pattern.FindStringIndex(normalized); loc != nil {
			out = append(out, match{pos: loc[0], rule: r})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

// extractSize finds the first explicit dimension in the prompt. Without
// one it falls back to 1.0 in the requested units.
func extractSize(normalized, units string) (float64, string) {
	m := dimensionRE.FindStringSubmatch(normalized)
	if m == nil {
		return 1.0, units
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value <= 0 {
		return 1.0, units
	}
	unit, ok := unitAlias[m[2]]
	if !ok {
		unit = units
	}
	return value, unit
}

// extractCount finds a repeat count: the first integer that is not part
// of a dimension. Default is 8, the original radial-array count.
func extractCount(normalized string) int {
	stripped := dimensionRE.ReplaceAllString(normalized, " ")
	if m := bareIntRE.FindString(stripped); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n >= 1 {
			return n
		}
	}
	return 8
}
