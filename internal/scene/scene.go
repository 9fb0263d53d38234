// Package scene defines the scene-mutation boundary the executor drives,
// plus an in-memory implementation used by the CLI dry-run and the test
// suite. A host-editor integration would provide its own Mutator; every
// mutating call has a corresponding inverse so the executor can roll a
// failed plan back.
package scene

import (
	"fmt"

	"aimodeler/internal/material"
)

// PrimitiveKind identifies a basic mesh primitive.
type PrimitiveKind string

const (
	KindCube     PrimitiveKind = "cube"
	KindSphere   PrimitiveKind = "sphere"
	KindCylinder PrimitiveKind = "cylinder"
	KindCone     PrimitiveKind = "cone"
)

// PrimitiveSpec carries the creation parameters for one primitive.
// All lengths are in meters; unit conversion happens upstream.
type PrimitiveSpec struct {
	Kind   PrimitiveKind
	Name   string
	Size   float64 // cube edge length
	Radius float64 // sphere/cylinder/cone
	Depth  float64 // cylinder/cone height
}

// Mutator is the minimal mutation surface the executor needs. Every
// mutating method is paired with an inverse (DeleteObject,
// RemoveModifier, RestoreMaterial) used during rollback.
type Mutator interface {
	// CreatePrimitive adds a primitive and returns its object name.
	CreatePrimitive(spec PrimitiveSpec) (string, error)
	// ApplyBoolean adds a boolean modifier to target using cutter and
	// returns the modifier name.
	ApplyBoolean(target, cutter, mode string) (string, error)
	// ApplyArray adds an array modifier and returns the modifier name.
	ApplyArray(target string, count int, offset float64) (string, error)
	// ApplyBevel adds a bevel modifier and returns the modifier name.
	ApplyBevel(target string, amount float64, segments int) (string, error)
	// AssignMaterial sets the object's material and returns the name of
	// the previous material ("" if none).
	AssignMaterial(target string, preset material.Preset) (string, error)

	// Inverse operations, used only during rollback.
	DeleteObject(name string) error
	RemoveModifier(target, modifier string) error
	RestoreMaterial(target, previous string) error

	// ObjectCount reports the number of objects in the scene.
	ObjectCount() int
}

// Modifier is one stack entry on an object.
type Modifier struct {
	Name string
	Kind string // "boolean", "array", "bevel"
}

// Object is one scene object in the in-memory implementation.
type Object struct {
	Name      string
	Kind      PrimitiveKind
	Spec      PrimitiveSpec
	Modifiers []Modifier
	Material  string // preset name, "" if unassigned
}

// FaultFunc lets tests inject a failure before a mutation is applied.
// It receives the operation name ("create", "boolean", "array", "bevel",
// "material", "delete", "remove_modifier", "restore_material") and the
// affected object name; a non-nil return aborts that mutation.
type FaultFunc func(op, object string) error

// MemoryScene is an in-memory Mutator. It is not safe for concurrent
// use; the executor owns the handle exclusively for the duration of a
// run, per the concurrency contract.
type MemoryScene struct {
	objects map[string]*Object
	order   []string // creation order, for stable listing/export
	modSeq  int
	Fault   FaultFunc
}

// NewMemoryScene creates an empty scene.
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{objects: make(map[string]*Object)}
}

func (s *MemoryScene) fail(op, object string) error {
	if s.Fault == nil {
		return nil
	}
	return s.Fault(op, object)
}

// CreatePrimitive adds a primitive object. Duplicate names get a
// numeric suffix, matching host-editor behavior.
func (s *MemoryScene) CreatePrimitive(spec PrimitiveSpec) (string, error) {
	if err := s.fail("create", spec.Name); err != nil {
		return "", err
	}
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("Object_%d", len(s.order)+1)
	}
	base := name
	for i := 1; s.objects[name] != nil; i++ {
		name = fmt.Sprintf("%s.%03d", base, i)
	}
	spec.Name = name
	s.objects[name] = &Object{Name: name, Kind: spec.Kind, Spec: spec}
	s.order = append(s.order, name)
	return name, nil
}

func (s *MemoryScene) addModifier(target, kind string) (string, error) {
	obj := s.objects[target]
	if obj == nil {
		return "", fmt.Errorf("object %q not found", target)
	}
	s.modSeq++
	mod := Modifier{Name: fmt.Sprintf("AI_%s_%d", kind, s.modSeq), Kind: kind}
	obj.Modifiers = append(obj.Modifiers, mod)
	return mod.Name, nil
}

// ApplyBoolean adds a boolean modifier to target referencing cutter.
func (s *MemoryScene) ApplyBoolean(target, cutter, mode string) (string, error) {
	if err := s.fail("boolean", target); err != nil {
		return "", err
	}
	if s.objects[cutter] == nil {
		return "", fmt.Errorf("cutter %q not found", cutter)
	}
	if mode != "union" && mode != "difference" && mode != "intersection" {
		return "", fmt.Errorf("unsupported boolean mode %q", mode)
	}
	return s.addModifier(target, "boolean")
}

// ApplyArray adds an array modifier.
func (s *MemoryScene) ApplyArray(target string, count int, offset float64) (string, error) {
	if err := s.fail("array", target); err != nil {
		return "", err
	}
	if count < 1 {
		return "", fmt.Errorf("array count must be >= 1, got %d", count)
	}
	return s.addModifier(target, "array")
}

// ApplyBevel adds a bevel modifier.
func (s *MemoryScene) ApplyBevel(target string, amount float64, segments int) (string, error) {
	if err := s.fail("bevel", target); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", fmt.Errorf("bevel amount must be >= 0, got %g", amount)
	}
	if segments < 1 {
		return "", fmt.Errorf("bevel segments must be >= 1, got %d", segments)
	}
	return s.addModifier(target, "bevel")
}

// AssignMaterial sets the object's material preset and returns the
// previously assigned preset name.
func (s *MemoryScene) AssignMaterial(target string, preset material.Preset) (string, error) {
	if err := s.fail("material", target); err != nil {
		return "", err
	}
	obj := s.objects[target]
	if obj == nil {
		return "", fmt.Errorf("object %q not found", target)
	}
	previous := obj.Material
	obj.Material = preset.Name
	return previous, nil
}

// DeleteObject removes an object. Deleting a missing object is not an
// error: rollback must tolerate objects the failed step never created.
func (s *MemoryScene) DeleteObject(name string) error {
	if err := s.fail("delete", name); err != nil {
		return err
	}
	if s.objects[name] == nil {
		return nil
	}
	delete(s.objects, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveModifier removes the named modifier from target.
func (s *MemoryScene) RemoveModifier(target, modifier string) error {
	if err := s.fail("remove_modifier", target); err != nil {
		return err
	}
	obj := s.objects[target]
	if obj == nil {
		return nil // object already rolled away
	}
	for i, m := range obj.Modifiers {
		if m.Name == modifier {
			obj.Modifiers = append(obj.Modifiers[:i], obj.Modifiers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("modifier %q not found on %q", modifier, target)
}

// RestoreMaterial puts the previous material back on target.
func (s *MemoryScene) RestoreMaterial(target, previous string) error {
	if err := s.fail("restore_material", target); err != nil {
		return err
	}
	obj := s.objects[target]
	if obj == nil {
		return nil
	}
	obj.Material = previous
	return nil
}

// ObjectCount reports the number of objects in the scene.
func (s *MemoryScene) ObjectCount() int {
	return len(s.objects)
}

// Object returns the named object, or nil.
func (s *MemoryScene) Object(name string) *Object {
	return s.objects[name]
}

// Objects returns all objects in creation order.
func (s *MemoryScene) Objects() []*Object {
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}
