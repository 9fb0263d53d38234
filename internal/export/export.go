// Package export defines the export collaborator boundary (scene +
// target format + path) and ships an OBJ writer for the in-memory
// scene. GLB and FBX remain host-editor concerns behind the same
// interface.
package export

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"aimodeler/internal/scene"
)

// Format is an interchange format tag.
type Format string

const (
	FormatGLB Format = "GLB"
	FormatFBX Format = "FBX"
	FormatOBJ Format = "OBJ"
)

// ParseFormat resolves a format from a file extension or tag.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimPrefix(s, ".")) {
	case "GLB":
		return FormatGLB, nil
	case "FBX":
		return FormatFBX, nil
	case "OBJ":
		return FormatOBJ, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Exporter writes a scene to a path in one format.
type Exporter interface {
	Export(s *scene.MemoryScene, path string) error
	Format() Format
}

// For returns the exporter for a format. Only OBJ is implemented here;
// GLB/FBX belong to the host editor.
func For(f Format) (Exporter, error) {
	switch f {
	case FormatOBJ:
		return objExporter{}, nil
	}
	return nil, fmt.Errorf("format %s requires the host editor's exporter", f)
}

// objExporter writes Wavefront OBJ with one mesh per scene object.
// Modifiers are not baked; primitives are emitted at their creation
// dimensions, which is all the dry-run scene can know.
type objExporter struct{}

func (objExporter) Format() Format { return FormatOBJ }

func (objExporter) Export(s *scene.MemoryScene, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := &objWriter{w: f}
	fmt.Fprintf(f, "# aimodeler scene export\n")
	for _, obj := range s.Objects() {
		if err := w.writeObject(obj); err != nil {
			return fmt.Errorf("failed to export %s: %w", obj.Name, err)
		}
	}
	return nil
}

type objWriter struct {
	w      io.Writer
	offset int // vertex index offset, OBJ indices are global and 1-based
}

func (w *objWriter) writeObject(obj *scene.Object) error {
	fmt.Fprintf(w.w, "o %s\n", obj.Name)
	switch obj.Kind {
	case scene.KindCube:
		return w.writeCube(obj.Spec.Size)
	case scene.KindSphere:
		return w.writeUVSphere(obj.Spec.Radius, 16, 8)
	case scene.KindCylinder:
		return w.writeCylinder(obj.Spec.Radius, obj.Spec.Depth, 16)
	case scene.KindCone:
		return w.writeCone(obj.Spec.Radius, obj.Spec.Depth, 16)
	}
	return fmt.Errorf("unknown primitive kind %q", obj.Kind)
}

func (w *objWriter) vertex(x, y, z float64) {
	fmt.Fprintf(w.w, "v %.6f %.6f %.6f\n", x, y, z)
}

func (w *objWriter) face(indices ...int) {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprint(w.offset + idx)
	}
	fmt.Fprintf(w.w, "f %s\n", strings.Join(parts, " "))
}

func (w *objWriter) writeCube(size float64) error {
	h := size / 2
	for _, z := range []float64{-h, h} {
		w.vertex(-h, -h, z)
		w.vertex(h, -h, z)
		w.vertex(h, h, z)
		w.vertex(-h, h, z)
	}
	w.face(1, 2, 3, 4)
	w.face(8, 7, 6, 5)
	w.face(1, 5, 6, 2)
	w.face(2, 6, 7, 3)
	w.face(3, 7, 8, 4)
	w.face(4, 8, 5, 1)
	w.offset += 8
	return nil
}

func (w *objWriter) writeUVSphere(radius float64, segments, rings int) error {
	// Poles plus ring grid.
	w.vertex(0, 0, radius)
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			w.vertex(
				radius*math.Sin(phi)*math.Cos(theta),
				radius*math.Sin(phi)*math.Sin(theta),
				radius*math.Cos(phi),
			)
		}
	}
	w.vertex(0, 0, -radius)

	ring := func(r, s int) int { return 2 + (r-1)*segments + s%segments }
	bottom := 2 + (rings-1)*segments

	for s := 0; s < segments; s++ {
		w.face(1, ring(1, s), ring(1, s+1))
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			w.face(ring(r, s), ring(r+1, s), ring(r+1, s+1), ring(r, s+1))
		}
	}
	for s := 0; s < segments; s++ {
		w.face(bottom, ring(rings-1, s+1), ring(rings-1, s))
	}
	w.offset += bottom
	return nil
}

func (w *objWriter) writeCylinder(radius, depth float64, segments int) error {
	h := depth / 2
	for _, z := range []float64{-h, h} {
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			w.vertex(radius*math.Cos(theta), radius*math.Sin(theta), z)
		}
	}
	lower := func(s int) int { return 1 + s%segments }
	upper := func(s int) int { return 1 + segments + s%segments }
	for s := 0; s < segments; s++ {
		w.face(lower(s), lower(s+1), upper(s+1), upper(s))
	}
	caps := func(base func(int) int, flip bool) {
		indices := make([]int, segments)
		for s := 0; s < segments; s++ {
			if flip {
				indices[s] = base(segments - 1 - s)
			} else {
				indices[s] = base(s)
			}
		}
		w.face(indices...)
	}
	caps(lower, true)
	caps(upper, false)
	w.offset += 2 * segments
	return nil
}

func (w *objWriter) writeCone(radius, depth float64, segments int) error {
	h := depth / 2
	for s := 0; s < segments; s++ {
		theta := 2 * math.Pi * float64(s) / float64(segments)
		w.vertex(radius*math.Cos(theta), radius*math.Sin(theta), -h)
	}
	w.vertex(0, 0, h) // apex
	apex := segments + 1
	base := func(s int) int { return 1 + s%segments }
	for s := 0; s < segments; s++ {
		w.face(base(s), base(s+1), apex)
	}
	indices := make([]int, segments)
	for s := 0; s < segments; s++ {
		indices[s] = base(segments - 1 - s)
	}
	w.face(indices...)
	w.offset += apex
	return nil
}
