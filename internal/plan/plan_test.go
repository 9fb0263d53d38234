package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewPlanDefaults(t *testing.T) {
	p := New("a cube", "")
	if p.ID == "" {
		t.Error("expected plan ID to be set")
	}
	if p.Units != UnitMeters {
		t.Errorf("expected default units M, got %s", p.Units)
	}
	if p.Prompt != "a cube" {
		t.Errorf("unexpected prompt %q", p.Prompt)
	}
	if len(p.Steps) != 0 {
		t.Errorf("expected no steps, got %d", len(p.Steps))
	}
}

func TestPlanRoundTrip(t *testing.T) {
	p := &Plan{
		ID:     "plan-1",
		Prompt: "a metal cube",
		Units:  UnitMeters,
		Steps: []Step{
			{Op: OpAddCube, Params: Params{"size": 1.0, "units": "M", "name": "AI_Cube"}},
			{Op: OpSetMaterial, Params: Params{"target": "AI_Cube", "preset": "metal_brushed"}},
		},
	}

	data, err := p.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	if diff := cmp.Diff(p, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNestedPlanKey(t *testing.T) {
	data := []byte(`{"plan": {"id": "p1", "prompt": "cube", "units": "M",
		"steps": [{"op": "ADD_CUBE", "params": {"size": 2}}]}}`)

	p, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)
	require.Len(t, p.Steps, 1)

	size, ok := p.Steps[0].Params.Float("size")
	require.True(t, ok)
	require.Equal(t, 2.0, size)
}

func TestParseRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"missing id", `{"prompt": "x", "units": "M", "steps": []}`},
		{"missing units", `{"id": "p", "prompt": "x", "steps": []}`},
		{"missing steps", `{"id": "p", "prompt": "x", "units": "M"}`},
		{"step without op", `{"id": "p", "prompt": "x", "units": "M", "steps": [{"params": {}}]}`},
		{"step without params", `{"id": "p", "prompt": "x", "units": "M", "steps": [{"op": "ADD_CUBE"}]}`},
		{"steps not a list", `{"id": "p", "prompt": "x", "units": "M", "steps": 5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			require.Error(t, err)
		})
	}
}

func TestParamsAccessors(t *testing.T) {
	p := Params{"size": 2.0, "count": 3.0, "name": "AI_Cube", "frac": 1.5}

	if s := p.String("name"); s != "AI_Cube" {
		t.Errorf("String: got %q", s)
	}
	if s := p.String("size"); s != "" {
		t.Errorf("String on number: got %q", s)
	}
	if v, ok := p.Float("size"); !ok || v != 2.0 {
		t.Errorf("Float: got %v %v", v, ok)
	}
	if n, ok := p.Int("count"); !ok || n != 3 {
		t.Errorf("Int on integral float: got %v %v", n, ok)
	}
	if _, ok := p.Int("frac"); ok {
		t.Error("Int accepted a fractional value")
	}
	if _, ok := p.Float("name"); ok {
		t.Error("Float accepted a string")
	}
}

func TestToMeters(t *testing.T) {
	cases := []struct {
		value float64
		unit  string
		want  float64
	}{
		{1, UnitMeters, 1},
		{50, UnitCentimeters, 0.5},
		{30, UnitMillimeters, 0.03},
		{2, "FURLONG", 2}, // unknown unit treated as meters
	}
	for _, tc := range cases {
		if got := ToMeters(tc.value, tc.unit); got != tc.want {
			t.Errorf("ToMeters(%g, %s) = %g, want %g", tc.value, tc.unit, got, tc.want)
		}
	}
}
