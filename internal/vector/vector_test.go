package vector

import (
	"reflect"
	"testing"

	"github.com/kestrel-soc/kestrel/internal/canonical"
	"github.com/kestrel-soc/kestrel/internal/schema"
)

func testMap(t *testing.T) *schema.Map {
	t.Helper()
	m, err := schema.New(1, []schema.Feature{
		{Name: "srcport", Default: 0},
		{Name: "dstport", Default: 0},
		{Name: "auth_fail_5m", Default: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestVectorizeOrderAndDefaults(t *testing.T) {
	fm := testMap(t)
	canon := canonical.Mapping{
		"srcport":      float64(22),
		"auth_fail_5m": 12,
	}

	vec, audit := Vectorize(canon, fm)

	want := []float64{22, 0, 12}
	if !reflect.DeepEqual(vec, want) {
		t.Errorf("vector = %v, want %v", vec, want)
	}
	if !reflect.DeepEqual(audit.UsedDefault, []bool{false, true, false}) {
		t.Errorf("used-default mask = %v", audit.UsedDefault)
	}
	if got := audit.Missing(); len(got) != 1 || got[0] != "dstport" {
		t.Errorf("missing = %v, want [dstport]", got)
	}
	if len(audit.Coercions) != 0 {
		t.Errorf("unexpected coercions: %v", audit.Coercions)
	}
}

func TestVectorizeEmptyMapping(t *testing.T) {
	fm := testMap(t)
	vec, audit := Vectorize(canonical.Mapping{}, fm)

	if !reflect.DeepEqual(vec, []float64{0, 0, 0}) {
		t.Errorf("vector = %v, want all defaults", vec)
	}
	if audit.CoveragePct() != 0 {
		t.Errorf("coverage = %v, want 0", audit.CoveragePct())
	}
	if len(audit.Missing()) != 3 {
		t.Errorf("missing = %v, want all features", audit.Missing())
	}
}

func TestVectorizeCoercion(t *testing.T) {
	fm := testMap(t)
	canon := canonical.Mapping{
		"srcport":      "2222",            // numeric string, fine
		"dstport":      "not-a-port",      // coerced to default
		"auth_fail_5m": true,              // bool becomes 1
	}

	vec, audit := Vectorize(canon, fm)

	if !reflect.DeepEqual(vec, []float64{2222, 0, 1}) {
		t.Errorf("vector = %v", vec)
	}
	if len(audit.Coercions) != 1 {
		t.Fatalf("coercions = %v, want exactly one", audit.Coercions)
	}
	if audit.Coercions[0].Feature != "dstport" {
		t.Errorf("coerced feature = %q, want dstport", audit.Coercions[0].Feature)
	}
	if !audit.UsedDefault[1] {
		t.Error("coerced feature should be marked as default-filled")
	}
}

func TestCoveragePct(t *testing.T) {
	fm := testMap(t)
	_, audit := Vectorize(canonical.Mapping{"srcport": 1, "dstport": 2}, fm)
	got := audit.CoveragePct()
	want := 100 * 2.0 / 3.0
	if got < want-0.01 || got > want+0.01 {
		t.Errorf("coverage = %v, want ~%v", got, want)
	}
}
