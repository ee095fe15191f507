package diff

import (
	"strings"
	"testing"
)

func TestGeometryFieldDiffEqual(t *testing.T) {
	wkt := "POLYGON((0 0,4 0,4 4,0 4,0 0))"
	d := NewGeometryFieldDiff(wkt, wkt).(*GeometryFieldDiff)
	if d.Diff() != nil {
		t.Fatalf("expected nil diff for equal geometries, got %v", d.Diff())
	}
	if d.Err() != nil {
		t.Fatalf("unexpected degrade: %v", d.Err())
	}
}

func TestGeometryFieldDiffPolygons(t *testing.T) {
	d := NewGeometryFieldDiff(
		"POLYGON((0 0,4 0,4 4,0 4,0 0))",
		"POLYGON((2 0,6 0,6 4,2 4,2 0))",
	).(*GeometryFieldDiff)

	delta, ok := d.Diff().(*GeometryDelta)
	if !ok {
		t.Fatalf("expected *GeometryDelta, got %T (err=%v)", d.Diff(), d.Err())
	}
	if delta.Same == "" || delta.Deleted == "" || delta.Inserted == "" {
		t.Fatalf("expected all three layers populated: %+v", delta)
	}
	if !strings.Contains(delta.Same, "POLYGON") {
		t.Fatalf("expected overlapping area in shared layer, got %q", delta.Same)
	}
}

func TestGeometryFieldDiffLines(t *testing.T) {
	d := NewGeometryFieldDiff(
		"LINESTRING(0 0,10 0)",
		"LINESTRING(0 0,5 0)",
	).(*GeometryFieldDiff)

	delta, ok := d.Diff().(*GeometryDelta)
	if !ok {
		t.Fatalf("expected *GeometryDelta, got %T (err=%v)", d.Diff(), d.Err())
	}
	if !strings.Contains(delta.Same, "LINESTRING") {
		t.Fatalf("expected the shared segment in the same layer, got %q", delta.Same)
	}
	if !strings.Contains(delta.Deleted, "LINESTRING") {
		t.Fatalf("expected the trimmed segment in the deleted layer, got %q", delta.Deleted)
	}
}

func TestGeometryFieldDiffDegradesOnBadInput(t *testing.T) {
	d := NewGeometryFieldDiff("not wkt at all", "POINT(1 1)").(*GeometryFieldDiff)

	delta, ok := d.Diff().(*ValueDelta)
	if !ok {
		t.Fatalf("expected textual fallback *ValueDelta, got %T", d.Diff())
	}
	if delta.Deleted != "not wkt at all" {
		t.Fatalf("unexpected fallback delta: %+v", delta)
	}
	if d.Err() == nil {
		t.Fatal("expected a recorded degrade error")
	}
	if d.HTML() == noDifferencesRow {
		t.Fatal("expected a rendered text fallback")
	}
}
