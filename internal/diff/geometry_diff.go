package diff

import (
	"fmt"
	"html"

	"github.com/peterstace/simplefeatures/geom"
)

// GeometryDelta partitions two geometries into the parts they share, the
// parts only the old version had, and the parts only the new version has.
// All three are expressed as WKT.
type GeometryDelta struct {
	Same     string `json:"same"`
	Deleted  string `json:"deleted"`
	Inserted string `json:"inserted"`
}

// GeometryFieldDiff diffs two WKT geometries using set operations. Linear
// parts and areal/point parts are diffed separately: intersecting two
// nearly identical linestrings directly would also emit the zero-dimension
// crossing points, which are noise, so those artifacts are dropped from the
// linear intersection. When a geometry fails to parse or a set operation
// fails, the strategy degrades to a plain before/after text comparison.
type GeometryFieldDiff struct {
	v1, v2   string
	computed bool
	delta    *GeometryDelta
	err      error
}

// NewGeometryFieldDiff creates the geometry strategy.
func NewGeometryFieldDiff(v1, v2 any) FieldDiff {
	return &GeometryFieldDiff{v1: stringValue(v1), v2: stringValue(v2)}
}

func (d *GeometryFieldDiff) compute() (*GeometryDelta, error) {
	if d.computed {
		return d.delta, d.err
	}
	d.computed = true
	if d.v1 == d.v2 {
		return nil, nil
	}
	d.delta, d.err = geometryDelta(d.v1, d.v2)
	return d.delta, d.err
}

// Err reports whether the geometric comparison degraded to text.
func (d *GeometryFieldDiff) Err() error {
	_, err := d.compute()
	return err
}

// Diff returns nil when the geometries are textually equal, the three-way
// partition when the set operations succeed, and a plain {deleted,
// inserted} pair when they do not.
func (d *GeometryFieldDiff) Diff() any {
	delta, err := d.compute()
	if err != nil {
		return &ValueDelta{Deleted: d.v1, Inserted: d.v2}
	}
	if delta != nil {
		return delta
	}
	return nil
}

// HTML renders the three layers, or a text diff of the WKT on degrade.
func (d *GeometryFieldDiff) HTML() string {
	delta, err := d.compute()
	if err != nil {
		return NewTextFieldDiff(d.v1, d.v2).HTML()
	}
	if delta == nil {
		return noDifferencesRow
	}
	return fmt.Sprintf(`<tr><td colspan="2"><span class="geom_same">%s</span><span class="geom_deleted">%s</span><span class="geom_inserted">%s</span></td></tr>`,
		html.EscapeString(delta.Same), html.EscapeString(delta.Deleted), html.EscapeString(delta.Inserted))
}

func geometryDelta(wkt1, wkt2 string) (*GeometryDelta, error) {
	g1, err := geom.UnmarshalWKT(wkt1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse old geometry: %w", err)
	}
	g2, err := geom.UnmarshalWKT(wkt2)
	if err != nil {
		return nil, fmt.Errorf("failed to parse new geometry: %w", err)
	}

	lines1, other1 := splitLinear(g1)
	lines2, other2 := splitLinear(g2)

	lineSame, err := geom.Intersection(lines1, lines2)
	if err != nil {
		return nil, fmt.Errorf("failed to intersect linear parts: %w", err)
	}
	// Crossing points between almost-identical lines are artifacts, not
	// shared geometry.
	lineSame = dropBelowDimension(lineSame, 1)
	otherSame, err := geom.Intersection(other1, other2)
	if err != nil {
		return nil, fmt.Errorf("failed to intersect parts: %w", err)
	}
	same, err := geom.Union(lineSame, otherSame)
	if err != nil {
		return nil, fmt.Errorf("failed to merge shared parts: %w", err)
	}

	deleted, err := directedDifference(lines1, lines2, other1, other2)
	if err != nil {
		return nil, fmt.Errorf("failed to compute removed parts: %w", err)
	}
	inserted, err := directedDifference(lines2, lines1, other2, other1)
	if err != nil {
		return nil, fmt.Errorf("failed to compute added parts: %w", err)
	}

	return &GeometryDelta{
		Same:     same.AsText(),
		Deleted:  deleted.AsText(),
		Inserted: inserted.AsText(),
	}, nil
}

// directedDifference is (linesA - linesB) union (otherA - otherB).
func directedDifference(linesA, linesB, otherA, otherB geom.Geometry) (geom.Geometry, error) {
	lineDiff, err := geom.Difference(linesA, linesB)
	if err != nil {
		return geom.Geometry{}, err
	}
	otherDiff, err := geom.Difference(otherA, otherB)
	if err != nil {
		return geom.Geometry{}, err
	}
	return geom.Union(lineDiff, otherDiff)
}

// splitLinear partitions a geometry into its one-dimensional parts and
// everything else, each as a single geometry.
func splitLinear(g geom.Geometry) (lines, other geom.Geometry) {
	var lineParts, otherParts []geom.Geometry
	for _, part := range elementsOf(g) {
		if part.Dimension() == 1 {
			lineParts = append(lineParts, part)
		} else {
			otherParts = append(otherParts, part)
		}
	}
	return collect(lineParts), collect(otherParts)
}

// dropBelowDimension removes parts of lower dimension than min.
func dropBelowDimension(g geom.Geometry, min int) geom.Geometry {
	var kept []geom.Geometry
	for _, part := range elementsOf(g) {
		if part.Dimension() >= min {
			kept = append(kept, part)
		}
	}
	return collect(kept)
}

// elementsOf flattens a geometry into its atomic non-empty parts.
func elementsOf(g geom.Geometry) []geom.Geometry {
	if g.IsEmpty() {
		return nil
	}
	if g.Type() != geom.TypeGeometryCollection {
		return []geom.Geometry{g}
	}
	gc := g.MustAsGeometryCollection()
	var parts []geom.Geometry
	for i := 0; i < gc.NumGeometries(); i++ {
		parts = append(parts, elementsOf(gc.GeometryN(i))...)
	}
	return parts
}

func collect(parts []geom.Geometry) geom.Geometry {
	if len(parts) == 1 {
		return parts[0]
	}
	return geom.NewGeometryCollection(parts).AsGeometry()
}
