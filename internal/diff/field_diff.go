package diff

import (
	"fmt"
	"html"
	"reflect"
)

// noDifferencesRow is the placeholder rendered when two values are equal.
const noDifferencesRow = `<tr><td colspan="2">(No differences found)</td></tr>`

// FieldDiff compares two values of one field. Diff returns nil when the
// values are equal and a strategy-specific structured delta otherwise; HTML
// renders the comparison, normally as one row of a side-by-side table.
// Implementations memoize their computation, so calling Diff twice returns
// identical results.
type FieldDiff interface {
	Diff() any
	HTML() string
}

// FieldFactory builds a field diff strategy for two values.
type FieldFactory func(v1, v2 any) FieldDiff

// ValueDelta is the simplest structured diff: the old and new value.
type ValueDelta struct {
	Deleted  any `json:"deleted"`
	Inserted any `json:"inserted"`
}

// BaseFieldDiff is the simplest diff possible, used when no better strategy
// is available: equal values produce no diff, differing values are shown
// side by side.
type BaseFieldDiff struct {
	v1, v2   any
	computed bool
	delta    *ValueDelta
}

// NewBaseFieldDiff creates the generic scalar strategy.
func NewBaseFieldDiff(v1, v2 any) FieldDiff {
	return &BaseFieldDiff{v1: v1, v2: v2}
}

func (d *BaseFieldDiff) compute() *ValueDelta {
	if !d.computed {
		if !reflect.DeepEqual(d.v1, d.v2) {
			d.delta = &ValueDelta{Deleted: d.v1, Inserted: d.v2}
		}
		d.computed = true
	}
	return d.delta
}

// Diff returns nil when the values are equal, else {deleted, inserted}.
func (d *BaseFieldDiff) Diff() any {
	if delta := d.compute(); delta != nil {
		return delta
	}
	return nil
}

// HTML renders the two values as a two-cell table row.
func (d *BaseFieldDiff) HTML() string {
	if d.compute() == nil {
		return noDifferencesRow
	}
	return fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>",
		html.EscapeString(fmt.Sprint(d.v1)), html.EscapeString(fmt.Sprint(d.v2)))
}

// stringValue coerces a property value into a string for the text-based
// strategies. Nil becomes the empty string.
func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
