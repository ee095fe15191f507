package diff

import (
	"fmt"
	"html"
	"strings"

	"github.com/rpattn/trackchanges/internal/domain"
)

// ModelDiff compares two snapshots of one entity type field by field. The
// field list and per-field strategies are fixed at construction from the
// schema and the registry's model configuration; the actual comparisons run
// lazily and are memoized.
type ModelDiff struct {
	entityType string
	a, b       map[string]any
	entries    []modelDiffEntry
	diffs      map[string]FieldDiff
}

type modelDiffEntry struct {
	name    string
	factory FieldFactory
}

func newModelDiff(reg *Registry, schema domain.Schema, a, b map[string]any, cfg ModelConfig) (*ModelDiff, error) {
	excluded := make(map[string]struct{}, len(cfg.Excludes))
	for _, name := range cfg.Excludes {
		excluded[name] = struct{}{}
	}

	m := &ModelDiff{entityType: schema.Name, a: a, b: b}
	if len(cfg.Fields) > 0 {
		for _, spec := range cfg.Fields {
			if _, skip := excluded[spec.Name]; skip {
				continue
			}
			factory := spec.Factory
			if factory == nil {
				field, ok := schema.Field(spec.Name)
				if !ok {
					return nil, fmt.Errorf("unknown field %q in diff configuration for %q", spec.Name, schema.Name)
				}
				var err error
				factory, err = reg.Lookup(field.Type)
				if err != nil {
					return nil, fmt.Errorf("field %q of %q: %w", spec.Name, schema.Name, err)
				}
			}
			m.entries = append(m.entries, modelDiffEntry{name: spec.Name, factory: factory})
		}
		return m, nil
	}

	for _, field := range schema.Fields {
		if domain.IsAuditField(field.Type) {
			continue
		}
		if _, skip := excluded[field.Name]; skip {
			continue
		}
		factory, err := reg.Lookup(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q of %q: %w", field.Name, schema.Name, err)
		}
		m.entries = append(m.entries, modelDiffEntry{name: field.Name, factory: factory})
	}
	return m, nil
}

// EntityType returns the compared entity type.
func (m *ModelDiff) EntityType() string {
	return m.entityType
}

// Fields returns the diffed field names in rendering order.
func (m *ModelDiff) Fields() []string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Field returns the diff strategy for one field.
func (m *ModelDiff) Field(name string) (FieldDiff, bool) {
	fd, ok := m.fieldDiffs()[name]
	return fd, ok
}

func (m *ModelDiff) fieldDiffs() map[string]FieldDiff {
	if m.diffs == nil {
		m.diffs = make(map[string]FieldDiff, len(m.entries))
		for _, e := range m.entries {
			m.diffs[e.name] = e.factory(m.a[e.name], m.b[e.name])
		}
	}
	return m.diffs
}

// AsDict maps each differing field name to its structured delta. Equal
// fields are omitted; nil means the snapshots are identical.
func (m *ModelDiff) AsDict() map[string]any {
	diffs := m.fieldDiffs()
	var out map[string]any
	for _, e := range m.entries {
		d := diffs[e.name].Diff()
		if d == nil {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[e.name] = d
	}
	return out
}

// Diff returns AsDict. It makes a model diff usable as a field strategy
// for reference fields.
func (m *ModelDiff) Diff() any {
	if d := m.AsDict(); d != nil {
		return d
	}
	return nil
}

// HTML renders the differing fields in declaration order, each under a
// header row carrying the field name.
func (m *ModelDiff) HTML() string {
	diffs := m.fieldDiffs()
	var b strings.Builder
	for _, e := range m.entries {
		fd := diffs[e.name]
		if fd.Diff() == nil {
			continue
		}
		fmt.Fprintf(&b, `<tr><td colspan="2"><strong>%s</strong></td></tr>`, html.EscapeString(e.name))
		b.WriteString(fd.HTML())
	}
	if b.Len() == 0 {
		return noDifferencesRow
	}
	return b.String()
}
