package diff

import (
	"fmt"

	"github.com/rpattn/trackchanges/internal/domain"
)

// SchemaSource resolves entity types to their schemas. *history.Tracker
// satisfies it.
type SchemaSource interface {
	Schema(entityType string) (domain.Schema, bool)
}

// Differ is the entry point for comparing two snapshots of an entity. It
// owns a registry and wires the reference field strategy into it, so a
// reference whose target was resolved to a version diffs as a nested model
// diff instead of an opaque id comparison.
type Differ struct {
	registry *Registry
	schemas  SchemaSource
}

// NewDiffer creates a differ over the default registry.
func NewDiffer(schemas SchemaSource) *Differ {
	d := &Differ{registry: DefaultRegistry(), schemas: schemas}
	d.registry.Register(domain.FieldTypeReference, d.newReferenceFieldDiff)
	return d
}

// Registry exposes the differ's registry for custom strategy and model
// registrations.
func (d *Differ) Registry() *Registry {
	return d.registry
}

// Diff compares two snapshots of the same entity type. Each argument may be
// a version, an entity, or a pointer to either. For versions, reference
// fields resolved by the temporal resolver are compared as the related
// records, not as identifiers.
func (d *Differ) Diff(a, b any) (*ModelDiff, error) {
	typeA, valuesA, err := fieldValues(a)
	if err != nil {
		return nil, err
	}
	typeB, valuesB, err := fieldValues(b)
	if err != nil {
		return nil, err
	}
	if typeA != typeB {
		return nil, fmt.Errorf("cannot diff %q against %q", typeA, typeB)
	}
	schema, ok := d.schemas.Schema(typeA)
	if !ok {
		return nil, fmt.Errorf("no schema registered for entity type %q", typeA)
	}
	return newModelDiff(d.registry, schema, valuesA, valuesB, d.registry.ModelConfig(typeA))
}

// newReferenceFieldDiff diffs a reference field. When both sides carry a
// resolved version the related records are diffed recursively; otherwise
// the raw ids are compared.
func (d *Differ) newReferenceFieldDiff(v1, v2 any) FieldDiff {
	ver1, ok1 := v1.(*domain.Version)
	ver2, ok2 := v2.(*domain.Version)
	if ok1 && ok2 && ver1 != nil && ver2 != nil {
		if md, err := d.Diff(ver1, ver2); err == nil {
			return md
		}
	}
	return NewBaseFieldDiff(referenceLabel(v1), referenceLabel(v2))
}

func referenceLabel(v any) any {
	if ver, ok := v.(*domain.Version); ok && ver != nil {
		return ver.EntityID.String()
	}
	return v
}

// fieldValues extracts the comparable field values of a snapshot. Versions
// substitute resolved reference targets for the raw identifiers where the
// resolver installed them.
func fieldValues(v any) (string, map[string]any, error) {
	switch t := v.(type) {
	case *domain.Version:
		if t == nil {
			return "", nil, fmt.Errorf("cannot diff a nil version")
		}
		return t.EntityType, versionValues(t), nil
	case domain.Version:
		return t.EntityType, versionValues(&t), nil
	case *domain.Entity:
		if t == nil {
			return "", nil, fmt.Errorf("cannot diff a nil entity")
		}
		return t.EntityType, t.Properties, nil
	case domain.Entity:
		return t.EntityType, t.Properties, nil
	default:
		return "", nil, fmt.Errorf("cannot diff value of type %T", v)
	}
}

func versionValues(version *domain.Version) map[string]any {
	values := make(map[string]any, len(version.Properties))
	for name, value := range version.Properties {
		if target, ok := version.ResolvedReference(name); ok && target != nil {
			values[name] = target
			continue
		}
		values[name] = value
	}
	return values
}
