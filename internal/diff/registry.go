package diff

import (
	"errors"
	"fmt"

	"github.com/rpattn/trackchanges/internal/domain"
)

// ErrStrategyNotFound is returned when neither a field type nor any of its
// registered ancestors has a diff strategy.
var ErrStrategyNotFound = errors.New("no diff strategy registered")

// fieldTypeRoot is the synthetic ancestor of every built-in field type. It
// carries the generic side-by-side strategy, so any built-in type without a
// dedicated strategy still diffs.
const fieldTypeRoot = domain.FieldType("field")

// FieldSpec names one field of a model diff and optionally overrides the
// strategy used for it.
type FieldSpec struct {
	Name    string
	Factory FieldFactory
}

// ModelConfig customizes how one entity type is diffed: which fields, in
// what order, with optional per-field strategy overrides and exclusions.
// The zero value diffs every schema field in declaration order.
type ModelConfig struct {
	Fields   []FieldSpec
	Excludes []string
}

// Registry maps field types to diff strategies and entity types to model
// configurations. Lookup by field type walks an explicit parent table, so
// a custom type registered as a child of text inherits the text strategy
// until it registers its own.
type Registry struct {
	fields  map[domain.FieldType]FieldFactory
	parents map[domain.FieldType]domain.FieldType
	models  map[string]ModelConfig
}

// NewRegistry returns an empty registry with no strategies.
func NewRegistry() *Registry {
	return &Registry{
		fields:  make(map[domain.FieldType]FieldFactory),
		parents: make(map[domain.FieldType]domain.FieldType),
		models:  make(map[string]ModelConfig),
	}
}

// DefaultRegistry returns a registry pre-loaded with the built-in
// strategies and the built-in type hierarchy.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(fieldTypeRoot, NewBaseFieldDiff)
	r.Register(domain.FieldTypeString, NewTextFieldDiff)
	r.Register(domain.FieldTypeHTML, NewHTMLFieldDiff)
	r.Register(domain.FieldTypeFile, NewFileFieldDiff)
	r.Register(domain.FieldTypeImage, NewImageFieldDiff)
	r.Register(domain.FieldTypeGeometry, NewGeometryFieldDiff)

	r.RegisterParent(domain.FieldTypeText, domain.FieldTypeString)
	r.RegisterParent(domain.FieldTypeHTML, domain.FieldTypeText)
	r.RegisterParent(domain.FieldTypeImage, domain.FieldTypeFile)
	for _, t := range []domain.FieldType{
		domain.FieldTypeString,
		domain.FieldTypeFile,
		domain.FieldTypeGeometry,
		domain.FieldTypeInteger,
		domain.FieldTypeFloat,
		domain.FieldTypeBoolean,
		domain.FieldTypeTimestamp,
		domain.FieldTypeJSON,
		domain.FieldTypeReference,
	} {
		r.RegisterParent(t, fieldTypeRoot)
	}
	return r
}

// Register installs a strategy for a field type, replacing any previous
// registration.
func (r *Registry) Register(t domain.FieldType, f FieldFactory) {
	r.fields[t] = f
}

// RegisterParent declares t a child of parent for lookup fallback.
func (r *Registry) RegisterParent(t, parent domain.FieldType) {
	r.parents[t] = parent
}

// RegisterModel installs a model configuration for an entity type.
func (r *Registry) RegisterModel(entityType string, cfg ModelConfig) {
	r.models[entityType] = cfg
}

// ModelConfig returns the configuration for an entity type, the zero value
// when none was registered.
func (r *Registry) ModelConfig(entityType string) ModelConfig {
	return r.models[entityType]
}

// Lookup finds the strategy for a field type, walking the parent table
// towards the root. A type outside the registered hierarchy fails with
// ErrStrategyNotFound rather than silently degrading.
func (r *Registry) Lookup(t domain.FieldType) (FieldFactory, error) {
	for cur := t; ; {
		if f, ok := r.fields[cur]; ok {
			return f, nil
		}
		parent, ok := r.parents[cur]
		if !ok {
			return nil, fmt.Errorf("%w for field type %q", ErrStrategyNotFound, t)
		}
		cur = parent
	}
}
