package history

import (
	"sort"
	"sync"

	"github.com/rpattn/trackchanges/internal/domain"
)

// Audit field names appended to every history schema.
const (
	FieldHistoryID         = "history_id"
	FieldHistoryDate       = "history_date"
	FieldHistoryType       = "history_type"
	FieldHistoryRevertedTo = "history_reverted_to"
)

// BuildHistorySchema synthesizes the field set of the history record type
// paired with a live schema: every comparable live field is copied, followed
// by the audit metadata fields. The synthesis happens once, when the schema
// is registered, never at arbitrary runtime.
func BuildHistorySchema(schema domain.Schema) domain.Schema {
	fields := make([]domain.FieldDefinition, 0, len(schema.Fields)+4)
	fields = append(fields, schema.Fields...)
	fields = append(fields,
		domain.FieldDefinition{
			Name:        FieldHistoryID,
			Type:        domain.FieldTypeHistoryID,
			Required:    true,
			Description: "surrogate key of the snapshot itself",
		},
		domain.FieldDefinition{
			Name:        FieldHistoryDate,
			Type:        domain.FieldTypeHistoryDate,
			Required:    true,
			Description: "snapshot timestamp, defaults to now",
		},
		domain.FieldDefinition{
			Name:        FieldHistoryType,
			Type:        domain.FieldTypeHistoryChangeType,
			Required:    true,
			Description: "created, changed, deleted or reverted",
		},
		domain.FieldDefinition{
			Name:        FieldHistoryRevertedTo,
			Type:        domain.FieldTypeHistoryReference,
			Description: "history id of the version reverted to, when any",
		},
	)
	return domain.NewSchema(schema.Name, fields)
}

// Tracker is the registry of versioned entity types. Registering a schema
// synthesizes its history schema; entity types never registered are not
// versioned and their relationships are exposed unwrapped.
type Tracker struct {
	mu             sync.RWMutex
	schemas        map[string]domain.Schema
	historySchemas map[string]domain.Schema
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		schemas:        make(map[string]domain.Schema),
		historySchemas: make(map[string]domain.Schema),
	}
}

// Register tracks an entity type for versioning.
func (t *Tracker) Register(schema domain.Schema) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schemas[schema.Name] = schema
	t.historySchemas[schema.Name] = BuildHistorySchema(schema)
}

// Schema returns the live schema of a tracked entity type.
func (t *Tracker) Schema(entityType string) (domain.Schema, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	schema, ok := t.schemas[entityType]
	return schema, ok
}

// HistorySchema returns the synthesized history schema of a tracked entity
// type.
func (t *Tracker) HistorySchema(entityType string) (domain.Schema, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	schema, ok := t.historySchemas[entityType]
	return schema, ok
}

// IsVersioned reports whether the entity type is tracked.
func (t *Tracker) IsVersioned(entityType string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.schemas[entityType]
	return ok
}

// Types returns the tracked entity type names in sorted order.
func (t *Tracker) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.schemas))
	for name := range t.schemas {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
