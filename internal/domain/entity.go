package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity represents a live, mutable record with a schema-driven property bag.
// The primary key may be reused if the entity is deleted and an identically
// unique-keyed entity is later recreated; uniqueness fields anchor identity
// across such cycles.
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewEntity creates a new entity with immutable pattern
func NewEntity(entityType string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:         uuid.New(),
		EntityType: entityType,
		Properties: copyProperties(properties), // Deep copy to ensure immutability
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithProperty returns a new entity with an added/updated property
func (e Entity) WithProperty(key string, value any) Entity {
	newProperties := copyProperties(e.Properties)
	newProperties[key] = value

	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: newProperties,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// WithoutProperty returns a new entity without the specified property
func (e Entity) WithoutProperty(key string) Entity {
	newProperties := copyProperties(e.Properties)
	delete(newProperties, key)

	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: newProperties,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// WithProperties returns a new entity with updated properties
func (e Entity) WithProperties(properties map[string]any) Entity {
	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: copyProperties(properties),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// WithID returns a new entity carrying the given primary key. Used when an
// entity reconstructed from a snapshot must adopt the pk of an existing live
// row so the save path updates instead of violating uniqueness constraints.
func (e Entity) WithID(id uuid.UUID) Entity {
	return Entity{
		ID:         id,
		EntityType: e.EntityType,
		Properties: copyProperties(e.Properties),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

func (e *Entity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	var properties map[string]any
	err := json.Unmarshal(propertiesJSON, &properties)
	return properties, err
}

// Reference returns the related entity id stored under the given property
// name, if present. Reference properties hold the related entity's id as a
// string.
func (e Entity) Reference(name string) (uuid.UUID, bool) {
	return referenceID(e.Properties, name)
}

func referenceID(properties map[string]any, name string) (uuid.UUID, bool) {
	raw, ok := properties[name]
	if !ok || raw == nil {
		return uuid.Nil, false
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// copyProperties creates a deep copy of the properties map to ensure immutability
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		// For a truly immutable implementation, you'd need to deep copy each value
		// For simplicity, we're doing a shallow copy here
		newProperties[k] = v
	}
	return newProperties
}
