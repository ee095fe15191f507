package domain

// FieldType represents the type of a field in an entity schema
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeText      FieldType = "text"
	FieldTypeHTML      FieldType = "html"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	FieldTypeFile      FieldType = "file"
	FieldTypeImage     FieldType = "image"
	FieldTypeGeometry  FieldType = "geometry"
	// FieldTypeReference marks a foreign key to another entity type. The
	// property value holds the related entity's id as a string. A reference
	// marked Unique behaves as a one-to-one relation; otherwise the relation
	// is many-to-one and its reverse side is a set.
	FieldTypeReference FieldType = "reference"
	// FieldTypeHistoryID and friends are the audit fields appended to a
	// history schema by the synthesizer. They never appear on live schemas.
	FieldTypeHistoryID         FieldType = "history_id"
	FieldTypeHistoryDate       FieldType = "history_date"
	FieldTypeHistoryChangeType FieldType = "history_change_type"
	FieldTypeHistoryReference  FieldType = "history_reference"
)

// FieldDefinition represents a field definition in a schema
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Unique      bool      `json:"unique,omitempty"`
	Description string    `json:"description,omitempty"`
	// ReferenceEntityType names the related entity type when Type is
	// FieldTypeReference.
	ReferenceEntityType string `json:"referenceEntityType,omitempty"`
}

// Schema describes the field set of an entity type.
type Schema struct {
	Name   string            `json:"name"`
	Fields []FieldDefinition `json:"fields"`
}

// NewSchema creates a schema with immutable pattern
func NewSchema(name string, fields []FieldDefinition) Schema {
	return Schema{
		Name:   name,
		Fields: copyFields(fields), // Deep copy to ensure immutability
	}
}

// Field returns the definition of the named field.
func (s Schema) Field(name string) (FieldDefinition, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// WithField returns a new schema with an added/updated field
func (s Schema) WithField(field FieldDefinition) Schema {
	newFields := copyFields(s.Fields)

	found := false
	for i, existing := range newFields {
		if existing.Name == field.Name {
			newFields[i] = field
			found = true
			break
		}
	}
	if !found {
		newFields = append(newFields, field)
	}

	return Schema{Name: s.Name, Fields: newFields}
}

// WithoutField returns a new schema without the specified field
func (s Schema) WithoutField(name string) Schema {
	newFields := make([]FieldDefinition, 0, len(s.Fields))
	for _, field := range s.Fields {
		if field.Name != name {
			newFields = append(newFields, field)
		}
	}
	return Schema{Name: s.Name, Fields: newFields}
}

// UniqueFields returns the field definitions that anchor entity identity
// across primary key cycles, in declaration order.
func (s Schema) UniqueFields() []FieldDefinition {
	var unique []FieldDefinition
	for _, field := range s.Fields {
		if field.Unique {
			unique = append(unique, field)
		}
	}
	return unique
}

// ReferenceFields returns the reference-typed field definitions in
// declaration order.
func (s Schema) ReferenceFields() []FieldDefinition {
	var refs []FieldDefinition
	for _, field := range s.Fields {
		if field.Type == FieldTypeReference {
			refs = append(refs, field)
		}
	}
	return refs
}

// ReferencesTo returns the reference fields pointing at the given entity
// type.
func (s Schema) ReferencesTo(entityType string) []FieldDefinition {
	var refs []FieldDefinition
	for _, field := range s.ReferenceFields() {
		if field.ReferenceEntityType == entityType {
			refs = append(refs, field)
		}
	}
	return refs
}

// IsAuditField reports whether the field type is one of the audit fields
// appended by the history synthesizer.
func IsAuditField(t FieldType) bool {
	switch t {
	case FieldTypeHistoryID, FieldTypeHistoryDate, FieldTypeHistoryChangeType, FieldTypeHistoryReference:
		return true
	}
	return false
}

// copyFields creates a deep copy of the fields slice to ensure immutability
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}
