package history

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rpattn/trackchanges/internal/domain"
)

func TestBuildHistorySchemaAppendsAuditFields(t *testing.T) {
	live := domain.NewSchema("page", []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, Required: true, Unique: true},
		{Name: "content", Type: domain.FieldTypeHTML},
	})

	historySchema := BuildHistorySchema(live)

	var names []string
	for _, field := range historySchema.Fields {
		names = append(names, field.Name)
	}
	want := []string{"name", "content", FieldHistoryID, FieldHistoryDate, FieldHistoryType, FieldHistoryRevertedTo}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}

	idField, ok := historySchema.Field(FieldHistoryID)
	if !ok || idField.Type != domain.FieldTypeHistoryID {
		t.Fatalf("expected audit typed history_id field, got %+v", idField)
	}
	if !domain.IsAuditField(idField.Type) {
		t.Fatal("history_id is not recognized as an audit field")
	}

	// The live schema is untouched.
	if len(live.Fields) != 2 {
		t.Fatalf("live schema was mutated: %v", live.Fields)
	}
}

func TestTrackerRegister(t *testing.T) {
	tracker := NewTracker()
	tracker.Register(domain.NewSchema("page", []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, Unique: true},
	}))
	tracker.Register(domain.NewSchema("comment", []domain.FieldDefinition{
		{Name: "body", Type: domain.FieldTypeText},
	}))

	if !tracker.IsVersioned("page") {
		t.Fatal("page should be versioned")
	}
	if tracker.IsVersioned("widget") {
		t.Fatal("widget was never registered")
	}

	historySchema, ok := tracker.HistorySchema("page")
	if !ok {
		t.Fatal("expected a synthesized history schema for page")
	}
	if _, ok := historySchema.Field(FieldHistoryDate); !ok {
		t.Fatal("history schema is missing history_date")
	}

	if diff := cmp.Diff([]string{"comment", "page"}, tracker.Types()); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
}
