package diff

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rpattn/trackchanges/internal/domain"
)

type stubSchemas map[string]domain.Schema

func (s stubSchemas) Schema(entityType string) (domain.Schema, bool) {
	schema, ok := s[entityType]
	return schema, ok
}

func pageSchema() domain.Schema {
	return domain.NewSchema("page", []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, Required: true, Unique: true},
		{Name: "content", Type: domain.FieldTypeHTML},
	})
}

func testDiffer() *Differ {
	return NewDiffer(stubSchemas{"page": pageSchema()})
}

func TestModelDiffAsDictOmitsEqualFields(t *testing.T) {
	differ := testDiffer()
	before := domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "<p>hi</p>"})
	after := before.WithProperty("content", "<p>hello</p>")

	md, err := differ.Diff(before, after)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}

	dict := md.AsDict()
	if len(dict) != 1 {
		t.Fatalf("expected exactly one differing field, got %v", dict)
	}
	delta, ok := dict["content"].(*ValueDelta)
	if !ok {
		t.Fatalf("expected html delta under content, got %T", dict["content"])
	}
	if delta.Inserted != "<p>hello</p>" {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}

func TestModelDiffIdenticalSnapshots(t *testing.T) {
	differ := testDiffer()
	entity := domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "<p>hi</p>"})

	md, err := differ.Diff(entity, entity)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	if md.AsDict() != nil {
		t.Fatalf("expected nil dict for identical snapshots, got %v", md.AsDict())
	}
	if md.HTML() != noDifferencesRow {
		t.Fatalf("expected the no-differences row, got %q", md.HTML())
	}
}

func TestModelDiffMemoizes(t *testing.T) {
	differ := testDiffer()
	before := domain.NewEntity("page", map[string]any{"name": "Phil"})
	after := before.WithProperty("name", "Phillip")

	md, err := differ.Diff(before, after)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	first, second := md.AsDict(), md.AsDict()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated dict calls disagreed (-first +second):\n%s", diff)
	}
	fd1, _ := md.Field("name")
	fd2, _ := md.Field("name")
	if fd1 != fd2 {
		t.Fatal("field diffs were rebuilt between calls")
	}
}

func TestModelDiffHTMLOrdersFields(t *testing.T) {
	differ := testDiffer()
	before := domain.NewEntity("page", map[string]any{"name": "Old", "content": "<p>old</p>"})
	after := before.WithProperty("name", "New").WithProperty("content", "<p>new</p>")

	md, err := differ.Diff(before, after)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	html := md.HTML()
	nameAt := strings.Index(html, "<strong>name</strong>")
	contentAt := strings.Index(html, "<strong>content</strong>")
	if nameAt == -1 || contentAt == -1 || nameAt > contentAt {
		t.Fatalf("expected name before content in rendered output: %q", html)
	}
}

func TestModelDiffConfigOverrides(t *testing.T) {
	differ := testDiffer()
	differ.Registry().RegisterModel("page", ModelConfig{
		Fields: []FieldSpec{{Name: "name"}},
	})

	before := domain.NewEntity("page", map[string]any{"name": "Old", "content": "<p>old</p>"})
	after := before.WithProperty("name", "New").WithProperty("content", "<p>new</p>")

	md, err := differ.Diff(before, after)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	dict := md.AsDict()
	if _, ok := dict["content"]; ok {
		t.Fatalf("content should be excluded by the model config: %v", dict)
	}
	if _, ok := dict["name"]; !ok {
		t.Fatalf("expected name in the configured diff: %v", dict)
	}
}

func TestModelDiffUnknownStrategy(t *testing.T) {
	schema := domain.NewSchema("widget", []domain.FieldDefinition{
		{Name: "blob", Type: domain.FieldType("blob")},
	})
	differ := NewDiffer(stubSchemas{"widget": schema})

	_, err := differ.Diff(
		domain.NewEntity("widget", map[string]any{"blob": "a"}),
		domain.NewEntity("widget", map[string]any{"blob": "b"}),
	)
	if !errors.Is(err, ErrStrategyNotFound) {
		t.Fatalf("expected ErrStrategyNotFound, got %v", err)
	}
}
