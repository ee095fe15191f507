package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/trackchanges/internal/domain"
)

func appendVersion(t *testing.T, store *MemoryStore, entityID uuid.UUID, entityType string, props map[string]any, at time.Time) *domain.Version {
	t.Helper()
	version := &domain.Version{
		EntityID:    entityID,
		EntityType:  entityType,
		Properties:  props,
		HistoryDate: at,
		HistoryType: domain.ChangeTypeChanged,
	}
	stored, err := store.Versions().Append(context.Background(), version)
	if err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	return stored
}

func TestAsOfEqualDateTiebreak(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	pageID := uuid.New()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	appendVersion(t, store, pageID, "page", map[string]any{"name": "first"}, at)
	second := appendVersion(t, store, pageID, "page", map[string]any{"name": "second"}, at)

	found, err := store.Versions().AsOf(ctx, pageID, at)
	if err != nil {
		t.Fatalf("unexpected as-of error: %v", err)
	}
	// Equal dates resolve to the greater history id.
	if found.HistoryID != second.HistoryID {
		t.Fatalf("expected history id %d, got %d", second.HistoryID, found.HistoryID)
	}
	if found.Properties["name"] != "second" {
		t.Fatalf("unexpected properties: %v", found.Properties)
	}

	if _, err := store.Versions().AsOf(ctx, pageID, at.Add(-time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first version, got %v", err)
	}
}

func TestAsOfBatchSkipsMisses(t *testing.T) {
	store := NewMemoryStore()
	pageID := uuid.New()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stored := appendVersion(t, store, pageID, "page", map[string]any{"name": "only"}, at)

	results, err := store.Versions().AsOfBatch(context.Background(), []AsOfKey{
		{EntityID: pageID, At: at},
		{EntityID: uuid.New(), At: at},
	})
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(results))
	}
	if results[0] == nil || results[0].HistoryID != stored.HistoryID {
		t.Fatalf("expected hit in slot 0, got %v", results[0])
	}
	if results[1] != nil {
		t.Fatalf("expected nil for unknown entity, got %v", results[1])
	}
}

func TestFindByUniqueOrdersByCreation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	current := base
	store.SetClock(func() time.Time {
		current = current.Add(time.Minute)
		return current
	})

	older, err := store.Entities().Create(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome"}))
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	newer, err := store.Entities().Create(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome"}))
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := store.Entities().Create(ctx, domain.NewEntity("page", map[string]any{"name": "Other"})); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	matches, err := store.Entities().FindByUnique(ctx, "page", map[string]any{"name": "Welcome"})
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != older.ID || matches[1].ID != newer.ID {
		t.Fatalf("expected creation order %s,%s got %s,%s", older.ID, newer.ID, matches[0].ID, matches[1].ID)
	}

	empty, err := store.Entities().FindByUnique(ctx, "page", nil)
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no matches without uniqueness fields, got %d", len(empty))
	}
}

func TestDeleteNewerPrunesStrictlyAfter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	pageID := uuid.New()
	otherID := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	appendVersion(t, store, pageID, "page", map[string]any{"name": "v1"}, base)
	appendVersion(t, store, pageID, "page", map[string]any{"name": "v2"}, base.Add(time.Minute))
	appendVersion(t, store, pageID, "page", map[string]any{"name": "v3"}, base.Add(2*time.Minute))
	appendVersion(t, store, otherID, "page", map[string]any{"name": "other"}, base.Add(3*time.Minute))

	pruned, err := store.Versions().DeleteNewer(ctx, pageID, base)
	if err != nil {
		t.Fatalf("unexpected prune error: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 pruned versions, got %d", pruned)
	}

	remaining, err := store.Versions().ListByEntity(ctx, pageID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Properties["name"] != "v1" {
		t.Fatalf("expected only v1 to survive, got %v", remaining)
	}

	// Other entities are untouched.
	others, err := store.Versions().ListByEntity(ctx, otherID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(others) != 1 {
		t.Fatalf("expected other entity history intact, got %d", len(others))
	}
}

func TestLatestReferencingGroupsByEntity(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	pageID := uuid.New()
	commentA := uuid.New()
	commentB := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	appendVersion(t, store, commentA, "comment", map[string]any{"body": "a1", "page": pageID.String()}, base)
	latestA := appendVersion(t, store, commentA, "comment", map[string]any{"body": "a2", "page": pageID.String()}, base.Add(time.Minute))
	latestB := appendVersion(t, store, commentB, "comment", map[string]any{"body": "b1", "page": pageID.String()}, base.Add(2*time.Minute))
	// Dated past the resolving instant; must not participate.
	appendVersion(t, store, commentB, "comment", map[string]any{"body": "b2", "page": pageID.String()}, base.Add(time.Hour))

	found, err := store.Versions().LatestReferencing(ctx, "comment", "page", pageID, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 referencing entities, got %d", len(found))
	}
	if found[0].HistoryID != latestA.HistoryID || found[1].HistoryID != latestB.HistoryID {
		t.Fatalf("expected latest versions per entity, got %d and %d", found[0].HistoryID, found[1].HistoryID)
	}
}

func TestFirstReferencing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	pageID := uuid.New()
	infoboxID := uuid.New()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	first := appendVersion(t, store, infoboxID, "infobox", map[string]any{"summary": "v1", "page": pageID.String()}, base)
	appendVersion(t, store, infoboxID, "infobox", map[string]any{"summary": "v2", "page": pageID.String()}, base.Add(time.Minute))

	found, err := store.Versions().FirstReferencing(ctx, "infobox", "page", pageID, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if found.HistoryID != first.HistoryID {
		t.Fatalf("expected first version %d, got %d", first.HistoryID, found.HistoryID)
	}

	if _, err := store.Versions().FirstReferencing(ctx, "infobox", "page", uuid.New(), base.Add(5*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAssignsSequentialHistoryIDs(t *testing.T) {
	store := NewMemoryStore()
	pageID := uuid.New()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	v1 := appendVersion(t, store, pageID, "page", map[string]any{"name": "one"}, at)
	v2 := appendVersion(t, store, pageID, "page", map[string]any{"name": "two"}, at.Add(time.Minute))
	if v2.HistoryID != v1.HistoryID+1 {
		t.Fatalf("expected sequential ids, got %d then %d", v1.HistoryID, v2.HistoryID)
	}

	// Stored versions are detached copies.
	v1.Properties["name"] = "mutated"
	reread, err := store.Versions().GetByHistoryID(context.Background(), v1.HistoryID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if reread.Properties["name"] != "one" {
		t.Fatalf("stored version mutated through returned copy: %v", reread.Properties)
	}
}
