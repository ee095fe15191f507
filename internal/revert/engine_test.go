package revert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/trackchanges/internal/diff"
	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/history"
	"github.com/rpattn/trackchanges/internal/repository"
	"github.com/rpattn/trackchanges/internal/temporal"
)

// stepClock hands out strictly increasing timestamps one minute apart.
type stepClock struct {
	current time.Time
}

func newStepClock() *stepClock {
	return &stepClock{current: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.current = c.current.Add(time.Minute)
	return c.current
}

func newTestEngine() (*Engine, *history.Service, *repository.MemoryStore) {
	tracker := history.NewTracker()
	tracker.Register(domain.NewSchema("page", []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, Required: true, Unique: true},
		{Name: "content", Type: domain.FieldTypeHTML},
	}))

	clock := newStepClock()
	store := repository.NewMemoryStore()
	store.SetClock(clock.Now)
	service := history.NewService(store, tracker, temporal.NewResolver(tracker)).WithClock(clock.Now)
	return NewEngine(service), service, store
}

func TestRevertRestoresOldState(t *testing.T) {
	engine, service, store := newTestEngine()
	ctx := context.Background()

	page, v1, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "original"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, _, err := service.Save(ctx, page.WithProperty("content", "vandalized")); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	reverted, err := engine.RevertTo(ctx, v1, Options{})
	if err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}

	if reverted.HistoryType != domain.ChangeTypeReverted {
		t.Fatalf("expected reverted, got %s", reverted.HistoryType)
	}
	target, ok := reverted.HistoryInfo().RevertedTo()
	if !ok || target != v1.HistoryID {
		t.Fatalf("expected reverted_to %d, got %d ok=%v", v1.HistoryID, target, ok)
	}
	if reverted.Properties["content"] != "original" {
		t.Fatalf("old content not restored: %v", reverted.Properties)
	}

	live, err := store.Entities().GetByID(ctx, page.ID)
	if err != nil {
		t.Fatalf("live entity missing: %v", err)
	}
	if live.Properties["content"] != "original" {
		t.Fatalf("live row not restored: %v", live.Properties)
	}

	// The revert appended exactly one new version.
	versions, err := service.ListHistory(ctx, page.ID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
}

func TestRevertToDeletedSnapshotDeletes(t *testing.T) {
	engine, service, store := newTestEngine()
	ctx := context.Background()

	page, _, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	deletedVersion, err := service.Delete(ctx, page)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	// Recreate the page so there is a live row again.
	if _, _, err := service.Save(ctx, page); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	reverted, err := engine.RevertTo(ctx, deletedVersion, Options{})
	if err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}
	if reverted.HistoryType != domain.ChangeTypeDeleted {
		t.Fatalf("expected a deletion version, got %s", reverted.HistoryType)
	}
	if target, ok := reverted.HistoryInfo().RevertedTo(); !ok || target != deletedVersion.HistoryID {
		t.Fatalf("expected reverted_to %d, got %d ok=%v", deletedVersion.HistoryID, target, ok)
	}
	if _, err := store.Entities().GetByID(ctx, page.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected live row gone, got %v", err)
	}
}

func TestRevertAcrossPrimaryKeyCycle(t *testing.T) {
	engine, service, store := newTestEngine()
	ctx := context.Background()

	// Create, delete, and recreate the page under a fresh primary key.
	original, v1, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "original"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, err := service.Delete(ctx, original); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	recreated, _, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "recreated"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if recreated.ID == original.ID {
		t.Fatal("test requires distinct primary keys across the cycle")
	}

	reverted, err := engine.RevertTo(ctx, v1, Options{})
	if err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}

	// The snapshot adopted the live row's pk instead of colliding with its
	// uniqueness fields.
	if reverted.EntityID != recreated.ID {
		t.Fatalf("expected revert under live pk %s, got %s", recreated.ID, reverted.EntityID)
	}
	live, err := store.Entities().GetByID(ctx, recreated.ID)
	if err != nil {
		t.Fatalf("live entity missing: %v", err)
	}
	if live.Properties["content"] != "original" {
		t.Fatalf("live row not restored: %v", live.Properties)
	}
}

func TestRevertDeleteNewerVersionsPrunes(t *testing.T) {
	engine, service, _ := newTestEngine()
	ctx := context.Background()

	page, v1, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "v1"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, _, err := service.Save(ctx, page.WithProperty("content", "v2")); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, _, err := service.Save(ctx, page.WithProperty("content", "v3")); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	reverted, err := engine.RevertTo(ctx, v1, Options{DeleteNewerVersions: true})
	if err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}

	versions, err := service.ListHistory(ctx, page.ID)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	// v2 and v3 are gone; v1 and the new reverted version remain. The
	// pruning itself left no audit trace beyond the revert version.
	if len(versions) != 2 {
		t.Fatalf("expected 2 surviving versions, got %d", len(versions))
	}
	if versions[0].HistoryID != v1.HistoryID {
		t.Fatalf("expected v1 to survive, got %d", versions[0].HistoryID)
	}
	if versions[1].HistoryID != reverted.HistoryID {
		t.Fatalf("expected the reverted version last, got %d", versions[1].HistoryID)
	}
}

func TestRevertRoundTripDiffIsEmpty(t *testing.T) {
	engine, service, _ := newTestEngine()
	ctx := context.Background()

	page, v1, err := service.Save(ctx, domain.NewEntity("page", map[string]any{"name": "Welcome", "content": "original"}))
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, _, err := service.Save(ctx, page.WithProperty("content", "edited")); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	reverted, err := engine.RevertTo(ctx, v1, Options{})
	if err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}

	md, err := diff.NewDiffer(service.Tracker()).Diff(v1, reverted)
	if err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}
	if fields := md.AsDict(); fields != nil {
		t.Fatalf("expected no differences after revert, got %v", fields)
	}
}

func TestRevertUntrackedType(t *testing.T) {
	engine, _, _ := newTestEngine()

	orphan := domain.NewVersion(domain.NewEntity("widget", nil), domain.ChangeTypeCreated)
	_, err := engine.RevertTo(context.Background(), orphan, Options{})
	if !errors.Is(err, history.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
}
