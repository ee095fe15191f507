package domain

import (
	"errors"
	"testing"
	"time"
)

func TestHistoryInfoGet(t *testing.T) {
	entity := NewEntity("page", map[string]any{"name": "Welcome"})
	version := NewVersion(entity, ChangeTypeCreated)
	version.HistoryID = 7

	info := version.HistoryInfo()

	id, err := info.Get("id")
	if err != nil {
		t.Fatalf("unexpected error reading id: %v", err)
	}
	if id != int64(7) {
		t.Fatalf("expected history id 7, got %v", id)
	}

	changeType, err := info.Get("type")
	if err != nil {
		t.Fatalf("unexpected error reading type: %v", err)
	}
	if changeType != ChangeTypeCreated {
		t.Fatalf("expected created, got %v", changeType)
	}

	revertedTo, err := info.Get("reverted_to")
	if err != nil {
		t.Fatalf("unexpected error reading reverted_to: %v", err)
	}
	if revertedTo != nil {
		t.Fatalf("expected nil reverted_to, got %v", revertedTo)
	}
}

func TestHistoryInfoGetUnknownAttribute(t *testing.T) {
	version := NewVersion(NewEntity("page", nil), ChangeTypeCreated)

	_, err := version.HistoryInfo().Get("user")
	if !errors.Is(err, ErrNoHistoryAttribute) {
		t.Fatalf("expected ErrNoHistoryAttribute, got %v", err)
	}
}

func TestHistoryInfoSet(t *testing.T) {
	version := NewVersion(NewEntity("page", nil), ChangeTypeCreated)
	info := version.HistoryInfo()

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := info.Set("date", when); err != nil {
		t.Fatalf("unexpected error setting date: %v", err)
	}
	if !version.HistoryDate.Equal(when) {
		t.Fatalf("expected history date %v, got %v", when, version.HistoryDate)
	}

	if err := info.Set("type", "reverted"); err != nil {
		t.Fatalf("unexpected error setting type: %v", err)
	}
	if version.HistoryType != ChangeTypeReverted {
		t.Fatalf("expected reverted, got %v", version.HistoryType)
	}

	if err := info.Set("reverted_to", int64(3)); err != nil {
		t.Fatalf("unexpected error setting reverted_to: %v", err)
	}
	if got, ok := info.RevertedTo(); !ok || got != 3 {
		t.Fatalf("expected reverted_to 3, got %v ok=%v", got, ok)
	}

	if err := info.Set("date", "not a time"); err == nil {
		t.Fatal("expected type mismatch error setting date from string")
	}
	if err := info.Set("user", "anyone"); !errors.Is(err, ErrNoHistoryAttribute) {
		t.Fatalf("expected ErrNoHistoryAttribute, got %v", err)
	}
}

func TestVersionSnapshotFreezesProperties(t *testing.T) {
	entity := NewEntity("page", map[string]any{"name": "Welcome"})
	version := NewVersion(entity, ChangeTypeCreated)

	// Mutating the source entity after the fact must not leak into the
	// version.
	entity.Properties["name"] = "Changed"
	if version.Properties["name"] != "Welcome" {
		t.Fatalf("version properties were not frozen: %v", version.Properties)
	}

	snapshot := version.Snapshot()
	snapshot.Properties["name"] = "Mutated"
	if version.Properties["name"] != "Welcome" {
		t.Fatalf("snapshot mutation leaked into version: %v", version.Properties)
	}
	if snapshot.ID != version.EntityID {
		t.Fatalf("snapshot id mismatch: %v vs %v", snapshot.ID, version.EntityID)
	}
}
