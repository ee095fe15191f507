package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/trackchanges/internal/domain"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// mirrors the Postgres semantics: append-only versions with assigned history
// ids, greatest-date-wins as-of resolution, and group-by-entity max-history-id
// reverse lookups.
type MemoryStore struct {
	mu            sync.Mutex
	entities      map[uuid.UUID]domain.Entity
	versions      []*domain.Version
	nextHistoryID int64
	clock         func() time.Time

	entityRepo  *memoryEntityRepository
	versionRepo *memoryVersionRepository
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entities:      make(map[uuid.UUID]domain.Entity),
		nextHistoryID: 1,
		clock:         time.Now,
	}
	s.entityRepo = &memoryEntityRepository{store: s}
	s.versionRepo = &memoryVersionRepository{store: s}
	return s
}

// SetClock overrides the store clock. Tests use it to write versions at
// deterministic timestamps.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Entities returns the live entity repository.
func (s *MemoryStore) Entities() EntityRepository { return s.entityRepo }

// Versions returns the version repository.
func (s *MemoryStore) Versions() VersionRepository { return s.versionRepo }

// InTx runs fn against the store. The in-memory store has no rollback; the
// single mutex already serializes multi-step sequences, which is enough for
// the test and development scenarios it serves.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(s)
}

type memoryEntityRepository struct {
	store *MemoryStore
}

func (r *memoryEntityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entity.ID]; exists {
		return domain.Entity{}, fmt.Errorf("entity %s already exists", entity.ID)
	}

	clone := entity.WithProperties(entity.Properties)
	now := s.clock()
	clone.CreatedAt = now
	clone.UpdatedAt = now
	s.entities[clone.ID] = clone
	return clone, nil
}

func (r *memoryEntityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return entity, nil
}

func (r *memoryEntityRepository) Update(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[entity.ID]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", entity.ID, ErrNotFound)
	}

	clone := entity.WithProperties(entity.Properties)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = s.clock()
	s.entities[clone.ID] = clone
	return clone, nil
}

func (r *memoryEntityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	delete(s.entities, id)
	return nil
}

func (r *memoryEntityRepository) FindByUnique(ctx context.Context, entityType string, unique map[string]any) ([]domain.Entity, error) {
	if len(unique) == 0 {
		return []domain.Entity{}, nil
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []domain.Entity
	for _, entity := range s.entities {
		if entity.EntityType != entityType {
			continue
		}
		matched := true
		for key, want := range unique {
			if entity.Properties[key] != want {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, entity)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID.String() < matches[j].ID.String()
	})
	return matches, nil
}

type memoryVersionRepository struct {
	store *MemoryStore
}

func (r *memoryVersionRepository) Append(ctx context.Context, version *domain.Version) (*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := &domain.Version{
		HistoryID:    s.nextHistoryID,
		EntityID:     version.EntityID,
		EntityType:   version.EntityType,
		Properties:   version.Snapshot().Properties,
		HistoryDate:  version.HistoryDate,
		HistoryType:  version.HistoryType,
		RevertedToID: version.RevertedToID,
	}
	if stored.HistoryDate.IsZero() {
		stored.HistoryDate = s.clock()
	}
	s.nextHistoryID++
	s.versions = append(s.versions, stored)
	return copyVersion(stored), nil
}

func (r *memoryVersionRepository) GetByHistoryID(ctx context.Context, historyID int64) (*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, version := range s.versions {
		if version.HistoryID == historyID {
			return copyVersion(version), nil
		}
	}
	return nil, fmt.Errorf("version %d: %w", historyID, ErrNotFound)
}

func (r *memoryVersionRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Version
	for _, version := range s.versions {
		if version.EntityID == entityID {
			result = append(result, copyVersion(version))
		}
	}
	sortVersions(result)
	return result, nil
}

func (r *memoryVersionRepository) AsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.Version
	for _, version := range s.versions {
		if version.EntityID != entityID || version.HistoryDate.After(at) {
			continue
		}
		if best == nil || version.HistoryDate.After(best.HistoryDate) ||
			(version.HistoryDate.Equal(best.HistoryDate) && version.HistoryID > best.HistoryID) {
			best = version
		}
	}
	if best == nil {
		return nil, fmt.Errorf("entity %s as of %s: %w", entityID, at.Format(time.RFC3339), ErrNotFound)
	}
	return copyVersion(best), nil
}

func (r *memoryVersionRepository) AsOfBatch(ctx context.Context, keys []AsOfKey) ([]*domain.Version, error) {
	results := make([]*domain.Version, len(keys))
	for i, key := range keys {
		version, err := r.AsOf(ctx, key.EntityID, key.At)
		if err != nil {
			continue
		}
		results[i] = version
	}
	return results, nil
}

func (r *memoryVersionRepository) CountAsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, version := range s.versions {
		if version.EntityID == entityID && !version.HistoryDate.After(at) {
			count++
		}
	}
	return count, nil
}

func (r *memoryVersionRepository) LatestReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) ([]*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[uuid.UUID]*domain.Version)
	for _, version := range s.versions {
		if !referencesTarget(version, entityType, refField, target, at) {
			continue
		}
		current, ok := latest[version.EntityID]
		if !ok || version.HistoryID > current.HistoryID {
			latest[version.EntityID] = version
		}
	}

	result := make([]*domain.Version, 0, len(latest))
	for _, version := range latest {
		result = append(result, copyVersion(version))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].HistoryID < result[j].HistoryID })
	return result, nil
}

func (r *memoryVersionRepository) FirstReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) (*domain.Version, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var first *domain.Version
	for _, version := range s.versions {
		if !referencesTarget(version, entityType, refField, target, at) {
			continue
		}
		if first == nil || version.HistoryID < first.HistoryID {
			first = version
		}
	}
	if first == nil {
		return nil, fmt.Errorf("no %s version referencing %s via %s: %w", entityType, target, refField, ErrNotFound)
	}
	return copyVersion(first), nil
}

func (r *memoryVersionRepository) DeleteNewer(ctx context.Context, entityID uuid.UUID, after time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.versions[:0]
	var pruned int64
	for _, version := range s.versions {
		if version.EntityID == entityID && version.HistoryDate.After(after) {
			pruned++
			continue
		}
		kept = append(kept, version)
	}
	s.versions = kept
	return pruned, nil
}

func referencesTarget(version *domain.Version, entityType, refField string, target uuid.UUID, at time.Time) bool {
	if version.EntityType != entityType || version.HistoryDate.After(at) {
		return false
	}
	ref, ok := version.Reference(refField)
	return ok && ref == target
}

func sortVersions(versions []*domain.Version) {
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].HistoryDate.Equal(versions[j].HistoryDate) {
			return versions[i].HistoryDate.Before(versions[j].HistoryDate)
		}
		return versions[i].HistoryID < versions[j].HistoryID
	})
}

func copyVersion(version *domain.Version) *domain.Version {
	return &domain.Version{
		HistoryID:    version.HistoryID,
		EntityID:     version.EntityID,
		EntityType:   version.EntityType,
		Properties:   version.Snapshot().Properties,
		HistoryDate:  version.HistoryDate,
		HistoryType:  version.HistoryType,
		RevertedToID: version.RevertedToID,
	}
}
