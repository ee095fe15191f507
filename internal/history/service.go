package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/repository"
)

// ErrNotTracked is returned when an operation targets an entity type that
// was never registered for versioning.
var ErrNotTracked = errors.New("history: entity type is not tracked")

// Wrapper installs relationship state on freshly constructed versions. It is
// satisfied by the temporal resolver; wrapping must run before any other
// code observes the version.
type Wrapper interface {
	Wrap(ctx context.Context, store repository.Store, version *domain.Version) error
	WrapAll(ctx context.Context, store repository.Store, versions []*domain.Version) error
}

// Service is the versioned save/delete path for tracked entities. Every
// mutation of a tracked entity flows through here and appends exactly one
// new version row; version rows themselves are never updated in place.
type Service struct {
	store   repository.Store
	tracker *Tracker
	wrapper Wrapper
	now     func() time.Time
}

// NewService creates the history service.
func NewService(store repository.Store, tracker *Tracker, wrapper Wrapper) *Service {
	return &Service{
		store:   store,
		tracker: tracker,
		wrapper: wrapper,
		now:     time.Now,
	}
}

// WithStore returns a copy of the service bound to the given store. Used to
// run the service inside a transaction-scoped store.
func (s *Service) WithStore(store repository.Store) *Service {
	return &Service{store: store, tracker: s.tracker, wrapper: s.wrapper, now: s.now}
}

// WithClock overrides the service clock; tests use it to write versions at
// deterministic timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	return &Service{store: s.store, tracker: s.tracker, wrapper: s.wrapper, now: now}
}

// Tracker exposes the registry of versioned types.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Store exposes the underlying store.
func (s *Service) Store() repository.Store { return s.store }

// Save persists the live entity (insert or update) and appends the
// corresponding created/changed version.
func (s *Service) Save(ctx context.Context, entity domain.Entity) (domain.Entity, *domain.Version, error) {
	return s.save(ctx, entity, "", nil)
}

// SaveReverted persists the live entity and appends a reverted version
// pointing at the version that was reverted to.
func (s *Service) SaveReverted(ctx context.Context, entity domain.Entity, revertedTo int64) (domain.Entity, *domain.Version, error) {
	return s.save(ctx, entity, domain.ChangeTypeReverted, &revertedTo)
}

func (s *Service) save(ctx context.Context, entity domain.Entity, changeType domain.ChangeType, revertedTo *int64) (domain.Entity, *domain.Version, error) {
	if !s.tracker.IsVersioned(entity.EntityType) {
		return domain.Entity{}, nil, fmt.Errorf("%w: %s", ErrNotTracked, entity.EntityType)
	}

	var saved domain.Entity
	_, getErr := s.store.Entities().GetByID(ctx, entity.ID)
	switch {
	case getErr == nil:
		updated, err := s.store.Entities().Update(ctx, entity)
		if err != nil {
			return domain.Entity{}, nil, err
		}
		saved = updated
		if changeType == "" {
			changeType = domain.ChangeTypeChanged
		}
	case errors.Is(getErr, repository.ErrNotFound):
		created, err := s.store.Entities().Create(ctx, entity)
		if err != nil {
			return domain.Entity{}, nil, err
		}
		saved = created
		if changeType == "" {
			changeType = domain.ChangeTypeCreated
		}
	default:
		return domain.Entity{}, nil, getErr
	}

	version, err := s.appendVersion(ctx, saved, changeType, revertedTo)
	if err != nil {
		return domain.Entity{}, nil, err
	}
	return saved, version, nil
}

// Delete removes the live entity and appends a deleted version.
func (s *Service) Delete(ctx context.Context, entity domain.Entity) (*domain.Version, error) {
	return s.delete(ctx, entity, nil)
}

// DeleteReverted removes the live entity as part of reverting to a deleted
// snapshot, recording which version the revert targeted.
func (s *Service) DeleteReverted(ctx context.Context, entity domain.Entity, revertedTo int64) (*domain.Version, error) {
	return s.delete(ctx, entity, &revertedTo)
}

func (s *Service) delete(ctx context.Context, entity domain.Entity, revertedTo *int64) (*domain.Version, error) {
	if !s.tracker.IsVersioned(entity.EntityType) {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, entity.EntityType)
	}

	if err := s.store.Entities().Delete(ctx, entity.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return s.appendVersion(ctx, entity, domain.ChangeTypeDeleted, revertedTo)
}

func (s *Service) appendVersion(ctx context.Context, entity domain.Entity, changeType domain.ChangeType, revertedTo *int64) (*domain.Version, error) {
	version := domain.NewVersion(entity, changeType)
	version.HistoryDate = s.now()
	version.RevertedToID = revertedTo

	appended, err := s.store.Versions().Append(ctx, version)
	if err != nil {
		return nil, err
	}
	if err := s.wrapper.Wrap(ctx, s.store, appended); err != nil {
		return nil, err
	}
	return appended, nil
}

// GetVersion loads a single version by history id, wrapped.
func (s *Service) GetVersion(ctx context.Context, historyID int64) (*domain.Version, error) {
	version, err := s.store.Versions().GetByHistoryID(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if err := s.wrapper.Wrap(ctx, s.store, version); err != nil {
		return nil, err
	}
	return version, nil
}

// ListHistory returns all versions of an entity in chronological order,
// wrapped.
func (s *Service) ListHistory(ctx context.Context, entityID uuid.UUID) ([]*domain.Version, error) {
	versions, err := s.store.Versions().ListByEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if err := s.wrapper.WrapAll(ctx, s.store, versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// AsOf returns the entity's version valid at the given time, wrapped.
func (s *Service) AsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (*domain.Version, error) {
	version, err := s.store.Versions().AsOf(ctx, entityID, at)
	if err != nil {
		return nil, err
	}
	if err := s.wrapper.Wrap(ctx, s.store, version); err != nil {
		return nil, err
	}
	return version, nil
}

// VersionNumber computes the ordinal position of the version among its
// entity's versions: the count of versions with history date <= this one.
// The count is computed on first access per instance and memoized; gaps only
// appear after pruning.
func (s *Service) VersionNumber(ctx context.Context, version *domain.Version) (int64, error) {
	if cached, ok := version.CachedVersionNumber(); ok {
		return cached, nil
	}
	count, err := s.store.Versions().CountAsOf(ctx, version.EntityID, version.HistoryDate)
	if err != nil {
		return 0, err
	}
	version.SetVersionNumber(count)
	return count, nil
}
