package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/trackchanges/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("repository: record not found")

// EntityRepository defines the interface for live entity operations
type EntityRepository interface {
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	Update(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// FindByUnique returns the live entities of the given type whose
	// properties contain every key/value pair in unique, in stable creation
	// order. Used for identity reconciliation across primary key cycles.
	FindByUnique(ctx context.Context, entityType string, unique map[string]any) ([]domain.Entity, error)
}

// AsOfKey identifies one point-in-time version lookup in a batch.
type AsOfKey struct {
	EntityID uuid.UUID
	At       time.Time
}

// VersionRepository defines the append-only interface for version rows
type VersionRepository interface {
	// Append writes a new version row, assigning its history id. The stored
	// HistoryDate defaults to now when left zero.
	Append(ctx context.Context, version *domain.Version) (*domain.Version, error)
	GetByHistoryID(ctx context.Context, historyID int64) (*domain.Version, error)

	// ListByEntity returns all versions of an entity ordered by history date
	// then history id.
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*domain.Version, error)

	// AsOf returns the version with the greatest history date <= at.
	AsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (*domain.Version, error)

	// AsOfBatch resolves several as-of lookups; results align with keys and
	// hold nil where no version exists at or before the requested time.
	AsOfBatch(ctx context.Context, keys []AsOfKey) ([]*domain.Version, error)

	// CountAsOf counts the entity's versions with history date <= at.
	CountAsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (int64, error)

	// LatestReferencing returns, for every distinct entity of entityType
	// whose refField property pointed at target on or before at, that
	// entity's version with the maximum history id among candidates. Ordered
	// by history id.
	LatestReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) ([]*domain.Version, error)

	// FirstReferencing returns the first version of entityType whose
	// refField property pointed at target on or before at.
	FirstReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) (*domain.Version, error)

	// DeleteNewer prunes versions of the entity strictly newer than after.
	// Pruning is audit-exempt: it records no history of its own.
	DeleteNewer(ctx context.Context, entityID uuid.UUID, after time.Time) (int64, error)
}

// Store bundles the repositories behind a single transactional boundary.
type Store interface {
	Entities() EntityRepository
	Versions() VersionRepository

	// InTx runs fn against a store whose operations commit or roll back as
	// one atomic unit.
	InTx(ctx context.Context, fn func(Store) error) error
}
