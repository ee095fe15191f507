package revert

import (
	"context"
	"fmt"
	"log"

	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/history"
	"github.com/rpattn/trackchanges/internal/repository"
)

// Options controls a single revert invocation.
type Options struct {
	// DeleteNewerVersions prunes every version strictly newer than the one
	// being reverted to. The pruning itself is audit-exempt.
	DeleteNewerVersions bool
}

// Engine restores a past version as the new current state of its entity.
// The whole sequence — identity reconciliation, optional pruning, save or
// delete — runs as one atomic unit at the storage boundary, and every revert
// produces exactly one new version with its reverted-to link populated.
type Engine struct {
	service *history.Service
}

// NewEngine creates a revert engine over the history service.
func NewEngine(service *history.Service) *Engine {
	return &Engine{service: service}
}

// RevertTo restores the given version. If the version is a deleted snapshot
// the live entity is deleted again (recording a new deletion version that
// references the target); otherwise the snapshot is saved as the live state
// and a reverted version is recorded.
func (e *Engine) RevertTo(ctx context.Context, version *domain.Version, opts Options) (*domain.Version, error) {
	schema, ok := e.service.Tracker().Schema(version.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", history.ErrNotTracked, version.EntityType)
	}

	var result *domain.Version
	err := e.service.Store().InTx(ctx, func(txStore repository.Store) error {
		service := e.service.WithStore(txStore)

		entity := version.Snapshot()

		// The snapshot's pk may have cycled if the entity was deleted and
		// recreated. Reconcile against the current live row matching the
		// uniqueness fields so the save updates instead of tripping a
		// uniqueness violation.
		unique := uniqueProperties(schema, entity)
		if len(unique) > 0 {
			matches, err := txStore.Entities().FindByUnique(ctx, entity.EntityType, unique)
			if err != nil {
				return err
			}
			if len(matches) > 1 {
				// Multiple live rows sharing uniqueness fields is a data
				// integrity condition; the first match is used but never
				// silently.
				log.Printf("[REVERT] warning: %d live %s rows match uniqueness fields %v, using %s",
					len(matches), entity.EntityType, unique, matches[0].ID)
			}
			if len(matches) > 0 {
				entity = entity.WithID(matches[0].ID)
			}
		}

		if opts.DeleteNewerVersions {
			if _, err := txStore.Versions().DeleteNewer(ctx, version.EntityID, version.HistoryDate); err != nil {
				return err
			}
			if entity.ID != version.EntityID {
				// The pk cycled; newer versions may sit under the live id.
				if _, err := txStore.Versions().DeleteNewer(ctx, entity.ID, version.HistoryDate); err != nil {
					return err
				}
			}
		}

		if version.HistoryType == domain.ChangeTypeDeleted {
			// Reverting to a deleted snapshot means deleting the entity.
			deleted, err := service.DeleteReverted(ctx, entity, version.HistoryID)
			if err != nil {
				return err
			}
			result = deleted
			return nil
		}

		_, reverted, err := service.SaveReverted(ctx, entity, version.HistoryID)
		if err != nil {
			return err
		}
		result = reverted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func uniqueProperties(schema domain.Schema, entity domain.Entity) map[string]any {
	unique := make(map[string]any)
	for _, field := range schema.UniqueFields() {
		if value, ok := entity.Properties[field.Name]; ok && value != nil {
			unique[field.Name] = value
		}
	}
	return unique
}
