package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/repository"
)

// ErrVersionNotFound is returned when a versioned relationship resolves to
// zero candidates: the reference predates any tracked history of the related
// entity. Outgoing and one-to-one reverse lookups fail loudly with it; a
// one-to-many reverse lookup with no candidates is a normal empty set.
var ErrVersionNotFound = errors.New("temporal: no version at or before requested time")

// Registry is the view of the versioned-type registry the resolver needs.
// *history.Tracker satisfies it.
type Registry interface {
	Schema(entityType string) (domain.Schema, bool)
	IsVersioned(entityType string) bool
	Types() []string
}

// Resolver makes a version's relationship attributes return historically
// correct related data: following a relationship from a snapshot at time T
// yields the related entity's state as it was at T, not its current state.
type Resolver struct {
	registry Registry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Wrap installs relationship state on one version: outgoing references to
// versioned types are replaced with their proper historical versions
// (resolved eagerly, since the target identity is already known), and a lazy
// accessor is installed per reverse relation. Targets whose type is not
// versioned are left as raw identifiers.
func (r *Resolver) Wrap(ctx context.Context, store repository.Store, version *domain.Version) error {
	loader := newVersionLoader(store)
	return r.wrap(ctx, store, loader, version, map[int64]struct{}{})
}

// WrapAll wraps a batch of versions sharing one loader, so identical as-of
// lookups across the batch collapse into single queries.
func (r *Resolver) WrapAll(ctx context.Context, store repository.Store, versions []*domain.Version) error {
	loader := newVersionLoader(store)

	// Prime every outgoing lookup first so the loader sees the whole batch
	// before any thunk is forced.
	for _, version := range versions {
		schema, ok := r.registry.Schema(version.EntityType)
		if !ok {
			continue
		}
		for _, field := range schema.ReferenceFields() {
			if !r.registry.IsVersioned(field.ReferenceEntityType) {
				continue
			}
			if targetID, ok := version.Reference(field.Name); ok {
				loader.Prime(ctx, targetID, version.HistoryDate)
			}
		}
	}

	seen := map[int64]struct{}{}
	for _, version := range versions {
		if err := r.wrap(ctx, store, loader, version, seen); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) wrap(ctx context.Context, store repository.Store, loader *versionLoader, version *domain.Version, seen map[int64]struct{}) error {
	if _, done := seen[version.HistoryID]; done {
		return nil
	}
	seen[version.HistoryID] = struct{}{}

	schema, ok := r.registry.Schema(version.EntityType)
	if !ok {
		// Not a tracked type; nothing to resolve against.
		return nil
	}

	if err := r.wrapOutgoing(ctx, store, loader, version, schema, seen); err != nil {
		return err
	}
	r.installReverse(ctx, store, version)
	return nil
}

func (r *Resolver) wrapOutgoing(ctx context.Context, store repository.Store, loader *versionLoader, version *domain.Version, schema domain.Schema, seen map[int64]struct{}) error {
	for _, field := range schema.ReferenceFields() {
		if !r.registry.IsVersioned(field.ReferenceEntityType) {
			// No history to resolve against; the raw reference stays.
			continue
		}

		targetID, ok := version.Reference(field.Name)
		if !ok {
			continue
		}

		target, err := loader.AsOf(ctx, targetID, version.HistoryDate)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("%s.%s references %s %s as of %s: %w",
				version.EntityType, field.Name, field.ReferenceEntityType, targetID,
				version.HistoryDate.Format(time.RFC3339), ErrVersionNotFound)
		}

		if err := r.wrap(ctx, store, loader, target, seen); err != nil {
			return err
		}
		version.SetResolvedReference(field.Name, target)
	}
	return nil
}

// installReverse installs one lazy accessor per versioned relation pointing
// back at this entity type. Nothing touches the database until an accessor
// is forced, and each accessor evaluates at most once.
func (r *Resolver) installReverse(ctx context.Context, store repository.Store, version *domain.Version) {
	installed := map[string]struct{}{}

	for _, relType := range r.registry.Types() {
		relSchema, ok := r.registry.Schema(relType)
		if !ok {
			continue
		}

		for _, field := range relSchema.ReferencesTo(version.EntityType) {
			accessor := r.accessorName(relType, field, installed)
			installed[accessor] = struct{}{}

			if field.Unique {
				version.SetReverseOne(accessor, r.reverseOne(ctx, store, version, relType, field))
			} else {
				version.SetReverseSet(accessor, r.reverseSet(ctx, store, version, relType, field))
			}
		}
	}
}

func (r *Resolver) reverseSet(ctx context.Context, store repository.Store, version *domain.Version, relType string, field domain.FieldDefinition) *domain.Lazy[[]*domain.Version] {
	return domain.NewLazy(func() ([]*domain.Version, error) {
		// One version per distinct related identity: candidates are grouped
		// by the related entity's own primary key and the max history id
		// wins within each group.
		related, err := store.Versions().LatestReferencing(ctx, relType, field.Name, version.EntityID, version.HistoryDate)
		if err != nil {
			return nil, err
		}
		if err := r.WrapAll(ctx, store, related); err != nil {
			return nil, err
		}
		if related == nil {
			related = []*domain.Version{}
		}
		return related, nil
	})
}

func (r *Resolver) reverseOne(ctx context.Context, store repository.Store, version *domain.Version, relType string, field domain.FieldDefinition) *domain.Lazy[*domain.Version] {
	return domain.NewLazy(func() (*domain.Version, error) {
		related, err := store.Versions().FirstReferencing(ctx, relType, field.Name, version.EntityID, version.HistoryDate)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%s has no %s referencing it via %s as of %s: %w",
					version.EntityID, relType, field.Name,
					version.HistoryDate.Format(time.RFC3339), ErrVersionNotFound)
			}
			return nil, err
		}
		if err := r.Wrap(ctx, store, related); err != nil {
			return nil, err
		}
		return related, nil
	})
}

// accessorName derives the reverse accessor name: the related type for
// one-to-one relations, "<type>_set" for sets, disambiguated with the field
// name when one type holds several references to the same target.
func (r *Resolver) accessorName(relType string, field domain.FieldDefinition, installed map[string]struct{}) string {
	name := relType
	if !field.Unique {
		name += "_set"
	}
	if _, taken := installed[name]; !taken {
		return name
	}
	if field.Unique {
		return relType + "_" + field.Name
	}
	return relType + "_" + field.Name + "_set"
}
