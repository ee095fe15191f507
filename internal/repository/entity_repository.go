package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/trackchanges/internal/domain"
)

// entityRepository implements EntityRepository against Postgres
type entityRepository struct {
	db DBTX
}

// Create creates a new live entity row, keeping the caller-supplied id
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO entities (id, entity_type, properties, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, entity_type, properties, created_at, updated_at`,
		entity.ID, entity.EntityType, propertiesJSON,
	)

	created, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return created, nil
}

// GetByID retrieves a live entity by id
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, entity_type, properties, created_at, updated_at
		FROM entities
		WHERE id = $1`,
		id,
	)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
		return domain.Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// Update updates a live entity row
func (r *entityRepository) Update(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE entities
		SET entity_type = $2, properties = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, entity_type, properties, created_at, updated_at`,
		entity.ID, entity.EntityType, propertiesJSON,
	)

	updated, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("entity %s: %w", entity.ID, ErrNotFound)
		}
		return domain.Entity{}, fmt.Errorf("failed to update entity: %w", err)
	}
	return updated, nil
}

// Delete removes a live entity row
func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindByUnique looks up live entities by uniqueness-field containment
func (r *entityRepository) FindByUnique(ctx context.Context, entityType string, unique map[string]any) ([]domain.Entity, error) {
	if len(unique) == 0 {
		return []domain.Entity{}, nil
	}

	filterJSON, err := json.Marshal(unique)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal uniqueness filter: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, entity_type, properties, created_at, updated_at
		FROM entities
		WHERE entity_type = $1 AND properties @> $2::jsonb
		ORDER BY created_at, id`,
		entityType, filterJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities by uniqueness fields: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entity rows: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		id             uuid.UUID
		entityType     string
		propertiesJSON json.RawMessage
		createdAt      time.Time
		updatedAt      time.Time
	)
	if err := row.Scan(&id, &entityType, &propertiesJSON, &createdAt, &updatedAt); err != nil {
		return domain.Entity{}, err
	}

	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode properties for entity %s: %w", id, err)
	}

	return domain.Entity{
		ID:         id,
		EntityType: entityType,
		Properties: properties,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}
