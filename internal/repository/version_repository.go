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

// versionRepository implements VersionRepository against Postgres
type versionRepository struct {
	db DBTX
}

const versionColumns = `history_id, entity_id, entity_type, properties, history_date, history_type, reverted_to`

// Append writes a new version row and assigns its history id
func (r *versionRepository) Append(ctx context.Context, version *domain.Version) (*domain.Version, error) {
	propertiesJSON, err := json.Marshal(version.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal version properties: %w", err)
	}

	historyDate := version.HistoryDate
	if historyDate.IsZero() {
		historyDate = time.Now()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO entity_versions (entity_id, entity_type, properties, history_date, history_type, reverted_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+versionColumns,
		version.EntityID, version.EntityType, propertiesJSON, historyDate, string(version.HistoryType), version.RevertedToID,
	)

	appended, err := scanVersion(row)
	if err != nil {
		return nil, fmt.Errorf("failed to append version: %w", err)
	}
	return appended, nil
}

// GetByHistoryID retrieves a version by its surrogate key
func (r *versionRepository) GetByHistoryID(ctx context.Context, historyID int64) (*domain.Version, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM entity_versions
		WHERE history_id = $1`,
		historyID,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("version %d: %w", historyID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

// ListByEntity returns an entity's versions in chronological order
func (r *versionRepository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*domain.Version, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+versionColumns+`
		FROM entity_versions
		WHERE entity_id = $1
		ORDER BY history_date, history_id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	return collectVersions(rows)
}

// AsOf returns the version with the greatest history date <= at
func (r *versionRepository) AsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (*domain.Version, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM entity_versions
		WHERE entity_id = $1 AND history_date <= $2
		ORDER BY history_date DESC, history_id DESC
		LIMIT 1`,
		entityID, at,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entity %s as of %s: %w", entityID, at.Format(time.RFC3339), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve version as of date: %w", err)
	}
	return version, nil
}

// AsOfBatch resolves several as-of lookups in one round over the connection
func (r *versionRepository) AsOfBatch(ctx context.Context, keys []AsOfKey) ([]*domain.Version, error) {
	results := make([]*domain.Version, len(keys))
	for i, key := range keys {
		version, err := r.AsOf(ctx, key.EntityID, key.At)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		results[i] = version
	}
	return results, nil
}

// CountAsOf counts versions with history date <= at
func (r *versionRepository) CountAsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM entity_versions
		WHERE entity_id = $1 AND history_date <= $2`,
		entityID, at,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return count, nil
}

// LatestReferencing selects, per distinct referencing entity, the candidate
// version with the maximum history id. Grouping is by the referencing
// entity's own primary key rather than history id so that key reuse after
// delete/recreate cycles still yields at most one version per identity.
func (r *versionRepository) LatestReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) ([]*domain.Version, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+qualifiedVersionColumns("v")+`
		FROM entity_versions v
		JOIN (
			SELECT max(history_id) AS history_id
			FROM entity_versions
			WHERE entity_type = $1
			  AND properties->>$2 = $3
			  AND history_date <= $4
			GROUP BY entity_id
		) latest ON latest.history_id = v.history_id
		ORDER BY v.history_id`,
		entityType, refField, target.String(), at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reverse relation set: %w", err)
	}
	defer rows.Close()

	return collectVersions(rows)
}

// FirstReferencing resolves a one-to-one reverse relation
func (r *versionRepository) FirstReferencing(ctx context.Context, entityType, refField string, target uuid.UUID, at time.Time) (*domain.Version, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM entity_versions
		WHERE entity_type = $1
		  AND properties->>$2 = $3
		  AND history_date <= $4
		ORDER BY history_id
		LIMIT 1`,
		entityType, refField, target.String(), at,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no %s version referencing %s via %s: %w", entityType, target, refField, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve reverse relation: %w", err)
	}
	return version, nil
}

// DeleteNewer prunes versions strictly newer than after, without audit
func (r *versionRepository) DeleteNewer(ctx context.Context, entityID uuid.UUID, after time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM entity_versions
		WHERE entity_id = $1 AND history_date > $2`,
		entityID, after,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune newer versions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func qualifiedVersionColumns(alias string) string {
	return alias + ".history_id, " + alias + ".entity_id, " + alias + ".entity_type, " +
		alias + ".properties, " + alias + ".history_date, " + alias + ".history_type, " + alias + ".reverted_to"
}

func collectVersions(rows pgx.Rows) ([]*domain.Version, error) {
	var versions []*domain.Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version rows: %w", err)
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (*domain.Version, error) {
	var (
		historyID      int64
		entityID       uuid.UUID
		entityType     string
		propertiesJSON json.RawMessage
		historyDate    time.Time
		historyType    string
		revertedTo     *int64
	)
	if err := row.Scan(&historyID, &entityID, &entityType, &propertiesJSON, &historyDate, &historyType, &revertedTo); err != nil {
		return nil, err
	}

	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode properties for version %d: %w", historyID, err)
	}

	return &domain.Version{
		HistoryID:    historyID,
		EntityID:     entityID,
		EntityType:   entityType,
		Properties:   properties,
		HistoryDate:  historyDate,
		HistoryType:  domain.ChangeType(historyType),
		RevertedToID: revertedTo,
	}, nil
}
