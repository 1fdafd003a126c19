package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/wavecrate/wavecrate/internal/asset"
	"github.com/wavecrate/wavecrate/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL. Snapshots are
// serialized as JSONB; changed fields as a text array.
//
// Expected schema:
//
//	CREATE TABLE audit_entries (
//	    id             TEXT PRIMARY KEY,
//	    asset_id       TEXT NOT NULL,
//	    operation      TEXT NOT NULL CHECK (operation IN
//	        ('create','update','delete','status_change')),
//	    user_id        TEXT,
//	    before         JSONB,
//	    after          JSONB,
//	    changed_fields TEXT[] NOT NULL DEFAULT '{}',
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX audit_entries_asset_idx ON audit_entries (asset_id, created_at DESC);
//
// There is intentionally no UPDATE or DELETE statement in this file.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a new entry.
func (r *PostgresRepository) Append(ctx context.Context, entry *Entry) error {
	stored := entry.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.ID == "" {
		stored.ID = NewEntryID(stored.AssetID, stored.CreatedAt)
	}

	before, err := marshalSnapshot(stored.Before)
	if err != nil {
		return fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := marshalSnapshot(stored.After)
	if err != nil {
		return fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_entries", tracing.DBOperationInsert)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, asset_id, operation, user_id, before, after, changed_fields, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		stored.ID, stored.AssetID, string(stored.Operation), stored.UserID,
		before, after, pq.Array(stored.ChangedFields), stored.CreatedAt)
	endSpan(err)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to append audit entry",
			slog.String("asset_id", stored.AssetID),
			slog.String("operation", string(stored.Operation)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByAsset retrieves entries for an asset, newest first.
func (r *PostgresRepository) ListByAsset(ctx context.Context, assetID string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, asset_id, operation, user_id, before, after, changed_fields, created_at
		 FROM audit_entries WHERE asset_id = $1 ORDER BY created_at DESC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	results := make([]*Entry, 0)
	for rows.Next() {
		var entry Entry
		var operation string
		var userID sql.NullString
		var before, after []byte
		var changed pq.StringArray

		if err := rows.Scan(&entry.ID, &entry.AssetID, &operation, &userID,
			&before, &after, &changed, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Operation = Operation(operation)
		if userID.Valid {
			entry.UserID = &userID.String
		}
		if entry.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, err
		}
		if entry.After, err = unmarshalSnapshot(after); err != nil {
			return nil, err
		}
		entry.ChangedFields = []string(changed)
		results = append(results, &entry)
	}
	return results, rows.Err()
}

func marshalSnapshot(s asset.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (asset.Snapshot, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s asset.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}
