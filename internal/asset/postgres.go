package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wavecrate/wavecrate/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE assets (
//	    id             TEXT PRIMARY KEY,
//	    title          TEXT NOT NULL,
//	    artist         TEXT NOT NULL,
//	    bpm            INTEGER,
//	    key_sig        TEXT,
//	    price_amount   NUMERIC(12,2) NOT NULL DEFAULT 0,
//	    price_currency CHAR(3) NOT NULL,
//	    status         TEXT NOT NULL CHECK (status IN
//	        ('draft','published','archived','processing','ready','error')),
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
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

// updateColumns maps normalized update field names to table columns.
var updateColumns = map[string]string{
	"title":         "title",
	"artist":        "artist",
	"bpm":           "bpm",
	"keySig":        "key_sig",
	"priceAmount":   "price_amount",
	"priceCurrency": "price_currency",
	"status":        "status",
}

const assetSelectColumns = "id, title, artist, bpm, key_sig, price_amount, price_currency, status, created_at, updated_at"

// GetByID retrieves an asset by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Asset, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "assets", tracing.DBOperationQuery)
	row := r.db.QueryRowContext(ctx,
		"SELECT "+assetSelectColumns+" FROM assets WHERE id = $1", id)
	a, err := scanAsset(row)
	endSpan(err)
	return a, err
}

// List returns all assets.
func (r *PostgresRepository) List(ctx context.Context) ([]*Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assetSelectColumns+" FROM assets")
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var results []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Insert adds a new asset row.
func (r *PostgresRepository) Insert(ctx context.Context, a *Asset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (id, title, artist, bpm, key_sig, price_amount, price_currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Title, a.Artist, a.BPM, a.KeySig, a.PriceAmount, a.PriceCurrency, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrAssetExists
		}
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// UpdateFields merges the normalized fields into the asset row in a single
// UPDATE statement, which postgres applies atomically per row.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, fields map[string]any, now time.Time) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	args = append(args, id)

	for name, value := range fields {
		column, ok := updateColumns[name]
		if !ok {
			continue
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, now)
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)))

	query := "UPDATE assets SET " + strings.Join(setClauses, ", ") + " WHERE id = $1"
	ctx, endSpan := tracing.StartDBSpan(ctx, "assets", tracing.DBOperationUpdate)
	result, err := r.db.ExecContext(ctx, query, args...)
	endSpan(err)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to update asset",
			slog.String("asset_id", id),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to update asset: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// Delete removes an asset row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM assets WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// scannable abstracts *sql.Row and *sql.Rows for scanAsset.
type scannable interface {
	Scan(dest ...any) error
}

func scanAsset(row scannable) (*Asset, error) {
	var a Asset
	var bpm sql.NullInt64
	var keySig sql.NullString
	var status string

	err := row.Scan(&a.ID, &a.Title, &a.Artist, &bpm, &keySig,
		&a.PriceAmount, &a.PriceCurrency, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	if bpm.Valid {
		v := int(bpm.Int64)
		a.BPM = &v
	}
	if keySig.Valid {
		a.KeySig = &keySig.String
	}
	a.Status = Status(status)
	a.PriceCurrency = strings.TrimSpace(a.PriceCurrency)
	return &a, nil
}
