package asset

import (
	"context"
	"errors"
	"log/slog"
)

// FallbackReader is a two-tier read policy: reads go to the primary store
// first and degrade to a static fallback source when the primary fails.
// A miss on the primary (ErrAssetNotFound) is authoritative and does not
// consult the fallback; only store-level failures trigger the second tier.
type FallbackReader struct {
	primary  Reader
	fallback Reader
	logger   *slog.Logger
}

// NewFallbackReader creates a FallbackReader over the given tiers.
func NewFallbackReader(primary, fallback Reader, logger *slog.Logger) *FallbackReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackReader{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// GetByID reads from the primary store, falling back to the static source
// on store failure.
func (f *FallbackReader) GetByID(ctx context.Context, id string) (*Asset, error) {
	a, err := f.primary.GetByID(ctx, id)
	if err == nil {
		return a, nil
	}
	if errors.Is(err, ErrAssetNotFound) {
		return nil, ErrAssetNotFound
	}

	f.logger.WarnContext(ctx, "primary asset read failed, using fallback source",
		"asset_id", id, "error", err)
	return f.fallback.GetByID(ctx, id)
}

// List reads all assets from the primary store, falling back to the static
// source on store failure.
func (f *FallbackReader) List(ctx context.Context) ([]*Asset, error) {
	assets, err := f.primary.List(ctx)
	if err == nil {
		return assets, nil
	}

	f.logger.WarnContext(ctx, "primary asset list failed, using fallback source",
		"error", err)
	return f.fallback.List(ctx)
}
