package mutation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/wavecrate/wavecrate/internal/asset"
	"github.com/wavecrate/wavecrate/internal/audit"
	"github.com/wavecrate/wavecrate/internal/idempotency"
)

type pipelineFixture struct {
	pipeline *Pipeline
	assets   *asset.InMemoryRepository
	audit    *audit.InMemoryRepository
	cache    *idempotency.InMemoryRepository
	now      time.Time
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		assets: asset.NewFixtureRepository(),
		audit:  audit.NewInMemoryRepository(),
		cache:  idempotency.NewInMemoryRepository(),
		now:    time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	f.pipeline = NewPipeline(PipelineConfig{
		Assets: f.assets,
		Audit:  f.audit,
		Cache:  f.cache,
		Now:    func() time.Time { return f.now },
	})
	return f
}

func (f *pipelineFixture) auditEntries(t *testing.T, assetID string) []*audit.Entry {
	t.Helper()
	entries, err := f.audit.ListByAsset(context.Background(), assetID)
	if err != nil {
		t.Fatalf("ListByAsset() error = %v", err)
	}
	return entries
}

func TestApplyUpdate_Success(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Renamed", "bpm": float64(126)}, "key-1", "did:plc:alice")
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	if result.Replayed {
		t.Error("Replayed = true, want false on first application")
	}
	if result.Asset.Title != "Renamed" {
		t.Errorf("Asset.Title = %q, want Renamed", result.Asset.Title)
	}
	if !result.Asset.UpdatedAt.Equal(f.now) {
		t.Errorf("Asset.UpdatedAt = %v, want %v", result.Asset.UpdatedAt, f.now)
	}

	// The response bytes decode back to the returned asset
	var decoded asset.Asset
	if err := json.Unmarshal(result.Response, &decoded); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if decoded.Title != "Renamed" {
		t.Errorf("Response title = %q, want Renamed", decoded.Title)
	}

	// One audit entry with the right diff
	entries := f.auditEntries(t, "A1")
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Operation != audit.OpUpdate {
		t.Errorf("Operation = %q, want %q", entry.Operation, audit.OpUpdate)
	}
	if entry.UserID == nil || *entry.UserID != "did:plc:alice" {
		t.Errorf("UserID = %v, want did:plc:alice", entry.UserID)
	}
	if len(entry.ChangedFields) != 2 || entry.ChangedFields[0] != "bpm" || entry.ChangedFields[1] != "title" {
		t.Errorf("ChangedFields = %v, want [bpm title] sorted", entry.ChangedFields)
	}
	if entry.Before["title"] != "Midnight Drive" {
		t.Errorf("Before[title] = %v, want original value", entry.Before["title"])
	}
	if entry.After["title"] != "Renamed" {
		t.Errorf("After[title] = %v, want Renamed", entry.After["title"])
	}
}

func TestApplyUpdate_ReplayIsByteIdentical(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "First"}, "key-1", "")
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	// The retry carries a different body; the cached response still wins.
	second, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Second"}, "key-1", "")
	if err != nil {
		t.Fatalf("ApplyUpdate() replay error = %v", err)
	}

	if !second.Replayed {
		t.Error("Replayed = false, want true on retry")
	}
	if !bytes.Equal(first.Response, second.Response) {
		t.Errorf("replayed response differs:\n%s\n%s", first.Response, second.Response)
	}

	// The replay had no visible effect: one audit entry, title unchanged
	entries := f.auditEntries(t, "A1")
	if len(entries) != 1 {
		t.Errorf("audit entries = %d, want 1 after replay", len(entries))
	}
	a, _ := f.assets.GetByID(ctx, "A1")
	if a.Title != "First" {
		t.Errorf("Title = %q, want First (replay must not reapply)", a.Title)
	}
}

func TestApplyUpdate_DifferentKeysApplySeparately(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	if _, err := f.pipeline.ApplyUpdate(ctx, "A1", map[string]any{"title": "One"}, "key-1", ""); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if _, err := f.pipeline.ApplyUpdate(ctx, "A1", map[string]any{"title": "Two"}, "key-2", ""); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	a, _ := f.assets.GetByID(ctx, "A1")
	if a.Title != "Two" {
		t.Errorf("Title = %q, want Two", a.Title)
	}
	if entries := f.auditEntries(t, "A1"); len(entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(entries))
	}
}

func TestApplyUpdate_ExpiredRecordIsDiscarded(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// Seed a cached response stored beyond the TTL
	stale := []byte(`{"id":"A1","title":"Stale"}`)
	if err := f.cache.Put(ctx, &idempotency.Record{
		Key:      "key-1",
		Response: stale,
		StoredAt: f.now.Add(-idempotency.TTL - time.Hour),
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	result, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Fresh"}, "key-1", "")
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	if result.Replayed {
		t.Error("Replayed = true, want fresh application after TTL expiry")
	}
	if bytes.Equal(result.Response, stale) {
		t.Error("ApplyUpdate() served the expired cached response")
	}
	a, _ := f.assets.GetByID(ctx, "A1")
	if a.Title != "Fresh" {
		t.Errorf("Title = %q, want Fresh", a.Title)
	}
}

func TestApplyUpdate_MissingKey(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.ApplyUpdate(ctx, "A1", map[string]any{"title": "X"}, "", "")
	if err != ErrMissingIdempotencyKey {
		t.Fatalf("ApplyUpdate() error = %v, want %v", err, ErrMissingIdempotencyKey)
	}

	// No side effects at all
	a, _ := f.assets.GetByID(ctx, "A1")
	if a.Title != "Midnight Drive" {
		t.Errorf("Title = %q, want unchanged", a.Title)
	}
	if entries := f.auditEntries(t, "A1"); len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(entries))
	}
}

func TestApplyUpdate_KeyTooLong(t *testing.T) {
	f := newPipelineFixture(t)

	longKey := string(make([]byte, idempotency.MaxKeyLength+1))
	_, err := f.pipeline.ApplyUpdate(context.Background(), "A1",
		map[string]any{"title": "X"}, longKey, "")
	if KindOf(err) != KindClientInput {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindClientInput)
	}
}

func TestApplyUpdate_AssetNotFound(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.pipeline.ApplyUpdate(context.Background(), "missing",
		map[string]any{"title": "X"}, "key-1", "")
	if err != ErrAssetNotFound {
		t.Errorf("ApplyUpdate() error = %v, want %v", err, ErrAssetNotFound)
	}
	if entries := f.auditEntries(t, "missing"); len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(entries))
	}
}

func TestApplyUpdate_ValidationFailure(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Valid", "bpm": float64(-3)}, "key-1", "")
	if KindOf(err) != KindValidation {
		t.Fatalf("KindOf() = %v, want %v", KindOf(err), KindValidation)
	}
	details := DetailsOf(err)
	if _, ok := details["bpm"]; !ok {
		t.Errorf("DetailsOf() = %v, want bpm entry", details)
	}

	// The valid sibling field must not have been applied
	a, _ := f.assets.GetByID(ctx, "A1")
	if a.Title == "Valid" {
		t.Error("partial update applied despite validation failure")
	}
	if entries := f.auditEntries(t, "A1"); len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(entries))
	}

	// The failed attempt must not consume the key
	result, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Valid"}, "key-1", "")
	if err != nil {
		t.Fatalf("ApplyUpdate() retry error = %v", err)
	}
	if result.Replayed {
		t.Error("Replayed = true, want fresh application after failed attempt")
	}
}

func TestApplyUpdate_NoEffectiveFields(t *testing.T) {
	f := newPipelineFixture(t)

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"empty body", map[string]any{}},
		{"only unknown fields", map[string]any{"genre": "synthwave", "id": "A9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.ApplyUpdate(context.Background(), "A1", tt.fields, "key-"+tt.name, "")
			if err != ErrNoFieldsToUpdate {
				t.Errorf("ApplyUpdate() error = %v, want %v", err, ErrNoFieldsToUpdate)
			}
		})
	}
}

func TestApplyUpdate_StatusChangeOperation(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	if _, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"status": "published", "title": "Also renamed"}, "key-1", ""); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	entries := f.auditEntries(t, "A1")
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Operation != audit.OpStatusChange {
		t.Errorf("Operation = %q, want %q when status is among the changes", entries[0].Operation, audit.OpStatusChange)
	}
}

func TestApplyUpdate_NoopUpdateStillRecorded(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// Writing the current value back changes nothing but updatedAt
	if _, err := f.pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Midnight Drive"}, "key-1", ""); err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}

	entries := f.auditEntries(t, "A1")
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if len(entries[0].ChangedFields) != 0 {
		t.Errorf("ChangedFields = %v, want empty for a no-op write", entries[0].ChangedFields)
	}
}

// failingAuditRepo simulates a broken audit store.
type failingAuditRepo struct{}

func (f *failingAuditRepo) Append(ctx context.Context, entry *audit.Entry) error {
	return errors.New("audit store unavailable")
}

func (f *failingAuditRepo) ListByAsset(ctx context.Context, assetID string) ([]*audit.Entry, error) {
	return nil, errors.New("audit store unavailable")
}

func TestApplyUpdate_AuditFailureDoesNotFailMutation(t *testing.T) {
	assets := asset.NewFixtureRepository()
	pipeline := NewPipeline(PipelineConfig{
		Assets: assets,
		Audit:  &failingAuditRepo{},
		Cache:  idempotency.NewInMemoryRepository(),
	})
	ctx := context.Background()

	result, err := pipeline.ApplyUpdate(ctx, "A1",
		map[string]any{"title": "Still applied"}, "key-1", "")
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v, want audit failure swallowed", err)
	}
	if result.Asset.Title != "Still applied" {
		t.Errorf("Asset.Title = %q, want Still applied", result.Asset.Title)
	}

	a, _ := assets.GetByID(ctx, "A1")
	if a.Title != "Still applied" {
		t.Errorf("Title = %q, want mutation committed", a.Title)
	}
}

func TestChangedFields(t *testing.T) {
	tests := []struct {
		name   string
		before asset.Snapshot
		after  asset.Snapshot
		want   []string
	}{
		{
			name:   "no changes",
			before: asset.Snapshot{"title": "A", "bpm": 120},
			after:  asset.Snapshot{"title": "A", "bpm": 120},
			want:   []string{},
		},
		{
			name:   "value change",
			before: asset.Snapshot{"title": "A"},
			after:  asset.Snapshot{"title": "B"},
			want:   []string{"title"},
		},
		{
			name:   "nil to value",
			before: asset.Snapshot{"bpm": nil},
			after:  asset.Snapshot{"bpm": 120},
			want:   []string{"bpm"},
		},
		{
			name:   "key only on one side",
			before: asset.Snapshot{"title": "A"},
			after:  asset.Snapshot{"title": "A", "keySig": "Am"},
			want:   []string{"keySig"},
		},
		{
			name:   "multiple changes sorted",
			before: asset.Snapshot{"title": "A", "artist": "X", "bpm": 100},
			after:  asset.Snapshot{"title": "B", "artist": "Y", "bpm": 100},
			want:   []string{"artist", "title"},
		},
		{
			name:   "numeric type matters",
			before: asset.Snapshot{"priceAmount": float64(10)},
			after:  asset.Snapshot{"priceAmount": float64(10)},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChangedFields(tt.before, tt.after)
			if len(got) != len(tt.want) {
				t.Fatalf("ChangedFields() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("ChangedFields() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
