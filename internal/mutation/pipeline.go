package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/wavecrate/wavecrate/internal/asset"
	"github.com/wavecrate/wavecrate/internal/audit"
	"github.com/wavecrate/wavecrate/internal/idempotency"
	"github.com/wavecrate/wavecrate/internal/tracing"
)

// Result is the outcome of a successful ApplyUpdate. Response is the exact
// JSON payload to return to the caller; a replayed request carries the
// first request's payload byte for byte.
type Result struct {
	Asset    *asset.Asset
	Response []byte
	Replayed bool
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Assets asset.Repository
	Audit  audit.Repository
	Cache  idempotency.Repository
	Logger *slog.Logger

	// Metrics is optional; a nil Metrics records nothing.
	Metrics *Metrics

	// Now overrides the clock, for tests. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Pipeline applies partial updates to catalog assets with at-most-once
// visible effect per idempotency key, an immutable audit trail, and no side
// effects on any error path before the store write.
type Pipeline struct {
	assets  asset.Repository
	audit   audit.Repository
	cache   idempotency.Repository
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewPipeline creates a mutation pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		assets:  cfg.Assets,
		audit:   cfg.Audit,
		cache:   cfg.Cache,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// ApplyUpdate applies a partial update to the asset identified by assetID.
// fields is the raw partial body as decoded from JSON; key is the
// caller-supplied idempotency key; actorID is the optional identity for
// audit attribution (empty means anonymous).
//
// A request replayed with a key whose cached response is still live returns
// that response unchanged with no further side effects.
func (p *Pipeline) ApplyUpdate(ctx context.Context, assetID string, fields map[string]any, key, actorID string) (retResult *Result, retErr error) {
	ctx, endSpan := tracing.StartSpan(ctx, "apply_update")
	defer func() { endSpan(retErr) }()

	if key == "" {
		p.metrics.RecordMutation(string(KindClientInput))
		return nil, ErrMissingIdempotencyKey
	}
	if err := idempotency.ValidateKey(key); err != nil {
		p.metrics.RecordMutation(string(KindClientInput))
		return nil, &Error{Kind: KindClientInput, Message: err.Error()}
	}

	// Serve a live cached response; discard an expired one and continue as
	// a fresh request.
	if cached, err := p.cache.Get(ctx, key); err == nil {
		if !cached.Expired(p.now()) {
			p.metrics.RecordReplay()
			p.metrics.RecordMutation("replayed")
			result := &Result{Response: cached.Response, Replayed: true}
			var a asset.Asset
			if err := json.Unmarshal(cached.Response, &a); err == nil {
				result.Asset = &a
			}
			return result, nil
		}
		if err := p.cache.Delete(ctx, key); err != nil {
			p.logger.WarnContext(ctx, "failed to discard expired idempotency record",
				"key", key, "error", err)
		}
	} else if !errors.Is(err, idempotency.ErrKeyNotFound) {
		// A broken cache must not block mutations; treat as a miss.
		p.logger.WarnContext(ctx, "idempotency cache read failed",
			"key", key, "error", err)
	}

	before, err := p.assets.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			p.metrics.RecordMutation(string(KindNotFound))
			return nil, ErrAssetNotFound
		}
		p.metrics.RecordMutation(string(KindInternal))
		return nil, InternalError("failed to load asset", err)
	}

	normalized, details := asset.ValidateUpdate(fields)
	if len(details) > 0 {
		p.metrics.RecordMutation(string(KindValidation))
		return nil, ValidationFailed(details)
	}
	if len(normalized) == 0 {
		p.metrics.RecordMutation(string(KindClientInput))
		return nil, ErrNoFieldsToUpdate
	}

	now := p.now()
	if err := p.assets.UpdateFields(ctx, assetID, normalized, now); err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			p.metrics.RecordMutation(string(KindNotFound))
			return nil, ErrAssetNotFound
		}
		p.metrics.RecordMutation(string(KindInternal))
		return nil, InternalError("failed to update asset", err)
	}

	// Re-read the authoritative post-update row rather than trusting the
	// local merge; another writer may have interleaved.
	after, err := p.assets.GetByID(ctx, assetID)
	if err != nil {
		p.metrics.RecordMutation(string(KindInternal))
		return nil, InternalError("failed to reload asset after update", err)
	}

	beforeSnap := before.Snapshot()
	afterSnap := after.Snapshot()
	changed := ChangedFields(beforeSnap, afterSnap)

	operation := audit.OpUpdate
	if containsField(changed, "status") {
		operation = audit.OpStatusChange
	}

	p.appendAudit(ctx, &audit.Entry{
		AssetID:       assetID,
		Operation:     operation,
		UserID:        optionalActor(actorID),
		Before:        beforeSnap,
		After:         afterSnap,
		ChangedFields: changed,
		CreatedAt:     now,
	})

	// Final shape check guards against type drift at the storage layer.
	if err := after.Validate(); err != nil {
		p.metrics.RecordMutation(string(KindInternal))
		return nil, InternalError("updated asset failed shape validation", err)
	}

	response, err := json.Marshal(after)
	if err != nil {
		p.metrics.RecordMutation(string(KindInternal))
		return nil, InternalError("failed to encode asset response", err)
	}

	if err := p.cache.Put(ctx, &idempotency.Record{
		Key:      key,
		Response: response,
		StoredAt: now,
	}); err != nil {
		if errors.Is(err, idempotency.ErrKeyExists) {
			// A concurrent request with the same key won the cache write.
			// Our mutation already committed, so return our own response.
			p.logger.InfoContext(ctx, "idempotency record already stored by concurrent request",
				"key", key)
		} else {
			p.logger.WarnContext(ctx, "failed to cache idempotent response",
				"key", key, "error", err)
		}
	}

	if evicted, err := p.cache.Sweep(ctx, p.now()); err == nil {
		p.metrics.RecordEvictions(evicted)
	} else {
		p.logger.WarnContext(ctx, "idempotency sweep failed", "error", err)
	}

	p.metrics.RecordMutation("applied")
	return &Result{Asset: after, Response: response}, nil
}

// appendAudit appends an entry, swallowing failures: the asset mutation has
// already committed and its durability does not depend on the log.
func (p *Pipeline) appendAudit(ctx context.Context, entry *audit.Entry) {
	if err := p.audit.Append(ctx, entry); err != nil {
		p.metrics.RecordAuditAppendFailure()
		p.logger.ErrorContext(ctx, "failed to append audit entry",
			"asset_id", entry.AssetID,
			"operation", string(entry.Operation),
			"error", err)
	}
}

// ChangedFields returns the sorted set of field names whose values differ
// between the two snapshots. Keys missing from one side compare against nil,
// and comparison is strict equality with no tolerance.
func ChangedFields(before, after asset.Snapshot) []string {
	keys := make(map[string]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}

	changed := make([]string, 0)
	for k := range keys {
		if before[k] != after[k] {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func optionalActor(actorID string) *string {
	if actorID == "" {
		return nil
	}
	return &actorID
}
