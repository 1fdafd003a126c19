// Package audit provides the append-only audit trail for asset mutations.
// Entries are immutable once appended; the log is a passive recorder and
// never computes diffs itself.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wavecrate/wavecrate/internal/asset"
)

// Operation classifies what kind of state transition an entry records.
type Operation string

// Valid audit operations.
const (
	OpCreate       Operation = "create"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpStatusChange Operation = "status_change"
)

// Entry represents a single immutable state transition of an asset.
// Before and After hold full snapshots of the asset's mutable fields around
// the change; Before is nil for pure creates.
type Entry struct {
	ID            string         `json:"id"`
	AssetID       string         `json:"assetId"`
	Operation     Operation      `json:"operation"`
	UserID        *string        `json:"userId"`
	Before        asset.Snapshot `json:"before,omitempty"`
	After         asset.Snapshot `json:"after,omitempty"`
	ChangedFields []string       `json:"changedFields"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// NewEntryID derives a unique entry ID from the asset ID, the entry
// timestamp, and a random suffix. The random suffix guarantees two entries
// for the same asset in the same nanosecond still never collide.
func NewEntryID(assetID string, ts time.Time) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%d-%s", assetID, ts.UnixNano(), suffix)
}

// clone returns a deep copy of the entry so stored rows can never be
// mutated through a returned pointer.
func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	copied := *e
	if e.UserID != nil {
		userID := *e.UserID
		copied.UserID = &userID
	}
	copied.Before = cloneSnapshot(e.Before)
	copied.After = cloneSnapshot(e.After)
	if e.ChangedFields != nil {
		copied.ChangedFields = append([]string(nil), e.ChangedFields...)
	}
	return &copied
}

func cloneSnapshot(s asset.Snapshot) asset.Snapshot {
	if s == nil {
		return nil
	}
	copied := make(asset.Snapshot, len(s))
	for k, v := range s {
		copied[k] = v
	}
	return copied
}
