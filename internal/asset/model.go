// Package asset provides the catalog asset model and persistence for the
// wavecrate marketplace.
package asset

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a catalog asset.
type Status string

// Valid asset statuses.
const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusArchived   Status = "archived"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// ValidStatuses is the set of allowed status values.
var ValidStatuses = map[Status]bool{
	StatusDraft:      true,
	StatusPublished:  true,
	StatusArchived:   true,
	StatusProcessing: true,
	StatusReady:      true,
	StatusError:      true,
}

var (
	// ErrAssetNotFound is returned when an asset does not exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetExists is returned when inserting a duplicate asset ID.
	ErrAssetExists = errors.New("asset already exists")
)

// Asset represents a single catalog item (a track, loop, or sample pack).
// ID and CreatedAt are immutable after creation; UpdatedAt is refreshed on
// every successful mutation and is always >= CreatedAt.
type Asset struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	BPM           *int      `json:"bpm,omitempty"`
	KeySig        *string   `json:"keySig,omitempty"`
	PriceAmount   float64   `json:"priceAmount"`
	PriceCurrency string    `json:"priceCurrency"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Snapshot captures the mutable fields of an asset as a flat map. Snapshots
// are what the audit log records as before/after images of a mutation.
type Snapshot map[string]any

// Snapshot returns the asset's mutable fields. Optional fields that are
// unset appear with a nil value so diffs treat "absent" and "cleared" alike.
func (a *Asset) Snapshot() Snapshot {
	s := Snapshot{
		"title":         a.Title,
		"artist":        a.Artist,
		"bpm":           nil,
		"keySig":        nil,
		"priceAmount":   a.PriceAmount,
		"priceCurrency": a.PriceCurrency,
		"status":        string(a.Status),
	}
	if a.BPM != nil {
		s["bpm"] = *a.BPM
	}
	if a.KeySig != nil {
		s["keySig"] = *a.KeySig
	}
	return s
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	copied := *a
	if a.BPM != nil {
		bpm := *a.BPM
		copied.BPM = &bpm
	}
	if a.KeySig != nil {
		keySig := *a.KeySig
		copied.KeySig = &keySig
	}
	return &copied
}

// applyFields merges normalized update fields into the asset. Callers are
// expected to have validated the fields first; unknown keys are ignored.
func (a *Asset) applyFields(fields map[string]any) {
	for name, value := range fields {
		switch name {
		case "title":
			a.Title = value.(string)
		case "artist":
			a.Artist = value.(string)
		case "bpm":
			bpm := value.(int)
			a.BPM = &bpm
		case "keySig":
			keySig := value.(string)
			a.KeySig = &keySig
		case "priceAmount":
			a.PriceAmount = value.(float64)
		case "priceCurrency":
			a.PriceCurrency = value.(string)
		case "status":
			a.Status = Status(value.(string))
		}
	}
}
