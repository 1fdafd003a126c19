package asset

import (
	"fmt"
	"math"
)

// Field length and value constraints.
const (
	MinTitleLength  = 1
	MaxTitleLength  = 200
	MinArtistLength = 1
	MaxArtistLength = 200
	MaxKeySigLength = 10
	CurrencyLength  = 3
)

// UpdatableFields is the set of fields a partial update may carry. Anything
// outside this set is silently dropped during validation.
var UpdatableFields = map[string]bool{
	"title":         true,
	"artist":        true,
	"bpm":           true,
	"keySig":        true,
	"priceAmount":   true,
	"priceCurrency": true,
	"status":        true,
}

// ValidateUpdate validates and normalizes a partial update as decoded from a
// JSON body. It returns the normalized fields (JSON numbers converted to the
// model's native types) and a per-field detail map; the details map is empty
// when every supplied field is valid. Unknown fields are not an error; they
// are simply excluded from the normalized result.
func ValidateUpdate(fields map[string]any) (map[string]any, map[string]string) {
	normalized := make(map[string]any)
	details := make(map[string]string)

	for name, value := range fields {
		if !UpdatableFields[name] {
			continue
		}

		switch name {
		case "title":
			s, ok := value.(string)
			if !ok {
				details[name] = "title must be a string"
				continue
			}
			if len(s) < MinTitleLength || len(s) > MaxTitleLength {
				details[name] = fmt.Sprintf("title must be between %d and %d characters", MinTitleLength, MaxTitleLength)
				continue
			}
			normalized[name] = s

		case "artist":
			s, ok := value.(string)
			if !ok {
				details[name] = "artist must be a string"
				continue
			}
			if len(s) < MinArtistLength || len(s) > MaxArtistLength {
				details[name] = fmt.Sprintf("artist must be between %d and %d characters", MinArtistLength, MaxArtistLength)
				continue
			}
			normalized[name] = s

		case "bpm":
			f, ok := toFloat(value)
			if !ok || f != math.Trunc(f) {
				details[name] = "bpm must be an integer"
				continue
			}
			if f <= 0 {
				details[name] = "bpm must be a positive integer"
				continue
			}
			normalized[name] = int(f)

		case "keySig":
			s, ok := value.(string)
			if !ok {
				details[name] = "keySig must be a string"
				continue
			}
			if len(s) > MaxKeySigLength {
				details[name] = fmt.Sprintf("keySig must not exceed %d characters", MaxKeySigLength)
				continue
			}
			normalized[name] = s

		case "priceAmount":
			f, ok := toFloat(value)
			if !ok {
				details[name] = "priceAmount must be a number"
				continue
			}
			if f < 0 {
				details[name] = "priceAmount must not be negative"
				continue
			}
			normalized[name] = f

		case "priceCurrency":
			s, ok := value.(string)
			if !ok {
				details[name] = "priceCurrency must be a string"
				continue
			}
			if len(s) != CurrencyLength {
				details[name] = fmt.Sprintf("priceCurrency must be exactly %d characters", CurrencyLength)
				continue
			}
			normalized[name] = s

		case "status":
			s, ok := value.(string)
			if !ok {
				details[name] = "status must be a string"
				continue
			}
			if !ValidStatuses[Status(s)] {
				details[name] = "status must be one of: draft, published, archived, processing, ready, error"
				continue
			}
			normalized[name] = s
		}
	}

	return normalized, details
}

// Validate checks a full asset against the canonical shape. It is used by
// the mutation pipeline as a final guard before an asset representation
// leaves the subsystem, catching type drift introduced at the storage layer.
func (a *Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("asset id must not be empty")
	}
	if len(a.Title) < MinTitleLength || len(a.Title) > MaxTitleLength {
		return fmt.Errorf("title length %d out of range", len(a.Title))
	}
	if len(a.Artist) < MinArtistLength || len(a.Artist) > MaxArtistLength {
		return fmt.Errorf("artist length %d out of range", len(a.Artist))
	}
	if a.BPM != nil && *a.BPM <= 0 {
		return fmt.Errorf("bpm %d must be positive", *a.BPM)
	}
	if a.KeySig != nil && len(*a.KeySig) > MaxKeySigLength {
		return fmt.Errorf("keySig length %d out of range", len(*a.KeySig))
	}
	if a.PriceAmount < 0 {
		return fmt.Errorf("priceAmount %f must not be negative", a.PriceAmount)
	}
	if len(a.PriceCurrency) != CurrencyLength {
		return fmt.Errorf("priceCurrency length %d must be %d", len(a.PriceCurrency), CurrencyLength)
	}
	if !ValidStatuses[a.Status] {
		return fmt.Errorf("invalid status %q", a.Status)
	}
	if a.UpdatedAt.Before(a.CreatedAt) {
		return fmt.Errorf("updatedAt precedes createdAt")
	}
	return nil
}

// toFloat accepts the numeric types a JSON decode or caller may hand us.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
