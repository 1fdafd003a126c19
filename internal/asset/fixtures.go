package asset

import "time"

// fixtureBase anchors the fixture timestamps so listings and cursor tests
// are deterministic.
var fixtureBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func at(offset time.Duration) time.Time { return fixtureBase.Add(offset) }

// Fixtures returns the fixed fallback catalog. It is served when the primary
// store is unreachable and seeds the in-memory repository for development.
// Each call returns fresh copies.
func Fixtures() []*Asset {
	return []*Asset{
		{
			ID:            "A1",
			Title:         "Midnight Drive",
			Artist:        "Neon Harbor",
			BPM:           intPtr(124),
			KeySig:        strPtr("Am"),
			PriceAmount:   29.99,
			PriceCurrency: "USD",
			Status:        StatusDraft,
			CreatedAt:     at(0),
			UpdatedAt:     at(0),
		},
		{
			ID:            "A2",
			Title:         "Glasshouse",
			Artist:        "Mara Vell",
			BPM:           intPtr(92),
			KeySig:        strPtr("F#m"),
			PriceAmount:   19.99,
			PriceCurrency: "USD",
			Status:        StatusPublished,
			CreatedAt:     at(-48 * time.Hour),
			UpdatedAt:     at(1 * time.Hour),
		},
		{
			ID:            "A3",
			Title:         "Low Tide Loops Vol. 1",
			Artist:        "Neon Harbor",
			BPM:           intPtr(140),
			PriceAmount:   12.50,
			PriceCurrency: "EUR",
			Status:        StatusPublished,
			CreatedAt:     at(-72 * time.Hour),
			UpdatedAt:     at(2 * time.Hour),
		},
		{
			ID:            "A4",
			Title:         "Static Bloom",
			Artist:        "Okafor & June",
			BPM:           intPtr(170),
			KeySig:        strPtr("Cmaj"),
			PriceAmount:   24.00,
			PriceCurrency: "GBP",
			Status:        StatusReady,
			CreatedAt:     at(-24 * time.Hour),
			UpdatedAt:     at(3 * time.Hour),
		},
		{
			ID:            "A5",
			Title:         "Paper Lanterns",
			Artist:        "Mara Vell",
			PriceAmount:   0,
			PriceCurrency: "USD",
			Status:        StatusProcessing,
			CreatedAt:     at(-12 * time.Hour),
			UpdatedAt:     at(4 * time.Hour),
		},
		{
			ID:            "A6",
			Title:         "Rust and Chrome",
			Artist:        "Dial Tone Collective",
			BPM:           intPtr(128),
			KeySig:        strPtr("Gm"),
			PriceAmount:   34.99,
			PriceCurrency: "USD",
			Status:        StatusArchived,
			CreatedAt:     at(-96 * time.Hour),
			UpdatedAt:     at(5 * time.Hour),
		},
	}
}
