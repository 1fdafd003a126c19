// Package catalog computes filtered, sorted, paginated views over the asset
// set for catalog listings.
package catalog

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/wavecrate/wavecrate/internal/asset"
)

// Listing limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListParams are the raw listing parameters as they arrive from the query
// string. Zero values mean "not supplied".
type ListParams struct {
	// Limit is the page size. Defaults to DefaultLimit when non-positive
	// and is clamped to MaxLimit.
	Limit int

	// Cursor is a numeric updatedAt boundary in unix milliseconds. When
	// given, only items strictly older than the boundary are kept. An
	// unparseable cursor matches nothing and yields an empty result.
	Cursor string

	// Page is a 1-based offset multiplier applied to the cursor-filtered
	// set. Values below 1 are treated as 1.
	//
	// Page and cursor are both honored on the same request. Well-formed
	// callers treat them as mutually exclusive; the engine does not enforce
	// that.
	Page int

	// Status filters by exact status value.
	Status string

	// Query is a case-insensitive substring match against title or artist.
	Query string
}

// Pagination is the offset-oriented metadata block, computed against the
// filtered-but-not-paginated set.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalCount  int  `json:"totalCount"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// ListResult is the listing response.
type ListResult struct {
	Items      []*asset.Asset `json:"items"`
	TotalCount int            `json:"totalCount"`
	NextCursor *string        `json:"nextCursor"`
	Pagination Pagination     `json:"pagination"`
}

// Engine serves catalog listings from an asset source. The source may be a
// live store or the fixture-backed fallback reader; the engine does not care.
type Engine struct {
	assets asset.Reader
}

// NewEngine creates a query engine over the given asset source.
func NewEngine(assets asset.Reader) *Engine {
	return &Engine{assets: assets}
}

// List fetches the working set and applies filtering, sorting, and the
// hybrid pagination contract. Out-of-range pages and cursors degrade to
// empty item sets; List only fails if the source does.
func (e *Engine) List(ctx context.Context, params ListParams) (*ListResult, error) {
	items, err := e.assets.List(ctx)
	if err != nil {
		return nil, err
	}
	return Apply(items, params), nil
}

// Apply runs the listing computation over an in-process slice. The input
// slice is never mutated.
func Apply(items []*asset.Asset, params ListParams) *ListResult {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	page := params.Page
	if page < 1 {
		page = 1
	}

	// Sort by updatedAt descending before any filtering.
	working := make([]*asset.Asset, len(items))
	copy(working, items)
	sort.SliceStable(working, func(i, j int) bool {
		return working[i].UpdatedAt.After(working[j].UpdatedAt)
	})

	working = filterByStatus(working, params.Status)
	working = filterByQuery(working, params.Query)
	working = filterByCursor(working, params.Cursor)

	totalCount := len(working)

	offset := (page - 1) * limit
	var pageItems []*asset.Asset
	if offset < len(working) {
		end := offset + limit
		if end > len(working) {
			end = len(working)
		}
		pageItems = working[offset:end]
	} else {
		pageItems = []*asset.Asset{}
	}

	// nextCursor is the updatedAt of the item immediately after the
	// returned page within the cursor-filtered set.
	var nextCursor *string
	if next := offset + len(pageItems); len(pageItems) > 0 && next < len(working) {
		c := strconv.FormatInt(working[next].UpdatedAt.UnixMilli(), 10)
		nextCursor = &c
	}

	totalPages := (totalCount + limit - 1) / limit

	return &ListResult{
		Items:      pageItems,
		TotalCount: totalCount,
		NextCursor: nextCursor,
		Pagination: Pagination{
			Page:        page,
			Limit:       limit,
			TotalCount:  totalCount,
			TotalPages:  totalPages,
			HasNextPage: page < totalPages,
			HasPrevPage: page > 1 && totalCount > 0,
		},
	}
}

func filterByStatus(items []*asset.Asset, status string) []*asset.Asset {
	if status == "" {
		return items
	}
	filtered := items[:0:0]
	for _, a := range items {
		if string(a.Status) == status {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func filterByQuery(items []*asset.Asset, query string) []*asset.Asset {
	if query == "" {
		return items
	}
	q := strings.ToLower(query)
	filtered := items[:0:0]
	for _, a := range items {
		if strings.Contains(strings.ToLower(a.Title), q) ||
			strings.Contains(strings.ToLower(a.Artist), q) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func filterByCursor(items []*asset.Asset, cursor string) []*asset.Asset {
	if cursor == "" {
		return items
	}
	boundary, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		// A cursor that doesn't parse matches nothing.
		return []*asset.Asset{}
	}
	filtered := items[:0:0]
	for _, a := range items {
		if a.UpdatedAt.UnixMilli() < boundary {
			filtered = append(filtered, a)
		}
	}
	return filtered
}
