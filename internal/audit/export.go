package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports entries as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports entries as a JSON array.
	ExportFormatJSON ExportFormat = "json"
)

// ExportOptions configures an audit trail export.
type ExportOptions struct {
	Format ExportFormat // Export format (csv or json)
	From   time.Time    // Start of time range (inclusive)
	To     time.Time    // End of time range (inclusive)
	Limit  int          // Maximum number of entries to export (0 = no limit)
}

// ExportEntries exports the audit trail of one asset in the requested
// format. Entries stay in repository order (newest first).
func ExportEntries(ctx context.Context, repo Repository, assetID string, opts ExportOptions) ([]byte, error) {
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatJSON {
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}

	entries, err := repo.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}

	if !opts.From.IsZero() || !opts.To.IsZero() {
		entries = filterByTimeRange(entries, opts.From, opts.To)
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	switch opts.Format {
	case ExportFormatCSV:
		return exportToCSV(entries)
	default:
		return exportToJSON(entries)
	}
}

// filterByTimeRange keeps entries whose CreatedAt falls within the range.
func filterByTimeRange(entries []*Entry, from, to time.Time) []*Entry {
	var filtered []*Entry
	for _, e := range entries {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// exportToCSV renders entries as CSV. Snapshots are flattened to compact
// JSON in their cells.
func exportToCSV(entries []*Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Timestamp (UTC)",
		"Asset ID",
		"Operation",
		"User ID",
		"Changed Fields",
		"Before",
		"After",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		userID := ""
		if e.UserID != nil {
			userID = *e.UserID
		}
		before, err := snapshotCell(e.Before)
		if err != nil {
			return nil, err
		}
		after, err := snapshotCell(e.After)
		if err != nil {
			return nil, err
		}

		row := []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.AssetID,
			string(e.Operation),
			userID,
			strings.Join(e.ChangedFields, ";"),
			before,
			after,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// exportToJSON renders entries as an indented JSON array.
func exportToJSON(entries []*Entry) ([]byte, error) {
	if entries == nil {
		entries = []*Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func snapshotCell(s map[string]any) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return string(data), nil
}
