package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wavecrate/wavecrate/internal/asset"
	"github.com/wavecrate/wavecrate/internal/audit"
	"github.com/wavecrate/wavecrate/internal/catalog"
	"github.com/wavecrate/wavecrate/internal/middleware"
	"github.com/wavecrate/wavecrate/internal/mutation"
)

// IdempotencyKeyHeader is the HTTP header carrying the idempotency key for
// mutating requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// AuditListResponse is the response body for GET /assets/{id}/audit.
type AuditListResponse struct {
	AssetID   string         `json:"assetId"`
	AuditLogs []*audit.Entry `json:"auditLogs"`
	Total     int            `json:"total"`
}

// AssetHandlers holds dependencies for asset HTTP handlers.
type AssetHandlers struct {
	reader   asset.Reader
	engine   *catalog.Engine
	pipeline *mutation.Pipeline
	audit    audit.Repository
}

// NewAssetHandlers creates a new AssetHandlers instance. reader should be
// the two-tier fallback reader in production so GETs survive store outages.
func NewAssetHandlers(reader asset.Reader, engine *catalog.Engine, pipeline *mutation.Pipeline, auditRepo audit.Repository) *AssetHandlers {
	return &AssetHandlers{
		reader:   reader,
		engine:   engine,
		pipeline: pipeline,
		audit:    auditRepo,
	}
}

// Register attaches the asset routes to the mux.
func (h *AssetHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/assets", h.handleCollection)
	mux.HandleFunc("/assets/", h.handleItem)
}

// handleCollection dispatches /assets.
func (h *AssetHandlers) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	h.ListAssets(w, r)
}

// handleItem dispatches /assets/{id} and /assets/{id}/audit.
func (h *AssetHandlers) handleItem(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/assets/"), "/")

	switch {
	case len(pathParts) == 1 && pathParts[0] != "":
		switch r.Method {
		case http.MethodGet:
			h.GetAsset(w, r, pathParts[0])
		case http.MethodPatch:
			h.UpdateAsset(w, r, pathParts[0])
		default:
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		}
	case len(pathParts) == 2 && pathParts[0] != "" && pathParts[1] == "audit":
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.GetAssetAudit(w, r, pathParts[0])
	case len(pathParts) == 3 && pathParts[0] != "" && pathParts[1] == "audit" && pathParts[2] == "export":
		if r.Method != http.MethodGet {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
			return
		}
		h.ExportAssetAudit(w, r, pathParts[0])
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	}
}

// ListAssets handles GET /assets - catalog listing with filtering and
// hybrid pagination.
func (h *AssetHandlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := catalog.ListParams{
		Cursor: query.Get("cursor"),
		Status: query.Get("status"),
		Query:  query.Get("q"),
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			params.Limit = limit
		}
	}
	if v := query.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			params.Page = page
		}
	}

	result, err := h.engine.List(r.Context(), params)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list assets", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// GetAsset handles GET /assets/{id}.
func (h *AssetHandlers) GetAsset(w http.ResponseWriter, r *http.Request, id string) {
	a, err := h.reader.GetByID(r.Context(), id)
	if err != nil {
		if err == asset.ErrAssetNotFound {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Asset not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get asset", "asset_id", id, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, a)
}

// UpdateAsset handles PATCH /assets/{id} - the idempotent mutation path.
func (h *AssetHandlers) UpdateAsset(w http.ResponseWriter, r *http.Request, id string) {
	key := r.Header.Get(IdempotencyKeyHeader)

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	actorID := middleware.GetActorID(r.Context())

	result, err := h.pipeline.ApplyUpdate(r.Context(), id, fields, key, actorID)
	if err != nil {
		h.writeMutationError(w, r, id, err)
		return
	}

	// Serve the pipeline's payload verbatim so retried requests carrying
	// the same key receive byte-identical responses.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Response); err != nil {
		slog.ErrorContext(r.Context(), "failed to write asset response", "error", err)
	}
}

// GetAssetAudit handles GET /assets/{id}/audit.
func (h *AssetHandlers) GetAssetAudit(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := h.audit.ListByAsset(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list audit entries", "asset_id", id, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	writeJSON(w, r, http.StatusOK, AuditListResponse{
		AssetID:   id,
		AuditLogs: entries,
		Total:     len(entries),
	})
}

// ExportAssetAudit handles GET /assets/{id}/audit/export. Supported query
// parameters: format (csv or json, default json), from and to (RFC 3339),
// and limit.
func (h *AssetHandlers) ExportAssetAudit(w http.ResponseWriter, r *http.Request, id string) {
	query := r.URL.Query()

	format := audit.ExportFormat(query.Get("format"))
	if format == "" {
		format = audit.ExportFormatJSON
	}
	if format != audit.ExportFormatCSV && format != audit.ExportFormatJSON {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "format must be csv or json")
		return
	}

	opts := audit.ExportOptions{Format: format}
	if v := query.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		opts.From = from
	}
	if v := query.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		opts.To = to
	}
	if v := query.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}

	data, err := audit.ExportEntries(r.Context(), h.audit, id, opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to export audit entries", "asset_id", id, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	if format == audit.ExportFormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-`+id+`.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export response", "error", err)
	}
}

// writeMutationError maps pipeline error kinds to transport responses.
func (h *AssetHandlers) writeMutationError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch mutation.KindOf(err) {
	case mutation.KindClientInput:
		code := ErrCodeNoFieldsToUpdate
		if err == mutation.ErrMissingIdempotencyKey {
			code = ErrCodeMissingIdempotencyKey
		}
		ctx := middleware.SetErrorCode(r.Context(), code)
		WriteError(w, ctx, http.StatusBadRequest, code, err.Error())
	case mutation.KindNotFound:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Asset not found")
	case mutation.KindValidation:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteValidationError(w, ctx, mutation.DetailsOf(err))
	default:
		slog.ErrorContext(r.Context(), "asset mutation failed",
			"asset_id", id, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// writeJSON encodes a success body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
