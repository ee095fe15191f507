package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/trackchanges/internal/diff"
	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/export"
	"github.com/rpattn/trackchanges/internal/history"
	"github.com/rpattn/trackchanges/internal/repository"
	"github.com/rpattn/trackchanges/internal/revert"
	"github.com/rpattn/trackchanges/internal/temporal"
)

// Handler serves the history surface under /history/:
//
//	GET  /history/{entityID}                 full version list
//	GET  /history/{entityID}/asof?at=...     version in effect at a time
//	GET  /history/{entityID}/export          history as an xlsx download
//	GET  /history/diff?from=...&to=...       compare two versions
//	POST /history/revert                     restore an old version
type Handler struct {
	service  *history.Service
	engine   *revert.Engine
	differ   *diff.Differ
	exporter *export.Service
}

func NewHTTPHandler(service *history.Service, engine *revert.Engine, differ *diff.Differ, exporter *export.Service) http.Handler {
	return &Handler{service: service, engine: engine, differ: differ, exporter: exporter}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/history"), "/")
	path = strings.TrimPrefix(path, "/")
	switch {
	case r.Method == http.MethodGet && path == "diff":
		h.handleDiff(w, r)
	case r.Method == http.MethodPost && path == "revert":
		h.handleRevert(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/asof"):
		h.handleAsOf(w, r, strings.TrimSuffix(path, "/asof"))
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/export"):
		h.handleExport(w, r, strings.TrimSuffix(path, "/export"))
	case r.Method == http.MethodGet && path != "":
		h.handleList(w, r, path)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// versionPayload decorates a version with its ordinal number for clients.
type versionPayload struct {
	*domain.Version
	VersionNumber int64 `json:"version_number"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, rawID string) {
	entityID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity id: %v", err), http.StatusBadRequest)
		return
	}
	versions, err := h.service.ListHistory(r.Context(), entityID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list history: %v", err), http.StatusInternalServerError)
		return
	}
	payload := make([]versionPayload, 0, len(versions))
	for _, version := range versions {
		number, err := h.service.VersionNumber(r.Context(), version)
		if err != nil {
			http.Error(w, fmt.Sprintf("number version: %v", err), http.StatusInternalServerError)
			return
		}
		payload = append(payload, versionPayload{Version: version, VersionNumber: number})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleAsOf(w http.ResponseWriter, r *http.Request, rawID string) {
	entityID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity id: %v", err), http.StatusBadRequest)
		return
	}
	rawAt := strings.TrimSpace(r.URL.Query().Get("at"))
	if rawAt == "" {
		http.Error(w, "at is required", http.StatusBadRequest)
		return
	}
	at, err := time.Parse(time.RFC3339, rawAt)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid at: %v", err), http.StatusBadRequest)
		return
	}
	version, err := h.service.AsOf(r.Context(), entityID, at)
	if err != nil {
		if errors.Is(err, temporal.ErrVersionNotFound) || errors.Is(err, repository.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("resolve version: %v", err), http.StatusInternalServerError)
		return
	}
	number, err := h.service.VersionNumber(r.Context(), version)
	if err != nil {
		http.Error(w, fmt.Sprintf("number version: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload{Version: version, VersionNumber: number})
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseHistoryID(query.Get("from"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid from: %v", err), http.StatusBadRequest)
		return
	}
	to, err := parseHistoryID(query.Get("to"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid to: %v", err), http.StatusBadRequest)
		return
	}
	base, err := h.service.GetVersion(r.Context(), from)
	if err != nil {
		http.Error(w, fmt.Sprintf("load version %d: %v", from, err), http.StatusNotFound)
		return
	}
	target, err := h.service.GetVersion(r.Context(), to)
	if err != nil {
		http.Error(w, fmt.Sprintf("load version %d: %v", to, err), http.StatusNotFound)
		return
	}

	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	switch format {
	case "text":
		baseSnapshot := base.Snapshot()
		targetSnapshot := target.Snapshot()
		unified, err := diff.UnifiedDiff(
			fmt.Sprintf("version %d", from), &baseSnapshot,
			fmt.Sprintf("version %d", to), &targetSnapshot,
		)
		if err != nil {
			http.Error(w, fmt.Sprintf("diff versions: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, unified)
	case "html":
		md, err := h.differ.Diff(base, target)
		if err != nil {
			http.Error(w, fmt.Sprintf("diff versions: %v", err), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<table>%s</table>", md.HTML())
	case "", "json":
		md, err := h.differ.Diff(base, target)
		if err != nil {
			http.Error(w, fmt.Sprintf("diff versions: %v", err), http.StatusBadRequest)
			return
		}
		fields := md.AsDict()
		if fields == nil {
			fields = map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entity_type": md.EntityType(),
			"from":        from,
			"to":          to,
			"fields":      fields,
		})
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
	}
}

type revertPayload struct {
	HistoryID           int64 `json:"history_id"`
	DeleteNewerVersions bool  `json:"delete_newer_versions"`
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload revertPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if payload.HistoryID <= 0 {
		http.Error(w, "history_id is required", http.StatusBadRequest)
		return
	}
	version, err := h.service.GetVersion(r.Context(), payload.HistoryID)
	if err != nil {
		http.Error(w, fmt.Sprintf("version not found: %v", err), http.StatusNotFound)
		return
	}
	reverted, err := h.engine.RevertTo(r.Context(), version, revert.Options{DeleteNewerVersions: payload.DeleteNewerVersions})
	if err != nil {
		if errors.Is(err, history.ErrNotTracked) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("revert failed: %v", err), http.StatusInternalServerError)
		return
	}
	number, err := h.service.VersionNumber(r.Context(), reverted)
	if err != nil {
		http.Error(w, fmt.Sprintf("number version: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload{Version: reverted, VersionNumber: number})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, rawID string) {
	entityID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity id: %v", err), http.StatusBadRequest)
		return
	}
	versions, err := h.service.ListHistory(r.Context(), entityID)
	if err != nil {
		http.Error(w, fmt.Sprintf("list history: %v", err), http.StatusInternalServerError)
		return
	}
	if len(versions) == 0 {
		http.Error(w, "no history recorded", http.StatusNotFound)
		return
	}
	filename := export.FileName(versions[0].EntityType, entityID)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := h.exporter.WriteHistory(r.Context(), entityID, w); err != nil {
		http.Error(w, fmt.Sprintf("export history: %v", err), http.StatusInternalServerError)
		return
	}
}

func parseHistoryID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing history id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid history id", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
