// Package api implements the HTTP surface consumed by the scraper and
// reporting collaborators.
//
// Routes:
//
//	POST /observations                        → ingest a batch of raw observations
//	GET  /recrawl/due?asOf=&limit=            → listings due for re-observation
//	GET  /listings/{offeringType}/{id}        → listing with resolved current snapshot
//	GET  /listings/{offeringType}/{id}/history → full snapshot history
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Blickwinkle262/DutchRentScope/internal/ingest"
	"github.com/Blickwinkle262/DutchRentScope/internal/model"
	"github.com/Blickwinkle262/DutchRentScope/internal/recrawl"
	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

const maxDueLimit = 1000

// Handler holds shared dependencies.
type Handler struct {
	pipeline *ingest.Pipeline
	store    *store.Store
	queue    *recrawl.Queue
}

// NewHandler returns a configured Handler.
func NewHandler(pipeline *ingest.Pipeline, st *store.Store, queue *recrawl.Queue) *Handler {
	return &Handler{pipeline: pipeline, store: st, queue: queue}
}

// RegisterRoutes mounts all history-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/observations", h.handleObservations)
	mux.HandleFunc("/recrawl/due", h.handleDue)
	mux.HandleFunc("/listings/", h.handleListing)
}

// ─── Ingestion ───────────────────────────────────────────────────────────────

// handleObservations handles POST /observations.
func (h *Handler) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var observations []model.Observation
	if err := json.NewDecoder(r.Body).Decode(&observations); err != nil {
		jsonError(w, "body must be a JSON array of observations", http.StatusBadRequest)
		return
	}
	if len(observations) == 0 {
		jsonError(w, "empty observation batch", http.StatusBadRequest)
		return
	}

	res, err := h.pipeline.IngestBatch(r.Context(), observations)
	if err != nil {
		log.Printf("[api] ingest batch error: %v", err)
		jsonError(w, "batch aborted", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, res)
}

// ─── Recrawl work queue ──────────────────────────────────────────────────────

// handleDue handles GET /recrawl/due — the scraper's sole source of work.
func (h *Handler) handleDue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	asOf := time.Now()
	if s := r.URL.Query().Get("asOf"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			jsonError(w, "asOf must be RFC 3339", http.StatusBadRequest)
			return
		}
		asOf = t
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxDueLimit {
			jsonError(w, fmt.Sprintf("limit must be 1..%d", maxDueLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	keys, err := h.queue.Due(r.Context(), asOf, limit)
	if err != nil {
		log.Printf("[api] due query error: %v", err)
		jsonError(w, "database error", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, keys)
}

// ─── Query surface ───────────────────────────────────────────────────────────

// handleListing handles GET /listings/{offeringType}/{id}[/history].
func (h *Handler) handleListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || len(parts) > 4 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	ot, err := model.ParseOfferingType(parts[1])
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	listingID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		jsonError(w, "listing id must be numeric", http.StatusBadRequest)
		return
	}

	if len(parts) == 4 {
		if parts[3] != "history" {
			jsonError(w, fmt.Sprintf("unknown action %q", parts[3]), http.StatusNotFound)
			return
		}
		h.listingHistory(w, r, listingID, ot)
		return
	}
	h.listingCurrent(w, r, listingID, ot)
}

func (h *Handler) listingCurrent(w http.ResponseWriter, r *http.Request, listingID int64, ot model.OfferingType) {
	listing, current, err := h.store.GetListing(r.Context(), listingID, ot)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "listing not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[api] get listing error: %v", err)
		jsonError(w, "database error", http.StatusServiceUnavailable)
		return
	}

	jsonOK(w, struct {
		*model.Listing
		Current *model.Snapshot `json:"current"`
	}{listing, current})
}

func (h *Handler) listingHistory(w http.ResponseWriter, r *http.Request, listingID int64, ot model.OfferingType) {
	snaps, err := h.store.History(r.Context(), listingID, ot)
	if err != nil {
		log.Printf("[api] history error: %v", err)
		jsonError(w, "database error", http.StatusServiceUnavailable)
		return
	}
	jsonOK(w, snaps)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
