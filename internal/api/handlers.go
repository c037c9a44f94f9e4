package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neexbeast/greenscore/internal/aggregate"
	"github.com/neexbeast/greenscore/internal/events"
	"github.com/neexbeast/greenscore/internal/scoring"
	"github.com/neexbeast/greenscore/internal/upstream"
)

// statusClientClosedRequest is logged and written when the caller went away.
const statusClientClosedRequest = 499

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	scorer    Scorer
	records   RecordStore
	presence  PresenceService
	publisher ScorePublisher
	log       *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
// A nil publisher disables score events.
func NewHandlers(scorer Scorer, records RecordStore, presence PresenceService, publisher ScorePublisher, log *slog.Logger) *Handlers {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Handlers{
		scorer:    scorer,
		records:   records,
		presence:  presence,
		publisher: publisher,
		log:       log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetScore handles GET /api/v1/scores/{country}?city=.
// Computes a fresh score without persisting it.
func (h *Handlers) GetScore(w http.ResponseWriter, r *http.Request) {
	res, err := h.scorer.Score(r.Context(), scoreQuery(r))
	if err != nil {
		h.writeScoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateScore handles POST /api/v1/scores/{country}?city=.
// Computes a score, stores it as a record and announces it.
func (h *Handlers) CreateScore(w http.ResponseWriter, r *http.Request) {
	res, err := h.scorer.Score(r.Context(), scoreQuery(r))
	if err != nil {
		h.writeScoreError(w, r, err)
		return
	}

	rec, err := h.records.SaveRecord(r.Context(), res)
	if err != nil {
		h.log.Error("saving score record failed", "country", res.Country, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store score"})
		return
	}

	if err := h.publisher.PublishScore(r.Context(), events.NewScoreEvent(rec)); err != nil {
		h.log.Warn("publishing score event failed", "record_id", rec.ID, "err", err)
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListRecords handles GET /api/v1/records?country=&limit=.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	country := strings.TrimSpace(r.URL.Query().Get("country"))

	recs, err := h.records.ListRecords(r.Context(), country, limit)
	if err != nil {
		h.log.Error("listing records failed", "country", country, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(recs), "count": len(recs)})
}

// GetRecord handles GET /api/v1/records/{id}.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return
	}

	rec, err := h.records.GetRecord(r.Context(), id)
	if err != nil {
		h.log.Error("db get failed", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListRecordsByRisk handles GET /api/v1/records/risk/{category}?limit=.
func (h *Handlers) ListRecordsByRisk(w http.ResponseWriter, r *http.Request) {
	category, ok := scoring.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "unknown risk category",
			"categories": scoring.Categories,
		})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	recs, err := h.records.ListRecordsByCategory(r.Context(), category, limit)
	if err != nil {
		h.log.Error("listing records by risk failed", "category", category, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(recs), "count": len(recs)})
}

// GetPresence handles GET /api/v1/presence?source=&destination=.
// Without a source the total across major senders is returned.
func (h *Handlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	destination := strings.TrimSpace(r.URL.Query().Get("destination"))
	if destination == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination is required"})
		return
	}

	if source == "" {
		h.writePresenceTotal(w, r, destination)
		return
	}

	res, err := h.presence.Lookup(r.Context(), source, destination)
	if err != nil {
		h.writeScoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetPresenceTotal handles GET /api/v1/presence/{destination}/total.
func (h *Handlers) GetPresenceTotal(w http.ResponseWriter, r *http.Request) {
	h.writePresenceTotal(w, r, strings.TrimSpace(chi.URLParam(r, "destination")))
}

func (h *Handlers) writePresenceTotal(w http.ResponseWriter, r *http.Request, destination string) {
	res, err := h.presence.Total(r.Context(), destination)
	if err != nil {
		h.writeScoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeScoreError maps aggregation failures onto HTTP statuses:
// unresolvable country 404 (empty query 400), upstream failure 502 carrying
// the upstream's status, timeout 504, anything else 500.
func (h *Handlers) writeScoreError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		se *aggregate.StageError
		ue *upstream.Error
	)
	body := map[string]any{"error": err.Error()}
	if errors.As(err, &se) {
		body["stage"] = se.Stage
	}

	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		h.log.Info("request cancelled by client", "path", r.URL.Path)
		writeJSON(w, statusClientClosedRequest, map[string]string{"error": "request cancelled"})

	case errors.Is(err, upstream.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, body)

	case aggregate.IsResolution(err):
		writeJSON(w, http.StatusNotFound, body)

	case errors.As(err, &ue) && ue.Timeout, errors.Is(err, context.DeadlineExceeded):
		h.log.Warn("aggregation timed out", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusGatewayTimeout, body)

	case errors.As(err, &ue):
		body["upstream"] = ue.Upstream
		if ue.StatusCode != 0 {
			body["upstream_status"] = ue.StatusCode
		}
		writeJSON(w, http.StatusBadGateway, body)

	default:
		h.log.Error("aggregation failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func scoreQuery(r *http.Request) aggregate.Query {
	return aggregate.Query{
		Country: chi.URLParam(r, "country"),
		City:    r.URL.Query().Get("city"),
	}
}

// parseLimit reads ?limit=. Missing means the store default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
