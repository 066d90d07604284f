package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"farm_sync/internal/adapters/observability"
	"farm_sync/internal/app"
	"farm_sync/internal/domain"
)

type Handlers struct {
	Rec          *app.ReconcileService
	Q            *app.QueryService
	CRM          domain.CRMClient // optional: hydrates id-only payloads
	WebhookToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.With(BearerAuth(h.WebhookToken)).Post("/webhook/zoho", h.webhook)
	s.mux.Get("/v1/farms/{slug}", h.getFarm)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Payload", "unreadable body")
		return
	}

	rec, err := app.Normalize(body, r.Header.Get("Content-Type"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	// The CRM's stock webhook sends only a record id; hydrate the full
	// account before coercion. Inlined records skip the round trip.
	if !app.HasInlineRecord(rec) && h.CRM != nil {
		if id := app.RecordID(rec); id != "" {
			full, err := h.CRM.GetRecord(r.Context(), id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeProblem(w, http.StatusNotFound, "Not Found", "record not found in CRM")
					return
				}
				log.Error().Err(err).Str("zoho_id", id).Msg("CRM hydrate failed")
				writeProblem(w, http.StatusBadGateway, "CRM Unavailable", "could not fetch record from CRM")
				return
			}
			rec = full
		}
	}

	res, err := h.Rec.Reconcile(r.Context(), rec)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingRequiredField), errors.Is(err, domain.ErrInvalidPayload):
			writeProblem(w, http.StatusBadRequest, "Invalid Record", err.Error())
		default:
			log.Error().Err(err).Msg("reconcile failed")
			writeProblem(w, http.StatusInternalServerError, "Store Write Failed", "record was not persisted")
		}
		return
	}

	observability.ObserveReconcile(string(res.Change))
	if res.Change == domain.StructuralChange {
		observability.ObserveSideEffect("content", res.ContentUpdated)
		observability.ObserveSideEffect("rebuild", res.RebuildTriggered)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error().Err(err).Msg("failed to write webhook ack")
	}
}

func (h *Handlers) getFarm(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	resp, err := h.Q.GetFarm(r.Context(), slug)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "farm not found")
		return
	}

	etag, body := calcETagAndBody(resp)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getFarm body")
	}
}
