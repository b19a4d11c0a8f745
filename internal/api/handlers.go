package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/model"
	"github.com/sells-group/tier-cli/internal/override"
	"github.com/sells-group/tier-cli/internal/tier"
)

// TierResponse is the public view of a subject's tier.
type TierResponse struct {
	CRN             string    `json:"crn"`
	TierScore       string    `json:"tier_score"`
	CalculationID   uuid.UUID `json:"calculation_id"`
	CalculationDate time.Time `json:"calculation_date"`
	ChangeReason    string    `json:"change_reason,omitempty"`
}

func summaryResponse(s *model.TierSummary) TierResponse {
	return TierResponse{
		CRN:             s.CRN,
		TierScore:       s.Tier().String(),
		CalculationID:   s.CalculationID,
		CalculationDate: s.CreatedAt,
	}
}

func calculationResponse(c *model.TierCalculation) TierResponse {
	return TierResponse{
		CRN:             c.CRN,
		TierScore:       c.Tier().String(),
		CalculationID:   c.ID,
		CalculationDate: c.CreatedAt,
		ChangeReason:    c.ChangeReason,
	}
}

func (s *Server) getTier(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")
	sum, err := s.deps.Store.GetSummary(r.Context(), crn)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if sum == nil {
		writeError(w, http.StatusNotFound, "no tier calculated for "+crn)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse(sum))
}

func (s *Server) getCalculation(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")
	id, err := uuid.Parse(chi.URLParam(r, "calculationId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid calculation id")
		return
	}
	calc, err := s.deps.Store.GetCalculation(r.Context(), crn, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if calc == nil {
		writeError(w, http.StatusNotFound, "calculation not found")
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	calcs, err := s.deps.Store.ListCalculations(r.Context(), crn, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]TierResponse, 0, len(calcs))
	for i := range calcs {
		out = append(out, calculationResponse(&calcs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) recalculate(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")
	out, err := s.deps.Recalculator.Recalculate(r.Context(), crn, model.OnDemandRecalculation{})
	if err != nil {
		switch tier.KindOf(err) {
		case tier.KindUpstreamNotFound:
			writeError(w, http.StatusNotFound, "subject not found upstream")
		case tier.KindUpstreamTransient:
			writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	stored, err := s.storedCalculation(r.Context(), crn, out)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":    calculationResponse(stored),
		"changed": out.Changed,
	})
}

// storedCalculation returns the persisted record an outcome resolves to.
// An unchanged outcome keeps the previous record; a duplicate append means
// a concurrent recalculation wrote it, so the latest is re-read.
func (s *Server) storedCalculation(ctx context.Context, crn string, out *tier.Outcome) (*model.TierCalculation, error) {
	if out.Changed {
		return out.Calculation, nil
	}
	if !out.Duplicate && out.Previous != nil {
		return out.Previous, nil
	}
	latest, err := s.deps.Store.ListCalculations(ctx, crn, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, eris.Errorf("api: no stored calculation for %s after recalculation", crn)
	}
	return &latest[0], nil
}

type enqueueRequest struct {
	CRNs []string `json:"crns"`
	Kind string   `json:"kind"`
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enqueuer == nil {
		writeError(w, http.StatusServiceUnavailable, "queue not configured")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.CRNs) == 0 {
		writeError(w, http.StatusBadRequest, "crns is required")
		return
	}

	var src model.RecalculationSource = model.LimitedRecalculation{}
	switch strings.ToUpper(req.Kind) {
	case "", model.KindLimitedRecalculation:
	case model.KindFullRecalculation:
		src = model.FullRecalculation{}
	default:
		writeError(w, http.StatusBadRequest, "kind must be FULL_RECALCULATION or LIMITED_RECALCULATION")
		return
	}

	now := s.deps.Now()
	triggers := make([]events.Trigger, 0, len(req.CRNs))
	for _, crn := range req.CRNs {
		if crn = strings.TrimSpace(crn); crn != "" {
			triggers = append(triggers, events.NewTrigger(crn, src, now))
		}
	}
	n, err := s.deps.Enqueuer.PublishMany(r.Context(), triggers)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "enqueued": n})
}

func (s *Server) uploadOverrides(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "overrides not configured")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	name := "upload.csv"
	if strings.Contains(r.Header.Get("Content-Type"), "spreadsheetml") {
		name = "upload.xlsx"
	}
	parsed, err := override.Parse(name, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Importer.Import(r.Context(), parsed, override.BatchID(data))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
