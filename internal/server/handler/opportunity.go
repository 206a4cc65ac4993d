package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/history"
)

// OpportunityService defines the read methods the opportunity handler
// requires.
type OpportunityService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.OpportunityRecord, error)
	ListBySymbol(ctx context.Context, symbol domain.Symbol, opts domain.ListOpts) ([]domain.OpportunityRecord, error)
	CountByOutcome(ctx context.Context, kind domain.OpportunityKind, since time.Time) (domain.OutcomeCounts, error)
}

// OpportunityHandler serves the opportunity, metrics, and trend endpoints.
type OpportunityHandler struct {
	svc    OpportunityService
	hist   *history.History
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc OpportunityService, hist *history.History, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, hist: hist, logger: logger}
}

// listResponse wraps list endpoints.
type listResponse struct {
	Opportunities []opportunityView `json:"opportunities"`
}

// opportunityView is the JSON shape of one record.
type opportunityView struct {
	ID         string                          `json:"id"`
	Kind       string                          `json:"kind"`
	Symbol     string                          `json:"symbol"`
	Outcome    string                          `json:"outcome"`
	Reason     string                          `json:"reason,omitempty"`
	Actionable bool                            `json:"actionable"`
	Risk       float64                         `json:"risk"`
	Confidence float64                         `json:"confidence"`
	RecordedAt time.Time                       `json:"recorded_at"`
	Funding    *domain.FundingRateOpportunity  `json:"funding,omitempty"`
	Basis      *domain.BasisTradingOpportunity `json:"basis,omitempty"`
}

func toView(rec domain.OpportunityRecord) opportunityView {
	v := opportunityView{
		ID:         rec.ID,
		Kind:       rec.Kind.String(),
		Symbol:     string(rec.Symbol),
		Outcome:    rec.Outcome.State.String(),
		Actionable: rec.Actionable,
		Risk:       rec.RiskScore(),
		Confidence: rec.ConfidenceScore(),
		RecordedAt: rec.RecordedAt,
		Funding:    rec.Funding,
		Basis:      rec.Basis,
	}
	if rec.Outcome.Reason != domain.ReasonNone {
		v.Reason = rec.Outcome.Reason.String()
	}
	return v
}

func toViews(recs []domain.OpportunityRecord) []opportunityView {
	views := make([]opportunityView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, toView(rec))
	}
	return views
}

// ListRecent returns the most recent opportunity records.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	recs, err := h.svc.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Opportunities: toViews(recs)})
}

// ListBySymbol returns records for one symbol.
// GET /api/opportunities/{symbol}?limit=50&offset=0&since=RFC3339
func (h *OpportunityHandler) ListBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	recs, err := h.svc.ListBySymbol(r.Context(), domain.Symbol(symbol), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities by symbol failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Opportunities: toViews(recs)})
}

// metricsResponse summarizes the in-memory window and the durable outcome
// counts over the trailing day.
type metricsResponse struct {
	Window  windowMetrics        `json:"window"`
	Durable map[string]countView `json:"durable_24h"`
}

type windowMetrics struct {
	Records int             `json:"records"`
	Funding kindMetricsView `json:"funding"`
	Basis   kindMetricsView `json:"basis"`
}

type kindMetricsView struct {
	Total          int64   `json:"total"`
	Accepted       int64   `json:"accepted"`
	Rejected       int64   `json:"rejected"`
	MeanRisk       float64 `json:"mean_risk"`
	MeanConfidence float64 `json:"mean_confidence"`
}

type countView struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

func toKindView(m history.KindMetrics) kindMetricsView {
	return kindMetricsView{
		Total:          m.Total,
		Accepted:       m.Accepted,
		Rejected:       m.Rejected,
		MeanRisk:       m.MeanRisk,
		MeanConfidence: m.MeanConfidence,
	}
}

// Metrics returns aggregate detection metrics.
// GET /api/metrics
func (h *OpportunityHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	agg := h.hist.Aggregate()
	resp := metricsResponse{
		Window: windowMetrics{
			Records: h.hist.Len(),
			Funding: toKindView(agg.Funding),
			Basis:   toKindView(agg.Basis),
		},
		Durable: map[string]countView{},
	}

	since := time.Now().Add(-24 * time.Hour)
	for _, kind := range []domain.OpportunityKind{domain.KindFundingRate, domain.KindBasis} {
		counts, err := h.svc.CountByOutcome(r.Context(), kind, since)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: count outcomes failed",
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.Durable[kind.String()] = countView{
			Accepted: counts.Accepted,
			Rejected: counts.Rejected,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// trendResponse is the JSON shape of a trend query.
type trendResponse struct {
	Symbol           string `json:"symbol"`
	Kind             string `json:"kind"`
	Sign             int    `json:"sign"`
	ConsecutiveTicks int    `json:"consecutive_ticks"`
	Persistent       bool   `json:"persistent"`
}

// Trend returns direction persistence for one symbol.
// GET /api/trends/{symbol}?kind=funding_rate&window=3
func (h *OpportunityHandler) Trend(w http.ResponseWriter, r *http.Request) {
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	kind := domain.KindFundingRate
	if r.URL.Query().Get("kind") == "basis" {
		kind = domain.KindBasis
	}

	window := 3
	if v := r.URL.Query().Get("window"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			window = n
		}
	}
	if window > 100 {
		window = 100
	}

	trend := h.hist.Trend(domain.Symbol(symbol), kind, window)
	writeJSON(w, http.StatusOK, trendResponse{
		Symbol:           string(trend.Symbol),
		Kind:             trend.Kind.String(),
		Sign:             trend.Sign,
		ConsecutiveTicks: trend.ConsecutiveTicks,
		Persistent:       trend.Persistent,
	})
}
