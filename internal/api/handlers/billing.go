package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinicore/go-clinic-core/internal/api/middleware"
	"github.com/clinicore/go-clinic-core/internal/billing"
	"github.com/clinicore/go-clinic-core/internal/observability/metrics"
)

// BillingHandler serves queue-to-billing claims.
type BillingHandler struct {
	arbitrator *billing.Arbitrator
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewBillingHandler creates a handler.
func NewBillingHandler(arbitrator *billing.Arbitrator, m *metrics.Metrics, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{arbitrator: arbitrator, metrics: m, logger: logger}
}

// Routes returns the handler routes.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/claim", h.Claim)
	return r
}

// ClaimRequest is the request body for claiming a completed queue entry.
type ClaimRequest struct {
	LineItems []billing.LineItem `json:"line_items"`
}

// ClaimResponse is returned to the winning caller.
type ClaimResponse struct {
	QueueEntryID int64     `json:"queue_entry_id"`
	BillID       string    `json:"bill_id"`
	StaffID      string    `json:"staff_id"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// Claim handles POST /queue/{id}/claim. Exactly one caller per entry gets
// 200; losers get 409 carrying the winner's bill ID; retryable failures
// get 503.
func (h *BillingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	queueEntryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid queue entry id", http.StatusBadRequest)
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	staffID := middleware.GetStaffID(ctx)
	start := time.Now()
	claim, err := h.arbitrator.Claim(ctx, queueEntryID, staffID, req.LineItems)
	if h.metrics != nil {
		h.metrics.ClaimDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		h.claimError(w, r, queueEntryID, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ClaimsWon.Inc()
	}
	h.logger.Info("bill created",
		zap.Int64("queue_entry_id", queueEntryID),
		zap.String("bill_id", claim.BillID),
		zap.String("staff_id", staffID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ClaimResponse{
		QueueEntryID: claim.QueueEntryID,
		BillID:       claim.BillID,
		StaffID:      claim.StaffID,
		ClaimedAt:    claim.ClaimedAt,
	})
}

func (h *BillingHandler) claimError(w http.ResponseWriter, r *http.Request, queueEntryID int64, err error) {
	if conflict, ok := billing.IsConflict(err); ok {
		if h.metrics != nil {
			h.metrics.ClaimConflicts.Inc()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":            "queue entry already billed",
			"queue_entry_id":   conflict.QueueEntryID,
			"existing_bill_id": conflict.ExistingBillID,
		})
		return
	}

	if billing.IsTransient(err) {
		if h.metrics != nil {
			h.metrics.ClaimTransients.Inc()
		}
		w.Header().Set("Retry-After", "1")
		jsonError(w, "claim temporarily unavailable, retry", http.StatusServiceUnavailable)
		return
	}

	h.logger.Error("claim failed",
		zap.Int64("queue_entry_id", queueEntryID),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err))
	jsonError(w, "failed to create bill", http.StatusInternalServerError)
}
