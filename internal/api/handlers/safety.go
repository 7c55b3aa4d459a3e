// Package handlers provides HTTP handlers for the clinic API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/clinicore/go-clinic-core/internal/api/middleware"
	"github.com/clinicore/go-clinic-core/internal/observability/metrics"
	"github.com/clinicore/go-clinic-core/internal/safety"
)

// SafetyHandler serves prescription safety validation.
type SafetyHandler struct {
	gate    *safety.Gate
	policy  safety.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewSafetyHandler creates a handler. The policy is resolved once from
// deployment configuration.
func NewSafetyHandler(gate *safety.Gate, policy safety.Policy, m *metrics.Metrics, logger *zap.Logger) *SafetyHandler {
	return &SafetyHandler{gate: gate, policy: policy, metrics: m, logger: logger}
}

// Routes returns the handler routes.
func (h *SafetyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validate", h.Validate)
	return r
}

// ValidateRequest is the request body for a safety-gate pass.
type ValidateRequest struct {
	Orders  []safety.ProposedOrder      `json:"orders"`
	Profile safety.PatientSafetyProfile `json:"profile"`
}

// Validate handles POST /prescriptions/validate.
func (h *SafetyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("safety-handler")
	_, span := tracer.Start(ctx, "validate_orders")
	defer span.End()

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Orders) == 0 {
		jsonError(w, "orders is required", http.StatusBadRequest)
		return
	}

	result := h.gate.Evaluate(req.Orders, req.Profile, h.policy)

	span.SetAttributes(
		attribute.Int("order_count", len(req.Orders)),
		attribute.Bool("valid", result.Valid),
	)
	if h.metrics != nil {
		h.metrics.ValidationsTotal.Inc()
		if !result.Valid {
			h.metrics.ValidationsBlocked.Inc()
		}
		for _, verdict := range result.OrderVerdicts {
			h.metrics.ViolationsByKind.WithLabelValues("dose").Add(float64(len(verdict.Errors)))
		}
		h.metrics.ViolationsByKind.WithLabelValues("interaction").Add(float64(len(result.InteractionWarnings)))
		h.metrics.ViolationsByKind.WithLabelValues("allergy").Add(float64(len(result.AllergyConflicts)))
	}

	h.logger.Info("orders validated",
		zap.Int("orders", len(req.Orders)),
		zap.Bool("valid", result.Valid),
		zap.Int("interaction_warnings", len(result.InteractionWarnings)),
		zap.Int("allergy_conflicts", len(result.AllergyConflicts)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
