package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/auth"
	"github.com/fabriqly/api/internal/platform/httpx"
	"github.com/fabriqly/api/internal/services"
)

const maxDisputeRequestBody = 32 * 1024

// DisputeHandlers exposes the dispute filing and negotiation endpoints.
type DisputeHandlers struct {
	authn    *auth.Authenticator
	disputes services.DisputeService
}

// NewDisputeHandlers constructs a dispute handler set.
func NewDisputeHandlers(authn *auth.Authenticator, svc services.DisputeService) *DisputeHandlers {
	return &DisputeHandlers{
		authn:    authn,
		disputes: svc,
	}
}

// Routes registers the dispute endpoints beneath /disputes.
func (h *DisputeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}

	route.Post("/", h.file)
	route.Get("/", h.list)
	route.Get("/eligibility", h.eligibility)
	route.Get("/{disputeID}", h.get)
	route.Post("/{disputeID}:start-negotiation", h.startNegotiation)
	route.Post("/{disputeID}:resolve", h.resolve)
	route.Post("/{disputeID}:escalate", h.escalate)
	route.Post("/{disputeID}:close", h.close)
}

type disputeTargetPayload struct {
	OrderID                string `json:"order_id,omitempty"`
	CustomizationRequestID string `json:"customization_request_id,omitempty"`
}

type disputePayload struct {
	ID                  string               `json:"id"`
	Target              disputeTargetPayload `json:"target"`
	FilerID             string               `json:"filer_id"`
	RespondentID        string               `json:"respondent_id"`
	Status              string               `json:"status"`
	Reason              string               `json:"reason"`
	Resolution          string               `json:"resolution,omitempty"`
	FiledAt             string               `json:"filed_at"`
	NegotiationDeadline string               `json:"negotiation_deadline"`
	ResolvedAt          string               `json:"resolved_at,omitempty"`
	EscalatedAt         string               `json:"escalated_at,omitempty"`
	ClosedAt            string               `json:"closed_at,omitempty"`
	CreatedAt           string               `json:"created_at"`
	UpdatedAt           string               `json:"updated_at"`
}

type disputeListPayload struct {
	Items         []disputePayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func buildDisputePayload(dispute domain.Dispute) disputePayload {
	return disputePayload{
		ID: dispute.ID,
		Target: disputeTargetPayload{
			OrderID:                stringValue(dispute.Target.OrderID),
			CustomizationRequestID: stringValue(dispute.Target.CustomizationRequestID),
		},
		FilerID:             dispute.FilerID,
		RespondentID:        dispute.RespondentID,
		Status:              string(dispute.Status),
		Reason:              dispute.Reason,
		Resolution:          dispute.Resolution,
		FiledAt:             formatTime(dispute.FiledAt),
		NegotiationDeadline: formatTime(dispute.NegotiationDeadline),
		ResolvedAt:          formatTimePointer(dispute.ResolvedAt),
		EscalatedAt:         formatTimePointer(dispute.EscalatedAt),
		ClosedAt:            formatTimePointer(dispute.ClosedAt),
		CreatedAt:           formatTime(dispute.CreatedAt),
		UpdatedAt:           formatTime(dispute.UpdatedAt),
	}
}

type fileDisputeRequest struct {
	OrderID                string `json:"order_id"`
	CustomizationRequestID string `json:"customization_request_id"`
	Reason                 string `json:"reason"`
}

func (h *DisputeHandlers) file(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxDisputeRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req fileDisputeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	filed, err := h.disputes.File(ctx, services.FileDisputeCommand{
		Actor: actorFromIdentity(identity),
		Target: domain.DisputeTarget{
			OrderID:                stringPointer(req.OrderID),
			CustomizationRequestID: stringPointer(req.CustomizationRequestID),
		},
		Reason: req.Reason,
	})
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDisputePayload(filed))
}

func (h *DisputeHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.ListDisputesCommand{
		Actor:  actorFromIdentity(identity),
		UserID: firstNonEmpty(strings.TrimSpace(r.URL.Query().Get("user_id")), identity.UID),
		Paging: pager,
	}
	for _, status := range parseFilterValues(r.URL.Query()["status"]) {
		cmd.Status = append(cmd.Status, domain.DisputeStatus(status))
	}

	page, err := h.disputes.List(ctx, cmd)
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}

	items := make([]disputePayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildDisputePayload(item))
	}
	writeJSONResponse(w, http.StatusOK, disputeListPayload{Items: items, NextPageToken: page.NextPageToken})
}

type eligibilityPayload struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func (h *DisputeHandlers) eligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := services.EligibilityQuery{
		Actor: actorFromIdentity(identity),
		Target: domain.DisputeTarget{
			OrderID:                stringPointer(r.URL.Query().Get("order_id")),
			CustomizationRequestID: stringPointer(r.URL.Query().Get("customization_request_id")),
		},
	}

	eligibility, err := h.disputes.CheckEligibility(ctx, query)
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, eligibilityPayload{
		Eligible: eligibility.Eligible,
		Reason:   eligibility.Reason,
	})
}

func (h *DisputeHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	disputeID := strings.TrimSpace(chi.URLParam(r, "disputeID"))
	if disputeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dispute id is required", http.StatusBadRequest))
		return
	}

	dispute, err := h.disputes.Get(ctx, disputeID, actorFromIdentity(identity))
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDisputePayload(dispute))
}

func (h *DisputeHandlers) startNegotiation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
		return h.disputes.StartNegotiation(ctx, cmd)
	})
}

type resolveDisputeRequest struct {
	Resolution string `json:"resolution"`
}

func (h *DisputeHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	disputeID := strings.TrimSpace(chi.URLParam(r, "disputeID"))
	if disputeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dispute id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxDisputeRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req resolveDisputeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	resolved, err := h.disputes.Resolve(ctx, services.ResolveDisputeCommand{
		Actor:      actorFromIdentity(identity),
		DisputeID:  disputeID,
		Resolution: req.Resolution,
	})
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDisputePayload(resolved))
}

func (h *DisputeHandlers) escalate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
		return h.disputes.Escalate(ctx, cmd)
	})
}

func (h *DisputeHandlers) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
		return h.disputes.Close(ctx, cmd)
	})
}

func (h *DisputeHandlers) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, services.DisputeTransitionCommand) (domain.Dispute, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	disputeID := strings.TrimSpace(chi.URLParam(r, "disputeID"))
	if disputeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dispute id is required", http.StatusBadRequest))
		return
	}

	updated, err := fn(ctx, services.DisputeTransitionCommand{
		Actor:     actorFromIdentity(identity),
		DisputeID: disputeID,
	})
	if err != nil {
		writeDisputeError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDisputePayload(updated))
}

func writeDisputeError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrDisputeInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDisputeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "dispute not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDisputeForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrDisputeNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDisputeInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process dispute", http.StatusInternalServerError))
	}
}
