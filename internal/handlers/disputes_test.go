package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/auth"
	"github.com/fabriqly/api/internal/services"
)

type stubDisputeService struct {
	fileFunc             func(ctx context.Context, cmd services.FileDisputeCommand) (domain.Dispute, error)
	getFunc              func(ctx context.Context, disputeID string, actor services.Actor) (domain.Dispute, error)
	listFunc             func(ctx context.Context, cmd services.ListDisputesCommand) (domain.CursorPage[domain.Dispute], error)
	eligibilityFunc      func(ctx context.Context, query services.EligibilityQuery) (domain.Eligibility, error)
	startNegotiationFunc func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error)
	resolveFunc          func(ctx context.Context, cmd services.ResolveDisputeCommand) (domain.Dispute, error)
	escalateFunc         func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error)
	closeFunc            func(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error)
	sweepFunc            func(ctx context.Context, batchSize int) (services.SweepResult, error)
}

func (s *stubDisputeService) File(ctx context.Context, cmd services.FileDisputeCommand) (domain.Dispute, error) {
	if s.fileFunc != nil {
		return s.fileFunc(ctx, cmd)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) Get(ctx context.Context, disputeID string, actor services.Actor) (domain.Dispute, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, disputeID, actor)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) List(ctx context.Context, cmd services.ListDisputesCommand) (domain.CursorPage[domain.Dispute], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, cmd)
	}
	return domain.CursorPage[domain.Dispute]{}, nil
}

func (s *stubDisputeService) CheckEligibility(ctx context.Context, query services.EligibilityQuery) (domain.Eligibility, error) {
	if s.eligibilityFunc != nil {
		return s.eligibilityFunc(ctx, query)
	}
	return domain.Eligibility{}, nil
}

func (s *stubDisputeService) StartNegotiation(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
	if s.startNegotiationFunc != nil {
		return s.startNegotiationFunc(ctx, cmd)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) Resolve(ctx context.Context, cmd services.ResolveDisputeCommand) (domain.Dispute, error) {
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, cmd)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) Escalate(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
	if s.escalateFunc != nil {
		return s.escalateFunc(ctx, cmd)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) Close(ctx context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
	if s.closeFunc != nil {
		return s.closeFunc(ctx, cmd)
	}
	return domain.Dispute{}, nil
}

func (s *stubDisputeService) SweepOverdue(ctx context.Context, batchSize int) (services.SweepResult, error) {
	if s.sweepFunc != nil {
		return s.sweepFunc(ctx, batchSize)
	}
	return services.SweepResult{}, nil
}

var _ services.DisputeService = (*stubDisputeService)(nil)

func disputeTestRouter(h *DisputeHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/disputes", h.Routes)
	return r
}

func TestDisputeHandlersFile(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	requestID := "creq_01"
	filed := domain.Dispute{
		ID:                  "dsp_01",
		Target:              domain.DisputeTarget{CustomizationRequestID: &requestID},
		FilerID:             "cust-1",
		RespondentID:        "des-1",
		Status:              domain.DisputeStatusFiled,
		Reason:              "final work does not match the brief",
		FiledAt:             now,
		NegotiationDeadline: now.Add(48 * time.Hour),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	var received services.FileDisputeCommand
	svc := &stubDisputeService{
		fileFunc: func(_ context.Context, cmd services.FileDisputeCommand) (domain.Dispute, error) {
			received = cmd
			return filed, nil
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	body := []byte(`{"customization_request_id":"creq_01","reason":"final work does not match the brief"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/disputes/", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.Actor.ID != "cust-1" {
		t.Fatalf("expected actor cust-1, got %s", received.Actor.ID)
	}
	if received.Target.CustomizationRequestID == nil || *received.Target.CustomizationRequestID != "creq_01" {
		t.Fatalf("expected customization target, got %+v", received.Target)
	}
	if received.Target.OrderID != nil {
		t.Fatalf("expected no order target, got %v", *received.Target.OrderID)
	}

	var payload disputePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.ID != "dsp_01" {
		t.Fatalf("expected id dsp_01, got %s", payload.ID)
	}
	if payload.Target.CustomizationRequestID != "creq_01" {
		t.Fatalf("expected target creq_01, got %s", payload.Target.CustomizationRequestID)
	}
	if payload.NegotiationDeadline != formatTime(now.Add(48*time.Hour)) {
		t.Fatalf("unexpected deadline %s", payload.NegotiationDeadline)
	}
}

func TestDisputeHandlersFileNotEligible(t *testing.T) {
	svc := &stubDisputeService{
		fileFunc: func(_ context.Context, cmd services.FileDisputeCommand) (domain.Dispute, error) {
			return domain.Dispute{}, services.ErrDisputeNotEligible
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	body := []byte(`{"order_id":"ord-1","reason":"damaged goods"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/disputes/", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestDisputeHandlersEligibility(t *testing.T) {
	svc := &stubDisputeService{
		eligibilityFunc: func(_ context.Context, query services.EligibilityQuery) (domain.Eligibility, error) {
			if query.Target.OrderID == nil || *query.Target.OrderID != "ord-1" {
				t.Fatalf("expected order target, got %+v", query.Target)
			}
			return domain.Eligibility{Eligible: false, Reason: "dispute filing window has elapsed"}, nil
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/disputes/eligibility?order_id=ord-1", nil, customerIdentity("cust-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload eligibilityPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.Eligible {
		t.Fatal("expected ineligible result")
	}
	if payload.Reason != "dispute filing window has elapsed" {
		t.Fatalf("unexpected reason %q", payload.Reason)
	}
}

func TestDisputeHandlersGetForbidden(t *testing.T) {
	svc := &stubDisputeService{
		getFunc: func(_ context.Context, disputeID string, actor services.Actor) (domain.Dispute, error) {
			return domain.Dispute{}, services.ErrDisputeForbidden
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/disputes/dsp_01", nil, customerIdentity("stranger")))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestDisputeHandlersResolve(t *testing.T) {
	var received services.ResolveDisputeCommand
	svc := &stubDisputeService{
		resolveFunc: func(_ context.Context, cmd services.ResolveDisputeCommand) (domain.Dispute, error) {
			received = cmd
			return domain.Dispute{ID: cmd.DisputeID, Status: domain.DisputeStatusResolved, Resolution: cmd.Resolution}, nil
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	body := []byte(`{"resolution":"designer reworks the file at no charge"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/disputes/dsp_01:resolve", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.DisputeID != "dsp_01" {
		t.Fatalf("expected dispute dsp_01, got %s", received.DisputeID)
	}
	if received.Resolution != "designer reworks the file at no charge" {
		t.Fatalf("unexpected resolution %q", received.Resolution)
	}
}

func TestDisputeHandlersClose(t *testing.T) {
	var closed string
	svc := &stubDisputeService{
		closeFunc: func(_ context.Context, cmd services.DisputeTransitionCommand) (domain.Dispute, error) {
			closed = cmd.DisputeID
			return domain.Dispute{ID: cmd.DisputeID, Status: domain.DisputeStatusClosed}, nil
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	rr := httptest.NewRecorder()

	admin := &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/disputes/dsp_01:close", nil, admin))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if closed != "dsp_01" {
		t.Fatalf("expected dispute dsp_01, got %q", closed)
	}
}

func TestDisputeHandlersListFilters(t *testing.T) {
	svc := &stubDisputeService{
		listFunc: func(_ context.Context, cmd services.ListDisputesCommand) (domain.CursorPage[domain.Dispute], error) {
			if cmd.UserID != "cust-1" {
				t.Fatalf("expected user cust-1, got %s", cmd.UserID)
			}
			if len(cmd.Status) != 2 || cmd.Status[0] != domain.DisputeStatusFiled || cmd.Status[1] != domain.DisputeStatusNegotiating {
				t.Fatalf("unexpected status filters %v", cmd.Status)
			}
			if cmd.Paging.PageSize != 5 {
				t.Fatalf("expected page size 5, got %d", cmd.Paging.PageSize)
			}
			return domain.CursorPage[domain.Dispute]{NextPageToken: "next"}, nil
		},
	}

	router := disputeTestRouter(NewDisputeHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/disputes/?status=filed,negotiating&page_size=5", nil, customerIdentity("cust-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload disputeListPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.NextPageToken != "next" {
		t.Fatalf("expected next page token, got %q", payload.NextPageToken)
	}
}
