package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/auth"
	"github.com/fabriqly/api/internal/platform/storage"
	"github.com/fabriqly/api/internal/services"
)

type stubCustomizationService struct {
	createFunc         func(ctx context.Context, cmd services.CreateCustomizationCommand) (domain.CustomizationRequest, error)
	getFunc            func(ctx context.Context, requestID string, actor services.Actor) (domain.CustomizationRequest, error)
	listByCustomerFunc func(ctx context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error)
	listByDesignerFunc func(ctx context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error)
	listUnclaimedFunc  func(ctx context.Context, actor services.Actor, pager domain.Pagination) (domain.CursorPage[domain.CustomizationRequest], error)
	claimFunc          func(ctx context.Context, cmd services.ClaimCustomizationCommand) (domain.CustomizationRequest, error)
	selectShopFunc     func(ctx context.Context, cmd services.SelectShopCommand) (domain.CustomizationRequest, error)
	submitFinalFunc    func(ctx context.Context, cmd services.SubmitFinalWorkCommand) (domain.CustomizationRequest, error)
	approveFunc        func(ctx context.Context, cmd services.ApproveCustomizationCommand) (domain.CustomizationRequest, error)
	rejectFunc         func(ctx context.Context, cmd services.RejectCustomizationCommand) (domain.CustomizationRequest, error)
	resubmitFunc       func(ctx context.Context, cmd services.ResubmitCustomizationCommand) (domain.CustomizationRequest, error)
	linkOrderFunc      func(ctx context.Context, cmd services.LinkOrderCommand) (domain.CustomizationRequest, error)
	cancelFunc         func(ctx context.Context, cmd services.CancelCustomizationCommand) (domain.CustomizationRequest, error)
}

func (s *stubCustomizationService) Create(ctx context.Context, cmd services.CreateCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) Get(ctx context.Context, requestID string, actor services.Actor) (domain.CustomizationRequest, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, requestID, actor)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) ListByCustomer(ctx context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error) {
	if s.listByCustomerFunc != nil {
		return s.listByCustomerFunc(ctx, cmd)
	}
	return domain.CursorPage[domain.CustomizationRequest]{}, nil
}

func (s *stubCustomizationService) ListByDesigner(ctx context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error) {
	if s.listByDesignerFunc != nil {
		return s.listByDesignerFunc(ctx, cmd)
	}
	return domain.CursorPage[domain.CustomizationRequest]{}, nil
}

func (s *stubCustomizationService) ListUnclaimed(ctx context.Context, actor services.Actor, pager domain.Pagination) (domain.CursorPage[domain.CustomizationRequest], error) {
	if s.listUnclaimedFunc != nil {
		return s.listUnclaimedFunc(ctx, actor, pager)
	}
	return domain.CursorPage[domain.CustomizationRequest]{}, nil
}

func (s *stubCustomizationService) Claim(ctx context.Context, cmd services.ClaimCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.claimFunc != nil {
		return s.claimFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) SelectShop(ctx context.Context, cmd services.SelectShopCommand) (domain.CustomizationRequest, error) {
	if s.selectShopFunc != nil {
		return s.selectShopFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) SubmitFinalWork(ctx context.Context, cmd services.SubmitFinalWorkCommand) (domain.CustomizationRequest, error) {
	if s.submitFinalFunc != nil {
		return s.submitFinalFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) Approve(ctx context.Context, cmd services.ApproveCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.approveFunc != nil {
		return s.approveFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) Reject(ctx context.Context, cmd services.RejectCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.rejectFunc != nil {
		return s.rejectFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) Resubmit(ctx context.Context, cmd services.ResubmitCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.resubmitFunc != nil {
		return s.resubmitFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) LinkOrder(ctx context.Context, cmd services.LinkOrderCommand) (domain.CustomizationRequest, error) {
	if s.linkOrderFunc != nil {
		return s.linkOrderFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

func (s *stubCustomizationService) Cancel(ctx context.Context, cmd services.CancelCustomizationCommand) (domain.CustomizationRequest, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return domain.CustomizationRequest{}, nil
}

var _ services.CustomizationService = (*stubCustomizationService)(nil)

func customizationTestRouter(h *CustomizationHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/customizations", h.Routes)
	return r
}

func authenticatedRequest(method, target string, body []byte, identity *auth.Identity) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func customerIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleCustomer}}
}

func designerIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleDesigner}}
}

func TestCustomizationHandlersCreate(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	created := domain.CustomizationRequest{
		ID:            "creq_01",
		CustomerID:    "cust-1",
		Status:        domain.CustomizationStatusPendingReview,
		CustomerNotes: "green dragon motif",
		RequestedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var received services.CreateCustomizationCommand
	svc := &stubCustomizationService{
		createFunc: func(_ context.Context, cmd services.CreateCustomizationCommand) (domain.CustomizationRequest, error) {
			received = cmd
			return created, nil
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))
	body := []byte(`{"customer_notes":"green dragon motif","design_file":{"object_path":"customizations/tmp/ref.png","file_name":"ref.png"}}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.Actor.ID != "cust-1" || received.Actor.Role != domain.RoleCustomer {
		t.Fatalf("unexpected actor: %+v", received.Actor)
	}
	if received.DesignFile == nil || received.DesignFile.FileName != "ref.png" {
		t.Fatalf("expected design file to be forwarded, got %+v", received.DesignFile)
	}

	var payload customizationPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.ID != "creq_01" {
		t.Fatalf("expected id creq_01, got %s", payload.ID)
	}
	if payload.Status != string(domain.CustomizationStatusPendingReview) {
		t.Fatalf("expected pending status, got %s", payload.Status)
	}
}

func TestCustomizationHandlersCreateUnauthenticated(t *testing.T) {
	router := customizationTestRouter(NewCustomizationHandlers(nil, &stubCustomizationService{}))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/", []byte(`{"customer_notes":"x"}`), nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCustomizationHandlersGet(t *testing.T) {
	svc := &stubCustomizationService{
		getFunc: func(_ context.Context, requestID string, actor services.Actor) (domain.CustomizationRequest, error) {
			if requestID != "creq_01" {
				t.Fatalf("expected request id creq_01, got %s", requestID)
			}
			if actor.ID != "cust-1" {
				t.Fatalf("expected actor cust-1, got %s", actor.ID)
			}
			return domain.CustomizationRequest{ID: requestID, CustomerID: actor.ID}, nil
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/customizations/creq_01", nil, customerIdentity("cust-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCustomizationHandlersClaimConflict(t *testing.T) {
	svc := &stubCustomizationService{
		claimFunc: func(_ context.Context, cmd services.ClaimCustomizationCommand) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{}, services.ErrCustomizationConflict
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01:claim", nil, designerIdentity("des-1")))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestCustomizationHandlersClaimRoutesParam(t *testing.T) {
	var claimed string
	svc := &stubCustomizationService{
		claimFunc: func(_ context.Context, cmd services.ClaimCustomizationCommand) (domain.CustomizationRequest, error) {
			claimed = cmd.RequestID
			return domain.CustomizationRequest{ID: cmd.RequestID}, nil
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_42:claim", nil, designerIdentity("des-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if claimed != "creq_42" {
		t.Fatalf("expected request id creq_42, got %q", claimed)
	}
}

func TestCustomizationHandlersRejectRequiresBody(t *testing.T) {
	router := customizationTestRouter(NewCustomizationHandlers(nil, &stubCustomizationService{}))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01:reject", nil, customerIdentity("cust-1")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCustomizationHandlersLinkOrderInvalidTransition(t *testing.T) {
	svc := &stubCustomizationService{
		linkOrderFunc: func(_ context.Context, cmd services.LinkOrderCommand) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{}, services.ErrCustomizationInvalidTransition
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))
	body := []byte(`{"order_id":"ord-1"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01:link-order", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCustomizationHandlersListByRole(t *testing.T) {
	var designerCalls, customerCalls int
	svc := &stubCustomizationService{
		listByCustomerFunc: func(_ context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error) {
			customerCalls++
			if cmd.UserID != "cust-1" {
				t.Fatalf("expected user cust-1, got %s", cmd.UserID)
			}
			return domain.CursorPage[domain.CustomizationRequest]{}, nil
		},
		listByDesignerFunc: func(_ context.Context, cmd services.ListCustomizationsCommand) (domain.CursorPage[domain.CustomizationRequest], error) {
			designerCalls++
			if len(cmd.Status) != 2 {
				t.Fatalf("expected 2 status filters, got %v", cmd.Status)
			}
			return domain.CursorPage[domain.CustomizationRequest]{}, nil
		},
	}

	router := customizationTestRouter(NewCustomizationHandlers(nil, svc))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/customizations/", nil, customerIdentity("cust-1")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/customizations/?role=designer&status=in_progress,awaiting_customer_approval", nil, designerIdentity("des-1")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if customerCalls != 1 || designerCalls != 1 {
		t.Fatalf("expected one call per list, got customer=%d designer=%d", customerCalls, designerCalls)
	}
}

func TestCustomizationHandlersListRejectsInvalidPageSize(t *testing.T) {
	router := customizationTestRouter(NewCustomizationHandlers(nil, &stubCustomizationService{}))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/customizations/?page_size=-3", nil, customerIdentity("cust-1")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

type handlerFakeSigner struct{}

func (handlerFakeSigner) Email() string { return "signer@fabriqly.iam.gserviceaccount.com" }

func (handlerFakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

func uploadTestHandlers(t *testing.T, svc services.CustomizationService) *CustomizationHandlers {
	t.Helper()
	client, err := storage.NewClient(handlerFakeSigner{},
		storage.WithClock(func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new storage client: %v", err)
	}
	return NewCustomizationHandlers(nil, svc,
		WithUploadSigner(client, "fabriqly-designs", 15*time.Minute),
		WithUploadIDGenerator(func() string { return "upl0001" }),
	)
}

func TestCustomizationHandlersSignUpload(t *testing.T) {
	designer := "des-1"
	svc := &stubCustomizationService{
		getFunc: func(_ context.Context, requestID string, _ services.Actor) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{ID: requestID, CustomerID: "cust-1", DesignerID: &designer}, nil
		},
	}

	router := customizationTestRouter(uploadTestHandlers(t, svc))
	body := []byte(`{"purpose":"source","file_name":"art.png","content_type":"image/png"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:sign", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload signUploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.URL == "" {
		t.Fatal("expected signed url")
	}
	if payload.Method != http.MethodPut {
		t.Fatalf("expected PUT method, got %s", payload.Method)
	}
	if want := "customizations/creq_01/sources/upl0001/art.png"; payload.ObjectPath != want {
		t.Fatalf("expected object path %s, got %s", want, payload.ObjectPath)
	}
	if !strings.Contains(payload.URL, "fabriqly-designs") {
		t.Fatalf("expected bucket in url, got %s", payload.URL)
	}
}

func TestCustomizationHandlersSignUploadFinalRequiresDesigner(t *testing.T) {
	designer := "des-1"
	svc := &stubCustomizationService{
		getFunc: func(_ context.Context, requestID string, _ services.Actor) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{ID: requestID, CustomerID: "cust-1", DesignerID: &designer}, nil
		},
	}

	router := customizationTestRouter(uploadTestHandlers(t, svc))
	body := []byte(`{"purpose":"final","file_name":"final.pdf","content_type":"application/pdf"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:sign", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestCustomizationHandlersSignDownload(t *testing.T) {
	designer := "des-1"
	svc := &stubCustomizationService{
		getFunc: func(_ context.Context, requestID string, _ services.Actor) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{ID: requestID, CustomerID: "cust-1", DesignerID: &designer}, nil
		},
	}

	router := customizationTestRouter(uploadTestHandlers(t, svc))
	body := []byte(`{"object_path":"customizations/creq_01/final/sub0001/final.pdf"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:download", body, designerIdentity("des-1")))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload signDownloadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if payload.URL == "" || payload.Method != http.MethodGet {
		t.Fatalf("unexpected download payload: %+v", payload)
	}
}

func TestCustomizationHandlersSignDownloadRejectsNonParticipant(t *testing.T) {
	designer := "des-1"
	svc := &stubCustomizationService{
		getFunc: func(_ context.Context, requestID string, _ services.Actor) (domain.CustomizationRequest, error) {
			return domain.CustomizationRequest{ID: requestID, CustomerID: "cust-1", DesignerID: &designer}, nil
		},
	}

	router := customizationTestRouter(uploadTestHandlers(t, svc))
	body := []byte(`{"object_path":"customizations/creq_01/final/sub0001/final.pdf"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:download", body, customerIdentity("other")))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestCustomizationHandlersSignDownloadRejectsForeignPath(t *testing.T) {
	router := customizationTestRouter(uploadTestHandlers(t, &stubCustomizationService{}))
	body := []byte(`{"object_path":"customizations/creq_99/final/sub0001/final.pdf"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:download", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCustomizationHandlersSignUploadUnavailableWithoutSigner(t *testing.T) {
	router := customizationTestRouter(NewCustomizationHandlers(nil, &stubCustomizationService{}))
	body := []byte(`{"purpose":"source","file_name":"art.png","content_type":"image/png"}`)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/customizations/creq_01/files:sign", body, customerIdentity("cust-1")))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
