package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/auth"
	"github.com/fabriqly/api/internal/platform/httpx"
	"github.com/fabriqly/api/internal/platform/storage"
	"github.com/fabriqly/api/internal/services"
)

const maxCustomizationRequestBody = 64 * 1024

// CustomizationHandlers exposes the customization request lifecycle endpoints.
type CustomizationHandlers struct {
	authn    *auth.Authenticator
	requests services.CustomizationService

	uploads       *storage.Client
	designsBucket string
	uploadTTL     time.Duration
	newUploadID   func() string
}

// CustomizationOption customises the handler set.
type CustomizationOption func(*CustomizationHandlers)

// WithUploadSigner wires signed upload URL issuance for design files.
func WithUploadSigner(client *storage.Client, bucket string, ttl time.Duration) CustomizationOption {
	return func(h *CustomizationHandlers) {
		h.uploads = client
		h.designsBucket = bucket
		h.uploadTTL = ttl
	}
}

// WithUploadIDGenerator overrides the upload identifier source, primarily for tests.
func WithUploadIDGenerator(gen func() string) CustomizationOption {
	return func(h *CustomizationHandlers) {
		if gen != nil {
			h.newUploadID = gen
		}
	}
}

// NewCustomizationHandlers constructs a customization handler set.
func NewCustomizationHandlers(authn *auth.Authenticator, svc services.CustomizationService, opts ...CustomizationOption) *CustomizationHandlers {
	h := &CustomizationHandlers{
		authn:    authn,
		requests: svc,
		newUploadID: func() string {
			return strings.ToLower(ulid.Make().String())
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the customization endpoints beneath /customizations.
func (h *CustomizationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireFirebaseAuth())
	}

	route.Post("/", h.create)
	route.Get("/", h.list)
	route.Get("/unclaimed", h.listUnclaimed)
	route.Get("/{requestID}", h.get)
	route.Post("/{requestID}:claim", h.claim)
	route.Post("/{requestID}:select-shop", h.selectShop)
	route.Post("/{requestID}:submit-final", h.submitFinal)
	route.Post("/{requestID}:approve", h.approve)
	route.Post("/{requestID}:reject", h.reject)
	route.Post("/{requestID}:resubmit", h.resubmit)
	route.Post("/{requestID}:link-order", h.linkOrder)
	route.Post("/{requestID}:cancel", h.cancel)
	route.Post("/{requestID}/files:sign", h.signUpload)
	route.Post("/{requestID}/files:download", h.signDownload)
}

type fileReferencePayload struct {
	Bucket     string `json:"bucket,omitempty"`
	ObjectPath string `json:"object_path"`
	FileName   string `json:"file_name"`
	URL        string `json:"url,omitempty"`
}

type customizationPayload struct {
	ID              string                `json:"id"`
	CustomerID      string                `json:"customer_id"`
	DesignerID      string                `json:"designer_id,omitempty"`
	ShopID          string                `json:"shop_id,omitempty"`
	Status          string                `json:"status"`
	DesignFile      *fileReferencePayload `json:"design_file,omitempty"`
	CustomerNotes   string                `json:"customer_notes,omitempty"`
	FinalFile       *fileReferencePayload `json:"final_file,omitempty"`
	DesignerNotes   string                `json:"designer_notes,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	OrderID         string                `json:"order_id,omitempty"`
	RequestedAt     string                `json:"requested_at"`
	AssignedAt      string                `json:"assigned_at,omitempty"`
	ApprovedAt      string                `json:"approved_at,omitempty"`
	CompletedAt     string                `json:"completed_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
}

type customizationListPayload struct {
	Items         []customizationPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

func buildFileReferencePayload(file *domain.FileReference) *fileReferencePayload {
	if file == nil {
		return nil
	}
	return &fileReferencePayload{
		Bucket:     file.Bucket,
		ObjectPath: file.ObjectPath,
		FileName:   file.FileName,
		URL:        file.URL,
	}
}

func buildCustomizationPayload(request domain.CustomizationRequest) customizationPayload {
	return customizationPayload{
		ID:              request.ID,
		CustomerID:      request.CustomerID,
		DesignerID:      stringValue(request.DesignerID),
		ShopID:          stringValue(request.ShopID),
		Status:          string(request.Status),
		DesignFile:      buildFileReferencePayload(request.DesignFile),
		CustomerNotes:   request.CustomerNotes,
		FinalFile:       buildFileReferencePayload(request.FinalFile),
		DesignerNotes:   request.DesignerNotes,
		RejectionReason: request.RejectionReason,
		OrderID:         stringValue(request.OrderID),
		RequestedAt:     formatTime(request.RequestedAt),
		AssignedAt:      formatTimePointer(request.AssignedAt),
		ApprovedAt:      formatTimePointer(request.ApprovedAt),
		CompletedAt:     formatTimePointer(request.CompletedAt),
		CancelledAt:     formatTimePointer(request.CancelledAt),
		CreatedAt:       formatTime(request.CreatedAt),
		UpdatedAt:       formatTime(request.UpdatedAt),
	}
}

func buildCustomizationListPayload(page domain.CursorPage[domain.CustomizationRequest]) customizationListPayload {
	items := make([]customizationPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildCustomizationPayload(item))
	}
	return customizationListPayload{Items: items, NextPageToken: page.NextPageToken}
}

type createCustomizationRequest struct {
	DesignFile    *fileReferencePayload `json:"design_file"`
	CustomerNotes string                `json:"customer_notes"`
}

func (h *CustomizationHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCustomizationRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createCustomizationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.CreateCustomizationCommand{
		Actor:         actorFromIdentity(identity),
		CustomerNotes: req.CustomerNotes,
	}
	if req.DesignFile != nil {
		cmd.DesignFile = &domain.FileReference{
			Bucket:     strings.TrimSpace(req.DesignFile.Bucket),
			ObjectPath: strings.TrimSpace(req.DesignFile.ObjectPath),
			FileName:   strings.TrimSpace(req.DesignFile.FileName),
			URL:        strings.TrimSpace(req.DesignFile.URL),
		}
	}

	created, err := h.requests.Create(ctx, cmd)
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCustomizationPayload(created))
}

func (h *CustomizationHandlers) list(w http.ResponseWriter, r *http.Request) {
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

	actor := actorFromIdentity(identity)
	cmd := services.ListCustomizationsCommand{
		Actor:  actor,
		UserID: firstNonEmpty(strings.TrimSpace(r.URL.Query().Get("user_id")), identity.UID),
		Paging: pager,
	}
	for _, status := range parseFilterValues(r.URL.Query()["status"]) {
		cmd.Status = append(cmd.Status, domain.CustomizationStatus(status))
	}

	var page domain.CursorPage[domain.CustomizationRequest]
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("role")), string(domain.RoleDesigner)) {
		page, err = h.requests.ListByDesigner(ctx, cmd)
	} else {
		page, err = h.requests.ListByCustomer(ctx, cmd)
	}
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomizationListPayload(page))
}

func (h *CustomizationHandlers) listUnclaimed(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.requests.ListUnclaimed(ctx, actorFromIdentity(identity), pager)
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomizationListPayload(page))
}

func (h *CustomizationHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	request, err := h.requests.Get(ctx, requestID, actorFromIdentity(identity))
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomizationPayload(request))
}

func (h *CustomizationHandlers) claim(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, _ []byte) (domain.CustomizationRequest, error) {
		return h.requests.Claim(ctx, services.ClaimCustomizationCommand{Actor: actor, RequestID: requestID})
	}, false)
}

type selectShopRequest struct {
	ShopID string `json:"shop_id"`
}

func (h *CustomizationHandlers) selectShop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error) {
		var req selectShopRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return domain.CustomizationRequest{}, errInvalidJSON
		}
		return h.requests.SelectShop(ctx, services.SelectShopCommand{
			Actor:     actor,
			RequestID: requestID,
			ShopID:    strings.TrimSpace(req.ShopID),
		})
	}, true)
}

type submitFinalRequest struct {
	FinalFile     fileReferencePayload `json:"final_file"`
	DesignerNotes string               `json:"designer_notes"`
}

func (h *CustomizationHandlers) submitFinal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error) {
		var req submitFinalRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return domain.CustomizationRequest{}, errInvalidJSON
		}
		return h.requests.SubmitFinalWork(ctx, services.SubmitFinalWorkCommand{
			Actor:     actor,
			RequestID: requestID,
			FinalFile: domain.FileReference{
				Bucket:     strings.TrimSpace(req.FinalFile.Bucket),
				ObjectPath: strings.TrimSpace(req.FinalFile.ObjectPath),
				FileName:   strings.TrimSpace(req.FinalFile.FileName),
				URL:        strings.TrimSpace(req.FinalFile.URL),
			},
			DesignerNotes: req.DesignerNotes,
		})
	}, true)
}

func (h *CustomizationHandlers) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, _ []byte) (domain.CustomizationRequest, error) {
		return h.requests.Approve(ctx, services.ApproveCustomizationCommand{Actor: actor, RequestID: requestID})
	}, false)
}

type rejectCustomizationRequest struct {
	Reason string `json:"reason"`
}

func (h *CustomizationHandlers) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error) {
		var req rejectCustomizationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return domain.CustomizationRequest{}, errInvalidJSON
		}
		return h.requests.Reject(ctx, services.RejectCustomizationCommand{
			Actor:     actor,
			RequestID: requestID,
			Reason:    req.Reason,
		})
	}, true)
}

func (h *CustomizationHandlers) resubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, _ []byte) (domain.CustomizationRequest, error) {
		return h.requests.Resubmit(ctx, services.ResubmitCustomizationCommand{Actor: actor, RequestID: requestID})
	}, false)
}

type linkOrderRequest struct {
	OrderID string `json:"order_id"`
}

func (h *CustomizationHandlers) linkOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error) {
		var req linkOrderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return domain.CustomizationRequest{}, errInvalidJSON
		}
		return h.requests.LinkOrder(ctx, services.LinkOrderCommand{
			Actor:     actor,
			RequestID: requestID,
			OrderID:   strings.TrimSpace(req.OrderID),
		})
	}, true)
}

type cancelCustomizationRequest struct {
	Reason string `json:"reason"`
}

func (h *CustomizationHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error) {
		var req cancelCustomizationRequest
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return domain.CustomizationRequest{}, errInvalidJSON
			}
		}
		return h.requests.Cancel(ctx, services.CancelCustomizationCommand{
			Actor:     actor,
			RequestID: requestID,
			Reason:    req.Reason,
		})
	}, false)
}

var errInvalidJSON = errors.New("invalid JSON payload")

type transitionFunc func(ctx context.Context, actor services.Actor, requestID string, body []byte) (domain.CustomizationRequest, error)

// transition factors the shared decode/authenticate/respond shape of the
// lifecycle operations. Operations without a mandatory body tolerate an
// empty one.
func (h *CustomizationHandlers) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc, requireBody bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCustomizationRequestBody)
	if err != nil {
		if !errors.Is(err, errEmptyBody) || requireBody {
			writeBodyError(ctx, w, err)
			return
		}
		body = nil
	}

	updated, err := fn(ctx, actorFromIdentity(identity), requestID, body)
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCustomizationPayload(updated))
}

type signUploadRequest struct {
	Purpose     string `json:"purpose"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	MaxSize     int64  `json:"max_size,omitempty"`
}

type signUploadResponse struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Bucket     string            `json:"bucket"`
	ObjectPath string            `json:"object_path"`
	ExpiresAt  string            `json:"expires_at"`
}

func (h *CustomizationHandlers) signUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil || h.designsBucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "file uploads not available", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCustomizationRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req signUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	actor := actorFromIdentity(identity)
	request, err := h.requests.Get(ctx, requestID, actor)
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}

	purpose := storage.FilePurpose(strings.ToLower(strings.TrimSpace(req.Purpose)))
	switch purpose {
	case storage.PurposeSourceFile:
		if !actor.Admin && actor.ID != request.CustomerID {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the requesting customer may upload source files", http.StatusForbidden))
			return
		}
	case storage.PurposeFinalWork, storage.PurposePreview:
		if !actor.Admin && (request.DesignerID == nil || actor.ID != *request.DesignerID) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the assigned designer may upload final work", http.StatusForbidden))
			return
		}
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "purpose must be source, final, or preview", http.StatusBadRequest))
		return
	}

	uploadID := h.newUploadID()
	objectPath, err := storage.BuildObjectPath(purpose, storage.PathParams{
		RequestID:    requestID,
		UploadID:     uploadID,
		SubmissionID: uploadID,
		FileName:     strings.TrimSpace(req.FileName),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	signed, err := h.uploads.SignedURL(ctx, h.designsBucket, objectPath, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:      http.MethodPut,
			ContentType: strings.TrimSpace(req.ContentType),
			MaxSize:     req.MaxSize,
			ExpiresIn:   h.uploadTTL,
		},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	writeJSONResponse(w, http.StatusOK, signUploadResponse{
		URL:        signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		Bucket:     h.designsBucket,
		ObjectPath: objectPath,
		ExpiresAt:  formatTime(signed.ExpiresAt),
	})
}

type signDownloadRequest struct {
	ObjectPath  string `json:"object_path"`
	Disposition string `json:"disposition,omitempty"`
}

type signDownloadResponse struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	ExpiresAt string `json:"expires_at"`
}

func (h *CustomizationHandlers) signDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.uploads == nil || h.designsBucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "file downloads not available", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(r)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	requestID := strings.TrimSpace(chi.URLParam(r, "requestID"))
	if requestID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCustomizationRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req signDownloadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	objectPath := strings.TrimSpace(req.ObjectPath)
	if !strings.HasPrefix(objectPath, "customizations/"+requestID+"/") {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "object path does not belong to this request", http.StatusBadRequest))
		return
	}

	actor := actorFromIdentity(identity)
	request, err := h.requests.Get(ctx, requestID, actor)
	if err != nil {
		writeCustomizationError(ctx, w, err)
		return
	}

	participants := []string{request.CustomerID}
	if request.DesignerID != nil {
		participants = append(participants, *request.DesignerID)
	}

	signed, err := h.uploads.SignedURL(ctx, h.designsBucket, objectPath, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			Method:          http.MethodGet,
			ExpiresIn:       h.uploadTTL,
			Disposition:     strings.TrimSpace(req.Disposition),
			Identity:        identity,
			ParticipantUIDs: participants,
		},
	})
	if err != nil {
		if errors.Is(err, storage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not a participant of this request", http.StatusForbidden))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	writeJSONResponse(w, http.StatusOK, signDownloadResponse{
		URL:       signed.URL,
		Method:    signed.Method,
		ExpiresAt: formatTime(signed.ExpiresAt),
	})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCustomizationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, errInvalidJSON):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomizationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomizationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "customization request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomizationForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrCustomizationConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCustomizationInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process customization request", http.StatusInternalServerError))
	}
}
