package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/repositories"
)

const (
	customizationIDPrefix = "creq_"
	eventIDPrefix         = "evt_"

	customizationTargetPrefix = "customizationRequests/"

	customizationEventCreated        = "customization.created"
	customizationEventClaimed        = "customization.claimed"
	customizationEventShopSelected   = "customization.shop_selected"
	customizationEventFinalSubmitted = "customization.final_work_submitted"
	customizationEventApproved       = "customization.approved"
	customizationEventRejected       = "customization.rejected"
	customizationEventResubmitted    = "customization.resubmitted"
	customizationEventCompleted      = "customization.completed"
	customizationEventCancelled      = "customization.cancelled"
)

var (
	// ErrCustomizationInvalidInput indicates validation failures for customization operations.
	ErrCustomizationInvalidInput = errors.New("customization: invalid input")
	// ErrCustomizationNotFound indicates the request could not be located.
	ErrCustomizationNotFound = errors.New("customization: not found")
	// ErrCustomizationForbidden indicates the actor may not act on the request.
	ErrCustomizationForbidden = errors.New("customization: forbidden")
	// ErrCustomizationConflict signals a lost claim race or duplicate order link.
	ErrCustomizationConflict = errors.New("customization: conflict")
	// ErrCustomizationInvalidTransition is returned for illegal status transitions.
	ErrCustomizationInvalidTransition = errors.New("customization: invalid state transition")
)

// CustomizationServiceDeps bundles collaborators required to construct a CustomizationService.
type CustomizationServiceDeps struct {
	Requests   repositories.CustomizationRequestRepository
	Shops      repositories.ShopProfileRepository
	Outbox     repositories.OutboxRepository
	Tx         UnitOfWork
	Dispatcher OutboxDispatcher
	Clock      func() time.Time
	NewID      func(prefix string) string
	Sanitizer  func(string) string
	Logger     *zap.Logger
}

type customizationService struct {
	requests   repositories.CustomizationRequestRepository
	shops      repositories.ShopProfileRepository
	outbox     repositories.OutboxRepository
	tx         UnitOfWork
	dispatcher OutboxDispatcher
	clock      func() time.Time
	newID      func(prefix string) string
	sanitize   func(string) string
	logger     *zap.Logger
}

// NewCustomizationService wires dependencies into a concrete CustomizationService.
func NewCustomizationService(deps CustomizationServiceDeps) (CustomizationService, error) {
	if deps.Requests == nil {
		return nil, errors.New("customization service: request repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("customization service: shop repository is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("customization service: outbox repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("customization service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func(prefix string) string {
			return prefix + ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeUserText
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &customizationService{
		requests:   deps.Requests,
		shops:      deps.Shops,
		outbox:     deps.Outbox,
		tx:         deps.Tx,
		dispatcher: deps.Dispatcher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    newID,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *customizationService) Create(ctx context.Context, cmd CreateCustomizationCommand) (CustomizationRequest, error) {
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: actor id is required", ErrCustomizationInvalidInput)
	}
	notes := s.sanitize(cmd.CustomerNotes)
	if notes == "" && cmd.DesignFile == nil {
		return CustomizationRequest{}, fmt.Errorf("%w: notes or a design file are required", ErrCustomizationInvalidInput)
	}
	if cmd.DesignFile != nil && strings.TrimSpace(cmd.DesignFile.ObjectPath) == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: design file object path is required", ErrCustomizationInvalidInput)
	}

	now := s.clock()
	request := domain.CustomizationRequest{
		ID:            s.newID(customizationIDPrefix),
		CustomerID:    cmd.Actor.ID,
		Status:        domain.CustomizationStatusPendingReview,
		DesignFile:    cmd.DesignFile,
		CustomerNotes: notes,
		RequestedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var eventID string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.Insert(txCtx, request); err != nil {
			return err
		}
		var err error
		eventID, err = s.appendEvent(txCtx, customizationEventCreated, request, cmd.Actor, nil, nil)
		return err
	})
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return request, nil
}

func (s *customizationService) Get(ctx context.Context, requestID string, actor Actor) (CustomizationRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: request id is required", ErrCustomizationInvalidInput)
	}
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}
	if !s.canRead(request, actor) {
		return CustomizationRequest{}, ErrCustomizationForbidden
	}
	return request, nil
}

func (s *customizationService) ListByCustomer(ctx context.Context, cmd ListCustomizationsCommand) (domain.CursorPage[CustomizationRequest], error) {
	userID, err := s.resolveListUser(cmd)
	if err != nil {
		return domain.CursorPage[CustomizationRequest]{}, err
	}
	page, err := s.requests.ListByCustomer(ctx, userID, repositories.CustomizationListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Paging,
	})
	if err != nil {
		return domain.CursorPage[CustomizationRequest]{}, s.mapError(err)
	}
	return page, nil
}

func (s *customizationService) ListByDesigner(ctx context.Context, cmd ListCustomizationsCommand) (domain.CursorPage[CustomizationRequest], error) {
	userID, err := s.resolveListUser(cmd)
	if err != nil {
		return domain.CursorPage[CustomizationRequest]{}, err
	}
	page, err := s.requests.ListByDesigner(ctx, userID, repositories.CustomizationListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Paging,
	})
	if err != nil {
		return domain.CursorPage[CustomizationRequest]{}, s.mapError(err)
	}
	return page, nil
}

func (s *customizationService) ListUnclaimed(ctx context.Context, actor Actor, pager Pagination) (domain.CursorPage[CustomizationRequest], error) {
	if actor.Role != domain.RoleDesigner && !actor.Admin {
		return domain.CursorPage[CustomizationRequest]{}, ErrCustomizationForbidden
	}
	page, err := s.requests.ListUnclaimed(ctx, pager)
	if err != nil {
		return domain.CursorPage[CustomizationRequest]{}, s.mapError(err)
	}
	return page, nil
}

func (s *customizationService) Claim(ctx context.Context, cmd ClaimCustomizationCommand) (CustomizationRequest, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: request id is required", ErrCustomizationInvalidInput)
	}
	if cmd.Actor.Role != domain.RoleDesigner {
		return CustomizationRequest{}, fmt.Errorf("%w: only designers may claim requests", ErrCustomizationForbidden)
	}

	now := s.clock()
	var (
		claimed CustomizationRequest
		eventID string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		claimed, err = s.requests.Claim(txCtx, requestID, cmd.Actor.ID, now)
		if err != nil {
			return err
		}
		eventID, err = s.appendEvent(txCtx, customizationEventClaimed, claimed, cmd.Actor,
			[]string{claimed.CustomerID}, nil)
		return err
	})
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return claimed, nil
}

func (s *customizationService) SelectShop(ctx context.Context, cmd SelectShopCommand) (CustomizationRequest, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	shopID := strings.TrimSpace(cmd.ShopID)
	if requestID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: request id is required", ErrCustomizationInvalidInput)
	}
	if shopID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: shop id is required", ErrCustomizationInvalidInput)
	}

	now := s.clock()
	var (
		updated CustomizationRequest
		eventID string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if !s.isOwner(request, cmd.Actor) {
			return fmt.Errorf("%w: only the owning customer may select a shop", ErrCustomizationForbidden)
		}
		if request.Status != domain.CustomizationStatusInProgress {
			return fmt.Errorf("%w: cannot select a shop in status %s", ErrCustomizationInvalidTransition, request.Status)
		}

		shop, err := s.shops.FindByID(txCtx, shopID)
		if err != nil {
			return s.mapShopError(err)
		}
		if !shop.Eligible() {
			return fmt.Errorf("%w: shop %s is not active and approved", ErrCustomizationInvalidInput, shopID)
		}

		request.ShopID = &shop.ID
		request.UpdatedAt = now
		if err := s.requests.Update(txCtx, request); err != nil {
			return err
		}

		recipients := []string{shop.OwnerID}
		if request.DesignerID != nil {
			recipients = append(recipients, *request.DesignerID)
		}
		updated = request
		eventID, err = s.appendEvent(txCtx, customizationEventShopSelected, request, cmd.Actor,
			recipients, map[string]any{"shopId": shop.ID})
		return err
	})
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return updated, nil
}

func (s *customizationService) SubmitFinalWork(ctx context.Context, cmd SubmitFinalWorkCommand) (CustomizationRequest, error) {
	if strings.TrimSpace(cmd.FinalFile.ObjectPath) == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: final file object path is required", ErrCustomizationInvalidInput)
	}
	finalFile := cmd.FinalFile
	notes := s.sanitize(cmd.DesignerNotes)

	return s.transition(ctx, cmd.RequestID, cmd.Actor, transitionSpec{
		to:        domain.CustomizationStatusAwaitingApproval,
		eventType: customizationEventFinalSubmitted,
		authorize: s.requireAssignedDesigner,
		mutate: func(request *domain.CustomizationRequest) {
			request.FinalFile = &finalFile
			request.DesignerNotes = notes
		},
		recipients: func(request domain.CustomizationRequest) []string {
			return []string{request.CustomerID}
		},
	})
}

func (s *customizationService) Approve(ctx context.Context, cmd ApproveCustomizationCommand) (CustomizationRequest, error) {
	return s.transition(ctx, cmd.RequestID, cmd.Actor, transitionSpec{
		to:        domain.CustomizationStatusApproved,
		eventType: customizationEventApproved,
		authorize: s.requireOwner,
		mutate: func(request *domain.CustomizationRequest) {
			approvedAt := request.UpdatedAt
			request.ApprovedAt = &approvedAt
		},
		recipients: designerRecipient,
	})
}

func (s *customizationService) Reject(ctx context.Context, cmd RejectCustomizationCommand) (CustomizationRequest, error) {
	reason := s.sanitize(cmd.Reason)
	if reason == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: rejection reason is required", ErrCustomizationInvalidInput)
	}
	return s.transition(ctx, cmd.RequestID, cmd.Actor, transitionSpec{
		to:        domain.CustomizationStatusRejected,
		eventType: customizationEventRejected,
		authorize: s.requireOwner,
		mutate: func(request *domain.CustomizationRequest) {
			request.RejectionReason = reason
		},
		recipients: designerRecipient,
		metadata:   map[string]any{"reason": reason},
	})
}

func (s *customizationService) Resubmit(ctx context.Context, cmd ResubmitCustomizationCommand) (CustomizationRequest, error) {
	return s.transition(ctx, cmd.RequestID, cmd.Actor, transitionSpec{
		to:        domain.CustomizationStatusInProgress,
		eventType: customizationEventResubmitted,
		authorize: s.requireAssignedDesigner,
		mutate: func(request *domain.CustomizationRequest) {
			request.RejectionReason = ""
		},
		recipients: func(request domain.CustomizationRequest) []string {
			return []string{request.CustomerID}
		},
	})
}

func (s *customizationService) LinkOrder(ctx context.Context, cmd LinkOrderCommand) (CustomizationRequest, error) {
	requestID := strings.TrimSpace(cmd.RequestID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if requestID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: request id is required", ErrCustomizationInvalidInput)
	}
	if orderID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: order id is required", ErrCustomizationInvalidInput)
	}

	now := s.clock()
	var (
		linked  CustomizationRequest
		eventID string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if !s.isOwner(request, cmd.Actor) && !cmd.Actor.Admin {
			return fmt.Errorf("%w: only the owning customer may link an order", ErrCustomizationForbidden)
		}
		if request.OrderID == nil && !domain.CanTransitionCustomization(request.Status, domain.CustomizationStatusCompleted) {
			return fmt.Errorf("%w: cannot move from %s to %s",
				ErrCustomizationInvalidTransition, request.Status, domain.CustomizationStatusCompleted)
		}

		linked, err = s.requests.LinkOrder(txCtx, requestID, orderID, now)
		if err != nil {
			return err
		}
		if linked.UpdatedAt.Before(now) {
			// Replayed link; no new event.
			return nil
		}
		eventID, err = s.appendEvent(txCtx, customizationEventCompleted, linked, cmd.Actor,
			designerRecipient(linked), map[string]any{"orderId": orderID})
		return err
	})
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return linked, nil
}

func (s *customizationService) Cancel(ctx context.Context, cmd CancelCustomizationCommand) (CustomizationRequest, error) {
	reason := s.sanitize(cmd.Reason)
	return s.transition(ctx, cmd.RequestID, cmd.Actor, transitionSpec{
		to:        domain.CustomizationStatusCancelled,
		eventType: customizationEventCancelled,
		authorize: func(request domain.CustomizationRequest, actor Actor) error {
			if s.isOwner(request, actor) || actor.Admin {
				return nil
			}
			return fmt.Errorf("%w: only the owning customer or an admin may cancel", ErrCustomizationForbidden)
		},
		mutate: func(request *domain.CustomizationRequest) {
			cancelledAt := request.UpdatedAt
			request.CancelledAt = &cancelledAt
		},
		recipients: designerRecipient,
		metadata:   map[string]any{"reason": reason},
	})
}

// transitionSpec describes one table-driven status transition.
type transitionSpec struct {
	to         domain.CustomizationStatus
	eventType  string
	authorize  func(domain.CustomizationRequest, Actor) error
	mutate     func(*domain.CustomizationRequest)
	recipients func(domain.CustomizationRequest) []string
	metadata   map[string]any
}

func (s *customizationService) transition(ctx context.Context, requestID string, actor Actor, spec transitionSpec) (CustomizationRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return CustomizationRequest{}, fmt.Errorf("%w: request id is required", ErrCustomizationInvalidInput)
	}

	now := s.clock()
	var (
		updated CustomizationRequest
		eventID string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		request, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := spec.authorize(request, actor); err != nil {
			return err
		}
		if !domain.CanTransitionCustomization(request.Status, spec.to) {
			return fmt.Errorf("%w: cannot move from %s to %s",
				ErrCustomizationInvalidTransition, request.Status, spec.to)
		}

		request.Status = spec.to
		request.UpdatedAt = now
		if spec.mutate != nil {
			spec.mutate(&request)
		}
		if err := s.requests.Update(txCtx, request); err != nil {
			return err
		}

		var recipients []string
		if spec.recipients != nil {
			recipients = spec.recipients(request)
		}
		updated = request
		eventID, err = s.appendEvent(txCtx, spec.eventType, request, actor, recipients, spec.metadata)
		return err
	})
	if err != nil {
		return CustomizationRequest{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return updated, nil
}

func (s *customizationService) appendEvent(ctx context.Context, eventType string, request domain.CustomizationRequest, actor Actor, recipients []string, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status"] = string(request.Status)

	event := domain.WorkflowEvent{
		ID:         s.newID(eventIDPrefix),
		Type:       eventType,
		TargetRef:  customizationTargetPrefix + request.ID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Recipients: dedupeRecipients(recipients, actor.ID),
		Metadata:   metadata,
		Status:     domain.OutboxStatusPending,
		OccurredAt: s.clock(),
	}
	if err := s.outbox.Append(ctx, event); err != nil {
		return "", err
	}
	return event.ID, nil
}

// dispatch attempts immediate side-effect delivery after commit. Failures are
// logged and left to the drain; they never fail the transition.
func (s *customizationService) dispatch(ctx context.Context, eventID string) {
	if s.dispatcher == nil || eventID == "" {
		return
	}
	if err := s.dispatcher.DispatchEvent(ctx, eventID); err != nil {
		s.logger.Warn("opportunistic event dispatch failed",
			zap.String("eventId", eventID),
			zap.Error(err))
	}
}

func (s *customizationService) resolveListUser(cmd ListCustomizationsCommand) (string, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = cmd.Actor.ID
	}
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrCustomizationInvalidInput)
	}
	if userID != cmd.Actor.ID && !cmd.Actor.Admin {
		return "", ErrCustomizationForbidden
	}
	return userID, nil
}

func (s *customizationService) canRead(request domain.CustomizationRequest, actor Actor) bool {
	if actor.Admin {
		return true
	}
	if actor.ID == "" {
		return false
	}
	if request.CustomerID == actor.ID {
		return true
	}
	return request.DesignerID != nil && *request.DesignerID == actor.ID
}

func (s *customizationService) isOwner(request domain.CustomizationRequest, actor Actor) bool {
	return actor.ID != "" && request.CustomerID == actor.ID
}

func (s *customizationService) requireOwner(request domain.CustomizationRequest, actor Actor) error {
	if s.isOwner(request, actor) {
		return nil
	}
	return fmt.Errorf("%w: only the owning customer may perform this action", ErrCustomizationForbidden)
}

func (s *customizationService) requireAssignedDesigner(request domain.CustomizationRequest, actor Actor) error {
	if actor.ID != "" && request.DesignerID != nil && *request.DesignerID == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: only the assigned designer may perform this action", ErrCustomizationForbidden)
}

func (s *customizationService) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCustomizationInvalidInput) ||
		errors.Is(err, ErrCustomizationForbidden) ||
		errors.Is(err, ErrCustomizationInvalidTransition) ||
		errors.Is(err, ErrCustomizationConflict) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCustomizationNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCustomizationConflict, repoErr.Error())
		}
	}
	return err
}

func (s *customizationService) mapShopError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: shop not found", ErrCustomizationInvalidInput)
	}
	return err
}

func designerRecipient(request domain.CustomizationRequest) []string {
	if request.DesignerID == nil {
		return nil
	}
	return []string{*request.DesignerID}
}

func dedupeRecipients(recipients []string, actorID string) []string {
	if len(recipients) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		trimmed := strings.TrimSpace(recipient)
		if trimmed == "" || trimmed == actorID {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
