package repositories

import (
	"context"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	CustomizationRequests() CustomizationRequestRepository
	Disputes() DisputeRepository
	Shops() ShopProfileRepository
	Orders() OrderSnapshotRepository
	Activities() ActivityRepository
	Notifications() NotificationRepository
	Outbox() OutboxRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into a single transactional boundary.
// Writes issued through the registry's repositories inside fn commit atomically,
// which is how state transitions and their outbox events stay consistent.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomizationRequestRepository persists customization requests and enforces
// claim/link uniqueness at the storage layer.
type CustomizationRequestRepository interface {
	Insert(ctx context.Context, request domain.CustomizationRequest) error
	Update(ctx context.Context, request domain.CustomizationRequest) error
	FindByID(ctx context.Context, requestID string) (domain.CustomizationRequest, error)
	// Claim assigns the designer if and only if the request is still awaiting
	// review and has no designer. A lost race surfaces as a conflict error.
	Claim(ctx context.Context, requestID string, designerID string, now time.Time) (domain.CustomizationRequest, error)
	// LinkOrder records the order created from the approved design. A request
	// that already carries an order ref yields a conflict error.
	LinkOrder(ctx context.Context, requestID string, orderID string, now time.Time) (domain.CustomizationRequest, error)
	ListByCustomer(ctx context.Context, customerID string, filter CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error)
	ListByDesigner(ctx context.Context, designerID string, filter CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error)
	// ListUnclaimed returns requests awaiting a designer, oldest first.
	ListUnclaimed(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CustomizationRequest], error)
}

// DisputeRepository persists disputes and supports the negotiation-deadline sweep.
type DisputeRepository interface {
	Insert(ctx context.Context, dispute domain.Dispute) error
	Update(ctx context.Context, dispute domain.Dispute) error
	FindByID(ctx context.Context, disputeID string) (domain.Dispute, error)
	// FindOpenByTarget returns the open dispute a filer holds against the target,
	// if any. Used to reject duplicate filings.
	FindOpenByTarget(ctx context.Context, targetRef string, filerID string) (domain.Dispute, bool, error)
	// Escalate moves a negotiating dispute to escalated. Already-escalated
	// disputes are left untouched so concurrent sweeps stay idempotent.
	Escalate(ctx context.Context, disputeID string, now time.Time) (domain.Dispute, bool, error)
	// ListOverdue returns negotiating disputes whose deadline passed before cutoff.
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error)
	ListByParticipant(ctx context.Context, participantID string, filter DisputeListFilter) (domain.CursorPage[domain.Dispute], error)
}

// ShopProfileRepository reads shop state for selection eligibility guards.
type ShopProfileRepository interface {
	FindByID(ctx context.Context, shopID string) (domain.ShopProfile, error)
	Upsert(ctx context.Context, shop domain.ShopProfile) error
}

// OrderSnapshotRepository reads order projections maintained by the external
// order system. This service never writes orders.
type OrderSnapshotRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.OrderSnapshot, error)
}

// ActivityRepository stores the append-only audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, activity domain.Activity) error
	ListByTarget(ctx context.Context, targetRef string, pager domain.Pagination) (domain.CursorPage[domain.Activity], error)
}

// NotificationRepository stores per-recipient workflow notifications.
type NotificationRepository interface {
	Append(ctx context.Context, notification domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, filter NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, recipientID string, notificationID string) error
}

// OutboxRepository stores workflow events pending side-effect dispatch.
type OutboxRepository interface {
	Append(ctx context.Context, event domain.WorkflowEvent) error
	FindByID(ctx context.Context, eventID string) (domain.WorkflowEvent, error)
	// ListPending returns undispatched events, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.WorkflowEvent, error)
	MarkDispatched(ctx context.Context, eventID string, dispatchedAt time.Time) error
	// MarkFailed increments the attempt counter and records the failure. Events
	// that exhaust maxAttempts flip to failed and drop out of the pending scan.
	MarkFailed(ctx context.Context, eventID string, cause string, maxAttempts int) (domain.WorkflowEvent, error)
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type CustomizationListFilter struct {
	Status     []domain.CustomizationStatus
	Pagination domain.Pagination
}

type DisputeListFilter struct {
	Status     []domain.DisputeStatus
	Pagination domain.Pagination
}

type NotificationListFilter struct {
	UnreadOnly bool
	Pagination domain.Pagination
}
