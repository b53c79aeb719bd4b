package services

import (
	"context"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/jobs"
	"github.com/fabriqly/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	CustomizationRequest = domain.CustomizationRequest
	CustomizationStatus  = domain.CustomizationStatus
	Dispute              = domain.Dispute
	DisputeStatus        = domain.DisputeStatus
	DisputeTarget        = domain.DisputeTarget
	Eligibility          = domain.Eligibility
	FileReference        = domain.FileReference
	WorkflowEvent        = domain.WorkflowEvent
	Activity             = domain.Activity
	Notification         = domain.Notification
	ActorRole            = domain.ActorRole
)

// Actor identifies who is performing an operation and in which capacity.
type Actor struct {
	ID    string
	Role  ActorRole
	Admin bool
}

// CustomizationService orchestrates the customization request lifecycle.
type CustomizationService interface {
	Create(ctx context.Context, cmd CreateCustomizationCommand) (CustomizationRequest, error)
	Get(ctx context.Context, requestID string, actor Actor) (CustomizationRequest, error)
	ListByCustomer(ctx context.Context, cmd ListCustomizationsCommand) (domain.CursorPage[CustomizationRequest], error)
	ListByDesigner(ctx context.Context, cmd ListCustomizationsCommand) (domain.CursorPage[CustomizationRequest], error)
	ListUnclaimed(ctx context.Context, actor Actor, pager Pagination) (domain.CursorPage[CustomizationRequest], error)
	Claim(ctx context.Context, cmd ClaimCustomizationCommand) (CustomizationRequest, error)
	SelectShop(ctx context.Context, cmd SelectShopCommand) (CustomizationRequest, error)
	SubmitFinalWork(ctx context.Context, cmd SubmitFinalWorkCommand) (CustomizationRequest, error)
	Approve(ctx context.Context, cmd ApproveCustomizationCommand) (CustomizationRequest, error)
	Reject(ctx context.Context, cmd RejectCustomizationCommand) (CustomizationRequest, error)
	Resubmit(ctx context.Context, cmd ResubmitCustomizationCommand) (CustomizationRequest, error)
	LinkOrder(ctx context.Context, cmd LinkOrderCommand) (CustomizationRequest, error)
	Cancel(ctx context.Context, cmd CancelCustomizationCommand) (CustomizationRequest, error)
}

// DisputeService orchestrates dispute filing, negotiation, and escalation.
type DisputeService interface {
	File(ctx context.Context, cmd FileDisputeCommand) (Dispute, error)
	Get(ctx context.Context, disputeID string, actor Actor) (Dispute, error)
	List(ctx context.Context, cmd ListDisputesCommand) (domain.CursorPage[Dispute], error)
	CheckEligibility(ctx context.Context, query EligibilityQuery) (Eligibility, error)
	StartNegotiation(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error)
	Resolve(ctx context.Context, cmd ResolveDisputeCommand) (Dispute, error)
	Escalate(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error)
	Close(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error)
	// SweepOverdue escalates negotiating disputes past their deadline. Safe to
	// run concurrently; re-runs over the same disputes are no-ops.
	SweepOverdue(ctx context.Context, batchSize int) (SweepResult, error)
}

// OutboxDispatcher converts pending workflow events into their side effects:
// one activity record, per-recipient notifications, and a broker message.
type OutboxDispatcher interface {
	// Drain processes up to batchSize pending events, oldest first.
	Drain(ctx context.Context, batchSize int) (DrainResult, error)
	// DispatchEvent opportunistically processes a single event after commit.
	DispatchEvent(ctx context.Context, eventID string) error
}

// WorkflowEventPublisher hands workflow events to the message broker.
type WorkflowEventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, msg jobs.WorkflowEventMessage) (string, error)
}

// Commands --------------------------------------------------------------------

type CreateCustomizationCommand struct {
	Actor         Actor
	DesignFile    *FileReference
	CustomerNotes string
}

type ListCustomizationsCommand struct {
	Actor  Actor
	UserID string
	Status []CustomizationStatus
	Paging Pagination
}

type ClaimCustomizationCommand struct {
	Actor     Actor
	RequestID string
}

type SelectShopCommand struct {
	Actor     Actor
	RequestID string
	ShopID    string
}

type SubmitFinalWorkCommand struct {
	Actor         Actor
	RequestID     string
	FinalFile     FileReference
	DesignerNotes string
}

type ApproveCustomizationCommand struct {
	Actor     Actor
	RequestID string
}

type RejectCustomizationCommand struct {
	Actor     Actor
	RequestID string
	Reason    string
}

type ResubmitCustomizationCommand struct {
	Actor     Actor
	RequestID string
}

type LinkOrderCommand struct {
	Actor     Actor
	RequestID string
	OrderID   string
}

type CancelCustomizationCommand struct {
	Actor     Actor
	RequestID string
	Reason    string
}

type FileDisputeCommand struct {
	Actor  Actor
	Target DisputeTarget
	Reason string
}

type ListDisputesCommand struct {
	Actor  Actor
	UserID string
	Status []DisputeStatus
	Paging Pagination
}

type DisputeTransitionCommand struct {
	Actor     Actor
	DisputeID string
}

type ResolveDisputeCommand struct {
	Actor      Actor
	DisputeID  string
	Resolution string
}

// EligibilityQuery asks whether the actor may file a dispute against a target.
type EligibilityQuery struct {
	Actor  Actor
	Target DisputeTarget
}

// SweepResult summarises one overdue-dispute sweep pass.
type SweepResult struct {
	Scanned   int
	Escalated int
	SweptAt   time.Time
}

// DrainResult summarises one outbox drain pass.
type DrainResult struct {
	Scanned    int
	Dispatched int
	Failed     int
}

// UnitOfWork re-exports the repository transaction boundary for service wiring.
type UnitOfWork = repositories.UnitOfWork
