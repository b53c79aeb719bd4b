package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ActorRole identifies the capacity in which a user acts on a workflow entity.
type ActorRole string

const (
	// RoleCustomer marks the user who created an order or customization request.
	RoleCustomer ActorRole = "customer"
	// RoleDesigner marks the designer assigned to a customization request.
	RoleDesigner ActorRole = "designer"
	// RoleShopOwner marks the owner of a printing shop involved in fulfilment.
	RoleShopOwner ActorRole = "shop_owner"
	// RoleAdmin marks platform staff with escalation authority.
	RoleAdmin ActorRole = "admin"
)

// CustomizationStatus enumerates valid lifecycle states for customization requests.
type CustomizationStatus string

const (
	// CustomizationStatusPendingReview indicates the request awaits a designer claim.
	CustomizationStatusPendingReview CustomizationStatus = "pending_designer_review"
	// CustomizationStatusInProgress indicates a designer is actively working on the request.
	CustomizationStatusInProgress CustomizationStatus = "in_progress"
	// CustomizationStatusAwaitingApproval indicates final work awaits the customer's verdict.
	CustomizationStatusAwaitingApproval CustomizationStatus = "awaiting_customer_approval"
	// CustomizationStatusApproved indicates the customer accepted the final work.
	CustomizationStatusApproved CustomizationStatus = "approved"
	// CustomizationStatusRejected indicates the customer declined the final work.
	CustomizationStatusRejected CustomizationStatus = "rejected"
	// CustomizationStatusCompleted indicates an order was created from the approved design.
	CustomizationStatusCompleted CustomizationStatus = "completed"
	// CustomizationStatusCancelled indicates the request was abandoned before completion.
	CustomizationStatusCancelled CustomizationStatus = "cancelled"
)

// FileReference points at a stored design file with its public URL, when issued.
type FileReference struct {
	Bucket     string
	ObjectPath string
	FileName   string
	URL        string
}

// CustomizationRequest captures a customer's ask for bespoke design work.
type CustomizationRequest struct {
	ID         string
	CustomerID string
	DesignerID *string
	ShopID     *string

	Status CustomizationStatus

	DesignFile      *FileReference
	CustomerNotes   string
	FinalFile       *FileReference
	DesignerNotes   string
	RejectionReason string

	// OrderID is set exactly once, when an order is created from the approved design.
	OrderID *string

	RequestedAt time.Time
	AssignedAt  *time.Time
	ApprovedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assigned reports whether a designer has claimed the request.
func (r CustomizationRequest) Assigned() bool {
	return r.DesignerID != nil && *r.DesignerID != ""
}

// Terminal reports whether the request has reached a terminal status.
func (r CustomizationRequest) Terminal() bool {
	switch r.Status {
	case CustomizationStatusCompleted, CustomizationStatusCancelled:
		return true
	}
	return false
}

// OrderSnapshot carries the slice of order state the workflow needs. Orders
// are owned by an external system; this is a read-only projection.
type OrderSnapshot struct {
	ID              string
	CustomerID      string
	ShopID          string
	ShopOwnerID     string
	Status          string
	StatusChangedAt time.Time
}

// Party reports whether the user participates in the order.
func (o OrderSnapshot) Party(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == o.CustomerID || userID == o.ShopOwnerID
}

// DisputeStatus enumerates valid lifecycle states for disputes.
type DisputeStatus string

const (
	// DisputeStatusFiled indicates the dispute has been submitted.
	DisputeStatusFiled DisputeStatus = "filed"
	// DisputeStatusNegotiating indicates the parties are inside the negotiation window.
	DisputeStatusNegotiating DisputeStatus = "negotiating"
	// DisputeStatusResolved indicates both parties agreed on an outcome.
	DisputeStatusResolved DisputeStatus = "resolved"
	// DisputeStatusEscalated indicates the dispute moved to admin-mediated resolution.
	DisputeStatusEscalated DisputeStatus = "escalated"
	// DisputeStatusClosed indicates the dispute is finished.
	DisputeStatusClosed DisputeStatus = "closed"
)

// DisputeTarget references the disputed entity. Exactly one field is set.
type DisputeTarget struct {
	OrderID                *string
	CustomizationRequestID *string
}

// Valid reports whether exactly one target reference is present.
func (t DisputeTarget) Valid() bool {
	hasOrder := t.OrderID != nil && *t.OrderID != ""
	hasRequest := t.CustomizationRequestID != nil && *t.CustomizationRequestID != ""
	return hasOrder != hasRequest
}

// Ref returns a stable string reference for the target, used for deduplication.
func (t DisputeTarget) Ref() string {
	if t.OrderID != nil && *t.OrderID != "" {
		return "orders/" + *t.OrderID
	}
	if t.CustomizationRequestID != nil && *t.CustomizationRequestID != "" {
		return "customizationRequests/" + *t.CustomizationRequestID
	}
	return ""
}

// Dispute represents a disagreement over an order or customization request.
type Dispute struct {
	ID           string
	Target       DisputeTarget
	FilerID      string
	RespondentID string

	Status     DisputeStatus
	Reason     string
	Resolution string

	FiledAt             time.Time
	NegotiationDeadline time.Time
	ResolvedAt          *time.Time
	EscalatedAt         *time.Time
	ClosedAt            *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Open reports whether the dispute still blocks a new filing for the same target+filer.
func (d Dispute) Open() bool {
	return d.Status != DisputeStatusClosed
}

// Overdue reports whether the negotiation window has elapsed without resolution.
func (d Dispute) Overdue(now time.Time) bool {
	return d.Status == DisputeStatusNegotiating && now.After(d.NegotiationDeadline)
}

// Eligibility is the outcome of a dispute filing eligibility check.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// ShopStatus enumerates approval states for printing shop profiles.
type ShopStatus string

const (
	// ShopStatusPending indicates the shop awaits platform approval.
	ShopStatusPending ShopStatus = "pending"
	// ShopStatusApproved indicates the shop may receive work.
	ShopStatusApproved ShopStatus = "approved"
	// ShopStatusSuspended indicates the shop is temporarily blocked.
	ShopStatusSuspended ShopStatus = "suspended"
)

// ShopProfile carries the subset of shop data the workflow needs for guards.
type ShopProfile struct {
	ID        string
	OwnerID   string
	Name      string
	Status    ShopStatus
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligible reports whether the shop may be selected for a customization request.
func (s ShopProfile) Eligible() bool {
	return s.IsActive && s.Status == ShopStatusApproved
}

// Activity is an append-only audit record written on every workflow transition.
type Activity struct {
	ID        string
	ActorID   string
	ActorRole ActorRole
	Action    string
	TargetRef string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Notification is an append-only message addressed to a single recipient.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Body        string
	Locale      string
	TargetRef   string
	Read        bool
	CreatedAt   time.Time
}

// OutboxStatus tracks the delivery state of a workflow event.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the event awaits dispatch.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusDispatched indicates activity, notifications and the broker message were written.
	OutboxStatusDispatched OutboxStatus = "dispatched"
	// OutboxStatusFailed indicates dispatch kept failing and needs operator attention.
	OutboxStatusFailed OutboxStatus = "failed"
)

// WorkflowEvent is the outbox record appended alongside every state transition.
// A separate drain converts it into activity, notification, and broker writes, so
// a crash between the state commit and its side effects is recoverable.
type WorkflowEvent struct {
	ID         string
	Type       string
	TargetRef  string
	ActorID    string
	ActorRole  ActorRole
	Recipients []string
	Metadata   map[string]any

	Status       OutboxStatus
	Attempts     int
	LastError    string
	OccurredAt   time.Time
	DispatchedAt *time.Time
}
