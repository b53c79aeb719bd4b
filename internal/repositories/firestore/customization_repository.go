package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fabriqly/api/internal/domain"
	pfirestore "github.com/fabriqly/api/internal/platform/firestore"
	"github.com/fabriqly/api/internal/repositories"
)

const customizationRequestsCollection = "customizationRequests"

// CustomizationRequestRepository persists customization requests and enforces
// claim and order-link uniqueness inside Firestore transactions.
type CustomizationRequestRepository struct {
	base *pfirestore.BaseRepository[customizationRequestDocument]
}

var _ repositories.CustomizationRequestRepository = (*CustomizationRequestRepository)(nil)

// NewCustomizationRequestRepository constructs the Firestore-backed repository.
func NewCustomizationRequestRepository(provider *pfirestore.Provider) (*CustomizationRequestRepository, error) {
	base, err := pfirestore.NewBaseRepository[customizationRequestDocument](provider, customizationRequestsCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("customization repository: %w", err)
	}
	return &CustomizationRequestRepository{base: base}, nil
}

// Insert stores a new request document. The ID must be unique.
func (r *CustomizationRequestRepository) Insert(ctx context.Context, request domain.CustomizationRequest) error {
	requestID := strings.TrimSpace(request.ID)
	if requestID == "" {
		return errors.New("customization repository: request id is required")
	}
	ref, err := r.base.DocumentRef(ctx, requestID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, encodeCustomizationRequest(request)); err != nil {
		return pfirestore.WrapError("customizationRequests.insert", err)
	}
	return nil
}

// Update replaces the persisted request state with the provided snapshot.
func (r *CustomizationRequestRepository) Update(ctx context.Context, request domain.CustomizationRequest) error {
	requestID := strings.TrimSpace(request.ID)
	if requestID == "" {
		return errors.New("customization repository: request id is required")
	}
	ref, err := r.base.DocumentRef(ctx, requestID)
	if err != nil {
		return err
	}
	if err := setDoc(ctx, ref, encodeCustomizationRequest(request)); err != nil {
		return pfirestore.WrapError("customizationRequests.update", err)
	}
	return nil
}

// FindByID fetches a single request.
func (r *CustomizationRequestRepository) FindByID(ctx context.Context, requestID string) (domain.CustomizationRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return domain.CustomizationRequest{}, errors.New("customization repository: request id is required")
	}
	ref, err := r.base.DocumentRef(ctx, requestID)
	if err != nil {
		return domain.CustomizationRequest{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.CustomizationRequest{}, pfirestore.WrapError("customizationRequests.find", err)
	}
	return r.decodeSnapshot(snap)
}

// Claim assigns the designer inside a transaction. The read-before-write guard
// rejects requests that already carry a designer or left the reviewable state,
// so two designers racing for the same request cannot both win.
func (r *CustomizationRequestRepository) Claim(ctx context.Context, requestID string, designerID string, now time.Time) (domain.CustomizationRequest, error) {
	requestID = strings.TrimSpace(requestID)
	designerID = strings.TrimSpace(designerID)
	if requestID == "" {
		return domain.CustomizationRequest{}, errors.New("customization repository: request id is required")
	}
	if designerID == "" {
		return domain.CustomizationRequest{}, errors.New("customization repository: designer id is required")
	}

	var claimed domain.CustomizationRequest
	err := r.inTransaction(ctx, func(txCtx context.Context) error {
		request, err := r.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.Assigned() {
			return pfirestore.ConflictError("customizationRequests.claim", repositories.ErrAlreadyClaimed)
		}
		if request.Status != domain.CustomizationStatusPendingReview {
			return pfirestore.ConflictError("customizationRequests.claim", repositories.ErrNotClaimable)
		}

		now := now.UTC()
		request.DesignerID = &designerID
		request.Status = domain.CustomizationStatusInProgress
		request.AssignedAt = &now
		request.UpdatedAt = now
		claimed = request
		return r.Update(txCtx, request)
	})
	if err != nil {
		return domain.CustomizationRequest{}, err
	}
	return claimed, nil
}

// LinkOrder records the order created from the approved design. The write-once
// guard makes a retried call with a different order id a conflict.
func (r *CustomizationRequestRepository) LinkOrder(ctx context.Context, requestID string, orderID string, now time.Time) (domain.CustomizationRequest, error) {
	requestID = strings.TrimSpace(requestID)
	orderID = strings.TrimSpace(orderID)
	if requestID == "" {
		return domain.CustomizationRequest{}, errors.New("customization repository: request id is required")
	}
	if orderID == "" {
		return domain.CustomizationRequest{}, errors.New("customization repository: order id is required")
	}

	var linked domain.CustomizationRequest
	err := r.inTransaction(ctx, func(txCtx context.Context) error {
		request, err := r.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if request.OrderID != nil && *request.OrderID != "" {
			if *request.OrderID == orderID {
				// Replayed link of the same order is a no-op.
				linked = request
				return nil
			}
			return pfirestore.ConflictError("customizationRequests.link_order", repositories.ErrOrderAlreadyLinked)
		}

		now := now.UTC()
		request.OrderID = &orderID
		request.Status = domain.CustomizationStatusCompleted
		request.CompletedAt = &now
		request.UpdatedAt = now
		linked = request
		return r.Update(txCtx, request)
	})
	if err != nil {
		return domain.CustomizationRequest{}, err
	}
	return linked, nil
}

// ListByCustomer returns requests created by the customer, most recent first.
func (r *CustomizationRequestRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[domain.CustomizationRequest]{}, errors.New("customization repository: customer id is required")
	}
	return r.list(ctx, "customerId", customerID, filter)
}

// ListByDesigner returns requests assigned to the designer, most recent first.
func (r *CustomizationRequestRepository) ListByDesigner(ctx context.Context, designerID string, filter repositories.CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error) {
	designerID = strings.TrimSpace(designerID)
	if designerID == "" {
		return domain.CursorPage[domain.CustomizationRequest]{}, errors.New("customization repository: designer id is required")
	}
	return r.list(ctx, "designerId", designerID, filter)
}

// ListUnclaimed returns requests awaiting a designer, oldest first so the
// queue drains in arrival order.
func (r *CustomizationRequestRepository) ListUnclaimed(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.CustomizationRequest], error) {
	limit, fetchLimit := pageWindow(pager.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.CustomizationRequest]{}, fmt.Errorf("customization repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		q := col.Where("status", "==", string(domain.CustomizationStatusPendingReview)).
			OrderBy("requestedAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.CustomizationRequest]{}, err
	}
	return r.page(snaps, limit, fetchLimit, func(doc customizationRequestDocument, snap *firestore.DocumentSnapshot) time.Time {
		return chooseTime(doc.RequestedAt, snap.CreateTime)
	})
}

func (r *CustomizationRequestRepository) list(ctx context.Context, field string, value string, filter repositories.CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error) {
	limit, fetchLimit := pageWindow(filter.Pagination.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.CustomizationRequest]{}, fmt.Errorf("customization repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normalizeStatuses(filter.Status)

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		q := col.Where(field, "==", value)
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("updatedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.CustomizationRequest]{}, err
	}
	return r.page(snaps, limit, fetchLimit, func(doc customizationRequestDocument, snap *firestore.DocumentSnapshot) time.Time {
		return chooseTime(doc.UpdatedAt, snap.UpdateTime)
	})
}

func (r *CustomizationRequestRepository) page(snaps []*firestore.DocumentSnapshot, limit, fetchLimit int, tokenTime func(customizationRequestDocument, *firestore.DocumentSnapshot) time.Time) (domain.CursorPage[domain.CustomizationRequest], error) {
	nextToken := ""
	if limit > 0 && len(snaps) == fetchLimit {
		last := snaps[len(snaps)-1]
		lastDoc, err := r.base.Decode(last)
		if err != nil {
			return domain.CursorPage[domain.CustomizationRequest]{}, err
		}
		nextToken = encodePageToken(tokenTime(lastDoc, last), last.Ref.ID)
		snaps = snaps[:len(snaps)-1]
	}

	items := make([]domain.CustomizationRequest, 0, len(snaps))
	for _, snap := range snaps {
		request, err := r.decodeSnapshot(snap)
		if err != nil {
			return domain.CursorPage[domain.CustomizationRequest]{}, err
		}
		items = append(items, request)
	}
	return domain.CursorPage[domain.CustomizationRequest]{Items: items, NextPageToken: nextToken}, nil
}

func (r *CustomizationRequestRepository) decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.CustomizationRequest, error) {
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.CustomizationRequest{}, err
	}
	return decodeCustomizationRequest(snap.Ref.ID, doc, snap.CreateTime, snap.UpdateTime), nil
}

// inTransaction joins the ambient transaction when one exists, otherwise it
// opens its own so standalone calls keep the same guard semantics.
func (r *CustomizationRequestRepository) inTransaction(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := transactionFrom(ctx); ok {
		return fn(ctx)
	}
	client, err := r.base.Provider().Client(ctx)
	if err != nil {
		return pfirestore.WrapError("customizationRequests.tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(txCtx, tx))
	})
}

type customizationRequestDocument struct {
	CustomerID      string            `firestore:"customerId"`
	DesignerID      *string           `firestore:"designerId,omitempty"`
	ShopID          *string           `firestore:"shopId,omitempty"`
	Status          string            `firestore:"status"`
	DesignFile      *fileRefDocument  `firestore:"designFile,omitempty"`
	CustomerNotes   string            `firestore:"customerNotes"`
	FinalFile       *fileRefDocument  `firestore:"finalFile,omitempty"`
	DesignerNotes   string            `firestore:"designerNotes"`
	RejectionReason string            `firestore:"rejectionReason"`
	OrderID         *string           `firestore:"orderId,omitempty"`
	RequestedAt     time.Time         `firestore:"requestedAt"`
	AssignedAt      *time.Time        `firestore:"assignedAt,omitempty"`
	ApprovedAt      *time.Time        `firestore:"approvedAt,omitempty"`
	CompletedAt     *time.Time        `firestore:"completedAt,omitempty"`
	CancelledAt     *time.Time        `firestore:"cancelledAt,omitempty"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

type fileRefDocument struct {
	Bucket     string `firestore:"bucket"`
	ObjectPath string `firestore:"objectPath"`
	FileName   string `firestore:"fileName"`
	URL        string `firestore:"url,omitempty"`
}

func encodeCustomizationRequest(request domain.CustomizationRequest) customizationRequestDocument {
	return customizationRequestDocument{
		CustomerID:      strings.TrimSpace(request.CustomerID),
		DesignerID:      normalizeStringPointer(request.DesignerID),
		ShopID:          normalizeStringPointer(request.ShopID),
		Status:          string(request.Status),
		DesignFile:      encodeFileRef(request.DesignFile),
		CustomerNotes:   request.CustomerNotes,
		FinalFile:       encodeFileRef(request.FinalFile),
		DesignerNotes:   request.DesignerNotes,
		RejectionReason: request.RejectionReason,
		OrderID:         normalizeStringPointer(request.OrderID),
		RequestedAt:     request.RequestedAt.UTC(),
		AssignedAt:      normalizeTimePointer(request.AssignedAt),
		ApprovedAt:      normalizeTimePointer(request.ApprovedAt),
		CompletedAt:     normalizeTimePointer(request.CompletedAt),
		CancelledAt:     normalizeTimePointer(request.CancelledAt),
		CreatedAt:       request.CreatedAt.UTC(),
		UpdatedAt:       request.UpdatedAt.UTC(),
	}
}

func decodeCustomizationRequest(id string, doc customizationRequestDocument, createdAt, updatedAt time.Time) domain.CustomizationRequest {
	return domain.CustomizationRequest{
		ID:              strings.TrimSpace(id),
		CustomerID:      strings.TrimSpace(doc.CustomerID),
		DesignerID:      normalizeStringPointer(doc.DesignerID),
		ShopID:          normalizeStringPointer(doc.ShopID),
		Status:          domain.CustomizationStatus(strings.TrimSpace(doc.Status)),
		DesignFile:      decodeFileRef(doc.DesignFile),
		CustomerNotes:   doc.CustomerNotes,
		FinalFile:       decodeFileRef(doc.FinalFile),
		DesignerNotes:   doc.DesignerNotes,
		RejectionReason: doc.RejectionReason,
		OrderID:         normalizeStringPointer(doc.OrderID),
		RequestedAt:     chooseTime(doc.RequestedAt, createdAt),
		AssignedAt:      normalizeTimePointer(doc.AssignedAt),
		ApprovedAt:      normalizeTimePointer(doc.ApprovedAt),
		CompletedAt:     normalizeTimePointer(doc.CompletedAt),
		CancelledAt:     normalizeTimePointer(doc.CancelledAt),
		CreatedAt:       chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:       chooseTime(doc.UpdatedAt, updatedAt),
	}
}

func encodeFileRef(ref *domain.FileReference) *fileRefDocument {
	if ref == nil {
		return nil
	}
	return &fileRefDocument{
		Bucket:     strings.TrimSpace(ref.Bucket),
		ObjectPath: strings.TrimSpace(ref.ObjectPath),
		FileName:   strings.TrimSpace(ref.FileName),
		URL:        strings.TrimSpace(ref.URL),
	}
}

func decodeFileRef(doc *fileRefDocument) *domain.FileReference {
	if doc == nil {
		return nil
	}
	return &domain.FileReference{
		Bucket:     strings.TrimSpace(doc.Bucket),
		ObjectPath: strings.TrimSpace(doc.ObjectPath),
		FileName:   strings.TrimSpace(doc.FileName),
		URL:        strings.TrimSpace(doc.URL),
	}
}

func normalizeStatuses[S ~string](statuses []S) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(string(status)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
