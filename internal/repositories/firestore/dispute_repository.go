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

const disputesCollection = "disputes"

// DisputeRepository persists disputes and backs the negotiation-deadline sweep.
type DisputeRepository struct {
	base *pfirestore.BaseRepository[disputeDocument]
}

var _ repositories.DisputeRepository = (*DisputeRepository)(nil)

// NewDisputeRepository constructs the Firestore-backed repository.
func NewDisputeRepository(provider *pfirestore.Provider) (*DisputeRepository, error) {
	base, err := pfirestore.NewBaseRepository[disputeDocument](provider, disputesCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: %w", err)
	}
	return &DisputeRepository{base: base}, nil
}

// Insert stores a new dispute document. The ID must be unique.
func (r *DisputeRepository) Insert(ctx context.Context, dispute domain.Dispute) error {
	disputeID := strings.TrimSpace(dispute.ID)
	if disputeID == "" {
		return errors.New("dispute repository: dispute id is required")
	}
	if !dispute.Target.Valid() {
		return errors.New("dispute repository: dispute target must reference exactly one entity")
	}
	ref, err := r.base.DocumentRef(ctx, disputeID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, encodeDispute(dispute)); err != nil {
		return pfirestore.WrapError("disputes.insert", err)
	}
	return nil
}

// Update replaces the persisted dispute state with the provided snapshot.
func (r *DisputeRepository) Update(ctx context.Context, dispute domain.Dispute) error {
	disputeID := strings.TrimSpace(dispute.ID)
	if disputeID == "" {
		return errors.New("dispute repository: dispute id is required")
	}
	ref, err := r.base.DocumentRef(ctx, disputeID)
	if err != nil {
		return err
	}
	if err := setDoc(ctx, ref, encodeDispute(dispute)); err != nil {
		return pfirestore.WrapError("disputes.update", err)
	}
	return nil
}

// FindByID fetches a single dispute.
func (r *DisputeRepository) FindByID(ctx context.Context, disputeID string) (domain.Dispute, error) {
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return domain.Dispute{}, errors.New("dispute repository: dispute id is required")
	}
	ref, err := r.base.DocumentRef(ctx, disputeID)
	if err != nil {
		return domain.Dispute{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.Dispute{}, pfirestore.WrapError("disputes.find", err)
	}
	return r.decodeSnapshot(snap)
}

// FindOpenByTarget returns the filer's open dispute against the target, if any.
// Closed disputes never block a new filing, so the status check happens after
// the equality-filtered fetch.
func (r *DisputeRepository) FindOpenByTarget(ctx context.Context, targetRef string, filerID string) (domain.Dispute, bool, error) {
	targetRef = strings.TrimSpace(targetRef)
	filerID = strings.TrimSpace(filerID)
	if targetRef == "" {
		return domain.Dispute{}, false, errors.New("dispute repository: target ref is required")
	}
	if filerID == "" {
		return domain.Dispute{}, false, errors.New("dispute repository: filer id is required")
	}

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		return col.Where("targetRef", "==", targetRef).
			Where("filerId", "==", filerID).
			OrderBy("filedAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
	})
	if err != nil {
		return domain.Dispute{}, false, err
	}
	for _, snap := range snaps {
		dispute, err := r.decodeSnapshot(snap)
		if err != nil {
			return domain.Dispute{}, false, err
		}
		if dispute.Open() {
			return dispute, true, nil
		}
	}
	return domain.Dispute{}, false, nil
}

// Escalate flips a dispute to escalated inside a transaction. A dispute still
// filed when its deadline lapses escalates directly; negotiation never
// started. A dispute that is already escalated reports ok=false so concurrent
// sweeps and replayed admin calls converge on the same state without error.
func (r *DisputeRepository) Escalate(ctx context.Context, disputeID string, now time.Time) (domain.Dispute, bool, error) {
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return domain.Dispute{}, false, errors.New("dispute repository: dispute id is required")
	}

	var (
		escalated  domain.Dispute
		transition bool
	)
	err := r.inTransaction(ctx, func(txCtx context.Context) error {
		dispute, err := r.FindByID(txCtx, disputeID)
		if err != nil {
			return err
		}
		switch dispute.Status {
		case domain.DisputeStatusEscalated:
			escalated = dispute
			transition = false
			return nil
		case domain.DisputeStatusFiled, domain.DisputeStatusNegotiating:
		default:
			return pfirestore.ConflictError("disputes.escalate",
				fmt.Errorf("dispute %s cannot escalate from status %s", disputeID, dispute.Status))
		}

		now := now.UTC()
		dispute.Status = domain.DisputeStatusEscalated
		dispute.EscalatedAt = &now
		dispute.UpdatedAt = now
		escalated = dispute
		transition = true
		return r.Update(txCtx, dispute)
	})
	if err != nil {
		return domain.Dispute{}, false, err
	}
	return escalated, transition, nil
}

// ListOverdue returns filed and negotiating disputes whose deadline passed
// before cutoff, oldest deadline first. The sweep processes them in that order.
func (r *DisputeRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	if limit <= 0 {
		return nil, errors.New("dispute repository: limit must be positive")
	}

	sweepable := []string{string(domain.DisputeStatusFiled), string(domain.DisputeStatusNegotiating)}
	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		return col.Where("status", "in", sweepable).
			Where("negotiationDeadline", "<=", cutoff.UTC()).
			OrderBy("negotiationDeadline", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	disputes := make([]domain.Dispute, 0, len(snaps))
	for _, snap := range snaps {
		dispute, err := r.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, dispute)
	}
	return disputes, nil
}

// ListByParticipant returns disputes where the user is filer or respondent,
// most recently filed first.
func (r *DisputeRepository) ListByParticipant(ctx context.Context, participantID string, filter repositories.DisputeListFilter) (domain.CursorPage[domain.Dispute], error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return domain.CursorPage[domain.Dispute]{}, errors.New("dispute repository: participant id is required")
	}

	limit, fetchLimit := pageWindow(filter.Pagination.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Dispute]{}, fmt.Errorf("dispute repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := normalizeStatuses(filter.Status)

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		q := col.Where("participantIds", "array-contains", participantID)
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			if len(statuses) > 10 {
				statuses = statuses[:10]
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("filedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Dispute]{}, err
	}

	nextToken := ""
	if limit > 0 && len(snaps) == fetchLimit {
		last := snaps[len(snaps)-1]
		lastDoc, err := r.base.Decode(last)
		if err != nil {
			return domain.CursorPage[domain.Dispute]{}, err
		}
		nextToken = encodePageToken(chooseTime(lastDoc.FiledAt, last.CreateTime), last.Ref.ID)
		snaps = snaps[:len(snaps)-1]
	}

	items := make([]domain.Dispute, 0, len(snaps))
	for _, snap := range snaps {
		dispute, err := r.decodeSnapshot(snap)
		if err != nil {
			return domain.CursorPage[domain.Dispute]{}, err
		}
		items = append(items, dispute)
	}
	return domain.CursorPage[domain.Dispute]{Items: items, NextPageToken: nextToken}, nil
}

func (r *DisputeRepository) decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.Dispute, error) {
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.Dispute{}, err
	}
	return decodeDispute(snap.Ref.ID, doc, snap.CreateTime, snap.UpdateTime), nil
}

func (r *DisputeRepository) inTransaction(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := transactionFrom(ctx); ok {
		return fn(ctx)
	}
	client, err := r.base.Provider().Client(ctx)
	if err != nil {
		return pfirestore.WrapError("disputes.tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(txCtx, tx))
	})
}

type disputeDocument struct {
	TargetRef              string     `firestore:"targetRef"`
	OrderID                *string    `firestore:"orderId,omitempty"`
	CustomizationRequestID *string    `firestore:"customizationRequestId,omitempty"`
	FilerID                string     `firestore:"filerId"`
	RespondentID           string     `firestore:"respondentId"`
	ParticipantIDs         []string   `firestore:"participantIds"`
	Status                 string     `firestore:"status"`
	Reason                 string     `firestore:"reason"`
	Resolution             string     `firestore:"resolution"`
	FiledAt                time.Time  `firestore:"filedAt"`
	NegotiationDeadline    time.Time  `firestore:"negotiationDeadline"`
	ResolvedAt             *time.Time `firestore:"resolvedAt,omitempty"`
	EscalatedAt            *time.Time `firestore:"escalatedAt,omitempty"`
	ClosedAt               *time.Time `firestore:"closedAt,omitempty"`
	CreatedAt              time.Time  `firestore:"createdAt"`
	UpdatedAt              time.Time  `firestore:"updatedAt"`
}

func encodeDispute(dispute domain.Dispute) disputeDocument {
	filer := strings.TrimSpace(dispute.FilerID)
	respondent := strings.TrimSpace(dispute.RespondentID)
	participants := make([]string, 0, 2)
	if filer != "" {
		participants = append(participants, filer)
	}
	if respondent != "" && respondent != filer {
		participants = append(participants, respondent)
	}
	return disputeDocument{
		TargetRef:              dispute.Target.Ref(),
		OrderID:                normalizeStringPointer(dispute.Target.OrderID),
		CustomizationRequestID: normalizeStringPointer(dispute.Target.CustomizationRequestID),
		FilerID:                filer,
		RespondentID:           respondent,
		ParticipantIDs:         participants,
		Status:                 string(dispute.Status),
		Reason:                 dispute.Reason,
		Resolution:             dispute.Resolution,
		FiledAt:                dispute.FiledAt.UTC(),
		NegotiationDeadline:    dispute.NegotiationDeadline.UTC(),
		ResolvedAt:             normalizeTimePointer(dispute.ResolvedAt),
		EscalatedAt:            normalizeTimePointer(dispute.EscalatedAt),
		ClosedAt:               normalizeTimePointer(dispute.ClosedAt),
		CreatedAt:              dispute.CreatedAt.UTC(),
		UpdatedAt:              dispute.UpdatedAt.UTC(),
	}
}

func decodeDispute(id string, doc disputeDocument, createdAt, updatedAt time.Time) domain.Dispute {
	return domain.Dispute{
		ID: strings.TrimSpace(id),
		Target: domain.DisputeTarget{
			OrderID:                normalizeStringPointer(doc.OrderID),
			CustomizationRequestID: normalizeStringPointer(doc.CustomizationRequestID),
		},
		FilerID:             strings.TrimSpace(doc.FilerID),
		RespondentID:        strings.TrimSpace(doc.RespondentID),
		Status:              domain.DisputeStatus(strings.TrimSpace(doc.Status)),
		Reason:              doc.Reason,
		Resolution:          doc.Resolution,
		FiledAt:             chooseTime(doc.FiledAt, createdAt),
		NegotiationDeadline: doc.NegotiationDeadline.UTC(),
		ResolvedAt:          normalizeTimePointer(doc.ResolvedAt),
		EscalatedAt:         normalizeTimePointer(doc.EscalatedAt),
		ClosedAt:            normalizeTimePointer(doc.ClosedAt),
		CreatedAt:           chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:           chooseTime(doc.UpdatedAt, updatedAt),
	}
}
