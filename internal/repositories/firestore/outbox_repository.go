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

const outboxCollection = "workflowEvents"

// OutboxRepository stores workflow events until the dispatcher converts them
// into activity, notification and broker writes.
type OutboxRepository struct {
	base *pfirestore.BaseRepository[workflowEventDocument]
}

var _ repositories.OutboxRepository = (*OutboxRepository)(nil)

// NewOutboxRepository constructs the Firestore-backed repository.
func NewOutboxRepository(provider *pfirestore.Provider) (*OutboxRepository, error) {
	base, err := pfirestore.NewBaseRepository[workflowEventDocument](provider, outboxCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox repository: %w", err)
	}
	return &OutboxRepository{base: base}, nil
}

// Append writes a new pending event. Called inside the same transaction as the
// state transition it records.
func (r *OutboxRepository) Append(ctx context.Context, event domain.WorkflowEvent) error {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return errors.New("outbox repository: event id is required")
	}
	if strings.TrimSpace(event.Type) == "" {
		return errors.New("outbox repository: event type is required")
	}
	ref, err := r.base.DocumentRef(ctx, eventID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, encodeWorkflowEvent(event)); err != nil {
		return pfirestore.WrapError("workflowEvents.append", err)
	}
	return nil
}

// FindByID fetches a single event.
func (r *OutboxRepository) FindByID(ctx context.Context, eventID string) (domain.WorkflowEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.WorkflowEvent{}, errors.New("outbox repository: event id is required")
	}
	ref, err := r.base.DocumentRef(ctx, eventID)
	if err != nil {
		return domain.WorkflowEvent{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.WorkflowEvent{}, pfirestore.WrapError("workflowEvents.find", err)
	}
	return r.decodeSnapshot(snap)
}

// ListPending returns undispatched events oldest first, so side effects land
// in the order the transitions happened.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]domain.WorkflowEvent, error) {
	if limit <= 0 {
		return nil, errors.New("outbox repository: limit must be positive")
	}

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		return col.Where("status", "==", string(domain.OutboxStatusPending)).
			OrderBy("occurredAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.WorkflowEvent, 0, len(snaps))
	for _, snap := range snaps {
		event, err := r.decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// MarkDispatched records successful side-effect delivery for the event.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, eventID string, dispatchedAt time.Time) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("outbox repository: event id is required")
	}
	ref, err := r.base.DocumentRef(ctx, eventID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(domain.OutboxStatusDispatched)},
		{Path: "lastError", Value: ""},
		{Path: "dispatchedAt", Value: dispatchedAt.UTC()},
	}
	if err := updateDoc(ctx, ref, updates); err != nil {
		return pfirestore.WrapError("workflowEvents.mark_dispatched", err)
	}
	return nil
}

// MarkFailed increments the attempt counter inside a transaction. Once the
// counter reaches maxAttempts the event flips to failed and leaves the
// pending scan until an operator intervenes.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID string, cause string, maxAttempts int) (domain.WorkflowEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.WorkflowEvent{}, errors.New("outbox repository: event id is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var updated domain.WorkflowEvent
	err := r.inTransaction(ctx, func(txCtx context.Context) error {
		event, err := r.FindByID(txCtx, eventID)
		if err != nil {
			return err
		}
		event.Attempts++
		event.LastError = strings.TrimSpace(cause)
		if event.Attempts >= maxAttempts {
			event.Status = domain.OutboxStatusFailed
		}

		ref, err := r.base.DocumentRef(txCtx, eventID)
		if err != nil {
			return err
		}
		updates := []firestore.Update{
			{Path: "attempts", Value: event.Attempts},
			{Path: "lastError", Value: event.LastError},
			{Path: "status", Value: string(event.Status)},
		}
		updated = event
		if err := updateDoc(txCtx, ref, updates); err != nil {
			return pfirestore.WrapError("workflowEvents.mark_failed", err)
		}
		return nil
	})
	if err != nil {
		return domain.WorkflowEvent{}, err
	}
	return updated, nil
}

func (r *OutboxRepository) decodeSnapshot(snap *firestore.DocumentSnapshot) (domain.WorkflowEvent, error) {
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.WorkflowEvent{}, err
	}
	return decodeWorkflowEvent(snap.Ref.ID, doc, snap.CreateTime), nil
}

func (r *OutboxRepository) inTransaction(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := transactionFrom(ctx); ok {
		return fn(ctx)
	}
	client, err := r.base.Provider().Client(ctx)
	if err != nil {
		return pfirestore.WrapError("workflowEvents.tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(txCtx, tx))
	})
}

type workflowEventDocument struct {
	Type         string         `firestore:"type"`
	TargetRef    string         `firestore:"targetRef"`
	ActorID      string         `firestore:"actorId"`
	ActorRole    string         `firestore:"actorRole"`
	Recipients   []string       `firestore:"recipients,omitempty"`
	Metadata     map[string]any `firestore:"metadata,omitempty"`
	Status       string         `firestore:"status"`
	Attempts     int            `firestore:"attempts"`
	LastError    string         `firestore:"lastError"`
	OccurredAt   time.Time      `firestore:"occurredAt"`
	DispatchedAt *time.Time     `firestore:"dispatchedAt,omitempty"`
}

func encodeWorkflowEvent(event domain.WorkflowEvent) workflowEventDocument {
	recipients := make([]string, 0, len(event.Recipients))
	for _, recipient := range event.Recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return workflowEventDocument{
		Type:         strings.TrimSpace(event.Type),
		TargetRef:    strings.TrimSpace(event.TargetRef),
		ActorID:      strings.TrimSpace(event.ActorID),
		ActorRole:    string(event.ActorRole),
		Recipients:   recipients,
		Metadata:     cloneMetadata(event.Metadata),
		Status:       string(event.Status),
		Attempts:     event.Attempts,
		LastError:    event.LastError,
		OccurredAt:   event.OccurredAt.UTC(),
		DispatchedAt: normalizeTimePointer(event.DispatchedAt),
	}
}

func decodeWorkflowEvent(id string, doc workflowEventDocument, createdAt time.Time) domain.WorkflowEvent {
	return domain.WorkflowEvent{
		ID:           strings.TrimSpace(id),
		Type:         strings.TrimSpace(doc.Type),
		TargetRef:    strings.TrimSpace(doc.TargetRef),
		ActorID:      strings.TrimSpace(doc.ActorID),
		ActorRole:    domain.ActorRole(strings.TrimSpace(doc.ActorRole)),
		Recipients:   doc.Recipients,
		Metadata:     cloneMetadata(doc.Metadata),
		Status:       domain.OutboxStatus(strings.TrimSpace(doc.Status)),
		Attempts:     doc.Attempts,
		LastError:    doc.LastError,
		OccurredAt:   chooseTime(doc.OccurredAt, createdAt),
		DispatchedAt: normalizeTimePointer(doc.DispatchedAt),
	}
}
