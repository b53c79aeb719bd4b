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
	disputeIDPrefix = "dsp_"

	disputeEventFiled              = "dispute.filed"
	disputeEventNegotiationStarted = "dispute.negotiation_started"
	disputeEventResolved           = "dispute.resolved"
	disputeEventEscalated          = "dispute.escalated"
	disputeEventClosed             = "dispute.closed"

	defaultNegotiationWindow = 48 * time.Hour
	defaultFilingWindow      = 120 * time.Hour
)

var (
	// ErrDisputeInvalidInput indicates validation failures for dispute operations.
	ErrDisputeInvalidInput = errors.New("dispute: invalid input")
	// ErrDisputeNotFound indicates the dispute could not be located.
	ErrDisputeNotFound = errors.New("dispute: not found")
	// ErrDisputeForbidden indicates the actor may not act on the dispute.
	ErrDisputeForbidden = errors.New("dispute: forbidden")
	// ErrDisputeNotEligible indicates filing was rejected by the eligibility rules.
	ErrDisputeNotEligible = errors.New("dispute: not eligible")
	// ErrDisputeInvalidTransition is returned for illegal status transitions.
	ErrDisputeInvalidTransition = errors.New("dispute: invalid state transition")
)

// DisputeServiceDeps bundles collaborators required to construct a DisputeService.
type DisputeServiceDeps struct {
	Disputes          repositories.DisputeRepository
	Requests          repositories.CustomizationRequestRepository
	Orders            repositories.OrderSnapshotRepository
	Shops             repositories.ShopProfileRepository
	Outbox            repositories.OutboxRepository
	Tx                UnitOfWork
	Dispatcher        OutboxDispatcher
	Clock             func() time.Time
	NewID             func(prefix string) string
	Sanitizer         func(string) string
	NegotiationWindow time.Duration
	FilingWindow      time.Duration
	Logger            *zap.Logger
}

type disputeService struct {
	disputes          repositories.DisputeRepository
	outbox            repositories.OutboxRepository
	tx                UnitOfWork
	dispatcher        OutboxDispatcher
	eligibility       *eligibilityChecker
	clock             func() time.Time
	newID             func(prefix string) string
	sanitize          func(string) string
	negotiationWindow time.Duration
	logger            *zap.Logger
}

// NewDisputeService wires dependencies into a concrete DisputeService.
func NewDisputeService(deps DisputeServiceDeps) (DisputeService, error) {
	if deps.Disputes == nil {
		return nil, errors.New("dispute service: dispute repository is required")
	}
	if deps.Requests == nil {
		return nil, errors.New("dispute service: customization repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("dispute service: order repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("dispute service: shop repository is required")
	}
	if deps.Outbox == nil {
		return nil, errors.New("dispute service: outbox repository is required")
	}
	if deps.Tx == nil {
		return nil, errors.New("dispute service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	utcClock := func() time.Time {
		return clock().UTC()
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
	negotiationWindow := deps.NegotiationWindow
	if negotiationWindow <= 0 {
		negotiationWindow = defaultNegotiationWindow
	}
	filingWindow := deps.FilingWindow
	if filingWindow <= 0 {
		filingWindow = defaultFilingWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &disputeService{
		disputes:   deps.Disputes,
		outbox:     deps.Outbox,
		tx:         deps.Tx,
		dispatcher: deps.Dispatcher,
		eligibility: &eligibilityChecker{
			disputes:     deps.Disputes,
			requests:     deps.Requests,
			orders:       deps.Orders,
			shops:        deps.Shops,
			filingWindow: filingWindow,
			clock:        utcClock,
		},
		clock:             utcClock,
		newID:             newID,
		sanitize:          sanitize,
		negotiationWindow: negotiationWindow,
		logger:            logger,
	}, nil
}

func (s *disputeService) CheckEligibility(ctx context.Context, query EligibilityQuery) (Eligibility, error) {
	eligibility, _, err := s.eligibility.check(ctx, query)
	if err != nil {
		return Eligibility{}, s.mapError(err)
	}
	return eligibility, nil
}

func (s *disputeService) File(ctx context.Context, cmd FileDisputeCommand) (Dispute, error) {
	reason := s.sanitize(cmd.Reason)
	if reason == "" {
		return Dispute{}, fmt.Errorf("%w: reason is required", ErrDisputeInvalidInput)
	}

	eligibility, target, err := s.eligibility.check(ctx, EligibilityQuery{Actor: cmd.Actor, Target: cmd.Target})
	if err != nil {
		return Dispute{}, s.mapError(err)
	}
	if !eligibility.Eligible {
		return Dispute{}, fmt.Errorf("%w: %s", ErrDisputeNotEligible, eligibility.Reason)
	}

	now := s.clock()
	dispute := domain.Dispute{
		ID:                  s.newID(disputeIDPrefix),
		Target:              cmd.Target,
		FilerID:             cmd.Actor.ID,
		RespondentID:        target.respondentFor(cmd.Actor.ID),
		Status:              domain.DisputeStatusFiled,
		Reason:              reason,
		FiledAt:             now,
		NegotiationDeadline: now.Add(s.negotiationWindow),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	var eventID string
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.disputes.Insert(txCtx, dispute); err != nil {
			return err
		}
		var err error
		eventID, err = s.appendEvent(txCtx, disputeEventFiled, dispute, cmd.Actor, nil)
		return err
	})
	if err != nil {
		return Dispute{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return dispute, nil
}

func (s *disputeService) Get(ctx context.Context, disputeID string, actor Actor) (Dispute, error) {
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return Dispute{}, fmt.Errorf("%w: dispute id is required", ErrDisputeInvalidInput)
	}
	dispute, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return Dispute{}, s.mapError(err)
	}
	if !s.isParty(dispute, actor) && !actor.Admin {
		return Dispute{}, ErrDisputeForbidden
	}
	return dispute, nil
}

func (s *disputeService) List(ctx context.Context, cmd ListDisputesCommand) (domain.CursorPage[Dispute], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = cmd.Actor.ID
	}
	if userID == "" {
		return domain.CursorPage[Dispute]{}, fmt.Errorf("%w: user id is required", ErrDisputeInvalidInput)
	}
	if userID != cmd.Actor.ID && !cmd.Actor.Admin {
		return domain.CursorPage[Dispute]{}, ErrDisputeForbidden
	}
	page, err := s.disputes.ListByParticipant(ctx, userID, repositories.DisputeListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Paging,
	})
	if err != nil {
		return domain.CursorPage[Dispute]{}, s.mapError(err)
	}
	return page, nil
}

func (s *disputeService) StartNegotiation(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error) {
	return s.transition(ctx, cmd, transitionDisputeSpec{
		to:        domain.DisputeStatusNegotiating,
		eventType: disputeEventNegotiationStarted,
		authorize: s.requirePartyOrAdmin,
	})
}

func (s *disputeService) Resolve(ctx context.Context, cmd ResolveDisputeCommand) (Dispute, error) {
	resolution := s.sanitize(cmd.Resolution)
	if resolution == "" {
		return Dispute{}, fmt.Errorf("%w: resolution is required", ErrDisputeInvalidInput)
	}
	return s.transition(ctx, DisputeTransitionCommand{Actor: cmd.Actor, DisputeID: cmd.DisputeID}, transitionDisputeSpec{
		to:        domain.DisputeStatusResolved,
		eventType: disputeEventResolved,
		authorize: s.requirePartyOrAdmin,
		mutate: func(dispute *domain.Dispute) {
			dispute.Resolution = resolution
			resolvedAt := dispute.UpdatedAt
			dispute.ResolvedAt = &resolvedAt
		},
		metadata: map[string]any{"resolution": resolution},
	})
}

func (s *disputeService) Escalate(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error) {
	return s.transition(ctx, cmd, transitionDisputeSpec{
		to:        domain.DisputeStatusEscalated,
		eventType: disputeEventEscalated,
		authorize: s.requirePartyOrAdmin,
		mutate: func(dispute *domain.Dispute) {
			escalatedAt := dispute.UpdatedAt
			dispute.EscalatedAt = &escalatedAt
		},
	})
}

func (s *disputeService) Close(ctx context.Context, cmd DisputeTransitionCommand) (Dispute, error) {
	return s.transition(ctx, cmd, transitionDisputeSpec{
		to:        domain.DisputeStatusClosed,
		eventType: disputeEventClosed,
		authorize: func(dispute domain.Dispute, actor Actor) error {
			if actor.Admin {
				return nil
			}
			// The parties own the dispute until escalation, so either of
			// them may close out a resolved one. Escalated disputes are
			// admin-owned and only staff close them.
			if dispute.Status == domain.DisputeStatusResolved && s.isParty(dispute, actor) {
				return nil
			}
			return fmt.Errorf("%w: only platform staff may close an escalated dispute", ErrDisputeForbidden)
		},
		mutate: func(dispute *domain.Dispute) {
			closedAt := dispute.UpdatedAt
			dispute.ClosedAt = &closedAt
		},
	})
}

// SweepOverdue escalates disputes whose negotiation deadline has passed,
// including those still in filed where negotiation never started. Each dispute
// transitions in its own conditional transaction, so concurrent sweeps never
// double-escalate and a mid-batch failure leaves prior work committed.
func (s *disputeService) SweepOverdue(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := s.clock()

	overdue, err := s.disputes.ListOverdue(ctx, now, batchSize)
	if err != nil {
		return SweepResult{}, s.mapError(err)
	}

	result := SweepResult{Scanned: len(overdue), SweptAt: now}
	for _, dispute := range overdue {
		var (
			escalated  domain.Dispute
			transition bool
			eventID    string
		)
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			var err error
			escalated, transition, err = s.disputes.Escalate(txCtx, dispute.ID, now)
			if err != nil {
				return err
			}
			if !transition {
				return nil
			}
			eventID, err = s.appendEvent(txCtx, disputeEventEscalated, escalated,
				Actor{ID: "system", Role: domain.RoleAdmin, Admin: true},
				map[string]any{"sweep": true})
			return err
		})
		if err != nil {
			s.logger.Warn("overdue dispute escalation failed",
				zap.String("disputeId", dispute.ID),
				zap.Error(err))
			continue
		}
		if transition {
			result.Escalated++
			s.dispatch(ctx, eventID)
		}
	}
	return result, nil
}

type transitionDisputeSpec struct {
	to        domain.DisputeStatus
	eventType string
	authorize func(domain.Dispute, Actor) error
	mutate    func(*domain.Dispute)
	metadata  map[string]any
}

func (s *disputeService) transition(ctx context.Context, cmd DisputeTransitionCommand, spec transitionDisputeSpec) (Dispute, error) {
	disputeID := strings.TrimSpace(cmd.DisputeID)
	if disputeID == "" {
		return Dispute{}, fmt.Errorf("%w: dispute id is required", ErrDisputeInvalidInput)
	}

	now := s.clock()
	var (
		updated Dispute
		eventID string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		dispute, err := s.disputes.FindByID(txCtx, disputeID)
		if err != nil {
			return err
		}
		if err := spec.authorize(dispute, cmd.Actor); err != nil {
			return err
		}
		if !domain.CanTransitionDispute(dispute.Status, spec.to) {
			return fmt.Errorf("%w: cannot move from %s to %s",
				ErrDisputeInvalidTransition, dispute.Status, spec.to)
		}

		dispute.Status = spec.to
		dispute.UpdatedAt = now
		if spec.mutate != nil {
			spec.mutate(&dispute)
		}
		if err := s.disputes.Update(txCtx, dispute); err != nil {
			return err
		}

		updated = dispute
		eventID, err = s.appendEvent(txCtx, spec.eventType, dispute, cmd.Actor, spec.metadata)
		return err
	})
	if err != nil {
		return Dispute{}, s.mapError(err)
	}

	s.dispatch(ctx, eventID)
	return updated, nil
}

func (s *disputeService) appendEvent(ctx context.Context, eventType string, dispute domain.Dispute, actor Actor, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status"] = string(dispute.Status)

	recipients := []string{dispute.FilerID, dispute.RespondentID}
	event := domain.WorkflowEvent{
		ID:         s.newID(eventIDPrefix),
		Type:       eventType,
		TargetRef:  "disputes/" + dispute.ID,
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

func (s *disputeService) dispatch(ctx context.Context, eventID string) {
	if s.dispatcher == nil || eventID == "" {
		return
	}
	if err := s.dispatcher.DispatchEvent(ctx, eventID); err != nil {
		s.logger.Warn("opportunistic event dispatch failed",
			zap.String("eventId", eventID),
			zap.Error(err))
	}
}

func (s *disputeService) isParty(dispute domain.Dispute, actor Actor) bool {
	if actor.ID == "" {
		return false
	}
	return dispute.FilerID == actor.ID || dispute.RespondentID == actor.ID
}

func (s *disputeService) requirePartyOrAdmin(dispute domain.Dispute, actor Actor) error {
	if s.isParty(dispute, actor) || actor.Admin {
		return nil
	}
	return fmt.Errorf("%w: only a dispute party may perform this action", ErrDisputeForbidden)
}

func (s *disputeService) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDisputeInvalidInput) ||
		errors.Is(err, ErrDisputeForbidden) ||
		errors.Is(err, ErrDisputeNotEligible) ||
		errors.Is(err, ErrDisputeInvalidTransition) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDisputeNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrDisputeInvalidTransition, repoErr.Error())
		}
	}
	return err
}
