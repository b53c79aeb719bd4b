package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/jobs"
	"github.com/fabriqly/api/internal/repositories"
)

// testRepoError implements repositories.RepositoryError for stub failures.
type testRepoError struct {
	msg      string
	notFound bool
	conflict bool
	wrapped  error
}

func (e testRepoError) Error() string {
	if e.wrapped != nil {
		return e.msg + ": " + e.wrapped.Error()
	}
	return e.msg
}

func (e testRepoError) Unwrap() error       { return e.wrapped }
func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return false }

func notFoundErr(msg string) error {
	return testRepoError{msg: msg, notFound: true}
}

func conflictErr(msg string, wrapped error) error {
	return testRepoError{msg: msg, conflict: true, wrapped: wrapped}
}

// passthroughTx runs the callback directly; the stubs have no transactions.
type passthroughTx struct {
	calls int
}

func (t *passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// testClock is a settable clock for exercising time-dependent behaviour.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// seqIDGen yields deterministic IDs like creq_0001, evt_0002.
func seqIDGen() func(prefix string) string {
	var (
		mu sync.Mutex
		n  int
	)
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

// stubRequestRepository ------------------------------------------------------

type stubRequestRepository struct {
	store map[string]domain.CustomizationRequest
}

func newStubRequestRepository(seed ...domain.CustomizationRequest) *stubRequestRepository {
	s := &stubRequestRepository{store: make(map[string]domain.CustomizationRequest)}
	for _, request := range seed {
		s.store[request.ID] = request
	}
	return s
}

func (s *stubRequestRepository) Insert(_ context.Context, request domain.CustomizationRequest) error {
	if _, ok := s.store[request.ID]; ok {
		return conflictErr("request exists", nil)
	}
	s.store[request.ID] = request
	return nil
}

func (s *stubRequestRepository) Update(_ context.Context, request domain.CustomizationRequest) error {
	if _, ok := s.store[request.ID]; !ok {
		return notFoundErr("request not found")
	}
	s.store[request.ID] = request
	return nil
}

func (s *stubRequestRepository) FindByID(_ context.Context, requestID string) (domain.CustomizationRequest, error) {
	request, ok := s.store[requestID]
	if !ok {
		return domain.CustomizationRequest{}, notFoundErr("request not found")
	}
	return request, nil
}

func (s *stubRequestRepository) Claim(_ context.Context, requestID, designerID string, now time.Time) (domain.CustomizationRequest, error) {
	request, ok := s.store[requestID]
	if !ok {
		return domain.CustomizationRequest{}, notFoundErr("request not found")
	}
	if request.Assigned() {
		return domain.CustomizationRequest{}, conflictErr("claim", repositories.ErrAlreadyClaimed)
	}
	if request.Status != domain.CustomizationStatusPendingReview {
		return domain.CustomizationRequest{}, conflictErr("claim", repositories.ErrNotClaimable)
	}
	request.DesignerID = &designerID
	request.Status = domain.CustomizationStatusInProgress
	request.AssignedAt = &now
	request.UpdatedAt = now
	s.store[requestID] = request
	return request, nil
}

func (s *stubRequestRepository) LinkOrder(_ context.Context, requestID, orderID string, now time.Time) (domain.CustomizationRequest, error) {
	request, ok := s.store[requestID]
	if !ok {
		return domain.CustomizationRequest{}, notFoundErr("request not found")
	}
	if request.OrderID != nil {
		if *request.OrderID == orderID {
			return request, nil
		}
		return domain.CustomizationRequest{}, conflictErr("link order", repositories.ErrOrderAlreadyLinked)
	}
	request.OrderID = &orderID
	request.Status = domain.CustomizationStatusCompleted
	request.CompletedAt = &now
	request.UpdatedAt = now
	s.store[requestID] = request
	return request, nil
}

func (s *stubRequestRepository) ListByCustomer(_ context.Context, customerID string, filter repositories.CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error) {
	return s.list(func(r domain.CustomizationRequest) bool {
		return r.CustomerID == customerID && matchCustomizationStatus(r, filter.Status)
	}), nil
}

func (s *stubRequestRepository) ListByDesigner(_ context.Context, designerID string, filter repositories.CustomizationListFilter) (domain.CursorPage[domain.CustomizationRequest], error) {
	return s.list(func(r domain.CustomizationRequest) bool {
		return r.DesignerID != nil && *r.DesignerID == designerID && matchCustomizationStatus(r, filter.Status)
	}), nil
}

func (s *stubRequestRepository) ListUnclaimed(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.CustomizationRequest], error) {
	return s.list(func(r domain.CustomizationRequest) bool {
		return !r.Assigned() && r.Status == domain.CustomizationStatusPendingReview
	}), nil
}

func (s *stubRequestRepository) list(keep func(domain.CustomizationRequest) bool) domain.CursorPage[domain.CustomizationRequest] {
	items := make([]domain.CustomizationRequest, 0)
	for _, request := range s.store {
		if keep(request) {
			items = append(items, request)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.CustomizationRequest]{Items: items}
}

func matchCustomizationStatus(request domain.CustomizationRequest, statuses []domain.CustomizationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, status := range statuses {
		if request.Status == status {
			return true
		}
	}
	return false
}

// stubShopRepository ---------------------------------------------------------

type stubShopRepository struct {
	store map[string]domain.ShopProfile
}

func newStubShopRepository(seed ...domain.ShopProfile) *stubShopRepository {
	s := &stubShopRepository{store: make(map[string]domain.ShopProfile)}
	for _, shop := range seed {
		s.store[shop.ID] = shop
	}
	return s
}

func (s *stubShopRepository) FindByID(_ context.Context, shopID string) (domain.ShopProfile, error) {
	shop, ok := s.store[shopID]
	if !ok {
		return domain.ShopProfile{}, notFoundErr("shop not found")
	}
	return shop, nil
}

func (s *stubShopRepository) Upsert(_ context.Context, shop domain.ShopProfile) error {
	s.store[shop.ID] = shop
	return nil
}

// stubOrderRepository --------------------------------------------------------

type stubOrderRepository struct {
	store map[string]domain.OrderSnapshot
}

func newStubOrderRepository(seed ...domain.OrderSnapshot) *stubOrderRepository {
	s := &stubOrderRepository{store: make(map[string]domain.OrderSnapshot)}
	for _, order := range seed {
		s.store[order.ID] = order
	}
	return s
}

func (s *stubOrderRepository) FindByID(_ context.Context, orderID string) (domain.OrderSnapshot, error) {
	order, ok := s.store[orderID]
	if !ok {
		return domain.OrderSnapshot{}, notFoundErr("order not found")
	}
	return order, nil
}

// stubDisputeRepository ------------------------------------------------------

type stubDisputeRepository struct {
	store map[string]domain.Dispute
}

func newStubDisputeRepository(seed ...domain.Dispute) *stubDisputeRepository {
	s := &stubDisputeRepository{store: make(map[string]domain.Dispute)}
	for _, dispute := range seed {
		s.store[dispute.ID] = dispute
	}
	return s
}

func (s *stubDisputeRepository) Insert(_ context.Context, dispute domain.Dispute) error {
	if _, ok := s.store[dispute.ID]; ok {
		return conflictErr("dispute exists", nil)
	}
	s.store[dispute.ID] = dispute
	return nil
}

func (s *stubDisputeRepository) Update(_ context.Context, dispute domain.Dispute) error {
	if _, ok := s.store[dispute.ID]; !ok {
		return notFoundErr("dispute not found")
	}
	s.store[dispute.ID] = dispute
	return nil
}

func (s *stubDisputeRepository) FindByID(_ context.Context, disputeID string) (domain.Dispute, error) {
	dispute, ok := s.store[disputeID]
	if !ok {
		return domain.Dispute{}, notFoundErr("dispute not found")
	}
	return dispute, nil
}

func (s *stubDisputeRepository) FindOpenByTarget(_ context.Context, targetRef, filerID string) (domain.Dispute, bool, error) {
	for _, dispute := range s.store {
		if dispute.Target.Ref() == targetRef && dispute.FilerID == filerID && dispute.Open() {
			return dispute, true, nil
		}
	}
	return domain.Dispute{}, false, nil
}

func (s *stubDisputeRepository) Escalate(_ context.Context, disputeID string, now time.Time) (domain.Dispute, bool, error) {
	dispute, ok := s.store[disputeID]
	if !ok {
		return domain.Dispute{}, false, notFoundErr("dispute not found")
	}
	switch dispute.Status {
	case domain.DisputeStatusEscalated:
		return dispute, false, nil
	case domain.DisputeStatusFiled, domain.DisputeStatusNegotiating:
		dispute.Status = domain.DisputeStatusEscalated
		dispute.EscalatedAt = &now
		dispute.UpdatedAt = now
		s.store[disputeID] = dispute
		return dispute, true, nil
	default:
		return domain.Dispute{}, false, conflictErr("escalate: dispute cannot escalate", nil)
	}
}

func (s *stubDisputeRepository) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]domain.Dispute, error) {
	overdue := make([]domain.Dispute, 0)
	for _, dispute := range s.store {
		sweepable := dispute.Status == domain.DisputeStatusFiled || dispute.Status == domain.DisputeStatusNegotiating
		if sweepable && !dispute.NegotiationDeadline.After(cutoff) {
			overdue = append(overdue, dispute)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].NegotiationDeadline.Before(overdue[j].NegotiationDeadline)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (s *stubDisputeRepository) ListByParticipant(_ context.Context, participantID string, filter repositories.DisputeListFilter) (domain.CursorPage[domain.Dispute], error) {
	items := make([]domain.Dispute, 0)
	for _, dispute := range s.store {
		if dispute.FilerID != participantID && dispute.RespondentID != participantID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, status := range filter.Status {
				if dispute.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		items = append(items, dispute)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Dispute]{Items: items}, nil
}

// stubOutboxRepository -------------------------------------------------------

type stubOutboxRepository struct {
	order []string
	store map[string]domain.WorkflowEvent

	markFailedCalls int
}

func newStubOutboxRepository(seed ...domain.WorkflowEvent) *stubOutboxRepository {
	s := &stubOutboxRepository{store: make(map[string]domain.WorkflowEvent)}
	for _, event := range seed {
		s.order = append(s.order, event.ID)
		s.store[event.ID] = event
	}
	return s
}

func (s *stubOutboxRepository) Append(_ context.Context, event domain.WorkflowEvent) error {
	if _, ok := s.store[event.ID]; ok {
		return conflictErr("event exists", nil)
	}
	s.order = append(s.order, event.ID)
	s.store[event.ID] = event
	return nil
}

func (s *stubOutboxRepository) FindByID(_ context.Context, eventID string) (domain.WorkflowEvent, error) {
	event, ok := s.store[eventID]
	if !ok {
		return domain.WorkflowEvent{}, notFoundErr("event not found")
	}
	return event, nil
}

func (s *stubOutboxRepository) ListPending(_ context.Context, limit int) ([]domain.WorkflowEvent, error) {
	pending := make([]domain.WorkflowEvent, 0)
	for _, id := range s.order {
		event := s.store[id]
		if event.Status != domain.OutboxStatusPending {
			continue
		}
		pending = append(pending, event)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *stubOutboxRepository) MarkDispatched(_ context.Context, eventID string, dispatchedAt time.Time) error {
	event, ok := s.store[eventID]
	if !ok {
		return notFoundErr("event not found")
	}
	event.Status = domain.OutboxStatusDispatched
	event.LastError = ""
	event.DispatchedAt = &dispatchedAt
	s.store[eventID] = event
	return nil
}

func (s *stubOutboxRepository) MarkFailed(_ context.Context, eventID, cause string, maxAttempts int) (domain.WorkflowEvent, error) {
	s.markFailedCalls++
	event, ok := s.store[eventID]
	if !ok {
		return domain.WorkflowEvent{}, notFoundErr("event not found")
	}
	event.Attempts++
	event.LastError = cause
	if event.Attempts >= maxAttempts {
		event.Status = domain.OutboxStatusFailed
	}
	s.store[eventID] = event
	return event, nil
}

func (s *stubOutboxRepository) pendingTypes() []string {
	types := make([]string, 0)
	for _, id := range s.order {
		if event := s.store[id]; event.Status == domain.OutboxStatusPending {
			types = append(types, event.Type)
		}
	}
	return types
}

func (s *stubOutboxRepository) lastEvent() (domain.WorkflowEvent, bool) {
	if len(s.order) == 0 {
		return domain.WorkflowEvent{}, false
	}
	return s.store[s.order[len(s.order)-1]], true
}

// stubActivityRepository -----------------------------------------------------

type stubActivityRepository struct {
	appended []domain.Activity
	err      error
}

func (s *stubActivityRepository) Append(_ context.Context, activity domain.Activity) error {
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.appended {
		if existing.ID == activity.ID {
			return conflictErr("activity exists", nil)
		}
	}
	s.appended = append(s.appended, activity)
	return nil
}

func (s *stubActivityRepository) ListByTarget(_ context.Context, targetRef string, _ domain.Pagination) (domain.CursorPage[domain.Activity], error) {
	items := make([]domain.Activity, 0)
	for _, activity := range s.appended {
		if activity.TargetRef == targetRef {
			items = append(items, activity)
		}
	}
	return domain.CursorPage[domain.Activity]{Items: items}, nil
}

// stubNotificationRepository -------------------------------------------------

type stubNotificationRepository struct {
	appended []domain.Notification
	err      error
}

func (s *stubNotificationRepository) Append(_ context.Context, notification domain.Notification) error {
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.appended {
		if existing.ID == notification.ID {
			return conflictErr("notification exists", nil)
		}
	}
	s.appended = append(s.appended, notification)
	return nil
}

func (s *stubNotificationRepository) ListByRecipient(_ context.Context, recipientID string, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	items := make([]domain.Notification, 0)
	for _, notification := range s.appended {
		if notification.RecipientID != recipientID {
			continue
		}
		if filter.UnreadOnly && notification.Read {
			continue
		}
		items = append(items, notification)
	}
	return domain.CursorPage[domain.Notification]{Items: items}, nil
}

func (s *stubNotificationRepository) MarkRead(_ context.Context, recipientID, notificationID string) error {
	for i, notification := range s.appended {
		if notification.ID == notificationID && notification.RecipientID == recipientID {
			s.appended[i].Read = true
			return nil
		}
	}
	return notFoundErr("notification not found")
}

func (s *stubNotificationRepository) recipients() []string {
	out := make([]string, 0, len(s.appended))
	for _, notification := range s.appended {
		out = append(out, notification.RecipientID)
	}
	sort.Strings(out)
	return out
}

// stubEventPublisher ---------------------------------------------------------

type stubEventPublisher struct {
	published []string
	failures  int
	err       error
}

func (s *stubEventPublisher) PublishWorkflowEvent(_ context.Context, msg jobs.WorkflowEventMessage) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", s.publishErr()
	}
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, msg.EventID)
	return "msg-" + msg.EventID, nil
}

func (s *stubEventPublisher) publishErr() error {
	if s.err != nil {
		return s.err
	}
	return fmt.Errorf("broker unavailable")
}
