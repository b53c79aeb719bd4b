package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
)

var testNow = time.Date(2026, time.August, 1, 9, 0, 0, 0, time.UTC)

type customizationFixture struct {
	service  CustomizationService
	requests *stubRequestRepository
	shops    *stubShopRepository
	outbox   *stubOutboxRepository
	tx       *passthroughTx
	clock    *testClock
}

func newCustomizationFixture(t *testing.T, seed ...domain.CustomizationRequest) *customizationFixture {
	t.Helper()

	f := &customizationFixture{
		requests: newStubRequestRepository(seed...),
		shops:    newStubShopRepository(),
		outbox:   newStubOutboxRepository(),
		tx:       &passthroughTx{},
		clock:    &testClock{now: testNow},
	}
	service, err := NewCustomizationService(CustomizationServiceDeps{
		Requests:  f.requests,
		Shops:     f.shops,
		Outbox:    f.outbox,
		Tx:        f.tx,
		Clock:     f.clock.Now,
		NewID:     seqIDGen(),
		Sanitizer: func(s string) string { return s },
	})
	if err != nil {
		t.Fatalf("NewCustomizationService: %v", err)
	}
	f.service = service
	return f
}

func pendingRequest(id, customerID string) domain.CustomizationRequest {
	earlier := testNow.Add(-time.Hour)
	return domain.CustomizationRequest{
		ID:            id,
		CustomerID:    customerID,
		Status:        domain.CustomizationStatusPendingReview,
		CustomerNotes: "engrave initials",
		RequestedAt:   earlier,
		CreatedAt:     earlier,
		UpdatedAt:     earlier,
	}
}

func assignedRequest(id, customerID, designerID string, status domain.CustomizationStatus) domain.CustomizationRequest {
	request := pendingRequest(id, customerID)
	request.DesignerID = &designerID
	request.Status = status
	return request
}

func TestCustomizationCreate(t *testing.T) {
	f := newCustomizationFixture(t)
	actor := Actor{ID: "cust-1", Role: domain.RoleCustomer}

	created, err := f.service.Create(context.Background(), CreateCustomizationCommand{
		Actor:         actor,
		CustomerNotes: "matte black, gold monogram",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.CustomizationStatusPendingReview {
		t.Fatalf("status = %s, want %s", created.Status, domain.CustomizationStatusPendingReview)
	}
	if created.CustomerID != "cust-1" {
		t.Fatalf("customer = %s, want cust-1", created.CustomerID)
	}
	if created.ID == "" {
		t.Fatal("expected a generated request id")
	}

	event, ok := f.outbox.lastEvent()
	if !ok {
		t.Fatal("expected an outbox event")
	}
	if event.Type != customizationEventCreated {
		t.Fatalf("event type = %s, want %s", event.Type, customizationEventCreated)
	}
	if event.Status != domain.OutboxStatusPending {
		t.Fatalf("event status = %s, want pending", event.Status)
	}
	if f.tx.calls != 1 {
		t.Fatalf("tx calls = %d, want 1", f.tx.calls)
	}
}

func TestCustomizationCreateRequiresContent(t *testing.T) {
	f := newCustomizationFixture(t)

	_, err := f.service.Create(context.Background(), CreateCustomizationCommand{
		Actor: Actor{ID: "cust-1", Role: domain.RoleCustomer},
	})
	if !errors.Is(err, ErrCustomizationInvalidInput) {
		t.Fatalf("err = %v, want ErrCustomizationInvalidInput", err)
	}
	if len(f.outbox.order) != 0 {
		t.Fatal("no event should be written for rejected input")
	}
}

func TestCustomizationClaim(t *testing.T) {
	f := newCustomizationFixture(t, pendingRequest("creq_a", "cust-1"))
	designer := Actor{ID: "des-1", Role: domain.RoleDesigner}

	claimed, err := f.service.Claim(context.Background(), ClaimCustomizationCommand{Actor: designer, RequestID: "creq_a"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != domain.CustomizationStatusInProgress {
		t.Fatalf("status = %s, want %s", claimed.Status, domain.CustomizationStatusInProgress)
	}
	if claimed.DesignerID == nil || *claimed.DesignerID != "des-1" {
		t.Fatalf("designer = %v, want des-1", claimed.DesignerID)
	}
	if claimed.AssignedAt == nil || !claimed.AssignedAt.Equal(testNow) {
		t.Fatalf("assignedAt = %v, want %v", claimed.AssignedAt, testNow)
	}

	event, _ := f.outbox.lastEvent()
	if event.Type != customizationEventClaimed {
		t.Fatalf("event type = %s, want %s", event.Type, customizationEventClaimed)
	}
	if len(event.Recipients) != 1 || event.Recipients[0] != "cust-1" {
		t.Fatalf("recipients = %v, want [cust-1]", event.Recipients)
	}
}

func TestCustomizationClaimLosesRace(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))

	_, err := f.service.Claim(context.Background(), ClaimCustomizationCommand{
		Actor:     Actor{ID: "des-2", Role: domain.RoleDesigner},
		RequestID: "creq_a",
	})
	if !errors.Is(err, ErrCustomizationConflict) {
		t.Fatalf("err = %v, want ErrCustomizationConflict", err)
	}
}

func TestCustomizationClaimRequiresDesignerRole(t *testing.T) {
	f := newCustomizationFixture(t, pendingRequest("creq_a", "cust-1"))

	_, err := f.service.Claim(context.Background(), ClaimCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
	})
	if !errors.Is(err, ErrCustomizationForbidden) {
		t.Fatalf("err = %v, want ErrCustomizationForbidden", err)
	}
}

func TestCustomizationSelectShop(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))
	f.shops.store["shop-1"] = domain.ShopProfile{
		ID:       "shop-1",
		OwnerID:  "owner-1",
		Status:   domain.ShopStatusApproved,
		IsActive: true,
	}

	updated, err := f.service.SelectShop(context.Background(), SelectShopCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
		ShopID:    "shop-1",
	})
	if err != nil {
		t.Fatalf("SelectShop: %v", err)
	}
	if updated.ShopID == nil || *updated.ShopID != "shop-1" {
		t.Fatalf("shop = %v, want shop-1", updated.ShopID)
	}

	event, _ := f.outbox.lastEvent()
	if event.Type != customizationEventShopSelected {
		t.Fatalf("event type = %s, want %s", event.Type, customizationEventShopSelected)
	}
	if event.Metadata["shopId"] != "shop-1" {
		t.Fatalf("metadata shopId = %v, want shop-1", event.Metadata["shopId"])
	}
}

func TestCustomizationSelectShopRequiresInProgress(t *testing.T) {
	for _, status := range []domain.CustomizationStatus{
		domain.CustomizationStatusPendingReview,
		domain.CustomizationStatusAwaitingApproval,
		domain.CustomizationStatusApproved,
		domain.CustomizationStatusRejected,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", status))
			f.shops.store["shop-1"] = domain.ShopProfile{
				ID:       "shop-1",
				OwnerID:  "owner-1",
				Status:   domain.ShopStatusApproved,
				IsActive: true,
			}

			_, err := f.service.SelectShop(context.Background(), SelectShopCommand{
				Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
				RequestID: "creq_a",
				ShopID:    "shop-1",
			})
			if !errors.Is(err, ErrCustomizationInvalidTransition) {
				t.Fatalf("err = %v, want ErrCustomizationInvalidTransition", err)
			}

			stored, ferr := f.requests.FindByID(context.Background(), "creq_a")
			if ferr != nil {
				t.Fatalf("FindByID: %v", ferr)
			}
			if stored.ShopID != nil {
				t.Fatalf("shop = %v, want unset", stored.ShopID)
			}
		})
	}
}

func TestCustomizationSelectShopRejectsIneligibleShop(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))
	f.shops.store["shop-1"] = domain.ShopProfile{
		ID:       "shop-1",
		OwnerID:  "owner-1",
		Status:   domain.ShopStatusSuspended,
		IsActive: true,
	}

	_, err := f.service.SelectShop(context.Background(), SelectShopCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
		ShopID:    "shop-1",
	})
	if !errors.Is(err, ErrCustomizationInvalidInput) {
		t.Fatalf("err = %v, want ErrCustomizationInvalidInput", err)
	}
}

func TestCustomizationSubmitFinalWork(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))

	updated, err := f.service.SubmitFinalWork(context.Background(), SubmitFinalWorkCommand{
		Actor:     Actor{ID: "des-1", Role: domain.RoleDesigner},
		RequestID: "creq_a",
		FinalFile: domain.FileReference{
			Bucket:     "designs",
			ObjectPath: "final/creq_a/v1.pdf",
			FileName:   "v1.pdf",
		},
		DesignerNotes: "final proof attached",
	})
	if err != nil {
		t.Fatalf("SubmitFinalWork: %v", err)
	}
	if updated.Status != domain.CustomizationStatusAwaitingApproval {
		t.Fatalf("status = %s, want %s", updated.Status, domain.CustomizationStatusAwaitingApproval)
	}
	if updated.FinalFile == nil || updated.FinalFile.ObjectPath != "final/creq_a/v1.pdf" {
		t.Fatalf("final file = %v", updated.FinalFile)
	}

	event, _ := f.outbox.lastEvent()
	if len(event.Recipients) != 1 || event.Recipients[0] != "cust-1" {
		t.Fatalf("recipients = %v, want [cust-1]", event.Recipients)
	}
}

func TestCustomizationSubmitFinalWorkRequiresAssignedDesigner(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))

	_, err := f.service.SubmitFinalWork(context.Background(), SubmitFinalWorkCommand{
		Actor:     Actor{ID: "des-2", Role: domain.RoleDesigner},
		RequestID: "creq_a",
		FinalFile: domain.FileReference{ObjectPath: "final/x.pdf"},
	})
	if !errors.Is(err, ErrCustomizationForbidden) {
		t.Fatalf("err = %v, want ErrCustomizationForbidden", err)
	}
}

func TestCustomizationApprove(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusAwaitingApproval))

	updated, err := f.service.Approve(context.Background(), ApproveCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
	})
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if updated.Status != domain.CustomizationStatusApproved {
		t.Fatalf("status = %s, want %s", updated.Status, domain.CustomizationStatusApproved)
	}
	if updated.ApprovedAt == nil || !updated.ApprovedAt.Equal(testNow) {
		t.Fatalf("approvedAt = %v, want %v", updated.ApprovedAt, testNow)
	}

	event, _ := f.outbox.lastEvent()
	if len(event.Recipients) != 1 || event.Recipients[0] != "des-1" {
		t.Fatalf("recipients = %v, want [des-1]", event.Recipients)
	}
}

func TestCustomizationApproveRejectsWrongState(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))

	_, err := f.service.Approve(context.Background(), ApproveCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
	})
	if !errors.Is(err, ErrCustomizationInvalidTransition) {
		t.Fatalf("err = %v, want ErrCustomizationInvalidTransition", err)
	}
}

func TestCustomizationRejectAndResubmit(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusAwaitingApproval))
	ctx := context.Background()

	rejected, err := f.service.Reject(ctx, RejectCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
		Reason:    "wrong font",
	})
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != domain.CustomizationStatusRejected {
		t.Fatalf("status = %s, want %s", rejected.Status, domain.CustomizationStatusRejected)
	}
	if rejected.RejectionReason != "wrong font" {
		t.Fatalf("reason = %q, want %q", rejected.RejectionReason, "wrong font")
	}

	resubmitted, err := f.service.Resubmit(ctx, ResubmitCustomizationCommand{
		Actor:     Actor{ID: "des-1", Role: domain.RoleDesigner},
		RequestID: "creq_a",
	})
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resubmitted.Status != domain.CustomizationStatusInProgress {
		t.Fatalf("status = %s, want %s", resubmitted.Status, domain.CustomizationStatusInProgress)
	}
	if resubmitted.RejectionReason != "" {
		t.Fatalf("rejection reason should be cleared, got %q", resubmitted.RejectionReason)
	}
}

func TestCustomizationRejectRequiresReason(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusAwaitingApproval))

	_, err := f.service.Reject(context.Background(), RejectCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
	})
	if !errors.Is(err, ErrCustomizationInvalidInput) {
		t.Fatalf("err = %v, want ErrCustomizationInvalidInput", err)
	}
}

func TestCustomizationLinkOrder(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusApproved))
	ctx := context.Background()
	owner := Actor{ID: "cust-1", Role: domain.RoleCustomer}

	linked, err := f.service.LinkOrder(ctx, LinkOrderCommand{Actor: owner, RequestID: "creq_a", OrderID: "ord-9"})
	if err != nil {
		t.Fatalf("LinkOrder: %v", err)
	}
	if linked.Status != domain.CustomizationStatusCompleted {
		t.Fatalf("status = %s, want %s", linked.Status, domain.CustomizationStatusCompleted)
	}
	if linked.OrderID == nil || *linked.OrderID != "ord-9" {
		t.Fatalf("order = %v, want ord-9", linked.OrderID)
	}
	eventsAfterFirst := len(f.outbox.order)
	f.clock.Advance(time.Minute)

	// Replaying the same link must not fail or emit a second event.
	replayed, err := f.service.LinkOrder(ctx, LinkOrderCommand{Actor: owner, RequestID: "creq_a", OrderID: "ord-9"})
	if err != nil {
		t.Fatalf("LinkOrder replay: %v", err)
	}
	if replayed.OrderID == nil || *replayed.OrderID != "ord-9" {
		t.Fatalf("replay order = %v, want ord-9", replayed.OrderID)
	}
	if len(f.outbox.order) != eventsAfterFirst {
		t.Fatalf("replay wrote %d new events", len(f.outbox.order)-eventsAfterFirst)
	}

	// A different order for the same request is a conflict.
	_, err = f.service.LinkOrder(ctx, LinkOrderCommand{Actor: owner, RequestID: "creq_a", OrderID: "ord-10"})
	if !errors.Is(err, ErrCustomizationConflict) {
		t.Fatalf("err = %v, want ErrCustomizationConflict", err)
	}
}

func TestCustomizationCancel(t *testing.T) {
	f := newCustomizationFixture(t, pendingRequest("creq_a", "cust-1"))

	cancelled, err := f.service.Cancel(context.Background(), CancelCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
		Reason:    "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.CustomizationStatusCancelled {
		t.Fatalf("status = %s, want %s", cancelled.Status, domain.CustomizationStatusCancelled)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("cancelledAt should be set")
	}
}

func TestCustomizationCancelRejectsTerminalState(t *testing.T) {
	request := assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusCompleted)
	f := newCustomizationFixture(t, request)

	_, err := f.service.Cancel(context.Background(), CancelCustomizationCommand{
		Actor:     Actor{ID: "cust-1", Role: domain.RoleCustomer},
		RequestID: "creq_a",
	})
	if !errors.Is(err, ErrCustomizationInvalidTransition) {
		t.Fatalf("err = %v, want ErrCustomizationInvalidTransition", err)
	}
}

func TestCustomizationGetEnforcesVisibility(t *testing.T) {
	f := newCustomizationFixture(t, assignedRequest("creq_a", "cust-1", "des-1", domain.CustomizationStatusInProgress))
	ctx := context.Background()

	if _, err := f.service.Get(ctx, "creq_a", Actor{ID: "des-1", Role: domain.RoleDesigner}); err != nil {
		t.Fatalf("assigned designer should read the request: %v", err)
	}
	if _, err := f.service.Get(ctx, "creq_a", Actor{ID: "stranger", Role: domain.RoleCustomer}); !errors.Is(err, ErrCustomizationForbidden) {
		t.Fatalf("err = %v, want ErrCustomizationForbidden", err)
	}
	if _, err := f.service.Get(ctx, "creq_a", Actor{ID: "staff", Admin: true}); err != nil {
		t.Fatalf("admin should read the request: %v", err)
	}
	if _, err := f.service.Get(ctx, "missing", Actor{ID: "cust-1"}); !errors.Is(err, ErrCustomizationNotFound) {
		t.Fatalf("err = %v, want ErrCustomizationNotFound", err)
	}
}

func TestCustomizationListUnclaimedRequiresDesigner(t *testing.T) {
	f := newCustomizationFixture(t, pendingRequest("creq_a", "cust-1"))
	ctx := context.Background()

	page, err := f.service.ListUnclaimed(ctx, Actor{ID: "des-1", Role: domain.RoleDesigner}, Pagination{})
	if err != nil {
		t.Fatalf("ListUnclaimed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}

	if _, err := f.service.ListUnclaimed(ctx, Actor{ID: "cust-1", Role: domain.RoleCustomer}, Pagination{}); !errors.Is(err, ErrCustomizationForbidden) {
		t.Fatalf("err = %v, want ErrCustomizationForbidden", err)
	}
}

func TestCustomizationListForOtherUserRequiresAdmin(t *testing.T) {
	f := newCustomizationFixture(t, pendingRequest("creq_a", "cust-1"))
	ctx := context.Background()

	_, err := f.service.ListByCustomer(ctx, ListCustomizationsCommand{
		Actor:  Actor{ID: "stranger", Role: domain.RoleCustomer},
		UserID: "cust-1",
	})
	if !errors.Is(err, ErrCustomizationForbidden) {
		t.Fatalf("err = %v, want ErrCustomizationForbidden", err)
	}

	page, err := f.service.ListByCustomer(ctx, ListCustomizationsCommand{
		Actor:  Actor{ID: "staff", Admin: true},
		UserID: "cust-1",
	})
	if err != nil {
		t.Fatalf("ListByCustomer as admin: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}
}
