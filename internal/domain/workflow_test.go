package domain

import (
	"testing"
	"time"
)

func TestCustomizationTransitionTableCoversEveryStatus(t *testing.T) {
	statuses := []CustomizationStatus{
		CustomizationStatusPendingReview,
		CustomizationStatusInProgress,
		CustomizationStatusAwaitingApproval,
		CustomizationStatusApproved,
		CustomizationStatusRejected,
		CustomizationStatusCompleted,
		CustomizationStatusCancelled,
	}
	for _, status := range statuses {
		if !ValidCustomizationStatus(status) {
			t.Fatalf("status %s missing from transition table", status)
		}
	}
	if ValidCustomizationStatus("in_review") {
		t.Fatalf("unknown status accepted")
	}
}

func TestCustomizationHappyPathSequenceIsLegal(t *testing.T) {
	sequence := []CustomizationStatus{
		CustomizationStatusPendingReview,
		CustomizationStatusInProgress,
		CustomizationStatusAwaitingApproval,
		CustomizationStatusRejected,
		CustomizationStatusInProgress,
		CustomizationStatusAwaitingApproval,
		CustomizationStatusApproved,
		CustomizationStatusCompleted,
	}
	for i := 1; i < len(sequence); i++ {
		if !CanTransitionCustomization(sequence[i-1], sequence[i]) {
			t.Fatalf("transition %s -> %s should be legal", sequence[i-1], sequence[i])
		}
	}
}

func TestCustomizationTerminalStatesHaveNoExits(t *testing.T) {
	for _, status := range []CustomizationStatus{CustomizationStatusCompleted, CustomizationStatusCancelled} {
		if !(CustomizationRequest{Status: status}).Terminal() {
			t.Fatalf("Terminal() = false for %s", status)
		}
		for _, to := range []CustomizationStatus{
			CustomizationStatusPendingReview,
			CustomizationStatusInProgress,
			CustomizationStatusAwaitingApproval,
			CustomizationStatusApproved,
			CustomizationStatusRejected,
			CustomizationStatusCompleted,
			CustomizationStatusCancelled,
		} {
			if CanTransitionCustomization(status, to) {
				t.Fatalf("terminal status %s must not transition to %s", status, to)
			}
		}
	}
}

func TestCustomizationIllegalShortcuts(t *testing.T) {
	cases := []struct{ from, to CustomizationStatus }{
		{CustomizationStatusPendingReview, CustomizationStatusApproved},
		{CustomizationStatusPendingReview, CustomizationStatusAwaitingApproval},
		{CustomizationStatusInProgress, CustomizationStatusApproved},
		{CustomizationStatusApproved, CustomizationStatusRejected},
		{CustomizationStatusRejected, CustomizationStatusApproved},
	}
	for _, c := range cases {
		if CanTransitionCustomization(c.from, c.to) {
			t.Fatalf("transition %s -> %s should be illegal", c.from, c.to)
		}
	}
}

func TestDisputeTransitionTable(t *testing.T) {
	legal := []struct{ from, to DisputeStatus }{
		{DisputeStatusFiled, DisputeStatusNegotiating},
		{DisputeStatusNegotiating, DisputeStatusResolved},
		{DisputeStatusNegotiating, DisputeStatusEscalated},
		{DisputeStatusResolved, DisputeStatusClosed},
		{DisputeStatusEscalated, DisputeStatusClosed},
	}
	for _, c := range legal {
		if !CanTransitionDispute(c.from, c.to) {
			t.Fatalf("transition %s -> %s should be legal", c.from, c.to)
		}
	}

	illegal := []struct{ from, to DisputeStatus }{
		{DisputeStatusFiled, DisputeStatusEscalated},
		{DisputeStatusFiled, DisputeStatusClosed},
		{DisputeStatusResolved, DisputeStatusEscalated},
		{DisputeStatusEscalated, DisputeStatusNegotiating},
		{DisputeStatusClosed, DisputeStatusNegotiating},
	}
	for _, c := range illegal {
		if CanTransitionDispute(c.from, c.to) {
			t.Fatalf("transition %s -> %s should be illegal", c.from, c.to)
		}
	}
}

func TestDisputeTargetValidRequiresExactlyOneReference(t *testing.T) {
	orderID := "order-1"
	requestID := "creq-1"
	empty := ""

	if (DisputeTarget{}).Valid() {
		t.Fatalf("empty target must be invalid")
	}
	if (DisputeTarget{OrderID: &empty}).Valid() {
		t.Fatalf("blank order id must be invalid")
	}
	if !(DisputeTarget{OrderID: &orderID}).Valid() {
		t.Fatalf("order target must be valid")
	}
	if !(DisputeTarget{CustomizationRequestID: &requestID}).Valid() {
		t.Fatalf("customization target must be valid")
	}
	if (DisputeTarget{OrderID: &orderID, CustomizationRequestID: &requestID}).Valid() {
		t.Fatalf("both references set must be invalid")
	}
}

func TestDisputeOverdue(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dispute := Dispute{Status: DisputeStatusNegotiating, NegotiationDeadline: deadline}

	if dispute.Overdue(deadline.Add(-time.Minute)) {
		t.Fatalf("dispute before the deadline is not overdue")
	}
	if !dispute.Overdue(deadline.Add(time.Minute)) {
		t.Fatalf("negotiating dispute past the deadline is overdue")
	}

	dispute.Status = DisputeStatusEscalated
	if dispute.Overdue(deadline.Add(time.Hour)) {
		t.Fatalf("escalated dispute is never overdue")
	}
}
