package domain

// Transition legality for both workflows lives in the two tables below. Services
// consult CanTransitionCustomization / CanTransitionDispute instead of branching
// on statuses, so adding a state means one table edit.

var customizationTransitions = map[CustomizationStatus][]CustomizationStatus{
	CustomizationStatusPendingReview:    {CustomizationStatusInProgress, CustomizationStatusCancelled},
	CustomizationStatusInProgress:       {CustomizationStatusAwaitingApproval, CustomizationStatusCancelled},
	CustomizationStatusAwaitingApproval: {CustomizationStatusApproved, CustomizationStatusRejected, CustomizationStatusCancelled},
	CustomizationStatusApproved:         {CustomizationStatusCompleted, CustomizationStatusCancelled},
	CustomizationStatusRejected:         {CustomizationStatusInProgress, CustomizationStatusCancelled},
	CustomizationStatusCompleted:        nil,
	CustomizationStatusCancelled:        nil,
}

var disputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusFiled:       {DisputeStatusNegotiating},
	DisputeStatusNegotiating: {DisputeStatusResolved, DisputeStatusEscalated},
	DisputeStatusResolved:    {DisputeStatusClosed},
	DisputeStatusEscalated:   {DisputeStatusClosed},
	DisputeStatusClosed:      nil,
}

// CanTransitionCustomization reports whether moving a customization request from
// one status to another is legal.
func CanTransitionCustomization(from, to CustomizationStatus) bool {
	for _, next := range customizationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionDispute reports whether moving a dispute from one status to
// another is legal.
func CanTransitionDispute(from, to DisputeStatus) bool {
	for _, next := range disputeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidCustomizationStatus reports whether the value is a known status.
func ValidCustomizationStatus(status CustomizationStatus) bool {
	_, ok := customizationTransitions[status]
	return ok
}

// ValidDisputeStatus reports whether the value is a known status.
func ValidDisputeStatus(status DisputeStatus) bool {
	_, ok := disputeTransitions[status]
	return ok
}
