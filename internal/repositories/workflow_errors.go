package repositories

import "errors"

// Guard violations detected inside storage transactions. Implementations wrap
// these in a conflict-categorised RepositoryError so callers can match with
// errors.Is while still branching on IsConflict.
var (
	// ErrAlreadyClaimed signals a claim attempt on a request that already has a designer.
	ErrAlreadyClaimed = errors.New("customization request already claimed")
	// ErrOrderAlreadyLinked signals a second order-link attempt on the same request.
	ErrOrderAlreadyLinked = errors.New("customization request already linked to an order")
	// ErrNotClaimable signals a claim attempt on a request outside the reviewable state.
	ErrNotClaimable = errors.New("customization request is not awaiting designer review")
)
