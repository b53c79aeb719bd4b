package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabriqly/api/internal/repositories"
)

// Eligibility reasons are user-facing; handlers return them verbatim.
const (
	eligibilityReasonBadTarget      = "a dispute must reference exactly one order or customization request"
	eligibilityReasonNotParty       = "only a party to the target may file a dispute"
	eligibilityReasonOpenDispute    = "an open dispute already exists for this target"
	eligibilityReasonWindowElapsed  = "the dispute filing window for this target has closed"
	eligibilityReasonTargetNotFound = "the referenced target does not exist"
)

// eligibilityChecker applies the dispute filing rules: exactly one target,
// filer is a party, no open dispute by the same filer, and the filing window
// since the target's last status change has not elapsed.
type eligibilityChecker struct {
	disputes     repositories.DisputeRepository
	requests     repositories.CustomizationRequestRepository
	orders       repositories.OrderSnapshotRepository
	shops        repositories.ShopProfileRepository
	filingWindow time.Duration
	clock        func() time.Time
}

// targetContext is what the checker learned about the target while ruling; the
// dispute service reuses it to pick the respondent.
type targetContext struct {
	ref           string
	participants  []string
	respondentFor func(filerID string) string
}

func (c *eligibilityChecker) check(ctx context.Context, query EligibilityQuery) (Eligibility, *targetContext, error) {
	if !query.Target.Valid() {
		return Eligibility{Reason: eligibilityReasonBadTarget}, nil, nil
	}
	filerID := query.Actor.ID
	if filerID == "" {
		return Eligibility{Reason: eligibilityReasonNotParty}, nil, nil
	}

	target, lastChange, err := c.resolveTarget(ctx, query.Target)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Eligibility{Reason: eligibilityReasonTargetNotFound}, nil, nil
		}
		return Eligibility{}, nil, err
	}

	if !containsString(target.participants, filerID) {
		return Eligibility{Reason: eligibilityReasonNotParty}, nil, nil
	}

	if c.filingWindow > 0 && !lastChange.IsZero() {
		if c.clock().Sub(lastChange) > c.filingWindow {
			return Eligibility{Reason: eligibilityReasonWindowElapsed}, nil, nil
		}
	}

	if _, found, err := c.disputes.FindOpenByTarget(ctx, target.ref, filerID); err != nil {
		return Eligibility{}, nil, err
	} else if found {
		return Eligibility{Reason: eligibilityReasonOpenDispute}, nil, nil
	}

	return Eligibility{Eligible: true}, target, nil
}

func (c *eligibilityChecker) resolveTarget(ctx context.Context, target DisputeTarget) (*targetContext, time.Time, error) {
	if target.CustomizationRequestID != nil {
		request, err := c.requests.FindByID(ctx, *target.CustomizationRequestID)
		if err != nil {
			return nil, time.Time{}, err
		}
		participants := []string{request.CustomerID}
		if request.DesignerID != nil {
			participants = append(participants, *request.DesignerID)
		}
		shopOwnerID, err := c.shopOwnerFor(ctx, request.ShopID)
		if err != nil {
			return nil, time.Time{}, err
		}
		if shopOwnerID != "" {
			participants = append(participants, shopOwnerID)
		}
		return &targetContext{
			ref:          target.Ref(),
			participants: participants,
			respondentFor: func(filerID string) string {
				switch {
				case filerID != request.CustomerID:
					return request.CustomerID
				case request.DesignerID != nil:
					return *request.DesignerID
				case shopOwnerID != "":
					return shopOwnerID
				default:
					return request.CustomerID
				}
			},
		}, request.UpdatedAt, nil
	}

	if target.OrderID == nil {
		return nil, time.Time{}, fmt.Errorf("dispute eligibility: empty target")
	}
	order, err := c.orders.FindByID(ctx, *target.OrderID)
	if err != nil {
		return nil, time.Time{}, err
	}
	participants := make([]string, 0, 2)
	if order.CustomerID != "" {
		participants = append(participants, order.CustomerID)
	}
	if order.ShopOwnerID != "" {
		participants = append(participants, order.ShopOwnerID)
	}
	return &targetContext{
		ref:          target.Ref(),
		participants: participants,
		respondentFor: func(filerID string) string {
			if filerID == order.CustomerID {
				return order.ShopOwnerID
			}
			return order.CustomerID
		},
	}, order.StatusChangedAt, nil
}

// shopOwnerFor resolves the owner of the shop selected on a customization
// request. A dangling shop reference does not block the remaining parties.
func (c *eligibilityChecker) shopOwnerFor(ctx context.Context, shopID *string) (string, error) {
	if shopID == nil || c.shops == nil {
		return "", nil
	}
	shop, err := c.shops.FindByID(ctx, *shopID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return "", nil
		}
		return "", err
	}
	return shop.OwnerID, nil
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
