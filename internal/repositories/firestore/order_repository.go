package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
	pfirestore "github.com/fabriqly/api/internal/platform/firestore"
	"github.com/fabriqly/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderSnapshotRepository reads order projections written by the external
// order system. Only the fields the workflow consults are decoded.
type OrderSnapshotRepository struct {
	base *pfirestore.BaseRepository[orderSnapshotDocument]
}

var _ repositories.OrderSnapshotRepository = (*OrderSnapshotRepository)(nil)

// NewOrderSnapshotRepository constructs the Firestore-backed repository.
func NewOrderSnapshotRepository(provider *pfirestore.Provider) (*OrderSnapshotRepository, error) {
	base, err := pfirestore.NewBaseRepository[orderSnapshotDocument](provider, ordersCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("order repository: %w", err)
	}
	return &OrderSnapshotRepository{base: base}, nil
}

// FindByID fetches the order projection.
func (r *OrderSnapshotRepository) FindByID(ctx context.Context, orderID string) (domain.OrderSnapshot, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.OrderSnapshot{}, errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.OrderSnapshot{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.OrderSnapshot{}, pfirestore.WrapError("orders.find", err)
	}
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.OrderSnapshot{}, err
	}
	return domain.OrderSnapshot{
		ID:              snap.Ref.ID,
		CustomerID:      strings.TrimSpace(doc.CustomerID),
		ShopID:          strings.TrimSpace(doc.ShopID),
		ShopOwnerID:     strings.TrimSpace(doc.ShopOwnerID),
		Status:          strings.TrimSpace(doc.Status),
		StatusChangedAt: chooseTime(doc.StatusChangedAt, snap.UpdateTime),
	}, nil
}

type orderSnapshotDocument struct {
	CustomerID      string    `firestore:"customerId"`
	ShopID          string    `firestore:"shopId"`
	ShopOwnerID     string    `firestore:"shopOwnerId"`
	Status          string    `firestore:"status"`
	StatusChangedAt time.Time `firestore:"statusChangedAt"`
}
