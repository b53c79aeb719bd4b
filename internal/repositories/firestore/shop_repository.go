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

const shopsCollection = "shops"

// ShopProfileRepository reads shop state consumed by selection guards. Shop
// onboarding itself lives outside this service; Upsert exists for admin
// tooling and test seeding.
type ShopProfileRepository struct {
	base *pfirestore.BaseRepository[shopProfileDocument]
}

var _ repositories.ShopProfileRepository = (*ShopProfileRepository)(nil)

// NewShopProfileRepository constructs the Firestore-backed repository.
func NewShopProfileRepository(provider *pfirestore.Provider) (*ShopProfileRepository, error) {
	base, err := pfirestore.NewBaseRepository[shopProfileDocument](provider, shopsCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("shop repository: %w", err)
	}
	return &ShopProfileRepository{base: base}, nil
}

// FindByID fetches a single shop profile.
func (r *ShopProfileRepository) FindByID(ctx context.Context, shopID string) (domain.ShopProfile, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return domain.ShopProfile{}, errors.New("shop repository: shop id is required")
	}
	ref, err := r.base.DocumentRef(ctx, shopID)
	if err != nil {
		return domain.ShopProfile{}, err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return domain.ShopProfile{}, pfirestore.WrapError("shops.find", err)
	}
	doc, err := r.base.Decode(snap)
	if err != nil {
		return domain.ShopProfile{}, err
	}
	return decodeShopProfile(snap.Ref.ID, doc, snap.CreateTime, snap.UpdateTime), nil
}

// Upsert replaces the persisted shop state with the provided snapshot.
func (r *ShopProfileRepository) Upsert(ctx context.Context, shop domain.ShopProfile) error {
	shopID := strings.TrimSpace(shop.ID)
	if shopID == "" {
		return errors.New("shop repository: shop id is required")
	}
	ref, err := r.base.DocumentRef(ctx, shopID)
	if err != nil {
		return err
	}
	if err := setDoc(ctx, ref, encodeShopProfile(shop)); err != nil {
		return pfirestore.WrapError("shops.upsert", err)
	}
	return nil
}

type shopProfileDocument struct {
	OwnerID   string    `firestore:"ownerId"`
	Name      string    `firestore:"name"`
	Status    string    `firestore:"status"`
	IsActive  bool      `firestore:"isActive"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func encodeShopProfile(shop domain.ShopProfile) shopProfileDocument {
	return shopProfileDocument{
		OwnerID:   strings.TrimSpace(shop.OwnerID),
		Name:      strings.TrimSpace(shop.Name),
		Status:    string(shop.Status),
		IsActive:  shop.IsActive,
		CreatedAt: shop.CreatedAt.UTC(),
		UpdatedAt: shop.UpdatedAt.UTC(),
	}
}

func decodeShopProfile(id string, doc shopProfileDocument, createdAt, updatedAt time.Time) domain.ShopProfile {
	return domain.ShopProfile{
		ID:        strings.TrimSpace(id),
		OwnerID:   strings.TrimSpace(doc.OwnerID),
		Name:      strings.TrimSpace(doc.Name),
		Status:    domain.ShopStatus(strings.TrimSpace(doc.Status)),
		IsActive:  doc.IsActive,
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
}
