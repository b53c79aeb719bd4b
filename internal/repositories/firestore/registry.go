package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/fabriqly/api/internal/platform/firestore"
	"github.com/fabriqly/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	requests      *CustomizationRequestRepository
	disputes      *DisputeRepository
	shops         *ShopProfileRepository
	orders        *OrderSnapshotRepository
	activities    *ActivityRepository
	notifications *NotificationRepository
	outbox        *OutboxRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the registry and its repositories over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	requests, err := NewCustomizationRequestRepository(provider)
	if err != nil {
		return nil, err
	}
	disputes, err := NewDisputeRepository(provider)
	if err != nil {
		return nil, err
	}
	shops, err := NewShopProfileRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderSnapshotRepository(provider)
	if err != nil {
		return nil, err
	}
	activities, err := NewActivityRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	outbox, err := NewOutboxRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := repositories.NewProbeHealthRepository([]repositories.DependencyProbe{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		requests:      requests,
		disputes:      disputes,
		shops:         shops,
		orders:        orders,
		activities:    activities,
		notifications: notifications,
		outbox:        outbox,
		health:        health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) CustomizationRequests() repositories.CustomizationRequestRepository {
	return r.requests
}

func (r *Registry) Disputes() repositories.DisputeRepository { return r.disputes }

func (r *Registry) Shops() repositories.ShopProfileRepository { return r.shops }

func (r *Registry) Orders() repositories.OrderSnapshotRepository { return r.orders }

func (r *Registry) Activities() repositories.ActivityRepository { return r.activities }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Outbox() repositories.OutboxRepository { return r.outbox }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a Firestore transaction. Repository calls made
// with the derived context join the transaction, so a state transition and
// its outbox event commit or roll back together.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction func is required")
	}
	if _, ok := transactionFrom(ctx); ok {
		// Already inside a transaction; nesting would deadlock the client.
		return fn(ctx)
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("registry.run_in_tx", err)
	}
	return pfirestore.RunTransaction(ctx, client, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(txCtx, tx))
	})
}

// Transaction plumbing -------------------------------------------------------

type txContextKey struct{}

func withTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func transactionFrom(ctx context.Context) (*firestore.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// getDoc reads a snapshot through the ambient transaction when present.
func getDoc(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

// createDoc writes a new document through the ambient transaction when present.
func createDoc(ctx context.Context, ref *firestore.DocumentRef, payload any) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Create(ref, payload)
	}
	_, err := ref.Create(ctx, payload)
	return err
}

// setDoc replaces a document through the ambient transaction when present.
func setDoc(ctx context.Context, ref *firestore.DocumentRef, payload any) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Set(ref, payload)
	}
	_, err := ref.Set(ctx, payload)
	return err
}

// updateDoc applies field updates through the ambient transaction when present.
func updateDoc(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if tx, ok := transactionFrom(ctx); ok {
		return tx.Update(ref, updates)
	}
	_, err := ref.Update(ctx, updates)
	return err
}

// Cursor tokens and shared coercion helpers ----------------------------------

func encodePageToken(ts time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodePageToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

// pageWindow converts a requested page size into the fetch limit used to
// detect whether another page exists.
func pageWindow(pageSize int) (limit int, fetchLimit int) {
	if pageSize < 0 {
		pageSize = 0
	}
	limit = pageSize
	fetchLimit = pageSize
	if pageSize > 0 {
		fetchLimit = pageSize + 1
	}
	return limit, fetchLimit
}

func cloneMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func normalizeStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
