package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/fabriqly/api/internal/domain"
	pfirestore "github.com/fabriqly/api/internal/platform/firestore"
	"github.com/fabriqly/api/internal/repositories"
)

const notificationsCollection = "notifications"

// NotificationRepository stores per-recipient workflow notifications.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository constructs the Firestore-backed repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	base, err := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("notification repository: %w", err)
	}
	return &NotificationRepository{base: base}, nil
}

// Append writes a new notification record.
func (r *NotificationRepository) Append(ctx context.Context, notification domain.Notification) error {
	notificationID := strings.TrimSpace(notification.ID)
	if notificationID == "" {
		return errors.New("notification repository: notification id is required")
	}
	if strings.TrimSpace(notification.RecipientID) == "" {
		return errors.New("notification repository: recipient id is required")
	}
	ref, err := r.base.DocumentRef(ctx, notificationID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, encodeNotification(notification)); err != nil {
		return pfirestore.WrapError("notifications.append", err)
	}
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository: recipient id is required")
	}

	limit, fetchLimit := pageWindow(filter.Pagination.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("notification repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		q := col.Where("recipientId", "==", recipientID)
		if filter.UnreadOnly {
			q = q.Where("read", "==", false)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	nextToken := ""
	if limit > 0 && len(snaps) == fetchLimit {
		last := snaps[len(snaps)-1]
		lastDoc, err := r.base.Decode(last)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, err
		}
		nextToken = encodePageToken(chooseTime(lastDoc.CreatedAt, last.CreateTime), last.Ref.ID)
		snaps = snaps[:len(snaps)-1]
	}

	items := make([]domain.Notification, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := r.base.Decode(snap)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, err
		}
		items = append(items, decodeNotification(snap.Ref.ID, doc, snap.CreateTime))
	}
	return domain.CursorPage[domain.Notification]{Items: items, NextPageToken: nextToken}, nil
}

// MarkRead flags a notification as read. The recipient check keeps one user
// from acknowledging another user's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, notificationID string) error {
	recipientID = strings.TrimSpace(recipientID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientID == "" {
		return errors.New("notification repository: recipient id is required")
	}
	if notificationID == "" {
		return errors.New("notification repository: notification id is required")
	}

	ref, err := r.base.DocumentRef(ctx, notificationID)
	if err != nil {
		return err
	}
	snap, err := getDoc(ctx, ref)
	if err != nil {
		return pfirestore.WrapError("notifications.mark_read", err)
	}
	doc, err := r.base.Decode(snap)
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.RecipientID) != recipientID {
		return pfirestore.NotFoundError("notifications.mark_read",
			fmt.Errorf("notification %s not found for recipient", notificationID))
	}
	if doc.Read {
		return nil
	}
	if err := updateDoc(ctx, ref, []firestore.Update{{Path: "read", Value: true}}); err != nil {
		return pfirestore.WrapError("notifications.mark_read", err)
	}
	return nil
}

type notificationDocument struct {
	RecipientID string    `firestore:"recipientId"`
	Title       string    `firestore:"title"`
	Body        string    `firestore:"body"`
	Locale      string    `firestore:"locale,omitempty"`
	TargetRef   string    `firestore:"targetRef"`
	Read        bool      `firestore:"read"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func encodeNotification(notification domain.Notification) notificationDocument {
	return notificationDocument{
		RecipientID: strings.TrimSpace(notification.RecipientID),
		Title:       notification.Title,
		Body:        notification.Body,
		Locale:      strings.TrimSpace(notification.Locale),
		TargetRef:   strings.TrimSpace(notification.TargetRef),
		Read:        notification.Read,
		CreatedAt:   notification.CreatedAt.UTC(),
	}
}

func decodeNotification(id string, doc notificationDocument, createdAt time.Time) domain.Notification {
	return domain.Notification{
		ID:          strings.TrimSpace(id),
		RecipientID: strings.TrimSpace(doc.RecipientID),
		Title:       doc.Title,
		Body:        doc.Body,
		Locale:      strings.TrimSpace(doc.Locale),
		TargetRef:   strings.TrimSpace(doc.TargetRef),
		Read:        doc.Read,
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
	}
}
