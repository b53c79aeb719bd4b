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

const activitiesCollection = "activities"

// ActivityRepository stores the append-only audit trail written on every
// workflow transition.
type ActivityRepository struct {
	base *pfirestore.BaseRepository[activityDocument]
}

var _ repositories.ActivityRepository = (*ActivityRepository)(nil)

// NewActivityRepository constructs the Firestore-backed repository.
func NewActivityRepository(provider *pfirestore.Provider) (*ActivityRepository, error) {
	base, err := pfirestore.NewBaseRepository[activityDocument](provider, activitiesCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("activity repository: %w", err)
	}
	return &ActivityRepository{base: base}, nil
}

// Append writes a new activity record. Records are never updated or deleted.
func (r *ActivityRepository) Append(ctx context.Context, activity domain.Activity) error {
	activityID := strings.TrimSpace(activity.ID)
	if activityID == "" {
		return errors.New("activity repository: activity id is required")
	}
	ref, err := r.base.DocumentRef(ctx, activityID)
	if err != nil {
		return err
	}
	if err := createDoc(ctx, ref, encodeActivity(activity)); err != nil {
		return pfirestore.WrapError("activities.append", err)
	}
	return nil
}

// ListByTarget returns the audit trail for a single entity, newest first.
func (r *ActivityRepository) ListByTarget(ctx context.Context, targetRef string, pager domain.Pagination) (domain.CursorPage[domain.Activity], error) {
	targetRef = strings.TrimSpace(targetRef)
	if targetRef == "" {
		return domain.CursorPage[domain.Activity]{}, errors.New("activity repository: target ref is required")
	}

	limit, fetchLimit := pageWindow(pager.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodePageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Activity]{}, fmt.Errorf("activity repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	snaps, err := r.base.QuerySnapshots(ctx, func(col *firestore.CollectionRef) firestore.Query {
		q := col.Where("targetRef", "==", targetRef).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Activity]{}, err
	}

	nextToken := ""
	if limit > 0 && len(snaps) == fetchLimit {
		last := snaps[len(snaps)-1]
		lastDoc, err := r.base.Decode(last)
		if err != nil {
			return domain.CursorPage[domain.Activity]{}, err
		}
		nextToken = encodePageToken(chooseTime(lastDoc.CreatedAt, last.CreateTime), last.Ref.ID)
		snaps = snaps[:len(snaps)-1]
	}

	items := make([]domain.Activity, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := r.base.Decode(snap)
		if err != nil {
			return domain.CursorPage[domain.Activity]{}, err
		}
		items = append(items, decodeActivity(snap.Ref.ID, doc, snap.CreateTime))
	}
	return domain.CursorPage[domain.Activity]{Items: items, NextPageToken: nextToken}, nil
}

type activityDocument struct {
	ActorID   string         `firestore:"actorId"`
	ActorRole string         `firestore:"actorRole"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func encodeActivity(activity domain.Activity) activityDocument {
	return activityDocument{
		ActorID:   strings.TrimSpace(activity.ActorID),
		ActorRole: string(activity.ActorRole),
		Action:    strings.TrimSpace(activity.Action),
		TargetRef: strings.TrimSpace(activity.TargetRef),
		Metadata:  cloneMetadata(activity.Metadata),
		CreatedAt: activity.CreatedAt.UTC(),
	}
}

func decodeActivity(id string, doc activityDocument, createdAt time.Time) domain.Activity {
	return domain.Activity{
		ID:        strings.TrimSpace(id),
		ActorID:   strings.TrimSpace(doc.ActorID),
		ActorRole: domain.ActorRole(strings.TrimSpace(doc.ActorRole)),
		Action:    strings.TrimSpace(doc.Action),
		TargetRef: strings.TrimSpace(doc.TargetRef),
		Metadata:  cloneMetadata(doc.Metadata),
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
	}
}
