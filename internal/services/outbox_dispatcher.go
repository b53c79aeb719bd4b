package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/platform/jobs"
	"github.com/fabriqly/api/internal/repositories"
)

const (
	activityIDPrefix     = "act_"
	notificationIDPrefix = "ntf_"

	dispatcherMetricNamespace = "github.com/fabriqly/api/internal/services/outbox"

	defaultMaxDispatchAttempts = 5
	defaultPublishAttempts     = 3
)

// LocaleResolver returns the preferred BCP 47 locale for a user. An empty
// string or an error falls back to the default locale.
type LocaleResolver func(ctx context.Context, userID string) (string, error)

// OutboxDispatcherDeps bundles collaborators required to construct an OutboxDispatcher.
type OutboxDispatcherDeps struct {
	Outbox        repositories.OutboxRepository
	Activities    repositories.ActivityRepository
	Notifications repositories.NotificationRepository
	Publisher     WorkflowEventPublisher
	Locales       LocaleResolver
	Clock         func() time.Time
	NewID         func(prefix string) string
	MaxAttempts   int
	Meter         metric.Meter
	Logger        *zap.Logger
}

type outboxDispatcher struct {
	outbox        repositories.OutboxRepository
	activities    repositories.ActivityRepository
	notifications repositories.NotificationRepository
	publisher     WorkflowEventPublisher
	locales       LocaleResolver
	clock         func() time.Time
	maxAttempts   int
	logger        *zap.Logger

	dispatched        metric.Int64Counter
	dispatchedEnabled bool
	failed            metric.Int64Counter
	failedEnabled     bool
}

// NewOutboxDispatcher wires dependencies into a concrete OutboxDispatcher.
func NewOutboxDispatcher(deps OutboxDispatcherDeps) (OutboxDispatcher, error) {
	if deps.Outbox == nil {
		return nil, errors.New("outbox dispatcher: outbox repository is required")
	}
	if deps.Activities == nil {
		return nil, errors.New("outbox dispatcher: activity repository is required")
	}
	if deps.Notifications == nil {
		return nil, errors.New("outbox dispatcher: notification repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("outbox dispatcher: event publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxDispatchAttempts
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(dispatcherMetricNamespace)
	}

	dispatched, dispatchedErr := meter.Int64Counter(
		"outbox.events.dispatched",
		metric.WithDescription("Count of workflow events whose side effects were written"),
	)
	if dispatchedErr != nil {
		logger.Warn("outbox: unable to register dispatched metric", zap.Error(dispatchedErr))
	}
	failed, failedErr := meter.Int64Counter(
		"outbox.events.failed",
		metric.WithDescription("Count of workflow event dispatch attempts that failed"),
	)
	if failedErr != nil {
		logger.Warn("outbox: unable to register failed metric", zap.Error(failedErr))
	}

	return &outboxDispatcher{
		outbox:            deps.Outbox,
		activities:        deps.Activities,
		notifications:     deps.Notifications,
		publisher:         deps.Publisher,
		locales:           deps.Locales,
		clock:             func() time.Time { return clock().UTC() },
		maxAttempts:       maxAttempts,
		logger:            logger,
		dispatched:        dispatched,
		dispatchedEnabled: dispatchedErr == nil,
		failed:            failed,
		failedEnabled:     failedErr == nil,
	}, nil
}

// Drain processes pending events oldest first. A failing event is marked and
// skipped so one poison message cannot stall the rest of the batch.
func (d *outboxDispatcher) Drain(ctx context.Context, batchSize int) (DrainResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	pending, err := d.outbox.ListPending(ctx, batchSize)
	if err != nil {
		return DrainResult{}, fmt.Errorf("list pending events: %w", err)
	}

	result := DrainResult{Scanned: len(pending)}
	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := d.process(ctx, event); err != nil {
			result.Failed++
			d.recordFailure(ctx, event, err)
			continue
		}
		result.Dispatched++
		d.count(ctx, d.dispatched, d.dispatchedEnabled, event.Type)
	}
	return result, nil
}

func (d *outboxDispatcher) DispatchEvent(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return errors.New("outbox dispatcher: event id is required")
	}

	event, err := d.outbox.FindByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status != domain.OutboxStatusPending {
		return nil
	}
	if err := d.process(ctx, event); err != nil {
		d.recordFailure(ctx, event, err)
		return err
	}
	d.count(ctx, d.dispatched, d.dispatchedEnabled, event.Type)
	return nil
}

// process writes the event's side effects. Every write uses an ID derived from
// the event ID, so a retry after a partial failure overwrites nothing and
// conflicts on what already landed.
func (d *outboxDispatcher) process(ctx context.Context, event domain.WorkflowEvent) error {
	suffix := eventSuffix(event.ID)

	activity := domain.Activity{
		ID:        activityIDPrefix + suffix,
		ActorID:   event.ActorID,
		ActorRole: event.ActorRole,
		Action:    event.Type,
		TargetRef: event.TargetRef,
		Metadata:  event.Metadata,
		CreatedAt: d.clock(),
	}
	if err := d.activities.Append(ctx, activity); err != nil && !isConflict(err) {
		return fmt.Errorf("append activity: %w", err)
	}

	for _, recipient := range event.Recipients {
		notification := d.buildNotification(ctx, event, suffix, recipient)
		if err := d.notifications.Append(ctx, notification); err != nil && !isConflict(err) {
			return fmt.Errorf("append notification for %s: %w", recipient, err)
		}
	}

	if err := d.publish(ctx, event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	if err := d.outbox.MarkDispatched(ctx, event.ID, d.clock()); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

func (d *outboxDispatcher) publish(ctx context.Context, event domain.WorkflowEvent) error {
	var payload json.RawMessage
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		payload = encoded
	}
	message := jobs.WorkflowEventMessage{
		EventID:    event.ID,
		EventType:  event.Type,
		SubjectRef: event.TargetRef,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt,
		Payload:    payload,
	}

	backoff := gax.Backoff{
		Initial:    200 * time.Millisecond,
		Max:        3 * time.Second,
		Multiplier: 2,
	}
	var lastErr error
	for attempt := 0; attempt < defaultPublishAttempts; attempt++ {
		if _, err := d.publisher.PublishWorkflowEvent(ctx, message); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return err
		}
	}
	return lastErr
}

func (d *outboxDispatcher) buildNotification(ctx context.Context, event domain.WorkflowEvent, suffix string, recipient string) domain.Notification {
	locale := d.resolveLocale(ctx, recipient)
	template := notificationTemplateFor(event.Type, locale)
	return domain.Notification{
		ID:          notificationIDPrefix + suffix + "_" + recipient,
		RecipientID: recipient,
		Title:       template.title,
		Body:        template.body,
		Locale:      locale.String(),
		TargetRef:   event.TargetRef,
		CreatedAt:   d.clock(),
	}
}

func (d *outboxDispatcher) resolveLocale(ctx context.Context, userID string) language.Tag {
	if d.locales == nil {
		return notificationLocales[0]
	}
	preferred, err := d.locales(ctx, userID)
	if err != nil {
		d.logger.Debug("locale lookup failed; using default",
			zap.String("userId", userID),
			zap.Error(err))
		return notificationLocales[0]
	}
	return matchNotificationLocale(preferred)
}

func (d *outboxDispatcher) recordFailure(ctx context.Context, event domain.WorkflowEvent, cause error) {
	d.count(ctx, d.failed, d.failedEnabled, event.Type)

	updated, err := d.outbox.MarkFailed(ctx, event.ID, cause.Error(), d.maxAttempts)
	if err != nil {
		d.logger.Error("unable to record event dispatch failure",
			zap.String("eventId", event.ID),
			zap.Error(err))
		return
	}
	if updated.Status == domain.OutboxStatusFailed {
		d.logger.Error("workflow event exhausted dispatch attempts",
			zap.String("eventId", event.ID),
			zap.String("eventType", event.Type),
			zap.Int("attempts", updated.Attempts),
			zap.Error(cause))
		return
	}
	d.logger.Warn("workflow event dispatch failed; will retry",
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.Int("attempts", updated.Attempts),
		zap.Error(cause))
}

func (d *outboxDispatcher) count(ctx context.Context, counter metric.Int64Counter, enabled bool, eventType string) {
	if !enabled {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

func eventSuffix(eventID string) string {
	return strings.TrimPrefix(eventID, eventIDPrefix)
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
