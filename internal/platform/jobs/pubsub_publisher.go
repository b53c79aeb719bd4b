package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// WorkflowEventMessage is the wire form of a workflow event drained from the outbox.
type WorkflowEventMessage struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	SubjectRef string          `json:"subjectRef"`
	ActorID    string          `json:"actorId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// PubSubEventPublisher publishes workflow events to a Pub/Sub topic.
type PubSubEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed workflow event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishWorkflowEvent enqueues an event message on the configured topic and
// returns the Pub/Sub server message ID.
func (p *PubSubEventPublisher) PublishWorkflowEvent(ctx context.Context, message WorkflowEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal workflow event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", message.EventID)
	setAttr(attrs, "eventType", message.EventType)
	setAttr(attrs, "subjectRef", message.SubjectRef)
	setAttr(attrs, "actorId", message.ActorID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish workflow event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
