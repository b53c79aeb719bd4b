package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "workflow-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	msg := WorkflowEventMessage{
		EventID:    "evt_test",
		EventType:  "customization.approved",
		SubjectRef: "customizationRequests/creq_1",
		ActorID:    "cust-1",
		OccurredAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"requestId":"creq_1"}`),
	}

	if _, err := publisher.PublishWorkflowEvent(ctx, msg); err != nil {
		t.Fatalf("PublishWorkflowEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload WorkflowEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.EventID != msg.EventID || payload.EventType != msg.EventType {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "customization.approved" {
		t.Fatalf("expected event type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["subjectRef"]; attr != "customizationRequests/creq_1" {
		t.Fatalf("expected subject ref attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
