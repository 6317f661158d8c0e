package service

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/events"
)

func TestNotificationServiceLogsEveryEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	svc := NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{
		EmailFrom:  "desk@example.com",
		WebhookURL: "http://hooks.local/tickets",
	})
	svc.RegisterHandlers()

	types := []events.EventType{
		events.EventUserCreated, events.EventUserUpdated, events.EventUserDeleted,
		events.EventTicketCreated, events.EventTicketUpdated, events.EventTicketDeleted,
	}
	for _, typ := range types {
		if err := dispatcher.Publish(context.Background(), events.Event{Type: typ, SubjectID: "s-1"}); err != nil {
			t.Fatalf("Publish(%s): %v", typ, err)
		}
	}

	if n := logs.FilterMessage("UserChanged").Len(); n != 3 {
		t.Errorf("expected 3 user entries, got %d", n)
	}
	if n := logs.FilterMessage("TicketChanged").Len(); n != 2 {
		t.Errorf("expected 2 ticket change entries, got %d", n)
	}
	if n := logs.FilterMessage("sendEmailNotificationStub").Len(); n != 1 {
		t.Errorf("expected email stub only for ticket creation, got %d", n)
	}
	if n := logs.FilterMessage("sendWebhookNotificationStub").Len(); n != 6 {
		t.Errorf("expected webhook stub for every event, got %d", n)
	}
}

func TestNotificationStubsSkipWithoutTargets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, zap.New(core), config.NotificationConfig{}).RegisterHandlers()

	_ = dispatcher.Publish(context.Background(), events.Event{Type: events.EventTicketCreated, SubjectID: "t-1"})

	if logs.FilterMessage("TicketCreated").Len() != 1 {
		t.Fatal("ticket creation not logged")
	}
	if logs.FilterMessageSnippet("Stub").Len() != 0 {
		t.Fatal("stubs ran without configured targets")
	}
}
