package messaging

import (
	"context"
	"testing"

	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
)

func TestNATSConsumerHandleMessage(t *testing.T) {
	consumer := NewNATSConsumer(&config.NATSConfig{SubjectPrefix: "flutterbye", MaxPendingMessages: 1}, logger.NewNop())
	if got := consumer.subject(); got != "flutterbye.messages" {
		t.Fatalf("subject = %q", got)
	}

	consumer.handleMessage(&nats.Msg{Data: []byte(`not json`)})
	consumer.handleMessage(&nats.Msg{Data: []byte(`{"id":"m1","recipient":"+15551234567","channel":"sms","status":"read"}`)})
	// channel holds one message, the second valid one is dropped
	consumer.handleMessage(&nats.Msg{Data: []byte(`{"id":"m2","channel":"email"}`)})

	select {
	case m := <-consumer.Messages():
		if m.ID != "m1" || m.Channel != entity.ChannelSMS || m.Status != entity.StatusRead {
			t.Errorf("message = %+v", m)
		}
	default:
		t.Fatal("expected a queued message")
	}
	select {
	case m := <-consumer.Messages():
		t.Fatalf("unexpected extra message %+v", m)
	default:
	}
}

func TestNATSConsumerDisabled(t *testing.T) {
	consumer := NewNATSConsumer(&config.NATSConfig{Enabled: false}, logger.NewNop())
	if err := consumer.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if consumer.IsConnected() {
		t.Error("disabled consumer reports connected")
	}
	if err := consumer.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}
