package kafka

import (
	"context"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
)

// EventMessageCreated is the type of every event on the message topic.
const EventMessageCreated = "chat.message_created"

// MessageCreatedEvent is published after a message is stored and broadcast.
type MessageCreatedEvent struct {
	Type    string              `json:"type"`
	Room    domain.RoomKey      `json:"room"`
	Message *domain.ChatMessage `json:"message"`
}

type MessageProducer interface {
	ProduceMessage(ctx context.Context, room domain.RoomKey, msg *domain.ChatMessage) error
	Close() error
}

// NoopProducer drops every event. Used when no broker is configured.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, domain.RoomKey, *domain.ChatMessage) error {
	return nil
}

func (NoopProducer) Close() error { return nil }
