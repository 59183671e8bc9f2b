package service

import (
	"context"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
)

// ChatService is the message relay. Every Handle method reports relay
// errors to the originating client itself and also returns them for logging.
type ChatService interface {
	HandleJoinRoom(ctx context.Context, client *hub.Client, payload domain.JoinPayload) error
	HandleLeaveRoom(ctx context.Context, client *hub.Client, payload domain.JoinPayload) error
	HandleSendMessage(ctx context.Context, client *hub.Client, payload domain.SendPayload) error
	HandleTyping(ctx context.Context, client *hub.Client, payload domain.JoinPayload, stop bool)
	HandlePing(ctx context.Context, client *hub.Client) error
	HandleDisconnect(ctx context.Context, client *hub.Client)
	Start(ctx context.Context) error
	Stop() error
}
