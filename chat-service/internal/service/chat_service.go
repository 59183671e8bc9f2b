package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/audit"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/kafka"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
	"github.com/Karthikchakala/HospitalManagement/pkg/pubsub"
)

type chatService struct {
	hub      *hub.Hub
	history  *HistoryLoader
	messages repository.MessageRepository
	bus      pubsub.PubSub
	producer kafka.MessageProducer
	locks    *roomLocks

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChatService(
	h *hub.Hub,
	messages repository.MessageRepository,
	bus pubsub.PubSub,
	producer kafka.MessageProducer,
	lockStripes int,
) ChatService {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &chatService{
		hub:      h,
		history:  NewHistoryLoader(messages),
		messages: messages,
		bus:      bus,
		producer: producer,
		locks:    newRoomLocks(lockStripes),
	}
}

// reject sends an error_message to the originating client and returns err.
func (s *chatService) reject(ctx context.Context, c *hub.Client, code, message string, err error) error {
	l := log.Ctx(ctx)
	l.Debug().Err(err).Str("code", code).Msg("relay request rejected")

	if sendErr := c.SendMessage(domain.NewErrorMessage(code, message)); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}

func (s *chatService) rejectErr(ctx context.Context, c *hub.Client, err error) error {
	return s.reject(ctx, c, domain.ErrorCode(err), err.Error(), err)
}

func actor(c *hub.Client, p domain.JoinPayload) string {
	if pr := c.Session.GetPrincipal(); pr != nil {
		return pr.UserID
	}
	if p.SenderType != "" && p.SenderID.Valid {
		return p.SenderType + ":" + p.SenderID.String()
	}
	return ""
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, payload domain.JoinPayload) error {
	f, err := domain.FilterFor(payload)
	if err != nil {
		return s.rejectErr(ctx, c, err)
	}
	if err := c.Session.Authorize(payload); err != nil {
		audit.LogWithTarget(ctx, audit.ActionDenied, actor(c, payload), f.Key.String(), "join denied")
		return s.rejectErr(ctx, c, err)
	}

	// Membership is registered before the history read so that a message
	// stored while the read is in flight is delivered live; the client
	// merges the overlap by message id.
	wasMember := s.hub.IsMember(c, f.Key)
	s.hub.Join(c, f.Key)

	msgs, err := s.history.LoadFilter(ctx, f)
	if err != nil {
		if !wasMember {
			s.hub.Leave(c, f.Key)
		}
		return s.reject(ctx, c, domain.ErrCodePersistence, "failed to load chat history", err)
	}

	c.Session.JoinRoom(f.Key, payload)
	audit.LogWithTarget(ctx, audit.ActionJoinRoom, actor(c, payload), f.Key.String(), "joined chat room")

	if err := c.SendMessage(&domain.RoomJoinedMessage{
		Type: domain.MsgTypeRoomJoined,
		Room: f.Key,
	}); err != nil {
		return err
	}
	return c.SendMessage(&domain.RoomHistoryMessage{
		Type:     domain.MsgTypeRoomHistory,
		Room:     f.Key,
		Messages: msgs,
	})
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client, payload domain.JoinPayload) error {
	key, err := domain.ResolveRoom(payload)
	if err != nil {
		return s.rejectErr(ctx, c, err)
	}

	s.hub.Leave(c, key)
	c.Session.LeaveRoom(key)
	audit.LogWithTarget(ctx, audit.ActionLeaveRoom, actor(c, payload), key.String(), "left chat room")

	return c.SendMessage(&domain.RoomLeftMessage{
		Type: domain.MsgTypeRoomLeft,
		Room: key,
	})
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, payload domain.SendPayload) error {
	if err := payload.Validate(); err != nil {
		return s.rejectErr(ctx, c, err)
	}
	f, err := domain.FilterFor(payload.JoinPayload)
	if err != nil {
		return s.rejectErr(ctx, c, err)
	}
	if err := payload.CheckCorrespondence(); err != nil {
		return s.rejectErr(ctx, c, err)
	}
	if err := c.Session.Authorize(payload.JoinPayload); err != nil {
		audit.LogWithTarget(ctx, audit.ActionDenied, actor(c, payload.JoinPayload), f.Key.String(), "send denied")
		return s.rejectErr(ctx, c, err)
	}

	// Insert and publish under the room lock so that fan-out order matches
	// message_id order for this process.
	unlock := s.locks.lock(f.Key)
	saved, err := s.messages.Insert(ctx, domain.NewChatMessage(f, payload))
	if err != nil {
		unlock()
		return s.reject(ctx, c, domain.ErrCodePersistence, "failed to save message", err)
	}
	err = s.publish(ctx, f.Key, pubsub.EventNewMessage, &domain.NewMessageOut{
		Type:    domain.MsgTypeNewMessage,
		Room:    f.Key,
		Message: saved,
	}, "")
	unlock()

	l := log.Ctx(ctx)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoom, f.Key.String()).Int64(log.FieldMessageID, saved.MessageID).Msg("failed to broadcast stored message")
		return s.reject(ctx, c, domain.ErrCodeDelivery, "message saved but could not be delivered", err)
	}

	audit.LogWithTarget(ctx, audit.ActionSendMessage, actor(c, payload.JoinPayload),
		strconv.FormatInt(saved.MessageID, 10), "chat message sent")

	if err := s.producer.ProduceMessage(ctx, f.Key, saved); err != nil {
		l.Warn().Err(err).Int64(log.FieldMessageID, saved.MessageID).Msg("failed to produce message event")
	}
	return nil
}

// HandleTyping relays typing and stop_typing to the rest of the room.
// Anything malformed is dropped without telling the sender.
func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, payload domain.JoinPayload, stop bool) {
	key, err := domain.ResolveRoom(payload)
	if err != nil || !payload.SenderID.Valid {
		return
	}
	if c.Session.Authorize(payload) != nil {
		return
	}

	msgType, event := domain.MsgTypeTyping, pubsub.EventTyping
	if stop {
		msgType, event = domain.MsgTypeStopTyping, pubsub.EventStopTyping
	}

	if err := s.publish(ctx, key, event, &domain.TypingOut{
		Type: msgType,
		Room: key,
		From: payload.SenderID,
	}, c.ID); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldRoom, key.String()).Msg("dropped typing signal")
	}
}

func (s *chatService) HandlePing(ctx context.Context, c *hub.Client) error {
	return c.SendMessage(&domain.PongMessage{Type: domain.MsgTypePong})
}

// HandleDisconnect records the end of a connection. The hub drops its
// memberships when the client is unregistered.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	rooms := c.Session.Rooms()
	for _, key := range rooms {
		c.Session.LeaveRoom(key)
	}

	var userID string
	if pr := c.Session.GetPrincipal(); pr != nil {
		userID = pr.UserID
	}
	audit.LogWithDetail(ctx, audit.ActionDisconnect, userID, fmt.Sprintf("rooms=%d", len(rooms)), "chat connection closed")
}

func (s *chatService) publish(ctx context.Context, key domain.RoomKey, eventType string, frame interface{}, exclude string) error {
	ev, err := pubsub.NewEvent(eventType, key.String(), frame)
	if err != nil {
		return err
	}
	ev.Exclude = exclude
	return s.bus.Publish(ctx, pubsub.ChatRoomChannel(key.String()), ev)
}

// Start subscribes to every chat room channel and feeds events into the
// local hub. It returns once the subscription is active.
func (s *chatService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	events, err := s.bus.SubscribePattern(ctx, pubsub.ChannelChatPattern)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to chat rooms: %w", err)
	}
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		l := log.L()
		for ev := range events {
			key, err := domain.ParseRoomKey(ev.RoomID)
			if err != nil {
				l.Warn().Err(err).Msg("dropping event for unknown room")
				continue
			}
			s.hub.BroadcastRaw(key, ev.Payload, ev.Exclude)
		}
	}()

	l := log.L()
	l.Info().Msg("chat service started")
	return nil
}

func (s *chatService) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if err := s.producer.Close(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to close kafka producer")
	}
	return nil
}
