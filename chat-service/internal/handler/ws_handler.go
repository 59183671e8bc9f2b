package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/audit"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/service"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
	"github.com/Karthikchakala/HospitalManagement/pkg/response"
)

type WSHandler struct {
	hub         *hub.Hub
	service     service.ChatService
	principals  *service.PrincipalResolver
	requireAuth bool
	wsCfg       config.WebSocketConfig
	upgrader    websocket.Upgrader
}

// NewWSHandler creates the websocket endpoint. principals may be nil when no
// JWT secret is configured, in which case every connection is anonymous.
func NewWSHandler(h *hub.Hub, svc service.ChatService, principals *service.PrincipalResolver, requireAuth bool, wsCfg config.WebSocketConfig, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:         h,
		service:     svc,
		principals:  principals,
		requireAuth: requireAuth,
		wsCfg:       wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var principal *domain.Principal
	if token := middleware.TokenFromRequest(c.Request); token != "" && h.principals != nil {
		p, err := h.principals.Resolve(ctx, token)
		if err != nil {
			audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
			if errors.Is(err, service.ErrUnsupportedRole) || errors.Is(err, service.ErrNoDomainRecord) {
				response.Forbidden(c, err.Error())
				return
			}
			response.Unauthorized(c, "invalid token")
			return
		}
		principal = p
	} else if h.requireAuth {
		response.Unauthorized(c, "missing token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	if principal != nil {
		client.Session.Authenticate(principal)
	}

	// The request context ends when this handler returns, so the
	// connection gets its own.
	connCtx := log.WithConn(log.WithLogger(context.Background(), l), client.ID)

	h.hub.Register(client)

	var userID string
	if principal != nil {
		userID = principal.UserID
	}
	audit.Log(connCtx, audit.ActionConnect, userID, "chat connection opened")

	go client.WritePump()
	go client.ReadPump(h.handleMessage(connCtx), func(c *hub.Client) {
		h.service.HandleDisconnect(connCtx, c)
	})
}

func (h *WSHandler) handleMessage(ctx context.Context) func(*hub.Client, []byte) {
	l := log.Ctx(ctx)

	return func(client *hub.Client, message []byte) {
		msg, err := domain.DecodeInbound(message)
		if err != nil {
			h.rejectMalformed(client, message)
			return
		}

		switch msg.Type {
		case domain.MsgTypeJoinRoom:
			if err := h.service.HandleJoinRoom(ctx, client, msg.JoinPayload); err != nil {
				l.Debug().Err(err).Msg("join_room failed")
			}

		case domain.MsgTypeLeaveRoom:
			if err := h.service.HandleLeaveRoom(ctx, client, msg.JoinPayload); err != nil {
				l.Debug().Err(err).Msg("leave_room failed")
			}

		case domain.MsgTypeSendMessage:
			if err := h.service.HandleSendMessage(ctx, client, msg.SendPayload); err != nil {
				l.Debug().Err(err).Msg("send_message failed")
			}

		case domain.MsgTypeTyping:
			h.service.HandleTyping(ctx, client, msg.JoinPayload, false)

		case domain.MsgTypeStopTyping:
			h.service.HandleTyping(ctx, client, msg.JoinPayload, true)

		case domain.MsgTypePing:
			h.service.HandlePing(ctx, client)

		default:
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
		}
	}
}

// rejectMalformed answers a frame that does not decode. Typing signals are
// dropped silently; a join or send gets the error its handler would give.
func (h *WSHandler) rejectMalformed(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	_ = json.Unmarshal(message, &base)

	switch base.Type {
	case domain.MsgTypeTyping, domain.MsgTypeStopTyping:
		return
	case domain.MsgTypeJoinRoom, domain.MsgTypeLeaveRoom:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInvalidContext, "Invalid chat context"))
	case domain.MsgTypeSendMessage:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeMissingField, "Missing required fields"))
	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", h.HandleWebSocket)
}
