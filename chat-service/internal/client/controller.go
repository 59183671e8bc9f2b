package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrEmptyBody    = errors.New("message body is empty")
)

// Event kinds delivered on Controller.Events.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventJoined       = "joined"
	EventHistory      = "history"
	EventMessage      = "message"
	EventTyping       = "typing"
	EventError        = "error"
)

// Event is a change the controller observed, for a UI to render.
type Event struct {
	Kind    string
	Room    domain.RoomKey
	Message *domain.ChatMessage
	Added   int
	Typing  bool
	From    int64
	Code    string
	Text    string
}

type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:5000/chat/ws.
	URL   string
	Token string

	Payload domain.JoinPayload

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// TypingTimeout clears the remote typing indicator without a refresh.
	TypingTimeout time.Duration
	// TypingIdle is how long after the last key press stop_typing is sent.
	TypingIdle time.Duration

	Dialer *websocket.Dialer
}

func (o *Options) setDefaults() {
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * time.Second
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = 2 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Controller keeps one chat widget joined to its room across reconnects and
// maintains the local message log for it.
type Controller struct {
	opts Options

	mu      sync.Mutex
	payload domain.JoinPayload
	room    domain.RoomKey
	conn    *websocket.Conn
	writeMu sync.Mutex

	typingSent bool
	idleTimer  *time.Timer

	log    *MessageLog
	typing *TypingIndicator
	events chan Event
}

// NewController validates the initial payload and prepares a controller.
// Nothing is dialed until Run.
func NewController(opts Options) (*Controller, error) {
	opts.setDefaults()
	if _, err := url.Parse(opts.URL); err != nil || opts.URL == "" {
		return nil, fmt.Errorf("invalid chat url %q", opts.URL)
	}
	key, err := domain.ResolveRoom(opts.Payload)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		opts:    opts,
		payload: opts.Payload,
		room:    key,
		log:     NewMessageLog(),
		events:  make(chan Event, 256),
	}
	c.typing = NewTypingIndicator(opts.TypingTimeout, func(active bool, from int64) {
		c.emit(Event{Kind: EventTyping, Room: c.Room(), Typing: active, From: from})
	})
	return c, nil
}

// Events delivers what the controller observed. Events are dropped when
// nobody reads them.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) Room() domain.RoomKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Messages returns the current room's log in id order.
func (c *Controller) Messages() []domain.ChatMessage {
	return c.log.Messages()
}

// Typing returns the counterpart currently typing, if any.
func (c *Controller) Typing() (int64, bool) {
	return c.typing.Active()
}

func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
		l := log.L()
		l.Debug().Str("kind", e.Kind).Msg("chat event dropped")
	}
}

func (c *Controller) dialURL() string {
	if c.opts.Token == "" {
		return c.opts.URL
	}
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return c.opts.URL
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Run dials the relay and keeps the connection alive until ctx is done,
// reconnecting with capped exponential backoff.
func (c *Controller) Run(ctx context.Context) error {
	l := log.L()
	backoff := c.opts.MinBackoff

	for {
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.dialURL(), nil)
		if err == nil {
			backoff = c.opts.MinBackoff
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			l.Warn().Err(err).Dur("retry_in", backoff).Msg("chat connect failed")
		}

		select {
		case <-ctx.Done():
			c.stopTypingTimer()
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Controller) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	payload := c.payload
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.emit(Event{Kind: EventConnected})
	if err := c.write(conn, inboundFrame(domain.MsgTypeJoinRoom, domain.SendPayload{JoinPayload: payload})); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to send join_room")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleFrame(data)
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.typingSent = false
	}
	c.mu.Unlock()
	conn.Close()

	c.typing.Stop(0)
	c.emit(Event{Kind: EventDisconnected})
}

// serverFrame covers every frame the relay sends. message is an object in
// new_message and a string in error_message.
type serverFrame struct {
	Type     string               `json:"type"`
	Room     string               `json:"room"`
	Messages []domain.ChatMessage `json:"messages"`
	Message  json.RawMessage      `json:"message"`
	From     domain.FlexInt       `json:"from"`
	Code     string               `json:"code"`
}

func (c *Controller) handleFrame(data []byte) {
	l := log.L()

	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		l.Debug().Err(err).Msg("undecodable frame from relay")
		return
	}

	room := c.Room()
	if f.Room != "" && f.Room != room.String() {
		// Late traffic from a room we already switched away from.
		return
	}

	switch f.Type {
	case domain.MsgTypeRoomJoined:
		c.emit(Event{Kind: EventJoined, Room: room})

	case domain.MsgTypeRoomHistory:
		added := c.log.Merge(f.Messages)
		c.emit(Event{Kind: EventHistory, Room: room, Added: added})

	case domain.MsgTypeNewMessage:
		var msg domain.ChatMessage
		if err := json.Unmarshal(f.Message, &msg); err != nil {
			l.Debug().Err(err).Msg("undecodable new_message")
			return
		}
		if c.log.Add(msg) {
			c.typing.Stop(msg.SenderID)
			c.emit(Event{Kind: EventMessage, Room: room, Message: &msg})
		}

	case domain.MsgTypeTyping:
		if f.From.Valid {
			c.typing.Start(f.From.Value)
		}

	case domain.MsgTypeStopTyping:
		if f.From.Valid {
			c.typing.Stop(f.From.Value)
		}

	case domain.MsgTypeError:
		var text string
		_ = json.Unmarshal(f.Message, &text)
		c.emit(Event{Kind: EventError, Room: room, Code: f.Code, Text: text})
	}
}

func inboundFrame(typ string, p domain.SendPayload) *domain.InboundMessage {
	return &domain.InboundMessage{Type: typ, SendPayload: p}
}

func (c *Controller) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Controller) current() (*websocket.Conn, domain.JoinPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.payload
}

// receiverOf is the other participant of p from the sender's side.
func receiverOf(p domain.JoinPayload) domain.FlexInt {
	if domain.SenderType(p.SenderType) == domain.SenderDoctor {
		return p.PatientID
	}
	return p.DoctorID
}

// Send submits a message to the current room. The message shows up in the
// log when the relay broadcasts it back.
func (c *Controller) Send(body string) error {
	if body == "" {
		return ErrEmptyBody
	}
	conn, payload := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	c.flushTyping(conn, payload)
	return c.write(conn, inboundFrame(domain.MsgTypeSendMessage, domain.SendPayload{
		JoinPayload: payload,
		ReceiverID:  receiverOf(payload),
		Body:        body,
	}))
}

// KeyPress signals local typing. The first press of a burst sends typing;
// stop_typing follows once no key was pressed for TypingIdle.
func (c *Controller) KeyPress() {
	c.mu.Lock()
	conn, payload := c.conn, c.payload
	if conn == nil {
		c.mu.Unlock()
		return
	}
	first := !c.typingSent
	c.typingSent = true
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.opts.TypingIdle, func() {
		c.flushTyping(conn, payload)
	})
	c.mu.Unlock()

	if first {
		c.write(conn, inboundFrame(domain.MsgTypeTyping, domain.SendPayload{JoinPayload: payload}))
	}
}

// flushTyping sends stop_typing if a typing burst is open.
func (c *Controller) flushTyping(conn *websocket.Conn, payload domain.JoinPayload) {
	c.mu.Lock()
	open := c.typingSent && c.conn == conn
	c.typingSent = false
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.mu.Unlock()

	if open {
		c.write(conn, inboundFrame(domain.MsgTypeStopTyping, domain.SendPayload{JoinPayload: payload}))
	}
}

func (c *Controller) stopTypingTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.typingSent = false
}

// Switch moves the widget to another room: it leaves the old room, clears
// the log and joins the new one. Offline, the new payload is used on the
// next connect.
func (c *Controller) Switch(payload domain.JoinPayload) error {
	key, err := domain.ResolveRoom(payload)
	if err != nil {
		return err
	}

	conn, old := c.current()
	if conn != nil {
		c.flushTyping(conn, old)
	}

	c.mu.Lock()
	c.payload = payload
	c.room = key
	c.mu.Unlock()

	c.log.Reset()
	c.typing.Stop(0)

	if conn == nil {
		return nil
	}
	if err := c.write(conn, inboundFrame(domain.MsgTypeLeaveRoom, domain.SendPayload{JoinPayload: old})); err != nil {
		return err
	}
	return c.write(conn, inboundFrame(domain.MsgTypeJoinRoom, domain.SendPayload{JoinPayload: payload}))
}
