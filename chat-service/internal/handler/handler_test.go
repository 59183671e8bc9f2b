package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/config"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/hub"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/service"
	"github.com/Karthikchakala/HospitalManagement/pkg/database"
	"github.com/Karthikchakala/HospitalManagement/pkg/jwt"
	"github.com/Karthikchakala/HospitalManagement/pkg/middleware"
	"github.com/Karthikchakala/HospitalManagement/pkg/pubsub"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testWSConfig = config.WebSocketConfig{
	PingInterval:   time.Second,
	PongWait:       5 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 16384,
	SendBufferSize: 64,
}

type testServer struct {
	srv    *httptest.Server
	db     *gorm.DB
	hub    *hub.Hub
	tokens *jwt.Manager
}

type serverOptions struct {
	requireAuth bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	models := append(repository.ChatModels(), repository.DirectoryModels()...)
	if err := database.AutoMigrate(db, models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedDirectory(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(testWSConfig)
	go h.Run(ctx)

	bus := pubsub.NewMemoryPubSub(64)
	messages := repository.NewGormMessageRepository(db)
	directory := repository.NewGormDirectoryRepository(db)
	svc := service.NewChatService(h, messages, bus, nil, 8)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tokens, err := jwt.NewManager("test-secret", time.Hour, "test")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	principals := service.NewPrincipalResolver(tokens, directory)

	ws := NewWSHandler(h, svc, principals, opts.requireAuth, testWSConfig, nil)
	rest := NewHTTPHandler(directory, service.NewHistoryLoader(messages), principals,
		config.ChatConfig{HistoryPageSize: 2, HistoryMaxPage: 3})
	router := NewRouter(zerolog.Nop(), h, ws, rest, middleware.NewAuthMiddleware(tokens))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		svc.Stop()
		bus.Close()
		database.Close(db)
	})
	return &testServer{srv: srv, db: db, hub: h, tokens: tokens}
}

func seedDirectory(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []interface{}{
		&domain.User{UserID: 100, Name: "Pat", Role: "patient"},
		&domain.User{UserID: 200, Name: "Dr. Who", Role: "doctor"},
		&domain.User{UserID: 300, Name: "Admin", Role: "admin"},
		&domain.Patient{PatientID: 7, UserID: 100},
		&domain.Doctor{DoctorID: 12, UserID: 200},
		&domain.Appointment{AppointmentID: 44, PatientID: 7, DoctorID: 12, AppointmentDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Status: "scheduled"},
		&domain.Appointment{AppointmentID: 45, PatientID: 7, DoctorID: 13, AppointmentDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), Status: "scheduled"},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
}

func (ts *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := ts.tokens.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := ts.tryDial(token)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (ts *testServer) tryDial(token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/chat/ws"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

type wsFrame struct {
	Type     string               `json:"type"`
	Code     string               `json:"code"`
	Room     string               `json:"room"`
	From     json.RawMessage      `json:"from"`
	Message  json.RawMessage      `json:"message"`
	Messages []domain.ChatMessage `json:"messages"`
}

func (f wsFrame) chatMessage(t *testing.T) domain.ChatMessage {
	t.Helper()
	var m domain.ChatMessage
	if err := json.Unmarshal(f.Message, &m); err != nil {
		t.Fatalf("decode message: %v (%s)", err, f.Message)
	}
	return m
}

func read(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f wsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return f
}

func expect(t *testing.T, conn *websocket.Conn, typ string) wsFrame {
	t.Helper()
	f := read(t, conn)
	if f.Type != typ {
		t.Fatalf("expected %s, got %+v", typ, f)
	}
	return f
}

func silent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame %s", data)
	}
}

func write(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func generalJoin(senderType string, senderID int) map[string]interface{} {
	return map[string]interface{}{
		"type":        domain.MsgTypeJoinRoom,
		"chatContext": "general",
		"patientId":   7,
		"doctorId":    "12",
		"senderType":  senderType,
		"senderId":    senderID,
	}
}

func generalSend(senderType string, senderID, receiverID int, body string) map[string]interface{} {
	m := generalJoin(senderType, senderID)
	m["type"] = domain.MsgTypeSendMessage
	m["receiverId"] = receiverID
	m["body"] = body
	return m
}

func joinRoom(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) []domain.ChatMessage {
	t.Helper()
	write(t, conn, frame)
	joined := expect(t, conn, domain.MsgTypeRoomJoined)
	history := expect(t, conn, domain.MsgTypeRoomHistory)
	if joined.Room == "" || joined.Room != history.Room {
		t.Fatalf("room mismatch: %q vs %q", joined.Room, history.Room)
	}
	return history.Messages
}

func TestRelay_GeneralRoomRoundTrip(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	patient := ts.dial(t, "")
	doctor := ts.dial(t, "")

	if msgs := joinRoom(t, patient, generalJoin("patient", 7)); len(msgs) != 0 {
		t.Fatalf("expected empty history, got %d", len(msgs))
	}
	joinRoom(t, doctor, generalJoin("doctor", 12))

	write(t, patient, generalSend("patient", 7, 12, "hello"))

	for _, conn := range []*websocket.Conn{patient, doctor} {
		f := expect(t, conn, domain.MsgTypeNewMessage)
		if f.Room != "general:7:12" {
			t.Fatalf("room = %q", f.Room)
		}
		m := f.chatMessage(t)
		if m.SenderID != 7 || m.SenderType != domain.SenderPatient || m.Body != "hello" || m.MessageID == 0 {
			t.Fatalf("unexpected message %+v", m)
		}
	}

	// The stored row matches what was broadcast.
	late := ts.dial(t, "")
	msgs := joinRoom(t, late, generalJoin("doctor", 12))
	if len(msgs) != 1 || msgs[0].Body != "hello" || msgs[0].ReceiverID != 12 {
		t.Fatalf("unexpected history %+v", msgs)
	}
}

func TestRelay_SwappedIDsDoNotShareHistory(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	patient7 := ts.dial(t, "")
	joinRoom(t, patient7, generalJoin("patient", 7))

	// Doctor 7 talking to patient 12 uses the same pair of numbers.
	doctor7 := ts.dial(t, "")
	swapped := map[string]interface{}{
		"type":        domain.MsgTypeJoinRoom,
		"chatContext": "general",
		"patientId":   12,
		"doctorId":    7,
		"senderType":  "doctor",
		"senderId":    7,
	}
	joinRoom(t, doctor7, swapped)

	send := map[string]interface{}{}
	for k, v := range swapped {
		send[k] = v
	}
	send["type"] = domain.MsgTypeSendMessage
	send["receiverId"] = 12
	send["body"] = "for patient 12 from doctor 7"
	write(t, doctor7, send)

	if f := expect(t, doctor7, domain.MsgTypeNewMessage); f.Room != "general:12:7" {
		t.Fatalf("room = %q", f.Room)
	}
	silent(t, patient7)

	again := ts.dial(t, "")
	if msgs := joinRoom(t, again, generalJoin("patient", 7)); len(msgs) != 0 {
		t.Fatalf("room general:7:12 history leaked %+v", msgs)
	}

	status, env := ts.get(t, "/api/chat/messages", ts.token(t, "100", "patient"),
		url.Values{"chatContext": {"general"}, "patientId": {"7"}, "doctorId": {"12"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var page struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	json.Unmarshal(env.Data, &page)
	if len(page.Messages) != 0 {
		t.Fatalf("REST history leaked %+v", page.Messages)
	}
}

func TestRelay_AppointmentRoomEmptyHistory(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	doctor := ts.dial(t, "")

	write(t, doctor, map[string]interface{}{
		"type":            domain.MsgTypeJoinRoom,
		"chatContext":     "appointment",
		"appointmentType": "in_person",
		"appointmentId":   44,
		"patientId":       7,
		"doctorId":        12,
	})
	joined := expect(t, doctor, domain.MsgTypeRoomJoined)
	if joined.Room != "appointment:in_person:44" {
		t.Fatalf("room = %q", joined.Room)
	}
	history := expect(t, doctor, domain.MsgTypeRoomHistory)
	if history.Messages == nil || len(history.Messages) != 0 {
		t.Fatalf("expected empty message list, got %+v", history.Messages)
	}
}

func TestRelay_InvalidContextIsConnectionLocal(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	bad := ts.dial(t, "")
	other := ts.dial(t, "")
	joinRoom(t, other, generalJoin("doctor", 12))

	write(t, bad, map[string]interface{}{"type": domain.MsgTypeJoinRoom, "chatContext": "bogus"})
	f := expect(t, bad, domain.MsgTypeError)
	if f.Code != domain.ErrCodeInvalidContext {
		t.Fatalf("code = %s", f.Code)
	}
	silent(t, other)

	// The failing connection is still usable.
	joinRoom(t, bad, generalJoin("patient", 7))
}

func TestRelay_RapidSendsKeepOrder(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	patient := ts.dial(t, "")
	doctor := ts.dial(t, "")
	joinRoom(t, patient, generalJoin("patient", 7))
	joinRoom(t, doctor, generalJoin("doctor", 12))

	write(t, patient, generalSend("patient", 7, 12, "a"))
	write(t, patient, generalSend("patient", 7, 12, "b"))

	for _, conn := range []*websocket.Conn{patient, doctor} {
		first := expect(t, conn, domain.MsgTypeNewMessage).chatMessage(t)
		second := expect(t, conn, domain.MsgTypeNewMessage).chatMessage(t)
		if first.Body != "a" || second.Body != "b" || first.MessageID >= second.MessageID {
			t.Fatalf("out of order: %+v then %+v", first, second)
		}
	}
}

func TestRelay_DisconnectedClientSeesMessageInHistory(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	patient := ts.dial(t, "")
	doctor := ts.dial(t, "")
	joinRoom(t, patient, generalJoin("patient", 7))
	joinRoom(t, doctor, generalJoin("doctor", 12))

	patient.Close()
	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	write(t, doctor, generalSend("doctor", 12, 7, "while you were away"))
	sent := expect(t, doctor, domain.MsgTypeNewMessage).chatMessage(t)

	again := ts.dial(t, "")
	msgs := joinRoom(t, again, generalJoin("patient", 7))
	if len(msgs) != 1 || msgs[0].MessageID != sent.MessageID {
		t.Fatalf("history = %+v, want message %d", msgs, sent.MessageID)
	}
}

func TestRelay_TypingReachesOthersOnly(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	patient := ts.dial(t, "")
	doctor := ts.dial(t, "")
	joinRoom(t, patient, generalJoin("patient", 7))
	joinRoom(t, doctor, generalJoin("doctor", 12))

	typing := generalJoin("patient", 7)
	typing["type"] = domain.MsgTypeTyping
	write(t, patient, typing)

	f := expect(t, doctor, domain.MsgTypeTyping)
	if string(f.From) != "7" {
		t.Fatalf("from = %s", f.From)
	}
	silent(t, patient)

	// Malformed typing frames are dropped without an error.
	write(t, patient, map[string]interface{}{"type": domain.MsgTypeStopTyping, "patientId": []int{1}})
	silent(t, patient)
}

func TestRelay_SendValidation(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	conn := ts.dial(t, "")
	joinRoom(t, conn, generalJoin("patient", 7))

	write(t, conn, generalSend("patient", 7, 12, "   "))
	if f := expect(t, conn, domain.MsgTypeError); f.Code != domain.ErrCodeMissingField {
		t.Fatalf("code = %s", f.Code)
	}

	write(t, conn, generalSend("patient", 7, 99, "wrong receiver"))
	if f := expect(t, conn, domain.MsgTypeError); f.Code != domain.ErrCodeInvalidContext {
		t.Fatalf("code = %s", f.Code)
	}

	write(t, conn, map[string]interface{}{"type": "shout"})
	if f := expect(t, conn, domain.MsgTypeError); f.Code != domain.ErrCodeBadRequest {
		t.Fatalf("code = %s", f.Code)
	}

	write(t, conn, map[string]interface{}{"type": domain.MsgTypePing})
	expect(t, conn, domain.MsgTypePong)

	var count int64
	ts.db.Model(&domain.ChatMessage{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected nothing persisted, got %d", count)
	}
}

func TestRelay_Authentication(t *testing.T) {
	ts := newTestServer(t, serverOptions{requireAuth: true})

	if _, resp, err := ts.tryDial(""); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	if _, resp, err := ts.tryDial("not-a-token"); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %v", err)
	}
	if _, resp, err := ts.tryDial(ts.token(t, "300", "admin")); err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %v", err)
	}

	patient := ts.dial(t, ts.token(t, "100", "patient"))
	joinRoom(t, patient, generalJoin("patient", 7))

	// Speaking as someone else is refused.
	write(t, patient, generalSend("doctor", 12, 7, "impostor"))
	if f := expect(t, patient, domain.MsgTypeError); f.Code != domain.ErrCodeUnauthorized {
		t.Fatalf("code = %s", f.Code)
	}

	other := generalJoin("patient", 8)
	other["patientId"] = 8
	write(t, patient, other)
	if f := expect(t, patient, domain.MsgTypeError); f.Code != domain.ErrCodeUnauthorized {
		t.Fatalf("code = %s", f.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})

	r := httptest.NewRequest(http.MethodGet, "/chat/ws", nil)
	if !check(r) {
		t.Fatal("request without Origin should pass")
	}
	r.Header.Set("Origin", "http://localhost:3000")
	if !check(r) {
		t.Fatal("allowed origin rejected")
	}
	r.Header.Set("Origin", "http://evil.example")
	if check(r) {
		t.Fatal("foreign origin accepted")
	}
	if !originChecker(nil)(r) {
		t.Fatal("empty allow list should accept any origin")
	}
}
