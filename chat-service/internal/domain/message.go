package domain

import "time"

// ChatMessage is one persisted chat line. Rows are never updated.
type ChatMessage struct {
	MessageID       int64            `gorm:"column:message_id;primaryKey;autoIncrement" json:"message_id"`
	ChatContext     ChatContext      `gorm:"column:chat_context;type:varchar(16);not null;index:idx_chat_messages_room,priority:1" json:"chat_context"`
	AppointmentType *AppointmentType `gorm:"column:appointment_type;type:varchar(16);index:idx_chat_messages_room,priority:2" json:"appointment_type"`
	AppointmentID   *int64           `gorm:"column:appointment_id;index:idx_chat_messages_room,priority:3" json:"appointment_id"`
	SenderType      SenderType       `gorm:"column:sender_type;type:varchar(16);not null" json:"sender_type"`
	SenderID        int64            `gorm:"column:sender_id;not null;index:idx_chat_messages_pair,priority:1" json:"sender_id"`
	ReceiverID      int64            `gorm:"column:receiver_id;not null;index:idx_chat_messages_pair,priority:2" json:"receiver_id"`
	Body            string           `gorm:"column:message;type:text;not null" json:"body"`
	CreatedAt       time.Time        `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName keeps the table shared with the rest of the application.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// NewChatMessage builds the row to insert for a validated send.
func NewChatMessage(f RoomFilter, p SendPayload) *ChatMessage {
	msg := &ChatMessage{
		ChatContext: f.Context,
		SenderType:  SenderType(p.SenderType),
		SenderID:    p.SenderID.Value,
		ReceiverID:  p.ReceiverID.Value,
		Body:        p.Body,
	}
	if f.Context == ContextAppointment {
		t, id := f.AppointmentType, f.AppointmentID
		msg.AppointmentType = &t
		msg.AppointmentID = &id
	}
	return msg
}
