package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming conventions for chat room fan-out.
const (
	ChannelChatRoom    = "chat:room:%s"
	ChannelChatPattern = "chat:room:*"

	chatRoomPrefix = "chat:room:"
)

// Event types carried on chat room channels.
const (
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
)

// ChatRoomChannel returns the channel name for a room key.
func ChatRoomChannel(roomKey string) string {
	return fmt.Sprintf(ChannelChatRoom, roomKey)
}

// RoomFromChannel extracts the room key from a chat room channel name.
func RoomFromChannel(channel string) (string, error) {
	if !strings.HasPrefix(channel, chatRoomPrefix) || len(channel) == len(chatRoomPrefix) {
		return "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return strings.TrimPrefix(channel, chatRoomPrefix), nil
}
