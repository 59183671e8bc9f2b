package client

import (
	"sort"
	"sync"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
)

// MessageLog is the local copy of one room's messages, ordered by id.
// History snapshots and live messages are merged by id, so the same
// message arriving twice is kept once.
type MessageLog struct {
	mu   sync.RWMutex
	msgs []domain.ChatMessage
	ids  map[int64]struct{}
}

func NewMessageLog() *MessageLog {
	return &MessageLog{ids: make(map[int64]struct{})}
}

// Add inserts msg unless its id is already present. It reports whether
// the log changed.
func (l *MessageLog) Add(msg domain.ChatMessage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insertLocked(msg)
}

// Merge inserts every message of a history snapshot that is missing and
// returns how many were added. Messages already present are kept as is.
func (l *MessageLog) Merge(msgs []domain.ChatMessage) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, m := range msgs {
		if l.insertLocked(m) {
			added++
		}
	}
	return added
}

func (l *MessageLog) insertLocked(msg domain.ChatMessage) bool {
	if msg.MessageID <= 0 {
		return false
	}
	if _, ok := l.ids[msg.MessageID]; ok {
		return false
	}
	l.ids[msg.MessageID] = struct{}{}

	i := sort.Search(len(l.msgs), func(i int) bool {
		return l.msgs[i].MessageID > msg.MessageID
	})
	l.msgs = append(l.msgs, domain.ChatMessage{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = msg
	return true
}

// Messages returns a copy of the log in id order.
func (l *MessageLog) Messages() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}

// Reset empties the log.
func (l *MessageLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
	l.ids = make(map[int64]struct{})
}
