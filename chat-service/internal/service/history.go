package service

import (
	"context"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/repository"
)

// HistoryLoader reads room history from the message store.
type HistoryLoader struct {
	repo repository.MessageRepository
}

func NewHistoryLoader(repo repository.MessageRepository) *HistoryLoader {
	return &HistoryLoader{repo: repo}
}

// Load returns the full history of the room payload addresses, oldest first.
func (h *HistoryLoader) Load(ctx context.Context, payload domain.JoinPayload) (domain.RoomKey, []domain.ChatMessage, error) {
	f, err := domain.FilterFor(payload)
	if err != nil {
		return domain.RoomKey{}, nil, err
	}
	msgs, err := h.LoadFilter(ctx, f)
	return f.Key, msgs, err
}

// LoadFilter returns the full history of an already resolved room.
func (h *HistoryLoader) LoadFilter(ctx context.Context, f domain.RoomFilter) ([]domain.ChatMessage, error) {
	msgs, err := h.repo.QueryRoom(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// Page is one page of history walking backwards from a cursor.
type Page struct {
	Messages   []domain.ChatMessage `json:"messages"`
	NextCursor int64                `json:"next_cursor,omitempty"`
	HasMore    bool                 `json:"has_more"`
}

// LoadPage returns up to limit messages older than before (all when before
// is 0), oldest first. NextCursor is the cursor for the following older page.
func (h *HistoryLoader) LoadPage(ctx context.Context, f domain.RoomFilter, before int64, limit int) (*Page, error) {
	msgs, err := h.repo.QueryRoom(ctx, f, before, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[1:]
		page.HasMore = true
	}
	if page.Messages == nil {
		page.Messages = []domain.ChatMessage{}
	}
	if page.HasMore {
		page.NextCursor = page.Messages[0].MessageID
	}
	return page, nil
}
