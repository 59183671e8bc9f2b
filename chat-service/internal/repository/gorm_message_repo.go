package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db    *gorm.DB
	clock *monotonicClock
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db, clock: &monotonicClock{}}
}

// Insert stores a message.
func (r *GormMessageRepository) Insert(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	row := *msg
	row.MessageID = 0
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.clock.Now()
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		l.Error().Err(err).Msg("failed to insert chat message")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	l.Debug().Int64(log.FieldMessageID, row.MessageID).Msg("chat message inserted")
	return &row, nil
}

// QueryRoom returns room history ascending by message id.
func (r *GormMessageRepository) QueryRoom(ctx context.Context, f domain.RoomFilter, beforeID int64, limit int) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).Model(&domain.ChatMessage{}).
		Where("chat_context = ?", string(f.Context))
	if f.Context == domain.ContextAppointment {
		query = query.Where("appointment_type = ? AND appointment_id = ?", string(f.AppointmentType), f.AppointmentID)
	}
	// Patient and doctor ids come from different tables, so a direction is
	// only identified together with sender_type.
	query = query.Where("((sender_type = ? AND sender_id = ? AND receiver_id = ?) OR (sender_type = ? AND sender_id = ? AND receiver_id = ?))",
		string(domain.SenderPatient), f.PatientID, f.DoctorID,
		string(domain.SenderDoctor), f.DoctorID, f.PatientID)
	if beforeID > 0 {
		query = query.Where("message_id < ?", beforeID)
	}

	var rows []domain.ChatMessage
	if limit > 0 {
		if err := query.Order("message_id DESC").Limit(limit).Find(&rows).Error; err != nil {
			l.Error().Err(err).Str(log.FieldRoom, f.Key.String()).Msg("failed to query room history")
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	}

	if err := query.Order("message_id ASC").Find(&rows).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoom, f.Key.String()).Msg("failed to query room history")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return rows, nil
}

// monotonicClock hands out UTC timestamps that never repeat or go backwards
// within this process, at the microsecond precision the stores keep.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
