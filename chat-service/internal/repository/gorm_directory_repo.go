package repository

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/pkg/log"
)

// GormDirectoryRepository implements DirectoryRepository using GORM.
type GormDirectoryRepository struct {
	db    *gorm.DB
	group singleflight.Group
}

// NewGormDirectoryRepository creates a new GORM-based directory repository.
func NewGormDirectoryRepository(db *gorm.DB) *GormDirectoryRepository {
	return &GormDirectoryRepository{db: db}
}

// PatientIDByUser maps a user account to its patient record.
func (r *GormDirectoryRepository) PatientIDByUser(ctx context.Context, userID int64) (int64, error) {
	v, err, _ := r.group.Do(fmt.Sprintf("patient:%d", userID), func() (interface{}, error) {
		var p domain.Patient
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
			return int64(0), r.mapErr(ctx, err, "patient")
		}
		return p.PatientID, nil
	})
	return v.(int64), err
}

// DoctorIDByUser maps a user account to its doctor record.
func (r *GormDirectoryRepository) DoctorIDByUser(ctx context.Context, userID int64) (int64, error) {
	v, err, _ := r.group.Do(fmt.Sprintf("doctor:%d", userID), func() (interface{}, error) {
		var d domain.Doctor
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&d).Error; err != nil {
			return int64(0), r.mapErr(ctx, err, "doctor")
		}
		return d.DoctorID, nil
	})
	return v.(int64), err
}

type threadRow struct {
	SenderType string
	SenderID   int64
	ReceiverID int64
}

// counterparts returns the distinct ids on the other side of every thread
// that involves (role, id), in first-seen order.
func (r *GormDirectoryRepository) counterparts(ctx context.Context, role domain.SenderType, id int64) ([]int64, error) {
	other := domain.SenderDoctor
	if role == domain.SenderDoctor {
		other = domain.SenderPatient
	}

	var rows []threadRow
	err := r.db.WithContext(ctx).Model(&domain.ChatMessage{}).
		Select("sender_type, sender_id, receiver_id").
		Where("(sender_type = ? AND sender_id = ?) OR (sender_type = ? AND receiver_id = ?)",
			string(role), id, string(other), id).
		Order("message_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, row := range rows {
		cp := row.ReceiverID
		if domain.SenderType(row.SenderType) == other {
			cp = row.SenderID
		}
		if cp == 0 {
			continue
		}
		if _, ok := seen[cp]; !ok {
			seen[cp] = struct{}{}
			ids = append(ids, cp)
		}
	}
	return ids, nil
}

// namesByUser loads display names for a set of user ids.
func (r *GormDirectoryRepository) namesByUser(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var users []domain.User
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.UserID] = u.Name
	}
	return names, nil
}

// ChatDoctorsForPatient lists the doctors the patient has exchanged messages with.
func (r *GormDirectoryRepository) ChatDoctorsForPatient(ctx context.Context, patientID int64) ([]domain.ChatDoctor, error) {
	l := log.Ctx(ctx)

	ids, err := r.counterparts(ctx, domain.SenderPatient, patientID)
	if err != nil {
		l.Error().Err(err).Int64("patient_id", patientID).Msg("failed to fetch chat threads")
		return nil, err
	}
	result := make([]domain.ChatDoctor, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var doctors []domain.Doctor
	if err := r.db.WithContext(ctx).Where("doctor_id IN ?", ids).Order("doctor_id ASC").Find(&doctors).Error; err != nil {
		l.Error().Err(err).Msg("failed to fetch doctor details")
		return nil, err
	}
	userIDs := make([]int64, len(doctors))
	for i, d := range doctors {
		userIDs[i] = d.UserID
	}
	names, err := r.namesByUser(ctx, userIDs)
	if err != nil {
		l.Error().Err(err).Msg("failed to fetch doctor names")
		return nil, err
	}

	for _, d := range doctors {
		name := names[d.UserID]
		if name == "" {
			name = "Doctor"
		}
		result = append(result, domain.ChatDoctor{DoctorID: d.DoctorID, Name: name})
	}
	return result, nil
}

// ChatPatientsForDoctor lists the patients the doctor has exchanged messages with.
func (r *GormDirectoryRepository) ChatPatientsForDoctor(ctx context.Context, doctorID int64) ([]domain.ChatPatient, error) {
	l := log.Ctx(ctx)

	ids, err := r.counterparts(ctx, domain.SenderDoctor, doctorID)
	if err != nil {
		l.Error().Err(err).Int64("doctor_id", doctorID).Msg("failed to fetch chat threads")
		return nil, err
	}
	result := make([]domain.ChatPatient, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var patients []domain.Patient
	if err := r.db.WithContext(ctx).Where("patient_id IN ?", ids).Order("patient_id ASC").Find(&patients).Error; err != nil {
		l.Error().Err(err).Msg("failed to fetch patient details")
		return nil, err
	}
	userIDs := make([]int64, len(patients))
	for i, p := range patients {
		userIDs[i] = p.UserID
	}
	names, err := r.namesByUser(ctx, userIDs)
	if err != nil {
		l.Error().Err(err).Msg("failed to fetch patient names")
		return nil, err
	}

	for _, p := range patients {
		name := names[p.UserID]
		if name == "" {
			name = "Patient"
		}
		result = append(result, domain.ChatPatient{PatientID: p.PatientID, Name: name})
	}
	return result, nil
}

// PatientAppointments lists the patient's appointments, optionally only with one doctor.
func (r *GormDirectoryRepository) PatientAppointments(ctx context.Context, patientID, doctorID int64) ([]domain.Appointment, error) {
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).Where("patient_id = ?", patientID)
	if doctorID > 0 {
		query = query.Where("doctor_id = ?", doctorID)
	}

	appointments := []domain.Appointment{}
	if err := query.Order("appointment_date ASC").Find(&appointments).Error; err != nil {
		l.Error().Err(err).Int64("patient_id", patientID).Msg("failed to fetch appointments")
		return nil, err
	}
	return appointments, nil
}

func (r *GormDirectoryRepository) mapErr(ctx context.Context, err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	l := log.Ctx(ctx)
	l.Error().Err(err).Str("table", what).Msg("directory lookup failed")
	return err
}
