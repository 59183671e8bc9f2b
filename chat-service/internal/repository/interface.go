package repository

import (
	"context"
	"errors"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
)

// MessageRepository is the durable chat message table.
type MessageRepository interface {
	// Insert stores msg and returns it with the store-assigned id and time.
	Insert(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error)
	// QueryRoom returns the room's messages ascending by id. beforeID > 0 is
	// an exclusive upper bound; limit > 0 keeps only the newest limit rows.
	QueryRoom(ctx context.Context, f domain.RoomFilter, beforeID int64, limit int) ([]domain.ChatMessage, error)
}

// DirectoryRepository reads the patient/doctor/appointment tables.
type DirectoryRepository interface {
	PatientIDByUser(ctx context.Context, userID int64) (int64, error)
	DoctorIDByUser(ctx context.Context, userID int64) (int64, error)
	ChatDoctorsForPatient(ctx context.Context, patientID int64) ([]domain.ChatDoctor, error)
	ChatPatientsForDoctor(ctx context.Context, doctorID int64) ([]domain.ChatPatient, error)
	PatientAppointments(ctx context.Context, patientID, doctorID int64) ([]domain.Appointment, error)
}
