package repository

import "github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"

// ChatModels are the tables the relay owns.
func ChatModels() []interface{} {
	return []interface{}{&domain.ChatMessage{}}
}

// DirectoryModels are the read-only tables of the rest of the application,
// migrated only for local development and tests.
func DirectoryModels() []interface{} {
	return []interface{}{&domain.User{}, &domain.Patient{}, &domain.Doctor{}, &domain.Appointment{}}
}
