package domain

import "time"

// Directory tables belong to the rest of the hospital application. The
// relay only reads them.

type User struct {
	UserID int64  `gorm:"column:user_id;primaryKey;autoIncrement"`
	Name   string `gorm:"column:name"`
	Email  string `gorm:"column:email"`
	Role   string `gorm:"column:role"`
}

func (User) TableName() string { return "User" }

type Patient struct {
	PatientID int64 `gorm:"column:patient_id;primaryKey;autoIncrement"`
	UserID    int64 `gorm:"column:user_id;uniqueIndex"`
}

func (Patient) TableName() string { return "Patient" }

type Doctor struct {
	DoctorID int64 `gorm:"column:doctor_id;primaryKey;autoIncrement"`
	UserID   int64 `gorm:"column:user_id;uniqueIndex"`
}

func (Doctor) TableName() string { return "Doctor" }

type Appointment struct {
	AppointmentID   int64     `gorm:"column:appointment_id;primaryKey;autoIncrement" json:"appointment_id"`
	PatientID       int64     `gorm:"column:patient_id;index" json:"patient_id"`
	DoctorID        int64     `gorm:"column:doctor_id;index" json:"doctor_id"`
	AppointmentDate time.Time `gorm:"column:appointment_date;type:date" json:"appointment_date"`
	AppointmentTime string    `gorm:"column:appointment_time" json:"appointment_time"`
	Reason          string    `gorm:"column:reason" json:"reason"`
	Status          string    `gorm:"column:status" json:"status"`
}

func (Appointment) TableName() string { return "Appointments" }

// ChatDoctor is a doctor the patient has a thread with.
type ChatDoctor struct {
	DoctorID int64  `json:"doctor_id"`
	Name     string `json:"name"`
}

// ChatPatient is a patient the doctor has a thread with.
type ChatPatient struct {
	PatientID int64  `json:"patient_id"`
	Name      string `json:"name"`
}
