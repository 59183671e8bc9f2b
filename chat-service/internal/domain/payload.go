package domain

import (
	"fmt"
	"strings"
)

// JoinPayload is the addressing descriptor a client sends with every join,
// send and typing event. Both participants are always required so the
// relay can check correspondence, even in appointment rooms.
type JoinPayload struct {
	ChatContext     string  `json:"chatContext"`
	AppointmentType string  `json:"appointmentType,omitempty"`
	AppointmentID   FlexInt `json:"appointmentId,omitempty"`
	PatientID       FlexInt `json:"patientId"`
	DoctorID        FlexInt `json:"doctorId"`
	SenderType      string  `json:"senderType,omitempty"`
	SenderID        FlexInt `json:"senderId,omitempty"`
}

// ValidateParticipants requires patientId and doctorId.
func (p JoinPayload) ValidateParticipants() error {
	if !p.PatientID.Valid || !p.DoctorID.Valid {
		return fmt.Errorf("%w: patientId and doctorId are required", ErrInvalidContext)
	}
	return nil
}

// SendPayload is a JoinPayload plus the message itself.
type SendPayload struct {
	JoinPayload
	ReceiverID FlexInt `json:"receiverId"`
	Body       string  `json:"body"`
}

// Validate checks presence of the fields every send needs.
func (p SendPayload) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ChatContext) == "" {
		missing = append(missing, "chatContext")
	}
	if strings.TrimSpace(p.SenderType) == "" {
		missing = append(missing, "senderType")
	}
	if !p.SenderID.Valid {
		missing = append(missing, "senderId")
	}
	if !p.ReceiverID.Valid {
		missing = append(missing, "receiverId")
	}
	if strings.TrimSpace(p.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

// CheckCorrespondence verifies that sender and receiver, read through
// senderType, are exactly the room's patient and doctor.
func (p SendPayload) CheckCorrespondence() error {
	switch SenderType(p.SenderType) {
	case SenderPatient:
		if p.SenderID.Value == p.PatientID.Value && p.ReceiverID.Value == p.DoctorID.Value {
			return nil
		}
	case SenderDoctor:
		if p.SenderID.Value == p.DoctorID.Value && p.ReceiverID.Value == p.PatientID.Value {
			return nil
		}
	default:
		return fmt.Errorf("%w: unsupported senderType %q", ErrInvalidContext, p.SenderType)
	}
	return fmt.Errorf("%w: sender %s and receiver %s do not match patient %s and doctor %s",
		ErrInvalidContext, p.SenderID, p.ReceiverID, p.PatientID, p.DoctorID)
}
