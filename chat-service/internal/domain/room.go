package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatContext selects the addressing scheme of a room.
type ChatContext string

const (
	ContextGeneral     ChatContext = "general"
	ContextAppointment ChatContext = "appointment"
)

// AppointmentType is the kind of appointment an appointment thread belongs to.
type AppointmentType string

const (
	AppointmentVirtual   AppointmentType = "virtual"
	AppointmentHomeVisit AppointmentType = "home_visit"
	AppointmentInPerson  AppointmentType = "in_person"
)

// ParseAppointmentType accepts only the known types.
func ParseAppointmentType(s string) (AppointmentType, bool) {
	switch t := AppointmentType(strings.TrimSpace(s)); t {
	case AppointmentVirtual, AppointmentHomeVisit, AppointmentInPerson:
		return t, true
	default:
		return "", false
	}
}

// SenderType names which side of the conversation wrote a message.
type SenderType string

const (
	SenderPatient SenderType = "patient"
	SenderDoctor  SenderType = "doctor"
)

// Valid reports whether s is patient or doctor.
func (s SenderType) Valid() bool {
	return s == SenderPatient || s == SenderDoctor
}

// RoomKey identifies a room. The zero value is not a room. Keys come from
// ResolveRoom or ParseRoomKey only.
type RoomKey struct {
	context         ChatContext
	patientID       int64
	doctorID        int64
	appointmentType AppointmentType
	appointmentID   int64
}

// IsZero reports whether k is the zero key.
func (k RoomKey) IsZero() bool {
	return k.context == ""
}

// Context returns the chat context of the room.
func (k RoomKey) Context() ChatContext {
	return k.context
}

func (k RoomKey) String() string {
	switch k.context {
	case ContextGeneral:
		return fmt.Sprintf("general:%d:%d", k.patientID, k.doctorID)
	case ContextAppointment:
		return fmt.Sprintf("appointment:%s:%d", k.appointmentType, k.appointmentID)
	default:
		return ""
	}
}

// MarshalText lets a RoomKey appear directly in JSON.
func (k RoomKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the String form.
func (k *RoomKey) UnmarshalText(b []byte) error {
	parsed, err := ParseRoomKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ResolveRoom computes the deterministic room key for a payload.
func ResolveRoom(p JoinPayload) (RoomKey, error) {
	switch ChatContext(strings.TrimSpace(p.ChatContext)) {
	case ContextGeneral:
		if !p.PatientID.Valid || !p.DoctorID.Valid {
			return RoomKey{}, fmt.Errorf("%w: general chat requires patientId and doctorId", ErrInvalidContext)
		}
		return RoomKey{
			context:   ContextGeneral,
			patientID: p.PatientID.Value,
			doctorID:  p.DoctorID.Value,
		}, nil

	case ContextAppointment:
		t, ok := ParseAppointmentType(p.AppointmentType)
		if !ok {
			return RoomKey{}, fmt.Errorf("%w: unsupported appointmentType %q", ErrInvalidContext, p.AppointmentType)
		}
		if !p.AppointmentID.Valid {
			return RoomKey{}, fmt.Errorf("%w: appointment chat requires appointmentId", ErrInvalidContext)
		}
		return RoomKey{
			context:         ContextAppointment,
			appointmentType: t,
			appointmentID:   p.AppointmentID.Value,
		}, nil

	default:
		return RoomKey{}, fmt.Errorf("%w: unsupported chatContext %q", ErrInvalidContext, p.ChatContext)
	}
}

// ParseRoomKey parses the String form of a key, as carried by fan-out events.
func ParseRoomKey(s string) (RoomKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RoomKey{}, fmt.Errorf("%w: malformed room key %q", ErrInvalidContext, s)
	}

	switch ChatContext(parts[0]) {
	case ContextGeneral:
		p, err1 := parsePositive(parts[1])
		d, err2 := parsePositive(parts[2])
		if err1 != nil || err2 != nil {
			return RoomKey{}, fmt.Errorf("%w: malformed room key %q", ErrInvalidContext, s)
		}
		return RoomKey{context: ContextGeneral, patientID: p, doctorID: d}, nil

	case ContextAppointment:
		t, ok := ParseAppointmentType(parts[1])
		id, err := parsePositive(parts[2])
		if !ok || err != nil {
			return RoomKey{}, fmt.Errorf("%w: malformed room key %q", ErrInvalidContext, s)
		}
		return RoomKey{context: ContextAppointment, appointmentType: t, appointmentID: id}, nil

	default:
		return RoomKey{}, fmt.Errorf("%w: malformed room key %q", ErrInvalidContext, s)
	}
}

func parsePositive(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("non-positive id %d", v)
	}
	return v, nil
}

// RoomFilter is the store predicate for one room: the context, the
// appointment for appointment rooms, and the two participants whose
// messages in either direction belong to the room.
type RoomFilter struct {
	Key             RoomKey
	Context         ChatContext
	AppointmentType AppointmentType
	AppointmentID   int64
	PatientID       int64
	DoctorID        int64
}

// FilterFor resolves the room of p and requires both participants.
func FilterFor(p JoinPayload) (RoomFilter, error) {
	key, err := ResolveRoom(p)
	if err != nil {
		return RoomFilter{}, err
	}
	if err := p.ValidateParticipants(); err != nil {
		return RoomFilter{}, err
	}
	return RoomFilter{
		Key:             key,
		Context:         key.context,
		AppointmentType: key.appointmentType,
		AppointmentID:   key.appointmentID,
		PatientID:       p.PatientID.Value,
		DoctorID:        p.DoctorID.Value,
	}, nil
}
