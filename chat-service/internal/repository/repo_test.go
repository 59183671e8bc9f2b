package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	"github.com/Karthikchakala/HospitalManagement/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel:     "silent",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	models := append(ChatModels(), DirectoryModels()...)
	if err := database.AutoMigrate(db, models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

func generalFilter(t *testing.T, patientID, doctorID int64) domain.RoomFilter {
	t.Helper()
	f, err := domain.FilterFor(domain.JoinPayload{
		ChatContext: "general",
		PatientID:   domain.ID(patientID),
		DoctorID:    domain.ID(doctorID),
	})
	if err != nil {
		t.Fatalf("FilterFor: %v", err)
	}
	return f
}

func appointmentFilter(t *testing.T, apptType string, apptID, patientID, doctorID int64) domain.RoomFilter {
	t.Helper()
	f, err := domain.FilterFor(domain.JoinPayload{
		ChatContext:     "appointment",
		AppointmentType: apptType,
		AppointmentID:   domain.ID(apptID),
		PatientID:       domain.ID(patientID),
		DoctorID:        domain.ID(doctorID),
	})
	if err != nil {
		t.Fatalf("FilterFor: %v", err)
	}
	return f
}

func send(t *testing.T, repo *GormMessageRepository, f domain.RoomFilter, from domain.SenderType, body string) *domain.ChatMessage {
	t.Helper()
	p := domain.SendPayload{Body: body}
	p.SenderType = string(from)
	if from == domain.SenderPatient {
		p.SenderID, p.ReceiverID = domain.ID(f.PatientID), domain.ID(f.DoctorID)
	} else {
		p.SenderID, p.ReceiverID = domain.ID(f.DoctorID), domain.ID(f.PatientID)
	}
	msg, err := repo.Insert(context.Background(), domain.NewChatMessage(f, p))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return msg
}

func TestMessageRepository_InsertAssignsIDAndTime(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	f := generalFilter(t, 7, 12)

	a := send(t, repo, f, domain.SenderPatient, "hello")
	b := send(t, repo, f, domain.SenderDoctor, "hi")

	if a.MessageID <= 0 || b.MessageID <= a.MessageID {
		t.Fatalf("ids not increasing: %d, %d", a.MessageID, b.MessageID)
	}
	if !b.CreatedAt.After(a.CreatedAt) {
		t.Fatalf("created_at not increasing: %v, %v", a.CreatedAt, b.CreatedAt)
	}
	if a.AppointmentType != nil || a.AppointmentID != nil {
		t.Fatalf("general message carries appointment fields: %+v", a)
	}
}

func TestMessageRepository_QueryRoomBothDirections(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	room := generalFilter(t, 7, 12)
	other := generalFilter(t, 7, 13)
	appt := appointmentFilter(t, "virtual", 5, 7, 12)

	first := send(t, repo, room, domain.SenderPatient, "one")
	send(t, repo, other, domain.SenderPatient, "elsewhere")
	send(t, repo, appt, domain.SenderPatient, "appointment thread")
	second := send(t, repo, room, domain.SenderDoctor, "two")

	rows, err := repo.QueryRoom(context.Background(), room, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 2 || rows[0].MessageID != first.MessageID || rows[1].MessageID != second.MessageID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Body != "one" || rows[1].SenderType != domain.SenderDoctor {
		t.Fatalf("unexpected row content: %+v", rows)
	}
}

func TestMessageRepository_SwappedParticipantIDsAreDifferentRooms(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	room := generalFilter(t, 7, 12)
	swapped := generalFilter(t, 12, 7)

	// Doctor 7 writing to patient 12 is stored as 7 -> 12, the same ids
	// as patient 7 writing to doctor 12.
	send(t, repo, swapped, domain.SenderDoctor, "for patient 12 from doctor 7")
	send(t, repo, swapped, domain.SenderPatient, "reply from patient 12")
	own := send(t, repo, room, domain.SenderPatient, "patient 7 to doctor 12")

	rows, err := repo.QueryRoom(context.Background(), room, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 1 || rows[0].MessageID != own.MessageID {
		t.Fatalf("room %s returned foreign rows: %+v", room.Key, rows)
	}

	rows, err = repo.QueryRoom(context.Background(), swapped, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("room %s: expected 2 rows, got %+v", swapped.Key, rows)
	}

	apptA := appointmentFilter(t, "virtual", 3, 7, 12)
	apptB := appointmentFilter(t, "virtual", 3, 12, 7)
	send(t, repo, apptB, domain.SenderDoctor, "swapped appointment thread")
	rows, err = repo.QueryRoom(context.Background(), apptA, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("appointment query matched swapped participants: %+v", rows)
	}
}

func TestMessageRepository_CreatedAtFollowsIDWithinRoom(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	room := generalFilter(t, 7, 12)

	// Inserts into one room are serialised by the relay's room lock.
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mu.Lock()
			defer mu.Unlock()
			p := domain.SendPayload{Body: fmt.Sprintf("m%d", i)}
			p.SenderType = string(domain.SenderPatient)
			p.SenderID, p.ReceiverID = domain.ID(7), domain.ID(12)
			if _, err := repo.Insert(context.Background(), domain.NewChatMessage(room, p)); err != nil {
				t.Errorf("Insert: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := repo.QueryRoom(context.Background(), room, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].CreatedAt.Before(rows[i-1].CreatedAt) {
			t.Fatalf("created_at decreases at id %d: %v < %v", rows[i].MessageID, rows[i].CreatedAt, rows[i-1].CreatedAt)
		}
	}
}

func TestMessageRepository_QueryAppointmentRoom(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	appt := appointmentFilter(t, "home_visit", 9, 7, 12)
	otherType := appointmentFilter(t, "virtual", 9, 7, 12)

	want := send(t, repo, appt, domain.SenderDoctor, "see you at home")
	send(t, repo, otherType, domain.SenderDoctor, "video link")
	send(t, repo, generalFilter(t, 7, 12), domain.SenderPatient, "general")

	rows, err := repo.QueryRoom(context.Background(), appt, 0, 0)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 1 || rows[0].MessageID != want.MessageID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].AppointmentType == nil || *rows[0].AppointmentType != domain.AppointmentHomeVisit ||
		rows[0].AppointmentID == nil || *rows[0].AppointmentID != 9 {
		t.Fatalf("appointment fields not stored: %+v", rows[0])
	}
}

func TestMessageRepository_QueryRoomPaged(t *testing.T) {
	repo := NewGormMessageRepository(newTestDB(t))
	room := generalFilter(t, 1, 2)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, send(t, repo, room, domain.SenderPatient, fmt.Sprintf("m%d", i)).MessageID)
	}

	rows, err := repo.QueryRoom(context.Background(), room, 0, 2)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 2 || rows[0].MessageID != ids[3] || rows[1].MessageID != ids[4] {
		t.Fatalf("newest page wrong: %+v", rows)
	}

	rows, err = repo.QueryRoom(context.Background(), room, ids[3], 2)
	if err != nil {
		t.Fatalf("QueryRoom: %v", err)
	}
	if len(rows) != 2 || rows[0].MessageID != ids[1] || rows[1].MessageID != ids[2] {
		t.Fatalf("older page wrong: %+v", rows)
	}
}

func TestMessageRepository_InsertFailure(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormMessageRepository(db)
	database.Close(db)

	_, err := repo.Insert(context.Background(), &domain.ChatMessage{
		ChatContext: domain.ContextGeneral,
		SenderType:  domain.SenderPatient,
		SenderID:    1,
		ReceiverID:  2,
		Body:        "x",
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestMonotonicClock(t *testing.T) {
	c := &monotonicClock{last: time.Now().Add(time.Hour)}
	a := c.Now()
	b := c.Now()
	if !b.After(a) {
		t.Fatalf("clock went backwards: %v then %v", a, b)
	}
}

func seedDirectory(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []interface{}{
		&domain.User{UserID: 100, Name: "Pat", Role: "patient"},
		&domain.User{UserID: 200, Name: "Dr. Who", Role: "doctor"},
		&domain.User{UserID: 201, Name: "", Role: "doctor"},
		&domain.Patient{PatientID: 7, UserID: 100},
		&domain.Doctor{DoctorID: 12, UserID: 200},
		&domain.Doctor{DoctorID: 13, UserID: 201},
		&domain.Appointment{AppointmentID: 1, PatientID: 7, DoctorID: 12, AppointmentDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Status: "scheduled"},
		&domain.Appointment{AppointmentID: 2, PatientID: 7, DoctorID: 13, AppointmentDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Status: "done"},
	}
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
}

func TestDirectoryRepository_UserLookup(t *testing.T) {
	db := newTestDB(t)
	seedDirectory(t, db)
	dir := NewGormDirectoryRepository(db)
	ctx := context.Background()

	id, err := dir.PatientIDByUser(ctx, 100)
	if err != nil || id != 7 {
		t.Fatalf("PatientIDByUser = %d, %v", id, err)
	}
	id, err = dir.DoctorIDByUser(ctx, 200)
	if err != nil || id != 12 {
		t.Fatalf("DoctorIDByUser = %d, %v", id, err)
	}
	if _, err := dir.PatientIDByUser(ctx, 200); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryRepository_Counterparts(t *testing.T) {
	db := newTestDB(t)
	seedDirectory(t, db)
	dir := NewGormDirectoryRepository(db)
	msgs := NewGormMessageRepository(db)
	ctx := context.Background()

	send(t, msgs, generalFilter(t, 7, 12), domain.SenderPatient, "a")
	send(t, msgs, generalFilter(t, 7, 12), domain.SenderDoctor, "b")
	send(t, msgs, appointmentFilter(t, "virtual", 2, 7, 13), domain.SenderDoctor, "c")

	doctors, err := dir.ChatDoctorsForPatient(ctx, 7)
	if err != nil {
		t.Fatalf("ChatDoctorsForPatient: %v", err)
	}
	if len(doctors) != 2 || doctors[0] != (domain.ChatDoctor{DoctorID: 12, Name: "Dr. Who"}) ||
		doctors[1] != (domain.ChatDoctor{DoctorID: 13, Name: "Doctor"}) {
		t.Fatalf("unexpected doctors: %+v", doctors)
	}

	patients, err := dir.ChatPatientsForDoctor(ctx, 12)
	if err != nil {
		t.Fatalf("ChatPatientsForDoctor: %v", err)
	}
	if len(patients) != 1 || patients[0] != (domain.ChatPatient{PatientID: 7, Name: "Pat"}) {
		t.Fatalf("unexpected patients: %+v", patients)
	}

	none, err := dir.ChatPatientsForDoctor(ctx, 99)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil list, got %v, %v", none, err)
	}
}

func TestDirectoryRepository_PatientAppointments(t *testing.T) {
	db := newTestDB(t)
	seedDirectory(t, db)
	dir := NewGormDirectoryRepository(db)

	all, err := dir.PatientAppointments(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("PatientAppointments: %v", err)
	}
	if len(all) != 2 || all[0].AppointmentID != 2 || all[1].AppointmentID != 1 {
		t.Fatalf("unexpected order: %+v", all)
	}

	withDoctor, err := dir.PatientAppointments(context.Background(), 7, 12)
	if err != nil {
		t.Fatalf("PatientAppointments: %v", err)
	}
	if len(withDoctor) != 1 || withDoctor[0].AppointmentID != 1 {
		t.Fatalf("unexpected appointments: %+v", withDoctor)
	}
}
