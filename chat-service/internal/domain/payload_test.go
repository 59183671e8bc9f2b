package domain

import (
	"errors"
	"testing"
)

func TestFlexInt_Unmarshal(t *testing.T) {
	cases := map[string]FlexInt{
		`{"patientId":42}`:      ID(42),
		`{"patientId":"42"}`:    ID(42),
		`{"patientId":null}`:    {},
		`{"patientId":true}`:    {},
		`{"patientId":"4x"}`:    {},
		`{"patientId":-3}`:      {},
		`{"patientId":1e3}`:     {},
		`{"patientId":{"a":1}}`: {},
		`{}`:                    {},
	}
	for raw, want := range cases {
		if got := payload(t, raw).PatientID; got != want {
			t.Errorf("%s: got %+v, want %+v", raw, got, want)
		}
	}
}

func TestSendPayload_Validate(t *testing.T) {
	full := SendPayload{
		JoinPayload: JoinPayload{
			ChatContext: "general",
			PatientID:   ID(7),
			DoctorID:    ID(12),
			SenderType:  "patient",
			SenderID:    ID(7),
		},
		ReceiverID: ID(12),
		Body:       "hello",
	}
	if err := full.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	blank := full
	blank.Body = "   "
	if err := blank.Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("blank body: %v", err)
	}

	noReceiver := full
	noReceiver.ReceiverID = FlexInt{}
	if err := noReceiver.Validate(); !errors.Is(err, ErrMissingField) {
		t.Fatalf("missing receiver: %v", err)
	}
}

func TestSendPayload_CheckCorrespondence(t *testing.T) {
	base := JoinPayload{ChatContext: "general", PatientID: ID(7), DoctorID: ID(12)}

	cases := []struct {
		name       string
		senderType string
		sender     int64
		receiver   int64
		ok         bool
	}{
		{"patient to doctor", "patient", 7, 12, true},
		{"doctor to patient", "doctor", 12, 7, true},
		{"patient spoofing doctor id", "patient", 12, 7, false},
		{"wrong receiver", "patient", 7, 13, false},
		{"unknown sender type", "nurse", 7, 12, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := SendPayload{JoinPayload: base, ReceiverID: ID(tc.receiver), Body: "x"}
			p.SenderType = tc.senderType
			p.SenderID = ID(tc.sender)

			err := p.CheckCorrespondence()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidContext) {
				t.Fatalf("expected ErrInvalidContext, got %v", err)
			}
		})
	}
}

func TestPrincipal_Authorize(t *testing.T) {
	pr := &Principal{UserID: "u1", Role: SenderPatient, ID: 7}

	ok := JoinPayload{ChatContext: "general", PatientID: ID(7), DoctorID: ID(12), SenderType: "patient", SenderID: ID(7)}
	if err := pr.Authorize(ok); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	asDoctor := ok
	asDoctor.SenderType = "doctor"
	if err := pr.Authorize(asDoctor); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("role spoof: %v", err)
	}

	otherRoom := ok
	otherRoom.PatientID = ID(8)
	if err := pr.Authorize(otherRoom); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign room: %v", err)
	}
}

func TestDecodeInbound_LegacyMessageField(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"send_message","chatContext":"general","patientId":"7","doctorId":12,"message":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if msg.Type != MsgTypeSendMessage || msg.Body != "hi" || msg.PatientID != ID(7) {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(errors.Join(errors.New("ctx"), ErrPersistence)); got != ErrCodePersistence {
		t.Fatalf("ErrorCode = %s", got)
	}
	if got := ErrorCode(errors.New("other")); got != ErrCodeInternalError {
		t.Fatalf("ErrorCode = %s", got)
	}
}
