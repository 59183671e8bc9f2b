package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/client"
	"github.com/Karthikchakala/HospitalManagement/chat-service/internal/domain"
	pkglog "github.com/Karthikchakala/HospitalManagement/pkg/log"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Chat from the terminal",
		Long: "Connects to a relay and joins one room. Each input line is sent as a message.\n" +
			"\"/switch <patientId> <doctorId>\" moves to another general room and \"/quit\" exits.",
		RunE: runClient,
	}
	f := cmd.Flags()
	f.String("url", "ws://localhost:5000/chat/ws", "Relay websocket URL")
	f.String("token", "", "Access token")
	f.String("as", "patient", "Speak as patient or doctor")
	f.String("context", "general", "general or appointment")
	f.String("appointment-type", "", "virtual, home_visit or in_person")
	f.Int64("appointment-id", 0, "Appointment id")
	f.Int64("patient", 0, "Patient id")
	f.Int64("doctor", 0, "Doctor id")
	return cmd
}

func runClient(cmd *cobra.Command, args []string) error {
	pkglog.Setup(pkglog.Config{Level: "warn", Pretty: true}, os.Stderr)

	f := cmd.Flags()
	url, _ := f.GetString("url")
	token, _ := f.GetString("token")
	as, _ := f.GetString("as")
	chatContext, _ := f.GetString("context")
	apptType, _ := f.GetString("appointment-type")
	apptID, _ := f.GetInt64("appointment-id")
	patientID, _ := f.GetInt64("patient")
	doctorID, _ := f.GetInt64("doctor")

	payload := domain.JoinPayload{
		ChatContext:     chatContext,
		AppointmentType: apptType,
		AppointmentID:   domain.ID(apptID),
		PatientID:       domain.ID(patientID),
		DoctorID:        domain.ID(doctorID),
		SenderType:      as,
	}
	if domain.SenderType(as) == domain.SenderDoctor {
		payload.SenderID = payload.DoctorID
	} else {
		payload.SenderID = payload.PatientID
	}

	ctrl, err := client.NewController(client.Options{URL: url, Token: token, Payload: payload})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()
	go printEvents(ctx, ctrl, out)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		stop()
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case line := <-lines:
			if err := handleLine(ctrl, payload, line); err != nil {
				if errors.Is(err, errQuit) {
					stop()
					continue
				}
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(ctrl *client.Controller, base domain.JoinPayload, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/quit":
		return errQuit
	case strings.HasPrefix(line, "/switch "):
		var patientID, doctorID int64
		if _, err := fmt.Sscanf(line, "/switch %d %d", &patientID, &doctorID); err != nil {
			return fmt.Errorf("usage: /switch <patientId> <doctorId>")
		}
		next := domain.JoinPayload{
			ChatContext: string(domain.ContextGeneral),
			PatientID:   domain.ID(patientID),
			DoctorID:    domain.ID(doctorID),
			SenderType:  base.SenderType,
		}
		if domain.SenderType(base.SenderType) == domain.SenderDoctor {
			next.SenderID = next.DoctorID
		} else {
			next.SenderID = next.PatientID
		}
		return ctrl.Switch(next)
	default:
		return ctrl.Send(line)
	}
}

func printEvents(ctx context.Context, ctrl *client.Controller, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ctrl.Events():
			switch e.Kind {
			case client.EventConnected:
				fmt.Fprintln(out, "* connected")
			case client.EventDisconnected:
				fmt.Fprintln(out, "* disconnected, reconnecting")
			case client.EventJoined:
				fmt.Fprintf(out, "* joined %s\n", e.Room)
			case client.EventHistory:
				for _, m := range ctrl.Messages() {
					printMessage(out, m)
				}
			case client.EventMessage:
				printMessage(out, *e.Message)
			case client.EventTyping:
				if e.Typing {
					fmt.Fprintf(out, "* %d is typing\n", e.From)
				}
			case client.EventError:
				fmt.Fprintf(out, "! %s: %s\n", e.Code, e.Text)
			}
		}
	}
}

func printMessage(out io.Writer, m domain.ChatMessage) {
	fmt.Fprintf(out, "[%s] %s %d: %s\n", m.CreatedAt.Local().Format("15:04"), m.SenderType, m.SenderID, m.Body)
}
