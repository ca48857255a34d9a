package notify_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/sequencer"
	"github.com/p-n-ai/pai-course/internal/session"
)

func TestFrameFor(t *testing.T) {
	score, total := 2, 3

	tests := []struct {
		name  string
		event session.Event
		check func(t *testing.T, f notify.Frame)
	}{
		{
			name: "notification",
			event: session.Notification{
				ID: "n1", Kind: session.NotificationSuccess, Reason: session.ReasonLessonCompleted,
				Message: "Lesson completed!", AutoDismiss: 3 * time.Second,
			},
			check: func(t *testing.T, f notify.Frame) {
				if f.Type != "notification" || f.ID != "n1" || f.Kind != "success" || f.AutoDismissMS != 3000 {
					t.Errorf("frame = %+v", f)
				}
			},
		},
		{
			name:  "state changed",
			event: session.StateChanged{LessonID: "q1", From: session.Presenting, To: session.Evaluating},
			check: func(t *testing.T, f notify.Frame) {
				if f.From != "presenting" || f.To != "evaluating" || f.LessonID != "q1" {
					t.Errorf("frame = %+v", f)
				}
			},
		},
		{
			name: "result",
			event: session.ResultReady{
				Attempt: 4, LessonID: "q1", Kind: "quiz",
				Result: assessment.Result{Passed: false, Score: &score, Total: &total, Feedback: "x"},
			},
			check: func(t *testing.T, f notify.Frame) {
				if f.Attempt != 4 || f.Result == nil || *f.Result.Score != 2 {
					t.Errorf("frame = %+v", f)
				}
			},
		},
		{
			name:  "halted",
			event: session.Halted{LessonID: "v2", Outcome: sequencer.CourseComplete},
			check: func(t *testing.T, f notify.Frame) {
				if f.Outcome != "course_complete" {
					t.Errorf("Outcome = %q", f.Outcome)
				}
			},
		},
		{
			name: "advanced",
			event: session.Advanced{
				From: sequencer.Cursor{ModuleID: "m1", LessonID: "as1"},
				To:   sequencer.Cursor{ModuleID: "m2", LessonID: "v2"},
			},
			check: func(t *testing.T, f notify.Frame) {
				if f.From != "as1" || f.To != "v2" || f.ModuleID != "m2" {
					t.Errorf("frame = %+v", f)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, notify.FrameFor(tt.event))
		})
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := notify.NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Notify(session.NotificationDismissed{ID: "n1"})

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", typ)
	}
	var f notify.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if f.Type != "notification_dismissed" || f.ID != "n1" {
		t.Errorf("frame = %+v", f)
	}
}

func TestHub_NoClients(t *testing.T) {
	hub := notify.NewHub()
	hub.Notify(session.NotificationDismissed{ID: "n1"})
	if hub.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", hub.Clients())
	}
	hub.Close()
}
