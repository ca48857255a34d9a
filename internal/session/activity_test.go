package session_test

import (
	"testing"

	"github.com/p-n-ai/pai-course/internal/session"
)

func TestMemoryActivityLogger_LogActivity(t *testing.T) {
	logger := session.NewMemoryActivityLogger()

	err := logger.LogActivity(session.Activity{
		LearnerID: "learner-1",
		LessonID:  "q1",
		Type:      session.ActivityQuizGraded,
		Data: map[string]any{
			"score": 2,
		},
	})
	if err != nil {
		t.Fatalf("LogActivity() error = %v", err)
	}

	activities := logger.Activities()
	if len(activities) != 1 {
		t.Fatalf("len(activities) = %d, want 1", len(activities))
	}
	if activities[0].Type != session.ActivityQuizGraded {
		t.Errorf("Type = %q, want quiz_graded", activities[0].Type)
	}
	if activities[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryActivityLogger_RequiresType(t *testing.T) {
	logger := session.NewMemoryActivityLogger()
	if err := logger.LogActivity(session.Activity{LearnerID: "learner-1"}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestActivity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		a       session.Activity
		wantErr bool
	}{
		{"lesson scoped", session.Activity{Type: session.ActivityQuizGraded, LessonID: "q1"}, false},
		{"missing type", session.Activity{LessonID: "q1"}, true},
		{"unknown type", session.Activity{Type: "quiz_started", LessonID: "q1"}, true},
		{"completion without lesson", session.Activity{Type: session.ActivityLessonCompleted}, true},
		{"note without lesson", session.Activity{Type: session.ActivityNoteSaved}, true},
		{"course halted without lesson", session.Activity{Type: session.ActivityCourseHalted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryActivityLogger_RejectsMissingLesson(t *testing.T) {
	logger := session.NewMemoryActivityLogger()
	err := logger.LogActivity(session.Activity{LearnerID: "learner-1", Type: session.ActivityAssignmentGraded})
	if err == nil {
		t.Fatal("expected error for missing lesson_id")
	}
	if len(logger.Activities()) != 0 {
		t.Error("rejected activity must not be stored")
	}
}

func TestPostgresActivityLogger_NilPool(t *testing.T) {
	logger := session.NewPostgresActivityLogger(nil)

	err := logger.LogActivity(session.Activity{
		LearnerID: "learner-1",
		Type:      session.ActivityLessonCompleted,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
	if err := logger.Migrate(t.Context()); err == nil {
		t.Fatal("expected Migrate error for nil pool")
	}
}
