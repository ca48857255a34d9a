package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Activity types recorded by the controller.
const (
	ActivityLessonCompleted   = "lesson_completed"
	ActivityQuizGraded        = "quiz_graded"
	ActivityAssignmentGraded  = "assignment_graded"
	ActivityGradingSuperseded = "grading_superseded"
	ActivityCourseHalted      = "course_halted"
	ActivityNoteSaved         = "note_saved"
)

// Activity is an analytics record of something the learner did.
type Activity struct {
	LearnerID string
	LessonID  string
	Type      string
	Data      map[string]any
	CreatedAt time.Time
}

// lessonScoped lists the activity types that describe a single lesson.
var lessonScoped = map[string]bool{
	ActivityLessonCompleted:   true,
	ActivityQuizGraded:        true,
	ActivityAssignmentGraded:  true,
	ActivityGradingSuperseded: true,
	ActivityNoteSaved:         true,
	ActivityCourseHalted:      false,
}

// Validate checks that a is a known activity type carrying the lesson it
// refers to.
func (a Activity) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("activity type is required")
	}
	scoped, known := lessonScoped[a.Type]
	if !known {
		return fmt.Errorf("unknown activity type %q", a.Type)
	}
	if scoped && a.LessonID == "" {
		return fmt.Errorf("%s activity requires lesson_id", a.Type)
	}
	return nil
}

// ActivityLogger defines activity logging behavior.
type ActivityLogger interface {
	LogActivity(a Activity) error
}

// NopActivityLogger ignores all activities.
type NopActivityLogger struct{}

func (NopActivityLogger) LogActivity(Activity) error {
	return nil
}

// MemoryActivityLogger stores activities in memory for tests.
type MemoryActivityLogger struct {
	mu         sync.Mutex
	activities []Activity
}

func NewMemoryActivityLogger() *MemoryActivityLogger {
	return &MemoryActivityLogger{
		activities: []Activity{},
	}
}

func (l *MemoryActivityLogger) LogActivity(a Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.activities = append(l.activities, a)
	l.mu.Unlock()

	return nil
}

func (l *MemoryActivityLogger) Activities() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Activity{}, l.activities...)
}

// PostgresActivityLogger inserts activities into the learning_activities table.
type PostgresActivityLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresActivityLogger(pool *pgxpool.Pool) *PostgresActivityLogger {
	return &PostgresActivityLogger{pool: pool}
}

// Migrate creates the learning_activities table if it does not exist.
func (l *PostgresActivityLogger) Migrate(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("activity logger pool is nil")
	}
	_, err := l.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS learning_activities (
		   id            BIGSERIAL PRIMARY KEY,
		   learner_id    TEXT        NOT NULL,
		   lesson_id     TEXT,
		   activity_type TEXT        NOT NULL,
		   data          JSONB       NOT NULL DEFAULT '{}'::jsonb,
		   created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`)
	if err != nil {
		return fmt.Errorf("create learning_activities: %w", err)
	}
	return nil
}

func (l *PostgresActivityLogger) LogActivity(a Activity) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("activity logger pool is nil")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if a.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}

	payload := a.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal activity data: %w", err)
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO learning_activities (learner_id, lesson_id, activity_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		a.LearnerID,
		nullIfEmpty(a.LessonID),
		a.Type,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	slog.Debug("activity logged",
		"type", a.Type,
		"learner_id", a.LearnerID,
		"lesson_id", a.LessonID,
	)
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
