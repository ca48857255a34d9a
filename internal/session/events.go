package session

import (
	"sync"
	"time"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/sequencer"
)

// Event is a discrete state change delivered to the presentation layer.
type Event interface {
	EventType() string
}

// StateChanged reports a transition of the lesson state machine.
type StateChanged struct {
	LessonID string
	From     State
	To       State
}

// ResultReady carries the result of a graded attempt.
type ResultReady struct {
	Attempt  Attempt
	LessonID string
	Kind     course.Kind
	Result   assessment.Result
}

// LessonCompleted is emitted after a commit to the progress store.
type LessonCompleted struct {
	LessonID       string
	ModuleID       string
	ModuleComplete bool
	Progress       progress.ModuleProgress
}

// Advanced is emitted when the cursor moves to the next lesson.
type Advanced struct {
	From sequencer.Cursor
	To   sequencer.Cursor
}

// Halted is emitted when no eligible next lesson exists; the cursor stays.
type Halted struct {
	LessonID string
	Outcome  sequencer.Outcome
}

// NotificationKind is how the presentation layer styles a notification.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

// Reason identifies why a notification was raised.
type Reason string

const (
	ReasonLessonCompleted    Reason = "lesson_completed"
	ReasonCourseCompleted    Reason = "course_completed"
	ReasonQuizFailed         Reason = "quiz_failed"
	ReasonAssignmentRejected Reason = "assignment_rejected"
	ReasonGradingFailed      Reason = "grading_failed"
)

// Notification is a learner-visible outcome. AutoDismiss is zero for
// notifications that stay until replaced.
type Notification struct {
	ID          string
	Kind        NotificationKind
	Reason      Reason
	Message     string
	AutoDismiss time.Duration
}

// NotificationDismissed withdraws a notification.
type NotificationDismissed struct {
	ID string
}

func (StateChanged) EventType() string          { return "state_changed" }
func (ResultReady) EventType() string           { return "result_ready" }
func (LessonCompleted) EventType() string       { return "lesson_completed" }
func (Advanced) EventType() string              { return "advanced" }
func (Halted) EventType() string                { return "halted" }
func (Notification) EventType() string          { return "notification" }
func (NotificationDismissed) EventType() string { return "notification_dismissed" }

// Notifier receives controller events in order. Notify must not call back
// into the controller synchronously.
type Notifier interface {
	Notify(Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// MemoryNotifier records events for tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Notify(ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *MemoryNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event{}, n.events...)
}
