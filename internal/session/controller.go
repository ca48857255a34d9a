// Package session drives one learner through a course. The Controller owns
// the cursor, runs the per-lesson state machine, commits completions to the
// progress store and reports every outcome as a typed Event.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/sequencer"
)

const (
	defaultAdvanceDelay    = 1500 * time.Millisecond
	defaultNotificationTTL = 3 * time.Second
	defaultGradingDelay    = time.Second
)

const (
	lessonCompletedMessage = "Lesson completed!"
	courseCompletedMessage = "Congratulations! You have completed the course."
	gradingFailedMessage   = "We couldn't grade your submission. Please try again."
)

// State is the per-lesson state of the controller.
type State int

const (
	Presenting State = iota
	Evaluating
	Resulted
	Advancing
	Blocked
)

func (s State) String() string {
	switch s {
	case Presenting:
		return "presenting"
	case Evaluating:
		return "evaluating"
	case Resulted:
		return "resulted"
	case Advancing:
		return "advancing"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Attempt identifies one grading submission. Only the latest attempt may
// change state.
type Attempt uint64

var (
	ErrLessonLocked      = errors.New("lesson is locked")
	ErrWrongKind         = errors.New("operation does not apply to this lesson kind")
	ErrNotCurrent        = errors.New("lesson is not the current lesson")
	ErrInvalidState      = errors.New("operation not allowed in the current state")
	ErrGradingSuperseded = errors.New("grading result superseded by a newer attempt")
	ErrClosed            = errors.New("session is closed")
)

// Config holds dependencies for the controller.
type Config struct {
	Catalog         *course.Catalog
	Store           progress.Store    // default: in-memory store
	Grader          assessment.Grader // default: local grader with a 1s delay
	Notifier        Notifier          // default: drop events
	Activity        ActivityLogger    // default: no activity log
	Clock           Clock             // default: wall clock
	LearnerID       string
	StartLessonID   string        // default: first unlocked lesson
	AdvanceDelay    time.Duration // delay before moving to the next lesson (default 1.5s)
	NotificationTTL time.Duration // auto-dismiss of success notifications (default 3s)
	NoteSink        func(lessonID, text string)
}

// Snapshot is a consistent copy of the controller's state.
type Snapshot struct {
	LearnerID string             `json:"learner_id"`
	Cursor    sequencer.Cursor   `json:"cursor"`
	Kind      course.Kind        `json:"kind"`
	State     State              `json:"-"`
	StateName string             `json:"state"`
	Result    *assessment.Result `json:"result,omitempty"`
	Attempt   Attempt            `json:"attempt"`
	Grading   bool               `json:"grading"`
}

// Controller is the lesson session state machine for one learner.
type Controller struct {
	cat             *course.Catalog
	store           progress.Store
	grader          assessment.Grader
	notifier        Notifier
	activity        ActivityLogger
	clock           Clock
	learnerID       string
	advanceDelay    time.Duration
	notificationTTL time.Duration
	noteSink        func(lessonID, text string)

	mu            sync.Mutex
	cursor        sequencer.Cursor
	version       uint64 // bumped on every cursor move; stale timers compare against it
	state         State
	result        *assessment.Result
	attempt       Attempt // last issued
	pending       Attempt // awaited, 0 when idle
	cancelGrading context.CancelFunc
	advanceTimer  Timer
	dismissTimers map[string]Timer
	outbox        []Event
	activities    []Activity
	closed        bool

	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// NewController creates a controller positioned on the start lesson.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	c := &Controller{
		cat:             cfg.Catalog,
		store:           cfg.Store,
		grader:          cfg.Grader,
		notifier:        cfg.Notifier,
		activity:        cfg.Activity,
		clock:           cfg.Clock,
		learnerID:       cfg.LearnerID,
		advanceDelay:    cfg.AdvanceDelay,
		notificationTTL: cfg.NotificationTTL,
		noteSink:        cfg.NoteSink,
		dismissTimers:   make(map[string]Timer),
	}
	if c.store == nil {
		c.store = progress.NewMemoryStore(cfg.Catalog)
	}
	if c.grader == nil {
		c.grader = assessment.NewLocalGrader(defaultGradingDelay)
	}
	if c.notifier == nil {
		c.notifier = NopNotifier{}
	}
	if c.activity == nil {
		c.activity = NopActivityLogger{}
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.advanceDelay == 0 {
		c.advanceDelay = defaultAdvanceDelay
	}
	if c.notificationTTL == 0 {
		c.notificationTTL = defaultNotificationTTL
	}

	if cfg.StartLessonID != "" {
		cur, err := c.openable(cfg.StartLessonID)
		if err != nil {
			return nil, fmt.Errorf("start lesson: %w", err)
		}
		c.cursor = cur
	} else {
		cur, ok := sequencer.First(cfg.Catalog)
		if !ok {
			return nil, fmt.Errorf("course %s has no unlocked lesson", cfg.Catalog.ID())
		}
		c.cursor = cur
	}

	slog.Info("session started",
		"learner_id", c.learnerID,
		"course_id", cfg.Catalog.ID(),
		"lesson_id", c.cursor.LessonID,
	)
	return c, nil
}

// Open moves the cursor to lessonID at the learner's request. Pending
// grading, auto-advance and notification timers for the previous lesson are
// cancelled.
func (c *Controller) Open(lessonID string) error {
	cur, err := c.openable(lessonID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}

	c.cancelGradingLocked()
	c.stopAdvanceLocked()
	c.dismissAllLocked()
	c.moveLocked(cur)

	slog.Info("lesson opened", "learner_id", c.learnerID, "lesson_id", lessonID)
	return nil
}

func (c *Controller) openable(lessonID string) (sequencer.Cursor, error) {
	m, l, err := c.cat.GetLesson(lessonID)
	if err != nil {
		return sequencer.Cursor{}, err
	}
	if m.Locked || l.Locked {
		return sequencer.Cursor{}, fmt.Errorf("%w: %s", ErrLessonLocked, lessonID)
	}
	return sequencer.CursorAt(c.cat, lessonID)
}

// ContentFinished is the playback-finished signal for a video lesson.
func (c *Controller) ContentFinished(lessonID string) error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if lessonID != c.cursor.LessonID {
		slog.Debug("ignoring playback signal for another lesson",
			"lesson_id", lessonID,
			"current", c.cursor.LessonID,
		)
		return fmt.Errorf("%w: %s", ErrNotCurrent, lessonID)
	}
	if c.currentLessonLocked().Kind != course.KindVideo {
		return ErrWrongKind
	}
	if c.state == Advancing {
		return nil // already committed
	}
	return c.commitLocked("")
}

// MarkComplete is the learner's manual completion of a video or reading
// lesson. It always commits.
func (c *Controller) MarkComplete() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}
	if c.currentLessonLocked().Kind.Graded() {
		return ErrWrongKind
	}
	if c.state == Advancing {
		return nil
	}
	return c.commitLocked("")
}

// SubmitQuiz validates the answers and starts grading them. Any grading
// still in flight for an earlier attempt is cancelled and its result will be
// dropped.
func (c *Controller) SubmitQuiz(ctx context.Context, answers map[string]string) (Attempt, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return 0, ErrClosed
	}

	lesson := c.currentLessonLocked()
	if lesson.Kind != course.KindQuiz {
		return 0, ErrWrongKind
	}
	if c.state == Advancing {
		return 0, ErrInvalidState
	}
	if err := assessment.ValidateQuizAnswers(lesson.Questions, answers); err != nil {
		return 0, err
	}

	questions := lesson.Questions
	answers = maps.Clone(answers)
	return c.startAttemptLocked(ctx, lesson, func(ctx context.Context) (assessment.Result, error) {
		return c.grader.GradeQuiz(ctx, questions, answers)
	}), nil
}

// SubmitAssignment validates the submission and starts grading it.
func (c *Controller) SubmitAssignment(ctx context.Context, text string) (Attempt, error) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return 0, ErrClosed
	}

	lesson := c.currentLessonLocked()
	if lesson.Kind != course.KindAssignment {
		return 0, ErrWrongKind
	}
	if c.state == Advancing {
		return 0, ErrInvalidState
	}
	if err := assessment.ValidateSubmission(text); err != nil {
		return 0, err
	}

	brief := *lesson.Assignment
	return c.startAttemptLocked(ctx, lesson, func(ctx context.Context) (assessment.Result, error) {
		return c.grader.GradeAssignment(ctx, brief, text)
	}), nil
}

// Retry returns a finished attempt to Presenting. Retries are unlimited.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed {
		return ErrClosed
	}

	switch c.state {
	case Presenting:
		return nil
	case Resulted, Blocked:
		c.result = nil
		c.setStateLocked(Presenting)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
}

// SaveNote hands a note to the note collaborator. It has no effect on
// progression and does not wait for the collaborator.
func (c *Controller) SaveNote(text string) {
	c.mu.Lock()
	lessonID := c.cursor.LessonID
	c.mu.Unlock()

	if c.noteSink == nil {
		return
	}
	go c.noteSink(lessonID, text)
}

// Snapshot returns the current cursor, state and latest result.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result *assessment.Result
	if c.result != nil {
		r := *c.result
		result = &r
	}
	return Snapshot{
		LearnerID: c.learnerID,
		Cursor:    c.cursor,
		Kind:      c.currentLessonLocked().Kind,
		State:     c.state,
		StateName: c.state.String(),
		Result:    result,
		Attempt:   c.attempt,
		Grading:   c.pending != 0,
	}
}

// Listing returns a content listing expanded around the current lesson.
func (c *Controller) Listing() *sequencer.Listing {
	return sequencer.NewListing(c.cat, c.Snapshot().Cursor.LessonID)
}

// Summary aggregates module progress for the course.
func (c *Controller) Summary() (sequencer.CourseSummary, error) {
	return sequencer.Summarize(c.cat, c.store)
}

// Close cancels grading and timers and waits for in-flight grading to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelGradingLocked()
	c.stopAdvanceLocked()
	for id, t := range c.dismissTimers {
		t.Stop()
		delete(c.dismissTimers, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("session closed", "learner_id", c.learnerID)
}

func (c *Controller) startAttemptLocked(ctx context.Context, lesson course.Lesson, grade func(context.Context) (assessment.Result, error)) Attempt {
	if c.pending != 0 {
		slog.Debug("superseding in-flight grading", "lesson_id", lesson.ID, "attempt", c.pending)
	}
	c.cancelGradingLocked()

	c.attempt++
	attempt := c.attempt
	gctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.pending = attempt
	c.cancelGrading = cancel
	c.result = nil
	c.setStateLocked(Evaluating)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := grade(gctx)
		c.applyResult(attempt, lesson, res, err)
	}()
	return attempt
}

// applyResult commits a grading result only if the controller is still
// awaiting that exact attempt.
func (c *Controller) applyResult(attempt Attempt, lesson course.Lesson, res assessment.Result, err error) {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.closed {
		return
	}
	if c.pending != attempt {
		slog.Debug("dropping grading result",
			"error", ErrGradingSuperseded,
			"lesson_id", lesson.ID,
			"attempt", attempt,
			"pending", c.pending,
		)
		c.recordLocked(lesson.ID, ActivityGradingSuperseded, map[string]any{"attempt": uint64(attempt)})
		return
	}

	c.pending = 0
	if c.cancelGrading != nil {
		c.cancelGrading()
		c.cancelGrading = nil
	}

	if err == nil && lesson.Kind == course.KindQuiz && (res.Score == nil || res.Total == nil) {
		err = fmt.Errorf("quiz result for %s has no score", lesson.ID)
	}
	if err != nil {
		slog.Error("grading failed", "lesson_id", lesson.ID, "attempt", attempt, "error", err)
		c.notifyLocked(NotificationError, ReasonGradingFailed, gradingFailedMessage, 0)
		c.setStateLocked(Blocked)
		return
	}

	c.result = &res
	c.setStateLocked(Resulted)
	c.emitLocked(ResultReady{Attempt: attempt, LessonID: lesson.ID, Kind: lesson.Kind, Result: res})

	data := map[string]any{"attempt": uint64(attempt), "passed": res.Passed}
	activityType := ActivityAssignmentGraded
	failReason := ReasonAssignmentRejected
	if lesson.Kind == course.KindQuiz {
		activityType = ActivityQuizGraded
		failReason = ReasonQuizFailed
		data["score"] = *res.Score
		data["total"] = *res.Total
	}
	c.recordLocked(lesson.ID, activityType, data)

	if !res.Passed {
		c.notifyLocked(NotificationError, failReason, res.Feedback, 0)
		c.setStateLocked(Blocked)
		return
	}

	if err := c.commitLocked(res.Feedback); err != nil {
		slog.Error("commit after grading failed", "lesson_id", lesson.ID, "error", err)
		c.setStateLocked(Blocked)
	}
}

// commitLocked marks the current lesson complete and resolves what comes next.
func (c *Controller) commitLocked(feedback string) error {
	lessonID, moduleID := c.cursor.LessonID, c.cursor.ModuleID

	if err := c.store.MarkLessonComplete(lessonID); err != nil {
		slog.Error("commit failed", "lesson_id", lessonID, "error", err)
		return fmt.Errorf("committing lesson %s: %w", lessonID, err)
	}
	mp, err := c.store.ModuleProgress(moduleID)
	if err != nil {
		return fmt.Errorf("module progress %s: %w", moduleID, err)
	}
	moduleComplete, err := c.store.IsModuleComplete(moduleID)
	if err != nil {
		return fmt.Errorf("module completion %s: %w", moduleID, err)
	}

	c.emitLocked(LessonCompleted{
		LessonID:       lessonID,
		ModuleID:       moduleID,
		ModuleComplete: moduleComplete,
		Progress:       mp,
	})
	c.recordLocked(lessonID, ActivityLessonCompleted, map[string]any{
		"module_id":       moduleID,
		"module_complete": moduleComplete,
		"percentage":      mp.Percentage,
	})

	msg := feedback
	if msg == "" {
		msg = lessonCompletedMessage
	}
	c.notifyLocked(NotificationSuccess, ReasonLessonCompleted, msg, c.notificationTTL)

	step, err := sequencer.Next(c.cat, lessonID)
	if err != nil {
		return err
	}

	if step.Outcome == sequencer.Advanced {
		c.setStateLocked(Advancing)
		c.stopAdvanceLocked()
		version, target := c.version, step.Cursor
		c.advanceTimer = c.clock.AfterFunc(c.advanceDelay, func() {
			c.advance(version, target)
		})
		slog.Info("lesson committed",
			"learner_id", c.learnerID,
			"lesson_id", lessonID,
			"next_lesson_id", target.LessonID,
		)
		return nil
	}

	c.setStateLocked(Blocked)
	c.emitLocked(Halted{LessonID: lessonID, Outcome: step.Outcome})
	c.recordLocked(lessonID, ActivityCourseHalted, map[string]any{"outcome": step.Outcome.String()})
	if step.Outcome == sequencer.CourseComplete {
		c.notifyLocked(NotificationSuccess, ReasonCourseCompleted, courseCompletedMessage, c.notificationTTL)
	}
	slog.Info("lesson committed, no next lesson",
		"learner_id", c.learnerID,
		"lesson_id", lessonID,
		"outcome", step.Outcome.String(),
	)
	return nil
}

func (c *Controller) advance(version uint64, target sequencer.Cursor) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.closed || c.version != version {
		return
	}

	c.advanceTimer = nil
	from := c.cursor
	c.moveLocked(target)
	c.emitLocked(Advanced{From: from, To: target})
	slog.Info("advanced", "learner_id", c.learnerID, "from", from.LessonID, "to", target.LessonID)
}

func (c *Controller) moveLocked(to sequencer.Cursor) {
	c.cursor = to
	c.version++
	c.result = nil
	c.setStateLocked(Presenting)
}

func (c *Controller) dismiss(id string) {
	c.mu.Lock()
	defer c.unlockAndFlush()
	if _, ok := c.dismissTimers[id]; !ok {
		return
	}
	delete(c.dismissTimers, id)
	c.emitLocked(NotificationDismissed{ID: id})
}

func (c *Controller) currentLessonLocked() course.Lesson {
	_, l := c.cat.At(c.cursor.Position)
	return l
}

func (c *Controller) setStateLocked(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	c.emitLocked(StateChanged{LessonID: c.cursor.LessonID, From: from, To: to})
	slog.Debug("state changed", "lesson_id", c.cursor.LessonID, "from", from.String(), "to", to.String())
}

func (c *Controller) notifyLocked(kind NotificationKind, reason Reason, msg string, ttl time.Duration) {
	id := uuid.NewString()
	c.emitLocked(Notification{ID: id, Kind: kind, Reason: reason, Message: msg, AutoDismiss: ttl})
	if ttl <= 0 {
		return
	}
	c.dismissTimers[id] = c.clock.AfterFunc(ttl, func() {
		c.dismiss(id)
	})
}

func (c *Controller) dismissAllLocked() {
	for id, t := range c.dismissTimers {
		t.Stop()
		delete(c.dismissTimers, id)
		c.emitLocked(NotificationDismissed{ID: id})
	}
}

func (c *Controller) cancelGradingLocked() {
	if c.cancelGrading != nil {
		c.cancelGrading()
		c.cancelGrading = nil
	}
	c.pending = 0
}

func (c *Controller) stopAdvanceLocked() {
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
		c.advanceTimer = nil
	}
}

func (c *Controller) emitLocked(ev Event) {
	c.outbox = append(c.outbox, ev)
}

func (c *Controller) recordLocked(lessonID, activityType string, data map[string]any) {
	c.activities = append(c.activities, Activity{
		LearnerID: c.learnerID,
		LessonID:  lessonID,
		Type:      activityType,
		Data:      data,
		CreatedAt: c.clock.Now(),
	})
}

// unlockAndFlush releases mu and delivers queued events and activities in
// the order they were produced.
func (c *Controller) unlockAndFlush() {
	events, activities := c.outbox, c.activities
	c.outbox, c.activities = nil, nil

	c.deliverMu.Lock()
	c.mu.Unlock()
	defer c.deliverMu.Unlock()

	for _, ev := range events {
		c.notifier.Notify(ev)
	}
	for _, a := range activities {
		if err := c.activity.LogActivity(a); err != nil {
			slog.Warn("failed to log activity", "type", a.Type, "error", err)
		}
	}
}
