package assessment

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
)

// Grader is the boundary to a grading service. Implementations may block and
// must return promptly with ctx.Err() once ctx is cancelled.
type Grader interface {
	GradeQuiz(ctx context.Context, questions []course.Question, answers map[string]string) (Result, error)
	GradeAssignment(ctx context.Context, assignment course.Assignment, submission string) (Result, error)
}

// LocalGrader grades in-process after a fixed latency that stands in for a
// remote grading call.
type LocalGrader struct {
	Delay time.Duration
}

// NewLocalGrader creates a grader with the given simulated latency.
func NewLocalGrader(delay time.Duration) *LocalGrader {
	return &LocalGrader{Delay: delay}
}

func (g *LocalGrader) GradeQuiz(ctx context.Context, questions []course.Question, answers map[string]string) (Result, error) {
	if err := g.wait(ctx); err != nil {
		return Result{}, err
	}
	res := GradeQuiz(questions, answers)
	slog.Debug("quiz graded", "passed", res.Passed, "score", *res.Score, "total", *res.Total)
	return res, nil
}

func (g *LocalGrader) GradeAssignment(ctx context.Context, assignment course.Assignment, submission string) (Result, error) {
	if err := g.wait(ctx); err != nil {
		return Result{}, err
	}
	res := GradeAssignment(submission)
	slog.Debug("assignment graded", "assignment_id", assignment.ID, "passed", res.Passed)
	return res, nil
}

func (g *LocalGrader) wait(ctx context.Context) error {
	if g.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
