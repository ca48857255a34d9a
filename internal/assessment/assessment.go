// Package assessment grades quizzes and assignments. Grading functions are
// pure: the same input always yields the same Result.
package assessment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-course/internal/course"
)

const (
	// PassPercent is the minimum share of correct answers to pass a quiz.
	PassPercent = 70
	// MinSubmissionChars is the length a submission must exceed to be accepted.
	MinSubmissionChars = 50
)

const (
	QuizPassedFeedback       = "Great job! You passed the quiz."
	QuizFailedFeedback       = "You didn't pass this time. Review the material and try again."
	AssignmentPassedFeedback = "Assignment submitted successfully!"
	AssignmentFailedFeedback = "Your submission is too short. Please provide more detail."
)

// Result is the outcome of one submission attempt. It is never mutated.
type Result struct {
	Passed   bool   `json:"passed"`
	Score    *int   `json:"score,omitempty"`
	Total    *int   `json:"total,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a submission before grading. No state changes.
type ValidationError struct {
	Reason      string
	QuestionIDs []string // unanswered or unknown question ids, when relevant
}

func (e *ValidationError) Error() string {
	if len(e.QuestionIDs) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.QuestionIDs, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateQuizAnswers checks that answers covers every question and nothing
// else.
func ValidateQuizAnswers(questions []course.Question, answers map[string]string) error {
	known := make(map[string]bool, len(questions))
	var missing []string
	for _, q := range questions {
		known[q.ID] = true
		if answers[q.ID] == "" {
			missing = append(missing, q.ID)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Reason: "unanswered questions", QuestionIDs: missing}
	}

	var unknown []string
	for id := range answers {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ValidationError{Reason: "unknown questions", QuestionIDs: unknown}
	}
	return nil
}

// ValidateSubmission rejects a blank assignment submission.
func ValidateSubmission(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Reason: "submission is empty"}
	}
	return nil
}

// GradeQuiz counts exact matches against each question's correct option.
// There is no partial credit.
func GradeQuiz(questions []course.Question, answers map[string]string) Result {
	correct := 0
	for _, q := range questions {
		if answers[q.ID] == q.CorrectOptionID {
			correct++
		}
	}
	total := len(questions)

	// 100*correct/total >= PassPercent, kept in integers.
	passed := total > 0 && 100*correct >= PassPercent*total

	feedback := QuizFailedFeedback
	if passed {
		feedback = QuizPassedFeedback
	}
	return Result{
		Passed:   passed,
		Score:    &correct,
		Total:    &total,
		Feedback: feedback,
	}
}

// GradeAssignment accepts any submission longer than MinSubmissionChars
// characters. This is an automatic-acceptance heuristic, not a review of the
// content.
func GradeAssignment(submission string) Result {
	passed := CharCount(submission) > MinSubmissionChars

	feedback := AssignmentFailedFeedback
	if passed {
		feedback = AssignmentPassedFeedback
	}
	return Result{Passed: passed, Feedback: feedback}
}

// CharCount counts characters of s in NFC form, so a precomposed and a
// decomposed accent count the same.
func CharCount(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}
