package course

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an unknown module, lesson or question id. It points
// at a content configuration bug and is not retryable.
type NotFoundError struct {
	Kind string // "module", "lesson" or "question"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ContentError collects authoring defects found while validating a course.
type ContentError struct {
	Problems []string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("invalid course content: %s", strings.Join(e.Problems, "; "))
}
