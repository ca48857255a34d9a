// Package sequencer decides which lesson follows a completed one and how a
// course listing is initially presented. It reads content and progress but
// never writes either.
package sequencer

import (
	"github.com/p-n-ai/pai-course/internal/course"
)

// Outcome is the result of next-lesson resolution.
type Outcome int

const (
	// Advanced means an eligible next lesson was found.
	Advanced Outcome = iota
	// Blocked means later content exists but a lock prevents reaching it.
	Blocked
	// CourseComplete means nothing follows the completed lesson.
	CourseComplete
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Blocked:
		return "blocked"
	case CourseComplete:
		return "course_complete"
	default:
		return "unknown"
	}
}

// Terminal reports whether the cursor stays where it is.
func (o Outcome) Terminal() bool {
	return o != Advanced
}

// Cursor is the learner's position: ids for callers, indexes into the
// immutable content tree for the sequencer.
type Cursor struct {
	ModuleID string          `json:"module_id"`
	LessonID string          `json:"lesson_id"`
	Position course.Position `json:"-"`
}

// CursorAt builds the cursor for a lesson id.
func CursorAt(cat *course.Catalog, lessonID string) (Cursor, error) {
	pos, err := cat.Locate(lessonID)
	if err != nil {
		return Cursor{}, err
	}
	return cursorFor(cat, pos), nil
}

func cursorFor(cat *course.Catalog, pos course.Position) Cursor {
	m, l := cat.At(pos)
	return Cursor{ModuleID: m.ID, LessonID: l.ID, Position: pos}
}

// Step is what the sequencer decided after a completion. On a terminal
// outcome Cursor is the just-completed lesson.
type Step struct {
	Outcome Outcome
	Cursor  Cursor
}

// Next resolves the lesson that follows completedLessonID.
//
// Later lessons of the same module are scanned first and the first unlocked
// one wins. Otherwise subsequent modules are walked in course order, passing
// over locked or empty ones; the first unlocked module is the only entry
// candidate and is entered only through its first lesson.
func Next(cat *course.Catalog, completedLessonID string) (Step, error) {
	from, err := cat.Locate(completedLessonID)
	if err != nil {
		return Step{}, err
	}
	stay := cursorFor(cat, from)
	modules := cat.AllModules()
	laterContent := false

	current := modules[from.Module]
	for li := from.Lesson + 1; li < len(current.Lessons); li++ {
		laterContent = true
		if !current.Lessons[li].Locked {
			return Step{
				Outcome: Advanced,
				Cursor:  cursorFor(cat, course.Position{Module: from.Module, Lesson: li}),
			}, nil
		}
	}

	for mi := from.Module + 1; mi < len(modules); mi++ {
		m := modules[mi]
		if len(m.Lessons) == 0 {
			continue
		}
		laterContent = true
		if m.Locked {
			continue
		}
		if m.Lessons[0].Locked {
			break
		}
		return Step{
			Outcome: Advanced,
			Cursor:  cursorFor(cat, course.Position{Module: mi, Lesson: 0}),
		}, nil
	}

	if laterContent {
		return Step{Outcome: Blocked, Cursor: stay}, nil
	}
	return Step{Outcome: CourseComplete, Cursor: stay}, nil
}

// First returns the lesson a fresh session starts on: the first unlocked
// lesson of the first unlocked module. ok is false when every module or
// lesson is locked.
func First(cat *course.Catalog) (Cursor, bool) {
	for mi, m := range cat.AllModules() {
		if m.Locked {
			continue
		}
		for li, l := range m.Lessons {
			if !l.Locked {
				return cursorFor(cat, course.Position{Module: mi, Lesson: li}), true
			}
		}
	}
	return Cursor{}, false
}
