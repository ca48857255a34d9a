// Package progress tracks lesson completion for one learner and derives
// module completion from it.
package progress

import (
	"fmt"

	"github.com/p-n-ai/pai-course/internal/course"
)

// ModuleProgress is the completion summary of a module.
type ModuleProgress struct {
	ModuleID       string `json:"module_id"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
	Percentage     int    `json:"percentage"`
}

// Complete reports whether every lesson of the module is done.
func (p ModuleProgress) Complete() bool {
	return p.CompletedCount == p.TotalCount
}

// Store is the single writer of completion state. Lock state is not kept
// here; it is read-only content configuration.
type Store interface {
	// MarkLessonComplete is idempotent and recomputes the owning module's
	// completion after the write.
	MarkLessonComplete(lessonID string) error
	IsLessonComplete(lessonID string) (bool, error)
	IsModuleComplete(moduleID string) (bool, error)
	ModuleProgress(moduleID string) (ModuleProgress, error)
}

// Percentage returns round-half-up(100 * completed / total), or 0 when
// total is zero.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// Seed marks every lesson flagged completed in the course content.
func Seed(s Store, cat *course.Catalog) error {
	for _, m := range cat.AllModules() {
		for _, l := range m.Lessons {
			if !l.Completed {
				continue
			}
			if err := s.MarkLessonComplete(l.ID); err != nil {
				return fmt.Errorf("seeding %s: %w", l.ID, err)
			}
		}
	}
	return nil
}

func lessonIDs(m course.Module) []string {
	ids := make([]string, len(m.Lessons))
	for i, l := range m.Lessons {
		ids[i] = l.ID
	}
	return ids
}
