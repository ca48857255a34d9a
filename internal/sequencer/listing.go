package sequencer

import (
	"fmt"
	"sync"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
)

// DefaultExpansion returns which modules start expanded in a content
// listing: the first module and the module holding currentLessonID. An
// unknown or empty currentLessonID expands only the first module.
func DefaultExpansion(cat *course.Catalog, currentLessonID string) map[string]bool {
	modules := cat.AllModules()
	expanded := make(map[string]bool, len(modules))
	for i, m := range modules {
		expanded[m.ID] = i == 0
	}
	if pos, err := cat.Locate(currentLessonID); err == nil {
		expanded[modules[pos.Module].ID] = true
	}
	return expanded
}

// Listing holds the expansion state of one content listing render. It is
// seeded by DefaultExpansion and afterwards owned by the learner's toggles.
type Listing struct {
	expanded map[string]bool
	mu       sync.Mutex
}

// NewListing creates a listing with the default expansion state.
func NewListing(cat *course.Catalog, currentLessonID string) *Listing {
	return &Listing{expanded: DefaultExpansion(cat, currentLessonID)}
}

// Expanded reports whether a module is expanded.
func (l *Listing) Expanded(moduleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expanded[moduleID]
}

// Toggle flips a module's expansion and returns the new state.
func (l *Listing) Toggle(moduleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expanded[moduleID] = !l.expanded[moduleID]
	return l.expanded[moduleID]
}

// ModuleSummary is one row of a course listing.
type ModuleSummary struct {
	ID       string                  `json:"id"`
	Title    string                  `json:"title"`
	Duration string                  `json:"duration,omitempty"`
	Locked   bool                    `json:"locked"`
	Complete bool                    `json:"complete"`
	Progress progress.ModuleProgress `json:"progress"`
}

// CourseSummary aggregates module progress across the course.
type CourseSummary struct {
	CourseID         string          `json:"course_id"`
	Title            string          `json:"title"`
	Modules          []ModuleSummary `json:"modules"`
	CompletedLessons int             `json:"completed_lessons"`
	TotalLessons     int             `json:"total_lessons"`
	Percentage       int             `json:"percentage"`
}

// Summarize delegates to the store for every module in course order.
func Summarize(cat *course.Catalog, store progress.Store) (CourseSummary, error) {
	summary := CourseSummary{CourseID: cat.ID(), Title: cat.Title()}
	for _, m := range cat.AllModules() {
		p, err := store.ModuleProgress(m.ID)
		if err != nil {
			return CourseSummary{}, fmt.Errorf("module progress %s: %w", m.ID, err)
		}
		complete, err := store.IsModuleComplete(m.ID)
		if err != nil {
			return CourseSummary{}, fmt.Errorf("module completion %s: %w", m.ID, err)
		}
		summary.Modules = append(summary.Modules, ModuleSummary{
			ID:       m.ID,
			Title:    m.Title,
			Duration: m.Duration,
			Locked:   m.Locked,
			Complete: complete,
			Progress: p,
		})
		summary.CompletedLessons += p.CompletedCount
		summary.TotalLessons += p.TotalCount
	}
	summary.Percentage = progress.Percentage(summary.CompletedLessons, summary.TotalLessons)
	return summary, nil
}
