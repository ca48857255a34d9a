package progress

import (
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-course/internal/course"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	catalog *course.Catalog
	lessons map[string]bool
	modules map[string]bool // derived, recomputed on every lesson write
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty progress store for the given course.
func NewMemoryStore(cat *course.Catalog) *MemoryStore {
	s := &MemoryStore{
		catalog: cat,
		lessons: make(map[string]bool),
		modules: make(map[string]bool),
	}
	for _, m := range cat.AllModules() {
		s.modules[m.ID] = len(m.Lessons) == 0
	}
	return s
}

func (s *MemoryStore) MarkLessonComplete(lessonID string) error {
	m, _, err := s.catalog.GetLesson(lessonID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lessons[lessonID] {
		return nil
	}
	s.lessons[lessonID] = true
	s.recomputeModule(m)

	slog.Debug("lesson marked complete",
		"lesson_id", lessonID,
		"module_id", m.ID,
		"module_complete", s.modules[m.ID],
	)
	return nil
}

// recomputeModule must be called with mu held.
func (s *MemoryStore) recomputeModule(m course.Module) {
	for _, l := range m.Lessons {
		if !s.lessons[l.ID] {
			s.modules[m.ID] = false
			return
		}
	}
	s.modules[m.ID] = true
}

func (s *MemoryStore) IsLessonComplete(lessonID string) (bool, error) {
	if _, err := s.catalog.Locate(lessonID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lessons[lessonID], nil
}

func (s *MemoryStore) IsModuleComplete(moduleID string) (bool, error) {
	if _, err := s.catalog.GetModule(moduleID); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[moduleID], nil
}

func (s *MemoryStore) ModuleProgress(moduleID string) (ModuleProgress, error) {
	m, err := s.catalog.GetModule(moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	done := 0
	for _, l := range m.Lessons {
		if s.lessons[l.ID] {
			done++
		}
	}
	return ModuleProgress{
		ModuleID:       m.ID,
		CompletedCount: done,
		TotalCount:     len(m.Lessons),
		Percentage:     Percentage(done, len(m.Lessons)),
	}, nil
}
