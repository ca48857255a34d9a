package progress_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total int
		want             int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 8, 13}, // 12.5 rounds half up
		{1, 200, 1}, // 0.5 rounds half up
		{0, 0, 0},
		{5, 0, 0},
	}

	for _, tt := range tests {
		if got := progress.Percentage(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestMemoryStore_MarkLessonComplete(t *testing.T) {
	cat := testCatalog(t)
	store := progress.NewMemoryStore(cat)

	if err := store.MarkLessonComplete("a1"); err != nil {
		t.Fatalf("MarkLessonComplete() error = %v", err)
	}

	done, err := store.IsLessonComplete("a1")
	if err != nil {
		t.Fatalf("IsLessonComplete() error = %v", err)
	}
	if !done {
		t.Error("a1 should be complete")
	}

	complete, _ := store.IsModuleComplete("a")
	if complete {
		t.Error("module a should not be complete with a2 and a3 pending")
	}

	p, err := store.ModuleProgress("a")
	if err != nil {
		t.Fatalf("ModuleProgress() error = %v", err)
	}
	if p.CompletedCount != 1 || p.TotalCount != 3 || p.Percentage != 33 {
		t.Errorf("ModuleProgress() = %+v, want 1/3 33%%", p)
	}
}

func TestMemoryStore_Idempotent(t *testing.T) {
	cat := testCatalog(t)
	once := progress.NewMemoryStore(cat)
	twice := progress.NewMemoryStore(cat)

	_ = once.MarkLessonComplete("a2")
	_ = twice.MarkLessonComplete("a2")
	if err := twice.MarkLessonComplete("a2"); err != nil {
		t.Fatalf("re-marking should not error, got %v", err)
	}

	for _, m := range cat.AllModules() {
		p1, _ := once.ModuleProgress(m.ID)
		p2, _ := twice.ModuleProgress(m.ID)
		if p1 != p2 {
			t.Errorf("module %s: once = %+v, twice = %+v", m.ID, p1, p2)
		}
	}
}

func TestMemoryStore_ModuleCompletionDerived(t *testing.T) {
	cat := testCatalog(t)
	store := progress.NewMemoryStore(cat)

	for _, id := range []string{"a1", "a2", "a3"} {
		complete, _ := store.IsModuleComplete("a")
		if complete {
			t.Fatalf("module a complete before %s was marked", id)
		}
		if err := store.MarkLessonComplete(id); err != nil {
			t.Fatalf("MarkLessonComplete(%s) error = %v", id, err)
		}
	}

	complete, _ := store.IsModuleComplete("a")
	if !complete {
		t.Error("module a should be complete once every lesson is complete")
	}
	other, _ := store.IsModuleComplete("b")
	if other {
		t.Error("completion must not leak into module b")
	}
}

func TestMemoryStore_PercentageMatchesCompletion(t *testing.T) {
	cat := testCatalog(t)
	store := progress.NewMemoryStore(cat)

	check := func() {
		t.Helper()
		for _, m := range cat.AllModules() {
			p, err := store.ModuleProgress(m.ID)
			if err != nil {
				t.Fatalf("ModuleProgress(%s) error = %v", m.ID, err)
			}
			if p.Percentage != progress.Percentage(p.CompletedCount, p.TotalCount) {
				t.Errorf("module %s percentage = %d, inconsistent with %d/%d", m.ID, p.Percentage, p.CompletedCount, p.TotalCount)
			}
			complete, _ := store.IsModuleComplete(m.ID)
			if (p.Percentage == 100) != complete {
				t.Errorf("module %s: percentage %d but complete = %v", m.ID, p.Percentage, complete)
			}
		}
	}

	check()
	for _, m := range cat.AllModules() {
		for _, l := range m.Lessons {
			if err := store.MarkLessonComplete(l.ID); err != nil {
				t.Fatalf("MarkLessonComplete(%s) error = %v", l.ID, err)
			}
			check()
		}
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := progress.NewMemoryStore(testCatalog(t))

	if err := store.MarkLessonComplete("zz"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("MarkLessonComplete(zz) error = %v, want ErrNotFound", err)
	}
	if _, err := store.IsLessonComplete("zz"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("IsLessonComplete(zz) error = %v, want ErrNotFound", err)
	}
	if _, err := store.IsModuleComplete("zz"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("IsModuleComplete(zz) error = %v, want ErrNotFound", err)
	}
	if _, err := store.ModuleProgress("zz"); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("ModuleProgress(zz) error = %v, want ErrNotFound", err)
	}
}

func TestSeed(t *testing.T) {
	cat := testCatalog(t)
	store := progress.NewMemoryStore(cat)

	if err := progress.Seed(store, cat); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	done, _ := store.IsLessonComplete("b1")
	if !done {
		t.Error("b1 is flagged completed in content and should be seeded")
	}
	done, _ = store.IsLessonComplete("a1")
	if done {
		t.Error("a1 is not flagged completed and should not be seeded")
	}
	complete, _ := store.IsModuleComplete("b")
	if complete {
		t.Error("module b has b2 pending")
	}
}

func testCatalog(t *testing.T) *course.Catalog {
	t.Helper()
	cat, err := course.NewCatalog(course.Course{
		ID: "test",
		Modules: []course.Module{
			{ID: "a", Lessons: []course.Lesson{
				{ID: "a1", Kind: course.KindVideo},
				{ID: "a2", Kind: course.KindReading},
				{ID: "a3", Kind: course.KindReading},
			}},
			{ID: "b", Lessons: []course.Lesson{
				{ID: "b1", Kind: course.KindVideo, Completed: true},
				{ID: "b2", Kind: course.KindReading},
			}},
		},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return cat
}
