package course_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
)

const sampleCourse = `
id: go-101
title: "Go Fundamentals"
modules:
  - id: m1
    title: "Getting Started"
    duration: "45 min"
    lessons:
      - id: m1-intro
        title: "Welcome"
        duration: "5 min"
        kind: video
        completed: true
      - id: m1-reading
        title: "Installing Go"
        kind: reading
      - id: m1-quiz
        title: "Checkpoint"
        kind: quiz
        questions:
          - id: q1
            prompt: "Which keyword declares a function?"
            options:
              - {id: a, text: "func"}
              - {id: b, text: "def"}
            correct_option_id: a
  - id: m2
    title: "Projects"
    locked: true
    lessons:
      - id: m2-project
        title: "Build a CLI"
        kind: assignment
        assignment:
          id: as1
          title: "CLI tool"
          description: "Write a small command-line tool."
          deadline: "Friday"
          requirements:
            - "Parse flags"
            - "Print help"
`

func TestParse(t *testing.T) {
	cat, err := course.Parse([]byte(sampleCourse))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cat.ID() != "go-101" {
		t.Errorf("ID() = %q, want go-101", cat.ID())
	}
	modules := cat.AllModules()
	if len(modules) != 2 {
		t.Fatalf("AllModules() = %d modules, want 2", len(modules))
	}
	if modules[0].ID != "m1" || modules[1].ID != "m2" {
		t.Errorf("module order = [%s %s], want [m1 m2]", modules[0].ID, modules[1].ID)
	}
	if !modules[1].Locked {
		t.Error("m2 should be locked")
	}
	if !modules[0].Lessons[0].Completed {
		t.Error("m1-intro should carry its initial completed flag")
	}
}

func TestCatalog_GetLesson(t *testing.T) {
	cat := mustParse(t, sampleCourse)

	m, l, err := cat.GetLesson("m1-quiz")
	if err != nil {
		t.Fatalf("GetLesson() error = %v", err)
	}
	if m.ID != "m1" {
		t.Errorf("module = %q, want m1", m.ID)
	}
	if l.Kind != course.KindQuiz {
		t.Errorf("Kind = %q, want quiz", l.Kind)
	}
	if len(l.Questions) != 1 {
		t.Errorf("Questions = %d, want 1", len(l.Questions))
	}

	pos, err := cat.Locate("m1-quiz")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if pos != (course.Position{Module: 0, Lesson: 2}) {
		t.Errorf("Locate() = %+v, want {0 2}", pos)
	}
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	cat := mustParse(t, sampleCourse)

	m, err := cat.GetModule("m1")
	if err != nil {
		t.Fatalf("GetModule() error = %v", err)
	}
	m.Lessons[0].ID = "changed"
	m.Lessons[0].Locked = true
	m.Lessons[2].Questions[0].Options[0].ID = "changed"

	all := cat.AllModules()
	all[0].Lessons[1].Title = "changed"

	_, l, _ := cat.GetLesson("m1-quiz")
	l.Questions[0].CorrectOptionID = "changed"

	again, _ := cat.GetModule("m1")
	if again.Lessons[0].ID == "changed" || again.Lessons[0].Locked {
		t.Error("GetModule() lessons share storage with the catalog")
	}
	if again.Lessons[1].Title == "changed" {
		t.Error("AllModules() lessons share storage with the catalog")
	}
	q := again.Lessons[2].Questions[0]
	if q.Options[0].ID == "changed" || q.CorrectOptionID == "changed" {
		t.Error("question data shares storage with the catalog")
	}
}

func TestCatalog_NotFound(t *testing.T) {
	cat := mustParse(t, sampleCourse)

	_, _, err := cat.GetLesson("missing")
	if !errors.Is(err, course.ErrNotFound) {
		t.Errorf("GetLesson(missing) error = %v, want ErrNotFound", err)
	}

	_, err = cat.GetModule("missing")
	var nf *course.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("GetModule(missing) error = %v, want *NotFoundError", err)
	}
	if nf.Kind != "module" || nf.ID != "missing" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty module", `
id: c
modules:
  - id: m1
    lessons: []
`},
		{"unknown kind", `
id: c
modules:
  - id: m1
    lessons:
      - {id: l1, kind: podcast}
`},
		{"no modules", `
id: c
modules: []
`},
		{"empty document", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := course.Parse([]byte(tt.doc))
			var ce *course.ContentError
			if !errors.As(err, &ce) {
				t.Fatalf("Parse() error = %v, want *ContentError", err)
			}
		})
	}
}

func TestParse_StructuralViolations(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{"duplicate lesson across modules", `
id: c
modules:
  - id: m1
    lessons:
      - {id: l1, kind: video}
  - id: m2
    lessons:
      - {id: l1, kind: reading}
`, `duplicate lesson id "l1"`},
		{"correct option missing", `
id: c
modules:
  - id: m1
    lessons:
      - id: l1
        kind: quiz
        questions:
          - id: q1
            prompt: "?"
            options: [{id: a, text: A}, {id: b, text: B}]
            correct_option_id: z
`, `correct option "z"`},
		{"assignment without brief", `
id: c
modules:
  - id: m1
    lessons:
      - {id: l1, kind: assignment}
`, `has no assignment`},
		{"quiz without questions", `
id: c
modules:
  - id: m1
    lessons:
      - {id: l1, kind: quiz}
`, `has no questions`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := course.Parse([]byte(tt.doc))
			var ce *course.ContentError
			if !errors.As(err, &ce) {
				t.Fatalf("Parse() error = %v, want *ContentError", err)
			}
			if !strings.Contains(ce.Error(), tt.problem) {
				t.Errorf("error %q should mention %q", ce.Error(), tt.problem)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "course.yaml")
	if err := os.WriteFile(path, []byte(sampleCourse), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := course.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cat.ModuleCount() != 2 {
		t.Errorf("ModuleCount() = %d, want 2", cat.ModuleCount())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := course.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadFile() should fail for a missing file")
	}
}

func TestKind(t *testing.T) {
	if !course.KindQuiz.Graded() || !course.KindAssignment.Graded() {
		t.Error("quiz and assignment should be graded")
	}
	if course.KindVideo.Graded() || course.KindReading.Graded() {
		t.Error("video and reading should not be graded")
	}
	if course.Kind("podcast").Valid() {
		t.Error("podcast should not be a valid kind")
	}
}

func mustParse(t *testing.T, doc string) *course.Catalog {
	t.Helper()
	cat, err := course.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cat
}
