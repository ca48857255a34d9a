// Package course holds the immutable content model of a course and the
// loader that builds it from a YAML course document.
package course

import (
	"fmt"
	"slices"
	"strings"
)

// Catalog is a read-only, indexed view of a course. It is safe for
// concurrent use because nothing mutates it after construction. Modules and
// lessons handed out by its accessors are deep copies, so callers may modify
// them freely.
type Catalog struct {
	id        string
	title     string
	modules   []Module
	moduleIdx map[string]int
	lessonPos map[string]Position
}

// NewCatalog validates c and indexes it for lookups by id.
func NewCatalog(c Course) (*Catalog, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}

	cat := &Catalog{
		id:        c.ID,
		title:     c.Title,
		modules:   cloneModules(c.Modules),
		moduleIdx: make(map[string]int, len(c.Modules)),
		lessonPos: make(map[string]Position),
	}
	for mi, m := range c.Modules {
		cat.moduleIdx[m.ID] = mi
		for li, l := range m.Lessons {
			cat.lessonPos[l.ID] = Position{Module: mi, Lesson: li}
		}
	}
	return cat, nil
}

// ID returns the course id.
func (c *Catalog) ID() string { return c.id }

// Title returns the course title.
func (c *Catalog) Title() string { return c.title }

// GetModule returns a module by id.
func (c *Catalog) GetModule(moduleID string) (Module, error) {
	i, ok := c.moduleIdx[moduleID]
	if !ok {
		return Module{}, &NotFoundError{Kind: "module", ID: moduleID}
	}
	return cloneModule(c.modules[i]), nil
}

// GetLesson returns a lesson and its owning module.
func (c *Catalog) GetLesson(lessonID string) (Module, Lesson, error) {
	pos, err := c.Locate(lessonID)
	if err != nil {
		return Module{}, Lesson{}, err
	}
	m := cloneModule(c.modules[pos.Module])
	return m, m.Lessons[pos.Lesson], nil
}

// Locate returns the position of a lesson in the course tree.
func (c *Catalog) Locate(lessonID string) (Position, error) {
	pos, ok := c.lessonPos[lessonID]
	if !ok {
		return Position{}, &NotFoundError{Kind: "lesson", ID: lessonID}
	}
	return pos, nil
}

// At returns the module and lesson at pos. It panics on an out of range
// position, which can only come from a bug in the caller.
func (c *Catalog) At(pos Position) (Module, Lesson) {
	m := cloneModule(c.modules[pos.Module])
	return m, m.Lessons[pos.Lesson]
}

// AllModules returns the modules in course order.
func (c *Catalog) AllModules() []Module {
	return cloneModules(c.modules)
}

// ModuleCount returns the number of modules.
func (c *Catalog) ModuleCount() int { return len(c.modules) }

func cloneModules(ms []Module) []Module {
	out := make([]Module, len(ms))
	for i, m := range ms {
		out[i] = cloneModule(m)
	}
	return out
}

func cloneModule(m Module) Module {
	lessons := make([]Lesson, len(m.Lessons))
	for i, l := range m.Lessons {
		lessons[i] = cloneLesson(l)
	}
	m.Lessons = lessons
	return m
}

func cloneLesson(l Lesson) Lesson {
	if l.Questions != nil {
		qs := make([]Question, len(l.Questions))
		for i, q := range l.Questions {
			q.Options = slices.Clone(q.Options)
			qs[i] = q
		}
		l.Questions = qs
	}
	if l.Assignment != nil {
		a := *l.Assignment
		a.Requirements = slices.Clone(a.Requirements)
		l.Assignment = &a
	}
	return l
}

// Validate checks the structural invariants of a course: non-empty modules,
// globally unique ids, and well-formed quiz and assignment content.
func Validate(c Course) error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	moduleIDs := make(map[string]bool)
	lessonIDs := make(map[string]bool)
	questionIDs := make(map[string]bool)

	if len(c.Modules) == 0 {
		addf("course has no modules")
	}

	for mi, m := range c.Modules {
		if strings.TrimSpace(m.ID) == "" {
			addf("module %d has no id", mi)
		} else if moduleIDs[m.ID] {
			addf("duplicate module id %q", m.ID)
		}
		moduleIDs[m.ID] = true

		if len(m.Lessons) == 0 {
			addf("module %q has no lessons", m.ID)
		}

		for li, l := range m.Lessons {
			if strings.TrimSpace(l.ID) == "" {
				addf("lesson %d in module %q has no id", li, m.ID)
				continue
			}
			if lessonIDs[l.ID] {
				addf("duplicate lesson id %q", l.ID)
			}
			lessonIDs[l.ID] = true

			if !l.Kind.Valid() {
				addf("lesson %q has unknown kind %q", l.ID, l.Kind)
			}

			switch l.Kind {
			case KindQuiz:
				if len(l.Questions) == 0 {
					addf("quiz lesson %q has no questions", l.ID)
				}
				for _, q := range l.Questions {
					if questionIDs[q.ID] {
						addf("duplicate question id %q", q.ID)
					}
					questionIDs[q.ID] = true
					if !q.HasOption(q.CorrectOptionID) {
						addf("question %q: correct option %q is not one of its options", q.ID, q.CorrectOptionID)
					}
				}
			case KindAssignment:
				if l.Assignment == nil {
					addf("assignment lesson %q has no assignment", l.ID)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ContentError{Problems: problems}
	}
	return nil
}
