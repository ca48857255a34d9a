package course

// Kind is the content kind of a lesson. It decides how the lesson is completed.
type Kind string

const (
	KindVideo      Kind = "video"
	KindReading    Kind = "reading"
	KindQuiz       Kind = "quiz"
	KindAssignment Kind = "assignment"
)

// Valid reports whether k is one of the known content kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindReading, KindQuiz, KindAssignment:
		return true
	}
	return false
}

// Graded reports whether completing the lesson requires an assessment.
func (k Kind) Graded() bool {
	return k == KindQuiz || k == KindAssignment
}

// Course is the full content tree loaded from a course document.
type Course struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Modules []Module `yaml:"modules"`
}

// Module is an ordered group of lessons.
type Module struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Duration string   `yaml:"duration"`
	Locked   bool     `yaml:"locked"`
	Lessons  []Lesson `yaml:"lessons"`
}

// Lesson is a single addressable unit of content.
type Lesson struct {
	ID         string      `yaml:"id"`
	Title      string      `yaml:"title"`
	Duration   string      `yaml:"duration"`
	Kind       Kind        `yaml:"kind"`
	Locked     bool        `yaml:"locked"`
	Completed  bool        `yaml:"completed"` // initial state only, seeds the progress store
	Questions  []Question  `yaml:"questions,omitempty"`
	Assignment *Assignment `yaml:"assignment,omitempty"`
}

// Question is a multiple-choice quiz question.
type Question struct {
	ID              string   `yaml:"id"`
	Prompt          string   `yaml:"prompt"`
	Options         []Option `yaml:"options"`
	CorrectOptionID string   `yaml:"correct_option_id"`
}

// HasOption reports whether id is one of the question's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Option is one selectable answer of a question.
type Option struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Assignment is the brief for a free-text assignment lesson.
type Assignment struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	Deadline     string   `yaml:"deadline"` // display only
	Requirements []string `yaml:"requirements"`
}

// Position indexes a lesson inside the course tree.
type Position struct {
	Module int
	Lesson int
}
