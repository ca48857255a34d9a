package course

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var courseSchema = gojsonschema.NewStringLoader(schemaJSON)

// LoadFile reads a YAML course document and builds a catalog from it.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading course file: %w", err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading course %s: %w", path, err)
	}

	slog.Info("course loaded",
		"path", path,
		"course_id", cat.ID(),
		"modules", cat.ModuleCount(),
		"lessons", len(cat.lessonPos),
	)
	return cat, nil
}

// Parse decodes a YAML course document, checks it against the course schema
// and builds a catalog. The whole tree is loaded at once.
func Parse(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding course YAML: %w", err)
	}
	if raw == nil {
		return nil, &ContentError{Problems: []string{"document is empty"}}
	}

	result, err := gojsonschema.Validate(courseSchema, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating course schema: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, &ContentError{Problems: problems}
	}

	var c Course
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding course YAML: %w", err)
	}
	return NewCatalog(c)
}
