package config

import (
	"fmt"
	"os"

	"address-intelligence/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

type templatesFile struct {
	Templates []entity.FilterTemplate `yaml:"templates"`
}

// LoadFilterTemplates reads extra cohort templates from a YAML file. An empty
// path yields no templates.
func LoadFilterTemplates(path string) ([]entity.FilterTemplate, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}
	return ParseFilterTemplates(b)
}

// ParseFilterTemplates decodes and validates a templates document
func ParseFilterTemplates(b []byte) ([]entity.FilterTemplate, error) {
	var f templatesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	for i := range f.Templates {
		t := &f.Templates[i]
		if t.Name == "" {
			return nil, fmt.Errorf("template %d: missing name", i)
		}
		if err := t.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
	}
	return f.Templates, nil
}
