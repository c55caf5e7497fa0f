package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema *gojsonschema.Schema

func schema() (*gojsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}

	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("config: compile schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// validateStructure validates a decoded YAML/JSON document (as plain
// Go values: map[string]any, []any, etc.) against schema.json, failing
// closed on anything the document gets structurally wrong before it
// ever reaches the pipeline.
func validateStructure(doc any) error {
	s, err := schema()
	if err != nil {
		return err
	}

	result, err := s.Validate(gojsonschema.NewRawLoader(doc))
	if err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}
