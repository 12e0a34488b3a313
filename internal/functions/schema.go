package functions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema wraps a compiled JSON Schema together with its source document.
// A nil *Schema validates everything.
type Schema struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document. The name scopes the
// schema resource so compile errors point at the owning function.
func CompileSchema(name string, doc map[string]any) (*Schema, error) {
	if doc == nil {
		return nil, nil
	}

	// Round-trip through JSON so YAML-decoded values (ints, nested
	// map[string]any) become canonical JSON values the compiler accepts.
	normalized, err := normalizeJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing schema: %w", err)
	}

	url := fmt.Sprintf("basalt:///functions/%s/schema.json", name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, normalized); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Schema{doc: doc, compiled: compiled}, nil
}

// Validate checks an instance against the schema.
func (s *Schema) Validate(instance any) error {
	if s == nil {
		return nil
	}
	normalized, err := normalizeJSON(instance)
	if err != nil {
		return err
	}
	return s.compiled.Validate(normalized)
}

// Doc returns the source schema document.
func (s *Schema) Doc() map[string]any {
	if s == nil {
		return nil
	}
	return s.doc
}

// MarshalJSON serializes the source document, not the compiled form.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.doc)
}

func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
