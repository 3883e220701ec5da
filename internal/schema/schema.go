// Package schema validates task/workflow input and output values against
// the JSON-schema-shaped definitions named in §3 ("Schemas (inputSchema,
// outputSchema) should be validated at entry and exit... though schema
// validation semantics follow the linked schema definitions") and in the
// `llm` handler's `jsonSchema` field. No pack example validates JSON
// Schema directly, but kin-openapi's Schema type implements the OpenAPI
// 3 Schema Object, a close superset of the JSON Schema subset this engine
// needs (type/properties/required/items/enum/format), and is already the
// pack's only schema-object library — reused here rather than adding a
// second one.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Schema is a compiled validator for one schema definition.
type Schema struct {
	raw *openapi3.Schema
}

// Compile parses a raw schema definition (as loaded from YAML/JSON into a
// generic interface{}) into a Schema. A nil definition compiles to a nil
// Schema whose Validate is a no-op.
func Compile(raw interface{}) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: marshaling definition: %w", err)
	}
	var s openapi3.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("schema: parsing definition: %w", err)
	}
	return &Schema{raw: &s}, nil
}

// Validate checks value against the compiled schema. A nil receiver
// (no schema was configured) always succeeds.
func (s *Schema) Validate(value interface{}) error {
	if s == nil || s.raw == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("schema: marshaling value: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("schema: unmarshaling value: %w", err)
	}
	return s.raw.VisitJSON(v)
}

// Validator caches compiled schemas by an owner-provided key (typically
// "<taskId>/<version>:input" or similar) so a task invoked repeatedly
// doesn't re-parse its schema definition on every run.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*Schema
}

// NewValidator builds an empty schema cache.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*Schema)}
}

// Get returns the compiled Schema for key, compiling and caching raw on
// first use. Passing a nil raw always returns (nil, nil) without
// touching the cache.
func (v *Validator) Get(key string, raw interface{}) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.cache[key]; ok {
		return s, nil
	}
	s, err := Compile(raw)
	if err != nil {
		return nil, err
	}
	v.cache[key] = s
	return s, nil
}
