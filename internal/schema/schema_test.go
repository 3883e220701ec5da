package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassesMatchingObject(t *testing.T) {
	s, err := Compile(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, s.Validate(map[string]interface{}{"name": "World"}))
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	s, err := Compile(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
		},
	})
	require.NoError(t, err)
	assert.Error(t, s.Validate(map[string]interface{}{}))
}

func TestValidateRejectsWrongType(t *testing.T) {
	s, err := Compile(map[string]interface{}{"type": "string"})
	require.NoError(t, err)
	assert.Error(t, s.Validate(42))
}

func TestNilSchemaAlwaysValidates(t *testing.T) {
	var s *Schema
	assert.NoError(t, s.Validate("anything"))

	compiled, err := Compile(nil)
	require.NoError(t, err)
	assert.Nil(t, compiled)
}

func TestValidatorCachesCompiledSchemas(t *testing.T) {
	v := NewValidator()
	def := map[string]interface{}{"type": "object"}

	s1, err := v.Get("task-a/v1:input", def)
	require.NoError(t, err)
	s2, err := v.Get("task-a/v1:input", def)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}
