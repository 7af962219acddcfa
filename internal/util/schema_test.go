package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleArgs struct {
	City  string   `json:"city" description:"City name"`
	Days  int      `json:"days,omitempty" description:"Forecast days"`
	Limit *int     `json:"limit" description:"Optional result limit"`
	Tags  []string `json:"tags,omitempty"`
	skip  string   //nolint:unused
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "days")
	assert.Contains(t, props, "limit")
	assert.Contains(t, props, "tags")
	assert.NotContains(t, props, "skip")

	city := props["city"].(map[string]any)
	assert.Equal(t, "string", city["type"])
	assert.Equal(t, "City name", city["description"])

	// Required excludes pointers and omitempty fields.
	assert.ElementsMatch(t, []string{"city"}, RequiredFields(schema))
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestRequiredFields_DecodedShapes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, RequiredFields(map[string]any{"required": []string{"a", "b"}}))
	assert.Equal(t, []string{"a"}, RequiredFields(map[string]any{"required": []any{"a"}}))
	assert.Nil(t, RequiredFields(map[string]any{}))
}

func TestValidateParameters_MissingEnumerated(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
			"date": map[string]any{"type": "string"},
		},
		"required": []string{"date", "city"},
	}

	err := ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)

	missingErr, ok := err.(*MissingParamsError)
	assert.True(t, ok)
	// Sorted, all names in one error.
	assert.Equal(t, []string{"city", "date"}, missingErr.Missing)
	assert.Equal(t, "missing required parameters: city, date", err.Error())
}

func TestValidateParameters_TypeMismatch(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"count"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"count": 3}, schema))
	// JSON decoding yields float64 for numbers; whole values pass as integer.
	assert.NoError(t, ValidateParameters(map[string]any{"count": float64(3)}, schema))

	err := ValidateParameters(map[string]any{"count": "three"}, schema)
	assert.Error(t, err)
	vErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "count", vErr.Field)
	assert.Contains(t, vErr.Message, "expected type integer")
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"anything": 1}, schema))
}
