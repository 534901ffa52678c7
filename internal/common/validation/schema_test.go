package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateInput(t *testing.T) {
	schema := JSONSchema{
		Type: "object",
		Properties: map[string]Property{
			"targetUserEmail": {Type: "string"},
		},
		AdditionalProperties: false,
	}

	tests := []struct {
		name        string
		input       map[string]interface{}
		expectValid bool
	}{
		{
			name:        "empty body is valid",
			input:       map[string]interface{}{},
			expectValid: true,
		},
		{
			name:        "known string property",
			input:       map[string]interface{}{"targetUserEmail": "alice@example.com"},
			expectValid: true,
		},
		{
			name:        "wrong type rejected",
			input:       map[string]interface{}{"targetUserEmail": 42},
			expectValid: false,
		},
		{
			name:        "unknown property rejected",
			input:       map[string]interface{}{"surprise": true},
			expectValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateInput(tt.input, schema)
			assert.NoError(t, err)
			assert.Equal(t, tt.expectValid, result.Valid)
			if !tt.expectValid {
				assert.NotEmpty(t, result.Errors)
			}
		})
	}
}

func TestValidateInput_RequiredField(t *testing.T) {
	schema := JSONSchema{
		Type: "object",
		Properties: map[string]Property{
			"userId": {Type: "string"},
		},
		Required:             []string{"userId"},
		AdditionalProperties: false,
	}

	result, err := ValidateInput(map[string]interface{}{}, schema)
	assert.NoError(t, err)
	assert.False(t, result.Valid)
}
