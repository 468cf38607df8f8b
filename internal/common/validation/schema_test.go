package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["projectId", "freelancerId"],
  "properties": {
    "projectId": {"type": "integer", "minimum": 1},
    "freelancerId": {"type": "integer", "minimum": 1},
    "message": {"type": "string", "maxLength": 10}
  }
}`

type testDoc struct {
	ProjectID    int64  `json:"projectId,omitempty"`
	FreelancerID int64  `json:"freelancerId,omitempty"`
	Message      string `json:"message,omitempty"`
}

func newTestValidator(t *testing.T) *Validator {
	v := NewValidator()
	require.NoError(t, v.Register("doc", testSchema))
	return v
}

func TestValidate_Valid(t *testing.T) {
	v := newTestValidator(t)

	result, err := v.Validate("doc", testDoc{ProjectID: 1, FreelancerID: 2, Message: "hi"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_MissingRequired(t *testing.T) {
	v := newTestValidator(t)

	result, err := v.Validate("doc", testDoc{FreelancerID: 2})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("projectId"))
	assert.False(t, result.HasErrors("freelancerId"))
	assert.Len(t, result.GetErrorMessages(), 1)
}

func TestValidate_MaxLengthCountsCharacters(t *testing.T) {
	v := newTestValidator(t)

	// ten multi-byte characters are within a maxLength of 10
	result, err := v.Validate("doc", testDoc{ProjectID: 1, FreelancerID: 2, Message: strings.Repeat("é", 10)})
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.Validate("doc", testDoc{ProjectID: 1, FreelancerID: 2, Message: strings.Repeat("a", 11)})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("message"))
	assert.Len(t, result.GetErrorsForField("message"), 1)
}

func TestValidateJSON(t *testing.T) {
	v := newTestValidator(t)

	result, err := v.ValidateJSON("doc", []byte(`{"projectId": 0, "freelancerId": 3}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("projectId"))

	_, err = v.ValidateJSON("doc", []byte(`{not json`))
	assert.Error(t, err)
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate("missing", testDoc{})
	assert.Error(t, err)
	assert.False(t, v.Has("missing"))
}

func TestRegister_InvalidSchema(t *testing.T) {
	v := NewValidator()
	err := v.Register("broken", `{"type": 12}`)
	assert.Error(t, err)

	assert.Panics(t, func() { v.MustRegister("broken", `{`) })
}
