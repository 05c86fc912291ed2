package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"type": "object",
	"required": ["urls"],
	"properties": {
		"urls": {"type": "array", "minItems": 1, "items": {"type": "string"}},
		"region": {"type": "string"}
	}
}`

func TestSchemaValidate(t *testing.T) {
	s := MustCompile(testSchema)

	tests := []struct {
		name      string
		doc       string
		valid     bool
		errorOn   string
		errorCode string
	}{
		{"valid", `{"urls":["https://example.com/report.pdf"],"region":"EMEA"}`, true, "", ""},
		{"missing required", `{"region":"EMEA"}`, false, "(root)", "REQUIRED"},
		{"empty array", `{"urls":[]}`, false, "urls", "ARRAY_MIN_ITEMS"},
		{"wrong type", `{"urls":["a"],"region":5}`, false, "region", "INVALID_TYPE"},
		{"not json", `{urls`, false, "(root)", "INVALID_DOCUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(tt.doc)
			assert.Equal(t, tt.valid, res.Valid)
			if tt.valid {
				assert.NoError(t, res.Err())
				return
			}
			require.Error(t, res.Err())
			assert.True(t, res.HasErrors(tt.errorOn), res.GetErrorMessages())
			assert.Equal(t, tt.errorCode, res.Errors[0].Code)
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile(`not a schema`) })
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("jane.doe@example.co.uk"))
	assert.False(t, ValidateEmail("jane.doe@"))
	assert.False(t, ValidateEmail(""))
}

func TestValidateURL(t *testing.T) {
	assert.True(t, ValidateURL("https://example.com/reports/2024.pdf"))
	assert.True(t, ValidateURL("http://example.com"))
	assert.False(t, ValidateURL("ftp://example.com/file"))
	assert.False(t, ValidateURL("example.com"))
	assert.False(t, ValidateURL("https:// spaced.com"))
}
