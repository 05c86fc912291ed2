package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseLoosely_Success(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, v gjson.Result)
	}{
		{
			name:  "strict json",
			input: `{"reports": [], "n": 3}`,
			check: func(t *testing.T, v gjson.Result) {
				assert.True(t, v.Get("reports").IsArray())
				assert.Equal(t, int64(3), v.Get("n").Int())
			},
		},
		{
			name:  "json embedded in prose",
			input: `Here is the playbook you asked for: {"playbook_id": "pb-1"} Let me know!`,
			check: func(t *testing.T, v gjson.Result) {
				assert.Equal(t, "pb-1", v.Get("playbook_id").String())
			},
		},
		{
			name:  "fenced block preferred over outer json",
			input: "{\"source\": \"outer\"}\n\nFinal answer:\n```json\n{\"source\": \"fenced\"}\n```\n",
			check: func(t *testing.T, v gjson.Result) {
				assert.Equal(t, "fenced", v.Get("source").String())
			},
		},
		{
			name:  "repair trailing commas and python literals",
			input: "{\"a\": True, \"b\": False, \"c\": None, \"d\": [1, 2,],}",
			check: func(t *testing.T, v gjson.Result) {
				assert.Equal(t, gjson.True, v.Get("a").Type)
				assert.Equal(t, gjson.False, v.Get("b").Type)
				assert.Equal(t, gjson.Null, v.Get("c").Type)
				assert.True(t, v.Get("c").Exists())
				assert.Len(t, v.Get("d").Array(), 2)
			},
		},
		{
			name:  "repair leaves string literals untouched",
			input: "{\"s\": \"True, None,]\", \"t\": True,\n}",
			check: func(t *testing.T, v gjson.Result) {
				assert.Equal(t, "True, None,]", v.Get("s").String())
				assert.Equal(t, gjson.True, v.Get("t").Type)
			},
		},
		{
			name:  "repair does not rewrite identifiers that merely contain literals",
			input: "{\"k\": \"x\", \"v\": [Nonesuch]}",
			check: nil,
		},
		{
			name:  "top level array",
			input: "```json\n[{\"a\": 1},]\n```",
			check: func(t *testing.T, v gjson.Result) {
				assert.True(t, v.IsArray())
				assert.Len(t, v.Array(), 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ParseLoosely(tt.input)
			if tt.check == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			tt.check(t, v)
		})
	}
}

func TestParseLoosely_Failure(t *testing.T) {
	inputs := map[string]string{
		"empty":                "",
		"prose only":           "I could not find any reports for these URLs.",
		"truncated stream":     `{"reports": [{"title": "Cloud Outlook"}], "personas": [`,
		"missing final brace":  `{"reports": [{"title": "Cloud Outlook"}]`,
		"lone bracket":         "see {",
		"unterminated string":  `{"a": "abc`,
		"dangling escape":      `{"a": "\`,
		"deep open brackets":   strings.Repeat("[", 2000),
		"garbage between keys": `{"a": 1 "b": 2}`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := ParseLoosely(input)
				assert.False(t, ok)
			})
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1,}`, `{"a": 1}`},
		{"[1, 2 ,\n ]", "[1, 2 \n ]"},
		{`{"a": True}`, `{"a": true}`},
		{`[None, False]`, `[null, false]`},
		{`{"True": "None,}"}`, `{"True": "None,}"}`},
		{`{"a": TrueValue}`, `{"a": TrueValue}`},
		{`{"a": "esc \" None,]"}`, `{"a": "esc \" None,]"}`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, repairJSON(tt.in), tt.in)
	}
}
