package normalize

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ParseLoosely parses text that should contain JSON but may be wrapped in
// prose, fenced, or carry a few well-known defects. Attempts, first win:
// strict parse of the whole text, strict parse of the extracted span, and
// strict parse of the span after repair. It never panics.
func ParseLoosely(text string) (gjson.Result, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return gjson.Result{}, false
	}
	if gjson.Valid(trimmed) {
		return gjson.Parse(trimmed), true
	}

	span, ok := ExtractJSONSpan(text)
	if !ok {
		return gjson.Result{}, false
	}
	if gjson.Valid(span) {
		return gjson.Parse(span), true
	}

	repaired := repairJSON(span)
	if gjson.Valid(repaired) {
		return gjson.Parse(repaired), true
	}
	return gjson.Result{}, false
}

var pythonLiterals = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
}

// repairJSON drops trailing commas before a closing bracket and rewrites
// Python literals. String literals are copied through untouched.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
		case isIdentStart(c) && (i == 0 || !isIdentPart(s[i-1])):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if lit, ok := pythonLiterals[word]; ok {
				word = lit
			}
			b.WriteString(word)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
