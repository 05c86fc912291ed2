package normalize

import (
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("(?s)```(?i:json)?[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSONSpan returns the most likely JSON value embedded in text.
//
// A fenced code block whose body starts with '{' or '[' wins outright.
// Otherwise the first '{' or '[' opens a span that runs to its balanced
// closing bracket, ignoring brackets inside string literals. A span that
// never closes runs to the end of text and is returned as is; the parser
// decides whether it is usable.
func ExtractJSONSpan(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, m := range fencedBlockPattern.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			return body, true
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}

	open := text[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
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

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// truncated
	return text[start:], true
}
