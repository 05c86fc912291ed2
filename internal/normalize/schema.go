// Package normalize turns loosely shaped orchestration-agent responses into
// canonical playbooks. Everything in it is pure and safe for concurrent use.
package normalize

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Schema selects which payload variant the agent is expected to emit.
type Schema string

const (
	// SchemaMultiReport payloads carry a "reports" array.
	SchemaMultiReport Schema = "multi_report"
	// SchemaSingleReport payloads carry top-level "key_claims".
	SchemaSingleReport Schema = "single_report"
)

// ParseSchema maps a configuration value onto a Schema. Empty selects the
// multi-report variant.
func ParseSchema(s string) (Schema, error) {
	switch Schema(s) {
	case "", SchemaMultiReport:
		return SchemaMultiReport, nil
	case SchemaSingleReport:
		return SchemaSingleReport, nil
	default:
		return "", fmt.Errorf("unknown playbook schema %q", s)
	}
}

// Marker is the field that must hold an array in a valid payload.
func (s Schema) Marker() string {
	if s == SchemaSingleReport {
		return "key_claims"
	}
	return "reports"
}

// Matches reports whether node is an object carrying the marker array.
func (s Schema) Matches(node gjson.Result) bool {
	if !node.IsObject() {
		return false
	}
	return node.Get(s.Marker()).IsArray()
}
