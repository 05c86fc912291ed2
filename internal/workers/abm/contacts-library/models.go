package contactslibrary

import "abm-playbook-workers/internal/models"

const (
	SourceHistory = "history"
	SourceIndex   = "index"
)

type Input struct {
	Query           string `json:"query,omitempty"`
	Confidence      string `json:"confidence,omitempty"`
	NeedsReviewOnly bool   `json:"needsReviewOnly,omitempty"`
	// Source selects the saved history (default) or the contact search index.
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type Output struct {
	Contacts []models.Contact `json:"contacts"`
	// Total is the number of distinct contacts before filtering. The index
	// reports matches only, so there it equals Matched.
	Total     int    `json:"totalContacts"`
	Matched   int    `json:"matchedContacts"`
	Truncated bool   `json:"truncated"`
	Source    string `json:"source"`
	Playbooks int    `json:"playbooksScanned,omitempty"`
}

const inputSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "maxLength": 200},
		"confidence": {"type": "string", "enum": ["", "all", "high", "medium", "low"]},
		"needsReviewOnly": {"type": "boolean"},
		"source": {"type": "string", "enum": ["", "history", "index"]},
		"limit": {"type": "integer", "minimum": 0}
	}
}`
