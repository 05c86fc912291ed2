package exportplaybook

import "time"

const (
	FormatContacts = "contacts"
	FormatEmails   = "emails"
)

type Input struct {
	PlaybookID    string         `json:"playbookId"`
	Formats       []string       `json:"formats,omitempty"`
	Recipient     string         `json:"recipient,omitempty"`
	ContactFilter *ContactFilter `json:"contactFilter,omitempty"`
	Notify        bool           `json:"notify,omitempty"`
	// Inline returns the rendered files in the job variables as well.
	Inline bool `json:"inline,omitempty"`
}

type ContactFilter struct {
	Query           string `json:"query,omitempty"`
	Confidence      string `json:"confidence,omitempty"`
	NeedsReviewOnly bool   `json:"needsReviewOnly,omitempty"`
}

// File is one rendered artifact.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Content     string `json:"content,omitempty"`
}

type Output struct {
	PlaybookID       string    `json:"playbookId"`
	Files            []File    `json:"files"`
	ContactsExported int       `json:"contactsExported"`
	SequencesCount   int       `json:"sequencesExported"`
	EmailMessageID   string    `json:"emailMessageId,omitempty"`
	NotificationID   string    `json:"notificationId,omitempty"`
	ExportedAt       time.Time `json:"exportedAt"`
}

const inputSchema = `{
	"type": "object",
	"required": ["playbookId"],
	"properties": {
		"playbookId": {"type": "string", "minLength": 1, "maxLength": 255},
		"formats": {
			"type": "array",
			"items": {"type": "string", "enum": ["contacts", "emails"]},
			"uniqueItems": true
		},
		"recipient": {"type": "string", "maxLength": 320},
		"contactFilter": {
			"type": "object",
			"properties": {
				"query": {"type": "string", "maxLength": 200},
				"confidence": {"type": "string", "enum": ["", "all", "high", "medium", "low"]},
				"needsReviewOnly": {"type": "boolean"}
			}
		},
		"notify": {"type": "boolean"},
		"inline": {"type": "boolean"}
	}
}`
