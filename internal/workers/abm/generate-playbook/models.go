package generateplaybook

import (
	"time"

	"abm-playbook-workers/internal/generation"
)

type Input struct {
	SeedURLs    []string `json:"seedUrls"`
	Industry    string   `json:"industry"`
	Region      string   `json:"region"`
	Persona     string   `json:"persona"`
	Keywords    string   `json:"keywords,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}

func (i *Input) request() generation.Request {
	return generation.Request{
		SeedURLs:    i.SeedURLs,
		Industry:    i.Industry,
		Region:      i.Region,
		Persona:     i.Persona,
		Keywords:    i.Keywords,
		RequestedBy: i.RequestedBy,
	}
}

type Output struct {
	PlaybookID      string    `json:"playbookId"`
	AttemptID       string    `json:"attemptId"`
	ArchiveID       string    `json:"archiveId,omitempty"`
	Strategy        string    `json:"normalizeStrategy"`
	PipelineStatus  string    `json:"pipelineStatus"`
	GeneratedAt     time.Time `json:"generatedAt"`
	TotalReports    int       `json:"totalReports"`
	TotalContacts   int       `json:"totalContacts"`
	TotalEmails     int       `json:"totalEmails"`
	ContactsIndexed int       `json:"contactsIndexed"`
	DurationMs      int64     `json:"durationMs"`
}

const inputSchema = `{
	"type": "object",
	"required": ["seedUrls"],
	"properties": {
		"seedUrls": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "maxLength": 2048}
		},
		"industry": {"type": "string", "maxLength": 200},
		"region": {"type": "string", "maxLength": 200},
		"persona": {"type": "string", "maxLength": 200},
		"keywords": {"type": "string", "maxLength": 1000},
		"requestedBy": {"type": "string", "maxLength": 255}
	}
}`
