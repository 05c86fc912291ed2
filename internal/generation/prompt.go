package generation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoSeedURLs = errors.New("no seed URLs provided")

// Request is what a person submits to start a playbook run.
type Request struct {
	SeedURLs    []string `json:"seedUrls"`
	Industry    string   `json:"industry"`
	Region      string   `json:"region"`
	Persona     string   `json:"persona"`
	Keywords    string   `json:"keywords,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}

// CleanURLs trims every entry and drops blanks.
func (r Request) CleanURLs() []string {
	out := make([]string, 0, len(r.SeedURLs))
	for _, u := range r.SeedURLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// BuildPrompt renders the instruction sent to the orchestration agent.
func BuildPrompt(r Request) (string, error) {
	urls := r.CleanURLs()
	if len(urls) == 0 {
		return "", ErrNoSeedURLs
	}

	keywords := ""
	if k := strings.TrimSpace(r.Keywords); k != "" {
		keywords = "- Keywords: " + k
	}

	return fmt.Sprintf(`Generate an ABM playbook from the following seed URLs:
%s

Filters:
- Industry: %s
- Region: %s
- Persona Focus: %s
%s

Please run the full pipeline: discover sources, acquire documents, parse content, summarize reports, extract personas, extract contributors, enrich contacts, and generate personalized ABM emails.`,
		strings.Join(urls, "\n"), r.Industry, r.Region, r.Persona, keywords), nil
}
