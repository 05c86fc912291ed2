package export

import (
	"fmt"
	"strings"

	"abm-playbook-workers/internal/models"
)

const (
	EmailsFileName    = "email_sequences.md"
	EmailsContentType = "text/markdown"
)

// EmailsMarkdown renders every sequence and its emails. A sequence without a
// contact name is listed as Unknown.
func EmailsMarkdown(sequences []models.EmailSequence) []byte {
	var b strings.Builder
	b.WriteString("# ABM Email Sequences\n\n")

	for _, seq := range sequences {
		name := seq.ContactName
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(&b, "## %s (%s)\n\n", name, seq.PersonaTag)

		for i, email := range seq.Emails {
			fmt.Fprintf(&b, "### Email %d: %s\n\n", i+1, email.VariantType)
			fmt.Fprintf(&b, "**Subject:** %s\n\n", email.SubjectLine)
			fmt.Fprintf(&b, "%s\n\n", email.Body)
			fmt.Fprintf(&b, "**CTA:** %s\n\n", email.CTA)
			b.WriteString("---\n\n")
		}
	}
	return []byte(b.String())
}
