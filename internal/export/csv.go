// Package export renders playbook data as downloadable files.
package export

import (
	"strings"

	"abm-playbook-workers/internal/models"
)

const (
	ContactsFileName    = "contacts.csv"
	ContactsContentType = "text/csv"
)

var contactHeaders = []string{
	"Name", "Title", "Company", "Org Unit", "Location", "LinkedIn",
	"Email", "Confidence", "Needs Review", "Source Reports", "Persona Tags",
}

// ContactsCSV renders contacts with a bare header row and every data field
// quoted. Rows are separated by a single newline with none after the last.
func ContactsCSV(contacts []models.Contact) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(contactHeaders, ","))

	for _, c := range contacts {
		needsReview := "No"
		if c.NeedsReview {
			needsReview = "Yes"
		}
		fields := []string{
			c.FullName, c.JobTitle, c.Company, c.OrgUnit, c.Location,
			c.LinkedInURL, c.Email, c.Confidence, needsReview,
			strings.Join(c.SourceReports, "; "),
			strings.Join(c.PersonaTags, "; "),
		}

		b.WriteByte('\n')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return []byte(b.String())
}
