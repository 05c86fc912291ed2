package repository

import (
	"strings"

	"abm-playbook-workers/internal/models"
)

// AllContacts flattens the contacts of every playbook, keeping the first
// occurrence of each exact (email, full_name) pair.
func AllContacts(playbooks []*models.Playbook) []models.Contact {
	type key struct{ email, name string }

	seen := make(map[key]struct{})
	out := make([]models.Contact, 0)
	for _, pb := range playbooks {
		if pb == nil {
			continue
		}
		for _, c := range pb.EnrichedContacts {
			k := key{c.Email, c.FullName}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// ContactFilter narrows a contact list. Zero values match everything.
type ContactFilter struct {
	// Query is matched case-insensitively against name, company and title.
	Query string `json:"query,omitempty"`
	// Confidence must equal the contact's confidence exactly; "all" matches any.
	Confidence      string `json:"confidence,omitempty"`
	NeedsReviewOnly bool   `json:"needsReviewOnly,omitempty"`
}

func (f ContactFilter) Match(c models.Contact) bool {
	if q := strings.ToLower(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(c.FullName), q) &&
			!strings.Contains(strings.ToLower(c.Company), q) &&
			!strings.Contains(strings.ToLower(c.JobTitle), q) {
			return false
		}
	}
	if f.Confidence != "" && f.Confidence != "all" && c.Confidence != f.Confidence {
		return false
	}
	if f.NeedsReviewOnly && !c.NeedsReview {
		return false
	}
	return true
}

func FilterContacts(contacts []models.Contact, f ContactFilter) []models.Contact {
	out := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	return out
}
