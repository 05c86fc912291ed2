package repository

import (
	"testing"

	"abm-playbook-workers/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAllContacts_DedupByExactEmailAndName(t *testing.T) {
	newer := &models.Playbook{EnrichedContacts: []models.Contact{
		{FullName: "Ada Lovelace", Email: "ada@example.com", JobTitle: "CTO"},
		{FullName: "Grace Hopper", Email: "grace@example.com"},
	}}
	older := &models.Playbook{EnrichedContacts: []models.Contact{
		{FullName: "Ada Lovelace", Email: "ada@example.com", JobTitle: "VP Engineering"},
		{FullName: "ada lovelace", Email: "ada@example.com"},
		{FullName: "Ada Lovelace", Email: "ADA@example.com"},
		{FullName: "No Email"},
		{FullName: "No Email"},
	}}

	got := AllContacts([]*models.Playbook{newer, nil, older})

	assert.Len(t, got, 5)
	assert.Equal(t, "CTO", got[0].JobTitle, "first occurrence wins")
	assert.Equal(t, "Grace Hopper", got[1].FullName)
	assert.Equal(t, "ada lovelace", got[2].FullName, "comparison is case-sensitive")
	assert.Equal(t, "ADA@example.com", got[3].Email)
	assert.Equal(t, "No Email", got[4].FullName)
}

func TestAllContacts_Empty(t *testing.T) {
	got := AllContacts(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterContacts(t *testing.T) {
	contacts := []models.Contact{
		{FullName: "Ada Lovelace", Company: "Analytical Engines", JobTitle: "CTO", Confidence: "high"},
		{FullName: "Grace Hopper", Company: "Navy", JobTitle: "Rear Admiral", Confidence: "medium", NeedsReview: true},
		{FullName: "Alan Turing", Company: "Bletchley", JobTitle: "Cryptanalyst", Confidence: "High"},
	}

	tests := []struct {
		name   string
		filter ContactFilter
		want   []string
	}{
		{"zero filter", ContactFilter{}, []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"}},
		{"name case-insensitive", ContactFilter{Query: "LOVE"}, []string{"Ada Lovelace"}},
		{"company", ContactFilter{Query: "navy"}, []string{"Grace Hopper"}},
		{"title", ContactFilter{Query: "crypt"}, []string{"Alan Turing"}},
		{"confidence exact", ContactFilter{Confidence: "high"}, []string{"Ada Lovelace"}},
		{"confidence all", ContactFilter{Confidence: "all"}, []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"}},
		{"needs review", ContactFilter{NeedsReviewOnly: true}, []string{"Grace Hopper"}},
		{"combined no match", ContactFilter{Query: "ada", Confidence: "medium"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterContacts(contacts, tt.filter)
			names := make([]string, 0, len(got))
			for _, c := range got {
				names = append(names, c.FullName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
