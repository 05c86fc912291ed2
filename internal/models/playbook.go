// internal/models/playbook.go
package models

import "time"

// Playbook is the canonical record produced by one successful generation.
// Field names follow the snake_case vocabulary of the orchestration agent.
type Playbook struct {
	PlaybookID        string          `json:"playbook_id"`
	ReportTitle       string          `json:"report_title"`
	GenerationDate    time.Time       `json:"generation_date"`
	// GenerationDateRaw keeps a generation_date the agent sent in a form
	// that could not be parsed. GenerationDate is the capture time then.
	GenerationDateRaw string          `json:"generation_date_raw,omitempty"`
	PipelineStatus    string          `json:"pipeline_status"`
	ExecutiveSummary  string          `json:"executive_summary"`
	Reports           []Report        `json:"reports"`
	Signals           []Signal        `json:"signals"`
	Personas          []Persona       `json:"personas"`
	ICPSummary        ICPSummary      `json:"icp_summary"`
	EnrichedContacts  []Contact       `json:"enriched_contacts"`
	EmailSequences    []EmailSequence `json:"email_sequences"`
	QualityGates      QualityGates    `json:"quality_gates"`
	TotalContacts     int             `json:"total_contacts"`
	TotalReports      int             `json:"total_reports"`
	TotalEmails       int             `json:"total_emails"`
	ArtifactFiles     []ArtifactFile  `json:"artifact_files"`
}

type Report struct {
	Title             string              `json:"title"`
	ExecutiveSummary  string              `json:"executive_summary"`
	KeyClaims         []KeyClaim          `json:"key_claims"`
	TopicTags         []string            `json:"topic_tags"`
	IndustryRelevance []IndustryRelevance `json:"industry_relevance"`
	Contributors      []Contributor       `json:"contributors"`
}

type KeyClaim struct {
	Claim             string   `json:"claim"`
	CitationRef       string   `json:"citation_ref"`
	PageSection       string   `json:"page_section"`
	ConfidenceScore   float64  `json:"confidence_score"`
	IndustryRelevance []string `json:"industry_relevance"`
}

type IndustryRelevance struct {
	Industry       string   `json:"industry"`
	RelevanceScore float64  `json:"relevance_score"`
	KeyThemes      []string `json:"key_themes"`
}

type Contributor struct {
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	OrgUnit     string `json:"org_unit"`
	JobTitle    string `json:"job_title"`
	Company     string `json:"company"`
	Email       string `json:"email"`
	LinkedInURL string `json:"linkedin_url"`
	Confidence  string `json:"confidence"`
}

type Signal struct {
	SignalType  string `json:"signal_type"`
	Description string `json:"description"`
	SourceRef   string `json:"source_ref"`
}

type Persona struct {
	RoleTitle          string   `json:"role_title"`
	SeniorityLevel     string   `json:"seniority_level"`
	KPIs               []string `json:"kpis"`
	PainPoints         []string `json:"pain_points"`
	BuyingTriggers     []string `json:"buying_triggers"`
	Objections         []string `json:"objections"`
	CommitteeNeighbors []string `json:"committee_neighbors"`
	ReportFitScore     float64  `json:"report_fit_score"`
}

type ICPSummary struct {
	IndustrySegments []string `json:"industry_segments"`
	CompanySizeBands []string `json:"company_size_bands"`
	TechStackHints   []string `json:"tech_stack_hints"`
	GeographicFocus  []string `json:"geographic_focus"`
}

// Contact is an enriched, outreach-ready person. Confidence is an enum
// string ("high", "medium", "low") passed through as received.
type Contact struct {
	FullName      string   `json:"full_name"`
	JobTitle      string   `json:"job_title"`
	Company       string   `json:"company"`
	OrgUnit       string   `json:"org_unit"`
	Location      string   `json:"location"`
	LinkedInURL   string   `json:"linkedin_url"`
	Email         string   `json:"email"`
	Confidence    string   `json:"confidence"`
	NeedsReview   bool     `json:"needs_review"`
	SourceReports []string `json:"source_reports"`
	PersonaTags   []string `json:"persona_tags"`
}

type EmailSequence struct {
	ContactName string         `json:"contact_name"`
	PersonaTag  string         `json:"persona_tag"`
	Emails      []EmailVariant `json:"emails"`
}

type EmailVariant struct {
	VariantType      string   `json:"variant_type"`
	SubjectLine      string   `json:"subject_line"`
	Body             string   `json:"body"`
	CTA              string   `json:"cta"`
	CitedClaims      []string `json:"cited_claims"`
	ComplianceFooter string   `json:"compliance_footer"`
}

type QualityGates struct {
	GroundednessPass       bool     `json:"groundedness_pass"`
	DedupPass              bool     `json:"dedup_pass"`
	ConfidenceThresholdMet bool     `json:"confidence_threshold_met"`
	IssuesFlagged          []string `json:"issues_flagged"`
}

type ArtifactFile struct {
	FileURL    string `json:"file_url"`
	Name       string `json:"name"`
	FormatType string `json:"format_type"`
}

// EnsureSlices replaces every nil slice in the playbook tree with an empty
// one so the record always serializes arrays as [] rather than null.
func (p *Playbook) EnsureSlices() {
	if p.Reports == nil {
		p.Reports = []Report{}
	}
	for i := range p.Reports {
		r := &p.Reports[i]
		if r.KeyClaims == nil {
			r.KeyClaims = []KeyClaim{}
		}
		for j := range r.KeyClaims {
			r.KeyClaims[j].IndustryRelevance = nonNil(r.KeyClaims[j].IndustryRelevance)
		}
		r.TopicTags = nonNil(r.TopicTags)
		if r.IndustryRelevance == nil {
			r.IndustryRelevance = []IndustryRelevance{}
		}
		for j := range r.IndustryRelevance {
			r.IndustryRelevance[j].KeyThemes = nonNil(r.IndustryRelevance[j].KeyThemes)
		}
		if r.Contributors == nil {
			r.Contributors = []Contributor{}
		}
	}
	if p.Signals == nil {
		p.Signals = []Signal{}
	}
	if p.Personas == nil {
		p.Personas = []Persona{}
	}
	for i := range p.Personas {
		ps := &p.Personas[i]
		ps.KPIs = nonNil(ps.KPIs)
		ps.PainPoints = nonNil(ps.PainPoints)
		ps.BuyingTriggers = nonNil(ps.BuyingTriggers)
		ps.Objections = nonNil(ps.Objections)
		ps.CommitteeNeighbors = nonNil(ps.CommitteeNeighbors)
	}
	p.ICPSummary.IndustrySegments = nonNil(p.ICPSummary.IndustrySegments)
	p.ICPSummary.CompanySizeBands = nonNil(p.ICPSummary.CompanySizeBands)
	p.ICPSummary.TechStackHints = nonNil(p.ICPSummary.TechStackHints)
	p.ICPSummary.GeographicFocus = nonNil(p.ICPSummary.GeographicFocus)
	if p.EnrichedContacts == nil {
		p.EnrichedContacts = []Contact{}
	}
	for i := range p.EnrichedContacts {
		p.EnrichedContacts[i].SourceReports = nonNil(p.EnrichedContacts[i].SourceReports)
		p.EnrichedContacts[i].PersonaTags = nonNil(p.EnrichedContacts[i].PersonaTags)
	}
	if p.EmailSequences == nil {
		p.EmailSequences = []EmailSequence{}
	}
	for i := range p.EmailSequences {
		seq := &p.EmailSequences[i]
		if seq.Emails == nil {
			seq.Emails = []EmailVariant{}
		}
		for j := range seq.Emails {
			seq.Emails[j].CitedClaims = nonNil(seq.Emails[j].CitedClaims)
		}
	}
	p.QualityGates.IssuesFlagged = nonNil(p.QualityGates.IssuesFlagged)
	if p.ArtifactFiles == nil {
		p.ArtifactFiles = []ArtifactFile{}
	}
}

// EmailCount is the number of email variants across all sequences.
func (p *Playbook) EmailCount() int {
	n := 0
	for _, seq := range p.EmailSequences {
		n += len(seq.Emails)
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
