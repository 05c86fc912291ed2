package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"abm-playbook-workers/internal/models"

	"github.com/tidwall/gjson"
)

// dateLayouts cover the ISO-8601 shapes the agent has been seen to emit.
// Fractional seconds are accepted after any seconds field.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// coerce builds a Playbook from the located payload. It accepts any shape:
// wrong-typed fields fall back to their zero value and slices are never nil.
// envelope is the full transport response, used for artifact files.
func (n *Normalizer) coerce(node, envelope gjson.Result) *models.Playbook {
	p := &models.Playbook{
		PlaybookID:       str(node.Get("playbook_id")),
		ReportTitle:      str(node.Get("report_title")),
		PipelineStatus:   str(node.Get("pipeline_status")),
		ExecutiveSummary: str(node.Get("executive_summary")),
		Signals:          objects(node.Get("signals"), coerceSignal),
		Personas:         objects(node.Get("personas"), coercePersona),
		ICPSummary:       coerceICP(node.Get("icp_summary")),
		EnrichedContacts: objects(node.Get("enriched_contacts"), coerceContact),
		EmailSequences:   objects(node.Get("email_sequences"), coerceSequence),
		QualityGates:     coerceGates(node.Get("quality_gates")),
		TotalContacts:    integer(node.Get("total_contacts")),
		TotalReports:     integer(node.Get("total_reports")),
		TotalEmails:      integer(node.Get("total_emails")),
		ArtifactFiles:    coerceArtifacts(node, envelope),
	}
	p.GenerationDate, p.GenerationDateRaw = n.generationDate(node.Get("generation_date"))
	if p.PipelineStatus == "" {
		p.PipelineStatus = "completed"
	}

	if n.opts.Schema == SchemaSingleReport {
		p.Reports = []models.Report{coerceSingleReport(node)}
	} else {
		p.Reports = objects(node.Get("reports"), coerceReport)
	}

	p.EnsureSlices()
	return p
}

// generationDate parses the agent's date. An absent value becomes the
// capture time. A present value that cannot be parsed is also stamped with
// the capture time but is handed back as raw so it is not lost.
func (n *Normalizer) generationDate(v gjson.Result) (time.Time, string) {
	raw := strings.TrimSpace(str(v))
	if raw == "" {
		return n.now().UTC(), ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), ""
		}
	}
	n.logger.Warn("unparseable generation_date kept verbatim", map[string]interface{}{"generationDate": raw})
	return n.now().UTC(), raw
}

func coerceReport(v gjson.Result) models.Report {
	title := str(v.Get("title"))
	if title == "" {
		title = str(v.Get("report_title"))
	}
	relevance := v.Get("industry_relevance")
	if !relevance.IsArray() {
		relevance = v.Get("industry_relevance_map")
	}
	return models.Report{
		Title:             title,
		ExecutiveSummary:  str(v.Get("executive_summary")),
		KeyClaims:         objects(v.Get("key_claims"), coerceClaim),
		TopicTags:         strs(v.Get("topic_tags")),
		IndustryRelevance: objects(relevance, coerceRelevance),
		Contributors:      objects(v.Get("contributors"), coerceContributor),
	}
}

// coerceSingleReport folds the single-report variant's top-level fields
// into one Report so both variants expose the same shape.
func coerceSingleReport(v gjson.Result) models.Report {
	return models.Report{
		Title:             str(v.Get("report_title")),
		ExecutiveSummary:  str(v.Get("executive_summary")),
		KeyClaims:         objects(v.Get("key_claims"), coerceClaim),
		TopicTags:         strs(v.Get("topic_tags")),
		IndustryRelevance: objects(v.Get("industry_relevance_map"), coerceRelevance),
		Contributors:      objects(v.Get("contributors"), coerceContributor),
	}
}

func coerceClaim(v gjson.Result) models.KeyClaim {
	return models.KeyClaim{
		Claim:             str(v.Get("claim")),
		CitationRef:       str(v.Get("citation_ref")),
		PageSection:       str(v.Get("page_section")),
		ConfidenceScore:   num(v.Get("confidence_score")),
		IndustryRelevance: strs(v.Get("industry_relevance")),
	}
}

func coerceRelevance(v gjson.Result) models.IndustryRelevance {
	return models.IndustryRelevance{
		Industry:       str(v.Get("industry")),
		RelevanceScore: num(v.Get("relevance_score")),
		KeyThemes:      strs(v.Get("key_themes")),
	}
}

func coerceContributor(v gjson.Result) models.Contributor {
	return models.Contributor{
		FullName:    str(v.Get("full_name")),
		Role:        str(v.Get("role")),
		OrgUnit:     str(v.Get("org_unit")),
		JobTitle:    str(v.Get("job_title")),
		Company:     str(v.Get("company")),
		Email:       str(v.Get("email")),
		LinkedInURL: str(v.Get("linkedin_url")),
		Confidence:  str(v.Get("confidence")),
	}
}

func coerceSignal(v gjson.Result) models.Signal {
	return models.Signal{
		SignalType:  str(v.Get("signal_type")),
		Description: str(v.Get("description")),
		SourceRef:   str(v.Get("source_ref")),
	}
}

func coercePersona(v gjson.Result) models.Persona {
	return models.Persona{
		RoleTitle:          str(v.Get("role_title")),
		SeniorityLevel:     str(v.Get("seniority_level")),
		KPIs:               strs(v.Get("kpis")),
		PainPoints:         strs(v.Get("pain_points")),
		BuyingTriggers:     strs(v.Get("buying_triggers")),
		Objections:         strs(v.Get("objections")),
		CommitteeNeighbors: strs(v.Get("committee_neighbors")),
		ReportFitScore:     num(v.Get("report_fit_score")),
	}
}

func coerceICP(v gjson.Result) models.ICPSummary {
	return models.ICPSummary{
		IndustrySegments: strs(v.Get("industry_segments")),
		CompanySizeBands: strs(v.Get("company_size_bands")),
		TechStackHints:   strs(v.Get("tech_stack_hints")),
		GeographicFocus:  strs(v.Get("geographic_focus")),
	}
}

func coerceContact(v gjson.Result) models.Contact {
	return models.Contact{
		FullName:      str(v.Get("full_name")),
		JobTitle:      str(v.Get("job_title")),
		Company:       str(v.Get("company")),
		OrgUnit:       str(v.Get("org_unit")),
		Location:      str(v.Get("location")),
		LinkedInURL:   str(v.Get("linkedin_url")),
		Email:         str(v.Get("email")),
		Confidence:    str(v.Get("confidence")),
		NeedsReview:   boolean(v.Get("needs_review")),
		SourceReports: strs(v.Get("source_reports")),
		PersonaTags:   strs(v.Get("persona_tags")),
	}
}

func coerceSequence(v gjson.Result) models.EmailSequence {
	return models.EmailSequence{
		ContactName: str(v.Get("contact_name")),
		PersonaTag:  str(v.Get("persona_tag")),
		Emails:      objects(v.Get("emails"), coerceEmail),
	}
}

func coerceEmail(v gjson.Result) models.EmailVariant {
	return models.EmailVariant{
		VariantType:      str(v.Get("variant_type")),
		SubjectLine:      str(v.Get("subject_line")),
		Body:             str(v.Get("body")),
		CTA:              str(v.Get("cta")),
		CitedClaims:      strs(v.Get("cited_claims")),
		ComplianceFooter: str(v.Get("compliance_footer")),
	}
}

func coerceGates(v gjson.Result) models.QualityGates {
	return models.QualityGates{
		GroundednessPass:       boolean(v.Get("groundedness_pass")),
		DedupPass:              boolean(v.Get("dedup_pass")),
		ConfidenceThresholdMet: boolean(v.Get("confidence_threshold_met")),
		IssuesFlagged:          strs(v.Get("issues_flagged")),
	}
}

func coerceArtifacts(node, envelope gjson.Result) []models.ArtifactFile {
	files := envelope.Get("module_outputs.artifact_files")
	if !files.IsArray() {
		files = node.Get("artifact_files")
	}
	return objects(files, func(v gjson.Result) models.ArtifactFile {
		return models.ArtifactFile{
			FileURL:    str(v.Get("file_url")),
			Name:       str(v.Get("name")),
			FormatType: str(v.Get("format_type")),
		}
	})
}

// str reads scalars as text. Objects, arrays and null read as "".
func str(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True, gjson.False:
		return v.String()
	default:
		return ""
	}
}

// num reads a number or a numeric string such as "0.9". Anything else is 0.
func num(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

func integer(v gjson.Result) int {
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		return int(num(v))
	default:
		return 0
	}
}

func boolean(v gjson.Result) bool {
	return v.Type == gjson.True
}

func strs(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		return out
	}
	v.ForEach(func(_, item gjson.Result) bool {
		switch item.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			out = append(out, str(item))
		}
		return true
	})
	return out
}

func objects[T any](v gjson.Result, build func(gjson.Result) T) []T {
	out := []T{}
	if !v.IsArray() {
		return out
	}
	v.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, build(item))
		}
		return true
	})
	return out
}
