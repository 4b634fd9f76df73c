package adapters

import (
	"context"
	"time"

	"github.com/resolveco/resolveco/internal/extract"
	"github.com/resolveco/resolveco/internal/model"
)

// TextExtractAdapter runs the Text Extractor (C3) over HTML already
// fetched by page_fetch, producing contact signals (phones, emails,
// socials, schema.org data) as contact candidates plus domain-verification
// signals in Raw for the Domain Resolver's scorer to consume.
type TextExtractAdapter struct{}

func NewTextExtractAdapter() *TextExtractAdapter { return &TextExtractAdapter{} }

func (a *TextExtractAdapter) Name() string { return "text_extract" }

func (a *TextExtractAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	html := q.CandidateHTML
	if html == nil && q.CandidateText != "" {
		html = []byte(q.CandidateText)
	}
	if len(html) == 0 {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "candidate_html is required", Stage: a.Name(),
		}}
	}
	doc := extract.FromHTML(html)
	sig := extract.ExtractSignals(html)

	var cands []model.Candidate
	for _, email := range sig.Emails {
		cands = append(cands, model.Candidate{
			Kind:              model.ContactCandidateKind,
			ContactValue:      &model.Contact{Email: email, Sources: []string{a.Name()}},
			SourceTags:        []string{a.Name()},
			Signals:           map[string]bool{"found_on_page": true},
			RawConfidenceHint: 50,
		})
	}
	for _, phone := range sig.Phones {
		cands = append(cands, model.Candidate{
			Kind:              model.ContactCandidateKind,
			ContactValue:      &model.Contact{Phone: phone, Sources: []string{a.Name()}},
			SourceTags:        []string{a.Name()},
			Signals:           map[string]bool{"found_on_page": true},
			RawConfidenceHint: 45,
		})
	}
	for platform, url := range sig.SocialURLs {
		if platform != "linkedin" {
			continue
		}
		cands = append(cands, model.Candidate{
			Kind:              model.ContactCandidateKind,
			ContactValue:      &model.Contact{LinkedInURL: url, Sources: []string{a.Name()}},
			SourceTags:        []string{a.Name()},
			Signals:           map[string]bool{"found_on_page": true},
			RawConfidenceHint: 40,
		})
	}

	return AdapterResult{
		Result: Result{
			Candidates: cands,
			Raw: map[string]any{
				"title":           doc.Title,
				"text":            doc.Text,
				"min_content_met": sig.MinContentMet,
				"schema_org_name": sig.SchemaOrg.Name,
				"schema_org_phone": sig.SchemaOrg.Telephone,
			},
		},
		Latency: time.Since(start),
	}
}
