package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/resolveco/resolveco/internal/model"
)

// B2BEnrichClient is the minimal surface a B2B firmographic enrichment API
// needs (e.g. a Clearbit/ZoomInfo-style company lookup by name).
type B2BEnrichClient interface {
	EnrichByName(ctx context.Context, name, city, state string) ([]B2BRecord, error)
}

// B2BRecord is a single firmographic record.
type B2BRecord struct {
	Domain     string
	EmployeeCt int
	Industry   string
	Confidence int
}

// HTTPB2BEnrichClient is a generic JSON-over-HTTP B2BEnrichClient.
type HTTPB2BEnrichClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func (c *HTTPB2BEnrichClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 8 * time.Second}
}

type b2bAPIResponse struct {
	Companies []struct {
		Domain     string `json:"domain"`
		EmployeeCt int    `json:"employee_count"`
		Industry   string `json:"industry"`
		Confidence int    `json:"confidence"`
	} `json:"companies"`
}

func (c *HTTPB2BEnrichClient) EnrichByName(ctx context.Context, name, city, state string) ([]B2BRecord, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	params := url.Values{"name": {name}, "city": {city}, "state": {state}}
	if c.APIKey != "" {
		params.Set("key", c.APIKey)
	}
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("b2b_enrich request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("b2b_enrich server error: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("b2b_enrich unexpected status: %d", resp.StatusCode)
	}
	var parsed b2bAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("b2b_enrich decode: %w", err)
	}
	out := make([]B2BRecord, 0, len(parsed.Companies))
	for _, r := range parsed.Companies {
		out = append(out, B2BRecord{Domain: r.Domain, EmployeeCt: r.EmployeeCt, Industry: r.Industry, Confidence: r.Confidence})
	}
	return out, nil
}

// B2BEnrichAdapter resolves a domain via a firmographic enrichment lookup.
// It is weighted toward corporate/franchise business types in the router's
// contact-stage ordering, since these providers index registered companies
// rather than single-location small businesses.
type B2BEnrichAdapter struct {
	Client B2BEnrichClient
	Retry  RetryPolicy
}

func NewB2BEnrichAdapter(client B2BEnrichClient) *B2BEnrichAdapter {
	return &B2BEnrichAdapter{Client: client, Retry: DefaultRetryPolicy()}
}

func (a *B2BEnrichAdapter) Name() string { return "b2b_enrich" }

func (a *B2BEnrichAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.Name == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "name is required", Stage: a.Name(),
		}}
	}
	res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		records, err := a.Client.EnrichByName(ctx, q.Name, q.City, q.State)
		if err != nil {
			return Result{}, classifyHTTPErr(a.Name(), err)
		}
		cands := make([]model.Candidate, 0, len(records))
		for _, r := range records {
			domain := hostFromWebsite(r.Domain)
			if domain == "" {
				continue
			}
			hint := r.Confidence
			if hint == 0 {
				hint = 65
			}
			signals := map[string]bool{}
			if r.EmployeeCt > 0 {
				signals["firmographic_match"] = true
			}
			cands = append(cands, model.Candidate{
				Kind:              model.DomainCandidateKind,
				Value:             domain,
				SourceTags:        []string{a.Name(), r.Industry},
				Signals:           signals,
				RawConfidenceHint: hint,
			})
		}
		return Result{Candidates: cands, Raw: map[string]any{"record_count": len(records)}}, nil
	})
	if err != nil {
		return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
	}
	return AdapterResult{Result: res, Latency: time.Since(start)}
}
