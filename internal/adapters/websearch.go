package adapters

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/resolveco/resolveco/internal/model"
)

// SearchResult is a single search-engine hit, independent of provider.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
	Source  string
}

// SearchProvider is the minimal interface a search backend implements. The
// shape is carried over unchanged from the teacher's internal/search
// package: a single Search method keeps SearxNG-backed, fixture-backed,
// and any future provider interchangeable behind one adapter.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Name() string
}

// DomainPolicy lets a deployment allow- or deny-list result hosts.
// Denylist takes precedence over Allowlist.
type DomainPolicy struct {
	Allowlist []string
	Denylist  []string
}

func isDomainBlocked(rawURL string, allow, deny []string) (bool, string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false, ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	for _, d := range deny {
		if host == strings.ToLower(d) || strings.HasSuffix(host, "."+strings.ToLower(d)) {
			return true, host
		}
	}
	if len(allow) == 0 {
		return false, host
	}
	for _, a := range allow {
		if host == strings.ToLower(a) || strings.HasSuffix(host, "."+strings.ToLower(a)) {
			return false, host
		}
	}
	return true, host
}

// WebSearchKGAdapter is the web_search_kg adapter: a knowledge-graph/web
// search lookup that proposes domain candidates from result URLs. It folds
// in the teacher's search.Provider shape directly.
type WebSearchKGAdapter struct {
	Provider SearchProvider
	Policy   DomainPolicy
	Limit    int
	Retry    RetryPolicy
}

func NewWebSearchKGAdapter(provider SearchProvider) *WebSearchKGAdapter {
	return &WebSearchKGAdapter{Provider: provider, Limit: 10, Retry: DefaultRetryPolicy()}
}

func (a *WebSearchKGAdapter) Name() string { return "web_search_kg" }

func (a *WebSearchKGAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	query := buildSearchQuery(q)
	if query == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "company name required for search", Stage: a.Name(),
		}}
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		hits, err := a.Provider.Search(ctx, query, limit)
		if err != nil {
			return Result{}, classifyHTTPErr(a.Name(), err)
		}
		return a.toResult(hits), nil
	})
	if err != nil {
		return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
	}
	return AdapterResult{Result: res, Latency: time.Since(start)}
}

func buildSearchQuery(q Query) string {
	parts := []string{q.Name}
	if q.City != "" {
		parts = append(parts, q.City)
	}
	if q.State != "" {
		parts = append(parts, q.State)
	}
	parts = append(parts, "official website")
	return strings.TrimSpace(strings.Join(nonEmpty(parts), " "))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a *WebSearchKGAdapter) toResult(hits []SearchResult) Result {
	cands := make([]model.Candidate, 0, len(hits))
	for rank, h := range hits {
		if blocked, _ := isDomainBlocked(h.URL, a.Policy.Allowlist, a.Policy.Denylist); blocked {
			continue
		}
		domain := hostFromWebsite(h.URL)
		if domain == "" {
			continue
		}
		signals := map[string]bool{}
		if directoryHostSuffixes[domain] || hasDirectorySuffix(domain) {
			signals["directory_site"] = true
		}
		hint := 70 - rank*5
		if hint < 30 {
			hint = 30
		}
		cands = append(cands, model.Candidate{
			Kind:              model.DomainCandidateKind,
			Value:             domain,
			SourceTags:        []string{a.Name(), h.Source},
			Signals:           signals,
			RawConfidenceHint: hint,
		})
	}
	return Result{Candidates: cands, Raw: map[string]any{"hit_count": len(hits)}}
}

// directoryHostSuffixes is the static table of well-known business
// directory/listing hosts that are never the company's own domain, in the
// idiom of the Go email-finder's curated wellKnownCompanies map.
var directoryHostSuffixes = map[string]bool{
	"yelp.com": true, "yellowpages.com": true, "manta.com": true,
	"bbb.org": true, "mapquest.com": true, "facebook.com": true,
	"linkedin.com": true, "crunchbase.com": true, "glassdoor.com": true,
	"indeed.com": true, "zoominfo.com": true, "chamberofcommerce.com": true,
	"angi.com": true, "thumbtack.com": true, "foursquare.com": true,
}

func hasDirectorySuffix(domain string) bool {
	for suf := range directoryHostSuffixes {
		if domain == suf || strings.HasSuffix(domain, "."+suf) {
			return true
		}
	}
	return false
}
