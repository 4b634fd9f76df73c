package adapters

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/resolveco/resolveco/internal/model"
)

// DirectoryFetcher fetches a directory listing page's HTML for a company
// name/location. It is kept separate from the generic page_fetch adapter
// because directory sites usually need a search-results URL built first.
type DirectoryFetcher interface {
	FetchListingHTML(ctx context.Context, name, city, state string) ([]byte, string, error)
}

// DirectoryScrapeAdapter parses a business-directory listing page with
// goquery, pulling a linked "visit website" anchor as a domain candidate.
// This is the adapter most likely to surface a directory host itself as a
// false-positive candidate, so every candidate carries the
// directory_listing_link signal, plus the directory_site signal when its
// host has a known directory suffix, for the scorer to discount (spec
// invariant P4).
type DirectoryScrapeAdapter struct {
	Fetcher   DirectoryFetcher
	Retry     RetryPolicy
	Selectors []string // CSS selectors to try, in order, for the website link
}

func NewDirectoryScrapeAdapter(fetcher DirectoryFetcher) *DirectoryScrapeAdapter {
	return &DirectoryScrapeAdapter{
		Fetcher: fetcher,
		Retry:   DefaultRetryPolicy(),
		Selectors: []string{
			"a[href][data-website]",
			"a.website-link[href]",
			"a[href].biz-website",
			"a[href*='redirect?url=']",
		},
	}
}

func (a *DirectoryScrapeAdapter) Name() string { return "directory_scrape" }

func (a *DirectoryScrapeAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.Name == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "name is required", Stage: a.Name(),
		}}
	}
	res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		html, sourceHost, err := a.Fetcher.FetchListingHTML(ctx, q.Name, q.City, q.State)
		if err != nil {
			return Result{}, classifyHTTPErr(a.Name(), err)
		}
		return a.parseListing(html, sourceHost)
	})
	if err != nil {
		return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
	}
	return AdapterResult{Result: res, Latency: time.Since(start)}
}

func (a *DirectoryScrapeAdapter) parseListing(html []byte, sourceHost string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Result{}, &model.StructuredError{Kind: model.ErrParseError, Detail: err.Error(), Stage: a.Name()}
	}
	var cands []model.Candidate
	seen := map[string]bool{}
	for _, sel := range a.Selectors {
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			domain := hostFromWebsite(extractRedirectTarget(href))
			if domain == "" || seen[domain] {
				return true
			}
			seen[domain] = true
			signals := map[string]bool{"directory_listing_link": true}
			if hasDirectorySuffix(domain) {
				signals["directory_site"] = true
			}
			cands = append(cands, model.Candidate{
				Kind:              model.DomainCandidateKind,
				Value:             domain,
				SourceTags:        []string{a.Name(), sourceHost},
				Signals:           signals,
				RawConfidenceHint: 55,
			})
			return true
		})
	}
	return Result{Candidates: cands, Raw: map[string]any{"source_host": sourceHost}}, nil
}

// extractRedirectTarget unwraps a directory's outbound-click redirect link
// (e.g. "/redirect?url=https://acme.com") down to the real target URL.
func extractRedirectTarget(href string) string {
	const marker = "url="
	if i := strings.Index(href, marker); i >= 0 {
		target := href[i+len(marker):]
		if j := strings.IndexByte(target, '&'); j >= 0 {
			target = target[:j]
		}
		return target
	}
	return href
}
