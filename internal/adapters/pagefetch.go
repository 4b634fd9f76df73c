package adapters

import (
	"context"
	"time"

	"github.com/resolveco/resolveco/internal/fetch"
	"github.com/resolveco/resolveco/internal/model"
)

// PageFetchAdapter fetches a candidate page's HTML, trying a cheap client
// first and falling back to a slower, more permissive anti-bot client when
// the cheap fetch fails. Both stages reuse the teacher's fetch.Client
// retry/backoff/cache shape unchanged.
type PageFetchAdapter struct {
	Primary  *fetch.Client
	Fallback *fetch.Client
}

func NewPageFetchAdapter(primary, fallback *fetch.Client) *PageFetchAdapter {
	return &PageFetchAdapter{Primary: primary, Fallback: fallback}
}

func (a *PageFetchAdapter) Name() string { return "page_fetch" }

func (a *PageFetchAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.CandidateURL == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "candidate_url is required", Stage: a.Name(),
		}}
	}
	body, contentType, err := a.Primary.Get(ctx, q.CandidateURL)
	stage := "primary"
	if err != nil && a.Fallback != nil {
		body, contentType, err = a.Fallback.Get(ctx, q.CandidateURL)
		stage = "fallback"
	}
	if err != nil {
		return AdapterResult{
			Err:     classifyHTTPErr(a.Name(), err),
			Latency: time.Since(start),
		}
	}
	return AdapterResult{
		Result: Result{Raw: map[string]any{
			"html":         body,
			"content_type": contentType,
			"fetch_stage":  stage,
			"url":          q.CandidateURL,
		}},
		Latency: time.Since(start),
	}
}
