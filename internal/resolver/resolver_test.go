package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/fetch"
	"github.com/resolveco/resolveco/internal/judge"
	"github.com/resolveco/resolveco/internal/model"
	"github.com/resolveco/resolveco/internal/router"
)

// fakeDomainAdapter returns a single canned domain candidate, or fails the
// test outright if called when the test expects it to be short-circuited
// away.
type fakeDomainAdapter struct {
	tag        router.AdapterTag
	domain     string
	signals    map[string]bool
	confidence int
	err        *model.StructuredError
	forbidden  bool
	t          *testing.T
}

func (a *fakeDomainAdapter) Name() string { return string(a.tag) }

func (a *fakeDomainAdapter) Call(ctx context.Context, q adapters.Query) adapters.AdapterResult {
	if a.forbidden {
		a.t.Fatalf("adapter %s should not have been called", a.tag)
	}
	if a.err != nil {
		return adapters.AdapterResult{Err: a.err}
	}
	return adapters.AdapterResult{Result: adapters.Result{Candidates: []model.Candidate{{
		Kind:              model.DomainCandidateKind,
		Value:             a.domain,
		SourceTags:        []string{string(a.tag)},
		Signals:           a.signals,
		RawConfidenceHint: a.confidence,
	}}}}
}

type fakeLLMClient struct {
	content string
}

func (f *fakeLLMClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

func testFetchClient() *fetch.Client {
	return &fetch.Client{UserAgent: "resolveco-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
}

func TestResolveAcceptsOnPhoneExactMatchWithJudgeWired(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main>Acme Plumbing, 555-1234</main></body></html>`))
	}))
	defer srv.Close()
	domain := strings.TrimPrefix(srv.URL, "https://")

	primary := testFetchClient()
	primary.HTTPClient = srv.Client()

	llmClient := &fakeLLMClient{content: `{"match": true, "confidence": 92, "evidence": "phone and name match", "phone_found": true}`}

	dep := Deps{
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.PlacesPhoneVerify: &fakeDomainAdapter{
				tag: router.PlacesPhoneVerify, domain: domain,
				signals: map[string]bool{"phone_exact_match": true}, confidence: 99,
			},
			router.PlacesNameMatch: &fakeDomainAdapter{tag: router.PlacesNameMatch, forbidden: true, t: t},
			router.WebSearchKG:     &fakeDomainAdapter{tag: router.WebSearchKG, forbidden: true, t: t},
		},
		PageFetch: adapters.NewPageFetchAdapter(primary, nil),
		Judge:     judge.New(llmClient, "test-model", nil),
	}
	r := New(dep)

	in := model.NormalizedInput{
		Tier: model.Tier1,
		CleanedFields: map[string]string{
			"name": "Acme Plumbing", "phone": "555-1234",
		},
	}

	out := r.Resolve(context.Background(), in)
	if out.FinalState != StateAccepted {
		t.Fatalf("expected accepted, got %s (score=%d, errs=%+v)", out.FinalState, out.Confidence, out.Errors)
	}
	if out.Domain != domain {
		t.Fatalf("expected domain %s, got %s", domain, out.Domain)
	}
	if out.Source != "places_phone_verify" {
		t.Fatalf("expected source places_phone_verify, got %s", out.Source)
	}
	if out.Confidence != 99 {
		t.Fatalf("expected the phone-exact-match short-circuit confidence of 99, got %d", out.Confidence)
	}
}

// TestResolveShortCircuitBypassesScoring confirms the short-circuit path
// assigns Step.ShortCircuitConfidence directly instead of running the
// candidate through Score, which a lone-source candidate could never
// reach 99 through (SourcePrior 30 + JudgeConfidence 40 + SignalBonus 20
// maxes out at 90). No PageFetch or Judge is wired here at all, proving
// the short-circuit never reaches verifyCandidates/pickBest.
func TestResolveShortCircuitBypassesScoring(t *testing.T) {
	dep := Deps{
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.PlacesPhoneVerify: &fakeDomainAdapter{
				tag: router.PlacesPhoneVerify, domain: "acme-plumbing.com",
				signals: map[string]bool{"phone_exact_match": true}, confidence: 99,
			},
			router.PlacesNameMatch: &fakeDomainAdapter{tag: router.PlacesNameMatch, forbidden: true, t: t},
			router.WebSearchKG:     &fakeDomainAdapter{tag: router.WebSearchKG, forbidden: true, t: t},
		},
	}
	r := New(dep)
	in := model.NormalizedInput{
		Tier: model.Tier1,
		CleanedFields: map[string]string{
			"name": "Acme Plumbing", "phone": "555-1234",
		},
	}

	out := r.Resolve(context.Background(), in)
	if out.FinalState != StateAccepted {
		t.Fatalf("expected accepted without any page fetch or judge wired, got %s (errs=%+v)", out.FinalState, out.Errors)
	}
	if out.Domain != "acme-plumbing.com" {
		t.Fatalf("expected domain acme-plumbing.com, got %s", out.Domain)
	}
	if out.Confidence != 99 {
		t.Fatalf("expected confidence 99, got %d", out.Confidence)
	}
}

func TestResolveManualReviewWhenMandatoryJudgeDoesNotConcur(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><main>Some Other Company</main></body></html>`))
	}))
	defer srv.Close()
	domain := strings.TrimPrefix(srv.URL, "https://")

	primary := testFetchClient()
	primary.HTTPClient = srv.Client()

	// High confidence but match=false: a mandatory-validation tier must
	// still reject this, regardless of how high the score computes.
	llmClient := &fakeLLMClient{content: `{"match": false, "confidence": 95, "evidence": "different company"}`}

	dep := Deps{
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.LLMSearch: &fakeDomainAdapter{
				tag: router.LLMSearch, domain: domain,
				signals: map[string]bool{"phone_exact_match": true}, confidence: 60,
			},
			router.DirectoryScrape: &fakeDomainAdapter{tag: router.DirectoryScrape, domain: domain, confidence: 40},
			router.WebSearchKG:     &fakeDomainAdapter{tag: router.WebSearchKG, domain: domain, confidence: 50},
			router.B2BEnrich:       &fakeDomainAdapter{tag: router.B2BEnrich, domain: domain, confidence: 45},
		},
		PageFetch: adapters.NewPageFetchAdapter(primary, nil),
		Judge:     judge.New(llmClient, "test-model", nil),
	}
	r := New(dep)

	in := model.NormalizedInput{
		Tier: model.Tier4,
		CleanedFields: map[string]string{
			"name": "Acme Plumbing",
		},
	}

	out := r.Resolve(context.Background(), in)
	if out.FinalState != StateManualReview {
		t.Fatalf("expected manual_review despite a high score, got %s (score=%d)", out.FinalState, out.Confidence)
	}
	if !out.NeedsManualReview {
		t.Fatalf("expected NeedsManualReview true")
	}
}

func TestResolveFailedWhenEveryPlanStepErrors(t *testing.T) {
	dep := Deps{
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.PlacesPhoneVerify: &fakeDomainAdapter{
				tag: router.PlacesPhoneVerify,
				err: &model.StructuredError{Kind: model.ErrAdapterHTTPError, Detail: "boom", Stage: "places_phone_verify"},
			},
			// places_name_match and web_search_kg are deliberately left
			// unwired, which also counts as a per-step error.
		},
	}
	r := New(dep)
	in := model.NormalizedInput{Tier: model.Tier1, CleanedFields: map[string]string{"name": "Acme"}}

	out := r.Resolve(context.Background(), in)
	if out.FinalState != StateFailed {
		t.Fatalf("expected failed when every plan step errors, got %s", out.FinalState)
	}
	if !out.NeedsManualReview {
		t.Fatalf("expected NeedsManualReview true on failure")
	}
	if len(out.Errors) != 3 {
		t.Fatalf("expected 3 recorded errors (one per tier1 step), got %d: %+v", len(out.Errors), out.Errors)
	}
}

func TestResolveAppliesConsensusBonusAcrossParallelAdapters(t *testing.T) {
	const domain = "acme-example.com"
	dep := Deps{
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.PlacesNameMatch: &fakeDomainAdapter{tag: router.PlacesNameMatch, domain: domain, confidence: 60},
			router.WebSearchKG:     &fakeDomainAdapter{tag: router.WebSearchKG, domain: domain, confidence: 55},
		},
	}
	r := New(dep)
	in := model.NormalizedInput{Tier: model.Tier2, CleanedFields: map[string]string{"name": "Acme"}}

	accum, _, _, _, _, _ := r.runPlan(context.Background(), in, router.Route(in))
	entry, ok := accum[domain]
	if !ok {
		t.Fatalf("expected candidate for %s", domain)
	}
	if entry.sourceCount != 2 {
		t.Fatalf("expected 2 corroborating sources, got %d", entry.sourceCount)
	}
	// Tier2 plans are not ConsensusRequired, so no bonus signal is set
	// even though two sources agree; only T3/T4 apply the bonus.
	if entry.signals["multi_source_consensus"] {
		t.Fatalf("tier2 plans should not set the consensus bonus signal")
	}
}

func TestRankCandidatesOrdersByHintThenSourceCountThenStep(t *testing.T) {
	accum := map[string]*candidateAccum{
		"low.com":  {domain: "low.com", bestHint: 40, earliestStep: 0, sourceCount: 1},
		"high.com": {domain: "high.com", bestHint: 90, earliestStep: 2, sourceCount: 1},
		"tie-a.com": {domain: "tie-a.com", bestHint: 90, earliestStep: 2, sourceCount: 3},
		"tie-b.com": {domain: "tie-b.com", bestHint: 90, earliestStep: 2, sourceCount: 1},
	}
	ranked := rankCandidates(accum)
	if ranked[0].domain != "tie-a.com" {
		t.Fatalf("expected tie-a.com first (highest hint, most sources), got %s", ranked[0].domain)
	}
	if ranked[len(ranked)-1].domain != "low.com" {
		t.Fatalf("expected low.com last, got %s", ranked[len(ranked)-1].domain)
	}
}

func TestPickBestEliminatesDirectorySitesEntirely(t *testing.T) {
	directory := newVC("yelp.com", []string{"web_search_kg"}, nil, 99, false)
	directory.isDirectory = true
	legit := newVC("acme.com", []string{"web_search_kg"}, nil, 60, false)

	best, score := pickBest([]*verifiedCandidate{directory, legit}, router.Plan{})
	if best == nil || best.domain != "acme.com" {
		t.Fatalf("expected the non-directory candidate to win, got %+v", best)
	}
	if score <= 0 {
		t.Fatalf("expected a positive score for the surviving candidate")
	}
}

func TestPickBestReturnsNilWhenAllCandidatesAreDirectories(t *testing.T) {
	directory := newVC("yellowpages.com", []string{"web_search_kg"}, nil, 99, false)
	directory.isDirectory = true

	best, score := pickBest([]*verifiedCandidate{directory}, router.Plan{})
	if best != nil {
		t.Fatalf("expected no winner when every candidate is a directory site, got %+v", best)
	}
	if score != 0 {
		t.Fatalf("expected score 0 alongside a nil winner, got %d", score)
	}
}

func TestPickBestTieBreaksOnShorterDomainThenEarlierStep(t *testing.T) {
	long := newVC("division.acme-corp.com", []string{"web_search_kg"}, nil, 80, false)
	long.earliestStep = 1
	short := newVC("acme.com", []string{"web_search_kg"}, nil, 80, false)
	short.earliestStep = 1

	best, _ := pickBest([]*verifiedCandidate{long, short}, router.Plan{})
	if best.domain != "acme.com" {
		t.Fatalf("expected shorter apex domain to win tie-break, got %s", best.domain)
	}
}
