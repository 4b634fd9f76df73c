package contact

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/fetch"
	"github.com/resolveco/resolveco/internal/model"
	"github.com/resolveco/resolveco/internal/router"
)

// fakeContactAdapter returns each canned contact as a contact candidate,
// or its canned error.
type fakeContactAdapter struct {
	tag      router.AdapterTag
	contacts []model.Contact
	err      *model.StructuredError
	calls    *int
}

func (a *fakeContactAdapter) Name() string { return string(a.tag) }

func (a *fakeContactAdapter) Call(ctx context.Context, q adapters.Query) adapters.AdapterResult {
	if a.calls != nil {
		*a.calls++
	}
	if a.err != nil {
		return adapters.AdapterResult{Err: a.err}
	}
	var cands []model.Candidate
	for i := range a.contacts {
		c := a.contacts[i]
		cands = append(cands, model.Candidate{Kind: model.ContactCandidateKind, ContactValue: &c})
	}
	return adapters.AdapterResult{Result: adapters.Result{Candidates: cands}}
}

func testFetchClient() *fetch.Client {
	return &fetch.Client{UserAgent: "resolveco-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
}

func newInput(businessType model.BusinessType, companyName string) model.NormalizedInput {
	return model.NormalizedInput{
		BusinessType:  businessType,
		CleanedFields: map[string]string{"name": companyName},
	}
}

func TestDiscoverReturnsErrorWhenDomainEmpty(t *testing.T) {
	c := New(Deps{})
	out := c.Discover(context.Background(), newInput(model.BusinessSMB, "Acme"), "", false)
	if len(out.Errors) != 1 {
		t.Fatalf("expected one error for empty domain, got %+v", out.Errors)
	}
}

func TestDiscoverFindsContactFromSiteScrape(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Contact us at jane@acme-plumbing.com</body></html>`)
	}))
	defer srv.Close()
	client := testFetchClient()
	client.HTTPClient = srv.Client()

	host := stripScheme(srv.URL)
	pageFetch := adapters.NewPageFetchAdapter(client, nil)

	b2b := &fakeContactAdapter{tag: router.B2BEnrich}
	calls := 0
	b2b.calls = &calls

	ctrl := New(Deps{
		PageFetch: pageFetch,
		Adapters:  map[router.AdapterTag]adapters.Adapter{router.B2BEnrich: b2b},
	})

	out := ctrl.Discover(context.Background(), newInput(model.BusinessSMB, "Acme Plumbing"), host, false)
	if len(out.Contacts) == 0 {
		t.Fatalf("expected at least one contact discovered from site scrape")
	}
	found := false
	for _, c := range out.Contacts {
		if c.Email == "jane@acme-plumbing.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a scored contact for jane@acme-plumbing.com, got %+v", out.Contacts)
	}
}

func TestDiscoverPivotsAfterTwoEmptyStages(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>No contact info here.</body></html>`)
	}))
	defer srv.Close()
	client := testFetchClient()
	client.HTTPClient = srv.Client()
	host := stripScheme(srv.URL)
	pageFetch := adapters.NewPageFetchAdapter(client, nil)

	kg := &fakeContactAdapter{tag: router.WebSearchKG}
	b2b := &fakeContactAdapter{tag: router.B2BEnrich}
	dir := &fakeContactAdapter{tag: router.DirectoryScrape}

	ctrl := New(Deps{
		PageFetch: pageFetch,
		Adapters: map[router.AdapterTag]adapters.Adapter{
			router.WebSearchKG:     kg,
			router.B2BEnrich:       b2b,
			router.DirectoryScrape: dir,
		},
		MaxSteps: 3,
	})

	out := ctrl.Discover(context.Background(), newInput(model.BusinessHealth, "Acme Health"), host, false)
	if !out.PivotOccurred {
		t.Fatalf("expected a pivot after two consecutive empty stages, got stages=%v", out.StagesCompleted)
	}
}

func TestDiscoverRecordsAdapterErrorWhenTagUnwired(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	}))
	defer srv.Close()
	client := testFetchClient()
	client.HTTPClient = srv.Client()
	host := stripScheme(srv.URL)
	pageFetch := adapters.NewPageFetchAdapter(client, nil)

	ctrl := New(Deps{PageFetch: pageFetch, Adapters: map[router.AdapterTag]adapters.Adapter{}, MaxSteps: 5})
	out := ctrl.Discover(context.Background(), newInput(model.BusinessFranchise, "Acme Franchise"), host, false)
	if len(out.Errors) == 0 {
		t.Fatalf("expected an adapter_http_error recorded once the loop reaches an unwired adapter tag, stages=%v", out.StagesCompleted)
	}
	if out.Errors[0].Kind != model.ErrAdapterHTTPError {
		t.Fatalf("expected adapter_http_error kind, got %q", out.Errors[0].Kind)
	}
}

func TestMergeContactsDedupesByEmail(t *testing.T) {
	existing := []model.Contact{{Name: "Jane Smith", Email: "jane@acme.com", Sources: []string{"site_scrape"}}}
	fresh := []model.Contact{{Email: "jane@acme.com", Phone: "555-1234", Sources: []string{"web_search_kg"}}}
	merged := mergeContacts(existing, fresh)
	if len(merged) != 1 {
		t.Fatalf("expected contacts sharing an email to merge into one, got %d", len(merged))
	}
	if merged[0].Phone != "555-1234" {
		t.Fatalf("expected the merged contact to pick up the new phone, got %+v", merged[0])
	}
	if len(merged[0].Sources) != 2 {
		t.Fatalf("expected sources to accumulate across merges, got %+v", merged[0].Sources)
	}
}

func TestMergeContactsKeepsDistinctPeopleSeparate(t *testing.T) {
	existing := []model.Contact{{Name: "Jane Smith", Email: "jane@acme.com"}}
	fresh := []model.Contact{{Name: "John Doe", Email: "john@acme.com"}}
	merged := mergeContacts(existing, fresh)
	if len(merged) != 2 {
		t.Fatalf("expected two distinct contacts to remain separate, got %d", len(merged))
	}
}

func TestLoopStatePivotReordersRemainingStages(t *testing.T) {
	st := &loopState{
		order: []router.ContactStage{
			router.StageMapOwnerField, router.StageSiteScrape, router.StageSocialDiscover,
			router.StageSearchOSINT, router.StageB2BEnrich,
		},
		idx: 2,
	}
	st.pivot()
	if !st.pivoted {
		t.Fatalf("expected pivoted flag set")
	}
	if st.order[st.idx] != router.StageSearchOSINT {
		t.Fatalf("expected the search-centric family to be promoted first after pivot, got %v", st.order[st.idx:])
	}
}

func stripScheme(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == '/' && i+1 < len(url) && url[i+1] == '/' {
			return url[i+2:]
		}
	}
	return url
}
