package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resolveco/resolveco/internal/model"
)

// PlacesClient is the minimal surface a places-style lookup API needs. A
// real client talks to a business directory/maps API; fakePlacesClient (in
// the adapter test files) returns canned results for deterministic tests.
type PlacesClient interface {
	LookupByPhone(ctx context.Context, phone string) ([]PlaceRecord, error)
	LookupByName(ctx context.Context, name, city, state string) ([]PlaceRecord, error)
}

// PlaceRecord is a single business record as returned by a places API.
type PlaceRecord struct {
	Name    string
	Phone   string
	Website string
	Score   int // 0-100 provider-native match confidence, if any
}

// HTTPPlacesClient is a generic JSON-over-HTTP PlacesClient. The BaseURL
// is configurable; the query-param names (phone, name, city, state, key)
// are fixed.
type HTTPPlacesClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func (c *HTTPPlacesClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 8 * time.Second}
}

type placesAPIResponse struct {
	Results []struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Website string `json:"website"`
		Score   int    `json:"score"`
	} `json:"results"`
}

func (c *HTTPPlacesClient) query(ctx context.Context, params url.Values) ([]PlaceRecord, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
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
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("places server error: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places unexpected status: %d", resp.StatusCode)
	}
	var parsed placesAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("places decode: %w", err)
	}
	out := make([]PlaceRecord, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, PlaceRecord{Name: r.Name, Phone: r.Phone, Website: r.Website, Score: r.Score})
	}
	return out, nil
}

func (c *HTTPPlacesClient) LookupByPhone(ctx context.Context, phone string) ([]PlaceRecord, error) {
	return c.query(ctx, url.Values{"phone": {phone}})
}

func (c *HTTPPlacesClient) LookupByName(ctx context.Context, name, city, state string) ([]PlaceRecord, error) {
	return c.query(ctx, url.Values{"name": {name}, "city": {city}, "state": {state}})
}

// PlacesPhoneVerifyAdapter resolves a domain by exact phone-number match
// against a places/maps directory. An exact match is the strongest signal
// in the pipeline: spec §4.5 short-circuits tier 1 at confidence 99 here.
type PlacesPhoneVerifyAdapter struct {
	Client  PlacesClient
	Retry   RetryPolicy
}

func NewPlacesPhoneVerifyAdapter(client PlacesClient) *PlacesPhoneVerifyAdapter {
	return &PlacesPhoneVerifyAdapter{Client: client, Retry: DefaultRetryPolicy()}
}

func (a *PlacesPhoneVerifyAdapter) Name() string { return "places_phone_verify" }

func (a *PlacesPhoneVerifyAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.Phone == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "phone is required", Stage: a.Name(),
		}}
	}
	res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		records, err := a.Client.LookupByPhone(ctx, q.Phone)
		if err != nil {
			return Result{}, classifyHTTPErr(a.Name(), err)
		}
		return recordsToCandidates(a.Name(), q, records, true), nil
	})
	if err != nil {
		return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
	}
	return AdapterResult{Result: res, Latency: time.Since(start)}
}

// PlacesNameMatchAdapter resolves a domain by fuzzy name+city match against
// a places/maps directory.
type PlacesNameMatchAdapter struct {
	Client PlacesClient
	Retry  RetryPolicy
}

func NewPlacesNameMatchAdapter(client PlacesClient) *PlacesNameMatchAdapter {
	return &PlacesNameMatchAdapter{Client: client, Retry: DefaultRetryPolicy()}
}

func (a *PlacesNameMatchAdapter) Name() string { return "places_name_match" }

func (a *PlacesNameMatchAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.Name == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "name is required", Stage: a.Name(),
		}}
	}
	res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		records, err := a.Client.LookupByName(ctx, q.Name, q.City, q.State)
		if err != nil {
			return Result{}, classifyHTTPErr(a.Name(), err)
		}
		return recordsToCandidates(a.Name(), q, records, false), nil
	})
	if err != nil {
		return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
	}
	return AdapterResult{Result: res, Latency: time.Since(start)}
}

func recordsToCandidates(source string, q Query, records []PlaceRecord, phoneMatch bool) Result {
	cands := make([]model.Candidate, 0, len(records))
	for _, r := range records {
		domain := hostFromWebsite(r.Website)
		if domain == "" {
			continue
		}
		signals := map[string]bool{}
		hint := r.Score
		if phoneMatch && normalizedPhoneEquals(r.Phone, q.Phone) {
			signals["phone_exact_match"] = true
			if hint < 95 {
				hint = 99
			}
		}
		if strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(q.Name)) {
			signals["name_exact_match"] = true
		}
		if hint == 0 {
			hint = 60
		}
		cands = append(cands, model.Candidate{
			Kind:              model.DomainCandidateKind,
			Value:             domain,
			SourceTags:        []string{source},
			Signals:           signals,
			RawConfidenceHint: hint,
		})
	}
	return Result{Candidates: cands, Raw: map[string]any{"record_count": len(records)}}
}

func hostFromWebsite(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func normalizedPhoneEquals(a, b string) bool {
	strip := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		out := b.String()
		if len(out) > 10 {
			out = out[len(out)-10:]
		}
		return out
	}
	sa, sb := strip(a), strip(b)
	return sa != "" && sa == sb
}
