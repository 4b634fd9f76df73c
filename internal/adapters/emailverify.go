package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/resolveco/resolveco/internal/model"
)

// EmailQuality mirrors MillionVerifier's three-bucket quality classes, the
// shape the contact-finder's verifier fixtures are built around.
type EmailQuality string

const (
	EmailQualityGood EmailQuality = "good"
	EmailQualityRisky EmailQuality = "risky"
	EmailQualityBad   EmailQuality = "bad"
)

// EmailVerifyResult is the outcome of checking one candidate address.
type EmailVerifyResult struct {
	Deliverable     bool
	Quality         EmailQuality
	ConfidenceScore int
	IsFree          bool
	IsRole          bool
	DidYouMean      string
	Error           string
}

// EmailVerifyClient is the minimal surface a deliverability-verification
// API needs, modeled on MillionVerifier's single-address check endpoint
// referenced throughout original_source/contact-finder's test suite.
type EmailVerifyClient interface {
	VerifyEmail(ctx context.Context, email string) (EmailVerifyResult, error)
}

// HTTPEmailVerifyClient is a generic JSON-over-HTTP EmailVerifyClient.
type HTTPEmailVerifyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func (c *HTTPEmailVerifyClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 8 * time.Second}
}

type verifyAPIResponse struct {
	Result     string `json:"result"`
	Quality    string `json:"quality"`
	Confidence int    `json:"confidence_score"`
	Free       bool   `json:"free"`
	Role       bool   `json:"role"`
	DidYouMean string `json:"did_you_mean"`
	Error      string `json:"error"`
}

func (c *HTTPEmailVerifyClient) VerifyEmail(ctx context.Context, email string) (EmailVerifyResult, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return EmailVerifyResult{}, err
	}
	q := url.Values{"email": {email}}
	if c.APIKey != "" {
		q.Set("api", c.APIKey)
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return EmailVerifyResult{}, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return EmailVerifyResult{}, fmt.Errorf("email_verify request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return EmailVerifyResult{}, fmt.Errorf("email_verify server error: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return EmailVerifyResult{}, fmt.Errorf("email_verify unexpected status: %d", resp.StatusCode)
	}
	var parsed verifyAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return EmailVerifyResult{}, fmt.Errorf("email_verify decode: %w", err)
	}
	return EmailVerifyResult{
		Deliverable:     parsed.Result == "ok" || parsed.Result == "deliverable",
		Quality:         EmailQuality(parsed.Quality),
		ConfidenceScore: parsed.Confidence,
		IsFree:          parsed.Free,
		IsRole:          parsed.Role,
		DidYouMean:      parsed.DidYouMean,
		Error:           parsed.Error,
	}, nil
}

// EmailVerifyAdapter verifies an explicit candidate email (q.Email) or, if
// none is given but a name and domain are, generates permutation
// candidates and verifies each in turn, stopping at the first deliverable
// hit. Grounded on original_source/contact-finder's generate_email_
// permutations / is_valid_for_permutation / split_name flow.
type EmailVerifyAdapter struct {
	Client EmailVerifyClient
	Retry  RetryPolicy
}

func NewEmailVerifyAdapter(client EmailVerifyClient) *EmailVerifyAdapter {
	return &EmailVerifyAdapter{Client: client, Retry: DefaultRetryPolicy()}
}

func (a *EmailVerifyAdapter) Name() string { return "email_verify" }

func (a *EmailVerifyAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	candidates := []string{}
	if q.Email != "" {
		candidates = append(candidates, q.Email)
	} else if q.Name != "" && q.CandidateURL != "" {
		domain := hostFromWebsite(q.CandidateURL)
		candidates = GenerateEmailPermutations(q.Name, domain)
	}
	if len(candidates) == 0 {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "email, or name+domain, is required", Stage: a.Name(),
		}}
	}

	var out []model.Candidate
	checked := 0
	for _, addr := range candidates {
		checked++
		res, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
			vr, verr := a.Client.VerifyEmail(ctx, addr)
			if verr != nil {
				return Result{}, classifyHTTPErr(a.Name(), verr)
			}
			return Result{Raw: map[string]any{"verify": vr}}, nil
		})
		if err != nil {
			return AdapterResult{Err: toStructuredErr(a.Name(), err), Latency: time.Since(start)}
		}
		vr := res.Raw["verify"].(EmailVerifyResult)
		hint := confidenceFromQuality(vr)
		deliverable := vr.Deliverable
		cand := model.Candidate{
			Kind: model.ContactCandidateKind,
			ContactValue: &model.Contact{
				Email:   addr,
				Sources: []string{a.Name()},
				Signals: model.ContactSignals{
					EmailSyntacticallyValid: true,
					Deliverable:             &deliverable,
					IsRoleAccount:           vr.IsRole,
					IsPersonalDomain:        vr.IsFree,
				},
			},
			SourceTags:        []string{a.Name()},
			Signals:           map[string]bool{"permutation_verified": true},
			RawConfidenceHint: hint,
		}
		out = append(out, cand)
		if deliverable {
			break
		}
	}
	return AdapterResult{
		Result:  Result{Candidates: out, Raw: map[string]any{"permutations_checked": checked}},
		Latency: time.Since(start),
	}
}

func confidenceFromQuality(vr EmailVerifyResult) int {
	switch vr.Quality {
	case EmailQualityGood:
		return 90
	case EmailQualityRisky:
		return 55
	default:
		return 20
	}
}

// companyIndicators flags name fragments that mean a string is a business
// name rather than a person's name, so it should never feed permutation
// generation.
var companyIndicators = []string{
	" inc", " inc.", " llc", " corp", " corp.", " co.", " ltd", " plc",
	" company", " group", " holdings", " enterprises",
}

// isValidForPermutation reports whether name looks like a human full name
// suitable for generating email guesses, grounded on the original
// is_valid_for_permutation rules (reject company names, digits, and
// single initials).
func isValidForPermutation(name string) (bool, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return false, "empty name"
	}
	lower := strings.ToLower(trimmed)
	if containsAny(lower, companyIndicators) {
		return false, "looks like a company name"
	}
	if containsDigit(trimmed) {
		return false, "contains digits"
	}
	first, last := splitName(trimmed)
	if last == "" && len([]rune(first)) < 2 {
		return false, "single initial is too short"
	}
	return true, ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var nameTitlesAndSuffixes = map[string]bool{
	"dr": true, "dr.": true, "mr": true, "mr.": true, "mrs": true, "mrs.": true,
	"ms": true, "ms.": true, "prof": true, "prof.": true,
	"jr": true, "jr.": true, "sr": true, "sr.": true, "ii": true, "iii": true, "iv": true,
}

// splitName returns (first, last), dropping honorific prefixes and
// generational suffixes, and using the final remaining token as the last
// name when more than two tokens remain (e.g. "John David Smith" -> "David
// Smith" is discarded in favor of just "Smith" as spec requires the last
// word as the surname).
func splitName(full string) (first, last string) {
	tokens := strings.Fields(full)
	var kept []string
	for _, tok := range tokens {
		if nameTitlesAndSuffixes[strings.ToLower(strings.TrimSuffix(tok, "."))] {
			continue
		}
		kept = append(kept, tok)
	}
	switch len(kept) {
	case 0:
		return "", ""
	case 1:
		return transliterate(kept[0]), ""
	default:
		return transliterate(kept[0]), transliterate(kept[len(kept)-1])
	}
}

// transliterate strips diacritics so "José" becomes "jose", matching the
// original permutator's unicode-to-ASCII folding behavior.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// GenerateEmailPermutations builds the standard set of first/last-name
// based local-part guesses for domain, in the same order and count the
// original contact-finder's generate_email_permutations produces: eight
// patterns for a full name, one (firstname@) when only a first name is
// known, and none for a name that fails isValidForPermutation (e.g. a
// company name).
func GenerateEmailPermutations(fullName, domain string) []string {
	if domain == "" {
		return nil
	}
	if ok, _ := isValidForPermutation(fullName); !ok {
		return nil
	}
	first, last := splitName(fullName)
	if first == "" {
		return nil
	}
	if last == "" {
		return []string{fmt.Sprintf("%s@%s", first, domain)}
	}
	firstInitial := first[:1]
	patterns := []string{
		fmt.Sprintf("%s@%s", first, domain),
		fmt.Sprintf("%s.%s@%s", first, last, domain),
		fmt.Sprintf("%s%s@%s", first, last, domain),
		fmt.Sprintf("%s_%s@%s", first, last, domain),
		fmt.Sprintf("%s.%s@%s", firstInitial, last, domain),
		fmt.Sprintf("%s%s@%s", firstInitial, last, domain),
		fmt.Sprintf("%s.%s@%s", last, first, domain),
		fmt.Sprintf("%s%s@%s", last, first, domain),
	}
	return patterns
}
