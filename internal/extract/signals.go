package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signals is the set of contact-relevant observations the Text Extractor
// (C3) pulls from a fetched page, beyond the plain-text Document. It feeds
// both the Contact Discovery Controller (C7) and the Contact Validator (C8).
type Signals struct {
	Phones      []string
	Emails      []string
	SocialURLs  map[string]string // platform -> URL, e.g. "linkedin" -> "https://linkedin.com/company/acme"
	SchemaOrg   SchemaOrgOrg
	MinContentMet bool
}

// SchemaOrgOrg is the subset of a schema.org Organization JSON-LD block
// relevant to contact discovery and domain verification.
type SchemaOrgOrg struct {
	Name        string
	Telephone   string
	Email       string
	SameAs      []string
	AddressText string
}

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)

	socialHostPatterns = map[string]*regexp.Regexp{
		"linkedin":  regexp.MustCompile(`(?i)https?://([a-z]{2,3}\.)?linkedin\.com/[^\s"'<>]+`),
		"facebook":  regexp.MustCompile(`(?i)https?://(www\.)?facebook\.com/[^\s"'<>]+`),
		"twitter_x": regexp.MustCompile(`(?i)https?://(www\.)?(twitter|x)\.com/[^\s"'<>]+`),
		"instagram": regexp.MustCompile(`(?i)https?://(www\.)?instagram\.com/[^\s"'<>]+`),
	}
)

// minContentChars is the floor below which extracted text is considered
// too thin to trust for contact discovery.
const minContentChars = 50

// ExtractSignals scans raw HTML for phones, emails, social profile links,
// and a schema.org Organization block. It is independent of FromHTML's
// readability pass so callers can run both over the same bytes.
func ExtractSignals(input []byte) Signals {
	sig := Signals{SocialURLs: map[string]string{}}

	text := string(input)
	sig.Emails = dedupe(emailRe.FindAllString(text, -1))
	sig.Phones = dedupe(phoneRe.FindAllString(text, -1))

	for platform, re := range socialHostPatterns {
		if m := re.FindString(text); m != "" {
			sig.SocialURLs[platform] = strings.TrimRight(m, `."',`)
		}
	}

	sig.SchemaOrg = extractSchemaOrg(input)

	doc := FromHTML(input)
	sig.MinContentMet = len(strings.TrimSpace(doc.Text)) >= minContentChars

	return sig
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

type jsonLDOrganization struct {
	Type      any    `json:"@type"`
	Name      string `json:"name"`
	Telephone string `json:"telephone"`
	Email     string `json:"email"`
	SameAs    any    `json:"sameAs"`
	Address   any    `json:"address"`
}

// extractSchemaOrg locates a <script type="application/ld+json"> block
// describing an Organization (or LocalBusiness, which schema.org treats as
// an Organization subtype) and decodes its contact-relevant fields.
func extractSchemaOrg(input []byte) SchemaOrgOrg {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return SchemaOrgOrg{}
	}
	var out SchemaOrgOrg
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw jsonLDOrganization
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		if !isOrganizationType(raw.Type) {
			return true
		}
		out.Name = raw.Name
		out.Telephone = raw.Telephone
		out.Email = raw.Email
		out.SameAs = toStringSlice(raw.SameAs)
		out.AddressText = addressToText(raw.Address)
		return false
	})
	return out
}

func isOrganizationType(v any) bool {
	match := func(s string) bool {
		s = strings.ToLower(s)
		return strings.Contains(s, "organization") || strings.Contains(s, "localbusiness") ||
			strings.Contains(s, "corporation")
	}
	switch t := v.(type) {
	case string:
		return match(t)
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && match(s) {
				return true
			}
		}
	}
	return false
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func addressToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		parts := []string{}
		for _, k := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
			if s, ok := t[k].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
