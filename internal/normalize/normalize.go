// Package normalize implements the Input Normalizer (C1): a deterministic,
// pure transform from a raw CompanyInput into a NormalizedInput carrying a
// data-completeness Tier and a BusinessType routing class.
//
// The tier table and keyword classification follow the same shape as the
// original Python PathRouter's tier definitions, translated to Go.
package normalize

import (
	"regexp"
	"strings"

	"github.com/resolveco/resolveco/internal/model"
)

var placeholderValues = map[string]struct{}{
	"unknown": {}, "n/a": {}, "na": {}, "none": {}, "-": {}, "null": {},
}

func isPlaceholder(s string) bool {
	_, ok := placeholderValues[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return ""
	}
	return s
}

var (
	schemeRe = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)
	wwwRe    = regexp.MustCompile(`(?i)^www\.`)
	nonDigit = regexp.MustCompile(`\D+`)
)

// cleanDomain strips scheme, www, path, port, and lower-cases a domain-like
// field, matching spec §4.1's "strip URL schemes, www., paths, ports".
func cleanDomain(raw string) string {
	s := clean(raw)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = schemeRe.ReplaceAllString(s, "")
	s = wwwRe.ReplaceAllString(s, "")
	// Drop path/query/fragment.
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	// Drop port.
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, ".")
}

// coercePhoneE164 makes a best-effort conversion to E.164. It assumes a US/
// Canada subscriber number when exactly 10 digits are present (no country
// code), matching the sample data in spec §8's worked scenarios
// ("+16175551234"). When coercion is not possible, the cleaned digits are
// returned unprefixed so callers can still compare suffixes.
func coercePhoneE164(raw string) string {
	s := clean(raw)
	if s == "" {
		return ""
	}
	digits := nonDigit.ReplaceAllString(s, "")
	switch {
	case strings.HasPrefix(s, "+"):
		return "+" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	default:
		return digits
	}
}

// chainBrands maps lowercase franchise/chain name fragments to the
// Franchise business type. Grounded on the same curated-static-map idiom
// used by the Go email-finder's wellKnownCompanies table.
var chainBrands = []string{
	"mcdonald", "subway", "burger king", "kfc", "wendy", "taco bell",
	"dunkin", "starbucks", "pizza hut", "domino", "papa john",
	"marriott", "hilton", "holiday inn", "best western",
	"7-eleven", "circle k", "ace hardware", "h&r block", "great clips",
	"supercuts", "anytime fitness", "orangetheory", "planet fitness",
}

var clinicalKeywords = []string{
	"nursing home", "care center", "assisted living", "rehabilitation",
	"rehab", "clinic", "medical center", "hospital", "dental", "dentist",
	"physical therapy", "urgent care", "healthcare", "health care",
	"pharmacy", "chiropractic", "pediatric", "memory care", "hospice",
}

var corporateSizeWords = []string{
	"inc.", "incorporated", "corporation", "corp.", "holdings",
	"enterprises", "international", "global", "group plc", "plc",
	"n.v.", "s.a.", "ag",
}

func containsAny(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// classifyBusinessType applies keyword matches against name/category/context
// in priority order: franchise, healthcare, corporate, otherwise smb.
func classifyBusinessType(name, category, context string) model.BusinessType {
	blob := name + " " + category + " " + context
	switch {
	case containsAny(blob, chainBrands):
		return model.BusinessFranchise
	case containsAny(blob, clinicalKeywords):
		return model.BusinessHealth
	case containsAny(blob, corporateSizeWords):
		return model.BusinessCorporate
	default:
		return model.BusinessSMB
	}
}

// classifyTier implements the field-presence table from spec §3.
func classifyTier(name, city, phone, category, context string) model.Tier {
	switch {
	case name != "" && city != "" && phone != "":
		return model.Tier1
	case name != "" && city != "":
		return model.Tier2
	case name != "" && (category != "" || context != ""):
		return model.Tier3
	case name != "":
		return model.Tier4
	default:
		return model.TierUnknown
	}
}

// Normalize cleans and classifies a CompanyInput. It is pure and
// idempotent: re-normalizing an already-normalized input's cleaned fields
// yields the same tier, business type, and field values.
func Normalize(in model.CompanyInput) model.NormalizedInput {
	var warnings []string

	name := clean(in.Name)
	if name == "" {
		warnings = append(warnings, "missing required field: name")
	}
	city := clean(in.City)
	state := clean(in.State)
	phone := coercePhoneE164(in.Phone)
	address := clean(in.Address)
	category := clean(in.Category)
	context := clean(in.Context)
	domain := cleanDomain(in.Domain)

	tier := classifyTier(name, city, phone, category, context)
	businessType := classifyBusinessType(name, category, context)

	cleaned := map[string]string{
		"name":     name,
		"city":     city,
		"state":    state,
		"phone":    phone,
		"address":  address,
		"category": category,
		"context":  context,
	}
	if domain != "" {
		cleaned["domain"] = domain
	}

	return model.NormalizedInput{
		Input:         in,
		Tier:          tier,
		BusinessType:  businessType,
		CleanedFields: cleaned,
		Warnings:      warnings,
	}
}
