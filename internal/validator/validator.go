// Package validator implements the Contact Validator (C8): a deterministic,
// bounded sub-score scorer that turns a discovered contact's signals into a
// 0-100 confidence and an is_valid verdict, plus LinkedIn URL normalization.
//
// Grounded on internal/validate's "deterministic, individually-capped
// breakdown" pattern (ValidateCitations, ValidateAudienceFit), repurposed
// from prose-quality checks to contact scoring: every signal contributes an
// independently bounded number of points so no single observation can
// dominate the total.
package validator

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/resolveco/resolveco/internal/model"
)

// ValidThreshold is the minimum confidence for is_valid to hold, subject
// also to the strong-evidence requirement in IsValid.
const ValidThreshold = 50

const (
	maxName              = 20
	maxTitle             = 15
	maxEmailSyntax       = 10
	maxEmailDeliverable  = 15
	maxEmailDomainMatch  = 15
	maxNotRoleAccount    = 10
	maxLinkedInNormalized = 10
	maxMultiSource       = 5

	penaltyGenericInboxNoName = 20
	penaltyFreeProviderHasDomain = 15
	penaltyNameIsKnownBrand   = 30
)

// ScoreBreakdown explains how a contact's confidence was assembled.
type ScoreBreakdown struct {
	Name              int
	Title             int
	EmailSyntax       int
	EmailDeliverable  int
	EmailDomainMatch  int
	NotRoleAccount    int
	LinkedInNormalized int
	MultiSource       int
	Penalties         int
	Total             int
}

// genericTitles are job-title strings too vague to credit as "present and
// non-generic" (spec §4.8).
var genericTitles = map[string]bool{
	"staff": true, "employee": true, "team member": true, "member": true,
	"contact": true, "representative": true, "n/a": true, "unknown": true,
}

// roleAccounts are local-parts that name a function, not a person.
var roleAccounts = map[string]struct{}{
	"info": {}, "contact": {}, "sales": {}, "support": {}, "admin": {},
	"office": {}, "hello": {}, "team": {}, "help": {}, "service": {},
	"billing": {}, "hr": {}, "careers": {}, "marketing": {}, "inquiries": {},
	"general": {}, "reception": {}, "frontdesk": {}, "webmaster": {},
}

// freeProviders are free/personal email hosting domains.
var freeProviders = map[string]struct{}{
	"gmail.com": {}, "yahoo.com": {}, "hotmail.com": {}, "outlook.com": {},
	"aol.com": {}, "icloud.com": {}, "protonmail.com": {}, "live.com": {},
	"msn.com": {}, "mail.com": {},
}

// knownDirectoryBrands flags a discovered "name" that is actually the name
// of a directory/listing platform rather than a person, e.g. scraped from a
// listing page's own branding.
var knownDirectoryBrands = map[string]struct{}{
	"yelp": {}, "yellow pages": {}, "manta": {}, "bbb": {},
	"better business bureau": {}, "linkedin": {}, "facebook": {},
	"glassdoor": {}, "indeed": {}, "zoominfo": {}, "crunchbase": {},
}

var namePlausibleRe = regexp.MustCompile(`^[A-Za-z][A-Za-z.''\-]*(?: [A-Za-z][A-Za-z.''\-]*)+$`)
var emailSyntaxRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Score computes a contact's confidence and bounded breakdown given the
// company name and resolved company domain for context. It does not mutate
// c; call ApplyScore to write Confidence/IsValid back onto a Contact.
func Score(c model.Contact, companyName, companyDomain string) ScoreBreakdown {
	var b ScoreBreakdown

	if namePlausible(c.Name, companyName) {
		b.Name = maxName
	}

	if titlePresentAndSpecific(c.Title) {
		b.Title = maxTitle
	}

	if c.Signals.EmailSyntacticallyValid || (c.Email != "" && emailSyntaxRe.MatchString(c.Email)) {
		b.EmailSyntax = maxEmailSyntax
	}

	if c.Signals.Deliverable != nil && *c.Signals.Deliverable {
		b.EmailDeliverable = maxEmailDeliverable
	}

	if c.Email != "" && companyDomain != "" && emailDomainEquals(c.Email, companyDomain) {
		b.EmailDomainMatch = maxEmailDomainMatch
	}

	roleAccount := c.Signals.IsRoleAccount || isRoleAccountEmail(c.Email)
	strongNameEvidence := c.Name != "" && (c.Signals.NameMatchesDomainConvent || b.EmailDomainMatch > 0)
	if !roleAccount || strongNameEvidence {
		b.NotRoleAccount = maxNotRoleAccount
	}

	if c.LinkedInURL != "" {
		if _, kind, ok := NormalizeLinkedInURL(c.LinkedInURL); ok && kind == LinkedInPerson {
			b.LinkedInNormalized = maxLinkedInNormalized
		}
	}

	if len(uniqueNonEmpty(c.Sources)) >= 2 {
		b.MultiSource = maxMultiSource
	}

	penalties := 0
	if c.Email != "" && c.Name == "" && isRoleAccountEmail(c.Email) {
		penalties += penaltyGenericInboxNoName
	}
	if c.Email != "" && companyDomain != "" && isFreeProviderEmail(c.Email) {
		penalties += penaltyFreeProviderHasDomain
	}
	if matchesKnownBrand(c.Name) {
		penalties += penaltyNameIsKnownBrand
	}
	b.Penalties = penalties

	total := b.Name + b.Title + b.EmailSyntax + b.EmailDeliverable + b.EmailDomainMatch +
		b.NotRoleAccount + b.LinkedInNormalized + b.MultiSource - b.Penalties
	b.Total = clamp(total, 0, 100)
	return b
}

// ApplyScore scores c and writes Confidence/IsValid back, returning the
// updated contact and its breakdown.
func ApplyScore(c model.Contact, companyName, companyDomain string) (model.Contact, ScoreBreakdown) {
	b := Score(c, companyName, companyDomain)
	c.Confidence = b.Total
	c.IsValid = isValid(c, b)
	return c, b
}

// isValid implements spec §4.8: confidence >= threshold and at least one of
// {verified email, phone + name, LinkedIn + name} holds.
func isValid(c model.Contact, b ScoreBreakdown) bool {
	if b.Total < ValidThreshold {
		return false
	}
	verifiedEmail := c.Email != "" && b.EmailDeliverable > 0
	phoneAndName := c.Phone != "" && c.Name != ""
	linkedInAndName := c.LinkedInURL != "" && b.LinkedInNormalized > 0 && c.Name != ""
	return verifiedEmail || phoneAndName || linkedInAndName
}

func namePlausible(name, companyName string) bool {
	name = strings.TrimSpace(name)
	if name == "" || !namePlausibleRe.MatchString(name) {
		return false
	}
	if companyName != "" && strings.EqualFold(name, strings.TrimSpace(companyName)) {
		return false
	}
	return true
}

func titlePresentAndSpecific(title string) bool {
	t := strings.TrimSpace(strings.ToLower(title))
	if t == "" {
		return false
	}
	return !genericTitles[t]
}

func emailDomainEquals(email, companyDomain string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(email[at+1:], "www."))
	return host == strings.ToLower(strings.TrimPrefix(companyDomain, "www."))
}

func isRoleAccountEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	local := strings.ToLower(email[:at])
	_, ok := roleAccounts[local]
	return ok
}

func isFreeProviderEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	host := strings.ToLower(email[at+1:])
	_, ok := freeProviders[host]
	return ok
}

func matchesKnownBrand(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	_, ok := knownDirectoryBrands[n]
	return ok
}

func uniqueNonEmpty(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LinkedInKind discriminates a normalized LinkedIn URL's path shape.
type LinkedInKind string

const (
	LinkedInPerson  LinkedInKind = "person"
	LinkedInCompany LinkedInKind = "company"
)

// NormalizeLinkedInURL strips scheme, host case, www., locale subdomains,
// query, fragment, and trailing slash, and validates the path shape is
// either /in/<slug> (person) or /company/<slug>. It is idempotent: feeding
// its own output back in returns the same string and kind (spec invariant
// P6). Returns ok=false for anything that isn't a recognized LinkedIn
// profile/company path.
func NormalizeLinkedInURL(raw string) (normalized string, kind LinkedInKind, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	// Strip locale subdomains like "fr.linkedin.com" -> "linkedin.com".
	if idx := strings.LastIndex(host, "linkedin.com"); idx > 0 {
		host = host[idx:]
	}
	if host != "linkedin.com" {
		return "", "", false
	}
	path := strings.TrimSuffix(u.Path, "/")
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) < 2 || segs[1] == "" {
		return "", "", false
	}
	switch segs[0] {
	case "in":
		kind = LinkedInPerson
	case "company":
		kind = LinkedInCompany
	default:
		return "", "", false
	}
	slug := segs[1]
	return "https://linkedin.com/" + segs[0] + "/" + slug, kind, true
}
