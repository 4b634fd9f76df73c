package validator

import (
	"testing"

	"github.com/resolveco/resolveco/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestScoreStrongContactClearsValidThreshold(t *testing.T) {
	c := model.Contact{
		Name:        "Jane Smith",
		Title:       "Owner",
		Email:       "jane@acmeplumbing.com",
		LinkedInURL: "https://www.linkedin.com/in/janesmith/",
		Sources:     []string{"site_scrape", "web_search_kg"},
		Signals: model.ContactSignals{
			EmailSyntacticallyValid: true,
			Deliverable:             boolPtr(true),
		},
	}
	scored, b := ApplyScore(c, "Acme Plumbing", "acmeplumbing.com")
	if scored.Confidence < ValidThreshold {
		t.Fatalf("expected confidence >= %d, got %d (breakdown %+v)", ValidThreshold, scored.Confidence, b)
	}
	if !scored.IsValid {
		t.Fatalf("expected is_valid true, got breakdown %+v", b)
	}
}

func TestScoreGenericInboxWithoutNameIsPenalized(t *testing.T) {
	withName := model.Contact{Name: "Jane Smith", Email: "info@acme.com", Signals: model.ContactSignals{EmailSyntacticallyValid: true}}
	withoutName := model.Contact{Email: "info@acme.com", Signals: model.ContactSignals{EmailSyntacticallyValid: true}}
	bWith := Score(withName, "Acme", "acme.com")
	bWithout := Score(withoutName, "Acme", "acme.com")
	if bWithout.Total >= bWith.Total {
		t.Fatalf("expected generic inbox without a name to score lower: with=%d without=%d", bWith.Total, bWithout.Total)
	}
	if bWithout.Penalties < penaltyGenericInboxNoName {
		t.Fatalf("expected the generic-inbox penalty applied, got breakdown %+v", bWithout)
	}
}

func TestScoreFreeProviderPenalizedWhenCompanyHasDomain(t *testing.T) {
	c := model.Contact{Name: "Jane Smith", Email: "jane.smith@gmail.com", Signals: model.ContactSignals{EmailSyntacticallyValid: true}}
	b := Score(c, "Acme Plumbing", "acmeplumbing.com")
	if b.Penalties < penaltyFreeProviderHasDomain {
		t.Fatalf("expected free-provider penalty, got %+v", b)
	}
}

func TestScoreKnownDirectoryBrandNameIsPenalized(t *testing.T) {
	c := model.Contact{Name: "Yelp"}
	b := Score(c, "Acme Plumbing", "acmeplumbing.com")
	if b.Penalties < penaltyNameIsKnownBrand {
		t.Fatalf("expected known-brand-name penalty, got %+v", b)
	}
}

func TestScoreCompanyNameEchoIsNotPlausible(t *testing.T) {
	c := model.Contact{Name: "Acme Plumbing"}
	b := Score(c, "Acme Plumbing", "acmeplumbing.com")
	if b.Name != 0 {
		t.Fatalf("expected no name credit when name echoes the company name, got %d", b.Name)
	}
}

func TestIsValidRequiresStrongEvidenceEvenAboveThreshold(t *testing.T) {
	// High syntax/title/multi-source points but no verified email, no
	// phone+name, no linkedin+name: should not be valid regardless of score.
	c := model.Contact{
		Title:   "Owner",
		Email:   "jane@acmeplumbing.com",
		Sources: []string{"site_scrape", "web_search_kg"},
		Signals: model.ContactSignals{EmailSyntacticallyValid: true},
	}
	scored, b := ApplyScore(c, "Acme Plumbing", "acmeplumbing.com")
	if scored.IsValid {
		t.Fatalf("expected is_valid false without strong corroborating evidence, breakdown=%+v", b)
	}
}

func TestRoleAccountOverriddenByStrongNameEvidence(t *testing.T) {
	c := model.Contact{
		Name:  "Jane Smith",
		Email: "info@acmeplumbing.com",
		Signals: model.ContactSignals{
			EmailSyntacticallyValid: true,
			NameMatchesDomainConvent: true,
		},
	}
	b := Score(c, "Acme Plumbing", "acmeplumbing.com")
	if b.NotRoleAccount == 0 {
		t.Fatalf("expected the not-role-account credit to survive given strong name evidence, got %+v", b)
	}
}

func TestNormalizeLinkedInURLPersonShape(t *testing.T) {
	norm, kind, ok := NormalizeLinkedInURL("HTTPS://www.LinkedIn.com/in/JaneSmith/?trk=abc")
	if !ok || kind != LinkedInPerson {
		t.Fatalf("expected a normalized person URL, got %q kind=%q ok=%v", norm, kind, ok)
	}
	if norm != "https://linkedin.com/in/JaneSmith" {
		t.Fatalf("unexpected normalized form: %q", norm)
	}
}

func TestNormalizeLinkedInURLCompanyShape(t *testing.T) {
	norm, kind, ok := NormalizeLinkedInURL("linkedin.com/company/acme-plumbing")
	if !ok || kind != LinkedInCompany {
		t.Fatalf("expected a normalized company URL, got %q kind=%q ok=%v", norm, kind, ok)
	}
}

func TestNormalizeLinkedInURLStripsLocaleSubdomain(t *testing.T) {
	norm, kind, ok := NormalizeLinkedInURL("https://fr.linkedin.com/in/jane-smith")
	if !ok || kind != LinkedInPerson {
		t.Fatalf("expected locale subdomain stripped to a valid person URL, got %q ok=%v", norm, ok)
	}
}

func TestNormalizeLinkedInURLIsIdempotent(t *testing.T) {
	first, kind1, ok1 := NormalizeLinkedInURL("https://www.linkedin.com/in/jane-smith/")
	if !ok1 {
		t.Fatalf("expected first normalization to succeed")
	}
	second, kind2, ok2 := NormalizeLinkedInURL(first)
	if !ok2 || second != first || kind1 != kind2 {
		t.Fatalf("expected idempotent normalization: first=%q second=%q", first, second)
	}
}

func TestNormalizeLinkedInURLRejectsNonLinkedInHost(t *testing.T) {
	_, _, ok := NormalizeLinkedInURL("https://www.facebook.com/in/jane-smith")
	if ok {
		t.Fatalf("expected rejection of a non-linkedin host")
	}
}

func TestNormalizeLinkedInURLRejectsMissingSlug(t *testing.T) {
	_, _, ok := NormalizeLinkedInURL("https://www.linkedin.com/in/")
	if ok {
		t.Fatalf("expected rejection of a missing profile slug")
	}
}
