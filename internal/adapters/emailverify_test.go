package adapters

import (
	"context"
	"testing"
)

type fakeEmailVerifyClient struct {
	results map[string]EmailVerifyResult
}

func (f *fakeEmailVerifyClient) VerifyEmail(ctx context.Context, email string) (EmailVerifyResult, error) {
	if r, ok := f.results[email]; ok {
		return r, nil
	}
	return EmailVerifyResult{Quality: EmailQualityBad, Deliverable: false}, nil
}

func TestGenerateEmailPermutationsFullName(t *testing.T) {
	perms := GenerateEmailPermutations("John Smith", "example.com")
	if len(perms) != 8 {
		t.Fatalf("expected 8 permutations for a full name, got %d: %v", len(perms), perms)
	}
	if perms[0] != "john@example.com" {
		t.Fatalf("expected first permutation to be firstname@, got %q", perms[0])
	}
}

func TestGenerateEmailPermutationsFirstNameOnly(t *testing.T) {
	perms := GenerateEmailPermutations("John", "example.com")
	if len(perms) != 1 || perms[0] != "john@example.com" {
		t.Fatalf("expected single firstname@ permutation, got %v", perms)
	}
}

func TestGenerateEmailPermutationsRejectsCompanyName(t *testing.T) {
	perms := GenerateEmailPermutations("ABC Corp LLC", "company.com")
	if len(perms) != 0 {
		t.Fatalf("expected no permutations for a company name, got %v", perms)
	}
}

func TestGenerateEmailPermutationsTransliteratesUnicode(t *testing.T) {
	perms := GenerateEmailPermutations("María García", "test.io")
	if len(perms) != 8 {
		t.Fatalf("expected 8 permutations, got %d", len(perms))
	}
	if perms[0] != "maria@test.io" {
		t.Fatalf("expected diacritics stripped, got %q", perms[0])
	}
}

func TestSplitNameDropsTitlesAndSuffixes(t *testing.T) {
	first, last := splitName("Dr. John Smith Jr.")
	if first != "john" || last != "smith" {
		t.Fatalf("expected john/smith, got %q/%q", first, last)
	}
}

func TestEmailVerifyAdapterStopsAtFirstDeliverable(t *testing.T) {
	client := &fakeEmailVerifyClient{results: map[string]EmailVerifyResult{
		"john.smith@acme.com": {Deliverable: true, Quality: EmailQualityGood},
	}}
	a := NewEmailVerifyAdapter(client)
	res := a.Call(context.Background(), Query{Name: "John Smith", CandidateURL: "https://acme.com"})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Result.Candidates) == 0 {
		t.Fatalf("expected at least one candidate")
	}
	last := res.Result.Candidates[len(res.Result.Candidates)-1]
	if last.ContactValue.Email != "john.smith@acme.com" {
		t.Fatalf("expected to stop at the deliverable permutation, got %q", last.ContactValue.Email)
	}
	if !*last.ContactValue.Signals.Deliverable {
		t.Fatalf("expected deliverable signal to be true")
	}
}

func TestEmailVerifyAdapterRequiresEmailOrNameAndDomain(t *testing.T) {
	a := NewEmailVerifyAdapter(&fakeEmailVerifyClient{})
	res := a.Call(context.Background(), Query{})
	if res.Err == nil {
		t.Fatalf("expected input_invalid error")
	}
}
