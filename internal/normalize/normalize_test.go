package normalize

import (
	"testing"

	"github.com/resolveco/resolveco/internal/model"
)

func TestTierClassificationFromSpecTable(t *testing.T) {
	cases := []struct {
		name string
		in   model.CompanyInput
		want model.Tier
	}{
		{"tier1", model.CompanyInput{Name: "Meadowbrook Care Center", City: "Boston", Phone: "+16175551234"}, model.Tier1},
		{"tier2", model.CompanyInput{Name: "Acme Plumbing", City: "Reno"}, model.Tier2},
		{"tier3 category", model.CompanyInput{Name: "Acme Analytics", Category: "B2B SaaS"}, model.Tier3},
		{"tier3 context", model.CompanyInput{Name: "Acme Analytics", Context: "B2B SaaS"}, model.Tier3},
		{"tier4", model.CompanyInput{Name: "Acme Analytics"}, model.Tier4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Normalize(c.in)
			if got.Tier != c.want {
				t.Fatalf("tier = %v, want %v", got.Tier, c.want)
			}
		})
	}
}

func TestBusinessTypeClassification(t *testing.T) {
	cases := []struct {
		name string
		in   model.CompanyInput
		want model.BusinessType
	}{
		{"franchise", model.CompanyInput{Name: "McDonald's #4821"}, model.BusinessFranchise},
		{"healthcare", model.CompanyInput{Name: "Meadowbrook", Context: "nursing home"}, model.BusinessHealth},
		{"corporate", model.CompanyInput{Name: "Acme Holdings Inc."}, model.BusinessCorporate},
		{"smb default", model.CompanyInput{Name: "Joe's Pizza"}, model.BusinessSMB},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Normalize(c.in)
			if got.BusinessType != c.want {
				t.Fatalf("business type = %v, want %v", got.BusinessType, c.want)
			}
		})
	}
}

func TestPhoneCoercionToE164(t *testing.T) {
	cases := map[string]string{
		"(617) 555-1234":  "+16175551234",
		"617-555-1234":    "+16175551234",
		"+1 617 555 1234": "+16175551234",
		"16175551234":     "+16175551234",
	}
	for in, want := range cases {
		got := Normalize(model.CompanyInput{Name: "X", Phone: in}).CleanedFields["phone"]
		if got != want {
			t.Errorf("coercePhoneE164(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDomainCleanup(t *testing.T) {
	cases := map[string]string{
		"https://www.Acme.com/about":  "acme.com",
		"HTTP://acme.com:8080":        "acme.com",
		"www.acme.com":                "acme.com",
		"acme.com.":                   "acme.com",
	}
	for in, want := range cases {
		got := Normalize(model.CompanyInput{Name: "X", Domain: in}).CleanedFields["domain"]
		if got != want {
			t.Errorf("cleanDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlaceholderValuesAreDropped(t *testing.T) {
	in := model.CompanyInput{Name: "Acme", City: "unknown", Phone: "N/A"}
	got := Normalize(in)
	if got.CleanedFields["city"] != "" {
		t.Fatalf("expected placeholder city dropped, got %q", got.CleanedFields["city"])
	}
	if got.Tier != model.Tier4 {
		t.Fatalf("expected tier4 once placeholders are dropped, got %v", got.Tier)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := model.CompanyInput{Name: "Acme Analytics", City: "Reno", Phone: "775-555-0100", Domain: "https://www.acme.com/"}
	first := Normalize(in)
	reInput := model.CompanyInput{
		Name:  first.CleanedFields["name"],
		City:  first.CleanedFields["city"],
		Phone: first.CleanedFields["phone"],
		Domain: first.CleanedFields["domain"],
	}
	second := Normalize(reInput)
	if first.Tier != second.Tier || first.BusinessType != second.BusinessType {
		t.Fatalf("normalize not idempotent: %+v vs %+v", first, second)
	}
	if first.CleanedFields["domain"] != second.CleanedFields["domain"] {
		t.Fatalf("domain cleanup not idempotent: %q vs %q", first.CleanedFields["domain"], second.CleanedFields["domain"])
	}
}

func TestMissingNameWarns(t *testing.T) {
	got := Normalize(model.CompanyInput{City: "Reno"})
	if len(got.Warnings) == 0 {
		t.Fatalf("expected a warning for missing name")
	}
}
