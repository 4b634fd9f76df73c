package adapters

import (
	"context"
	"testing"

	"github.com/resolveco/resolveco/internal/model"
)

func TestTextExtractProducesContactCandidates(t *testing.T) {
	a := NewTextExtractAdapter()
	res := a.Call(context.Background(), Query{CandidateHTML: []byte(sampleBizHTML)})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	var sawEmail, sawPhone, sawLinkedIn bool
	for _, c := range res.Result.Candidates {
		if c.Kind != model.ContactCandidateKind || c.ContactValue == nil {
			t.Fatalf("expected contact candidate, got %+v", c)
		}
		switch {
		case c.ContactValue.Email != "":
			sawEmail = true
		case c.ContactValue.Phone != "":
			sawPhone = true
		case c.ContactValue.LinkedInURL != "":
			sawLinkedIn = true
		}
	}
	if !sawEmail || !sawPhone || !sawLinkedIn {
		t.Fatalf("expected email, phone, and linkedin candidates; got email=%v phone=%v linkedin=%v", sawEmail, sawPhone, sawLinkedIn)
	}
}

func TestTextExtractRequiresHTML(t *testing.T) {
	a := NewTextExtractAdapter()
	res := a.Call(context.Background(), Query{})
	if res.Err == nil || res.Err.Kind != model.ErrInputInvalid {
		t.Fatalf("expected input_invalid error, got %+v", res.Err)
	}
}

const sampleBizHTML = `<html><body><main>
<p>Contact us at sales@acme-plumbing.com or call (617) 555-7890.</p>
<p><a href="https://www.linkedin.com/company/acme-plumbing">Follow us on LinkedIn</a></p>
<p>Acme Plumbing has been serving the greater Boston area for over twenty years.</p>
</main></body></html>`
