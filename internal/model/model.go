// Package model holds the shared record types that flow through the
// resolution pipeline: the input company row, the normalized/tiered view
// of it, candidates produced by source adapters, and the final resolved
// record persisted by the orchestrator.
package model

import "time"

// CompanyInput is the immutable input record for one company row.
type CompanyInput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Category string `json:"category,omitempty"`
	Context  string `json:"context,omitempty"`
}

// Tier classifies how much usable data a row carries, 1 being the best.
type Tier int

const (
	TierUnknown Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	case Tier4:
		return "tier4"
	default:
		return "tier_unknown"
	}
}

// BusinessType is the routing class used to pick a contact-discovery order.
type BusinessType string

const (
	BusinessUnknown   BusinessType = ""
	BusinessSMB       BusinessType = "smb"
	BusinessFranchise BusinessType = "franchise"
	BusinessHealth    BusinessType = "healthcare"
	BusinessCorporate BusinessType = "corporate"
)

// NormalizedInput is the output of the Input Normalizer (C1).
type NormalizedInput struct {
	Input        CompanyInput
	Tier         Tier
	BusinessType BusinessType
	// CleanedFields holds post-cleanup values keyed by field name, e.g.
	// "phone" -> E.164, "domain" -> bare host.
	CleanedFields map[string]string
	Warnings      []string
}

// CandidateKind discriminates the sum-type Candidate value.
type CandidateKind string

const (
	DomainCandidateKind  CandidateKind = "domain"
	ContactCandidateKind CandidateKind = "contact"
)

// Candidate is a proposed domain or contact with provenance. It is the
// tagged-variant replacement (per spec §9) for a dynamically-typed
// candidate dict: callers switch on Kind rather than probing for fields.
type Candidate struct {
	Kind CandidateKind

	// Value is the domain string (DomainCandidateKind) or a Contact
	// (ContactCandidateKind, via ContactValue).
	Value        string
	ContactValue *Contact

	SourceTags []string
	// Signals are corroborating observations, e.g. "phone_on_page",
	// "address_on_page", "schema_org_name_match".
	Signals map[string]bool
	// RawConfidenceHint is the source adapter's own confidence estimate,
	// 0-100, before any scoring/judging is applied.
	RawConfidenceHint int
}

// ContactSignals are the bounded set of observations the validator scores.
type ContactSignals struct {
	EmailSyntacticallyValid  bool
	Deliverable              *bool // nil = unknown/unchecked
	IsRoleAccount            bool
	IsPersonalDomain         bool
	LinkedInNormalized       bool
	NameMatchesDomainConvent bool
}

// Contact is a discovered human contact at a resolved company.
type Contact struct {
	Name        string         `json:"name,omitempty"`
	Title       string         `json:"title,omitempty"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	LinkedInURL string         `json:"linkedin_url,omitempty"`
	Sources     []string       `json:"sources"`
	Signals     ContactSignals `json:"signals"`
	Confidence  int            `json:"confidence"`
	IsValid     bool           `json:"is_valid"`
}

// ErrorKind enumerates the error classes from spec §7.
type ErrorKind string

const (
	ErrInputInvalid      ErrorKind = "input_invalid"
	ErrAdapterTimeout    ErrorKind = "adapter_timeout"
	ErrAdapterHTTPError  ErrorKind = "adapter_http_error"
	ErrAdapterQuota      ErrorKind = "adapter_quota"
	ErrParseError        ErrorKind = "parse_error"
	ErrJudgeUnavailable  ErrorKind = "judge_unavailable"
	ErrNoCandidate       ErrorKind = "no_candidate"
	ErrValidationFailed  ErrorKind = "validation_failed"
	ErrDeadlineExceeded  ErrorKind = "deadline_exceeded"
	ErrPersistenceError  ErrorKind = "persistence_error"
)

// StructuredError is an auditable, serializable error entry. It is never
// surfaced to a caller as an exception; it is appended to a record's error
// list and the pipeline continues.
type StructuredError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
	Stage  string    `json:"stage,omitempty"`
}

func (e StructuredError) Error() string {
	if e.Stage != "" {
		return string(e.Kind) + " at " + e.Stage + ": " + e.Detail
	}
	return string(e.Kind) + ": " + e.Detail
}

// ResolvedRecord is the per-row output of the pipeline.
type ResolvedRecord struct {
	InputID           string            `json:"input_id"`
	Domain            string            `json:"domain,omitempty"`
	DomainConfidence  int               `json:"domain_confidence"`
	DomainSource      string            `json:"domain_source,omitempty"`
	NeedsManualReview bool              `json:"needs_manual_review"`
	Contacts          []Contact         `json:"contacts"`
	StagesCompleted   []string          `json:"stages_completed"`
	TotalCost         float64           `json:"total_cost"`
	Errors            []StructuredError `json:"errors"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Freeze enforces the invariant that a null domain always carries zero
// confidence and a manual-review flag (spec §3 invariants).
func (r *ResolvedRecord) Freeze() {
	if r.Domain == "" {
		r.DomainConfidence = 0
		r.NeedsManualReview = true
	}
}

// TopContact returns the highest-confidence contact, or nil if none.
func (r *ResolvedRecord) TopContact() *Contact {
	var best *Contact
	for i := range r.Contacts {
		c := &r.Contacts[i]
		if best == nil || c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}
