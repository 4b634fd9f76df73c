// Package orchestrator implements the Orchestrator (C9): a bounded worker
// pool that drives the C1 -> C6 -> C7 -> C8 pipeline independently for
// each input row and persists the result, isolating one row's failure
// from the rest of the batch.
//
// Grounded on internal/app.App.Run's linear per-document pipeline, fanned
// out across rows with the same errgroup+semaphore bounded-concurrency
// shape internal/resolver already uses for candidate verification.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/contact"
	"github.com/resolveco/resolveco/internal/model"
	"github.com/resolveco/resolveco/internal/normalize"
	"github.com/resolveco/resolveco/internal/resolver"
	"github.com/resolveco/resolveco/internal/validator"
)

// DefaultConcurrency bounds how many rows run at once.
const DefaultConcurrency = 10

// DefaultRowDeadline bounds one row's total pipeline time, independent of
// C6's internal 45s deadline and C7's internal controller deadline.
const DefaultRowDeadline = 90 * time.Second

// Store is the minimal persistence contract C9 needs; internal/jobs
// implements it against sqlite.
type Store interface {
	SaveResult(ctx context.Context, rec model.ResolvedRecord) error
}

// Deps bundles the per-row collaborators.
type Deps struct {
	Resolver   *resolver.Resolver
	Contact    *contact.Controller
	Store      Store
	Concurrency int
	RowDeadline time.Duration

	// EmailVerify, when set, runs a final deliverability check (C8) over
	// every discovered contact's email before scoring: it confirms an
	// explicit address, or generates and checks name+domain permutations
	// for a contact that was found without one.
	EmailVerify *adapters.EmailVerifyAdapter
}

// Orchestrator drives the bounded worker pool across a batch of rows.
type Orchestrator struct {
	Deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultConcurrency
	}
	if deps.RowDeadline <= 0 {
		deps.RowDeadline = DefaultRowDeadline
	}
	return &Orchestrator{Deps: deps}
}

// Run processes every input row with bounded concurrency and returns the
// resolved records in input order. A row-level error never aborts the
// batch: it is recorded on that row's ResolvedRecord.Errors.
func (o *Orchestrator) Run(ctx context.Context, inputs []model.CompanyInput) []model.ResolvedRecord {
	results := make([]model.ResolvedRecord, len(inputs))
	sem := semaphore.NewWeighted(int64(o.Deps.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, in := range inputs {
		i, in := i, in
		if err := sem.Acquire(gctx, 1); err != nil {
			// Context already cancelled: record every remaining row as
			// deadline_exceeded rather than silently dropping it.
			results[i] = deadlineExceededRecord(in)
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = o.runRow(gctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runRow executes one row's full pipeline under its own deadline and
// persists the result, retrying exactly once on a persistence_error.
func (o *Orchestrator) runRow(ctx context.Context, in model.CompanyInput) model.ResolvedRecord {
	rec := model.ResolvedRecord{InputID: in.ID, StartedAt: time.Now().UTC()}

	rowCtx, cancel := context.WithTimeout(ctx, o.Deps.RowDeadline)
	defer cancel()

	normalized := normalize.Normalize(in)
	rec.Errors = append(rec.Errors, warningsToErrors(normalized.Warnings)...)

	domainOutcome := o.Deps.Resolver.Resolve(rowCtx, normalized)
	rec.Domain = domainOutcome.Domain
	rec.DomainConfidence = domainOutcome.Confidence
	rec.DomainSource = domainOutcome.Source
	rec.NeedsManualReview = domainOutcome.NeedsManualReview
	rec.StagesCompleted = append(rec.StagesCompleted, domainOutcome.StagesCompleted...)
	rec.Errors = append(rec.Errors, domainOutcome.Errors...)
	rec.TotalCost += domainOutcome.TotalCost

	if rowCtx.Err() != nil {
		rec.Errors = append(rec.Errors, model.StructuredError{
			Kind: model.ErrDeadlineExceeded, Detail: "row deadline exceeded before contact discovery", Stage: "orchestrator",
		})
		rec.Freeze()
		rec.CompletedAt = time.Now().UTC()
		o.persistWithRetry(ctx, rec)
		return rec
	}

	if rec.Domain != "" && o.Deps.Contact != nil {
		useLLM := domainOutcome.FinalState == resolver.StateAccepted && normalized.Tier >= 3
		contactOutcome := o.Deps.Contact.Discover(rowCtx, normalized, rec.Domain, useLLM)
		contacts := contactOutcome.Contacts
		if o.Deps.EmailVerify != nil {
			contacts = o.verifyDeliverability(rowCtx, contacts, rec.Domain)
		}
		rec.Contacts = scoreContacts(contacts, in.Name, rec.Domain)
		rec.StagesCompleted = append(rec.StagesCompleted, contactOutcome.StagesCompleted...)
		rec.Errors = append(rec.Errors, contactOutcome.Errors...)
		rec.TotalCost += contactOutcome.TotalCost
	}

	rec.Freeze()
	rec.CompletedAt = time.Now().UTC()
	o.persistWithRetry(ctx, rec)
	return rec
}

// verifyDeliverability runs o.Deps.EmailVerify over every contact lacking a
// deliverability signal: an explicit email is checked directly, a contact
// with only a name has permutation candidates generated and checked
// against domain, stopping at the first deliverable hit.
func (o *Orchestrator) verifyDeliverability(ctx context.Context, contacts []model.Contact, domain string) []model.Contact {
	out := make([]model.Contact, len(contacts))
	copy(out, contacts)
	for i, c := range out {
		if c.Signals.Deliverable != nil {
			continue
		}
		q := adapters.Query{Email: c.Email}
		if q.Email == "" {
			if c.Name == "" || domain == "" {
				continue
			}
			q = adapters.Query{Name: c.Name, CandidateURL: domain}
		}
		res := o.Deps.EmailVerify.Call(ctx, q)
		if res.Err != nil || len(res.Result.Candidates) == 0 {
			continue
		}
		verified := res.Result.Candidates[0].ContactValue
		if verified == nil {
			continue
		}
		out[i].Signals.Deliverable = verified.Signals.Deliverable
		out[i].Signals.EmailSyntacticallyValid = out[i].Signals.EmailSyntacticallyValid || verified.Signals.EmailSyntacticallyValid
		if out[i].Email == "" {
			out[i].Email = verified.Email
		}
		out[i].Sources = append(out[i].Sources, verified.Sources...)
	}
	return out
}

// scoreContacts re-applies C8 scoring so a contact found via C7's own
// internal early-exit check and any late merges carry a final confidence
// consistent with the persisted record.
func scoreContacts(contacts []model.Contact, companyName, domain string) []model.Contact {
	out := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		scored, _ := validator.ApplyScore(c, companyName, domain)
		out = append(out, scored)
	}
	return out
}

// persistWithRetry saves rec, retrying exactly once, after a short backoff,
// on a persistence error. Logic errors elsewhere in the row are never
// retried: only a failure to persist gets a second attempt, per spec §5's
// durability note.
func (o *Orchestrator) persistWithRetry(ctx context.Context, rec model.ResolvedRecord) {
	const persistRetryBackoff = 250 * time.Millisecond
	if o.Deps.Store == nil {
		return
	}
	err := o.Deps.Store.SaveResult(ctx, rec)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("input_id", rec.InputID).Msg("persistence failed, retrying once")
	time.Sleep(persistRetryBackoff)
	if err := o.Deps.Store.SaveResult(ctx, rec); err != nil {
		log.Error().Err(err).Str("input_id", rec.InputID).Msg("persistence failed after retry")
	}
}

func warningsToErrors(warnings []string) []model.StructuredError {
	var out []model.StructuredError
	for _, w := range warnings {
		out = append(out, model.StructuredError{Kind: model.ErrInputInvalid, Detail: w, Stage: "normalize"})
	}
	return out
}

func deadlineExceededRecord(in model.CompanyInput) model.ResolvedRecord {
	now := time.Now().UTC()
	rec := model.ResolvedRecord{
		InputID:     in.ID,
		StartedAt:   now,
		CompletedAt: now,
		Errors: []model.StructuredError{{
			Kind: model.ErrDeadlineExceeded, Detail: "batch cancelled before row started", Stage: "orchestrator",
		}},
	}
	rec.Freeze()
	return rec
}
