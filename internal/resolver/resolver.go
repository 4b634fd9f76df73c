// Package resolver implements the Domain Resolver (C6): it drives the
// Path Router's plan for one row, aggregates candidates from the Source
// Adapters, verifies the top contenders via page fetch + LLM judge, scores
// them, and emits a domain decision.
package resolver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/extract"
	"github.com/resolveco/resolveco/internal/judge"
	"github.com/resolveco/resolveco/internal/model"
	"github.com/resolveco/resolveco/internal/router"
)

// State names the row's position in C6's state machine.
type State string

const (
	StatePending      State = "pending"
	StateRouting      State = "routing"
	StateCalling      State = "calling"
	StateJudging      State = "judging"
	StateAccepted     State = "accepted"
	StateManualReview State = "manual_review"
	StateFailed       State = "failed"
)

// TopK is the maximum number of deduplicated domain candidates carried
// forward into page-fetch + judge verification, per spec §4.6 step 4.
const TopK = 5

// AcceptThreshold is the minimum final score a candidate needs to be
// accepted outright, per spec §4.6 step 6.
const AcceptThreshold = 70

// Deps bundles the adapters and collaborators the resolver drives. Missing
// entries are treated as "adapter unavailable" rather than a panic: a plan
// step referencing an unwired tag is simply skipped and recorded as an
// error.
type Deps struct {
	Adapters  map[router.AdapterTag]adapters.Adapter
	PageFetch *adapters.PageFetchAdapter
	Judge     *judge.Judge
	MaxParallelVerify int
}

// Outcome is C6's result for one row, independent of model.ResolvedRecord
// so callers (C9) can merge it with contact-discovery output.
type Outcome struct {
	Domain            string
	Confidence         int
	Source            string
	NeedsManualReview bool
	StagesCompleted   []string
	Errors            []model.StructuredError
	TotalCost         float64
	FinalState        State
}

// Resolver drives C6's execution for one normalized row.
type Resolver struct {
	Deps Deps
}

func New(deps Deps) *Resolver {
	if deps.MaxParallelVerify <= 0 {
		deps.MaxParallelVerify = TopK
	}
	return &Resolver{Deps: deps}
}

// candidateAccum tracks a deduplicated domain candidate across plan steps.
type candidateAccum struct {
	domain         string
	sourceTags     map[string]bool
	signals        map[string]bool
	bestHint       int
	earliestStep   int
	sourceCount    int
}

// Resolve executes the full C6 pipeline for one row and returns its Outcome.
func (r *Resolver) Resolve(ctx context.Context, in model.NormalizedInput) Outcome {
	state := StatePending
	var out Outcome
	out.FinalState = StateFailed

	deadline := 45 * time.Second
	rCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	state = StateRouting
	plan := router.Route(in)

	state = StateCalling
	accum, stages, errs, cost, shortCircuitDomain, shortCircuitConfidence := r.runPlan(rCtx, in, plan)
	out.StagesCompleted = stages
	out.Errors = append(out.Errors, errs...)
	out.TotalCost += cost

	if shortCircuitDomain != "" {
		// Per spec §4.5, an exact phone match on the first T1 step accepts
		// immediately at the step's fixed confidence, bypassing the
		// scorer entirely rather than feeding it through Score's bounded
		// sub-scores (which a lone-source candidate could never reach 99
		// through on its own).
		out.Domain = shortCircuitDomain
		out.Confidence = shortCircuitConfidence
		out.Source = string(router.PlacesPhoneVerify)
		if entry, ok := accum[shortCircuitDomain]; ok {
			out.Source = strings.Join(sortedKeys(entry.sourceTags), "+")
		}
		out.FinalState = StateAccepted
		return out
	}

	if len(accum) == 0 {
		if len(errs) > 0 && len(errs) == countSteps(plan) {
			out.FinalState = StateFailed
		} else {
			out.FinalState = StateManualReview
		}
		out.NeedsManualReview = true
		return out
	}

	ranked := rankCandidates(accum)
	if len(ranked) > TopK {
		ranked = ranked[:TopK]
	}

	state = StateJudging
	verified, verifyCost := r.verifyCandidates(rCtx, in, ranked)
	out.TotalCost += verifyCost

	best, bestScore := pickBest(verified, plan)
	_ = state

	mandatoryJudge := plan.Validation == router.ValidationMandatory
	if best == nil || bestScore < AcceptThreshold || (mandatoryJudge && !best.judgeConcurred) {
		out.NeedsManualReview = true
		out.FinalState = StateManualReview
		return out
	}

	out.Domain = best.domain
	out.Confidence = bestScore
	out.Source = strings.Join(sortedKeys(best.sourceTags), "+")
	out.FinalState = StateAccepted
	return out
}

func countSteps(p router.Plan) int { return len(p.Steps) }

// runPlan executes a plan's steps (sequential or parallel), collecting
// domain candidates into a dedup map keyed by canonical domain. It also
// returns the domain and fixed confidence of a step's exact-match
// short-circuit, if one fired (see Step.ShortCircuitConfidence); the
// caller uses that to bypass scoring entirely rather than treat the
// short-circuit as a mere early-exit signal.
func (r *Resolver) runPlan(ctx context.Context, in model.NormalizedInput, plan router.Plan) (map[string]*candidateAccum, []string, []model.StructuredError, float64, string, int) {
	accum := map[string]*candidateAccum{}
	var stages []string
	var errs []model.StructuredError
	var totalCost float64
	var shortCircuitDomain string
	var shortCircuitConfidence int

	q := adapters.Query{
		Name: in.CleanedFields["name"], City: in.CleanedFields["city"],
		State: in.CleanedFields["state"], Phone: in.CleanedFields["phone"],
		Address: in.CleanedFields["address"], Category: in.CleanedFields["category"],
		Context: in.CleanedFields["context"],
	}

	apply := func(stepIdx int, tag router.AdapterTag, shortCircuit int) bool {
		a, ok := r.Deps.Adapters[tag]
		if !ok {
			errs = append(errs, model.StructuredError{Kind: model.ErrAdapterHTTPError, Detail: "adapter not wired", Stage: string(tag)})
			return false
		}
		res := a.Call(ctx, q)
		stages = append(stages, string(tag))
		totalCost += res.Cost
		if res.Err != nil {
			errs = append(errs, *res.Err)
			return false
		}
		for _, c := range res.Result.Candidates {
			if c.Kind != model.DomainCandidateKind {
				continue
			}
			mergeCandidate(accum, c, stepIdx)
		}
		if shortCircuit > 0 {
			for _, c := range res.Result.Candidates {
				if c.Kind == model.DomainCandidateKind && c.Signals["phone_exact_match"] {
					shortCircuitDomain = strings.ToLower(strings.TrimSuffix(c.Value, "."))
					shortCircuitConfidence = shortCircuit
					return true
				}
			}
		}
		return false
	}

	if plan.Mode == router.Sequential {
		for i, step := range plan.Steps {
			if apply(i, step.Adapter, step.ShortCircuitConfidence) {
				break
			}
		}
	} else {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i, step := range plan.Steps {
			i, step := i, step
			g.Go(func() error {
				a, ok := r.Deps.Adapters[step.Adapter]
				if !ok {
					mu.Lock()
					errs = append(errs, model.StructuredError{Kind: model.ErrAdapterHTTPError, Detail: "adapter not wired", Stage: string(step.Adapter)})
					mu.Unlock()
					return nil
				}
				res := a.Call(gctx, q)
				mu.Lock()
				defer mu.Unlock()
				stages = append(stages, string(step.Adapter))
				totalCost += res.Cost
				if res.Err != nil {
					errs = append(errs, *res.Err)
					return nil
				}
				for _, c := range res.Result.Candidates {
					if c.Kind != model.DomainCandidateKind {
						continue
					}
					mergeCandidate(accum, c, i)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if plan.ConsensusRequired {
		applyConsensusBonus(accum)
	}

	return accum, stages, errs, totalCost, shortCircuitDomain, shortCircuitConfidence
}

func mergeCandidate(accum map[string]*candidateAccum, c model.Candidate, step int) {
	domain := strings.ToLower(strings.TrimSuffix(c.Value, "."))
	if domain == "" {
		return
	}
	entry, ok := accum[domain]
	if !ok {
		entry = &candidateAccum{
			domain:       domain,
			sourceTags:   map[string]bool{},
			signals:      map[string]bool{},
			earliestStep: step,
		}
		accum[domain] = entry
	}
	for _, t := range c.SourceTags {
		if t != "" && !entry.sourceTags[t] {
			entry.sourceTags[t] = true
			entry.sourceCount++
		}
	}
	for k, v := range c.Signals {
		if v {
			entry.signals[k] = true
		}
	}
	if c.RawConfidenceHint > entry.bestHint {
		entry.bestHint = c.RawConfidenceHint
	}
	if step < entry.earliestStep {
		entry.earliestStep = step
	}
}

// applyConsensusBonus marks candidates corroborated by >=2 distinct
// adapters, per spec §4.5's "consensus preferred" for T3/T4.
func applyConsensusBonus(accum map[string]*candidateAccum) {
	for _, c := range accum {
		if c.sourceCount >= 2 {
			c.signals["multi_source_consensus"] = true
		}
	}
}

func rankCandidates(accum map[string]*candidateAccum) []*candidateAccum {
	out := make([]*candidateAccum, 0, len(accum))
	for _, c := range accum {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].bestHint != out[j].bestHint {
			return out[i].bestHint > out[j].bestHint
		}
		if out[i].sourceCount != out[j].sourceCount {
			return out[i].sourceCount > out[j].sourceCount
		}
		return out[i].earliestStep < out[j].earliestStep
	})
	return out
}

// verifiedCandidate carries a candidateAccum plus its judge verdict.
type verifiedCandidate struct {
	*candidateAccum
	judgeConfidence int
	judgeConcurred  bool
	isDirectory     bool
	isParent        bool
}

func (r *Resolver) verifyCandidates(ctx context.Context, in model.NormalizedInput, ranked []*candidateAccum) ([]*verifiedCandidate, float64) {
	out := make([]*verifiedCandidate, len(ranked))
	sem := semaphore.NewWeighted(int64(r.Deps.MaxParallelVerify))
	g, gctx := errgroup.WithContext(ctx)
	var totalCost float64
	var mu sync.Mutex

	for i, cand := range ranked {
		i, cand := i, cand
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			vc, cost := r.verifyOne(gctx, in, cand)
			mu.Lock()
			out[i] = vc
			totalCost += cost
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := make([]*verifiedCandidate, 0, len(out))
	for _, vc := range out {
		if vc != nil {
			result = append(result, vc)
		}
	}
	return result, totalCost
}

func (r *Resolver) verifyOne(ctx context.Context, in model.NormalizedInput, cand *candidateAccum) (*verifiedCandidate, float64) {
	vc := &verifiedCandidate{candidateAccum: cand}
	if r.Deps.PageFetch == nil || r.Deps.Judge == nil {
		return vc, 0
	}
	fetchRes := r.Deps.PageFetch.Call(ctx, adapters.Query{CandidateURL: "https://" + cand.domain})
	if fetchRes.Err != nil {
		return vc, fetchRes.Cost
	}
	html, _ := fetchRes.Result.Raw["html"].([]byte)
	doc := extract.FromHTML(html)

	verdict := r.Deps.Judge.JudgeMatch(ctx, judge.CompanyContext{
		Name: in.CleanedFields["name"], City: in.CleanedFields["city"],
		Phone: in.CleanedFields["phone"], Address: in.CleanedFields["address"],
		Context: in.CleanedFields["context"],
	}, cand.domain, doc.Text)

	vc.judgeConfidence = verdict.Confidence
	vc.judgeConcurred = verdict.Match
	vc.isDirectory = verdict.IsDirectorySite
	vc.isParent = verdict.IsParentCompany
	if verdict.PhoneFound {
		cand.signals["judge_phone_found"] = true
	}
	if verdict.AddressFound {
		cand.signals["judge_address_found"] = true
	}
	if verdict.NameFound {
		cand.signals["judge_name_found"] = true
	}
	return vc, fetchRes.Cost
}

// pickBest scores every verified candidate and returns the winner plus its
// score, applying spec §4.6's tie-break order: higher judge confidence,
// more corroborating sources, shorter domain, earlier plan step.
func pickBest(verified []*verifiedCandidate, plan router.Plan) (*verifiedCandidate, int) {
	type scored struct {
		vc    *verifiedCandidate
		score int
	}
	var all []scored
	for _, vc := range verified {
		if vc.isDirectory {
			continue // eliminated per spec §4.6 step 5
		}
		all = append(all, scored{vc: vc, score: Score(vc)})
	}
	if len(all) == 0 {
		return nil, 0
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.vc.judgeConfidence != b.vc.judgeConfidence {
			return a.vc.judgeConfidence > b.vc.judgeConfidence
		}
		if a.vc.sourceCount != b.vc.sourceCount {
			return a.vc.sourceCount > b.vc.sourceCount
		}
		if len(a.vc.domain) != len(b.vc.domain) {
			return len(a.vc.domain) < len(b.vc.domain)
		}
		return a.vc.earliestStep < b.vc.earliestStep
	})
	return all[0].vc, all[0].score
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
