// Package contact implements the Contact Discovery Controller (C7): a
// bounded, staged, early-exit agent loop that runs cheap-first enrichment
// stages against a resolved domain until a valid contact is found or the
// loop's budget/deadline/step guards trip.
//
// The loop is a direct generalization of internal/llmtools.Orchestrator's
// tool-call loop (MaxSteps/Deadline/StepTimeout/Fallback), rewired
// from "call an LLM-selected research tool until a final answer" to "call a
// policy-selected contact-discovery adapter until a valid contact or a
// budget/step/deadline limit".
package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/llm"
	"github.com/resolveco/resolveco/internal/model"
	"github.com/resolveco/resolveco/internal/router"
	"github.com/resolveco/resolveco/internal/validator"
)

// DefaultMaxSteps bounds the loop's stage count, per spec §4.7.
const DefaultMaxSteps = 5

// DefaultBudgetLimit is the per-row cost cap summed over adapter calls,
// a small fixed monetary value per spec §4.7.
const DefaultBudgetLimit = 0.50

// DefaultDeadline bounds the controller's own wall clock, independent of
// whatever overall per-row deadline C9 applies around the whole pipeline.
const DefaultDeadline = 20 * time.Second

// AcceptConfidence is the confidence a single contact must clear, alongside
// IsValid, to trigger early exit.
const AcceptConfidence = 80

// Deps bundles the collaborators the controller drives.
type Deps struct {
	Adapters  map[router.AdapterTag]adapters.Adapter
	PageFetch *adapters.PageFetchAdapter

	// LLM, when non-nil, enables the tool-selection mode for T3/T4 rows
	// (plan.LLMAnalysis). When nil, or when the model's response fails
	// validation, the controller falls back to the deterministic policy.
	LLM   llm.Client
	Model string

	MaxSteps    int
	BudgetLimit float64
	Deadline    time.Duration
}

// Outcome is C7's result for one row.
type Outcome struct {
	Contacts        []model.Contact
	StagesCompleted []string
	Errors          []model.StructuredError
	TotalCost       float64
	PivotOccurred   bool
}

// Controller drives C7's staged discovery loop.
type Controller struct {
	Deps Deps
}

func New(deps Deps) *Controller {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = DefaultMaxSteps
	}
	if deps.BudgetLimit <= 0 {
		deps.BudgetLimit = DefaultBudgetLimit
	}
	if deps.Deadline <= 0 {
		deps.Deadline = DefaultDeadline
	}
	return &Controller{Deps: deps}
}

// stageCost models the relative cost of each stage family: cheap
// site-centric stages first, expensive commercial enrichment last, per
// spec §4.7's "prefers cheap high-yield stages first" policy.
var stageCost = map[router.ContactStage]float64{
	router.StageMapOwnerField:  0.00,
	router.StageSiteScrape:     0.01,
	router.StageSocialDiscover: 0.01,
	router.StageSearchOSINT:    0.03,
	router.StageDirectory:      0.03,
	router.StageKnowledgeGraph: 0.03,
	router.StageB2BEnrich:      0.08,
}

// siteFamily marks which stages belong to the site-centric strategy family;
// everything else belongs to the search-centric family. The pivot rule
// switches between the two.
var siteFamily = map[router.ContactStage]bool{
	router.StageMapOwnerField:  true,
	router.StageSiteScrape:     true,
	router.StageSocialDiscover: true,
}

// Discover runs the staged loop for one row against a resolved domain,
// ordering stages per the BusinessType preference from router.ContactStageOrder.
func (c *Controller) Discover(ctx context.Context, in model.NormalizedInput, domain string, useLLMSelection bool) Outcome {
	var out Outcome
	if domain == "" {
		out.Errors = append(out.Errors, model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "no resolved domain to discover contacts against", Stage: "contact_controller",
		})
		return out
	}

	cCtx, cancel := context.WithTimeout(ctx, c.Deps.Deadline)
	defer cancel()

	order := router.ContactStageOrder(in.BusinessType)
	st := &loopState{
		in:     in,
		domain: domain,
		order:  order,
		idx:    0,
	}

	for step := 0; step < c.Deps.MaxSteps; step++ {
		if cCtx.Err() != nil {
			break
		}
		if out.TotalCost >= c.Deps.BudgetLimit {
			break
		}
		stage, ok := st.next()
		if !ok {
			break
		}

		if useLLMSelection && c.Deps.LLM != nil {
			if sel, ok := c.selectViaLLM(cCtx, st, out); ok {
				stage = sel
			}
		}

		contacts, cost, stageName, err := c.runStage(cCtx, st, stage)
		out.TotalCost += cost
		if stageName != "" {
			out.StagesCompleted = append(out.StagesCompleted, stageName)
		}
		if err != nil {
			out.Errors = append(out.Errors, *err)
		}
		if len(contacts) > 0 {
			st.emptyStreak = 0
			out.Contacts = mergeContacts(out.Contacts, contacts)
		} else {
			st.emptyStreak++
		}

		if st.emptyStreak == 2 && !st.pivoted {
			st.pivot()
			out.PivotOccurred = true
		}

		if hasAcceptableContact(out.Contacts, in.CleanedFields["name"], domain) {
			break
		}
	}

	scored := make([]model.Contact, 0, len(out.Contacts))
	for _, contact := range out.Contacts {
		sc, _ := validator.ApplyScore(contact, in.CleanedFields["name"], domain)
		scored = append(scored, sc)
	}
	out.Contacts = scored
	return out
}

func hasAcceptableContact(contacts []model.Contact, companyName, domain string) bool {
	for _, contact := range contacts {
		sc, _ := validator.ApplyScore(contact, companyName, domain)
		if sc.IsValid && sc.Confidence >= AcceptConfidence {
			return true
		}
	}
	return false
}

// loopState tracks the controller's position through the stage order and
// the pivot bookkeeping.
type loopState struct {
	in          model.NormalizedInput
	domain      string
	order       []router.ContactStage
	idx         int
	emptyStreak int
	pivoted     bool
}

func (s *loopState) next() (router.ContactStage, bool) {
	if s.idx >= len(s.order) {
		return "", false
	}
	stage := s.order[s.idx]
	s.idx++
	return stage, true
}

// pivot reorders the remaining stages so the other strategy family runs
// next, per spec §4.7's "switches strategy family... records a pivot
// event" rule.
func (s *loopState) pivot() {
	s.pivoted = true
	remaining := s.order[s.idx:]
	var other, same []router.ContactStage
	currentlySite := len(remaining) > 0 && siteFamily[remaining[0]]
	for _, stage := range remaining {
		if siteFamily[stage] == currentlySite {
			same = append(same, stage)
		} else {
			other = append(other, stage)
		}
	}
	reordered := append(other, same...)
	s.order = append(s.order[:s.idx], reordered...)
}

// runStage executes one stage, returning any discovered contacts, the
// stage's cost, its adapter name (for stages_completed), and a structured
// error when the stage couldn't run.
func (c *Controller) runStage(ctx context.Context, st *loopState, stage router.ContactStage) ([]model.Contact, float64, string, *model.StructuredError) {
	cost := stageCost[stage]

	switch stage {
	case router.StageMapOwnerField:
		return c.runMapOwnerField(st), cost, string(stage), nil
	case router.StageSiteScrape:
		contacts, fetchCost, name, err := c.runSiteScrape(ctx, st, []string{"", "/about", "/contact", "/team"})
		return contacts, fetchCost + cost, name, err
	case router.StageSocialDiscover:
		contacts, _, _, err := c.runSiteScrape(ctx, st, []string{""})
		return onlySocial(contacts), cost, string(stage), err
	default:
		tag, ok := stageAdapterTag(stage)
		if !ok {
			return nil, 0, "", nil
		}
		a, ok := c.Deps.Adapters[tag]
		if !ok {
			return nil, 0, "", &model.StructuredError{
				Kind: model.ErrAdapterHTTPError, Detail: "adapter not wired", Stage: string(tag),
			}
		}
		q := adapters.Query{
			Name: st.in.CleanedFields["name"], City: st.in.CleanedFields["city"],
			State: st.in.CleanedFields["state"], CandidateURL: "https://" + st.domain,
		}
		res := a.Call(ctx, q)
		if res.Err != nil {
			return nil, res.Cost + cost, string(tag), res.Err
		}
		return candidatesToContacts(res.Result.Candidates, string(tag)), res.Cost + cost, string(tag), nil
	}
}

func stageAdapterTag(stage router.ContactStage) (router.AdapterTag, bool) {
	switch stage {
	case router.StageSearchOSINT, router.StageKnowledgeGraph:
		return router.WebSearchKG, true
	case router.StageB2BEnrich:
		return router.B2BEnrich, true
	case router.StageDirectory:
		return router.DirectoryScrape, true
	default:
		return "", false
	}
}

// runMapOwnerField is the cheapest possible stage: some upstream intake
// processes (e.g. a places lookup already run by C6) occasionally carry an
// owner name/contact straight on the row; this stage reads it if present
// rather than making any network call.
func (c *Controller) runMapOwnerField(st *loopState) []model.Contact {
	name := st.in.CleanedFields["owner_name"]
	if name == "" {
		return nil
	}
	return []model.Contact{{
		Name:  name,
		Title: st.in.CleanedFields["owner_title"],
		Email: st.in.CleanedFields["owner_email"],
		Phone: st.in.CleanedFields["owner_phone"],
		Sources: []string{"map_owner_field"},
	}}
}

// runSiteScrape fetches each path under the resolved domain and runs the
// text extractor over it, merging discovered contact candidates.
func (c *Controller) runSiteScrape(ctx context.Context, st *loopState, paths []string) ([]model.Contact, float64, string, *model.StructuredError) {
	if c.Deps.PageFetch == nil {
		return nil, 0, "", &model.StructuredError{
			Kind: model.ErrAdapterHTTPError, Detail: "page_fetch not wired", Stage: "site_scrape",
		}
	}
	extractor := adapters.NewTextExtractAdapter()
	var contacts []model.Contact
	var totalCost float64
	var lastErr *model.StructuredError
	for _, path := range paths {
		url := "https://" + st.domain + path
		fetchRes := c.Deps.PageFetch.Call(ctx, adapters.Query{CandidateURL: url})
		totalCost += fetchRes.Cost
		if fetchRes.Err != nil {
			lastErr = fetchRes.Err
			continue
		}
		html, _ := fetchRes.Result.Raw["html"].([]byte)
		extractRes := extractor.Call(ctx, adapters.Query{CandidateHTML: html})
		if extractRes.Err != nil {
			continue
		}
		contacts = append(contacts, candidatesToContacts(extractRes.Result.Candidates, "site_scrape")...)
	}
	if len(contacts) == 0 && lastErr != nil {
		return nil, totalCost, "site_scrape", lastErr
	}
	return contacts, totalCost, "site_scrape", nil
}

func onlySocial(contacts []model.Contact) []model.Contact {
	var out []model.Contact
	for _, c := range contacts {
		if c.LinkedInURL != "" {
			out = append(out, c)
		}
	}
	return out
}

func candidatesToContacts(cands []model.Candidate, sourceTag string) []model.Contact {
	var out []model.Contact
	for _, c := range cands {
		if c.Kind != model.ContactCandidateKind || c.ContactValue == nil {
			continue
		}
		contact := *c.ContactValue
		if len(contact.Sources) == 0 {
			contact.Sources = []string{sourceTag}
		}
		out = append(out, contact)
	}
	return out
}

// mergeContacts folds fresh contacts into the accumulated set, merging by
// identity key (email, else phone, else linkedin URL, else name) so the
// same person discovered via two stages accrues sources rather than
// duplicating.
func mergeContacts(existing, fresh []model.Contact) []model.Contact {
	index := map[string]int{}
	for i, c := range existing {
		index[contactKey(c)] = i
	}
	for _, c := range fresh {
		key := contactKey(c)
		if key == "" {
			existing = append(existing, c)
			continue
		}
		if i, ok := index[key]; ok {
			existing[i] = mergeOne(existing[i], c)
			continue
		}
		index[key] = len(existing)
		existing = append(existing, c)
	}
	return existing
}

func contactKey(c model.Contact) string {
	switch {
	case c.Email != "":
		return "email:" + strings.ToLower(c.Email)
	case c.Phone != "":
		return "phone:" + c.Phone
	case c.LinkedInURL != "":
		return "linkedin:" + strings.ToLower(c.LinkedInURL)
	case c.Name != "":
		return "name:" + strings.ToLower(c.Name)
	default:
		return ""
	}
}

func mergeOne(a, b model.Contact) model.Contact {
	if a.Name == "" {
		a.Name = b.Name
	}
	if a.Title == "" {
		a.Title = b.Title
	}
	if a.Email == "" {
		a.Email = b.Email
	}
	if a.Phone == "" {
		a.Phone = b.Phone
	}
	if a.LinkedInURL == "" {
		a.LinkedInURL = b.LinkedInURL
	}
	a.Sources = append(a.Sources, b.Sources...)
	return a
}

// llmSelection mirrors the §4.7 "{next_tool, args, rationale, should_stop}"
// contract.
type llmSelection struct {
	NextTool   string          `json:"next_tool"`
	Args       json.RawMessage `json:"args"`
	Rationale  string          `json:"rationale"`
	ShouldStop bool            `json:"should_stop"`
}

var llmSelectionSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["next_tool", "should_stop"],
	"properties": {
		"next_tool": {"type": "string"},
		"args": {"type": "object"},
		"rationale": {"type": "string"},
		"should_stop": {"type": "boolean"}
	}
}`)

// selectViaLLM asks the model which stage to run next given the current
// state, validates the response shape and that next_tool names a real
// stage, and falls back to the deterministic policy (ok=false) on any
// failure — mirroring llmtools.Orchestrator's Fallback degrade path.
func (c *Controller) selectViaLLM(ctx context.Context, st *loopState, out Outcome) (router.ContactStage, bool) {
	prompt := buildSelectionPrompt(st, out)
	content, err := c.callLLM(ctx, prompt)
	if err != nil {
		return "", false
	}
	doc := gojsonschema.NewStringLoader(content)
	result, err := gojsonschema.Validate(llmSelectionSchema, doc)
	if err != nil || !result.Valid() {
		return "", false
	}
	var sel llmSelection
	if err := json.Unmarshal([]byte(content), &sel); err != nil {
		return "", false
	}
	if sel.ShouldStop {
		return "", false
	}
	stage := router.ContactStage(sel.NextTool)
	if _, known := stageCost[stage]; !known {
		return "", false
	}
	return stage, true
}

func (c *Controller) callLLM(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Deps.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Deps.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildSelectionPrompt(st *loopState, out Outcome) string {
	return fmt.Sprintf(`Choose the next contact-discovery stage for %q (domain %s).
Stages completed so far: %v. Contacts found so far: %d. Remaining budget allows one more stage.
Respond with JSON only: {"next_tool": "<stage>", "args": {}, "rationale": "...", "should_stop": true|false}.`,
		st.in.CleanedFields["name"], st.domain, out.StagesCompleted, len(out.Contacts))
}
