// Package judge implements the LLM Judge (C4): a structured-output
// classifier that decides whether a fetched webpage belongs to a given
// company. It always returns a usable Verdict, even when the underlying
// model call fails, per spec §4.4's "fail open to manual review, never
// fail closed to an exception".
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/resolveco/resolveco/internal/budget"
	"github.com/resolveco/resolveco/internal/cache"
	"github.com/resolveco/resolveco/internal/llm"
)

// reservedOutputTokens leaves room for the judge's own JSON verdict, which
// is small and fixed-shape.
const reservedOutputTokens = 256

// charsPerToken mirrors internal/budget's own English-text heuristic, used
// here to convert a model's remaining token budget back into a char count
// for string slicing.
const charsPerToken = 4

// CompanyContext is the subset of a normalized input the judge prompt
// needs, independent of model.NormalizedInput to keep this package
// import-light.
type CompanyContext struct {
	Name    string
	City    string
	Phone   string
	Address string
	Context string
}

// Verdict is the judge's structured opinion about one candidate page.
type Verdict struct {
	Match            bool   `json:"match"`
	Confidence       int    `json:"confidence"`
	Evidence         string `json:"evidence"`
	PhoneFound       bool   `json:"phone_found"`
	AddressFound     bool   `json:"address_found"`
	NameFound        bool   `json:"name_found"`
	IsParentCompany  bool   `json:"is_parent_company"`
	IsDirectorySite  bool   `json:"is_directory_site"`
}

func fallbackVerdict(reason string) Verdict {
	return Verdict{Match: false, Confidence: 0, Evidence: reason}
}

// Judge calls a chat-completion model with a low temperature, JSON-only
// prompt and parses its structured verdict, with a cache-first lookup and
// a regex-fallback parse when the model doesn't return valid JSON.
// Grounded on internal/planner.LLMPlanner's cache-first JSON-only contract,
// and on original_source/domain-resolver/modules/llm_judge.py's OllamaJudge
// for the exact prompt content and fallback posture.
type Judge struct {
	Client      llm.Client
	Model       string
	Cache       *cache.LLMCache
	Temperature float32
	MaxTextChars int
}

func New(client llm.Client, model string, llmCache *cache.LLMCache) *Judge {
	return &Judge{Client: client, Model: model, Cache: llmCache, Temperature: 0.1, MaxTextChars: 10000}
}

// JudgeMatch decides whether webpageText, fetched from url, describes
// company. It never returns an error: a call failure or parse failure
// degrades to a zero-confidence, no-match Verdict instead.
func (j *Judge) JudgeMatch(ctx context.Context, company CompanyContext, url, webpageText string) Verdict {
	if j.Client == nil {
		return fallbackVerdict("judge unavailable: no LLM client configured")
	}
	truncated := j.truncateToModelBudget(company, url, webpageText)
	prompt := buildPrompt(company, url, truncated)

	if j.Cache != nil {
		key := cache.KeyFrom(j.Model, prompt)
		if cached, ok, err := j.Cache.Get(ctx, key); err == nil && ok {
			if v, perr := parseVerdict(string(cached)); perr == nil {
				return v
			}
		}
	}

	content, err := j.call(ctx, prompt)
	if err != nil {
		return fallbackVerdict(fmt.Sprintf("llm call failed: %v", err))
	}

	verdict, perr := parseVerdict(content)
	if perr != nil {
		verdict = extractWithRegex(content)
	}

	if j.Cache != nil {
		key := cache.KeyFrom(j.Model, prompt)
		if raw, merr := json.Marshal(verdict); merr == nil {
			_ = j.Cache.Save(ctx, key, raw)
		}
	}
	return verdict
}

// truncateToModelBudget sizes webpageText to fit the judge model's context
// window, not just a fixed character count: it estimates the token cost of
// everything else in the prompt (instructions plus this company's fields),
// asks internal/budget how many tokens of headroom remain for the model
// named in j.Model, and converts that back into a char count. j.MaxTextChars
// still applies as a hard ceiling on top of that when it is smaller, e.g. to
// bound memory use regardless of how large a model's context window is.
func (j *Judge) truncateToModelBudget(company CompanyContext, url, webpageText string) string {
	hardCap := j.MaxTextChars
	if hardCap <= 0 {
		hardCap = 10000
	}
	truncated := webpageText
	if len(truncated) > hardCap {
		truncated = truncated[:hardCap]
	}

	staticPromptTokens := budget.EstimateTokens(buildPrompt(company, url, ""))
	remaining := budget.RemainingContextWithHeadroom(j.Model, reservedOutputTokens, staticPromptTokens)
	modelCap := remaining * charsPerToken
	if modelCap > 0 && len(truncated) > modelCap {
		truncated = truncated[:modelCap]
	}
	return truncated
}

func (j *Judge) call(ctx context.Context, prompt string) (string, error) {
	resp, err := j.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.Model,
		Temperature: j.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

func buildPrompt(c CompanyContext, url, text string) string {
	blank := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "Unknown"
		}
		return s
	}
	context := c.Context
	if strings.TrimSpace(context) == "" {
		context = "N/A"
	}
	return fmt.Sprintf(`You are verifying if a website belongs to a specific company or facility.

**Company Information:**
- Name: %s
- City: %s
- Phone: %s
- Address: %s
- Context: %s

**Website URL:** %s

**Website Content:**
%s

**Task:**
Determine if this website belongs to the specified company/facility, or if it's a parent company or directory site.

**CRITICAL - Check for these red flags:**
1. Directory/Listing Site - sites that list or rank multiple facilities
2. Parent Company - corporate sites managing multiple locations (look for "Our Locations", "Find a Facility", multiple addresses)
3. Industry Associations - trade organizations rather than actual facilities

**Validation Checks:**
1. Phone number match - does the website show the company's phone number (exact or last 4-7 digits)?
2. Single location - does the site represent ONE facility or MULTIPLE facilities?
3. Address/city match - does the website mention THIS specific city/address, not a list of cities?
4. Company name match - does the site prominently display THIS company name?
5. Context match - does the content align with the company's industry?

Return ONLY valid JSON:
{"match": true or false, "confidence": 0-100, "evidence": "brief explanation", "phone_found": true or false, "address_found": true or false, "name_found": true or false, "is_parent_company": true or false, "is_directory_site": true or false}

Respond with JSON only, no additional text.`,
		blank(c.Name), blank(c.City), blank(c.Phone), blank(c.Address), context, url, text)
}

func parseVerdict(raw string) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &v); err != nil {
		return Verdict{}, err
	}
	v.Confidence = clamp(v.Confidence, 0, 100)
	return v, nil
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

var (
	matchRe      = regexp.MustCompile(`(?i)"match"\s*:\s*(true|false)`)
	confidenceRe = regexp.MustCompile(`"confidence"\s*:\s*(\d+)`)
	evidenceRe   = regexp.MustCompile(`"evidence"\s*:\s*"([^"]*)"`)
)

// extractWithRegex recovers a best-effort verdict from a response that
// isn't valid JSON, mirroring OllamaJudge._extract_with_regex.
func extractWithRegex(text string) Verdict {
	match := false
	if m := matchRe.FindStringSubmatch(text); m != nil {
		match = strings.EqualFold(m[1], "true")
	}
	confidence := 50
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			confidence = n
		}
	}
	evidence := "Unable to parse LLM response"
	if m := evidenceRe.FindStringSubmatch(text); m != nil {
		evidence = m[1]
	}
	return Verdict{Match: match, Confidence: clamp(confidence, 0, 100), Evidence: evidence}
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
