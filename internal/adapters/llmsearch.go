package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/resolveco/resolveco/internal/llm"
	"github.com/resolveco/resolveco/internal/model"
)

// LLMSearchAdapter generates 1-3 targeted search queries with a chat model,
// then delegates each query to an underlying web search adapter and merges
// the resulting candidates. Grounded on internal/planner.LLMPlanner's
// cache-first, JSON-only, low-temperature call shape.
type LLMSearchAdapter struct {
	LLM         llm.Client
	Model       string
	WebSearch   *WebSearchKGAdapter
	MaxQueries  int
	Retry       RetryPolicy
}

func NewLLMSearchAdapter(client llm.Client, model string, webSearch *WebSearchKGAdapter) *LLMSearchAdapter {
	return &LLMSearchAdapter{LLM: client, Model: model, WebSearch: webSearch, MaxQueries: 3, Retry: DefaultRetryPolicy()}
}

func (a *LLMSearchAdapter) Name() string { return "llm_search" }

func (a *LLMSearchAdapter) Call(ctx context.Context, q Query) AdapterResult {
	start := time.Now()
	if q.Name == "" {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrInputInvalid, Detail: "name is required", Stage: a.Name(),
		}}
	}
	queries, err := a.generateQueries(ctx, q)
	if err != nil {
		return AdapterResult{Err: &model.StructuredError{
			Kind: model.ErrJudgeUnavailable, Detail: err.Error(), Stage: a.Name(),
		}, Latency: time.Since(start)}
	}

	var merged Result
	seen := map[string]bool{}
	var totalCost float64
	for _, query := range queries {
		sub := a.WebSearch.Call(ctx, Query{Name: query, City: q.City, State: q.State})
		totalCost += sub.Cost
		if sub.Err != nil {
			continue
		}
		for _, c := range sub.Result.Candidates {
			if seen[c.Value] {
				continue
			}
			seen[c.Value] = true
			c.SourceTags = append(c.SourceTags, a.Name())
			merged.Candidates = append(merged.Candidates, c)
		}
	}
	merged.Raw = map[string]any{"queries": queries}
	return AdapterResult{Result: merged, Cost: totalCost, Latency: time.Since(start)}
}

type llmQueryPlan struct {
	Queries []string `json:"queries"`
}

// generateQueries asks the model for a short list of search queries,
// falling back to a single deterministic query when the model call fails
// or returns unparsable JSON, matching the teacher's judge-unavailable
// deterministic-fallback pattern.
func (a *LLMSearchAdapter) generateQueries(ctx context.Context, q Query) ([]string, error) {
	if a.LLM == nil {
		return []string{buildSearchQuery(Query{Name: q.Name, City: q.City, State: q.State})}, nil
	}
	prompt := fmt.Sprintf(
		"Return JSON only: {\"queries\": [\"...\"]} with up to %d short web search "+
			"queries most likely to find the official website for this business. "+
			"Name: %q City: %q State: %q Category: %q",
		a.MaxQueries, q.Name, q.City, q.State, q.Category,
	)
	resp, err := a.Retry.run(ctx, func(ctx context.Context) (Result, error) {
		r, cerr := a.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.Model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if cerr != nil {
			return Result{}, cerr
		}
		if len(r.Choices) == 0 {
			return Result{}, fmt.Errorf("llm_search: empty completion")
		}
		return Result{Raw: map[string]any{"content": r.Choices[0].Message.Content}}, nil
	})
	if err != nil {
		return []string{buildSearchQuery(Query{Name: q.Name, City: q.City, State: q.State})}, nil
	}
	content, _ := resp.Raw["content"].(string)
	var plan llmQueryPlan
	if jerr := json.Unmarshal([]byte(extractJSONObject(content)), &plan); jerr != nil || len(plan.Queries) == 0 {
		return []string{buildSearchQuery(Query{Name: q.Name, City: q.City, State: q.State})}, nil
	}
	if len(plan.Queries) > a.MaxQueries {
		plan.Queries = plan.Queries[:a.MaxQueries]
	}
	return plan.Queries, nil
}

// extractJSONObject returns the text from the first '{' to the last '}'
// (or "{}" when there is no such pair), tolerating
// a model that wraps its JSON in prose or a markdown code fence.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
