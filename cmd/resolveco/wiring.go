package main

import (
	"context"
	"fmt"
	"time"

	"github.com/resolveco/resolveco/internal/adapters"
	"github.com/resolveco/resolveco/internal/cache"
	"github.com/resolveco/resolveco/internal/config"
	"github.com/resolveco/resolveco/internal/contact"
	"github.com/resolveco/resolveco/internal/fetch"
	"github.com/resolveco/resolveco/internal/judge"
	"github.com/resolveco/resolveco/internal/llm"
	"github.com/resolveco/resolveco/internal/llmtools"
	"github.com/resolveco/resolveco/internal/orchestrator"
	"github.com/resolveco/resolveco/internal/resolver"
	"github.com/resolveco/resolveco/internal/router"
)

// pipeline bundles the Orchestrator (C9) with the tool registry and the
// tool-explorer loop built from the same configuration, so subcommands can
// share one wiring path.
type pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	Tools        *llmtools.Registry
	// Explorer drives an ad hoc, model-directed walk over Tools for
	// `resolveco tools explore`, outside the fixed C6/C7 step order.
	Explorer *llmtools.Orchestrator
}

// buildPipeline wires every C1-C9 collaborator from cfg, mirroring the
// teacher's cmd/goresearch main.go's "flags/env -> app.Config -> app.New"
// shape but fanning the result out into the Orchestrator's per-row
// dependencies instead of one linear app.App.
func buildPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	userAgent := cfg.Adapters.UserAgent
	if userAgent == "" {
		userAgent = "resolveco/1.0"
	}

	httpCacheDir := cfg.Cache.HTTPDir
	if httpCacheDir == "" {
		httpCacheDir = ".resolveco-cache/http"
	}
	llmCacheDir := cfg.Cache.LLMDir
	if llmCacheDir == "" {
		llmCacheDir = ".resolveco-cache/judge"
	}

	primaryFetch := &fetch.Client{
		UserAgent:         userAgent,
		MaxAttempts:       2,
		PerRequestTimeout: 10 * time.Second,
		Cache:             &cache.HTTPCache{Dir: httpCacheDir},
	}
	fallbackFetch := &fetch.Client{
		UserAgent:         userAgent,
		MaxAttempts:       2,
		PerRequestTimeout: 20 * time.Second,
	}
	pageFetch := adapters.NewPageFetchAdapter(primaryFetch, fallbackFetch)
	textExtract := adapters.NewTextExtractAdapter()

	llmClient, err := llm.New(ctx, cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}

	adapterSet := map[router.AdapterTag]adapters.Adapter{}
	if cfg.Adapters.SearchBaseURL != "" {
		search := &adapters.SearxNGProvider{BaseURL: cfg.Adapters.SearchBaseURL, APIKey: cfg.Adapters.SearchAPIKey, UserAgent: userAgent}
		adapterSet[router.WebSearchKG] = adapters.NewWebSearchKGAdapter(search)
		adapterSet[router.LLMSearch] = adapters.NewLLMSearchAdapter(llmClient, cfg.LLM.Model, adapterSet[router.WebSearchKG].(*adapters.WebSearchKGAdapter))
	}
	if cfg.Adapters.PlacesAPIKey != "" || cfg.Adapters.PlacesBaseURL != "" {
		placesClient := &adapters.HTTPPlacesClient{BaseURL: cfg.Adapters.PlacesBaseURL, APIKey: cfg.Adapters.PlacesAPIKey}
		adapterSet[router.PlacesPhoneVerify] = adapters.NewPlacesPhoneVerifyAdapter(placesClient)
		adapterSet[router.PlacesNameMatch] = adapters.NewPlacesNameMatchAdapter(placesClient)
	}
	if cfg.Adapters.B2BAPIKey != "" || cfg.Adapters.B2BBaseURL != "" {
		b2bClient := &adapters.HTTPB2BEnrichClient{BaseURL: cfg.Adapters.B2BBaseURL, APIKey: cfg.Adapters.B2BAPIKey}
		adapterSet[router.B2BEnrich] = adapters.NewB2BEnrichAdapter(b2bClient)
	}
	// DirectoryScrape needs a concrete DirectoryFetcher, which in turn
	// needs a per-directory search-URL template; left unwired here until a
	// deployment names a specific directory site to scrape, matching
	// Deps' documented "unwired tag is skipped, not a panic" contract.

	var emailVerify *adapters.EmailVerifyAdapter
	if cfg.Adapters.EmailVerifyAPIKey != "" || cfg.Adapters.EmailVerifyBaseURL != "" {
		emailVerify = adapters.NewEmailVerifyAdapter(&adapters.HTTPEmailVerifyClient{
			BaseURL: cfg.Adapters.EmailVerifyBaseURL, APIKey: cfg.Adapters.EmailVerifyAPIKey,
		})
	}

	resolverDeps := resolver.Deps{
		Adapters:          adapterSet,
		PageFetch:         pageFetch,
		MaxParallelVerify: cfg.Adapters.MaxParallelVerify,
	}
	if cfg.LLM.Model != "" {
		resolverDeps.Judge = judge.New(llmClient, cfg.LLM.Model, &cache.LLMCache{Dir: llmCacheDir})
	}

	contactDeps := contact.Deps{
		Adapters:    adapterSet,
		PageFetch:   pageFetch,
		LLM:         llmClient,
		Model:       cfg.LLM.Model,
		MaxSteps:    cfg.Routing.ContactMaxSteps,
		BudgetLimit: cfg.Routing.ContactBudgetLimit,
		Deadline:    cfg.Routing.ContactDeadline,
	}
	orch := orchestrator.New(orchestrator.Deps{
		Resolver:    resolver.New(resolverDeps),
		Contact:     contact.New(contactDeps),
		Concurrency: cfg.Routing.Concurrency,
		RowDeadline: cfg.Routing.RowDeadline,
		EmailVerify: emailVerify,
	})

	tools, err := llmtools.NewDomainRegistry(llmtools.DomainDeps{
		Adapters:  adapterSet,
		PageFetch: pageFetch,
		Extract:   textExtract,
	})
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	explorer := &llmtools.Orchestrator{
		Client:      llmClient,
		Registry:    tools,
		MaxSteps:    cfg.Routing.ContactMaxSteps,
		StepTimeout: 10 * time.Second,
		Deadline:    cfg.Routing.ContactDeadline,
	}

	return &pipeline{Orchestrator: orch, Tools: tools, Explorer: explorer}, nil
}
