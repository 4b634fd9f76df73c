// Package router implements the Path Router (C5): a pure function mapping
// a NormalizedInput's Tier and BusinessType to an ordered or parallel
// adapter strategy plan.
//
// The four tier strategies are a direct translation of the original
// Python PathRouter's _tier1Strategy.._tier4Strategy methods.
package router

import "github.com/resolveco/resolveco/internal/model"

// AdapterTag names one of the C2 source adapters.
type AdapterTag string

const (
	PlacesPhoneVerify AdapterTag = "places_phone_verify"
	PlacesNameMatch   AdapterTag = "places_name_match"
	WebSearchKG       AdapterTag = "web_search_kg"
	DirectoryScrape   AdapterTag = "directory_scrape"
	LLMSearch         AdapterTag = "llm_search"
	B2BEnrich         AdapterTag = "b2b_enrich"
)

// Mode says whether a plan's steps run one after another or concurrently.
type Mode string

const (
	Sequential Mode = "sequential"
	Parallel   Mode = "parallel"
)

// Validation says how strictly a candidate must be verified before accept.
type Validation string

const (
	ValidationAlways    Validation = "always"
	ValidationMandatory Validation = "mandatory"
)

// Step is one adapter invocation within a Plan.
type Step struct {
	Adapter AdapterTag
	// ShortCircuitConfidence, when non-zero, is the confidence assigned
	// when this step alone produces an exact-match candidate (spec §4.5:
	// phone-exact-match short-circuits T1 at confidence 99).
	ShortCircuitConfidence int
}

// Plan is the router's output for domain resolution.
type Plan struct {
	Steps             []Step
	Mode              Mode
	Validation        Validation
	ConsensusRequired bool
	LLMAnalysis       bool
	Tier              model.Tier
}

// Route returns the domain-resolution strategy plan for a normalized input.
func Route(in model.NormalizedInput) Plan {
	switch in.Tier {
	case model.Tier1:
		return tier1Plan()
	case model.Tier2:
		return tier2Plan()
	case model.Tier3:
		return tier3Plan()
	default:
		return tier4Plan()
	}
}

func tier1Plan() Plan {
	return Plan{
		Steps: []Step{
			{Adapter: PlacesPhoneVerify, ShortCircuitConfidence: 99},
			{Adapter: PlacesNameMatch},
			{Adapter: WebSearchKG},
		},
		Mode:       Sequential,
		Validation: ValidationAlways,
		Tier:       model.Tier1,
	}
}

func tier2Plan() Plan {
	return Plan{
		Steps: []Step{
			{Adapter: PlacesNameMatch},
			{Adapter: WebSearchKG},
		},
		Mode:       Parallel,
		Validation: ValidationAlways,
		Tier:       model.Tier2,
	}
}

func tier3Plan() Plan {
	return Plan{
		Steps: []Step{
			{Adapter: LLMSearch},
			{Adapter: DirectoryScrape},
			{Adapter: WebSearchKG},
			{Adapter: B2BEnrich},
		},
		Mode:              Parallel,
		Validation:         ValidationAlways,
		ConsensusRequired: true,
		Tier:              model.Tier3,
	}
}

func tier4Plan() Plan {
	p := tier3Plan()
	p.Validation = ValidationMandatory
	p.LLMAnalysis = true
	p.Tier = model.Tier4
	return p
}

// ContactStageOrder returns the preferred ordering of contact-discovery
// stage families for a BusinessType, per spec §4.5's last paragraph:
// corporate prefers KG + directory; SMB prefers places/site-centric first.
type ContactStage string

const (
	StageMapOwnerField  ContactStage = "map_owner_field"
	StageSiteScrape     ContactStage = "site_scrape"
	StageSocialDiscover ContactStage = "social_discover"
	StageSearchOSINT    ContactStage = "search_osint"
	StageB2BEnrich      ContactStage = "b2b_enrich"
	StageDirectory      ContactStage = "directory"
	StageKnowledgeGraph ContactStage = "knowledge_graph"
)

func ContactStageOrder(bt model.BusinessType) []ContactStage {
	switch bt {
	case model.BusinessCorporate:
		return []ContactStage{
			StageKnowledgeGraph, StageDirectory, StageSiteScrape,
			StageSocialDiscover, StageSearchOSINT, StageB2BEnrich,
		}
	case model.BusinessFranchise:
		return []ContactStage{
			StageSiteScrape, StageMapOwnerField, StageDirectory,
			StageSocialDiscover, StageSearchOSINT, StageB2BEnrich,
		}
	case model.BusinessHealth:
		return []ContactStage{
			StageSiteScrape, StageMapOwnerField, StageSocialDiscover,
			StageDirectory, StageSearchOSINT, StageB2BEnrich,
		}
	default: // SMB and unknown
		return []ContactStage{
			StageMapOwnerField, StageSiteScrape, StageSocialDiscover,
			StageSearchOSINT, StageB2BEnrich, StageDirectory,
		}
	}
}
