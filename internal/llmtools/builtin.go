package llmtools

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"

    "github.com/resolveco/resolveco/internal/adapters"
    "github.com/resolveco/resolveco/internal/model"
    "github.com/resolveco/resolveco/internal/router"
)

// DomainDeps bundles the Source Adapters (C2) that can be exposed to an
// LLM as callable tools, for the Contact Discovery Controller's (C7)
// optional LLM-driven stage-selection mode. A nil entry simply means that
// adapter's tool is not registered (e.g. no API credentials configured
// for that source in this deployment).
type DomainDeps struct {
    Adapters  map[router.AdapterTag]adapters.Adapter
    PageFetch *adapters.PageFetchAdapter
    Extract   *adapters.TextExtractAdapter
}

// adapterQuerySchema is the JSON Schema shared by every search-oriented
// adapter tool; it mirrors adapters.Query's search fields.
var adapterQuerySchema = json.RawMessage(`{
    "type":"object",
    "properties":{
        "name":{"type":"string","description":"business name"},
        "city":{"type":"string"},
        "state":{"type":"string"},
        "phone":{"type":"string"},
        "address":{"type":"string"},
        "category":{"type":"string"},
        "context":{"type":"string","description":"free-text context, e.g. a known domain or prior findings"}
    },
    "required":["name"]
}`)

type adapterQueryArgs struct {
    Name     string `json:"name"`
    City     string `json:"city"`
    State    string `json:"state"`
    Phone    string `json:"phone"`
    Address  string `json:"address"`
    Category string `json:"category"`
    Context  string `json:"context"`
}

func (a adapterQueryArgs) toQuery() adapters.Query {
    return adapters.Query{
        Name:     a.Name,
        City:     a.City,
        State:    a.State,
        Phone:    a.Phone,
        Address:  a.Address,
        Category: a.Category,
        Context:  a.Context,
    }
}

// adapterToolResult is the stable shape every adapter tool call returns,
// regardless of which underlying C2 adapter ran.
type adapterToolResult struct {
    Candidates []model.Candidate `json:"candidates,omitempty"`
    Raw        map[string]any    `json:"raw,omitempty"`
    Cost       float64           `json:"cost"`
    LatencyMS  int64             `json:"latency_ms"`
    Error      string            `json:"error,omitempty"`
}

func encodeAdapterToolResult(res adapters.AdapterResult) (json.RawMessage, error) {
    out := adapterToolResult{Cost: res.Cost, LatencyMS: res.Latency.Milliseconds()}
    if res.Err != nil {
        out.Error = fmt.Sprintf("%s: %s", res.Err.Kind, res.Err.Detail)
        return json.Marshal(out)
    }
    out.Candidates = res.Result.Candidates
    out.Raw = res.Result.Raw
    return json.Marshal(out)
}

// registerAdapterTool wraps one adapters.Adapter as an LLM-callable tool
// using the shared search-query schema.
func registerAdapterTool(r *Registry, tag router.AdapterTag, a adapters.Adapter, description string) error {
    if a == nil {
        return nil
    }
    return r.Register(ToolDefinition{
        StableName:   string(tag),
        SemVer:       "v1.0.0",
        Description:  description,
        JSONSchema:   adapterQuerySchema,
        Capabilities: []string{"contact_discovery", string(tag)},
        Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
            var in adapterQueryArgs
            if err := json.Unmarshal(args, &in); err != nil {
                return nil, fmt.Errorf("invalid args: %w", err)
            }
            if strings.TrimSpace(in.Name) == "" {
                return nil, fmt.Errorf("missing name")
            }
            return encodeAdapterToolResult(a.Call(ctx, in.toQuery()))
        },
    })
}

var adapterDescriptions = map[router.AdapterTag]string{
    router.PlacesPhoneVerify: "Verify a business's phone number against a places/maps directory",
    router.PlacesNameMatch:   "Match a business name against a places/maps directory",
    router.WebSearchKG:       "Search the web and knowledge graph for a business's canonical site and social profiles",
    router.DirectoryScrape:   "Look up a business in an online business directory",
    router.LLMSearch:         "Ask an LLM-backed search tool to locate a business's domain and contacts",
    router.B2BEnrich:         "Query a B2B contact-enrichment provider for named contacts at a business",
}

// NewDomainRegistry registers the Contact Discovery Controller's (C7)
// LLM-callable tool surface: one tool per wired C2 adapter tag (named
// after the tag itself, so the set of available tools always matches
// the set of wired adapters), plus fetch_page (PageFetchAdapter) and
// extract_page_contacts (TextExtractAdapter) for the site-centric
// stages. Deps with a nil adapter/client are skipped, not an error,
// since a given deployment may lack credentials for some sources.
func NewDomainRegistry(deps DomainDeps) (*Registry, error) {
    r := NewRegistry()

    for tag, a := range deps.Adapters {
        desc := adapterDescriptions[tag]
        if desc == "" {
            desc = fmt.Sprintf("Call the %s source adapter", tag)
        }
        if err := registerAdapterTool(r, tag, a, desc); err != nil {
            return nil, fmt.Errorf("register %s: %w", tag, err)
        }
    }

    if deps.PageFetch != nil {
        fetchSchema := json.RawMessage(`{
            "type":"object",
            "properties":{ "url": {"type":"string","description":"absolute URL to fetch"} },
            "required":["url"]
        }`)
        if err := r.Register(ToolDefinition{
            StableName:   "fetch_page",
            SemVer:       "v1.0.0",
            Description:  "Fetch a web page's HTML by URL",
            JSONSchema:   fetchSchema,
            Capabilities: []string{"contact_discovery", "fetch"},
            Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
                var in struct {
                    URL string `json:"url"`
                }
                if err := json.Unmarshal(args, &in); err != nil {
                    return nil, fmt.Errorf("invalid args: %w", err)
                }
                url := strings.TrimSpace(in.URL)
                if url == "" {
                    return nil, fmt.Errorf("missing url")
                }
                res := deps.PageFetch.Call(ctx, adapters.Query{CandidateURL: url})
                if b, ok := res.Result.Raw["html"].([]byte); ok {
                    res.Result.Raw["html"] = string(b)
                }
                return encodeAdapterToolResult(res)
            },
        }); err != nil {
            return nil, err
        }
    }

    if deps.Extract != nil {
        extractSchema := json.RawMessage(`{
            "type":"object",
            "properties":{ "html": {"type":"string","description":"raw page HTML to mine for contact details"} },
            "required":["html"]
        }`)
        if err := r.Register(ToolDefinition{
            StableName:   "extract_page_contacts",
            SemVer:       "v1.0.0",
            Description:  "Extract email/phone/LinkedIn candidates from page HTML",
            JSONSchema:   extractSchema,
            Capabilities: []string{"contact_discovery", "extract"},
            Handler: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
                var in struct {
                    HTML string `json:"html"`
                }
                if err := json.Unmarshal(args, &in); err != nil {
                    return nil, fmt.Errorf("invalid args: %w", err)
                }
                if strings.TrimSpace(in.HTML) == "" {
                    return nil, fmt.Errorf("missing html")
                }
                res := deps.Extract.Call(ctx, adapters.Query{CandidateHTML: []byte(in.HTML)})
                return encodeAdapterToolResult(res)
            },
        }); err != nil {
            return nil, err
        }
    }

    return r, nil
}
