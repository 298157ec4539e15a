package toolbridge

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crawlgate/crawlgate/pkg/upstream"
)

// toolDefinition pairs an MCP tool declaration with the operation it
// forwards to and the options its handler is built with.
type toolDefinition struct {
	tool *mcp.Tool
	op   upstream.Operation
	opts HandlerOptions
}

func urlProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

var scrapeTool = toolDefinition{
	op: upstream.OpScrape,
	tool: &mcp.Tool{
		Name:        "scrape",
		Description: "Scrape a single URL and return its content in the requested formats.",
		Annotations: &mcp.ToolAnnotations{Title: "Scrape URL", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": urlProperty("The URL to scrape"),
				"formats": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string", "enum": []string{"markdown", "html", "rawHtml", "screenshot", "links"}},
					"description": "Content formats to return",
					"default":     []string{"markdown"},
				},
				"onlyMainContent": map[string]any{
					"type":        "boolean",
					"description": "Strip navigation, footers and other boilerplate",
				},
				"includeTags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"excludeTags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"waitFor": map[string]any{
					"type":        "number",
					"description": "Milliseconds to wait for dynamic content before capturing",
				},
				"mobile":  map[string]any{"type": "boolean", "description": "Emulate a mobile viewport"},
				"timeout": map[string]any{"type": "number", "description": "Per-page timeout in milliseconds"},
			},
			"required": []string{"url"},
		},
	},
	opts: HandlerOptions{
		ErrorContext: func(args map[string]any) string {
			return failureContext("Failed to scrape", stringArg(args, "url"))
		},
		EmptyMessage: func(args map[string]any) string {
			return fmt.Sprintf("No content could be extracted from %s.", stringArg(args, "url"))
		},
	},
}

var crawlTool = toolDefinition{
	op: upstream.OpCrawl,
	tool: &mcp.Tool{
		Name:        "crawl",
		Description: "Start an asynchronous crawl from a URL. Returns a job id; poll it with check_crawl_status.",
		Annotations: &mcp.ToolAnnotations{Title: "Start Crawl"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":          urlProperty("The URL to start crawling from"),
				"maxDepth":     map[string]any{"type": "number", "description": "Maximum link depth to follow"},
				"limit":        map[string]any{"type": "number", "description": "Maximum number of pages to crawl"},
				"includePaths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"excludePaths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"allowExternalLinks": map[string]any{
					"type":        "boolean",
					"description": "Follow links to other domains",
				},
				"deduplicateSimilarUrls": map[string]any{"type": "boolean"},
			},
			"required": []string{"url"},
		},
	},
	opts: HandlerOptions{
		ErrorContext: func(args map[string]any) string {
			return failureContext("Failed to start crawl of", stringArg(args, "url"))
		},
	},
}

var mapTool = toolDefinition{
	op: upstream.OpMap,
	tool: &mcp.Tool{
		Name:        "map",
		Description: "Discover the URLs reachable from a site without scraping their content.",
		Annotations: &mcp.ToolAnnotations{Title: "Map Site", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":               urlProperty("The site to map"),
				"search":            map[string]any{"type": "string", "description": "Filter discovered URLs by this term"},
				"limit":             map[string]any{"type": "number", "description": "Maximum number of URLs to return"},
				"ignoreSitemap":     map[string]any{"type": "boolean"},
				"sitemapOnly":       map[string]any{"type": "boolean"},
				"includeSubdomains": map[string]any{"type": "boolean"},
			},
			"required": []string{"url"},
		},
	},
	opts: HandlerOptions{
		ErrorContext: func(args map[string]any) string {
			return failureContext("Failed to map", stringArg(args, "url"))
		},
		EmptyMessage: func(args map[string]any) string {
			return fmt.Sprintf("No URLs were discovered on %s.", stringArg(args, "url"))
		},
	},
}

var extractTool = toolDefinition{
	op: upstream.OpExtract,
	tool: &mcp.Tool{
		Name:        "extract",
		Description: "Extract structured data from one or more URLs using a prompt and optional JSON schema.",
		Annotations: &mcp.ToolAnnotations{Title: "Extract Data", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "The URLs to extract from",
				},
				"prompt":       map[string]any{"type": "string", "description": "What to extract"},
				"systemPrompt": map[string]any{"type": "string"},
				"schema": map[string]any{
					"type":        "object",
					"description": "JSON schema the extracted data must conform to",
				},
				"allowExternalLinks": map[string]any{"type": "boolean"},
				"enableWebSearch":    map[string]any{"type": "boolean"},
				"includeSubdomains":  map[string]any{"type": "boolean"},
			},
			"required": []string{"urls"},
		},
	},
	opts: HandlerOptions{
		Validate: func(args map[string]any) error {
			if _, hasPrompt := args["prompt"].(string); !hasPrompt {
				if _, hasSchema := args["schema"].(map[string]any); !hasSchema {
					return errors.New("either a prompt or a schema is required")
				}
			}
			return nil
		},
		ErrorContext: func(map[string]any) string {
			return "Failed to extract structured data"
		},
	},
}

var checkCrawlStatusTool = toolDefinition{
	op: upstream.OpCheckStatus,
	tool: &mcp.Tool{
		Name:        "check_crawl_status",
		Description: "Check the status of a crawl job started with the crawl tool.",
		Annotations: &mcp.ToolAnnotations{Title: "Check Crawl Status", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "string", "description": "The crawl job id"},
			},
			"required": []string{"id"},
		},
	},
	opts: HandlerOptions{
		ErrorContext: func(args map[string]any) string {
			return failureContext("Failed to check status of job", stringArg(args, "id"))
		},
	},
}

var searchTool = toolDefinition{
	op: upstream.OpSearch,
	tool: &mcp.Tool{
		Name:        "search",
		Description: "Search the web and return result listings, optionally scraping each hit.",
		Annotations: &mcp.ToolAnnotations{Title: "Web Search", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":   map[string]any{"type": "string", "description": "The search query"},
				"limit":   map[string]any{"type": "number", "description": "Maximum number of results"},
				"lang":    map[string]any{"type": "string", "description": "Language code, e.g. en"},
				"country": map[string]any{"type": "string", "description": "Country code, e.g. us"},
				"scrapeOptions": map[string]any{
					"type":        "object",
					"description": "Scrape options applied to each result",
				},
			},
			"required": []string{"query"},
		},
	},
	opts: HandlerOptions{
		ErrorContext: func(args map[string]any) string {
			return fmt.Sprintf("Search failed for %q", stringArg(args, "query"))
		},
		EmptyMessage: func(args map[string]any) string {
			return fmt.Sprintf("No results found for %q.", stringArg(args, "query"))
		},
	},
}

var deepResearchTool = toolDefinition{
	op: upstream.OpDeepResearch,
	tool: &mcp.Tool{
		Name:        "deep_research",
		Description: "Run multi-step research on a query, following sources and summarizing findings.",
		Annotations: &mcp.ToolAnnotations{Title: "Deep Research", ReadOnlyHint: true},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string", "description": "The research question"},
				"maxDepth":  map[string]any{"type": "number", "description": "Maximum research iterations"},
				"timeLimit": map[string]any{"type": "number", "description": "Time budget in seconds"},
				"maxUrls":   map[string]any{"type": "number", "description": "Maximum number of sources to consult"},
			},
			"required": []string{"query"},
		},
	},
	opts: HandlerOptions{
		// Research failures are reported inside the payload rather than as
		// error blocks, so a partial run still renders its findings.
		SoftFail: true,
		ErrorContext: func(args map[string]any) string {
			return fmt.Sprintf("Research failed for %q", stringArg(args, "query"))
		},
	},
}

func allTools() []toolDefinition {
	return []toolDefinition{
		scrapeTool,
		crawlTool,
		mapTool,
		extractTool,
		checkCrawlStatusTool,
		searchTool,
		deepResearchTool,
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return value
}

// failureContext builds "<prefix> <target>", dropping the trailing space
// when the target argument is absent.
func failureContext(prefix, target string) string {
	if target == "" {
		return prefix
	}
	return prefix + " " + target
}
