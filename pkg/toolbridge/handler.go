// Package toolbridge composes validation, upstream invocation, response
// normalization and error classification into one handler per tool, and
// registers those handlers on an MCP server.
package toolbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/crawlgate/crawlgate/pkg/content"
	"github.com/crawlgate/crawlgate/pkg/crawlerrors"
	"github.com/crawlgate/crawlgate/pkg/upstream"
)

// Handler executes one tool call. It never fails at the protocol level:
// every failure surfaces as a single text block with isError set.
type Handler func(ctx context.Context, args map[string]any) (blocks []content.Block, isError bool)

// HandlerOptions customize a handler built by NewHandler. All fields are
// optional and must be pure functions of the arguments.
type HandlerOptions struct {
	// Validate runs before anything else and fails fast with a
	// descriptive message. Validation failures never reach the upstream.
	Validate func(args map[string]any) error
	// Transform rewrites the payload before normalization.
	Transform func(payload any) any
	// EmptyMessage produces the text shown for an empty upstream payload.
	EmptyMessage func(args map[string]any) string
	// ErrorContext produces the prefix for failure messages.
	ErrorContext func(args map[string]any) string
	// SoftFail converts failures into a {success: false} payload that
	// flows through normalization instead of the standard error block.
	SoftFail bool
}

// NewHandler builds the handler for one operation. The primary argument
// (URL, URL list, query or job id) is extracted from the argument bag by
// the operation's fixed convention and removed from the remainder before
// the upstream call.
func NewHandler(op upstream.Operation, client upstream.UpstreamClient, mode crawlerrors.Mode, log zerolog.Logger, opts HandlerOptions) Handler {
	return func(ctx context.Context, args map[string]any) ([]content.Block, bool) {
		if args == nil {
			args = map[string]any{}
		}
		errContext := defaultErrorContext(op)
		if opts.ErrorContext != nil {
			errContext = opts.ErrorContext(args)
		}

		if opts.Validate != nil {
			if err := opts.Validate(args); err != nil {
				return errorBlocks(errContext, err.Error()), true
			}
		}

		primary, rest, err := extractPrimary(op, args)
		if err != nil {
			return errorBlocks(errContext, err.Error()), true
		}

		payload, err := invoke(ctx, client, op, primary, rest)
		if err != nil {
			if opts.SoftFail {
				classified := crawlerrors.Classify(err, errContext, mode)
				return content.Normalize(map[string]any{
					"success": false,
					"error":   classified.Message,
				}), false
			}
			classified := crawlerrors.Classify(err, errContext, mode)
			log.Debug().
				Str("operation", string(op)).
				Str("kind", string(classified.Kind)).
				Msg("Tool call failed")
			text := classified.Message
			if mode == crawlerrors.ModeDevelopment && classified.Details != "" {
				text += "\n" + classified.Details
			}
			return []content.Block{content.TextBlock(text)}, true
		}

		if isEmptyPayload(payload) {
			message := "Request completed, but no content was returned."
			if opts.EmptyMessage != nil {
				message = opts.EmptyMessage(args)
			}
			return []content.Block{content.TextBlock(message)}, false
		}

		logCreditUsage(log, op, payload)
		if opts.Transform != nil {
			payload = opts.Transform(payload)
		}
		return content.Normalize(payload), false
	}
}

// primaryArg is the operation's positional argument, exactly one field set
// according to the operation's ArgKind.
type primaryArg struct {
	url   string
	urls  []string
	query string
	jobID string
}

func extractPrimary(op upstream.Operation, args map[string]any) (primaryArg, map[string]any, error) {
	var primary primaryArg
	key := callerArgKey(op)
	value, present := args[key]

	switch op.Kind() {
	case upstream.ArgURL:
		pageURL, ok := value.(string)
		if !present || !ok || pageURL == "" {
			return primary, nil, errors.New("URL is required and must be a string")
		}
		primary.url = pageURL
	case upstream.ArgURLList:
		items, ok := value.([]any)
		if !present || !ok || len(items) == 0 {
			return primary, nil, errors.New("URLs list is required and must contain at least one URL")
		}
		urls := make([]string, 0, len(items))
		for _, item := range items {
			u, ok := item.(string)
			if !ok || u == "" {
				return primary, nil, errors.New("URLs list must contain only non-empty strings")
			}
			urls = append(urls, u)
		}
		primary.urls = urls
	case upstream.ArgQuery:
		query, ok := value.(string)
		if !present || !ok || query == "" {
			return primary, nil, errors.New("Query is required and must be a string")
		}
		primary.query = query
	case upstream.ArgJobID:
		jobID, ok := value.(string)
		if !present || !ok || jobID == "" {
			return primary, nil, errors.New("Job ID is required and must be a string")
		}
		primary.jobID = jobID
	}

	rest := make(map[string]any, len(args))
	for argKey, argValue := range args {
		if argKey == key {
			continue
		}
		rest[argKey] = argValue
	}
	return primary, rest, nil
}

// callerArgKey is the primary argument's name in the caller's casing; it
// coincides with the wire key for every current operation.
func callerArgKey(op upstream.Operation) string {
	return op.ArgKey()
}

func invoke(ctx context.Context, client upstream.UpstreamClient, op upstream.Operation, primary primaryArg, rest map[string]any) (any, error) {
	switch op {
	case upstream.OpScrape:
		return client.Scrape(ctx, primary.url, rest)
	case upstream.OpCrawl:
		return client.Crawl(ctx, primary.url, rest)
	case upstream.OpMap:
		return client.Map(ctx, primary.url, rest)
	case upstream.OpExtract:
		return client.Extract(ctx, primary.urls, rest)
	case upstream.OpCheckStatus:
		return client.CheckCrawlStatus(ctx, primary.jobID)
	case upstream.OpSearch:
		return client.Search(ctx, primary.query, rest)
	case upstream.OpDeepResearch:
		return client.DeepResearch(ctx, primary.query, rest)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func isEmptyPayload(payload any) bool {
	switch typed := payload.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case map[string]any:
		return len(typed) == 0
	case []any:
		return len(typed) == 0
	default:
		return false
	}
}

func errorBlocks(errContext, message string) []content.Block {
	return []content.Block{content.TextBlock(errContext + ": " + message)}
}

func defaultErrorContext(op upstream.Operation) string {
	return string(op) + " failed"
}

// logCreditUsage surfaces upstream credit accounting when present.
func logCreditUsage(log zerolog.Logger, op upstream.Operation, payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	credits, ok := m["credits_used"].(float64)
	if !ok {
		if credits, ok = m["creditsUsed"].(float64); !ok {
			return
		}
	}
	log.Debug().
		Str("operation", string(op)).
		Float64("credits_used", credits).
		Msg("Upstream reported credit usage")
}
