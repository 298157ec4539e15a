package toolbridge

import (
	"context"
	"encoding/base64"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/crawlgate/crawlgate/pkg/content"
	"github.com/crawlgate/crawlgate/pkg/upstream"
)

// Bridge owns the upstream client and the handlers built around it.
type Bridge struct {
	client upstream.UpstreamClient
	cfg    *upstream.Config
	log    zerolog.Logger
}

// NewBridge wires a bridge around the given upstream configuration.
func NewBridge(cfg *upstream.Config, log zerolog.Logger) *Bridge {
	cfg = cfg.WithDefaults()
	return &Bridge{
		client: upstream.NewClient(cfg, log),
		cfg:    cfg,
		log:    log,
	}
}

// NewBridgeWithClient wires a bridge around an existing client; used by
// tests to substitute the upstream.
func NewBridgeWithClient(client upstream.UpstreamClient, cfg *upstream.Config, log zerolog.Logger) *Bridge {
	return &Bridge{client: client, cfg: cfg.WithDefaults(), log: log}
}

// Handler builds the handler for one tool definition.
func (b *Bridge) handler(def toolDefinition) Handler {
	return NewHandler(def.op, b.client, b.cfg.ClassifyMode(), b.log, def.opts)
}

// RegisterTools adds every bridge tool to the MCP server.
func (b *Bridge) RegisterTools(server *mcp.Server) {
	for _, def := range allTools() {
		def := def
		handler := b.handler(def)
		mcp.AddTool(server, def.tool, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
			blocks, isError := handler(ctx, args)
			return toCallToolResult(blocks, isError), nil, nil
		})
	}
}

// NewServer creates an MCP server with every bridge tool registered.
func (b *Bridge) NewServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	b.RegisterTools(server)
	return server
}

// toCallToolResult converts bridge blocks to MCP content. Failures ride in
// a successful protocol response with IsError set; the call itself never
// errors, preserving one request/one response symmetry.
func toCallToolResult(blocks []content.Block, isError bool) *mcp.CallToolResult {
	items := make([]mcp.Content, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case content.TypeImage:
			data, err := base64.StdEncoding.DecodeString(block.Text)
			if err != nil {
				items = append(items, &mcp.TextContent{Text: block.Text})
				continue
			}
			items = append(items, &mcp.ImageContent{MIMEType: "image/png", Data: data})
		default:
			items = append(items, &mcp.TextContent{Text: block.Text})
		}
	}
	return &mcp.CallToolResult{Content: items, IsError: isError}
}
