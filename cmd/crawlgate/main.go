package main

import (
	"context"
	"flag"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/crawlgate/crawlgate/pkg/toolbridge"
	"github.com/crawlgate/crawlgate/pkg/upstream"
)

// Information to find out exactly which commit the server was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const serverName = "crawlgate"
const serverVersion = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	logLevel := flag.String("log-level", "info", "zerolog level (trace, debug, info, warn, error)")
	flag.Parse()

	// Stdout carries the MCP transport; all logging goes to stderr.
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	log := zerolog.New(writer).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(*logLevel); err == nil {
		log = log.Level(level)
	}

	cfg := upstream.ConfigFromEnv()
	if *configPath != "" {
		loaded, err := upstream.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
		cfg = upstream.ApplyEnvDefaults(loaded)
	}

	log.Info().
		Str("tag", Tag).
		Str("commit", Commit).
		Str("built_at", BuildTime).
		Str("base_url", cfg.BaseURL).
		Str("mode", cfg.Mode).
		Msg("Starting crawlgate MCP server on stdio")

	bridge := toolbridge.NewBridge(cfg, log)
	server := bridge.NewServer(serverName, serverVersion)
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatal().Err(err).Msg("MCP server exited")
	}
}
