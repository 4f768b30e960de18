// Command uiverify-mcp exposes the verification scenarios as MCP tools over
// stdio or streamable HTTP.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/uiverify/internal/app"
	"github.com/bobmcallan/uiverify/internal/common"
	"github.com/bobmcallan/uiverify/internal/config"
)

type configPaths []string

func (c *configPaths) String() string { return strings.Join(*c, ", ") }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	var configFiles configPaths
	stdio := flag.Bool("stdio", false, "Use stdio transport")
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Parse()

	common.LoadVersionFromFile()
	// tool results are plain text
	color.NoColor = true

	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)

	application, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		cfg.MCP.Name,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)
	registerTools(mcpServer, newHarness(application, logger))

	if *stdio {
		if err := server.ServeStdio(mcpServer); err != nil {
			fmt.Fprintf(os.Stderr, "stdio server error: %v\n", err)
			application.Close()
			os.Exit(1)
		}
		return
	}

	port := cfg.MCP.Port
	httpServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithStateLess(true),
	)

	logger.Info().Str("port", port).Msg("starting MCP streamable HTTP")
	if err := httpServer.Start(":" + port); err != nil {
		fmt.Fprintf(os.Stderr, "http server error: %v\n", err)
		application.Close()
		os.Exit(1)
	}
}
