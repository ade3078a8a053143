// Node administration MCP server.
// Exposes bigchaindb admin tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	_ "github.com/cuulee/bigchaindb/internal/backend/clusterdb"
	_ "github.com/cuulee/bigchaindb/internal/backend/redisdb"
	_ "github.com/cuulee/bigchaindb/internal/backend/sqlitedb"
	"github.com/cuulee/bigchaindb/internal/config"
	mcptools "github.com/cuulee/bigchaindb/internal/mcp"
)

func main() {
	path := os.Getenv("BIGCHAINDB_CONFIG")
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"bigchaindb",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcptools.RegisterTools(s, cfg)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
