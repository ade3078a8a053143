// Package mcp exposes node administration as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/topology"
)

// RegisterTools registers all node administration tools on the MCP server.
func RegisterTools(s *server.MCPServer, cfg *config.Config) {
	registerStatus(s, cfg)
	registerPubkey(s, cfg)
	registerInit(s, cfg)
	registerDrop(s, cfg)
	registerSetShards(s, cfg)
	registerSetReplicas(s, cfg)
	registerAddReplicas(s, cfg)
	registerRemoveReplicas(s, cfg)
}

func withBackend(cfg *config.Config, fn func(be backend.Backend) (*gomcp.CallToolResult, error)) (*gomcp.CallToolResult, error) {
	be, err := backend.Connect(cfg.Database)
	if err != nil {
		return gomcp.NewToolResultError(fmt.Sprintf("Backend unreachable: %v", err)), nil
	}
	defer be.Close()
	return fn(be)
}

func registerStatus(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("node_status",
		gomcp.WithDescription("Get node status: backend, genesis record presence, backlog depth."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			genesis, err := be.GenesisExists(ctx)
			if err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("Status check failed: %v", err)), nil
			}
			backlog, err := be.CountBacklog(ctx)
			if err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("Status check failed: %v", err)), nil
			}
			return gomcp.NewToolResultText(joinLines(
				section("Node Status"),
				kv("Backend", cfg.Database.Backend),
				kv("Database", cfg.Database.Name),
				kv("Genesis", genesis),
				kv("Backlog", backlog),
			)), nil
		})
	})
}

func registerPubkey(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("node_pubkey",
		gomcp.WithDescription("Get this node's public key."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		if cfg.Keypair.Public == "" {
			return gomcp.NewToolResultError("This node has no public key configured"), nil
		}
		return gomcp.NewToolResultText(cfg.Keypair.Public), nil
	})
}

func registerInit(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("db_init",
		gomcp.WithDescription("Initialize the node database. This is a MUTATING operation. Safe to repeat: an existing database is reported, not re-created."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			if err := be.InitDatabase(ctx); err != nil {
				if errors.Is(err, backend.ErrDatabaseExists) {
					return gomcp.NewToolResultText("The database already exists. If you wish to re-initialize it, first drop it."), nil
				}
				return gomcp.NewToolResultError(fmt.Sprintf("Init failed: %v", err)), nil
			}
			return gomcp.NewToolResultText(joinLines(
				section("Database Initialized"),
				kv("Backend", cfg.Database.Backend),
				kv("Database", cfg.Database.Name),
			)), nil
		})
	})
}

func registerDrop(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("db_drop",
		gomcp.WithDescription("Drop the node database and all its records. This is a MUTATING, DESTRUCTIVE operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			if err := be.DropDatabase(ctx); err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("Drop failed: %v", err)), nil
			}
			return gomcp.NewToolResultText(fmt.Sprintf("Database `%s` dropped.", cfg.Database.Name)), nil
		})
	})
}

func registerSetShards(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("topology_set_shards",
		gomcp.WithDescription("Redistribute cluster data across a number of shards. This is a MUTATING operation."),
		gomcp.WithNumber("shards",
			gomcp.Required(),
			gomcp.Description("Target shard count, must be positive"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		n := req.GetInt("shards", 0)
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			if err := topology.NewAdmin(be, nil).SetShards(ctx, n); err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("Set shards failed: %v", err)), nil
			}
			return gomcp.NewToolResultText(fmt.Sprintf("Shard count set to %d.", n)), nil
		})
	})
}

func registerSetReplicas(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("topology_set_replicas",
		gomcp.WithDescription("Set the cluster replication factor. This is a MUTATING operation."),
		gomcp.WithNumber("replicas",
			gomcp.Required(),
			gomcp.Description("Target replica count, must be positive"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		n := req.GetInt("replicas", 0)
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			if err := topology.NewAdmin(be, nil).SetReplicas(ctx, n); err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("Set replicas failed: %v", err)), nil
			}
			return gomcp.NewToolResultText(fmt.Sprintf("Replication factor set to %d.", n)), nil
		})
	})
}

func registerAddReplicas(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("topology_add_replicas",
		gomcp.WithDescription("Add host:port members to the replica set. This is a MUTATING operation."),
		gomcp.WithString("hosts",
			gomcp.Required(),
			gomcp.Description("Comma-separated host:port list, e.g. node1:9985,node2:9985"),
		),
	)
	s.AddTool(tool, replicaHandler(cfg, "Add replicas", func(ctx context.Context, admin *topology.Admin, members []topology.Member) error {
		return admin.AddReplicas(ctx, members)
	}))
}

func registerRemoveReplicas(s *server.MCPServer, cfg *config.Config) {
	tool := gomcp.NewTool("topology_remove_replicas",
		gomcp.WithDescription("Remove host:port members from the replica set. This is a MUTATING operation."),
		gomcp.WithString("hosts",
			gomcp.Required(),
			gomcp.Description("Comma-separated host:port list, e.g. node1:9985,node2:9985"),
		),
	)
	s.AddTool(tool, replicaHandler(cfg, "Remove replicas", func(ctx context.Context, admin *topology.Admin, members []topology.Member) error {
		return admin.RemoveReplicas(ctx, members)
	}))
}

func replicaHandler(cfg *config.Config, label string, op func(ctx context.Context, admin *topology.Admin, members []topology.Member) error) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := req.RequireString("hosts")
		if err != nil {
			return gomcp.NewToolResultError("hosts is required"), nil
		}
		members, err := topology.ParseMembers(splitHosts(raw))
		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}
		return withBackend(cfg, func(be backend.Backend) (*gomcp.CallToolResult, error) {
			if err := op(ctx, topology.NewAdmin(be, nil), members); err != nil {
				return gomcp.NewToolResultError(fmt.Sprintf("%s failed: %v", label, err)), nil
			}
			return gomcp.NewToolResultText(fmt.Sprintf("%s done: %d member(s).", label, len(members))), nil
		})
	}
}

func splitHosts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
