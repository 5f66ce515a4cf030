// Package mcp provides a Model Context Protocol server for statline.
//
// It exposes the statute corpus read-only (group search, document and
// group lookup, corpus stats) as MCP tools over stdio transport. The
// pipeline itself is driven from the CLI, never through MCP.
package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/statline/statline/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Version string
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines;
// SQLite supports only one writer at a time, and a pipeline run may be
// writing while tools read.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all statline tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"statline",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerSearchTool(s, cfg.Store)
	registerDocumentTool(s, cfg.Store)
	registerGroupTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)

	return s
}

func registerSearchTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("statline_search",
		mcp.WithDescription("Search statute lineage groups by base name. Returns full group records: members, relations, and the original instrument."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Substring of the statute base name (e.g. 'companies')"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of groups to return (default: 10, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		limit := 10
		if l, err := req.RequireFloat("limit"); err == nil && l > 0 {
			limit = int(l)
			if limit > 50 {
				limit = 50
			}
		}

		groups, err := st.SearchGroups(ctx, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		if len(groups) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No groups match %q", query)), nil
		}

		data, _ := json.MarshalIndent(groups, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerDocumentTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("statline_document",
		mcp.WithDescription("Fetch one statute document by its identifier. Returns the full cleaned body including sections and metadata."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Document identifier"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		rec, err := st.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return mcp.NewToolResultText(fmt.Sprintf("No document with id %q", id)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("document error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(rec.Body, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGroupTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("statline_group",
		mcp.WithDescription("Fetch one lineage group by its group ID, or list groups when no ID is given."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("group_id",
			mcp.Description("Group identifier. Empty = list groups."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of groups when listing (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if groupID, err := req.RequireString("group_id"); err == nil && groupID != "" {
			body, err := st.GetGroup(ctx, groupID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return mcp.NewToolResultText(fmt.Sprintf("No group with id %q", groupID)), nil
				}
				return mcp.NewToolResultError(fmt.Sprintf("group error: %v", err)), nil
			}
			data, _ := json.MarshalIndent(body, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}

		limit := 20
		if l, err := req.RequireFloat("limit"); err == nil && l > 0 {
			limit = int(l)
			if limit > 100 {
				limit = 100
			}
		}

		groups, err := st.ListGroups(ctx, limit, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list groups error: %v", err)), nil
		}
		if len(groups) == 0 {
			return mcp.NewToolResultText("No groups stored. Run the grouping phase first."), nil
		}

		data, _ := json.MarshalIndent(groups, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("statline_stats",
		mcp.WithDescription("Get corpus statistics: document count, group count, distinct jurisdictions, and database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"statline://stats",
		"Corpus Statistics",
		mcp.WithResourceDescription("Statute corpus statistics: documents, groups, jurisdictions, and storage size."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
