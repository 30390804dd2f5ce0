// Package mcp implements the Model Context Protocol surface for
// nexus-router.
//
// The MCP server exposes the router's public operations — run, inspect,
// replay, export, import, adapters — as MCP tools, so MCP-compatible
// agents can execute plans and audit runs without linking the library.
package mcp

import (
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// Server wraps the MCP server with the router's collaborators.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     *store.Store
	registry  *dispatch.Registry
	redactor  *redact.Redactor
	instr     *telemetry.Instruments
	logger    *slog.Logger
}

// New creates and configures an MCP server with all router tools
// registered. redactor and instr may be nil.
func New(s *store.Store, registry *dispatch.Registry, redactor *redact.Redactor, instr *telemetry.Instruments, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:    s,
		registry: registry,
		redactor: redactor,
		instr:    instr,
		logger:   logger,
	}

	srv.mcpServer = mcpserver.NewMCPServer(
		"nexus-router",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	srv.registerTools()

	return srv
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func textResult(data []byte) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
