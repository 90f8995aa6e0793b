package mcp

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/lorekeeper/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "lorekeeper"
	// DefaultSyncTimeout bounds how long a tool waits for a new watch to seed
	DefaultSyncTimeout = 5 * time.Second
)

// ServerVersion is the current server version; set at build time
var ServerVersion = "1.0.0"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	app         *app.App
	log         zerolog.Logger
	syncTimeout time.Duration
}

// NewServer creates a new MCP server over an assembled runtime
func NewServer(a *app.App, log zerolog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:         mcpServer,
		app:         a,
		log:         log.With().Str("component", "mcp").Logger(),
		syncTimeout: DefaultSyncTimeout,
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	s.log.Info().Msg("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(listSessionMessagesTool(), s.handleListSessionMessages)
	s.mcp.AddTool(listCampaignItemsTool(), s.handleListCampaignItems)
	s.mcp.AddTool(postSessionMessageTool(), s.handlePostSessionMessage)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
