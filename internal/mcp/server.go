// Package mcp exposes the engine's entry points as Model Context Protocol tools
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/EPICLab/synectic/internal/app"
	"github.com/EPICLab/synectic/internal/core/engine"
	"github.com/EPICLab/synectic/internal/core/logger"
)

// Server serves engine tools over MCP
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	log       logger.Logger
}

// NewServer creates an MCP server backed by the container's engine
func NewServer(c *app.Container, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("synectic", version, server.WithLogging()),
		engine:    c.Engine,
		log:       logger.Component(c.Logger, "mcp"),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves requests on stdin/stdout until the input closes
func (s *Server) ServeStdio() error {
	s.log.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.addTool("fetch_repo", s.handleFetchRepo,
		mcp.WithString("path",
			mcp.Description("Any path inside the repository"),
			mcp.Required(),
		),
	)

	s.addTool("fetch_branch", s.handleFetchBranch,
		mcp.WithString("root",
			mcp.Description("Path inside the repository or one of its linked worktrees"),
			mcp.Required(),
		),
		mcp.WithString("ref",
			mcp.Description("Branch name (optional, defaults to the branch checked out at root)"),
		),
		mcp.WithString("scope",
			mcp.Description("Ref scope (optional, defaults to local)"),
			mcp.Enum("local", "remote"),
		),
	)

	s.addTool("fetch_metafile", s.handleFetchMetafile,
		mcp.WithString("path",
			mcp.Description("File or directory path"),
			mcp.Required(),
		),
		mcp.WithString("handler",
			mcp.Description("Handler to open the path with (optional)"),
		),
	)

	s.addTool("add_branch", s.handleAddBranch,
		mcp.WithString("root",
			mcp.Description("Path inside the repository"),
			mcp.Required(),
		),
		mcp.WithString("ref",
			mcp.Description("Branch name to make available"),
			mcp.Required(),
		),
		mcp.WithString("head",
			mcp.Description("Commit to start a new branch at (optional)"),
		),
	)

	s.addTool("remove_branch", s.handleRemoveBranch,
		mcp.WithString("root",
			mcp.Description("Path inside the repository"),
			mcp.Required(),
		),
		mcp.WithString("ref",
			mcp.Description("Local branch name"),
			mcp.Required(),
		),
	)

	s.addTool("merge_branch", s.handleMergeBranch,
		mcp.WithString("root",
			mcp.Description("Path inside the repository"),
			mcp.Required(),
		),
		mcp.WithString("base",
			mcp.Description("Branch receiving the merge"),
			mcp.Required(),
		),
		mcp.WithString("compare",
			mcp.Description("Branch to merge into base (not needed with continue)"),
		),
		mcp.WithBoolean("continue",
			mcp.Description("Conclude an interrupted merge into base"),
		),
	)

	s.addTool("stage", s.handleStage,
		mcp.WithString("path",
			mcp.Description("File or directory to stage"),
			mcp.Required(),
		),
	)

	s.addTool("unstage", s.handleUnstage,
		mcp.WithString("path",
			mcp.Description("File or directory to unstage"),
			mcp.Required(),
		),
	)

	s.addTool("snapshot", s.handleSnapshot)
}

func (s *Server) addTool(name string, handler server.ToolHandlerFunc, opts ...mcp.ToolOption) {
	opts = append([]mcp.ToolOption{mcp.WithDescription(toolDescription(name))}, opts...)
	s.mcpServer.AddTool(mcp.NewTool(name, opts...), s.logged(name, handler))
}

func (s *Server) logged(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, request)
		if err != nil {
			s.log.Warn("tool failed", "tool", name, "error", err)
		} else {
			s.log.Debug("tool called", "tool", name)
		}
		return result, err
	}
}
