// Package mcp implements the Model Context Protocol server for Kenkyu.
//
// The MCP server exposes the same two-call research contract as the HTTP
// API: research_plan returns a plan for approval, research_execute runs the
// approved plan to a final report, and research_status reads a session.
package mcp

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kenkyu/internal/workflow"
)

// Server wraps the MCP server with Kenkyu's workflow engine.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *workflow.Engine
	guard     *workflow.Guard
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools,
// and prompts. guard should be the one the HTTP server uses; nil creates a
// private one.
func New(engine *workflow.Engine, guard *workflow.Guard, logger *slog.Logger, version string) *Server {
	if guard == nil {
		guard = workflow.NewGuard()
	}
	s := &Server{
		engine: engine,
		guard:  guard,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kenkyu",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(instructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const instructions = `Kenkyu researches a question against an indexed document collection and writes a cited report.

Call research_plan with the task first. Show the returned plan to the user and wait for approval.
Then call research_execute with the session_id. Use research_status to inspect a session at any time.
A failed call returns the session_id; calling research_execute again resumes from the last completed stage.`
