package tools

import (
	"net/http"
	"sort"

	"github.com/mark3labs/mcp-go/server"
)

// ToolManager manages the available tools
type ToolManager struct {
	tools map[string]Tool
}

// NewToolManager creates a new ToolManager
func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]Tool),
	}
}

// RegisterTool registers a new tool
func (m *ToolManager) RegisterTool(tool Tool) {
	m.tools[tool.Name()] = tool
}

// List returns all registered tools sorted by name
func (m *ToolManager) List() []Tool {
	ts := make([]Tool, 0, len(m.tools))
	for _, t := range m.tools {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
	return ts
}

// MCPServer builds an MCP server exposing every registered tool.
func (m *ToolManager) MCPServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range m.List() {
		s.AddTool(t.Definition(), t.Run)
	}
	return s
}

// HTTPHandler serves the tools over the streamable HTTP transport at path.
func (m *ToolManager) HTTPHandler(name, version, path string) http.Handler {
	return server.NewStreamableHTTPServer(m.MCPServer(name, version),
		server.WithEndpointPath(path),
		server.WithStateLess(true),
	)
}
