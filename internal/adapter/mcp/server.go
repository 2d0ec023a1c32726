// Package mcp exposes the project hierarchy as Model Context Protocol tools
// so agents can read and write test artifacts directly.
package mcp

import (
	"context"
	"io"
	"net/http"
	"sort"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// HierarchyManager is the subset of the hierarchy service the tools call.
type HierarchyManager interface {
	CreateProject(ctx context.Context, req project.CreateRequest) (*project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	UpdateProject(ctx context.Context, id string, req project.UpdateRequest) (*project.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, f project.ListFilter) ([]project.Summary, error)
	AddEpic(ctx context.Context, projectID string, e project.Epic) (string, error)
	AddFeature(ctx context.Context, projectID, epicID string, f project.Feature) (string, error)
	AddUseCase(ctx context.Context, projectID, epicID, featureID string, u project.UseCase) (string, error)
	AddTestCase(ctx context.Context, projectID, epicID, featureID, useCaseID string, tc project.TestCase) (string, error)
	UpdateEpicJiraStatus(ctx context.Context, projectID, epicID string, status project.JiraStatus, issueKey, pushedBy string) error
	ProjectStatistics(ctx context.Context, id string) (*project.Statistics, error)
	OverallStatistics(ctx context.Context) (*project.OverallStatistics, error)
	SearchTestCases(ctx context.Context, projectID, term string) ([]project.SearchHit, error)
}

// StructureImporter imports a generated fragment into an existing project.
type StructureImporter interface {
	ImportRaw(ctx context.Context, projectID string, data []byte) (*project.ImportResult, error)
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the services tool handlers call. Nil deps make the
// corresponding tools return an error result.
type ServerDeps struct {
	Hierarchy HierarchyManager
	Importer  StructureImporter
}

// Server wraps an MCP server with the CaseForge tool set.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates a Server with every tool and resource registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// ToolNames returns the registered tool names in sorted order.
func (s *Server) ToolNames() []string {
	tools := s.mcpServer.ListTools()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the streamable HTTP transport, guarded by apiKey when set.
func (s *Server) Handler(apiKey string) http.Handler {
	return AuthMiddleware(apiKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

// ServeStdio serves the tools over in/out until ctx is canceled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return mcpserver.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
