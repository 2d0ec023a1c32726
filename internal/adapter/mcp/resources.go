package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// registerResources registers read-only views of the store.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"caseforge://projects",
			"Project List",
			mcplib.WithResourceDescription("Summaries of all CaseForge projects"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"caseforge://statistics",
			"Overall Statistics",
			mcplib.WithResourceDescription("Statistics aggregated across all projects"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatisticsResource,
	)
}

func (s *Server) handleProjectsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Hierarchy == nil {
		return nil, errNotConfigured
	}
	projects, err := s.deps.Hierarchy.ListProjects(ctx, project.ListFilter{})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, projects)
}

func (s *Server) handleStatisticsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Hierarchy == nil {
		return nil, errNotConfigured
	}
	stats, err := s.deps.Hierarchy.OverallStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, stats)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
