package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.createProjectTool(),
		s.getProjectTool(),
		s.listProjectsTool(),
		s.updateProjectTool(),
		s.deleteProjectTool(),
		s.importTestStructureTool(),
		s.addEpicTool(),
		s.addFeatureTool(),
		s.addUseCaseTool(),
		s.addTestCaseTool(),
		s.updateEpicJiraStatusTool(),
		s.searchTestCasesTool(),
		s.getProjectStatisticsTool(),
		s.getOverallStatisticsTool(),
	)
}

var errNotConfigured = errors.New("hierarchy service not configured")

// --- Projects ---

func (s *Server) createProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_project",
		mcplib.WithDescription("Create a new healthcare test management project"),
		mcplib.WithString("project_name", mcplib.Required(), mcplib.Description("Name of the project")),
		mcplib.WithString("description", mcplib.Description("Project description")),
		mcplib.WithArray("compliance_frameworks",
			mcplib.WithStringItems(),
			mcplib.Description("Compliance frameworks such as FDA 21 CFR Part 11 or IEC 62304"),
		),
		mcplib.WithString("jira_project_key", mcplib.Description("Jira project key used for pushes")),
		mcplib.WithString("created_by", mcplib.Description("User creating the project")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateProject}
}

func (s *Server) handleCreateProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	p, err := s.deps.Hierarchy.CreateProject(ctx, project.CreateRequest{
		Name:                 stringArg(req, "project_name"),
		Description:          stringArg(req, "description"),
		ComplianceFrameworks: stringsArg(req, "compliance_frameworks"),
		JiraProjectKey:       stringArg(req, "jira_project_key"),
		CreatedBy:            stringArg(req, "created_by"),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to create project", err), nil
	}
	return resultJSON(p)
}

func (s *Server) getProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_project",
		mcplib.WithDescription("Get a project with its complete epic, feature, use case and test case tree"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("The project ID to look up")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetProject}
}

func (s *Server) handleGetProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	p, err := s.deps.Hierarchy.GetProject(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get project %s", projectID), err), nil
	}
	return resultJSON(p)
}

func (s *Server) listProjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_projects",
		mcplib.WithDescription("List project summaries, newest first"),
		mcplib.WithString("status",
			mcplib.Description("Filter by project status"),
			mcplib.Enum("Active", "Completed", "On Hold", "Archived"),
		),
		mcplib.WithString("compliance_framework", mcplib.Description("Only projects declaring this framework")),
		mcplib.WithString("text_search", mcplib.Description("Case-insensitive match on name and description")),
		mcplib.WithString("jira_status",
			mcplib.Description("Only projects with an epic in this Jira state"),
			mcplib.Enum("Not Pushed", "Pushed", "Synced", "Failed", "Pending"),
		),
		mcplib.WithString("created_after", mcplib.Description("RFC 3339 lower bound on creation time")),
		mcplib.WithString("created_before", mcplib.Description("RFC 3339 upper bound on creation time")),
		mcplib.WithNumber("limit", mcplib.Description("Maximum number of projects returned")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListProjects}
}

func (s *Server) handleListProjects(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	f := project.ListFilter{
		Status:              project.ProjectStatus(stringArg(req, "status")),
		ComplianceFramework: stringArg(req, "compliance_framework"),
		TextSearch:          stringArg(req, "text_search"),
		JiraStatus:          project.JiraStatus(stringArg(req, "jira_status")),
		Limit:               intArg(req, "limit", 0),
	}
	for key, dst := range map[string]**time.Time{
		"created_after":  &f.CreatedAfter,
		"created_before": &f.CreatedBefore,
	} {
		v := stringArg(req, key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("%s must be RFC 3339", key)), nil
		}
		*dst = &ts
	}
	projects, err := s.deps.Hierarchy.ListProjects(ctx, f)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list projects", err), nil
	}
	return resultJSON(projects)
}

func (s *Server) updateProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("update_project",
		mcplib.WithDescription("Update top-level project fields; omitted fields are left unchanged"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("The project to update")),
		mcplib.WithString("project_name", mcplib.Description("New project name")),
		mcplib.WithString("description", mcplib.Description("New description")),
		mcplib.WithString("status",
			mcplib.Description("New project status"),
			mcplib.Enum("Active", "Completed", "On Hold", "Archived"),
		),
		mcplib.WithArray("compliance_frameworks",
			mcplib.WithStringItems(),
			mcplib.Description("Replacement list of compliance frameworks"),
		),
		mcplib.WithString("coverage_summary", mcplib.Description("Coverage summary text")),
		mcplib.WithString("jira_project_key", mcplib.Description("Jira project key")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleUpdateProject}
}

func (s *Server) handleUpdateProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	u := project.UpdateRequest{
		Name:                 optionalArg(req, "project_name"),
		Description:          optionalArg(req, "description"),
		ComplianceFrameworks: stringsArg(req, "compliance_frameworks"),
		CoverageSummary:      optionalArg(req, "coverage_summary"),
		JiraProjectKey:       optionalArg(req, "jira_project_key"),
	}
	if v := optionalArg(req, "status"); v != nil {
		st := project.ProjectStatus(*v)
		u.Status = &st
	}
	p, err := s.deps.Hierarchy.UpdateProject(ctx, projectID, u)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to update project %s", projectID), err), nil
	}
	return resultJSON(p)
}

func (s *Server) deleteProjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("delete_project",
		mcplib.WithDescription("Delete a project and its whole hierarchy"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("The project to delete")),
		mcplib.WithDestructiveHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleDeleteProject}
}

func (s *Server) handleDeleteProject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	if err := s.deps.Hierarchy.DeleteProject(ctx, projectID); err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to delete project %s", projectID), err), nil
	}
	return resultJSON(map[string]string{"project_id": projectID, "status": "deleted"})
}

// --- Argument helpers ---

// stringArg returns the string argument key, or "" when absent.
func stringArg(req mcplib.CallToolRequest, key string) string { //nolint:gocritic // hugeParam: mcp-go request type
	v, _ := req.GetArguments()[key].(string)
	return v
}

// optionalArg returns nil when key is absent so updates can tell "unset"
// from "set to empty".
func optionalArg(req mcplib.CallToolRequest, key string) *string { //nolint:gocritic // hugeParam: mcp-go request type
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func requireArg(req mcplib.CallToolRequest, key string) (string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go request type
	v := stringArg(req, key)
	if v == "" {
		return "", mcplib.NewToolResultError(key + " is required")
	}
	return v, nil
}

// stringsArg accepts a JSON array of strings. Non-string items are skipped.
func stringsArg(req mcplib.CallToolRequest, key string) []string { //nolint:gocritic // hugeParam: mcp-go request type
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// intArg extracts an integer argument; JSON numbers arrive as float64.
func intArg(req mcplib.CallToolRequest, key string, defaultVal int) int { //nolint:gocritic // hugeParam: mcp-go request type
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func resultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
