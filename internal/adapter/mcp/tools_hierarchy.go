package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/CaseForge/internal/domain/project"
)

func (s *Server) importTestStructureTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("import_test_structure",
		mcplib.WithDescription("Import agent-generated epics, features, use cases and test cases into a project"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Target project ID")),
		mcplib.WithString("test_structure",
			mcplib.Required(),
			mcplib.Description("JSON or YAML document with an epics array"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleImportTestStructure}
}

func (s *Server) handleImportTestStructure(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Importer == nil {
		return mcplib.NewToolResultError("importer not configured"), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	structure, res := requireArg(req, "test_structure")
	if res != nil {
		return res, nil
	}
	result, err := s.deps.Importer.ImportRaw(ctx, projectID, []byte(structure))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to import test structure", err), nil
	}
	return resultJSON(map[string]any{
		"success":       result.ErrorCount == 0,
		"import_result": result,
		"message":       fmt.Sprintf("Import completed: %d created, %d errors", result.SuccessCount, result.ErrorCount),
	})
}

func (s *Server) addEpicTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_epic",
		mcplib.WithDescription("Add an epic to a project, replacing any epic with the same ID"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("epic_name", mcplib.Required(), mcplib.Description("Epic name")),
		mcplib.WithString("description", mcplib.Description("Epic description")),
		mcplib.WithString("epic_id", mcplib.Description("Custom epic ID; generated when empty")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAddEpic}
}

func (s *Server) handleAddEpic(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	id, err := s.deps.Hierarchy.AddEpic(ctx, projectID, project.Epic{
		ID:          stringArg(req, "epic_id"),
		Name:        stringArg(req, "epic_name"),
		Description: stringArg(req, "description"),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to add epic", err), nil
	}
	return resultJSON(map[string]string{"project_id": projectID, "epic_id": id})
}

func (s *Server) addFeatureTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_feature",
		mcplib.WithDescription("Add a feature to an epic"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("epic_id", mcplib.Required(), mcplib.Description("Epic identifier")),
		mcplib.WithString("feature_name", mcplib.Required(), mcplib.Description("Feature name")),
		mcplib.WithString("description", mcplib.Description("Feature description")),
		mcplib.WithString("feature_id", mcplib.Description("Custom feature ID; generated when empty")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAddFeature}
}

func (s *Server) handleAddFeature(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	epicID := stringArg(req, "epic_id")
	id, err := s.deps.Hierarchy.AddFeature(ctx, projectID, epicID, project.Feature{
		ID:          stringArg(req, "feature_id"),
		Name:        stringArg(req, "feature_name"),
		Description: stringArg(req, "description"),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to add feature", err), nil
	}
	return resultJSON(map[string]string{"project_id": projectID, "epic_id": epicID, "feature_id": id})
}

func (s *Server) addUseCaseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_use_case",
		mcplib.WithDescription("Add a use case to a feature"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("epic_id", mcplib.Required(), mcplib.Description("Epic identifier")),
		mcplib.WithString("feature_id", mcplib.Required(), mcplib.Description("Feature identifier")),
		mcplib.WithString("title", mcplib.Required(), mcplib.Description("Use case title")),
		mcplib.WithString("description", mcplib.Description("Use case description")),
		mcplib.WithArray("test_scenarios_outline", mcplib.WithStringItems(), mcplib.Description("Test scenarios")),
		mcplib.WithArray("compliance_mapping", mcplib.WithStringItems(), mcplib.Description("Compliance references")),
		mcplib.WithString("risk_level",
			mcplib.Description("Risk level; Medium when empty"),
			mcplib.Enum("High", "Medium", "Low"),
		),
		mcplib.WithString("use_case_id", mcplib.Description("Custom use case ID; generated when empty")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAddUseCase}
}

func (s *Server) handleAddUseCase(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	epicID, featureID := stringArg(req, "epic_id"), stringArg(req, "feature_id")
	id, err := s.deps.Hierarchy.AddUseCase(ctx, projectID, epicID, featureID, project.UseCase{
		ID:                   stringArg(req, "use_case_id"),
		Title:                stringArg(req, "title"),
		Description:          stringArg(req, "description"),
		TestScenariosOutline: stringsArg(req, "test_scenarios_outline"),
		ComplianceMapping:    stringsArg(req, "compliance_mapping"),
		RiskLevel:            project.RiskLevel(stringArg(req, "risk_level")),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to add use case", err), nil
	}
	return resultJSON(map[string]string{
		"project_id":  projectID,
		"epic_id":     epicID,
		"feature_id":  featureID,
		"use_case_id": id,
	})
}

func (s *Server) addTestCaseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("add_test_case",
		mcplib.WithDescription("Add a test case to a use case"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("epic_id", mcplib.Required(), mcplib.Description("Epic identifier")),
		mcplib.WithString("feature_id", mcplib.Required(), mcplib.Description("Feature identifier")),
		mcplib.WithString("use_case_id", mcplib.Required(), mcplib.Description("Use case identifier")),
		mcplib.WithString("title", mcplib.Required(), mcplib.Description("Test case title")),
		mcplib.WithArray("preconditions", mcplib.WithStringItems(), mcplib.Description("Preconditions")),
		mcplib.WithArray("test_steps",
			mcplib.Required(),
			mcplib.WithStringItems(),
			mcplib.Description("Ordered test steps"),
		),
		mcplib.WithString("expected_result", mcplib.Required(), mcplib.Description("Expected result")),
		mcplib.WithString("test_type",
			mcplib.Description("Test type; Functional when empty"),
			mcplib.Enum("Functional", "API", "Integration", "Regression", "Security", "Performance", "Usability"),
		),
		mcplib.WithArray("compliance_mapping", mcplib.WithStringItems(), mcplib.Description("Compliance references")),
		mcplib.WithString("risk_level",
			mcplib.Description("Risk level; Medium when empty"),
			mcplib.Enum("High", "Medium", "Low"),
		),
		mcplib.WithString("test_case_id", mcplib.Description("Custom test case ID; generated when empty")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAddTestCase}
}

func (s *Server) handleAddTestCase(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	epicID, featureID, useCaseID := stringArg(req, "epic_id"), stringArg(req, "feature_id"), stringArg(req, "use_case_id")
	id, err := s.deps.Hierarchy.AddTestCase(ctx, projectID, epicID, featureID, useCaseID, project.TestCase{
		ID:                stringArg(req, "test_case_id"),
		Title:             stringArg(req, "title"),
		Preconditions:     stringsArg(req, "preconditions"),
		TestSteps:         stringsArg(req, "test_steps"),
		ExpectedResult:    stringArg(req, "expected_result"),
		TestType:          project.TestType(stringArg(req, "test_type")),
		ComplianceMapping: stringsArg(req, "compliance_mapping"),
		RiskLevel:         project.RiskLevel(stringArg(req, "risk_level")),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to add test case", err), nil
	}
	return resultJSON(map[string]string{
		"project_id":   projectID,
		"epic_id":      epicID,
		"feature_id":   featureID,
		"use_case_id":  useCaseID,
		"test_case_id": id,
	})
}

func (s *Server) updateEpicJiraStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("update_epic_jira_status",
		mcplib.WithDescription("Update the Jira synchronization status of an epic"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("epic_id", mcplib.Required(), mcplib.Description("Epic identifier")),
		mcplib.WithString("jira_status",
			mcplib.Required(),
			mcplib.Description("New Jira status"),
			mcplib.Enum("Not Pushed", "Pushed", "Synced", "Failed", "Pending"),
		),
		mcplib.WithString("jira_key", mcplib.Description("Jira issue key")),
		mcplib.WithString("pushed_by", mcplib.Description("User performing the push")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleUpdateEpicJiraStatus}
}

func (s *Server) handleUpdateEpicJiraStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	epicID, res := requireArg(req, "epic_id")
	if res != nil {
		return res, nil
	}
	status := project.JiraStatus(stringArg(req, "jira_status"))
	err := s.deps.Hierarchy.UpdateEpicJiraStatus(ctx, projectID, epicID, status,
		stringArg(req, "jira_key"), stringArg(req, "pushed_by"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to update epic jira status", err), nil
	}
	return resultJSON(map[string]string{
		"project_id":  projectID,
		"epic_id":     epicID,
		"jira_status": string(status),
	})
}

func (s *Server) searchTestCasesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("search_test_cases",
		mcplib.WithDescription("Search test cases in a project by title, ID or description"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
		mcplib.WithString("search_term", mcplib.Required(), mcplib.Description("Case-insensitive search term")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSearchTestCases}
}

func (s *Server) handleSearchTestCases(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	hits, err := s.deps.Hierarchy.SearchTestCases(ctx, projectID, stringArg(req, "search_term"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to search test cases", err), nil
	}
	return resultJSON(hits)
}

func (s *Server) getProjectStatisticsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_project_statistics",
		mcplib.WithDescription("Get entity counts, distributions and Jira sync rollups for a project"),
		mcplib.WithString("project_id", mcplib.Required(), mcplib.Description("Project identifier")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetProjectStatistics}
}

func (s *Server) handleGetProjectStatistics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	projectID, res := requireArg(req, "project_id")
	if res != nil {
		return res, nil
	}
	stats, err := s.deps.Hierarchy.ProjectStatistics(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get statistics for %s", projectID), err), nil
	}
	return resultJSON(stats)
}

func (s *Server) getOverallStatisticsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_overall_statistics",
		mcplib.WithDescription("Get statistics aggregated across all projects"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetOverallStatistics}
}

func (s *Server) handleGetOverallStatistics(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Hierarchy == nil {
		return mcplib.NewToolResultError(errNotConfigured.Error()), nil
	}
	stats, err := s.deps.Hierarchy.OverallStatistics(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get overall statistics", err), nil
	}
	return resultJSON(stats)
}
