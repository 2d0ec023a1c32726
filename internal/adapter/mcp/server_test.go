package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	cfmcp "github.com/Strob0t/CaseForge/internal/adapter/mcp"
	"github.com/Strob0t/CaseForge/internal/adapter/sqlite"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/service"
)

// Compile-time interface checks.
var (
	_ cfmcp.HierarchyManager  = (*service.HierarchyService)(nil)
	_ cfmcp.StructureImporter = (*service.Importer)(nil)
)

func newTestServer(t *testing.T) *cfmcp.Server {
	t.Helper()
	db, err := sqlite.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := sqlite.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })

	hierarchy := service.NewHierarchyService(store, config.Storage{Timeout: 5 * time.Second, MaxCASRetries: 5})
	return cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{
		Hierarchy: hierarchy,
		Importer:  service.NewImporter(hierarchy),
	})
}

// call invokes a registered tool handler directly.
func call(t *testing.T, s *cfmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("%s handler error: %v", name, err)
	}
	return result
}

func decodeResult[T any](t *testing.T, result *mcplib.CallToolResult) T {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	var v T
	if err := json.Unmarshal([]byte(text.Text), &v); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return v
}

func TestToolRegistration(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{})

	want := []string{
		"add_epic", "add_feature", "add_test_case", "add_use_case",
		"create_project", "delete_project", "get_overall_statistics", "get_project",
		"get_project_statistics", "import_test_structure", "list_projects",
		"search_test_cases", "update_epic_jira_status", "update_project",
	}
	got := s.ToolNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected tools %v, got %v", want, got)
	}
}

func TestHierarchyTools(t *testing.T) {
	s := newTestServer(t)

	p := decodeResult[project.Project](t, call(t, s, "create_project", map[string]any{
		"project_name":          "Radiology Suite",
		"compliance_frameworks": []any{"IEC 62304"},
	}))
	if !strings.HasPrefix(p.ID, "PROJ_") {
		t.Fatalf("unexpected project id %q", p.ID)
	}

	ids := decodeResult[map[string]string](t, call(t, s, "add_epic", map[string]any{
		"project_id": p.ID, "epic_name": "Image Upload",
	}))
	ids = decodeResult[map[string]string](t, call(t, s, "add_feature", map[string]any{
		"project_id": p.ID, "epic_id": ids["epic_id"], "feature_name": "DICOM Validation",
	}))
	ids = decodeResult[map[string]string](t, call(t, s, "add_use_case", map[string]any{
		"project_id": p.ID, "epic_id": ids["epic_id"], "feature_id": ids["feature_id"],
		"title": "Reject malformed header", "compliance_mapping": []any{"IEC 62304:5.1"},
	}))
	ids = decodeResult[map[string]string](t, call(t, s, "add_test_case", map[string]any{
		"project_id": p.ID, "epic_id": ids["epic_id"], "feature_id": ids["feature_id"],
		"use_case_id": ids["use_case_id"], "title": "Upload zero-byte file",
		"test_steps": []any{"Select empty file", "Click upload"}, "expected_result": "Rejected",
		"test_type": "Security",
	}))
	if !strings.HasPrefix(ids["test_case_id"], "TC_") {
		t.Fatalf("unexpected test case id %q", ids["test_case_id"])
	}

	got := decodeResult[project.Project](t, call(t, s, "get_project", map[string]any{"project_id": p.ID}))
	tc := got.Epics[0].Features[0].UseCases[0].TestCases[0]
	if tc.TestType != project.TestTypeSecurity || len(tc.TestSteps) != 2 {
		t.Errorf("unexpected test case %+v", tc)
	}

	hits := decodeResult[[]project.SearchHit](t, call(t, s, "search_test_cases", map[string]any{
		"project_id": p.ID, "search_term": "zero-byte",
	}))
	if len(hits) != 1 || hits[0].UseCaseID != ids["use_case_id"] {
		t.Errorf("unexpected hits %+v", hits)
	}

	stats := decodeResult[project.Statistics](t, call(t, s, "get_project_statistics", map[string]any{"project_id": p.ID}))
	if stats.TestCaseCount != 1 {
		t.Errorf("expected 1 test case, got %d", stats.TestCaseCount)
	}
}

func TestUpdateEpicJiraStatus(t *testing.T) {
	s := newTestServer(t)
	p := decodeResult[project.Project](t, call(t, s, "create_project", map[string]any{"project_name": "Cardio"}))
	ids := decodeResult[map[string]string](t, call(t, s, "add_epic", map[string]any{
		"project_id": p.ID, "epic_name": "Monitoring", "epic_id": "EPIC_mon",
	}))

	call(t, s, "update_epic_jira_status", map[string]any{
		"project_id": p.ID, "epic_id": ids["epic_id"], "jira_status": "Pushed", "jira_key": "CAR-7",
	})
	got := decodeResult[project.Project](t, call(t, s, "get_project", map[string]any{"project_id": p.ID}))
	e := got.Epics[0]
	if e.ID != "EPIC_mon" || e.JiraStatus != project.JiraPushed || e.JiraIssueKey != "CAR-7" {
		t.Errorf("unexpected epic sync state %+v", e.JiraSyncState)
	}

	result := call(t, s, "update_epic_jira_status", map[string]any{
		"project_id": p.ID, "epic_id": "EPIC_missing", "jira_status": "Pushed",
	})
	if !result.IsError {
		t.Error("expected error result for unknown epic")
	}
}

func TestImportTestStructure(t *testing.T) {
	s := newTestServer(t)
	p := decodeResult[project.Project](t, call(t, s, "create_project", map[string]any{"project_name": "Lab"}))

	out := decodeResult[map[string]json.RawMessage](t, call(t, s, "import_test_structure", map[string]any{
		"project_id":     p.ID,
		"test_structure": `{"epics": [{"epic_name": "Orders"}, {"epic_name": ""}]}`,
	}))
	var res project.ImportResult
	if err := json.Unmarshal(out["import_result"], &res); err != nil {
		t.Fatal(err)
	}
	if res.SuccessCount != 1 || res.ErrorCount != 1 {
		t.Errorf("expected 1 success and 1 error, got %+v", res)
	}
	if string(out["success"]) != "false" {
		t.Errorf("expected success=false, got %s", out["success"])
	}

	result := call(t, s, "import_test_structure", map[string]any{"project_id": p.ID, "test_structure": "{"})
	if !result.IsError {
		t.Error("expected error result for malformed structure")
	}
}

func TestListAndDeleteProjects(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "create_project", map[string]any{"project_name": "Alpha"})
	beta := decodeResult[project.Project](t, call(t, s, "create_project", map[string]any{"project_name": "Beta"}))

	list := decodeResult[[]project.Summary](t, call(t, s, "list_projects", map[string]any{"text_search": "bet"}))
	if len(list) != 1 || list[0].ID != beta.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	epic := decodeResult[map[string]string](t, call(t, s, "add_epic", map[string]any{
		"project_id": beta.ID, "epic_name": "Reporting",
	}))["epic_id"]
	call(t, s, "update_epic_jira_status", map[string]any{
		"project_id": beta.ID, "epic_id": epic, "jira_status": "Pushed", "jira_key": "RAD-3",
	})
	pushed := decodeResult[[]project.Summary](t, call(t, s, "list_projects", map[string]any{"jira_status": "Pushed"}))
	if len(pushed) != 1 || pushed[0].ID != beta.ID {
		t.Errorf("expected only Beta with a pushed epic, got %+v", pushed)
	}

	updated := decodeResult[project.Project](t, call(t, s, "update_project", map[string]any{
		"project_id": beta.ID, "status": "On Hold",
	}))
	if updated.Status != project.StatusOnHold || updated.Name != "Beta" {
		t.Errorf("unexpected update %+v", updated)
	}

	call(t, s, "delete_project", map[string]any{"project_id": beta.ID})
	overall := decodeResult[project.OverallStatistics](t, call(t, s, "get_overall_statistics", nil))
	if overall.TotalProjects != 1 {
		t.Errorf("expected 1 project after delete, got %d", overall.TotalProjects)
	}

	if result := call(t, s, "list_projects", map[string]any{"created_after": "yesterday"}); !result.IsError {
		t.Error("expected error result for malformed created_after")
	}
}

func TestMissingArgument(t *testing.T) {
	s := newTestServer(t)
	result := call(t, s, "get_project", nil)
	if !result.IsError {
		t.Fatal("expected error result for missing project_id")
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{})
	for _, name := range []string{"list_projects", "import_test_structure"} {
		if result := call(t, s, name, map[string]any{"project_id": "p"}); !result.IsError {
			t.Errorf("%s: expected error result when deps are nil", name)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusNoContent},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"bearer", "secret", "Bearer secret", http.StatusNoContent},
		{"bare key", "secret", "secret", http.StatusNoContent},
		{"lowercase scheme", "secret", "bearer secret", http.StatusNoContent},
		{"empty bearer", "secret", "Bearer ", http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer nope", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			cfmcp.AuthMiddleware(tt.key, next).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected a WWW-Authenticate challenge on 401")
			}
		})
	}
}
