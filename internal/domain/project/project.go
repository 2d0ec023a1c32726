// Package project defines the test-artifact hierarchy stored as one nested
// document per project: Project → Epic → Feature → UseCase → TestCase.
package project

import "time"

// DefaultExecutionStatus is assigned to test cases that have never run.
const DefaultExecutionStatus = "Not Executed"

// JiraSyncState records whether and under which key an entity was pushed to
// the issue tracker. It is embedded in every level below Project.
type JiraSyncState struct {
	JiraStatus   JiraStatus `json:"jira_status"`
	JiraIssueKey string     `json:"jira_issue_key,omitempty"`
	JiraPushedAt *time.Time `json:"jira_pushed_at,omitempty"`
	JiraPushedBy string     `json:"jira_pushed_by,omitempty"`
}

// Project is the root document. The whole tree is persisted as one unit.
type Project struct {
	ID                   string        `json:"project_id"`
	Name                 string        `json:"project_name"`
	Description          string        `json:"description,omitempty"`
	Status               ProjectStatus `json:"status"`
	ComplianceFrameworks []string      `json:"compliance_frameworks"`
	Epics                []Epic        `json:"epics"`
	CoverageSummary      string        `json:"coverage_summary,omitempty"`
	JiraProjectKey       string        `json:"jira_project_key,omitempty"`
	JiraProjectURL       string        `json:"jira_project_url,omitempty"`
	Version              int           `json:"version"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	CreatedBy            string        `json:"created_by,omitempty"`
}

// Epic groups related features.
type Epic struct {
	ID          string    `json:"epic_id"`
	Name        string    `json:"epic_name"`
	Description string    `json:"description,omitempty"`
	Features    []Feature `json:"features"`
	JiraSyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Feature groups use cases under an epic.
type Feature struct {
	ID          string    `json:"feature_id"`
	Name        string    `json:"feature_name"`
	Description string    `json:"description,omitempty"`
	UseCases    []UseCase `json:"use_cases"`
	JiraSyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// UseCase is a behavior under test with its compliance references.
type UseCase struct {
	ID                   string     `json:"use_case_id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	TestScenariosOutline []string   `json:"test_scenarios_outline"`
	ComplianceMapping    []string   `json:"compliance_mapping"`
	RiskLevel            RiskLevel  `json:"risk_level"`
	TestCases            []TestCase `json:"test_cases"`
	ModelExplanation     string     `json:"model_explanation,omitempty"`
	JiraSyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// TestCase is a single executable check. TestSteps order is significant.
type TestCase struct {
	ID                string     `json:"test_case_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Preconditions     []string   `json:"preconditions"`
	TestSteps         []string   `json:"test_steps"`
	ExpectedResult    string     `json:"expected_result"`
	TestType          TestType   `json:"test_type"`
	ComplianceMapping []string   `json:"compliance_mapping"`
	RiskLevel         RiskLevel  `json:"risk_level"`
	TraceabilityID    string     `json:"traceability_id,omitempty"`
	ExecutionStatus   string     `json:"execution_status"`
	LastExecuted      *time.Time `json:"last_executed,omitempty"`
	ExecutedBy        string     `json:"executed_by,omitempty"`
	ExecutionNotes    string     `json:"execution_notes,omitempty"`
	ModelExplanation  string     `json:"model_explanation,omitempty"`
	JiraSyncState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Summary is the list view of a project.
type Summary struct {
	ID            string        `json:"project_id"`
	Name          string        `json:"project_name"`
	Status        ProjectStatus `json:"status"`
	EpicCount     int           `json:"epic_count"`
	FeatureCount  int           `json:"feature_count"`
	UseCaseCount  int           `json:"use_case_count"`
	TestCaseCount int           `json:"test_case_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CreateRequest holds the fields needed to create a new project.
type CreateRequest struct {
	Name                 string   `json:"project_name"`
	Description          string   `json:"description"`
	ComplianceFrameworks []string `json:"compliance_frameworks"`
	JiraProjectKey       string   `json:"jira_project_key"`
	JiraProjectURL       string   `json:"jira_project_url"`
	CreatedBy            string   `json:"created_by"`
}

// UpdateRequest merges top-level fields only. Nil fields are left untouched;
// a non-nil Epics replaces the whole collection.
type UpdateRequest struct {
	Name                 *string        `json:"project_name,omitempty"`
	Description          *string        `json:"description,omitempty"`
	Status               *ProjectStatus `json:"status,omitempty"`
	ComplianceFrameworks []string       `json:"compliance_frameworks,omitempty"`
	CoverageSummary      *string        `json:"coverage_summary,omitempty"`
	JiraProjectKey       *string        `json:"jira_project_key,omitempty"`
	JiraProjectURL       *string        `json:"jira_project_url,omitempty"`
	Epics                *[]Epic        `json:"epics,omitempty"`
}

// ListFilter narrows ListProjects. Status, ComplianceFramework and the
// created_at bounds are applied by the store; TextSearch is applied after.
type ListFilter struct {
	Status              ProjectStatus `json:"status,omitempty"`
	ComplianceFramework string        `json:"compliance_framework,omitempty"`
	CreatedAfter        *time.Time    `json:"created_after,omitempty"`
	CreatedBefore       *time.Time    `json:"created_before,omitempty"`
	TextSearch          string        `json:"text_search,omitempty"`
	// JiraStatus keeps projects with at least one epic in that state.
	JiraStatus JiraStatus `json:"jira_status,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// Summarize returns the list view of p with its descendant counts.
func (p *Project) Summarize() Summary {
	s := Summary{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		EpicCount: len(p.Epics),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for i := range p.Epics {
		s.FeatureCount += len(p.Epics[i].Features)
		for j := range p.Epics[i].Features {
			f := &p.Epics[i].Features[j]
			s.UseCaseCount += len(f.UseCases)
			for k := range f.UseCases {
				s.TestCaseCount += len(f.UseCases[k].TestCases)
			}
		}
	}
	return s
}
