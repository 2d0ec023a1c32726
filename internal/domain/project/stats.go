package project

import (
	"sort"
	"time"
)

// JiraSyncStats counts epics by tracker state. Synced counts as pushed.
type JiraSyncStats struct {
	Pushed    int `json:"pushed"`
	NotPushed int `json:"not_pushed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Statistics is the read-only rollup of one project.
type Statistics struct {
	ProjectID            string            `json:"project_id"`
	ProjectName          string            `json:"project_name"`
	Status               ProjectStatus     `json:"status"`
	EpicCount            int               `json:"epic_count"`
	FeatureCount         int               `json:"feature_count"`
	UseCaseCount         int               `json:"use_case_count"`
	TestCaseCount        int               `json:"test_case_count"`
	JiraSyncStats        JiraSyncStats     `json:"jira_sync_stats"`
	TestTypeDistribution map[TestType]int  `json:"test_type_distribution"`
	RiskDistribution     map[RiskLevel]int `json:"risk_distribution"`
	ComplianceCoverage   []string          `json:"compliance_coverage"`
	ComplianceFrameworks []string          `json:"compliance_frameworks"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// OverallStatistics totals every stored project.
type OverallStatistics struct {
	TotalProjects  int                   `json:"total_projects"`
	TotalEpics     int                   `json:"total_epics"`
	TotalFeatures  int                   `json:"total_features"`
	TotalUseCases  int                   `json:"total_use_cases"`
	TotalTestCases int                   `json:"total_test_cases"`
	ByStatus       map[ProjectStatus]int `json:"projects_by_status"`
}

// ComputeStatistics walks the project tree once.
func ComputeStatistics(p *Project) Statistics {
	st := Statistics{
		ProjectID:            p.ID,
		ProjectName:          p.Name,
		Status:               p.Status,
		EpicCount:            len(p.Epics),
		TestTypeDistribution: make(map[TestType]int),
		RiskDistribution:     make(map[RiskLevel]int),
		ComplianceFrameworks: orEmpty(p.ComplianceFrameworks),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	coverage := make(map[string]struct{})

	for i := range p.Epics {
		e := &p.Epics[i]
		switch e.JiraStatus {
		case JiraPushed, JiraSynced:
			st.JiraSyncStats.Pushed++
		case JiraFailed:
			st.JiraSyncStats.Failed++
		case JiraPending:
			st.JiraSyncStats.Pending++
		default:
			st.JiraSyncStats.NotPushed++
		}

		st.FeatureCount += len(e.Features)
		for j := range e.Features {
			f := &e.Features[j]
			st.UseCaseCount += len(f.UseCases)
			for k := range f.UseCases {
				uc := &f.UseCases[k]
				st.RiskDistribution[uc.RiskLevel]++
				for _, ref := range uc.ComplianceMapping {
					coverage[ref] = struct{}{}
				}
				st.TestCaseCount += len(uc.TestCases)
				for l := range uc.TestCases {
					tc := &uc.TestCases[l]
					st.TestTypeDistribution[tc.TestType]++
					st.RiskDistribution[tc.RiskLevel]++
					for _, ref := range tc.ComplianceMapping {
						coverage[ref] = struct{}{}
					}
				}
			}
		}
	}

	st.ComplianceCoverage = make([]string, 0, len(coverage))
	for ref := range coverage {
		st.ComplianceCoverage = append(st.ComplianceCoverage, ref)
	}
	sort.Strings(st.ComplianceCoverage)
	return st
}

// ComputeOverallStatistics totals the given projects.
func ComputeOverallStatistics(projects []Project) OverallStatistics {
	o := OverallStatistics{
		TotalProjects: len(projects),
		ByStatus:      make(map[ProjectStatus]int),
	}
	for i := range projects {
		s := projects[i].Summarize()
		o.TotalEpics += s.EpicCount
		o.TotalFeatures += s.FeatureCount
		o.TotalUseCases += s.UseCaseCount
		o.TotalTestCases += s.TestCaseCount
		o.ByStatus[projects[i].Status]++
	}
	return o
}
