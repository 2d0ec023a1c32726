package project

import (
	"fmt"
	"strings"

	"github.com/Strob0t/CaseForge/internal/domain"
)

// SearchHit is a matching test case with its ancestor context.
type SearchHit struct {
	ProjectID    string   `json:"project_id"`
	EpicID       string   `json:"epic_id"`
	EpicName     string   `json:"epic_name"`
	FeatureID    string   `json:"feature_id"`
	FeatureName  string   `json:"feature_name"`
	UseCaseID    string   `json:"use_case_id"`
	UseCaseTitle string   `json:"use_case_title"`
	TestCase     TestCase `json:"test_case"`
}

// SearchTestCases returns test cases whose title, ID or description contains
// term, ignoring case, in tree order.
func SearchTestCases(p *Project, term string) ([]SearchHit, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, fmt.Errorf("search term is required: %w", domain.ErrValidation)
	}

	hits := []SearchHit{}
	for i := range p.Epics {
		e := &p.Epics[i]
		for j := range e.Features {
			f := &e.Features[j]
			for k := range f.UseCases {
				uc := &f.UseCases[k]
				for l := range uc.TestCases {
					tc := &uc.TestCases[l]
					if !matches(needle, tc.Title, tc.ID, tc.Description) {
						continue
					}
					hits = append(hits, SearchHit{
						ProjectID:    p.ID,
						EpicID:       e.ID,
						EpicName:     e.Name,
						FeatureID:    f.ID,
						FeatureName:  f.Name,
						UseCaseID:    uc.ID,
						UseCaseTitle: uc.Title,
						TestCase:     *tc,
					})
				}
			}
		}
	}
	return hits, nil
}

// MatchesText reports whether the project's name or description contains
// term, ignoring case. An empty term matches everything.
func (p *Project) MatchesText(term string) bool {
	needle := strings.ToLower(strings.TrimSpace(term))
	return needle == "" || matches(needle, p.Name, p.Description)
}

// HasEpicInStatus reports whether any epic of p is in status.
func (p *Project) HasEpicInStatus(status JiraStatus) bool {
	for i := range p.Epics {
		if p.Epics[i].JiraStatus == status {
			return true
		}
	}
	return false
}

func matches(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
