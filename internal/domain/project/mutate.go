package project

import (
	"fmt"
	"time"

	"github.com/Strob0t/CaseForge/internal/domain"
)

// Path addresses a node by its ancestor-ID chain. Trailing IDs may be empty;
// a non-empty ID below an empty one is invalid.
type Path struct {
	EpicID     string `json:"epic_id,omitempty"`
	FeatureID  string `json:"feature_id,omitempty"`
	UseCaseID  string `json:"use_case_id,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
}

// Depth returns how many levels below the project the path addresses.
func (pt Path) Depth() int {
	switch {
	case pt.TestCaseID != "":
		return 4
	case pt.UseCaseID != "":
		return 3
	case pt.FeatureID != "":
		return 2
	case pt.EpicID != "":
		return 1
	}
	return 0
}

// Target returns the ID of the deepest node the path addresses.
func (pt Path) Target() string {
	switch pt.Depth() {
	case 4:
		return pt.TestCaseID
	case 3:
		return pt.UseCaseID
	case 2:
		return pt.FeatureID
	case 1:
		return pt.EpicID
	}
	return ""
}

func (pt Path) validate() error {
	ids := [4]string{pt.EpicID, pt.FeatureID, pt.UseCaseID, pt.TestCaseID}
	gap := false
	for _, id := range ids {
		if id == "" {
			gap = true
		} else if gap {
			return fmt.Errorf("path %+v skips a level: %w", pt, domain.ErrValidation)
		}
	}
	return nil
}

// chain holds pointers into the project tree from the epic down to the
// deepest resolved node.
type chain struct {
	epic     *Epic
	feature  *Feature
	useCase  *UseCase
	testCase *TestCase
}

// resolve scans one level at a time and stops at the first missing ID.
func resolve(p *Project, pt Path) (chain, error) {
	var c chain
	if err := pt.validate(); err != nil {
		return c, err
	}
	if pt.EpicID == "" {
		return c, nil
	}
	if c.epic = find(p.Epics, pt.EpicID, epicID); c.epic == nil {
		return c, &domain.ParentNotFoundError{Kind: "epic", ID: pt.EpicID}
	}
	if pt.FeatureID == "" {
		return c, nil
	}
	if c.feature = find(c.epic.Features, pt.FeatureID, featureID); c.feature == nil {
		return c, &domain.ParentNotFoundError{Kind: "feature", ID: pt.FeatureID}
	}
	if pt.UseCaseID == "" {
		return c, nil
	}
	if c.useCase = find(c.feature.UseCases, pt.UseCaseID, useCaseID); c.useCase == nil {
		return c, &domain.ParentNotFoundError{Kind: "use case", ID: pt.UseCaseID}
	}
	if pt.TestCaseID == "" {
		return c, nil
	}
	if c.testCase = find(c.useCase.TestCases, pt.TestCaseID, testCaseID); c.testCase == nil {
		return c, &domain.ParentNotFoundError{Kind: "test case", ID: pt.TestCaseID}
	}
	return c, nil
}

// touch refreshes updated_at on every resolved level and on the project.
func (c chain) touch(p *Project, now time.Time) {
	if c.testCase != nil {
		c.testCase.UpdatedAt = now
	}
	if c.useCase != nil {
		c.useCase.UpdatedAt = now
	}
	if c.feature != nil {
		c.feature.UpdatedAt = now
	}
	if c.epic != nil {
		c.epic.UpdatedAt = now
	}
	p.UpdatedAt = now
}

// AddEpic appends e to the project and returns its ID. A caller-supplied
// ID already used by a sibling is replaced with a generated one.
func AddEpic(p *Project, e Epic, now time.Time) (string, error) {
	if err := assignID(&e.ID, PrefixEpic, p.Epics, epicID); err != nil {
		return "", err
	}
	if err := PrepareEpic(&e, "", now); err != nil {
		return "", err
	}
	p.Epics = append(p.Epics, e)
	chain{}.touch(p, now)
	return e.ID, nil
}

// AddFeature appends f to the named epic. Nothing changes if the epic is
// missing.
func AddFeature(p *Project, epic string, f Feature, now time.Time) (string, error) {
	if err := requireParent(epic); err != nil {
		return "", err
	}
	c, err := resolve(p, Path{EpicID: epic})
	if err != nil {
		return "", err
	}
	if err := assignID(&f.ID, PrefixFeature, c.epic.Features, featureID); err != nil {
		return "", err
	}
	if err := PrepareFeature(&f, "", now); err != nil {
		return "", err
	}
	c.epic.Features = append(c.epic.Features, f)
	c.touch(p, now)
	return f.ID, nil
}

// AddUseCase appends u to the named feature.
func AddUseCase(p *Project, epic, feature string, u UseCase, now time.Time) (string, error) {
	if err := requireParent(epic, feature); err != nil {
		return "", err
	}
	c, err := resolve(p, Path{EpicID: epic, FeatureID: feature})
	if err != nil {
		return "", err
	}
	if err := assignID(&u.ID, PrefixUseCase, c.feature.UseCases, useCaseID); err != nil {
		return "", err
	}
	if err := PrepareUseCase(&u, "", now); err != nil {
		return "", err
	}
	c.feature.UseCases = append(c.feature.UseCases, u)
	c.touch(p, now)
	return u.ID, nil
}

// AddTestCase appends tc to the named use case.
func AddTestCase(p *Project, epic, feature, useCase string, tc TestCase, now time.Time) (string, error) {
	if err := requireParent(epic, feature, useCase); err != nil {
		return "", err
	}
	c, err := resolve(p, Path{EpicID: epic, FeatureID: feature, UseCaseID: useCase})
	if err != nil {
		return "", err
	}
	if err := assignID(&tc.ID, PrefixTestCase, c.useCase.TestCases, testCaseID); err != nil {
		return "", err
	}
	if err := PrepareTestCase(&tc, "", now); err != nil {
		return "", err
	}
	c.useCase.TestCases = append(c.useCase.TestCases, tc)
	c.touch(p, now)
	return tc.ID, nil
}

// FeaturesOf returns the features of the named epic.
func FeaturesOf(p *Project, epic string) ([]Feature, error) {
	if err := requireParent(epic); err != nil {
		return nil, err
	}
	c, err := resolve(p, Path{EpicID: epic})
	if err != nil {
		return nil, err
	}
	return c.epic.Features, nil
}

// UseCasesOf returns the use cases of the named feature.
func UseCasesOf(p *Project, epic, feature string) ([]UseCase, error) {
	if err := requireParent(epic, feature); err != nil {
		return nil, err
	}
	c, err := resolve(p, Path{EpicID: epic, FeatureID: feature})
	if err != nil {
		return nil, err
	}
	return c.feature.UseCases, nil
}

// TestCasesOf returns the test cases of the named use case.
func TestCasesOf(p *Project, epic, feature, useCase string) ([]TestCase, error) {
	if err := requireParent(epic, feature, useCase); err != nil {
		return nil, err
	}
	c, err := resolve(p, Path{EpicID: epic, FeatureID: feature, UseCaseID: useCase})
	if err != nil {
		return nil, err
	}
	return c.useCase.TestCases, nil
}

// SyncUpdate is the tracker-side change applied by SetSyncState. Empty
// IssueKey and PushedBy keep the stored values.
type SyncUpdate struct {
	Status   JiraStatus `json:"status"`
	IssueKey string     `json:"issue_key,omitempty"`
	PushedBy string     `json:"pushed_by,omitempty"`
}

// SetSyncState updates the Jira sync state of the node at the end of pt.
func SetSyncState(p *Project, pt Path, u SyncUpdate, now time.Time) error {
	status, err := ParseJiraStatus(string(u.Status))
	if err != nil {
		return err
	}
	if pt.Depth() == 0 {
		return fmt.Errorf("sync state target is required: %w", domain.ErrValidation)
	}
	c, err := resolve(p, pt)
	if err != nil {
		return err
	}

	var s *JiraSyncState
	switch {
	case c.testCase != nil:
		s = &c.testCase.JiraSyncState
	case c.useCase != nil:
		s = &c.useCase.JiraSyncState
	case c.feature != nil:
		s = &c.feature.JiraSyncState
	default:
		s = &c.epic.JiraSyncState
	}

	s.JiraStatus = status
	if u.IssueKey != "" {
		s.JiraIssueKey = u.IssueKey
	}
	if u.PushedBy != "" {
		s.JiraPushedBy = u.PushedBy
	}
	if status == JiraPushed || status == JiraSynced {
		at := now
		s.JiraPushedAt = &at
	}
	c.touch(p, now)
	return nil
}

func requireParent(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("ancestor id is required: %w", domain.ErrValidation)
		}
	}
	return nil
}

func epicID(e *Epic) string         { return e.ID }
func featureID(f *Feature) string   { return f.ID }
func useCaseID(u *UseCase) string   { return u.ID }
func testCaseID(t *TestCase) string { return t.ID }

func find[T any](items []T, id string, idOf func(*T) string) *T {
	for i := range items {
		if idOf(&items[i]) == id {
			return &items[i]
		}
	}
	return nil
}

// assignID generates an ID unique among siblings when *id is empty or
// already taken. Adds never overwrite an existing sibling.
func assignID[T any](id *string, prefix string, siblings []T, idOf func(*T) string) error {
	if *id != "" && find(siblings, *id, idOf) == nil {
		return nil
	}
	gen, err := GenerateUniqueID(prefix, func(s string) bool { return find(siblings, s, idOf) != nil })
	if err != nil {
		return err
	}
	*id = gen
	return nil
}
