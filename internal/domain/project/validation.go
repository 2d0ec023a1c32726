package project

import (
	"fmt"
	"strconv"
	"time"
	"unicode"

	"github.com/Strob0t/CaseForge/internal/domain"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 2000
)

// ValidateCreateRequest validates the fields of a project creation request.
func ValidateCreateRequest(req CreateRequest) error {
	if req.Name == "" {
		return fmt.Errorf("project_name is required: %w", domain.ErrValidation)
	}
	if err := validateName("project_name", req.Name); err != nil {
		return err
	}
	if len(req.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, domain.ErrValidation)
	}
	return nil
}

// ValidateUpdateRequest validates the fields of a project update request.
func ValidateUpdateRequest(req UpdateRequest) error {
	if req.Name != nil {
		if *req.Name == "" {
			return fmt.Errorf("project_name cannot be empty: %w", domain.ErrValidation)
		}
		if err := validateName("project_name", *req.Name); err != nil {
			return err
		}
	}
	if req.Description != nil && len(*req.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, domain.ErrValidation)
	}
	if req.Status != nil {
		status, err := ParseProjectStatus(string(*req.Status))
		if err != nil {
			return err
		}
		*req.Status = status
	}
	if req.Epics != nil {
		ids := make(map[string]bool, len(*req.Epics))
		for i, e := range *req.Epics {
			if e.ID != "" && ids[e.ID] {
				return invalid(child("", "epics", i), fmt.Sprintf("duplicate id %q", e.ID))
			}
			ids[e.ID] = true
		}
	}
	return nil
}

func validateName(field, name string) error {
	if len(name) > maxNameLen {
		return fmt.Errorf("%s exceeds %d characters: %w", field, maxNameLen, domain.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters: %w", field, domain.ErrValidation)
		}
	}
	return nil
}

// PrepareEpics prepares a whole replacement epic collection, assigning
// missing IDs unique among the given epics.
func PrepareEpics(epics []Epic, now time.Time) error {
	ids := make(map[string]bool, len(epics))
	for i := range epics {
		if epics[i].ID != "" {
			ids[epics[i].ID] = true
		}
	}
	for i := range epics {
		p := child("", "epics", i)
		if epics[i].ID == "" {
			if err := claimID(&epics[i].ID, PrefixEpic, ids, p); err != nil {
				return err
			}
		}
		if err := PrepareEpic(&epics[i], p, now); err != nil {
			return err
		}
	}
	return nil
}

// PrepareEpic validates e and every descendant, fills defaults, assigns
// missing IDs and stamps timestamps. path prefixes error messages, e.g.
// "epics[2]".
func PrepareEpic(e *Epic, path string, now time.Time) error {
	if e.Name == "" {
		return invalid(path, "epic_name is required")
	}
	if err := validateName("epic_name", e.Name); err != nil {
		return at(path, err)
	}
	if err := prepareSync(&e.JiraSyncState, path); err != nil {
		return err
	}
	ids := make(map[string]bool, len(e.Features))
	for i := range e.Features {
		p := child(path, "features", i)
		if err := claimID(&e.Features[i].ID, PrefixFeature, ids, p); err != nil {
			return err
		}
		if err := PrepareFeature(&e.Features[i], p, now); err != nil {
			return err
		}
	}
	e.Features = orEmpty(e.Features)
	stamp(&e.CreatedAt, &e.UpdatedAt, now)
	return nil
}

// PrepareFeature validates f and its descendants. See PrepareEpic.
func PrepareFeature(f *Feature, path string, now time.Time) error {
	if f.Name == "" {
		return invalid(path, "feature_name is required")
	}
	if err := validateName("feature_name", f.Name); err != nil {
		return at(path, err)
	}
	if err := prepareSync(&f.JiraSyncState, path); err != nil {
		return err
	}
	ids := make(map[string]bool, len(f.UseCases))
	for i := range f.UseCases {
		p := child(path, "use_cases", i)
		if err := claimID(&f.UseCases[i].ID, PrefixUseCase, ids, p); err != nil {
			return err
		}
		if err := PrepareUseCase(&f.UseCases[i], p, now); err != nil {
			return err
		}
	}
	f.UseCases = orEmpty(f.UseCases)
	stamp(&f.CreatedAt, &f.UpdatedAt, now)
	return nil
}

// PrepareUseCase validates u and its test cases. See PrepareEpic.
func PrepareUseCase(u *UseCase, path string, now time.Time) error {
	if u.Title == "" {
		return invalid(path, "title is required")
	}
	risk, err := defaultOr(u.RiskLevel, RiskMedium, ParseRiskLevel)
	if err != nil {
		return at(path, err)
	}
	u.RiskLevel = risk
	if err := prepareSync(&u.JiraSyncState, path); err != nil {
		return err
	}
	ids := make(map[string]bool, len(u.TestCases))
	for i := range u.TestCases {
		p := child(path, "test_cases", i)
		if err := claimID(&u.TestCases[i].ID, PrefixTestCase, ids, p); err != nil {
			return err
		}
		if err := PrepareTestCase(&u.TestCases[i], p, now); err != nil {
			return err
		}
	}
	u.TestScenariosOutline = orEmpty(u.TestScenariosOutline)
	u.ComplianceMapping = orEmpty(u.ComplianceMapping)
	u.TestCases = orEmpty(u.TestCases)
	stamp(&u.CreatedAt, &u.UpdatedAt, now)
	return nil
}

// PrepareTestCase validates tc and fills its defaults.
func PrepareTestCase(tc *TestCase, path string, now time.Time) error {
	if tc.Title == "" {
		return invalid(path, "title is required")
	}
	if len(tc.TestSteps) == 0 {
		return invalid(path, "test_steps must not be empty")
	}
	if tc.ExpectedResult == "" {
		return invalid(path, "expected_result is required")
	}
	testType, err := defaultOr(tc.TestType, TestTypeFunctional, ParseTestType)
	if err != nil {
		return at(path, err)
	}
	risk, err := defaultOr(tc.RiskLevel, RiskMedium, ParseRiskLevel)
	if err != nil {
		return at(path, err)
	}
	tc.TestType, tc.RiskLevel = testType, risk
	if tc.ExecutionStatus == "" {
		tc.ExecutionStatus = DefaultExecutionStatus
	}
	if err := prepareSync(&tc.JiraSyncState, path); err != nil {
		return err
	}
	tc.Preconditions = orEmpty(tc.Preconditions)
	tc.ComplianceMapping = orEmpty(tc.ComplianceMapping)
	stamp(&tc.CreatedAt, &tc.UpdatedAt, now)
	return nil
}

func prepareSync(s *JiraSyncState, path string) error {
	status, err := defaultOr(s.JiraStatus, JiraNotPushed, ParseJiraStatus)
	if err != nil {
		return at(path, err)
	}
	s.JiraStatus = status
	return nil
}

// defaultOr canonicalizes v, or returns def when v is empty.
func defaultOr[T ~string](v, def T, parse func(string) (T, error)) (T, error) {
	if v == "" {
		return def, nil
	}
	return parse(string(v))
}

// claimID assigns a fresh ID when *id is empty and rejects duplicates of
// caller-supplied IDs among siblings.
func claimID(id *string, prefix string, taken map[string]bool, path string) error {
	if *id == "" {
		gen, err := GenerateUniqueID(prefix, func(s string) bool { return taken[s] })
		if err != nil {
			return at(path, err)
		}
		*id = gen
	} else if taken[*id] {
		return invalid(path, fmt.Sprintf("duplicate id %q", *id))
	}
	taken[*id] = true
	return nil
}

func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

func child(path, collection string, i int) string {
	elem := collection + "[" + strconv.Itoa(i) + "]"
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func invalid(path, msg string) error {
	if path == "" {
		return fmt.Errorf("%s: %w", msg, domain.ErrValidation)
	}
	return fmt.Errorf("%s: %s: %w", path, msg, domain.ErrValidation)
}

func at(path string, err error) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
