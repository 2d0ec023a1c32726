package project

import (
	"fmt"
	"strings"

	"github.com/Strob0t/CaseForge/internal/domain"
)

// TestType classifies a test case.
type TestType string

const (
	TestTypeFunctional  TestType = "Functional"
	TestTypeAPI         TestType = "API"
	TestTypeIntegration TestType = "Integration"
	TestTypeRegression  TestType = "Regression"
	TestTypeSecurity    TestType = "Security"
	TestTypePerformance TestType = "Performance"
	TestTypeUsability   TestType = "Usability"
)

// TestTypes lists every accepted TestType in declaration order.
var TestTypes = []TestType{
	TestTypeFunctional, TestTypeAPI, TestTypeIntegration, TestTypeRegression,
	TestTypeSecurity, TestTypePerformance, TestTypeUsability,
}

// RiskLevel classifies a use case or test case.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// RiskLevels lists every accepted RiskLevel.
var RiskLevels = []RiskLevel{RiskHigh, RiskMedium, RiskLow}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusActive    ProjectStatus = "Active"
	StatusCompleted ProjectStatus = "Completed"
	StatusOnHold    ProjectStatus = "On Hold"
	StatusArchived  ProjectStatus = "Archived"
)

// ProjectStatuses lists every accepted ProjectStatus.
var ProjectStatuses = []ProjectStatus{StatusActive, StatusCompleted, StatusOnHold, StatusArchived}

// JiraStatus is the issue-tracker sync status of an entity.
type JiraStatus string

const (
	JiraNotPushed JiraStatus = "Not Pushed"
	JiraPushed    JiraStatus = "Pushed"
	JiraSynced    JiraStatus = "Synced"
	JiraFailed    JiraStatus = "Failed"
	JiraPending   JiraStatus = "Pending"
)

// JiraStatuses lists every accepted JiraStatus.
var JiraStatuses = []JiraStatus{JiraNotPushed, JiraPushed, JiraSynced, JiraFailed, JiraPending}

// ParseTestType resolves s case-insensitively, ignoring spaces and underscores.
func ParseTestType(s string) (TestType, error) { return parseEnum("test_type", s, TestTypes) }

// ParseRiskLevel resolves s case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) { return parseEnum("risk_level", s, RiskLevels) }

// ParseProjectStatus resolves s, accepting both "On Hold" and "OnHold".
func ParseProjectStatus(s string) (ProjectStatus, error) {
	return parseEnum("status", s, ProjectStatuses)
}

// ParseJiraStatus resolves s, accepting both "Not Pushed" and "NotPushed".
func ParseJiraStatus(s string) (JiraStatus, error) {
	return parseEnum("jira_status", s, JiraStatuses)
}

func parseEnum[T ~string](field, s string, values []T) (T, error) {
	key := enumKey(s)
	if key != "" {
		for _, v := range values {
			if enumKey(string(v)) == key {
				return v, nil
			}
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q: %w", field, s, domain.ErrValidation)
}

func enumKey(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' || r == '-' {
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}
