package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/tracker"
)

// PushResult reports the tracker key an epic was pushed under.
type PushResult struct {
	EpicID   string             `json:"epic_id"`
	IssueKey string             `json:"jira_issue_key"`
	Status   project.JiraStatus `json:"jira_status"`
}

// PushService creates tracker issues for epics and records the outcome in
// the epic's sync state. Nothing is read back from the tracker.
type PushService struct {
	hierarchy  *HierarchyService
	tracker    tracker.Tracker
	projectKey string
}

// NewPushService creates a PushService. defaultProjectKey is used for
// projects without their own tracker key.
func NewPushService(h *HierarchyService, t tracker.Tracker, defaultProjectKey string) *PushService {
	return &PushService{hierarchy: h, tracker: t, projectKey: defaultProjectKey}
}

// PushEpic creates an issue for the epic. The epic is marked Pending while
// the tracker call runs, then Pushed with the key or Failed. An epic that
// already has a key is not pushed again.
func (ps *PushService) PushEpic(ctx context.Context, projectID, epicID, pushedBy string) (*PushResult, error) {
	p, err := ps.hierarchy.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var epic *project.Epic
	for i := range p.Epics {
		if p.Epics[i].ID == epicID {
			epic = &p.Epics[i]
			break
		}
	}
	if epic == nil {
		return nil, &domain.ParentNotFoundError{Kind: "epic", ID: epicID}
	}
	if epic.JiraIssueKey != "" && (epic.JiraStatus == project.JiraPushed || epic.JiraStatus == project.JiraSynced) {
		return &PushResult{EpicID: epicID, IssueKey: epic.JiraIssueKey, Status: epic.JiraStatus}, nil
	}

	key := p.JiraProjectKey
	if key == "" {
		key = ps.projectKey
	}
	if key == "" {
		return nil, fmt.Errorf("project %s has no tracker project key: %w", projectID, domain.ErrValidation)
	}

	if err := ps.hierarchy.UpdateEpicJiraStatus(ctx, projectID, epicID, project.JiraPending, "", pushedBy); err != nil {
		return nil, err
	}

	issueKey, err := ps.tracker.CreateIssue(ctx, epicIssue(key, p, epic))
	ps.hierarchy.metrics.RecordPush(ctx, err)
	if err != nil {
		// Record the failure even if the caller has gone away.
		if serr := ps.hierarchy.UpdateEpicJiraStatus(context.WithoutCancel(ctx), projectID, epicID, project.JiraFailed, "", pushedBy); serr != nil {
			slog.ErrorContext(ctx, "record push failure", "project_id", projectID, "epic_id", epicID, "error", serr)
		}
		return nil, fmt.Errorf("push epic %s to %s: %w", epicID, ps.tracker.Name(), err)
	}

	if err := ps.hierarchy.UpdateEpicJiraStatus(context.WithoutCancel(ctx), projectID, epicID, project.JiraPushed, issueKey, pushedBy); err != nil {
		return nil, fmt.Errorf("record push of %s as %s: %w", epicID, issueKey, err)
	}
	slog.InfoContext(ctx, "epic pushed", "project_id", projectID, "epic_id", epicID, "issue_key", issueKey)
	return &PushResult{EpicID: epicID, IssueKey: issueKey, Status: project.JiraPushed}, nil
}

func epicIssue(projectKey string, p *project.Project, e *project.Epic) tracker.Issue {
	var b strings.Builder
	if e.Description != "" {
		b.WriteString(e.Description)
		b.WriteString("\n\n")
	}
	for _, f := range e.Features {
		fmt.Fprintf(&b, "- %s (%d use cases)\n", f.Name, len(f.UseCases))
	}
	labels := make([]string, 0, len(p.ComplianceFrameworks)+1)
	labels = append(labels, "caseforge")
	for _, fw := range p.ComplianceFrameworks {
		labels = append(labels, strings.ReplaceAll(fw, " ", "_"))
	}
	return tracker.Issue{
		ProjectKey:  projectKey,
		Summary:     e.Name,
		Description: strings.TrimSpace(b.String()),
		Type:        tracker.IssueEpic,
		Labels:      labels,
	}
}
