// Package tracker defines the port interface for external issue trackers
// (Jira). The hierarchy only stores the returned key and status.
package tracker

import "context"

// IssueType names the tracker issue kind for a hierarchy level.
type IssueType string

const (
	IssueEpic  IssueType = "Epic"
	IssueStory IssueType = "Story"
	IssueTask  IssueType = "Task"
)

// Issue is the tracker-side view of a hierarchy entity.
type Issue struct {
	ProjectKey  string    `json:"project_key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Type        IssueType `json:"issue_type"`
	Labels      []string  `json:"labels,omitempty"`
	ParentKey   string    `json:"parent_key,omitempty"`
}

// Tracker creates issues and returns their keys.
type Tracker interface {
	// Name returns the tracker identifier (e.g. "jira").
	Name() string

	// CreateIssue creates an issue and returns its key (e.g. "RAD-12").
	CreateIssue(ctx context.Context, issue Issue) (string, error)
}
