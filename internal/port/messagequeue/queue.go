// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used by CaseForge. Hierarchy events are published after every
// successful mutation; pipeline fragments are consumed by the importer.
const (
	SubjectProjectCreated = "hierarchy.project.created"
	SubjectProjectUpdated = "hierarchy.project.updated"
	SubjectProjectDeleted = "hierarchy.project.deleted"
	SubjectEpicAdded      = "hierarchy.epic.added"
	SubjectFeatureAdded   = "hierarchy.feature.added"
	SubjectUseCaseAdded   = "hierarchy.usecase.added"
	SubjectTestCaseAdded  = "hierarchy.testcase.added"
	SubjectSyncUpdated    = "hierarchy.sync.updated"
	SubjectImportDone     = "hierarchy.import.completed"

	SubjectPipelineFragment = "pipeline.fragment"
)
