package messagequeue

import (
	"encoding/json"
	"time"
)

// HierarchyEventPayload is the schema for hierarchy.* messages.
type HierarchyEventPayload struct {
	ProjectID string    `json:"project_id"`
	EntityID  string    `json:"entity_id"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id,omitempty"`
}

// ImportCompletedPayload is the schema for hierarchy.import.completed.
type ImportCompletedPayload struct {
	ProjectID    string    `json:"project_id"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	ProcessedIDs []string  `json:"processed_ids"`
	At           time.Time `json:"at"`
}

// PipelineFragmentPayload is the schema for pipeline.fragment messages:
// a generated hierarchy to fold into an existing project.
type PipelineFragmentPayload struct {
	ProjectID string          `json:"project_id"`
	Fragment  json.RawMessage `json:"fragment"`
}
