package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectPipelineFragment:
		var p PipelineFragmentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ProjectID == "" || len(p.Fragment) == 0 {
			return fmt.Errorf("schema validation failed for %s: project_id and fragment are required", subject)
		}
	case subject == SubjectImportDone:
		if err := json.Unmarshal(data, &ImportCompletedPayload{}); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	case strings.HasPrefix(subject, "hierarchy."):
		var p HierarchyEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ProjectID == "" {
			return fmt.Errorf("schema validation failed for %s: project_id is required", subject)
		}
	}
	return nil
}
