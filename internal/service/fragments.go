package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
)

// SubscribeFragments imports every pipeline fragment published on the queue.
// Validation and missing-project failures are logged and dropped; store
// outages are returned so the queue redelivers.
func (im *Importer) SubscribeFragments(ctx context.Context, q messagequeue.Queue) (cancel func(), err error) {
	return q.Subscribe(ctx, messagequeue.SubjectPipelineFragment, im.handleFragment)
}

func (im *Importer) handleFragment(ctx context.Context, _ string, data []byte) error {
	var msg messagequeue.PipelineFragmentPayload
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.WarnContext(ctx, "drop malformed fragment message", "error", err)
		return nil
	}
	res, err := im.ImportRaw(ctx, msg.ProjectID, fragmentBytes(msg.Fragment))
	switch {
	case err == nil:
		return nil
	case domain.IsRetryable(err):
		return fmt.Errorf("import fragment for %s: %w", msg.ProjectID, err)
	default:
		imported := 0
		if res != nil {
			imported = res.SuccessCount
		}
		slog.WarnContext(ctx, "drop fragment", "project_id", msg.ProjectID, "imported", imported, "error", err)
		return nil
	}
}

// fragmentBytes unwraps a fragment sent as a JSON string, as the pipeline
// does with fenced model output.
func fragmentBytes(raw json.RawMessage) []byte {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return []byte(s)
	}
	return raw
}
