package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/pipeline"
	"github.com/Strob0t/CaseForge/internal/resilience"
)

// GenerateRequest asks the pipeline for test artifacts and imports them.
type GenerateRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Prompt    string `json:"prompt"`
	// NewProject discards any conversation held under SessionID.
	NewProject bool `json:"new_project"`
}

// GenerateResult is the outcome of one generation turn. Import is nil when
// the pipeline answered with text, e.g. a clarifying question, instead of a
// fragment.
type GenerateResult struct {
	SessionID string                `json:"session_id"`
	Answer    string                `json:"answer"`
	Import    *project.ImportResult `json:"import,omitempty"`
}

// GenerationService sends prompts to the agent pipeline within a session and
// imports the returned fragment.
type GenerationService struct {
	runner   pipeline.Runner
	sessions *SessionRegistry
	importer *Importer
	userID   string
}

// NewGenerationService creates a GenerationService. defaultUserID is used
// when a request carries none.
func NewGenerationService(runner pipeline.Runner, sessions *SessionRegistry, importer *Importer, defaultUserID string) *GenerationService {
	return &GenerationService{runner: runner, sessions: sessions, importer: importer, userID: defaultUserID}
}

// Generate runs one pipeline turn for projectID. An expired backend session
// is rebuilt and the query retried once. Only an answer that decodes as a
// fragment is imported; any other answer is returned as the reply of the turn.
func (g *GenerationService) Generate(ctx context.Context, projectID string, req GenerateRequest) (res *GenerateResult, err error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required: %w", domain.ErrValidation)
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.UserID == "" {
		req.UserID = g.userID
	}

	ctx, span := otel.StartOperationSpan(ctx, "generate", projectID)
	defer func() { otel.End(span, err) }()

	if _, err = g.importer.hierarchy.get(ctx, projectID); err != nil {
		return nil, err
	}

	if req.NewProject {
		g.sessions.Invalidate(req.SessionID)
	}
	sess, created, err := g.sessions.GetOrCreate(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	query := pipeline.Request{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Prompt:     req.Prompt,
		NewSession: created,
	}
	var answer string
	err = resilience.RetryOnce(ctx,
		func(ctx context.Context) error {
			var qerr error
			answer, qerr = g.runner.Query(ctx, query)
			return qerr
		},
		func(err error) bool { return errors.Is(err, pipeline.ErrSessionExpired) },
		func(ctx context.Context) error {
			slog.InfoContext(ctx, "pipeline session expired, rebuilding", "session_id", sess.ID)
			g.sessions.Invalidate(sess.ID)
			if _, err := g.sessions.Create(ctx, sess.ID, sess.UserID); err != nil {
				return err
			}
			query.NewSession = true
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate for %s: %w", projectID, err)
	}
	g.sessions.Touch(sess.ID)

	res = &GenerateResult{SessionID: sess.ID, Answer: answer}
	f, decodeErr := project.DecodeFragment([]byte(answer))
	if decodeErr != nil {
		slog.DebugContext(ctx, "pipeline answered without a fragment", "session_id", sess.ID, "reason", decodeErr)
		return res, nil
	}
	if res.Import, err = g.importer.Import(ctx, projectID, f); err != nil {
		err = fmt.Errorf("generate for %s: %w", projectID, err)
		return res, err
	}
	return res, nil
}

// EndSession drops a session. It reports whether one existed.
func (g *GenerationService) EndSession(id string) bool {
	return g.sessions.Invalidate(id)
}
