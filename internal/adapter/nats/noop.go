package nats

import (
	"context"

	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
)

// Noop is the queue used when no NATS URL is configured. Events are
// dropped and subscriptions never fire.
type Noop struct{}

func (Noop) Publish(context.Context, string, []byte) error { return nil }

func (Noop) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (Noop) Close() error      { return nil }
func (Noop) IsConnected() bool { return false }
