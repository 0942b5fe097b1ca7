package ports

import "context"

// Publisher emits an event on the topic exchange. Implementations are
// best-effort: a disabled or failing transport logs and returns an error the
// caller may swallow, it never blocks a committed mutation.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}
