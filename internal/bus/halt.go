package bus

import "context"

type haltKey struct{}

// WithHalt ties ctx to an interaction that is abandoned once done is closed.
// Work already running under ctx is not cancelled; Publish drops events
// published under it instead, so the interaction produces nothing further.
func WithHalt(ctx context.Context, done <-chan struct{}) context.Context {
	return context.WithValue(ctx, haltKey{}, done)
}

// Halted reports whether the interaction ctx belongs to has been abandoned.
func Halted(ctx context.Context) bool {
	done, ok := ctx.Value(haltKey{}).(<-chan struct{})
	if !ok {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}
