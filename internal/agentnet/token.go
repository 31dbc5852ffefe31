package agentnet

import (
	"context"
	"sync"
)

// Token represents an outstanding outbound operation (Publish, Subscribe,
// Unsubscribe) that completes asynchronously when its ack arrives, or when
// the client disconnects.
type Token struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Wait blocks until the operation completes or ctx is cancelled.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that closes when the operation completes.
func (t *Token) Done() <-chan struct{} { return t.done }

// Error returns the completion error, if any. Only meaningful after Done().
func (t *Token) Error() error { return t.err }

func (t *Token) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
