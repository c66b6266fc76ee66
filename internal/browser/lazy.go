package browser

import (
	"context"
	"fmt"
	"sync"
)

// Factory opens a new Session.
type Factory func(ctx context.Context) (Session, error)

// Lazy opens a Session on first use and closes it exactly once. Login and
// redirect resolution share the one session a Lazy hands out.
type Lazy struct {
	factory Factory

	mu      sync.Mutex
	session Session
	closed  bool
}

// NewLazy returns a Lazy that will call factory at most once successfully.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Get returns the shared session, starting it if needed. A failed start is
// not cached so a later Get may retry.
func (l *Lazy) Get(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.session != nil {
		return l.session, nil
	}
	s, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	l.session = s
	return s, nil
}

// Started reports whether a session has been opened.
func (l *Lazy) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session != nil
}

// Close releases the session if one was opened. Later calls are no-ops.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.session == nil {
		return nil
	}
	return l.session.Close()
}
