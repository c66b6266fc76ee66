// Package browser exposes the automated browser capability used for portal
// login and redirect resolution.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Lazy after Close.
var ErrClosed = errors.New("browser session closed")

// Selector locates an element either by CSS query or by XPath.
type Selector struct {
	Query string
	XPath bool
}

// CSS returns a CSS selector.
func CSS(q string) Selector { return Selector{Query: q} }

// XPath returns an XPath selector.
func XPath(q string) Selector { return Selector{Query: q, XPath: true} }

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Query
	}
	return s.Query
}

// Cookie is one entry of the session cookie jar.
type Cookie struct {
	Name  string
	Value string
}

// Session is a single automated browser tab. Implementations are not safe
// for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
	// Evaluate runs expr in the page and decodes its result into out.
	Evaluate(ctx context.Context, expr string, out any) error
	Cookies(ctx context.Context) ([]Cookie, error)
	// FindFirstMatching returns the first selector that currently matches an
	// element. It does not wait.
	FindFirstMatching(ctx context.Context, candidates []Selector) (Selector, bool, error)
	// WaitVisible waits up to timeout for sel. A timeout is reported as
	// found=false with a nil error.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) (bool, error)
	Fill(ctx context.Context, sel Selector, value string) error
	Click(ctx context.Context, sel Selector) error
	SendKeys(ctx context.Context, sel Selector, keys string) error
	// WaitUntilIdle waits for the document to finish loading and for
	// network activity to stay quiet for idle, bounded by timeout. It
	// reports whether the page settled; callers proceed either way.
	WaitUntilIdle(ctx context.Context, timeout, idle time.Duration) bool
	Close() error
}
