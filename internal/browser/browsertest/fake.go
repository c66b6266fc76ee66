// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/imrishuroy/affiliate-orderflow/internal/browser"
)

// ErrNavigate is returned by Navigate for URLs listed in FailURLs.
var ErrNavigate = errors.New("navigation failed")

// Session is a scripted browser.Session.
//
// Navigating to a URL lands on Redirects[url] when present, the way a
// server redirect resolves within one navigation. ClientRedirects moves the
// current URL once the page content has been read and CurrentURL is
// called again, the way a script redirect fires after load.
type Session struct {
	mu sync.Mutex

	URL             string
	Redirects       map[string]string
	ClientRedirects map[string]string
	Pages           map[string]string
	FailURLs        map[string]bool

	// Evals maps an exact expression to the value it evaluates to.
	Evals     map[string]any
	CookieJar []browser.Cookie

	// Present lists selectors that FindFirstMatching and WaitVisible see.
	Present map[string]bool
	Settles bool

	Navigations []string
	Filled      map[string]string
	Clicked     []string
	Keys        map[string]string
	IdleWaits   int
	CloseCount  int

	pendingClient string
}

// New returns an empty scripted session.
func New() *Session {
	return &Session{
		Redirects:       map[string]string{},
		ClientRedirects: map[string]string{},
		Pages:           map[string]string{},
		FailURLs:        map[string]bool{},
		Evals:           map[string]any{},
		Present:         map[string]bool{},
		Filled:          map[string]string{},
		Keys:            map[string]string{},
		Settles:         true,
	}
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Navigations = append(s.Navigations, url)
	if s.FailURLs[url] {
		return ErrNavigate
	}
	s.pendingClient = ""
	if next, ok := s.Redirects[url]; ok {
		url = next
	}
	s.URL = url
	return nil
}

func (s *Session) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingClient != "" {
		s.URL = s.pendingClient
		s.pendingClient = ""
	}
	return s.URL, nil
}

func (s *Session) PageContent(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next, ok := s.ClientRedirects[s.URL]; ok {
		s.pendingClient = next
	}
	return s.Pages[s.URL], nil
}

func (s *Session) Evaluate(_ context.Context, expr string, out any) error {
	s.mu.Lock()
	v := s.Evals[expr]
	s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *Session) Cookies(context.Context) ([]browser.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Cookie(nil), s.CookieJar...), nil
}

func (s *Session) FindFirstMatching(_ context.Context, candidates []browser.Selector) (browser.Selector, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		if s.Present[c.Query] {
			return c, true, nil
		}
	}
	return browser.Selector{}, false, nil
}

func (s *Session) WaitVisible(_ context.Context, sel browser.Selector, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Present[sel.Query], nil
}

func (s *Session) Fill(_ context.Context, sel browser.Selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filled[sel.Query] = value
	return nil
}

func (s *Session) Click(_ context.Context, sel browser.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Clicked = append(s.Clicked, sel.Query)
	return nil
}

func (s *Session) SendKeys(_ context.Context, sel browser.Selector, keys string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Keys[sel.Query] += keys
	return nil
}

func (s *Session) WaitUntilIdle(context.Context, time.Duration, time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IdleWaits++
	return s.Settles
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

var _ browser.Session = (*Session)(nil)
