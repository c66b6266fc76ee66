// Package login drives a browser session through the portal login and turns
// the resulting session into a credentials.HeaderSet.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/browser"
	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
)

var (
	// ErrSessionSetup means no browser session could be opened or the portal
	// could not be loaded.
	ErrSessionSetup = errors.New("browser session setup failed")
	// ErrLoginFormInteraction means the login form was found but could not be
	// filled or submitted.
	ErrLoginFormInteraction = errors.New("login form interaction failed")
	// ErrTokenExtractionExhausted means every token source came up empty.
	ErrTokenExtractionExhausted = errors.New("auth token extraction exhausted")
)

const (
	defaultFormTimeout   = 10 * time.Second
	defaultSettleTimeout = 30 * time.Second
	defaultIdleInterval  = 2 * time.Second
)

var (
	emailInput    = browser.CSS(`input[placeholder*="Email"]`)
	passwordInput = browser.CSS(`input[placeholder*="password"]`)

	// submitCandidates are tried in order; the first match is clicked.
	submitCandidates = []browser.Selector{
		browser.CSS(`button[type="submit"]`),
		browser.CSS(`input[type="submit"]`),
		browser.CSS(`.login-btn`),
		browser.CSS(`.btn-login`),
		browser.XPath(`//button[contains(text(), "Login")]`),
		browser.XPath(`//button[contains(text(), "Sign In")]`),
		browser.CSS(`input[value*="Login"]`),
		browser.CSS(`input[value*="Sign"]`),
		browser.CSS(`button`),
		browser.CSS(`input[type="button"]`),
	}
)

// SessionProvider hands out the shared browser session.
type SessionProvider interface {
	Get(ctx context.Context) (browser.Session, error)
}

// Config holds what the acquirer needs to log in.
type Config struct {
	PortalURL     string
	Username      string
	Password      string
	UserAgent     string
	OverrideToken string

	FormTimeout   time.Duration
	SettleTimeout time.Duration
	IdleInterval  time.Duration
}

// Acquirer performs a fresh login and builds a HeaderSet from the session.
type Acquirer struct {
	cfg      Config
	sessions SessionProvider
	sources  []TokenSource
	log      zerolog.Logger
}

// NewAcquirer applies defaults to cfg.
func NewAcquirer(cfg Config, sessions SessionProvider, log zerolog.Logger) *Acquirer {
	if cfg.FormTimeout <= 0 {
		cfg.FormTimeout = defaultFormTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}
	return &Acquirer{
		cfg:      cfg,
		sessions: sessions,
		sources:  DefaultSources(cfg.OverrideToken),
		log:      log.With().Str("component", "login").Logger(),
	}
}

// Acquire logs in if the portal asks for it and returns fresh headers. The
// error wraps one of ErrSessionSetup, ErrLoginFormInteraction or
// ErrTokenExtractionExhausted.
func (a *Acquirer) Acquire(ctx context.Context) (credentials.HeaderSet, error) {
	s, err := a.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}

	a.log.Info().Str("url", a.cfg.PortalURL).Msg("navigating to portal")
	if err := s.Navigate(ctx, a.cfg.PortalURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}

	found, err := s.WaitVisible(ctx, emailInput, a.cfg.FormTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: detect login form: %v", ErrLoginFormInteraction, err)
	}
	if found {
		a.log.Info().Msg("login form detected, submitting credentials")
		if err := a.submit(ctx, s); err != nil {
			return nil, err
		}
	} else {
		a.log.Info().Msg("no login form found, assuming an active session")
	}
	a.settle(ctx, s)

	token, _, ok := ExtractToken(ctx, s, a.sources, a.log)
	if !ok {
		logDiagnostics(ctx, s, a.log)
		return nil, ErrTokenExtractionExhausted
	}

	cookies, err := s.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionSetup, err)
	}
	h := credentials.NewHeaderSet(JoinCookies(cookies), a.cfg.UserAgent, token, "application/json")
	a.log.Info().Int("cookies", len(cookies)).Msg("authentication headers assembled")
	return h, nil
}

func (a *Acquirer) submit(ctx context.Context, s browser.Session) error {
	present, _, err := s.FindFirstMatching(ctx, []browser.Selector{passwordInput})
	if err != nil || present != passwordInput {
		return fmt.Errorf("%w: password field not found", ErrLoginFormInteraction)
	}

	if a.cfg.Username != "" {
		if err := s.Fill(ctx, emailInput, a.cfg.Username); err != nil {
			return fmt.Errorf("%w: %v", ErrLoginFormInteraction, err)
		}
	}
	if a.cfg.Password != "" {
		if err := s.Fill(ctx, passwordInput, a.cfg.Password); err != nil {
			return fmt.Errorf("%w: %v", ErrLoginFormInteraction, err)
		}
	}

	button, ok, err := s.FindFirstMatching(ctx, submitCandidates)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFormInteraction, err)
	}
	if ok {
		err := s.Click(ctx, button)
		if err == nil {
			a.log.Info().Stringer("selector", button).Msg("login button clicked")
			return nil
		}
		a.log.Warn().Err(err).Stringer("selector", button).Msg("login button click failed, falling back to enter key")
	}

	if err := s.SendKeys(ctx, passwordInput, kb.Enter); err != nil {
		return fmt.Errorf("%w: submit with enter: %v", ErrLoginFormInteraction, err)
	}
	a.log.Info().Msg("login submitted with enter key")
	return nil
}

func (a *Acquirer) settle(ctx context.Context, s browser.Session) {
	if !s.WaitUntilIdle(ctx, a.cfg.SettleTimeout, a.cfg.IdleInterval) {
		a.log.Info().Msg("page did not settle in time, proceeding anyway")
	}
}

// JoinCookies serialises a cookie jar as a Cookie header value.
func JoinCookies(cookies []browser.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
