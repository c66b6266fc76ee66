// Package resolver follows an affiliate tracking link through server and
// script redirects to the page it finally lands on.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/browser"
)

var (
	ErrCircularRedirect     = errors.New("circular redirect")
	ErrInvalidDestination   = errors.New("invalid or expired destination")
	ErrMaxRedirectsExceeded = errors.New("maximum redirects exceeded")
)

const (
	DefaultMaxRedirects = 10

	defaultSettleDelay        = 2 * time.Second
	defaultIdleTimeout        = 5 * time.Second
	defaultIdleInterval       = 2 * time.Second
	defaultClientRedirectWait = 3 * time.Second
)

// Page markers.
const (
	historyBackMarker    = "window.history.back()"
	redirectingMarker    = "redirecting"
	windowLocationMarker = "window.location"
)

// Via values for Hop.
const (
	ViaServer = "server"
	ViaScript = "script"
)

// Hop is one URL change observed while resolving.
type Hop struct {
	Index int    `json:"index"`
	From  string `json:"from"`
	To    string `json:"to"`
	Via   string `json:"via"`
}

// Result is a successful resolution.
type Result struct {
	FinalURL string `json:"final_url"`
	Chain    []Hop  `json:"chain"`
}

// SessionProvider hands out the shared browser session.
type SessionProvider interface {
	Get(ctx context.Context) (browser.Session, error)
}

// Options tunes the waits between navigation steps.
type Options struct {
	SettleDelay        time.Duration
	IdleTimeout        time.Duration
	IdleInterval       time.Duration
	ClientRedirectWait time.Duration
}

// Resolver drives the browser session through a redirect chain. It keeps
// no state between calls.
type Resolver struct {
	sessions SessionProvider
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
}

// New returns a Resolver with defaults applied to zero options.
func New(sessions SessionProvider, opts Options, log zerolog.Logger) *Resolver {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = defaultIdleInterval
	}
	if opts.ClientRedirectWait <= 0 {
		opts.ClientRedirectWait = defaultClientRedirectWait
	}
	return &Resolver{
		sessions: sessions,
		opts:     opts,
		sleep:    sleepCtx,
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolve follows seedURL until no further redirect is detected. maxHops
// <= 0 means DefaultMaxRedirects. Aborts wrap ErrCircularRedirect,
// ErrInvalidDestination or ErrMaxRedirectsExceeded.
func (r *Resolver) Resolve(ctx context.Context, seedURL, orderNo string, maxHops int) (*Result, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxRedirects
	}
	log := r.log.With().Str("order_no", orderNo).Logger()

	s, err := r.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}

	current := seedURL
	visited := make(map[string]struct{}, maxHops)
	var chain []Hop

	hop := func(to, via string) {
		chain = append(chain, Hop{Index: len(chain) + 1, From: current, To: to, Via: via})
		log.Info().Str("from", current).Str("to", to).Str("via", via).Msg("redirect followed")
		current = to
	}

	for len(chain) < maxHops {
		if _, seen := visited[current]; seen {
			log.Warn().Str("url", current).Msg("circular redirect detected")
			return nil, fmt.Errorf("%w at %s", ErrCircularRedirect, current)
		}
		visited[current] = struct{}{}

		log.Debug().Int("hop", len(chain)+1).Str("url", current).Msg("navigating")
		if err := s.Navigate(ctx, current); err != nil {
			return nil, err
		}
		if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
			return nil, err
		}
		s.WaitUntilIdle(ctx, r.opts.IdleTimeout, r.opts.IdleInterval)

		landed, err := s.CurrentURL(ctx)
		if err != nil {
			return nil, err
		}
		if landed != current {
			hop(landed, ViaServer)
			continue
		}

		content, err := s.PageContent(ctx)
		if err != nil {
			return nil, err
		}
		if strings.Contains(content, historyBackMarker) {
			log.Warn().Str("url", current).Msg("page navigates back, destination is invalid or expired")
			return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, current)
		}
		if looksLikeRedirectPage(content) {
			if err := r.sleep(ctx, r.opts.ClientRedirectWait); err != nil {
				return nil, err
			}
			after, err := s.CurrentURL(ctx)
			if err != nil {
				return nil, err
			}
			if after != current {
				hop(after, ViaScript)
				continue
			}
		}

		log.Info().Int("hops", len(chain)).Str("final_url", current).Msg("reached final url")
		return &Result{FinalURL: current, Chain: chain}, nil
	}

	log.Warn().Int("max", maxHops).Msg("maximum redirects reached")
	return nil, fmt.Errorf("%w: %d hops from %s", ErrMaxRedirectsExceeded, maxHops, seedURL)
}

func looksLikeRedirectPage(content string) bool {
	return strings.Contains(strings.ToLower(content), redirectingMarker) ||
		strings.Contains(content, windowLocationMarker)
}
