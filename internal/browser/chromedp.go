package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const (
	defaultActionTimeout = 60 * time.Second
	idlePollInterval     = 500 * time.Millisecond
)

// idleProbeJS reports the load state and how many resources the page has
// requested so far. A stable count means the network is quiet.
const idleProbeJS = `({ready: document.readyState, resources: performance.getEntriesByType("resource").length})`

// Options configures the Chrome process.
type Options struct {
	Headless  bool
	UserAgent string
	// ExtraFlags are raw Chrome switches such as "--window-size=1920,1080".
	ExtraFlags    []string
	ActionTimeout time.Duration
}

// ChromeSession is a Session backed by a chromedp tab.
type ChromeSession struct {
	ctx           context.Context
	cancel        context.CancelFunc
	allocCancel   context.CancelFunc
	actionTimeout time.Duration
	closeOnce     sync.Once
	log           zerolog.Logger
}

// NewChromeSession starts a browser and opens one tab.
func NewChromeSession(opts Options, log zerolog.Logger) (*ChromeSession, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	for _, raw := range opts.ExtraFlags {
		if name, value, ok := ParseFlag(raw); ok {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// The first Run launches the process.
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	timeout := opts.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	s := &ChromeSession{
		ctx:           ctx,
		cancel:        cancel,
		allocCancel:   allocCancel,
		actionTimeout: timeout,
		log:           log.With().Str("component", "browser").Logger(),
	}
	s.log.Info().Bool("headless", opts.Headless).Int("extra_flags", len(opts.ExtraFlags)).Msg("chrome started")
	return s, nil
}

// ParseFlag splits "--name=value" or "--name" into a chromedp flag. Bare
// switches map to true.
func ParseFlag(raw string) (string, any, bool) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "-")
	if raw == "" {
		return "", nil, false
	}
	name, value, found := strings.Cut(raw, "=")
	if !found {
		return name, true, true
	}
	return name, value, true
}

// run executes actions on the tab. The caller's ctx cancels the actions
// without tearing down the tab itself.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func by(sel Selector) chromedp.QueryOption {
	if sel.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, s.actionTimeout, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return u, nil
}

func (s *ChromeSession) PageContent(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, s.actionTimeout, chromedp.Evaluate(expr, out))
}

func (s *ChromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		raw = cookies
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

func (s *ChromeSession) FindFirstMatching(ctx context.Context, candidates []Selector) (Selector, bool, error) {
	for _, sel := range candidates {
		var nodes []*cdp.Node
		err := s.run(ctx, s.actionTimeout, chromedp.Nodes(sel.Query, &nodes, by(sel), chromedp.AtLeast(0)))
		if err != nil {
			if ctx.Err() != nil {
				return Selector{}, false, ctx.Err()
			}
			s.log.Debug().Err(err).Stringer("selector", sel).Msg("selector query failed")
			continue
		}
		if len(nodes) > 0 {
			return sel, true, nil
		}
	}
	return Selector{}, false, nil
}

func (s *ChromeSession) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) (bool, error) {
	err := s.run(ctx, timeout, chromedp.WaitVisible(sel.Query, by(sel)))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, fmt.Errorf("wait for %s: %w", sel, err)
	}
}

func (s *ChromeSession) Fill(ctx context.Context, sel Selector, value string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Clear(sel.Query, by(sel)), chromedp.SendKeys(sel.Query, value, by(sel))); err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	return nil
}

func (s *ChromeSession) Click(ctx context.Context, sel Selector) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Click(sel.Query, by(sel), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (s *ChromeSession) SendKeys(ctx context.Context, sel Selector, keys string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.SendKeys(sel.Query, keys, by(sel))); err != nil {
		return fmt.Errorf("send keys to %s: %w", sel, err)
	}
	return nil
}

type idleState struct {
	Ready     string `json:"ready"`
	Resources int    `json:"resources"`
}

func (s *ChromeSession) WaitUntilIdle(ctx context.Context, timeout, idle time.Duration) bool {
	deadline := time.Now().Add(timeout)
	lastCount := -1
	var quietSince time.Time

	for time.Now().Before(deadline) {
		var st idleState
		err := s.run(ctx, idlePollInterval*4, chromedp.Evaluate(idleProbeJS, &st))
		if ctx.Err() != nil {
			return false
		}
		switch {
		case err != nil:
			s.log.Debug().Err(err).Msg("idle probe failed")
			lastCount = -1
		case st.Ready != "complete":
			lastCount = -1
		case st.Resources != lastCount:
			lastCount = st.Resources
			quietSince = time.Now()
		case time.Since(quietSince) >= idle:
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(idlePollInterval):
		}
	}
	s.log.Info().Dur("timeout", timeout).Msg("network idle timeout reached, proceeding anyway")
	return false
}

// Close shuts the tab and the browser process. It is safe to call more than once.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
		s.log.Info().Msg("chrome stopped")
	})
	return nil
}
