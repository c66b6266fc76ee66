// Package syncer runs one end-to-end sync: credentials, export fetch,
// ledger upsert and redirect resolution of unresolved orders.
package syncer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
	"github.com/imrishuroy/affiliate-orderflow/internal/portal"
	"github.com/imrishuroy/affiliate-orderflow/internal/resolver"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

const (
	defaultMaxAttempts  = 3
	defaultBackoffUnit  = time.Second
	defaultRecordDelay  = 500 * time.Millisecond
	defaultMaxRedirects = resolver.DefaultMaxRedirects
)

// CredentialCache persists the last good HeaderSet.
type CredentialCache interface {
	Load() (credentials.HeaderSet, bool)
	Save(credentials.HeaderSet) error
	Invalidate() error
}

// Portal probes headers and downloads the order export.
type Portal interface {
	Probe(ctx context.Context, headers credentials.HeaderSet) portal.Validity
	RecentWindow() validation.ExportWindow
	FetchExport(ctx context.Context, headers credentials.HeaderSet, window validation.ExportWindow) (*portal.ExportResult, error)
}

// TokenAcquirer performs a fresh browser login.
type TokenAcquirer interface {
	Acquire(ctx context.Context) (credentials.HeaderSet, error)
}

// Ledger is the durable order store.
type Ledger interface {
	UpsertBatch(ctx context.Context, rows []map[string]string) (orders.UpsertResult, error)
	Unresolved(ctx context.Context) ([]orders.Order, error)
	SetFinalURL(ctx context.Context, orderNo, finalURL string) (bool, error)
	IsEmpty(ctx context.Context) (bool, error)
}

// Resolver follows a seed URL to its final destination.
type Resolver interface {
	Resolve(ctx context.Context, seedURL, orderNo string, maxHops int) (*resolver.Result, error)
}

// EventPublisher announces resolved orders.
type EventPublisher interface {
	PublishResolution(ctx context.Context, ev aws.ResolutionEvent) error
}

// MetricsReporter records per-run counters.
type MetricsReporter interface {
	ReportRun(ctx context.Context, counters map[string]int, success bool) error
}

// Deps are the collaborators of a Syncer. Publisher, Metrics and Browser
// are optional.
type Deps struct {
	Cache     CredentialCache
	Portal    Portal
	Acquirer  TokenAcquirer
	Ledger    Ledger
	Resolver  Resolver
	Publisher EventPublisher
	Metrics   MetricsReporter
	// Browser is closed once when Run returns.
	Browser io.Closer
}

// Options tunes a run.
type Options struct {
	RedirectBaseURL string
	DownloadDir     string
	ForceLogin      bool

	MaxAttempts  int
	BackoffUnit  time.Duration
	RecordDelay  time.Duration
	MaxRedirects int
}

// Syncer sequences one run. It is not safe for concurrent use.
type Syncer struct {
	deps    Deps
	opts    Options
	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// New returns a Syncer with defaults applied to zero options.
func New(deps Deps, opts Options, log zerolog.Logger) *Syncer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = defaultBackoffUnit
	}
	if opts.RecordDelay <= 0 {
		opts.RecordDelay = defaultRecordDelay
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	return &Syncer{
		deps:    deps,
		opts:    opts,
		nowFunc: time.Now,
		sleep:   sleepCtx,
		log:     log.With().Str("component", "syncer").Logger(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes one sync. The returned error is non-nil only when a
// mandatory phase failed: obtaining valid credentials or fetching the
// export. Per-order resolution failures are counted in the Summary.
func (s *Syncer) Run(ctx context.Context) (sum *Summary, err error) {
	sum = &Summary{RunID: uuid.NewString(), StartedAt: s.nowFunc()}
	log := s.log.With().Str("run_id", sum.RunID).Logger()

	defer func() {
		if s.deps.Browser != nil {
			if cerr := s.deps.Browser.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("browser close failed")
			}
		}
		sum.Success = err == nil
		sum.Duration = s.nowFunc().Sub(sum.StartedAt)
		log.Info().Str("summary", sum.String()).Dur("duration", sum.Duration).Msg("sync finished")
		s.reportMetrics(ctx, log, sum)
	}()

	log.Info().Msg("sync started")

	headers, err := s.ensureCredentials(ctx, log, sum)
	if err != nil {
		log.Error().Err(err).Msg("could not obtain valid credentials")
		return sum, err
	}

	s.seedIfEmpty(ctx, log, sum)

	window := s.deps.Portal.RecentWindow()
	res, err := s.deps.Portal.FetchExport(ctx, headers, window)
	if err != nil {
		log.Error().Err(err).Msg("export fetch failed")
		return sum, fmt.Errorf("fetch export: %w", err)
	}
	sum.NoData = res.NoData
	sum.Fetched = len(res.Rows)

	if !res.NoData {
		s.archive(log, sum, res.CSV)
		s.upsert(ctx, log, sum, res.Rows)
	}

	s.resolvePending(ctx, log, sum)
	return sum, nil
}

// ensureCredentials returns headers the portal accepts, logging in again
// when the cache is empty, stale or rejected.
func (s *Syncer) ensureCredentials(ctx context.Context, log zerolog.Logger, sum *Summary) (credentials.HeaderSet, error) {
	if s.opts.ForceLogin {
		if err := s.deps.Cache.Invalidate(); err != nil {
			log.Warn().Err(err).Msg("could not invalidate credential cache")
		} else {
			log.Info().Msg("credential cache invalidated")
		}
	}

	if cached, ok := s.deps.Cache.Load(); ok {
		v := s.deps.Portal.Probe(ctx, cached)
		if v == portal.Valid {
			log.Info().Msg("using cached credentials")
			return cached, nil
		}
		log.Info().Stringer("validity", v).Msg("cached credentials rejected, logging in again")
	} else {
		log.Info().Msg("no usable cached credentials, logging in")
	}

	sum.Relogin = true
	headers, err := s.deps.Acquirer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.deps.Cache.Save(headers); err != nil {
		log.Warn().Err(err).Msg("could not write credential cache")
	}
	return headers, nil
}

func (s *Syncer) upsert(ctx context.Context, log zerolog.Logger, sum *Summary, rows []map[string]string) {
	res, err := s.deps.Ledger.UpsertBatch(ctx, rows)
	sum.Inserted += res.Inserted
	sum.Updated += res.Updated
	sum.RowsSkipped += res.Skipped
	sum.RowsFailed += res.Failed
	if err != nil {
		log.Error().Err(err).Msg("some orders could not be saved")
	}
}

func (s *Syncer) reportMetrics(ctx context.Context, log zerolog.Logger, sum *Summary) {
	if s.deps.Metrics == nil {
		return
	}
	if err := s.deps.Metrics.ReportRun(context.WithoutCancel(ctx), sum.Counters(), sum.Success); err != nil {
		log.Warn().Err(err).Msg("could not publish run metrics")
	}
}
