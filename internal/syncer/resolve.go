package syncer

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
)

// SeedURL builds the tracking link for an order. Parameters keep the
// subid, tid, amount order the tracker expects.
func SeedURL(base, subID, orderNo, amount string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep +
		"subid=" + url.QueryEscape(subID) +
		"&tid=" + url.QueryEscape(orderNo) +
		"&amount=" + url.QueryEscape(amount)
}

// resolvePending resolves every unresolved order in ledger order. Failures
// are counted and never abort the run.
func (s *Syncer) resolvePending(ctx context.Context, log zerolog.Logger, sum *Summary) {
	pending, err := s.deps.Ledger.Unresolved(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not list unresolved orders")
		return
	}
	log.Info().Int("count", len(pending)).Msg("resolving orders without final url")

	processed := 0
	for _, o := range pending {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("resolution interrupted")
			return
		}
		if strings.TrimSpace(o.OrderNo) == "" || strings.TrimSpace(o.Customize1ID) == "" {
			sum.OrdersSkipped++
			continue
		}
		if processed > 0 {
			if err := s.sleep(ctx, s.opts.RecordDelay); err != nil {
				return
			}
		}
		processed++
		s.resolveOrder(ctx, log.With().Str("order_no", o.OrderNo).Logger(), sum, o)
	}
}

func (s *Syncer) resolveOrder(ctx context.Context, log zerolog.Logger, sum *Summary, o orders.Order) {
	seed := SeedURL(s.opts.RedirectBaseURL, o.Customize1ID, o.OrderNo, o.SaleAmountUSD)

	finalURL, err := s.resolveWithRetry(ctx, log, seed, o.OrderNo)
	if err != nil {
		sum.Failed++
		log.Warn().Err(err).Msg("giving up on order")
		return
	}

	applied, err := s.deps.Ledger.SetFinalURL(ctx, o.OrderNo, finalURL)
	if err != nil {
		sum.Failed++
		log.Error().Err(err).Msg("could not save final url")
		return
	}
	if !applied {
		sum.OrdersSkipped++
		return
	}
	sum.Resolved++
	log.Info().Str("final_url", finalURL).Msg("order resolved")

	if s.deps.Publisher == nil {
		return
	}
	ev := aws.ResolutionEvent{OrderNo: o.OrderNo, FinalURL: finalURL, RunID: sum.RunID, ResolvedAt: s.nowFunc().UTC()}
	if err := s.deps.Publisher.PublishResolution(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("could not publish resolution event")
	}
}

// resolveWithRetry makes up to MaxAttempts resolution attempts, sleeping
// BackoffUnit*attempt between them.
func (s *Syncer) resolveWithRetry(ctx context.Context, log zerolog.Logger, seed, orderNo string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		res, err := s.deps.Resolver.Resolve(ctx, seed, orderNo, s.opts.MaxRedirects)
		if err == nil {
			return res.FinalURL, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.opts.MaxAttempts).Msg("resolution attempt failed")

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			break
		}
		if attempt < s.opts.MaxAttempts {
			if err := s.sleep(ctx, s.opts.BackoffUnit*time.Duration(attempt)); err != nil {
				break
			}
		}
	}
	return "", lastErr
}
