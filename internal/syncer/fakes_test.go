package syncer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/imrishuroy/affiliate-orderflow/internal/aws"
	"github.com/imrishuroy/affiliate-orderflow/internal/credentials"
	"github.com/imrishuroy/affiliate-orderflow/internal/orders"
	"github.com/imrishuroy/affiliate-orderflow/internal/portal"
	"github.com/imrishuroy/affiliate-orderflow/internal/resolver"
	"github.com/imrishuroy/affiliate-orderflow/internal/validation"
)

type fakeCache struct {
	headers     credentials.HeaderSet
	saved       []credentials.HeaderSet
	invalidated int
}

func (c *fakeCache) Load() (credentials.HeaderSet, bool) {
	if c.headers == nil {
		return nil, false
	}
	return c.headers, true
}

func (c *fakeCache) Save(h credentials.HeaderSet) error {
	c.saved = append(c.saved, h)
	c.headers = h
	return nil
}

func (c *fakeCache) Invalidate() error {
	c.invalidated++
	c.headers = nil
	return nil
}

type fakePortal struct {
	validity  portal.Validity
	body      string
	fetchErr  error
	probed    []credentials.HeaderSet
	fetchedBy []credentials.HeaderSet
}

func (p *fakePortal) Probe(_ context.Context, h credentials.HeaderSet) portal.Validity {
	p.probed = append(p.probed, h)
	return p.validity
}

func (p *fakePortal) RecentWindow() validation.ExportWindow {
	return portal.WindowEndingAt(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
}

func (p *fakePortal) FetchExport(_ context.Context, h credentials.HeaderSet, _ validation.ExportWindow) (*portal.ExportResult, error) {
	p.fetchedBy = append(p.fetchedBy, h)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return portal.ParseExport([]byte(p.body))
}

type fakeAcquirer struct {
	headers credentials.HeaderSet
	err     error
	calls   int
}

func (a *fakeAcquirer) Acquire(context.Context) (credentials.HeaderSet, error) {
	a.calls++
	return a.headers, a.err
}

// memLedger keeps orders in a map and mirrors the Store semantics.
type memLedger struct {
	orders  map[string]*orders.Order
	upserts int
}

func newMemLedger() *memLedger {
	return &memLedger{orders: map[string]*orders.Order{}}
}

func (l *memLedger) UpsertBatch(_ context.Context, rows []map[string]string) (orders.UpsertResult, error) {
	l.upserts++
	var res orders.UpsertResult
	for _, r := range rows {
		no := orders.OrderNoOf(r)
		if no == "" {
			res.Skipped++
			continue
		}
		o, ok := l.orders[no]
		if ok {
			res.Updated++
		} else {
			res.Inserted++
			o = &orders.Order{OrderNo: no}
			l.orders[no] = o
		}
		o.SaleAmountUSD = r[orders.ColumnSaleAmountUSD]
		o.Customize1ID = r[orders.ColumnCustomize1ID]
	}
	return res, nil
}

func (l *memLedger) Unresolved(context.Context) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range l.orders {
		if o.FinalURL == nil {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNo > out[j].OrderNo })
	return out, nil
}

func (l *memLedger) SetFinalURL(_ context.Context, no, u string) (bool, error) {
	o, ok := l.orders[no]
	if !ok || o.FinalURL != nil {
		return false, nil
	}
	o.FinalURL = &u
	return true, nil
}

func (l *memLedger) IsEmpty(context.Context) (bool, error) {
	return len(l.orders) == 0, nil
}

// fakeResolver answers per seed URL; failures lists how many attempts fail
// before the seed resolves.
type fakeResolver struct {
	finals   map[string]string
	failures map[string]int
	calls    map[string]int
	maxHops  []int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{finals: map[string]string{}, failures: map[string]int{}, calls: map[string]int{}}
}

var errUnreachable = errors.New("unreachable")

func (r *fakeResolver) Resolve(_ context.Context, seed, _ string, maxHops int) (*resolver.Result, error) {
	r.calls[seed]++
	r.maxHops = append(r.maxHops, maxHops)
	if r.calls[seed] <= r.failures[seed] {
		return nil, resolver.ErrMaxRedirectsExceeded
	}
	final, ok := r.finals[seed]
	if !ok {
		return nil, errUnreachable
	}
	return &resolver.Result{FinalURL: final}, nil
}

type fakePublisher struct{ events []aws.ResolutionEvent }

func (p *fakePublisher) PublishResolution(_ context.Context, ev aws.ResolutionEvent) error {
	p.events = append(p.events, ev)
	return nil
}

type fakeMetrics struct {
	counters map[string]int
	success  bool
	calls    int
}

func (m *fakeMetrics) ReportRun(_ context.Context, c map[string]int, ok bool) error {
	m.calls++
	m.counters, m.success = c, ok
	return nil
}

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}
