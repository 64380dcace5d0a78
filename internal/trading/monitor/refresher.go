package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"auto_trader/internal/core"
	"auto_trader/internal/trading/pnl"
)

// Refresher periodically polls a PNL snapshot and publishes it to a
// callback, for the operator display. The first refresh happens immediately
// on start. When an exchange is supplied, the refresher subscribes to the
// mark-price stream for the open symbols and overlays streamed marks onto
// each published snapshot; the REST poll remains the source of the position
// set and the fallback when the stream has no data.
type Refresher struct {
	aggregator core.IPnlAggregator
	exchange   core.IExchange // may be nil, disables stream enrichment
	logger     core.ILogger
	interval   time.Duration

	onSnapshot func(core.PnlSnapshot)

	marksMu   sync.RWMutex
	marks     map[string]decimal.Decimal
	streaming []string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a display refresher publishing to onSnapshot
func NewRefresher(aggregator core.IPnlAggregator, exchange core.IExchange, interval time.Duration, onSnapshot func(core.PnlSnapshot), logger core.ILogger) *Refresher {
	return &Refresher{
		aggregator: aggregator,
		exchange:   exchange,
		logger:     logger.WithField("component", "pnl_refresher"),
		interval:   interval,
		onSnapshot: onSnapshot,
		marks:      make(map[string]decimal.Decimal),
	}
}

// Start begins periodic refreshes. Starting twice is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(loopCtx)
}

// Stop halts refreshes, drops the stream subscription, and waits for the
// loop to exit
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()

	if r.exchange != nil {
		if err := r.exchange.StopMarkPriceStream(); err != nil {
			r.logger.Debug("mark price stream stop", "error", err)
		}
	}
	r.marksMu.Lock()
	r.marks = make(map[string]decimal.Decimal)
	r.streaming = nil
	r.marksMu.Unlock()
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	snap, err := r.aggregator.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("display refresh failed", "error", err)
		}
		return
	}

	r.ensureStream(ctx, snap)
	r.overlayStreamedMarks(&snap)

	if r.onSnapshot != nil {
		r.onSnapshot(snap)
	}
}

// ensureStream keeps the mark-price subscription matched to the snapshot's
// symbol set, resubscribing when positions appear or vanish.
func (r *Refresher) ensureStream(ctx context.Context, snap core.PnlSnapshot) {
	if r.exchange == nil {
		return
	}

	seen := make(map[string]bool, len(snap.Positions))
	symbols := make([]string, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if p.Err != nil || seen[p.Symbol] {
			continue
		}
		seen[p.Symbol] = true
		symbols = append(symbols, p.Symbol)
	}
	sort.Strings(symbols)

	// streaming is touched only by the run goroutine and by Stop after the
	// loop has exited, so no lock is needed for it here.
	if equalSymbols(r.streaming, symbols) {
		return
	}

	if len(r.streaming) > 0 {
		if err := r.exchange.StopMarkPriceStream(); err != nil {
			r.logger.Debug("mark price stream stop", "error", err)
		}
	}
	r.streaming = nil
	r.marksMu.Lock()
	r.marks = make(map[string]decimal.Decimal)
	r.marksMu.Unlock()

	if len(symbols) == 0 {
		return
	}
	if err := r.exchange.StartMarkPriceStream(ctx, symbols, r.onStreamedMark); err != nil {
		r.logger.Warn("mark price stream unavailable, display uses polled marks", "error", err)
		return
	}
	r.streaming = symbols
	r.logger.Debug("mark price stream subscribed", "symbols", len(symbols))
}

func (r *Refresher) onStreamedMark(symbol string, markPrice decimal.Decimal) {
	if !markPrice.IsPositive() {
		return
	}
	r.marksMu.Lock()
	r.marks[symbol] = markPrice
	r.marksMu.Unlock()
}

// overlayStreamedMarks replaces polled mark prices with fresher streamed ones
// and recomputes the derived pnl fields and the summary.
func (r *Refresher) overlayStreamedMarks(snap *core.PnlSnapshot) {
	r.marksMu.RLock()
	defer r.marksMu.RUnlock()
	if len(r.marks) == 0 {
		return
	}

	changed := false
	for key, p := range snap.Positions {
		mark, ok := r.marks[p.Symbol]
		if !ok || p.Err != nil || mark.Equal(p.MarkPrice) {
			continue
		}
		p.MarkPrice = mark
		p.UnrealizedPnl = mark.Sub(p.EntryPrice).Mul(p.Amount)
		p.PnlPercent = pnl.PnlPercent(p)
		snap.Positions[key] = p
		changed = true
	}
	if !changed {
		return
	}

	total := decimal.Zero
	for _, p := range snap.Positions {
		if p.Err == nil {
			total = total.Add(p.UnrealizedPnl)
		}
	}
	snap.TotalPnl = total
	snap.Summary = pnl.FormatSummary(*snap)
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
