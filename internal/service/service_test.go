package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/filter"
	"github.com/alanyoungcy/pumpbot/internal/notify"
	"github.com/alanyoungcy/pumpbot/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// valuations is a settable ValuationClient. Missing assets are unavailable.
type valuations struct {
	mu    sync.Mutex
	vals  map[string]decimal.Decimal
	errs  map[string]error
	calls int
}

func newValuations() *valuations {
	return &valuations{vals: map[string]decimal.Decimal{}, errs: map[string]error{}}
}

func (v *valuations) set(asset, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vals[asset] = d(value)
}

func (v *valuations) Value(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if err, ok := v.errs[asset]; ok {
		return decimal.Zero, err
	}
	val, ok := v.vals[asset]
	if !ok {
		return decimal.Zero, domain.ErrValuationUnavailable
	}
	return val, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published [][]byte
	streamed  [][]byte
}

func (b *recordingBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *recordingBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// recordingSender keeps every message it is handed.
type recordingSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) Name() string { return "recorder" }

func (r *recordingSender) byEvent(event string) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// stallingSender blocks until its context ends.
type stallingSender struct{ name string }

func (s stallingSender) Send(ctx context.Context, _ notify.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s stallingSender) Name() string { return s.name }

type heldLocks struct{ held map[string]bool }

func (l heldLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type harness struct {
	store     *memory.PositionStore
	audit     *memory.AuditStore
	bus       *recordingBus
	sender    *recordingSender
	vals      *valuations
	positions *PositionService
	ingestor  *Ingestor
	monitor   *Monitor
}

func newHarness(maxActive int) *harness {
	h := &harness{
		store:  memory.NewPositionStore(),
		audit:  memory.NewAuditStore(),
		bus:    &recordingBus{},
		sender: &recordingSender{},
		vals:   newValuations(),
	}
	notifier := notify.NewNotifier([]notify.Sender{h.sender}, nil, time.Second, discard)
	h.positions = NewPositionService(h.store, h.audit, h.bus, notifier, PositionConfig{
		MaxActive:       maxActive,
		TradeAmount:     d("0.01"),
		ProfitTargetPct: d("50"),
	}, discard)
	h.ingestor = NewIngestor(filter.New(filter.Thresholds{
		MinMarketCap:    d("10"),
		MaxMarketCap:    d("50"),
		MinLiquidity:    d("10"),
		MaxInitialRatio: d("15"),
		UnitScale:       d("1000000000"),
	}), h.positions, h.vals, h.audit, notifier, IngestConfig{MaxActive: maxActive, EventTimeout: time.Second}, discard)
	h.monitor = NewMonitor(h.positions, h.vals, nil, MonitorConfig{
		Interval:         10 * time.Millisecond,
		ProfitTargetPct:  d("50"),
		LossThresholdPct: d("-50"),
		CheckTimeout:     time.Second,
	}, discard)
	return h
}

// goodEvent passes the filter: cap 20, liquidity 15, initial buy 10%.
func goodEvent(asset string) domain.TokenEvent {
	return domain.TokenEvent{
		AssetID:            asset,
		Name:               "Token " + asset,
		Symbol:             "TKN",
		MarketCap:          d("20"),
		LiquidityPoolSize:  d("15"),
		InitialTradeVolume: d("2000000000"),
		ReceivedAt:         time.Now(),
	}
}
