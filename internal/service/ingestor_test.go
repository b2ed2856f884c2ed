package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/notify"
)

func TestIngestor_OpensAcceptedToken(t *testing.T) {
	h := newHarness(10)
	h.vals.set("mintA", "100")
	ctx := context.Background()

	assert.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("mintA")))

	active, err := h.store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	p := active[0]
	assert.Equal(t, "mintA", p.AssetID)
	assert.True(t, p.EntryValue.Equal(d("100")))
	assert.True(t, p.TargetValue.Equal(d("150")))
	assert.True(t, p.Quantity.Equal(d("0.01")))
	assert.NotEmpty(t, p.ID)

	assert.Len(t, h.bus.published, 1)
	assert.Len(t, h.bus.streamed, 1)
	assert.Contains(t, string(h.bus.published[0]), notify.EventPositionOpened)

	entries, err := h.audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, notify.EventPositionOpened, entries[0].Event)
	assert.Equal(t, notify.EventTokenEvaluated, entries[1].Event)
}

func TestIngestor_RejectedCreatesNothing(t *testing.T) {
	h := newHarness(10)
	h.vals.set("mintA", "100")

	ev := goodEvent("mintA")
	ev.MarketCap = d("5")
	assert.Equal(t, OutcomeRejected, h.ingestor.Handle(context.Background(), ev))

	n, _ := h.store.CountActive(context.Background())
	assert.Zero(t, n)
	assert.Zero(t, h.vals.calls, "no valuation lookup for rejected tokens")
}

func TestIngestor_CapRespected(t *testing.T) {
	h := newHarness(2)
	ctx := context.Background()
	for _, a := range []string{"a", "b", "c", "d"} {
		h.vals.set(a, "100")
	}

	assert.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("a")))
	assert.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("b")))
	assert.Equal(t, OutcomeCapReached, h.ingestor.Handle(ctx, goodEvent("c")))

	n, _ := h.store.CountActive(ctx)
	assert.Equal(t, 2, n)

	// A close frees a slot.
	active, err := h.store.ListActive(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, active)
	_, err = h.store.Close(ctx, active[0].ID, d("150"), domain.CloseReasonProfitTarget, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("d")))
}

func TestIngestor_ValuationUnavailable(t *testing.T) {
	h := newHarness(10)
	ctx := context.Background()

	assert.Equal(t, OutcomeValuationUnavailable, h.ingestor.Handle(ctx, goodEvent("unknown")))

	h.vals.errs["broken"] = errors.New("connection refused")
	assert.Equal(t, OutcomeValuationUnavailable, h.ingestor.Handle(ctx, goodEvent("broken")))

	h.vals.set("zero", "0")
	assert.Equal(t, OutcomeInvalidEntry, h.ingestor.Handle(ctx, goodEvent("zero")))

	n, _ := h.store.CountActive(ctx)
	assert.Zero(t, n)
}

func TestIngestor_AlreadyActive(t *testing.T) {
	h := newHarness(10)
	h.vals.set("mintA", "100")
	ctx := context.Background()

	require.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("mintA")))
	assert.Equal(t, OutcomeAlreadyActive, h.ingestor.Handle(ctx, goodEvent("mintA")))

	n, _ := h.store.CountActive(ctx)
	assert.Equal(t, 1, n)
}

func TestIngestor_RunDrainsUntilClosed(t *testing.T) {
	h := newHarness(10)
	events := make(chan domain.TokenEvent, 3)
	for _, a := range []string{"a", "b", "c"} {
		h.vals.set(a, "100")
		events <- goodEvent(a)
	}
	close(events)

	require.NoError(t, h.ingestor.Run(context.Background(), events))
	n, _ := h.store.CountActive(context.Background())
	assert.Equal(t, 3, n)
}

func TestIngestor_RunStopsOnCancel(t *testing.T) {
	h := newHarness(10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ingestor.Run(ctx, make(chan domain.TokenEvent)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor did not stop")
	}
}

func TestIngestor_HandleSurvivesCancelledParent(t *testing.T) {
	h := newHarness(10)
	h.vals.set("mintA", "100")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("mintA")))
}

func TestIngestor_NarratesEveryDecision(t *testing.T) {
	h := newHarness(1)
	ctx := context.Background()
	h.vals.set("a", "100")
	h.vals.set("b", "100")

	rejected := goodEvent("low")
	rejected.MarketCap = d("5")
	require.Equal(t, OutcomeRejected, h.ingestor.Handle(ctx, rejected))
	require.Equal(t, OutcomeOpened, h.ingestor.Handle(ctx, goodEvent("a")))
	require.Equal(t, OutcomeCapReached, h.ingestor.Handle(ctx, goodEvent("b")))

	evaluated := h.sender.byEvent(notify.EventTokenEvaluated)
	require.Len(t, evaluated, 3)
	assert.Contains(t, evaluated[0].Body, "Mint: low")
	assert.Contains(t, evaluated[0].Body, "Decision: Rejected")
	assert.Contains(t, evaluated[0].Body, "Reason: market cap too low")
	assert.Contains(t, evaluated[1].Body, "Decision: Safe to buy")
	assert.Contains(t, evaluated[2].Body, "Mint: b")
	assert.Contains(t, evaluated[2].Body, "Decision: Safe to buy")

	opened := h.sender.byEvent(notify.EventPositionOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, "Position opened", opened[0].Title)
	assert.Contains(t, opened[0].Body, "Mint: a")
	assert.Contains(t, opened[0].Body, "Entry value: 100.00")
	assert.Contains(t, opened[0].Body, "Target value: 150.00")
}

func TestIngestor_SlowSendersDoNotCostTheEvent(t *testing.T) {
	h := newHarness(10)
	h.vals.set("mintA", "100")

	notifier := notify.NewNotifier([]notify.Sender{
		stallingSender{name: "telegram"},
		stallingSender{name: "discord"},
	}, nil, 100*time.Millisecond, discard)
	positions := NewPositionService(h.store, h.audit, nil, notifier, PositionConfig{
		MaxActive:       10,
		TradeAmount:     d("0.01"),
		ProfitTargetPct: d("50"),
	}, discard)
	ingestor := NewIngestor(h.ingestor.filter, positions, h.vals, h.audit, notifier,
		IngestConfig{MaxActive: 10, EventTimeout: 150 * time.Millisecond}, discard)

	assert.Equal(t, OutcomeOpened, ingestor.Handle(context.Background(), goodEvent("mintA")))

	n, err := h.store.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
