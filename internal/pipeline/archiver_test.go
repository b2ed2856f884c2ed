package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct{ since, until time.Time }

type fakeBlobArchiver struct {
	calls  []window
	counts map[string]int64
	failOn string
}

func (f *fakeBlobArchiver) ArchiveClosed(_ context.Context, since, until time.Time) (int64, error) {
	f.calls = append(f.calls, window{since, until})
	key := since.Format("2006-01-02")
	if key == f.failOn {
		return 0, errors.New("boom")
	}
	return f.counts[key], nil
}

func newTestArchiver(f *fakeBlobArchiver, days int, now time.Time) *Archiver {
	a := NewArchiver(f, days, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func TestArchiver_RunArchivesCompletedDays(t *testing.T) {
	f := &fakeBlobArchiver{counts: map[string]int64{"2026-03-09": 4, "2026-03-10": 2}}
	a := newTestArchiver(f, 3, time.Date(2026, 3, 11, 14, 30, 0, 0, time.UTC))

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	require.Len(t, f.calls, 3)
	assert.Equal(t, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), f.calls[0].since)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), f.calls[2].until)
	for _, w := range f.calls {
		assert.Equal(t, day, w.until.Sub(w.since))
	}
}

func TestArchiver_RunStopsOnError(t *testing.T) {
	f := &fakeBlobArchiver{counts: map[string]int64{"2026-03-08": 1}, failOn: "2026-03-09"}
	a := newTestArchiver(f, 3, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC))

	n, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2026-03-09")
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.calls, 2)
}

func TestParseCron_Next(t *testing.T) {
	base := time.Date(2026, 3, 11, 14, 30, 15, 0, time.UTC)
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 11, 14, 31, 0, 0, time.UTC)},
		{"15 3 * * *", time.Date(2026, 3, 12, 3, 15, 0, 0, time.UTC)},
		{"*/20 * * * *", time.Date(2026, 3, 11, 14, 40, 0, 0, time.UTC)},
		{"0 9-17 * * 1-5", time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"30 6 29 2 *", time.Date(2028, 2, 29, 6, 30, 0, 0, time.UTC)},
		{"0 12 * 12 0", time.Date(2026, 12, 6, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := parseCron(tt.expr)
			require.NoError(t, err)
			got, err := c.next(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCron_Rejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "a * * * *", "5-1 * * * *", "61 25 * * *", "0 0 31 2 *", "0 0 30 2 *"} {
		assert.Error(t, ValidateCron(expr), expr)
	}
}

func TestValidateCron_Accepts(t *testing.T) {
	for _, expr := range []string{"15 0 * * *", "*/5 * * * *", "0 0 29 2 *", "0 3 1-7 * 1"} {
		assert.NoError(t, ValidateCron(expr), expr)
	}
}

func TestArchiver_RunCronStopsOnCancel(t *testing.T) {
	a := newTestArchiver(&fakeBlobArchiver{}, 1, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.RunCron(ctx, "0 3 * * *"), context.Canceled)
}
