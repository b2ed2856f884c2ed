package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/store/memory"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memObjects) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memObjects) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestArchiver_ArchivesClosedWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPositionStore()
	audit := memory.NewAuditStore()
	t0 := time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)

	for i, asset := range []string{"a", "b", "c"} {
		require.NoError(t, store.Open(ctx, domain.Position{
			ID:         asset + "-id",
			AssetID:    asset,
			EntryValue: decimal.NewFromInt(100),
			Quantity:   decimal.RequireFromString("0.01"),
			OpenedAt:   t0.Add(time.Duration(i) * time.Minute),
		}, 0))
	}
	_, err := store.Close(ctx, "a-id", decimal.NewFromInt(150), domain.CloseReasonProfitTarget, t0.Add(10*time.Minute))
	require.NoError(t, err)
	_, err = store.Close(ctx, "b-id", decimal.NewFromInt(40), domain.CloseReasonLossThreshold, t0.Add(20*time.Minute))
	require.NoError(t, err)
	// Outside the window.
	_, err = store.Close(ctx, "c-id", decimal.NewFromInt(40), domain.CloseReasonLossThreshold, t0.Add(2*time.Hour))
	require.NoError(t, err)

	objs := newMemObjects()
	a := NewArchiver(objs, store, audit, "")
	since, until := t0, t0.Add(time.Hour)

	n, err := a.ArchiveClosed(ctx, since, until)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	path := a.Path(since, until)
	assert.Equal(t, "archive/positions/2026/04/05/100000_20260405T110000.jsonl", path)
	assert.Equal(t, "application/x-ndjson", objs.types[path])

	var recs []archiveRecord
	sc := bufio.NewScanner(bytes.NewReader(objs.objects[path]))
	for sc.Scan() {
		var r archiveRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].AssetID)
	assert.Equal(t, "150", recs[0].ExitValue)
	assert.Equal(t, "0.005", recs[0].RealizedPnL)
	assert.Equal(t, "loss_threshold", recs[1].CloseReason)

	// Re-running the same window is a no-op.
	n, err = a.ArchiveClosed(ctx, since, until)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, _ := audit.List(ctx, domain.ListOpts{})
	require.Len(t, entries, 1)
	assert.Equal(t, "archive_positions", entries[0].Event)
}

func TestArchiver_EmptyWindowWritesNothing(t *testing.T) {
	objs := newMemObjects()
	a := NewArchiver(objs, memory.NewPositionStore(), memory.NewAuditStore(), "x")

	n, err := a.ArchiveClosed(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, objs.objects)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
