package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oi-breakout-bot/internal/types"
)

func testParams() Params {
	return Params{
		MaxLTP:       10000,
		MaxOptionLTP: 2000,
		StaleAfter:   10 * time.Second,
		DropAfter:    30 * time.Second,
	}
}

func TestApplyRejectsInvalidTicks(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()

	cases := []struct {
		name string
		tick types.Tick
	}{
		{"empty symbol", types.Tick{Symbol: "", LTP: 120}},
		{"zero ltp", types.Tick{Symbol: "NIFTY2590224650CE", LTP: 0}},
		{"negative ltp", types.Tick{Symbol: "NIFTY2590224650CE", LTP: -5}},
		{"above max ltp", types.Tick{Symbol: "NIFTY2590224650CE", LTP: 10001}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, h.apply(ctx, tc.tick))
		})
	}
	assert.Equal(t, uint64(len(cases)), h.Rejected())
	assert.Empty(t, h.snapshot())
}

func TestApplyOptionValidation(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()

	// Call marker present but not as the suffix.
	assert.False(t, h.apply(ctx, types.Tick{Symbol: "NIFTY25SEPCE24650X", LTP: 120}))

	// Premium bound is exclusive at the top.
	assert.False(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650PE", LTP: 2000}))
	assert.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650PE", LTP: 1999.95}))

	// Non-option symbols only face the outer bound.
	assert.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY25SEPFUT", LTP: 9000}))
}

func TestApplyUpdatesRecord(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()
	base := time.Date(2025, 7, 4, 9, 20, 0, 0, time.UTC)

	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5, PrevClose: 98.2, Ts: base}))
	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650CE", LTP: 103.0, Ts: base.Add(2 * time.Second)}))

	rec, ok := h.records["NIFTY2590224650CE"]
	require.True(t, ok)
	assert.Equal(t, 103.0, rec.LTP)
	assert.Equal(t, 98.2, rec.PrevClose)
	assert.Equal(t, int64(2), rec.Ticks)
	assert.Equal(t, base.Add(2*time.Second), rec.UpdatedAt)
}

func TestHealthMap(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()
	now := time.Date(2025, 7, 4, 9, 30, 0, 0, time.UTC)

	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5, Ts: now.Add(-2 * time.Second)}))
	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650PE", LTP: 88.0, Ts: now.Add(-11 * time.Second)}))

	health := h.healthMap(now, []string{"NIFTY2590224650CE", "NIFTY2590224650PE", "NIFTY2590224700CE"})
	assert.Equal(t, "Healthy", health["NIFTY2590224650CE"])
	assert.Equal(t, "Data stale (11.0 seconds old)", health["NIFTY2590224650PE"])
	assert.Equal(t, "No data received", health["NIFTY2590224700CE"])
}

func TestRemoveStale(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()
	now := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)

	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5, Ts: now.Add(-31 * time.Second)}))
	require.True(t, h.apply(ctx, types.Tick{Symbol: "NIFTY2590224650PE", LTP: 88.0, Ts: now.Add(-5 * time.Second)}))

	removed := h.removeStale(now)
	assert.Equal(t, []string{"NIFTY2590224650CE"}, removed)

	snap := h.snapshot()
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "NIFTY2590224650PE")
}

func TestSubscribeFanout(t *testing.T) {
	h := NewHub(testParams())
	ctx := context.Background()

	all := h.Subscribe("all", 4)
	callsOnly := h.Subscribe("calls", 4, "NIFTY2590224650CE")

	ce := types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5}
	pe := types.Tick{Symbol: "NIFTY2590224650PE", LTP: 88.0}
	for _, tick := range []types.Tick{ce, pe} {
		require.True(t, h.apply(ctx, tick))
		h.fanout(tick)
	}

	assert.Equal(t, ce, <-all)
	assert.Equal(t, pe, <-all)
	assert.Equal(t, ce, <-callsOnly)
	select {
	case extra := <-callsOnly:
		t.Fatalf("filtered subscriber received %+v", extra)
	default:
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	h := NewHub(testParams())

	ch := h.Subscribe("slow", 1)
	for i := 0; i < 3; i++ {
		h.fanout(types.Tick{Symbol: "NIFTY2590224650CE", LTP: 100 + float64(i)})
	}

	assert.Equal(t, uint64(2), h.DroppedFanout())
	first := <-ch
	assert.Equal(t, 100.0, first.LTP)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(testParams())

	ch := h.Subscribe("once", 1)
	h.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	h.fanout(types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5})
	assert.Equal(t, uint64(0), h.DroppedFanout())
}

func TestIngestDropsWhenFull(t *testing.T) {
	h := NewHub(testParams())

	tick := types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5}
	for i := 0; i < 10000 && h.DroppedIngest() == 0; i++ {
		h.Ingest(tick)
	}
	assert.NotZero(t, h.DroppedIngest())
}

func TestRunServesQueries(t *testing.T) {
	h := NewHub(testParams())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	sub := h.Subscribe("watcher", 4)
	h.Ingest(types.Tick{Symbol: "NIFTY2590224650CE", LTP: 101.5, PrevClose: 98.2})

	require.Eventually(t, func() bool {
		_, ok := h.Latest(ctx, "NIFTY2590224650CE")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec, ok := h.Latest(ctx, "NIFTY2590224650CE")
	require.True(t, ok)
	assert.Equal(t, 101.5, rec.LTP)

	snap := h.Snapshot(ctx)
	assert.Contains(t, snap, "NIFTY2590224650CE")

	health := h.Health(ctx, "NIFTY2590224650CE", "NIFTY2590224650PE")
	assert.Equal(t, "Healthy", health["NIFTY2590224650CE"])
	assert.Equal(t, "No data received", health["NIFTY2590224650PE"])

	tick := <-sub
	assert.Equal(t, 101.5, tick.LTP)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after cancel")
	}

	_, open := <-sub
	assert.False(t, open)
}
