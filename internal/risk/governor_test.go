package risk

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGovConfig() GovernorConfig {
	return GovernorConfig{
		MaxDailyLoss:           500,
		MaxDailyTrades:         100,
		MaxConsecutiveFailures: 5,
		PauseDuration:          30 * time.Minute,
	}
}

// fakeStateStore is an in-memory RiskStateStore.
type fakeStateStore struct {
	mu    sync.Mutex
	state domain.RiskState
	saved int
	has   bool
}

func (f *fakeStateStore) Load(_ context.Context) (domain.RiskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return domain.RiskState{}, domain.ErrNotFound
	}
	return f.state, nil
}

func (f *fakeStateStore) Save(_ context.Context, s domain.RiskState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	f.has = true
	f.saved++
	return nil
}

// clock is a movable test time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGovernor(cfg GovernorConfig, store domain.RiskStateStore) (*Governor, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewGovernor(cfg, store, nil, nil, clk.Now, testLogger()), clk
}

func TestGovernor_ConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	g, clk := newTestGovernor(testGovConfig(), nil)

	t.Run("trips after the failure limit", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			g.RecordOutcome(ctx, false, -5)
			assert.True(t, g.MayExecute(ctx), "failure %d should not trip yet", i+1)
		}
		g.RecordOutcome(ctx, false, -5)
		assert.False(t, g.MayExecute(ctx))

		state := g.State()
		assert.True(t, state.CircuitOpen)
		assert.Equal(t, 5, state.ConsecutiveFailures)
		assert.Contains(t, state.PauseReason, "consecutive failures")
	})

	t.Run("stays paused until the window elapses", func(t *testing.T) {
		clk.Advance(29 * time.Minute)
		assert.False(t, g.MayExecute(ctx))
	})

	t.Run("reopens and clears the failure counter", func(t *testing.T) {
		clk.Advance(2 * time.Minute)
		assert.True(t, g.MayExecute(ctx))

		state := g.State()
		assert.False(t, state.CircuitOpen)
		assert.Equal(t, 0, state.ConsecutiveFailures)
		assert.Empty(t, state.PauseReason)
	})
}

func TestGovernor_FailureCounterResetOnSuccess(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGovernor(testGovConfig(), nil)

	for i := 0; i < 4; i++ {
		g.RecordOutcome(ctx, false, -5)
	}
	g.RecordOutcome(ctx, true, 20)
	assert.Equal(t, 0, g.State().ConsecutiveFailures)

	// the streak starts over, so four more failures do not trip
	for i := 0; i < 4; i++ {
		g.RecordOutcome(ctx, false, -5)
	}
	assert.True(t, g.MayExecute(ctx))
}

func TestGovernor_DailyLoss(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGovernor(testGovConfig(), nil)

	g.RecordOutcome(ctx, true, -499)
	assert.True(t, g.MayExecute(ctx))

	g.RecordOutcome(ctx, true, -10)
	assert.False(t, g.MayExecute(ctx))
	assert.Contains(t, g.State().PauseReason, "daily loss")
}

func TestGovernor_DailyTradeCap(t *testing.T) {
	ctx := context.Background()
	cfg := testGovConfig()
	cfg.MaxDailyTrades = 3
	g, clk := newTestGovernor(cfg, nil)

	for i := 0; i < 3; i++ {
		require.True(t, g.MayExecute(ctx))
		g.RecordOutcome(ctx, true, 10)
	}

	// cap reached: execution blocked, but the breaker is not open
	assert.False(t, g.MayExecute(ctx))
	assert.False(t, g.State().CircuitOpen)

	// next UTC day the counters reset
	clk.Advance(24 * time.Hour)
	assert.True(t, g.MayExecute(ctx))
	state := g.State()
	assert.Equal(t, 0, state.DailyTrades)
	assert.Equal(t, 0.0, state.DailyPnL)
}

func TestGovernor_PauseAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	cfg := testGovConfig()
	cfg.PauseDuration = 14 * time.Hour
	g, clk := newTestGovernor(cfg, nil)

	g.Pause(ctx, "maintenance")
	assert.False(t, g.MayExecute(ctx))

	// the date rolls over but the pause window has not elapsed
	clk.Advance(13 * time.Hour)
	assert.False(t, g.MayExecute(ctx))
	assert.Equal(t, 0, g.State().DailyTrades)

	clk.Advance(2 * time.Hour)
	assert.True(t, g.MayExecute(ctx))
}

func TestGovernor_ExplicitPause(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGovernor(testGovConfig(), nil)

	g.Pause(ctx, "")
	state := g.State()
	assert.True(t, state.CircuitOpen)
	assert.Equal(t, "operator pause request", state.PauseReason)
}

func TestGovernor_Persistence(t *testing.T) {
	ctx := context.Background()
	store := &fakeStateStore{}
	g, clk := newTestGovernor(testGovConfig(), store)

	g.RecordOutcome(ctx, true, 42)
	require.True(t, store.has)
	assert.Equal(t, 42.0, store.state.DailyPnL)

	// a fresh governor sharing the clock restores the persisted counters
	g2 := NewGovernor(testGovConfig(), store, nil, nil, clk.Now, testLogger())
	require.NoError(t, g2.Restore(ctx))
	state := g2.State()
	assert.Equal(t, 1, state.DailyTrades)
	assert.Equal(t, 42.0, state.DailyPnL)
}

func TestGovernor_RestoreMissingRow(t *testing.T) {
	g, _ := newTestGovernor(testGovConfig(), &fakeStateStore{})
	require.NoError(t, g.Restore(context.Background()))
	assert.False(t, g.State().CircuitOpen)
}
