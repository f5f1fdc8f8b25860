package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/trendscraper/engine"
	"github.com/use-agent/trendscraper/models"
)

var (
	locA = engine.CSS(`input[autocomplete="username"]`)
	locB = engine.CSS(`input[name="text"]`)
	locC = engine.XPath(`//input[@name='text']`)
)

func TestResolve_FirstCandidateWinsWhenAllPresent(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	s.add(locA, &fakeElement{name: "a"})
	s.add(locB, &fakeElement{name: "b"})
	s.add(locC, &fakeElement{name: "c"})

	r := NewResolver(clock, 500*time.Millisecond)
	el, err := r.Resolve(context.Background(), s, []engine.Locator{locA, locB, locC}, 10*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "a", el.(*fakeElement).name)
	assert.Equal(t, []string{locA.String()}, s.finds, "no lower-priority lookups after a match")
	assert.Empty(t, clock.sleeps)
}

func TestResolve_PriorityOrderWithinTick(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	s.add(locB, &fakeElement{name: "b"})
	s.add(locC, &fakeElement{name: "c"})

	r := NewResolver(clock, 500*time.Millisecond)
	el, err := r.Resolve(context.Background(), s, []engine.Locator{locA, locB, locC}, 10*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "b", el.(*fakeElement).name)
	assert.Equal(t, []string{locA.String(), locB.String()}, s.finds)
}

func TestResolve_ResolvesOnThirdTick(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	s.addLater(locC, time.Second, &fakeElement{name: "c"})

	r := NewResolver(clock, 500*time.Millisecond)
	el, err := r.Resolve(context.Background(), s, []engine.Locator{locA, locB, locC}, 10*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "c", el.(*fakeElement).name)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clock.sleeps)
	assert.Len(t, s.finds, 9, "three candidates on each of three ticks")
}

func TestResolve_HigherPriorityAppearingLaterStillWins(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	s.addLater(locA, 500*time.Millisecond, &fakeElement{name: "a"})
	s.addLater(locB, 500*time.Millisecond, &fakeElement{name: "b"})

	r := NewResolver(clock, 500*time.Millisecond)
	el, err := r.Resolve(context.Background(), s, []engine.Locator{locA, locB}, 10*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "a", el.(*fakeElement).name)
}

func TestResolve_TimeoutExactlyAtBoundary(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	s := newFakeSession(clock)

	r := NewResolver(clock, 500*time.Millisecond)
	candidates := []engine.Locator{locA, locB, locC}
	_, err := r.Resolve(context.Background(), s, candidates, 1200*time.Millisecond)

	var failure *models.ResolutionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, []string{locA.String(), locB.String(), locC.String()}, failure.Candidates)
	assert.Equal(t, 1200*time.Millisecond, failure.Timeout)
	assert.Equal(t, 1200*time.Millisecond, clock.Now().Sub(start), "fails at, not before, the timeout")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 200 * time.Millisecond}, clock.sleeps)
}

func TestResolve_ElementAppearingAtBoundaryIsFound(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	s.addLater(locB, time.Second, &fakeElement{name: "b"})

	r := NewResolver(clock, 300*time.Millisecond)
	el, err := r.Resolve(context.Background(), s, []engine.Locator{locA, locB}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "b", el.(*fakeElement).name)
}

func TestResolve_ContextCanceled(t *testing.T) {
	clock := newFakeClock()
	s := newFakeSession(clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(clock, 500*time.Millisecond)
	_, err := r.Resolve(ctx, s, []engine.Locator{locA}, 10*time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRealClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RealClock().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, RealClock().Sleep(context.Background(), 0))
}
