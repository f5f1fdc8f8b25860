package scraper

import (
	"context"
	"time"

	"github.com/use-agent/trendscraper/engine"
	"github.com/use-agent/trendscraper/models"
)

// Clock abstracts time so polling and settle delays can be simulated.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolver polls a page for the first locator, in priority order, that
// matches an element.
type Resolver struct {
	clock    Clock
	interval time.Duration
}

// NewResolver creates a Resolver polling every interval.
func NewResolver(clock Clock, interval time.Duration) *Resolver {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Resolver{clock: clock, interval: interval}
}

// Resolve tries every candidate once per tick and returns the first match.
// Lookup errors count as "not here yet". If nothing matches by timeout it
// returns a *models.ResolutionFailure listing all candidates; the last
// tick happens exactly at the timeout boundary.
func (r *Resolver) Resolve(ctx context.Context, s engine.Session, candidates []engine.Locator, timeout time.Duration) (engine.Element, error) {
	deadline := r.clock.Now().Add(timeout)

	for {
		for _, loc := range candidates {
			el, err := s.Find(ctx, loc)
			if err == nil && el != nil {
				return el, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := r.clock.Now()
		if !now.Before(deadline) {
			return nil, &models.ResolutionFailure{
				Candidates: locatorStrings(candidates),
				Timeout:    timeout,
			}
		}

		wait := r.interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func locatorStrings(locs []engine.Locator) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}
