package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/use-agent/trendscraper/engine"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// fakeElement records interactions. A stuck element never becomes
// interactable: its actions block until ctx is done.
type fakeElement struct {
	name    string
	text    string
	textErr error
	stuck   bool
	session *fakeSession
}

func (e *fakeElement) wait(ctx context.Context) error {
	if !e.stuck {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (e *fakeElement) Type(ctx context.Context, text string) error {
	e.session.record("type:" + e.name + "=" + text)
	return e.wait(ctx)
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.session.record("click:" + e.name)
	return e.wait(ctx)
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	if err := e.wait(ctx); err != nil {
		return "", err
	}
	return e.text, e.textErr
}

// fakeSession serves elements keyed by locator string. An element becomes
// visible once the clock reaches its appearance time.
type fakeSession struct {
	clock *fakeClock

	mu       sync.Mutex
	elements map[string][]*fakeElement
	appearAt map[string]time.Time
	calls    []string
	finds    []string
	closes   int
	closeErr error
	navErr   map[string]error
}

func newFakeSession(clock *fakeClock) *fakeSession {
	return &fakeSession{
		clock:    clock,
		elements: make(map[string][]*fakeElement),
		appearAt: make(map[string]time.Time),
		navErr:   make(map[string]error),
	}
}

// add registers elements for loc, visible immediately.
func (s *fakeSession) add(loc engine.Locator, els ...*fakeElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range els {
		el.session = s
	}
	s.elements[loc.String()] = append(s.elements[loc.String()], els...)
}

// addLater registers an element for loc that appears after delay.
func (s *fakeSession) addLater(loc engine.Locator, delay time.Duration, el *fakeElement) {
	s.add(loc, el)
	s.mu.Lock()
	s.appearAt[loc.String()] = s.clock.Now().Add(delay)
	s.mu.Unlock()
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.record("navigate:" + url)
	return s.navErr[url]
}

func (s *fakeSession) WaitLoad(ctx context.Context) error { return nil }

func (s *fakeSession) visible(key string) []*fakeElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.appearAt[key]; ok && s.clock.Now().Before(at) {
		return nil
	}
	return s.elements[key]
}

func (s *fakeSession) Find(ctx context.Context, loc engine.Locator) (engine.Element, error) {
	s.mu.Lock()
	s.finds = append(s.finds, loc.String())
	s.mu.Unlock()
	els := s.visible(loc.String())
	if len(els) == 0 {
		return nil, engine.ErrNotFound
	}
	return els[0], nil
}

func (s *fakeSession) FindAll(ctx context.Context, loc engine.Locator) ([]engine.Element, error) {
	els := s.visible(loc.String())
	out := make([]engine.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// fakeDriver hands out one prepared session. A stuck driver blocks in
// Launch until ctx is done.
type fakeDriver struct {
	session   *fakeSession
	launchErr error
	stuck     bool
	launches  int
	opts      engine.LaunchOptions
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Session, error) {
	d.launches++
	d.opts = opts
	if d.stuck {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.launchErr != nil {
		return nil, d.launchErr
	}
	if d.session == nil {
		return nil, errors.New("no session prepared")
	}
	return d.session, nil
}
