package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// CDPConfig controls how CDPDriver starts Chrome.
type CDPConfig struct {
	NoSandbox  bool
	BrowserBin string
	Proxy      string

	// HumanInput replaces synthetic clicks and keystrokes with pointer
	// moves and per-key events at human pace.
	HumanInput bool
}

// CDPDriver drives Chrome over the DevTools protocol with chromedp. It is
// an alternative to RodDriver for hosts where rod's launcher cannot fetch
// or find a browser.
type CDPDriver struct {
	cfg CDPConfig
}

// NewCDPDriver creates a CDPDriver.
func NewCDPDriver(cfg CDPConfig) *CDPDriver {
	return &CDPDriver{cfg: cfg}
}

func (d *CDPDriver) Name() string { return "chromedp" }

// allocatorOptions builds the Chrome command line for opts.
func (d *CDPDriver) allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	o := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		o = append(o, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.UserAgent != "" {
		o = append(o, chromedp.UserAgent(opts.UserAgent))
	}
	if d.cfg.NoSandbox {
		o = append(o, chromedp.NoSandbox)
	}
	if d.cfg.BrowserBin != "" {
		o = append(o, chromedp.ExecPath(d.cfg.BrowserBin))
	}
	if d.cfg.Proxy != "" {
		o = append(o, chromedp.ProxyServer(d.cfg.Proxy))
	}
	return o
}

// Launch starts Chrome and opens one tab. The browser lives until Close;
// ctx only bounds the start-up.
func (d *CDPDriver) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &cdpSession{tabCtx: tabCtx, tabCancel: tabCancel, allocCancel: allocCancel, human: d.cfg.HumanInput}

	stop := context.AfterFunc(ctx, allocCancel)
	var err error
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		err = chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)))
	} else {
		err = chromedp.Run(tabCtx)
	}
	stop()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("cdp_engine: start browser: %w", err)
	}
	return s, nil
}

type cdpSession struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	human       bool

	closeOnce sync.Once
}

// bind derives a context that runs actions on the tab but ends with ctx.
func (s *cdpSession) bind(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *cdpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done := s.bind(ctx)
	defer done()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *cdpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *cdpSession) WaitLoad(ctx context.Context) error {
	return s.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *cdpSession) Find(ctx context.Context, loc Locator) (Element, error) {
	els, err := s.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return els[0], nil
}

func (s *cdpSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	var nodes []*cdp.Node
	switch loc.Kind {
	case KindCSS:
		if err := s.run(ctx, chromedp.Nodes(loc.Expr, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
			return nil, err
		}
	case KindXPath:
		if err := s.run(ctx, chromedp.Nodes(loc.Expr, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
			return nil, err
		}
	case KindText:
		css := loc.Expr
		if css == "" {
			css = "*"
		}
		var all []*cdp.Node
		if err := s.run(ctx, chromedp.Nodes(css, &all, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
			return nil, err
		}
		for _, n := range all {
			var txt string
			if err := s.run(ctx, chromedp.TextContent([]cdp.NodeID{n.NodeID}, &txt, chromedp.ByNodeID)); err != nil {
				continue
			}
			if strings.Contains(txt, loc.Text) {
				nodes = append(nodes, n)
			}
		}
	default:
		return nil, fmt.Errorf("cdp_engine: unsupported locator kind %q", loc.Kind)
	}

	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = &cdpElement{session: s, id: n.NodeID}
	}
	return out, nil
}

// Close closes the tab and stops the browser process. Only the first call
// does any work.
func (s *cdpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.tabCtx)
		s.tabCancel()
		s.allocCancel()
	})
	return err
}

type cdpElement struct {
	session *cdpSession
	id      cdp.NodeID
}

func (e *cdpElement) ids() []cdp.NodeID { return []cdp.NodeID{e.id} }

func (e *cdpElement) Type(ctx context.Context, text string) error {
	if !e.session.human {
		return e.session.run(ctx,
			chromedp.Focus(e.ids(), chromedp.ByNodeID),
			chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID),
		)
	}
	actions := append([]chromedp.Action{chromedp.Focus(e.ids(), chromedp.ByNodeID)}, keystrokes(text)...)
	return e.session.run(ctx, actions...)
}

func (e *cdpElement) Click(ctx context.Context) error {
	if !e.session.human {
		return e.session.run(ctx, chromedp.Click(e.ids(), chromedp.ByNodeID))
	}
	return e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(e.id).Do(ctx)
		if err != nil {
			return err
		}
		x, y, err := boxCenter(box.Content)
		if err != nil {
			return err
		}
		return pointerClick(ctx, x, y)
	}))
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var txt string
	if err := e.session.run(ctx, chromedp.TextContent(e.ids(), &txt, chromedp.ByNodeID)); err != nil {
		return "", err
	}
	return strings.TrimSpace(txt), nil
}

// boxCenter returns the centre of a content quad (x1,y1 .. x4,y4).
func boxCenter(q dom.Quad) (float64, float64, error) {
	if len(q) < 8 {
		return 0, 0, fmt.Errorf("cdp_engine: invalid box model")
	}
	return (q[0] + q[2]) / 2, (q[1] + q[5]) / 2, nil
}

// pointerClick moves to (x, y) with a little jitter, then presses and
// releases the left button with a human-length pause in between.
func pointerClick(ctx context.Context, x, y float64) error {
	x += (rand.Float64() - 0.5) * 6
	y += (rand.Float64() - 0.5) * 6

	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
		return err
	}
	if err := sleepCtx(ctx, time.Duration(50+rand.Intn(150))*time.Millisecond); err != nil {
		return err
	}
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(ctx); err != nil {
		return err
	}
	if err := sleepCtx(ctx, time.Duration(30+rand.Intn(90))*time.Millisecond); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).
		WithClickCount(1).
		Do(ctx)
}

// keystrokes types text one key at a time with 40-60ms gaps, shorter for
// repeated characters.
func keystrokes(text string) []chromedp.Action {
	chars := []rune(text)
	actions := make([]chromedp.Action, 0, 2*len(chars))
	for i, ch := range chars {
		actions = append(actions, chromedp.KeyEvent(string(ch)))
		delay := 40 + rand.Intn(20)
		if i > 0 && chars[i-1] == ch {
			delay /= 2
		}
		actions = append(actions, chromedp.Sleep(time.Duration(delay)*time.Millisecond))
	}
	return actions
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
