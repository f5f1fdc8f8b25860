package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// RodConfig controls how RodDriver launches Chromium.
type RodConfig struct {
	NoSandbox  bool
	BrowserBin string
	Proxy      string

	// AcceptLanguage is sent on every request; empty leaves the default.
	AcceptLanguage string

	// StableWait is how long the DOM must stay unchanged for WaitLoad.
	StableWait time.Duration

	// BlockedResourceTypes lists resource types to fail ("Image", "Font", "Media").
	BlockedResourceTypes []string
}

// domSettleCap bounds how long WaitLoad waits for the DOM to stop changing.
const domSettleCap = 5 * time.Second

// RodDriver launches a dedicated headless Chromium per session.
type RodDriver struct {
	cfg RodConfig
}

// NewRodDriver creates a RodDriver.
func NewRodDriver(cfg RodConfig) *RodDriver {
	if cfg.StableWait <= 0 {
		cfg.StableWait = 300 * time.Millisecond
	}
	return &RodDriver{cfg: cfg}
}

func (d *RodDriver) Name() string { return "rod" }

// Launch starts Chromium with automation-detection flags removed, opens a
// page with the requested viewport and user agent, and injects the
// stealth script before any navigation. ctx bounds the browser download,
// process start and page setup; the session itself outlives it.
func (d *RodDriver) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(d.cfg.NoSandbox)

	if d.cfg.BrowserBin != "" {
		l = l.Bin(d.cfg.BrowserBin)
	}
	if d.cfg.Proxy != "" {
		l = l.Proxy(d.cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.UserAgent != "" {
		l.Set(flags.Flag("user-agent"), opts.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	// Dial with ctx but hand rod a ready client, so the browser's event
	// loop is not tied to the launch deadline.
	client, err := cdp.StartWithURL(ctx, controlURL, nil)
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	browser := rod.New().Client(client)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	s := &rodSession{browser: browser, launcher: l, stableWait: d.cfg.StableWait}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page.Context(context.Background())

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}

	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: d.cfg.AcceptLanguage,
		}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	s.router = setupHijack(s.page, d.cfg.BlockedResourceTypes)

	if d.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Accept-Language": gson.New(d.cfg.AcceptLanguage)},
		}.Call(page)
	}

	return s, nil
}

type rodSession struct {
	browser    *rod.Browser
	launcher   *launcher.Launcher
	page       *rod.Page
	router     *rod.HijackRouter
	stableWait time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Navigate(url)
}

func (s *rodSession) WaitLoad(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.WaitLoad(); err != nil {
		return err
	}
	// Network-idle waits use the Fetch domain, which clashes with the
	// hijack router, so settle on DOM stability instead. A page that keeps
	// mutating is used as-is once domSettleCap runs out.
	stable := p.Timeout(domSettleCap)
	err := stable.WaitDOMStable(s.stableWait, 0.1)
	stable.CancelTimeout()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Debug("DOM did not settle, proceeding with current page", "error", err)
	}
	return nil
}

func (s *rodSession) Find(ctx context.Context, loc Locator) (Element, error) {
	els, err := s.query(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, ErrNotFound
	}
	return &rodElement{el: els[0]}, nil
}

func (s *rodSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	els, err := s.query(ctx, loc)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// query runs a single, non-waiting lookup. Rod's Elements* helpers return
// an empty slice rather than retrying, which is what the resolver needs.
func (s *rodSession) query(ctx context.Context, loc Locator) (rod.Elements, error) {
	p := s.page.Context(ctx)
	switch loc.Kind {
	case KindCSS:
		return p.Elements(loc.Expr)
	case KindXPath:
		return p.ElementsX(loc.Expr)
	case KindText:
		css := loc.Expr
		if css == "" {
			css = "*"
		}
		els, err := p.Elements(css)
		if err != nil {
			return nil, err
		}
		var matched rod.Elements
		for _, el := range els {
			txt, err := el.Text()
			if err != nil {
				continue
			}
			if strings.Contains(txt, loc.Text) {
				matched = append(matched, el)
			}
		}
		return matched, nil
	default:
		return nil, fmt.Errorf("unsupported locator kind %q", loc.Kind)
	}
}

// Close closes the page and kills the browser process. Safe to call more
// than once; only the first call does any work.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				slog.Debug("page close failed", "error", err)
			}
		}
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return s.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Type(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return err
	}
	return el.Input(text)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
