package service

import (
	"fmt"
	"log/slog"

	"github.com/use-agent/trendscraper/config"
	"github.com/use-agent/trendscraper/engine"
	"github.com/use-agent/trendscraper/scraper"
	"github.com/use-agent/trendscraper/store"
	"github.com/use-agent/trendscraper/webhook"
)

// NewDriver returns the browser engine selected by cfg.Browser.Engine.
func NewDriver(cfg config.BrowserConfig) (engine.Driver, error) {
	switch cfg.Engine {
	case "", "rod":
		return engine.NewRodDriver(engine.RodConfig{
			NoSandbox:            cfg.NoSandbox,
			BrowserBin:           cfg.BrowserBin,
			Proxy:                cfg.Proxy,
			AcceptLanguage:       "en-US,en;q=0.9",
			BlockedResourceTypes: cfg.BlockedResourceTypes,
		}), nil
	case "chromedp":
		return engine.NewCDPDriver(engine.CDPConfig{
			NoSandbox:  cfg.NoSandbox,
			BrowserBin: cfg.BrowserBin,
			Proxy:      cfg.Proxy,
			HumanInput: cfg.HumanInput,
		}), nil
	case "http":
		return engine.NewHTTPDriver(nil), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want rod, chromedp or http)", cfg.Engine)
	}
}

// SequencerOptions maps configuration onto scraper.Options.
func SequencerOptions(cfg *config.Config) scraper.Options {
	t := cfg.Timing
	return scraper.Options{
		LoginURL:   cfg.Target.LoginURL,
		ExploreURL: cfg.Target.ExploreURL,
		Launch: engine.LaunchOptions{
			Viewport: engine.Viewport{
				Width:  cfg.Browser.ViewportWidth,
				Height: cfg.Browser.ViewportHeight,
			},
			UserAgent: cfg.Browser.UserAgent,
			Headless:  cfg.Browser.Headless,
		},
		Timing: scraper.Timing{
			PollInterval:      t.PollInterval,
			ResolveTimeout:    t.ResolveTimeout,
			PasswordTimeout:   t.PasswordTimeout,
			TrendsTimeout:     t.TrendsTimeout,
			NavigationTimeout: t.NavigationTimeout,
			ActionTimeout:     t.ActionTimeout,
			LaunchTimeout:     t.LaunchTimeout,
			LoginPageSettle:   t.LoginPageSettle,
			TypeSettle:        t.TypeSettle,
			ClickSettle:       t.ClickSettle,
			LoginSettle:       t.LoginSettle,
			NavigationSettle:  t.NavigationSettle,
		},
		Selectors: scraper.DefaultSelectors(),
		Logger:    slog.Default(),
	}
}

// FromConfig assembles a Service with the configured engine, a MongoDB
// sink and an optional webhook notifier.
func FromConfig(cfg *config.Config) (*Service, engine.Driver, error) {
	driver, err := NewDriver(cfg.Browser)
	if err != nil {
		return nil, nil, err
	}
	seq := scraper.NewSequencer(driver, SequencerOptions(cfg))
	sink := store.NewMongoSink(store.MongoConfig{
		URI:        cfg.Store.MongoURI,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
		Timeout:    cfg.Store.Timeout,
	})
	notifier := webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret)
	return New(cfg, seq, sink, notifier), driver, nil
}
