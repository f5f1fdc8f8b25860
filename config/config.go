package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/use-agent/trendscraper/models"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Browser BrowserConfig
	Target  TargetConfig
	Timing  TimingConfig
	Store   StoreConfig
	Limits  LimitsConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Log     LogConfig

	// Env is the deployment environment; "development" exposes stack
	// traces in error responses.
	Env string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 3000
	Mode string // "debug", "release", "test"; default: "release"

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers
	// gin honours for ClientIP. Empty trusts none.
	TrustedProxies []string
}

// BrowserConfig controls the browser engine.
type BrowserConfig struct {
	// Engine selects the driver: "rod" (default), "chromedp" or "http".
	Engine string

	Headless   bool // default: true
	NoSandbox  bool // default: false
	BrowserBin string
	Proxy      string

	// UserAgent is a desktop Chrome user agent by default.
	UserAgent string

	ViewportWidth  int // default: 1920
	ViewportHeight int // default: 1080

	// HumanInput makes the chromedp engine click and type at human pace.
	HumanInput bool // default: false

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// TargetConfig holds the target site's entry points and credentials.
type TargetConfig struct {
	LoginURL   string
	ExploreURL string
	Username   string
	Password   string
}

// TimingConfig holds every polling interval, timeout and settle delay.
type TimingConfig struct {
	PollInterval      time.Duration // default: 500ms
	ResolveTimeout    time.Duration // default: 10s
	PasswordTimeout   time.Duration // default: 10s
	TrendsTimeout     time.Duration // default: 30s
	NavigationTimeout time.Duration // default: 30s
	ActionTimeout     time.Duration // default: 10s
	LaunchTimeout     time.Duration // default: 60s

	LoginPageSettle  time.Duration // default: 3s
	TypeSettle       time.Duration // default: 1s
	ClickSettle      time.Duration // default: 2s
	LoginSettle      time.Duration // default: 5s
	NavigationSettle time.Duration // default: 3s
}

// StoreConfig controls the document store.
type StoreConfig struct {
	MongoURI   string
	Database   string        // default: "twitter_trends"
	Collection string        // default: "trends"
	Timeout    time.Duration // default: 10s
}

// LimitsConfig bounds how many scrapes run at once and how often a
// client may start one.
type LimitsConfig struct {
	// MaxSessions caps concurrent browser sessions; 0 disables the cap.
	MaxSessions int // default: 2

	// RequestsPerSecond is the sustained scrape rate per client IP.
	RequestsPerSecond float64 // default: 0.2

	// Burst is the maximum burst size per client IP.
	Burst int // default: 2
}

// AuthConfig controls API key authentication of the scrape endpoints.
type AuthConfig struct {
	// APIKeys is the list of accepted keys; empty leaves the endpoints open.
	APIKeys []string
}

// WebhookConfig controls run notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Load reads a .env file if present, then configuration from environment
// variables with sane defaults. Required secrets are not checked here;
// call Validate before starting a run.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("TRENDS_HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 3000),
			Mode: envOr("TRENDS_MODE", "release"),

			TrustedProxies: envSliceOr("TRENDS_TRUSTED_PROXIES", nil),
		},
		Browser: BrowserConfig{
			Engine:         envOr("TRENDS_ENGINE", "rod"),
			Headless:       envBoolOr("TRENDS_HEADLESS", true),
			NoSandbox:      envBoolOr("TRENDS_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("TRENDS_BROWSER_BIN"),
			Proxy:          os.Getenv("TRENDS_PROXY"),
			HumanInput:     envBoolOr("TRENDS_HUMAN_INPUT", false),
			UserAgent:      envOr("TRENDS_USER_AGENT", defaultUserAgent),
			ViewportWidth:  envViewportOr("TRENDS_VIEWPORT", 0, 1920),
			ViewportHeight: envViewportOr("TRENDS_VIEWPORT", 1, 1080),
			BlockedResourceTypes: envSliceOr("TRENDS_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Target: TargetConfig{
			LoginURL:   envOr("TRENDS_LOGIN_URL", "https://x.com/i/flow/login"),
			ExploreURL: envOr("TRENDS_EXPLORE_URL", "https://x.com/explore"),
			Username:   os.Getenv("TWITTER_USERNAME"),
			Password:   os.Getenv("TWITTER_PASSWORD"),
		},
		Timing: TimingConfig{
			PollInterval:      envDurationOr("TRENDS_POLL_INTERVAL", 500*time.Millisecond),
			ResolveTimeout:    envDurationOr("TRENDS_RESOLVE_TIMEOUT", 10*time.Second),
			PasswordTimeout:   envDurationOr("TRENDS_PASSWORD_TIMEOUT", 10*time.Second),
			TrendsTimeout:     envDurationOr("TRENDS_TRENDS_TIMEOUT", 30*time.Second),
			NavigationTimeout: envDurationOr("TRENDS_NAV_TIMEOUT", 30*time.Second),
			ActionTimeout:     envDurationOr("TRENDS_ACTION_TIMEOUT", 10*time.Second),
			LaunchTimeout:     envDurationOr("TRENDS_LAUNCH_TIMEOUT", 60*time.Second),
			LoginPageSettle:   envDurationOr("TRENDS_SETTLE_LOGIN_PAGE", 3*time.Second),
			TypeSettle:        envDurationOr("TRENDS_SETTLE_TYPE", 1*time.Second),
			ClickSettle:       envDurationOr("TRENDS_SETTLE_CLICK", 2*time.Second),
			LoginSettle:       envDurationOr("TRENDS_SETTLE_LOGIN", 5*time.Second),
			NavigationSettle:  envDurationOr("TRENDS_SETTLE_NAVIGATION", 3*time.Second),
		},
		Store: StoreConfig{
			MongoURI:   os.Getenv("MONGO_URI"),
			Database:   envOr("TRENDS_MONGO_DATABASE", "twitter_trends"),
			Collection: envOr("TRENDS_MONGO_COLLECTION", "trends"),
			Timeout:    envDurationOr("TRENDS_STORE_TIMEOUT", 10*time.Second),
		},
		Limits: LimitsConfig{
			MaxSessions:       envIntOr("TRENDS_MAX_SESSIONS", 2),
			RequestsPerSecond: envFloatOr("TRENDS_RATE_RPS", 0.2),
			Burst:             envIntOr("TRENDS_RATE_BURST", 2),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("TRENDS_API_KEYS", nil),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("TRENDS_WEBHOOK_URL"),
			Secret: os.Getenv("TRENDS_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("TRENDS_LOG_LEVEL", "info"),
			Format: envOr("TRENDS_LOG_FORMAT", "json"),
		},
		Env: envOr("TRENDS_ENV", "production"),
	}
}

// Validate reports missing required settings as a *models.ConfigurationError,
// in the order MONGO_URI, TWITTER_USERNAME, TWITTER_PASSWORD.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.Target.Username == "" {
		missing = append(missing, "TWITTER_USERNAME")
	}
	if c.Target.Password == "" {
		missing = append(missing, "TWITTER_PASSWORD")
	}
	if len(missing) > 0 {
		return &models.ConfigurationError{Missing: missing}
	}
	return nil
}

// Development reports whether error details may be exposed.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envViewportOr reads a "WIDTHxHEIGHT" value and returns component idx
// (0 = width, 1 = height).
func envViewportOr(key string, idx int, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(strings.ToLower(v), "x")
	if len(parts) != 2 {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[idx]))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
