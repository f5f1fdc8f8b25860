package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/trendscraper/engine"
	"github.com/use-agent/trendscraper/models"
)

// State is a position in the login → explore → extract sequence.
type State int

const (
	StateInit State = iota
	StateLaunched
	StateOnLoginPage
	StateUsernameEntered
	StateAdvancedToPassword
	StatePasswordEntered
	StateAuthenticated
	StateOnExplorePage
	StateTrendsExtracted
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"init", "launched", "on_login_page", "username_entered",
	"advanced_to_password", "password_entered", "authenticated",
	"on_explore_page", "trends_extracted", "done", "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step names, as reported in StepFailure.Step and logs.
const (
	StepLaunch        = "launch browser"
	StepOpenLogin     = "open login page"
	StepEnterUsername = "enter username"
	StepClickNext     = "click next"
	StepEnterPassword = "enter password"
	StepClickLogin    = "click log in"
	StepOpenExplore   = "open explore page"
	StepExtractTrends = "extract trends"
	StepAssemble      = "assemble result"
)

// Timing holds every wait and settle delay of the sequence.
type Timing struct {
	PollInterval      time.Duration // resolver tick
	ResolveTimeout    time.Duration // default resolver timeout
	PasswordTimeout   time.Duration
	TrendsTimeout     time.Duration
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration // each type, click or text read
	LaunchTimeout     time.Duration // browser start, including any download

	LoginPageSettle  time.Duration // after the login page loads
	TypeSettle       time.Duration // after typing into a field
	ClickSettle      time.Duration // after clicking "Next"
	LoginSettle      time.Duration // after clicking "Log in"
	NavigationSettle time.Duration // after loading the explore page
}

// DefaultTiming returns production delays.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:      500 * time.Millisecond,
		ResolveTimeout:    10 * time.Second,
		PasswordTimeout:   10 * time.Second,
		TrendsTimeout:     30 * time.Second,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     10 * time.Second,
		LaunchTimeout:     60 * time.Second,
		LoginPageSettle:   3 * time.Second,
		TypeSettle:        1 * time.Second,
		ClickSettle:       2 * time.Second,
		LoginSettle:       5 * time.Second,
		NavigationSettle:  3 * time.Second,
	}
}

// Credentials are the target-site account secrets.
type Credentials struct {
	Username string
	Password string
}

// Options configures a Sequencer.
type Options struct {
	LoginURL   string
	ExploreURL string
	Launch     engine.LaunchOptions
	Timing     Timing
	Selectors  Selectors

	// Clock defaults to RealClock.
	Clock Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to State)
}

// Sequencer drives one login + trend scrape per Run call. It holds no
// per-run state and is safe for concurrent use; each Run owns its own
// browser session.
type Sequencer struct {
	driver   engine.Driver
	opts     Options
	clock    Clock
	logger   *slog.Logger
	resolver *Resolver
	exec     *Executor
}

// NewSequencer creates a Sequencer on top of driver.
func NewSequencer(driver engine.Driver, opts Options) *Sequencer {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	// Zero would mean no deadline at all; fall back to the defaults.
	defaults := DefaultTiming()
	if opts.Timing.ActionTimeout <= 0 {
		opts.Timing.ActionTimeout = defaults.ActionTimeout
	}
	if opts.Timing.LaunchTimeout <= 0 {
		opts.Timing.LaunchTimeout = defaults.LaunchTimeout
	}
	logger := opts.Logger.With("engine", driver.Name())
	return &Sequencer{
		driver:   driver,
		opts:     opts,
		clock:    opts.Clock,
		logger:   logger,
		resolver: NewResolver(opts.Clock, opts.Timing.PollInterval),
		exec:     NewExecutor(logger),
	}
}

// run carries the state of a single invocation.
type run struct {
	*Sequencer
	session engine.Session
	state   State
}

func (r *run) advance(to State) {
	from := r.state
	r.state = to
	r.logger.Debug("sequence state", "from", from.String(), "to", to.String())
	if r.opts.OnTransition != nil {
		r.opts.OnTransition(from, to)
	}
}

// Run logs in with creds, opens the explore page and returns up to
// models.MaxTrends trend texts. Any failure is a *models.StepFailure
// naming the step. The browser session is closed exactly once on every
// exit path.
func (s *Sequencer) Run(ctx context.Context, creds Credentials) (result models.TrendResult, err error) {
	r := &run{Sequencer: s, state: StateInit}
	start := s.clock.Now()

	defer func() {
		if r.session != nil {
			if closeErr := r.session.Close(); closeErr != nil {
				s.logger.Warn("browser teardown failed", "error", closeErr)
			}
		}
		if err != nil {
			r.advance(StateFailed)
			s.logger.Error("trend scrape failed",
				"step", models.FailedStep(err),
				"duration", s.clock.Now().Sub(start),
				"error", err,
			)
		}
	}()

	r.session, err = Execute(ctx, s.exec, StepLaunch, func(ctx context.Context) (engine.Session, error) {
		launchCtx, cancel := context.WithTimeout(ctx, s.opts.Timing.LaunchTimeout)
		defer cancel()
		return s.driver.Launch(launchCtx, s.opts.Launch)
	})
	if err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateLaunched)

	if err = ExecuteErr(ctx, s.exec, StepOpenLogin, func(ctx context.Context) error {
		return r.navigate(ctx, s.opts.LoginURL, s.opts.Timing.LoginPageSettle)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateOnLoginPage)

	if err = ExecuteErr(ctx, s.exec, StepEnterUsername, func(ctx context.Context) error {
		return r.typeInto(ctx, s.opts.Selectors.Username, s.opts.Timing.ResolveTimeout, creds.Username)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateUsernameEntered)

	if err = ExecuteErr(ctx, s.exec, StepClickNext, func(ctx context.Context) error {
		return r.click(ctx, s.opts.Selectors.Next, s.opts.Timing.ClickSettle)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateAdvancedToPassword)

	if err = ExecuteErr(ctx, s.exec, StepEnterPassword, func(ctx context.Context) error {
		return r.typeInto(ctx, s.opts.Selectors.Password, s.opts.Timing.PasswordTimeout, creds.Password)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StatePasswordEntered)

	if err = ExecuteErr(ctx, s.exec, StepClickLogin, func(ctx context.Context) error {
		return r.click(ctx, s.opts.Selectors.Login, s.opts.Timing.LoginSettle)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateAuthenticated)

	if err = ExecuteErr(ctx, s.exec, StepOpenExplore, func(ctx context.Context) error {
		return r.navigate(ctx, s.opts.ExploreURL, s.opts.Timing.NavigationSettle)
	}); err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateOnExplorePage)

	trends, err := Execute(ctx, s.exec, StepExtractTrends, r.extractTrends)
	if err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateTrendsExtracted)

	result, err = Execute(ctx, s.exec, StepAssemble, func(context.Context) (models.TrendResult, error) {
		return models.NewTrendResult(trends, s.clock.Now())
	})
	if err != nil {
		return models.TrendResult{}, err
	}
	r.advance(StateDone)

	s.logger.Info("trend scrape completed",
		"id", result.ID,
		"trends", len(result.Trends),
		"duration", s.clock.Now().Sub(start),
	)
	return result, nil
}

// navigate loads url, waits for load quiescence within the navigation
// timeout, then applies settle.
func (r *run) navigate(ctx context.Context, url string, settle time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, r.opts.Timing.NavigationTimeout)
	defer cancel()

	if err := r.session.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := r.session.WaitLoad(navCtx); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return r.clock.Sleep(ctx, settle)
}

func (r *run) typeInto(ctx context.Context, candidates []engine.Locator, timeout time.Duration, text string) error {
	el, err := r.resolver.Resolve(ctx, r.session, candidates, timeout)
	if err != nil {
		return err
	}
	actionCtx, cancel := context.WithTimeout(ctx, r.opts.Timing.ActionTimeout)
	defer cancel()
	if err := el.Type(actionCtx, text); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	return r.clock.Sleep(ctx, r.opts.Timing.TypeSettle)
}

func (r *run) click(ctx context.Context, candidates []engine.Locator, settle time.Duration) error {
	el, err := r.resolver.Resolve(ctx, r.session, candidates, r.opts.Timing.ResolveTimeout)
	if err != nil {
		return err
	}
	actionCtx, cancel := context.WithTimeout(ctx, r.opts.Timing.ActionTimeout)
	defer cancel()
	if err := el.Click(actionCtx); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return r.clock.Sleep(ctx, settle)
}

// extractTrends waits for any trend candidate, then reads texts from the
// elements matching the primary selector until MaxTrends are collected.
// Unreadable or blank elements are skipped.
func (r *run) extractTrends(ctx context.Context) ([]string, error) {
	candidates := r.opts.Selectors.Trends
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no trend selectors configured")
	}
	if _, err := r.resolver.Resolve(ctx, r.session, candidates, r.opts.Timing.TrendsTimeout); err != nil {
		return nil, err
	}

	els, err := r.session.FindAll(ctx, candidates[0])
	if err != nil {
		return nil, fmt.Errorf("collect trend elements: %w", err)
	}

	texts := make([]string, 0, models.MaxTrends)
	for i, el := range els {
		if len(texts) == models.MaxTrends {
			break
		}
		txt, err := r.readText(ctx, el)
		if err != nil {
			r.logger.Warn("failed to extract trend text", "index", i, "error", err)
			continue
		}
		if txt = strings.TrimSpace(txt); txt == "" {
			continue
		}
		texts = append(texts, txt)
	}

	if len(texts) == 0 {
		return nil, &models.ExtractionEmptyError{Located: len(els)}
	}
	return texts, nil
}

func (r *run) readText(ctx context.Context, el engine.Element) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, r.opts.Timing.ActionTimeout)
	defer cancel()
	return el.Text(actionCtx)
}
