package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/trendscraper/config"
	"github.com/use-agent/trendscraper/models"
	"github.com/use-agent/trendscraper/scraper"
	"github.com/use-agent/trendscraper/store"
	"github.com/use-agent/trendscraper/webhook"
)

// Runner performs one automation run.
type Runner interface {
	Run(ctx context.Context, creds scraper.Credentials) (models.TrendResult, error)
}

// Service ties a run to persistence: validate config, scrape, save.
// It is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	runner   Runner
	sink     store.Sink
	notifier *webhook.Notifier
	now      func() time.Time

	active atomic.Int32

	mu      sync.Mutex
	lastRun *models.RunInfo
}

// New creates a Service. notifier may be nil.
func New(cfg *config.Config, runner Runner, sink store.Sink, notifier *webhook.Notifier) *Service {
	return &Service{
		cfg:      cfg,
		runner:   runner,
		sink:     sink,
		notifier: notifier,
		now:      time.Now,
	}
}

// Scrape validates configuration, runs the sequence and persists the
// result with meta. Configuration errors are returned before the runner
// is touched. The returned record is exactly what was stored.
func (s *Service) Scrape(ctx context.Context, meta models.RequestMeta) (models.Record, error) {
	if err := s.cfg.Validate(); err != nil {
		s.finish(models.Record{}, err)
		return models.Record{}, err
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	result, err := s.runner.Run(ctx, scraper.Credentials{
		Username: s.cfg.Target.Username,
		Password: s.cfg.Target.Password,
	})
	if err != nil {
		s.finish(models.Record{}, err)
		return models.Record{}, err
	}

	if meta.AccessTimestamp.IsZero() {
		meta.AccessTimestamp = s.now()
	}
	// A finished scrape is stored even if the caller has gone away; the
	// sink applies its own timeout.
	rec, err := s.sink.Save(context.WithoutCancel(ctx), result, meta)
	if err != nil {
		s.finish(models.Record{ID: result.ID}, err)
		return models.Record{}, err
	}

	s.finish(rec, nil)
	return rec, nil
}

// ActiveSessions returns how many runs are in flight.
func (s *Service) ActiveSessions() int {
	return int(s.active.Load())
}

// LastRun returns a copy of the most recent run summary, or nil.
func (s *Service) LastRun() *models.RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	info := *s.lastRun
	return &info
}

func (s *Service) finish(rec models.Record, err error) {
	info := &models.RunInfo{At: s.now(), Success: err == nil, ID: rec.ID}
	event := &webhook.Event{
		Type:      webhook.EventScraped,
		RunID:     rec.ID,
		Timestamp: info.At.Unix(),
		Data:      rec,
	}
	if err != nil {
		info.FailedStep = models.FailedStep(err)
		info.Error = err.Error()
		event.Type = webhook.EventFailed
		event.Data = models.NewErrorResponse(err, false, info.At)
	}

	s.mu.Lock()
	s.lastRun = info
	s.mu.Unlock()

	s.notifier.Notify(event)
}
