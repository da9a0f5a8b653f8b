package intake

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// ErrURLRequired means neither the request text nor the caller supplied a URL.
var ErrURLRequired = errors.New("url required")

// ErrInvalidURL means the URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// TaskFactory builds the recurring task for a monitor.
type TaskFactory func(monitorID string) watch.Task

// Service creates monitors from free text.
type Service struct {
	store   watch.MonitorStore
	interp  *Interpreter
	ids     watch.IDGenerator
	clock   watch.Clock
	sched   watch.Scheduler
	taskFor TaskFactory
	logger  *zap.Logger
}

// NewService wires a Service. sched and taskFor may be nil, in which case
// monitors are stored but not scheduled.
func NewService(
	store watch.MonitorStore,
	interp *Interpreter,
	ids watch.IDGenerator,
	clock watch.Clock,
	sched watch.Scheduler,
	taskFor TaskFactory,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		interp:  interp,
		ids:     ids,
		clock:   clock,
		sched:   sched,
		taskFor: taskFor,
		logger:  logger.Named("intake"),
	}
}

// Create interprets text and stores a monitor for it. A monitor that already
// watches the same URL is returned unchanged with created=false.
func (s *Service) Create(ctx context.Context, text, rawURL string) (watch.Monitor, bool, error) {
	req := s.interp.Parse(ctx, text, strings.TrimSpace(rawURL))
	if req.URL == "" {
		return watch.Monitor{}, false, ErrURLRequired
	}
	if err := validateURL(req.URL); err != nil {
		return watch.Monitor{}, false, err
	}

	existing, err := s.store.GetByURL(ctx, req.URL)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, watch.ErrNotFound):
		return watch.Monitor{}, false, fmt.Errorf("lookup monitor: %w", err)
	}

	intervalText := req.Interval
	if intervalText == "" {
		intervalText = text
	}
	id, err := s.ids.NewID()
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("generate monitor id: %w", err)
	}
	m := watch.Monitor{
		ID:              id,
		URL:             req.URL,
		Description:     req.Description,
		Condition:       req.Condition,
		IntervalSeconds: s.interp.ParseInterval(ctx, intervalText),
		CreatedAt:       s.now(),
	}
	stored, created, err := s.store.Create(ctx, m)
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("create monitor: %w", err)
	}
	if created && s.sched != nil && s.taskFor != nil {
		s.sched.RegisterRecurring(stored.ID, stored.Interval(), s.taskFor(stored.ID))
	}
	s.logger.Info("monitor created",
		zap.String("monitor_id", stored.ID),
		zap.String("url", stored.URL),
		zap.Int("interval_seconds", stored.IntervalSeconds),
		zap.Bool("created", created))
	return stored, created, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
