package syncer

import (
	"context"
	"log/slog"
	"time"
)

// Runner runs sync passes.
type Runner interface {
	RunPass(ctx context.Context, opts PassOptions) (*Report, error)
}

// Scheduler decides when passes run: on start, when connectivity comes back,
// on a fixed interval, and on explicit triggers.
type Scheduler struct {
	runner      Runner
	conn        Connectivity
	interval    time.Duration
	probe       time.Duration
	fullOnStart bool
	onPass      func(*Report, error)
	logger      *slog.Logger
	trigger     chan PassOptions
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the period between passes while online. Zero disables
// periodic passes.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithProbeInterval sets how often connectivity is polled.
func WithProbeInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.probe = d
	}
}

// WithFullOnStart makes the first pass a full one.
func WithFullOnStart(full bool) SchedulerOption {
	return func(s *Scheduler) {
		s.fullOnStart = full
	}
}

// WithOnPass registers a hook called after every pass that was not skipped.
func WithOnPass(fn func(*Report, error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onPass = fn
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler returns a scheduler driving r.
func NewScheduler(r Runner, conn Connectivity, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   r,
		conn:     conn,
		interval: 5 * time.Minute,
		probe:    30 * time.Second,
		logger:   slog.Default(),
		trigger:  make(chan PassOptions, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger requests a pass. It never blocks; a request made while another is
// pending is merged into it.
func (s *Scheduler) Trigger(opts PassOptions) {
	select {
	case s.trigger <- opts:
	default:
	}
}

// Run drives passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	probe := time.NewTicker(s.probe)
	defer probe.Stop()

	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	online := s.conn.Reachable(ctx)
	if online {
		s.run(ctx, PassOptions{Full: s.fullOnStart})
	} else {
		s.logger.Info("syncer: offline, waiting for connectivity")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-probe.C:
			now := s.conn.Reachable(ctx)
			if now && !online {
				s.logger.Info("syncer: connectivity restored")
				s.run(ctx, PassOptions{})
			}
			online = now
		case <-tick:
			if online {
				s.run(ctx, PassOptions{})
			}
		case opts := <-s.trigger:
			s.run(ctx, opts)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, opts PassOptions) {
	rep, err := s.runner.RunPass(ctx, opts)
	if rep != nil && rep.Skipped {
		return
	}
	if s.onPass != nil {
		s.onPass(rep, err)
	}
}
