package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

// Defaults for the dispatch loop.
const (
	DefaultCheckSpec   = "@every 30s"
	DefaultMaxAttempts = 3
)

// Sender delivers a scheduled email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Options configures a Scheduler.
type Options struct {
	// CheckSpec is the cron spec of the due-mail check.
	CheckSpec string

	// MaxAttempts is the number of failed sends after which an email is
	// marked failed.
	MaxAttempts int

	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics

	// OnSent is called after each successful send.
	OnSent func(Email)
}

// Scheduler sends stored emails once their time has come.
type Scheduler struct {
	store  *Store
	sender Sender
	opts   Options
	logger *slog.Logger
	cron   *cron.Cron

	// dispatchMu serializes dispatch runs from cron and callers.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler. It returns an error when CheckSpec is
// not a valid cron schedule.
func NewScheduler(store *Store, sender Sender, opts Options) (*Scheduler, error) {
	if opts.CheckSpec == "" {
		opts.CheckSpec = DefaultCheckSpec
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithOperation(logger, "schedule")

	adapter := logging.NewCronAdapter(logger)
	s := &Scheduler{
		store:  store,
		sender: sender,
		opts:   opts,
		logger: logger,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
	}

	if _, err := s.cron.AddFunc(opts.CheckSpec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule check spec %q: %w", opts.CheckSpec, err)
	}
	return s, nil
}

// Schedule queues an email for at.
func (s *Scheduler) Schedule(ctx context.Context, recipient, subject, body string, at time.Time) (Email, error) {
	e, err := s.store.Create(ctx, Email{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		SendAt:    at,
	})
	if err != nil {
		return Email{}, err
	}
	s.logger.Info("email scheduled",
		logging.Job(e.ID),
		slog.String("recipient", logging.AnonymizeEmail(recipient)),
		slog.Time("send_at", at.In(s.opts.Location)))
	return e, nil
}

// ScheduleAt queues an email for the next time the clock reads hhmm.
func (s *Scheduler) ScheduleAt(ctx context.Context, recipient, subject, body, hhmm string) (Email, error) {
	at, err := NextOccurrence(hhmm, s.opts.Now(), s.opts.Location)
	if err != nil {
		return Email{}, err
	}
	return s.Schedule(ctx, recipient, subject, body, at)
}

// Cancel cancels a pending email.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info("scheduled email cancelled", logging.Job(id))
	return nil
}

// List returns pending emails, or all emails when all is set.
func (s *Scheduler) List(ctx context.Context, all bool) ([]Email, error) {
	return s.store.List(ctx, all)
}

// Start runs the periodic check until Stop is called or ctx is done. Due
// emails are dispatched once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	runCtx := s.ctx
	s.mu.Unlock()

	if _, err := s.Dispatch(runCtx); err != nil {
		s.logger.Warn("initial dispatch failed", logging.Err(err))
	}

	s.cron.Start()
	s.logger.Info("scheduler started", slog.String("check_spec", s.opts.CheckSpec))

	go func() {
		<-runCtx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop halts the periodic check and waits for a running dispatch.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	cancel()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := s.Dispatch(ctx); err != nil {
		s.logger.Warn("dispatch failed", logging.Err(err))
	}
}

// Dispatch sends every due email and returns how many were sent.
func (s *Scheduler) Dispatch(ctx context.Context) (int, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	due, err := s.store.Due(ctx, s.opts.Now())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if s.dispatchOne(ctx, e) {
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) dispatchOne(ctx context.Context, e Email) bool {
	logger := s.logger.With(logging.Job(e.ID))

	sendErr := s.sender.Send(ctx, e.Recipient, e.Subject, e.Body)
	if sendErr == nil {
		if err := s.store.MarkSent(ctx, e.ID); err != nil {
			logger.Error("sent email could not be marked", logging.Err(err))
		}
		s.opts.Metrics.RecordScheduledSend(ctx, instrumentation.ScheduledSent)
		logger.Info("scheduled email sent")
		if s.opts.OnSent != nil {
			e.Status = StatusSent
			e.Attempts++
			s.opts.OnSent(e)
		}
		return true
	}

	status, err := s.store.RecordFailure(ctx, e.ID, sendErr, s.opts.MaxAttempts)
	if err != nil {
		logger.Error("failed send could not be recorded", logging.Err(err))
		return false
	}

	if status == StatusFailed {
		s.opts.Metrics.RecordScheduledSend(ctx, instrumentation.ScheduledFailed)
		logger.Error("scheduled email failed permanently",
			slog.Int("attempts", e.Attempts+1),
			logging.Err(sendErr))
	} else {
		s.opts.Metrics.RecordScheduledSend(ctx, instrumentation.ScheduledRetry)
		logger.Warn("scheduled email send failed, will retry",
			slog.Int("attempts", e.Attempts+1),
			logging.Err(sendErr))
	}
	return false
}
