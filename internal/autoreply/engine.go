package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/teemow/inboxreply/internal/logging"
)

var (
	// ErrAlreadyRunning is returned by Start when the poll loop is running.
	ErrAlreadyRunning = errors.New("auto-reply engine already running")
	// ErrNotRunning is returned by Stop when the poll loop is not running.
	ErrNotRunning = errors.New("auto-reply engine not running")
	// ErrInvalidRuleNumber is returned when a rule index is out of range.
	ErrInvalidRuleNumber = errors.New("invalid rule number")
)

const (
	// DefaultPollInterval is the pause between two inbox polls.
	DefaultPollInterval = 10 * time.Second
	// DefaultErrorBackoff is the pause after a failed poll iteration.
	DefaultErrorBackoff = 30 * time.Second
	// DefaultRequestTimeout bounds each call to the mailbox or the generator.
	DefaultRequestTimeout = 30 * time.Second
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	SelfAddress     string
	BlockedKeywords []string
	BlockedDomains  []string
	// SkipAutomated drops messages the mail adapter flagged as automated.
	SkipAutomated bool

	PollInterval   time.Duration
	ErrorBackoff   time.Duration
	RequestTimeout time.Duration

	// Location is the time zone rule windows are evaluated in. Defaults to
	// time.Local.
	Location *time.Location
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	Logger   *slog.Logger
	Metrics  Recorder
	Tracer   trace.Tracer
	Settings SettingsStore
}

// PollResult summarizes one poll iteration.
type PollResult struct {
	Status  string
	Listed  int
	Replied int
	Skipped int
	Failed  int
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running         bool      `json:"running"`
	Active          bool      `json:"active"`
	SmartReplies    bool      `json:"smart_replies"`
	Rules           int       `json:"rules"`
	RepliesSent     int       `json:"replies_sent"`
	LastRepliedTo   string    `json:"last_replied_to,omitempty"`
	LastPoll        time.Time `json:"last_poll,omitzero"`
	LastPollStatus  string    `json:"last_poll_status,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	ThreadsAnswered int       `json:"threads_answered"`
}

// Engine polls a mailbox and answers unread messages according to its rules.
// It starts inactive with no rules and smart replies enabled.
type Engine struct {
	mail     Mail
	gen      Generator
	settings SettingsStore
	filter   SenderFilter

	skipAutomated  bool
	pollInterval   time.Duration
	errorBackoff   time.Duration
	requestTimeout time.Duration
	location       *time.Location
	now            func() time.Time

	logger  *slog.Logger
	metrics Recorder
	tracer  trace.Tracer

	// mu guards the flags; the rules carry their own lock.
	mu           sync.RWMutex
	active       bool
	smartReplies bool
	rules        *RuleStore
	dedup        *DedupTracker

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}

	statsMu        sync.Mutex
	repliesSent    int
	lastRepliedTo  string
	lastPoll       time.Time
	lastPollStatus string
	lastError      string
}

// NewEngine returns an Engine replying through mail. gen may be nil, in which
// case rules asking for generated replies use their static message.
func NewEngine(mail Mail, gen Generator, opts Options) *Engine {
	e := &Engine{
		mail:           mail,
		gen:            gen,
		settings:       opts.Settings,
		filter:         NewSenderFilter(opts.SelfAddress, opts.BlockedKeywords, opts.BlockedDomains),
		skipAutomated:  opts.SkipAutomated,
		pollInterval:   opts.PollInterval,
		errorBackoff:   opts.ErrorBackoff,
		requestTimeout: opts.RequestTimeout,
		location:       opts.Location,
		now:            opts.Now,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		smartReplies:   true,
		rules:          NewRuleStore(),
		dedup:          NewDedupTracker(),
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.errorBackoff <= 0 {
		e.errorBackoff = DefaultErrorBackoff
	}
	if e.requestTimeout <= 0 {
		e.requestTimeout = DefaultRequestTimeout
	}
	if e.location == nil {
		e.location = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = noopRecorder{}
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("autoreply")
	}
	return e
}

// Start launches the poll loop in the background. The loop runs until Stop
// is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.runningLocked() {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go e.loop(loopCtx, done)

	e.logger.Info("auto-reply engine started",
		slog.Duration("poll_interval", e.pollInterval))
	return nil
}

// Stop signals the poll loop to exit and waits for it. A reply that is
// already being composed or sent is finished, bounded by the request timeout;
// no new message or iteration begins.
func (e *Engine) Stop() error {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.runningLocked() {
		return ErrNotRunning
	}

	e.cancel()
	<-e.done
	e.cancel = nil
	e.done = nil

	e.logger.Info("auto-reply engine stopped")
	return nil
}

// Running reports whether the poll loop is running.
func (e *Engine) Running() bool {
	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()
	return e.runningLocked()
}

func (e *Engine) runningLocked() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := e.pollInterval
		if _, err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("poll iteration failed, backing off",
				logging.Err(err),
				slog.Duration("backoff", e.errorBackoff))
			wait = e.errorBackoff
		}
		timer.Reset(wait)
	}
}

// RunOnce performs a single poll iteration. Per-message failures are logged
// and counted in the result; only iteration-level failures are returned.
func (e *Engine) RunOnce(ctx context.Context) (result PollResult, err error) {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "autoreply.poll")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll iteration panicked: %v", r)
		}
		if err != nil {
			result.Status = PollError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.String("poll.status", result.Status),
			attribute.Int("poll.listed", result.Listed),
			attribute.Int("poll.replied", result.Replied),
		)
		e.finishPoll(ctx, started, result.Status, err)
	}()

	if !e.IsActive() {
		result.Status = PollInactive
		return result, nil
	}

	now := ClockOf(e.now().In(e.location))
	if len(e.rules.Active(now)) == 0 {
		result.Status = PollNoRules
		return result, nil
	}

	listCtx, cancel := e.callContext(ctx)
	refs, err := e.mail.ListUnread(listCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to list unread messages: %w", err)
	}
	result.Listed = len(refs)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch e.processMessage(ctx, ref, now) {
		case outcomeReplied:
			result.Replied++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		}
	}

	result.Status = PollSuccess
	return result, nil
}

func (e *Engine) finishPoll(ctx context.Context, started time.Time, status string, err error) {
	e.metrics.RecordPoll(ctx, status, e.now().Sub(started))

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.lastPoll = started
	e.lastPollStatus = status
	if err != nil {
		e.lastError = err.Error()
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeReplied
	outcomeFailed
)

func (e *Engine) processMessage(ctx context.Context, ref MessageRef, now ClockTime) outcome {
	ctx, span := e.tracer.Start(ctx, "autoreply.message",
		trace.WithAttributes(attribute.String("message.id", ref.ID)))
	defer span.End()

	logger := e.logger.With(logging.Message(ref.ID), logging.Thread(ref.ThreadID))

	if ref.ThreadID != "" && e.dedup.Seen(ref.ThreadID) {
		return e.skip(ctx, logger, SkipAlreadyReplied)
	}

	fetchCtx, cancel := e.callContext(ctx)
	msg, err := e.mail.Fetch(fetchCtx, ref.ID)
	cancel()
	if err != nil {
		logger.Warn("failed to fetch message", logging.Err(err))
		span.RecordError(err)
		return outcomeFailed
	}

	threadID := firstNonEmpty(msg.ThreadID, ref.ThreadID, msg.ID, ref.ID)
	sender := strings.TrimSpace(msg.Sender)

	switch {
	case sender == "":
		return e.skip(ctx, logger, SkipMissingSender)
	case e.dedup.Seen(threadID):
		return e.skip(ctx, logger, SkipAlreadyReplied)
	case !e.filter.Eligible(sender):
		return e.skip(ctx, logger, SkipBlockedSender)
	case e.skipAutomated && msg.Automated:
		return e.skip(ctx, logger, SkipAutomated)
	}

	rule, ok := e.rules.ActiveMatching(now, sender)
	if !ok {
		return e.skip(ctx, logger, SkipNoRule)
	}

	// Past this point the reply is committed: Stop waits for it instead of
	// cancelling the generator, the send or the mark-read halfway.
	if err := ctx.Err(); err != nil {
		return outcomeSkipped
	}
	ctx = context.WithoutCancel(ctx)

	genCtx, cancel := e.callContext(ctx)
	body, composition := compose(genCtx, logger, rule, sender, msg.Subject, msg.BodyText, e.SmartReplies(), e.gen)
	cancel()

	sendCtx, cancel := e.callContext(ctx)
	err = e.sendReply(sendCtx, msg, sender, body)
	cancel()
	if err != nil {
		logger.Warn("failed to send reply, will retry next poll",
			logging.SenderHash(sender),
			logging.Err(err))
		span.RecordError(err)
		return outcomeFailed
	}

	e.dedup.Record(threadID)
	e.metrics.RecordReply(ctx, composition)
	e.noteReply(sender)

	logger.Info("sent auto-reply",
		logging.SenderHash(sender),
		slog.String("composition", composition))

	markCtx, cancel := e.callContext(ctx)
	if err := e.mail.MarkRead(markCtx, msg.ID); err != nil {
		logger.Warn("failed to mark message read", logging.Err(err))
	}
	cancel()

	return outcomeReplied
}

// sendReply answers msg in its thread when the mailbox supports it.
func (e *Engine) sendReply(ctx context.Context, msg *Message, to, body string) error {
	subject := ReplySubject(msg.Subject)
	if r, ok := e.mail.(ThreadReplier); ok {
		return r.Reply(ctx, msg, to, subject, body)
	}
	return e.mail.Send(ctx, to, subject, body)
}

func (e *Engine) skip(ctx context.Context, logger *slog.Logger, reason string) outcome {
	e.metrics.RecordSkip(ctx, reason)
	logger.Debug("skipping message", slog.String("reason", reason))
	return outcomeSkipped
}

func (e *Engine) noteReply(sender string) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.repliesSent++
	e.lastRepliedTo = logging.AnonymizeEmail(senderAddress(sender))
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.requestTimeout)
}

// IsActive reports the master switch.
func (e *Engine) IsActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// SmartReplies reports whether generated replies are allowed.
func (e *Engine) SmartReplies() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.smartReplies
}

// ToggleActive sets the master switch and persists the settings.
func (e *Engine) ToggleActive(ctx context.Context, on bool) error {
	e.mu.Lock()
	e.active = on
	e.mu.Unlock()

	e.logger.Info("auto-reply toggled", logging.Status(onOff(on)))
	return e.persist(ctx)
}

// ToggleSmartReplies allows or forbids generated replies for every rule and
// persists the settings.
func (e *Engine) ToggleSmartReplies(ctx context.Context, on bool) error {
	e.mu.Lock()
	e.smartReplies = on
	e.mu.Unlock()

	e.logger.Info("smart replies toggled", logging.Status(onOff(on)))
	return e.persist(ctx)
}

// AddRule appends rule and returns its index.
func (e *Engine) AddRule(ctx context.Context, rule Rule) (int, error) {
	index, err := e.rules.Add(rule)
	if err != nil {
		return -1, err
	}
	e.logger.Info("rule added", logging.RuleIndex(index))
	return index, e.persist(ctx)
}

// RemoveRule deletes the rule at the zero-based index.
func (e *Engine) RemoveRule(ctx context.Context, index int) error {
	if !e.rules.Remove(index) {
		return fmt.Errorf("%w: %d", ErrInvalidRuleNumber, index+1)
	}
	e.logger.Info("rule removed", logging.RuleIndex(index))
	return e.persist(ctx)
}

// ListRules returns the rules in match order.
func (e *Engine) ListRules() []Rule {
	return e.rules.List()
}

// Settings returns the persisted part of the engine state.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Settings{
		Active:       e.active,
		SmartReplies: e.smartReplies,
		Rules:        e.rules.List(),
	}
}

// ApplySettings replaces the engine state with s without persisting it.
// Invalid rules are dropped and counted in the return value.
func (e *Engine) ApplySettings(s Settings) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = s.Active
	e.smartReplies = s.SmartReplies
	return e.rules.Replace(s.Rules)
}

// Restore loads settings from the settings store. On failure the engine keeps
// its current state and the error is returned for the caller to report.
func (e *Engine) Restore(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	s, err := e.settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if dropped := e.ApplySettings(s); dropped > 0 {
		e.logger.Warn("dropped invalid rules from saved settings", slog.Int("count", dropped))
	}
	return nil
}

func (e *Engine) persist(ctx context.Context) error {
	if e.settings == nil {
		return nil
	}
	if err := e.settings.SaveSettings(ctx, e.Settings()); err != nil {
		e.logger.Warn("failed to save settings", logging.Err(err))
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	settings := e.Settings()
	running := e.Running()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return Status{
		Running:         running,
		Active:          settings.Active,
		SmartReplies:    settings.SmartReplies,
		Rules:           len(settings.Rules),
		RepliesSent:     e.repliesSent,
		LastRepliedTo:   e.lastRepliedTo,
		LastPoll:        e.lastPoll,
		LastPollStatus:  e.lastPollStatus,
		LastError:       e.lastError,
		ThreadsAnswered: e.dedup.Len(),
	}
}

// senderAddress extracts the bare address from a From header, falling back to
// the raw value.
func senderAddress(sender string) string {
	if addr, err := mail.ParseAddress(sender); err == nil {
		return addr.Address
	}
	return sender
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
