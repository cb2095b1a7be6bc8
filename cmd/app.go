package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/config"
	"github.com/teemow/inboxreply/internal/gmail"
	"github.com/teemow/inboxreply/internal/google"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/llm"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/schedule"
	"github.com/teemow/inboxreply/internal/store"
)

var errLLMNotConfigured = errors.New("no LLM API key configured (set llm.api_key, OPENAI_API_KEY or ANTHROPIC_API_KEY)")

// app carries what every command needs: the configuration, the logger and
// the state file.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.FileStore
	out    io.Writer
}

func loadApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	logger := logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.account != "" {
		cfg.Account = opts.account
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.File != "" {
		logger.Debug("loaded config", slog.String("file", cfg.File))
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store.NewFileStore(cfg.StatePath(), logger),
		out:    cmd.OutOrStdout(),
	}, nil
}

func (a *app) googleAuth(metrics *instrumentation.Metrics) *google.Auth {
	return google.NewAuth(google.Config{
		ClientID:     a.cfg.Google.ClientID,
		ClientSecret: a.cfg.Google.ClientSecret,
		TokenDir:     a.cfg.Google.TokenDir,
		Metrics:      orNoopMetrics(metrics),
		Logger:       a.logger,
	})
}

func (a *app) gmailClient(ctx context.Context, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) (*gmail.Client, error) {
	return gmail.NewClientForAccount(ctx, a.googleAuth(metrics), gmail.Options{
		Account:         a.cfg.Account,
		AppendSignature: true,
		Metrics:         orNoopMetrics(metrics),
		Audit:           audit,
		Logger:          logging.WithAccount(a.logger, a.cfg.Account),
	})
}

// assistant returns the LLM assistant, or errLLMNotConfigured when no API key
// is set.
func (a *app) assistant(metrics *instrumentation.Metrics) (*llm.Assistant, error) {
	if !a.cfg.LLMEnabled() {
		return nil, errLLMNotConfigured
	}
	provider, err := llm.NewProvider(a.cfg.ProviderConfig())
	if err != nil {
		return nil, err
	}
	opts := a.cfg.AssistantOptions()
	opts.Metrics = orNoopMetrics(metrics)
	opts.Logger = a.logger
	return llm.NewAssistant(provider, opts), nil
}

// engine builds an engine backed by the state file and restores the saved
// settings. mail and gen may be nil for commands that only manage rules.
func (a *app) engine(ctx context.Context, mail autoreply.Mail, gen autoreply.Generator, metrics *instrumentation.Metrics, tracer trace.Tracer) (*autoreply.Engine, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	e := autoreply.NewEngine(mail, gen, autoreply.Options{
		SelfAddress:     a.cfg.SelfAddress,
		BlockedKeywords: a.cfg.BlockedKeywords,
		BlockedDomains:  a.cfg.BlockedDomains,
		SkipAutomated:   a.cfg.SkipAutomated,
		PollInterval:    a.cfg.PollInterval,
		ErrorBackoff:    a.cfg.ErrorBackoff,
		RequestTimeout:  a.cfg.RequestTimeout,
		Location:        loc,
		Logger:          a.logger,
		Metrics:         orNoopMetrics(metrics),
		Tracer:          tracer,
		Settings:        a.store,
	})
	if err := e.Restore(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ruleEngine is an engine without a mailbox, used to edit the saved rules.
func (a *app) ruleEngine(ctx context.Context) (*autoreply.Engine, error) {
	return a.engine(ctx, nil, nil, nil, nil)
}

// openScheduler opens the schedule database. sender may be nil when the
// caller only queues or lists emails. The caller closes the returned store.
func (a *app) openScheduler(sender schedule.Sender, metrics *instrumentation.Metrics) (*schedule.Scheduler, *schedule.Store, error) {
	if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := schedule.OpenStore(a.cfg.SchedulePath())
	if err != nil {
		return nil, nil, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	s, err := schedule.NewScheduler(st, sender, schedule.Options{
		CheckSpec:   a.cfg.Schedule.CheckSpec,
		MaxAttempts: a.cfg.Schedule.MaxAttempts,
		Location:    loc,
		Logger:      a.logger,
		Metrics:     orNoopMetrics(metrics),
		OnSent: func(e schedule.Email) {
			a.recordSent(instrumentation.SentKindScheduled, e.Recipient, e.Subject, "")
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return s, st, nil
}

// recordSent appends a sent mail to the history; failures are only logged.
func (a *app) recordSent(kind, recipient, subject, messageID string) {
	if err := a.store.AddHistory(store.HistoryEntry{
		Kind:      kind,
		Recipient: recipient,
		Subject:   subject,
		MessageID: messageID,
	}); err != nil {
		a.logger.Warn("failed to record sent mail", logging.Err(err))
	}
}

// resolveRecipient maps a name to an address through the saved contacts,
// then through Google contacts when a client is available.
func (a *app) resolveRecipient(ctx context.Context, client *gmail.Client, nameOrEmail string) (string, error) {
	if addr, ok := a.store.ResolveRecipient(nameOrEmail); ok {
		return addr, nil
	}
	if client != nil {
		contacts, err := client.SearchContacts(ctx, nameOrEmail, 1)
		if err != nil {
			a.logger.Warn("contact search failed", logging.Err(err))
		} else if len(contacts) > 0 && contacts[0].EmailAddress != "" {
			return contacts[0].EmailAddress, nil
		}
	}
	return "", fmt.Errorf("no contact found for %q", nameOrEmail)
}

func orNoopMetrics(m *instrumentation.Metrics) *instrumentation.Metrics {
	if m == nil {
		return &instrumentation.Metrics{}
	}
	return m
}
