package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
	"github.com/teemow/inboxreply/internal/server"
	"github.com/teemow/inboxreply/internal/store"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the auto-reply daemon",
		Long: `Run the auto-reply daemon. It polls the inbox, answers unread messages
according to the saved rules, sends scheduled emails and, when
metrics.enabled is set, serves /metrics, /healthz, /readyz and /status.

Rule changes made with other inboxreply commands while the daemon runs are
picked up from the state file. Stop it with Ctrl+C or SIGTERM.

Exporters are chosen in the telemetry section of the config file
(metrics_exporter: prometheus|otlp|stdout, tracing_exporter: otlp|stdout|none)
and the sent-mail audit log in the audit section. OTEL_EXPORTER_OTLP_ENDPOINT
and OTEL_TRACES_SAMPLER_ARG override the matching settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single poll and scheduled-send check, then exit")
	return cmd
}

func runDaemon(cmd *cobra.Command, opts *rootOptions, once bool) error {
	a, err := loadApp(cmd, opts)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := a.cfg.Instrumentation(version)
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			a.logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLoggerWithConfig(a.logger, instrConfig.Audit)

	client, err := a.gmailClient(ctx, metrics, audit)
	if err != nil {
		return err
	}
	if a.cfg.SelfAddress == "" {
		self, err := client.SelfAddress(ctx)
		if err != nil {
			a.logger.Warn("could not determine own address; self-replies are not filtered", logging.Err(err))
		}
		a.cfg.SelfAddress = self
	}

	var gen autoreply.Generator
	assistant, err := a.assistant(metrics)
	switch {
	case err == nil:
		gen = assistant
	case errors.Is(err, errLLMNotConfigured):
		a.logger.Info("no LLM configured; smart rules answer with their static message")
	default:
		return err
	}

	engine, err := a.engine(ctx, client, gen, metrics, provider.Tracer(""))
	if err != nil {
		return err
	}

	sched, st, err := a.openScheduler(client.WithKind(instrumentation.SentKindScheduled), metrics)
	if err != nil {
		return err
	}
	defer st.Close()

	if once {
		return runOnce(ctx, a, engine, sched)
	}

	var srv *server.Server
	if a.cfg.Metrics.Enabled {
		srv = server.New(server.Config{
			Addr:     a.cfg.Metrics.Addr,
			Provider: provider,
			Status:   engine,
			Logger:   a.logger,
		})
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("observability server failed", logging.Err(err))
			}
		}()
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		_ = engine.Stop()
		return err
	}

	go func() {
		err := store.Watch(ctx, a.store.Path(), a.logger, func() {
			settings, err := a.store.LoadSettings(ctx)
			if err != nil {
				a.logger.Warn("failed to reload settings", logging.Err(err))
				return
			}
			dropped := engine.ApplySettings(settings)
			a.logger.Info("reloaded settings",
				slog.Bool("active", settings.Active),
				slog.Int("rules", len(settings.Rules)),
				slog.Int("dropped", dropped))
		})
		if err != nil {
			a.logger.Warn("state file watch stopped; restart to pick up rule changes", logging.Err(err))
		}
	}()

	settings := engine.Settings()
	a.logger.Info("inboxreply running",
		logging.Account(a.cfg.Account),
		slog.Bool("active", settings.Active),
		slog.Int("rules", len(settings.Rules)))

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	if err := engine.Stop(); err != nil && !errors.Is(err, autoreply.ErrNotRunning) {
		a.logger.Warn("failed to stop engine", logging.Err(err))
	}
	if err := sched.Stop(); err != nil {
		a.logger.Warn("failed to stop scheduler", logging.Err(err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("failed to stop observability server", logging.Err(err))
		}
	}
	return nil
}

type dispatcher interface {
	Dispatch(ctx context.Context) (int, error)
}

// runOnce performs one poll and one scheduled-send check and prints a summary.
func runOnce(ctx context.Context, a *app, engine *autoreply.Engine, sched dispatcher) error {
	result, pollErr := engine.RunOnce(ctx)
	sent, dispatchErr := sched.Dispatch(ctx)

	printHeading(a.out, "Poll "+result.Status)
	printField(a.out, "Unread listed", result.Listed)
	printField(a.out, "Replied", result.Replied)
	printField(a.out, "Skipped", result.Skipped)
	printField(a.out, "Failed", result.Failed)
	printField(a.out, "Scheduled sent", sent)

	return errors.Join(pollErr, dispatchErr)
}
