// Command voltdesk runs the headless realtime support agent: it joins
// a realtime voice session and serves the electricity-support tools
// until the conversation ends or the process is signalled.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/voltdesk/voltdesk/internal/dotenv"
	"github.com/voltdesk/voltdesk/pkg/config"
	"github.com/voltdesk/voltdesk/pkg/realtime"
	"github.com/voltdesk/voltdesk/pkg/realtime/transcript"
	"github.com/voltdesk/voltdesk/pkg/support"
	"github.com/voltdesk/voltdesk/pkg/tools"
)

type agentDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAgentDeps() agentDeps {
	return agentDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runMigrations(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("VOLTDESK_DATABASE_URL must be set to run migrations")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := support.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (support.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no database configured, using seeded in-memory store")
		return support.NewMemStore(time.Now()), func() {}, nil
	}
	store, err := support.NewPGStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect store: %w", err)
	}
	return store, store.Close, nil
}

func runAgent(ctx context.Context, logger *slog.Logger, cfg config.Config, deps agentDeps) error {
	if cfg.SessionEndpoint == "" {
		return errors.New("VOLTDESK_SESSION_ENDPOINT must be set")
	}

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	mailer := support.NewMailer(support.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, logger)

	log := transcript.NewLog()
	toolset := support.NewToolset(store, mailer, log, logger)
	registry, err := tools.NewRegistry(toolset.Registrations()...)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	dispatcher := tools.NewDispatcher(registry, logger).WithDefaultTimeout(cfg.ToolTimeout)

	session, err := realtime.NewSession(realtime.Dependencies{
		Negotiator: &realtime.HTTPNegotiator{
			Endpoint: cfg.SessionEndpoint,
			APIKey:   cfg.APIKey,
		},
		Dialer: &realtime.WSDialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Logger:           logger,
		},
		Runner:     dispatcher,
		Transcript: log,
		Logger:     logger,
	}, realtime.Config{
		ShutdownGrace:   cfg.ShutdownGracePeriod,
		DeliveryRetries: cfg.DeliveryRetries,
		DeliveryBackoff: cfg.DeliveryBackoff,
	})
	if err != nil {
		return err
	}

	logger.Info("starting support agent", "tools", registry.Names())
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case <-ctx.Done():
		session.Stop()
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		session.Stop()
	case <-session.Done():
		session.Stop()
		if session.State() == realtime.StateFailed {
			return errors.New("session ended with a transport failure")
		}
	}

	logger.Info("agent stopped", "transcript_entries", log.Len())
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, args []string, deps agentDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	flags := flag.NewFlagSet("voltdesk", flag.ContinueOnError)
	flags.SetOutput(stderr)
	migrate := flags.Bool("migrate", false, "apply database migrations and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(stderr, "voltdesk: %v\n", err)
		return 1
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "voltdesk: load config: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	if *migrate {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			fmt.Fprintf(stderr, "voltdesk: %v\n", err)
			return 1
		}
		return 0
	}

	if err := runAgent(ctx, logger, cfg, deps); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "voltdesk: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, os.Args[1:], defaultAgentDeps()))
}
