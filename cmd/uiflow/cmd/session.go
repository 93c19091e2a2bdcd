package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/petrijr/uiflow"
	"github.com/petrijr/uiflow/internal/browser"
	"github.com/petrijr/uiflow/internal/config"
	"github.com/petrijr/uiflow/internal/logging"
	"github.com/petrijr/uiflow/internal/metrics"
	"github.com/petrijr/uiflow/internal/pages"
	"github.com/petrijr/uiflow/pkg/worker"
)

// session holds what every command needs: config, logger, the journal
// and an engine on top of it.
type session struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *sql.DB
	bundle  *uiflow.WorkerBundle
	metrics *metrics.Observer

	closeLog func() error
}

// openSession loads the config and opens the journal. With recoverRuns,
// runs a crashed process left RUNNING are marked failed so they can be
// resumed.
func openSession(ctx context.Context, recoverRuns bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := openJournal(cfg.Journal.Path)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	m := metrics.NewObserver()
	obs := uiflow.NewCompositeObserver(uiflow.NewLoggingObserver(logger), m)
	bundle, err := uiflow.NewSQLiteBundleWithObserver(db, worker.Config{
		MaxAttempts: cfg.Worker.MaxAttempts,
		Backoff:     cfg.Worker.Backoff,
		Logger:      logger,
	}, obs)
	if err != nil {
		_ = db.Close()
		_ = closeLog()
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	s := &session{
		cfg:      cfg,
		log:      logger,
		db:       db,
		bundle:   bundle,
		metrics:  m,
		closeLog: closeLog,
	}

	if !recoverRuns {
		return s, nil
	}
	n, err := bundle.Engine.RecoverStuckRuns(ctx)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("recovering runs: %w", err)
	}
	if n > 0 {
		logger.WarnContext(ctx, "runs_recovered", slog.Int("count", n))
	}
	return s, nil
}

// openJournal opens the SQLite journal at path, creating its directory.
func openJournal(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One writer; the queue and the stores share the file.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *session) engine() uiflow.Engine {
	return s.bundle.Engine
}

// app returns the --app flag, falling back to the configured app.
func (s *session) app() string {
	if appName != "" {
		return appName
	}
	return s.cfg.Console.App
}

// browserOptions maps the browser config section onto launch options.
func browserOptions(cfg *config.Config, logger *slog.Logger) browser.Options {
	return browser.Options{
		Headless:         cfg.Browser.Headless,
		ExecPath:         cfg.Browser.ExecPath,
		UserDataDir:      cfg.Browser.UserDataDir,
		Width:            cfg.Browser.Width,
		Height:           cfg.Browser.Height,
		ActionsPerSecond: cfg.Browser.ActionsPerSecond,
		Burst:            cfg.Browser.Burst,
		ActionTimeout:    cfg.Timing.ElementTimeout * 3,
		Logger:           logger,
	}
}

// attachBrowser launches Chrome and registers the page flows on the engine.
func (s *session) attachBrowser() (*browser.Browser, error) {
	b, err := browser.Launch(browserOptions(s.cfg, s.log))
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	if err := pages.Register(s.engine(), b, s.cfg.PageSettings(s.log)); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("registering flows: %w", err)
	}
	return b, nil
}

// screenshotPath is where the screenshot of a failed run is written.
func (s *session) screenshotPath(runID string) string {
	return filepath.Join(filepath.Dir(s.cfg.Journal.Path), "screenshots", runID+".png")
}

// captureFailure saves a screenshot of the page a run failed on.
func (s *session) captureFailure(ctx context.Context, b *browser.Browser, run *uiflow.FlowRun) string {
	if run == nil || run.Status != uiflow.StatusFailed {
		return ""
	}
	path := s.screenshotPath(run.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.log.WarnContext(ctx, "screenshot_failed", slog.Any("error", err))
		return ""
	}
	if err := b.Screenshot(context.WithoutCancel(ctx), path); err != nil {
		s.log.WarnContext(ctx, "screenshot_failed", slog.String("run_id", run.ID), slog.Any("error", err))
		return ""
	}
	return path
}

// Close flushes metrics and releases the journal and log file.
func (s *session) Close() error {
	var errs []error
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.closeLog(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
