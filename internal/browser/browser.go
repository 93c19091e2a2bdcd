// Package browser implements pages.Driver on Chrome through chromedp.
//
// Locators are resolved by a small engine evaluated in the page, which
// understands ARIA roles, accessible names and innermost-text matches.
// Input actions (click, fill, key presses) address the resolved element
// through a temporary data attribute and run as native chromedp actions,
// paced by a token-bucket limiter.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/petrijr/uiflow/internal/pages"
	"github.com/petrijr/uiflow/pkg/api"
)

// Options configures a Browser. Zero values take the defaults noted on each
// field.
type Options struct {
	Headless    bool
	ExecPath    string
	UserDataDir string

	// Width and Height default to 1920x1080.
	Width, Height int

	// ActionsPerSecond paces input actions; zero or less disables pacing.
	ActionsPerSecond float64
	// Burst defaults to 1.
	Burst int

	// PollInterval is used by every wait; it defaults to 100ms.
	PollInterval time.Duration

	// ActionTimeout bounds a single chromedp action; it defaults to 30s.
	ActionTimeout time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1920, 1080
	}
	if o.Burst < 1 {
		o.Burst = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Browser is one Chrome tab. It is owned by a single flow at a time.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	opts    Options
	limiter *rate.Limiter
	exec    *api.Executor
	log     *slog.Logger
	refs    atomic.Uint64
}

var _ pages.Driver = (*Browser)(nil)

// newLimiter returns the action pacing limiter for opts.
func newLimiter(opts Options) *rate.Limiter {
	if opts.ActionsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, opts.Burst)
	}
	return rate.NewLimiter(rate.Limit(opts.ActionsPerSecond), opts.Burst)
}

// allocatorOptions returns the Chrome flags for opts.
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	return out
}

// Launch starts Chrome and opens a tab.
func Launch(opts Options) (*Browser, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With(slog.String("component", "browser"))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug("chromedp", slog.String("message", fmt.Sprintf(format, args...)))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			log.Warn("chromedp_error", slog.String("message", fmt.Sprintf(format, args...)))
		}),
	)

	// The first Run starts the browser.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	b := &Browser{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		opts:        opts,
		limiter:     newLimiter(opts),
		exec:        api.NewExecutor(api.WithObserver(api.NewLoggingObserver(log))),
		log:         log,
	}
	b.listenConsole()
	log.Info("browser_started", slog.Bool("headless", opts.Headless))
	return b, nil
}

// executor returns the executor of the enclosing step so that waits report
// to the run's observers, or the browser's own outside a step.
func (b *Browser) executor(ctx context.Context) *api.Executor {
	return api.ExecutorFromContext(ctx, b.exec)
}

// Close shuts the tab and the browser down.
func (b *Browser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}

func (b *Browser) listenConsole() {
	chromedp.ListenTarget(b.ctx, func(ev any) {
		msg, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		var args []string
		for _, arg := range msg.Args {
			if arg.Value != nil {
				args = append(args, string(arg.Value))
			}
		}
		b.log.Debug("console", slog.String("type", string(msg.Type)), slog.String("message", strings.Join(args, " ")))
	})
}

// run executes actions on the tab under the caller's cancellation and
// deadline, bounded by ActionTimeout.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(b.opts.ActionTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	rctx, cancel := context.WithDeadline(b.ctx, deadline)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// pace waits for the action limiter.
func (b *Browser) pace(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Screenshot writes a full-page PNG to path.
func (b *Browser) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := b.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
