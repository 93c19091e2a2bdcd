package pages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// page carries what every page flow shares.
type page struct {
	d    Driver
	s    Settings
	exec *api.Executor
	log  *slog.Logger
}

func newPage(d Driver, s Settings, exec *api.Executor, component string) page {
	s = s.withDefaults()
	if exec == nil {
		exec = api.NewExecutor(api.WithObserver(api.NewLoggingObserver(s.Logger)))
	}
	return page{
		d:    d,
		s:    s,
		exec: exec,
		log:  s.Logger.With(slog.String("page", component)),
	}
}

// executor returns the executor of the enclosing engine step, if any, so
// page actions are journaled with the run.
func (p page) executor(ctx context.Context) *api.Executor {
	return api.ExecutorFromContext(ctx, p.exec)
}

func (p page) do(ctx context.Context, label string, op api.Operation) error {
	return p.executor(ctx).Do(ctx, label, p.s.Retry, op)
}

func (p page) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return p.executor(ctx).Sleep(ctx, d)
}

func (p page) navigate(ctx context.Context, path string) error {
	if err := p.d.Navigate(ctx, p.s.url(path)); err != nil {
		return fmt.Errorf("navigate to %s: %w", path, err)
	}
	return p.d.WaitIdle(ctx)
}

// waitVisible waits with the default timeout unless one is given.
func (p page) waitVisible(ctx context.Context, loc Locator, timeout ...time.Duration) error {
	t := p.s.Timeout
	if len(timeout) > 0 {
		t = timeout[0]
	}
	if err := p.d.WaitVisible(ctx, loc, t); err != nil {
		return fmt.Errorf("wait for %s: %w", loc, err)
	}
	return nil
}

func (p page) click(ctx context.Context, loc Locator, timeout ...time.Duration) error {
	if err := p.waitVisible(ctx, loc, timeout...); err != nil {
		return err
	}
	if err := p.d.Click(ctx, loc); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// exists reports whether loc becomes visible within timeout. A wait that
// elapses is not an error; a cancelled ctx is.
func (p page) exists(ctx context.Context, loc Locator, timeout time.Duration) (bool, error) {
	err := p.d.WaitVisible(ctx, loc, timeout)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, nil
}

// waitAttached waits until loc matches at least one element, visible or not.
func (p page) waitAttached(ctx context.Context, loc Locator, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := api.WhenTrue(func(ctx context.Context) (bool, error) {
		n, err := p.d.Count(ctx, loc)
		return n > 0, err
	}, api.DefaultCheckInterval)
	if err := wait(ctx); err != nil {
		return fmt.Errorf("wait for %s to be attached: %w", loc, err)
	}
	return nil
}
