package browser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/petrijr/uiflow/internal/pages"
	"github.com/petrijr/uiflow/pkg/api"
)

// lookup is the shape returned by value and attribute scripts.
type lookup struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (b *Browser) eval(ctx context.Context, loc pages.Locator, body string, out any) error {
	expr, err := script(loc, body)
	if err != nil {
		return err
	}
	if err := b.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate %s: %w", loc, err)
	}
	return nil
}

// poll waits until check reports true or timeout elapses.
func (b *Browser) poll(ctx context.Context, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return api.WhenTrue(check, b.opts.PollInterval)(ctx)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.log.DebugContext(ctx, "navigate", "url", url)
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *Browser) URL(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (b *Browser) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	err := b.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		url, err := b.URL(ctx)
		return pattern.MatchString(url), err
	})
	if err != nil {
		return fmt.Errorf("wait for url %s: %w", pattern, err)
	}
	return nil
}

func (b *Browser) WaitVisible(ctx context.Context, loc pages.Locator, timeout time.Duration) error {
	if err := b.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		return b.IsVisible(ctx, loc)
	}); err != nil {
		return fmt.Errorf("%s not visible within %s: %w", loc, timeout, err)
	}
	return nil
}

func (b *Browser) WaitHidden(ctx context.Context, loc pages.Locator, timeout time.Duration) error {
	if err := b.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		shown, err := b.IsVisible(ctx, loc)
		return !shown, err
	}); err != nil {
		return fmt.Errorf("%s still visible after %s: %w", loc, timeout, err)
	}
	return nil
}

func (b *Browser) IsVisible(ctx context.Context, loc pages.Locator) (bool, error) {
	var shown bool
	err := b.eval(ctx, loc, visibleBody, &shown)
	return shown, err
}

func (b *Browser) Count(ctx context.Context, loc pages.Locator) (int, error) {
	var n int
	err := b.eval(ctx, loc, countBody, &n)
	return n, err
}

// mark tags the first match of loc and returns a CSS selector for it.
func (b *Browser) mark(ctx context.Context, loc pages.Locator) (string, error) {
	ref := strconv.FormatUint(b.refs.Add(1), 10)
	var ok bool
	if err := b.eval(ctx, loc, markBody(ref), &ok); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", loc, pages.ErrNotFound)
	}
	return refSelector(ref), nil
}

func (b *Browser) Click(ctx context.Context, loc pages.Locator) error {
	if err := b.pace(ctx); err != nil {
		return err
	}
	sel, err := b.mark(ctx, loc)
	if err != nil {
		return err
	}
	b.log.DebugContext(ctx, "click", "locator", loc.String())
	return b.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

func (b *Browser) Fill(ctx context.Context, loc pages.Locator, value string) error {
	if err := b.pace(ctx); err != nil {
		return err
	}
	sel, err := b.mark(ctx, loc)
	if err != nil {
		return err
	}
	b.log.DebugContext(ctx, "fill", "locator", loc.String())
	return b.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

func (b *Browser) Press(ctx context.Context, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	if err := b.pace(ctx); err != nil {
		return err
	}
	return b.run(ctx, chromedp.KeyEvent(k))
}

func (b *Browser) Text(ctx context.Context, loc pages.Locator) (string, error) {
	texts, err := b.Texts(ctx, loc)
	if err != nil {
		return "", err
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%s: %w", loc, pages.ErrNotFound)
	}
	return texts[0], nil
}

func (b *Browser) Texts(ctx context.Context, loc pages.Locator) ([]string, error) {
	var texts []string
	err := b.eval(ctx, loc, textsBody, &texts)
	return texts, err
}

func (b *Browser) Value(ctx context.Context, loc pages.Locator) (string, error) {
	return b.lookup(ctx, loc, valueBody)
}

func (b *Browser) Attribute(ctx context.Context, loc pages.Locator, name string) (string, error) {
	return b.lookup(ctx, loc, attributeBody(name))
}

func (b *Browser) lookup(ctx context.Context, loc pages.Locator, body string) (string, error) {
	var res lookup
	if err := b.eval(ctx, loc, body, &res); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", loc, pages.ErrNotFound)
	}
	return res.Value, nil
}

func (b *Browser) Fields(ctx context.Context, loc pages.Locator) ([]pages.Field, error) {
	var raw []struct {
		Index       int    `json:"index"`
		Name        string `json:"name"`
		Placeholder string `json:"placeholder"`
		Type        string `json:"type"`
		Context     string `json:"context"`
		Visible     bool   `json:"visible"`
	}
	if err := b.eval(ctx, loc, fieldsBody, &raw); err != nil {
		return nil, err
	}
	fields := make([]pages.Field, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, pages.Field{
			Index:       f.Index,
			Name:        f.Name,
			Placeholder: f.Placeholder,
			Type:        f.Type,
			Context:     f.Context,
			Visible:     f.Visible,
		})
	}
	return fields, nil
}

// WaitIdle waits for the body and then until the document state and the
// number of loaded resources stop changing.
func (b *Browser) WaitIdle(ctx context.Context) error {
	if err := b.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for document: %w", err)
	}
	_, err := api.Stabilize(ctx, b.executor(ctx), "network idle", func(ctx context.Context) (string, error) {
		var probe string
		err := b.run(ctx, chromedp.Evaluate(idleProbe, &probe))
		return probe, err
	}, api.StabilizeOptions{
		RequiredStableReadings: 3,
		PollInterval:           250 * time.Millisecond,
		MaxPolls:               40,
	})
	return err
}

func (b *Browser) ScrollTop(ctx context.Context) error {
	return b.run(ctx, chromedp.Evaluate(`window.scrollTo(0, 0)`, nil))
}
