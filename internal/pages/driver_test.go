package pages

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// fakeDriver is a scripted Driver. Elements are keyed by Locator.String().
// Waits never block: an element is either there or the wait fails.
type fakeDriver struct {
	mu sync.Mutex

	url     string
	visible map[string]bool
	// misses makes the next n waits for a visible element fail.
	misses  map[string]int
	counts  map[string]int
	texts   map[string][]string
	values  map[string]string
	fields  map[string][]Field
	// attrs holds a sequence of readings per "locator@name"; the last one
	// repeats.
	attrs   map[string][]string
	onClick map[string]func()

	clicks  []string
	fills   map[string]string
	presses []string
}

var _ Driver = (*fakeDriver)(nil)

func newFakeDriver(url string) *fakeDriver {
	return &fakeDriver{
		url:     url,
		visible: make(map[string]bool),
		misses:  make(map[string]int),
		counts:  make(map[string]int),
		texts:   make(map[string][]string),
		values:  make(map[string]string),
		fields:  make(map[string][]Field),
		attrs:   make(map[string][]string),
		onClick: make(map[string]func()),
		fills:   make(map[string]string),
	}
}

func (f *fakeDriver) show(locs ...Locator) {
	for _, l := range locs {
		f.visible[l.String()] = true
	}
}

func (f *fakeDriver) hide(locs ...Locator) {
	for _, l := range locs {
		delete(f.visible, l.String())
	}
}

func (f *fakeDriver) miss(l Locator, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses[l.String()] = n
}

func (f *fakeDriver) on(l Locator, fn func()) {
	f.onClick[l.String()] = fn
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return ctx.Err()
}

func (f *fakeDriver) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !pattern.MatchString(f.url) {
		return fmt.Errorf("url %s does not match %s", f.url, pattern)
	}
	return nil
}

func (f *fakeDriver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := loc.String()
	if f.misses[key] > 0 {
		f.misses[key]--
		return fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	if !f.visible[key] {
		return fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return nil
}

func (f *fakeDriver) WaitHidden(ctx context.Context, loc Locator, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visible[loc.String()] {
		return fmt.Errorf("%s still visible", loc)
	}
	return nil
}

func (f *fakeDriver) IsVisible(ctx context.Context, loc Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible[loc.String()], nil
}

func (f *fakeDriver) Count(ctx context.Context, loc Locator) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.counts[loc.String()]; ok {
		return n, nil
	}
	if f.visible[loc.String()] {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeDriver) Click(ctx context.Context, loc Locator) error {
	f.mu.Lock()
	key := loc.String()
	if !f.visible[key] {
		f.mu.Unlock()
		return fmt.Errorf("click %s: %w", loc, ErrNotFound)
	}
	f.clicks = append(f.clicks, key)
	hook := f.onClick[key]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeDriver) Fill(ctx context.Context, loc Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills[loc.String()] = value
	return nil
}

func (f *fakeDriver) Press(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presses = append(f.presses, key)
	return nil
}

func (f *fakeDriver) Text(ctx context.Context, loc Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := f.texts[loc.String()]
	if len(texts) == 0 {
		return "", fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return texts[0], nil
}

func (f *fakeDriver) Texts(ctx context.Context, loc Locator) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts[loc.String()]...), nil
}

func (f *fakeDriver) Value(ctx context.Context, loc Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[loc.String()], nil
}

func (f *fakeDriver) Attribute(ctx context.Context, loc Locator, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := loc.String() + "@" + name
	seq := f.attrs[key]
	if len(seq) == 0 {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	v := seq[0]
	if len(seq) > 1 {
		f.attrs[key] = seq[1:]
	}
	return v, nil
}

func (f *fakeDriver) setAttr(loc Locator, name string, seq ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[loc.String()+"@"+name] = seq
}

func (f *fakeDriver) Fields(ctx context.Context, loc Locator) ([]Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields[loc.String()], nil
}

func (f *fakeDriver) WaitIdle(ctx context.Context) error { return ctx.Err() }

func (f *fakeDriver) ScrollTop(ctx context.Context) error { return nil }

func (f *fakeDriver) clicked(loc Locator) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == loc.String() {
			n++
		}
	}
	return n
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// testSettings keeps every wait instant and runs page operations once
// unless attempts says otherwise.
func testSettings(attempts int) (Settings, *api.Executor) {
	s := DefaultSettings()
	s.BaseURL = "https://console.test"
	s.Retry = api.RetryPolicy{MaxAttempts: attempts}
	s.Toggle.PollInterval = time.Millisecond
	s.SaveTimeout = time.Second
	return s, api.NewExecutor(api.WithSleep(noSleep), api.WithPollInterval(time.Millisecond))
}
