// Package pages holds the page flows of the app-builder console: the app
// catalog (install, uninstall) and the app builder (workflow provisioning,
// deploy, release). Flows talk to the browser only through Driver and
// synchronize through the pkg/api primitives.
package pages

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrNotFound is returned by a Driver when a locator matches no element.
var ErrNotFound = errors.New("pages: element not found")

// Field describes a form input on the current page.
type Field struct {
	// Index is the position of the field among the matches of the locator
	// it was listed with.
	Index       int
	Name        string
	Placeholder string
	Type        string
	// Context is the text of the field's label or of its nearest form
	// container, lower-cased and whitespace-normalized.
	Context string
	Visible bool
}

// Driver is the browser capability page flows depend on. Every wait takes
// an explicit timeout and returns an error when it elapses. Implementations
// are not required to be safe for concurrent use; a page belongs to one flow
// and races poll it through Check signals from a single goroutine.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error

	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitHidden(ctx context.Context, loc Locator, timeout time.Duration) error
	IsVisible(ctx context.Context, loc Locator) (bool, error)
	Count(ctx context.Context, loc Locator) (int, error)

	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	// Press dispatches a key (for example "Enter" or "ArrowDown") to the
	// focused element.
	Press(ctx context.Context, key string) error

	Text(ctx context.Context, loc Locator) (string, error)
	Texts(ctx context.Context, loc Locator) ([]string, error)
	Value(ctx context.Context, loc Locator) (string, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, error)
	Fields(ctx context.Context, loc Locator) ([]Field, error)

	// WaitIdle waits until the document is loaded and no network request
	// has been started for a short quiet period.
	WaitIdle(ctx context.Context) error
	ScrollTop(ctx context.Context) error
}
