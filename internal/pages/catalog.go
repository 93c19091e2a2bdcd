package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

const catalogPath = "/foundry/app-catalog"

var installURL = regexp.MustCompile(`/foundry/app-catalog/[^/]+/install$`)

// ErrAppNotInCatalog is returned when a catalog search does not list the app.
var ErrAppNotInCatalog = errors.New("pages: app not found in catalog; make sure the app is deployed")

var (
	installNowLink     = Role("link", "Install now")
	acceptButton       = RolePattern("button", `accept.*continue`)
	nextSettingButton  = RolePattern("button", `next setting`)
	saveInstallButton  = Role("button", "Save and install")
	installAppButton   = Role("button", "Install app")
	installingToast    = Text(`installing`).First()
	installedToast     = Text(`installed`).First()
	openMenuButton     = Role("button", "Open menu").First()
	uninstallMenuItem  = Role("menuitem", "Uninstall app")
	uninstallConfirm   = Role("button", "Uninstall")
	uninstalledMessage = Text(`has been uninstalled`)
	textInputs         = CSS(`input[type="text"], input[type="url"], input:not([type="password"]):not([type])`)
	passwordInputs     = CSS(`input[type="password"]`)
)

// AppCatalog drives the app catalog: finding, installing and uninstalling
// apps.
type AppCatalog struct {
	page
}

// NewAppCatalog returns an AppCatalog on d. A nil exec gets a logging
// executor; inside an engine step the step's executor is used instead.
func NewAppCatalog(d Driver, s Settings, exec *api.Executor) *AppCatalog {
	return &AppCatalog{page: newPage(d, s, exec, "app_catalog")}
}

// openApp searches the catalog and opens the app's catalog page.
func (c *AppCatalog) openApp(ctx context.Context, app string) error {
	if err := c.navigate(ctx, catalogPath); err != nil {
		return err
	}
	search := Role("searchbox", "Search")
	if err := c.waitVisible(ctx, search); err != nil {
		return err
	}
	if err := c.d.Fill(ctx, search, app); err != nil {
		return fmt.Errorf("fill search: %w", err)
	}
	if err := c.d.Press(ctx, "Enter"); err != nil {
		return err
	}
	if err := c.d.WaitIdle(ctx); err != nil {
		return err
	}

	link := Role("link", app)
	if err := c.d.WaitVisible(ctx, link, c.s.Timeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrAppNotInCatalog, app)
	}
	if err := c.d.Click(ctx, link); err != nil {
		return fmt.Errorf("open %s: %w", app, err)
	}
	return c.d.WaitIdle(ctx)
}

// IsAppInstalled opens the app in the catalog. The app is installed when the
// page offers no "Install now" link.
func (c *AppCatalog) IsAppInstalled(ctx context.Context, app string) (bool, error) {
	if err := c.openApp(ctx, app); err != nil {
		return false, err
	}
	notInstalled, err := c.exists(ctx, installNowLink, 3*time.Second)
	if err != nil {
		return false, err
	}
	c.log.InfoContext(ctx, "install_status", slog.String("app", app), slog.Bool("installed", !notInstalled))
	return !notInstalled, nil
}

// InstallApp installs app unless it already is. Configuration screens are
// filled with dummy values. The install is verified against the catalog;
// an app that does not show up as installed yields an *InstallError.
func (c *AppCatalog) InstallApp(ctx context.Context, app string) (InstallResult, error) {
	res := InstallResult{App: app}

	installed, err := c.IsAppInstalled(ctx, app)
	if err != nil {
		return res, err
	}
	if installed {
		c.log.InfoContext(ctx, "already_installed", slog.String("app", app))
		res.AlreadyInstalled = true
		res.Installed = true
		return res, nil
	}

	if err := c.click(ctx, installNowLink); err != nil {
		return res, err
	}
	if err := c.d.WaitURL(ctx, installURL, 30*time.Second); err != nil {
		return res, fmt.Errorf("wait for install page: %w", err)
	}

	if err := c.acceptPermissions(ctx); err != nil {
		return res, err
	}
	if res.Screens, err = c.configure(ctx); err != nil {
		return res, err
	}
	if err := c.submitInstall(ctx); err != nil {
		return res, err
	}
	if err := c.waitForInstallation(ctx); err != nil {
		return res, err
	}

	if err := c.sleep(ctx, c.s.InstallVerifyDelay); err != nil {
		return res, err
	}
	if res.Installed, err = c.IsAppInstalled(ctx, app); err != nil {
		return res, err
	}
	if !res.Installed {
		return res, &InstallError{App: app}
	}
	c.log.InfoContext(ctx, "app_installed", slog.String("app", app), slog.Int("screens", res.Screens))
	return res, nil
}

func (c *AppCatalog) acceptPermissions(ctx context.Context) error {
	ok, err := c.exists(ctx, acceptButton, 3*time.Second)
	if err != nil || !ok {
		return err
	}
	c.log.InfoContext(ctx, "permissions_dialog")
	if err := c.d.Click(ctx, acceptButton); err != nil {
		return fmt.Errorf("accept permissions: %w", err)
	}
	return c.sleep(ctx, c.s.ScreenSettle)
}

// configure fills every configuration screen until there is no "Next
// setting" button. It returns the number of screens seen.
func (c *AppCatalog) configure(ctx context.Context) (int, error) {
	screens := 0
	for {
		screens++
		if err := c.fillFields(ctx, textInputs); err != nil {
			return screens, err
		}
		if err := c.fillFields(ctx, passwordInputs); err != nil {
			return screens, err
		}

		next, err := c.exists(ctx, nextSettingButton, 2*time.Second)
		if err != nil {
			return screens, err
		}
		if !next {
			return screens, nil
		}
		c.log.DebugContext(ctx, "next_setting", slog.Int("screen", screens))
		if err := c.d.Click(ctx, nextSettingButton); err != nil {
			return screens, fmt.Errorf("next setting: %w", err)
		}
		if err := c.d.WaitIdle(ctx); err != nil {
			return screens, err
		}
		if err := c.sleep(ctx, c.s.ScreenSettle); err != nil {
			return screens, err
		}
	}
}

func (c *AppCatalog) fillFields(ctx context.Context, inputs Locator) error {
	fields, err := c.d.Fields(ctx, inputs)
	if err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	for _, f := range fields {
		if !f.Visible {
			continue
		}
		value := FieldValue(f)
		if err := c.d.Fill(ctx, inputs.At(f.Index), value); err != nil {
			return fmt.Errorf("fill field %q: %w", f.Name, err)
		}
		c.log.DebugContext(ctx, "field_filled",
			slog.String("name", f.Name),
			slog.String("type", f.Type),
			slog.String("context", f.Context),
		)
	}
	return nil
}

// submitInstall clicks whichever of the two install button labels the app
// uses.
func (c *AppCatalog) submitInstall(ctx context.Context) error {
	tag, err := c.executor(ctx).Race(ctx, "install button", c.s.Timeout,
		api.Signal{Tag: "save_and_install", Check: shown(c.d, saveInstallButton)},
		api.Signal{Tag: "install_app", Check: shown(c.d, installAppButton)},
	)
	if err != nil {
		return err
	}
	btn := saveInstallButton
	switch tag {
	case "install_app":
		btn = installAppButton
	case api.TagTimeout:
		return fmt.Errorf("no install button within %s", c.s.Timeout)
	}
	// The form enables the button shortly after it renders.
	if err := c.sleep(ctx, time.Second); err != nil {
		return err
	}
	if err := c.d.Click(ctx, btn); err != nil {
		return fmt.Errorf("click install: %w", err)
	}
	return nil
}

// waitForInstallation waits for the installing and installed toasts. Both
// are best effort; the catalog check that follows is authoritative.
func (c *AppCatalog) waitForInstallation(ctx context.Context) error {
	if ok, err := c.exists(ctx, installingToast, 10*time.Second); err != nil {
		return err
	} else if !ok {
		c.log.WarnContext(ctx, "installing_toast_missing")
	}
	if ok, err := c.exists(ctx, installedToast, 15*time.Second); err != nil {
		return err
	} else if !ok {
		c.log.WarnContext(ctx, "installed_toast_missing")
	}
	return nil
}

// UninstallApp removes app. An app that is not installed is left alone.
func (c *AppCatalog) UninstallApp(ctx context.Context, app string) (UninstallResult, error) {
	res := UninstallResult{App: app}

	installed, err := c.IsAppInstalled(ctx, app)
	if err != nil {
		return res, err
	}
	if !installed {
		c.log.InfoContext(ctx, "already_uninstalled", slog.String("app", app))
		res.AlreadyUninstalled = true
		return res, nil
	}

	for _, loc := range []Locator{openMenuButton, uninstallMenuItem, uninstallConfirm} {
		if err := c.click(ctx, loc); err != nil {
			return res, err
		}
	}
	if err := c.waitVisible(ctx, uninstalledMessage, 30*time.Second); err != nil {
		return res, err
	}

	// The catalog lags behind the uninstall.
	if err := c.sleep(ctx, c.s.UninstallSettle); err != nil {
		return res, err
	}
	c.log.InfoContext(ctx, "app_uninstalled", slog.String("app", app))
	return res, nil
}

// shown reports a locator's visibility as a race check.
func shown(d Driver, loc Locator) api.CheckFunc {
	return func(ctx context.Context) (bool, error) {
		return d.IsVisible(ctx, loc)
	}
}
