package pages

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

const appManagerPath = "/foundry/app-manager/"

var (
	editorURL = regexp.MustCompile(`/app-builder/.*/automation/workflows/.*/edit`)
	draftURL  = regexp.MustCompile(`/foundry/app-builder/.*/draft/.*`)
)

var (
	releasesTab      = RolePattern("tab", `Releases`)
	latestNotesCell  = CSS(`table tbody tr:first-child td:nth-child(2)`).First()
	mainMenuButton   = CSS(`button[aria-label*="menu"]`).First()
	appManagerLink   = Text(`App manager`).First()
	logicHeading     = Heading("Logic", 3)
	workflowRows     = CSS(`[role="grid"] tbody tr`).WithText("Workflow template")
	rowMenuButton    = CSS(`[aria-label="Open menu"]`)
	editMenuItem     = Role("menuitem", "Edit")
	editorCanvas     = RolePattern("heading", `Graphical representation area`)
	settingsButton   = Role("button", "Settings")
	settingsHeading  = Heading("Workflow template details", 0)
	provisionToggle  = CSS(`[role="switch"][aria-label="Provision on install"]`)
	toggleOff        = CSS(`[role="switch"][aria-label="Provision on install"][aria-checked="false"]`)
	dialogClose      = Role("button", "Close").In(Role("dialog", ""))
	saveAndExit      = Role("button", "Save and exit")
	templateUpdated  = Text(`Workflow template updated`)
	issuesPanel      = Text(`^Issues$`).First()
	propertyErrors   = Text(`property.*contains`)
	genericErrors    = Text(`contains unknown variable|invalid|failed`)
	changeTypeButton = Role("button", "Change type")
)

// AppBuilder drives the app manager and app builder: it turns off "Provision
// on install" for every workflow template of an app and ships the change.
type AppBuilder struct {
	page
}

// NewAppBuilder returns an AppBuilder on d.
func NewAppBuilder(d Driver, s Settings, exec *api.Executor) *AppBuilder {
	return &AppBuilder{page: newPage(d, s, exec, "app_builder")}
}

// DisableWorkflowProvisioning turns off provisioning for every workflow
// template of app. When the latest release notes carry ReleaseMarker
// nothing is inspected. When any template changed, the app is deployed and
// released with ReleaseMarker as notes.
//
// Each template is handled by its own retried operation. Templates already
// handled, successfully, are skipped by later attempts.
func (b *AppBuilder) DisableWorkflowProvisioning(ctx context.Context, app string) (ProvisioningResult, error) {
	res := ProvisioningResult{App: app}
	b.log.InfoContext(ctx, "disable_provisioning_start", slog.String("app", app))

	done, err := b.alreadyDisabled(ctx, app)
	if err != nil {
		return res, err
	}
	if done {
		b.log.InfoContext(ctx, "provisioning_already_disabled", slog.String("app", app))
		res.AlreadyDisabled = true
		return res, nil
	}

	if err := b.openAppDetails(ctx, app); err != nil {
		return res, err
	}
	if err := b.waitVisible(ctx, logicHeading); err != nil {
		return res, err
	}
	count, err := b.d.Count(ctx, workflowRows)
	if err != nil {
		return res, fmt.Errorf("count workflow templates: %w", err)
	}
	res.Templates = count
	b.log.InfoContext(ctx, "workflow_templates", slog.Int("count", count))
	if count == 0 {
		b.log.WarnContext(ctx, "no_workflow_templates", slog.String("app", app))
		return res, nil
	}

	processed := api.NewProcessedSet()
	for i := 0; i < count; i++ {
		label := fmt.Sprintf("disable provisioning for workflow %d", i+1)
		err := b.do(ctx, label, func(ctx context.Context) error {
			return b.disableTemplate(ctx, app, i, processed, func(name string) {
				res.Changed = append(res.Changed, name)
			})
		})
		if err != nil {
			res.Processed = processed.Names()
			return res, err
		}
	}
	res.Processed = processed.Names()

	if len(res.Changed) == 0 {
		b.log.InfoContext(ctx, "provisioning_unchanged", slog.String("app", app))
		return res, nil
	}

	if err := b.do(ctx, "deploy app", b.deploy); err != nil {
		return res, err
	}
	if err := b.do(ctx, "release app", b.release); err != nil {
		return res, err
	}
	res.Released = true
	b.log.InfoContext(ctx, "provisioning_disabled",
		slog.String("app", app),
		slog.Int("changed", len(res.Changed)),
	)
	return res, nil
}

// alreadyDisabled reports whether the latest release notes of app carry
// ReleaseMarker.
func (b *AppBuilder) alreadyDisabled(ctx context.Context, app string) (bool, error) {
	var found bool
	err := b.do(ctx, "check release notes for provisioning marker", func(ctx context.Context) error {
		catalog := AppCatalog{page: b.page}
		if err := catalog.openApp(ctx, app); err != nil {
			return err
		}
		if err := b.click(ctx, releasesTab); err != nil {
			return err
		}
		if err := b.waitVisible(ctx, latestNotesCell); err != nil {
			return err
		}
		notes, err := b.d.Text(ctx, latestNotesCell)
		if err != nil {
			return fmt.Errorf("read release notes: %w", err)
		}
		found = strings.Contains(notes, ReleaseMarker)
		return nil
	})
	return found, err
}

func (b *AppBuilder) openAppDetails(ctx context.Context, app string) error {
	return b.do(ctx, "navigate to app details", func(ctx context.Context) error {
		if err := b.click(ctx, mainMenuButton); err != nil {
			return err
		}
		if err := b.click(ctx, appManagerLink); err != nil {
			return err
		}
		if err := b.d.WaitIdle(ctx); err != nil {
			return err
		}
		if err := b.click(ctx, CSS("a").WithText(app).First()); err != nil {
			return err
		}
		return b.d.WaitIdle(ctx)
	})
}

// disableTemplate handles the i-th workflow template row. saved is called
// with the template name once its switched-off toggle has been saved; from
// then on the template counts as changed and processed even if a later step
// of the same attempt fails.
func (b *AppBuilder) disableTemplate(ctx context.Context, app string, i int, processed *api.ProcessedSet, saved func(name string)) error {
	url, err := b.d.URL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(url, appManagerPath) {
		if err := b.openAppDetails(ctx, app); err != nil {
			return err
		}
	}
	if err := b.waitVisible(ctx, logicHeading); err != nil {
		return err
	}

	row := workflowRows.At(i)
	name := fmt.Sprintf("Workflow %d", i+1)
	if text, err := b.d.Text(ctx, CSS("a").First().In(row)); err == nil && strings.TrimSpace(text) != "" {
		name = api.NormalizeText(text)
	}
	if processed.Has(name) {
		b.log.InfoContext(ctx, "workflow_skipped", slog.String("workflow", name))
		return nil
	}
	b.log.InfoContext(ctx, "workflow_processing", slog.String("workflow", name))

	if err := b.openEditor(ctx, row); err != nil {
		return err
	}

	stab, err := api.StabilizeDetailed(ctx, b.executor(ctx), "provision toggle "+name, func(ctx context.Context) (bool, error) {
		v, err := b.d.Attribute(ctx, provisionToggle, "aria-checked")
		return v == "true", err
	}, b.s.Toggle)
	if err != nil {
		return err
	}
	b.log.InfoContext(ctx, "toggle_state",
		slog.String("workflow", name),
		slog.Bool("provision", stab.Value),
		slog.Bool("stable", stab.Stable),
	)

	if !stab.Value {
		if err := b.click(ctx, dialogClose); err != nil {
			return err
		}
		processed.Mark(name)
		return nil
	}

	if err := b.click(ctx, provisionToggle); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, toggleOff, 5*time.Second); err != nil {
		return err
	}
	if err := b.click(ctx, dialogClose); err != nil {
		return err
	}
	if err := b.click(ctx, saveAndExit); err != nil {
		return err
	}

	if err := b.awaitSave(ctx, name); err != nil {
		return err
	}
	processed.Mark(name)
	saved(name)
	b.log.InfoContext(ctx, "workflow_provisioning_disabled", slog.String("workflow", name))

	if err := b.d.WaitIdle(ctx); err != nil {
		return err
	}
	return b.openAppDetails(ctx, app)
}

// openEditor opens the row's workflow in the editor and its settings
// dialog.
func (b *AppBuilder) openEditor(ctx context.Context, row Locator) error {
	if err := b.click(ctx, rowMenuButton.In(row)); err != nil {
		return err
	}
	if err := b.click(ctx, editMenuItem, 5*time.Second); err != nil {
		return err
	}
	if err := b.d.WaitURL(ctx, editorURL, 15*time.Second); err != nil {
		return fmt.Errorf("wait for workflow editor: %w", err)
	}
	if err := b.d.WaitIdle(ctx); err != nil {
		return err
	}
	if err := b.waitAttached(ctx, editorCanvas, 15*time.Second); err != nil {
		return err
	}
	if err := b.click(ctx, settingsButton, 15*time.Second); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, settingsHeading, 15*time.Second); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, provisionToggle); err != nil {
		return err
	}
	return b.d.WaitIdle(ctx)
}

// awaitSave races the save confirmation against the issues panel.
func (b *AppBuilder) awaitSave(ctx context.Context, workflow string) error {
	tag, err := b.executor(ctx).Race(ctx, "save "+workflow, b.s.SaveTimeout,
		api.Signal{Tag: "updated", Check: shown(b.d, templateUpdated)},
		api.Signal{Tag: "errors", Check: shown(b.d, issuesPanel)},
	)
	if err != nil {
		return err
	}

	switch tag {
	case "updated":
		return nil
	case "errors":
		errs, err := api.ExtractErrors(ctx,
			api.HasPrefixFold(b.texts(propertyErrors), "property"),
			b.texts(genericErrors),
			api.DefaultErrorCap,
		)
		if err != nil {
			return fmt.Errorf("read issues for %s: %w", workflow, err)
		}
		verr := &ValidationError{Workflow: workflow, Errors: errs}
		b.log.ErrorContext(ctx, "workflow_validation_failed",
			slog.String("workflow", workflow),
			slog.Any("errors", errs),
		)
		return verr
	default:
		return fmt.Errorf("timeout waiting for save confirmation or issues panel for workflow %q", workflow)
	}
}

func (b *AppBuilder) texts(loc Locator) api.TextMatcher {
	return func(ctx context.Context) ([]string, error) {
		return b.d.Texts(ctx, loc)
	}
}

// selectChangeType picks the first change type in a commit modal.
func (b *AppBuilder) selectChangeType(ctx context.Context, modal, dropdown Locator) error {
	if err := b.click(ctx, changeTypeButton.In(modal), 15*time.Second); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, dropdown, 5*time.Second); err != nil {
		return err
	}
	for _, key := range []string{"ArrowDown", "Enter"} {
		if err := b.d.Press(ctx, key); err != nil {
			return fmt.Errorf("select change type: %w", err)
		}
	}
	return nil
}

func (b *AppBuilder) deploy(ctx context.Context) error {
	b.log.InfoContext(ctx, "deploy_start")

	url, err := b.d.URL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(url, appManagerPath) {
		if err := b.click(ctx, CSS("a").WithText("Edit app").First()); err != nil {
			return err
		}
		if err := b.d.WaitURL(ctx, draftURL, b.s.Timeout); err != nil {
			return fmt.Errorf("wait for app builder: %w", err)
		}
		if err := b.d.WaitIdle(ctx); err != nil {
			return err
		}
	}

	// A previous attempt may have left the modal open.
	heading := Role("heading", "Commit deployment")
	open, err := b.exists(ctx, heading, time.Second)
	if err != nil {
		return err
	}
	if !open {
		if err := b.click(ctx, CSS(`nav[aria-label="Breadcrumb"] a`).WithText("App builder").First()); err != nil {
			return err
		}
		if err := b.d.WaitIdle(ctx); err != nil {
			return err
		}
		if err := b.click(ctx, CSS("button").WithText("Deploy").First()); err != nil {
			return err
		}
		if err := b.waitVisible(ctx, heading); err != nil {
			return err
		}
		if err := b.d.WaitIdle(ctx); err != nil {
			return err
		}
	}

	modal := CSS(`dialog, [role="dialog"]`).WithText("Commit deployment")
	if err := b.waitVisible(ctx, modal, 15*time.Second); err != nil {
		return err
	}
	if err := b.selectChangeType(ctx, modal, CSS(`[role="listbox"], [role="menu"]`)); err != nil {
		return err
	}

	changeLog := CSS("textarea").LastMatch()
	if err := b.waitVisible(ctx, changeLog); err != nil {
		return err
	}
	if v, _ := b.d.Value(ctx, changeLog); v == "" {
		if err := b.d.Fill(ctx, changeLog, ReleaseMarker); err != nil {
			return fmt.Errorf("fill change log: %w", err)
		}
	}

	if err := b.click(ctx, Role("button", "Deploy").LastMatch()); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, Text(`Deployed|deployment.*successful`), 120*time.Second); err != nil {
		return err
	}

	progress := Text(`^Deployment in progress$`)
	if shown, _ := b.d.IsVisible(ctx, progress); shown {
		b.log.InfoContext(ctx, "deploy_in_progress")
		if err := b.d.WaitHidden(ctx, progress, 60*time.Second); err != nil {
			return fmt.Errorf("wait for deployment: %w", err)
		}
	}

	if err := b.d.WaitURL(ctx, draftURL, 30*time.Second); err != nil {
		return fmt.Errorf("wait for app builder: %w", err)
	}
	if err := b.d.WaitIdle(ctx); err != nil {
		return err
	}
	b.log.InfoContext(ctx, "app_deployed")
	return nil
}

func (b *AppBuilder) release(ctx context.Context) error {
	b.log.InfoContext(ctx, "release_start")

	if err := b.d.WaitIdle(ctx); err != nil {
		return err
	}
	if err := b.d.ScrollTop(ctx); err != nil {
		return err
	}

	// The deploy toast covers the Release button.
	toast := Text(`^App deployed successfully$`)
	if shown, _ := b.d.IsVisible(ctx, toast); shown {
		if err := b.d.WaitHidden(ctx, toast, 30*time.Second); err != nil {
			return fmt.Errorf("wait for deploy toast: %w", err)
		}
	}

	if err := b.click(ctx, Role("button", "Release"), 15*time.Second); err != nil {
		return err
	}
	if err := b.waitVisible(ctx, Role("heading", "Commit release"), 15*time.Second); err != nil {
		return err
	}
	modal := CSS(`dialog, [role="dialog"]`).WithText("Commit release")
	if err := b.waitVisible(ctx, modal, 15*time.Second); err != nil {
		return err
	}
	if err := b.selectChangeType(ctx, modal, CSS(`[role="listbox"]`)); err != nil {
		return err
	}

	notes := Role("textbox", "Release notes")
	if err := b.waitVisible(ctx, notes); err != nil {
		return err
	}
	if err := b.d.Fill(ctx, notes, ReleaseMarker); err != nil {
		return fmt.Errorf("fill release notes: %w", err)
	}
	if err := b.click(ctx, Role("button", "Release").LastMatch()); err != nil {
		return err
	}

	released := Text(`^Deployment released successfully$`)
	if err := b.waitVisible(ctx, released, 30*time.Second); err != nil {
		return err
	}
	// Best effort; the toast only needs to clear before the next action.
	_ = b.d.WaitHidden(ctx, released, 30*time.Second)
	if err := b.d.WaitIdle(ctx); err != nil {
		return err
	}
	b.log.InfoContext(ctx, "app_released")
	return nil
}
