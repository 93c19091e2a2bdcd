package pages

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

const (
	managerURL = "https://console.test/foundry/app-manager/abc123"
	editURL    = "https://console.test/foundry/app-builder/abc123/automation/workflows/wf1/edit"
	draftPage  = "https://console.test/foundry/app-builder/abc123/draft/overview"
)

// builderDriver scripts the app manager with one workflow template row per
// entry of provision (its name and whether provisioning starts on).
func builderDriver(notes string, rows []string, provision []bool) *fakeDriver {
	d := newFakeDriver("about:blank")

	// Release notes in the catalog.
	d.show(Role("searchbox", "Search"), Role("link", testApp), releasesTab, latestNotesCell)
	d.texts[latestNotesCell.String()] = []string{notes}

	// App manager.
	appLink := CSS("a").WithText(testApp).First()
	d.show(mainMenuButton, appManagerLink, appLink, logicHeading)
	d.on(appLink, func() { d.url = managerURL })
	d.counts[workflowRows.String()] = len(rows)

	// Editor.
	d.show(editMenuItem, editorCanvas, settingsButton, settingsHeading, provisionToggle, dialogClose, saveAndExit)
	for i, name := range rows {
		row := workflowRows.At(i)
		d.texts[CSS("a").First().In(row).String()] = []string{name}
		d.show(rowMenuButton.In(row))
		on := provision[i]
		d.on(rowMenuButton.In(row), func() {
			state := "false"
			if on {
				state = "true"
			}
			d.setAttr(provisionToggle, "aria-checked", state)
			d.hide(toggleOff, templateUpdated)
		})
	}
	d.on(editMenuItem, func() { d.url = editURL })
	d.on(provisionToggle, func() {
		d.setAttr(provisionToggle, "aria-checked", "false")
		d.show(toggleOff)
	})
	d.on(saveAndExit, func() { d.show(templateUpdated) })

	// Deploy.
	deployHeading := Role("heading", "Commit deployment")
	deployModal := CSS(`dialog, [role="dialog"]`).WithText("Commit deployment")
	openDeploy := CSS("button").WithText("Deploy").First()
	commitDeploy := Role("button", "Deploy").LastMatch()
	d.show(CSS("a").WithText("Edit app").First(), CSS(`nav[aria-label="Breadcrumb"] a`).WithText("App builder").First(), openDeploy)
	d.on(CSS("a").WithText("Edit app").First(), func() { d.url = draftPage })
	d.on(openDeploy, func() {
		d.show(deployHeading, deployModal, changeTypeButton.In(deployModal), CSS(`[role="listbox"], [role="menu"]`),
			CSS("textarea").LastMatch(), commitDeploy)
	})
	d.on(commitDeploy, func() {
		d.url = draftPage
		d.show(Text(`Deployed|deployment.*successful`))
	})

	// Release.
	releaseButton := Role("button", "Release")
	releaseModal := CSS(`dialog, [role="dialog"]`).WithText("Commit release")
	commitRelease := Role("button", "Release").LastMatch()
	d.show(releaseButton)
	d.on(releaseButton, func() {
		d.show(Role("heading", "Commit release"), releaseModal, changeTypeButton.In(releaseModal),
			CSS(`[role="listbox"]`), Role("textbox", "Release notes"), commitRelease)
	})
	d.on(commitRelease, func() { d.show(Text(`^Deployment released successfully$`)) })
	return d
}

func TestAppBuilder_DisableProvisioningDeploysAndReleases(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha", "Beta"}, []bool{true, false})
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if res.AlreadyDisabled || res.Templates != 2 || !res.Released {
		t.Fatalf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(res.Changed, []string{"Alpha"}) {
		t.Fatalf("expected Alpha to change, got %v", res.Changed)
	}
	if !reflect.DeepEqual(res.Processed, []string{"Alpha", "Beta"}) {
		t.Fatalf("expected both templates processed, got %v", res.Processed)
	}
	if d.clicked(provisionToggle) != 1 {
		t.Fatalf("expected exactly one toggle click, got %d", d.clicked(provisionToggle))
	}
	if d.clicked(saveAndExit) != 1 {
		t.Fatalf("expected one save, got %d", d.clicked(saveAndExit))
	}
	if got := d.fills[CSS("textarea").LastMatch().String()]; got != ReleaseMarker {
		t.Fatalf("expected change log %q, got %q", ReleaseMarker, got)
	}
	if got := d.fills[Role("textbox", "Release notes").String()]; got != ReleaseMarker {
		t.Fatalf("expected release notes %q, got %q", ReleaseMarker, got)
	}
	if want := []string{"Enter", "ArrowDown", "Enter", "ArrowDown", "Enter"}; !reflect.DeepEqual(d.presses, want) {
		t.Fatalf("expected key presses %v, got %v", want, d.presses)
	}
}

func TestAppBuilder_SavedChangeIsDeployedWhenLaterStepFails(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha"}, []bool{true})
	// Navigating back after the save fails for the whole first attempt.
	d.on(saveAndExit, func() {
		d.show(templateUpdated)
		d.miss(mainMenuButton, 2)
	})
	s, exec := testSettings(2)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if !reflect.DeepEqual(res.Changed, []string{"Alpha"}) {
		t.Fatalf("expected the saved change to be kept, got %v", res.Changed)
	}
	if !res.Released {
		t.Fatalf("expected the saved change to be deployed and released, got %+v", res)
	}
	if d.clicked(saveAndExit) != 1 || d.clicked(provisionToggle) != 1 {
		t.Fatalf("expected one toggle and one save, got %d/%d", d.clicked(provisionToggle), d.clicked(saveAndExit))
	}
}

func TestAppBuilder_MarkerSkipsEverything(t *testing.T) {
	d := builderDriver("Fixes\n"+ReleaseMarker, []string{"Alpha"}, []bool{true})
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if !res.AlreadyDisabled {
		t.Fatalf("expected already disabled, got %+v", res)
	}
	if d.clicked(mainMenuButton) != 0 {
		t.Fatalf("app manager must not be opened")
	}
}

func TestAppBuilder_NoTemplates(t *testing.T) {
	d := builderDriver("Initial release", nil, nil)
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if res.Templates != 0 || res.Released {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAppBuilder_NothingToChangeSkipsDeploy(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha", "Beta"}, []bool{false, false})
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if res.Released || len(res.Changed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Processed) != 2 {
		t.Fatalf("expected 2 processed templates, got %v", res.Processed)
	}
	if d.clicked(dialogClose) != 2 {
		t.Fatalf("expected the settings dialog to be closed twice, got %d", d.clicked(dialogClose))
	}
	if d.clicked(Role("button", "Release")) != 0 {
		t.Fatalf("release must not start without changes")
	}
}

func TestAppBuilder_DuplicateTemplateNameIsSkipped(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha", "Alpha"}, []bool{false, true})
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err != nil {
		t.Fatalf("DisableWorkflowProvisioning error: %v", err)
	}
	if d.clicked(rowMenuButton.In(workflowRows.At(1))) != 0 {
		t.Fatalf("second Alpha row must be skipped")
	}
	if len(res.Changed) != 0 || res.Released {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAppBuilder_ValidationErrors(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha"}, []bool{true})
	d.on(saveAndExit, func() { d.show(issuesPanel) })
	d.texts[propertyErrors.String()] = []string{
		"  Property 'name'   contains unknown variable x",
		"property title contains invalid value",
		"Error: property z contains",
		"property title contains invalid value",
	}
	d.texts[genericErrors.String()] = []string{"failed"}
	s, exec := testSettings(1)

	res, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Workflow != "Alpha" {
		t.Fatalf("unexpected workflow %q", verr.Workflow)
	}
	want := []string{
		"Property 'name' contains unknown variable x",
		"property title contains invalid value",
	}
	if !reflect.DeepEqual(verr.Errors, want) {
		t.Fatalf("expected errors %v, got %v", want, verr.Errors)
	}
	if res.Released || len(res.Processed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAppBuilder_ValidationFallsBackToGenericErrors(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha"}, []bool{true})
	d.on(saveAndExit, func() { d.show(issuesPanel) })
	d.texts[genericErrors.String()] = []string{"Step 2 failed", "Step 2 failed", "invalid mapping"}
	s, exec := testSettings(1)

	_, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if want := []string{"Step 2 failed", "invalid mapping"}; !reflect.DeepEqual(verr.Errors, want) {
		t.Fatalf("expected errors %v, got %v", want, verr.Errors)
	}
}

func TestAppBuilder_SaveTimeout(t *testing.T) {
	d := builderDriver("Initial release", []string{"Alpha"}, []bool{true})
	d.on(saveAndExit, func() {})
	s, exec := testSettings(2)
	s.SaveTimeout = 50 * time.Millisecond

	_, err := NewAppBuilder(d, s, exec).DisableWorkflowProvisioning(context.Background(), testApp)
	if err == nil {
		t.Fatalf("expected an error when neither outcome appears")
	}
	if d.clicked(saveAndExit) != 2 {
		t.Fatalf("expected the row to be retried, got %d saves", d.clicked(saveAndExit))
	}
}
