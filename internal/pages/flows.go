package pages

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/uiflow/pkg/api"
)

// Flow names registered by Flows.
const (
	FlowInstallApp          = "install-app"
	FlowUninstallApp        = "uninstall-app"
	FlowDisableProvisioning = "disable-provisioning"
	FlowEndToEnd            = "e2e"
)

// ErrNotInstalled is returned by the verify step of the e2e flow.
var ErrNotInstalled = errors.New("pages: app is not installed")

// Flows returns the app flows bound to d. Every flow takes an AppRequest;
// later steps read the app name from the previous step's result. Page
// operations retry on their own, so steps run once.
func Flows(d Driver, s Settings) []api.FlowDefinition {
	catalog := NewAppCatalog(d, s, nil)
	builder := NewAppBuilder(d, s, nil)

	install := api.StepDefinition{Name: "install", Fn: func(ctx context.Context, input any) (any, error) {
		app, err := appName(input)
		if err != nil {
			return nil, err
		}
		return catalog.InstallApp(ctx, app)
	}}
	verify := api.StepDefinition{Name: "verify-installed", Fn: func(ctx context.Context, input any) (any, error) {
		app, err := appName(input)
		if err != nil {
			return nil, err
		}
		ok, err := catalog.IsAppInstalled(ctx, app)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotInstalled, app)
		}
		return AppRequest{App: app}, nil
	}}
	disable := api.StepDefinition{Name: "disable-provisioning", Fn: func(ctx context.Context, input any) (any, error) {
		app, err := appName(input)
		if err != nil {
			return nil, err
		}
		return builder.DisableWorkflowProvisioning(ctx, app)
	}}
	uninstall := api.StepDefinition{Name: "uninstall", Fn: func(ctx context.Context, input any) (any, error) {
		app, err := appName(input)
		if err != nil {
			return nil, err
		}
		return catalog.UninstallApp(ctx, app)
	}}

	return []api.FlowDefinition{
		{Name: FlowInstallApp, Steps: []api.StepDefinition{install}},
		{Name: FlowUninstallApp, Steps: []api.StepDefinition{uninstall}},
		{Name: FlowDisableProvisioning, Steps: []api.StepDefinition{disable}},
		{Name: FlowEndToEnd, Steps: []api.StepDefinition{install, verify, disable, uninstall}},
	}
}

// Register registers every flow of Flows with eng.
func Register(eng api.Engine, d Driver, s Settings) error {
	for _, def := range Flows(d, s) {
		if err := eng.RegisterFlow(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}

func appName(input any) (string, error) {
	var app string
	switch v := input.(type) {
	case AppRequest:
		app = v.App
	case *AppRequest:
		if v != nil {
			app = v.App
		}
	case InstallResult:
		app = v.App
	case UninstallResult:
		app = v.App
	case ProvisioningResult:
		app = v.App
	case string:
		app = v
	default:
		return "", fmt.Errorf("pages: unexpected flow input %T", input)
	}
	if app == "" {
		return "", errors.New("pages: app name is required")
	}
	return app, nil
}
