package pages

import (
	"encoding/gob"
	"fmt"

	"github.com/petrijr/uiflow/pkg/api"
)

func init() {
	// Results travel through the run journal.
	gob.Register(AppRequest{})
	gob.Register(InstallResult{})
	gob.Register(UninstallResult{})
	gob.Register(ProvisioningResult{})
}

// AppRequest is the input of every app flow.
type AppRequest struct {
	App string
}

// InstallResult reports what InstallApp did.
type InstallResult struct {
	App              string
	AlreadyInstalled bool
	Installed        bool
	// Screens is the number of configuration screens filled.
	Screens int
}

// UninstallResult reports what UninstallApp did.
type UninstallResult struct {
	App                string
	AlreadyUninstalled bool
}

// ProvisioningResult reports what DisableWorkflowProvisioning did.
type ProvisioningResult struct {
	App string
	// AlreadyDisabled is set when the latest release carries ReleaseMarker
	// and nothing was inspected.
	AlreadyDisabled bool
	Templates       int
	Processed       []string
	Changed         []string
	Released        bool
}

// ValidationError is returned when saving a workflow template shows the
// issues panel.
type ValidationError struct {
	Workflow string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return api.FormatErrors(e.Workflow, e.Errors)
}

// InstallError is returned when an install finished but the catalog does
// not list the app as installed.
type InstallError struct {
	App string
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("app %q is not shown as installed after installation; it may need to be deployed first", e.App)
}
