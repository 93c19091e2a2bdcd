package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/petrijr/uiflow"
	"github.com/petrijr/uiflow/internal/browser"
	"github.com/petrijr/uiflow/internal/pages"
)

var (
	installCmd = newFlowCommand("install", pages.FlowInstallApp,
		"Install the app from the app catalog",
		`Install the app from the app catalog, accepting permissions and filling
every configuration screen with generated values. Installing an app that
is already installed is a no-op.`)

	uninstallCmd = newFlowCommand("uninstall", pages.FlowUninstallApp,
		"Uninstall the app",
		`Uninstall the app from the app catalog. Uninstalling an app that is not
installed is a no-op.`)

	disableProvisioningCmd = newFlowCommand("disable-provisioning", pages.FlowDisableProvisioning,
		"Turn off \"Provision on install\" for every workflow template",
		`Open every workflow template of the app in App Builder, switch off
"Provision on install", then deploy and release the app. A release whose
notes carry the provisioning marker is taken as already done.`)

	e2eCmd = newFlowCommand("e2e", pages.FlowEndToEnd,
		"Install, verify, disable provisioning and uninstall",
		`Run the full cycle: install the app, verify the catalog lists it as
installed, disable workflow provisioning, and uninstall it again.`)
)

func init() {
	rootCmd.AddCommand(installCmd, uninstallCmd, disableProvisioningCmd, e2eCmd)
}

func newFlowCommand(use, flow, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd.OutOrStdout(), flow)
		},
	}
}

func runFlow(out io.Writer, flow string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.attachBrowser()
	if err != nil {
		return err
	}
	defer b.Close()

	app := s.app()
	fmt.Fprintf(out, "Running %s for %s\n", flow, app)
	run, err := s.engine().Run(ctx, flow, pages.AppRequest{App: app})
	return s.report(ctx, out, b, run, err)
}

// report prints a finished run and turns its failure into the command error.
func (s *session) report(ctx context.Context, out io.Writer, b *browser.Browser, run *uiflow.FlowRun, err error) error {
	if run == nil {
		return err
	}
	printRun(out, run)
	if err == nil {
		return nil
	}

	if path := s.captureFailure(ctx, b, run); path != "" {
		fmt.Fprintf(out, "  screenshot: %s\n", path)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, "Run cancelled. Resume with: uiflow resume %s\n", run.ID)
		return nil
	}
	fmt.Fprintf(out, "Resume with: uiflow resume %s\n", run.ID)
	return fmt.Errorf("%s failed: %w", run.Name, err)
}
