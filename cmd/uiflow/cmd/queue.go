package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/uiflow/internal/pages"
)

var (
	enqueueDelay time.Duration
	workerFollow bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <flow>",
	Short: "Queue a flow run for the worker",
	Long: `Queue a run of one of the built-in flows (install-app, uninstall-app,
disable-provisioning, e2e) in the journal. Queued runs are executed by
'uiflow worker'.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute queued runs",
	Long: `Execute queued runs one at a time in a single browser.

A failed run is requeued as a resume of its failed step until
worker.max_attempts is spent, waiting worker.backoff in between. The
worker exits once the queue is empty unless --follow is given.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	enqueueCmd.Flags().DurationVar(&enqueueDelay, "delay", 0, "earliest start, relative to now")
	workerCmd.Flags().BoolVarP(&workerFollow, "follow", "f", false, "keep waiting for new runs")
	rootCmd.AddCommand(enqueueCmd, workerCmd)
}

// checkFlow rejects names that are not built-in flows.
func checkFlow(name string) error {
	names := flowNames()
	if slices.Contains(names, name) {
		return nil
	}
	return fmt.Errorf("unknown flow %q (valid: %s)", name, strings.Join(names, ", "))
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	flow := args[0]
	if err := checkFlow(flow); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	var at time.Time
	if enqueueDelay > 0 {
		at = time.Now().Add(enqueueDelay)
	}
	app := s.app()
	if err := s.bundle.Worker.EnqueueRunAt(ctx, flow, pages.AppRequest{App: app}, at); err != nil {
		return fmt.Errorf("queueing %s: %w", flow, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s (%d pending)\n", flow, app, s.bundle.Pending())
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if !workerFollow && s.bundle.Pending() == 0 {
		fmt.Fprintln(out, "Queue is empty.")
		return nil
	}

	b, err := s.attachBrowser()
	if err != nil {
		return err
	}
	defer b.Close()

	var processed, failed int
	for workerFollow || s.bundle.Pending() > 0 {
		ok, err := s.bundle.Worker.ProcessOne(ctx)
		if !ok {
			if err == nil || errors.Is(err, context.Canceled) {
				break
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		processed++
		if err != nil {
			failed++
			s.log.WarnContext(ctx, "task_failed", slog.Any("error", err))
		}
	}

	summary := fmt.Sprintf("%d processed, %d failed", processed, failed)
	if failed > 0 {
		summary = red.Sprint(summary)
	} else {
		summary = green.Sprint(summary)
	}
	fmt.Fprintf(out, "Worker done: %s\n", summary)
	return nil
}
