package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/uiflow"
)

var (
	runsFlow   string
	runsStatus string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

var attemptsCmd = &cobra.Command{
	Use:   "attempts <run-id>",
	Short: "Show every journaled attempt of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttempts,
}

func init() {
	runsCmd.Flags().StringVar(&runsFlow, "flow", "", "only runs of this flow")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "only runs with this status (pending, running, failed, completed)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs (0 for all)")
	rootCmd.AddCommand(runsCmd, attemptsCmd)
}

// parseStatus accepts a run status in any case.
func parseStatus(s string) (uiflow.Status, error) {
	if s == "" {
		return "", nil
	}
	status := uiflow.Status(strings.ToUpper(s))
	switch status {
	case uiflow.StatusPending, uiflow.StatusRunning, uiflow.StatusFailed, uiflow.StatusCompleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown status %q (valid: pending, running, failed, completed)", s)
}

func runRuns(cmd *cobra.Command, args []string) error {
	status, err := parseStatus(runsStatus)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.engine().ListRuns(ctx, uiflow.RunListOptions{
		FlowName: runsFlow,
		Status:   status,
		Limit:    runsLimit,
	})
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}
	renderRuns(out, runs)
	return nil
}

func runAttempts(cmd *cobra.Command, args []string) error {
	runID := args[0]
	ctx := context.Background()

	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.engine().GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	events, err := s.engine().Attempts(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading attempts: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (%s): %s\n", bold.Sprint("Run"), run.ID, run.Name, coloredStatus(run.Status))
	if len(events) == 0 {
		fmt.Fprintln(out, "No attempts journaled.")
		return nil
	}
	renderAttempts(out, run.Name, events)
	return nil
}
