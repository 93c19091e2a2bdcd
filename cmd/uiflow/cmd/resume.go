package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/uiflow"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a failed run at the step that failed",
	Long: `Resume a failed or interrupted run.

Runs left running by a crashed process are marked failed first. The run
restarts at the step that failed, fed with the previous step's stored
result, and keeps its ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]
	out := cmd.OutOrStdout()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.engine().GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	if run.Status != uiflow.StatusFailed {
		return fmt.Errorf("run %s is %s, only failed runs can be resumed", runID, strings.ToLower(string(run.Status)))
	}

	b, err := s.attachBrowser()
	if err != nil {
		return err
	}
	defer b.Close()

	names := stepNames(run.Name)
	step := fmt.Sprintf("%d", run.CurrentStep)
	if run.CurrentStep >= 0 && run.CurrentStep < len(names) {
		step = names[run.CurrentStep]
	}
	fmt.Fprintf(out, "Resuming %s (%s) at step %s\n", runID, run.Name, step)

	run, err = s.engine().Resume(ctx, runID)
	return s.report(ctx, out, b, run, err)
}
