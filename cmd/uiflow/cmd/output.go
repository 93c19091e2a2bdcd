package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/petrijr/uiflow"
	"github.com/petrijr/uiflow/internal/pages"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
)

// statusColor picks the color a run status is printed in.
func statusColor(status uiflow.Status) *color.Color {
	switch status {
	case uiflow.StatusCompleted:
		return green
	case uiflow.StatusFailed:
		return red
	case uiflow.StatusRunning:
		return blue
	default:
		return yellow
	}
}

func coloredStatus(status uiflow.Status) string {
	return statusColor(status).Sprint(strings.ToLower(string(status)))
}

// summarize describes a step result in one line.
func summarize(v any) string {
	switch r := v.(type) {
	case nil:
		return "-"
	case pages.AppRequest:
		return fmt.Sprintf("app %s", r.App)
	case pages.InstallResult:
		if r.AlreadyInstalled {
			return "already installed"
		}
		return fmt.Sprintf("installed (%d configuration screens)", r.Screens)
	case pages.UninstallResult:
		if r.AlreadyUninstalled {
			return "already uninstalled"
		}
		return "uninstalled"
	case pages.ProvisioningResult:
		if r.AlreadyDisabled {
			return "provisioning already disabled"
		}
		s := fmt.Sprintf("provisioning disabled on %d of %d templates", len(r.Changed), r.Templates)
		if r.Released {
			s += ", released"
		}
		return s
	case string:
		return r
	default:
		return fmt.Sprintf("%v", r)
	}
}

// stepNames returns the step names of a built-in flow.
func stepNames(flow string) []string {
	for _, def := range pages.Flows(nil, pages.Settings{}) {
		if def.Name != flow {
			continue
		}
		names := make([]string, len(def.Steps))
		for i, step := range def.Steps {
			names[i] = step.Name
		}
		return names
	}
	return nil
}

// flowNames lists the built-in flows.
func flowNames() []string {
	defs := pages.Flows(nil, pages.Settings{})
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// printRun prints the outcome of a run and its step results.
func printRun(w io.Writer, run *uiflow.FlowRun) {
	fmt.Fprintf(w, "\n%s %s (%s): %s\n", bold.Sprint("Run"), run.ID, run.Name, coloredStatus(run.Status))
	if !run.FinishedAt.IsZero() && !run.StartedAt.IsZero() {
		fmt.Fprintf(w, "  duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}

	names := stepNames(run.Name)
	for i, name := range names {
		result, ok := run.StepResults[i]
		switch {
		case ok:
			fmt.Fprintf(w, "  %s %-22s %s\n", green.Sprint("✓"), name, summarize(result))
		case run.Status == uiflow.StatusFailed && i == run.CurrentStep:
			fmt.Fprintf(w, "  %s %-22s %s\n", red.Sprint("✗"), name, firstLine(errString(run.Err)))
		default:
			fmt.Fprintf(w, "  %s %s\n", yellow.Sprint("-"), name)
		}
	}
}

// renderRuns writes runs as a table.
func renderRuns(w io.Writer, runs []*uiflow.FlowRun) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Flow", "Status", "Step", "Started", "Duration", "Error")
	for _, run := range runs {
		_ = table.Append(
			run.ID,
			run.Name,
			coloredStatus(run.Status),
			stepLabel(run),
			formatTime(run.StartedAt),
			formatDuration(run),
			truncate(firstLine(errString(run.Err)), 60),
		)
	}
	_ = table.Render()
}

// renderAttempts writes journaled attempts as a table.
func renderAttempts(w io.Writer, flow string, events []uiflow.AttemptEvent) {
	names := stepNames(flow)
	table := tablewriter.NewWriter(w)
	table.Header("Step", "Action", "Attempt", "Outcome", "Elapsed", "Error")
	for _, ev := range events {
		step := "-"
		if ev.Step >= 0 && ev.Step < len(names) {
			step = names[ev.Step]
		} else if ev.Step >= 0 {
			step = fmt.Sprintf("%d", ev.Step)
		}
		outcome := green.Sprint(string(ev.Outcome))
		if ev.Outcome != uiflow.AttemptSucceeded {
			outcome = red.Sprint(string(ev.Outcome))
		}
		if ev.TimedOut {
			outcome += " (timeout)"
		}
		_ = table.Append(
			step,
			ev.Label,
			fmt.Sprintf("%d", ev.Attempt),
			outcome,
			ev.Elapsed.Round(time.Millisecond).String(),
			truncate(firstLine(ev.Error), 60),
		)
	}
	_ = table.Render()
}

func stepLabel(run *uiflow.FlowRun) string {
	names := stepNames(run.Name)
	if run.Status == uiflow.StatusCompleted {
		return fmt.Sprintf("%d/%d", len(names), len(names))
	}
	if run.CurrentStep >= 0 && run.CurrentStep < len(names) {
		return fmt.Sprintf("%d/%d %s", run.CurrentStep+1, len(names), names[run.CurrentStep])
	}
	return fmt.Sprintf("%d", run.CurrentStep)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(run *uiflow.FlowRun) string {
	if run.StartedAt.IsZero() || run.FinishedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
