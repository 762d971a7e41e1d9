package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/jefeworks/jefe/internal/scheduler"
)

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

func formatRelative(t time.Time) string {
	d := time.Until(t)
	switch {
	case d < 0:
		return "overdue"
	case d < time.Minute:
		return "in under a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}

func printWorkflowTable(workflows []*scheduler.Workflow) {
	fmt.Printf("%-36s %-24s %-9s %-10s %-6s %s\n", "ID", "NAME", "TYPE", "STATUS", "RUNS", "NEXT RUN")
	for _, w := range workflows {
		next := "-"
		if w.NextRun != nil {
			next = fmt.Sprintf("%s (%s)", formatTime(*w.NextRun), formatRelative(*w.NextRun))
		}
		runs := fmt.Sprintf("%d", w.RunCount)
		if w.MaxRuns != nil {
			runs = fmt.Sprintf("%d/%d", w.RunCount, *w.MaxRuns)
		}
		fmt.Printf("%-36s %-24s %-9s %-10s %-6s %s\n",
			w.ID, truncate(w.Name, 24), w.Type, w.Status, runs, next)
	}
}

func printWorkflowDetail(w *scheduler.Workflow) {
	fmt.Printf("ID:          %s\n", w.ID)
	fmt.Printf("Name:        %s\n", w.Name)
	if w.Description != "" {
		fmt.Printf("Description: %s\n", w.Description)
	}
	if w.Goal != "" {
		fmt.Printf("Goal:        %s\n", w.Goal)
	}
	fmt.Printf("Type:        %s\n", w.Type)
	fmt.Printf("Status:      %s\n", w.Status)
	fmt.Printf("Created:     %s\n", formatTime(w.CreatedAt))
	if w.LastRun != nil {
		fmt.Printf("Last run:    %s\n", formatTime(*w.LastRun))
	}
	if w.NextRun != nil {
		fmt.Printf("Next run:    %s (%s)\n", formatTime(*w.NextRun), formatRelative(*w.NextRun))
	}
	if w.MaxRuns != nil {
		fmt.Printf("Runs:        %d of %d\n", w.RunCount, *w.MaxRuns)
	} else {
		fmt.Printf("Runs:        %d\n", w.RunCount)
	}
	if len(w.AgentTypes) > 0 {
		fmt.Printf("Agents:      %s\n", strings.Join(w.AgentTypes, " -> "))
	}
	if w.WorkspaceTemplate != "" {
		fmt.Printf("Workspace:   %s\n", w.WorkspaceTemplate)
	}
}

func printUpcomingTable(upcoming []scheduler.UpcomingRun) {
	fmt.Printf("%-36s %-24s %s\n", "ID", "NAME", "NEXT RUN")
	for _, u := range upcoming {
		fmt.Printf("%-36s %-24s %s (%s)\n",
			u.WorkflowID, truncate(u.Name, 24), formatTime(u.NextRun), formatRelative(u.NextRun))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
