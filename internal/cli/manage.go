package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/scheduler"
)

var (
	listStatus string
	listName   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := scheduler.ScheduleStatus(listStatus)
		if listStatus != "" && !scheduler.ValidStatus(status) {
			return fmt.Errorf("unknown status %q", listStatus)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sched := openSchedulerTable(cfg)

		workflows, err := sched.List(scheduler.ListOptions{
			Status:      status,
			NamePattern: listName,
		})
		if err != nil {
			return err
		}

		if len(workflows) == 0 {
			fmt.Println("No workflows scheduled")
			return nil
		}
		printWorkflowTable(workflows)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one workflow in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sched := openSchedulerTable(cfg)

		workflow, ok := sched.Get(args[0])
		if !ok {
			return fmt.Errorf("workflow %s not found", args[0])
		}
		printWorkflowDetail(workflow)
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a workflow, excluding it from dispatch",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("pause", (*scheduler.Scheduler).Pause),
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("resume", (*scheduler.Scheduler).Resume),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Permanently stop a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE("cancel", (*scheduler.Scheduler).Cancel),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a workflow from the schedule table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sched := openSchedulerTable(cfg)

		if !sched.Delete(args[0]) {
			return fmt.Errorf("workflow %s not found", args[0])
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var upcomingHours int

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Show runs due within a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sched := openSchedulerTable(cfg)

		within := time.Duration(upcomingHours) * time.Hour
		upcoming := sched.Upcoming(within)
		if len(upcoming) == 0 {
			fmt.Printf("No runs due within %s\n", within)
			return nil
		}
		printUpcomingTable(upcoming)
		return nil
	},
}

func transitionRunE(action string, fn func(*scheduler.Scheduler, string) bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sched := openSchedulerTable(cfg)

		id := args[0]
		if !fn(sched, id) {
			if workflow, ok := sched.Get(id); ok {
				return fmt.Errorf("cannot %s workflow in state %s", action, workflow.Status)
			}
			return fmt.Errorf("workflow %s not found", id)
		}

		workflow, _ := sched.Get(id)
		fmt.Printf("%s is now %s\n", workflow.Name, workflow.Status)
		return nil
	}
}

// openSchedulerTable loads the schedule table for a one-shot CLI operation.
// The daemon notices external writes through its store watcher.
func openSchedulerTable(cfg *config.Config) *scheduler.Scheduler {
	store := scheduler.NewStore(cfg.Scheduler.StorePath)
	sched := scheduler.New(store, nil, scheduler.Options{
		PollInterval: cfg.Scheduler.PollInterval,
	})
	sched.LoadTable()
	return sched
}

func init() {
	upcomingCmd.Flags().IntVar(&upcomingHours, "hours", 24, "look-ahead window in hours")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listName, "name", "", "filter by name glob, e.g. 'nightly-*'")

	rootCmd.AddCommand(listCmd, showCmd, pauseCmd, resumeCmd, cancelCmd, deleteCmd, upcomingCmd)
}
