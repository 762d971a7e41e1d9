package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jefeworks/jefe/internal/scheduler"
)

var (
	schedName        string
	schedDescription string
	schedGoal        string
	schedType        string
	schedAt          string
	schedHour        int
	schedMinute      int
	schedDay         int
	schedEvery       int
	schedUnit        string
	schedCron        string
	schedMaxRuns     int
	schedTemplate    string
	schedAgents      []string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a new workflow",
	Long: `Schedule a workflow for background execution.

Examples:
  jefe schedule --name daily-digest --goal "summarize the inbox" --type daily --hour 7 --minute 30
  jefe schedule --name standup --goal "draft standup notes" --type weekly --day 0 --hour 9
  jefe schedule --name heartbeat --goal "check the fleet" --type interval --every 30 --unit minutes
  jefe schedule --name one-off --goal "prepare the launch doc" --type once --at 2026-09-01T09:00:00Z
  jefe schedule --name backup --goal "archive the workspace" --type cron --cron "0 3 * * *"`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&schedName, "name", "", "workflow name (required)")
	scheduleCmd.Flags().StringVar(&schedDescription, "description", "", "workflow description")
	scheduleCmd.Flags().StringVar(&schedGoal, "goal", "", "what the workflow should accomplish")
	scheduleCmd.Flags().StringVar(&schedType, "type", "", "schedule type: once, daily, weekly, interval or cron (required)")
	scheduleCmd.Flags().StringVar(&schedAt, "at", "", "run time for once schedules (RFC3339)")
	scheduleCmd.Flags().IntVar(&schedHour, "hour", 9, "hour of day for daily and weekly schedules")
	scheduleCmd.Flags().IntVar(&schedMinute, "minute", 0, "minute of hour for daily and weekly schedules")
	scheduleCmd.Flags().IntVar(&schedDay, "day", 0, "day of week for weekly schedules (0=Monday)")
	scheduleCmd.Flags().IntVar(&schedEvery, "every", 1, "interval count for interval schedules")
	scheduleCmd.Flags().StringVar(&schedUnit, "unit", "hours", "interval unit: minutes, hours or days")
	scheduleCmd.Flags().StringVar(&schedCron, "cron", "", "cron expression for cron schedules")
	scheduleCmd.Flags().IntVar(&schedMaxRuns, "max-runs", 0, "stop after this many successful runs (0 for unlimited)")
	scheduleCmd.Flags().StringVar(&schedTemplate, "workspace-template", "", "workspace path template, e.g. {name}/{timestamp}")
	scheduleCmd.Flags().StringSliceVar(&schedAgents, "agents", nil, "agent pipeline for this workflow")

	_ = scheduleCmd.MarkFlagRequired("name")
	_ = scheduleCmd.MarkFlagRequired("type")

	rootCmd.AddCommand(scheduleCmd)
}

// scheduleFlags carries the type-specific flag values into config building.
type scheduleFlags struct {
	At     string
	Hour   int
	Minute int
	Day    int
	Every  int
	Unit   string
	Cron   string
}

// buildScheduleConfig turns flags into the schedule_config document for the
// given type.
func buildScheduleConfig(typ scheduler.ScheduleType, f scheduleFlags) (json.RawMessage, error) {
	var cfg any
	switch typ {
	case scheduler.ScheduleTypeOnce:
		if f.At == "" {
			return nil, fmt.Errorf("once schedules require --at")
		}
		cfg = map[string]any{"run_at": f.At}
	case scheduler.ScheduleTypeDaily:
		cfg = map[string]any{"hour": f.Hour, "minute": f.Minute}
	case scheduler.ScheduleTypeWeekly:
		cfg = map[string]any{"day_of_week": f.Day, "hour": f.Hour, "minute": f.Minute}
	case scheduler.ScheduleTypeInterval:
		cfg = map[string]any{"interval_value": f.Every, "interval_unit": f.Unit}
	case scheduler.ScheduleTypeCron:
		if f.Cron == "" {
			return nil, fmt.Errorf("cron schedules require --cron")
		}
		cfg = map[string]any{"expression": f.Cron}
	default:
		return nil, fmt.Errorf("unknown schedule type %q", typ)
	}
	return json.Marshal(cfg)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	typ := scheduler.ScheduleType(schedType)
	schedConfig, err := buildScheduleConfig(typ, scheduleFlags{
		At:     schedAt,
		Hour:   schedHour,
		Minute: schedMinute,
		Day:    schedDay,
		Every:  schedEvery,
		Unit:   schedUnit,
		Cron:   schedCron,
	})
	if err != nil {
		return err
	}

	req := scheduler.CreateRequest{
		Name:              schedName,
		Description:       schedDescription,
		Goal:              schedGoal,
		Type:              typ,
		Config:            schedConfig,
		WorkspaceTemplate: schedTemplate,
		AgentTypes:        schedAgents,
	}
	if schedMaxRuns > 0 {
		req.MaxRuns = &schedMaxRuns
	}

	sched := openSchedulerTable(cfg)
	workflow, err := sched.Create(req)
	if err != nil {
		return err
	}

	fmt.Printf("Scheduled %s (%s)\n", workflow.Name, workflow.ID)
	if workflow.NextRun != nil {
		fmt.Printf("Next run: %s\n", formatTime(*workflow.NextRun))
	}
	return nil
}
