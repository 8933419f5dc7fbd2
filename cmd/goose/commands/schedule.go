package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/scheduler"
	"github.com/goosehq/goose/pkg/types"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage cron-scheduled recipe jobs",
}

// newScheduler builds the backend selected by GOOSE_SCHEDULER_TYPE:
// "embedded" (default) or "remote" for the sidecar service.
func newScheduler() (scheduler.Scheduler, error) {
	store := config.Global()
	dir := config.GetPaths().SchedulerDir()

	if store.GetStringOr("goose_scheduler_type", "embedded") == "remote" {
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		return scheduler.NewRemote([]string{self, "sched-service"}, dir)
	}
	return scheduler.NewEmbedded(dir, &scheduler.AgentRunner{Store: store})
}

func withScheduler(fn func(s scheduler.Scheduler) error) error {
	s, err := newScheduler()
	if err != nil {
		return err
	}
	defer s.Stop()
	return fn(s)
}

var (
	scheduleCron string
	scheduleMode string
)

var scheduleAddCmd = &cobra.Command{
	Use:   "add <job-id> <recipe-path>",
	Short: "Schedule a recipe; the recipe is copied so later edits don't change the job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			err := s.Add(types.ScheduledJob{
				ID:            args[0],
				Source:        args[1],
				Cron:          scheduleCron,
				ExecutionMode: types.ExecutionMode(scheduleMode),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Scheduled %s with cron %q\n", args[0], scheduleCron)
			return nil
		})
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			jobs, err := s.List()
			if err != nil {
				return err
			}
			for _, job := range jobs {
				status := "idle"
				if job.CurrentlyRunning {
					status = "running (" + job.CurrentSessionID + ")"
				}
				if job.Paused {
					status += ", paused"
				}
				fmt.Printf("%-20s %-20s %s\n", job.ID, job.Cron, status)
			}
			return nil
		})
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a job and its recipe copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			return s.Remove(args[0])
		})
	},
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Skip the job's cron firings until unpaused",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			return s.Pause(args[0])
		})
	},
}

var scheduleUnpauseCmd = &cobra.Command{
	Use:   "unpause <job-id>",
	Short: "Resume the job's cron firings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			return s.Unpause(args[0])
		})
	},
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update <job-id> <cron>",
	Short: "Change a job's cron expression",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			return s.Update(args[0], args[1])
		})
	},
}

var scheduleRunNowCmd = &cobra.Command{
	Use:   "run-now <job-id>",
	Short: "Execute the job once immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			sessionID, err := s.RunNow(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Started %s as session %s\n", args[0], sessionID)
			return nil
		})
	},
}

var scheduleKillCmd = &cobra.Command{
	Use:   "kill <job-id>",
	Short: "Abort the job's running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			return s.KillRunning(args[0])
		})
	},
}

var scheduleSessionsLimit int

var scheduleSessionsCmd = &cobra.Command{
	Use:   "sessions <job-id>",
	Short: "List the job's past sessions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScheduler(func(s scheduler.Scheduler) error {
			sessions, err := s.Sessions(args[0], scheduleSessionsLimit)
			if err != nil {
				return err
			}
			for _, info := range sessions {
				fmt.Printf("%s  %-40s %d messages\n", info.Name, info.Metadata.Description, info.Metadata.MessageCount)
			}
			return nil
		})
	},
}

func init() {
	scheduleAddCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression (5, 6, or 7 fields)")
	scheduleAddCmd.Flags().StringVar(&scheduleMode, "execution-mode", "", "foreground or background")
	scheduleAddCmd.MarkFlagRequired("cron")

	scheduleSessionsCmd.Flags().IntVar(&scheduleSessionsLimit, "limit", 10, "Maximum sessions to list")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(schedulePauseCmd)
	scheduleCmd.AddCommand(scheduleUnpauseCmd)
	scheduleCmd.AddCommand(scheduleUpdateCmd)
	scheduleCmd.AddCommand(scheduleRunNowCmd)
	scheduleCmd.AddCommand(scheduleKillCmd)
	scheduleCmd.AddCommand(scheduleSessionsCmd)
}
