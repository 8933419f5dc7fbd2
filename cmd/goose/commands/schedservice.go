package commands

import (
	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/scheduler"
)

var schedServicePort int

// schedServiceCmd runs the scheduler sidecar: the process the remote
// backend spawns detached. Hidden; users normally never invoke it.
var schedServiceCmd = &cobra.Command{
	Use:    "sched-service",
	Short:  "Run the scheduler sidecar service",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.Global()
		embedded, err := scheduler.NewEmbedded(config.GetPaths().SchedulerDir(), &scheduler.AgentRunner{Store: store})
		if err != nil {
			return err
		}
		defer embedded.Stop()

		return scheduler.NewService(embedded, schedServicePort).ListenAndServe()
	},
}

func init() {
	schedServiceCmd.Flags().IntVar(&schedServicePort, "port", scheduler.PortRange()[0], "Port to listen on")
}
