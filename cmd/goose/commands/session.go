package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := sessionlog.ListSessions()
		if err != nil {
			return err
		}
		for _, entry := range sessions {
			meta, err := sessionlog.ReadMetadata(entry.Path)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", entry.Name, err)
				continue
			}
			line := fmt.Sprintf("%s  %-40s %d messages", entry.Name, meta.Description, meta.MessageCount)
			if meta.ScheduleID != "" {
				line += "  [schedule: " + meta.ScheduleID + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := sessionlog.Resolve(types.NameIdentifier(args[0]))
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}

		messages, err := sessionlog.ReadMessages(path)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			for _, c := range msg.Content {
				switch c.Kind {
				case types.ContentText:
					fmt.Printf("[%s] %s\n", msg.Role, c.Text.Text)
				case types.ContentToolRequest:
					if c.ToolRequest.Call != nil {
						fmt.Printf("[%s] -> %s\n", msg.Role, c.ToolRequest.Call.Name)
					}
				case types.ContentToolResponse:
					if c.ToolResponse.Error != nil {
						fmt.Printf("[%s] <- error: %s\n", msg.Role, c.ToolResponse.Error.Message)
					} else {
						fmt.Printf("[%s] <- ok\n", msg.Role)
					}
				}
			}
		}
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}
