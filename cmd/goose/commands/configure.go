package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/permission"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Read and write configuration, secrets, and tool permissions",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		if err := config.Global().Get(args[0], &value); err != nil {
			return err
		}
		fmt.Printf("%v\n", value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Global().Set(args[0], args[1])
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Global().Delete(args[0])
	},
}

var secretSetCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret in the keyring (or the secrets file when the keyring is disabled)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Global().SetSecret(args[0], args[1])
	},
}

var secretUnsetCmd = &cobra.Command{
	Use:   "unset-secret <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Global().DeleteSecret(args[0])
	},
}

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show persisted tool permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		for tool, level := range permission.GlobalStore().All() {
			fmt.Printf("%-40s %s\n", tool, level)
		}
		return nil
	},
}

var permissionResetCmd = &cobra.Command{
	Use:   "reset-permissions <extension>",
	Short: "Forget every persisted decision for an extension's tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return permission.GlobalStore().RemoveExtension(args[0])
	},
}

func init() {
	configureCmd.AddCommand(configGetCmd)
	configureCmd.AddCommand(configSetCmd)
	configureCmd.AddCommand(configUnsetCmd)
	configureCmd.AddCommand(secretSetCmd)
	configureCmd.AddCommand(secretUnsetCmd)
	configureCmd.AddCommand(permissionsCmd)
	configureCmd.AddCommand(permissionResetCmd)
}
