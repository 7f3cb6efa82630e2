package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unifi-declarative/unifid/pkg/cli"
	"github.com/unifi-declarative/unifid/pkg/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage persistent settings",
	Long: `Manage persistent settings stored in ~/.unifid/settings.json.

Settings provide defaults for context flags:
  - controller:  Used when --controller is not specified
  - site:        Used when --site is not specified
  - username:    Used when -u is not specified
  - config_path: Used when -f is not specified
  - audit_log:   Audit log location
  - audit_redis: Optional Redis audit store (host:port)

Examples:
  unifid settings show
  unifid settings set controller https://gateway:8443
  unifid settings set config_path /etc/unifid/vlans.yaml
  unifid settings clear`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

		t := cli.NewTable("SETTING", "VALUE")
		for _, key := range settings.Keys() {
			value := s.Get(key)
			if value == "" {
				value = "(not set)"
			}
			t.Row(key, value)
		}
		t.Flush()
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <setting> <value>",
	Short: "Set a setting value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		s, err := settings.Load()
		if err != nil {
			s = &settings.Settings{}
		}

		if !s.Set(key, value) {
			return fmt.Errorf("unknown setting: %s (valid: %v)", key, settings.Keys())
		}
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}

		fmt.Printf("%s set to: %s\n", key, value)
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <setting>",
	Short: "Get a setting value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings.Load()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}

		value := s.Get(args[0])
		if value == "" {
			fmt.Println("(not set)")
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var settingsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset all settings to defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := &settings.Settings{}
		s.Clear()
		if err := s.Save(); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		fmt.Println("Settings cleared")
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsGetCmd, settingsClearCmd)
}
