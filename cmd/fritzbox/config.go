package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/fritzbox/internal/config"
	"github.com/muurk/fritzbox/internal/ui"
)

var (
	initDevices []string
	initForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying the config file and the
router flags. Passwords are never shown.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file from defaults and flags",
	Example: `  fritzbox config init -i 192.168.178.1 --device iphone --device android-tablet`,
	Args:    cobra.NoArgs,
	RunE:    runConfigInit,
}

func init() {
	configInitCmd.Flags().StringSliceVar(&initDevices, "device", nil, "Device to supervise (repeatable)")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if outputFormat == formatJSON {
		return printJSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(initDevices) > 0 {
		cfg.Presence.Devices = initDevices
	}

	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	if outputFormat == formatJSON {
		return printJSON(map[string]string{"path": path})
	}
	ui.PrintSuccess("Config written",
		ui.Detail{Key: "Path", Value: path},
		ui.Detail{Key: "Router", Value: routerAddr(cfg)},
	)
	return nil
}
