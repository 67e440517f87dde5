package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long:  "Display the configuration after defaults are applied, as YAML (or JSON with --format json)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := config.NewManager(flagConfig)
		cfg, err := mgr.Load(cmd.Context())
		if err != nil {
			return err
		}
		if ui.GlobalFormatter.IsJSON() {
			return ui.GlobalFormatter.Output(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal configuration: %w", err)
		}
		ui.OutputLine("# %s", mgr.Path())
		return ui.GlobalFormatter.Output(string(data))
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := config.NewManager(flagConfig)
		if !mgr.Exists() {
			ui.Info("No config file at %s, defaults apply", mgr.Path())
			return nil
		}
		if _, err := mgr.Load(cmd.Context()); err != nil {
			return err
		}
		ui.Success("Configuration %s is valid", mgr.Path())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := config.NewManager(flagConfig)
		if mgr.Exists() && !configForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", mgr.Path())
		}
		if err := mgr.Save(cmd.Context(), config.DefaultConfig()); err != nil {
			return err
		}
		ui.Success("Wrote %s", mgr.Path())
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
}
