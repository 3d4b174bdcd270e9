package cmd

import (
	"fmt"

	"github.com/rustyeddy/exchange/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or inspect configuration",
	Long: `Manage the exchange configuration.

Subcommands:
  init - Write the default configuration to a file
  show - Print the effective configuration (file plus environment)

Examples:
  exchange config init exchange.yaml
  EXCHANGE_SERVER_MAX_SESSIONS=20 exchange config show -f exchange.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configShowPath string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configShowPath, "config", "f", "", "path to config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := config.Default().SaveToFile(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", path)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  exchange serve -f %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configShowPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
