package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage allocator configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  allocator config init -o allocator.yaml
  allocator config validate -f allocator.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "allocator.yaml", "output config file path (.yaml, .yml or .json)")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  allocator backtest -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Prices:    %s\n", c.Data.Prices)
	fmt.Fprintf(out, "  Universe:  %s (benchmark %s)\n", strings.Join(c.Universe.Tickers, ", "), orNone(c.Universe.Benchmark))
	fmt.Fprintf(out, "  Method:    %s (weights %.2f..%.2f)\n", c.Optimizer.Method, c.Optimizer.MinWeight, c.Optimizer.MaxWeight)
	fmt.Fprintf(out, "  Rebalance: %s at %.1f bps\n", orNone(c.Backtest.Rebalance), c.Backtest.CostBps)
	fmt.Fprintf(out, "  Journal:   %s\n", c.Journal.DBPath)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
