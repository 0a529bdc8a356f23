package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the settings the server would run with, after the config
file, environment variables and flags are folded together. The output is
valid as a config file.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	p, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n// effective profile: %s (%s, attr %c)\n",
		p.ID, formatSpec(p), p.DefaultAttr)
	return nil
}
