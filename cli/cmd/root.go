package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaywire-systems/relaywire-stack/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Relaywire Stack CLI",
	Long: `relayctl is the command-line interface for the Relaywire event pipeline.

Submit events, inspect the inbox, and manage webhook subscriptions
from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.relayctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use")
	rootCmd.PersistentFlags().String("api-key", "", "API key (overrides profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// profileFor resolves the active profile plus any flag overrides.
func profileFor(cmd *cobra.Command) (*config.Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	profile, err := cfg.GetProfile(name)
	if err != nil {
		return nil, err
	}

	if key, _ := cmd.Flags().GetString("api-key"); key != "" {
		p := *profile
		p.APIKey = key
		return &p, nil
	}
	return profile, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}
