package cmd

import (
	"github.com/spf13/cobra"

	"github.com/relaywire-systems/relaywire-stack/cli/internal/config"
	"github.com/relaywire-systems/relaywire-stack/cli/pkg/output"
)

var (
	configureIngestURL string
	configureSubsURL   string
	configureAPIKey    string
	configureName      string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save a connection profile",
	Long: `Save service URLs and the API key as a named profile.

Example:
  relayctl configure --profile-name staging \
    --ingest-url https://ingest.staging.example.com \
    --subscriptions-url https://subscriptions.staging.example.com \
    --api-key rk_staging_xxx`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureName, "profile-name", "default", "profile name")
	configureCmd.Flags().StringVar(&configureIngestURL, "ingest-url", "", "ingest service base URL")
	configureCmd.Flags().StringVar(&configureSubsURL, "subscriptions-url", "", "subscriptions service base URL")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "API key")

	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	profile := &config.Profile{
		IngestURL:        configureIngestURL,
		SubscriptionsURL: configureSubsURL,
		APIKey:           configureAPIKey,
	}

	// Start from the existing profile so partial updates keep prior values.
	if existing, err := cfg.GetProfile(configureName); err == nil {
		if profile.IngestURL == "" {
			profile.IngestURL = existing.IngestURL
		}
		if profile.SubscriptionsURL == "" {
			profile.SubscriptionsURL = existing.SubscriptionsURL
		}
		if profile.APIKey == "" {
			profile.APIKey = existing.APIKey
		}
	}

	if err := cfg.SaveProfile(configureName, profile); err != nil {
		output.Error("Could not save profile: %v", err)
		return err
	}

	output.Success("Profile %q saved", configureName)
	return nil
}
