package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaywire-systems/relaywire-stack/cli/internal/client"
	"github.com/relaywire-systems/relaywire-stack/cli/pkg/output"
	"github.com/relaywire-systems/relaywire-stack/common/models"
)

var (
	subsRule            string
	subsEventType       string
	subsWebhookURL      string
	subsIncludeDisabled bool
)

var subsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage webhook subscriptions",
}

var subsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a subscription",
	Long: `Create a webhook subscription.

The match rule comes from --event-type (shorthand for an event_type rule) or
--rule with a full tagged rule document.

Examples:
  relayctl subscriptions create --event-type order.created --webhook-url https://example.com/hook

  relayctl subscriptions create \
    --rule '{"kind":"field_compare","field":"amount","operator":"greater_than","compare":100}' \
    --webhook-url https://example.com/hook`,
	RunE: runSubsCreate,
}

var subsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	RunE:  runSubsList,
}

var subsEnableCmd = &cobra.Command{
	Use:   "enable <workflow-id>",
	Short: "Re-enable a subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubsSetStatus(true),
}

var subsDisableCmd = &cobra.Command{
	Use:   "disable <workflow-id>",
	Short: "Disable a subscription",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubsSetStatus(false),
}

func init() {
	subsCreateCmd.Flags().StringVar(&subsRule, "rule", "", "match rule as tagged JSON")
	subsCreateCmd.Flags().StringVar(&subsEventType, "event-type", "", "shorthand for an event_type rule")
	subsCreateCmd.Flags().StringVar(&subsWebhookURL, "webhook-url", "", "webhook target URL")

	subsListCmd.Flags().BoolVar(&subsIncludeDisabled, "include-disabled", false, "include disabled subscriptions")

	subsCmd.AddCommand(subsCreateCmd)
	subsCmd.AddCommand(subsListCmd)
	subsCmd.AddCommand(subsEnableCmd)
	subsCmd.AddCommand(subsDisableCmd)
	rootCmd.AddCommand(subsCmd)
}

func runSubsCreate(cmd *cobra.Command, args []string) error {
	profile, err := profileFor(cmd)
	if err != nil {
		return err
	}

	var rule json.RawMessage
	switch {
	case subsRule != "" && subsEventType != "":
		return fmt.Errorf("--rule and --event-type are mutually exclusive")
	case subsEventType != "":
		encoded, err := models.EncodeRule(models.EventTypeRule{Value: subsEventType})
		if err != nil {
			return err
		}
		rule = encoded
	case subsRule != "":
		if _, err := models.ParseRule([]byte(subsRule)); err != nil {
			return err
		}
		rule = json.RawMessage(subsRule)
	default:
		return fmt.Errorf("provide --rule or --event-type")
	}

	subs := client.NewSubscriptionsClient(profile.SubscriptionsURL, profile.APIKey)
	sub, err := subs.Create(context.Background(), rule, subsWebhookURL)
	if err != nil {
		output.Error("Create failed: %v", err)
		return err
	}

	if jsonOutput(cmd) {
		return output.JSON(sub)
	}
	output.Success("Subscription created: %s", sub.WorkflowID)
	return nil
}

func runSubsList(cmd *cobra.Command, args []string) error {
	profile, err := profileFor(cmd)
	if err != nil {
		return err
	}
	subs := client.NewSubscriptionsClient(profile.SubscriptionsURL, profile.APIKey)

	resp, err := subs.List(context.Background(), subsIncludeDisabled)
	if err != nil {
		output.Error("List failed: %v", err)
		return err
	}

	if jsonOutput(cmd) {
		return output.JSON(resp)
	}

	table := output.NewTable("WORKFLOW ID", "RULE", "WEBHOOK URL", "STATUS")
	for _, sub := range resp.Subscriptions {
		ruleKind := ""
		if sub.Rule != nil {
			ruleKind = sub.Rule.RuleKind()
		}
		table.AddRow(sub.WorkflowID, ruleKind, sub.WebhookURL, string(sub.Status))
	}
	table.Render()
	output.Info("%d of %d subscriptions", len(resp.Subscriptions), resp.Total)
	return nil
}

func runSubsSetStatus(enable bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		profile, err := profileFor(cmd)
		if err != nil {
			return err
		}
		subs := client.NewSubscriptionsClient(profile.SubscriptionsURL, profile.APIKey)

		workflowID := args[0]
		if enable {
			err = subs.Enable(context.Background(), workflowID)
		} else {
			err = subs.Disable(context.Background(), workflowID)
		}
		if err != nil {
			output.Error("Update failed: %v", err)
			return err
		}

		if enable {
			output.Success("Subscription %s enabled", workflowID)
		} else {
			output.Success("Subscription %s disabled", workflowID)
		}
		return nil
	}
}
