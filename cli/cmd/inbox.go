package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relaywire-systems/relaywire-stack/cli/internal/client"
	"github.com/relaywire-systems/relaywire-stack/cli/pkg/output"
)

var (
	inboxStatus    string
	inboxEventType string
	inboxLimit     int
	inboxCursor    string
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Inspect submitted events",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events in the inbox",
	RunE:  runInboxList,
}

var inboxDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event from the inbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runInboxDelete,
}

func init() {
	inboxListCmd.Flags().StringVar(&inboxStatus, "status", "", "filter by status (pending, delivered, failed, unmatched)")
	inboxListCmd.Flags().StringVar(&inboxEventType, "event-type", "", "filter by event type")
	inboxListCmd.Flags().IntVar(&inboxLimit, "limit", 50, "page size")
	inboxListCmd.Flags().StringVar(&inboxCursor, "cursor", "", "pagination cursor from a previous page")

	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxDeleteCmd)
	rootCmd.AddCommand(inboxCmd)
}

func runInboxList(cmd *cobra.Command, args []string) error {
	profile, err := profileFor(cmd)
	if err != nil {
		return err
	}
	ingest := client.NewIngestClient(profile.IngestURL, profile.APIKey)

	resp, err := ingest.ListInbox(context.Background(), client.InboxFilter{
		Status:    inboxStatus,
		EventType: inboxEventType,
		Limit:     inboxLimit,
		Cursor:    inboxCursor,
	})
	if err != nil {
		output.Error("List failed: %v", err)
		return err
	}

	if jsonOutput(cmd) {
		return output.JSON(resp)
	}

	table := output.NewTable("EVENT ID", "STATUS", "RECEIVED", "ATTEMPTS", "LAST ERROR")
	for _, event := range resp.Events {
		table.AddRow(
			event.ID,
			string(event.Status),
			event.ReceivedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(len(event.DeliveryAttempts)),
			event.LastError,
		)
	}
	table.Render()

	output.Info("%d of %d events", len(resp.Events), resp.Total)
	if resp.HasMore {
		output.Info("more available: --cursor %s", resp.NextCursor)
	}
	return nil
}

func runInboxDelete(cmd *cobra.Command, args []string) error {
	profile, err := profileFor(cmd)
	if err != nil {
		return err
	}
	ingest := client.NewIngestClient(profile.IngestURL, profile.APIKey)

	if err := ingest.DeleteEvent(context.Background(), args[0]); err != nil {
		output.Error("Delete failed: %v", err)
		return err
	}
	output.Success("Event %s deleted", args[0])
	return nil
}
