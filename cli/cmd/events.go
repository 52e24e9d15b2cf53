package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaywire-systems/relaywire-stack/cli/internal/client"
	"github.com/relaywire-systems/relaywire-stack/cli/internal/seeder"
	"github.com/relaywire-systems/relaywire-stack/cli/pkg/output"
)

var (
	eventsPayload        string
	eventsFile           string
	eventsIdempotencyKey string
	eventsSeed           int64
	eventsCount          int
	eventsType           string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Submit events to the pipeline",
}

var eventsSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one or more events",
	Long: `Send events to the ingest service.

The payload comes from --payload, --file, stdin, or the built-in generator.
With --count the generator produces fake events; --seed makes the sequence
reproducible.

Examples:
  # Send an explicit payload
  relayctl events send --payload '{"event_type":"order.created","order_id":"o-1"}'

  # Send a payload from a file, deduplicated by idempotency key
  relayctl events send --file event.json --idempotency-key order-o-1

  # Generate 100 fake events, reproducibly
  relayctl events send --count 100 --seed 42`,
	RunE: runEventsSend,
}

func init() {
	eventsSendCmd.Flags().StringVar(&eventsPayload, "payload", "", "event payload as inline JSON")
	eventsSendCmd.Flags().StringVar(&eventsFile, "file", "", "read payload from file (- for stdin)")
	eventsSendCmd.Flags().StringVar(&eventsIdempotencyKey, "idempotency-key", "", "idempotency key for deduplication")
	eventsSendCmd.Flags().Int64Var(&eventsSeed, "seed", 0, "seed for the event generator (0 = random)")
	eventsSendCmd.Flags().IntVar(&eventsCount, "count", 0, "number of generated events to send")
	eventsSendCmd.Flags().StringVar(&eventsType, "type", "", "event type for generated events")

	eventsCmd.AddCommand(eventsSendCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsSend(cmd *cobra.Command, args []string) error {
	profile, err := profileFor(cmd)
	if err != nil {
		return err
	}
	ingest := client.NewIngestClient(profile.IngestURL, profile.APIKey)
	ctx := context.Background()

	if eventsCount > 0 {
		return sendGenerated(ctx, ingest, cmd)
	}

	payload, err := resolvePayload()
	if err != nil {
		return err
	}

	resp, err := ingest.SubmitEvent(ctx, payload, eventsIdempotencyKey)
	if err != nil {
		output.Error("Submit failed: %v", err)
		return err
	}

	if jsonOutput(cmd) {
		return output.JSON(resp)
	}
	output.Success("Event accepted: %s", resp.EventID)
	return nil
}

func sendGenerated(ctx context.Context, ingest *client.IngestClient, cmd *cobra.Command) error {
	seed := eventsSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := seeder.New(seed)

	sent := 0
	for i := 0; i < eventsCount; i++ {
		var payload json.RawMessage
		var err error
		if eventsType != "" {
			payload, err = gen.EventOfType(eventsType)
		} else {
			payload, err = gen.Event()
		}
		if err != nil {
			return err
		}

		if _, err := ingest.SubmitEvent(ctx, payload, ""); err != nil {
			output.Error("Event %d/%d failed: %v", i+1, eventsCount, err)
			continue
		}
		sent++
	}

	output.Success("Sent %d/%d events (seed %d)", sent, eventsCount, seed)
	if sent < eventsCount {
		return fmt.Errorf("%d events failed", eventsCount-sent)
	}
	return nil
}

func resolvePayload() (json.RawMessage, error) {
	var data []byte
	switch {
	case eventsPayload != "":
		data = []byte(eventsPayload)
	case eventsFile == "-":
		stdin, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		data = stdin
	case eventsFile != "":
		content, err := os.ReadFile(eventsFile)
		if err != nil {
			return nil, err
		}
		data = content
	default:
		return nil, fmt.Errorf("provide --payload, --file, or --count")
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}
