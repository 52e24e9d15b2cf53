// Package seeder generates realistic event payloads for exercising the
// pipeline in development and demos.
package seeder

import (
	"encoding/json"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
)

// EventTypes lists the payload shapes the generator produces.
var EventTypes = []string{
	"order.created",
	"order.shipped",
	"order.cancelled",
	"user.signup",
	"payment.captured",
}

// Generator produces fake event payloads. A fixed seed makes the sequence
// reproducible across runs.
type Generator struct {
	faker *gofakeit.Faker
}

func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Event returns one payload of a random supported type.
func (g *Generator) Event() (json.RawMessage, error) {
	eventType := EventTypes[g.faker.Number(0, len(EventTypes)-1)]
	return g.EventOfType(eventType)
}

// EventOfType returns one payload of the given type.
func (g *Generator) EventOfType(eventType string) (json.RawMessage, error) {
	payload := map[string]interface{}{
		"event_type": eventType,
	}

	switch eventType {
	case "order.created":
		payload["order_id"] = g.faker.UUID()
		payload["customer_name"] = g.faker.Name()
		payload["amount"] = g.faker.Price(5, 500)
		payload["currency"] = g.faker.CurrencyShort()
		payload["items"] = g.faker.Number(1, 12)
	case "order.shipped":
		payload["order_id"] = g.faker.UUID()
		payload["carrier"] = g.faker.Company()
		payload["tracking_number"] = g.faker.LetterN(2) + fmt.Sprint(g.faker.Number(100000000, 999999999))
		payload["destination_city"] = g.faker.City()
	case "order.cancelled":
		payload["order_id"] = g.faker.UUID()
		payload["reason"] = g.faker.RandomString([]string{"customer_request", "payment_failed", "out_of_stock"})
	case "user.signup":
		payload["user_id"] = g.faker.UUID()
		payload["email"] = g.faker.Email()
		payload["name"] = g.faker.Name()
		payload["plan"] = g.faker.RandomString([]string{"free", "starter", "business"})
	case "payment.captured":
		payload["payment_id"] = g.faker.UUID()
		payload["order_id"] = g.faker.UUID()
		payload["amount"] = g.faker.Price(5, 500)
		payload["method"] = g.faker.RandomString([]string{"card", "bank_transfer", "wallet"})
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	return json.Marshal(payload)
}
