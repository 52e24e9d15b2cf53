package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SubscriptionStatus is the lifecycle state of a webhook subscription.
// Subscriptions are never hard-deleted by the pipeline; a webhook answering
// HTTP 410 flips the subscription to disabled.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionDisabled SubscriptionStatus = "disabled"
)

// Subscription is a customer-registered match rule plus webhook target.
type Subscription struct {
	WorkflowID string             `json:"workflow_id"`
	CustomerID string             `json:"customer_id"`
	Rule       MatchRule          `json:"match_rule"`
	WebhookURL string             `json:"webhook_url"`
	Status     SubscriptionStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Validate checks the fields required before a subscription may be stored.
func (s *Subscription) Validate() error {
	if s.CustomerID == "" {
		return ErrMissingCustomerID
	}
	if s.WebhookURL == "" {
		return errors.New("webhook_url is required")
	}
	if s.Rule == nil {
		return errors.New("match_rule is required")
	}
	return nil
}

// MatchRule is the closed set of predicates a subscription can carry.
// The only implementations are EventTypeRule, JSONPathRule and
// FieldCompareRule; the matcher switches exhaustively over them.
type MatchRule interface {
	RuleKind() string
	matchRule()
}

// Rule kind discriminators used in the JSON encoding.
const (
	KindEventType    = "event_type"
	KindJSONPath     = "json_path"
	KindFieldCompare = "field_compare"
)

// EventTypeRule matches when the payload's event_type field equals Value.
type EventTypeRule struct {
	Value string `json:"value"`
}

func (EventTypeRule) RuleKind() string { return KindEventType }
func (EventTypeRule) matchRule()       {}

// JSONPathRule matches when Expr evaluates to a non-empty, truthy result
// against the payload.
type JSONPathRule struct {
	Expr string `json:"expr"`
}

func (JSONPathRule) RuleKind() string { return KindJSONPath }
func (JSONPathRule) matchRule()       {}

// FieldCompare operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpExists      = "exists"
	OpGreaterThan = "greater_than"
)

// FieldCompareRule matches when the named payload field satisfies Operator
// against Value.
type FieldCompareRule struct {
	Field    string          `json:"field"`
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value,omitempty"`
}

func (FieldCompareRule) RuleKind() string { return KindFieldCompare }
func (FieldCompareRule) matchRule()       {}

// ruleEnvelope is the tagged wire/storage form of a MatchRule.
type ruleEnvelope struct {
	Kind     string          `json:"kind"`
	Value    string          `json:"value,omitempty"`
	Expr     string          `json:"expr,omitempty"`
	Field    string          `json:"field,omitempty"`
	Operator string          `json:"operator,omitempty"`
	Compare  json.RawMessage `json:"compare,omitempty"`
}

// EncodeRule serializes a MatchRule to its tagged JSON form.
func EncodeRule(r MatchRule) ([]byte, error) {
	env := ruleEnvelope{Kind: r.RuleKind()}
	switch rule := r.(type) {
	case EventTypeRule:
		env.Value = rule.Value
	case JSONPathRule:
		env.Expr = rule.Expr
	case FieldCompareRule:
		env.Field = rule.Field
		env.Operator = rule.Operator
		env.Compare = rule.Value
	default:
		return nil, fmt.Errorf("unknown rule kind %q", r.RuleKind())
	}
	return json.Marshal(env)
}

// ParseRule deserializes the tagged JSON form back into a MatchRule.
func ParseRule(data []byte) (MatchRule, error) {
	var env ruleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse match rule: %w", err)
	}
	switch env.Kind {
	case KindEventType:
		if env.Value == "" {
			return nil, errors.New("event_type rule requires value")
		}
		return EventTypeRule{Value: env.Value}, nil
	case KindJSONPath:
		if env.Expr == "" {
			return nil, errors.New("json_path rule requires expr")
		}
		return JSONPathRule{Expr: env.Expr}, nil
	case KindFieldCompare:
		if env.Field == "" {
			return nil, errors.New("field_compare rule requires field")
		}
		switch env.Operator {
		case OpEquals, OpNotEquals, OpContains, OpExists, OpGreaterThan:
		default:
			return nil, fmt.Errorf("unknown field_compare operator %q", env.Operator)
		}
		return FieldCompareRule{Field: env.Field, Operator: env.Operator, Value: env.Compare}, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", env.Kind)
	}
}

// MarshalJSON encodes the subscription with its rule in tagged form.
func (s Subscription) MarshalJSON() ([]byte, error) {
	type alias Subscription
	var rule json.RawMessage
	if s.Rule != nil {
		encoded, err := EncodeRule(s.Rule)
		if err != nil {
			return nil, err
		}
		rule = encoded
	}
	return json.Marshal(struct {
		alias
		Rule json.RawMessage `json:"match_rule,omitempty"`
	}{alias(s), rule})
}

// UnmarshalJSON decodes the subscription, parsing the tagged rule form.
func (s *Subscription) UnmarshalJSON(data []byte) error {
	type alias Subscription
	aux := struct {
		*alias
		Rule json.RawMessage `json:"match_rule"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Rule) > 0 {
		rule, err := ParseRule(aux.Rule)
		if err != nil {
			return err
		}
		s.Rule = rule
	}
	return nil
}
