// Package matcher evaluates subscription match rules against event payloads.
// Evaluation is pure and total: a malformed rule or payload is a non-match,
// never an error.
package matcher

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// eventTypeField is the payload field consulted by event_type rules.
const eventTypeField = "event_type"

// Matcher evaluates rules, logging configuration problems as warnings.
type Matcher struct {
	logger *logging.Logger
}

func New(logger *logging.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match reports whether payload satisfies rule.
func (m *Matcher) Match(rule models.MatchRule, payload json.RawMessage) bool {
	switch r := rule.(type) {
	case models.EventTypeRule:
		return gjson.GetBytes(payload, eventTypeField).String() == r.Value
	case models.JSONPathRule:
		return truthy(gjson.GetBytes(payload, r.Expr))
	case models.FieldCompareRule:
		return m.compare(r, payload)
	default:
		m.warn("unknown match rule kind", "kind", ruleKind(rule))
		return false
	}
}

func (m *Matcher) compare(rule models.FieldCompareRule, payload json.RawMessage) bool {
	field := gjson.GetBytes(payload, rule.Field)

	switch rule.Operator {
	case models.OpExists:
		return field.Exists()
	case models.OpEquals:
		return field.Exists() && equalJSON(field, rule.Value)
	case models.OpNotEquals:
		return !field.Exists() || !equalJSON(field, rule.Value)
	case models.OpContains:
		return contains(field, rule.Value)
	case models.OpGreaterThan:
		return greaterThan(field, rule.Value)
	default:
		m.warn("unknown field_compare operator", "operator", rule.Operator)
		return false
	}
}

func (m *Matcher) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

func ruleKind(rule models.MatchRule) string {
	if rule == nil {
		return "<nil>"
	}
	return rule.RuleKind()
}

// truthy implements the json_path semantics: the expression must resolve to
// something, and that something must not be null, false, empty string, or an
// empty array/object.
func truthy(result gjson.Result) bool {
	if !result.Exists() {
		return false
	}
	switch result.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return result.Str != ""
	case gjson.JSON:
		trimmed := strings.TrimSpace(result.Raw)
		return trimmed != "[]" && trimmed != "{}"
	}
	return true
}

// equalJSON compares a resolved payload field against a raw JSON comparison
// value, type-aware (numbers compare numerically, strings as strings).
func equalJSON(field gjson.Result, value json.RawMessage) bool {
	var want interface{}
	if err := json.Unmarshal(value, &want); err != nil {
		return false
	}
	return valuesEqual(field.Value(), want)
}

func valuesEqual(got, want interface{}) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	default:
		// Arrays and objects: compare by canonical encoding.
		gotJSON, err1 := json.Marshal(got)
		wantJSON, err2 := json.Marshal(want)
		return err1 == nil && err2 == nil && string(gotJSON) == string(wantJSON)
	}
}

// contains implements substring semantics for strings and element-containment
// semantics for arrays.
func contains(field gjson.Result, value json.RawMessage) bool {
	if !field.Exists() {
		return false
	}

	if field.IsArray() {
		var want interface{}
		if err := json.Unmarshal(value, &want); err != nil {
			return false
		}
		for _, el := range field.Array() {
			if valuesEqual(el.Value(), want) {
				return true
			}
		}
		return false
	}

	if field.Type == gjson.String {
		var want string
		if err := json.Unmarshal(value, &want); err != nil {
			return false
		}
		return strings.Contains(field.Str, want)
	}

	return false
}

// greaterThan is strictly numeric: both sides must be numbers.
func greaterThan(field gjson.Result, value json.RawMessage) bool {
	if field.Type != gjson.Number {
		return false
	}
	var want float64
	if err := json.Unmarshal(value, &want); err != nil {
		return false
	}
	return field.Num > want
}
