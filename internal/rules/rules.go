// Package rules implements the triage rule document: parsing, strict schema
// validation, condition evaluation against stored email snapshots, and the
// engine that turns matches into actions.
package rules

import (
	"encoding/json"
	"fmt"
)

// Field names an email attribute a condition inspects.
type Field string

const (
	FieldFrom         Field = "from"
	FieldSubject      Field = "subject"
	FieldMessage      Field = "message"
	FieldReceivedDate Field = "received_date"
)

// Predicate is the comparison applied to a field. String and date fields
// accept disjoint predicate sets; the validator enforces compatibility so
// the evaluator never has to.
type Predicate string

const (
	Contains       Predicate = "contains"
	DoesNotContain Predicate = "does_not_contain"
	Equals         Predicate = "equals"
	DoesNotEqual   Predicate = "does_not_equal"

	LessThan    Predicate = "less_than"
	GreaterThan Predicate = "greater_than"
)

// Combinator joins a rule's conditions into one outcome.
type Combinator string

const (
	MatchAll Combinator = "all"
	MatchAny Combinator = "any"
)

// AgeUnit scales a date threshold. A month is a fixed 30-day approximation,
// matching how thresholds like "older than 2 months" are usually meant.
type AgeUnit string

const (
	UnitDays   AgeUnit = "days"
	UnitMonths AgeUnit = "months"
)

// ActionType names a mutation a matched rule requests.
type ActionType string

const (
	MarkAsRead   ActionType = "mark_as_read"
	MarkAsUnread ActionType = "mark_as_unread"
	MoveMessage  ActionType = "move_message"
)

// Document is a rules file: an ordered list of rules. Order matters for
// audit output and for last-write-wins conflict resolution, not for which
// rules fire.
type Document struct {
	Rules []Rule `json:"rules"`
}

type Rule struct {
	Name       string      `json:"name"`
	Predicate  Combinator  `json:"predicate"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

type Condition struct {
	Field     Field     `json:"field"`
	Predicate Predicate `json:"predicate"`
	Value     Value     `json:"value"`
	Unit      AgeUnit   `json:"unit,omitempty"`
}

type Action struct {
	Type        ActionType `json:"type"`
	Destination string     `json:"destination,omitempty"`
}

// Value is a condition operand. Date thresholds may be written as JSON
// numbers or strings; both decode to the same representation.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Value(n.String())
		return nil
	}
	return fmt.Errorf("condition value must be a string or number, got %s", data)
}

// ParseDocument decodes a rule document without validating it.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse rules: %w", err)
	}
	return doc, nil
}
