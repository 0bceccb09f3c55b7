package rules

import (
	"strings"
	"testing"
)

func validRule() Rule {
	return Rule{
		Name:      "billing",
		Predicate: MatchAll,
		Conditions: []Condition{
			{Field: FieldFrom, Predicate: Contains, Value: "example.com"},
		},
		Actions: []Action{
			{Type: MarkAsRead},
		},
	}
}

func TestValidateConformingDocument(t *testing.T) {
	doc := Document{Rules: []Rule{
		validRule(),
		{
			Name:      "old newsletters",
			Predicate: MatchAny,
			Conditions: []Condition{
				{Field: FieldSubject, Predicate: DoesNotContain, Value: "urgent"},
				{Field: FieldReceivedDate, Predicate: GreaterThan, Value: "2", Unit: UnitMonths},
			},
			Actions: []Action{
				{Type: MoveMessage, Destination: "Archive/Newsletters"},
			},
		},
	}}

	issues := Validate(doc)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	doc := Document{Rules: []Rule{
		{
			// missing name, bad predicate, bad field, move without destination
			Predicate: "some",
			Conditions: []Condition{
				{Field: "sender", Predicate: Contains, Value: "x"},
			},
			Actions: []Action{
				{Type: MoveMessage},
			},
		},
	}}

	errs := Errors(Validate(doc))
	if len(errs) < 3 {
		t.Fatalf("expected at least 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Rule)
		want   string
	}{
		{
			name:   "missing name",
			mutate: func(r *Rule) { r.Name = "" },
			want:   "missing 'name'",
		},
		{
			name:   "invalid combinator",
			mutate: func(r *Rule) { r.Predicate = "some" },
			want:   "invalid predicate",
		},
		{
			name:   "no conditions",
			mutate: func(r *Rule) { r.Conditions = nil },
			want:   "at least one condition",
		},
		{
			name: "unsupported field",
			mutate: func(r *Rule) {
				r.Conditions[0].Field = "sender"
			},
			want: "invalid field \"sender\"",
		},
		{
			name: "date predicate on string field",
			mutate: func(r *Rule) {
				r.Conditions[0].Predicate = LessThan
			},
			want: "invalid predicate",
		},
		{
			name: "string predicate on date field",
			mutate: func(r *Rule) {
				r.Conditions[0] = Condition{
					Field: FieldReceivedDate, Predicate: Contains, Value: "2", Unit: UnitDays,
				}
			},
			want: "invalid predicate",
		},
		{
			name: "empty string value",
			mutate: func(r *Rule) {
				r.Conditions[0].Value = "   "
			},
			want: "non-empty string",
		},
		{
			name: "unit on string field",
			mutate: func(r *Rule) {
				r.Conditions[0].Unit = UnitDays
			},
			want: "only valid for received_date",
		},
		{
			name: "date condition missing unit",
			mutate: func(r *Rule) {
				r.Conditions[0] = Condition{
					Field: FieldReceivedDate, Predicate: LessThan, Value: "2",
				}
			},
			want: "require 'unit'",
		},
		{
			name: "invalid unit",
			mutate: func(r *Rule) {
				r.Conditions[0] = Condition{
					Field: FieldReceivedDate, Predicate: LessThan, Value: "2", Unit: "weeks",
				}
			},
			want: "invalid unit",
		},
		{
			name: "non-numeric date value",
			mutate: func(r *Rule) {
				r.Conditions[0] = Condition{
					Field: FieldReceivedDate, Predicate: LessThan, Value: "soon", Unit: UnitDays,
				}
			},
			want: "must be numeric",
		},
		{
			name: "non-positive date value",
			mutate: func(r *Rule) {
				r.Conditions[0] = Condition{
					Field: FieldReceivedDate, Predicate: LessThan, Value: "0", Unit: UnitDays,
				}
			},
			want: "must be positive",
		},
		{
			name:   "no actions",
			mutate: func(r *Rule) { r.Actions = nil },
			want:   "at least one action",
		},
		{
			name: "unknown action",
			mutate: func(r *Rule) {
				r.Actions[0].Type = "archive"
			},
			want: "invalid action",
		},
		{
			name: "move without destination",
			mutate: func(r *Rule) {
				r.Actions[0] = Action{Type: MoveMessage, Destination: "  "}
			},
			want: "non-empty 'destination'",
		},
		{
			name: "destination on mark_as_read",
			mutate: func(r *Rule) {
				r.Actions[0] = Action{Type: MarkAsRead, Destination: "Archive"}
			},
			want: "only valid for move_message",
		},
		{
			name: "read and unread conflict",
			mutate: func(r *Rule) {
				r.Actions = []Action{{Type: MarkAsRead}, {Type: MarkAsUnread}}
			},
			want: "cannot have both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			errs := Errors(Validate(Document{Rules: []Rule{rule}}))
			if len(errs) == 0 {
				t.Fatalf("expected validation error containing %q, got none", tt.want)
			}
			if !containsMessage(errs, tt.want) {
				t.Fatalf("expected an error containing %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidateIssuesNameTheRule(t *testing.T) {
	rule := validRule()
	rule.Conditions[0].Field = "sender"
	errs := Errors(Validate(Document{Rules: []Rule{rule}}))
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
	for _, e := range errs {
		if e.Rule != "billing" {
			t.Fatalf("expected issue qualified by rule name, got %+v", e)
		}
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	rule := validRule()
	rule.Actions = []Action{{Type: MarkAsRead}, {Type: MarkAsRead}}
	issues := Validate(Document{Rules: []Rule{rule}})

	if errs := Errors(issues); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if warns := Warnings(issues); len(warns) != 1 {
		t.Fatalf("expected one warning, got %v", warns)
	}
}

func TestValidateMultipleMoveDestinationsWarn(t *testing.T) {
	rule := validRule()
	rule.Actions = []Action{
		{Type: MoveMessage, Destination: "A"},
		{Type: MoveMessage, Destination: "B"},
	}
	issues := Validate(Document{Rules: []Rule{rule}})
	if errs := Errors(issues); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if warns := Warnings(issues); len(warns) != 1 {
		t.Fatalf("expected one warning, got %v", warns)
	}
}

func TestValidateLimits(t *testing.T) {
	var doc Document
	for i := 0; i <= MaxRules; i++ {
		doc.Rules = append(doc.Rules, validRule())
	}
	if errs := Errors(Validate(doc)); !containsMessage(errs, "too many rules") {
		t.Fatalf("expected too-many-rules error, got %v", errs)
	}

	rule := validRule()
	for i := 0; i <= MaxConditions; i++ {
		rule.Conditions = append(rule.Conditions, rule.Conditions[0])
	}
	if errs := Errors(Validate(Document{Rules: []Rule{rule}})); !containsMessage(errs, "too many conditions") {
		t.Fatalf("expected too-many-conditions error, got %v", errs)
	}
}

func TestParseDocumentNumericValue(t *testing.T) {
	data := []byte(`{"rules":[{"name":"old","predicate":"all",
		"conditions":[{"field":"received_date","predicate":"greater_than","value":30,"unit":"days"}],
		"actions":[{"type":"mark_as_read"}]}]}`)
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := doc.Rules[0].Conditions[0].Value; got != "30" {
		t.Fatalf("expected numeric value decoded as %q, got %q", "30", got)
	}
	if issues := Errors(Validate(doc)); len(issues) != 0 {
		t.Fatalf("expected valid document, got %v", issues)
	}
}

func containsMessage(issues []Issue, substr string) bool {
	for _, is := range issues {
		if strings.Contains(is.Message, substr) {
			return true
		}
	}
	return false
}
