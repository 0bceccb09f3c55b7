package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Limits on document size, mirroring what a hand-edited rules file can
// reasonably contain.
const (
	MaxRules      = 100
	MaxConditions = 10
	MaxActions    = 5
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, qualified by the rule it concerns.
// Error-severity issues block the whole run; warnings do not.
type Issue struct {
	Rule     string
	Message  string
	Severity Severity
}

func (i Issue) Error() string {
	if i.Rule == "" {
		return i.Message
	}
	return fmt.Sprintf("rule %q: %s", i.Rule, i.Message)
}

// Errors filters issues down to error severity.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// Warnings filters issues down to warning severity.
func Warnings(issues []Issue) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity == SeverityWarning {
			out = append(out, is)
		}
	}
	return out
}

// Validate checks a document against the closed rule vocabulary and returns
// every finding, not just the first. A document with zero error-severity
// issues is safe to evaluate.
func Validate(doc Document) []Issue {
	var issues []Issue
	if len(doc.Rules) > MaxRules {
		issues = append(issues, Issue{
			Message:  fmt.Sprintf("too many rules: %d (max %d)", len(doc.Rules), MaxRules),
			Severity: SeverityError,
		})
	}
	for i, rule := range doc.Rules {
		issues = append(issues, validateRule(rule, i)...)
	}
	return issues
}

func validateRule(rule Rule, idx int) []Issue {
	name := strings.TrimSpace(rule.Name)
	if name == "" {
		name = fmt.Sprintf("rule #%d", idx+1)
	}
	errf := func(format string, args ...any) Issue {
		return Issue{Rule: name, Message: fmt.Sprintf(format, args...), Severity: SeverityError}
	}
	warnf := func(format string, args ...any) Issue {
		return Issue{Rule: name, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning}
	}

	var issues []Issue

	if strings.TrimSpace(rule.Name) == "" {
		issues = append(issues, errf("missing 'name'"))
	}

	switch rule.Predicate {
	case MatchAll, MatchAny:
	case "":
		issues = append(issues, errf("missing 'predicate'"))
	default:
		issues = append(issues, errf("invalid predicate %q (must be 'all' or 'any')", rule.Predicate))
	}

	switch {
	case len(rule.Conditions) == 0:
		issues = append(issues, errf("must have at least one condition"))
	case len(rule.Conditions) > MaxConditions:
		issues = append(issues, errf("too many conditions: %d (max %d)", len(rule.Conditions), MaxConditions))
	default:
		for i, cond := range rule.Conditions {
			issues = append(issues, validateCondition(cond, name, i)...)
		}
	}

	switch {
	case len(rule.Actions) == 0:
		issues = append(issues, errf("must have at least one action"))
	case len(rule.Actions) > MaxActions:
		issues = append(issues, errf("too many actions: %d (max %d)", len(rule.Actions), MaxActions))
	default:
		for i, action := range rule.Actions {
			issues = append(issues, validateAction(action, name, i)...)
		}
		issues = append(issues, checkActionConflicts(rule.Actions, errf, warnf)...)
	}

	return issues
}

func validateCondition(cond Condition, rule string, idx int) []Issue {
	errf := func(format string, args ...any) Issue {
		return Issue{
			Rule:     rule,
			Message:  fmt.Sprintf("condition #%d: ", idx+1) + fmt.Sprintf(format, args...),
			Severity: SeverityError,
		}
	}

	var issues []Issue
	if cond.Field == "" {
		return append(issues, errf("missing 'field'"))
	}

	switch cond.Field {
	case FieldFrom, FieldSubject, FieldMessage:
		switch cond.Predicate {
		case Contains, DoesNotContain, Equals, DoesNotEqual:
		case "":
			issues = append(issues, errf("missing 'predicate'"))
		default:
			issues = append(issues, errf("invalid predicate %q for string field %q", cond.Predicate, cond.Field))
		}
		if strings.TrimSpace(string(cond.Value)) == "" {
			issues = append(issues, errf("value must be a non-empty string"))
		}
		if cond.Unit != "" {
			issues = append(issues, errf("'unit' is only valid for received_date conditions"))
		}
	case FieldReceivedDate:
		switch cond.Predicate {
		case LessThan, GreaterThan:
		case "":
			issues = append(issues, errf("missing 'predicate'"))
		default:
			issues = append(issues, errf("invalid predicate %q for date field (must be 'less_than' or 'greater_than')", cond.Predicate))
		}
		switch cond.Unit {
		case UnitDays, UnitMonths:
		case "":
			issues = append(issues, errf("date conditions require 'unit' (days or months)"))
		default:
			issues = append(issues, errf("invalid unit %q (must be 'days' or 'months')", cond.Unit))
		}
		if n, err := strconv.Atoi(strings.TrimSpace(string(cond.Value))); err != nil {
			issues = append(issues, errf("date value %q must be numeric", cond.Value))
		} else if n <= 0 {
			issues = append(issues, errf("date value must be positive, got %d", n))
		}
	default:
		issues = append(issues, errf("invalid field %q (supported: from, subject, message, received_date)", cond.Field))
	}
	return issues
}

func validateAction(action Action, rule string, idx int) []Issue {
	errf := func(format string, args ...any) Issue {
		return Issue{
			Rule:     rule,
			Message:  fmt.Sprintf("action #%d: ", idx+1) + fmt.Sprintf(format, args...),
			Severity: SeverityError,
		}
	}

	var issues []Issue
	switch action.Type {
	case MarkAsRead, MarkAsUnread:
		if action.Destination != "" {
			issues = append(issues, errf("'destination' is only valid for move_message"))
		}
	case MoveMessage:
		if strings.TrimSpace(action.Destination) == "" {
			issues = append(issues, errf("move_message requires a non-empty 'destination'"))
		}
	case "":
		issues = append(issues, errf("missing 'type'"))
	default:
		issues = append(issues, errf("invalid action %q", action.Type))
	}
	return issues
}

func checkActionConflicts(actions []Action, errf, warnf func(string, ...any) Issue) []Issue {
	var issues []Issue
	counts := map[ActionType]int{}
	var destinations []string
	for _, a := range actions {
		counts[a.Type]++
		if a.Type == MoveMessage {
			destinations = append(destinations, a.Destination)
		}
	}

	if counts[MarkAsRead] > 0 && counts[MarkAsUnread] > 0 {
		issues = append(issues, errf("cannot have both 'mark_as_read' and 'mark_as_unread'"))
	}
	if counts[MarkAsRead] > 1 {
		issues = append(issues, warnf("duplicate 'mark_as_read' actions"))
	}
	if counts[MarkAsUnread] > 1 {
		issues = append(issues, warnf("duplicate 'mark_as_unread' actions"))
	}
	if len(destinations) > 1 && !allEqual(destinations) {
		issues = append(issues, warnf("multiple move destinations; the last one wins: %s",
			strings.Join(destinations, ", ")))
	}
	return issues
}

func allEqual(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
