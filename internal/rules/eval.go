package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/sortedmail/sift/internal/store"
)

// daysPerMonth fixes the month unit to a 30-day approximation; date
// thresholds are coarse enough that calendar-aware months buy nothing.
const daysPerMonth = 30

// Matches reports whether the email satisfies the rule's conditions under
// its combinator. ALL short-circuits on the first failing condition, ANY on
// the first passing one. Assumes a validated rule.
func (r Rule) Matches(e store.Email, now time.Time) bool {
	switch r.Predicate {
	case MatchAll:
		for _, cond := range r.Conditions {
			if !cond.Matches(e, now) {
				return false
			}
		}
		return len(r.Conditions) > 0
	case MatchAny:
		for _, cond := range r.Conditions {
			if cond.Matches(e, now) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Matches evaluates one condition against an email snapshot. Pure; never
// errors. Input the validator would reject evaluates to false.
func (c Condition) Matches(e store.Email, now time.Time) bool {
	if c.Field == FieldReceivedDate {
		return c.matchesDate(e.ReceivedDate, now)
	}
	return c.matchesString(fieldValue(e, c.Field))
}

func fieldValue(e store.Email, f Field) string {
	switch f {
	case FieldFrom:
		return e.From
	case FieldSubject:
		return e.Subject
	case FieldMessage:
		return e.Message
	default:
		return ""
	}
}

// String predicates are case-insensitive and ignore surrounding whitespace:
// sender and subject matching in mail systems conventionally is.
func (c Condition) matchesString(fieldValue string) bool {
	have := strings.ToLower(strings.TrimSpace(fieldValue))
	want := strings.ToLower(strings.TrimSpace(string(c.Value)))
	if want == "" {
		return false
	}
	switch c.Predicate {
	case Contains:
		return strings.Contains(have, want)
	case DoesNotContain:
		return !strings.Contains(have, want)
	case Equals:
		return have == want
	case DoesNotEqual:
		return have != want
	default:
		return false
	}
}

func (c Condition) matchesDate(received, now time.Time) bool {
	if received.IsZero() {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(c.Value)))
	if err != nil || n <= 0 {
		return false
	}
	days := n
	if c.Unit == UnitMonths {
		days = n * daysPerMonth
	}
	threshold := now.AddDate(0, 0, -days)
	switch c.Predicate {
	case LessThan:
		// newer than the threshold
		return received.After(threshold)
	case GreaterThan:
		// older than the threshold
		return received.Before(threshold)
	default:
		return false
	}
}
