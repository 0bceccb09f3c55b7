package rules

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sortedmail/sift/internal/store"
	"github.com/sortedmail/sift/pkg/metrics"
)

// Match pairs an email with one rule that fired for it.
type Match struct {
	Email   store.Email
	Rule    Rule
	Actions []Action
}

// Engine evaluates a validated rule document against email snapshots.
type Engine struct {
	doc    Document
	Logger *slog.Logger
	Clock  func() time.Time
}

// New validates the document and returns an engine for it. Validation is
// all-or-nothing: one bad rule blocks the whole document, and the returned
// error aggregates every finding.
func New(doc Document, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	issues := Validate(doc)
	for _, warn := range Warnings(issues) {
		logger.Warn("rule validation warning", "rule", warn.Rule, "message", warn.Message)
	}
	if errs := Errors(issues); len(errs) > 0 {
		var merr *multierror.Error
		for _, is := range errs {
			merr = multierror.Append(merr, is)
		}
		return nil, fmt.Errorf("rule validation failed: %w", merr)
	}
	return &Engine{doc: doc, Logger: logger, Clock: time.Now}, nil
}

// Load reads, parses and validates a rules file.
func Load(path string, logger *slog.Logger) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return New(doc, logger)
}

// Rules returns the validated document's rules in document order.
func (e *Engine) Rules() []Rule {
	return e.doc.Rules
}

// Run evaluates every rule against every email. All matching rules fire;
// there is no first-match short-circuit across rules. Output order is
// input-email order, then document order, so a run is reproducible.
func (e *Engine) Run(emails []store.Email) []Match {
	now := e.Clock()
	var matches []Match
	for _, email := range emails {
		metrics.EmailsEvaluated.Inc()
		for _, rule := range e.doc.Rules {
			if !rule.Matches(email, now) {
				continue
			}
			metrics.RuleMatches.WithLabelValues(rule.Name).Inc()
			e.Logger.Debug("rule matched", "rule", rule.Name, "email_id", email.ID)
			matches = append(matches, Match{
				Email:   email,
				Rule:    rule,
				Actions: rule.Actions,
			})
		}
	}
	return matches
}
