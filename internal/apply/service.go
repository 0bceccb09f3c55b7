// Package apply executes the actions of matched rules: it mutates the remote
// mailbox and records the resulting state as a new version in the store.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sortedmail/sift/internal/gmail"
	"github.com/sortedmail/sift/internal/rate"
	"github.com/sortedmail/sift/internal/rules"
	"github.com/sortedmail/sift/internal/store"
	"github.com/sortedmail/sift/pkg/metrics"
)

// VersionRecorder is the slice of the store the executor needs.
type VersionRecorder interface {
	RecordVersion(ctx context.Context, e store.Email) (bool, error)
}

// Service applies matched rule actions. One email's failure never aborts the
// rest of the batch; failures are collected into the run report.
type Service struct {
	Client  gmail.Client
	Store   VersionRecorder
	Limiter rate.Limiter
	Logger  *slog.Logger
	Clock   func() time.Time
	DryRun  bool
}

func NewService(client gmail.Client, st VersionRecorder, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:  client,
		Store:   st,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
	}
}

// Failure records one email whose actions could not be applied.
type Failure struct {
	EmailID string
	Rules   []string
	Err     error
}

// Report summarizes one apply run.
type Report struct {
	RunID           uuid.UUID
	StartedAt       time.Time
	EmailsMatched   int
	ActionsApplied  int
	VersionsWritten int
	Failures        []Failure
}

// Apply executes the actions of every match. Matches arrive in engine output
// order (email-major, rules in document order within an email); all of one
// email's actions fold into a single label change and at most one new
// version. Read-state conflicts across rules resolve last-write-wins; a move
// supersedes earlier moves because it clears other user labels.
func (s *Service) Apply(ctx context.Context, matches []rules.Match) (Report, error) {
	rep := Report{RunID: uuid.New(), StartedAt: s.Clock()}
	if len(matches) == 0 {
		return rep, nil
	}

	if err := s.wait(ctx); err != nil {
		return rep, err
	}
	labelsByName, _, err := s.Client.ListLabels(ctx)
	if err != nil {
		return rep, fmt.Errorf("list labels: %w", err)
	}

	for _, group := range groupByEmail(matches) {
		rep.EmailsMatched++
		updated, applied := planLabels(group)
		if applied == 0 || labelSetsEqual(group.email.Labels, updated.Labels) {
			s.Logger.Debug("no effective change", "email_id", group.email.ID)
			continue
		}
		if s.DryRun {
			s.Logger.Info("dry-run", "email_id", group.email.ID,
				"rules", strings.Join(group.ruleNames, ","),
				"labels", updated.Labels)
			continue
		}
		if err := s.applyOne(ctx, group, updated, labelsByName); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			metrics.ApplyFailures.Inc()
			s.Logger.Error("apply failed", "email_id", group.email.ID, "error", err)
			rep.Failures = append(rep.Failures, Failure{
				EmailID: group.email.ID,
				Rules:   group.ruleNames,
				Err:     err,
			})
			continue
		}
		rep.ActionsApplied += applied
		rep.VersionsWritten++
	}
	return rep, nil
}

// applyOne mutates the mailbox first and records the new version only when
// the remote accepted the change, so the store never claims state the
// mailbox rejected. A remote failure leaves the current version in place and
// the email is picked up again on the next run.
func (s *Service) applyOne(ctx context.Context, group emailGroup, updated store.Email, labelsByName map[string]gmail.LabelID) error {
	ops, err := s.resolveOps(ctx, group.email.Labels, updated.Labels, labelsByName)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.Client.Modify(ctx, gmail.MessageID(updated.ID), ops); err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	for _, a := range group.actions {
		metrics.ActionsApplied.WithLabelValues(string(a.Type)).Inc()
	}
	written, err := s.Store.RecordVersion(ctx, updated)
	if err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if written {
		metrics.VersionsWritten.Inc()
	}
	s.Logger.Info("applied",
		"email_id", updated.ID,
		"rules", strings.Join(group.ruleNames, ","),
		"labels", updated.Labels)
	return nil
}

// resolveOps translates the before/after label names into Gmail label ID
// operations, creating destination labels that do not exist yet.
func (s *Service) resolveOps(ctx context.Context, before, after []string, labelsByName map[string]gmail.LabelID) (gmail.ModifyOps, error) {
	var ops gmail.ModifyOps
	beforeSet := toSet(before)
	afterSet := toSet(after)

	for _, name := range after {
		if _, kept := beforeSet[name]; kept {
			continue
		}
		if isSystemLabel(name) {
			ops.AddLabels = append(ops.AddLabels, gmail.LabelID(name))
			continue
		}
		id, ok := labelsByName[name]
		if !ok {
			if err := s.wait(ctx); err != nil {
				return gmail.ModifyOps{}, err
			}
			created, err := s.Client.EnsureLabel(ctx, name)
			if err != nil {
				return gmail.ModifyOps{}, fmt.Errorf("ensure label %q: %w", name, err)
			}
			labelsByName[name] = created
			id = created
		}
		ops.AddLabels = append(ops.AddLabels, id)
	}
	for _, name := range before {
		if _, kept := afterSet[name]; kept {
			continue
		}
		if id, ok := labelsByName[name]; ok && !isSystemLabel(name) {
			ops.RemoveLabels = append(ops.RemoveLabels, id)
		} else {
			// System labels are their own IDs.
			ops.RemoveLabels = append(ops.RemoveLabels, gmail.LabelID(name))
		}
	}
	return ops, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return nil
	}
	return s.Limiter.Wait(ctx)
}

type emailGroup struct {
	email     store.Email
	ruleNames []string
	actions   []rules.Action
}

// groupByEmail folds the matches for each email into one group, preserving
// engine output order.
func groupByEmail(matches []rules.Match) []emailGroup {
	var groups []emailGroup
	index := map[string]int{}
	for _, m := range matches {
		i, ok := index[m.Email.ID]
		if !ok {
			index[m.Email.ID] = len(groups)
			groups = append(groups, emailGroup{email: m.Email})
			i = len(groups) - 1
		}
		groups[i].ruleNames = append(groups[i].ruleNames, m.Rule.Name)
		groups[i].actions = append(groups[i].actions, m.Actions...)
	}
	return groups
}

// planLabels replays a group's actions in order against a working copy of
// the email's labels and returns the updated snapshot plus the number of
// actions that took part.
func planLabels(group emailGroup) (store.Email, int) {
	updated := group.email
	labels := append([]string(nil), group.email.Labels...)
	for _, action := range group.actions {
		switch action.Type {
		case rules.MarkAsRead:
			labels = removeLabel(labels, "UNREAD")
		case rules.MarkAsUnread:
			labels = addLabel(labels, "UNREAD")
		case rules.MoveMessage:
			labels = moveTo(labels, normalizeDestination(action.Destination))
		}
	}
	updated.Labels = labels
	return updated, len(group.actions)
}

// systemLabels survive a move; everything else is location or user labeling
// that a single-folder move clears.
var systemLabels = map[string]struct{}{
	"UNREAD":              {},
	"STARRED":             {},
	"IMPORTANT":           {},
	"CATEGORY_PERSONAL":   {},
	"CATEGORY_SOCIAL":     {},
	"CATEGORY_PROMOTIONS": {},
	"CATEGORY_UPDATES":    {},
	"CATEGORY_FORUMS":     {},
}

// locationLabels are the mutually exclusive placement labels a move clears.
var locationLabels = map[string]struct{}{
	"INBOX": {}, "SENT": {}, "DRAFT": {}, "TRASH": {}, "SPAM": {},
}

// isSystemLabel reports whether a label name is a Gmail system label, which
// is its own ID and must never be created via EnsureLabel.
func isSystemLabel(name string) bool {
	if _, ok := systemLabels[name]; ok {
		return true
	}
	_, ok := locationLabels[name]
	return ok
}

// normalizeDestination maps well-known folder names onto Gmail's system
// label spelling.
func normalizeDestination(dest string) string {
	switch strings.ToLower(strings.TrimSpace(dest)) {
	case "inbox", "trash", "spam", "sent", "draft":
		return strings.ToUpper(strings.TrimSpace(dest))
	default:
		return strings.TrimSpace(dest)
	}
}

func moveTo(labels []string, destination string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if _, ok := systemLabels[l]; ok {
			out = append(out, l)
		}
	}
	return addLabel(out, destination)
}

func addLabel(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}

func removeLabel(labels []string, label string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func labelSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := toSet(a)
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
