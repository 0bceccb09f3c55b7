// Package fetch ingests mailbox messages into the temporal store.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sortedmail/sift/internal/gmail"
	"github.com/sortedmail/sift/internal/rate"
	"github.com/sortedmail/sift/internal/store"
	"github.com/sortedmail/sift/pkg/metrics"
)

// VersionRecorder is the slice of the store the fetcher needs.
type VersionRecorder interface {
	RecordVersion(ctx context.Context, e store.Email) (bool, error)
}

// Options controls one fetch run.
type Options struct {
	Query      string // raw Gmail query; empty means the inbox
	MaxResults int
	PageSize   int
}

// Summary reports what one fetch run did.
type Summary struct {
	Listed      int
	Fetched     int
	NewVersions int
}

// Service lists mailbox messages, fetches their full content and records
// each observed state as a version. Re-fetching an unchanged message writes
// nothing.
type Service struct {
	Client  gmail.Client
	Store   VersionRecorder
	Limiter rate.Limiter
	Logger  *slog.Logger
}

func NewService(client gmail.Client, st VersionRecorder, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Client: client, Store: st, Limiter: limiter, Logger: logger}
}

func (s *Service) Run(ctx context.Context, opts Options) (Summary, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}

	ids, err := s.listIDs(ctx, opts.Query, maxResults, pageSize)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Listed: len(ids)}
	if len(ids) == 0 {
		s.Logger.Info("no messages to fetch")
		return sum, nil
	}

	if err := s.wait(ctx); err != nil {
		return sum, err
	}
	_, labelsByID, err := s.Client.ListLabels(ctx)
	if err != nil {
		return sum, fmt.Errorf("list labels: %w", err)
	}

	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			return sum, err
		}
		msg, err := s.Client.GetMessage(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			s.Logger.Error("fetch message failed", "message_id", id, "error", err)
			continue
		}
		sum.Fetched++
		metrics.MessagesFetched.Inc()

		written, err := s.Store.RecordVersion(ctx, toEmail(msg, labelsByID))
		if err != nil {
			s.Logger.Error("record version failed", "message_id", id, "error", err)
			continue
		}
		if written {
			sum.NewVersions++
			metrics.VersionsWritten.Inc()
		}
	}

	s.Logger.Info("fetch complete",
		"listed", sum.Listed, "fetched", sum.Fetched, "new_versions", sum.NewVersions)
	return sum, nil
}

func (s *Service) listIDs(ctx context.Context, query string, maxResults, pageSize int) ([]gmail.MessageID, error) {
	var ids []gmail.MessageID
	pageToken := ""
	for len(ids) < maxResults {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		remaining := maxResults - len(ids)
		if remaining < pageSize {
			pageSize = remaining
		}
		page, err := s.Client.List(ctx, gmail.Query{Raw: query}, pageToken, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, page.IDs...)
		if page.Next == "" {
			break
		}
		pageToken = page.Next
	}
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return nil
	}
	return s.Limiter.Wait(ctx)
}

// toEmail converts a fetched message into a store snapshot, translating
// label IDs to names so stored labels are readable. Unknown IDs are kept
// verbatim; system label IDs equal their names.
func toEmail(msg gmail.Message, labelsByID map[gmail.LabelID]string) store.Email {
	labels := make([]string, 0, len(msg.Labels))
	for _, id := range msg.Labels {
		if name, ok := labelsByID[id]; ok {
			labels = append(labels, name)
		} else {
			labels = append(labels, string(id))
		}
	}
	return store.Email{
		ID:           string(msg.ID),
		ThreadID:     msg.ThreadID,
		From:         msg.From,
		To:           msg.To,
		Subject:      msg.Subject,
		Message:      msg.Body,
		ReceivedDate: msg.ReceivedDate,
		Labels:       labels,
	}
}
