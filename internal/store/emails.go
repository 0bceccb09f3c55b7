package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// Email is the current snapshot of a message, the slice of a version row the
// rule engine evaluates.
type Email struct {
	ID           string
	ThreadID     string
	From         string
	To           string
	Subject      string
	Message      string
	ReceivedDate time.Time
	Labels       []string
}

// Version is one temporal snapshot of a message. ValidTo is nil for the
// current version.
type Version struct {
	Email
	ValidFrom time.Time
	ValidTo   *time.Time
	IsCurrent bool
	FetchedAt time.Time
}

// Stats summarizes the version table.
type Stats struct {
	UniqueEmails       int64
	TotalVersions      int64
	CurrentVersions    int64
	HistoricalVersions int64
}

// RecordVersion records a new version of an email, closing the previous
// current version in the same transaction. When the snapshot is identical to
// the current row (same label set) no version is written and RecordVersion
// returns false.
func (s *Store) RecordVersion(ctx context.Context, e Email) (bool, error) {
	if e.ID == "" {
		return false, fmt.Errorf("record version: empty email id")
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prevFrom time.Time
	var prevLabels []string
	err = tx.QueryRow(ctx, `
		SELECT valid_from, labels FROM emails
		WHERE email_id = $1 AND is_current
		FOR UPDATE`, e.ID).Scan(&prevFrom, &prevLabels)
	switch {
	case err == nil:
		if labelSetsEqual(prevLabels, e.Labels) {
			return false, nil
		}
		// Keep valid_from strictly increasing per email so intervals
		// partition time (and the composite PK never collides).
		if !now.After(prevFrom) {
			now = prevFrom.Add(time.Microsecond)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE emails SET valid_to = $2, is_current = FALSE
			WHERE email_id = $1 AND is_current`, e.ID, now); err != nil {
			return false, fmt.Errorf("close current version: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first observation of this email
	default:
		return false, fmt.Errorf("load current version: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO emails
		(email_id, valid_from, thread_id, from_email, to_email,
		 subject, message, received_date, labels, valid_to, is_current, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, TRUE, $10)`,
		e.ID, now, e.ThreadID, e.From, e.To,
		e.Subject, e.Message, nullableTime(e.ReceivedDate), labelsOrEmpty(e.Labels), now,
	); err != nil {
		return false, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// CurrentEmails returns the current snapshot of every stored email, newest
// received first for a stable iteration order.
func (s *Store) CurrentEmails(ctx context.Context) ([]Email, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email_id, thread_id, from_email, to_email,
		       subject, message, received_date, labels
		FROM emails
		WHERE is_current
		ORDER BY received_date DESC NULLS LAST, email_id`)
	if err != nil {
		return nil, fmt.Errorf("query current emails: %w", err)
	}
	defer rows.Close()

	var out []Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CurrentEmail returns the current snapshot for one email, or pgx.ErrNoRows.
func (s *Store) CurrentEmail(ctx context.Context, id string) (Email, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT email_id, thread_id, from_email, to_email,
		       subject, message, received_date, labels
		FROM emails
		WHERE email_id = $1 AND is_current`, id)
	return scanEmail(row)
}

// History returns every version of an email ordered by valid_from ascending.
func (s *Store) History(ctx context.Context, id string) ([]Version, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email_id, thread_id, from_email, to_email,
		       subject, message, received_date, labels,
		       valid_from, valid_to, is_current, fetched_at
		FROM emails
		WHERE email_id = $1
		ORDER BY valid_from ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var received *time.Time
		if err := rows.Scan(&v.ID, &v.ThreadID, &v.From, &v.To,
			&v.Subject, &v.Message, &received, &v.Labels,
			&v.ValidFrom, &v.ValidTo, &v.IsCurrent, &v.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		if received != nil {
			v.ReceivedDate = *received
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of distinct current emails.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT email_id) FROM emails WHERE is_current`).Scan(&n)
	return n, err
}

// GetStats returns aggregate version counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT email_id),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE is_current),
		       COUNT(*) FILTER (WHERE NOT is_current)
		FROM emails`).Scan(
		&st.UniqueEmails, &st.TotalVersions, &st.CurrentVersions, &st.HistoricalVersions)
	return st, err
}

func scanEmail(row pgx.Row) (Email, error) {
	var e Email
	var received *time.Time
	if err := row.Scan(&e.ID, &e.ThreadID, &e.From, &e.To,
		&e.Subject, &e.Message, &received, &e.Labels); err != nil {
		return Email{}, fmt.Errorf("scan email: %w", err)
	}
	if received != nil {
		e.ReceivedDate = *received
	}
	return e, nil
}

func labelSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func labelsOrEmpty(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
