package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sortedmail/sift/internal/gmail"
	"github.com/sortedmail/sift/internal/store"
)

type fakeClient struct {
	pages    []gmail.ListPage
	messages map[gmail.MessageID]gmail.Message
	getErrs  map[gmail.MessageID]error
}

func (f *fakeClient) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	_ = pageSize
	if len(f.pages) == 0 {
		return gmail.ListPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeClient) GetMessage(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	if err := f.getErrs[id]; err != nil {
		return gmail.Message{}, err
	}
	return f.messages[id], nil
}

func (f *fakeClient) Modify(ctx context.Context, id gmail.MessageID, ops gmail.ModifyOps) error {
	_ = ctx
	_ = id
	_ = ops
	return nil
}

func (f *fakeClient) ListLabels(ctx context.Context) (map[string]gmail.LabelID, map[gmail.LabelID]string, error) {
	_ = ctx
	return map[string]gmail.LabelID{"Receipts": "Label_9"},
		map[gmail.LabelID]string{"Label_9": "Receipts"}, nil
}

func (f *fakeClient) EnsureLabel(ctx context.Context, name string) (gmail.LabelID, error) {
	_ = ctx
	_ = name
	return "", errors.New("not used in fetch")
}

type fakeStore struct {
	recorded  []store.Email
	unchanged map[string]bool
}

func (f *fakeStore) RecordVersion(ctx context.Context, e store.Email) (bool, error) {
	_ = ctx
	f.recorded = append(f.recorded, e)
	return !f.unchanged[e.ID], nil
}

func newTestService(client gmail.Client, st VersionRecorder) *Service {
	return NewService(client, st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchRecordsVersions(t *testing.T) {
	received := time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)
	client := &fakeClient{
		pages: []gmail.ListPage{
			{IDs: []gmail.MessageID{"m1", "m2"}},
		},
		messages: map[gmail.MessageID]gmail.Message{
			"m1": {
				ID:           "m1",
				ThreadID:     "t1",
				From:         "billing@example.com",
				Subject:      "Invoice",
				Body:         "Amount due: 42",
				ReceivedDate: received,
				Labels:       []gmail.LabelID{"INBOX", "UNREAD", "Label_9"},
			},
			"m2": {ID: "m2", From: "other@example.org"},
		},
	}
	st := &fakeStore{}
	svc := newTestService(client, st)

	sum, err := svc.Run(context.Background(), Options{MaxResults: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Fetched != 2 || sum.NewVersions != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(st.recorded) != 2 {
		t.Fatalf("expected two versions recorded, got %d", len(st.recorded))
	}

	got := st.recorded[0]
	if got.ID != "m1" || got.From != "billing@example.com" || !got.ReceivedDate.Equal(received) {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	// Label IDs translate to names; system IDs are their own names.
	want := []string{"INBOX", "UNREAD", "Receipts"}
	for i, l := range want {
		if got.Labels[i] != l {
			t.Fatalf("labels = %v, want %v", got.Labels, want)
		}
	}
}

func TestFetchHonorsMaxResults(t *testing.T) {
	client := &fakeClient{
		pages: []gmail.ListPage{
			{IDs: []gmail.MessageID{"m1", "m2"}, Next: "p2"},
			{IDs: []gmail.MessageID{"m3", "m4"}},
		},
		messages: map[gmail.MessageID]gmail.Message{
			"m1": {ID: "m1"}, "m2": {ID: "m2"}, "m3": {ID: "m3"},
		},
	}
	st := &fakeStore{}
	svc := newTestService(client, st)

	sum, err := svc.Run(context.Background(), Options{MaxResults: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Listed != 3 || sum.Fetched != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestFetchSkipsUnchangedMessages(t *testing.T) {
	client := &fakeClient{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2"}}},
		messages: map[gmail.MessageID]gmail.Message{
			"m1": {ID: "m1"}, "m2": {ID: "m2"},
		},
	}
	st := &fakeStore{unchanged: map[string]bool{"m1": true}}
	svc := newTestService(client, st)

	sum, err := svc.Run(context.Background(), Options{MaxResults: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Fetched != 2 || sum.NewVersions != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestFetchContinuesPastFailedMessages(t *testing.T) {
	client := &fakeClient{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2"}}},
		messages: map[gmail.MessageID]gmail.Message{
			"m2": {ID: "m2"},
		},
		getErrs: map[gmail.MessageID]error{"m1": errors.New("transient 500")},
	}
	st := &fakeStore{}
	svc := newTestService(client, st)

	sum, err := svc.Run(context.Background(), Options{MaxResults: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Fetched != 1 || len(st.recorded) != 1 || st.recorded[0].ID != "m2" {
		t.Fatalf("expected m2 only, summary %+v recorded %+v", sum, st.recorded)
	}
}
