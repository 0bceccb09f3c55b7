package gmail

import "time"

type MessageID string
type LabelID string

// Message is the full view of a mailbox message as observed at fetch time.
type Message struct {
	ID           MessageID
	ThreadID     string
	From         string
	To           string
	Subject      string
	Body         string // text/plain part, truncated at fetch
	ReceivedDate time.Time
	Labels       []LabelID
}

// ModifyOps describes a label mutation applied to a single message.
type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Query is a raw Gmail search query, already formed (e.g. `in:inbox`).
type Query struct {
	Raw string
}

// ListPage is one page of message IDs returned by a list call.
type ListPage struct {
	IDs  []MessageID
	Next string
}
