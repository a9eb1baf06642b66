package archive

import "time"

// Message is one exported mail message. Records are created by the exporter
// and never mutated afterwards; writes overwrite by key so replaying a page
// produces identical state.
type Message struct {
	ID        string
	ThreadID  string
	Sender    string
	Recipient string
	Subject   string
	Date      string    // raw Date header as received
	Sent      time.Time // parsed Date header; zero when unparseable
	Snippet   string
	Body      string
}

// Year returns the calendar year the message was sent, or 0 when the Date
// header could not be parsed.
func (m *Message) Year() int {
	if m.Sent.IsZero() {
		return 0
	}
	return m.Sent.Year()
}

// Run status values.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusComplete = "COMPLETE"
)

// Checkpoint is the resume point of an export query. The cursor always sits
// on a page boundary: every record listed before it is already in the store.
type Checkpoint struct {
	Query     string
	Cursor    string
	Processed int64
	RunID     string
	UpdatedAt time.Time
}

// Run is the inspectable progress row of an export invocation.
type Run struct {
	ID        string
	Query     string
	Status    string
	Processed int64
	StartedAt time.Time
	UpdatedAt time.Time
}
