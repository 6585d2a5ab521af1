package domain

import "time"

// Message is a chat message kept in the local database.
type Message struct {
	ID       int64  // local auto-increment row id
	ClientID string // ULID assigned on this device
	From     string
	To       string
	Body     string
	SentAt   time.Time
}

// Peer returns the other participant of m from the point of view of self.
func (m Message) Peer(self string) string {
	if m.From == self {
		return m.To
	}
	return m.From
}
