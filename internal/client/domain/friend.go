package domain

import "time"

// Friend is a contact saved on this device.
type Friend struct {
	ID        int64
	Username  string
	PublicKey string
	AddedAt   time.Time
}

// FriendRepresentation is a friend as shown in a contact list: the friend
// plus a preview of the latest local message exchanged with them.
type FriendRepresentation struct {
	Friend

	LastMessage   string     // empty when no messages have been exchanged
	LastMessageAt *time.Time // nil when no messages have been exchanged
}
