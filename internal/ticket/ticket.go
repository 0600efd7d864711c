// Package ticket persists tickets and their relayed messages. The store
// is the only durable state in the relay; everything else (sessions,
// spam counters, route bindings) is process-local.
package ticket

import "time"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusBanned Status = "banned"
)

type Direction string

const (
	DirectionUser  Direction = "user"
	DirectionStaff Direction = "staff"
)

// Ticket is one numbered end-user conversation. IDs are assigned by the
// store's sequence and are monotonically increasing.
type Ticket struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Address   string `gorm:"index:idx_tickets_addr_cat;not null"`
	Messenger string `gorm:"not null"`
	Category  string `gorm:"index:idx_tickets_addr_cat;default:''"`
	Status    Status `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is one relayed message, append-only per ticket.
type MessageRecord struct {
	ID        string `gorm:"primaryKey"`
	TicketID  int64  `gorm:"index;not null"`
	Address   string `gorm:"not null"`
	NativeID  string
	Messenger string
	Text      string
	Direction Direction `gorm:"not null"`
	SentAt    time.Time `gorm:"index"`
}

// NativeRef binds a transport-native message id to a ticket. It backs
// the staff-reply correlation fallback: resolve the replied-to native id
// first, parse the visible tag only on a miss.
type NativeRef struct {
	NativeID  string `gorm:"primaryKey"`
	TicketID  int64  `gorm:"index;not null"`
	CreatedAt time.Time
}
