package core

import "github.com/piljoong/moyim/internal/domain"

// Frame is a marshaled outbound event, ready for the wire.
type Frame []byte

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues a frame without blocking. It returns an error when
	// the connection is closed or its buffer is full; the router treats
	// both as a drop, never as a reason to stall other recipients.
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ClientID
}

// MemberDTO is a read-only principal view for APIs and broadcasts (no
// token or transport fields).
type MemberDTO struct {
	UserID     domain.UserID         `json:"userId"`
	Nickname   string                `json:"nickname,omitempty"`
	Department domain.DepartmentName `json:"department"`
}

// VotesDTO is a ledger snapshot keyed by the wire date form, voter
// lists sorted for a stable order.
type VotesDTO map[string][]domain.UserID

// MonthStats summarizes one month of the ledger for the statistics
// widget.
type MonthStats struct {
	// TheDay is the day-of-month with the most voters, 0 when the month
	// has no votes.
	TheDay int `json:"theDay"`
	// VotersTotal is the voter count on TheDay.
	VotersTotal int `json:"votersTotal"`
	// AvailableTotal is the number of distinct voters across the month.
	AvailableTotal int `json:"availableTotal"`
}
