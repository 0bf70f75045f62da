package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// EventKind discriminates the five ledger event types.
type EventKind string

const (
	EventDeposit  EventKind = "Deposit"
	EventWithdraw EventKind = "Withdraw"
	EventOrder    EventKind = "Order"
	EventCancel   EventKind = "Cancel"
	EventTrade    EventKind = "Trade"
)

// Event is the envelope emitted exactly once per successful state change.
// The durable event log is the source of truth for historical order and
// trade reconstruction; external indexers replay it rather than querying
// a book table.
//
// Field usage by kind:
//   - Deposit/Withdraw: User, Token, Amount, Balance (post-op balance)
//   - Order/Cancel:     OrderID, User (creator), TokenGet/AmountGet,
//     TokenGive/AmountGive
//   - Trade:            as Order, with User = filler and Creator set
type Event struct {
	Seq        uint64         `json:"seq"`
	Kind       EventKind      `json:"kind"`
	User       common.Address `json:"user"`
	Token      common.Address `json:"token,omitzero"`
	Amount     *big.Int       `json:"amount,omitempty"`
	Balance    *big.Int       `json:"balance,omitempty"`
	OrderID    uint64         `json:"orderId,omitempty"`
	TokenGet   common.Address `json:"tokenGet,omitzero"`
	AmountGet  *big.Int       `json:"amountGet,omitempty"`
	TokenGive  common.Address `json:"tokenGive,omitzero"`
	AmountGive *big.Int       `json:"amountGive,omitempty"`
	Creator    common.Address `json:"creator,omitzero"`
	Timestamp  int64          `json:"timestamp"`
}

// SubscribeEvents delivers every subsequently emitted event to ch.
// Events already in the log are not redelivered; use Events for replay.
func (l *Ledger) SubscribeEvents(ch chan<- Event) event.Subscription {
	return l.feed.Subscribe(ch)
}
