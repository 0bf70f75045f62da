package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is an immutable standing offer: the creator wants AmountGet of
// TokenGet and gives AmountGive of TokenGive in return. Nothing is escrowed
// at creation; funds move only when the order is filled.
//
// Lifecycle flags (cancelled, filled) live outside the record, keyed by ID.
type Order struct {
	ID         uint64         `json:"id"` // 1-based, strictly increasing
	Creator    common.Address `json:"creator"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"` // creation time, unix seconds
}

// clone returns a defensive copy so callers can never alias the registry's
// amounts.
func (o *Order) clone() *Order {
	cp := *o
	cp.AmountGet = new(big.Int).Set(o.AmountGet)
	cp.AmountGive = new(big.Int).Set(o.AmountGive)
	return &cp
}
