package api

import (
	"fmt"
	"math/big"
)

// API request/response types. Amounts cross the wire as decimal strings in
// the token's smallest unit; 18-decimal amounts overflow JSON numbers.

// ==============================
// Request Types
// ==============================

type TransferRequest struct {
	Token  string `json:"token"`  // token address (0x...)
	User   string `json:"user"`   // caller address (0x...)
	Amount string `json:"amount"` // decimal string, smallest unit
}

type MakeOrderRequest struct {
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
}

type OrderActionRequest struct {
	User string `json:"user"`
}

type ApproveRequest struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// ==============================
// Response Types
// ==============================

type BalanceInfo struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Balance string `json:"balance"`
}

type OrderInfo struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  string `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive string `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"` // "open", "filled", "cancelled"
}

type MakeOrderResponse struct {
	ID uint64 `json:"id"`
}

type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

type ExchangeInfo struct {
	FeeAccount string `json:"feeAccount"`
	FeePercent int64  `json:"feePercent"`
	OrderCount uint64 `json:"orderCount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// parseAmount parses a positive decimal amount string.
func parseAmount(s string) (*big.Int, error) {
	amt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return amt, nil
}
