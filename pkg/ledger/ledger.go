package ledger

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

// Custody is the external fungible-asset ledger backing deposits and
// withdrawals. A non-nil error from either call aborts the whole ledger
// operation with no internal state change.
type Custody interface {
	// TransferIn pulls amount of token from the depositor into custody.
	TransferIn(token, from common.Address, amount *big.Int) error
	// TransferOut pushes amount of token from custody back to the holder.
	TransferOut(token, to common.Address, amount *big.Int) error
}

// Ledger custodies token balances per user and settles limit orders between
// them, charging feePercent of the taken amount to the filler. Every
// state-changing operation runs to completion under one mutex and commits
// as a single synced batch: a call either fully happens or is a no-op.
type Ledger struct {
	mu sync.Mutex

	feeAccount common.Address
	feePercent int64 // integer percent, fixed at construction
	custody    Custody
	store      *Store
	log        *zap.SugaredLogger
	now        func() time.Time

	st   *state
	feed event.Feed
}

// New loads any persisted state from store and returns a ready ledger.
// feeAccount and feePercent are immutable afterwards.
func New(store *Store, custody Custody, feeAccount common.Address, feePercent int64, logger *zap.Logger) (*Ledger, error) {
	if feePercent < 0 || feePercent > 100 {
		return nil, fmt.Errorf("%w: fee percent %d out of range", ErrInvalidArgument, feePercent)
	}
	if custody == nil {
		return nil, fmt.Errorf("%w: nil custody", ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	l := &Ledger{
		feeAccount: feeAccount,
		feePercent: feePercent,
		custody:    custody,
		store:      store,
		log:        logger.Sugar(),
		now:        time.Now,
		st:         st,
	}
	l.log.Infow("ledger_loaded",
		"orders", st.orderCount,
		"events", st.eventCount,
		"fee_account", feeAccount.Hex(),
		"fee_percent", feePercent,
	)
	return l, nil
}

// FeeAccount returns the identity credited with trade fees.
func (l *Ledger) FeeAccount() common.Address { return l.feeAccount }

// FeePercent returns the configured integer fee percentage.
func (l *Ledger) FeePercent() int64 { return l.feePercent }

// ---- balance primitives (caller holds l.mu) ----

func (l *Ledger) balanceLocked(token, user common.Address) *big.Int {
	if m, ok := l.st.balances[token]; ok {
		if b, ok := m[user]; ok {
			return b
		}
	}
	return nil
}

// creditLocked increases balance(token, user). Amounts are non-negative by
// construction of every caller.
func (l *Ledger) creditLocked(token, user common.Address, amount *big.Int) {
	m, ok := l.st.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		l.st.balances[token] = m
	}
	cur, ok := m[user]
	if !ok {
		cur = new(big.Int)
		m[user] = cur
	}
	cur.Add(cur, amount)
}

// debitLocked decreases balance(token, user), the sole overdraft guard.
func (l *Ledger) debitLocked(token, user common.Address, amount *big.Int) error {
	cur := l.balanceLocked(token, user)
	if cur == nil || cur.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	cur.Sub(cur, amount)
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	return nil
}

// ---- state-changing operations ----

// Deposit pulls amount of token from caller's external wallet into custody
// and credits the caller's ledger balance. The caller must have approved
// the custody account beforehand; a failed pull surfaces as
// ErrTransferFailed with nothing changed.
func (l *Ledger) Deposit(token common.Address, amount *big.Int, caller common.Address) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.custody.TransferIn(token, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.creditLocked(token, caller, amount)
	balance := new(big.Int).Set(l.balanceLocked(token, caller))

	ev := l.nextEventLocked(EventDeposit)
	ev.User = caller
	ev.Token = token
	ev.Amount = new(big.Int).Set(amount)
	ev.Balance = balance

	if err := l.commitLocked(&commit{
		balances: []balanceWrite{{token, caller, balance}},
		event:    &ev,
	}); err != nil {
		// Internal commit failed after the external pull succeeded: undo
		// the credit and push the funds back.
		l.debitLocked(token, caller, amount)
		if rerr := l.custody.TransferOut(token, caller, amount); rerr != nil {
			l.log.Errorw("deposit_refund_failed", "token", token.Hex(), "user", caller.Hex(), "err", rerr)
		}
		return err
	}

	l.log.Infow("deposit", "token", token.Hex(), "user", caller.Hex(), "amount", amount.String(), "balance", balance.String())
	l.feed.Send(ev)
	return nil
}

// Withdraw debits the caller's ledger balance and pushes amount of token
// from custody back to the caller's external wallet. Rejected with
// ErrInsufficientBalance before any state change when the balance does not
// cover the amount.
func (l *Ledger) Withdraw(token common.Address, amount *big.Int, caller common.Address) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balanceLocked(token, caller)
	if cur == nil || cur.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	// External push first: its failure must abort the debit, and nothing
	// internal has been committed yet.
	if err := l.custody.TransferOut(token, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.debitLocked(token, caller, amount)
	balance := new(big.Int).Set(l.balanceLocked(token, caller))

	ev := l.nextEventLocked(EventWithdraw)
	ev.User = caller
	ev.Token = token
	ev.Amount = new(big.Int).Set(amount)
	ev.Balance = balance

	if err := l.commitLocked(&commit{
		balances: []balanceWrite{{token, caller, balance}},
		event:    &ev,
	}); err != nil {
		l.creditLocked(token, caller, amount)
		if rerr := l.custody.TransferIn(token, caller, amount); rerr != nil {
			l.log.Errorw("withdraw_reclaim_failed", "token", token.Hex(), "user", caller.Hex(), "err", rerr)
		}
		return err
	}

	l.log.Infow("withdraw", "token", token.Hex(), "user", caller.Hex(), "amount", amount.String(), "balance", balance.String())
	l.feed.Send(ev)
	return nil
}

// MakeOrder records a standing offer by caller to receive amountGet of
// tokenGet in exchange for amountGive of tokenGive, assigning the next
// sequential id (1-based). No funds move and no backing balance is
// required at creation; an under-backed order simply fails at fill time.
func (l *Ledger) MakeOrder(tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int, caller common.Address) (uint64, error) {
	if err := validAmount(amountGet); err != nil {
		return 0, err
	}
	if err := validAmount(amountGive); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o := &Order{
		ID:         l.st.orderCount + 1,
		Creator:    caller,
		TokenGet:   tokenGet,
		AmountGet:  new(big.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(big.Int).Set(amountGive),
		Timestamp:  l.now().Unix(),
	}

	ev := l.nextEventLocked(EventOrder)
	ev.OrderID = o.ID
	ev.User = caller
	ev.TokenGet = tokenGet
	ev.AmountGet = new(big.Int).Set(amountGet)
	ev.TokenGive = tokenGive
	ev.AmountGive = new(big.Int).Set(amountGive)
	ev.Timestamp = o.Timestamp

	if err := l.commitLocked(&commit{
		order:      o,
		orderCount: o.ID,
		event:      &ev,
	}); err != nil {
		return 0, err
	}

	l.st.orders[o.ID] = o
	l.st.orderCount = o.ID

	l.log.Infow("order_created", "id", o.ID, "creator", caller.Hex(),
		"token_get", tokenGet.Hex(), "amount_get", amountGet.String(),
		"token_give", tokenGive.Hex(), "amount_give", amountGive.String())
	l.feed.Send(ev)
	return o.ID, nil
}

// CancelOrder marks an open order cancelled. Only the creator may cancel,
// and only while the order is neither filled nor already cancelled.
func (l *Ledger) CancelOrder(id uint64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	if o.Creator != caller {
		return fmt.Errorf("%w: only creator may cancel order %d", ErrUnauthorized, id)
	}
	if l.st.filled[id] {
		return fmt.Errorf("%w: order %d", ErrAlreadyFilled, id)
	}
	if l.st.cancelled[id] {
		return fmt.Errorf("%w: order %d", ErrAlreadyCancelled, id)
	}

	ev := l.nextEventLocked(EventCancel)
	ev.OrderID = id
	ev.User = o.Creator
	ev.TokenGet = o.TokenGet
	ev.AmountGet = new(big.Int).Set(o.AmountGet)
	ev.TokenGive = o.TokenGive
	ev.AmountGive = new(big.Int).Set(o.AmountGive)

	if err := l.commitLocked(&commit{cancelled: id, event: &ev}); err != nil {
		return err
	}

	l.st.cancelled[id] = true
	l.log.Infow("order_cancelled", "id", id, "creator", caller.Hex())
	l.feed.Send(ev)
	return nil
}

// FillOrder settles order id against caller as the filler. The filler pays
// amountGet plus a fee of amountGet*feePercent/100 (truncating), all in
// tokenGet; the creator receives amountGet and gives up amountGive to the
// filler. All five balance mutations apply atomically or not at all.
func (l *Ledger) FillOrder(id uint64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.st.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	if l.st.filled[id] {
		return fmt.Errorf("%w: order %d", ErrAlreadyFilled, id)
	}
	if l.st.cancelled[id] {
		return fmt.Errorf("%w: order %d", ErrAlreadyCancelled, id)
	}

	fee := new(big.Int).Mul(o.AmountGet, big.NewInt(l.feePercent))
	fee.Div(fee, big.NewInt(100))
	cost := new(big.Int).Add(o.AmountGet, fee)

	// Settlement steps in order; any debit failure unwinds the steps
	// already applied so no partial settlement is ever observable.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	if err := l.debitLocked(o.TokenGet, caller, cost); err != nil {
		return fmt.Errorf("%w: filler lacks %s of token %s", ErrInsufficientBalance, cost, o.TokenGet.Hex())
	}
	undo = append(undo, func() { l.creditLocked(o.TokenGet, caller, cost) })

	l.creditLocked(o.TokenGet, o.Creator, o.AmountGet)
	undo = append(undo, func() { l.debitLocked(o.TokenGet, o.Creator, o.AmountGet) })

	l.creditLocked(o.TokenGet, l.feeAccount, fee)
	undo = append(undo, func() { l.debitLocked(o.TokenGet, l.feeAccount, fee) })

	if err := l.debitLocked(o.TokenGive, o.Creator, o.AmountGive); err != nil {
		rollback()
		return fmt.Errorf("%w: creator lacks %s of token %s", ErrInsufficientBalance, o.AmountGive, o.TokenGive.Hex())
	}
	undo = append(undo, func() { l.creditLocked(o.TokenGive, o.Creator, o.AmountGive) })

	l.creditLocked(o.TokenGive, caller, o.AmountGive)
	undo = append(undo, func() { l.debitLocked(o.TokenGive, caller, o.AmountGive) })

	ev := l.nextEventLocked(EventTrade)
	ev.OrderID = id
	ev.User = caller
	ev.TokenGet = o.TokenGet
	ev.AmountGet = new(big.Int).Set(o.AmountGet)
	ev.TokenGive = o.TokenGive
	ev.AmountGive = new(big.Int).Set(o.AmountGive)
	ev.Creator = o.Creator

	if err := l.commitLocked(&commit{
		balances: l.touchedBalancesLocked(
			pair{o.TokenGet, caller},
			pair{o.TokenGet, o.Creator},
			pair{o.TokenGet, l.feeAccount},
			pair{o.TokenGive, o.Creator},
			pair{o.TokenGive, caller},
		),
		filled: id,
		event:  &ev,
	}); err != nil {
		rollback()
		return err
	}

	l.st.filled[id] = true
	l.log.Infow("trade", "id", id, "filler", caller.Hex(), "creator", o.Creator.Hex(),
		"amount_get", o.AmountGet.String(), "fee", fee.String())
	l.feed.Send(ev)
	return nil
}

type pair struct {
	token, user common.Address
}

// touchedBalancesLocked snapshots the final balances of the given pairs,
// deduplicated, for the commit batch. Reading after all mutations keeps the
// write correct when filler, creator, and fee account overlap.
func (l *Ledger) touchedBalancesLocked(pairs ...pair) []balanceWrite {
	seen := make(map[pair]bool, len(pairs))
	out := make([]balanceWrite, 0, len(pairs))
	for _, p := range pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		bal := l.balanceLocked(p.token, p.user)
		if bal == nil {
			bal = new(big.Int)
		}
		out = append(out, balanceWrite{p.token, p.user, new(big.Int).Set(bal)})
	}
	return out
}

// nextEventLocked allocates the next event sequence number and stamps the
// envelope. The counter only advances when the commit succeeds.
func (l *Ledger) nextEventLocked(kind EventKind) Event {
	return Event{
		Seq:       l.st.eventCount + 1,
		Kind:      kind,
		Timestamp: l.now().Unix(),
	}
}

func (l *Ledger) commitLocked(c *commit) error {
	if err := l.store.apply(c); err != nil {
		l.log.Errorw("commit_failed", "err", err)
		return err
	}
	if c.event != nil {
		l.st.eventCount = c.event.Seq
	}
	return nil
}

// ---- read-only queries ----

// BalanceOf returns the custodied balance of user for token, zero for
// unknown pairs.
func (l *Ledger) BalanceOf(token, user common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.balanceLocked(token, user); b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// OrderCount returns the id of the most recently created order (the number
// of orders ever created).
func (l *Ledger) OrderCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.orderCount
}

// Order returns the immutable order record for id.
func (l *Ledger) Order(id uint64) (*Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrOrderNotFound, id)
	}
	return o.clone(), nil
}

// Orders returns every order ever created, ascending by id.
func (l *Ledger) Orders() []*Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Order, 0, len(l.st.orders))
	for _, o := range l.st.orders {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OrderCancelled reports whether order id has been cancelled. Unknown ids
// read as false, matching balance semantics for unknown pairs.
func (l *Ledger) OrderCancelled(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.cancelled[id]
}

// OrderFilled reports whether order id has been filled.
func (l *Ledger) OrderFilled(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.filled[id]
}

// Events replays the durable event log from seq (1-based, 0 means start),
// up to limit entries (0 means no cap).
func (l *Ledger) Events(from uint64, limit int) ([]Event, error) {
	return l.store.Events(from, limit)
}
