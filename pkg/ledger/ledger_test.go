package ledger_test

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smkim/dexledger/pkg/ledger"
	"github.com/smkim/dexledger/pkg/token"
)

var (
	alice      = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob        = common.HexToAddress("0xBB00000000000000000000000000000000000000")
	feeAccount = common.HexToAddress("0xFEE0000000000000000000000000000000000000")
	custody    = common.HexToAddress("0xEC00000000000000000000000000000000000000")
	deployer   = common.HexToAddress("0xDE01000000000000000000000000000000000000")
)

// tokens parses a decimal token amount ("1.1") into its 18-decimal
// smallest-unit representation.
func tokens(t *testing.T, s string) *big.Int {
	t.Helper()
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 18 {
		t.Fatalf("too many decimal places in %q", s)
	}
	frac += strings.Repeat("0", 18-len(frac))
	amt, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		t.Fatalf("malformed amount %q", s)
	}
	return amt
}

type fixture struct {
	ledger *ledger.Ledger
	reg    *token.Registry
	tokenX common.Address // "DAPP"
	tokenY common.Address // "mDAI"
}

// newFixture builds a ledger over a fresh temp database and a token
// registry seeded with two dev tokens, giving alice 100 DAPP and bob
// 100 mDAI in their external wallets.
func newFixture(t *testing.T, feePercent int64) *fixture {
	t.Helper()

	reg := token.NewRegistry(custody)
	x := reg.Deploy("Dapp University", "DAPP", tokens(t, "1000000"), deployer)
	y := reg.Deploy("Mock Dai", "mDAI", tokens(t, "1000000"), deployer)
	if err := x.Transfer(deployer, alice, tokens(t, "100")); err != nil {
		t.Fatalf("fund alice: %v", err)
	}
	if err := y.Transfer(deployer, bob, tokens(t, "100")); err != nil {
		t.Fatalf("fund bob: %v", err)
	}

	store, err := ledger.OpenStore(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l, err := ledger.New(store, reg, feeAccount, feePercent, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return &fixture{ledger: l, reg: reg, tokenX: x.Address, tokenY: y.Address}
}

// deposit approves and deposits in one step, the way a wallet would.
func (f *fixture) deposit(t *testing.T, tok, user common.Address, amount *big.Int) {
	t.Helper()
	if err := f.reg.Approve(tok, user, amount); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.ledger.Deposit(tok, amount, user); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) balance(tok, user common.Address) string {
	return f.ledger.BalanceOf(tok, user).String()
}

// checkCustody verifies the custody invariant: the sum of all ledger
// balances for a token equals what the custody account actually holds.
func (f *fixture) checkCustody(t *testing.T, tok common.Address, users ...common.Address) {
	t.Helper()
	sum := new(big.Int)
	for _, u := range append(users, feeAccount) {
		sum.Add(sum, f.ledger.BalanceOf(tok, u))
	}
	held := f.reg.Get(tok).BalanceOf(custody)
	if sum.Cmp(held) != 0 {
		t.Errorf("custody invariant broken: ledger sum %s, custody holds %s", sum, held)
	}
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, 10)

	f.deposit(t, f.tokenX, alice, tokens(t, "10"))

	if got, want := f.balance(f.tokenX, alice), tokens(t, "10").String(); got != want {
		t.Errorf("balance = %s, want %s", got, want)
	}
	// Custody actually holds the pulled funds
	if held := f.reg.Get(f.tokenX).BalanceOf(custody); held.Cmp(tokens(t, "10")) != 0 {
		t.Errorf("custody holds %s, want 10 tokens", held)
	}
	// Alice's external wallet went down accordingly
	if w := f.reg.Get(f.tokenX).BalanceOf(alice); w.Cmp(tokens(t, "90")) != 0 {
		t.Errorf("wallet = %s, want 90 tokens", w)
	}
}

func TestDepositWithoutApproval(t *testing.T) {
	f := newFixture(t, 10)

	err := f.ledger.Deposit(f.tokenX, tokens(t, "10"), alice)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
	if got := f.balance(f.tokenX, alice); got != "0" {
		t.Errorf("balance = %s, want 0 after failed deposit", got)
	}
	// Failed calls emit nothing
	events, err := f.ledger.Events(0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events after failed deposit, want 0", len(events))
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, 10)

	for _, amt := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		if err := f.ledger.Deposit(f.tokenX, amt, alice); !errors.Is(err, ledger.ErrInvalidArgument) {
			t.Errorf("Deposit(%v): err = %v, want ErrInvalidArgument", amt, err)
		}
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 10)
	f.deposit(t, f.tokenX, alice, tokens(t, "10"))

	if err := f.ledger.Withdraw(f.tokenX, tokens(t, "10"), alice); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balance(f.tokenX, alice); got != "0" {
		t.Errorf("balance = %s, want 0", got)
	}
	if w := f.reg.Get(f.tokenX).BalanceOf(alice); w.Cmp(tokens(t, "100")) != 0 {
		t.Errorf("wallet = %s, want full 100 tokens back", w)
	}
	if held := f.reg.Get(f.tokenX).BalanceOf(custody); held.Sign() != 0 {
		t.Errorf("custody still holds %s", held)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newFixture(t, 10)
	f.deposit(t, f.tokenX, alice, tokens(t, "1"))

	err := f.ledger.Withdraw(f.tokenX, tokens(t, "2"), alice)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got, want := f.balance(f.tokenX, alice), tokens(t, "1").String(); got != want {
		t.Errorf("balance = %s, want %s (unchanged)", got, want)
	}
}

// pushFailCustody accepts pulls but rejects every push, simulating a token
// ledger that breaks between deposit and withdrawal.
type pushFailCustody struct{}

func (pushFailCustody) TransferIn(_, _ common.Address, _ *big.Int) error {
	return nil
}
func (pushFailCustody) TransferOut(_, _ common.Address, _ *big.Int) error {
	return fmt.Errorf("token ledger unavailable")
}

func TestWithdrawExternalPushFailureAbortsDebit(t *testing.T) {
	store, err := ledger.OpenStore(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	l, err := ledger.New(store, pushFailCustody{}, feeAccount, 10, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	tokenX := common.HexToAddress("0x1100000000000000000000000000000000000000")
	if err := l.Deposit(tokenX, tokens(t, "10"), alice); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := l.Withdraw(tokenX, tokens(t, "1"), alice); !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("withdraw err = %v, want ErrTransferFailed", err)
	}
	// The debit aborted with the external push: balance intact, no event
	if got, want := l.BalanceOf(tokenX, alice).String(), tokens(t, "10").String(); got != want {
		t.Errorf("balance = %s, want %s", got, want)
	}
	events, err := l.Events(0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 { // only the deposit
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestMakeOrderAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t, 10)

	for want := uint64(1); want <= 3; want++ {
		id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
		if err != nil {
			t.Fatalf("make order: %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}
	if got := f.ledger.OrderCount(); got != 3 {
		t.Errorf("order count = %d, want 3", got)
	}

	// Cancelling and filling other ids never disturbs the sequence
	if err := f.ledger.CancelOrder(2, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if id != 4 {
		t.Errorf("id after cancel = %d, want 4", id)
	}
}

func TestMakeOrderRejectsZeroAmounts(t *testing.T) {
	f := newFixture(t, 10)

	if _, err := f.ledger.MakeOrder(f.tokenY, big.NewInt(0), f.tokenX, tokens(t, "1"), alice); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Errorf("zero amountGet: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, big.NewInt(0), alice); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Errorf("zero amountGive: err = %v, want ErrInvalidArgument", err)
	}
	if got := f.ledger.OrderCount(); got != 0 {
		t.Errorf("order count = %d, want 0 after rejected orders", got)
	}
}

func TestMakeOrderPermitsUnbackedOrders(t *testing.T) {
	f := newFixture(t, 10)

	// No deposit at all: creation still succeeds, the shortfall surfaces
	// at fill time.
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	f.deposit(t, f.tokenY, bob, tokens(t, "2"))
	if err := f.ledger.FillOrder(id, bob); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("fill err = %v, want ErrInsufficientBalance", err)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, 10)
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	if err := f.ledger.CancelOrder(id, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !f.ledger.OrderCancelled(id) {
		t.Error("order not marked cancelled")
	}
	if f.ledger.OrderFilled(id) {
		t.Error("cancelled order marked filled")
	}
}

func TestCancelOrderRejections(t *testing.T) {
	f := newFixture(t, 10)
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	if err := f.ledger.CancelOrder(999, alice); !errors.Is(err, ledger.ErrOrderNotFound) {
		t.Errorf("unknown id: err = %v, want ErrOrderNotFound", err)
	}
	if err := f.ledger.CancelOrder(id, bob); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Errorf("non-creator: err = %v, want ErrUnauthorized", err)
	}
	if f.ledger.OrderCancelled(id) {
		t.Fatal("order cancelled by rejected call")
	}

	if err := f.ledger.CancelOrder(id, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.ledger.CancelOrder(id, alice); !errors.Is(err, ledger.ErrAlreadyCancelled) {
		t.Errorf("re-cancel: err = %v, want ErrAlreadyCancelled", err)
	}
}

// TestFillOrderSettlement walks the reference scenario: feePercent=10,
// alice offers 1 DAPP for 1 mDAI, bob deposits 1.1 mDAI and fills.
func TestFillOrderSettlement(t *testing.T) {
	f := newFixture(t, 10)

	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	f.deposit(t, f.tokenY, bob, tokens(t, "1.1"))

	if err := f.ledger.FillOrder(id, bob); err != nil {
		t.Fatalf("fill: %v", err)
	}

	checks := []struct {
		name  string
		token common.Address
		user  common.Address
		want  string
	}{
		{"alice DAPP", f.tokenX, alice, "9"},
		{"alice mDAI", f.tokenY, alice, "1"},
		{"bob mDAI", f.tokenY, bob, "0"},
		{"bob DAPP", f.tokenX, bob, "1"},
		{"feeAccount mDAI", f.tokenY, feeAccount, "0.1"},
		{"feeAccount DAPP", f.tokenX, feeAccount, "0"},
	}
	for _, c := range checks {
		if got, want := f.balance(c.token, c.user), tokens(t, c.want).String(); got != want {
			t.Errorf("%s = %s, want %s", c.name, got, want)
		}
	}

	if !f.ledger.OrderFilled(id) {
		t.Error("order not marked filled")
	}
	f.checkCustody(t, f.tokenX, alice, bob)
	f.checkCustody(t, f.tokenY, alice, bob)
}

func TestFillOrderRejectsDoubleFill(t *testing.T) {
	f := newFixture(t, 10)
	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	f.deposit(t, f.tokenY, bob, tokens(t, "10"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	if err := f.ledger.FillOrder(id, bob); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	before := f.balance(f.tokenY, bob)

	if err := f.ledger.FillOrder(id, bob); !errors.Is(err, ledger.ErrAlreadyFilled) {
		t.Fatalf("second fill: err = %v, want ErrAlreadyFilled", err)
	}
	if got := f.balance(f.tokenY, bob); got != before {
		t.Errorf("balance moved on rejected fill: %s -> %s", before, got)
	}
}

func TestFillOrderRejectsCancelledOrder(t *testing.T) {
	f := newFixture(t, 10)
	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	f.deposit(t, f.tokenY, bob, tokens(t, "10"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if err := f.ledger.CancelOrder(id, alice); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := f.ledger.FillOrder(id, bob); !errors.Is(err, ledger.ErrAlreadyCancelled) {
		t.Fatalf("fill cancelled: err = %v, want ErrAlreadyCancelled", err)
	}
	if got, want := f.balance(f.tokenY, bob), tokens(t, "10").String(); got != want {
		t.Errorf("bob mDAI = %s, want %s (unchanged)", got, want)
	}
	if got := f.balance(f.tokenY, feeAccount); got != "0" {
		t.Errorf("feeAccount credited %s on rejected fill", got)
	}
}

func TestFillOrderRejectsUnknownOrder(t *testing.T) {
	f := newFixture(t, 10)
	if err := f.ledger.FillOrder(42, bob); !errors.Is(err, ledger.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestFillOrderInsufficientFillerFunds(t *testing.T) {
	f := newFixture(t, 10)
	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	// 1 mDAI covers the trade but not the 0.1 fee
	f.deposit(t, f.tokenY, bob, tokens(t, "1"))

	if err := f.ledger.FillOrder(id, bob); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got, want := f.balance(f.tokenY, bob), tokens(t, "1").String(); got != want {
		t.Errorf("bob mDAI = %s, want %s (unchanged)", got, want)
	}
	if f.ledger.OrderFilled(id) {
		t.Error("order marked filled after rejected fill")
	}
}

// TestFillOrderRollsBackOnCreatorShortfall exercises the atomicity
// invariant: when the creator's backing debit fails mid-settlement, the
// filler's debit and the creator/fee credits already applied must unwind.
func TestFillOrderRollsBackOnCreatorShortfall(t *testing.T) {
	f := newFixture(t, 10)

	f.deposit(t, f.tokenX, alice, tokens(t, "1"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	// Alice spends her backing elsewhere before the fill
	if err := f.ledger.Withdraw(f.tokenX, tokens(t, "1"), alice); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.deposit(t, f.tokenY, bob, tokens(t, "1.1"))

	if err := f.ledger.FillOrder(id, bob); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// Steps 1-3 must not be observable
	if got, want := f.balance(f.tokenY, bob), tokens(t, "1.1").String(); got != want {
		t.Errorf("filler debit not rolled back: bob mDAI = %s, want %s", got, want)
	}
	if got := f.balance(f.tokenY, alice); got != "0" {
		t.Errorf("creator credit not rolled back: alice mDAI = %s", got)
	}
	if got := f.balance(f.tokenY, feeAccount); got != "0" {
		t.Errorf("fee credit not rolled back: feeAccount mDAI = %s", got)
	}
	if f.ledger.OrderFilled(id) {
		t.Error("order marked filled after aborted settlement")
	}
	f.checkCustody(t, f.tokenY, alice, bob)
}

func TestSelfFillPaysOnlyTheFee(t *testing.T) {
	f := newFixture(t, 10)

	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	// Fund alice with mDAI too so she can fill her own order
	if err := f.reg.Get(f.tokenY).Transfer(deployer, alice, tokens(t, "10")); err != nil {
		t.Fatalf("fund alice: %v", err)
	}
	f.deposit(t, f.tokenY, alice, tokens(t, "10"))

	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if err := f.ledger.FillOrder(id, alice); err != nil {
		t.Fatalf("self fill: %v", err)
	}

	// Trade legs cancel out; only the fee leaves alice's balance
	if got, want := f.balance(f.tokenY, alice), tokens(t, "9.9").String(); got != want {
		t.Errorf("alice mDAI = %s, want %s", got, want)
	}
	if got, want := f.balance(f.tokenX, alice), tokens(t, "10").String(); got != want {
		t.Errorf("alice DAPP = %s, want %s", got, want)
	}
	if got, want := f.balance(f.tokenY, feeAccount), tokens(t, "0.1").String(); got != want {
		t.Errorf("feeAccount mDAI = %s, want %s", got, want)
	}
}

func TestFeeTruncatesTowardZero(t *testing.T) {
	f := newFixture(t, 10)

	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	// amountGet of 15 wei: 10% fee truncates from 1.5 to 1 wei
	id, err := f.ledger.MakeOrder(f.tokenY, big.NewInt(15), f.tokenX, big.NewInt(1), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	f.deposit(t, f.tokenY, bob, big.NewInt(16))

	if err := f.ledger.FillOrder(id, bob); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got := f.ledger.BalanceOf(f.tokenY, feeAccount).Int64(); got != 1 {
		t.Errorf("fee = %d wei, want 1", got)
	}
	if got := f.ledger.BalanceOf(f.tokenY, bob).Int64(); got != 0 {
		t.Errorf("bob mDAI = %d wei, want 0", got)
	}
}

func TestOrderQueries(t *testing.T) {
	f := newFixture(t, 10)

	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "2"), f.tokenX, tokens(t, "3"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}

	o, err := f.ledger.Order(id)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if o.Creator != alice {
		t.Errorf("creator = %s, want alice", o.Creator.Hex())
	}
	if o.AmountGet.Cmp(tokens(t, "2")) != 0 || o.AmountGive.Cmp(tokens(t, "3")) != 0 {
		t.Errorf("amounts = %s/%s, want 2/3 tokens", o.AmountGet, o.AmountGive)
	}
	if o.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	// Returned records are copies: mutating one must not touch the registry
	o.AmountGet.SetInt64(7)
	o2, _ := f.ledger.Order(id)
	if o2.AmountGet.Cmp(tokens(t, "2")) != 0 {
		t.Error("order record aliased internal state")
	}

	if _, err := f.ledger.Order(99); !errors.Is(err, ledger.ErrOrderNotFound) {
		t.Errorf("unknown order: err = %v, want ErrOrderNotFound", err)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, 10)

	ch := make(chan ledger.Event, 16)
	sub := f.ledger.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	f.deposit(t, f.tokenX, alice, tokens(t, "10"))
	id, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	f.deposit(t, f.tokenY, bob, tokens(t, "1.1"))
	if err := f.ledger.FillOrder(id, bob); err != nil {
		t.Fatalf("fill: %v", err)
	}

	wantKinds := []ledger.EventKind{
		ledger.EventDeposit, ledger.EventOrder, ledger.EventDeposit, ledger.EventTrade,
	}
	for i, want := range wantKinds {
		ev := <-ch
		if ev.Kind != want {
			t.Fatalf("event %d kind = %s, want %s", i, ev.Kind, want)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, ev.Seq, i+1)
		}
	}

	// The trade event carries both parties and the terms
	events, err := f.ledger.Events(0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("replayed %d events, want 4", len(events))
	}
	trade := events[3]
	if trade.Kind != ledger.EventTrade || trade.User != bob || trade.Creator != alice {
		t.Errorf("trade event = %+v, want filler bob, creator alice", trade)
	}
	if trade.AmountGet.Cmp(tokens(t, "1")) != 0 {
		t.Errorf("trade amountGet = %s, want 1 token", trade.AmountGet)
	}
}

func TestEventReplayPaging(t *testing.T) {
	f := newFixture(t, 10)

	for i := 0; i < 5; i++ {
		if _, err := f.ledger.MakeOrder(f.tokenY, tokens(t, "1"), f.tokenX, tokens(t, "1"), alice); err != nil {
			t.Fatalf("make order: %v", err)
		}
	}

	page, err := f.ledger.Events(3, 2)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Errorf("page = %+v, want seqs 3,4", page)
	}
}
