package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Token is an in-process fungible asset ledger with ERC20 semantics:
// per-holder balances plus owner→spender allowances. Amounts are integers
// in the token's smallest unit (18 decimals).
type Token struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int

	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewToken mints the full supply to the deployer. The token address is
// derived from the symbol so seeded dev tokens are stable across restarts.
func NewToken(name, symbol string, supply *big.Int, deployer common.Address) *Token {
	t := &Token{
		Address:     DeriveAddress(symbol),
		Name:        name,
		Symbol:      symbol,
		Decimals:    18,
		TotalSupply: new(big.Int).Set(supply),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
	t.balances[deployer] = new(big.Int).Set(supply)
	return t
}

// DeriveAddress maps a token symbol to a deterministic 20-byte address.
func DeriveAddress(symbol string) common.Address {
	h := crypto.Keccak256([]byte("dexledger/token/" + symbol))
	return common.BytesToAddress(h[12:])
}

// BalanceOf returns the holder's balance, zero for unknown holders.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns how much spender may move on owner's behalf.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Approve sets spender's allowance over owner's funds. Overwrites any
// previous allowance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("approve: zero address spender")
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("approve: negative amount")
	}
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from sender to recipient.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer: zero address recipient")
	}
	return t.move(from, to, amount)
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// deducting spender's allowance. Fails when the allowance does not cover
// the amount.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	allowed := t.Allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("transferFrom: allowance %s below amount %s", allowed, amount)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transferFrom: zero address recipient")
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = allowed.Sub(allowed, amount)
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer: negative amount")
	}
	have := t.BalanceOf(from)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("transfer: balance %s below amount %s", have, amount)
	}
	t.balances[from] = have.Sub(have, amount)
	cur, ok := t.balances[to]
	if !ok {
		cur = new(big.Int)
	}
	t.balances[to] = cur.Add(cur, amount)
	return nil
}

// Registry holds the known tokens and implements the ledger's custody
// interface: deposits pull via transferFrom (caller must Approve the
// custody account first), withdrawals push back via plain transfer.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[common.Address]*Token
	custody common.Address // account holding deposited funds
}

// NewRegistry creates an empty registry. custody is the identity that
// accumulates deposited funds (the exchange itself).
func NewRegistry(custody common.Address) *Registry {
	return &Registry{
		tokens:  make(map[common.Address]*Token),
		custody: custody,
	}
}

// Deploy registers a new token, minting its supply to deployer.
func (r *Registry) Deploy(name, symbol string, supply *big.Int, deployer common.Address) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := NewToken(name, symbol, supply, deployer)
	r.tokens[t.Address] = t
	return t
}

// Get returns the token at addr, or nil if unknown.
func (r *Registry) Get(addr common.Address) *Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[addr]
}

// List returns all registered tokens.
func (r *Registry) List() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}

// Approve sets the owner's allowance toward the custody account.
func (r *Registry) Approve(tokenAddr, owner common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tokens[tokenAddr]
	if t == nil {
		return fmt.Errorf("approve: unknown token %s", tokenAddr.Hex())
	}
	return t.Approve(owner, r.custody, amount)
}

// TransferIn pulls amount of tokenAddr from the depositor into custody.
// Requires a prior Approve covering the amount.
func (r *Registry) TransferIn(tokenAddr, from common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tokens[tokenAddr]
	if t == nil {
		return fmt.Errorf("transferIn: unknown token %s", tokenAddr.Hex())
	}
	return t.TransferFrom(r.custody, from, r.custody, amount)
}

// TransferOut pushes amount of tokenAddr from custody back to the holder.
func (r *Registry) TransferOut(tokenAddr, to common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tokens[tokenAddr]
	if t == nil {
		return fmt.Errorf("transferOut: unknown token %s", tokenAddr.Hex())
	}
	return t.Transfer(r.custody, to, amount)
}
