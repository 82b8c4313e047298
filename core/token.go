package core

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known system accounts of the simulated network.
var (
	TreasuryAccount   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	StakePoolAccount  = common.HexToAddress("0x0000000000000000000000000000000000001002")
	RewardPoolAccount = common.HexToAddress("0x0000000000000000000000000000000000001003")
)

// TokenLedger is the external fungible token collaborator. Every call is
// atomic and all-or-nothing; a failed call leaves balances untouched.
type TokenLedger interface {
	BalanceOf(account common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	Approve(owner, spender common.Address, amount *big.Int) error
	Mint(to common.Address, amount *big.Int) error
}

var _ TokenLedger = (*MemoryToken)(nil)

// MemoryToken is an in-memory token ledger used by the simulation.
type MemoryToken struct {
	mu          sync.Mutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	// owner -> spender -> remaining allowance
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewMemoryToken() *MemoryToken {
	return &MemoryToken{
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *MemoryToken) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.totalSupply)
}

func (t *MemoryToken) BalanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *MemoryToken) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

func (t *MemoryToken) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

func (t *MemoryToken) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowanceOf(from, spender)
	if allowed.Cmp(amount) < 0 {
		return ErrQuotaExceeded
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

func (t *MemoryToken) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidInput
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

func (t *MemoryToken) move(from, to common.Address, amount *big.Int) error {
	b, ok := t.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return ErrQuotaExceeded
	}
	b.Sub(b, amount)
	t.credit(to, amount)
	return nil
}

func (t *MemoryToken) credit(to common.Address, amount *big.Int) {
	if b, ok := t.balances[to]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[to] = new(big.Int).Set(amount)
}

func (t *MemoryToken) allowanceOf(owner, spender common.Address) *big.Int {
	m, ok := t.allowances[owner]
	if !ok {
		return new(big.Int)
	}
	a, ok := m[spender]
	if !ok {
		return new(big.Int)
	}
	return a
}
