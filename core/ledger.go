package core

import (
	"math/big"
	"sync"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stornet-labs/ledger/repo"
)

// State is the full replicated ledger state. Everything a transaction may
// touch lives here, owned by exactly one Ledger.
type State struct {
	SchemaVersion uint64 `json:"schemaVersion"`

	Roles    map[common.Hash]*RoleConfig             `json:"roles"`
	Members  map[common.Hash]map[common.Address]bool `json:"members"`
	Activity map[common.Address]*AccountActivity     `json:"activity"`

	Proposals map[common.Hash]*Proposal `json:"proposals"`
	// at most one active proposal per (target, type)
	ActiveIndex   map[string]common.Hash `json:"activeIndex"`
	ProposalNonce uint64                 `json:"proposalNonce"`

	UpgradeTarget       common.Address `json:"upgradeTarget"`
	Paused              bool           `json:"paused"`
	LastEmergencyAction time.Time      `json:"lastEmergencyAction"`

	Stakes      map[common.Address][]*StakePosition `json:"stakes"`
	TotalStaked *big.Int                            `json:"totalStaked"`
	TierTotals  map[time.Duration]*big.Int          `json:"tierTotals"`
	Referrers   map[common.Address]*ReferrerRecord  `json:"referrers"`
}

func newState() *State {
	s := &State{SchemaVersion: CurrentSchemaVersion}
	s.ensureMaps()
	return s
}

func (s *State) ensureMaps() {
	if s.Roles == nil {
		s.Roles = make(map[common.Hash]*RoleConfig)
	}
	if s.Members == nil {
		s.Members = make(map[common.Hash]map[common.Address]bool)
	}
	if s.Activity == nil {
		s.Activity = make(map[common.Address]*AccountActivity)
	}
	if s.Proposals == nil {
		s.Proposals = make(map[common.Hash]*Proposal)
	}
	if s.ActiveIndex == nil {
		s.ActiveIndex = make(map[string]common.Hash)
	}
	if s.Stakes == nil {
		s.Stakes = make(map[common.Address][]*StakePosition)
	}
	if s.TotalStaked == nil {
		s.TotalStaked = new(big.Int)
	}
	if s.TierTotals == nil {
		s.TierTotals = make(map[time.Duration]*big.Int)
	}
	if s.Referrers == nil {
		s.Referrers = make(map[common.Address]*ReferrerRecord)
	}
}

// Ledger is the single-writer aggregate holding all governance and staking
// state. Every exported operation takes the mutex, runs to completion and
// either fully commits or leaves the state untouched.
type Ledger struct {
	mu     sync.Mutex
	logger *logrus.Logger
	cfg    *repo.Config
	clock  Clock
	token  TokenLedger
	store  *Store
	hooks  RewardDistributor

	state    *State
	events   []Event
	eventSeq uint64
}

type Option func(*Ledger)

func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithStore(s *Store) Option {
	return func(l *Ledger) { l.store = s }
}

func WithRewardDistributor(d RewardDistributor) Option {
	return func(l *Ledger) { l.hooks = d }
}

func NewLedger(cfg *repo.Config, token TokenLedger, opts ...Option) (*Ledger, error) {
	logger := log.New()
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))

	l := &Ledger{
		logger: logger,
		cfg:    cfg,
		clock:  SystemClock(),
		token:  token,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		state, err := l.store.LoadSnapshot()
		if err != nil {
			return nil, err
		}
		l.state = state
		l.eventSeq = l.store.LastEventSeq()
	}

	if l.state == nil {
		if err := l.bootstrap(); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// bootstrap builds the genesis state from the configured admins and balances.
func (l *Ledger) bootstrap() error {
	l.state = newState()

	gov := l.cfg.Governance
	if gov.DefaultQuorum < 2 {
		return errors.Wrap(ErrInvalidInput, "default quorum must be at least 2")
	}
	l.state.Roles[AdminRole] = &RoleConfig{Quorum: gov.DefaultQuorum}

	admins := make(map[common.Address]bool)
	for _, raw := range l.cfg.Genesis.Admins {
		if !common.IsHexAddress(raw) {
			return errors.Wrapf(ErrInvalidInput, "genesis admin %q is not an address", raw)
		}
		admins[common.HexToAddress(raw)] = true
	}
	if uint32(len(admins)) < gov.MinAdmins {
		return errors.Wrapf(ErrInvalidInput, "genesis needs at least %d admins", gov.MinAdmins)
	}
	l.state.Members[AdminRole] = admins

	treasury, ok := repo.ParseBalance(l.cfg.Genesis.TreasuryBalance)
	if !ok {
		return errors.Wrap(ErrInvalidInput, "malformed treasury balance")
	}
	rewardPool, ok := repo.ParseBalance(l.cfg.Genesis.RewardPoolBalance)
	if !ok {
		return errors.Wrap(ErrInvalidInput, "malformed reward pool balance")
	}
	if treasury.Sign() > 0 {
		if err := l.token.Mint(TreasuryAccount, treasury); err != nil {
			return err
		}
	}
	if rewardPool.Sign() > 0 {
		if err := l.token.Mint(RewardPoolAccount, rewardPool); err != nil {
			return err
		}
	}

	l.logger.Infof("bootstrapped ledger with %d admins, treasury %s, reward pool %s",
		len(admins), treasury, rewardPool)

	return l.persist()
}

func (l *Ledger) persist() error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveSnapshot(l.state)
}

func (l *Ledger) hasRole(role common.Hash, account common.Address) bool {
	return l.state.Members[role][account]
}

func (l *Ledger) requireRole(caller common.Address, role common.Hash) error {
	if !l.hasRole(role, caller) {
		return errors.Wrapf(ErrUnauthorized, "caller %s lacks role %s", caller, RoleName(role))
	}
	return nil
}

// checkTimelock rejects privileged actions from an account whose role-change
// timelock has not elapsed.
func (l *Ledger) checkTimelock(caller common.Address, now time.Time) error {
	act, ok := l.state.Activity[caller]
	if !ok {
		return nil
	}
	if now.Before(act.RoleChangeTimeLock) {
		return errors.Wrapf(ErrTimelockActive, "until %s", act.RoleChangeTimeLock)
	}
	return nil
}

func (l *Ledger) activity(account common.Address) *AccountActivity {
	act, ok := l.state.Activity[account]
	if !ok {
		act = &AccountActivity{}
		l.state.Activity[account] = act
	}
	return act
}

func (l *Ledger) touch(account common.Address, now time.Time) {
	l.activity(account).LastActivityTime = now
}

// EmergencyPause halts value movement. Successive emergency actions are
// throttled by the configured cooldown.
func (l *Ledger) EmergencyPause(from common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkEmergency(from, now); err != nil {
		return err
	}
	if l.state.Paused {
		return errors.Wrap(ErrInvalidInput, "already paused")
	}

	l.state.Paused = true
	l.state.LastEmergencyAction = now
	l.touch(from, now)
	l.emit(EventEmergencyPause, map[string]string{"by": from.Hex()})
	return l.persist()
}

func (l *Ledger) EmergencyUnpause(from common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkEmergency(from, now); err != nil {
		return err
	}
	if !l.state.Paused {
		return errors.Wrap(ErrInvalidInput, "not paused")
	}

	l.state.Paused = false
	l.state.LastEmergencyAction = now
	l.touch(from, now)
	l.emit(EventEmergencyUnpause, map[string]string{"by": from.Hex()})
	return l.persist()
}

func (l *Ledger) checkEmergency(from common.Address, now time.Time) error {
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}
	if !l.state.LastEmergencyAction.IsZero() {
		next := l.state.LastEmergencyAction.Add(l.cfg.Governance.EmergencyCooldown)
		if now.Before(next) {
			return errors.Wrapf(ErrCooldownActive, "until %s", next)
		}
	}
	return nil
}

//
// Accessor queries. Each returns a copy so callers never alias ledger state.
//

func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Paused
}

func (l *Ledger) UpgradeTarget() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.UpgradeTarget
}

func (l *Ledger) HasRole(role common.Hash, account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasRole(role, account)
}

func (l *Ledger) RoleConfigOf(role common.Hash) (RoleConfig, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rc, ok := l.state.Roles[role]
	if !ok {
		return RoleConfig{}, false
	}
	out := RoleConfig{Quorum: rc.Quorum}
	if rc.TransactionLimit != nil {
		out.TransactionLimit = new(big.Int).Set(rc.TransactionLimit)
	}
	return out, true
}

func (l *Ledger) RoleMembers(role common.Hash) []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []common.Address
	for addr := range l.state.Members[role] {
		out = append(out, addr)
	}
	return out
}

func (l *Ledger) ActivityOf(account common.Address) (AccountActivity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	act, ok := l.state.Activity[account]
	if !ok {
		return AccountActivity{}, false
	}
	return *act, true
}

// BalanceOf proxies the token ledger query.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	return l.token.BalanceOf(account)
}
