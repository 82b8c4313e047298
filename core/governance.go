package core

import (
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// relevantRole picks the role whose quorum governs a proposal: role proposals
// are decided by the quorum of the role being changed, everything else by the
// admin quorum.
func relevantRole(typ ProposalType, role common.Hash) common.Hash {
	if typ == RoleChange || typ == RoleRemoval {
		return role
	}
	return AdminRole
}

// CreateProposal opens a new proposal; the creator auto-approves.
func (l *Ledger) CreateProposal(from common.Address, typ ProposalType, target common.Address, role common.Hash, amount *big.Int, token common.Address) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkTimelock(from, now); err != nil {
		return common.Hash{}, err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return common.Hash{}, err
	}
	if target == (common.Address{}) {
		return common.Hash{}, errors.Wrap(ErrInvalidInput, "zero target")
	}

	switch typ {
	case RoleChange, RoleRemoval:
		if RoleName(role) == "" {
			return common.Hash{}, errors.Wrapf(ErrInvalidInput, "unrecognized role %s", role)
		}
	case WalletAddition:
		if amount == nil || amount.Sign() <= 0 {
			return common.Hash{}, errors.Wrap(ErrInvalidInput, "zero amount")
		}
	case Upgrade, Whitelist:
	default:
		return common.Hash{}, errors.Wrapf(ErrInvalidInput, "unknown proposal type %d", typ)
	}

	rc, ok := l.state.Roles[relevantRole(typ, role)]
	if !ok || rc.Quorum == 0 {
		return common.Hash{}, errors.Wrap(ErrInvalidInput, "invalid quorum")
	}

	key := activeProposalKey(target, typ)
	if prevID, ok := l.state.ActiveIndex[key]; ok {
		if prev := l.state.Proposals[prevID]; prev != nil && prev.Active(now) {
			return common.Hash{}, newProposalError(ProposalDuplicate)
		}
		// stale entry from a proposal that timed out, sweep it lazily
		l.expireLocked(prevID, now)
	}

	l.state.ProposalNonce++
	id := deriveProposalID(typ, target, role, amount, token, now, l.state.ProposalNonce)

	var amountCopy *big.Int
	if amount != nil {
		amountCopy = new(big.Int).Set(amount)
	}
	p := &Proposal{
		ID:           id,
		Type:         typ,
		Target:       target,
		Role:         role,
		Amount:       amountCopy,
		TokenAddress: token,
		Proposer:     from,
		Approvals:    1,
		Approvers:    map[common.Address]bool{from: true},
		Status:       Pending,
		CreatedAt:    now,
		ExpiryTime:   now.Add(l.cfg.Governance.ProposalTimeout),
	}
	l.state.Proposals[id] = p
	l.state.ActiveIndex[key] = id
	l.touch(from, now)
	l.emit(EventProposalCreated, map[string]string{
		"id":       id.Hex(),
		"type":     typ.String(),
		"target":   target.Hex(),
		"proposer": from.Hex(),
	})
	l.logger.Infof("proposal %s created: %s for %s", id, typ, target)

	if err := l.persist(); err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// ApproveProposal records one approval. When quorum and the execution delay
// are already satisfied, execution is triggered as part of the same call.
func (l *Ledger) ApproveProposal(from common.Address, id common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	p, err := l.pendingProposal(id, now)
	if err != nil {
		return err
	}
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}
	if p.Approvers[from] {
		return newProposalError(ProposalAlreadyApproved)
	}

	p.Approvers[from] = true
	p.Approvals++

	required := l.requiredQuorum(p)
	if p.Approvals >= required && !now.Before(p.CreatedAt.Add(l.cfg.Governance.MinExecutionDelay)) {
		if err := l.executeLocked(p, now); err != nil {
			// keep the whole call atomic: the approval is rolled back and
			// nothing is journaled or stamped
			delete(p.Approvers, from)
			p.Approvals--
			return err
		}
	}

	l.touch(from, now)
	l.emit(EventProposalApproved, map[string]string{
		"id":        id.Hex(),
		"approver":  from.Hex(),
		"approvals": itoa(p.Approvals),
	})
	return l.persist()
}

// ExecuteProposal applies the proposal's typed action once quorum, the
// execution delay and the expiry window allow it.
func (l *Ledger) ExecuteProposal(from common.Address, id common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	p, err := l.pendingProposal(id, now)
	if err != nil {
		return err
	}
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}

	required := l.requiredQuorum(p)
	if p.Approvals < required {
		return &ProposalError{Kind: ProposalInsufficientApprovals, Required: required, Actual: p.Approvals}
	}
	if now.Before(p.CreatedAt.Add(l.cfg.Governance.MinExecutionDelay)) {
		return newProposalError(ProposalExecutionDelayNotMet)
	}

	if err := l.executeLocked(p, now); err != nil {
		return err
	}
	l.touch(from, now)
	return l.persist()
}

// pendingProposal resolves a proposal that can still be acted on, sweeping
// it lazily when the expiry window has closed.
func (l *Ledger) pendingProposal(id common.Hash, now time.Time) (*Proposal, error) {
	p, ok := l.state.Proposals[id]
	if !ok {
		return nil, newProposalError(ProposalNotFound)
	}
	switch p.Status {
	case Executed:
		return nil, newProposalError(ProposalAlreadyExecuted)
	case Expired:
		return nil, newProposalError(ProposalExpired)
	}
	if !now.Before(p.ExpiryTime) {
		l.expireLocked(id, now)
		if err := l.persist(); err != nil {
			l.logger.Errorf("persist expired proposal %s: %s", id, err)
		}
		return nil, newProposalError(ProposalExpired)
	}
	return p, nil
}

func (l *Ledger) requiredQuorum(p *Proposal) uint32 {
	rc, ok := l.state.Roles[relevantRole(p.Type, p.Role)]
	if !ok {
		return 0
	}
	return rc.Quorum
}

func (l *Ledger) expireLocked(id common.Hash, now time.Time) {
	p, ok := l.state.Proposals[id]
	if !ok || p.Status != Pending {
		return
	}
	p.Status = Expired
	delete(l.state.ActiveIndex, activeProposalKey(p.Target, p.Type))
	l.emit(EventProposalExpired, map[string]string{"id": id.Hex()})
}

// executeLocked applies the type-specific mutation. Validation happens before
// any effect so a failure leaves the proposal pending and the state intact.
func (l *Ledger) executeLocked(p *Proposal, now time.Time) error {
	act := l.activity(p.Target)

	switch p.Type {
	case RoleChange:
		if l.hasRole(p.Role, p.Target) {
			return errors.Wrapf(ErrInvalidInput, "%s already holds role %s", p.Target, RoleName(p.Role))
		}
		members, ok := l.state.Members[p.Role]
		if !ok {
			members = make(map[common.Address]bool)
			l.state.Members[p.Role] = members
		}
		members[p.Target] = true
		act.RoleChangeTimeLock = now.Add(l.cfg.Governance.RoleChangeDelay)
		l.emit(EventRoleGranted, map[string]string{
			"role":    RoleName(p.Role),
			"account": p.Target.Hex(),
		})

	case RoleRemoval:
		if !l.hasRole(p.Role, p.Target) {
			return errors.Wrapf(ErrInvalidInput, "%s does not hold role %s", p.Target, RoleName(p.Role))
		}
		if p.Role == AdminRole && uint32(len(l.state.Members[AdminRole])) <= l.cfg.Governance.MinAdmins {
			return errors.Wrapf(ErrInvariant, "cannot remove below %d admins", l.cfg.Governance.MinAdmins)
		}
		delete(l.state.Members[p.Role], p.Target)
		act.RoleChangeTimeLock = now.Add(l.cfg.Governance.RoleChangeDelay)
		l.emit(EventRoleRevoked, map[string]string{
			"role":    RoleName(p.Role),
			"account": p.Target.Hex(),
		})

	case Upgrade:
		l.state.UpgradeTarget = p.Target
		l.emit(EventUpgradeApproved, map[string]string{"target": p.Target.Hex()})

	case Whitelist:
		act.WhitelistLockTime = now.Add(l.cfg.Governance.WhitelistLock)
		l.emit(EventWhitelisted, map[string]string{
			"account": p.Target.Hex(),
			"until":   act.WhitelistLockTime.Format(time.RFC3339),
		})

	case WalletAddition:
		if l.state.Paused {
			return ErrPaused
		}
		if act.WhitelistLockTime.IsZero() {
			return errors.Wrapf(ErrUnauthorized, "%s is not whitelisted", p.Target)
		}
		if now.Before(act.WhitelistLockTime) {
			return errors.Wrapf(ErrTimelockActive, "whitelist lock until %s", act.WhitelistLockTime)
		}
		if rc := l.state.Roles[AdminRole]; rc.TransactionLimit != nil && p.Amount.Cmp(rc.TransactionLimit) > 0 {
			return errors.Wrapf(ErrQuotaExceeded, "amount %s exceeds transaction limit %s", p.Amount, rc.TransactionLimit)
		}
		if err := l.token.Transfer(TreasuryAccount, p.Target, p.Amount); err != nil {
			return errors.Wrap(err, "treasury payout")
		}
		l.emit(EventWalletAdded, map[string]string{
			"account": p.Target.Hex(),
			"amount":  p.Amount.String(),
		})
	}

	p.Status = Executed
	delete(l.state.ActiveIndex, activeProposalKey(p.Target, p.Type))
	l.emit(EventProposalExecuted, map[string]string{"id": p.ID.Hex()})
	l.logger.Infof("proposal %s executed: %s for %s", p.ID, p.Type, p.Target)
	return nil
}

// SetRoleQuorum configures the approval quorum of a recognized role.
func (l *Ledger) SetRoleQuorum(from common.Address, role common.Hash, quorum uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}
	if RoleName(role) == "" {
		return errors.Wrapf(ErrInvalidInput, "unrecognized role %s", role)
	}
	if quorum < 2 {
		return errors.Wrap(ErrInvalidInput, "invalid quorum")
	}

	rc, ok := l.state.Roles[role]
	if !ok {
		rc = &RoleConfig{}
		l.state.Roles[role] = rc
	}
	rc.Quorum = quorum
	l.touch(from, now)
	l.emit(EventQuorumUpdated, map[string]string{
		"role":   RoleName(role),
		"quorum": itoa(quorum),
	})
	return l.persist()
}

// SetRoleTransactionLimit caps the value movable by one privileged call.
func (l *Ledger) SetRoleTransactionLimit(from common.Address, role common.Hash, limit *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}
	if RoleName(role) == "" {
		return errors.Wrapf(ErrInvalidInput, "unrecognized role %s", role)
	}
	if limit == nil || limit.Sign() < 0 {
		return errors.Wrap(ErrInvalidInput, "negative transaction limit")
	}

	rc, ok := l.state.Roles[role]
	if !ok {
		rc = &RoleConfig{}
		l.state.Roles[role] = rc
	}
	rc.TransactionLimit = new(big.Int).Set(limit)
	l.touch(from, now)
	l.emit(EventTxLimitUpdated, map[string]string{
		"role":  RoleName(role),
		"limit": limit.String(),
	})
	return l.persist()
}

// SetRoleChangeTimeLock stamps (or, with zero, clears) the role-change
// timelock of an account directly.
func (l *Ledger) SetRoleChangeTimeLock(from, target common.Address, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if err := l.requireRole(from, AdminRole); err != nil {
		return err
	}
	if target == (common.Address{}) {
		return errors.Wrap(ErrInvalidInput, "zero target")
	}

	act := l.activity(target)
	if delay == 0 {
		act.RoleChangeTimeLock = time.Time{}
	} else {
		act.RoleChangeTimeLock = now.Add(delay)
	}
	l.touch(from, now)
	l.emit(EventTimeLockUpdated, map[string]string{
		"account": target.Hex(),
		"until":   act.RoleChangeTimeLock.Format(time.RFC3339),
	})
	return l.persist()
}

// ProposalByID returns a copy of the proposal, nil when unknown.
func (l *Ledger) ProposalByID(id common.Hash) *Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Proposals[id]
	if !ok {
		return nil
	}
	return copyProposal(p)
}

// Proposals lists still-active proposals, newest first, paginated. Entries
// whose expiry window has closed are filtered out of the view without being
// swept.
func (l *Ledger) Proposals(offset, limit int) []*Proposal {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	active := lo.Filter(lo.Values(l.state.Proposals), func(p *Proposal, _ int) bool {
		return p.Active(now)
	})
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	if offset >= len(active) {
		return nil
	}
	end := len(active)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return lo.Map(active[offset:end], func(p *Proposal, _ int) *Proposal {
		return copyProposal(p)
	})
}

func copyProposal(p *Proposal) *Proposal {
	out := *p
	out.Approvers = make(map[common.Address]bool, len(p.Approvers))
	for addr := range p.Approvers {
		out.Approvers[addr] = true
	}
	if p.Amount != nil {
		out.Amount = new(big.Int).Set(p.Amount)
	}
	return &out
}

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
