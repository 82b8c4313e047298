package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type ProposalStatus uint8

const (
	Pending ProposalStatus = iota
	Executed
	Expired
)

func (s ProposalStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executed:
		return "executed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

type ProposalType uint8

const (
	// RoleChange is a proposal for granting a role to an account
	RoleChange ProposalType = iota

	// RoleRemoval is a proposal for revoking a role from an account
	RoleRemoval

	// Upgrade is a proposal for switching the ledger to a new schema target
	Upgrade

	// Whitelist is a proposal for whitelisting an account for treasury payouts
	Whitelist

	// WalletAddition is a proposal for paying an allocation out of the treasury
	WalletAddition
)

func (t ProposalType) String() string {
	switch t {
	case RoleChange:
		return "role_change"
	case RoleRemoval:
		return "role_removal"
	case Upgrade:
		return "upgrade"
	case Whitelist:
		return "whitelist"
	case WalletAddition:
		return "wallet_addition"
	default:
		return "unknown"
	}
}

// Role tags mirror the on-chain 32-byte role identifiers.
var (
	AdminRole            = crypto.Keccak256Hash([]byte("ADMIN_ROLE"))
	PoolAdminRole        = crypto.Keccak256Hash([]byte("POOL_ADMIN_ROLE"))
	ContractOperatorRole = crypto.Keccak256Hash([]byte("CONTRACT_OPERATOR_ROLE"))
	BridgeOperatorRole   = crypto.Keccak256Hash([]byte("BRIDGE_OPERATOR_ROLE"))
)

var recognizedRoles = map[common.Hash]string{
	AdminRole:            "admin",
	PoolAdminRole:        "pool_admin",
	ContractOperatorRole: "contract_operator",
	BridgeOperatorRole:   "bridge_operator",
}

// RoleName returns the human readable name of a recognized role tag,
// or the empty string for an unknown tag.
func RoleName(role common.Hash) string {
	return recognizedRoles[role]
}

// RoleByName resolves a recognized role tag from its name.
func RoleByName(name string) (common.Hash, bool) {
	for tag, n := range recognizedRoles {
		if n == name {
			return tag, true
		}
	}
	return common.Hash{}, false
}

// RoleConfig holds the per-role governance parameters.
// Quorum 0 means the role is unset/disabled; once set it must be >= 2.
type RoleConfig struct {
	Quorum           uint32   `json:"quorum"`
	TransactionLimit *big.Int `json:"transactionLimit"`
}

// AccountActivity is the per-address activity and timelock record.
type AccountActivity struct {
	LastActivityTime   time.Time `json:"lastActivityTime"`
	RoleChangeTimeLock time.Time `json:"roleChangeTimeLock"`
	WhitelistLockTime  time.Time `json:"whitelistLockTime"`
}

type Proposal struct {
	ID           common.Hash             `json:"id"`
	Type         ProposalType            `json:"type"`
	Target       common.Address          `json:"target"`
	Role         common.Hash             `json:"role"`
	Amount       *big.Int                `json:"amount"`
	TokenAddress common.Address          `json:"tokenAddress"`
	Proposer     common.Address          `json:"proposer"`
	Approvals    uint32                  `json:"approvals"`
	Approvers    map[common.Address]bool `json:"approvers"`
	Status       ProposalStatus          `json:"status"`
	CreatedAt    time.Time               `json:"createdAt"`
	ExpiryTime   time.Time               `json:"expiryTime"`
}

// Active reports whether the proposal still accepts approvals at the given time.
func (p *Proposal) Active(now time.Time) bool {
	return p.Status == Pending && now.Before(p.ExpiryTime)
}

type StakePosition struct {
	Amount     *big.Int       `json:"amount"`
	LockPeriod time.Duration  `json:"lockPeriod"`
	StartTime  time.Time      `json:"startTime"`
	Referrer   common.Address `json:"referrer"`
	IsActive   bool           `json:"isActive"`
}

// ReferrerRecord aggregates the referral state of one referrer over all
// stakes that name it.
type ReferrerRecord struct {
	TotalReferred        uint64                     `json:"totalReferred"`
	TotalReferrerRewards *big.Int                   `json:"totalReferrerRewards"`
	UnclaimedRewards     *big.Int                   `json:"unclaimedRewards"`
	LastClaimTime        time.Time                  `json:"lastClaimTime"`
	ActiveStaked         map[time.Duration]*big.Int `json:"activeStaked"`
}

// UnstakeResult is the settlement of a single unstake operation.
type UnstakeResult struct {
	Principal *big.Int `json:"principal"`
	Penalty   *big.Int `json:"penalty"`
	Reward    *big.Int `json:"reward"`
	Missed    *big.Int `json:"missed"`
}

// StakingTotals is the global staked breakdown.
type StakingTotals struct {
	TotalStaked *big.Int                   `json:"totalStaked"`
	TierTotals  map[time.Duration]*big.Int `json:"tierTotals"`
}

// deriveProposalID computes the deterministic proposal identifier from the
// proposal fields plus timestamp and nonce, closing the replay window.
func deriveProposalID(typ ProposalType, target common.Address, role common.Hash, amount *big.Int, token common.Address, createdAt time.Time, nonce uint64) common.Hash {
	buf := make([]byte, 0, 1+common.AddressLength*2+common.HashLength*3)
	buf = append(buf, byte(typ))
	buf = append(buf, target.Bytes()...)
	buf = append(buf, role.Bytes()...)
	if amount != nil {
		buf = append(buf, common.BigToHash(amount).Bytes()...)
	}
	buf = append(buf, token.Bytes()...)
	buf = append(buf, common.BigToHash(big.NewInt(createdAt.UnixNano())).Bytes()...)
	buf = append(buf, common.BigToHash(new(big.Int).SetUint64(nonce)).Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// activeProposalKey indexes at-most-one active proposal per (target, type).
func activeProposalKey(target common.Address, typ ProposalType) string {
	return target.Hex() + "/" + typ.String()
}
