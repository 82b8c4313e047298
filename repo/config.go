package repo

import (
	"math/big"
	"time"
)

type Config struct {
	RepoRoot   string     `mapstructure:"-" toml:"-"`
	API        API        `mapstructure:"api" toml:"api"`
	Log        Log        `mapstructure:"log" toml:"log"`
	Governance Governance `mapstructure:"governance" toml:"governance"`
	Staking    Staking    `mapstructure:"staking" toml:"staking"`
	Genesis    Genesis    `mapstructure:"genesis" toml:"genesis"`
}

type API struct {
	Listen        string `mapstructure:"listen" toml:"listen"`
	EnableMetrics bool   `mapstructure:"enable_metrics" toml:"enable_metrics"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

type Governance struct {
	// lifetime of a proposal; approvals after this point fail as expired
	ProposalTimeout time.Duration `mapstructure:"proposal_timeout" toml:"proposal_timeout"`
	// minimum age of a proposal before it may execute
	MinExecutionDelay time.Duration `mapstructure:"min_execution_delay" toml:"min_execution_delay"`
	// lock stamped on an account after any role grant/revoke targeting it
	RoleChangeDelay time.Duration `mapstructure:"role_change_delay" toml:"role_change_delay"`
	// wait after whitelisting before the account may receive treasury payouts
	WhitelistLock time.Duration `mapstructure:"whitelist_lock" toml:"whitelist_lock"`
	// minimum spacing between successive emergency pause/unpause actions
	EmergencyCooldown time.Duration `mapstructure:"emergency_cooldown" toml:"emergency_cooldown"`
	MinAdmins         uint32        `mapstructure:"min_admins" toml:"min_admins"`
	DefaultQuorum     uint32        `mapstructure:"default_quorum" toml:"default_quorum"`
}

type Tier struct {
	LockPeriod time.Duration `mapstructure:"lock_period" toml:"lock_period"`
	// fixed APY in whole percentage points
	APY uint32 `mapstructure:"apy" toml:"apy"`
	// share of the staker's reward additionally credited to the referrer, in percent
	ReferralRate uint32 `mapstructure:"referral_rate" toml:"referral_rate"`
}

type Staking struct {
	// principal percentage deducted on early unstake
	PenaltyRate uint32 `mapstructure:"penalty_rate" toml:"penalty_rate"`
	Tiers       []Tier `mapstructure:"tiers" toml:"tiers"`
}

// TierFor returns the tier configured for the given lock period.
func (s *Staking) TierFor(lockPeriod time.Duration) (*Tier, bool) {
	for i := range s.Tiers {
		if s.Tiers[i].LockPeriod == lockPeriod {
			return &s.Tiers[i], true
		}
	}
	return nil, false
}

type Genesis struct {
	// initial holders of the admin role
	Admins []string `mapstructure:"admins" toml:"admins"`
	// decimal token amounts, minted at startup
	TreasuryBalance   string `mapstructure:"treasury_balance" toml:"treasury_balance"`
	RewardPoolBalance string `mapstructure:"reward_pool_balance" toml:"reward_pool_balance"`
}

// ParseBalance parses a decimal genesis amount, zero when empty.
func ParseBalance(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		API: API{
			Listen:        "127.0.0.1:9520",
			EnableMetrics: true,
		},
		Log: Log{
			Level:        "info",
			Filename:     "ledgerd.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
		Governance: Governance{
			ProposalTimeout:   48 * time.Hour,
			MinExecutionDelay: 24 * time.Hour,
			RoleChangeDelay:   24 * time.Hour,
			WhitelistLock:     24 * time.Hour,
			EmergencyCooldown: 30 * time.Minute,
			MinAdmins:         2,
			DefaultQuorum:     2,
		},
		Staking: Staking{
			PenaltyRate: 25,
			Tiers: []Tier{
				{LockPeriod: 60 * 24 * time.Hour, APY: 5, ReferralRate: 0},
				{LockPeriod: 180 * 24 * time.Hour, APY: 10, ReferralRate: 1},
				{LockPeriod: 365 * 24 * time.Hour, APY: 15, ReferralRate: 4},
			},
		},
		Genesis: Genesis{
			Admins:            []string{},
			TreasuryBalance:   "1000000000",
			RewardPoolBalance: "100000000",
		},
	}
}
