package core

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// SecondsPerYear is the APY accrual base.
const SecondsPerYear = 365 * 24 * 3600

var (
	oneHundred = big.NewInt(100)
	yearSecs   = big.NewInt(SecondsPerYear)
)

// CalculateRewardRate returns the projected full-lock reward for a stake,
// uncapped: amount * apy * lockPeriod / (100 * SecondsPerYear).
func CalculateRewardRate(amount *big.Int, apy uint32, lockPeriod time.Duration) *big.Int {
	reward := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(apy)))
	reward.Mul(reward, big.NewInt(int64(lockPeriod/time.Second)))
	return reward.Div(reward, new(big.Int).Mul(oneHundred, yearSecs))
}

// CalculateRewardsForPeriod computes the reward accrued over elapsed time,
// capped at the pool balance. The second return value is the shortfall when
// the pool cannot cover the accrual; starvation degrades to a partial payout,
// it never fails the settlement.
func CalculateRewardsForPeriod(amount *big.Int, apy uint32, elapsed time.Duration, poolBalance *big.Int) (reward, missed *big.Int) {
	reward = new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(apy)))
	reward.Mul(reward, big.NewInt(int64(elapsed/time.Second)))
	reward.Div(reward, new(big.Int).Mul(oneHundred, yearSecs))

	missed = new(big.Int)
	if reward.Cmp(poolBalance) > 0 {
		missed.Sub(reward, poolBalance)
		reward = new(big.Int).Set(poolBalance)
	}
	return reward, missed
}

// availableAPY is the whole-percent yearly rate the pool could pay if the
// given total were staked for one year: poolBalance * 100 / totalStaked.
func availableAPY(poolBalance, totalStaked *big.Int) *big.Int {
	if totalStaked.Sign() == 0 {
		return new(big.Int).Set(oneHundred)
	}
	apy := new(big.Int).Mul(poolBalance, oneHundred)
	return apy.Div(apy, totalStaked)
}

// Stake locks amount for one of the configured tiers. Admission fails with a
// RewardError when the reward pool cannot sustain the tier's APY for the
// would-be total stake; callers may retry with a shorter tier or wait.
func (l *Ledger) Stake(from common.Address, amount *big.Int, lockPeriod time.Duration, referrer common.Address) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.state.Paused {
		return 0, ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, errors.Wrap(ErrInvalidInput, "zero amount")
	}
	tier, ok := l.cfg.Staking.TierFor(lockPeriod)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidInput, "invalid lock period %s", lockPeriod)
	}
	if referrer == from {
		return 0, errors.Wrap(ErrInvalidInput, "self referral")
	}

	poolBalance := l.token.BalanceOf(RewardPoolAccount)
	projected := new(big.Int).Add(l.state.TotalStaked, amount)
	if avail := availableAPY(poolBalance, projected); avail.Cmp(new(big.Int).SetUint64(uint64(tier.APY))) < 0 {
		return 0, &RewardError{
			LockPeriod:   lockPeriod,
			AvailableAPY: avail,
			RequiredAPY:  new(big.Int).SetUint64(uint64(tier.APY)),
		}
	}

	// interaction before bookkeeping: pull the principal into the stake pool
	if err := l.token.TransferFrom(StakePoolAccount, from, StakePoolAccount, amount); err != nil {
		return 0, errors.Wrap(err, "stake deposit")
	}

	pos := &StakePosition{
		Amount:     new(big.Int).Set(amount),
		LockPeriod: lockPeriod,
		StartTime:  now,
		Referrer:   referrer,
		IsActive:   true,
	}
	l.state.Stakes[from] = append(l.state.Stakes[from], pos)
	index := len(l.state.Stakes[from]) - 1

	l.state.TotalStaked.Add(l.state.TotalStaked, amount)
	l.addTierTotal(lockPeriod, amount)

	if referrer != (common.Address{}) {
		rec := l.referrerRecord(referrer)
		rec.TotalReferred++
		l.addReferrerStaked(rec, lockPeriod, amount)
	}

	l.emit(EventStaked, map[string]string{
		"account":    from.Hex(),
		"amount":     amount.String(),
		"lockPeriod": lockPeriod.String(),
		"index":      strconv.Itoa(index),
	})
	l.logger.Infof("stake %s by %s for %s", amount, from, lockPeriod)

	if err := l.persist(); err != nil {
		return 0, err
	}
	return index, nil
}

// Unstake settles the position at index. Before the lock elapses a fixed
// percentage of the principal is withheld and redistributed to the reward
// pool; after it, the full principal plus the accrued reward (capped at the
// pool balance) is paid out. The position is removed by swap-and-pop.
func (l *Ledger) Unstake(from common.Address, index int) (*UnstakeResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.state.Paused {
		return nil, ErrPaused
	}
	positions := l.state.Stakes[from]
	if index < 0 || index >= len(positions) {
		return nil, errors.Wrapf(ErrInvalidInput, "no stake at index %d", index)
	}
	pos := positions[index]
	if !pos.IsActive {
		return nil, errors.Wrap(ErrInvariant, "stake already settled")
	}

	elapsed := now.Sub(pos.StartTime)
	res := &UnstakeResult{
		Principal: new(big.Int).Set(pos.Amount),
		Penalty:   new(big.Int),
		Reward:    new(big.Int),
		Missed:    new(big.Int),
	}

	if elapsed < pos.LockPeriod {
		res.Penalty.Mul(pos.Amount, new(big.Int).SetUint64(uint64(l.cfg.Staking.PenaltyRate)))
		res.Penalty.Div(res.Penalty, oneHundred)
		res.Principal.Sub(res.Principal, res.Penalty)
	} else {
		apy := uint32(0)
		if tier, ok := l.cfg.Staking.TierFor(pos.LockPeriod); ok {
			apy = tier.APY
		}
		poolBalance := l.token.BalanceOf(RewardPoolAccount)
		res.Reward, res.Missed = CalculateRewardsForPeriod(pos.Amount, apy, elapsed, poolBalance)
	}

	// interactions first, all against in-process pools that hold the funds
	// by conservation; bookkeeping follows so a failure aborts cleanly
	if res.Principal.Sign() > 0 {
		if err := l.token.Transfer(StakePoolAccount, from, res.Principal); err != nil {
			return nil, errors.Wrap(err, "return principal")
		}
	}
	if res.Penalty.Sign() > 0 {
		if err := l.token.Transfer(StakePoolAccount, RewardPoolAccount, res.Penalty); err != nil {
			return nil, errors.Wrap(err, "redistribute penalty")
		}
	}
	if res.Reward.Sign() > 0 {
		if err := l.token.Transfer(RewardPoolAccount, from, res.Reward); err != nil {
			return nil, errors.Wrap(err, "pay reward")
		}
	}

	pos.IsActive = false
	l.state.TotalStaked.Sub(l.state.TotalStaked, pos.Amount)
	l.subTierTotal(pos.LockPeriod, pos.Amount)

	if pos.Referrer != (common.Address{}) {
		rec := l.referrerRecord(pos.Referrer)
		l.subReferrerStaked(rec, pos.LockPeriod, pos.Amount)
		if res.Reward.Sign() > 0 {
			if tier, ok := l.cfg.Staking.TierFor(pos.LockPeriod); ok && tier.ReferralRate > 0 {
				refReward := new(big.Int).Mul(res.Reward, new(big.Int).SetUint64(uint64(tier.ReferralRate)))
				refReward.Div(refReward, oneHundred)
				if refReward.Sign() > 0 {
					rec.UnclaimedRewards.Add(rec.UnclaimedRewards, refReward)
					rec.TotalReferrerRewards.Add(rec.TotalReferrerRewards, refReward)
					l.emit(EventReferralAccrued, map[string]string{
						"referrer": pos.Referrer.Hex(),
						"amount":   refReward.String(),
					})
				}
			}
		}
	}

	// swap-and-pop keeps the per-account index space dense
	last := len(positions) - 1
	positions[index] = positions[last]
	l.state.Stakes[from] = positions[:last]
	if len(l.state.Stakes[from]) == 0 {
		delete(l.state.Stakes, from)
	}

	l.emit(EventUnstaked, map[string]string{
		"account": from.Hex(),
		"amount":  pos.Amount.String(),
		"penalty": res.Penalty.String(),
		"reward":  res.Reward.String(),
	})
	if res.Missed.Sign() > 0 {
		l.emit(EventMissedRewards, map[string]string{
			"account":   from.Hex(),
			"shortfall": res.Missed.String(),
		})
		l.logger.Warnf("reward pool short by %s for %s", res.Missed, from)
	}

	if err := l.persist(); err != nil {
		return nil, err
	}
	return res, nil
}

// ClaimReferralRewards pays out as much of the accrued referral balance as
// the reward pool currently covers; the remainder stays claimable.
func (l *Ledger) ClaimReferralRewards(from common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.state.Paused {
		return nil, ErrPaused
	}
	rec, ok := l.state.Referrers[from]
	if !ok || rec.UnclaimedRewards.Sign() == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "nothing to claim")
	}

	payable := new(big.Int).Set(rec.UnclaimedRewards)
	if poolBalance := l.token.BalanceOf(RewardPoolAccount); payable.Cmp(poolBalance) > 0 {
		payable.Set(poolBalance)
	}
	if payable.Sign() == 0 {
		return nil, &RewardError{AvailableAPY: new(big.Int), RequiredAPY: new(big.Int)}
	}

	if err := l.token.Transfer(RewardPoolAccount, from, payable); err != nil {
		return nil, errors.Wrap(err, "pay referral reward")
	}
	rec.UnclaimedRewards.Sub(rec.UnclaimedRewards, payable)
	rec.LastClaimTime = now

	l.emit(EventReferralClaimed, map[string]string{
		"referrer": from.Hex(),
		"amount":   payable.String(),
	})

	if err := l.persist(); err != nil {
		return nil, err
	}
	return payable, nil
}

// StakesOf returns copies of the account's positions, index-aligned.
func (l *Ledger) StakesOf(account common.Address) []*StakePosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := l.state.Stakes[account]
	out := make([]*StakePosition, 0, len(positions))
	for _, pos := range positions {
		c := *pos
		c.Amount = new(big.Int).Set(pos.Amount)
		out = append(out, &c)
	}
	return out
}

// Totals returns the global staked amount and its per-tier breakdown.
func (l *Ledger) Totals() *StakingTotals {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := &StakingTotals{
		TotalStaked: new(big.Int).Set(l.state.TotalStaked),
		TierTotals:  make(map[time.Duration]*big.Int, len(l.state.TierTotals)),
	}
	for tier, amount := range l.state.TierTotals {
		totals.TierTotals[tier] = new(big.Int).Set(amount)
	}
	return totals
}

// ReferrerOf returns a copy of the referrer record, nil when unknown.
func (l *Ledger) ReferrerOf(account common.Address) *ReferrerRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.state.Referrers[account]
	if !ok {
		return nil
	}
	out := &ReferrerRecord{
		TotalReferred:        rec.TotalReferred,
		TotalReferrerRewards: new(big.Int).Set(rec.TotalReferrerRewards),
		UnclaimedRewards:     new(big.Int).Set(rec.UnclaimedRewards),
		LastClaimTime:        rec.LastClaimTime,
		ActiveStaked:         make(map[time.Duration]*big.Int, len(rec.ActiveStaked)),
	}
	for tier, amount := range rec.ActiveStaked {
		out.ActiveStaked[tier] = new(big.Int).Set(amount)
	}
	return out
}

func (l *Ledger) referrerRecord(referrer common.Address) *ReferrerRecord {
	rec, ok := l.state.Referrers[referrer]
	if !ok {
		rec = &ReferrerRecord{
			TotalReferrerRewards: new(big.Int),
			UnclaimedRewards:     new(big.Int),
			ActiveStaked:         make(map[time.Duration]*big.Int),
		}
		l.state.Referrers[referrer] = rec
	}
	return rec
}

func (l *Ledger) addTierTotal(lockPeriod time.Duration, amount *big.Int) {
	total, ok := l.state.TierTotals[lockPeriod]
	if !ok {
		total = new(big.Int)
		l.state.TierTotals[lockPeriod] = total
	}
	total.Add(total, amount)
}

func (l *Ledger) subTierTotal(lockPeriod time.Duration, amount *big.Int) {
	if total, ok := l.state.TierTotals[lockPeriod]; ok {
		total.Sub(total, amount)
	}
}

func (l *Ledger) addReferrerStaked(rec *ReferrerRecord, lockPeriod time.Duration, amount *big.Int) {
	total, ok := rec.ActiveStaked[lockPeriod]
	if !ok {
		total = new(big.Int)
		rec.ActiveStaked[lockPeriod] = total
	}
	total.Add(total, amount)
}

func (l *Ledger) subReferrerStaked(rec *ReferrerRecord, lockPeriod time.Duration, amount *big.Int) {
	if total, ok := rec.ActiveStaked[lockPeriod]; ok {
		total.Sub(total, amount)
	}
}
