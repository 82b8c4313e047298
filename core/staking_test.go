package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tier60  = 60 * 24 * time.Hour
	tier180 = 180 * 24 * time.Hour
)

// fund mints a balance and approves the stake pool to pull it.
func fund(t *testing.T, token *MemoryToken, account common.Address, amount int64) {
	require.Nil(t, token.Mint(account, big.NewInt(amount)))
	require.Nil(t, token.Approve(account, StakePoolAccount, big.NewInt(amount)))
}

func TestCalculateRewardRate(t *testing.T) {
	reward := CalculateRewardRate(big.NewInt(1000000), 5, tier60)
	assert.Equal(t, big.NewInt(8219), reward)

	reward = CalculateRewardRate(big.NewInt(1000000), 10, tier180)
	assert.Equal(t, big.NewInt(49315), reward)
}

func TestEarlyUnstakePenalty(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 100)

	idx, err := l.Stake(userX, big.NewInt(100), tier60, common.Address{})
	require.Nil(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, big.NewInt(0), token.BalanceOf(userX))
	assert.Equal(t, big.NewInt(100), token.BalanceOf(StakePoolAccount))
	assert.Equal(t, big.NewInt(100), l.Totals().TotalStaked)

	clock.Advance(30 * 24 * time.Hour)

	res, err := l.Unstake(userX, idx)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(75), res.Principal)
	assert.Equal(t, big.NewInt(25), res.Penalty)
	assert.Equal(t, big.NewInt(0), res.Reward)

	// penalty flows into the reward pool, the rest comes back
	assert.Equal(t, big.NewInt(75), token.BalanceOf(userX))
	assert.Equal(t, big.NewInt(100025), token.BalanceOf(RewardPoolAccount))
	assert.Equal(t, big.NewInt(0), token.BalanceOf(StakePoolAccount))
	assert.Equal(t, big.NewInt(0), l.Totals().TotalStaked)
	assert.Len(t, l.StakesOf(userX), 0)

	ev := findEvent(t, l, EventUnstaked)
	require.NotNil(t, ev)
	assert.Equal(t, "25", ev.Attrs["penalty"])
	assert.Equal(t, "0", ev.Attrs["reward"])
}

func TestMatureUnstakeReward(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 1000000)

	idx, err := l.Stake(userX, big.NewInt(1000000), tier60, common.Address{})
	require.Nil(t, err)

	// one day past the lock keeps accruing
	clock.Advance(61 * 24 * time.Hour)

	res, err := l.Unstake(userX, idx)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000000), res.Principal)
	assert.Equal(t, big.NewInt(0), res.Penalty)
	assert.Equal(t, big.NewInt(8356), res.Reward)
	assert.Equal(t, big.NewInt(0), res.Missed)

	assert.Equal(t, big.NewInt(1008356), token.BalanceOf(userX))
	assert.Equal(t, big.NewInt(91644), token.BalanceOf(RewardPoolAccount))
}

func TestUnstakeStarvedRewardPool(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 1000000)

	idx, err := l.Stake(userX, big.NewInt(1000000), tier60, common.Address{})
	require.Nil(t, err)

	// the pool drains down to 1000 while the stake is locked
	require.Nil(t, token.Transfer(RewardPoolAccount, admin1, big.NewInt(99000)))

	clock.Advance(61 * 24 * time.Hour)

	res, err := l.Unstake(userX, idx)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(1000000), res.Principal)
	assert.Equal(t, big.NewInt(1000), res.Reward)
	assert.Equal(t, big.NewInt(7356), res.Missed)
	assert.Equal(t, big.NewInt(0), token.BalanceOf(RewardPoolAccount))

	ev := findEvent(t, l, EventMissedRewards)
	require.NotNil(t, ev)
	assert.Equal(t, "7356", ev.Attrs["shortfall"])
}

func TestStakeAdmission(t *testing.T) {
	l, token, _ := newTestLedger(t)
	fund(t, token, userX, 3000000)

	// pool 100000 over 3000000 total sustains only 3% against the 5% tier
	_, err := l.Stake(userX, big.NewInt(3000000), tier60, common.Address{})
	var re *RewardError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, tier60, re.LockPeriod)
	assert.Equal(t, big.NewInt(3), re.AvailableAPY)
	assert.Equal(t, big.NewInt(5), re.RequiredAPY)

	// a smaller stake at the same tier is admitted
	_, err = l.Stake(userX, big.NewInt(1000000), tier60, common.Address{})
	assert.Nil(t, err)
}

func TestStakeValidation(t *testing.T) {
	l, token, _ := newTestLedger(t)
	fund(t, token, userX, 1000)

	_, err := l.Stake(userX, big.NewInt(0), tier60, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.Stake(userX, big.NewInt(100), 7*24*time.Hour, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.Stake(userX, big.NewInt(100), tier60, userX)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// deposit needs an allowance to pull against
	_, err = l.Stake(userY, big.NewInt(100), tier60, common.Address{})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestStakingPaused(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 100)

	idx, err := l.Stake(userX, big.NewInt(100), tier60, common.Address{})
	require.Nil(t, err)

	require.Nil(t, l.EmergencyPause(admin1))

	_, err = l.Stake(userX, big.NewInt(100), tier60, common.Address{})
	assert.ErrorIs(t, err, ErrPaused)
	_, err = l.Unstake(userX, idx)
	assert.ErrorIs(t, err, ErrPaused)
	_, err = l.ClaimReferralRewards(userX)
	assert.ErrorIs(t, err, ErrPaused)

	clock.Advance(30 * time.Minute)
	require.Nil(t, l.EmergencyUnpause(admin1))
	_, err = l.Unstake(userX, idx)
	assert.Nil(t, err)
}

func TestUnstakeBadIndex(t *testing.T) {
	l, token, _ := newTestLedger(t)
	fund(t, token, userX, 100)

	_, err := l.Unstake(userX, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	idx, err := l.Stake(userX, big.NewInt(100), tier60, common.Address{})
	require.Nil(t, err)
	_, err = l.Unstake(userX, idx)
	require.Nil(t, err)

	// settled positions are gone, the index space shrank
	_, err = l.Unstake(userX, idx)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUnstakeSwapAndPop(t *testing.T) {
	l, token, _ := newTestLedger(t)
	fund(t, token, userX, 600)

	for _, amount := range []int64{100, 200, 300} {
		_, err := l.Stake(userX, big.NewInt(amount), tier60, common.Address{})
		require.Nil(t, err)
	}

	_, err := l.Unstake(userX, 0)
	require.Nil(t, err)

	positions := l.StakesOf(userX)
	require.Len(t, positions, 2)
	// the last position moved into the vacated slot
	assert.Equal(t, big.NewInt(300), positions[0].Amount)
	assert.Equal(t, big.NewInt(200), positions[1].Amount)
}

func TestTierTotals(t *testing.T) {
	l, token, _ := newTestLedger(t)
	fund(t, token, userX, 2000)
	fund(t, token, userY, 3000)

	_, err := l.Stake(userX, big.NewInt(2000), tier60, common.Address{})
	require.Nil(t, err)
	_, err = l.Stake(userY, big.NewInt(3000), tier180, common.Address{})
	require.Nil(t, err)

	totals := l.Totals()
	assert.Equal(t, big.NewInt(5000), totals.TotalStaked)
	assert.Equal(t, big.NewInt(2000), totals.TierTotals[tier60])
	assert.Equal(t, big.NewInt(3000), totals.TierTotals[tier180])

	_, err = l.Unstake(userX, 0)
	require.Nil(t, err)
	totals = l.Totals()
	assert.Equal(t, big.NewInt(3000), totals.TotalStaked)
	assert.Equal(t, big.NewInt(0), totals.TierTotals[tier60])
}

func TestReferralLifecycle(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 1000000)

	idx, err := l.Stake(userX, big.NewInt(1000000), tier180, userY)
	require.Nil(t, err)

	rec := l.ReferrerOf(userY)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(1), rec.TotalReferred)
	assert.Equal(t, big.NewInt(1000000), rec.ActiveStaked[tier180])
	assert.Equal(t, big.NewInt(0), rec.UnclaimedRewards)

	clock.Advance(tier180)

	res, err := l.Unstake(userX, idx)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(49315), res.Reward)

	// 1% of the paid reward accrues to the referrer
	rec = l.ReferrerOf(userY)
	assert.Equal(t, big.NewInt(493), rec.UnclaimedRewards)
	assert.Equal(t, big.NewInt(493), rec.TotalReferrerRewards)
	assert.Equal(t, big.NewInt(0), rec.ActiveStaked[tier180])

	paid, err := l.ClaimReferralRewards(userY)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(493), paid)
	assert.Equal(t, big.NewInt(493), token.BalanceOf(userY))
	assert.Equal(t, big.NewInt(0), l.ReferrerOf(userY).UnclaimedRewards)

	_, err = l.ClaimReferralRewards(userY)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReferralClaimStarvedPool(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 1000000)

	idx, err := l.Stake(userX, big.NewInt(1000000), tier180, userY)
	require.Nil(t, err)
	clock.Advance(tier180)
	_, err = l.Unstake(userX, idx)
	require.Nil(t, err)

	// empty the pool entirely: the claim fails but nothing is forfeited
	require.Nil(t, token.Transfer(RewardPoolAccount, admin1, token.BalanceOf(RewardPoolAccount)))
	_, err = l.ClaimReferralRewards(userY)
	var re *RewardError
	assert.ErrorAs(t, err, &re)
	assert.Equal(t, big.NewInt(493), l.ReferrerOf(userY).UnclaimedRewards)

	// a partial refill pays out what it can, the rest stays claimable
	require.Nil(t, token.Transfer(admin1, RewardPoolAccount, big.NewInt(100)))
	paid, err := l.ClaimReferralRewards(userY)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), paid)
	assert.Equal(t, big.NewInt(393), l.ReferrerOf(userY).UnclaimedRewards)
}

func TestNoReferralOnEarlyUnstake(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 1000000)

	idx, err := l.Stake(userX, big.NewInt(1000000), tier180, userY)
	require.Nil(t, err)
	clock.Advance(30 * 24 * time.Hour)

	res, err := l.Unstake(userX, idx)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(0), res.Reward)

	// no reward paid means no referral share either
	assert.Equal(t, big.NewInt(0), l.ReferrerOf(userY).UnclaimedRewards)
}

func TestStakingConservation(t *testing.T) {
	l, token, clock := newTestLedger(t)
	fund(t, token, userX, 500000)
	fund(t, token, userY, 500000)
	before := token.TotalSupply()

	i1, err := l.Stake(userX, big.NewInt(500000), tier60, common.Address{})
	require.Nil(t, err)
	i2, err := l.Stake(userY, big.NewInt(500000), tier180, userX)
	require.Nil(t, err)

	clock.Advance(30 * 24 * time.Hour)
	_, err = l.Unstake(userX, i1)
	require.Nil(t, err)

	clock.Advance(160 * 24 * time.Hour)
	_, err = l.Unstake(userY, i2)
	require.Nil(t, err)
	_, err = l.ClaimReferralRewards(userX)
	require.Nil(t, err)

	// settlements only move value between accounts
	assert.Equal(t, before, token.TotalSupply())
	assert.Equal(t, big.NewInt(0), token.BalanceOf(StakePoolAccount))
}
