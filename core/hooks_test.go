package core

import (
	"testing"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitProof(t *testing.T) {
	dist := &MockDistributor{}
	l, _, _ := newTestLedger(t, WithRewardDistributor(dist))

	cid := "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	require.Nil(t, l.SubmitProof(userX, cid, 7, 4096, ExpectedProof(cid, userX)))
	require.Len(t, dist.Distributed, 1)
	assert.Equal(t, []string{cid}, dist.Distributed[0])
}

func TestSubmitProofMismatchIgnored(t *testing.T) {
	dist := &MockDistributor{}
	l, _, _ := newTestLedger(t, WithRewardDistributor(dist))

	// a wrong proof is dropped without an error and without distribution
	err := l.SubmitProof(userX, "cid-1", 7, 4096, common.HexToHash("0xbad"))
	assert.Nil(t, err)
	assert.Len(t, dist.Distributed, 0)

	// a proof bound to a different storer does not verify either
	err = l.SubmitProof(userX, "cid-1", 7, 4096, ExpectedProof("cid-1", userY))
	assert.Nil(t, err)
	assert.Len(t, dist.Distributed, 0)
}

func TestSubmitProofValidation(t *testing.T) {
	dist := &MockDistributor{}
	l, _, clock := newTestLedger(t, WithRewardDistributor(dist))

	err := l.SubmitProof(userX, "", 7, 4096, common.Hash{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.Nil(t, l.EmergencyPause(admin1))
	err = l.SubmitProof(userX, "cid-1", 7, 4096, ExpectedProof("cid-1", userX))
	assert.ErrorIs(t, err, ErrPaused)

	clock.Advance(l.cfg.Governance.EmergencyCooldown)
	require.Nil(t, l.EmergencyUnpause(admin1))
}

func TestSubmitProofDistributionFailureIsLoggedOnly(t *testing.T) {
	dist := &MockDistributor{Err: errors.New("broker down")}
	l, _, _ := newTestLedger(t, WithRewardDistributor(dist))

	// distribution is a side effect; its failure never fails the call
	err := l.SubmitProof(userX, "cid-1", 7, 4096, ExpectedProof("cid-1", userX))
	assert.Nil(t, err)
}

func TestPenalizeStorer(t *testing.T) {
	dist := &MockDistributor{}
	l, _, _ := newTestLedger(t, WithRewardDistributor(dist))

	assert.ErrorIs(t, l.PenalizeStorer(userX, "cid-1", userY), ErrUnauthorized)
	assert.ErrorIs(t, l.PenalizeStorer(admin1, "", userY), ErrInvalidInput)
	assert.ErrorIs(t, l.PenalizeStorer(admin1, "cid-1", common.Address{}), ErrInvalidInput)

	require.Nil(t, l.PenalizeStorer(admin1, "cid-1", userY))
	assert.Equal(t, []string{"cid-1"}, dist.Penalized)
}

func TestPenalizeStorerPoolAdmin(t *testing.T) {
	dist := &MockDistributor{}
	l, _, clock := newTestLedger(t, WithRewardDistributor(dist))

	require.Nil(t, l.SetRoleQuorum(admin1, PoolAdminRole, 2))
	id, err := l.CreateProposal(admin1, RoleChange, userX, PoolAdminRole, nil, common.Address{})
	require.Nil(t, err)
	require.Nil(t, l.ApproveProposal(admin2, id))
	clock.Advance(l.cfg.Governance.MinExecutionDelay)
	require.Nil(t, l.ExecuteProposal(admin1, id))

	// the fresh grant carries a role-change timelock
	assert.ErrorIs(t, l.PenalizeStorer(userX, "cid-2", userY), ErrTimelockActive)
	clock.Advance(l.cfg.Governance.RoleChangeDelay)
	require.Nil(t, l.PenalizeStorer(userX, "cid-2", userY))
	assert.Equal(t, []string{"cid-2"}, dist.Penalized)
}

func TestRetryingDistributorPassesThrough(t *testing.T) {
	inner := &MockDistributor{}
	d := NewRetryingDistributor(inner, log.New())

	require.Nil(t, d.DistributeRewards([]string{"cid-1"}, userX, 1, 128))
	require.Nil(t, d.PenalizeStorer("cid-2", userY))
	assert.Len(t, inner.Distributed, 1)
	assert.Equal(t, []string{"cid-2"}, inner.Penalized)
}
