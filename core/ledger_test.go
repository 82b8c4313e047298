package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stornet-labs/ledger/repo"
)

var (
	admin1 = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	admin2 = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	admin3 = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	userX  = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	userY  = common.HexToAddress("0x0000000000000000000000000000000000000b02")
)

func testConfig(t *testing.T) *repo.Config {
	c := repo.DefaultConfig(t.TempDir())
	c.Genesis.Admins = []string{admin1.Hex(), admin2.Hex(), admin3.Hex()}
	c.Genesis.TreasuryBalance = "1000000000"
	c.Genesis.RewardPoolBalance = "100000"
	return c
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *MemoryToken, *ManualClock) {
	clock := NewManualClock(time.Unix(1700000000, 0).UTC())
	token := NewMemoryToken()

	opts = append([]Option{WithClock(clock)}, opts...)
	l, err := NewLedger(testConfig(t), token, opts...)
	require.Nil(t, err)
	return l, token, clock
}

func findEvent(t *testing.T, l *Ledger, kind EventKind) *Event {
	events := l.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			return &events[i]
		}
	}
	return nil
}

func TestBootstrap(t *testing.T) {
	l, token, _ := newTestLedger(t)

	assert.True(t, l.HasRole(AdminRole, admin1))
	assert.True(t, l.HasRole(AdminRole, admin2))
	assert.False(t, l.HasRole(AdminRole, userX))

	rc, ok := l.RoleConfigOf(AdminRole)
	require.True(t, ok)
	assert.Equal(t, uint32(2), rc.Quorum)

	assert.Equal(t, big.NewInt(1000000000), token.BalanceOf(TreasuryAccount))
	assert.Equal(t, big.NewInt(100000), token.BalanceOf(RewardPoolAccount))
}

func TestBootstrapRejectsTooFewAdmins(t *testing.T) {
	c := testConfig(t)
	c.Genesis.Admins = []string{admin1.Hex()}

	_, err := NewLedger(c, NewMemoryToken(), WithClock(NewManualClock(time.Now())))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBootstrapRejectsSingleAdminQuorum(t *testing.T) {
	c := testConfig(t)
	c.Governance.DefaultQuorum = 1

	_, err := NewLedger(c, NewMemoryToken(), WithClock(NewManualClock(time.Now())))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmergencyPauseCooldown(t *testing.T) {
	l, _, clock := newTestLedger(t)

	require.Nil(t, l.EmergencyPause(admin1))
	assert.True(t, l.Paused())

	// unpausing right away hits the cooldown
	err := l.EmergencyUnpause(admin2)
	assert.ErrorIs(t, err, ErrCooldownActive)

	clock.Advance(30 * time.Minute)
	require.Nil(t, l.EmergencyUnpause(admin2))
	assert.False(t, l.Paused())

	// double unpause is an input error, not a cooldown one
	clock.Advance(time.Hour)
	assert.ErrorIs(t, l.EmergencyUnpause(admin1), ErrInvalidInput)
}

func TestEmergencyPauseUnauthorized(t *testing.T) {
	l, _, _ := newTestLedger(t)
	assert.ErrorIs(t, l.EmergencyPause(userX), ErrUnauthorized)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.Nil(t, err)

	clock := NewManualClock(time.Unix(1700000000, 0).UTC())
	token := NewMemoryToken()
	cfg := testConfig(t)

	l, err := NewLedger(cfg, token, WithClock(clock), WithStore(store))
	require.Nil(t, err)

	id, err := l.CreateProposal(admin1, Whitelist, userX, common.Hash{}, nil, common.Address{})
	require.Nil(t, err)
	require.Nil(t, l.SetRoleQuorum(admin2, PoolAdminRole, 3))
	require.Nil(t, store.Close())

	// reopen from disk, same external token ledger
	store2, err := NewStore(dir)
	require.Nil(t, err)
	defer store2.Close()

	l2, err := NewLedger(cfg, token, WithClock(clock), WithStore(store2))
	require.Nil(t, err)

	p := l2.ProposalByID(id)
	require.NotNil(t, p)
	assert.Equal(t, Whitelist, p.Type)
	assert.Equal(t, uint32(1), p.Approvals)

	rc, ok := l2.RoleConfigOf(PoolAdminRole)
	require.True(t, ok)
	assert.Equal(t, uint32(3), rc.Quorum)

	// genesis must not re-mint on top of the loaded snapshot
	assert.Equal(t, big.NewInt(1000000000), token.BalanceOf(TreasuryAccount))
}

func TestSnapshotMigrateRejectsNewerSchema(t *testing.T) {
	state := newState()
	state.SchemaVersion = CurrentSchemaVersion + 1
	assert.ErrorIs(t, migrate(state), ErrInvariant)
}
