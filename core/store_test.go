package core

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJournal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.Nil(t, err)

	clock := NewManualClock(time.Unix(1700000000, 0).UTC())
	token := NewMemoryToken()
	cfg := testConfig(t)
	l, err := NewLedger(cfg, token, WithClock(clock), WithStore(store))
	require.Nil(t, err)

	_, err = l.CreateProposal(admin1, Whitelist, userX, common.Hash{}, nil, common.Address{})
	require.Nil(t, err)
	require.Nil(t, l.SetRoleQuorum(admin1, PoolAdminRole, 2))

	last := store.LastEventSeq()
	require.Equal(t, uint64(2), last)

	ev, err := store.Event(last)
	require.Nil(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventQuorumUpdated, ev.Kind)
	assert.Equal(t, "pool_admin", ev.Attrs["role"])

	ev, err = store.Event(last + 1)
	require.Nil(t, err)
	assert.Nil(t, ev)

	// a reopened ledger continues numbering after the journal tail
	require.Nil(t, store.Close())
	store2, err := NewStore(dir)
	require.Nil(t, err)
	defer store2.Close()

	l2, err := NewLedger(cfg, token, WithClock(clock), WithStore(store2))
	require.Nil(t, err)
	require.Nil(t, l2.SetRoleQuorum(admin1, PoolAdminRole, 3))

	assert.Equal(t, uint64(3), store2.LastEventSeq())
}

func TestEventsSince(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.CreateProposal(admin1, Whitelist, userX, common.Hash{}, nil, common.Address{})
	require.Nil(t, err)
	_, err = l.CreateProposal(admin1, Whitelist, userY, common.Hash{}, nil, common.Address{})
	require.Nil(t, err)

	all := l.Events()
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].Seq)

	tail := l.EventsSince(1)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Seq)

	assert.Len(t, l.EventsSince(2), 0)
}
