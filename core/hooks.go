package core

import (
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RewardDistributor is the storage-proof/reward-distribution collaborator.
// The ledger only invokes it as a side effect; it never implements it.
type RewardDistributor interface {
	DistributeRewards(cids []string, storer common.Address, poolID uint64, totalSize uint64) error
	PenalizeStorer(cid string, storer common.Address) error
}

// RetryingDistributor wraps a distributor with bounded retries, for flaky
// out-of-process collaborators. Retrying stays at this boundary; ledger
// operations themselves never retry.
type RetryingDistributor struct {
	inner  RewardDistributor
	logger logrus.FieldLogger
}

func NewRetryingDistributor(inner RewardDistributor, logger logrus.FieldLogger) *RetryingDistributor {
	return &RetryingDistributor{inner: inner, logger: logger}
}

func (d *RetryingDistributor) DistributeRewards(cids []string, storer common.Address, poolID uint64, totalSize uint64) error {
	action := func(attempt uint) error {
		if attempt > 0 {
			d.logger.Debugf("distribute rewards retry %d for %s", attempt, storer)
		}
		return d.inner.DistributeRewards(cids, storer, poolID, totalSize)
	}
	return retry.Retry(action, strategy.Limit(5), strategy.Backoff(backoff.Fibonacci(time.Second)))
}

func (d *RetryingDistributor) PenalizeStorer(cid string, storer common.Address) error {
	action := func(attempt uint) error {
		if attempt > 0 {
			d.logger.Debugf("penalize retry %d for %s", attempt, storer)
		}
		return d.inner.PenalizeStorer(cid, storer)
	}
	return retry.Retry(action, strategy.Limit(5), strategy.Backoff(backoff.Fibonacci(time.Second)))
}

var _ RewardDistributor = (*MockDistributor)(nil)

// MockDistributor records calls for tests.
type MockDistributor struct {
	mu          sync.Mutex
	Distributed [][]string
	Penalized   []string
	Err         error
}

func (m *MockDistributor) DistributeRewards(cids []string, storer common.Address, poolID uint64, totalSize uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Distributed = append(m.Distributed, cids)
	return nil
}

func (m *MockDistributor) PenalizeStorer(cid string, storer common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Penalized = append(m.Penalized, cid)
	return nil
}

// ExpectedProof derives the placeholder proof value for a (cid, storer) pair.
// This is a plain hash equality, not a real storage proof; it matches the
// source system and is not sufficient for production storage verification.
func ExpectedProof(cid string, storer common.Address) common.Hash {
	return crypto.Keccak256Hash(append([]byte(cid), storer.Bytes()...))
}

// SubmitProof verifies a storage proof and, on success, notifies the reward
// distributor. A failed verification returns without error; the source
// system silently ignores bad proofs here while hard-failing elsewhere, and
// that behavior is kept as is.
func (l *Ledger) SubmitProof(from common.Address, cid string, poolID uint64, totalSize uint64, proof common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.Paused {
		return ErrPaused
	}
	if cid == "" {
		return errors.Wrap(ErrInvalidInput, "empty cid")
	}

	if proof != ExpectedProof(cid, from) {
		l.logger.Debugf("proof mismatch for cid %s from %s", cid, from)
		return nil
	}

	if l.hooks != nil {
		if err := l.hooks.DistributeRewards([]string{cid}, from, poolID, totalSize); err != nil {
			// the ledger state is already consistent; distribution is a side
			// effect and its failure is surfaced via logs only
			l.logger.Errorf("distribute rewards for %s: %s", from, err)
		}
	}
	return nil
}

// PenalizeStorer forwards a pool-admin penalty to the distributor.
func (l *Ledger) PenalizeStorer(from common.Address, cid string, storer common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if err := l.checkTimelock(from, now); err != nil {
		return err
	}
	if !l.hasRole(AdminRole, from) && !l.hasRole(PoolAdminRole, from) {
		return errors.Wrapf(ErrUnauthorized, "caller %s lacks pool admin role", from)
	}
	if cid == "" || storer == (common.Address{}) {
		return errors.Wrap(ErrInvalidInput, "empty cid or zero storer")
	}

	l.touch(from, now)
	if l.hooks != nil {
		if err := l.hooks.PenalizeStorer(cid, storer); err != nil {
			return errors.Wrap(err, "penalize storer")
		}
	}
	return nil
}
