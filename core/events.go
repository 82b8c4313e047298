package core

import (
	"time"
)

type EventKind string

const (
	EventProposalCreated  EventKind = "proposal_created"
	EventProposalApproved EventKind = "proposal_approved"
	EventProposalExecuted EventKind = "proposal_executed"
	EventProposalExpired  EventKind = "proposal_expired"

	EventRoleGranted      EventKind = "role_granted"
	EventRoleRevoked      EventKind = "role_revoked"
	EventQuorumUpdated    EventKind = "quorum_updated"
	EventTxLimitUpdated   EventKind = "transaction_limit_updated"
	EventWhitelisted      EventKind = "whitelisted"
	EventWalletAdded      EventKind = "wallet_added"
	EventUpgradeApproved  EventKind = "upgrade_approved"
	EventTimeLockUpdated  EventKind = "timelock_updated"
	EventEmergencyPause   EventKind = "emergency_pause"
	EventEmergencyUnpause EventKind = "emergency_unpause"

	EventStaked          EventKind = "staked"
	EventUnstaked        EventKind = "unstaked"
	EventMissedRewards   EventKind = "missed_rewards"
	EventReferralAccrued EventKind = "referral_accrued"
	EventReferralClaimed EventKind = "referral_claimed"
)

// Event is an append-only record emitted by committed ledger transactions.
// Attribute values are rendered to strings so events journal uniformly.
type Event struct {
	Seq   uint64            `json:"seq"`
	Kind  EventKind         `json:"kind"`
	Time  time.Time         `json:"time"`
	Attrs map[string]string `json:"attrs"`
}

// eventTailMax bounds the in-memory event tail; the full log lives in the journal.
const eventTailMax = 4096

func (l *Ledger) emit(kind EventKind, attrs map[string]string) {
	l.eventSeq++
	ev := Event{
		Seq:   l.eventSeq,
		Kind:  kind,
		Time:  l.clock.Now(),
		Attrs: attrs,
	}
	l.events = append(l.events, ev)
	if len(l.events) > eventTailMax {
		l.events = l.events[len(l.events)-eventTailMax:]
	}
	if l.store != nil {
		if err := l.store.AppendEvent(&ev); err != nil {
			l.logger.Errorf("append event to journal: %s", err)
		}
	}
	l.logger.Debugf("event %s: %v", kind, attrs)
}

// Events returns a copy of the in-memory event tail.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsSince returns tail events with sequence numbers greater than seq.
func (l *Ledger) EventsSince(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
