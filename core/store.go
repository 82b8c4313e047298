package core

import (
	"encoding/binary"
	"encoding/json"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/pkg/errors"
)

// CurrentSchemaVersion is bumped whenever the persisted state layout changes.
// Older snapshots are advanced by migrate on load.
const CurrentSchemaVersion = 1

const (
	stateKey        = "state"
	lastEventSeqKey = "lastEventSeq"
	eventKeyPrefix  = "event/"
)

// Store persists ledger snapshots and the event journal in leveldb.
type Store struct {
	db storage.Storage
}

func NewStore(path string) (*Store, error) {
	db, err := leveldb.New(path)
	if err != nil {
		return nil, errors.Wrap(err, "open state db")
	}
	return &Store{db: db}, nil
}

// OpenStore wraps an already opened storage backend.
func OpenStore(db storage.Storage) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSnapshot(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal state snapshot")
	}
	s.db.Put([]byte(stateKey), data)
	return nil
}

// LoadSnapshot returns the persisted state, or nil when the store is fresh.
// Snapshots written by older schema versions are migrated in place.
func (s *Store) LoadSnapshot() (*State, error) {
	data := s.db.Get([]byte(stateKey))
	if data == nil {
		return nil, nil
	}
	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrap(err, "unmarshal state snapshot")
	}
	if err := migrate(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) AppendEvent(ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	s.db.Put(eventKey(ev.Seq), data)

	seqData := make([]byte, 8)
	binary.BigEndian.PutUint64(seqData, ev.Seq)
	s.db.Put([]byte(lastEventSeqKey), seqData)
	return nil
}

// LastEventSeq returns the sequence number of the newest journaled event.
func (s *Store) LastEventSeq() uint64 {
	data := s.db.Get([]byte(lastEventSeqKey))
	if data == nil {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// Event reads one journaled event by sequence number.
func (s *Store) Event(seq uint64) (*Event, error) {
	data := s.db.Get(eventKey(seq))
	if data == nil {
		return nil, nil
	}
	ev := &Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, errors.Wrap(err, "unmarshal event")
	}
	return ev, nil
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventKeyPrefix)+8)
	copy(key, eventKeyPrefix)
	binary.BigEndian.PutUint64(key[len(eventKeyPrefix):], seq)
	return key
}

// migrate advances a snapshot written by an older schema to the current one.
// The upgrade proposal records the pending target; applying it here is the
// off-chain equivalent of the on-chain implementation switch.
func migrate(state *State) error {
	if state.SchemaVersion > CurrentSchemaVersion {
		return errors.Wrapf(ErrInvariant, "snapshot schema %d is newer than supported %d",
			state.SchemaVersion, CurrentSchemaVersion)
	}
	for state.SchemaVersion < CurrentSchemaVersion {
		switch state.SchemaVersion {
		case 0:
			state.ensureMaps()
		}
		state.SchemaVersion++
	}
	state.ensureMaps()
	return nil
}
