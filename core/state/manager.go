package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"bankchain/core/events"
	"bankchain/storage"
)

// ErrNoScope is returned when state is written outside of an Atomic scope.
var ErrNoScope = errors.New("state: write outside atomic scope")

// Manager is a write-back overlay on top of a storage.Database. Reads see the
// pending overlay first, so every effect of an in-flight operation is visible
// to code running inside that operation. Writes are journaled and can be
// rolled back to any snapshot; the outermost Atomic scope flushes the overlay
// to storage in a single batch and publishes the buffered events.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	emitter events.Emitter

	dirty   map[string]entry
	journal []journalEntry
	logs    []events.Event
	depth   int
}

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    entry
	existed bool
}

type snapshot struct {
	journal int
	logs    int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		emitter: events.NoopEmitter{},
		dirty:   make(map[string]entry),
	}
}

// SetEmitter configures where committed events are published. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// InScope reports whether an Atomic scope is currently open.
func (m *Manager) InScope() bool { return m.depth > 0 }

// Atomic runs fn inside a nested scope. If fn fails every write and event of
// the scope is discarded. When the outermost scope succeeds the overlay is
// written to storage atomically and buffered events are published in order.
func (m *Manager) Atomic(fn func() error) (err error) {
	snap := m.snapshot()
	m.depth++
	defer func() {
		m.depth--
		if r := recover(); r != nil {
			m.revert(snap)
			panic(r)
		}
		if err != nil {
			m.revert(snap)
			return
		}
		if m.depth == 0 {
			err = m.commit()
		}
	}()
	return fn()
}

func (m *Manager) snapshot() snapshot {
	return snapshot{journal: len(m.journal), logs: len(m.logs)}
}

func (m *Manager) revert(s snapshot) {
	for i := len(m.journal) - 1; i >= s.journal; i-- {
		j := m.journal[i]
		if j.existed {
			m.dirty[j.key] = j.prev
		} else {
			delete(m.dirty, j.key)
		}
	}
	m.journal = m.journal[:s.journal]
	m.logs = m.logs[:s.logs]
}

func (m *Manager) commit() error {
	if len(m.dirty) > 0 {
		batch := m.db.NewBatch()
		for key, e := range m.dirty {
			if e.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), e.value)
		}
		if err := batch.Write(); err != nil {
			m.revert(snapshot{})
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	logs := m.logs
	m.dirty = make(map[string]entry)
	m.journal = nil
	m.logs = nil
	for _, e := range logs {
		m.emitter.Emit(e)
	}
	return nil
}

func (m *Manager) set(hashed []byte, e entry) error {
	if m.depth == 0 {
		return ErrNoScope
	}
	key := string(hashed)
	prev, existed := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, existed: existed})
	m.dirty[key] = e
	return nil
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if e, ok := m.dirty[string(hashed)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.set(kvKey(key), entry{value: encoded})
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key. Deleting a missing key is a no-op write.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.set(kvKey(key), entry{deleted: true})
}

// AddEvent buffers an event until the outermost scope commits. Events of a
// reverted scope are dropped with its writes.
func (m *Manager) AddEvent(e events.Event) {
	if e == nil {
		return
	}
	m.logs = append(m.logs, e)
}

// Pending reports the number of keys written but not yet committed.
func (m *Manager) Pending() int { return len(m.dirty) }
