// Package store implements the persistent ordered key-value Store described
// by the runtime's state-transition contract: block-scope transactional
// batching, prefix iteration, and Merkle root computation over the full
// keyspace. It is grounded on the reference ledger's write-ahead-log plus
// periodic snapshot pattern, generalized from a whole-chain ledger down to
// a namespaced key-value store that the Registry's modules write through.
package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"gamechain/internal/chainerr"
)

// Store is a persistent ordered map from opaque keys to opaque values with
// transactional batching at block scope. It is safe for concurrent use by
// readers; writers are serialized by the Runtime's single-threaded block
// execution (see package runtime).
type Store struct {
	mu sync.RWMutex

	committed map[string][]byte // last committed state
	staged    map[string][]byte // writes staged for the current block
	deleted   map[string]struct{}

	height uint64
	root   [32]byte

	walFile  *os.File
	walPath  string
	snapPath string
}

// Config configures where the Store persists its write-ahead log and
// periodic snapshots.
type Config struct {
	WALPath      string
	SnapshotPath string
}

// Open creates or reopens a Store, replaying its write-ahead log.
func Open(cfg Config) (*Store, error) {
	wal, err := os.OpenFile(cfg.WALPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, chainerr.New(chainerr.IO, "open WAL: %v", err)
	}
	s := &Store{
		committed: make(map[string][]byte),
		staged:    make(map[string][]byte),
		deleted:   make(map[string]struct{}),
		walFile:   wal,
		walPath:   cfg.WALPath,
		snapPath:  cfg.SnapshotPath,
	}
	if err := s.loadSnapshot(); err != nil {
		_ = wal.Close()
		return nil, err
	}
	if err := s.replayWAL(); err != nil {
		_ = wal.Close()
		return nil, err
	}
	s.root = s.computeRoot()
	return s, nil
}

// Close flushes and closes the underlying WAL handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.walFile == nil {
		return nil
	}
	err := s.walFile.Close()
	s.walFile = nil
	return err
}

// Get returns the latest committed or staged value for key.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := string(key)
	if _, gone := s.deleted[k]; gone {
		return nil, nil
	}
	if v, ok := s.staged[k]; ok {
		return v, nil
	}
	if v, ok := s.committed[k]; ok {
		return v, nil
	}
	return nil, nil
}

// Put stages a write in the current block's batch.
func (s *Store) Put(key, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	delete(s.deleted, k)
	s.staged[k] = append([]byte(nil), val...)
	return s.appendWAL(opPut, key, val)
}

// Delete stages a deletion in the current block's batch.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	delete(s.staged, k)
	s.deleted[k] = struct{}{}
	return s.appendWAL(opDelete, key, nil)
}

// Has reports whether key has a non-deleted value, staged or committed.
func (s *Store) Has(key []byte) (bool, error) {
	v, err := s.Get(key)
	return v != nil, err
}

// KV is a single key-value pair returned by prefix iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// IterPrefix returns every live (key, value) pair whose key starts with
// prefix, in ascending lexicographic order.
func (s *Store) IterPrefix(prefix []byte) []KV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string][]byte)
	for k, v := range s.committed {
		if hasPrefix(k, prefix) {
			seen[k] = v
		}
	}
	for k, v := range s.staged {
		if hasPrefix(k, prefix) {
			seen[k] = v
		}
	}
	for k := range s.deleted {
		delete(seen, k)
	}
	out := make([]KV, 0, len(seen))
	for k, v := range seen {
		out = append(out, KV{Key: []byte(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out
}

func hasPrefix(s string, prefix []byte) bool {
	if len(s) < len(prefix) {
		return false
	}
	return s[:len(prefix)] == string(prefix)
}

// Batch runs fn against a nested view of the store; if fn returns an error
// every write it staged is rolled back and none of it reaches the block's
// batch. This is how module-level call failures roll back only their own
// writes per the runtime's admission contract.
func (s *Store) Batch(fn func(*Store) error) error {
	s.mu.Lock()
	stagedSnapshot := cloneMap(s.staged)
	deletedSnapshot := cloneSet(s.deleted)
	walEnd := int64(-1)
	if s.walFile != nil {
		if fi, err := s.walFile.Stat(); err == nil {
			walEnd = fi.Size()
		}
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.staged = stagedSnapshot
		s.deleted = deletedSnapshot
		if walEnd >= 0 {
			if terr := s.walFile.Truncate(walEnd); terr != nil {
				return chainerr.New(chainerr.IO, "truncate WAL on rollback: %v", terr)
			}
		}
		return err
	}
	return nil
}

// Commit atomically applies all staged writes, advances the block height,
// and returns the new Merkle root over the full keyspace.
func (s *Store) Commit() ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range s.staged {
		s.committed[k] = v
	}
	for k := range s.deleted {
		delete(s.committed, k)
	}
	s.staged = make(map[string][]byte)
	s.deleted = make(map[string]struct{})
	s.height++
	s.root = s.computeRoot()

	if err := s.appendWAL(opCommit, nil, nil); err != nil {
		return [32]byte{}, err
	}
	logrus.WithFields(logrus.Fields{
		"height": s.height,
		"root":   fmt.Sprintf("%x", s.root),
	}).Info("store committed")
	return s.root, nil
}

// Root returns the Merkle root of the last commit.
func (s *Store) Root() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Height returns the number of commits applied.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

// Snapshot returns a read-only copy of the store at its last committed
// root. Writes against the snapshot are rejected.
type Snapshot struct {
	data map[string][]byte
	root [32]byte
}

// Snapshot captures the currently committed state for read-only reuse.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Snapshot{data: cloneMap(s.committed), root: s.root}
}

// Get reads from the frozen snapshot.
func (sn *Snapshot) Get(key []byte) []byte { return sn.data[string(key)] }

// Root returns the root the snapshot was taken at.
func (sn *Snapshot) Root() [32]byte { return sn.root }

// SaveSnapshot persists the committed state to disk and truncates the WAL,
// mirroring the reference ledger's snapshot/prune cycle.
func (s *Store) SaveSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.snapPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return chainerr.New(chainerr.IO, "open snapshot: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for k, v := range s.committed {
		if err := writeRecord(w, opPut, []byte(k), v); err != nil {
			return chainerr.New(chainerr.IO, "write snapshot: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		return chainerr.New(chainerr.IO, "flush snapshot: %v", err)
	}

	if err := s.walFile.Truncate(0); err != nil {
		return chainerr.New(chainerr.IO, "truncate WAL: %v", err)
	}
	if _, err := s.walFile.Seek(0, 0); err != nil {
		return chainerr.New(chainerr.IO, "seek WAL: %v", err)
	}
	logrus.Infof("snapshot saved to %s; WAL truncated", s.snapPath)
	return nil
}

func cloneMap(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

const (
	opPut byte = iota
	opDelete
	opCommit
)

func (s *Store) appendWAL(op byte, key, val []byte) error {
	if s.walFile == nil {
		return nil
	}
	w := bufio.NewWriter(s.walFile)
	if err := writeRecord(w, op, key, val); err != nil {
		return chainerr.New(chainerr.IO, "append WAL: %v", err)
	}
	return w.Flush()
}

func writeRecord(w *bufio.Writer, op byte, key, val []byte) error {
	if err := w.WriteByte(op); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(key)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(val)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(val)
	return err
}

func (s *Store) loadSnapshot() error {
	f, err := os.Open(s.snapPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return chainerr.New(chainerr.IO, "open snapshot: %v", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		op, key, val, err := readRecord(r)
		if err != nil {
			break
		}
		if op == opPut {
			s.committed[string(key)] = val
		}
	}
	return nil
}

func (s *Store) replayWAL() error {
	if _, err := s.walFile.Seek(0, 0); err != nil {
		return chainerr.New(chainerr.IO, "seek WAL: %v", err)
	}
	r := bufio.NewReader(s.walFile)
	pendingPut := make(map[string][]byte)
	pendingDel := make(map[string]struct{})
	for {
		op, key, val, err := readRecord(r)
		if err != nil {
			break
		}
		switch op {
		case opPut:
			delete(pendingDel, string(key))
			pendingPut[string(key)] = val
		case opDelete:
			delete(pendingPut, string(key))
			pendingDel[string(key)] = struct{}{}
		case opCommit:
			for k, v := range pendingPut {
				s.committed[k] = v
			}
			for k := range pendingDel {
				delete(s.committed, k)
			}
			pendingPut = make(map[string][]byte)
			pendingDel = make(map[string]struct{})
			s.height++
		}
	}
	if _, err := s.walFile.Seek(0, 2); err != nil {
		return chainerr.New(chainerr.IO, "seek WAL end: %v", err)
	}
	return nil
}

func readRecord(r *bufio.Reader) (op byte, key, val []byte, err error) {
	op, err = r.ReadByte()
	if err != nil {
		return 0, nil, nil, err
	}
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, nil, err
	}
	key = make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err = io.ReadFull(r, key); err != nil {
		return 0, nil, nil, err
	}
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, nil, err
	}
	val = make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err = io.ReadFull(r, val); err != nil {
		return 0, nil, nil, err
	}
	return op, key, val, nil
}
