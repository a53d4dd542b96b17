// Package runtime drives the block lifecycle: admission, dispatch, and
// commit. It owns no business logic of its own beyond the contract in
// §4.3 — begin block (on_initialize in registration order), apply
// transactions (validate, dispatch by module tag, roll back failed calls),
// end block (on_finalize in reverse order), commit (advance the Store and
// report the new root).
package runtime

import (
	"crypto/ed25519"
	"sync"

	"github.com/sirupsen/logrus"

	"gamechain/internal/chainerr"
	"gamechain/internal/store"
	"gamechain/types"
)

// NonceSource tracks per-account nonces so the Runtime can reject replayed
// or out-of-order transactions at admission, before any module runs.
type NonceSource interface {
	NonceOf(addr types.Address) uint64
	// AdvanceNonce is called by the Runtime after an admitted transaction's
	// call has executed without error; a call that fails in dispatch leaves
	// the nonce unchanged. The Accounts module is the canonical nonce owner.
	AdvanceNonce(addr types.Address) error
}

// SessionKeyChecker authorizes a call dispatched on behalf of a delegated
// session key, scoping it to the (module, call_index) pairs the key's
// owner granted. A nil checker rejects every session-key-tagged call.
type SessionKeyChecker interface {
	IsSessionKeyValid(id types.UUID, module string, callIndex uint8) (bool, error)
}

// Runtime sequences block execution against a shared Store and Registry.
type Runtime struct {
	mu       sync.Mutex
	store       *store.Store
	registry    *Registry
	weights     *WeightTable
	nonces      NonceSource
	sessionKeys SessionKeyChecker

	height       uint64
	blockBudget  Weight
	parentHash   types.Hash
	eventPos     uint64
}

// Config wires a Runtime's collaborators.
type Config struct {
	Store       *store.Store
	Registry    *Registry
	Weights     *WeightTable
	Nonces      NonceSource
	SessionKeys SessionKeyChecker
	BlockBudget Weight
}

// New constructs a Runtime ready to execute blocks starting at the Store's
// current height.
func New(cfg Config) *Runtime {
	return &Runtime{
		store:       cfg.Store,
		registry:    cfg.Registry,
		weights:     cfg.Weights,
		nonces:      cfg.Nonces,
		sessionKeys: cfg.SessionKeys,
		height:      cfg.Store.Height(),
		blockBudget: cfg.BlockBudget,
	}
}

// BlockResult summarizes one ApplyBlock call.
type BlockResult struct {
	Header    types.BlockHeader
	Events    []types.Event
	Rejected  []TxRejection
}

// TxRejection records a transaction that failed admission or dispatch.
type TxRejection struct {
	Index int
	Err   error
}

// ApplyBlock executes begin/apply/end/commit for one block of transactions
// signed with Ed25519 over the canonical encoding of everything but the
// signature itself (verification keys are the signer address bytes).
func (rt *Runtime) ApplyBlock(txs []types.Transaction, timestampMS uint64) (*BlockResult, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	height := rt.height + 1
	var events []types.Event
	var rejections []TxRejection
	var applied []types.Transaction
	spent := Weight{}

	for _, m := range rt.registry.InOrder() {
		evs, err := m.OnInitialize(height)
		if err != nil {
			return nil, chainerr.New(chainerr.UnknownModule, "on_initialize %s: %v", m.Name(), err)
		}
		events = append(events, rt.tagEvents(evs)...)
	}

	for i, tx := range txs {
		if err := rt.admit(tx, spent); err != nil {
			rejections = append(rejections, TxRejection{Index: i, Err: err})
			continue
		}
		w := rt.weights.Lookup(tx.Call.Module, tx.Call.CallIndex)
		spent = spent.Add(w)

		m, ok := rt.registry.Lookup(tx.Call.Module)
		if !ok {
			rejections = append(rejections, TxRejection{Index: i, Err: chainerr.New(chainerr.UnknownModule, "%s", tx.Call.Module)})
			continue
		}

		var evs []types.Event
		err := rt.store.Batch(func(_ *store.Store) error {
			var execErr error
			evs, execErr = m.Execute(tx.Call)
			return execErr
		})
		if err != nil {
			rejections = append(rejections, TxRejection{Index: i, Err: err})
			continue
		}
		if err := rt.nonces.AdvanceNonce(tx.Signer); err != nil {
			rejections = append(rejections, TxRejection{Index: i, Err: err})
			continue
		}
		events = append(events, rt.tagEvents(evs)...)
		applied = append(applied, tx)
	}

	for _, m := range rt.registry.InReverseOrder() {
		evs, err := m.OnFinalize(height)
		if err != nil {
			return nil, chainerr.New(chainerr.UnknownModule, "on_finalize %s: %v", m.Name(), err)
		}
		events = append(events, rt.tagEvents(evs)...)
	}

	root, err := rt.store.Commit()
	if err != nil {
		return nil, err
	}
	header := types.BlockHeader{
		ParentHash:     rt.parentHash,
		Number:         uint32(height),
		StateRoot:      root,
		ExtrinsicsRoot: extrinsicsRoot(applied),
		TimestampMS:    timestampMS,
	}
	rt.height = height
	rt.parentHash = header.Hash()

	logrus.WithFields(logrus.Fields{
		"height":    height,
		"applied":   len(txs) - len(rejections),
		"rejected":  len(rejections),
	}).Info("block applied")

	return &BlockResult{Header: header, Events: events, Rejected: rejections}, nil
}

func (rt *Runtime) tagEvents(evs []types.Event) []types.Event {
	out := make([]types.Event, len(evs))
	for i, e := range evs {
		e.Pos = rt.eventPos
		rt.eventPos++
		out[i] = e
	}
	return out
}

// admit performs admission checks before any module runs: signature,
// nonce, and remaining block weight budget.
func (rt *Runtime) admit(tx types.Transaction, spent Weight) error {
	if !verifySignature(tx) {
		return chainerr.New(chainerr.BadSignature, "signature verification failed")
	}
	if tx.Nonce != rt.nonces.NonceOf(tx.Signer) {
		return chainerr.New(chainerr.BadNonce, "expected %d, got %d", rt.nonces.NonceOf(tx.Signer), tx.Nonce)
	}
	w := rt.weights.Lookup(tx.Call.Module, tx.Call.CallIndex)
	if !spent.Add(w).LessOrEqual(rt.blockBudget) {
		return chainerr.New(chainerr.BlockFull, "remaining budget exceeded")
	}
	if _, ok := rt.registry.Lookup(tx.Call.Module); !ok {
		return chainerr.New(chainerr.UnknownModule, "%s", tx.Call.Module)
	}
	if tx.Call.SessionKey != nil {
		if rt.sessionKeys == nil {
			return chainerr.New(chainerr.SessionKeyInvalid, "no session key authority configured")
		}
		valid, err := rt.sessionKeys.IsSessionKeyValid(*tx.Call.SessionKey, tx.Call.Module, tx.Call.CallIndex)
		if err != nil {
			return err
		}
		if !valid {
			return chainerr.New(chainerr.SessionKeyInvalid, "session key not scoped to %s/%d", tx.Call.Module, tx.Call.CallIndex)
		}
	}
	return nil
}

func verifySignature(tx types.Transaction) bool {
	payload := signedPayload(tx)
	return ed25519.Verify(tx.Signer[:], payload, tx.Signature[:])
}

// signedPayload reproduces the canonical encoding covered by the
// signature: everything in the transaction except the signature itself.
func signedPayload(tx types.Transaction) []byte {
	buf := make([]byte, 0, 8+32+len(tx.Call.Module)+len(tx.Call.Payload)+1)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(tx.Nonce>>(8*i)))
	}
	buf = append(buf, tx.Signer[:]...)
	buf = append(buf, tx.Call.Module...)
	buf = append(buf, tx.Call.CallIndex)
	buf = append(buf, tx.Call.Payload...)
	if tx.Call.SessionKey != nil {
		buf = append(buf, tx.Call.SessionKey[:]...)
	}
	return buf
}

// extrinsicsRoot builds a binary Merkle tree over the applied transactions
// in block order, leaf-hashing each transaction's signed payload and
// folding pairwise up to a single root, mirroring internal/store's
// keyspace Merkle root so both state and extrinsics commit the same way.
func extrinsicsRoot(txs []types.Transaction) types.Hash {
	if len(txs) == 0 {
		return types.Blake2b256(nil)
	}
	level := make([]types.Hash, len(txs))
	for i, tx := range txs {
		level[i] = types.Blake2b256(signedPayload(tx))
	}
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, types.Blake2b256(level[i][:], level[i+1][:]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// Height returns the last committed block height.
func (rt *Runtime) Height() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.height
}
