// Package consensus provides the validator-set bookkeeping and block
// proposer selection that sits above the runtime's deterministic state
// transition. It is deliberately thin: the actual block production and
// gossip loop are external-collaborator concerns (out of scope per the
// system overview's P2P/consensus networking boundary); this package only
// owns the on-chain validator registry and a pluggable selection
// strategy, grounded on core/staking_node.go's stake-weighted validator
// bookkeeping and original_source's consensus framework description.
package consensus

import (
	"sort"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "consensus"

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// Validator is a registered block producer and its stake.
type Validator struct {
	Address types.Address
	Stake   uint64
}

func validatorKey(addr types.Address) []byte {
	return append([]byte(moduleName+":validator:"), addr[:]...)
}

func (v Validator) encode() []byte {
	e := codec.NewEncoder()
	e.PutFixed(v.Address[:])
	e.PutUint64(v.Stake)
	return e.Bytes()
}

func decodeValidator(b []byte) (Validator, error) {
	d := codec.NewDecoder(b)
	var v Validator
	addrB, err := d.Fixed(32)
	if err != nil {
		return Validator{}, err
	}
	copy(v.Address[:], addrB)
	if v.Stake, err = d.Uint64(); err != nil {
		return Validator{}, err
	}
	return v, nil
}

// ValidatorSet is the Store-backed registry of active block producers.
type ValidatorSet struct {
	store kv
}

func NewValidatorSet(st kv) *ValidatorSet { return &ValidatorSet{store: st} }

func (vs *ValidatorSet) get(addr types.Address) (Validator, bool, error) {
	raw, err := vs.store.Get(validatorKey(addr))
	if err != nil || raw == nil {
		return Validator{}, false, err
	}
	v, err := decodeValidator(raw)
	return v, err == nil, err
}

func (vs *ValidatorSet) put(v Validator) error {
	return vs.store.Put(validatorKey(v.Address), v.encode())
}

// RegisterValidator enrolls addr with zero stake; it is an error to
// register the same address twice.
func (vs *ValidatorSet) RegisterValidator(addr types.Address) error {
	if _, exists, err := vs.get(addr); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "validator already registered")
	}
	return vs.put(Validator{Address: addr})
}

// Stake increases a registered validator's stake.
func (vs *ValidatorSet) Stake(addr types.Address, amount uint64) error {
	v, ok, err := vs.get(addr)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "validator not registered")
	}
	v.Stake += amount
	return vs.put(v)
}

// Unstake decreases a registered validator's stake.
func (vs *ValidatorSet) Unstake(addr types.Address, amount uint64) error {
	v, ok, err := vs.get(addr)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "validator not registered")
	}
	if v.Stake < amount {
		return chainerr.New(chainerr.InsufficientBalance, "stake %d below %d", v.Stake, amount)
	}
	v.Stake -= amount
	return vs.put(v)
}

// Active returns the validators among addresses that are registered with
// non-zero stake, sorted by address for deterministic iteration.
func (vs *ValidatorSet) Active(addresses []types.Address) ([]Validator, error) {
	out := make([]Validator, 0, len(addresses))
	for _, addr := range addresses {
		v, ok, err := vs.get(addr)
		if err != nil {
			return nil, err
		}
		if ok && v.Stake > 0 {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Hex() < out[j].Address.Hex() })
	return out, nil
}

// ProposerSelector picks the block proposer for a given height from the
// active validator set. Implementations are pluggable so a
// stake-weighted or VRF-based selector can replace the default without
// touching the runtime.
type ProposerSelector interface {
	SelectProposer(height uint64, active []Validator) (types.Address, error)
}

// RoundRobin selects proposers by height modulo the active set size,
// sorted by address for determinism across nodes with the same
// ValidatorSet contents.
type RoundRobin struct{}

func (RoundRobin) SelectProposer(height uint64, active []Validator) (types.Address, error) {
	if len(active) == 0 {
		return types.Address{}, chainerr.New(chainerr.ItemNotFound, "no active validators")
	}
	return active[height%uint64(len(active))].Address, nil
}
