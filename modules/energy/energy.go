// Package energy implements per-account, per-energy-type resource pools
// that regenerate lazily: capacity and regen rate are fixed at creation,
// and the current value is only recomputed when read or consumed, rather
// than advanced every block. Grounded on
// original_source/blockchain/pallets/pallet-energy (create_energy_type /
// consume_energy / get_energy / regenerate_energy_for_account) and §4.7's
// regeneration formula.
package energy

import (
	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "energy"

const maxEnergyNameLength = 32

const (
	CallCreateEnergyType uint8 = iota
	CallRegenerateEnergyForAccount
	CallConsumeEnergy
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// EnergyType is an immutable, chain-wide energy pool definition.
type EnergyType struct {
	ID            uint64
	Name          string
	Capacity      uint64
	RegenPerBlock uint64
}

// EnergyState is the per-account state for one energy type, recording the
// value and block height as of the last update; regeneration is computed
// lazily on read via currentEnergy.
type EnergyState struct {
	Current         uint64
	LastUpdateBlock uint64
}

// Module is the Energy module.
type Module struct {
	store kv
	clock func() uint64
}

func New(st kv, clock func() uint64) *Module { return &Module{store: st, clock: clock} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func typeKey(id uint64) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append([]byte(moduleName+":type:"), e.Bytes()...)
}

func stateKey(id uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":state:"), e.Bytes()...), addr[:]...)
}

func (t EnergyType) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(t.ID)
	e.PutBytes([]byte(t.Name))
	e.PutUint64(t.Capacity)
	e.PutUint64(t.RegenPerBlock)
	return e.Bytes()
}

func decodeType(b []byte) (EnergyType, error) {
	d := codec.NewDecoder(b)
	var t EnergyType
	var err error
	if t.ID, err = d.Uint64(); err != nil {
		return EnergyType{}, err
	}
	nameB, err := d.Bytes(maxEnergyNameLength)
	if err != nil {
		return EnergyType{}, err
	}
	t.Name = string(nameB)
	if t.Capacity, err = d.Uint64(); err != nil {
		return EnergyType{}, err
	}
	if t.RegenPerBlock, err = d.Uint64(); err != nil {
		return EnergyType{}, err
	}
	return t, nil
}

func (m *Module) getType(id uint64) (EnergyType, bool, error) {
	raw, err := m.store.Get(typeKey(id))
	if err != nil || raw == nil {
		return EnergyType{}, false, err
	}
	t, err := decodeType(raw)
	return t, err == nil, err
}

// CreateEnergyType registers a new energy pool definition.
func (m *Module) CreateEnergyType(id uint64, name string, capacity, regenPerBlock uint64) error {
	if len(name) == 0 || len(name) > maxEnergyNameLength {
		return chainerr.New(chainerr.InvalidUsername, "energy type name length %d outside bounds", len(name))
	}
	if _, exists, err := m.getType(id); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "energy type %d already exists", id)
	}
	return m.store.Put(typeKey(id), EnergyType{ID: id, Name: name, Capacity: capacity, RegenPerBlock: regenPerBlock}.encode())
}

func (s EnergyState) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(s.Current)
	e.PutUint64(s.LastUpdateBlock)
	return e.Bytes()
}

func decodeState(b []byte) (EnergyState, error) {
	d := codec.NewDecoder(b)
	var s EnergyState
	var err error
	if s.Current, err = d.Uint64(); err != nil {
		return EnergyState{}, err
	}
	if s.LastUpdateBlock, err = d.Uint64(); err != nil {
		return EnergyState{}, err
	}
	return s, nil
}

func (m *Module) getState(id uint64, addr types.Address) (EnergyState, bool, error) {
	raw, err := m.store.Get(stateKey(id, addr))
	if err != nil || raw == nil {
		return EnergyState{}, false, err
	}
	s, err := decodeState(raw)
	return s, err == nil, err
}

func (m *Module) putState(id uint64, addr types.Address, s EnergyState) error {
	return m.store.Put(stateKey(id, addr), s.encode())
}

// currentEnergy computes current := min(cap, current + regen_per_block *
// (block - last_update)), seeding a fresh account at full capacity.
func (m *Module) currentEnergy(t EnergyType, addr types.Address) (EnergyState, error) {
	s, exists, err := m.getState(t.ID, addr)
	if err != nil {
		return EnergyState{}, err
	}
	now := m.clock()
	if !exists {
		return EnergyState{Current: t.Capacity, LastUpdateBlock: now}, nil
	}
	if now <= s.LastUpdateBlock {
		return s, nil
	}
	elapsed := now - s.LastUpdateBlock
	regen := t.RegenPerBlock * elapsed
	next := s.Current + regen
	if next > t.Capacity || next < s.Current { // clamp + overflow guard
		next = t.Capacity
	}
	return EnergyState{Current: next, LastUpdateBlock: now}, nil
}

// GetEnergy returns the lazily-regenerated current energy without
// persisting the recomputed state.
func (m *Module) GetEnergy(id uint64, addr types.Address) (uint64, error) {
	t, ok, err := m.getType(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, chainerr.New(chainerr.ItemNotFound, "energy type %d not found", id)
	}
	s, err := m.currentEnergy(t, addr)
	if err != nil {
		return 0, err
	}
	return s.Current, nil
}

// RegenerateEnergyForAccount forces the lazy regeneration to be persisted,
// used by callers that want the stored state to reflect the current block
// without a consume alongside it.
func (m *Module) RegenerateEnergyForAccount(id uint64, addr types.Address) error {
	t, ok, err := m.getType(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "energy type %d not found", id)
	}
	s, err := m.currentEnergy(t, addr)
	if err != nil {
		return err
	}
	return m.putState(id, addr, s)
}

// ConsumeEnergy regenerates then debits amount, failing if insufficient.
func (m *Module) ConsumeEnergy(id uint64, addr types.Address, amount uint64) error {
	t, ok, err := m.getType(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "energy type %d not found", id)
	}
	s, err := m.currentEnergy(t, addr)
	if err != nil {
		return err
	}
	if s.Current < amount {
		return chainerr.New(chainerr.InsufficientEnergy, "current %d below %d", s.Current, amount)
	}
	s.Current -= amount
	return m.putState(id, addr, s)
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreateEnergyType:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		nameB, err := d.Bytes(maxEnergyNameLength)
		if err != nil {
			return nil, err
		}
		capacity, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		regen, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if err := m.CreateEnergyType(id, string(nameB), capacity, regen); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "EnergyTypeCreated"}}, nil
	case CallRegenerateEnergyForAccount:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		addrB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		var addr types.Address
		copy(addr[:], addrB)
		if err := m.RegenerateEnergyForAccount(id, addr); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "EnergyRegenerated"}}, nil
	case CallConsumeEnergy:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		addrB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var addr types.Address
		copy(addr[:], addrB)
		if err := m.ConsumeEnergy(id, addr, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "EnergyConsumed"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "energy call index %d", call.CallIndex)
	}
}
