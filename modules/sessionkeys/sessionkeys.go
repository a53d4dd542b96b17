// Package sessionkeys implements scoped, time-bounded delegated signing
// keys: a player grants a session key permission to call a fixed set of
// (module, call_index) pairs on their behalf, up to an expiry height.
// Grounded on original_source/blockchain/pallets/pallet-session-keys
// (create_session_key / revoke_session_key / is_session_key_valid /
// get_valid_session_key), consumed by the Runtime admission path when a
// transaction's Call carries a SessionKey per §4.7's final paragraph.
package sessionkeys

import (
	"github.com/google/uuid"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "sessionkeys"

const maxPermissions = 32

const (
	CallCreateSessionKey uint8 = iota
	CallRevokeSessionKey
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
	Delete(key []byte) error
}

// Permission scopes a session key to one (module, call_index) pair.
type Permission struct {
	Module    string
	CallIndex uint8
}

// SessionKey is a time-bounded delegated signing key for one owner.
type SessionKey struct {
	ID          types.UUID
	Owner       types.Address
	Delegate    types.Address
	Permissions []Permission
	Expiry      uint64
}

// Module is the Session Keys module.
type Module struct {
	store kv
	clock func() uint64
}

func New(st kv, clock func() uint64) *Module { return &Module{store: st, clock: clock} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func keyKey(id types.UUID) []byte { return append([]byte(moduleName+":key:"), id[:]...) }

func (k SessionKey) encode() []byte {
	e := codec.NewEncoder()
	e.PutFixed(k.ID[:])
	e.PutFixed(k.Owner[:])
	e.PutFixed(k.Delegate[:])
	e.PutCompact(uint64(len(k.Permissions)))
	for _, p := range k.Permissions {
		e.PutBytes([]byte(p.Module))
		e.PutUint8(p.CallIndex)
	}
	e.PutUint64(k.Expiry)
	return e.Bytes()
}

func decodeKey(b []byte) (SessionKey, error) {
	d := codec.NewDecoder(b)
	var k SessionKey
	idB, err := d.Fixed(32)
	if err != nil {
		return SessionKey{}, err
	}
	copy(k.ID[:], idB)
	ownerB, err := d.Fixed(32)
	if err != nil {
		return SessionKey{}, err
	}
	copy(k.Owner[:], ownerB)
	delB, err := d.Fixed(32)
	if err != nil {
		return SessionKey{}, err
	}
	copy(k.Delegate[:], delB)

	n, err := d.Compact()
	if err != nil {
		return SessionKey{}, err
	}
	if n > maxPermissions {
		return SessionKey{}, chainerr.New(chainerr.DecodeBound, "permissions %d exceeds max", n)
	}
	k.Permissions = make([]Permission, n)
	for i := range k.Permissions {
		modB, err := d.Bytes(64)
		if err != nil {
			return SessionKey{}, err
		}
		idx, err := d.Uint8()
		if err != nil {
			return SessionKey{}, err
		}
		k.Permissions[i] = Permission{Module: string(modB), CallIndex: idx}
	}
	if k.Expiry, err = d.Uint64(); err != nil {
		return SessionKey{}, err
	}
	return k, nil
}

func (m *Module) get(id types.UUID) (SessionKey, bool, error) {
	raw, err := m.store.Get(keyKey(id))
	if err != nil || raw == nil {
		return SessionKey{}, false, err
	}
	k, err := decodeKey(raw)
	return k, err == nil, err
}

// CreateSessionKey grants delegate a new session key scoped to
// permissions, bounded by maxPermissions entries.
func (m *Module) CreateSessionKey(owner, delegate types.Address, permissions []Permission, expiry uint64) (types.UUID, error) {
	if len(permissions) == 0 || len(permissions) > maxPermissions {
		return types.UUID{}, chainerr.New(chainerr.DecodeBound, "permissions count %d outside bounds", len(permissions))
	}
	nonce := uuid.New()
	id := types.UUID(types.Blake2b256(owner[:], delegate[:], nonce[:]))
	k := SessionKey{ID: id, Owner: owner, Delegate: delegate, Permissions: permissions, Expiry: expiry}
	return id, m.store.Put(keyKey(id), k.encode())
}

// RevokeSessionKey deletes a session key; only the owner may revoke.
func (m *Module) RevokeSessionKey(owner types.Address, id types.UUID) error {
	k, ok, err := m.get(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "session key not found")
	}
	if k.Owner != owner {
		return chainerr.New(chainerr.NotOwner, "only the owner may revoke a session key")
	}
	return m.store.Delete(keyKey(id))
}

// IsSessionKeyValid reports whether id is unexpired and scoped to allow
// the given (module, callIndex) pair.
func (m *Module) IsSessionKeyValid(id types.UUID, module string, callIndex uint8) (bool, error) {
	k, ok, err := m.get(id)
	if err != nil || !ok {
		return false, err
	}
	if k.Expiry != 0 && k.Expiry <= m.clock() {
		return false, nil
	}
	for _, p := range k.Permissions {
		if p.Module == module && p.CallIndex == callIndex {
			return true, nil
		}
	}
	return false, nil
}

// GetValidSessionKey returns the session key record if it exists and is
// not expired, the authorization check the Runtime performs before
// dispatching a session-key-signed call.
func (m *Module) GetValidSessionKey(id types.UUID) (SessionKey, error) {
	k, ok, err := m.get(id)
	if err != nil {
		return SessionKey{}, err
	}
	if !ok {
		return SessionKey{}, chainerr.New(chainerr.SessionKeyInvalid, "session key not found")
	}
	if k.Expiry != 0 && k.Expiry <= m.clock() {
		return SessionKey{}, chainerr.New(chainerr.SessionKeyInvalid, "session key expired at height %d", k.Expiry)
	}
	return k, nil
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreateSessionKey:
		ownerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		delegateB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		n, err := d.Compact()
		if err != nil {
			return nil, err
		}
		if n > maxPermissions {
			return nil, chainerr.New(chainerr.DecodeBound, "permissions %d exceeds max", n)
		}
		permissions := make([]Permission, n)
		for i := range permissions {
			modB, err := d.Bytes(64)
			if err != nil {
				return nil, err
			}
			idx, err := d.Uint8()
			if err != nil {
				return nil, err
			}
			permissions[i] = Permission{Module: string(modB), CallIndex: idx}
		}
		expiry, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var owner, delegate types.Address
		copy(owner[:], ownerB)
		copy(delegate[:], delegateB)
		if _, err := m.CreateSessionKey(owner, delegate, permissions, expiry); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "SessionKeyCreated"}}, nil
	case CallRevokeSessionKey:
		ownerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		idB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		var owner types.Address
		copy(owner[:], ownerB)
		var id types.UUID
		copy(id[:], idB)
		if err := m.RevokeSessionKey(owner, id); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "SessionKeyRevoked"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "sessionkeys call index %d", call.CallIndex)
	}
}
