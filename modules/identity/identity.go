// Package identity implements the username/attestation registry described
// in §4.5: human-readable usernames bound to a primary address, up to ten
// linked accounts, a bounded attestation list, and a short derived "qor
// key". Grounded on original_source/blockchain/pallets/pallet-qor-identity
// (register / link_account / unlink_account / add_attestation /
// generate_qor_key / check_availability), adapted onto the Store façade the
// way core/identity_verification.go adapts a KYC-style record onto the
// reference ledger's account map.
package identity

import (
	"strings"

	"go.uber.org/zap"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "identity"

var log = zap.NewNop().Sugar()

// SetLogger installs the sugared zap logger used for identity lifecycle
// events (registration, suspension). Defaults to a no-op logger.
func SetLogger(l *zap.SugaredLogger) { log = l }

const (
	minUsernameLength = 3
	maxUsernameLength = 20
	maxLinkedAccounts = 10
	maxAttestations   = 32
)

const (
	CallRegister uint8 = iota
	CallLinkAccount
	CallUnlinkAccount
	CallAddAttestation
	CallSuspend
	CallReactivate
)

// Status is the lifecycle state of an identity record.
type Status uint8

const (
	StatusActive Status = iota
	StatusSuspended
)

// AttestationType tags the kind of claim an attestation carries.
type AttestationType uint8

const (
	AttestationKYC AttestationType = iota
	AttestationAgeVerified
	AttestationSocial
	AttestationCustom
)

// Attestation is a third-party claim about an identity, optionally expiring.
type Attestation struct {
	Type      AttestationType
	Issuer    types.Address
	ExpiresAt uint64 // 0 means no expiry
}

// store is the key-value interface the Identity module keeps its records in.
type store interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
	Delete(key []byte) error
}

// Record is a registered identity.
type Record struct {
	Username      string
	Primary       types.Address
	Linked        []types.Address
	Attestations  []Attestation
	Status        Status
}

// QorKey derives the short public identifier for a primary address,
// formatted as "qor1" followed by the first 16 hex characters of
// blake2_256(primary), mirroring generate_qor_key/format_qor_key.
func QorKey(primary types.Address) string {
	h := types.Blake2b256(primary[:])
	return "qor1" + h.Hex()[:16]
}

func normalizeUsername(u string) string { return strings.ToLower(u) }

// ValidateUsername enforces length and character-set bounds.
func ValidateUsername(u string) error {
	if len(u) < minUsernameLength || len(u) > maxUsernameLength {
		return chainerr.New(chainerr.InvalidUsername, "length %d outside [%d,%d]", len(u), minUsernameLength, maxUsernameLength)
	}
	for _, r := range u {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !ok {
			return chainerr.New(chainerr.InvalidUsername, "disallowed character %q", r)
		}
	}
	return nil
}

// Module is the Identity module.
type Module struct {
	store store
}

func New(st store) *Module { return &Module{store: st} }

func (m *Module) Name() string { return moduleName }

func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func usernameKey(u string) []byte {
	return []byte(moduleName + ":byname:" + normalizeUsername(u))
}

func primaryKey(addr types.Address) []byte {
	return append([]byte(moduleName+":byaddr:"), addr[:]...)
}

func (r Record) encode() []byte {
	e := codec.NewEncoder()
	e.PutBytes([]byte(r.Username))
	e.PutFixed(r.Primary[:])
	e.PutCompact(uint64(len(r.Linked)))
	for _, a := range r.Linked {
		e.PutFixed(a[:])
	}
	e.PutCompact(uint64(len(r.Attestations)))
	for _, at := range r.Attestations {
		e.PutUint8(uint8(at.Type))
		e.PutFixed(at.Issuer[:])
		e.PutUint64(at.ExpiresAt)
	}
	e.PutUint8(uint8(r.Status))
	return e.Bytes()
}

func decodeRecord(b []byte) (Record, error) {
	d := codec.NewDecoder(b)
	var r Record
	nameB, err := d.Bytes(maxUsernameLength)
	if err != nil {
		return Record{}, err
	}
	r.Username = string(nameB)
	primaryB, err := d.Fixed(32)
	if err != nil {
		return Record{}, err
	}
	copy(r.Primary[:], primaryB)

	nLinked, err := d.Compact()
	if err != nil {
		return Record{}, err
	}
	if nLinked > maxLinkedAccounts {
		return Record{}, chainerr.New(chainerr.DecodeBound, "linked accounts %d exceeds max", nLinked)
	}
	r.Linked = make([]types.Address, nLinked)
	for i := range r.Linked {
		b, err := d.Fixed(32)
		if err != nil {
			return Record{}, err
		}
		copy(r.Linked[i][:], b)
	}

	nAtt, err := d.Compact()
	if err != nil {
		return Record{}, err
	}
	if nAtt > maxAttestations {
		return Record{}, chainerr.New(chainerr.DecodeBound, "attestations %d exceeds max", nAtt)
	}
	r.Attestations = make([]Attestation, nAtt)
	for i := range r.Attestations {
		t, err := d.Uint8()
		if err != nil {
			return Record{}, err
		}
		issuerB, err := d.Fixed(32)
		if err != nil {
			return Record{}, err
		}
		exp, err := d.Uint64()
		if err != nil {
			return Record{}, err
		}
		r.Attestations[i] = Attestation{Type: AttestationType(t), ExpiresAt: exp}
		copy(r.Attestations[i].Issuer[:], issuerB)
	}

	statusB, err := d.Uint8()
	if err != nil {
		return Record{}, err
	}
	r.Status = Status(statusB)
	return r, nil
}

func (m *Module) save(r Record) error {
	if err := m.store.Put(usernameKey(r.Username), primaryBytesFor(r.Primary)); err != nil {
		return err
	}
	return m.store.Put(primaryKey(r.Primary), r.encode())
}

func primaryBytesFor(addr types.Address) []byte {
	return append([]byte(nil), addr[:]...)
}

// CheckAvailability reports whether username is free to register.
func (m *Module) CheckAvailability(username string) (bool, error) {
	raw, err := m.store.Get(usernameKey(username))
	if err != nil {
		return false, err
	}
	return raw == nil, nil
}

// ByUsername resolves a username to its Record.
func (m *Module) ByUsername(username string) (Record, bool, error) {
	raw, err := m.store.Get(usernameKey(username))
	if err != nil || raw == nil {
		return Record{}, false, err
	}
	var addr types.Address
	copy(addr[:], raw)
	return m.ByAddress(addr)
}

// ByAddress resolves a primary address to its Record.
func (m *Module) ByAddress(addr types.Address) (Record, bool, error) {
	raw, err := m.store.Get(primaryKey(addr))
	if err != nil || raw == nil {
		return Record{}, false, err
	}
	r, err := decodeRecord(raw)
	return r, err == nil, err
}

// Register creates a new identity for primary, rejecting a username that is
// already taken (case-folded) or fails validation.
func (m *Module) Register(primary types.Address, username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	free, err := m.CheckAvailability(username)
	if err != nil {
		return err
	}
	if !free {
		return chainerr.New(chainerr.UsernameTaken, "%s", username)
	}
	if _, exists, err := m.ByAddress(primary); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "identity already registered for address")
	}
	if err := m.save(Record{Username: username, Primary: primary, Status: StatusActive}); err != nil {
		return err
	}
	log.Infow("identity registered", "username", username, "primary", primary.Hex())
	return nil
}

// LinkAccount appends an additional controlled address, bounded by
// maxLinkedAccounts.
func (m *Module) LinkAccount(primary, linked types.Address) error {
	r, ok, err := m.ByAddress(primary)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "no identity for primary address")
	}
	if len(r.Linked) >= maxLinkedAccounts {
		return chainerr.New(chainerr.TooManyLocks, "linked accounts at max %d", maxLinkedAccounts)
	}
	for _, a := range r.Linked {
		if a == linked {
			return chainerr.New(chainerr.AlreadyExists, "account already linked")
		}
	}
	r.Linked = append(r.Linked, linked)
	return m.save(r)
}

// UnlinkAccount removes a previously linked address.
func (m *Module) UnlinkAccount(primary, linked types.Address) error {
	r, ok, err := m.ByAddress(primary)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "no identity for primary address")
	}
	out := r.Linked[:0]
	found := false
	for _, a := range r.Linked {
		if a == linked {
			found = true
			continue
		}
		out = append(out, a)
	}
	if !found {
		return chainerr.New(chainerr.ItemNotFound, "account not linked")
	}
	r.Linked = out
	return m.save(r)
}

// AddAttestation appends a bounded attestation to a primary's identity.
func (m *Module) AddAttestation(primary types.Address, at Attestation) error {
	r, ok, err := m.ByAddress(primary)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "no identity for primary address")
	}
	if len(r.Attestations) >= maxAttestations {
		return chainerr.New(chainerr.TooManyResources, "attestations at max %d", maxAttestations)
	}
	r.Attestations = append(r.Attestations, at)
	return m.save(r)
}

// Suspend marks an identity suspended (privileged operation; authorization
// is the caller's responsibility).
func (m *Module) Suspend(primary types.Address) error {
	r, ok, err := m.ByAddress(primary)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "no identity for primary address")
	}
	r.Status = StatusSuspended
	if err := m.save(r); err != nil {
		return err
	}
	log.Infow("identity suspended", "username", r.Username)
	return nil
}

// Reactivate restores an identity to active status.
func (m *Module) Reactivate(primary types.Address) error {
	r, ok, err := m.ByAddress(primary)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "no identity for primary address")
	}
	r.Status = StatusActive
	return m.save(r)
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallRegister:
		primaryB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		usernameB, err := d.Bytes(maxUsernameLength)
		if err != nil {
			return nil, err
		}
		var primary types.Address
		copy(primary[:], primaryB)
		if err := m.Register(primary, string(usernameB)); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Registered"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "identity call index %d", call.CallIndex)
	}
}
