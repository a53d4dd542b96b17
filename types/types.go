// Package types holds the wire-level identifiers and envelopes shared by
// every module and the runtime: accounts, block headers, transactions,
// and events. Address is 32 bytes per the data model (a wider identifier
// than the reference ledger's 20-byte EVM-style Address, since this chain
// has no EVM compatibility requirement).
package types

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Address is a 32-byte account identifier.
type Address [32]byte

// Hash is a 32-byte cryptographic digest.
type Hash [32]byte

// UUID is a 32-byte identifier. assets.Mint derives an asset's UUID as
// blake2_256(creator || asset_path || block height); no per-creator nonce
// is mixed in, so a creator minting the same path twice in one block gets
// an AlreadyExists collision. Trade offers and session keys use the same
// type for their own hash-derived IDs.
type UUID [32]byte

func (a Address) Hex() string { return hex.EncodeToString(a[:]) }
func (h Hash) Hex() string    { return hex.EncodeToString(h[:]) }
func (u UUID) Hex() string    { return hex.EncodeToString(u[:]) }

// ParseAddress decodes a hex-encoded 32-byte address.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return Address{}, errInvalidAddress
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

var errInvalidAddress = &invalidErr{"invalid address"}

type invalidErr struct{ msg string }

func (e *invalidErr) Error() string { return e.msg }

// Blake2b256 hashes data with blake2b-256, the hash used throughout the
// data model for UUID derivation and key namespacing.
func Blake2b256(data ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveModuleAccount derives the deterministic treasury/pool account for a
// module: blake2_256("modl" ‖ pallet_id_bytes), matching §4.4's fee-treasury
// derivation and reused by the DEX module for its pool-owned balances.
func DeriveModuleAccount(palletID string) Address {
	h := Blake2b256([]byte("modl"), []byte(palletID))
	var a Address
	copy(a[:], h[:])
	return a
}

// BlockHeader is the canonical block header.
type BlockHeader struct {
	ParentHash     Hash
	Number         uint32
	StateRoot      Hash
	ExtrinsicsRoot Hash
	TimestampMS    uint64
}

// Hash computes the block hash as blake2_256 of the canonical encoding.
// Encoding is deliberately simple/ordered rather than routed through the
// codec package: a header has a small fixed shape and no bounded/variable
// fields, so the compact-varint machinery buys nothing here.
func (h BlockHeader) Hash() Hash {
	buf := make([]byte, 0, 32+4+32+32+8)
	buf = append(buf, h.ParentHash[:]...)
	buf = appendUint32(buf, h.Number)
	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.ExtrinsicsRoot[:]...)
	buf = appendUint64(buf, h.TimestampMS)
	return Blake2b256(buf)
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

// Call is a module-tagged operation: the module it targets and the
// call-specific encoded payload (decoded per §4.1's tagged-sum scheme).
type Call struct {
	Module     string
	CallIndex  uint8
	Payload    []byte
	SessionKey *UUID // set when dispatched via a delegated session key
}

// Transaction is a signed envelope around a Call.
type Transaction struct {
	Nonce     uint64
	Signer    Address
	Signature [64]byte
	Call      Call
}

// Event is a module-emitted, per-block-indexed fact. Events do not affect
// the state root; they are collected into a per-block journal.
type Event struct {
	Module string
	Name   string
	Fields map[string]string
	Pos    uint64
}
