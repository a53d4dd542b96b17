package runtime

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"gamechain/internal/store"
	"gamechain/types"
)

type echoModule struct {
	name       string
	executed   int
	initCalls  int
	finalCalls int
}

func (m *echoModule) Name() string { return m.name }
func (m *echoModule) OnInitialize(height uint64) ([]types.Event, error) {
	m.initCalls++
	return nil, nil
}
func (m *echoModule) OnFinalize(height uint64) ([]types.Event, error) {
	m.finalCalls++
	return nil, nil
}
func (m *echoModule) Execute(call types.Call) ([]types.Event, error) {
	m.executed++
	return []types.Event{{Module: m.name, Name: "Echoed"}}, nil
}

type staticNonces struct{ n map[types.Address]uint64 }

func (s *staticNonces) NonceOf(addr types.Address) uint64 { return s.n[addr] }
func (s *staticNonces) AdvanceNonce(addr types.Address) error {
	s.n[addr]++
	return nil
}

func newTestRuntime(t *testing.T) (*Runtime, *echoModule, ed25519.PrivateKey) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{WALPath: filepath.Join(dir, "wal"), SnapshotPath: filepath.Join(dir, "snap")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := NewRegistry()
	mod := &echoModule{name: "echo"}
	if err := reg.Register(mod); err != nil {
		t.Fatal(err)
	}

	weights := NewWeightTable(Weight{RefTime: 1, ProofSize: 1})
	nonces := &staticNonces{n: make(map[types.Address]uint64)}

	rt := New(Config{
		Store:       st,
		Registry:    reg,
		Weights:     weights,
		Nonces:      nonces,
		BlockBudget: Weight{RefTime: 1000, ProofSize: 1000},
	})

	pub, priv, _ := ed25519.GenerateKey(nil)
	var addr types.Address
	copy(addr[:], pub)
	return rt, mod, priv
}

func signTx(priv ed25519.PrivateKey, addr types.Address, nonce uint64, call types.Call) types.Transaction {
	tx := types.Transaction{Nonce: nonce, Signer: addr, Call: call}
	payload := signedPayload(tx)
	sig := ed25519.Sign(priv, payload)
	copy(tx.Signature[:], sig)
	return tx
}

func TestApplyBlockDispatchesToModule(t *testing.T) {
	rt, mod, priv := newTestRuntime(t)
	var addr types.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))

	tx := signTx(priv, addr, 0, types.Call{Module: "echo", CallIndex: 0})
	res, err := rt.ApplyBlock([]types.Transaction{tx}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 0 {
		t.Fatalf("expected no rejections, got %v", res.Rejected)
	}
	if mod.executed != 1 {
		t.Fatalf("expected module to execute once, got %d", mod.executed)
	}
	if mod.initCalls != 1 || mod.finalCalls != 1 {
		t.Fatalf("expected one init/finalize call each, got %d/%d", mod.initCalls, mod.finalCalls)
	}
}

func TestApplyBlockRejectsBadSignature(t *testing.T) {
	rt, _, priv := newTestRuntime(t)
	var addr types.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))

	tx := signTx(priv, addr, 0, types.Call{Module: "echo", CallIndex: 0})
	tx.Signature[0] ^= 0xFF

	res, err := rt.ApplyBlock([]types.Transaction{tx}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(res.Rejected))
	}
}

func TestApplyBlockRejectsBadNonce(t *testing.T) {
	rt, _, priv := newTestRuntime(t)
	var addr types.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))

	tx := signTx(priv, addr, 5, types.Call{Module: "echo", CallIndex: 0})
	res, err := rt.ApplyBlock([]types.Transaction{tx}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 {
		t.Fatalf("expected nonce mismatch rejection, got %d", len(res.Rejected))
	}
}

func TestApplyBlockUnknownModuleRejected(t *testing.T) {
	rt, _, priv := newTestRuntime(t)
	var addr types.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))

	tx := signTx(priv, addr, 0, types.Call{Module: "nonexistent", CallIndex: 0})
	res, err := rt.ApplyBlock([]types.Transaction{tx}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 {
		t.Fatalf("expected rejection for unknown module")
	}
}

func TestRootAdvancesAcrossBlocks(t *testing.T) {
	rt, _, priv := newTestRuntime(t)
	var addr types.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))

	tx1 := signTx(priv, addr, 0, types.Call{Module: "echo", CallIndex: 0})
	res1, err := rt.ApplyBlock([]types.Transaction{tx1}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	tx2 := signTx(priv, addr, 1, types.Call{Module: "echo", CallIndex: 0})
	res2, err := rt.ApplyBlock([]types.Transaction{tx2}, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Header.ParentHash != res1.Header.Hash() {
		t.Fatalf("expected block 2's parent hash to chain to block 1")
	}
	if rt.Height() != 2 {
		t.Fatalf("expected height 2, got %d", rt.Height())
	}
}
