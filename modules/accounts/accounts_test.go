package accounts

import (
	"path/filepath"
	"testing"

	"gamechain/internal/chainerr"
	"gamechain/internal/store"
	"gamechain/types"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{WALPath: filepath.Join(dir, "wal"), SnapshotPath: filepath.Join(dir, "snap")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 1, 1_000_000, FeeConfig{})
}

func addrN(n byte) types.Address {
	var a types.Address
	a[0] = n
	return a
}

func TestAccountEncodeDecodeRoundTrip(t *testing.T) {
	a := Account{Nonce: 7, Free: 100, Reserved: 5, Locks: []Lock{{ID: [8]byte{1}, Amount: 3}}}
	got, err := DecodeAccount(a.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Nonce != a.Nonce || got.Free != a.Free || got.Reserved != a.Reserved || len(got.Locks) != 1 {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, a)
	}
}

func TestTransferMovesBalance(t *testing.T) {
	m := newTestModule(t)
	alice, bob := addrN(1), addrN(2)
	if err := m.Mint(alice, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.Transfer(alice, bob, 400); err != nil {
		t.Fatal(err)
	}
	a, _ := m.Get(alice)
	b, _ := m.Get(bob)
	if a.Free != 600 || b.Free != 400 {
		t.Fatalf("unexpected balances alice=%d bob=%d", a.Free, b.Free)
	}
}

func TestTransferRejectsSelf(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Mint(alice, 100); err != nil {
		t.Fatal(err)
	}
	err := m.Transfer(alice, alice, 10)
	if !chainerr.Is(err, chainerr.SelfTransfer) {
		t.Fatalf("expected SelfTransfer error, got %v", err)
	}
}

func TestTransferEnforcesExistentialDeposit(t *testing.T) {
	m := newTestModule(t)
	alice, bob := addrN(1), addrN(2)
	if err := m.Mint(alice, 10); err != nil {
		t.Fatal(err)
	}
	// With ED 1 every nonzero remainder is allowed, so use a module with
	// ED 5 over the same store. Both mints credit the same account, so
	// alice holds 20; transferring 18 leaves 2, nonzero and below the ED.
	m2 := New(m.store, 5, 1_000_000, FeeConfig{})
	if err := m2.Mint(alice, 10); err != nil {
		t.Fatal(err)
	}
	err := m2.Transfer(alice, bob, 18)
	if !chainerr.Is(err, chainerr.ExistentialDeposit) {
		t.Fatalf("expected ExistentialDeposit error, got %v", err)
	}
}

func TestTransferFeeSplitsBurnAndTreasury(t *testing.T) {
	st := newTestModule(t).store
	m := New(st, 1, 1_000_000, FeeConfig{FlatFee: 100})
	alice, bob := addrN(1), addrN(2)
	if err := m.Mint(alice, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.Transfer(alice, bob, 400); err != nil {
		t.Fatal(err)
	}
	a, _ := m.Get(alice)
	if a.Free != 1000-400-100 {
		t.Fatalf("expected sender debited amount+fee, got %d", a.Free)
	}
	treasury, _ := m.Get(m.treasury)
	if treasury.Free != 20 { // 20% of 100
		t.Fatalf("expected treasury credited 20, got %d", treasury.Free)
	}
}

func TestReserveUnreserveRoundTrip(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Mint(alice, 100); err != nil {
		t.Fatal(err)
	}
	if err := m.Reserve(alice, 40); err != nil {
		t.Fatal(err)
	}
	mid, _ := m.Get(alice)
	if mid.Free != 60 || mid.Reserved != 40 {
		t.Fatalf("unexpected mid state %+v", mid)
	}
	if err := m.Unreserve(alice, 40); err != nil {
		t.Fatal(err)
	}
	final, _ := m.Get(alice)
	if final.Free != 100 || final.Reserved != 0 {
		t.Fatalf("expected full round trip, got %+v", final)
	}
}

func TestMintRespectsSupplyCap(t *testing.T) {
	m := New(newTestModule(t).store, 1, 500, FeeConfig{})
	if err := m.Mint(addrN(1), 500); err != nil {
		t.Fatal(err)
	}
	err := m.Mint(addrN(2), 1)
	if !chainerr.Is(err, chainerr.Overflow) {
		t.Fatalf("expected Overflow error at supply cap, got %v", err)
	}
}

func TestApplyGenesisValidatesSum(t *testing.T) {
	m := New(newTestModule(t).store, 1, 100, FeeConfig{})
	err := ApplyGenesis(m, map[types.Address]uint64{addrN(1): 60, addrN(2): 60})
	if !chainerr.Is(err, chainerr.Overflow) {
		t.Fatalf("expected genesis sum overflow, got %v", err)
	}
}

func TestApplyGenesisSeedsBalances(t *testing.T) {
	m := newTestModule(t)
	err := ApplyGenesis(m, map[types.Address]uint64{addrN(1): 30, addrN(2): 70})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := m.Get(addrN(1))
	b, _ := m.Get(addrN(2))
	if a.Free != 30 || b.Free != 70 {
		t.Fatalf("unexpected genesis balances a=%d b=%d", a.Free, b.Free)
	}
	supply, _ := m.TotalSupply()
	if supply != 100 {
		t.Fatalf("expected total supply 100, got %d", supply)
	}
}

func TestNonceSourceInterface(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if m.NonceOf(alice) != 0 {
		t.Fatalf("expected initial nonce 0")
	}
	if err := m.AdvanceNonce(alice); err != nil {
		t.Fatal(err)
	}
	if m.NonceOf(alice) != 1 {
		t.Fatalf("expected nonce 1 after advance")
	}
}
