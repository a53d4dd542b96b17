package energy

import (
	"path/filepath"
	"testing"

	"gamechain/internal/chainerr"
	"gamechain/internal/store"
	"gamechain/types"
)

func newTestModule(t *testing.T, height *uint64) *Module {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{WALPath: filepath.Join(dir, "wal"), SnapshotPath: filepath.Join(dir, "snap")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, func() uint64 { return *height })
}

func addrN(n byte) types.Address {
	var a types.Address
	a[0] = n
	return a
}

func TestFreshAccountStartsAtCapacity(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	if err := m.CreateEnergyType(1, "Stamina", 100, 5); err != nil {
		t.Fatal(err)
	}
	cur, err := m.GetEnergy(1, addrN(1))
	if err != nil {
		t.Fatal(err)
	}
	if cur != 100 {
		t.Fatalf("expected fresh account at full capacity, got %d", cur)
	}
}

func TestConsumeThenLazyRegenerate(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	alice := addrN(1)
	if err := m.CreateEnergyType(1, "Stamina", 100, 10); err != nil {
		t.Fatal(err)
	}
	if err := m.ConsumeEnergy(1, alice, 60); err != nil {
		t.Fatal(err)
	}
	cur, _ := m.GetEnergy(1, alice)
	if cur != 40 {
		t.Fatalf("expected 40 after consuming 60, got %d", cur)
	}
	h = 4 // 3 blocks elapsed, regen 10/block = 30
	cur, _ = m.GetEnergy(1, alice)
	if cur != 70 {
		t.Fatalf("expected lazy regen to 70 after 3 blocks, got %d", cur)
	}
}

func TestRegenClampsToCapacity(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	alice := addrN(1)
	if err := m.CreateEnergyType(1, "Stamina", 100, 50); err != nil {
		t.Fatal(err)
	}
	if err := m.ConsumeEnergy(1, alice, 90); err != nil {
		t.Fatal(err)
	}
	h = 100
	cur, _ := m.GetEnergy(1, alice)
	if cur != 100 {
		t.Fatalf("expected regen to clamp at capacity 100, got %d", cur)
	}
}

func TestConsumeInsufficientEnergy(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	alice := addrN(1)
	if err := m.CreateEnergyType(1, "Stamina", 10, 0); err != nil {
		t.Fatal(err)
	}
	err := m.ConsumeEnergy(1, alice, 20)
	if !chainerr.Is(err, chainerr.InsufficientEnergy) {
		t.Fatalf("expected InsufficientEnergy, got %v", err)
	}
}
