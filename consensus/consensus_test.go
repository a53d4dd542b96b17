package consensus

import (
	"path/filepath"
	"testing"

	"gamechain/internal/chainerr"
	"gamechain/internal/store"
	"gamechain/types"
)

func newTestSet(t *testing.T) *ValidatorSet {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(store.Config{WALPath: filepath.Join(dir, "wal"), SnapshotPath: filepath.Join(dir, "snap")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewValidatorSet(st)
}

func addrN(n byte) types.Address {
	var a types.Address
	a[0] = n
	return a
}

func TestRegisterStakeUnstake(t *testing.T) {
	vs := newTestSet(t)
	v := addrN(1)
	if err := vs.RegisterValidator(v); err != nil {
		t.Fatal(err)
	}
	if err := vs.Stake(v, 100); err != nil {
		t.Fatal(err)
	}
	if err := vs.Unstake(v, 40); err != nil {
		t.Fatal(err)
	}
	active, err := vs.Active([]types.Address{v})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Stake != 60 {
		t.Fatalf("unexpected active set %+v", active)
	}
}

func TestUnstakeInsufficientFails(t *testing.T) {
	vs := newTestSet(t)
	v := addrN(1)
	if err := vs.RegisterValidator(v); err != nil {
		t.Fatal(err)
	}
	err := vs.Unstake(v, 10)
	if !chainerr.Is(err, chainerr.InsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

func TestRoundRobinSelection(t *testing.T) {
	vs := newTestSet(t)
	addrs := []types.Address{addrN(3), addrN(1), addrN(2)}
	for _, a := range addrs {
		if err := vs.RegisterValidator(a); err != nil {
			t.Fatal(err)
		}
		if err := vs.Stake(a, 10); err != nil {
			t.Fatal(err)
		}
	}
	active, err := vs.Active(addrs)
	if err != nil {
		t.Fatal(err)
	}
	sel := RoundRobin{}
	for h := uint64(0); h < uint64(len(active))*2; h++ {
		proposer, err := sel.SelectProposer(h, active)
		if err != nil {
			t.Fatal(err)
		}
		expected := active[h%uint64(len(active))].Address
		if proposer != expected {
			t.Fatalf("height %d: expected %v, got %v", h, expected, proposer)
		}
	}
}

func TestSelectProposerNoActiveValidators(t *testing.T) {
	sel := RoundRobin{}
	_, err := sel.SelectProposer(0, nil)
	if !chainerr.Is(err, chainerr.ItemNotFound) {
		t.Fatalf("expected ItemNotFound with no active validators, got %v", err)
	}
}
