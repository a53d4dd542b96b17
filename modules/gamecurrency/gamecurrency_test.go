package gamecurrency

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
	return New(st)
}

func addrN(n byte) types.Address {
	var a types.Address
	a[0] = n
	return a
}

func TestCreateMintTransferBurn(t *testing.T) {
	m := newTestModule(t)
	issuer, alice, bob := addrN(1), addrN(2), addrN(3)
	if err := m.CreateCurrency(1, issuer, "Gold", 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.Mint(issuer, 1, alice, 500); err != nil {
		t.Fatal(err)
	}
	if err := m.Transfer(1, alice, bob, 200); err != nil {
		t.Fatal(err)
	}
	aliceBal, _ := m.BalanceOf(1, alice)
	bobBal, _ := m.BalanceOf(1, bob)
	if aliceBal != 300 || bobBal != 200 {
		t.Fatalf("unexpected balances alice=%d bob=%d", aliceBal, bobBal)
	}
	if err := m.Burn(issuer, 1, bob, 100); err != nil {
		t.Fatal(err)
	}
	bobBal, _ = m.BalanceOf(1, bob)
	if bobBal != 100 {
		t.Fatalf("expected burn to debit bob, got %d", bobBal)
	}
}

func TestMintRespectsSupplyCap(t *testing.T) {
	m := newTestModule(t)
	issuer, alice := addrN(1), addrN(2)
	if err := m.CreateCurrency(1, issuer, "Gold", 100); err != nil {
		t.Fatal(err)
	}
	if err := m.Mint(issuer, 1, alice, 100); err != nil {
		t.Fatal(err)
	}
	err := m.Mint(issuer, 1, alice, 1)
	if !chainerr.Is(err, chainerr.Overflow) {
		t.Fatalf("expected Overflow at supply cap, got %v", err)
	}
}

func TestMintRequiresIssuer(t *testing.T) {
	m := newTestModule(t)
	issuer, impostor, alice := addrN(1), addrN(9), addrN(2)
	if err := m.CreateCurrency(1, issuer, "Gold", 0); err != nil {
		t.Fatal(err)
	}
	err := m.Mint(impostor, 1, alice, 10)
	if !chainerr.Is(err, chainerr.NotOwner) {
		t.Fatalf("expected NotOwner for non-issuer mint, got %v", err)
	}
}

func TestStakeFeelessRoundTrip(t *testing.T) {
	m := newTestModule(t)
	issuer, alice := addrN(1), addrN(2)
	if err := m.CreateCurrency(1, issuer, "Gold", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.Mint(issuer, 1, alice, 100); err != nil {
		t.Fatal(err)
	}
	if err := m.StakeFeeless(alice, 1, 40); err != nil {
		t.Fatal(err)
	}
	bal, _ := m.BalanceOf(1, alice)
	if bal != 60 {
		t.Fatalf("expected 60 free after staking 40, got %d", bal)
	}
	if err := m.UnstakeFeeless(alice, 1, 40); err != nil {
		t.Fatal(err)
	}
	bal, _ = m.BalanceOf(1, alice)
	if bal != 100 {
		t.Fatalf("expected full balance restored after unstake, got %d", bal)
	}
}

func TestSponsorTransaction(t *testing.T) {
	m := newTestModule(t)
	sponsor, beneficiary := addrN(1), addrN(2)
	if err := m.SponsorTransaction(sponsor, beneficiary, 500); err != nil {
		t.Fatal(err)
	}
	info, ok, err := m.SponsorshipFor(beneficiary)
	if err != nil || !ok {
		t.Fatalf("expected sponsorship found, err=%v", err)
	}
	if info.Sponsor != sponsor || info.Remaining != 500 {
		t.Fatalf("unexpected sponsorship info %+v", info)
	}
}
