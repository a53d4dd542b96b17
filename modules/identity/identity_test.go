package identity

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

func TestRegisterAndLookup(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Register(alice, "Alice_01"); err != nil {
		t.Fatal(err)
	}
	r, ok, err := m.ByAddress(alice)
	if err != nil || !ok {
		t.Fatalf("expected identity found, err=%v", err)
	}
	if r.Username != "Alice_01" {
		t.Fatalf("unexpected username %q", r.Username)
	}
	byName, ok, err := m.ByUsername("alice_01")
	if err != nil || !ok {
		t.Fatalf("expected case-insensitive lookup to succeed, err=%v", err)
	}
	if byName.Primary != alice {
		t.Fatalf("expected lookup to resolve to alice")
	}
}

func TestUsernameUniquenessCaseInsensitive(t *testing.T) {
	m := newTestModule(t)
	if err := m.Register(addrN(1), "Bob"); err != nil {
		t.Fatal(err)
	}
	err := m.Register(addrN(2), "bob")
	if !chainerr.Is(err, chainerr.UsernameTaken) {
		t.Fatalf("expected UsernameTaken, got %v", err)
	}
}

func TestValidateUsernameBounds(t *testing.T) {
	if err := ValidateUsername("ab"); !chainerr.Is(err, chainerr.InvalidUsername) {
		t.Fatalf("expected too-short rejection, got %v", err)
	}
	if err := ValidateUsername("this_name_is_absolutely_too_long"); !chainerr.Is(err, chainerr.InvalidUsername) {
		t.Fatalf("expected too-long rejection, got %v", err)
	}
	if err := ValidateUsername("bad name!"); !chainerr.Is(err, chainerr.InvalidUsername) {
		t.Fatalf("expected bad-character rejection, got %v", err)
	}
	if err := ValidateUsername("valid_Name1"); err != nil {
		t.Fatalf("expected valid name to pass, got %v", err)
	}
}

func TestLinkAccountBounded(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Register(alice, "alice"); err != nil {
		t.Fatal(err)
	}
	for i := byte(0); i < maxLinkedAccounts; i++ {
		if err := m.LinkAccount(alice, addrN(10+i)); err != nil {
			t.Fatalf("unexpected error linking account %d: %v", i, err)
		}
	}
	err := m.LinkAccount(alice, addrN(99))
	if !chainerr.Is(err, chainerr.TooManyLocks) {
		t.Fatalf("expected bound rejection at max linked accounts, got %v", err)
	}
}

func TestUnlinkAccount(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Register(alice, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.LinkAccount(alice, addrN(2)); err != nil {
		t.Fatal(err)
	}
	if err := m.UnlinkAccount(alice, addrN(2)); err != nil {
		t.Fatal(err)
	}
	r, _, _ := m.ByAddress(alice)
	if len(r.Linked) != 0 {
		t.Fatalf("expected no linked accounts after unlink, got %v", r.Linked)
	}
}

func TestAddAttestationBounded(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Register(alice, "alice"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < maxAttestations; i++ {
		if err := m.AddAttestation(alice, Attestation{Type: AttestationKYC, Issuer: addrN(2)}); err != nil {
			t.Fatalf("unexpected error at attestation %d: %v", i, err)
		}
	}
	err := m.AddAttestation(alice, Attestation{Type: AttestationSocial})
	if !chainerr.Is(err, chainerr.TooManyResources) {
		t.Fatalf("expected bound rejection at max attestations, got %v", err)
	}
}

func TestSuspendReactivate(t *testing.T) {
	m := newTestModule(t)
	alice := addrN(1)
	if err := m.Register(alice, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := m.Suspend(alice); err != nil {
		t.Fatal(err)
	}
	r, _, _ := m.ByAddress(alice)
	if r.Status != StatusSuspended {
		t.Fatalf("expected suspended status")
	}
	if err := m.Reactivate(alice); err != nil {
		t.Fatal(err)
	}
	r, _, _ = m.ByAddress(alice)
	if r.Status != StatusActive {
		t.Fatalf("expected active status after reactivate")
	}
}

func TestQorKeyDeterministic(t *testing.T) {
	alice := addrN(1)
	if QorKey(alice) != QorKey(alice) {
		t.Fatalf("expected deterministic qor key")
	}
	if len(QorKey(alice)) != len("qor1")+16 {
		t.Fatalf("unexpected qor key length: %s", QorKey(alice))
	}
}
