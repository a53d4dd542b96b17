package sessionkeys

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

func TestCreateAndValidateSessionKey(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	owner, delegate := addrN(1), addrN(2)
	id, err := m.CreateSessionKey(owner, delegate, []Permission{{Module: "assets", CallIndex: 4}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := m.IsSessionKeyValid(id, "assets", 4)
	if err != nil || !ok {
		t.Fatalf("expected valid permission, err=%v", err)
	}
	ok, err = m.IsSessionKeyValid(id, "accounts", 0)
	if err != nil || ok {
		t.Fatalf("expected out-of-scope permission to be invalid")
	}
}

func TestSessionKeyExpiry(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	owner, delegate := addrN(1), addrN(2)
	id, err := m.CreateSessionKey(owner, delegate, []Permission{{Module: "assets", CallIndex: 0}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	h = 20
	_, err = m.GetValidSessionKey(id)
	if !chainerr.Is(err, chainerr.SessionKeyInvalid) {
		t.Fatalf("expected SessionKeyInvalid after expiry, got %v", err)
	}
}

func TestRevokeSessionKeyRequiresOwner(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	owner, delegate, impostor := addrN(1), addrN(2), addrN(9)
	id, err := m.CreateSessionKey(owner, delegate, []Permission{{Module: "assets", CallIndex: 0}}, 100)
	if err != nil {
		t.Fatal(err)
	}
	err = m.RevokeSessionKey(impostor, id)
	if !chainerr.Is(err, chainerr.NotOwner) {
		t.Fatalf("expected NotOwner for impostor revoke, got %v", err)
	}
	if err := m.RevokeSessionKey(owner, id); err != nil {
		t.Fatal(err)
	}
	_, err = m.GetValidSessionKey(id)
	if !chainerr.Is(err, chainerr.SessionKeyInvalid) {
		t.Fatalf("expected SessionKeyInvalid after revocation, got %v", err)
	}
}
