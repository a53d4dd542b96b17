package governance

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

func TestVoteThenFinalizePasses(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	proposer := addrN(1)
	if err := m.CreateProposal(1, proposer, "game-1", "raise the drop rate", 10, 2); err != nil {
		t.Fatal(err)
	}
	if err := m.Vote(addrN(2), 1, true); err != nil {
		t.Fatal(err)
	}
	if err := m.Vote(addrN(3), 1, true); err != nil {
		t.Fatal(err)
	}
	h = 12
	status, err := m.Finalize(1)
	if err != nil {
		t.Fatal(err)
	}
	if status != ProposalPassed {
		t.Fatalf("expected proposal to pass, got %v", status)
	}
}

func TestFinalizeFailsQuorum(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	if err := m.CreateProposal(1, addrN(1), "game-1", "text", 10, 5); err != nil {
		t.Fatal(err)
	}
	if err := m.Vote(addrN(2), 1, true); err != nil {
		t.Fatal(err)
	}
	h = 12
	status, err := m.Finalize(1)
	if err != nil {
		t.Fatal(err)
	}
	if status != ProposalRejected {
		t.Fatalf("expected rejection below quorum, got %v", status)
	}
}

func TestDoubleVoteRejected(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	if err := m.CreateProposal(1, addrN(1), "game-1", "text", 10, 1); err != nil {
		t.Fatal(err)
	}
	voter := addrN(2)
	if err := m.Vote(voter, 1, true); err != nil {
		t.Fatal(err)
	}
	err := m.Vote(voter, 1, false)
	if !chainerr.Is(err, chainerr.AlreadyVoted) {
		t.Fatalf("expected AlreadyVoted, got %v", err)
	}
}

func TestVoteAfterDeadlineRejected(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	if err := m.CreateProposal(1, addrN(1), "game-1", "text", 5, 1); err != nil {
		t.Fatal(err)
	}
	h = 10
	err := m.Vote(addrN(2), 1, true)
	if !chainerr.Is(err, chainerr.ProposalClosed) {
		t.Fatalf("expected ProposalClosed after deadline, got %v", err)
	}
}

func TestFinalizeBeforeDeadlineRejected(t *testing.T) {
	h := uint64(1)
	m := newTestModule(t, &h)
	if err := m.CreateProposal(1, addrN(1), "game-1", "text", 100, 1); err != nil {
		t.Fatal(err)
	}
	_, err := m.Finalize(1)
	if !chainerr.Is(err, chainerr.ProposalClosed) {
		t.Fatalf("expected ProposalClosed before deadline, got %v", err)
	}
}
