// Package governance implements bounded-length proposals scoped to a game,
// simple yes/no voting, and deadline/quorum-gated finalization. Grounded
// on original_source/blockchain/pallets/pallet-governance
// (create_proposal / vote / finalize_proposal) and core/governance.go's
// JSON-over-store proposal record, adapted onto the canonical codec.
package governance

import (
	"go.uber.org/zap"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "governance"

var log = zap.NewNop().Sugar()

// SetLogger installs the sugared zap logger used for proposal lifecycle
// events. Callers that want governance activity logged wire a production
// logger in at startup; the default is silent.
func SetLogger(l *zap.SugaredLogger) { log = l }

const (
	maxProposalLength = 1024
	maxGameIDLength   = 64
)

const (
	CallCreateProposal uint8 = iota
	CallVote
	CallFinalize
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// ProposalStatus is the lifecycle state of a Proposal.
type ProposalStatus uint8

const (
	ProposalOpen ProposalStatus = iota
	ProposalPassed
	ProposalRejected
)

// Proposal is a single governance item scoped to a game.
type Proposal struct {
	ID        uint64
	GameID    string
	Text      string
	Proposer  types.Address
	Deadline  uint64
	Quorum    uint64
	YesVotes  uint64
	NoVotes   uint64
	Status    ProposalStatus
}

// Module is the Governance module.
type Module struct {
	store kv
	clock func() uint64
}

func New(st kv, clock func() uint64) *Module { return &Module{store: st, clock: clock} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func proposalKey(id uint64) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append([]byte(moduleName+":proposal:"), e.Bytes()...)
}

func voteKey(id uint64, voter types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":vote:"), e.Bytes()...), voter[:]...)
}

func (p Proposal) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(p.ID)
	e.PutBytes([]byte(p.GameID))
	e.PutBytes([]byte(p.Text))
	e.PutFixed(p.Proposer[:])
	e.PutUint64(p.Deadline)
	e.PutUint64(p.Quorum)
	e.PutUint64(p.YesVotes)
	e.PutUint64(p.NoVotes)
	e.PutUint8(uint8(p.Status))
	return e.Bytes()
}

func decodeProposal(b []byte) (Proposal, error) {
	d := codec.NewDecoder(b)
	var p Proposal
	var err error
	if p.ID, err = d.Uint64(); err != nil {
		return Proposal{}, err
	}
	gameB, err := d.Bytes(maxGameIDLength)
	if err != nil {
		return Proposal{}, err
	}
	p.GameID = string(gameB)
	textB, err := d.Bytes(maxProposalLength)
	if err != nil {
		return Proposal{}, err
	}
	p.Text = string(textB)
	proposerB, err := d.Fixed(32)
	if err != nil {
		return Proposal{}, err
	}
	copy(p.Proposer[:], proposerB)
	if p.Deadline, err = d.Uint64(); err != nil {
		return Proposal{}, err
	}
	if p.Quorum, err = d.Uint64(); err != nil {
		return Proposal{}, err
	}
	if p.YesVotes, err = d.Uint64(); err != nil {
		return Proposal{}, err
	}
	if p.NoVotes, err = d.Uint64(); err != nil {
		return Proposal{}, err
	}
	statusB, err := d.Uint8()
	if err != nil {
		return Proposal{}, err
	}
	p.Status = ProposalStatus(statusB)
	return p, nil
}

func (m *Module) getProposal(id uint64) (Proposal, bool, error) {
	raw, err := m.store.Get(proposalKey(id))
	if err != nil || raw == nil {
		return Proposal{}, false, err
	}
	p, err := decodeProposal(raw)
	return p, err == nil, err
}

func (m *Module) putProposal(p Proposal) error { return m.store.Put(proposalKey(p.ID), p.encode()) }

// Proposal exposes a read-only lookup.
func (m *Module) Proposal(id uint64) (Proposal, bool, error) { return m.getProposal(id) }

// CreateProposal opens a new proposal, bounded by maxProposalLength and
// maxGameIDLength.
func (m *Module) CreateProposal(id uint64, proposer types.Address, gameID, text string, votingPeriod, quorum uint64) error {
	if len(gameID) == 0 || len(gameID) > maxGameIDLength {
		return chainerr.New(chainerr.InvalidUsername, "game id length %d outside bounds", len(gameID))
	}
	if len(text) == 0 || len(text) > maxProposalLength {
		return chainerr.New(chainerr.DecodeBound, "proposal text length %d outside bounds", len(text))
	}
	if _, exists, err := m.getProposal(id); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "proposal %d already exists", id)
	}
	p := Proposal{
		ID:       id,
		GameID:   gameID,
		Text:     text,
		Proposer: proposer,
		Deadline: m.clock() + votingPeriod,
		Quorum:   quorum,
		Status:   ProposalOpen,
	}
	if err := m.putProposal(p); err != nil {
		return err
	}
	log.Infow("proposal created", "id", id, "game_id", gameID, "deadline", p.Deadline)
	return nil
}

// Vote records voter's ballot, rejecting a second vote from the same
// account or a vote cast after the proposal's deadline.
func (m *Module) Vote(voter types.Address, id uint64, approve bool) error {
	p, ok, err := m.getProposal(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "proposal %d not found", id)
	}
	if p.Status != ProposalOpen {
		return chainerr.New(chainerr.ProposalClosed, "proposal %d is closed", id)
	}
	if m.clock() > p.Deadline {
		return chainerr.New(chainerr.ProposalClosed, "voting period has ended")
	}
	voted, err := m.store.Get(voteKey(id, voter))
	if err != nil {
		return err
	}
	if voted != nil {
		return chainerr.New(chainerr.AlreadyVoted, "voter has already voted on proposal %d", id)
	}
	if approve {
		p.YesVotes++
	} else {
		p.NoVotes++
	}
	if err := m.store.Put(voteKey(id, voter), []byte{1}); err != nil {
		return err
	}
	return m.putProposal(p)
}

// Finalize closes a proposal once its deadline has passed, deciding
// Passed when total votes meet quorum and yes votes are a strict majority,
// Rejected otherwise.
func (m *Module) Finalize(id uint64) (ProposalStatus, error) {
	p, ok, err := m.getProposal(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, chainerr.New(chainerr.ItemNotFound, "proposal %d not found", id)
	}
	if p.Status != ProposalOpen {
		return p.Status, chainerr.New(chainerr.ProposalClosed, "proposal %d already finalized", id)
	}
	if m.clock() <= p.Deadline {
		return 0, chainerr.New(chainerr.ProposalClosed, "voting period has not ended")
	}
	total := p.YesVotes + p.NoVotes
	if total >= p.Quorum && p.YesVotes > p.NoVotes {
		p.Status = ProposalPassed
	} else {
		p.Status = ProposalRejected
	}
	if err := m.putProposal(p); err != nil {
		return 0, err
	}
	log.Infow("proposal finalized", "id", id, "status", p.Status, "yes", p.YesVotes, "no", p.NoVotes)
	return p.Status, nil
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreateProposal:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		proposerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		gameB, err := d.Bytes(maxGameIDLength)
		if err != nil {
			return nil, err
		}
		textB, err := d.Bytes(maxProposalLength)
		if err != nil {
			return nil, err
		}
		votingPeriod, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		quorum, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var proposer types.Address
		copy(proposer[:], proposerB)
		if err := m.CreateProposal(id, proposer, string(gameB), string(textB), votingPeriod, quorum); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ProposalCreated"}}, nil
	case CallVote:
		voterB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		approve, err := d.Bool()
		if err != nil {
			return nil, err
		}
		var voter types.Address
		copy(voter[:], voterB)
		if err := m.Vote(voter, id, approve); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Voted"}}, nil
	case CallFinalize:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if _, err := m.Finalize(id); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ProposalFinalized"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "governance call index %d", call.CallIndex)
	}
}
