// Package gamecurrency implements per-game fungible currencies distinct
// from the chain's native balance: creation, mint by the currency's
// issuer, burn by the issuer or the holder, feeless transfer via staking,
// and sponsored transactions.
// Grounded on original_source's pallet-game-assets currency records and
// core/tokens.go's per-token balance map, adapted into a Store-backed
// module keyed by currency_id.
package gamecurrency

import (
	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "gamecurrency"

const maxCurrencyNameLength = 64

const (
	CallCreateCurrency uint8 = iota
	CallMint
	CallBurn
	CallTransfer
	CallStakeFeeless
	CallUnstakeFeeless
	CallSponsorTransaction
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// Currency is a game-scoped fungible token.
type Currency struct {
	ID          uint64
	Name        string
	Issuer      types.Address
	TotalSupply uint64
	SupplyCap   uint64
}

// SponsorshipInfo records that Sponsor has agreed to pay transaction fees
// on behalf of Beneficiary, up to Remaining, supplementing the chain's fee
// model for onboarding players without native balance.
type SponsorshipInfo struct {
	Sponsor     types.Address
	Beneficiary types.Address
	Remaining   uint64
}

// Module is the Game Currencies module.
type Module struct {
	store kv
}

func New(st kv) *Module { return &Module{store: st} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func currencyKey(id uint64) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append([]byte(moduleName+":cur:"), e.Bytes()...)
}

func balanceKey(id uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":bal:"), e.Bytes()...), addr[:]...)
}

func stakeKey(id uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":stake:"), e.Bytes()...), addr[:]...)
}

func sponsorKey(beneficiary types.Address) []byte {
	return append([]byte(moduleName+":sponsor:"), beneficiary[:]...)
}

func (c Currency) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(c.ID)
	e.PutBytes([]byte(c.Name))
	e.PutFixed(c.Issuer[:])
	e.PutUint64(c.TotalSupply)
	e.PutUint64(c.SupplyCap)
	return e.Bytes()
}

func decodeCurrency(b []byte) (Currency, error) {
	d := codec.NewDecoder(b)
	var c Currency
	var err error
	if c.ID, err = d.Uint64(); err != nil {
		return Currency{}, err
	}
	nameB, err := d.Bytes(maxCurrencyNameLength)
	if err != nil {
		return Currency{}, err
	}
	c.Name = string(nameB)
	issuerB, err := d.Fixed(32)
	if err != nil {
		return Currency{}, err
	}
	copy(c.Issuer[:], issuerB)
	if c.TotalSupply, err = d.Uint64(); err != nil {
		return Currency{}, err
	}
	if c.SupplyCap, err = d.Uint64(); err != nil {
		return Currency{}, err
	}
	return c, nil
}

func (m *Module) getCurrency(id uint64) (Currency, bool, error) {
	raw, err := m.store.Get(currencyKey(id))
	if err != nil || raw == nil {
		return Currency{}, false, err
	}
	c, err := decodeCurrency(raw)
	return c, err == nil, err
}

// CreateCurrency registers a new currency owned by issuer.
func (m *Module) CreateCurrency(id uint64, issuer types.Address, name string, supplyCap uint64) error {
	if len(name) == 0 || len(name) > maxCurrencyNameLength {
		return chainerr.New(chainerr.InvalidUsername, "currency name length %d outside bounds", len(name))
	}
	if _, exists, err := m.getCurrency(id); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "currency %d already exists", id)
	}
	return m.putCurrency(Currency{ID: id, Name: name, Issuer: issuer, SupplyCap: supplyCap})
}

func (m *Module) putCurrency(c Currency) error { return m.store.Put(currencyKey(c.ID), c.encode()) }

func (m *Module) balanceOf(id uint64, addr types.Address) (uint64, error) {
	raw, err := m.store.Get(balanceKey(id, addr))
	if err != nil || raw == nil {
		return 0, err
	}
	d := codec.NewDecoder(raw)
	return d.Uint64()
}

func (m *Module) setBalance(id uint64, addr types.Address, v uint64) error {
	e := codec.NewEncoder()
	e.PutUint64(v)
	return m.store.Put(balanceKey(id, addr), e.Bytes())
}

// BalanceOf exposes a read-only balance lookup.
func (m *Module) BalanceOf(id uint64, addr types.Address) (uint64, error) { return m.balanceOf(id, addr) }

// Mint credits amount of currency id to an account, gated by the issuer
// and the configured supply cap.
func (m *Module) Mint(caller types.Address, id uint64, to types.Address, amount uint64) error {
	c, ok, err := m.getCurrency(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "currency %d not found", id)
	}
	if c.Issuer != caller {
		return chainerr.New(chainerr.NotOwner, "only the issuer may mint")
	}
	if c.SupplyCap > 0 && c.TotalSupply+amount > c.SupplyCap {
		return chainerr.New(chainerr.Overflow, "mint would exceed supply cap %d", c.SupplyCap)
	}
	bal, err := m.balanceOf(id, to)
	if err != nil {
		return err
	}
	if err := m.setBalance(id, to, bal+amount); err != nil {
		return err
	}
	c.TotalSupply += amount
	return m.putCurrency(c)
}

// Burn debits amount of currency id from an account's balance.
func (m *Module) Burn(caller types.Address, id uint64, from types.Address, amount uint64) error {
	c, ok, err := m.getCurrency(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "currency %d not found", id)
	}
	if c.Issuer != caller && caller != from {
		return chainerr.New(chainerr.NotOwner, "only the issuer or owner may burn")
	}
	bal, err := m.balanceOf(id, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return chainerr.New(chainerr.InsufficientBalance, "balance %d below %d", bal, amount)
	}
	if err := m.setBalance(id, from, bal-amount); err != nil {
		return err
	}
	c.TotalSupply -= amount
	return m.putCurrency(c)
}

// Transfer moves a currency balance between accounts with no fee, since
// game currencies are not subject to the native transfer-fee split.
func (m *Module) Transfer(id uint64, from, to types.Address, amount uint64) error {
	if from == to {
		return chainerr.New(chainerr.SelfTransfer, "cannot transfer to self")
	}
	fromBal, err := m.balanceOf(id, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return chainerr.New(chainerr.InsufficientBalance, "balance %d below %d", fromBal, amount)
	}
	toBal, err := m.balanceOf(id, to)
	if err != nil {
		return err
	}
	if err := m.setBalance(id, from, fromBal-amount); err != nil {
		return err
	}
	return m.setBalance(id, to, toBal+amount)
}

// StakeFeeless locks amount of currency id as a stake granting feeless
// transfers up to the staked amount's throughput budget (enforced by
// callers; this module only tracks the stake ledger).
func (m *Module) StakeFeeless(addr types.Address, id uint64, amount uint64) error {
	bal, err := m.balanceOf(id, addr)
	if err != nil {
		return err
	}
	if bal < amount {
		return chainerr.New(chainerr.InsufficientBalance, "balance %d below %d", bal, amount)
	}
	if err := m.setBalance(id, addr, bal-amount); err != nil {
		return err
	}
	staked, err := m.stakeOf(id, addr)
	if err != nil {
		return err
	}
	return m.setStake(id, addr, staked+amount)
}

// UnstakeFeeless releases a previously staked amount back to the free balance.
func (m *Module) UnstakeFeeless(addr types.Address, id uint64, amount uint64) error {
	staked, err := m.stakeOf(id, addr)
	if err != nil {
		return err
	}
	if staked < amount {
		return chainerr.New(chainerr.InsufficientBalance, "staked %d below %d", staked, amount)
	}
	if err := m.setStake(id, addr, staked-amount); err != nil {
		return err
	}
	bal, err := m.balanceOf(id, addr)
	if err != nil {
		return err
	}
	return m.setBalance(id, addr, bal+amount)
}

func (m *Module) stakeOf(id uint64, addr types.Address) (uint64, error) {
	raw, err := m.store.Get(stakeKey(id, addr))
	if err != nil || raw == nil {
		return 0, err
	}
	d := codec.NewDecoder(raw)
	return d.Uint64()
}

func (m *Module) setStake(id uint64, addr types.Address, v uint64) error {
	e := codec.NewEncoder()
	e.PutUint64(v)
	return m.store.Put(stakeKey(id, addr), e.Bytes())
}

// SponsorTransaction records that sponsor will cover up to amount of
// beneficiary's future transaction fees, supplementing native fee
// collection so new players can transact before holding a balance.
func (m *Module) SponsorTransaction(sponsor, beneficiary types.Address, amount uint64) error {
	info := SponsorshipInfo{Sponsor: sponsor, Beneficiary: beneficiary, Remaining: amount}
	e := codec.NewEncoder()
	e.PutFixed(info.Sponsor[:])
	e.PutFixed(info.Beneficiary[:])
	e.PutUint64(info.Remaining)
	return m.store.Put(sponsorKey(beneficiary), e.Bytes())
}

// SponsorshipFor returns the active sponsorship for beneficiary, if any.
func (m *Module) SponsorshipFor(beneficiary types.Address) (SponsorshipInfo, bool, error) {
	raw, err := m.store.Get(sponsorKey(beneficiary))
	if err != nil || raw == nil {
		return SponsorshipInfo{}, false, err
	}
	d := codec.NewDecoder(raw)
	var info SponsorshipInfo
	sponsorB, err := d.Fixed(32)
	if err != nil {
		return SponsorshipInfo{}, false, err
	}
	copy(info.Sponsor[:], sponsorB)
	benB, err := d.Fixed(32)
	if err != nil {
		return SponsorshipInfo{}, false, err
	}
	copy(info.Beneficiary[:], benB)
	if info.Remaining, err = d.Uint64(); err != nil {
		return SponsorshipInfo{}, false, err
	}
	return info, true, nil
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreateCurrency:
		issuerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		nameB, err := d.Bytes(maxCurrencyNameLength)
		if err != nil {
			return nil, err
		}
		supplyCap, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var issuer types.Address
		copy(issuer[:], issuerB)
		if err := m.CreateCurrency(id, issuer, string(nameB), supplyCap); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "CurrencyCreated"}}, nil
	case CallMint:
		callerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		toB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var caller, to types.Address
		copy(caller[:], callerB)
		copy(to[:], toB)
		if err := m.Mint(caller, id, to, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Minted"}}, nil
	case CallBurn:
		callerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		fromB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var caller, from types.Address
		copy(caller[:], callerB)
		copy(from[:], fromB)
		if err := m.Burn(caller, id, from, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Burned"}}, nil
	case CallTransfer:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		fromB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		toB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var from, to types.Address
		copy(from[:], fromB)
		copy(to[:], toB)
		if err := m.Transfer(id, from, to, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Transferred"}}, nil
	case CallStakeFeeless:
		addrB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var addr types.Address
		copy(addr[:], addrB)
		if err := m.StakeFeeless(addr, id, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "StakedFeeless"}}, nil
	case CallUnstakeFeeless:
		addrB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var addr types.Address
		copy(addr[:], addrB)
		if err := m.UnstakeFeeless(addr, id, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "UnstakedFeeless"}}, nil
	case CallSponsorTransaction:
		sponsorB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		beneficiaryB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		amount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var sponsor, beneficiary types.Address
		copy(sponsor[:], sponsorB)
		copy(beneficiary[:], beneficiaryB)
		if err := m.SponsorTransaction(sponsor, beneficiary, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "SponsorshipRecorded"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "gamecurrency call index %d", call.CallIndex)
	}
}
