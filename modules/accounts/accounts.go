// Package accounts implements the fungible balance module: free/reserved
// balances, existential deposit, named locks, and the treasury-split
// transfer fee. Grounded on the reference ledger's balance bookkeeping
// (core/account_and_balance_operations.go, core/ledger.go's BalanceOf /
// Transfer / Mint / Burn) generalized from a single ledger-owned balance
// map into a module that owns its own Store namespace.
package accounts

import (
	"github.com/sirupsen/logrus"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/internal/store"
	"gamechain/types"
)

const moduleName = "accounts"

const (
	CallTransfer uint8 = iota
	CallReserve
	CallUnreserve
	CallMint
	CallBurn
)

// Lock is a named, advisory hold that reduces usable free balance without
// moving it to reserved.
type Lock struct {
	ID     [8]byte
	Amount uint64
}

// Account is the per-address balance record.
type Account struct {
	Nonce    uint64
	Free     uint64
	Reserved uint64
	Locks    []Lock
}

const maxLocks = 16

// Encode writes the account using the canonical codec.
func (a Account) Encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(a.Nonce)
	e.PutUint64(a.Free)
	e.PutUint64(a.Reserved)
	e.PutCompact(uint64(len(a.Locks)))
	for _, l := range a.Locks {
		e.PutFixed(l.ID[:])
		e.PutUint64(l.Amount)
	}
	return e.Bytes()
}

// DecodeAccount parses the canonical encoding, rejecting a lock count
// above maxLocks as a bound violation.
func DecodeAccount(b []byte) (Account, error) {
	d := codec.NewDecoder(b)
	var a Account
	var err error
	if a.Nonce, err = d.Uint64(); err != nil {
		return Account{}, err
	}
	if a.Free, err = d.Uint64(); err != nil {
		return Account{}, err
	}
	if a.Reserved, err = d.Uint64(); err != nil {
		return Account{}, err
	}
	n, err := d.Compact()
	if err != nil {
		return Account{}, err
	}
	if n > maxLocks {
		return Account{}, chainerr.New(chainerr.TooManyLocks, "encoded %d locks exceeds max %d", n, maxLocks)
	}
	a.Locks = make([]Lock, n)
	for i := range a.Locks {
		idBytes, err := d.Fixed(8)
		if err != nil {
			return Account{}, err
		}
		copy(a.Locks[i].ID[:], idBytes)
		if a.Locks[i].Amount, err = d.Uint64(); err != nil {
			return Account{}, err
		}
	}
	return a, nil
}

// UsableFree returns free balance minus the sum of active locks.
func (a Account) UsableFree() uint64 {
	locked := uint64(0)
	for _, l := range a.Locks {
		locked += l.Amount
	}
	if locked > a.Free {
		return 0
	}
	return a.Free - locked
}

// FeeConfig configures the transfer-fee split.
type FeeConfig struct {
	// Numerator/Denominator express the burned fraction of each transfer
	// fee as a rational in [0,1]; the remainder is credited to Treasury. A
	// zero denominator selects the default split of 80% burned, 20% to
	// Treasury. FlatFee is the fee charged on every transfer.
	BurnNumerator   uint64
	BurnDenominator uint64
	FlatFee         uint64
}

// Module is the Accounts module.
type Module struct {
	store              *store.Store
	existentialDeposit uint64
	totalSupplyCap     uint64
	fee                FeeConfig
	treasury           types.Address
}

// New constructs the Accounts module bound to its Store namespace.
func New(st *store.Store, existentialDeposit, totalSupplyCap uint64, fee FeeConfig) *Module {
	return &Module{
		store:              st,
		existentialDeposit: existentialDeposit,
		totalSupplyCap:     totalSupplyCap,
		fee:                fee,
		treasury:           types.DeriveModuleAccount(moduleName),
	}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func key(addr types.Address) []byte {
	return append([]byte(moduleName+":balance:"), addr[:]...)
}

// Get returns the account record, defaulting to a zero account if absent.
func (m *Module) Get(addr types.Address) (Account, error) {
	raw, err := m.store.Get(key(addr))
	if err != nil {
		return Account{}, err
	}
	if raw == nil {
		return Account{}, nil
	}
	return DecodeAccount(raw)
}

func (m *Module) put(addr types.Address, a Account) error {
	return m.store.Put(key(addr), a.Encode())
}

// NonceOf satisfies runtime.NonceSource.
func (m *Module) NonceOf(addr types.Address) uint64 {
	a, _ := m.Get(addr)
	return a.Nonce
}

// AdvanceNonce satisfies runtime.NonceSource.
func (m *Module) AdvanceNonce(addr types.Address) error {
	a, err := m.Get(addr)
	if err != nil {
		return err
	}
	a.Nonce++
	return m.put(addr, a)
}

// checkLiveness enforces: if free is non-zero it must be >= existentialDeposit.
func (m *Module) checkLiveness(a Account) error {
	if a.Free != 0 && a.Free < m.existentialDeposit {
		return chainerr.New(chainerr.ExistentialDeposit, "free balance %d below existential deposit %d", a.Free, m.existentialDeposit)
	}
	return nil
}

// Transfer moves amount from sender's free balance to receiver's,
// deducting the configured fee (burn + treasury split) on top.
func (m *Module) Transfer(from, to types.Address, amount uint64) error {
	if from == to {
		return chainerr.New(chainerr.SelfTransfer, "cannot transfer to self")
	}
	sender, err := m.Get(from)
	if err != nil {
		return err
	}
	receiver, err := m.Get(to)
	if err != nil {
		return err
	}

	fee := m.computeFee(amount)
	required := amount + fee
	if required < amount {
		return chainerr.New(chainerr.Overflow, "amount %d plus fee %d overflows", amount, fee)
	}
	if sender.UsableFree() < required {
		return chainerr.New(chainerr.InsufficientBalance, "usable free %d below required %d", sender.UsableFree(), required)
	}
	if receiver.Free+amount < receiver.Free {
		return chainerr.New(chainerr.Overflow, "receiver balance would overflow")
	}

	sender.Free -= required
	receiver.Free += amount

	if err := m.checkLiveness(sender); err != nil {
		return err
	}

	burned, treasuryCut := m.splitFee(fee)
	_ = burned // burned amount simply is not credited anywhere; it leaves supply

	if err := m.put(from, sender); err != nil {
		return err
	}
	if err := m.put(to, receiver); err != nil {
		return err
	}
	if treasuryCut > 0 {
		treasury, err := m.Get(m.treasury)
		if err != nil {
			return err
		}
		treasury.Free += treasuryCut
		if err := m.put(m.treasury, treasury); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{"from": from.Hex(), "to": to.Hex(), "amount": amount, "fee": fee}).Info("accounts: transfer")
	return nil
}

func (m *Module) computeFee(amount uint64) uint64 {
	fee := m.fee.FlatFee
	return fee
}

// splitFee divides fee into a burned portion (default 80%) and a treasury
// portion, per the configured rational in [0,1].
func (m *Module) splitFee(fee uint64) (burned, treasury uint64) {
	if fee == 0 {
		return 0, 0
	}
	num, den := m.fee.BurnNumerator, m.fee.BurnDenominator
	if den == 0 {
		num, den = 4, 5 // default 80%
	}
	burned = fee * num / den
	treasury = fee - burned
	return burned, treasury
}

// Reserve moves amount from free to reserved without changing the total.
func (m *Module) Reserve(addr types.Address, amount uint64) error {
	a, err := m.Get(addr)
	if err != nil {
		return err
	}
	if a.UsableFree() < amount {
		return chainerr.New(chainerr.InsufficientBalance, "usable free %d below %d", a.UsableFree(), amount)
	}
	a.Free -= amount
	a.Reserved += amount
	return m.put(addr, a)
}

// Unreserve moves amount from reserved back to free.
func (m *Module) Unreserve(addr types.Address, amount uint64) error {
	a, err := m.Get(addr)
	if err != nil {
		return err
	}
	if a.Reserved < amount {
		return chainerr.New(chainerr.InsufficientReserved, "reserved %d below %d", a.Reserved, amount)
	}
	a.Reserved -= amount
	a.Free += amount
	return m.put(addr, a)
}

// Mint credits amount to an account, respecting the genesis-configured
// total supply cap.
func (m *Module) Mint(to types.Address, amount uint64) error {
	supply, err := m.TotalSupply()
	if err != nil {
		return err
	}
	if supply+amount > m.totalSupplyCap {
		return chainerr.New(chainerr.Overflow, "mint would exceed supply cap %d", m.totalSupplyCap)
	}
	a, err := m.Get(to)
	if err != nil {
		return err
	}
	a.Free += amount
	if err := m.put(to, a); err != nil {
		return err
	}
	return m.addSupply(amount)
}

// Burn debits amount from an account's free balance.
func (m *Module) Burn(from types.Address, amount uint64) error {
	a, err := m.Get(from)
	if err != nil {
		return err
	}
	if a.Free < amount {
		return chainerr.New(chainerr.InsufficientBalance, "free %d below %d", a.Free, amount)
	}
	a.Free -= amount
	if err := m.put(from, a); err != nil {
		return err
	}
	return m.addSupply(-int64(amount))
}

func supplyKey() []byte { return []byte(moduleName + ":supply") }

// TotalSupply returns the cumulative minted-minus-burned supply.
func (m *Module) TotalSupply() (uint64, error) {
	raw, err := m.store.Get(supplyKey())
	if err != nil || raw == nil {
		return 0, err
	}
	d := codec.NewDecoder(raw)
	v, err := d.Uint64()
	return v, err
}

func (m *Module) addSupply(delta int64) error {
	cur, err := m.TotalSupply()
	if err != nil {
		return err
	}
	next := int64(cur) + delta
	if next < 0 {
		next = 0
	}
	e := codec.NewEncoder()
	e.PutUint64(uint64(next))
	return m.store.Put(supplyKey(), e.Bytes())
}

// ApplyGenesis seeds the configured balances, checking their sum against
// the total supply cap.
func ApplyGenesis(m *Module, balances map[types.Address]uint64) error {
	var sum uint64
	for _, v := range balances {
		sum += v
	}
	if sum > m.totalSupplyCap {
		return chainerr.New(chainerr.Overflow, "genesis sum %d exceeds supply cap %d", sum, m.totalSupplyCap)
	}
	for addr, bal := range balances {
		if err := m.put(addr, Account{Free: bal}); err != nil {
			return err
		}
	}
	return m.addSupply(int64(sum))
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallTransfer:
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
		if err := m.Transfer(from, to, amount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Transferred"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "accounts call index %d", call.CallIndex)
	}
}
