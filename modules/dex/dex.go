// Package dex implements a single-pool-per-currency constant-product
// automated market maker between the native balance and one game currency,
// simplified from the reference router (which supported multi-hop paths
// across many pairs) down to the direct-pair swap in §4.7. Grounded on
// original_source's pallet-dex (create_pair / add_liquidity /
// swap_native_for_currency / swap_currency_for_native) and core/amm.go's
// constant-product math, adapted onto pool-owned accounts derived the same
// way the Accounts module derives its treasury.
package dex

import (
	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "dex"

const (
	CallCreatePair uint8 = iota
	CallAddLiquidity
	CallSwapNativeForCurrency
	CallSwapCurrencyForNative
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// Pool is the constant-product reserve state for one currency paired
// against the native balance.
type Pool struct {
	CurrencyID    uint64
	ReserveNative uint64
	ReserveToken  uint64
	TotalShares   uint64
}

// Module is the DEX module.
type Module struct {
	store kv
}

func New(st kv) *Module { return &Module{store: st} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func poolKey(currencyID uint64) []byte {
	e := codec.NewEncoder()
	e.PutUint64(currencyID)
	return append([]byte(moduleName+":pool:"), e.Bytes()...)
}

func shareKey(currencyID uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(currencyID)
	return append(append([]byte(moduleName+":share:"), e.Bytes()...), addr[:]...)
}

// PoolAccount derives the deterministic account that custodies a pool's
// reserves, reusing the same module-account derivation as the Accounts
// treasury.
func PoolAccount(currencyID uint64) types.Address {
	e := codec.NewEncoder()
	e.PutUint64(currencyID)
	return types.DeriveModuleAccount(moduleName + ":" + string(e.Bytes()))
}

func (p Pool) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(p.CurrencyID)
	e.PutUint64(p.ReserveNative)
	e.PutUint64(p.ReserveToken)
	e.PutUint64(p.TotalShares)
	return e.Bytes()
}

func decodePool(b []byte) (Pool, error) {
	d := codec.NewDecoder(b)
	var p Pool
	var err error
	if p.CurrencyID, err = d.Uint64(); err != nil {
		return Pool{}, err
	}
	if p.ReserveNative, err = d.Uint64(); err != nil {
		return Pool{}, err
	}
	if p.ReserveToken, err = d.Uint64(); err != nil {
		return Pool{}, err
	}
	if p.TotalShares, err = d.Uint64(); err != nil {
		return Pool{}, err
	}
	return p, nil
}

func (m *Module) getPool(currencyID uint64) (Pool, bool, error) {
	raw, err := m.store.Get(poolKey(currencyID))
	if err != nil || raw == nil {
		return Pool{}, false, err
	}
	p, err := decodePool(raw)
	return p, err == nil, err
}

func (m *Module) putPool(p Pool) error { return m.store.Put(poolKey(p.CurrencyID), p.encode()) }

// Pool exposes a read-only pool lookup.
func (m *Module) Pool(currencyID uint64) (Pool, bool, error) { return m.getPool(currencyID) }

// CreatePair initializes an empty pool for currencyID.
func (m *Module) CreatePair(currencyID uint64) error {
	if _, exists, err := m.getPool(currencyID); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "pool for currency %d already exists", currencyID)
	}
	return m.putPool(Pool{CurrencyID: currencyID})
}

// AddLiquidity deposits nativeAmount and tokenAmount into the pool,
// minting shares proportional to the deposit (or, for the pool's first
// deposit, isqrt(nativeAmount*tokenAmount) shares, the geometric mean).
func (m *Module) AddLiquidity(provider types.Address, currencyID uint64, nativeAmount, tokenAmount uint64) (uint64, error) {
	p, ok, err := m.getPool(currencyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, chainerr.New(chainerr.PoolNotFound, "currency %d", currencyID)
	}

	var minted uint64
	if p.TotalShares == 0 {
		minted = isqrt(nativeAmount * tokenAmount)
	} else {
		minted = nativeAmount * p.TotalShares / p.ReserveNative
	}
	if minted == 0 {
		return 0, chainerr.New(chainerr.InsufficientLiquidity, "deposit too small to mint shares")
	}

	p.ReserveNative += nativeAmount
	p.ReserveToken += tokenAmount
	p.TotalShares += minted
	if err := m.putPool(p); err != nil {
		return 0, err
	}

	share, err := m.shareOf(currencyID, provider)
	if err != nil {
		return 0, err
	}
	if err := m.setShare(currencyID, provider, share+minted); err != nil {
		return 0, err
	}
	return minted, nil
}

func (m *Module) shareOf(currencyID uint64, addr types.Address) (uint64, error) {
	raw, err := m.store.Get(shareKey(currencyID, addr))
	if err != nil || raw == nil {
		return 0, err
	}
	d := codec.NewDecoder(raw)
	return d.Uint64()
}

func (m *Module) setShare(currencyID uint64, addr types.Address, v uint64) error {
	e := codec.NewEncoder()
	e.PutUint64(v)
	return m.store.Put(shareKey(currencyID, addr), e.Bytes())
}

// quote computes the constant-product swap output: out = reserveOut * in /
// (reserveIn + in), per §4.7's swap formula.
func quote(reserveIn, reserveOut, amountIn uint64) uint64 {
	return reserveOut * amountIn / (reserveIn + amountIn)
}

// isqrt computes the integer square root via Newton's method, used to seed
// a pool's first liquidity deposit with geometric-mean shares instead of
// favoring whichever side of the deposit is larger.
func isqrt(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	x := v
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + v/x) / 2
	}
	return x
}

// SwapNativeForCurrency swaps amountIn native balance for the pool's
// currency, failing with SlippageExceeded if the computed output would be
// below minOut.
func (m *Module) SwapNativeForCurrency(currencyID uint64, amountIn, minOut uint64) (uint64, error) {
	p, ok, err := m.getPool(currencyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, chainerr.New(chainerr.PoolNotFound, "currency %d", currencyID)
	}
	out := quote(p.ReserveNative, p.ReserveToken, amountIn)
	if out == 0 || out >= p.ReserveToken {
		return 0, chainerr.New(chainerr.InsufficientLiquidity, "swap would drain reserve")
	}
	if out < minOut {
		return 0, chainerr.New(chainerr.SlippageExceeded, "output %d below min_out %d", out, minOut)
	}
	p.ReserveNative += amountIn
	p.ReserveToken -= out
	if err := m.putPool(p); err != nil {
		return 0, err
	}
	return out, nil
}

// SwapCurrencyForNative swaps amountIn of the pool's currency for native
// balance, failing with SlippageExceeded if the computed output would be
// below minOut.
func (m *Module) SwapCurrencyForNative(currencyID uint64, amountIn, minOut uint64) (uint64, error) {
	p, ok, err := m.getPool(currencyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, chainerr.New(chainerr.PoolNotFound, "currency %d", currencyID)
	}
	out := quote(p.ReserveToken, p.ReserveNative, amountIn)
	if out == 0 || out >= p.ReserveNative {
		return 0, chainerr.New(chainerr.InsufficientLiquidity, "swap would drain reserve")
	}
	if out < minOut {
		return 0, chainerr.New(chainerr.SlippageExceeded, "output %d below min_out %d", out, minOut)
	}
	p.ReserveToken += amountIn
	p.ReserveNative -= out
	if err := m.putPool(p); err != nil {
		return 0, err
	}
	return out, nil
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreatePair:
		currencyID, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if err := m.CreatePair(currencyID); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "PairCreated"}}, nil
	case CallAddLiquidity:
		providerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		currencyID, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		nativeAmount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		tokenAmount, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var provider types.Address
		copy(provider[:], providerB)
		if _, err := m.AddLiquidity(provider, currencyID, nativeAmount, tokenAmount); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "LiquidityAdded"}}, nil
	case CallSwapNativeForCurrency:
		currencyID, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		amountIn, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		minOut, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if _, err := m.SwapNativeForCurrency(currencyID, amountIn, minOut); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Swapped"}}, nil
	case CallSwapCurrencyForNative:
		currencyID, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		amountIn, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		minOut, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if _, err := m.SwapCurrencyForNative(currencyID, amountIn, minOut); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Swapped"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "dex call index %d", call.CallIndex)
	}
}
