// Package fractional implements time-sliced shared ownership of an asset:
// an item is split into a bounded number of shares, and start/end calls
// bracket a shareholder's usage session. No access-time budget is kept:
// usage is not limited in proportion to a holding, and EndAssetAccess only
// reports the blocks elapsed since the session opened. Grounded on
// original_source/blockchain/pallets/pallet-fractional-assets
// (create_fractional_asset / purchase_shares / start_asset_access /
// end_asset_access).
package fractional

import (
	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "fractional"

const (
	maxSharesPerAsset    = 1000
	maxAssetsPerAccount  = 100
)

const (
	CallCreateFractionalAsset uint8 = iota
	CallPurchaseShares
	CallStartAssetAccess
	CallEndAssetAccess
)

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
}

// FractionalAsset tracks the total and sold share counts for one
// underlying item, priced per share.
type FractionalAsset struct {
	ID          uint64
	Item        types.UUID
	TotalShares uint32
	SoldShares  uint32
	PricePerShare uint64
}

// AccessSession records an in-progress usage window; ActiveSince is zero
// when no session is open.
type AccessSession struct {
	ActiveSince uint64
}

// Module is the Fractional Assets module.
type Module struct {
	store kv
	clock func() uint64
}

func New(st kv, clock func() uint64) *Module { return &Module{store: st, clock: clock} }

func (m *Module) Name() string                                      { return moduleName }
func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func assetKey(id uint64) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append([]byte(moduleName+":asset:"), e.Bytes()...)
}

func shareKey(id uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":share:"), e.Bytes()...), addr[:]...)
}

func sessionKey(id uint64, addr types.Address) []byte {
	e := codec.NewEncoder()
	e.PutUint64(id)
	return append(append([]byte(moduleName+":session:"), e.Bytes()...), addr[:]...)
}

func (a FractionalAsset) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(a.ID)
	e.PutFixed(a.Item[:])
	e.PutUint32(a.TotalShares)
	e.PutUint32(a.SoldShares)
	e.PutUint64(a.PricePerShare)
	return e.Bytes()
}

func decodeAsset(b []byte) (FractionalAsset, error) {
	d := codec.NewDecoder(b)
	var a FractionalAsset
	var err error
	if a.ID, err = d.Uint64(); err != nil {
		return FractionalAsset{}, err
	}
	itemB, err := d.Fixed(32)
	if err != nil {
		return FractionalAsset{}, err
	}
	copy(a.Item[:], itemB)
	if a.TotalShares, err = d.Uint32(); err != nil {
		return FractionalAsset{}, err
	}
	if a.SoldShares, err = d.Uint32(); err != nil {
		return FractionalAsset{}, err
	}
	if a.PricePerShare, err = d.Uint64(); err != nil {
		return FractionalAsset{}, err
	}
	return a, nil
}

func (m *Module) getAsset(id uint64) (FractionalAsset, bool, error) {
	raw, err := m.store.Get(assetKey(id))
	if err != nil || raw == nil {
		return FractionalAsset{}, false, err
	}
	a, err := decodeAsset(raw)
	return a, err == nil, err
}

func (m *Module) putAsset(a FractionalAsset) error { return m.store.Put(assetKey(a.ID), a.encode()) }

// CreateFractionalAsset registers item as split into totalShares, bounded
// by maxSharesPerAsset.
func (m *Module) CreateFractionalAsset(id uint64, item types.UUID, totalShares uint32, pricePerShare uint64) error {
	if totalShares == 0 || totalShares > maxSharesPerAsset {
		t0 := totalShares
		return chainerr.New(chainerr.TooManyItems, "total shares %d outside [1,%d]", t0, maxSharesPerAsset)
	}
	if _, exists, err := m.getAsset(id); err != nil {
		return err
	} else if exists {
		return chainerr.New(chainerr.AlreadyExists, "fractional asset %d already exists", id)
	}
	return m.putAsset(FractionalAsset{ID: id, Item: item, TotalShares: totalShares, PricePerShare: pricePerShare})
}

func (m *Module) shareOf(id uint64, addr types.Address) (uint32, error) {
	raw, err := m.store.Get(shareKey(id, addr))
	if err != nil || raw == nil {
		return 0, err
	}
	d := codec.NewDecoder(raw)
	v, err := d.Uint32()
	return v, err
}

func (m *Module) setShare(id uint64, addr types.Address, v uint32) error {
	e := codec.NewEncoder()
	e.PutUint32(v)
	return m.store.Put(shareKey(id, addr), e.Bytes())
}

// SharesOf exposes a read-only share lookup.
func (m *Module) SharesOf(id uint64, addr types.Address) (uint32, error) { return m.shareOf(id, addr) }

// PurchaseShares sells count shares to buyer, bounded by remaining supply
// and by maxAssetsPerAccount distinct fractional assets per holder
// (enforced by callers tracking their own holdings index; this module
// enforces only the per-asset share cap).
func (m *Module) PurchaseShares(buyer types.Address, id uint64, count uint32) error {
	a, ok, err := m.getAsset(id)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "fractional asset %d not found", id)
	}
	if a.SoldShares+count > a.TotalShares {
		return chainerr.New(chainerr.TooManyItems, "only %d shares remain", a.TotalShares-a.SoldShares)
	}
	a.SoldShares += count
	if err := m.putAsset(a); err != nil {
		return err
	}
	owned, err := m.shareOf(id, buyer)
	if err != nil {
		return err
	}
	return m.setShare(id, buyer, owned+count)
}

func (s AccessSession) encode() []byte {
	e := codec.NewEncoder()
	e.PutUint64(s.ActiveSince)
	return e.Bytes()
}

func decodeSession(b []byte) (AccessSession, error) {
	d := codec.NewDecoder(b)
	v, err := d.Uint64()
	return AccessSession{ActiveSince: v}, err
}

func (m *Module) getSession(id uint64, addr types.Address) (AccessSession, error) {
	raw, err := m.store.Get(sessionKey(id, addr))
	if err != nil || raw == nil {
		return AccessSession{}, err
	}
	return decodeSession(raw)
}

// StartAssetAccess opens a usage session for a shareholder, rejecting a
// holder with zero shares or an already-open session.
func (m *Module) StartAssetAccess(holder types.Address, id uint64) error {
	shares, err := m.shareOf(id, holder)
	if err != nil {
		return err
	}
	if shares == 0 {
		return chainerr.New(chainerr.NotOwner, "caller holds no shares of asset %d", id)
	}
	session, err := m.getSession(id, holder)
	if err != nil {
		return err
	}
	if session.ActiveSince != 0 {
		return chainerr.New(chainerr.AlreadyExists, "session already open")
	}
	return m.store.Put(sessionKey(id, holder), AccessSession{ActiveSince: m.clock()}.encode())
}

// EndAssetAccess closes an open session and returns the elapsed block
// duration, which callers may use for usage-weighted accounting.
func (m *Module) EndAssetAccess(holder types.Address, id uint64) (uint64, error) {
	session, err := m.getSession(id, holder)
	if err != nil {
		return 0, err
	}
	if session.ActiveSince == 0 {
		return 0, chainerr.New(chainerr.ItemNotFound, "no open session")
	}
	now := m.clock()
	elapsed := now - session.ActiveSince
	return elapsed, m.store.Put(sessionKey(id, holder), AccessSession{}.encode())
}

// Execute dispatches a tagged call per the Registry contract.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallCreateFractionalAsset:
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		itemB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		totalShares, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		pricePerShare, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var item types.UUID
		copy(item[:], itemB)
		if err := m.CreateFractionalAsset(id, item, totalShares, pricePerShare); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "FractionalAssetCreated"}}, nil
	case CallPurchaseShares:
		buyerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		count, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		var buyer types.Address
		copy(buyer[:], buyerB)
		if err := m.PurchaseShares(buyer, id, count); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "SharesPurchased"}}, nil
	case CallStartAssetAccess:
		holderB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var holder types.Address
		copy(holder[:], holderB)
		if err := m.StartAssetAccess(holder, id); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "AssetAccessStarted"}}, nil
	case CallEndAssetAccess:
		holderB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		id, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var holder types.Address
		copy(holder[:], holderB)
		if _, err := m.EndAssetAccess(holder, id); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "AssetAccessEnded"}}, nil
	default:
		return nil, chainerr.New(chainerr.UnknownCall, "fractional call index %d", call.CallIndex)
	}
}
