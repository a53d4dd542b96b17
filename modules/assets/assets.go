// Package assets implements the programmable NFT engine described in
// §4.6 — the largest single module: ownership, nesting, equip slots,
// time-bounded delegation, multi-resource metadata, and XP/level/
// durability progression. Grounded on
// original_source/blockchain/pallets/pallet-drc369/src/lib.rs, translated
// from a FRAME pallet's storage maps onto the shared Store façade the way
// core/common_structs.go and core/tokens.go model owned, nested records.
package assets

import (
	"math"

	"github.com/google/uuid"

	"gamechain/internal/chainerr"
	"gamechain/internal/codec"
	"gamechain/types"
)

const moduleName = "assets"

const (
	maxNameLength             = 64
	maxSlotNameLength         = 32
	maxAssetPathLength        = 256
	maxChildren               = 100
	maxResources              = 20
	maxEquipSlots             = 20
	maxNestingDepth           = 100
	evolveLevelGate           = 50
	maxItemsPerAccount        = 1000
	maxResourceTypeLength     = 32
	maxResourceURILength      = 512
	maxContextTags            = 10
	maxContextTagLength       = 16
	maxCustomState            = 20
	maxCustomStateKeyLength   = 32
	maxCustomStateValueLength = 256
)

const (
	CallMint uint8 = iota
	CallInitiateTrade
	CallAcceptTrade
	CallCancelTrade
	CallAddExperience
	CallUpdateDurability
	CallIncrementKillCount
	CallEvolveClass
	CallAddResource
	CallRemoveResource
	CallNest
	CallUnnest
	CallEquip
	CallUnequip
	CallAddEquipmentSlot
	CallDelegate
	CallRevokeDelegation
)

// SlotType discriminates a built-in equipment slot from a class-defined one.
type SlotType uint8

const (
	SlotHead SlotType = iota
	SlotBody
	SlotWeapon
	SlotAccessory
	SlotCustom
)

// EquipmentSlot is a named attachment point on an item; Occupant is the
// child item currently equipped there, if any. RequiredClass, when set,
// restricts the slot to children whose ClassID matches exactly.
type EquipmentSlot struct {
	Name          string
	Type          SlotType
	Occupant      *types.UUID
	RequiredClass *uint32
}

// Resource is one entry of an item's multi-resource metadata (e.g. a skin
// or an animation set): a typed URI with a display priority and a bounded
// set of free-form context tags.
type Resource struct {
	Type        string
	URI         string
	Priority    uint8
	ContextTags []string
}

// CustomStateEntry is one bounded key/value pair of an item's free-form
// custom state, grounded on the reference pallet's custom_state map.
type CustomStateEntry struct {
	Key   string
	Value []byte
}

// TradeStatus is the lifecycle of a TradeOffer.
type TradeStatus uint8

const (
	TradeOpen TradeStatus = iota
	TradeAccepted
	TradeCancelled
)

// TradeOffer is a standing offer to sell an item at a fixed price, with an
// optional royalty paid to the item's original creator on acceptance.
type TradeOffer struct {
	ID         types.UUID
	Item       types.UUID
	Seller     types.Address
	Price      uint64
	RoyaltyBps uint32
	Status     TradeStatus
}

// Asset is one item record. Owner always mirrors the root ancestor's
// owner: a nested item's Owner field is kept in sync by do_transfer rather
// than derived on each read, matching the reference pallet's do_transfer
// walk. Name is immutable once minted; ClassID is a separate, numeric
// field that only evolve_class mutates.
type Asset struct {
	ID               types.UUID
	Name             string
	ClassID          uint32
	Creator          types.Address
	Owner            types.Address
	Parent           *types.UUID
	Children         []types.UUID
	Soulbound        bool
	XP               uint64
	Level            uint32
	Durability       uint8
	KillCount        uint64
	Resources        []Resource
	EquipSlots       []EquipmentSlot
	Delegate         *types.Address
	DelegationExpiry uint64
	LastUpdateBlock  uint64
	CustomState      []CustomStateEntry
}

// Level computes floor(sqrt(xp/100)) with a floor of 1, per
// add_experience's level formula.
func levelFor(xp uint64) uint32 {
	lv := uint32(math.Sqrt(float64(xp) / 100))
	if lv < 1 {
		lv = 1
	}
	return lv
}

type kv interface {
	Get(key []byte) ([]byte, error)
	Put(key, val []byte) error
	Delete(key []byte) error
}

// Module is the Assets module.
type Module struct {
	store kv
	clock func() uint64 // current block height, for delegation expiry checks
}

// New constructs the Assets module. clock returns the current block
// height and is supplied by the Runtime at wiring time since the module
// has no access to block context other than through OnInitialize/Execute.
func New(st kv, clock func() uint64) *Module {
	return &Module{store: st, clock: clock}
}

func (m *Module) Name() string { return moduleName }

func (m *Module) OnInitialize(height uint64) ([]types.Event, error) { return nil, nil }
func (m *Module) OnFinalize(height uint64) ([]types.Event, error)   { return nil, nil }

func assetKey(id types.UUID) []byte      { return append([]byte(moduleName+":item:"), id[:]...) }
func tradeKey(id types.UUID) []byte      { return append([]byte(moduleName+":trade:"), id[:]...) }
func inventoryKey(addr types.Address) []byte {
	return append([]byte(moduleName+":inventory:"), addr[:]...)
}
func delegatedKey(addr types.Address) []byte {
	return append([]byte(moduleName+":delegated:"), addr[:]...)
}

func (a Asset) encode() []byte {
	e := codec.NewEncoder()
	e.PutFixed(a.ID[:])
	e.PutBytes([]byte(a.Name))
	e.PutUint32(a.ClassID)
	e.PutFixed(a.Creator[:])
	e.PutFixed(a.Owner[:])
	e.PutBool(a.Parent != nil)
	if a.Parent != nil {
		e.PutFixed(a.Parent[:])
	}
	e.PutCompact(uint64(len(a.Children)))
	for _, c := range a.Children {
		e.PutFixed(c[:])
	}
	e.PutBool(a.Soulbound)
	e.PutUint64(a.XP)
	e.PutUint32(a.Level)
	e.PutUint8(a.Durability)
	e.PutUint64(a.KillCount)
	e.PutCompact(uint64(len(a.Resources)))
	for _, r := range a.Resources {
		e.PutBytes([]byte(r.Type))
		e.PutBytes([]byte(r.URI))
		e.PutUint8(r.Priority)
		e.PutCompact(uint64(len(r.ContextTags)))
		for _, tag := range r.ContextTags {
			e.PutBytes([]byte(tag))
		}
	}
	e.PutCompact(uint64(len(a.EquipSlots)))
	for _, s := range a.EquipSlots {
		e.PutBytes([]byte(s.Name))
		e.PutUint8(uint8(s.Type))
		e.PutBool(s.Occupant != nil)
		if s.Occupant != nil {
			e.PutFixed(s.Occupant[:])
		}
		e.PutBool(s.RequiredClass != nil)
		if s.RequiredClass != nil {
			e.PutUint32(*s.RequiredClass)
		}
	}
	e.PutBool(a.Delegate != nil)
	if a.Delegate != nil {
		e.PutFixed(a.Delegate[:])
	}
	e.PutUint64(a.DelegationExpiry)
	e.PutUint64(a.LastUpdateBlock)
	e.PutCompact(uint64(len(a.CustomState)))
	for _, kvp := range a.CustomState {
		e.PutBytes([]byte(kvp.Key))
		e.PutBytes(kvp.Value)
	}
	return e.Bytes()
}

func decodeAsset(b []byte) (Asset, error) {
	d := codec.NewDecoder(b)
	var a Asset
	idB, err := d.Fixed(32)
	if err != nil {
		return Asset{}, err
	}
	copy(a.ID[:], idB)
	nameB, err := d.Bytes(maxNameLength)
	if err != nil {
		return Asset{}, err
	}
	a.Name = string(nameB)
	if a.ClassID, err = d.Uint32(); err != nil {
		return Asset{}, err
	}
	creatorB, err := d.Fixed(32)
	if err != nil {
		return Asset{}, err
	}
	copy(a.Creator[:], creatorB)
	ownerB, err := d.Fixed(32)
	if err != nil {
		return Asset{}, err
	}
	copy(a.Owner[:], ownerB)

	hasParent, err := d.Bool()
	if err != nil {
		return Asset{}, err
	}
	if hasParent {
		pB, err := d.Fixed(32)
		if err != nil {
			return Asset{}, err
		}
		var p types.UUID
		copy(p[:], pB)
		a.Parent = &p
	}

	nChild, err := d.Compact()
	if err != nil {
		return Asset{}, err
	}
	if nChild > maxChildren {
		return Asset{}, chainerr.New(chainerr.DecodeBound, "children %d exceeds max", nChild)
	}
	a.Children = make([]types.UUID, nChild)
	for i := range a.Children {
		cB, err := d.Fixed(32)
		if err != nil {
			return Asset{}, err
		}
		copy(a.Children[i][:], cB)
	}

	if a.Soulbound, err = d.Bool(); err != nil {
		return Asset{}, err
	}
	if a.XP, err = d.Uint64(); err != nil {
		return Asset{}, err
	}
	if a.Level, err = d.Uint32(); err != nil {
		return Asset{}, err
	}
	if a.Durability, err = d.Uint8(); err != nil {
		return Asset{}, err
	}
	if a.KillCount, err = d.Uint64(); err != nil {
		return Asset{}, err
	}

	nRes, err := d.Compact()
	if err != nil {
		return Asset{}, err
	}
	if nRes > maxResources {
		return Asset{}, chainerr.New(chainerr.DecodeBound, "resources %d exceeds max", nRes)
	}
	a.Resources = make([]Resource, nRes)
	for i := range a.Resources {
		typeB, err := d.Bytes(maxResourceTypeLength)
		if err != nil {
			return Asset{}, err
		}
		uriB, err := d.Bytes(maxResourceURILength)
		if err != nil {
			return Asset{}, err
		}
		priority, err := d.Uint8()
		if err != nil {
			return Asset{}, err
		}
		nTags, err := d.Compact()
		if err != nil {
			return Asset{}, err
		}
		if nTags > maxContextTags {
			return Asset{}, chainerr.New(chainerr.DecodeBound, "context tags %d exceeds max", nTags)
		}
		tags := make([]string, nTags)
		for j := range tags {
			tagB, err := d.Bytes(maxContextTagLength)
			if err != nil {
				return Asset{}, err
			}
			tags[j] = string(tagB)
		}
		a.Resources[i] = Resource{Type: string(typeB), URI: string(uriB), Priority: priority, ContextTags: tags}
	}

	nSlots, err := d.Compact()
	if err != nil {
		return Asset{}, err
	}
	if nSlots > maxEquipSlots {
		return Asset{}, chainerr.New(chainerr.DecodeBound, "equip slots %d exceeds max", nSlots)
	}
	a.EquipSlots = make([]EquipmentSlot, nSlots)
	for i := range a.EquipSlots {
		nameB, err := d.Bytes(maxSlotNameLength)
		if err != nil {
			return Asset{}, err
		}
		t, err := d.Uint8()
		if err != nil {
			return Asset{}, err
		}
		hasOcc, err := d.Bool()
		if err != nil {
			return Asset{}, err
		}
		slot := EquipmentSlot{Name: string(nameB), Type: SlotType(t)}
		if hasOcc {
			occB, err := d.Fixed(32)
			if err != nil {
				return Asset{}, err
			}
			var occ types.UUID
			copy(occ[:], occB)
			slot.Occupant = &occ
		}
		hasReqClass, err := d.Bool()
		if err != nil {
			return Asset{}, err
		}
		if hasReqClass {
			rc, err := d.Uint32()
			if err != nil {
				return Asset{}, err
			}
			slot.RequiredClass = &rc
		}
		a.EquipSlots[i] = slot
	}

	hasDelegate, err := d.Bool()
	if err != nil {
		return Asset{}, err
	}
	if hasDelegate {
		delB, err := d.Fixed(32)
		if err != nil {
			return Asset{}, err
		}
		var del types.Address
		copy(del[:], delB)
		a.Delegate = &del
	}
	if a.DelegationExpiry, err = d.Uint64(); err != nil {
		return Asset{}, err
	}
	if a.LastUpdateBlock, err = d.Uint64(); err != nil {
		return Asset{}, err
	}

	nState, err := d.Compact()
	if err != nil {
		return Asset{}, err
	}
	if nState > maxCustomState {
		return Asset{}, chainerr.New(chainerr.DecodeBound, "custom state %d exceeds max", nState)
	}
	a.CustomState = make([]CustomStateEntry, nState)
	for i := range a.CustomState {
		keyB, err := d.Bytes(maxCustomStateKeyLength)
		if err != nil {
			return Asset{}, err
		}
		valB, err := d.Bytes(maxCustomStateValueLength)
		if err != nil {
			return Asset{}, err
		}
		a.CustomState[i] = CustomStateEntry{Key: string(keyB), Value: valB}
	}
	return a, nil
}

func (m *Module) get(id types.UUID) (Asset, bool, error) {
	raw, err := m.store.Get(assetKey(id))
	if err != nil || raw == nil {
		return Asset{}, false, err
	}
	a, err := decodeAsset(raw)
	return a, err == nil, err
}

func (m *Module) save(a Asset) error {
	return m.store.Put(assetKey(a.ID), a.encode())
}

func encodeUUIDList(list []types.UUID) []byte {
	e := codec.NewEncoder()
	e.PutCompact(uint64(len(list)))
	for _, u := range list {
		e.PutFixed(u[:])
	}
	return e.Bytes()
}

func decodeUUIDList(b []byte) ([]types.UUID, error) {
	d := codec.NewDecoder(b)
	n, err := d.Compact()
	if err != nil {
		return nil, err
	}
	if n > maxItemsPerAccount {
		return nil, chainerr.New(chainerr.DecodeBound, "list %d exceeds max", n)
	}
	out := make([]types.UUID, n)
	for i := range out {
		ub, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		copy(out[i][:], ub)
	}
	return out, nil
}

func (m *Module) getUUIDList(key []byte) ([]types.UUID, error) {
	raw, err := m.store.Get(key)
	if err != nil || raw == nil {
		return nil, err
	}
	return decodeUUIDList(raw)
}

// InventoryOf returns the bounded list of top-level items an address owns,
// the per-account index Mint/Nest/Unnest/do_transfer maintain.
func (m *Module) InventoryOf(owner types.Address) ([]types.UUID, error) {
	return m.getUUIDList(inventoryKey(owner))
}

// DelegatedTo returns the bounded list of items for which delegate
// currently holds an active delegation, the reverse index delegate/
// revoke_delegation/do_transfer maintain.
func (m *Module) DelegatedTo(delegate types.Address) ([]types.UUID, error) {
	return m.getUUIDList(delegatedKey(delegate))
}

func (m *Module) addToInventory(owner types.Address, item types.UUID) error {
	list, err := m.getUUIDList(inventoryKey(owner))
	if err != nil {
		return err
	}
	if len(list) >= maxItemsPerAccount {
		return chainerr.New(chainerr.InventoryFull, "account at max %d items", maxItemsPerAccount)
	}
	list = append(list, item)
	return m.store.Put(inventoryKey(owner), encodeUUIDList(list))
}

func (m *Module) removeFromInventory(owner types.Address, item types.UUID) error {
	list, err := m.getUUIDList(inventoryKey(owner))
	if err != nil {
		return err
	}
	return m.store.Put(inventoryKey(owner), encodeUUIDList(removeUUID(list, item)))
}

func (m *Module) addDelegated(delegate types.Address, item types.UUID) error {
	list, err := m.getUUIDList(delegatedKey(delegate))
	if err != nil {
		return err
	}
	if len(list) >= maxItemsPerAccount {
		return chainerr.New(chainerr.InventoryFull, "delegate at max %d delegated items", maxItemsPerAccount)
	}
	list = append(list, item)
	return m.store.Put(delegatedKey(delegate), encodeUUIDList(list))
}

func (m *Module) removeDelegated(delegate types.Address, item types.UUID) error {
	list, err := m.getUUIDList(delegatedKey(delegate))
	if err != nil {
		return err
	}
	return m.store.Put(delegatedKey(delegate), encodeUUIDList(removeUUID(list, item)))
}

// Mint creates a new top-level item owned by creator, with a
// blake2_256(creator || asset_path || block_number)-derived UUID, and adds
// it to creator's inventory index.
func (m *Module) Mint(creator types.Address, className, assetPath string, soulbound bool) (types.UUID, error) {
	if len(className) == 0 || len(className) > maxNameLength {
		return types.UUID{}, chainerr.New(chainerr.InvalidUsername, "class name length %d outside bounds", len(className))
	}
	if len(assetPath) > maxAssetPathLength {
		return types.UUID{}, chainerr.New(chainerr.DecodeBound, "asset path length %d exceeds max", len(assetPath))
	}
	height := m.clock()
	var heightBuf [8]byte
	for i := 0; i < 8; i++ {
		heightBuf[i] = byte(height >> (8 * i))
	}
	h := types.Blake2b256(creator[:], []byte(assetPath), heightBuf[:])
	id := types.UUID(h)

	if _, exists, err := m.get(id); err != nil {
		return types.UUID{}, err
	} else if exists {
		return types.UUID{}, chainerr.New(chainerr.AlreadyExists, "item id collision")
	}

	a := Asset{
		ID:              id,
		Name:            className,
		ClassID:         1,
		Creator:         creator,
		Owner:           creator,
		Soulbound:       soulbound,
		Level:           1,
		Durability:      100,
		LastUpdateBlock: height,
	}
	if err := m.save(a); err != nil {
		return types.UUID{}, err
	}
	if err := m.addToInventory(creator, id); err != nil {
		return types.UUID{}, err
	}
	return id, nil
}

// ensureCanModify authorizes owner or an unexpired delegate, per
// ensure_can_modify.
func (m *Module) ensureCanModify(a Asset, caller types.Address) error {
	if a.Owner == caller {
		return nil
	}
	if a.Delegate != nil && *a.Delegate == caller {
		if a.DelegationExpiry == 0 || a.DelegationExpiry > m.clock() {
			return nil
		}
		return chainerr.New(chainerr.DelegationExpired, "delegation expired at height %d", a.DelegationExpiry)
	}
	return chainerr.New(chainerr.NotOwner, "caller is neither owner nor active delegate")
}

// ensureIsMover authorizes the item's owner only, per the reference
// pallet's ensure!(owner == who, ...) gate on increment_kill_count and
// evolve_class: an active delegate cannot invoke these.
func (m *Module) ensureIsMover(a Asset, caller types.Address) error {
	if a.Owner != caller {
		return chainerr.New(chainerr.NotOwner, "caller is not the owner")
	}
	return nil
}

// ensureNoCycle walks upward from candidate's prospective parent looking
// for candidate itself, capped at maxNestingDepth hops.
func (m *Module) ensureNoCycle(candidate, newParent types.UUID) error {
	cur := newParent
	for depth := 0; depth < maxNestingDepth; depth++ {
		if cur == candidate {
			return chainerr.New(chainerr.Cycle, "nesting would create a cycle")
		}
		a, ok, err := m.get(cur)
		if err != nil {
			return err
		}
		if !ok || a.Parent == nil {
			return nil
		}
		cur = *a.Parent
	}
	return chainerr.New(chainerr.Cycle, "nesting depth exceeds %d", maxNestingDepth)
}

// Nest attaches item as a child of parent. Only leaf (childless) items may
// be nested, matching the reference pallet's leaf-only constraint, though a
// nesting that would make item its own ancestor is refused with Cycle
// before the leaf check runs. Nesting removes item from its owner's
// top-level inventory index, since a nested item is no longer addressable
// as a top-level holding.
func (m *Module) Nest(caller types.Address, item, parent types.UUID) error {
	child, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(child, caller); err != nil {
		return err
	}
	if child.Soulbound {
		return chainerr.New(chainerr.Soulbound, "soulbound items cannot be nested")
	}
	if err := m.ensureNoCycle(item, parent); err != nil {
		return err
	}
	if len(child.Children) > 0 {
		return chainerr.New(chainerr.HasChildren, "only leaf items may be nested")
	}
	if child.Parent != nil {
		return chainerr.New(chainerr.AlreadyNested, "item already nested")
	}

	parentAsset, ok, err := m.get(parent)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "parent not found")
	}
	if err := m.ensureCanModify(parentAsset, caller); err != nil {
		return err
	}
	if len(parentAsset.Children) >= maxChildren {
		return chainerr.New(chainerr.TooManyChildren, "parent at max children %d", maxChildren)
	}

	previousOwner := child.Owner
	child.Parent = &parent
	child.Owner = parentAsset.Owner
	child.LastUpdateBlock = m.clock()
	parentAsset.Children = append(parentAsset.Children, item)
	parentAsset.LastUpdateBlock = m.clock()

	if err := m.save(child); err != nil {
		return err
	}
	if err := m.save(parentAsset); err != nil {
		return err
	}
	return m.removeFromInventory(previousOwner, item)
}

// Unnest detaches item from its parent back into its owner's top-level
// inventory.
func (m *Module) Unnest(caller types.Address, item types.UUID) error {
	child, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if child.Parent == nil {
		return chainerr.New(chainerr.ItemNotFound, "item is not nested")
	}
	if err := m.ensureCanModify(child, caller); err != nil {
		return err
	}
	parentAsset, ok, err := m.get(*child.Parent)
	if err != nil {
		return err
	}
	if ok {
		parentAsset.Children = removeUUID(parentAsset.Children, item)
		parentAsset.LastUpdateBlock = m.clock()
		if err := m.save(parentAsset); err != nil {
			return err
		}
	}
	child.Parent = nil
	child.LastUpdateBlock = m.clock()
	if err := m.save(child); err != nil {
		return err
	}
	return m.addToInventory(child.Owner, item)
}

func removeUUID(list []types.UUID, target types.UUID) []types.UUID {
	out := list[:0]
	for _, u := range list {
		if u != target {
			out = append(out, u)
		}
	}
	return out
}

// doTransfer atomically rewrites the owner of item and its entire subtree,
// clearing any delegation (and the delegation reverse index) throughout
// the subtree. Only the top-level moved item's inventory entries change;
// nested descendants move with their root without touching any inventory.
func (m *Module) doTransfer(item types.UUID, newOwner types.Address) error {
	return m.transferSubtree(item, newOwner, true)
}

func (m *Module) transferSubtree(item types.UUID, newOwner types.Address, topLevel bool) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	oldOwner := a.Owner
	if a.Delegate != nil {
		if err := m.removeDelegated(*a.Delegate, item); err != nil {
			return err
		}
	}
	a.Owner = newOwner
	a.Delegate = nil
	a.DelegationExpiry = 0
	a.LastUpdateBlock = m.clock()
	if err := m.save(a); err != nil {
		return err
	}
	if topLevel {
		if err := m.removeFromInventory(oldOwner, item); err != nil {
			return err
		}
		if err := m.addToInventory(newOwner, item); err != nil {
			return err
		}
	}
	for _, child := range a.Children {
		if err := m.transferSubtree(child, newOwner, false); err != nil {
			return err
		}
	}
	return nil
}

// InitiateTrade opens a fixed-price offer to sell a top-level, non-soulbound
// item the caller owns.
func (m *Module) InitiateTrade(seller types.Address, item types.UUID, price uint64, royaltyBps uint32) (types.UUID, error) {
	a, ok, err := m.get(item)
	if err != nil {
		return types.UUID{}, err
	}
	if !ok {
		return types.UUID{}, chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if a.Owner != seller {
		return types.UUID{}, chainerr.New(chainerr.NotOwner, "caller does not own item")
	}
	if a.Soulbound {
		return types.UUID{}, chainerr.New(chainerr.Soulbound, "soulbound items cannot be traded")
	}
	if a.Parent != nil {
		return types.UUID{}, chainerr.New(chainerr.AlreadyNested, "nested items cannot be traded directly")
	}

	nonce := uuid.New()
	tradeID := types.UUID(types.Blake2b256(item[:], seller[:], nonce[:]))
	offer := TradeOffer{ID: tradeID, Item: item, Seller: seller, Price: price, RoyaltyBps: royaltyBps, Status: TradeOpen}
	if err := m.saveTrade(offer); err != nil {
		return types.UUID{}, err
	}
	return tradeID, nil
}

func (o TradeOffer) encode() []byte {
	e := codec.NewEncoder()
	e.PutFixed(o.ID[:])
	e.PutFixed(o.Item[:])
	e.PutFixed(o.Seller[:])
	e.PutUint64(o.Price)
	e.PutUint32(o.RoyaltyBps)
	e.PutUint8(uint8(o.Status))
	return e.Bytes()
}

func decodeTrade(b []byte) (TradeOffer, error) {
	d := codec.NewDecoder(b)
	var o TradeOffer
	idB, err := d.Fixed(32)
	if err != nil {
		return TradeOffer{}, err
	}
	copy(o.ID[:], idB)
	itemB, err := d.Fixed(32)
	if err != nil {
		return TradeOffer{}, err
	}
	copy(o.Item[:], itemB)
	sellerB, err := d.Fixed(32)
	if err != nil {
		return TradeOffer{}, err
	}
	copy(o.Seller[:], sellerB)
	if o.Price, err = d.Uint64(); err != nil {
		return TradeOffer{}, err
	}
	if o.RoyaltyBps, err = d.Uint32(); err != nil {
		return TradeOffer{}, err
	}
	statusB, err := d.Uint8()
	if err != nil {
		return TradeOffer{}, err
	}
	o.Status = TradeStatus(statusB)
	return o, nil
}

func (m *Module) saveTrade(o TradeOffer) error { return m.store.Put(tradeKey(o.ID), o.encode()) }

func (m *Module) getTrade(id types.UUID) (TradeOffer, bool, error) {
	raw, err := m.store.Get(tradeKey(id))
	if err != nil || raw == nil {
		return TradeOffer{}, false, err
	}
	o, err := decodeTrade(raw)
	return o, err == nil, err
}

// PayFunc transfers amount from buyer to recipient; the Assets module has
// no balance authority of its own and is wired to the Accounts module's
// Transfer at the caller's discretion (e.g. by the runtime call dispatcher
// composing both modules' Execute calls, or by a thin adapter closure).
type PayFunc func(from, to types.Address, amount uint64) error

// AcceptTrade performs the atomic subtree ownership transfer and a
// best-effort royalty payment to the item's original creator; a failed
// royalty payment does not revert the trade, matching accept_trade's
// reference behavior.
func (m *Module) AcceptTrade(buyer types.Address, tradeID types.UUID, pay PayFunc) error {
	offer, ok, err := m.getTrade(tradeID)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "trade not found")
	}
	if offer.Status != TradeOpen {
		return chainerr.New(chainerr.ProposalClosed, "trade is not open")
	}
	if buyer == offer.Seller {
		return chainerr.New(chainerr.SelfTransfer, "cannot accept own trade")
	}

	item, ok, err := m.get(offer.Item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "traded item no longer exists")
	}

	if err := pay(buyer, offer.Seller, offer.Price); err != nil {
		return err
	}
	if err := m.doTransfer(offer.Item, buyer); err != nil {
		return err
	}

	if offer.RoyaltyBps > 0 {
		royalty := offer.Price * uint64(offer.RoyaltyBps) / 10000
		if royalty > 0 {
			_ = pay(buyer, item.Creator, royalty) // best effort, never reverts the trade
		}
	}

	offer.Status = TradeAccepted
	return m.saveTrade(offer)
}

// CancelTrade closes an open trade; only the seller may cancel.
func (m *Module) CancelTrade(caller types.Address, tradeID types.UUID) error {
	offer, ok, err := m.getTrade(tradeID)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "trade not found")
	}
	if offer.Seller != caller {
		return chainerr.New(chainerr.NotOwner, "only the seller may cancel")
	}
	if offer.Status != TradeOpen {
		return chainerr.New(chainerr.ProposalClosed, "trade is not open")
	}
	offer.Status = TradeCancelled
	return m.saveTrade(offer)
}

// AddExperience adds xp and recomputes Level via levelFor.
func (m *Module) AddExperience(caller types.Address, item types.UUID, xp uint64) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	a.XP += xp
	a.Level = levelFor(a.XP)
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// UpdateDurability clamps the new durability into [0,100].
func (m *Module) UpdateDurability(caller types.Address, item types.UUID, delta int16) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	next := int16(a.Durability) + delta
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	a.Durability = uint8(next)
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// IncrementKillCount performs a fixed saturating +1, owner-only per the
// reference pallet's ensure!(owner == who, ...) gate — an active delegate
// cannot call this even though it can modify XP or durability.
func (m *Module) IncrementKillCount(caller types.Address, item types.UUID) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureIsMover(a, caller); err != nil {
		return err
	}
	if a.KillCount < math.MaxUint64 {
		a.KillCount++
	}
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// EvolveClass sets an item's numeric class id once it has reached
// evolveLevelGate, owner-only per the reference pallet.
func (m *Module) EvolveClass(caller types.Address, item types.UUID, newClassID uint32) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureIsMover(a, caller); err != nil {
		return err
	}
	if a.Level < evolveLevelGate {
		return chainerr.New(chainerr.CannotEvolve, "level %d below required %d", a.Level, evolveLevelGate)
	}
	a.ClassID = newClassID
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// AddResource appends a bounded metadata resource: a typed URI with a
// display priority and up to maxContextTags free-form tags.
func (m *Module) AddResource(caller types.Address, item types.UUID, resourceType, uri string, priority uint8, contextTags []string) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	if len(resourceType) == 0 || len(resourceType) > maxResourceTypeLength {
		return chainerr.New(chainerr.DecodeBound, "resource type length %d outside bounds", len(resourceType))
	}
	if len(uri) == 0 || len(uri) > maxResourceURILength {
		return chainerr.New(chainerr.DecodeBound, "resource uri length %d outside bounds", len(uri))
	}
	if len(contextTags) > maxContextTags {
		return chainerr.New(chainerr.TooManyResources, "context tags %d exceeds max %d", len(contextTags), maxContextTags)
	}
	for _, tag := range contextTags {
		if len(tag) > maxContextTagLength {
			return chainerr.New(chainerr.DecodeBound, "context tag length %d exceeds max %d", len(tag), maxContextTagLength)
		}
	}
	if len(a.Resources) >= maxResources {
		return chainerr.New(chainerr.TooManyResources, "resources at max %d", maxResources)
	}
	a.Resources = append(a.Resources, Resource{Type: resourceType, URI: uri, Priority: priority, ContextTags: contextTags})
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// RemoveResource removes the resource matching (resourceType, uri), if present.
func (m *Module) RemoveResource(caller types.Address, item types.UUID, resourceType, uri string) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	out := a.Resources[:0]
	found := false
	for _, r := range a.Resources {
		if r.Type == resourceType && r.URI == uri {
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		return chainerr.New(chainerr.ResourceNotFound, "%s %s", resourceType, uri)
	}
	a.Resources = out
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// AddEquipmentSlot defines a new named slot on item, bounded by
// maxEquipSlots. requiredClass, when non-nil, restricts the slot to
// children whose ClassID matches exactly.
func (m *Module) AddEquipmentSlot(caller types.Address, item types.UUID, name string, slotType SlotType, requiredClass *uint32) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	if len(name) == 0 || len(name) > maxSlotNameLength {
		return chainerr.New(chainerr.DecodeBound, "slot name length %d outside bounds", len(name))
	}
	if len(a.EquipSlots) >= maxEquipSlots {
		return chainerr.New(chainerr.TooManyItems, "equipment slots at max %d", maxEquipSlots)
	}
	for _, s := range a.EquipSlots {
		if s.Name == name {
			return chainerr.New(chainerr.AlreadyExists, "slot %s already defined", name)
		}
	}
	a.EquipSlots = append(a.EquipSlots, EquipmentSlot{Name: name, Type: slotType, RequiredClass: requiredClass})
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// Equip attaches child into a named slot of item. The child must not
// already be nested or equipped (its Parent is unset), must be an item the
// caller can modify, and must match the slot's RequiredClass when one is
// set.
func (m *Module) Equip(caller types.Address, item types.UUID, slotName string, child types.UUID) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	idx := -1
	for i, s := range a.EquipSlots {
		if s.Name == slotName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return chainerr.New(chainerr.SlotNotFound, "%s", slotName)
	}
	if a.EquipSlots[idx].Occupant != nil {
		return chainerr.New(chainerr.SlotOccupied, "%s", slotName)
	}

	childAsset, ok, err := m.get(child)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "child item not found")
	}
	if childAsset.Parent != nil {
		return chainerr.New(chainerr.AlreadyNested, "child already nested or equipped")
	}
	if err := m.ensureCanModify(childAsset, caller); err != nil {
		return err
	}
	if rc := a.EquipSlots[idx].RequiredClass; rc != nil && childAsset.ClassID != *rc {
		return chainerr.New(chainerr.ClassMismatch, "slot %s requires class %d, child is class %d", slotName, *rc, childAsset.ClassID)
	}

	previousOwner := childAsset.Owner
	c := child
	a.EquipSlots[idx].Occupant = &c
	a.LastUpdateBlock = m.clock()
	childAsset.Parent = &item
	childAsset.Owner = a.Owner
	childAsset.LastUpdateBlock = m.clock()

	if err := m.save(childAsset); err != nil {
		return err
	}
	if err := m.save(a); err != nil {
		return err
	}
	return m.removeFromInventory(previousOwner, child)
}

// Unequip detaches the occupant of a named slot, restoring it to its
// owner's top-level inventory.
func (m *Module) Unequip(caller types.Address, item types.UUID, slotName string) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if err := m.ensureCanModify(a, caller); err != nil {
		return err
	}
	idx := -1
	for i, s := range a.EquipSlots {
		if s.Name == slotName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return chainerr.New(chainerr.SlotNotFound, "%s", slotName)
	}
	if a.EquipSlots[idx].Occupant == nil {
		return chainerr.New(chainerr.SlotNotFound, "slot %s is empty", slotName)
	}
	childID := *a.EquipSlots[idx].Occupant
	a.EquipSlots[idx].Occupant = nil
	a.LastUpdateBlock = m.clock()

	childAsset, ok, err := m.get(childID)
	if err != nil {
		return err
	}
	if ok {
		childAsset.Parent = nil
		childAsset.LastUpdateBlock = m.clock()
		if err := m.save(childAsset); err != nil {
			return err
		}
		if err := m.addToInventory(childAsset.Owner, childID); err != nil {
			return err
		}
	}
	return m.save(a)
}

// Delegate grants a time-bounded modifier capability over item, recording
// the grant in the delegate's reverse index.
func (m *Module) Delegate(owner types.Address, item types.UUID, delegate types.Address, expiry uint64) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if a.Owner != owner {
		return chainerr.New(chainerr.NotOwner, "only the owner may delegate")
	}
	if a.Delegate != nil && (a.DelegationExpiry == 0 || a.DelegationExpiry > m.clock()) {
		return chainerr.New(chainerr.AlreadyDelegated, "item already has an active delegate")
	}
	d := delegate
	a.Delegate = &d
	a.DelegationExpiry = expiry
	a.LastUpdateBlock = m.clock()
	if err := m.save(a); err != nil {
		return err
	}
	return m.addDelegated(delegate, item)
}

// RevokeDelegation clears any active delegation and its reverse-index
// entry, callable by the owner at any time regardless of expiry.
func (m *Module) RevokeDelegation(owner types.Address, item types.UUID) error {
	a, ok, err := m.get(item)
	if err != nil {
		return err
	}
	if !ok {
		return chainerr.New(chainerr.ItemNotFound, "item not found")
	}
	if a.Owner != owner {
		return chainerr.New(chainerr.NotOwner, "only the owner may revoke delegation")
	}
	if a.Delegate != nil {
		if err := m.removeDelegated(*a.Delegate, item); err != nil {
			return err
		}
	}
	a.Delegate = nil
	a.DelegationExpiry = 0
	a.LastUpdateBlock = m.clock()
	return m.save(a)
}

// Get exposes a read-only view of an item.
func (m *Module) Get(id types.UUID) (Asset, bool, error) { return m.get(id) }

// GetTrade exposes a read-only view of a trade offer.
func (m *Module) GetTrade(id types.UUID) (TradeOffer, bool, error) { return m.getTrade(id) }

// Execute dispatches a tagged call per the Registry contract. Every call
// that needs no external collaborator is wired here; AcceptTrade is
// invoked directly by composing code since it needs a PayFunc bound to
// the Accounts module, which a tagged-sum call payload cannot carry.
func (m *Module) Execute(call types.Call) ([]types.Event, error) {
	d := codec.NewDecoder(call.Payload)
	switch call.CallIndex {
	case CallMint:
		creatorB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		nameB, err := d.Bytes(maxNameLength)
		if err != nil {
			return nil, err
		}
		pathB, err := d.Bytes(maxAssetPathLength)
		if err != nil {
			return nil, err
		}
		soulbound, err := d.Bool()
		if err != nil {
			return nil, err
		}
		var creator types.Address
		copy(creator[:], creatorB)
		if _, err := m.Mint(creator, string(nameB), string(pathB), soulbound); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Minted"}}, nil

	case CallInitiateTrade:
		sellerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		itemB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		price, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		royaltyBps, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		var seller types.Address
		copy(seller[:], sellerB)
		var item types.UUID
		copy(item[:], itemB)
		if _, err := m.InitiateTrade(seller, item, price, royaltyBps); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "TradeInitiated"}}, nil

	case CallCancelTrade:
		callerB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		tradeB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		var caller types.Address
		copy(caller[:], callerB)
		var tradeID types.UUID
		copy(tradeID[:], tradeB)
		if err := m.CancelTrade(caller, tradeID); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "TradeCancelled"}}, nil

	case CallAddExperience:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		xp, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		if err := m.AddExperience(caller, item, xp); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ExperienceAdded"}}, nil

	case CallUpdateDurability:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		raw, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		delta := int16(int32(raw))
		if err := m.UpdateDurability(caller, item, delta); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "DurabilityUpdated"}}, nil

	case CallIncrementKillCount:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		if err := m.IncrementKillCount(caller, item); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "KillCountIncremented"}}, nil

	case CallEvolveClass:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		newClassID, err := d.Uint32()
		if err != nil {
			return nil, err
		}
		if err := m.EvolveClass(caller, item, newClassID); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ClassEvolved"}}, nil

	case CallAddResource:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		typeB, err := d.Bytes(maxResourceTypeLength)
		if err != nil {
			return nil, err
		}
		uriB, err := d.Bytes(maxResourceURILength)
		if err != nil {
			return nil, err
		}
		priority, err := d.Uint8()
		if err != nil {
			return nil, err
		}
		nTags, err := d.Compact()
		if err != nil {
			return nil, err
		}
		if nTags > maxContextTags {
			return nil, chainerr.New(chainerr.DecodeBound, "context tags %d exceeds max", nTags)
		}
		tags := make([]string, nTags)
		for i := range tags {
			tagB, err := d.Bytes(maxContextTagLength)
			if err != nil {
				return nil, err
			}
			tags[i] = string(tagB)
		}
		if err := m.AddResource(caller, item, string(typeB), string(uriB), priority, tags); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ResourceAdded"}}, nil

	case CallRemoveResource:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		typeB, err := d.Bytes(maxResourceTypeLength)
		if err != nil {
			return nil, err
		}
		uriB, err := d.Bytes(maxResourceURILength)
		if err != nil {
			return nil, err
		}
		if err := m.RemoveResource(caller, item, string(typeB), string(uriB)); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "ResourceRemoved"}}, nil

	case CallNest:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		parentB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		var parent types.UUID
		copy(parent[:], parentB)
		if err := m.Nest(caller, item, parent); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Nested"}}, nil

	case CallUnnest:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		if err := m.Unnest(caller, item); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Unnested"}}, nil

	case CallEquip:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		slotB, err := d.Bytes(maxSlotNameLength)
		if err != nil {
			return nil, err
		}
		childB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		var child types.UUID
		copy(child[:], childB)
		if err := m.Equip(caller, item, string(slotB), child); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Equipped"}}, nil

	case CallUnequip:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		slotB, err := d.Bytes(maxSlotNameLength)
		if err != nil {
			return nil, err
		}
		if err := m.Unequip(caller, item, string(slotB)); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Unequipped"}}, nil

	case CallAddEquipmentSlot:
		caller, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		nameB, err := d.Bytes(maxSlotNameLength)
		if err != nil {
			return nil, err
		}
		slotType, err := d.Uint8()
		if err != nil {
			return nil, err
		}
		hasReqClass, err := d.Bool()
		if err != nil {
			return nil, err
		}
		var requiredClass *uint32
		if hasReqClass {
			rc, err := d.Uint32()
			if err != nil {
				return nil, err
			}
			requiredClass = &rc
		}
		if err := m.AddEquipmentSlot(caller, item, string(nameB), SlotType(slotType), requiredClass); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "EquipmentSlotAdded"}}, nil

	case CallDelegate:
		owner, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		delegateB, err := d.Fixed(32)
		if err != nil {
			return nil, err
		}
		expiry, err := d.Uint64()
		if err != nil {
			return nil, err
		}
		var delegate types.Address
		copy(delegate[:], delegateB)
		if err := m.Delegate(owner, item, delegate, expiry); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "Delegated"}}, nil

	case CallRevokeDelegation:
		owner, item, err := decodeCallerItem(d)
		if err != nil {
			return nil, err
		}
		if err := m.RevokeDelegation(owner, item); err != nil {
			return nil, err
		}
		return []types.Event{{Module: moduleName, Name: "DelegationRevoked"}}, nil

	default:
		return nil, chainerr.New(chainerr.UnknownCall, "assets call index %d", call.CallIndex)
	}
}

// decodeCallerItem reads the (caller address, item UUID) pair shared by
// the payload header of every per-item call.
func decodeCallerItem(d *codec.Decoder) (types.Address, types.UUID, error) {
	callerB, err := d.Fixed(32)
	if err != nil {
		return types.Address{}, types.UUID{}, err
	}
	itemB, err := d.Fixed(32)
	if err != nil {
		return types.Address{}, types.UUID{}, err
	}
	var caller types.Address
	copy(caller[:], callerB)
	var item types.UUID
	copy(item[:], itemB)
	return caller, item, nil
}
