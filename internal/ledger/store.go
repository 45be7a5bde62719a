// Package ledger owns every token balance. All other engines mutate tallies
// exclusively through a *Store handed to them by the caller.
package ledger

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

// TallyType selects one of the buckets an address holds a property in.
type TallyType int

const (
	Balance TallyType = iota
	OfferReserve
	AcceptReserve
	MetaDExReserve
	MarginReserve
	ChannelReserve

	NumTallyTypes
)

func (tt TallyType) String() string {
	switch tt {
	case Balance:
		return "balance"
	case OfferReserve:
		return "offer"
	case AcceptReserve:
		return "accept"
	case MetaDExReserve:
		return "metadex"
	case MarginReserve:
		return "margin"
	case ChannelReserve:
		return "channel"
	default:
		return fmt.Sprintf("tally(%d)", int(tt))
	}
}

// Tally holds the amounts of one property an address owns, per bucket.
type Tally [NumTallyTypes]int64

// Reserved is the sum of every bucket except the spendable balance.
func (t Tally) Reserved() int64 {
	var sum int64
	for tt := OfferReserve; tt < NumTallyTypes; tt++ {
		sum += t[tt]
	}
	return sum
}

// Total is the sum of all buckets.
func (t Tally) Total() int64 { return t[Balance] + t.Reserved() }

func (t Tally) isZero() bool { return t == Tally{} }

// Store is the property registry together with all tallies.
type Store struct {
	properties map[types.PropertyID]*Property
	nextID     types.PropertyID
	tallies    map[types.Address]map[types.PropertyID]*Tally
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		properties: make(map[types.PropertyID]*Property),
		nextID:     types.FirstUserProperty,
		tallies:    make(map[types.Address]map[types.PropertyID]*Tally),
	}
}

// Get returns the amount held in one bucket.
func (s *Store) Get(addr types.Address, id types.PropertyID, tt TallyType) int64 {
	if t := s.tally(addr, id); t != nil {
		return t[tt]
	}
	return 0
}

// Balance returns the spendable balance.
func (s *Store) Balance(addr types.Address, id types.PropertyID) int64 {
	return s.Get(addr, id, Balance)
}

// Tally returns a copy of every bucket of addr in id.
func (s *Store) Tally(addr types.Address, id types.PropertyID) Tally {
	if t := s.tally(addr, id); t != nil {
		return *t
	}
	return Tally{}
}

func (s *Store) tally(addr types.Address, id types.PropertyID) *Tally {
	if byProp, ok := s.tallies[addr]; ok {
		return byProp[id]
	}
	return nil
}

// Transfer moves amount of spendable balance between two addresses.
func (s *Store) Transfer(from, to types.Address, id types.PropertyID, amount int64) error {
	return s.Move(from, Balance, to, Balance, id, amount)
}

// Reserve moves amount from the balance of addr into bucket tt.
func (s *Store) Reserve(addr types.Address, id types.PropertyID, amount int64, tt TallyType) error {
	return s.Move(addr, Balance, addr, tt, id, amount)
}

// Unreserve moves amount from bucket tt back to the balance of addr.
func (s *Store) Unreserve(addr types.Address, id types.PropertyID, amount int64, tt TallyType) error {
	return s.Move(addr, tt, addr, Balance, id, amount)
}

// Move debits one bucket and credits another. The store is unchanged when
// the source bucket holds less than amount.
func (s *Store) Move(from types.Address, fromTT TallyType, to types.Address, toTT TallyType, id types.PropertyID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.checkFungible(id); err != nil {
		return err
	}
	if have := s.Get(from, id, fromTT); have < amount {
		return fmt.Errorf("%w: %s has %d %s of property %d, needs %d", ErrInsufficientBalance, from, have, fromTT, id, amount)
	}
	if _, overflow := tlmath.SafeAdd(s.Get(to, id, toTT), amount); overflow {
		return ErrOverflow
	}
	s.add(from, id, fromTT, -amount)
	s.add(to, id, toTT, amount)
	return nil
}

// Issue creates amount new units of id on the balance of addr.
func (s *Store) Issue(addr types.Address, id types.PropertyID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.checkFungible(id); err != nil {
		return err
	}
	p := s.properties[id]
	total, overflow := tlmath.SafeAdd(p.TotalTokens, amount)
	if overflow {
		return ErrOverflow
	}
	p.TotalTokens = total
	s.add(addr, id, Balance, amount)
	return nil
}

// Burn destroys amount units of id from the balance of addr.
func (s *Store) Burn(addr types.Address, id types.PropertyID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.checkFungible(id); err != nil {
		return err
	}
	if have := s.Balance(addr, id); have < amount {
		return fmt.Errorf("%w: %s has %d of property %d, burning %d", ErrInsufficientBalance, addr, have, id, amount)
	}
	s.properties[id].TotalTokens -= amount
	s.add(addr, id, Balance, -amount)
	return nil
}

// Sent is one property moved by SendAll.
type Sent struct {
	PropertyID types.PropertyID
	Amount     int64
	Fee        int64
}

// SendAll moves every balance of from that passes filter to to. A fee of
// floor(balance*feeRate) per property is diverted to the fee cache.
func (s *Store) SendAll(from, to types.Address, filter func(types.PropertyID) bool, feeRate decimal.Decimal) ([]Sent, error) {
	var sent []Sent
	for _, id := range s.propertiesOf(from) {
		bal := s.Balance(from, id)
		if bal <= 0 || (filter != nil && !filter(id)) {
			continue
		}
		fee, err := tlmath.Floor(decimal.NewFromInt(bal).Mul(feeRate))
		if err != nil || fee < 0 || fee >= bal {
			fee = 0
		}
		sent = append(sent, Sent{PropertyID: id, Amount: bal - fee, Fee: fee})
	}
	if len(sent) == 0 {
		return nil, ErrNothingToSend
	}

	for _, snd := range sent {
		if _, overflow := tlmath.SafeAdd(s.Balance(to, snd.PropertyID), snd.Amount); overflow {
			return nil, ErrOverflow
		}
	}
	for _, snd := range sent {
		s.add(from, snd.PropertyID, Balance, -(snd.Amount + snd.Fee))
		s.add(to, snd.PropertyID, Balance, snd.Amount)
		if snd.Fee > 0 {
			s.add(types.FeeCacheAddress, snd.PropertyID, Balance, snd.Fee)
		}
	}
	return sent, nil
}

func (s *Store) checkFungible(id types.PropertyID) error {
	p, ok := s.properties[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	if p.Kind == KindContract {
		return fmt.Errorf("property %d is a contract", id)
	}
	return nil
}

// add applies a validated delta. A negative result means an engine skipped
// validation, which is unrecoverable.
func (s *Store) add(addr types.Address, id types.PropertyID, tt TallyType, delta int64) {
	byProp, ok := s.tallies[addr]
	if !ok {
		byProp = make(map[types.PropertyID]*Tally)
		s.tallies[addr] = byProp
	}
	t, ok := byProp[id]
	if !ok {
		t = &Tally{}
		byProp[id] = t
	}
	t[tt] += delta
	if t[tt] < 0 {
		panic(fmt.Sprintf("negative %s tally for %s in property %d", tt, addr, id))
	}
	if t.isZero() {
		delete(byProp, id)
		if len(byProp) == 0 {
			delete(s.tallies, addr)
		}
	}
}

func (s *Store) propertiesOf(addr types.Address) []types.PropertyID {
	byProp := s.tallies[addr]
	ids := make([]types.PropertyID, 0, len(byProp))
	for id := range byProp {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) addresses() []types.Address {
	addrs := make([]types.Address, 0, len(s.tallies))
	for addr := range s.tallies {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// TallyRecord is one non-empty (address, property) tally.
type TallyRecord struct {
	Address    types.Address    `json:"address"`
	PropertyID types.PropertyID `json:"property_id"`
	Tally      Tally            `json:"tally"`
}

// AddressTallies returns every non-empty tally of addr ordered by property.
func (s *Store) AddressTallies(addr types.Address) []TallyRecord {
	var out []TallyRecord
	for _, id := range s.propertiesOf(addr) {
		out = append(out, TallyRecord{Address: addr, PropertyID: id, Tally: *s.tallies[addr][id]})
	}
	return out
}

// Holders returns every address with a non-empty tally in id.
func (s *Store) Holders(id types.PropertyID) []TallyRecord {
	var out []TallyRecord
	for _, addr := range s.addresses() {
		if t, ok := s.tallies[addr][id]; ok {
			out = append(out, TallyRecord{Address: addr, PropertyID: id, Tally: *t})
		}
	}
	return out
}

// CheckConservation verifies that every fungible property's tallies add up
// to its total supply.
func (s *Store) CheckConservation() error {
	sums := make(map[types.PropertyID]int64, len(s.properties))
	for addr, byProp := range s.tallies {
		for id, t := range byProp {
			for tt := Balance; tt < NumTallyTypes; tt++ {
				if t[tt] < 0 {
					return fmt.Errorf("%w: negative %s tally for %s in property %d", ErrConservation, tt, addr, id)
				}
			}
			sums[id] += t.Total()
		}
	}
	for id := range sums {
		if _, ok := s.properties[id]; !ok {
			return fmt.Errorf("%w: tallies for unknown property %d", ErrConservation, id)
		}
	}
	for _, p := range s.Properties() {
		if p.Kind == KindContract {
			if sums[p.ID] != 0 {
				return fmt.Errorf("%w: contract %d carries tallies", ErrConservation, p.ID)
			}
			continue
		}
		if sums[p.ID] != p.TotalTokens {
			return fmt.Errorf("%w: property %d has total %d but tallies sum to %d", ErrConservation, p.ID, p.TotalTokens, sums[p.ID])
		}
	}
	return nil
}

// WriteConsensus writes the canonical representation of the registry and
// all tallies, one line per entry, in ascending key order. Free text is
// quoted so it cannot carry the field separator.
func (s *Store) WriteConsensus(w io.Writer) {
	fmt.Fprintf(w, "nextproperty|%d\n", s.nextID)
	for _, p := range s.Properties() {
		fmt.Fprintf(w, "property|%d|%q|%q|%q|%t|%s|%s|%d|%d|%v\n",
			p.ID, p.Name, p.URL, p.Data, p.Divisible, p.Issuer, p.Kind, p.TotalTokens, p.CreationBlock, p.KYC)
	}
	for _, addr := range s.addresses() {
		for _, id := range s.propertiesOf(addr) {
			t := s.tallies[addr][id]
			fmt.Fprintf(w, "tally|%s|%d|%d|%d|%d|%d|%d|%d\n",
				addr, id, t[Balance], t[OfferReserve], t[AcceptReserve], t[MetaDExReserve], t[MarginReserve], t[ChannelReserve])
		}
	}
}

// Snapshot is the serializable form of a Store.
type Snapshot struct {
	NextID     types.PropertyID `json:"next_id"`
	Properties []Property       `json:"properties"`
	Tallies    []TallyRecord    `json:"tallies"`
}

// Export returns a deep copy of the store contents in canonical order.
func (s *Store) Export() Snapshot {
	snap := Snapshot{NextID: s.nextID, Properties: s.Properties()}
	for _, addr := range s.addresses() {
		snap.Tallies = append(snap.Tallies, s.AddressTallies(addr)...)
	}
	for i := range snap.Properties {
		if kyc := snap.Properties[i].KYC; kyc != nil {
			snap.Properties[i].KYC = append([]int64(nil), kyc...)
		}
	}
	return snap
}

// Import replaces the store contents with snap.
func (s *Store) Import(snap Snapshot) {
	s.properties = make(map[types.PropertyID]*Property, len(snap.Properties))
	s.tallies = make(map[types.Address]map[types.PropertyID]*Tally)
	s.nextID = snap.NextID
	for _, p := range snap.Properties {
		p := p
		p.KYC = normalizeKYC(p.KYC)
		s.properties[p.ID] = &p
	}
	for _, rec := range snap.Tallies {
		if rec.Tally.isZero() {
			continue
		}
		byProp, ok := s.tallies[rec.Address]
		if !ok {
			byProp = make(map[types.PropertyID]*Tally)
			s.tallies[rec.Address] = byProp
		}
		t := rec.Tally
		byProp[rec.PropertyID] = &t
	}
}
