package ledger

import (
	"fmt"
	"sort"

	"github.com/tradelayer/tradelayer/types"
)

// Kind separates the ways a property's supply can change.
type Kind uint8

const (
	// KindSystem properties are emitted by the protocol itself.
	KindSystem Kind = iota + 1
	// KindFixed properties have their full supply issued at creation.
	KindFixed
	// KindManaged properties are granted and revoked by their issuer.
	KindManaged
	// KindContract entries are futures contracts. They share the id space
	// but never carry tallies.
	KindContract
)

func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindFixed:
		return "fixed"
	case KindManaged:
		return "managed"
	case KindContract:
		return "contract"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Property is an entry of the property registry.
type Property struct {
	ID            types.PropertyID `json:"id"`
	Name          string           `json:"name"`
	URL           string           `json:"url,omitempty"`
	Data          string           `json:"data,omitempty"`
	Divisible     bool             `json:"divisible"`
	Issuer        types.Address    `json:"issuer"`
	Kind          Kind             `json:"kind"`
	TotalTokens   int64            `json:"total_tokens"`
	CreationBlock int64            `json:"creation_block"`
	CreationTxID  string           `json:"creation_txid,omitempty"`
	KYC           []int64          `json:"kyc,omitempty"`
}

// Property returns a copy of the registry entry.
func (s *Store) Property(id types.PropertyID) (Property, bool) {
	p, ok := s.properties[id]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// HasProperty reports whether id is registered.
func (s *Store) HasProperty(id types.PropertyID) bool {
	_, ok := s.properties[id]
	return ok
}

// Properties returns every registered property ordered by id.
func (s *Store) Properties() []Property {
	ps := make([]Property, 0, len(s.properties))
	for _, p := range s.properties {
		ps = append(ps, *p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps
}

// NextPropertyID is the id the next created property will receive.
func (s *Store) NextPropertyID() types.PropertyID { return s.nextID }

// CreateProperty registers p under the next free id and returns that id.
// The supply of a fixed property must be credited separately with Issue.
func (s *Store) CreateProperty(p Property) types.PropertyID {
	p.ID = s.nextID
	p.TotalTokens = 0
	p.KYC = normalizeKYC(p.KYC)
	s.properties[p.ID] = &p
	s.nextID++
	return p.ID
}

// RegisterSystemProperty installs a property under a reserved id below
// FirstUserProperty.
func (s *Store) RegisterSystemProperty(p Property) error {
	if p.ID == 0 || p.ID >= types.FirstUserProperty {
		return fmt.Errorf("system property id %d out of range", p.ID)
	}
	if _, ok := s.properties[p.ID]; ok {
		return fmt.Errorf("system property %d already registered", p.ID)
	}
	p.TotalTokens = 0
	s.properties[p.ID] = &p
	return nil
}

// ChangeIssuer hands id over to newIssuer. Only the current issuer may do so.
func (s *Store) ChangeIssuer(sender types.Address, id types.PropertyID, newIssuer types.Address) error {
	p, ok := s.properties[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	if p.Issuer != sender {
		return ErrNotIssuer
	}
	p.Issuer = newIssuer
	return nil
}

// Grant issues amount of a managed property to receiver.
func (s *Store) Grant(sender types.Address, id types.PropertyID, receiver types.Address, amount int64) error {
	if err := s.checkManaged(sender, id); err != nil {
		return err
	}
	return s.Issue(receiver, id, amount)
}

// Revoke burns amount of a managed property from the issuer's balance.
func (s *Store) Revoke(sender types.Address, id types.PropertyID, amount int64) error {
	if err := s.checkManaged(sender, id); err != nil {
		return err
	}
	return s.Burn(sender, id, amount)
}

func (s *Store) checkManaged(sender types.Address, id types.PropertyID) error {
	p, ok := s.properties[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	if p.Kind != KindManaged {
		return ErrNotManaged
	}
	if p.Issuer != sender {
		return ErrNotIssuer
	}
	return nil
}

func normalizeKYC(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
