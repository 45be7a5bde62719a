// Package kyc keeps the registry of KYC providers and the attestations they
// issue, and answers allow-list checks for properties and contracts.
package kyc

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/tradelayer/tradelayer/types"
)

// SelfAttestationID is the kycId carried by an address attesting itself.
const SelfAttestationID int64 = 0

var (
	ErrAlreadyRegistered = errors.New("address already registered as KYC provider")
	ErrNotProvider       = errors.New("sender is not a KYC provider")
	ErrNoAttestation     = errors.New("attestation not found")
	ErrNotAllowed        = errors.New("address is not KYC compliant")
)

// Record describes a registered provider.
type Record struct {
	ID      int64         `json:"id"`
	Address types.Address `json:"address"`
	Name    string        `json:"name"`
	Website string        `json:"website"`
	Block   int64         `json:"block"`
}

// Attestation is a provider's (or an address's own) statement about an
// address.
type Attestation struct {
	Sender   types.Address `json:"sender"`
	Receiver types.Address `json:"receiver"`
	KYCID    int64         `json:"kyc_id"`
	Block    int64         `json:"block"`
}

// Registry holds providers and attestations.
type Registry struct {
	nextID     int64
	records    map[int64]*Record
	byAddress  map[types.Address]int64
	attestedBy map[types.Address]map[types.Address]*Attestation // receiver -> sender
}

func NewRegistry() *Registry {
	return &Registry{
		nextID:     1,
		records:    make(map[int64]*Record),
		byAddress:  make(map[types.Address]int64),
		attestedBy: make(map[types.Address]map[types.Address]*Attestation),
	}
}

// Register makes addr a provider under the next kycId.
func (r *Registry) Register(addr types.Address, name, website string, block int64) (int64, error) {
	if _, ok := r.byAddress[addr]; ok {
		return 0, ErrAlreadyRegistered
	}
	id := r.nextID
	r.nextID++
	r.records[id] = &Record{ID: id, Address: addr, Name: name, Website: website, Block: block}
	r.byAddress[addr] = id
	return id, nil
}

// Provider returns the provider record of addr.
func (r *Registry) Provider(addr types.Address) (Record, bool) {
	id, ok := r.byAddress[addr]
	if !ok {
		return Record{}, false
	}
	return *r.records[id], true
}

// Attest records that sender vouches for receiver. A self attestation
// carries SelfAttestationID; otherwise sender must be a provider and the
// attestation carries its kycId. Attesting again replaces the previous edge.
func (r *Registry) Attest(sender, receiver types.Address, block int64) (int64, error) {
	kycID := SelfAttestationID
	if sender != receiver {
		id, ok := r.byAddress[sender]
		if !ok {
			return 0, ErrNotProvider
		}
		kycID = id
	}
	bySender, ok := r.attestedBy[receiver]
	if !ok {
		bySender = make(map[types.Address]*Attestation)
		r.attestedBy[receiver] = bySender
	}
	bySender[sender] = &Attestation{Sender: sender, Receiver: receiver, KYCID: kycID, Block: block}
	return kycID, nil
}

// Revoke removes the attestation sender made about receiver.
func (r *Registry) Revoke(sender, receiver types.Address) error {
	bySender, ok := r.attestedBy[receiver]
	if !ok {
		return ErrNoAttestation
	}
	if _, ok := bySender[sender]; !ok {
		return ErrNoAttestation
	}
	delete(bySender, sender)
	if len(bySender) == 0 {
		delete(r.attestedBy, receiver)
	}
	return nil
}

// IDs returns the distinct kycIds attached to addr in ascending order.
func (r *Registry) IDs(addr types.Address) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, a := range r.attestedBy[addr] {
		if !seen[a.KYCID] {
			seen[a.KYCID] = true
			ids = append(ids, a.KYCID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsAllowed reports whether addr satisfies allowList. An empty list allows
// everybody; system addresses are always allowed.
func (r *Registry) IsAllowed(addr types.Address, allowList []int64) bool {
	if len(allowList) == 0 || addr.IsSystem() {
		return true
	}
	for _, a := range r.attestedBy[addr] {
		for _, id := range allowList {
			if a.KYCID == id {
				return true
			}
		}
	}
	return false
}

// Check returns ErrNotAllowed for the first address that fails allowList.
func (r *Registry) Check(allowList []int64, addrs ...types.Address) error {
	for _, addr := range addrs {
		if !r.IsAllowed(addr, allowList) {
			return fmt.Errorf("%w: %s", ErrNotAllowed, addr)
		}
	}
	return nil
}

// Providers returns all provider records ordered by kycId.
func (r *Registry) Providers() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Attestations returns all attestations ordered by (receiver, sender).
func (r *Registry) Attestations() []Attestation {
	var out []Attestation
	for _, bySender := range r.attestedBy {
		for _, a := range bySender {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Receiver != out[j].Receiver {
			return out[i].Receiver < out[j].Receiver
		}
		return out[i].Sender < out[j].Sender
	})
	return out
}

// WriteConsensus writes providers and attestations in canonical order.
func (r *Registry) WriteConsensus(w io.Writer) {
	fmt.Fprintf(w, "kycnext|%d\n", r.nextID)
	for _, rec := range r.Providers() {
		fmt.Fprintf(w, "kyc|%d|%s|%q|%q|%d\n", rec.ID, rec.Address, rec.Name, rec.Website, rec.Block)
	}
	for _, a := range r.Attestations() {
		fmt.Fprintf(w, "attestation|%s|%s|%d|%d\n", a.Receiver, a.Sender, a.KYCID, a.Block)
	}
}

// Snapshot is the serializable form of a Registry.
type Snapshot struct {
	NextID       int64         `json:"next_id"`
	Providers    []Record      `json:"providers"`
	Attestations []Attestation `json:"attestations"`
}

func (r *Registry) Export() Snapshot {
	return Snapshot{NextID: r.nextID, Providers: r.Providers(), Attestations: r.Attestations()}
}

func (r *Registry) Import(snap Snapshot) {
	*r = *NewRegistry()
	r.nextID = snap.NextID
	for _, rec := range snap.Providers {
		rec := rec
		r.records[rec.ID] = &rec
		r.byAddress[rec.Address] = rec.ID
	}
	for _, a := range snap.Attestations {
		a := a
		bySender, ok := r.attestedBy[a.Receiver]
		if !ok {
			bySender = make(map[types.Address]*Attestation)
			r.attestedBy[a.Receiver] = bySender
		}
		bySender[a.Sender] = &a
	}
}
