package state

import (
	"encoding/json"
	"fmt"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tradelayer/tradelayer/internal/ledger"
	tmbytes "github.com/tradelayer/tradelayer/libs/bytes"
	"github.com/tradelayer/tradelayer/types"
)

const (
	prefixState     = "state"
	prefixProperty  = "property"
	prefixTally     = "tally"
	prefixEngine    = "engine"
	prefixHash      = "hash"
	prefixBlockHash = "blockhash"
	prefixSnapshot  = "snapshot"
)

// engine blob names
const (
	engineDEx        = "dex"
	engineMetaDEx    = "metadex"
	engineContracts  = "contracts"
	engineVesting    = "vesting"
	engineNodes      = "nodereward"
	engineChannels   = "channels"
	engineKYC        = "kyc"
	engineActivation = "activation"
)

func mustKey(items ...interface{}) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

func stateKey() []byte                       { return mustKey(prefixState) }
func propertyKey(id types.PropertyID) []byte { return mustKey(prefixProperty, uint64(id)) }
func tallyKey(addr types.Address, id types.PropertyID) []byte {
	return mustKey(prefixTally, string(addr), uint64(id))
}
func engineKey(name string) []byte     { return mustKey(prefixEngine, name) }
func hashKey(height int64) []byte      { return mustKey(prefixHash, height) }
func blockHashKey(height int64) []byte { return mustKey(prefixBlockHash, height) }
func snapshotKey(height int64) []byte  { return mustKey(prefixSnapshot, height) }

func prefixRange(prefix string) ([]byte, []byte) {
	start := mustKey(prefix)
	return start, prefixEnd(start)
}

// prefixEnd returns the first key after every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Store persists the last applied state as keyed records, together with
// the consensus hash and chain hash of every height and full snapshots of
// the last heights for rollbacks.
type Store interface {
	// Load returns the last saved state contents. It returns ErrNoState on
	// a fresh database.
	Load() (Snapshot, error)
	// Save writes state, its per-height hash and snapshot, and drops
	// snapshots older than the reorg depth.
	Save(state *State) error
	// LoadHash returns the consensus hash stored for height.
	LoadHash(height int64) ([]byte, error)
	// LoadBlockHash returns the chain hash of the block applied at height.
	LoadBlockHash(height int64) (string, error)
	// LoadSnapshot returns the full snapshot taken after height.
	LoadSnapshot(height int64) (Snapshot, error)
	// Truncate deletes per-height records above height.
	Truncate(height int64) error
	Close() error
}

// StoreOptions tune how the store writes.
type StoreOptions struct {
	// SyncWrites flushes every saved block to disk.
	SyncWrites bool
}

// dbStore wraps a db (github.com/tendermint/tm-db)
type dbStore struct {
	db dbm.DB

	StoreOptions
}

var _ Store = (*dbStore)(nil)

// NewStore creates the dbStore of the state pkg.
func NewStore(db dbm.DB, options StoreOptions) Store {
	return dbStore{db, options}
}

// stateMeta is the record under stateKey.
type stateMeta struct {
	Version         uint64           `json:"version"`
	ChainID         string           `json:"chain_id"`
	LastBlockHeight int64            `json:"last_block_height"`
	LastBlockHash   string           `json:"last_block_hash"`
	ConsensusHash   tmbytes.HexBytes `json:"consensus_hash"`
	NextPropertyID  types.PropertyID `json:"next_property_id"`
}

func (store dbStore) write(b dbm.Batch) error {
	if store.SyncWrites {
		return b.WriteSync()
	}
	return b.Write()
}

func (store dbStore) Load() (Snapshot, error) {
	var snap Snapshot
	bz, err := store.db.Get(stateKey())
	if err != nil {
		return snap, err
	}
	if len(bz) == 0 {
		return snap, ErrNoState
	}
	var meta stateMeta
	if err := json.Unmarshal(bz, &meta); err != nil {
		return snap, fmt.Errorf("%w: state: %v", ErrCorruptState, err)
	}
	snap.Version = meta.Version
	snap.ChainID = meta.ChainID
	snap.LastBlockHeight = meta.LastBlockHeight
	snap.LastBlockHash = meta.LastBlockHash
	snap.ConsensusHash = meta.ConsensusHash
	snap.Ledger.NextID = meta.NextPropertyID

	if err := store.iterate(prefixProperty, func(v []byte) error {
		var p ledger.Property
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("%w: property: %v", ErrCorruptState, err)
		}
		snap.Ledger.Properties = append(snap.Ledger.Properties, p)
		return nil
	}); err != nil {
		return snap, fmt.Errorf("loading properties: %w", err)
	}
	if err := store.iterate(prefixTally, func(v []byte) error {
		var rec ledger.TallyRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("%w: tally: %v", ErrCorruptState, err)
		}
		snap.Ledger.Tallies = append(snap.Ledger.Tallies, rec)
		return nil
	}); err != nil {
		return snap, fmt.Errorf("loading tallies: %w", err)
	}

	blobs := []struct {
		name string
		v    interface{}
	}{
		{engineDEx, &snap.DEx},
		{engineMetaDEx, &snap.MetaDEx},
		{engineContracts, &snap.Contracts},
		{engineVesting, &snap.Vesting},
		{engineNodes, &snap.Nodes},
		{engineChannels, &snap.Channels},
		{engineKYC, &snap.KYC},
		{engineActivation, &snap.Activations},
	}
	for _, blob := range blobs {
		bz, err := store.db.Get(engineKey(blob.name))
		if err != nil {
			return snap, err
		}
		if len(bz) == 0 {
			return snap, fmt.Errorf("%w: missing %s record", ErrNoState, blob.name)
		}
		if err := json.Unmarshal(bz, blob.v); err != nil {
			return snap, fmt.Errorf("%w: %s: %v", ErrCorruptState, blob.name, err)
		}
	}
	return snap, nil
}

func (store dbStore) iterate(prefix string, fn func(v []byte) error) error {
	start, end := prefixRange(prefix)
	it, err := store.db.Iterator(start, end)
	if err != nil {
		return err
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if err := fn(it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// deletePrefix queues deletes of every key under prefix into b.
func (store dbStore) deletePrefix(b dbm.Batch, prefix string) error {
	start, end := prefixRange(prefix)
	return store.deleteRange(b, start, end)
}

func (store dbStore) deleteRange(b dbm.Batch, start, end []byte) error {
	it, err := store.db.Iterator(start, end)
	if err != nil {
		return err
	}
	var keys [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	it.Close()
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (store dbStore) Save(state *State) error {
	snap := state.Export()

	b := store.db.NewBatch()
	defer b.Close()

	if err := store.putRecords(b, snap); err != nil {
		return err
	}

	h := snap.LastBlockHeight
	if err := b.Set(hashKey(h), snap.ConsensusHash); err != nil {
		return err
	}
	if err := b.Set(blockHashKey(h), []byte(snap.LastBlockHash)); err != nil {
		return err
	}
	full, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := b.Set(snapshotKey(h), full); err != nil {
		return err
	}
	if retain := h - state.Params.MaxReorgDepth; retain > 0 {
		start, _ := prefixRange(prefixSnapshot)
		if err := store.deleteRange(b, start, snapshotKey(retain)); err != nil {
			return err
		}
	}
	return store.write(b)
}

// putRecords replaces the keyed records with the contents of snap.
func (store dbStore) putRecords(b dbm.Batch, snap Snapshot) error {
	meta, err := json.Marshal(stateMeta{
		Version:         snap.Version,
		ChainID:         snap.ChainID,
		LastBlockHeight: snap.LastBlockHeight,
		LastBlockHash:   snap.LastBlockHash,
		ConsensusHash:   snap.ConsensusHash,
		NextPropertyID:  snap.Ledger.NextID,
	})
	if err != nil {
		return err
	}
	if err := b.Set(stateKey(), meta); err != nil {
		return err
	}

	// Emptied tallies disappear from the export, so the old records go first.
	if err := store.deletePrefix(b, prefixTally); err != nil {
		return err
	}
	for _, p := range snap.Ledger.Properties {
		bz, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := b.Set(propertyKey(p.ID), bz); err != nil {
			return err
		}
	}
	for _, rec := range snap.Ledger.Tallies {
		bz, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Set(tallyKey(rec.Address, rec.PropertyID), bz); err != nil {
			return err
		}
	}

	blobs := map[string]interface{}{
		engineDEx:        snap.DEx,
		engineMetaDEx:    snap.MetaDEx,
		engineContracts:  snap.Contracts,
		engineVesting:    snap.Vesting,
		engineNodes:      snap.Nodes,
		engineChannels:   snap.Channels,
		engineKYC:        snap.KYC,
		engineActivation: snap.Activations,
	}
	for name, v := range blobs {
		bz, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := b.Set(engineKey(name), bz); err != nil {
			return err
		}
	}
	return nil
}

func (store dbStore) LoadHash(height int64) ([]byte, error) {
	bz, err := store.db.Get(hashKey(height))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("%w: no hash for height %d", ErrNoState, height)
	}
	return bz, nil
}

func (store dbStore) LoadBlockHash(height int64) (string, error) {
	bz, err := store.db.Get(blockHashKey(height))
	if err != nil {
		return "", err
	}
	if bz == nil {
		return "", fmt.Errorf("%w: no block hash for height %d", ErrNoState, height)
	}
	return string(bz), nil
}

func (store dbStore) LoadSnapshot(height int64) (Snapshot, error) {
	var snap Snapshot
	bz, err := store.db.Get(snapshotKey(height))
	if err != nil {
		return snap, err
	}
	if len(bz) == 0 {
		return snap, fmt.Errorf("%w: %d", ErrNoSnapshot, height)
	}
	if err := json.Unmarshal(bz, &snap); err != nil {
		return snap, fmt.Errorf("%w: snapshot at height %d: %v", ErrCorruptState, height, err)
	}
	return snap, nil
}

func (store dbStore) Truncate(height int64) error {
	b := store.db.NewBatch()
	defer b.Close()
	for _, prefix := range []string{prefixHash, prefixBlockHash, prefixSnapshot} {
		_, end := prefixRange(prefix)
		if err := store.deleteRange(b, mustKey(prefix, height+1), end); err != nil {
			return err
		}
	}
	return store.write(b)
}

func (store dbStore) Close() error {
	return store.db.Close()
}

// LoadState reloads the saved state for genDoc and checks it against its
// stored consensus hash. ErrNoState is returned on a fresh database.
func LoadState(store Store, genDoc *GenesisDoc) (*State, error) {
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	state, err := StateFromSnapshot(genDoc, snap)
	if err != nil {
		return nil, err
	}
	if got := state.Hash(); !tmbytes.HexBytes(got).Equal(snap.ConsensusHash) {
		return nil, ErrHashMismatch{Height: snap.LastBlockHeight, Stored: snap.ConsensusHash, Got: got}
	}
	return state, nil
}
