package state

import (
	"errors"
	"fmt"

	tmbytes "github.com/tradelayer/tradelayer/libs/bytes"
)

// Rollback rewinds the persisted state to the snapshot taken after height
// and forgets every later height. The restored state is checked against
// the hash stored for height before anything is written.
func Rollback(store Store, genDoc *GenesisDoc, height int64) (*State, error) {
	snap, err := store.LoadSnapshot(height)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, fmt.Errorf("height %d is beyond the retained reorg depth: %w", height, err)
		}
		return nil, err
	}
	state, err := StateFromSnapshot(genDoc, snap)
	if err != nil {
		return nil, err
	}
	stored, err := store.LoadHash(height)
	if err != nil {
		return nil, err
	}
	if got := state.Hash(); !tmbytes.HexBytes(got).Equal(stored) {
		return nil, ErrHashMismatch{Height: height, Stored: stored, Got: got}
	}

	if err := store.Save(state); err != nil {
		return nil, fmt.Errorf("saving rolled back state: %w", err)
	}
	if err := store.Truncate(height); err != nil {
		return nil, fmt.Errorf("truncating heights above %d: %w", height, err)
	}
	return state, nil
}
