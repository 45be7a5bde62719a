package state

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks a broken state invariant. Block application stops
	// and nothing is committed.
	ErrInvariant = errors.New("state invariant violated")

	ErrInvalidBlock     = errors.New("invalid block")
	ErrFeatureNotActive = errors.New("feature is not active")
	ErrNoReference      = errors.New("transaction has no reference address")
	ErrInvalidProperty  = errors.New("invalid property definition")
	ErrNotTransferable  = errors.New("property cannot be sent")
	ErrNoState          = errors.New("no state stored")
	ErrNoSnapshot       = errors.New("no snapshot stored for height")
	// ErrCorruptState is returned when a stored record cannot be decoded.
	ErrCorruptState = errors.New("corrupted state record")
)

// ErrWrongHeight is returned for a block that does not follow the state.
type ErrWrongHeight struct {
	Expected int64
	Got      int64
}

func (e ErrWrongHeight) Error() string {
	return fmt.Sprintf("wrong block height: expected %d, got %d", e.Expected, e.Got)
}

// ErrPrevHashMismatch is returned when a block does not connect to the last
// applied block, which means the chain reorganized.
type ErrPrevHashMismatch struct {
	Height   int64
	Expected string
	Got      string
}

func (e ErrPrevHashMismatch) Error() string {
	return fmt.Sprintf("block %d does not connect: prev hash %s, last applied %s", e.Height, e.Got, e.Expected)
}

// ErrHashMismatch is returned when a reloaded state does not hash to the
// value stored with it.
type ErrHashMismatch struct {
	Height int64
	Stored []byte
	Got    []byte
}

func (e ErrHashMismatch) Error() string {
	return fmt.Sprintf("consensus hash mismatch at height %d: stored %X, recomputed %X", e.Height, e.Stored, e.Got)
}
