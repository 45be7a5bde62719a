package chain

import (
	"context"
	"fmt"
	"sync"
)

// MemSource is an in-memory Source. It is safe for concurrent use.
type MemSource struct {
	mtx    sync.RWMutex
	base   int64
	blocks []*Block
}

var _ Source = (*MemSource)(nil)

// NewMemSource returns a source whose first block will be at height base.
func NewMemSource(base int64) *MemSource {
	return &MemSource{base: base}
}

// Append connects b on top of the current tip.
func (s *MemSource) Append(b *Block) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.appendLocked(b)
}

func (s *MemSource) appendLocked(b *Block) error {
	want := s.base + int64(len(s.blocks))
	if b.Height != want {
		return fmt.Errorf("expected block at height %d, got %d", want, b.Height)
	}
	if n := len(s.blocks); n > 0 && s.blocks[n-1].Hash != b.PrevHash {
		return fmt.Errorf("block %d does not connect to %s", b.Height, s.blocks[n-1].Hash)
	}
	s.blocks = append(s.blocks, b)
	return nil
}

// Reorg disconnects every block at or above height and connects blocks in
// their place.
func (s *MemSource) Reorg(height int64, blocks ...*Block) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if height < s.base || height > s.base+int64(len(s.blocks)) {
		return fmt.Errorf("reorg height %d out of range", height)
	}
	old := s.blocks
	s.blocks = s.blocks[: height-s.base : height-s.base]
	for _, b := range blocks {
		if err := s.appendLocked(b); err != nil {
			s.blocks = old
			return err
		}
	}
	return nil
}

func (s *MemSource) TipHeight(context.Context) (int64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.base + int64(len(s.blocks)) - 1, nil
}

func (s *MemSource) BlockAt(_ context.Context, height int64) (*Block, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	i := height - s.base
	if i < 0 || i >= int64(len(s.blocks)) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return s.blocks[i], nil
}
