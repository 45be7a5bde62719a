package chain

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// maxLineSize bounds a single JSON encoded block.
const maxLineSize = 16 << 20

// FileSource serves blocks from a JSON-lines file, one block per line in
// height order. The file is re-read whenever it changes on disk, so an
// external writer may append blocks or rewrite the tail after a reorg.
type FileSource struct {
	path string

	mtx     sync.Mutex
	size    int64
	modTime int64
	mem     *MemSource
}

var _ Source = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// ReadBlocks parses every block of a JSON-lines file.
func ReadBlocks(path string) ([]*Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []*Block
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		b := new(Block)
		if err := json.Unmarshal(sc.Bytes(), b); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := b.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		blocks = append(blocks, b)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *FileSource) load() (*MemSource, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	fi, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if s.mem != nil && fi.Size() == s.size && fi.ModTime().UnixNano() == s.modTime {
		return s.mem, nil
	}
	blocks, err := ReadBlocks(s.path)
	if err != nil {
		return nil, err
	}
	var base int64
	if len(blocks) > 0 {
		base = blocks[0].Height
	}
	mem := NewMemSource(base)
	for _, b := range blocks {
		if err := mem.Append(b); err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
	}
	s.mem, s.size, s.modTime = mem, fi.Size(), fi.ModTime().UnixNano()
	return mem, nil
}

func (s *FileSource) TipHeight(ctx context.Context) (int64, error) {
	mem, err := s.load()
	if err != nil {
		return 0, err
	}
	return mem.TipHeight(ctx)
}

func (s *FileSource) BlockAt(ctx context.Context, height int64) (*Block, error) {
	mem, err := s.load()
	if err != nil {
		return nil, err
	}
	return mem.BlockAt(ctx, height)
}
