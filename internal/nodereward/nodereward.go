// Package nodereward runs the per-block lottery that pays newly emitted
// ALL to registered nodes.
package nodereward

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcutil/base58"
	"github.com/mroth/weightedrand"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

var (
	ErrInvalidReceiver = errors.New("invalid reward receiver address")
	ErrNotRegistered   = errors.New("address is not a registered node")
	ErrNothingToClaim  = errors.New("no pending node reward")
)

// Params define the emission schedule.
type Params struct {
	// Base is the reward per block until DecayStart.
	Base          int64
	DecayStart    int64
	DecayFactor   decimal.Decimal
	DecayInterval int64
	// Tail is the lowest reward the decay reaches.
	Tail    int64
	Winners int
}

// Node is a registered reward participant.
type Node struct {
	Address    types.Address `json:"address"`
	Receiver   string        `json:"receiver"`
	Registered int64         `json:"registered"`
	Pending    int64         `json:"pending"`
	Claimed    int64         `json:"claimed"`
}

// Award is a share of one block's reward.
type Award struct {
	Height  int64         `json:"height"`
	Address types.Address `json:"address"`
	Amount  int64         `json:"amount"`
}

type Engine struct {
	params Params
	nodes  map[types.Address]*Node
}

func NewEngine(params Params) *Engine {
	if params.Winners <= 0 {
		params.Winners = 1
	}
	return &Engine{params: params, nodes: make(map[types.Address]*Node)}
}

// Submit registers the sender, or updates the receiver of an existing
// registration. The receiver must be a base58check encoded address.
func (e *Engine) Submit(tx types.TxContext, msg *payload.SubmitNodeAddress) error {
	if _, _, err := base58.CheckDecode(msg.Receiver); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidReceiver, msg.Receiver, err)
	}
	if n, ok := e.nodes[tx.Sender]; ok {
		n.Receiver = msg.Receiver
		return nil
	}
	e.nodes[tx.Sender] = &Node{Address: tx.Sender, Receiver: msg.Receiver, Registered: tx.Height}
	return nil
}

// Claim issues the sender's pending reward to its receiver.
func (e *Engine) Claim(l *ledger.Store, tx types.TxContext) (int64, error) {
	n, ok := e.nodes[tx.Sender]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, tx.Sender)
	}
	if n.Pending <= 0 {
		return 0, ErrNothingToClaim
	}
	amt := n.Pending
	if err := l.Issue(types.Address(n.Receiver), types.PropertyALL, amt); err != nil {
		return 0, err
	}
	n.Pending = 0
	n.Claimed += amt
	return amt, nil
}

// Reward is the emission at height.
func (e *Engine) Reward(height int64) int64 {
	p := e.params
	if height < p.DecayStart || p.DecayInterval <= 0 || p.DecayFactor.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return p.Base
	}
	periods := (height-p.DecayStart)/p.DecayInterval + 1
	r := decimal.NewFromInt(p.Base)
	for i := int64(0); i < periods; i++ {
		r = r.Mul(p.DecayFactor).Floor()
		if r.IntPart() <= p.Tail {
			return p.Tail
		}
	}
	return tlmath.MaxInt64(r.IntPart(), p.Tail)
}

func weight(addr types.Address, prevHash []byte) uint {
	h := blake2b.Sum256(append([]byte(addr), prevHash...))
	return uint(binary.BigEndian.Uint64(h[:8])%1000) + 1
}

func seed(prevHash []byte, height int64) int64 {
	buf := make([]byte, len(prevHash)+8)
	copy(buf, prevHash)
	binary.BigEndian.PutUint64(buf[len(prevHash):], uint64(height))
	h := blake2b.Sum256(buf)
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// EndBlock draws the winners of height from the registered nodes and
// credits them the block reward as pending, split evenly with the
// remainder going to the first winner.
func (e *Engine) EndBlock(height int64, prevHash []byte) ([]Award, error) {
	reward := e.Reward(height)
	if len(e.nodes) == 0 || reward <= 0 {
		return nil, nil
	}
	winners, err := e.draw(height, prevHash)
	if err != nil {
		return nil, err
	}
	share := reward / int64(len(winners))
	rest := reward - share*int64(len(winners))
	awards := make([]Award, len(winners))
	for i, addr := range winners {
		amt := share
		if i == 0 {
			amt += rest
		}
		e.nodes[addr].Pending += amt
		awards[i] = Award{Height: height, Address: addr, Amount: amt}
	}
	return awards, nil
}

func (e *Engine) draw(height int64, prevHash []byte) ([]types.Address, error) {
	rng := rand.New(rand.NewSource(seed(prevHash, height))) //nolint:gosec
	candidates := e.addresses()
	n := e.params.Winners
	if n > len(candidates) {
		n = len(candidates)
	}
	var winners []types.Address
	for len(winners) < n {
		choices := make([]weightedrand.Choice, len(candidates))
		for i, addr := range candidates {
			choices[i] = weightedrand.NewChoice(addr, weight(addr, prevHash))
		}
		chooser, err := weightedrand.NewChooser(choices...)
		if err != nil {
			return nil, err
		}
		w := chooser.PickSource(rng).(types.Address)
		winners = append(winners, w)
		for i, addr := range candidates {
			if addr == w {
				candidates = append(candidates[:i], candidates[i+1:]...)
				break
			}
		}
	}
	return winners, nil
}

func (e *Engine) addresses() []types.Address {
	out := make([]types.Address, 0, len(e.nodes))
	for a := range e.nodes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Node returns a copy of the registration of addr.
func (e *Engine) Node(addr types.Address) (Node, bool) {
	n, ok := e.nodes[addr]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns all registrations ordered by address.
func (e *Engine) Nodes() []Node {
	addrs := e.addresses()
	out := make([]Node, len(addrs))
	for i, a := range addrs {
		out[i] = *e.nodes[a]
	}
	return out
}

func (e *Engine) WriteConsensus(w io.Writer) {
	for _, n := range e.Nodes() {
		fmt.Fprintf(w, "node|%s|%s|%d|%d|%d\n", n.Address, n.Receiver, n.Registered, n.Pending, n.Claimed)
	}
}

func (e *Engine) Export() []Node { return e.Nodes() }

func (e *Engine) Import(nodes []Node) {
	e.nodes = make(map[types.Address]*Node, len(nodes))
	for i := range nodes {
		n := nodes[i]
		e.nodes[n.Address] = &n
	}
}
