// Package vesting tracks the locked ALL entitlement that comes with
// Vesting ALL tokens and releases it as cumulative DEx volume grows.
package vesting

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

var (
	ErrBeforeCliff     = errors.New("vesting tokens are locked until the cliff")
	ErrInvalidReceiver = errors.New("vesting tokens cannot be sent to the admin")
)

// Step releases Fraction of every holder's vesting balance once cumulative
// DEx volume, in base currency units, reaches Volume.
type Step struct {
	Volume   int64           `json:"volume"`
	Fraction decimal.Decimal `json:"fraction"`
}

// Params configure the schedule.
type Params struct {
	Admin       types.Address
	Pool        int64
	CliffHeight int64
	Steps       []Step
}

// Release is ALL issued to a holder when the released fraction rose.
type Release struct {
	Address types.Address `json:"address"`
	Amount  int64         `json:"amount"`
}

type Engine struct {
	params Params

	unvested map[types.Address]int64
	applied  decimal.Decimal
}

func NewEngine(params Params) *Engine {
	steps := append([]Step(nil), params.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Volume < steps[j].Volume })
	params.Steps = steps
	return &Engine{
		params:   params,
		unvested: make(map[types.Address]int64),
		applied:  decimal.Zero,
	}
}

// Genesis credits the vesting pool to the admin.
func (e *Engine) Genesis(l *ledger.Store) error {
	if e.params.Pool <= 0 {
		return nil
	}
	return l.Issue(e.params.Admin, types.PropertyVesting, e.params.Pool)
}

// Admin returns the address holding the undistributed pool.
func (e *Engine) Admin() types.Address { return e.params.Admin }

// CliffHeight is the first height at which holders may send onward.
func (e *Engine) CliffHeight() int64 { return e.params.CliffHeight }

// Fraction returns the share of vesting balances released so far.
func (e *Engine) Fraction() decimal.Decimal { return e.applied }

// Unvested returns the locked ALL entitlement of addr.
func (e *Engine) Unvested(addr types.Address) int64 { return e.unvested[addr] }

// CheckSend validates a Vesting ALL transfer before it touches the ledger.
func (e *Engine) CheckSend(sender, receiver types.Address, height int64) error {
	if receiver == e.params.Admin {
		return ErrInvalidReceiver
	}
	if height < e.params.CliffHeight && sender != e.params.Admin {
		return fmt.Errorf("%w: height %d, cliff %d", ErrBeforeCliff, height, e.params.CliffHeight)
	}
	return nil
}

// OnTransfer updates entitlements after amount Vesting ALL moved from one
// address to another. A grant from the admin creates new entitlement, of
// which the already released fraction is paid out at once. Transfers
// between holders carry the sender's unvested share along.
func (e *Engine) OnTransfer(l *ledger.Store, from, to types.Address, amount int64) int64 {
	if from == e.params.Admin {
		credit := mustUnits(tlmath.Floor(decimal.NewFromInt(amount).Mul(e.applied)))
		if credit > 0 {
			mustLedger(l.Issue(to, types.PropertyALL, credit))
		}
		e.unvested[to] += amount - credit
		return credit
	}

	before := l.Balance(from, types.PropertyVesting) + amount
	moved := e.unvested[from]
	if amount < before {
		moved = mustUnits(tlmath.MulDivFloor(e.unvested[from], amount, before))
	}
	e.add(from, -moved)
	e.add(to, moved)
	return 0
}

func (e *Engine) add(addr types.Address, delta int64) {
	e.unvested[addr] += delta
	if e.unvested[addr] == 0 {
		delete(e.unvested, addr)
	}
}

// target is the fraction unlocked by volume at height.
func (e *Engine) target(height, volume int64) decimal.Decimal {
	f := decimal.Zero
	if height < e.params.CliffHeight {
		return f
	}
	for _, s := range e.params.Steps {
		if volume < s.Volume {
			break
		}
		if s.Fraction.GreaterThan(f) {
			f = s.Fraction
		}
	}
	return f
}

// EndBlock raises the released fraction to what volume unlocks and issues
// each holder the difference, capped at its unvested amount.
func (e *Engine) EndBlock(l *ledger.Store, height, volume int64) []Release {
	next := e.target(height, volume)
	if !next.GreaterThan(e.applied) {
		return nil
	}
	prev := e.applied
	e.applied = next

	var out []Release
	for _, addr := range e.holders() {
		vb := decimal.NewFromInt(l.Balance(addr, types.PropertyVesting))
		amt := mustUnits(tlmath.Floor(vb.Mul(next))) - mustUnits(tlmath.Floor(vb.Mul(prev)))
		amt = tlmath.MinInt64(amt, e.unvested[addr])
		if amt <= 0 {
			continue
		}
		mustLedger(l.Issue(addr, types.PropertyALL, amt))
		e.add(addr, -amt)
		out = append(out, Release{Address: addr, Amount: amt})
	}
	return out
}

func (e *Engine) holders() []types.Address {
	out := make([]types.Address, 0, len(e.unvested))
	for addr := range e.unvested {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Holders returns every address with a locked entitlement.
func (e *Engine) Holders() []Release {
	addrs := e.holders()
	out := make([]Release, len(addrs))
	for i, a := range addrs {
		out[i] = Release{Address: a, Amount: e.unvested[a]}
	}
	return out
}

func (e *Engine) WriteConsensus(w io.Writer) {
	fmt.Fprintf(w, "vesting|%s\n", e.applied.StringFixed(8))
	for _, addr := range e.holders() {
		fmt.Fprintf(w, "unvested|%s|%d\n", addr, e.unvested[addr])
	}
}

// Snapshot is the serializable state of the engine.
type Snapshot struct {
	Applied  decimal.Decimal         `json:"applied"`
	Unvested map[types.Address]int64 `json:"unvested"`
}

func (e *Engine) Export() Snapshot {
	snap := Snapshot{Applied: e.applied, Unvested: make(map[types.Address]int64, len(e.unvested))}
	for k, v := range e.unvested {
		snap.Unvested[k] = v
	}
	return snap
}

func (e *Engine) Import(snap Snapshot) {
	e.applied = snap.Applied
	e.unvested = make(map[types.Address]int64, len(snap.Unvested))
	for k, v := range snap.Unvested {
		if v != 0 {
			e.unvested[k] = v
		}
	}
}

func mustUnits(v int64, err error) int64 {
	if err != nil {
		panic(fmt.Sprintf("vesting: amount out of range: %v", err))
	}
	return v
}

func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("vesting: ledger update failed after validation: %v", err))
	}
}
