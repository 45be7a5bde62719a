// Package contracts implements futures contracts: registration, the
// per-contract order books, positions with mark-to-market settlement,
// oracle prices and liquidation.
package contracts

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrContractClosed   = errors.New("contract is not trading")
	ErrInvalidContract  = errors.New("invalid contract definition")
	ErrInvalidOrder     = errors.New("invalid contract order")
	ErrNotOracleAdmin   = errors.New("sender is not the oracle admin")
	ErrNotOracle        = errors.New("contract is not an oracle contract")
	ErrInvalidOracle    = errors.New("invalid oracle prices")
	ErrNoPosition       = errors.New("no open position")
	ErrNoLiquidity      = errors.New("no orders to close against")
	ErrNothingToCancel  = errors.New("no matching orders to cancel")
	ErrZeroSum          = errors.New("contract positions do not net to zero")
	ErrPriceOutOfRange  = errors.New("price out of range for the contract's exposure")
)

// Kind tells how a contract obtains its mark price.
type Kind uint8

const (
	// KindNative contracts are marked from MetaDEx trades of a token pair.
	KindNative Kind = 1
	// KindOracle contracts are marked from prices pushed by their admin.
	KindOracle Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindOracle:
		return "oracle"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Status is the trading state of a contract.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusClosed
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Contract is a registered futures contract.
type Contract struct {
	ID                    types.PropertyID `json:"id"`
	Name                  string           `json:"name"`
	Admin                 types.Address    `json:"admin"`
	Kind                  Kind             `json:"kind"`
	Inverse               bool             `json:"inverse"`
	NotionalSize          decimal.Decimal  `json:"notional_size"`
	Collateral            types.PropertyID `json:"collateral"`
	CollateralDivisible   bool             `json:"collateral_divisible"`
	MarginRequirement     decimal.Decimal  `json:"margin_requirement"`
	BlocksUntilExpiration int64            `json:"blocks_until_expiration"`
	CreationBlock         int64            `json:"creation_block"`
	NativeBase            types.PropertyID `json:"native_base,omitempty"`
	NativeQuote           types.PropertyID `json:"native_quote,omitempty"`
	KYC                   []int64          `json:"kyc,omitempty"`

	OracleHigh  decimal.Decimal `json:"oracle_high"`
	OracleLow   decimal.Decimal `json:"oracle_low"`
	OracleClose decimal.Decimal `json:"oracle_close"`

	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	LastPrice decimal.Decimal `json:"last_price"`
	MarkPrice decimal.Decimal `json:"mark_price"`

	OpenInterest int64  `json:"open_interest"`
	Status       Status `json:"status"`
}

// ExpiryBlock is the first height at which the contract no longer trades,
// or 0 when it never expires.
func (c *Contract) ExpiryBlock() int64 {
	if c.BlocksUntilExpiration <= 0 {
		return 0
	}
	return c.CreationBlock + c.BlocksUntilExpiration
}

// Trading reports whether orders may be placed at height.
func (c *Contract) Trading(height int64) bool {
	if c.Status != StatusActive {
		return false
	}
	exp := c.ExpiryBlock()
	return exp == 0 || height < exp
}

// Create registers a contract described by msg in the shared property
// registry and the engine.
func (e *Engine) Create(l *ledger.Store, tx types.TxContext, msg *payload.CreateContract) (types.PropertyID, error) {
	if msg.Name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidContract)
	}
	kind := Kind(msg.Kind)
	if kind != KindNative && kind != KindOracle {
		return 0, fmt.Errorf("%w: kind %d", ErrInvalidContract, msg.Kind)
	}
	if msg.NotionalSize == 0 || msg.MarginRequirement == 0 {
		return 0, fmt.Errorf("%w: notional size and margin requirement must be positive", ErrInvalidContract)
	}
	if msg.BlocksUntilExpiration < 0 {
		return 0, fmt.Errorf("%w: negative expiration", ErrInvalidContract)
	}
	coll, ok := l.Property(msg.Collateral)
	if !ok {
		return 0, fmt.Errorf("%w: collateral %d", ledger.ErrPropertyNotFound, msg.Collateral)
	}
	if coll.Kind == ledger.KindContract || coll.ID == types.PropertyVesting {
		return 0, fmt.Errorf("%w: property %d cannot be collateral", ErrInvalidContract, coll.ID)
	}
	if kind == KindNative {
		if msg.NativeBase == msg.NativeQuote {
			return 0, fmt.Errorf("%w: native pair needs two properties", ErrInvalidContract)
		}
		for _, id := range []types.PropertyID{msg.NativeBase, msg.NativeQuote} {
			if p, ok := l.Property(id); !ok || p.Kind == ledger.KindContract {
				return 0, fmt.Errorf("%w: native pair property %d", ErrInvalidContract, id)
			}
		}
	}

	id := l.CreateProperty(ledger.Property{
		Name:          msg.Name,
		Issuer:        tx.Sender,
		Kind:          ledger.KindContract,
		CreationBlock: tx.Height,
		CreationTxID:  tx.TxID,
		KYC:           msg.KYC,
	})
	p, _ := l.Property(id)

	c := &Contract{
		ID:                    id,
		Name:                  msg.Name,
		Admin:                 tx.Sender,
		Kind:                  kind,
		Inverse:               msg.Inverse,
		NotionalSize:          types.PriceFromFixed(msg.NotionalSize),
		Collateral:            msg.Collateral,
		CollateralDivisible:   coll.Divisible,
		MarginRequirement:     types.PriceFromFixed(msg.MarginRequirement),
		BlocksUntilExpiration: msg.BlocksUntilExpiration,
		CreationBlock:         tx.Height,
		KYC:                   p.KYC,
		Status:                StatusActive,
	}
	if kind == KindNative {
		c.NativeBase, c.NativeQuote = msg.NativeBase, msg.NativeQuote
	}
	e.contracts[id] = c
	return id, nil
}

func (e *Engine) tradingContract(id types.PropertyID, height int64) (*Contract, error) {
	c, ok := e.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, id)
	}
	if !c.Trading(height) {
		return nil, fmt.Errorf("%w: %d is %s", ErrContractClosed, id, c.Status)
	}
	return c, nil
}

// Contract returns a copy of the contract.
func (e *Engine) Contract(id types.PropertyID) (Contract, bool) {
	c, ok := e.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return *c, true
}
