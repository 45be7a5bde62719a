package contracts

import (
	"fmt"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

// SetOracle records the admin's high/low/close for an oracle contract,
// marks all positions to the close and runs the liquidation sweep.
func (e *Engine) SetOracle(l *ledger.Store, tx types.TxContext, msg *payload.SetOracle) ([]Liquidation, error) {
	c, err := e.oracleContract(tx.Sender, msg.ContractID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fmt.Errorf("%w: %d is %s", ErrContractClosed, c.ID, c.Status)
	}
	if msg.Low == 0 || msg.Close < msg.Low || msg.High < msg.Close {
		return nil, fmt.Errorf("%w: high %d low %d close %d", ErrInvalidOracle, msg.High, msg.Low, msg.Close)
	}
	high := types.PriceFromFixed(msg.High)
	closePrice := types.PriceFromFixed(msg.Close)
	if err := c.checkExposure(c.exposure(0), high, closePrice, c.MarkPrice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOracle, err)
	}
	if err := e.settle(l, c, closePrice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOracle, err)
	}
	c.OracleHigh = high
	c.OracleLow = types.PriceFromFixed(msg.Low)
	c.OracleClose = closePrice
	return e.liquidate(l, c), nil
}

// CloseOracle settles an oracle contract at its last close and shuts it
// down.
func (e *Engine) CloseOracle(l *ledger.Store, tx types.TxContext, msg *payload.CloseOracle) error {
	c, err := e.oracleContract(tx.Sender, msg.ContractID)
	if err != nil {
		return err
	}
	if c.Status != StatusActive {
		return fmt.Errorf("%w: %d is %s", ErrContractClosed, c.ID, c.Status)
	}
	if !c.OracleClose.IsZero() {
		if err := e.settle(l, c, c.OracleClose); err != nil {
			return err
		}
	}
	e.shutdown(l, c, StatusClosed)
	return nil
}

func (e *Engine) oracleContract(sender types.Address, id types.PropertyID) (*Contract, error) {
	c, ok := e.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, id)
	}
	if c.Kind != KindOracle {
		return nil, fmt.Errorf("%w: %d", ErrNotOracle, id)
	}
	if c.Admin != sender {
		return nil, fmt.Errorf("%w: %s", ErrNotOracleAdmin, sender)
	}
	return c, nil
}
