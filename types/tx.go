package types

import "fmt"

// TxContext carries what the chain feed resolved for one transaction: its
// position in the block, the sender and reference outputs and the amounts
// of base currency attached to it.
type TxContext struct {
	TxID   string
	Height int64
	Index  int

	Sender    Address
	Reference Address

	// BaseAmount is the base-currency value paid to the reference output.
	BaseAmount int64
	// Fee is the base-currency fee paid to the underlying chain.
	Fee int64
}

func (tc TxContext) String() string {
	return fmt.Sprintf("Tx{%s %d/%d %s->%s}", tc.TxID, tc.Height, tc.Index, tc.Sender, tc.Reference)
}
