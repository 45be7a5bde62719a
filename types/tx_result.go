package types

import "fmt"

// TxStatus is the outcome of applying one chain transaction.
type TxStatus uint8

const (
	// TxValid transactions changed state.
	TxValid TxStatus = iota + 1
	// TxInvalid transactions carried a payload that failed a precondition.
	// They left state untouched.
	TxInvalid
	// TxSkipped transactions carried no payload, or one that did not decode.
	TxSkipped
)

func (s TxStatus) String() string {
	switch s {
	case TxValid:
		return "valid"
	case TxInvalid:
		return "invalid"
	case TxSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseTxStatus is the inverse of TxStatus.String.
func ParseTxStatus(s string) (TxStatus, error) {
	for _, st := range []TxStatus{TxValid, TxInvalid, TxSkipped} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown tx status %q", s)
}

// TxResult records what happened to one transaction of an applied block.
type TxResult struct {
	TxID      string   `json:"txid"`
	Height    int64    `json:"height"`
	Index     int      `json:"index"`
	Sender    Address  `json:"sender"`
	Reference Address  `json:"reference,omitempty"`
	Type      int64    `json:"type"`
	TypeName  string   `json:"type_name,omitempty"`
	Status    TxStatus `json:"status"`
	// Reason explains an invalid or skipped transaction.
	Reason string `json:"reason,omitempty"`
}

// IsValid reports whether the transaction changed state.
func (r *TxResult) IsValid() bool { return r.Status == TxValid }
