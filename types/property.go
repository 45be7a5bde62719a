package types

import "strconv"

// PropertyID identifies a token or a contract in the shared property
// registry.
type PropertyID uint32

const (
	// PropertyALL is the native protocol token. Vesting releases and node
	// rewards are emitted in ALL.
	PropertyALL PropertyID = 1
	// PropertyVesting is the fixed-supply token that entitles its holders to
	// ALL as vesting milestones are reached.
	PropertyVesting PropertyID = 2
	// FirstUserProperty is the first id handed out to issued properties and
	// contracts.
	FirstUserProperty PropertyID = 3
)

func (id PropertyID) String() string { return strconv.FormatUint(uint64(id), 10) }
