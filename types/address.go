package types

import (
	"fmt"
	"strings"
)

// Address identifies a participant on the underlying chain. Addresses are
// compared and ordered as plain strings.
type Address string

// systemPrefix marks protocol-held pseudo addresses. ':' is outside every
// chain address alphabet.
const systemPrefix = "tl:"

// FeeCacheAddress collects MetaDEx taker fees and SendAll fees.
const FeeCacheAddress Address = systemPrefix + "feecache"

// InsuranceAddress holds the insurance fund of a contract and the positions
// taken over from liquidated traders.
func InsuranceAddress(contractID PropertyID) Address {
	return Address(fmt.Sprintf("%sinsurance:%d", systemPrefix, contractID))
}

// SettlementAddress is the transit account used while settling a contract
// to a new mark price. It is empty outside of settlement.
func SettlementAddress(contractID PropertyID) Address {
	return Address(fmt.Sprintf("%ssettlement:%d", systemPrefix, contractID))
}

// IsSystem reports whether a is a protocol-held pseudo address.
func (a Address) IsSystem() bool {
	return strings.HasPrefix(string(a), systemPrefix)
}

func (a Address) String() string { return string(a) }
