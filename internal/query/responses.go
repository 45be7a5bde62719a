package query

import (
	"errors"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/channels"
	"github.com/tradelayer/tradelayer/internal/dex"
	"github.com/tradelayer/tradelayer/internal/kyc"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/metadex"
	"github.com/tradelayer/tradelayer/internal/nodereward"
	tmbytes "github.com/tradelayer/tradelayer/libs/bytes"
	"github.com/tradelayer/tradelayer/types"
)

// List of standardized errors returned by the query surface.
var (
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is used as a wrapper to cover more specific cases where the user has
	// made an invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady is returned before the node loaded any state.
	ErrNotReady = errors.New("state not loaded yet")
)

// Amounts are rendered as decimal strings with the precision of their
// property (8 places for divisible ones).

type ResultBalance struct {
	Address    types.Address    `json:"address"`
	PropertyID types.PropertyID `json:"propertyid"`
	Balance    string           `json:"balance"`
	Reserved   string           `json:"reserve"`
	Margin     string           `json:"margin"`
	Channel    string           `json:"channel"`
}

type ResultBalances struct {
	Address  types.Address   `json:"address"`
	Balances []ResultBalance `json:"balances"`
}

type ResultProperty struct {
	ledger.Property
	Type  string `json:"type"`
	Total string `json:"totaltokens"`
}

// Outstanding DEx offers and accepts.

type ResultOffer struct {
	dex.Offer
	Available string `json:"amountavailable"`
	Desired   string `json:"ltcdesired"`
	UnitPrice string `json:"unitprice"`
}

type ResultAccept struct {
	dex.Accept
	Remaining string `json:"amountremaining"`
}

type ResultOrderbook struct {
	PropertyForSale types.PropertyID     `json:"propertyidforsale"`
	PropertyDesired types.PropertyID     `json:"propertyiddesired"`
	LastPrice       string               `json:"lastprice,omitempty"`
	Orders          []ResultMetaDExOrder `json:"orders"`
}

type ResultMetaDExOrder struct {
	metadex.Order
	UnitPrice string `json:"unitprice"`
}

type ResultContract struct {
	ID           types.PropertyID `json:"contractid"`
	Name         string           `json:"name"`
	Admin        types.Address    `json:"admin"`
	Kind         string           `json:"type"`
	Inverse      bool             `json:"inverse"`
	NotionalSize string           `json:"notionalsize"`
	Collateral   types.PropertyID `json:"collateral"`
	Margin       string           `json:"marginrequirement"`
	OracleHigh   string           `json:"oraclehigh,omitempty"`
	OracleLow    string           `json:"oraclelow,omitempty"`
	OracleClose  string           `json:"oracleclose,omitempty"`
	LastPrice    string           `json:"lastprice"`
	MarkPrice    string           `json:"markprice"`
	OpenInterest int64            `json:"openinterest"`
	ExpiryBlock  int64            `json:"expiryblock,omitempty"`
	Status       string           `json:"status"`
}

type ResultContractOrder struct {
	TxID     string        `json:"txid"`
	Address  types.Address `json:"address"`
	Side     string        `json:"side"`
	Price    string        `json:"price"`
	Amount   int64         `json:"amount"`
	Leverage int64         `json:"leverage"`
}

type ResultContractOrderbook struct {
	ContractID types.PropertyID      `json:"contractid"`
	Bids       []ResultContractOrder `json:"bids"`
	Asks       []ResultContractOrder `json:"asks"`
}

type ResultPosition struct {
	ContractID types.PropertyID `json:"contractid"`
	Address    types.Address    `json:"address"`
	Long       int64            `json:"longPosition"`
	Short      int64            `json:"shortPosition"`
	EntryPrice string           `json:"entryprice"`
	Margin     string           `json:"margin"`
	UPNL       string           `json:"upnl"`
	Leverage   int64            `json:"leverage"`
}

type ResultChannel struct {
	channels.Channel
	State string `json:"state"`
}

type ResultConsensusHash struct {
	Height        int64            `json:"block"`
	BlockHash     string           `json:"blockhash"`
	ConsensusHash tmbytes.HexBytes `json:"consensushash"`
}

type ResultAttestations struct {
	Address      types.Address     `json:"address"`
	IDs          []int64           `json:"kyc_ids"`
	Attestations []kyc.Attestation `json:"attestations"`
}

type ResultKYCProvider struct {
	kyc.Record
}

type ResultVesting struct {
	Admin       types.Address         `json:"admin"`
	CliffHeight int64                 `json:"cliff"`
	Volume      string                `json:"ltcvolume"`
	Fraction    string                `json:"fraction"`
	Holders     []ResultVestingHolder `json:"holders"`
}

type ResultVestingHolder struct {
	Address  types.Address `json:"address"`
	Vesting  string        `json:"vesting"`
	Unvested string        `json:"unvested"`
}

type ResultActivation struct {
	activation.Record
	Name   string `json:"featurename"`
	Active bool   `json:"active"`
}

type ResultNodeRewards struct {
	NextReward string            `json:"nextreward"`
	Nodes      []nodereward.Node `json:"nodes"`
}
