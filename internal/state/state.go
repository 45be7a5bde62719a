package state

import (
	"fmt"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/channels"
	"github.com/tradelayer/tradelayer/internal/contracts"
	"github.com/tradelayer/tradelayer/internal/dex"
	"github.com/tradelayer/tradelayer/internal/kyc"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/metadex"
	"github.com/tradelayer/tradelayer/internal/nodereward"
	"github.com/tradelayer/tradelayer/internal/vesting"
	tmbytes "github.com/tradelayer/tradelayer/libs/bytes"
	"github.com/tradelayer/tradelayer/types"
	"github.com/tradelayer/tradelayer/version"
)

// State is the replicated protocol state after the last fully applied
// block: the ledger plus every engine that keeps books next to it.
//
// A State is mutated only by the BlockExecutor, which works on a Copy and
// hands back the result once the whole block went through. Readers must
// not mutate it.
// NOTE: not goroutine-safe.
type State struct {
	// immutable
	ChainID       string
	GenesisHeight int64
	Params        ConsensusParams
	admin         types.Address

	// LastBlockHeight is GenesisHeight-1 before the first block.
	LastBlockHeight int64
	// LastBlockHash is the chain hash of the last applied block.
	LastBlockHash string
	// ConsensusHash commits to everything below.
	ConsensusHash tmbytes.HexBytes

	Ledger     *ledger.Store
	DEx        *dex.Engine
	MetaDEx    *metadex.Engine
	Contracts  *contracts.Engine
	Vesting    *vesting.Engine
	NodeReward *nodereward.Engine
	Channels   *channels.Engine
	KYC        *kyc.Registry
	Activation *activation.Registry
}

// newState wires fresh engines for the given parameters.
func newState(chainID string, genesisHeight int64, admin types.Address, params ConsensusParams) *State {
	return &State{
		ChainID:         chainID,
		GenesisHeight:   genesisHeight,
		Params:          params,
		admin:           admin,
		LastBlockHeight: genesisHeight - 1,
		Ledger:          ledger.NewStore(),
		DEx:             dex.NewEngine(),
		MetaDEx:         metadex.NewEngine(params.MetaDExTaker),
		Contracts:       contracts.NewEngine(params.Contracts),
		Vesting:         vesting.NewEngine(params.Vesting),
		NodeReward:      nodereward.NewEngine(params.NodeReward),
		Channels:        channels.NewEngine(params.Channels),
		KYC:             kyc.NewRegistry(),
		Activation:      activation.NewRegistry(admin, version.ClientVersion.Uint64()),
	}
}

// MakeGenesisState creates the state before the first block of genDoc.
func MakeGenesisState(genDoc *GenesisDoc) (*State, error) {
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, fmt.Errorf("error in genesis doc: %w", err)
	}
	params, err := genDoc.ConsensusParams()
	if err != nil {
		return nil, err
	}
	s := newState(genDoc.ChainID, genDoc.GenesisHeight, genDoc.Admin, params)

	if err := s.Ledger.RegisterSystemProperty(ledger.Property{
		ID:        types.PropertyALL,
		Name:      "ALL",
		Divisible: true,
		Issuer:    genDoc.Admin,
		Kind:      ledger.KindSystem,
	}); err != nil {
		return nil, err
	}
	if err := s.Ledger.RegisterSystemProperty(ledger.Property{
		ID:        types.PropertyVesting,
		Name:      "Vesting Tokens",
		Divisible: true,
		Issuer:    params.Vesting.Admin,
		Kind:      ledger.KindSystem,
	}); err != nil {
		return nil, err
	}
	if err := s.Vesting.Genesis(s.Ledger); err != nil {
		return nil, fmt.Errorf("vesting pool: %w", err)
	}
	for _, f := range params.Features {
		if err := s.Activation.Genesis(f, genDoc.GenesisHeight); err != nil {
			return nil, err
		}
	}

	s.ConsensusHash = s.Hash()
	return s, nil
}

// MakeGenesisStateFromFile reads the genesis file and builds its state.
func MakeGenesisStateFromFile(genDocFile string) (*State, error) {
	genDoc, err := GenesisDocFromFile(genDocFile)
	if err != nil {
		return nil, err
	}
	return MakeGenesisState(genDoc)
}

// Admin is the governance address of the chain.
func (state *State) Admin() types.Address { return state.admin }

// IsEmpty reports whether no block has been applied yet.
func (state *State) IsEmpty() bool { return state.LastBlockHeight < state.GenesisHeight }

// Copy makes a deep copy of the State for mutating.
func (state *State) Copy() *State {
	c := newState(state.ChainID, state.GenesisHeight, state.admin, state.Params)
	c.Import(state.Export())
	return c
}

// Snapshot is the serializable form of a State. It carries everything but
// the genesis parameters.
type Snapshot struct {
	Version         uint64           `json:"version"`
	ChainID         string           `json:"chain_id"`
	LastBlockHeight int64            `json:"last_block_height"`
	LastBlockHash   string           `json:"last_block_hash"`
	ConsensusHash   tmbytes.HexBytes `json:"consensus_hash"`

	Ledger      ledger.Snapshot     `json:"ledger"`
	DEx         dex.Snapshot        `json:"dex"`
	MetaDEx     metadex.Snapshot    `json:"metadex"`
	Contracts   contracts.Snapshot  `json:"contracts"`
	Vesting     vesting.Snapshot    `json:"vesting"`
	Nodes       []nodereward.Node   `json:"nodes"`
	Channels    []channels.Channel  `json:"channels"`
	KYC         kyc.Snapshot        `json:"kyc"`
	Activations []activation.Record `json:"activations"`
}

// Export returns a deep copy of the state contents.
func (state *State) Export() Snapshot {
	return Snapshot{
		Version:         version.StateProtocol.Uint64(),
		ChainID:         state.ChainID,
		LastBlockHeight: state.LastBlockHeight,
		LastBlockHash:   state.LastBlockHash,
		ConsensusHash:   state.ConsensusHash.Copy(),
		Ledger:          state.Ledger.Export(),
		DEx:             state.DEx.Export(),
		MetaDEx:         state.MetaDEx.Export(),
		Contracts:       state.Contracts.Export(),
		Vesting:         state.Vesting.Export(),
		Nodes:           state.NodeReward.Export(),
		Channels:        state.Channels.Export(),
		KYC:             state.KYC.Export(),
		Activations:     state.Activation.Export(),
	}
}

// Import replaces the state contents with snap.
func (state *State) Import(snap Snapshot) {
	state.LastBlockHeight = snap.LastBlockHeight
	state.LastBlockHash = snap.LastBlockHash
	state.ConsensusHash = snap.ConsensusHash.Copy()
	state.Ledger.Import(snap.Ledger)
	state.DEx.Import(snap.DEx)
	state.MetaDEx.Import(snap.MetaDEx)
	state.Contracts.Import(snap.Contracts)
	state.Vesting.Import(snap.Vesting)
	state.NodeReward.Import(snap.Nodes)
	state.Channels.Import(snap.Channels)
	state.KYC.Import(snap.KYC)
	state.Activation.Import(snap.Activations)
}

// StateFromSnapshot rebuilds a state for genDoc from a snapshot.
func StateFromSnapshot(genDoc *GenesisDoc, snap Snapshot) (*State, error) {
	if snap.Version != version.StateProtocol.Uint64() {
		return nil, fmt.Errorf("snapshot version %d, want %d", snap.Version, version.StateProtocol.Uint64())
	}
	if snap.ChainID != genDoc.ChainID {
		return nil, fmt.Errorf("snapshot of chain %q, want %q", snap.ChainID, genDoc.ChainID)
	}
	params, err := genDoc.ConsensusParams()
	if err != nil {
		return nil, err
	}
	s := newState(genDoc.ChainID, genDoc.GenesisHeight, genDoc.Admin, params)
	s.Import(snap)
	return s, nil
}
