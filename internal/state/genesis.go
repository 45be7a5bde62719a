package state

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/channels"
	"github.com/tradelayer/tradelayer/internal/contracts"
	"github.com/tradelayer/tradelayer/internal/nodereward"
	"github.com/tradelayer/tradelayer/internal/vesting"
	"github.com/tradelayer/tradelayer/types"
)

// DefaultMaxReorgDepth is the number of per-height snapshots kept when the
// genesis does not say otherwise.
const DefaultMaxReorgDepth = 100

// GenesisDoc defines the initial conditions and the consensus parameters of
// a TradeLayer chain. Amounts are token strings; decimals are strings so the
// file round trips exactly.
type GenesisDoc struct {
	ChainID       string `toml:"chain_id"`
	GenesisHeight int64  `toml:"genesis_height"`
	// Admin signs feature activations and deactivations.
	Admin          types.Address `toml:"admin"`
	MaxReorgDepth  int64         `toml:"max_reorg_depth"`
	ActiveFeatures []string      `toml:"active_features"`

	Fees       GenesisFees       `toml:"fees"`
	Contracts  GenesisContracts  `toml:"contracts"`
	Vesting    GenesisVesting    `toml:"vesting"`
	NodeReward GenesisNodeReward `toml:"node_reward"`
	Channels   GenesisChannels   `toml:"channels"`
}

type GenesisFees struct {
	SendAll             string `toml:"send_all"`
	MetaDExTaker        string `toml:"metadex_taker"`
	ContractTaker       string `toml:"contract_taker"`
	ContractMakerRebate string `toml:"contract_maker_rebate"`
}

type GenesisContracts struct {
	MaintenanceRatio string `toml:"maintenance_ratio"`
	MaxLeverage      int64  `toml:"max_leverage"`
}

type GenesisVestingStep struct {
	// Volume is cumulative DEx volume in base currency.
	Volume   string `toml:"volume"`
	Fraction string `toml:"fraction"`
}

type GenesisVesting struct {
	Admin       types.Address        `toml:"admin"`
	Pool        string               `toml:"pool"`
	CliffBlocks int64                `toml:"cliff_blocks"`
	Steps       []GenesisVestingStep `toml:"steps"`
}

type GenesisNodeReward struct {
	Base          string `toml:"base"`
	DecayStart    int64  `toml:"decay_start"`
	DecayInterval int64  `toml:"decay_interval"`
	DecayFactor   string `toml:"decay_factor"`
	Tail          string `toml:"tail"`
	Winners       int    `toml:"winners"`
}

type GenesisChannels struct {
	Lifetime        int64 `toml:"lifetime"`
	WithdrawalDelay int64 `toml:"withdrawal_delay"`
}

// ConsensusParams are the parsed parameters every engine is built from.
type ConsensusParams struct {
	SendAllFee    decimal.Decimal
	MetaDExTaker  decimal.Decimal
	Contracts     contracts.Params
	Vesting       vesting.Params
	NodeReward    nodereward.Params
	Channels      channels.Params
	Features      []activation.Feature
	MaxReorgDepth int64
}

// GenesisDocFromTOML unmarshals the genesis and validates it.
func GenesisDocFromTOML(bz []byte) (*GenesisDoc, error) {
	genDoc := new(GenesisDoc)
	md, err := toml.Decode(string(bz), genDoc)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown genesis keys: %v", undecoded)
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return genDoc, nil
}

// GenesisDocFromFile reads and unmarshals a genesis file.
func GenesisDocFromFile(path string) (*GenesisDoc, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromTOML(bz)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", path, err)
	}
	return genDoc, nil
}

// ValidateAndComplete checks the genesis and fills in defaults.
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if genDoc.GenesisHeight < 0 {
		return fmt.Errorf("genesis_height cannot be negative (got %d)", genDoc.GenesisHeight)
	}
	if genDoc.Admin == "" {
		return errors.New("genesis doc must name an admin")
	}
	if genDoc.MaxReorgDepth == 0 {
		genDoc.MaxReorgDepth = DefaultMaxReorgDepth
	}
	if genDoc.Contracts.MaxLeverage == 0 {
		genDoc.Contracts.MaxLeverage = contracts.DefaultParams().MaxLeverage
	}
	if genDoc.Vesting.Admin == "" {
		genDoc.Vesting.Admin = genDoc.Admin
	}
	if genDoc.NodeReward.Winners == 0 {
		genDoc.NodeReward.Winners = 1
	}
	_, err := genDoc.ConsensusParams()
	return err
}

// ConsensusParams parses the genesis parameters.
func (genDoc *GenesisDoc) ConsensusParams() (ConsensusParams, error) {
	var (
		p   ConsensusParams
		err error
	)
	dec := func(field, s string, def decimal.Decimal) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		if s == "" {
			return def
		}
		d, perr := decimal.NewFromString(s)
		if perr != nil {
			err = fmt.Errorf("%s: %w", field, perr)
			return decimal.Zero
		}
		if d.Sign() < 0 {
			err = fmt.Errorf("%s cannot be negative", field)
		}
		return d
	}
	amount := func(field, s string) int64 {
		if err != nil || s == "" {
			return 0
		}
		v, perr := types.ParseAmount(s, true)
		if perr != nil {
			err = fmt.Errorf("%s: %w", field, perr)
		}
		return v
	}

	defaults := contracts.DefaultParams()
	p.SendAllFee = dec("fees.send_all", genDoc.Fees.SendAll, decimal.Zero)
	p.MetaDExTaker = dec("fees.metadex_taker", genDoc.Fees.MetaDExTaker, decimal.Zero)
	p.Contracts = contracts.Params{
		TakerFee:         dec("fees.contract_taker", genDoc.Fees.ContractTaker, defaults.TakerFee),
		MakerRebate:      dec("fees.contract_maker_rebate", genDoc.Fees.ContractMakerRebate, defaults.MakerRebate),
		MaintenanceRatio: dec("contracts.maintenance_ratio", genDoc.Contracts.MaintenanceRatio, defaults.MaintenanceRatio),
		MaxLeverage:      genDoc.Contracts.MaxLeverage,
	}

	p.Vesting = vesting.Params{
		Admin:       genDoc.Vesting.Admin,
		Pool:        amount("vesting.pool", genDoc.Vesting.Pool),
		CliffHeight: genDoc.GenesisHeight + genDoc.Vesting.CliffBlocks,
	}
	for i, st := range genDoc.Vesting.Steps {
		p.Vesting.Steps = append(p.Vesting.Steps, vesting.Step{
			Volume:   amount(fmt.Sprintf("vesting.steps[%d].volume", i), st.Volume),
			Fraction: dec(fmt.Sprintf("vesting.steps[%d].fraction", i), st.Fraction, decimal.Zero),
		})
	}

	p.NodeReward = nodereward.Params{
		Base:          amount("node_reward.base", genDoc.NodeReward.Base),
		DecayStart:    genDoc.NodeReward.DecayStart,
		DecayInterval: genDoc.NodeReward.DecayInterval,
		DecayFactor:   dec("node_reward.decay_factor", genDoc.NodeReward.DecayFactor, decimal.NewFromInt(1)),
		Tail:          amount("node_reward.tail", genDoc.NodeReward.Tail),
		Winners:       genDoc.NodeReward.Winners,
	}
	p.Channels = channels.Params{
		Lifetime:        genDoc.Channels.Lifetime,
		WithdrawalDelay: genDoc.Channels.WithdrawalDelay,
	}
	p.MaxReorgDepth = genDoc.MaxReorgDepth
	if err != nil {
		return ConsensusParams{}, err
	}

	switch {
	case p.Contracts.MaintenanceRatio.GreaterThan(decimal.NewFromInt(1)):
		return ConsensusParams{}, errors.New("contracts.maintenance_ratio must not exceed 1")
	case p.Contracts.MakerRebate.GreaterThan(p.Contracts.TakerFee):
		return ConsensusParams{}, errors.New("fees.contract_maker_rebate must not exceed fees.contract_taker")
	case p.Contracts.MaxLeverage < 1:
		return ConsensusParams{}, errors.New("contracts.max_leverage must be at least 1")
	case genDoc.Vesting.CliffBlocks < 0:
		return ConsensusParams{}, errors.New("vesting.cliff_blocks cannot be negative")
	case p.NodeReward.DecayFactor.GreaterThan(decimal.NewFromInt(1)):
		return ConsensusParams{}, errors.New("node_reward.decay_factor must not exceed 1")
	case p.Channels.Lifetime < 0 || p.Channels.WithdrawalDelay < 0:
		return ConsensusParams{}, errors.New("channel timings cannot be negative")
	case p.MaxReorgDepth < 1:
		return ConsensusParams{}, errors.New("max_reorg_depth must be positive")
	}
	for _, st := range p.Vesting.Steps {
		if st.Fraction.GreaterThan(decimal.NewFromInt(1)) {
			return ConsensusParams{}, errors.New("vesting step fraction must not exceed 1")
		}
	}

	for _, name := range genDoc.ActiveFeatures {
		f, err := activation.ParseFeature(name)
		if err != nil {
			return ConsensusParams{}, err
		}
		p.Features = append(p.Features, f)
	}
	return p, nil
}
