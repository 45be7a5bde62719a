package state

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/channels"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/types"
)

//-----------------------------------------------------------------------------
// BlockExecutor handles block execution and state updates.
// It exposes ApplyBlock(), which takes a chain block, runs every embedded
// payload through the engines, checks the invariants, and persists the
// new state with its consensus hash.

// TxIndexer receives the transaction results of every applied block.
type TxIndexer interface {
	Index(height int64, results []*types.TxResult)
}

// BlockExecutor provides the context and accessories for properly executing
// a block.
type BlockExecutor struct {
	// save state, hashes and snapshots
	store Store

	// optional tx result indexing
	indexer TxIndexer

	logger  log.Logger
	metrics *Metrics
}

type BlockExecutorOption func(executor *BlockExecutor)

func BlockExecutorWithMetrics(metrics *Metrics) BlockExecutorOption {
	return func(blockExec *BlockExecutor) {
		blockExec.metrics = metrics
	}
}

func BlockExecutorWithIndexer(indexer TxIndexer) BlockExecutorOption {
	return func(blockExec *BlockExecutor) {
		blockExec.indexer = indexer
	}
}

// NewBlockExecutor returns a new BlockExecutor with a NopMetrics. A nil
// store leaves applied states unpersisted.
func NewBlockExecutor(store Store, logger log.Logger, options ...BlockExecutorOption) *BlockExecutor {
	res := &BlockExecutor{
		store:   store,
		logger:  logger,
		metrics: NopMetrics(),
	}
	for _, option := range options {
		option(res)
	}
	return res
}

func (blockExec *BlockExecutor) Store() Store {
	return blockExec.store
}

// ValidateBlock checks that block extends state.
func (blockExec *BlockExecutor) ValidateBlock(state *State, block *chain.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if want := state.LastBlockHeight + 1; block.Height != want {
		return ErrWrongHeight{Expected: want, Got: block.Height}
	}
	if state.LastBlockHash != "" && block.PrevHash != state.LastBlockHash {
		return ErrPrevHashMismatch{Height: block.Height, Expected: state.LastBlockHash, Got: block.PrevHash}
	}
	return nil
}

// ApplyBlock validates the block against the state, executes it against a
// copy of the state, checks the invariants and saves the result.
// It returns the new state and the result of every transaction.
// The given state is never mutated.
func (blockExec *BlockExecutor) ApplyBlock(
	ctx context.Context, state *State, block *chain.Block,
) (*State, []*types.TxResult, error) {
	if err := blockExec.ValidateBlock(state, block); err != nil {
		return state, nil, err
	}

	startTime := time.Now()
	next := state.Copy()
	results, err := blockExec.execBlock(ctx, next, block)
	if err != nil {
		return state, nil, err
	}

	next.LastBlockHeight = block.Height
	next.LastBlockHash = block.Hash
	next.ConsensusHash = next.Hash()

	if blockExec.store != nil {
		if err := blockExec.store.Save(next); err != nil {
			return state, nil, fmt.Errorf("saving state at height %d: %w", block.Height, err)
		}
	}
	if blockExec.indexer != nil {
		blockExec.indexer.Index(block.Height, results)
	}

	blockExec.metrics.BlockProcessingTime.Observe(time.Since(startTime).Seconds())
	blockExec.metrics.Height.Set(float64(block.Height))

	blockExec.logger.Info("applied block",
		"height", block.Height,
		"hash", block.Hash,
		"txs", len(block.Txs),
		"consensus_hash", next.ConsensusHash,
	)
	return next, results, nil
}

// execBlock runs the per-block pipeline on s. A panic raised by an engine
// after validating a transaction means the books are inconsistent and is
// turned into ErrInvariant.
func (blockExec *BlockExecutor) execBlock(ctx context.Context, s *State, block *chain.Block) (results []*types.TxResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			blockExec.logger.Error("engine panic while applying block",
				"height", block.Height, "panic", r)
			blockExec.logger.Debug("state at panic", "dump", spew.Sdump(s.Export()))
			results = nil
			err = fmt.Errorf("%w: height %d: %v", ErrInvariant, block.Height, r)
		}
	}()

	height := block.Height

	// begin block
	for _, a := range s.DEx.ExpireAccepts(s.Ledger, height) {
		blockExec.logger.Debug("dex accept expired", "seller", a.Seller, "buyer", a.Buyer, "property", a.PropertyID)
	}
	for _, ev := range s.Channels.BeginBlock(s.Ledger, height) {
		blockExec.logger.Debug("channel payout", "channel", ev.Channel, "address", ev.Address,
			"property", ev.PropertyID, "amount", ev.Amount, "closed", ev.Closed)
	}
	if err := s.Activation.CheckClientVersion(height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
	}

	// transactions
	results = make([]*types.TxResult, len(block.Txs))
	for i, raw := range block.Txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = blockExec.deliverTx(s, raw.Context(height, i), raw)
	}
	// an activation may have been scheduled for this very block
	if err := s.Activation.CheckClientVersion(height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariant, err)
	}

	// end block
	liqs := s.Contracts.EndBlock(s.Ledger, height, func(base, quote types.PropertyID) (decimal.Decimal, bool) {
		price, _, ok := s.MetaDEx.LastPrice(s.Ledger, base, quote)
		return price, ok
	})
	for _, l := range liqs {
		blockExec.logger.Info("position liquidated", "contract", l.ContractID, "address", l.Address,
			"amount", l.Amount, "price", l.Price, "full", l.Full)
	}
	blockExec.metrics.Liquidations.Add(float64(len(liqs)))

	if s.Activation.IsActive(activation.FeatureVesting, height) {
		for _, r := range s.Vesting.EndBlock(s.Ledger, height, s.DEx.Volume()) {
			blockExec.logger.Debug("vesting release", "address", r.Address, "amount", r.Amount)
		}
	}
	if s.Activation.IsActive(activation.FeatureNodeReward, height) {
		awards, err := s.NodeReward.EndBlock(height, s.ConsensusHash)
		if err != nil {
			return nil, fmt.Errorf("%w: node reward lottery: %v", ErrInvariant, err)
		}
		for _, a := range awards {
			blockExec.logger.Debug("node reward", "address", a.Address, "amount", a.Amount)
		}
	}

	if err := CheckInvariants(s); err != nil {
		blockExec.logger.Error("invariant violated", "height", height, "err", err)
		return nil, err
	}
	return results, nil
}

// CheckInvariants verifies conservation of every property and the balance
// of the contract and channel books against the ledger.
func CheckInvariants(s *State) error {
	if err := s.Ledger.CheckConservation(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	if err := s.Contracts.CheckInvariants(s.Ledger); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	if err := s.Channels.CheckReserves(s.Ledger); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return nil
}

// deliverTx decodes and applies one transaction and reports its outcome.
func (blockExec *BlockExecutor) deliverTx(s *State, tx types.TxContext, raw chain.Tx) *types.TxResult {
	res := &types.TxResult{
		TxID:      tx.TxID,
		Height:    tx.Height,
		Index:     tx.Index,
		Sender:    tx.Sender,
		Reference: tx.Reference,
		Type:      -1,
	}

	bz, err := raw.PayloadBytes()
	if err == nil && len(bz) == 0 {
		err = errors.New("no payload")
	}
	var msg payload.Msg
	if err == nil {
		msg, err = payload.Decode(bz)
	}
	if err != nil {
		res.Status = types.TxSkipped
		res.Reason = err.Error()
		blockExec.metrics.SkippedTxs.Add(1)
		return res
	}
	res.Type = int64(msg.Type())
	res.TypeName = msg.Type().String()

	if err := DeliverMsg(s, tx, msg); err != nil {
		res.Status = types.TxInvalid
		res.Reason = err.Error()
		blockExec.metrics.InvalidTxs.Add(1)
		blockExec.logger.Debug("invalid tx", "txid", tx.TxID, "type", res.TypeName, "err", err)
		return res
	}
	res.Status = types.TxValid
	blockExec.metrics.ValidTxs.Add(1)
	return res
}

// RequiredFeatures lists the features that must be active for msg. An
// empty list means the message is always accepted.
func RequiredFeatures(msg payload.Msg) []activation.Feature {
	switch m := msg.(type) {
	case *payload.SimpleSend, *payload.SendAll,
		*payload.CreatePropertyFixed, *payload.CreatePropertyManaged,
		*payload.GrantTokens, *payload.RevokeTokens, *payload.ChangeIssuer,
		*payload.Activation, *payload.Deactivation:
		return nil
	case *payload.DExOffer, *payload.DExAccept, *payload.DExPayment:
		return []activation.Feature{activation.FeatureDEx}
	case *payload.MetaDExTrade, *payload.MetaDExCancelPrice, *payload.MetaDExCancelPair,
		*payload.MetaDExCancelAll, *payload.MetaDExCancelOrder:
		return []activation.Feature{activation.FeatureMetaDEx}
	case *payload.CreateContract:
		if m.Kind == payload.ContractOracle {
			return []activation.Feature{activation.FeatureContracts, activation.FeatureOracles}
		}
		return []activation.Feature{activation.FeatureContracts}
	case *payload.ContractTrade, *payload.ContractCancelPrice, *payload.ContractCancelAll,
		*payload.ClosePosition:
		return []activation.Feature{activation.FeatureContracts}
	case *payload.SetOracle, *payload.CloseOracle:
		return []activation.Feature{activation.FeatureOracles}
	case *payload.CommitChannel, *payload.WithdrawChannel, *payload.TransferChannel:
		return []activation.Feature{activation.FeatureChannels}
	case *payload.InstantTrade:
		return []activation.Feature{activation.FeatureChannels, activation.FeatureInstantTrade}
	case *payload.InstantContractTrade:
		return []activation.Feature{activation.FeatureChannels, activation.FeatureInstantTrade, activation.FeatureContracts}
	case *payload.SubmitNodeAddress, *payload.ClaimNodeReward:
		return []activation.Feature{activation.FeatureNodeReward}
	case *payload.RegisterKYC, *payload.Attestation, *payload.RevokeAttestation:
		return []activation.Feature{activation.FeatureKYC}
	default:
		panic(fmt.Sprintf("unrouted message type %T", msg))
	}
}

// DeliverMsg applies one decoded message to s. On error s is unchanged.
func DeliverMsg(s *State, tx types.TxContext, msg payload.Msg) error {
	for _, f := range RequiredFeatures(msg) {
		if !s.Activation.IsActive(f, tx.Height) {
			return fmt.Errorf("%w: %s", ErrFeatureNotActive, f)
		}
	}

	switch m := msg.(type) {
	case *payload.SimpleSend:
		return simpleSend(s, tx, m)

	case *payload.SendAll:
		if err := needReference(tx); err != nil {
			return err
		}
		filter := func(id types.PropertyID) bool {
			return id != types.PropertyVesting && checkKYC(s, id, tx.Sender, tx.Reference) == nil
		}
		_, err := s.Ledger.SendAll(tx.Sender, tx.Reference, filter, s.Params.SendAllFee)
		return err

	case *payload.DExOffer:
		if err := checkKYC(s, m.PropertyID, tx.Sender); err != nil {
			return err
		}
		return s.DEx.Offer(s.Ledger, tx, m)

	case *payload.DExAccept:
		if err := checkKYC(s, m.PropertyID, tx.Sender); err != nil {
			return err
		}
		_, err := s.DEx.Accept(s.Ledger, tx, m)
		return err

	case *payload.DExPayment:
		_, err := s.DEx.Pay(s.Ledger, tx, m)
		return err

	case *payload.MetaDExTrade:
		if err := checkKYC(s, m.PropertyForSale, tx.Sender); err != nil {
			return err
		}
		if err := checkKYC(s, m.PropertyDesired, tx.Sender); err != nil {
			return err
		}
		_, err := s.MetaDEx.Trade(s.Ledger, tx, m)
		return err

	case *payload.MetaDExCancelPrice:
		_, err := s.MetaDEx.CancelPrice(s.Ledger, tx.Sender, m)
		return err

	case *payload.MetaDExCancelPair:
		_, err := s.MetaDEx.CancelPair(s.Ledger, tx.Sender, m.PropertyForSale, m.PropertyDesired)
		return err

	case *payload.MetaDExCancelAll:
		_, err := s.MetaDEx.CancelAll(s.Ledger, tx.Sender)
		return err

	case *payload.MetaDExCancelOrder:
		_, err := s.MetaDEx.CancelOrder(s.Ledger, tx.Sender, m.TxID)
		return err

	case *payload.ContractTrade:
		if err := checkKYC(s, m.ContractID, tx.Sender); err != nil {
			return err
		}
		_, err := s.Contracts.Trade(s.Ledger, tx, m)
		return err

	case *payload.ContractCancelPrice:
		_, err := s.Contracts.CancelPrice(s.Ledger, tx, m)
		return err

	case *payload.ContractCancelAll:
		_, err := s.Contracts.CancelAll(s.Ledger, tx, m)
		return err

	case *payload.ClosePosition:
		_, err := s.Contracts.ClosePosition(s.Ledger, tx, m)
		return err

	case *payload.CreateContract:
		_, err := s.Contracts.Create(s.Ledger, tx, m)
		return err

	case *payload.SetOracle:
		_, err := s.Contracts.SetOracle(s.Ledger, tx, m)
		return err

	case *payload.CloseOracle:
		return s.Contracts.CloseOracle(s.Ledger, tx, m)

	case *payload.CreatePropertyFixed:
		if m.Amount <= 0 {
			return fmt.Errorf("%w: amount must be positive", ErrInvalidProperty)
		}
		id, err := createProperty(s, tx, m.PropertyType, m.Name, m.URL, m.Data, m.KYC, ledger.KindFixed)
		if err != nil {
			return err
		}
		mustLedger(s.Ledger.Issue(tx.Sender, id, m.Amount))
		return nil

	case *payload.CreatePropertyManaged:
		_, err := createProperty(s, tx, m.PropertyType, m.Name, m.URL, m.Data, m.KYC, ledger.KindManaged)
		return err

	case *payload.GrantTokens:
		receiver := tx.Reference
		if receiver == "" {
			receiver = tx.Sender
		}
		if err := checkKYC(s, m.PropertyID, receiver); err != nil {
			return err
		}
		return s.Ledger.Grant(tx.Sender, m.PropertyID, receiver, m.Amount)

	case *payload.RevokeTokens:
		return s.Ledger.Revoke(tx.Sender, m.PropertyID, m.Amount)

	case *payload.ChangeIssuer:
		if err := needReference(tx); err != nil {
			return err
		}
		return s.Ledger.ChangeIssuer(tx.Sender, m.PropertyID, tx.Reference)

	case *payload.CommitChannel:
		if err := checkKYC(s, m.PropertyID, tx.Sender); err != nil {
			return err
		}
		_, err := s.Channels.Commit(s.Ledger, tx, m)
		return err

	case *payload.WithdrawChannel:
		_, err := s.Channels.Withdraw(tx, m)
		return err

	case *payload.TransferChannel:
		if err := checkChannelTransfer(s, tx, m); err != nil {
			return err
		}
		return s.Channels.Transfer(s.Ledger, tx, m)

	case *payload.InstantTrade:
		if ch, ok := s.Channels.Channel(tx.Sender); ok {
			if err := checkKYC(s, m.PropertyA, ch.PartyB); err != nil {
				return err
			}
			if err := checkKYC(s, m.PropertyB, ch.PartyA); err != nil {
				return err
			}
		}
		return s.Channels.InstantTrade(tx, m)

	case *payload.InstantContractTrade:
		if ch, ok := s.Channels.Channel(tx.Sender); ok {
			if err := checkKYC(s, m.ContractID, ch.PartyA, ch.PartyB); err != nil {
				return err
			}
		}
		_, err := s.Channels.InstantContractTrade(s.Ledger, tx, m, s.Contracts)
		return err

	case *payload.SubmitNodeAddress:
		return s.NodeReward.Submit(tx, m)

	case *payload.ClaimNodeReward:
		_, err := s.NodeReward.Claim(s.Ledger, tx)
		return err

	case *payload.RegisterKYC:
		if !s.Activation.IsAdmin(tx.Sender) {
			return activation.ErrNotAdmin
		}
		if err := needReference(tx); err != nil {
			return err
		}
		_, err := s.KYC.Register(tx.Reference, m.Name, m.Website, tx.Height)
		return err

	case *payload.Attestation:
		if err := needReference(tx); err != nil {
			return err
		}
		_, err := s.KYC.Attest(tx.Sender, tx.Reference, tx.Height)
		return err

	case *payload.RevokeAttestation:
		if err := needReference(tx); err != nil {
			return err
		}
		return s.KYC.Revoke(tx.Sender, tx.Reference)

	case *payload.Activation:
		f, err := featureID(m.FeatureID)
		if err != nil {
			return err
		}
		return s.Activation.Activate(tx.Sender, f, m.ActivationBlock, m.MinClientVersion, tx.Height)

	case *payload.Deactivation:
		f, err := featureID(m.FeatureID)
		if err != nil {
			return err
		}
		return s.Activation.Deactivate(tx.Sender, f)

	default:
		panic(fmt.Sprintf("unrouted message type %T", msg))
	}
}

func simpleSend(s *State, tx types.TxContext, m *payload.SimpleSend) error {
	if err := needReference(tx); err != nil {
		return err
	}
	if tx.Reference.IsSystem() {
		return fmt.Errorf("%w: receiver %s is a system account", ErrNotTransferable, tx.Reference)
	}
	if err := checkKYC(s, m.PropertyID, tx.Sender, tx.Reference); err != nil {
		return err
	}
	if m.PropertyID != types.PropertyVesting {
		return s.Ledger.Transfer(tx.Sender, tx.Reference, m.PropertyID, m.Amount)
	}
	if err := s.Vesting.CheckSend(tx.Sender, tx.Reference, tx.Height); err != nil {
		return err
	}
	if err := s.Ledger.Transfer(tx.Sender, tx.Reference, m.PropertyID, m.Amount); err != nil {
		return err
	}
	s.Vesting.OnTransfer(s.Ledger, tx.Sender, tx.Reference, m.Amount)
	return nil
}

func createProperty(s *State, tx types.TxContext, propertyType uint64, name, url, data string,
	kycList []int64, kind ledger.Kind) (types.PropertyID, error) {
	if propertyType != payload.PropertyTypeIndivisible && propertyType != payload.PropertyTypeDivisible {
		return 0, fmt.Errorf("%w: property type %d", ErrInvalidProperty, propertyType)
	}
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidProperty)
	}
	return s.Ledger.CreateProperty(ledger.Property{
		Name:          name,
		URL:           url,
		Data:          data,
		Divisible:     propertyType == payload.PropertyTypeDivisible,
		Issuer:        tx.Sender,
		Kind:          kind,
		CreationBlock: tx.Height,
		CreationTxID:  tx.TxID,
		KYC:           kycList,
	}), nil
}

func featureID(id uint64) (activation.Feature, error) {
	if id > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d", activation.ErrUnknownFeature, id)
	}
	return activation.Feature(id), nil
}

func needReference(tx types.TxContext) error {
	if tx.Reference == "" {
		return ErrNoReference
	}
	return nil
}

// checkKYC applies the allow list of property id to addrs. Unknown
// properties pass; the engine rejects them.
// checkChannelTransfer holds the receiver of a channel transfer to the rules
// of a plain send. Into another channel the sender keeps the contribution,
// so the sender is the one checked.
func checkChannelTransfer(s *State, tx types.TxContext, m *payload.TransferChannel) error {
	if tx.Reference.IsSystem() {
		return fmt.Errorf("%w: receiver %s is a system account", ErrNotTransferable, tx.Reference)
	}
	src, ok := s.Channels.Channel(m.SourceChannel)
	if !ok {
		return nil
	}
	receiver := tx.Reference
	if dest, ok := s.Channels.Channel(tx.Reference); ok && dest.Status != channels.StatusClosed {
		receiver = tx.Sender
	}
	for _, id := range src.Contributed(tx.Sender) {
		if err := checkKYC(s, id, receiver); err != nil {
			return err
		}
	}
	return nil
}

func checkKYC(s *State, id types.PropertyID, addrs ...types.Address) error {
	p, ok := s.Ledger.Property(id)
	if !ok {
		return nil
	}
	return s.KYC.Check(p.KYC, addrs...)
}

func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("state: ledger rejected a validated operation: %v", err))
	}
}
