package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/kyc"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/types"
)

func TestApplyBlockIssueAndSelfAttest(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	block := makeBlock("a", "a", 1,
		issueLihki("tx1"),
		makeTx("tx2", alice, alice, &payload.Attestation{}),
	)
	next, results, err := blockExec.ApplyBlock(ctx, state, block)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, types.TxValid, res.Status, res.Reason)
	}

	p, ok := next.Ledger.Property(lihki)
	require.True(t, ok)
	assert.Equal(t, "lihki", p.Name)
	assert.True(t, p.Divisible)
	assert.Equal(t, alice, p.Issuer)

	tally := next.Ledger.Tally(alice, lihki)
	assert.Equal(t, "90000000.00000000", types.FormatAmount(tally[ledger.Balance], true))
	assert.Equal(t, "0.00000000", types.FormatAmount(tally.Reserved(), true))
	assert.Equal(t, []int64{0}, next.KYC.IDs(alice))

	// the input state is left alone
	assert.False(t, state.Ledger.HasProperty(lihki))
	assert.EqualValues(t, 0, state.LastBlockHeight)
	assert.EqualValues(t, 1, next.LastBlockHeight)
	assert.Equal(t, "a-1", next.LastBlockHash)
	assert.Equal(t, next.Hash(), []byte(next.ConsensusHash))
}

func TestApplyBlockDExTrade(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	state, _, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		issueLihki("tx1"),
		makeTx("tx2", alice, "", &payload.DExOffer{
			PropertyID:    lihki,
			Amount:        1000 * tokens,
			LTCDesired:    1 * tokens,
			PaymentWindow: 10,
			MinFee:        1000,
			Action:        payload.DExActionNew,
		}),
	))
	require.NoError(t, err)
	sellerBefore := state.Ledger.Tally(alice, lihki).Total()
	require.Len(t, state.DEx.Offers(), 1)

	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2,
		// fee below the offer minimum
		makeTx("tx3", bob, alice, &payload.DExAccept{PropertyID: lihki, Amount: 1000 * tokens}, withFee(999)),
		makeTx("tx4", bob, alice, &payload.DExAccept{PropertyID: lihki, Amount: 1000 * tokens}, withFee(1000)),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxInvalid, results[0].Status)
	assert.Equal(t, types.TxValid, results[1].Status, results[1].Reason)

	state, results, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 3,
		makeTx("tx5", bob, alice, &payload.DExPayment{PropertyID: lihki}, withBaseAmount(1*tokens)),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxValid, results[0].Status, results[0].Reason)

	assert.Equal(t, sellerBefore-1000*tokens, state.Ledger.Tally(alice, lihki).Total())
	assert.Equal(t, 1000*tokens, state.Ledger.Balance(bob, lihki))
	assert.Empty(t, state.DEx.Offers())
	assert.Empty(t, state.DEx.Accepts())
	assert.Equal(t, 1*tokens, state.DEx.Volume())
}

func TestApplyBlockSkipsUndecodablePayloads(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	next, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		makeTx("plain", alice, bob, nil),
		makeTx("junk", alice, bob, nil, withRawPayload("0000ff")),
		makeTx("nothex", alice, bob, nil, withRawPayload("zz")),
		makeTx("unknown", alice, bob, nil, withRawPayload("00e707")),
	))
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, types.TxSkipped, res.Status, res.TxID)
		assert.NotEmpty(t, res.Reason)
	}
	// skipped transactions leave the books alone
	assert.Equal(t, state.Hash(), next.Hash())
}

func TestApplyBlockRejectsBadBlocks(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	_, _, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2))
	var wrongHeight sm.ErrWrongHeight
	require.True(t, errors.As(err, &wrongHeight))
	assert.EqualValues(t, 1, wrongHeight.Expected)

	_, _, err = blockExec.ApplyBlock(ctx, state, &chain.Block{Height: 1})
	assert.ErrorIs(t, err, sm.ErrInvalidBlock)

	state, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1))
	require.NoError(t, err)
	_, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("b", "b", 2))
	var mismatch sm.ErrPrevHashMismatch
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "a-1", mismatch.Expected)
}

func TestApplyBlockHonoursCancelledContext(t *testing.T) {
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1, issueLihki("tx1")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeatureGating(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	offer := &payload.DExOffer{
		PropertyID: lihki, Amount: tokens, LTCDesired: tokens, PaymentWindow: 5, Action: payload.DExActionNew,
	}
	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		issueLihki("tx1"),
		makeTx("tx2", alice, "", &payload.Deactivation{FeatureID: uint64(activation.FeatureDEx)}),
		makeTx("tx3", admin, "", &payload.Deactivation{FeatureID: uint64(activation.FeatureDEx)}),
		makeTx("tx4", alice, "", offer),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxInvalid, results[1].Status)
	assert.Contains(t, results[1].Reason, activation.ErrNotAdmin.Error())
	assert.Equal(t, types.TxValid, results[2].Status, results[2].Reason)
	assert.Equal(t, types.TxInvalid, results[3].Status)
	assert.Contains(t, results[3].Reason, sm.ErrFeatureNotActive.Error())

	state, results, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2,
		makeTx("tx5", admin, "", &payload.Activation{FeatureID: uint64(activation.FeatureDEx), ActivationBlock: 3}),
		makeTx("tx6", alice, "", offer),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxValid, results[0].Status, results[0].Reason)
	assert.Equal(t, types.TxInvalid, results[1].Status)

	_, results, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 3,
		makeTx("tx7", alice, "", offer),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxValid, results[0].Status, results[0].Reason)
}

func TestClientVersionHalts(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		makeTx("tx1", admin, "", &payload.Activation{
			FeatureID:        uint64(activation.FeatureMetaDEx),
			ActivationBlock:  3,
			MinClientVersion: 1 << 40,
		}),
	))
	require.NoError(t, err)
	require.Equal(t, types.TxValid, results[0].Status, results[0].Reason)

	state, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2))
	require.NoError(t, err)

	_, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 3))
	assert.ErrorIs(t, err, sm.ErrInvariant)
}

func TestClientVersionHaltsOnSameBlockActivation(t *testing.T) {
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	_, _, err := blockExec.ApplyBlock(context.Background(), state, makeBlock("a", "a", 1,
		makeTx("tx1", admin, "", &payload.Activation{
			FeatureID:        uint64(activation.FeatureMetaDEx),
			ActivationBlock:  1,
			MinClientVersion: 1 << 40,
		}),
	))
	assert.ErrorIs(t, err, sm.ErrInvariant)
}

func TestActivationRejectsOutOfRangeFeature(t *testing.T) {
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	next, results, err := blockExec.ApplyBlock(context.Background(), state, makeBlock("a", "a", 1,
		makeTx("tx1", admin, "", &payload.Activation{
			FeatureID:       uint64(activation.FeatureMetaDEx) + 1<<16,
			ActivationBlock: 5,
		}),
		makeTx("tx2", admin, "", &payload.Deactivation{FeatureID: uint64(activation.FeatureDEx) + 1<<16}),
	))
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, types.TxInvalid, res.Status)
		assert.Contains(t, res.Reason, activation.ErrUnknownFeature.Error())
	}
	assert.True(t, next.Activation.IsActive(activation.FeatureDEx, 1))
	assert.True(t, next.Activation.IsActive(activation.FeatureMetaDEx, 1))
}

func TestKYCAllowList(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		makeTx("tx1", admin, carol, &payload.RegisterKYC{Name: "provider", Website: "https://kyc.example"}),
		makeTx("tx2", alice, "", &payload.CreatePropertyFixed{
			PropertyType: payload.PropertyTypeDivisible,
			Name:         "restricted",
			Amount:       100 * tokens,
			KYC:          []int64{1},
		}),
		makeTx("tx3", carol, alice, &payload.Attestation{}),
	))
	require.NoError(t, err)
	for _, res := range results {
		require.Equal(t, types.TxValid, res.Status, res.Reason)
	}

	send := &payload.SimpleSend{PropertyID: lihki, Amount: tokens}
	state, results, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2,
		makeTx("tx4", alice, bob, send),
		makeTx("tx5", carol, bob, &payload.Attestation{}),
		makeTx("tx6", alice, bob, send),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxInvalid, results[0].Status)
	assert.Contains(t, results[0].Reason, kyc.ErrNotAllowed.Error())
	assert.Equal(t, types.TxValid, results[1].Status, results[1].Reason)
	assert.Equal(t, types.TxValid, results[2].Status, results[2].Reason)
	assert.Equal(t, tokens, state.Ledger.Balance(bob, lihki))
}

func TestChannelTransferChecksReceiver(t *testing.T) {
	ctx := context.Background()
	_, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		makeTx("tx1", admin, carol, &payload.RegisterKYC{Name: "provider", Website: "https://kyc.example"}),
		makeTx("tx2", alice, "", &payload.CreatePropertyFixed{
			PropertyType: payload.PropertyTypeDivisible,
			Name:         "restricted",
			Amount:       100 * tokens,
			KYC:          []int64{1},
		}),
		makeTx("tx3", carol, alice, &payload.Attestation{}),
		makeTx("tx4", alice, "multisig", &payload.CommitChannel{PropertyID: lihki, Amount: 10 * tokens}),
	))
	require.NoError(t, err)
	for _, res := range results {
		require.Equal(t, types.TxValid, res.Status, res.Reason)
	}

	transfer := &payload.TransferChannel{SourceChannel: "multisig"}
	state, results, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2,
		makeTx("tx5", alice, bob, transfer),
		makeTx("tx6", alice, types.FeeCacheAddress, transfer),
		makeTx("tx7", carol, bob, &payload.Attestation{}),
		makeTx("tx8", alice, bob, transfer),
	))
	require.NoError(t, err)
	assert.Equal(t, types.TxInvalid, results[0].Status)
	assert.Contains(t, results[0].Reason, kyc.ErrNotAllowed.Error())
	assert.Equal(t, types.TxInvalid, results[1].Status)
	assert.Contains(t, results[1].Reason, sm.ErrNotTransferable.Error())
	assert.Equal(t, types.TxValid, results[2].Status, results[2].Reason)
	assert.Equal(t, types.TxValid, results[3].Status, results[3].Reason)

	assert.Equal(t, 10*tokens, state.Ledger.Balance(bob, lihki))
	assert.Zero(t, state.Ledger.Balance(types.FeeCacheAddress, lihki))
}

func TestSendAllSkipsVestingTokens(t *testing.T) {
	ctx := context.Background()
	genDoc, state := makeGenesisState(t)
	blockExec, _ := makeExecutor(t, state)

	vestingAdmin := genDoc.Vesting.Admin
	state, results, err := blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1,
		makeTx("tx1", vestingAdmin, "", &payload.CreatePropertyFixed{
			PropertyType: payload.PropertyTypeIndivisible,
			Name:         "whole",
			Amount:       42,
		}),
		makeTx("tx2", vestingAdmin, bob, &payload.SendAll{}),
	))
	require.NoError(t, err)
	for _, res := range results {
		require.Equal(t, types.TxValid, res.Status, res.Reason)
	}
	assert.EqualValues(t, 42, state.Ledger.Balance(bob, lihki))
	assert.Zero(t, state.Ledger.Balance(bob, types.PropertyVesting))
	assert.Positive(t, state.Ledger.Balance(vestingAdmin, types.PropertyVesting))
}

func TestEveryMessageTypeIsRouted(t *testing.T) {
	_, state := makeGenesisState(t)
	tx := types.TxContext{TxID: "tx", Height: 1, Sender: "nobody"}

	for _, typ := range payload.AllTypes() {
		msg := payload.NewMsg(typ)
		require.NotNil(t, msg, typ.String())
		assert.NotPanics(t, func() { sm.RequiredFeatures(msg) }, typ.String())
		assert.NotPanics(t, func() { _ = sm.DeliverMsg(state.Copy(), tx, msg) }, typ.String())
	}
}

func TestIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	_, genesis := makeGenesisState(t)

	blocks := []*chain.Block{
		makeBlock("a", "a", 1, issueLihki("tx1")),
		makeBlock("a", "a", 2,
			makeTx("tx2", alice, bob, &payload.SimpleSend{PropertyID: lihki, Amount: 500 * tokens}),
			makeTx("tx3", bob, "", &payload.MetaDExTrade{
				PropertyForSale: lihki, AmountForSale: 100 * tokens,
				PropertyDesired: types.PropertyALL, AmountDesired: 1 * tokens,
			}),
		),
		makeBlock("a", "a", 3,
			makeTx("tx4", alice, "multisig", &payload.CommitChannel{PropertyID: lihki, Amount: 10 * tokens}),
		),
	}

	replay := func() []byte {
		blockExec, _ := makeExecutor(t, genesis)
		state := genesis
		for _, block := range blocks {
			var err error
			state, _, err = blockExec.ApplyBlock(ctx, state, block)
			require.NoError(t, err)
		}
		return state.ConsensusHash
	}
	first := replay()
	assert.Equal(t, first, replay())
	assert.NotEqual(t, []byte(genesis.ConsensusHash), first)
}
