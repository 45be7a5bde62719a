package dex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/dex"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

const (
	seller = types.Address("seller")
	buyer  = types.Address("buyer")
	minFee = 1000 // 0.00001 LTC
)

func setup(t *testing.T) (*ledger.Store, *dex.Engine, types.PropertyID) {
	t.Helper()
	l := ledger.NewStore()
	id := l.CreateProperty(ledger.Property{Name: "lihki", Divisible: true, Issuer: seller, Kind: ledger.KindFixed})
	require.NoError(t, l.Issue(seller, id, 90000000*types.COIN))
	return l, dex.NewEngine(), id
}

func tx(height int64, sender, reference types.Address) types.TxContext {
	return types.TxContext{TxID: "tx", Height: height, Sender: sender, Reference: reference, Fee: minFee}
}

func newOffer(id types.PropertyID, amount, ltc int64) *payload.DExOffer {
	return &payload.DExOffer{
		PropertyID:    id,
		Amount:        amount,
		LTCDesired:    ltc,
		PaymentWindow: 10,
		MinFee:        minFee,
		Action:        payload.DExActionNew,
	}
}

func TestUnitPrice(t *testing.T) {
	price, err := dex.UnitPrice(2*types.COIN, 100000098765432, true)
	require.NoError(t, err)
	require.Equal(t, "0.00000200", types.FormatPrice(price))

	price, err = dex.UnitPrice(1*types.COIN, 1000*types.COIN, true)
	require.NoError(t, err)
	require.Equal(t, "0.00100000", types.FormatPrice(price))

	price, err = dex.UnitPrice(3, 2, false)
	require.NoError(t, err)
	require.Equal(t, "0.00000002", types.FormatPrice(price))
}

func TestOfferAcceptPay(t *testing.T) {
	l, e, id := setup(t)
	start := l.Balance(seller, id)

	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000*types.COIN, types.COIN)))
	require.EqualValues(t, 1000*types.COIN, l.Get(seller, id, ledger.OfferReserve))
	require.ErrorIs(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1, 1)), dex.ErrOfferExists)

	acc, err := e.Accept(l, tx(101, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 1000 * types.COIN})
	require.NoError(t, err)
	require.EqualValues(t, types.COIN, acc.LTCToPay)
	require.EqualValues(t, 111, acc.ExpiryBlock)
	require.EqualValues(t, 1000*types.COIN, l.Get(seller, id, ledger.AcceptReserve))

	paid := tx(102, buyer, seller)
	paid.BaseAmount = types.COIN
	bought, err := e.Pay(l, paid, &payload.DExPayment{PropertyID: id})
	require.NoError(t, err)
	require.EqualValues(t, 1000*types.COIN, bought)

	require.EqualValues(t, start-1000*types.COIN, l.Balance(seller, id))
	require.EqualValues(t, 1000*types.COIN, l.Balance(buyer, id))
	require.Equal(t, "1000.00000000", types.FormatAmount(l.Balance(buyer, id), true))
	require.Empty(t, e.Offers())
	require.Empty(t, e.Accepts())
	require.EqualValues(t, types.COIN, e.Volume())
	require.NoError(t, l.CheckConservation())
}

func TestPartialPaymentAndExpiry(t *testing.T) {
	l, e, id := setup(t)
	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000*types.COIN, types.COIN)))

	_, err := e.Accept(l, tx(101, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 600 * types.COIN})
	require.NoError(t, err)
	offer, ok := e.GetOffer(seller, id)
	require.True(t, ok)
	require.EqualValues(t, 400*types.COIN, offer.AmountAvailable)

	paid := tx(105, buyer, seller)
	paid.BaseAmount = types.COIN / 10 // buys 100 tokens
	bought, err := e.Pay(l, paid, &payload.DExPayment{PropertyID: id})
	require.NoError(t, err)
	require.EqualValues(t, 100*types.COIN, bought)

	// the window runs through block 111
	require.Empty(t, e.ExpireAccepts(l, 111))
	expired := e.ExpireAccepts(l, 112)
	require.Len(t, expired, 1)
	require.EqualValues(t, 500*types.COIN, expired[0].AmountRemaining)

	offer, _ = e.GetOffer(seller, id)
	require.EqualValues(t, 900*types.COIN, offer.AmountAvailable)
	require.EqualValues(t, 900*types.COIN, l.Get(seller, id, ledger.OfferReserve))
	require.EqualValues(t, 0, l.Get(seller, id, ledger.AcceptReserve))
	require.NoError(t, l.CheckConservation())
}

func TestCancelWithPendingAccept(t *testing.T) {
	l, e, id := setup(t)
	start := l.Balance(seller, id)
	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000*types.COIN, types.COIN)))
	_, err := e.Accept(l, tx(101, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 300 * types.COIN})
	require.NoError(t, err)

	cancel := newOffer(id, 0, 0)
	cancel.Action = payload.DExActionCancel
	require.NoError(t, e.Offer(l, tx(102, seller, ""), cancel))
	require.Empty(t, e.Offers())
	require.Len(t, e.Accepts(), 1)
	require.EqualValues(t, start-300*types.COIN, l.Balance(seller, id))

	// the accept can still be paid after the cancel
	paid := tx(103, buyer, seller)
	paid.BaseAmount = types.COIN / 10
	_, err = e.Pay(l, paid, &payload.DExPayment{PropertyID: id})
	require.NoError(t, err)

	e.ExpireAccepts(l, 200)
	require.EqualValues(t, start-100*types.COIN, l.Balance(seller, id))
	require.EqualValues(t, 100*types.COIN, l.Balance(buyer, id))
	require.NoError(t, l.CheckConservation())
}

func TestOfferUpdate(t *testing.T) {
	l, e, id := setup(t)
	update := newOffer(id, 10, 10)
	update.Action = payload.DExActionUpdate
	require.ErrorIs(t, e.Offer(l, tx(100, seller, ""), update), dex.ErrOfferNotFound)

	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000*types.COIN, types.COIN)))
	update = newOffer(id, 500*types.COIN, 2*types.COIN)
	update.Action = payload.DExActionUpdate
	require.NoError(t, e.Offer(l, tx(101, seller, ""), update))

	offer, _ := e.GetOffer(seller, id)
	require.EqualValues(t, 500*types.COIN, offer.AmountAvailable)
	require.EqualValues(t, 2*types.COIN, offer.LTCDesired)
	require.EqualValues(t, 500*types.COIN, l.Get(seller, id, ledger.OfferReserve))
}

func TestRejections(t *testing.T) {
	l, e, id := setup(t)

	testCases := map[string]struct {
		msg *payload.DExOffer
		err error
	}{
		"zero amount":      {newOffer(id, 0, 1), dex.ErrInvalidOffer},
		"zero price":       {newOffer(id, 1, 0), dex.ErrInvalidOffer},
		"vesting token":    {newOffer(types.PropertyVesting, 1, 1), ledger.ErrPropertyNotFound},
		"exceeds balance":  {newOffer(id, 90000001*types.COIN, 1), ledger.ErrInsufficientBalance},
		"unknown property": {newOffer(99, 1, 1), ledger.ErrPropertyNotFound},
		"bad action":       {&payload.DExOffer{PropertyID: id, Action: 9}, dex.ErrInvalidAction},
	}
	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, e.Offer(l, tx(100, seller, ""), tc.msg), tc.err)
		})
	}

	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000, 1000)))
	_, err := e.Accept(l, tx(101, seller, seller), &payload.DExAccept{PropertyID: id, Amount: 1})
	require.ErrorIs(t, err, dex.ErrSelfAccept)

	lowFee := tx(101, buyer, seller)
	lowFee.Fee = minFee - 1
	_, err = e.Accept(l, lowFee, &payload.DExAccept{PropertyID: id, Amount: 1})
	require.ErrorIs(t, err, dex.ErrFeeBelowMinimum)

	offer, _ := e.GetOffer(seller, id)
	require.ErrorIs(t, dex.ValidateAcceptFee(offer, minFee-1, false), dex.ErrFeeBelowMinimum)
	require.NoError(t, dex.ValidateAcceptFee(offer, minFee-1, true))

	_, err = e.Accept(l, tx(101, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 1})
	require.NoError(t, err)
	_, err = e.Accept(l, tx(102, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 1})
	require.ErrorIs(t, err, dex.ErrAcceptExists)

	_, err = e.Pay(l, tx(103, "stranger", seller), &payload.DExPayment{PropertyID: id})
	require.ErrorIs(t, err, dex.ErrAcceptNotFound)
}

func TestExportImport(t *testing.T) {
	l, e, id := setup(t)
	require.NoError(t, e.Offer(l, tx(100, seller, ""), newOffer(id, 1000, 1000)))
	_, err := e.Accept(l, tx(101, buyer, seller), &payload.DExAccept{PropertyID: id, Amount: 10})
	require.NoError(t, err)

	restored := dex.NewEngine()
	restored.Import(e.Export())
	require.Equal(t, e.Export(), restored.Export())
}
