// Package dex implements the token-for-base-currency exchange: sell offers,
// accepts with a payment window and payments carried by the underlying
// chain transaction.
package dex

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

const maxPaymentWindow = 255

var (
	ErrOfferExists      = errors.New("an offer for this property already exists")
	ErrOfferNotFound    = errors.New("offer not found")
	ErrAcceptExists     = errors.New("an accept for this offer is already pending")
	ErrAcceptNotFound   = errors.New("accept not found")
	ErrInvalidOffer     = errors.New("invalid offer")
	ErrInvalidAction    = errors.New("invalid offer action")
	ErrSelfAccept       = errors.New("cannot accept own offer")
	ErrNothingAvailable = errors.New("offer has nothing available")
	ErrFeeBelowMinimum  = errors.New("transaction fee below the offer minimum")
	ErrPaymentTooSmall  = errors.New("payment does not buy a single unit")
)

// Offer is a seller's standing offer of one property.
type Offer struct {
	Seller          types.Address    `json:"seller"`
	PropertyID      types.PropertyID `json:"property_id"`
	AmountOriginal  int64            `json:"amount_original"`
	AmountAvailable int64            `json:"amount_available"`
	LTCDesired      int64            `json:"ltc_desired"`
	MinFee          int64            `json:"min_fee"`
	PaymentWindow   int64            `json:"payment_window"`
	Block           int64            `json:"block"`
	TxID            string           `json:"txid"`
}

// Accept is a buyer's claim on part of an offer, awaiting payment. The
// offer's price at accept time is kept with it.
type Accept struct {
	Seller          types.Address    `json:"seller"`
	Buyer           types.Address    `json:"buyer"`
	PropertyID      types.PropertyID `json:"property_id"`
	AmountAccepted  int64            `json:"amount_accepted"`
	AmountRemaining int64            `json:"amount_remaining"`
	LTCToPay        int64            `json:"ltc_to_pay"`
	OfferOriginal   int64            `json:"offer_original"`
	OfferLTCDesired int64            `json:"offer_ltc_desired"`
	OfferTxID       string           `json:"offer_txid"`
	Block           int64            `json:"block"`
	ExpiryBlock     int64            `json:"expiry_block"`
	TxID            string           `json:"txid"`
}

type offerKey struct {
	seller types.Address
	id     types.PropertyID
}

type acceptKey struct {
	seller types.Address
	id     types.PropertyID
	buyer  types.Address
}

// Engine holds all offers and accepts.
type Engine struct {
	offers  map[offerKey]*Offer
	accepts map[acceptKey]*Accept
	volume  int64
}

func NewEngine() *Engine {
	return &Engine{
		offers:  make(map[offerKey]*Offer),
		accepts: make(map[acceptKey]*Accept),
	}
}

// UnitPrice is the price of one token (or one unit of an indivisible
// property), rounded up to 8 decimals.
func UnitPrice(ltcDesired, amount int64, divisible bool) (decimal.Decimal, error) {
	scale := int64(1)
	if divisible {
		scale = types.COIN
	}
	units, err := tlmath.MulDivCeil(ltcDesired, scale, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(units, -types.PriceDecimals), nil
}

// ValidateAcceptFee is used when building an accept: fees below the offer's
// minimum are refused unless override is set. Such an accept is invalid on
// chain either way.
func ValidateAcceptFee(offer Offer, fee int64, override bool) error {
	if fee < offer.MinFee && !override {
		return fmt.Errorf("%w: %d < %d", ErrFeeBelowMinimum, fee, offer.MinFee)
	}
	return nil
}

// Volume is the cumulative base currency paid through the DEx.
func (e *Engine) Volume() int64 { return e.volume }

// Offer creates, updates or cancels the sender's offer.
func (e *Engine) Offer(l *ledger.Store, tx types.TxContext, msg *payload.DExOffer) error {
	key := offerKey{seller: tx.Sender, id: msg.PropertyID}
	existing := e.offers[key]

	switch msg.Action {
	case payload.DExActionNew, payload.DExActionUpdate:
		if err := validateTerms(l, msg); err != nil {
			return err
		}
		if msg.Action == payload.DExActionNew && existing != nil {
			return ErrOfferExists
		}
		if msg.Action == payload.DExActionUpdate && existing == nil {
			return ErrOfferNotFound
		}

		var returned int64
		if existing != nil {
			returned = existing.AmountAvailable
		}
		if have := l.Balance(tx.Sender, msg.PropertyID) + returned; have < msg.Amount {
			return fmt.Errorf("%w: has %d, offering %d", ledger.ErrInsufficientBalance, have, msg.Amount)
		}

		if returned > 0 {
			mustLedger(l.Unreserve(tx.Sender, msg.PropertyID, returned, ledger.OfferReserve))
		}
		mustLedger(l.Reserve(tx.Sender, msg.PropertyID, msg.Amount, ledger.OfferReserve))

		offer := existing
		if offer == nil {
			offer = &Offer{Seller: tx.Sender, PropertyID: msg.PropertyID, TxID: tx.TxID}
			e.offers[key] = offer
		}
		offer.AmountOriginal = msg.Amount
		offer.AmountAvailable = msg.Amount
		offer.LTCDesired = msg.LTCDesired
		offer.MinFee = msg.MinFee
		offer.PaymentWindow = int64(msg.PaymentWindow)
		offer.Block = tx.Height
		return nil

	case payload.DExActionCancel:
		if existing == nil {
			return ErrOfferNotFound
		}
		if existing.AmountAvailable > 0 {
			mustLedger(l.Unreserve(tx.Sender, msg.PropertyID, existing.AmountAvailable, ledger.OfferReserve))
		}
		delete(e.offers, key)
		return nil

	default:
		return fmt.Errorf("%w: %d", ErrInvalidAction, msg.Action)
	}
}

func validateTerms(l *ledger.Store, msg *payload.DExOffer) error {
	p, ok := l.Property(msg.PropertyID)
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, msg.PropertyID)
	}
	switch {
	case p.Kind == ledger.KindContract || p.ID == types.PropertyVesting:
		return fmt.Errorf("%w: property %d cannot be sold on the DEx", ErrInvalidOffer, p.ID)
	case msg.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOffer)
	case msg.LTCDesired <= 0:
		return fmt.Errorf("%w: desired amount must be positive", ErrInvalidOffer)
	case msg.PaymentWindow == 0 || msg.PaymentWindow > maxPaymentWindow:
		return fmt.Errorf("%w: payment window %d", ErrInvalidOffer, msg.PaymentWindow)
	case msg.MinFee < 0:
		return fmt.Errorf("%w: negative minimum fee", ErrInvalidOffer)
	}
	return nil
}

// Accept claims up to msg.Amount of the reference address's offer for the
// sender.
func (e *Engine) Accept(l *ledger.Store, tx types.TxContext, msg *payload.DExAccept) (*Accept, error) {
	seller := tx.Reference
	offer, ok := e.offers[offerKey{seller: seller, id: msg.PropertyID}]
	if !ok {
		return nil, ErrOfferNotFound
	}
	if tx.Sender == seller {
		return nil, ErrSelfAccept
	}
	if msg.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if err := ValidateAcceptFee(*offer, tx.Fee, false); err != nil {
		return nil, err
	}
	key := acceptKey{seller: seller, id: msg.PropertyID, buyer: tx.Sender}
	if _, ok := e.accepts[key]; ok {
		return nil, ErrAcceptExists
	}
	amount := tlmath.MinInt64(msg.Amount, offer.AmountAvailable)
	if amount <= 0 {
		return nil, ErrNothingAvailable
	}
	ltcToPay, err := tlmath.MulDivCeil(amount, offer.LTCDesired, offer.AmountOriginal)
	if err != nil {
		return nil, err
	}

	mustLedger(l.Move(seller, ledger.OfferReserve, seller, ledger.AcceptReserve, msg.PropertyID, amount))
	offer.AmountAvailable -= amount

	acc := &Accept{
		Seller:          seller,
		Buyer:           tx.Sender,
		PropertyID:      msg.PropertyID,
		AmountAccepted:  amount,
		AmountRemaining: amount,
		LTCToPay:        ltcToPay,
		OfferOriginal:   offer.AmountOriginal,
		OfferLTCDesired: offer.LTCDesired,
		OfferTxID:       offer.TxID,
		Block:           tx.Height,
		ExpiryBlock:     tx.Height + offer.PaymentWindow,
		TxID:            tx.TxID,
	}
	e.accepts[key] = acc
	cp := *acc
	return &cp, nil
}

// Pay settles the sender's accept of the reference address's offer with
// the base currency carried by the transaction. It returns the number of
// units delivered.
func (e *Engine) Pay(l *ledger.Store, tx types.TxContext, msg *payload.DExPayment) (int64, error) {
	key := acceptKey{seller: tx.Reference, id: msg.PropertyID, buyer: tx.Sender}
	acc, ok := e.accepts[key]
	if !ok {
		return 0, ErrAcceptNotFound
	}
	if tx.BaseAmount <= 0 {
		return 0, ErrPaymentTooSmall
	}
	bought, err := tlmath.MulDivFloor(tx.BaseAmount, acc.OfferOriginal, acc.OfferLTCDesired)
	if err != nil {
		// paid more than any accept could be worth
		bought = acc.AmountRemaining
	}
	bought = tlmath.MinInt64(bought, acc.AmountRemaining)
	if bought <= 0 {
		return 0, ErrPaymentTooSmall
	}

	mustLedger(l.Move(acc.Seller, ledger.AcceptReserve, acc.Buyer, ledger.Balance, acc.PropertyID, bought))
	acc.AmountRemaining -= bought
	acc.LTCToPay = tlmath.MaxInt64(0, acc.LTCToPay-tx.BaseAmount)
	if v, overflow := tlmath.SafeAdd(e.volume, tx.BaseAmount); !overflow {
		e.volume = v
	}

	if acc.AmountRemaining == 0 {
		delete(e.accepts, key)
		e.removeIfDone(acc.Seller, acc.PropertyID)
	}
	return bought, nil
}

// ExpireAccepts voids every accept whose payment window closed before
// height and hands the unpaid tokens back to the offer, or to the seller
// when the offer is gone.
func (e *Engine) ExpireAccepts(l *ledger.Store, height int64) []Accept {
	var expired []Accept
	for _, acc := range e.Accepts() {
		if height <= acc.ExpiryBlock {
			continue
		}
		key := acceptKey{seller: acc.Seller, id: acc.PropertyID, buyer: acc.Buyer}
		offer, ok := e.offers[offerKey{seller: acc.Seller, id: acc.PropertyID}]
		if ok && offer.TxID == acc.OfferTxID && offer.AmountAvailable+acc.AmountRemaining <= offer.AmountOriginal {
			mustLedger(l.Move(acc.Seller, ledger.AcceptReserve, acc.Seller, ledger.OfferReserve, acc.PropertyID, acc.AmountRemaining))
			offer.AmountAvailable += acc.AmountRemaining
		} else {
			mustLedger(l.Unreserve(acc.Seller, acc.PropertyID, acc.AmountRemaining, ledger.AcceptReserve))
		}
		delete(e.accepts, key)
		expired = append(expired, acc)
	}
	return expired
}

func (e *Engine) removeIfDone(seller types.Address, id types.PropertyID) {
	key := offerKey{seller: seller, id: id}
	offer, ok := e.offers[key]
	if !ok || offer.AmountAvailable > 0 {
		return
	}
	for k := range e.accepts {
		if k.seller == seller && k.id == id {
			return
		}
	}
	delete(e.offers, key)
}

// GetOffer returns the offer of seller for id.
func (e *Engine) GetOffer(seller types.Address, id types.PropertyID) (Offer, bool) {
	o, ok := e.offers[offerKey{seller: seller, id: id}]
	if !ok {
		return Offer{}, false
	}
	return *o, true
}

// Offers returns all offers ordered by (property, seller).
func (e *Engine) Offers() []Offer {
	out := make([]Offer, 0, len(e.offers))
	for _, o := range e.offers {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PropertyID != out[j].PropertyID {
			return out[i].PropertyID < out[j].PropertyID
		}
		return out[i].Seller < out[j].Seller
	})
	return out
}

// Accepts returns all pending accepts ordered by (property, seller, buyer).
func (e *Engine) Accepts() []Accept {
	out := make([]Accept, 0, len(e.accepts))
	for _, a := range e.accepts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PropertyID != b.PropertyID {
			return a.PropertyID < b.PropertyID
		}
		if a.Seller != b.Seller {
			return a.Seller < b.Seller
		}
		return a.Buyer < b.Buyer
	})
	return out
}

func (e *Engine) WriteConsensus(w io.Writer) {
	fmt.Fprintf(w, "dexvolume|%d\n", e.volume)
	for _, o := range e.Offers() {
		fmt.Fprintf(w, "offer|%d|%s|%d|%d|%d|%d|%d|%d|%s\n",
			o.PropertyID, o.Seller, o.AmountOriginal, o.AmountAvailable, o.LTCDesired, o.MinFee, o.PaymentWindow, o.Block, o.TxID)
	}
	for _, a := range e.Accepts() {
		fmt.Fprintf(w, "accept|%d|%s|%s|%d|%d|%d|%d|%d|%s|%d|%d|%s\n",
			a.PropertyID, a.Seller, a.Buyer, a.AmountAccepted, a.AmountRemaining, a.LTCToPay,
			a.OfferOriginal, a.OfferLTCDesired, a.OfferTxID, a.Block, a.ExpiryBlock, a.TxID)
	}
}

// Snapshot is the serializable form of an Engine.
type Snapshot struct {
	Volume  int64    `json:"volume"`
	Offers  []Offer  `json:"offers"`
	Accepts []Accept `json:"accepts"`
}

func (e *Engine) Export() Snapshot {
	return Snapshot{Volume: e.volume, Offers: e.Offers(), Accepts: e.Accepts()}
}

func (e *Engine) Import(snap Snapshot) {
	*e = *NewEngine()
	e.volume = snap.Volume
	for _, o := range snap.Offers {
		o := o
		e.offers[offerKey{seller: o.Seller, id: o.PropertyID}] = &o
	}
	for _, a := range snap.Accepts {
		a := a
		e.accepts[acceptKey{seller: a.Seller, id: a.PropertyID, buyer: a.Buyer}] = &a
	}
}

// mustLedger panics on a ledger error after validation passed; the block
// executor turns the panic into a halt.
func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("dex: ledger update failed after validation: %v", err))
	}
}
