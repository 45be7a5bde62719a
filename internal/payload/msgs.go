package payload

import (
	"fmt"

	"github.com/tradelayer/tradelayer/types"
)

// MsgType is the transaction type code carried after the version.
type MsgType uint64

const (
	TypeSimpleSend            MsgType = 0
	TypeSendAll               MsgType = 4
	TypeDExOffer              MsgType = 20
	TypeDExPayment            MsgType = 21
	TypeDExAccept             MsgType = 22
	TypeMetaDExTrade          MsgType = 25
	TypeMetaDExCancelPrice    MsgType = 26
	TypeMetaDExCancelPair     MsgType = 27
	TypeMetaDExCancelAll      MsgType = 28
	TypeContractTrade         MsgType = 29
	TypeContractCancelPrice   MsgType = 30
	TypeMetaDExCancelOrder    MsgType = 31
	TypeContractCancelAll     MsgType = 32
	TypeClosePosition         MsgType = 33
	TypeCreateContract        MsgType = 40
	TypeSetOracle             MsgType = 41
	TypeCloseOracle           MsgType = 42
	TypeCreatePropertyFixed   MsgType = 50
	TypeCreatePropertyManaged MsgType = 54
	TypeGrantTokens           MsgType = 55
	TypeRevokeTokens          MsgType = 56
	TypeChangeIssuer          MsgType = 70
	TypeCommitChannel         MsgType = 100
	TypeWithdrawChannel       MsgType = 101
	TypeTransferChannel       MsgType = 102
	TypeInstantTrade          MsgType = 103
	TypeInstantContractTrade  MsgType = 104
	TypeSubmitNodeAddress     MsgType = 110
	TypeClaimNodeReward       MsgType = 111
	TypeRegisterKYC           MsgType = 120
	TypeAttestation           MsgType = 121
	TypeRevokeAttestation     MsgType = 122
	TypeActivation            MsgType = 200
	TypeDeactivation          MsgType = 201
)

var typeNames = map[MsgType]string{
	TypeSimpleSend:            "Simple Send",
	TypeSendAll:               "Send All",
	TypeDExOffer:              "DEx Sell Offer",
	TypeDExPayment:            "DEx Payment",
	TypeDExAccept:             "DEx Accept Offer",
	TypeMetaDExTrade:          "MetaDEx trade",
	TypeMetaDExCancelPrice:    "MetaDEx cancel-price",
	TypeMetaDExCancelPair:     "MetaDEx cancel-pair",
	TypeMetaDExCancelAll:      "MetaDEx cancel-ecosystem",
	TypeMetaDExCancelOrder:    "MetaDEx cancel-order",
	TypeContractTrade:         "Future Contract",
	TypeContractCancelPrice:   "Cancel Orders by price",
	TypeContractCancelAll:     "Cancel All Orders in Contract",
	TypeClosePosition:         "Close Position",
	TypeCreateContract:        "Create Contract",
	TypeSetOracle:             "Set Oracle",
	TypeCloseOracle:           "Close Oracle",
	TypeCreatePropertyFixed:   "Create Property - Fixed",
	TypeCreatePropertyManaged: "Create Property - Manual",
	TypeGrantTokens:           "Grant Property Tokens",
	TypeRevokeTokens:          "Revoke Property Tokens",
	TypeChangeIssuer:          "Change Issuer Address",
	TypeCommitChannel:         "Commit To Channel",
	TypeWithdrawChannel:       "Withdrawal From Channel",
	TypeTransferChannel:       "Transfer",
	TypeInstantTrade:          "Instant Trade",
	TypeInstantContractTrade:  "Instant Contract Trade",
	TypeSubmitNodeAddress:     "Submit Node Address",
	TypeClaimNodeReward:       "Claim Node Reward",
	TypeRegisterKYC:           "Register KYC",
	TypeAttestation:           "Attestation",
	TypeRevokeAttestation:     "Revoke Attestation",
	TypeActivation:            "Feature Activation",
	TypeDeactivation:          "Feature Deactivation",
}

func (t MsgType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint64(t))
}

// AllTypes lists every known type code in ascending order.
func AllTypes() []MsgType {
	return []MsgType{
		TypeSimpleSend, TypeSendAll, TypeDExOffer, TypeDExPayment, TypeDExAccept,
		TypeMetaDExTrade, TypeMetaDExCancelPrice, TypeMetaDExCancelPair, TypeMetaDExCancelAll,
		TypeContractTrade, TypeContractCancelPrice, TypeMetaDExCancelOrder, TypeContractCancelAll,
		TypeClosePosition, TypeCreateContract, TypeSetOracle, TypeCloseOracle,
		TypeCreatePropertyFixed, TypeCreatePropertyManaged, TypeGrantTokens, TypeRevokeTokens,
		TypeChangeIssuer, TypeCommitChannel, TypeWithdrawChannel, TypeTransferChannel,
		TypeInstantTrade, TypeInstantContractTrade, TypeSubmitNodeAddress, TypeClaimNodeReward,
		TypeRegisterKYC, TypeAttestation, TypeRevokeAttestation, TypeActivation, TypeDeactivation,
	}
}

// Msg is a decoded payload. The set of implementations is closed; consumers
// switch over the concrete types.
type Msg interface {
	Type() MsgType

	encode(*encoder)
	decode(*decoder)
}

// NewMsg returns a zero message for the given type code, or nil when the code
// is unknown.
func NewMsg(t MsgType) Msg { return newMsg(t) }

func newMsg(t MsgType) Msg {
	switch t {
	case TypeSimpleSend:
		return &SimpleSend{}
	case TypeSendAll:
		return &SendAll{}
	case TypeDExOffer:
		return &DExOffer{}
	case TypeDExPayment:
		return &DExPayment{}
	case TypeDExAccept:
		return &DExAccept{}
	case TypeMetaDExTrade:
		return &MetaDExTrade{}
	case TypeMetaDExCancelPrice:
		return &MetaDExCancelPrice{}
	case TypeMetaDExCancelPair:
		return &MetaDExCancelPair{}
	case TypeMetaDExCancelAll:
		return &MetaDExCancelAll{}
	case TypeMetaDExCancelOrder:
		return &MetaDExCancelOrder{}
	case TypeContractTrade:
		return &ContractTrade{}
	case TypeContractCancelPrice:
		return &ContractCancelPrice{}
	case TypeContractCancelAll:
		return &ContractCancelAll{}
	case TypeClosePosition:
		return &ClosePosition{}
	case TypeCreateContract:
		return &CreateContract{}
	case TypeSetOracle:
		return &SetOracle{}
	case TypeCloseOracle:
		return &CloseOracle{}
	case TypeCreatePropertyFixed:
		return &CreatePropertyFixed{}
	case TypeCreatePropertyManaged:
		return &CreatePropertyManaged{}
	case TypeGrantTokens:
		return &GrantTokens{}
	case TypeRevokeTokens:
		return &RevokeTokens{}
	case TypeChangeIssuer:
		return &ChangeIssuer{}
	case TypeCommitChannel:
		return &CommitChannel{}
	case TypeWithdrawChannel:
		return &WithdrawChannel{}
	case TypeTransferChannel:
		return &TransferChannel{}
	case TypeInstantTrade:
		return &InstantTrade{}
	case TypeInstantContractTrade:
		return &InstantContractTrade{}
	case TypeSubmitNodeAddress:
		return &SubmitNodeAddress{}
	case TypeClaimNodeReward:
		return &ClaimNodeReward{}
	case TypeRegisterKYC:
		return &RegisterKYC{}
	case TypeAttestation:
		return &Attestation{}
	case TypeRevokeAttestation:
		return &RevokeAttestation{}
	case TypeActivation:
		return &Activation{}
	case TypeDeactivation:
		return &Deactivation{}
	default:
		return nil
	}
}

// Property types carried by issuance payloads.
const (
	PropertyTypeIndivisible uint64 = 1
	PropertyTypeDivisible   uint64 = 2
)

// DEx offer actions.
const (
	DExActionNew    uint64 = 1
	DExActionUpdate uint64 = 2
	DExActionCancel uint64 = 3
)

// Contract order actions.
const (
	ActionBuy  uint64 = 1
	ActionSell uint64 = 2
)

// Contract kinds.
const (
	ContractNative uint64 = 1
	ContractOracle uint64 = 2
)

// SimpleSend transfers Amount of PropertyID from the sender to the
// reference address.
type SimpleSend struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*SimpleSend) Type() MsgType { return TypeSimpleSend }
func (m *SimpleSend) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *SimpleSend) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// SendAll transfers every property balance of the sender to the reference.
type SendAll struct{}

func (*SendAll) Type() MsgType   { return TypeSendAll }
func (*SendAll) encode(*encoder) {}
func (*SendAll) decode(*decoder) {}

// DExOffer creates, updates or cancels an offer selling tokens for base
// currency.
type DExOffer struct {
	PropertyID    types.PropertyID
	Amount        int64
	LTCDesired    int64
	PaymentWindow uint64
	MinFee        int64
	Action        uint64
}

func (*DExOffer) Type() MsgType { return TypeDExOffer }
func (m *DExOffer) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
	e.int64(m.LTCDesired)
	e.uvarint(m.PaymentWindow)
	e.int64(m.MinFee)
	e.uvarint(m.Action)
}
func (m *DExOffer) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
	m.LTCDesired = d.int64()
	m.PaymentWindow = d.uvarint()
	m.MinFee = d.int64()
	m.Action = d.uvarint()
}

// DExPayment pays for an accept of PropertyID sold by the reference
// address. The paid amount is the base-currency value of the transaction.
type DExPayment struct {
	PropertyID types.PropertyID
}

func (*DExPayment) Type() MsgType       { return TypeDExPayment }
func (m *DExPayment) encode(e *encoder) { e.property(m.PropertyID) }
func (m *DExPayment) decode(d *decoder) { m.PropertyID = d.property() }

// DExAccept accepts the offer of the reference address.
type DExAccept struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*DExAccept) Type() MsgType { return TypeDExAccept }
func (m *DExAccept) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *DExAccept) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// MetaDExTrade places a token-for-token order.
type MetaDExTrade struct {
	PropertyForSale types.PropertyID
	AmountForSale   int64
	PropertyDesired types.PropertyID
	AmountDesired   int64
}

func (*MetaDExTrade) Type() MsgType { return TypeMetaDExTrade }
func (m *MetaDExTrade) encode(e *encoder) {
	encodeOrder(e, m.PropertyForSale, m.AmountForSale, m.PropertyDesired, m.AmountDesired)
}
func (m *MetaDExTrade) decode(d *decoder) {
	m.PropertyForSale, m.AmountForSale, m.PropertyDesired, m.AmountDesired = decodeOrder(d)
}

// MetaDExCancelPrice cancels the sender's orders on a pair at exactly the
// given price.
type MetaDExCancelPrice struct {
	PropertyForSale types.PropertyID
	AmountForSale   int64
	PropertyDesired types.PropertyID
	AmountDesired   int64
}

func (*MetaDExCancelPrice) Type() MsgType { return TypeMetaDExCancelPrice }
func (m *MetaDExCancelPrice) encode(e *encoder) {
	encodeOrder(e, m.PropertyForSale, m.AmountForSale, m.PropertyDesired, m.AmountDesired)
}
func (m *MetaDExCancelPrice) decode(d *decoder) {
	m.PropertyForSale, m.AmountForSale, m.PropertyDesired, m.AmountDesired = decodeOrder(d)
}

func encodeOrder(e *encoder, forSale types.PropertyID, amountForSale int64, desired types.PropertyID, amountDesired int64) {
	e.property(forSale)
	e.int64(amountForSale)
	e.property(desired)
	e.int64(amountDesired)
}

func decodeOrder(d *decoder) (types.PropertyID, int64, types.PropertyID, int64) {
	forSale := d.property()
	amountForSale := d.int64()
	desired := d.property()
	amountDesired := d.int64()
	return forSale, amountForSale, desired, amountDesired
}

// MetaDExCancelPair cancels the sender's orders on a pair.
type MetaDExCancelPair struct {
	PropertyForSale types.PropertyID
	PropertyDesired types.PropertyID
}

func (*MetaDExCancelPair) Type() MsgType { return TypeMetaDExCancelPair }
func (m *MetaDExCancelPair) encode(e *encoder) {
	e.property(m.PropertyForSale)
	e.property(m.PropertyDesired)
}
func (m *MetaDExCancelPair) decode(d *decoder) {
	m.PropertyForSale = d.property()
	m.PropertyDesired = d.property()
}

// MetaDExCancelAll cancels every order of the sender.
type MetaDExCancelAll struct{}

func (*MetaDExCancelAll) Type() MsgType   { return TypeMetaDExCancelAll }
func (*MetaDExCancelAll) encode(*encoder) {}
func (*MetaDExCancelAll) decode(*decoder) {}

// MetaDExCancelOrder cancels a single order identified by the txid that
// placed it.
type MetaDExCancelOrder struct {
	TxID string
}

func (*MetaDExCancelOrder) Type() MsgType       { return TypeMetaDExCancelOrder }
func (m *MetaDExCancelOrder) encode(e *encoder) { e.string(m.TxID) }
func (m *MetaDExCancelOrder) decode(d *decoder) { m.TxID = d.string() }

// ContractTrade places a limit order on a futures contract. Price is an
// 8-decimal fixed point value.
type ContractTrade struct {
	ContractID types.PropertyID
	Amount     int64
	Price      uint64
	Action     uint64
	Leverage   uint64
}

func (*ContractTrade) Type() MsgType { return TypeContractTrade }
func (m *ContractTrade) encode(e *encoder) {
	e.property(m.ContractID)
	e.int64(m.Amount)
	e.uvarint(m.Price)
	e.uvarint(m.Action)
	e.uvarint(m.Leverage)
}
func (m *ContractTrade) decode(d *decoder) {
	m.ContractID = d.property()
	m.Amount = d.int64()
	m.Price = d.uvarint()
	m.Action = d.uvarint()
	m.Leverage = d.uvarint()
}

// ContractCancelPrice cancels the sender's orders on one side of a contract
// at a price.
type ContractCancelPrice struct {
	ContractID types.PropertyID
	Price      uint64
	Action     uint64
}

func (*ContractCancelPrice) Type() MsgType { return TypeContractCancelPrice }
func (m *ContractCancelPrice) encode(e *encoder) {
	e.property(m.ContractID)
	e.uvarint(m.Price)
	e.uvarint(m.Action)
}
func (m *ContractCancelPrice) decode(d *decoder) {
	m.ContractID = d.property()
	m.Price = d.uvarint()
	m.Action = d.uvarint()
}

// ContractCancelAll cancels every order of the sender on a contract.
type ContractCancelAll struct {
	ContractID types.PropertyID
}

func (*ContractCancelAll) Type() MsgType       { return TypeContractCancelAll }
func (m *ContractCancelAll) encode(e *encoder) { e.property(m.ContractID) }
func (m *ContractCancelAll) decode(d *decoder) { m.ContractID = d.property() }

// ClosePosition flattens the sender's position against the book.
type ClosePosition struct {
	ContractID types.PropertyID
}

func (*ClosePosition) Type() MsgType       { return TypeClosePosition }
func (m *ClosePosition) encode(e *encoder) { e.property(m.ContractID) }
func (m *ClosePosition) decode(d *decoder) { m.ContractID = d.property() }

// CreateContract registers a futures contract. NotionalSize and
// MarginRequirement are 8-decimal fixed point values.
type CreateContract struct {
	Name                  string
	Kind                  uint64
	Inverse               bool
	NotionalSize          uint64
	Collateral            types.PropertyID
	MarginRequirement     uint64
	BlocksUntilExpiration int64
	NativeBase            types.PropertyID
	NativeQuote           types.PropertyID
	KYC                   []int64
}

func (*CreateContract) Type() MsgType { return TypeCreateContract }
func (m *CreateContract) encode(e *encoder) {
	e.string(m.Name)
	e.uvarint(m.Kind)
	e.bool(m.Inverse)
	e.uvarint(m.NotionalSize)
	e.property(m.Collateral)
	e.uvarint(m.MarginRequirement)
	e.int64(m.BlocksUntilExpiration)
	e.property(m.NativeBase)
	e.property(m.NativeQuote)
	e.int64s(m.KYC)
}
func (m *CreateContract) decode(d *decoder) {
	m.Name = d.string()
	m.Kind = d.uvarint()
	m.Inverse = d.bool()
	m.NotionalSize = d.uvarint()
	m.Collateral = d.property()
	m.MarginRequirement = d.uvarint()
	m.BlocksUntilExpiration = d.int64()
	m.NativeBase = d.property()
	m.NativeQuote = d.property()
	m.KYC = d.int64s()
}

// SetOracle publishes high/low/close prices for an oracle contract.
type SetOracle struct {
	ContractID types.PropertyID
	High       uint64
	Low        uint64
	Close      uint64
}

func (*SetOracle) Type() MsgType { return TypeSetOracle }
func (m *SetOracle) encode(e *encoder) {
	e.property(m.ContractID)
	e.uvarint(m.High)
	e.uvarint(m.Low)
	e.uvarint(m.Close)
}
func (m *SetOracle) decode(d *decoder) {
	m.ContractID = d.property()
	m.High = d.uvarint()
	m.Low = d.uvarint()
	m.Close = d.uvarint()
}

// CloseOracle settles and closes an oracle contract.
type CloseOracle struct {
	ContractID types.PropertyID
}

func (*CloseOracle) Type() MsgType       { return TypeCloseOracle }
func (m *CloseOracle) encode(e *encoder) { e.property(m.ContractID) }
func (m *CloseOracle) decode(d *decoder) { m.ContractID = d.property() }

// CreatePropertyFixed issues a fixed supply to the sender.
type CreatePropertyFixed struct {
	PropertyType uint64
	Name         string
	URL          string
	Data         string
	Amount       int64
	KYC          []int64
}

func (*CreatePropertyFixed) Type() MsgType { return TypeCreatePropertyFixed }
func (m *CreatePropertyFixed) encode(e *encoder) {
	e.uvarint(m.PropertyType)
	e.string(m.Name)
	e.string(m.URL)
	e.string(m.Data)
	e.int64(m.Amount)
	e.int64s(m.KYC)
}
func (m *CreatePropertyFixed) decode(d *decoder) {
	m.PropertyType = d.uvarint()
	m.Name = d.string()
	m.URL = d.string()
	m.Data = d.string()
	m.Amount = d.int64()
	m.KYC = d.int64s()
}

// CreatePropertyManaged registers a property whose supply the issuer grants
// and revokes.
type CreatePropertyManaged struct {
	PropertyType uint64
	Name         string
	URL          string
	Data         string
	KYC          []int64
}

func (*CreatePropertyManaged) Type() MsgType { return TypeCreatePropertyManaged }
func (m *CreatePropertyManaged) encode(e *encoder) {
	e.uvarint(m.PropertyType)
	e.string(m.Name)
	e.string(m.URL)
	e.string(m.Data)
	e.int64s(m.KYC)
}
func (m *CreatePropertyManaged) decode(d *decoder) {
	m.PropertyType = d.uvarint()
	m.Name = d.string()
	m.URL = d.string()
	m.Data = d.string()
	m.KYC = d.int64s()
}

// GrantTokens issues managed tokens to the reference address, or to the
// issuer when no reference is given.
type GrantTokens struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*GrantTokens) Type() MsgType { return TypeGrantTokens }
func (m *GrantTokens) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *GrantTokens) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// RevokeTokens burns managed tokens from the issuer's balance.
type RevokeTokens struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*RevokeTokens) Type() MsgType { return TypeRevokeTokens }
func (m *RevokeTokens) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *RevokeTokens) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// ChangeIssuer hands a property over to the reference address.
type ChangeIssuer struct {
	PropertyID types.PropertyID
}

func (*ChangeIssuer) Type() MsgType       { return TypeChangeIssuer }
func (m *ChangeIssuer) encode(e *encoder) { e.property(m.PropertyID) }
func (m *ChangeIssuer) decode(d *decoder) { m.PropertyID = d.property() }

// CommitChannel moves tokens into the channel at the reference address.
type CommitChannel struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*CommitChannel) Type() MsgType { return TypeCommitChannel }
func (m *CommitChannel) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *CommitChannel) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// WithdrawChannel requests tokens back from the channel at the reference
// address.
type WithdrawChannel struct {
	PropertyID types.PropertyID
	Amount     int64
}

func (*WithdrawChannel) Type() MsgType { return TypeWithdrawChannel }
func (m *WithdrawChannel) encode(e *encoder) {
	e.property(m.PropertyID)
	e.int64(m.Amount)
}
func (m *WithdrawChannel) decode(d *decoder) {
	m.PropertyID = d.property()
	m.Amount = d.int64()
}

// TransferChannel moves the sender's contribution out of SourceChannel to
// the reference address.
type TransferChannel struct {
	SourceChannel types.Address
}

func (*TransferChannel) Type() MsgType       { return TypeTransferChannel }
func (m *TransferChannel) encode(e *encoder) { e.string(string(m.SourceChannel)) }
func (m *TransferChannel) decode(d *decoder) { m.SourceChannel = types.Address(d.string()) }

// InstantTrade swaps tokens between the two parties of the sending channel.
type InstantTrade struct {
	PropertyA   types.PropertyID
	AmountA     int64
	PropertyB   types.PropertyID
	AmountB     int64
	BlockExpiry int64
}

func (*InstantTrade) Type() MsgType { return TypeInstantTrade }
func (m *InstantTrade) encode(e *encoder) {
	e.property(m.PropertyA)
	e.int64(m.AmountA)
	e.property(m.PropertyB)
	e.int64(m.AmountB)
	e.int64(m.BlockExpiry)
}
func (m *InstantTrade) decode(d *decoder) {
	m.PropertyA = d.property()
	m.AmountA = d.int64()
	m.PropertyB = d.property()
	m.AmountB = d.int64()
	m.BlockExpiry = d.int64()
}

// InstantContractTrade opens matched positions between the two parties of
// the sending channel.
type InstantContractTrade struct {
	ContractID  types.PropertyID
	Amount      int64
	Price       uint64
	Leverage    uint64
	PartyABuys  bool
	BlockExpiry int64
}

func (*InstantContractTrade) Type() MsgType { return TypeInstantContractTrade }
func (m *InstantContractTrade) encode(e *encoder) {
	e.property(m.ContractID)
	e.int64(m.Amount)
	e.uvarint(m.Price)
	e.uvarint(m.Leverage)
	e.bool(m.PartyABuys)
	e.int64(m.BlockExpiry)
}
func (m *InstantContractTrade) decode(d *decoder) {
	m.ContractID = d.property()
	m.Amount = d.int64()
	m.Price = d.uvarint()
	m.Leverage = d.uvarint()
	m.PartyABuys = d.bool()
	m.BlockExpiry = d.int64()
}

// SubmitNodeAddress registers the sender for the node reward lottery.
type SubmitNodeAddress struct {
	Receiver string
}

func (*SubmitNodeAddress) Type() MsgType       { return TypeSubmitNodeAddress }
func (m *SubmitNodeAddress) encode(e *encoder) { e.string(m.Receiver) }
func (m *SubmitNodeAddress) decode(d *decoder) { m.Receiver = d.string() }

// ClaimNodeReward pays out the sender's pending node reward.
type ClaimNodeReward struct{}

func (*ClaimNodeReward) Type() MsgType   { return TypeClaimNodeReward }
func (*ClaimNodeReward) encode(*encoder) {}
func (*ClaimNodeReward) decode(*decoder) {}

// RegisterKYC registers the reference address as a KYC provider.
type RegisterKYC struct {
	Name    string
	Website string
}

func (*RegisterKYC) Type() MsgType { return TypeRegisterKYC }
func (m *RegisterKYC) encode(e *encoder) {
	e.string(m.Name)
	e.string(m.Website)
}
func (m *RegisterKYC) decode(d *decoder) {
	m.Name = d.string()
	m.Website = d.string()
}

// Attestation attests the reference address.
type Attestation struct{}

func (*Attestation) Type() MsgType   { return TypeAttestation }
func (*Attestation) encode(*encoder) {}
func (*Attestation) decode(*decoder) {}

// RevokeAttestation removes the sender's attestation of the reference
// address.
type RevokeAttestation struct{}

func (*RevokeAttestation) Type() MsgType   { return TypeRevokeAttestation }
func (*RevokeAttestation) encode(*encoder) {}
func (*RevokeAttestation) decode(*decoder) {}

// Activation schedules a feature.
type Activation struct {
	FeatureID        uint64
	ActivationBlock  int64
	MinClientVersion uint64
}

func (*Activation) Type() MsgType { return TypeActivation }
func (m *Activation) encode(e *encoder) {
	e.uvarint(m.FeatureID)
	e.int64(m.ActivationBlock)
	e.uvarint(m.MinClientVersion)
}
func (m *Activation) decode(d *decoder) {
	m.FeatureID = d.uvarint()
	m.ActivationBlock = d.int64()
	m.MinClientVersion = d.uvarint()
}

// Deactivation switches a feature off.
type Deactivation struct {
	FeatureID uint64
}

func (*Deactivation) Type() MsgType       { return TypeDeactivation }
func (m *Deactivation) encode(e *encoder) { e.uvarint(m.FeatureID) }
func (m *Deactivation) decode(d *decoder) { m.FeatureID = d.uvarint() }
