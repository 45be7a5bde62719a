package payload_test

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

func TestEncodeFixtures(t *testing.T) {
	testCases := map[string]struct {
		msg payload.Msg
		hex string
	}{
		"simple send 2000 ALL": {
			msg: &payload.SimpleSend{PropertyID: 1, Amount: 2000 * types.COIN},
			hex: "00000180a0b787e905",
		},
		"fixed issuance lihki": {
			msg: &payload.CreatePropertyFixed{
				PropertyType: payload.PropertyTypeDivisible,
				Name:         "lihki",
				Amount:       3000 * types.COIN,
			},
			hex: "0032026c69686b6900000080f092cbdd0800",
		},
		"activation with two byte type": {
			msg: &payload.Activation{FeatureID: 1, ActivationBlock: 100, MinClientVersion: 2},
			hex: "00c801016402",
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			bz, err := payload.Encode(tc.msg)
			require.NoError(t, err)
			require.Equal(t, tc.hex, hex.EncodeToString(bz))

			decoded, err := payload.Decode(bz)
			require.NoError(t, err)
			require.Equal(t, tc.msg, decoded)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	testCases := map[string]string{
		"empty":                 "",
		"truncated varint":      "0000018080",
		"missing field":         "000001",
		"trailing bytes":        "00000180a0b787e90500",
		"unknown type":          "007f",
		"unsupported version":   "0100",
		"non-minimal varint":    "00800001",
		"unterminated string":   "001f6162",
		"bad boolean":           "0068016402020300",
		"list longer than data": "0036026100000005",
		"amount above int64":    "000001ffffffffffffffffff01",
	}

	for name, in := range testCases {
		in := in
		t.Run(name, func(t *testing.T) {
			bz, err := hex.DecodeString(in)
			require.NoError(t, err)
			_, err = payload.Decode(bz)
			require.ErrorIs(t, err, payload.ErrMalformedPayload)
		})
	}
}

func TestEmptyAllowListEncodesAsNil(t *testing.T) {
	empty, err := payload.Encode(&payload.CreatePropertyManaged{PropertyType: payload.PropertyTypeIndivisible, Name: "m", KYC: []int64{}})
	require.NoError(t, err)
	none, err := payload.Encode(&payload.CreatePropertyManaged{PropertyType: payload.PropertyTypeIndivisible, Name: "m"})
	require.NoError(t, err)
	require.Equal(t, none, empty)

	decoded, err := payload.Decode(empty)
	require.NoError(t, err)
	require.Nil(t, decoded.(*payload.CreatePropertyManaged).KYC)
}

func TestEncodeInvalidField(t *testing.T) {
	_, err := payload.Encode(&payload.SimpleSend{PropertyID: 1, Amount: -1})
	require.ErrorIs(t, err, payload.ErrInvalidField)

	_, err = payload.Encode(&payload.RegisterKYC{Name: "a\x00b"})
	require.ErrorIs(t, err, payload.ErrInvalidField)
}

func TestEveryTypeRoutes(t *testing.T) {
	seen := make(map[payload.MsgType]bool)
	for _, typ := range payload.AllTypes() {
		require.False(t, seen[typ], "duplicate type %d", typ)
		seen[typ] = true

		msg := payload.NewMsg(typ)
		require.NotNil(t, msg, "type %d has no message", typ)
		require.Equal(t, typ, msg.Type())
		require.NotContains(t, typ.String(), "Unknown")

		bz, err := payload.Encode(msg)
		require.NoError(t, err)
		require.LessOrEqual(t, len(bz), 1+2+64)

		decoded, err := payload.Decode(bz)
		require.NoError(t, err)
		require.Equal(t, msg, decoded)
	}
	require.Nil(t, payload.NewMsg(9999))
}

func genProperty(t *rapid.T, label string) types.PropertyID {
	return types.PropertyID(rapid.Uint32().Draw(t, label).(uint32))
}

func genAmount(t *rapid.T, label string) int64 {
	return rapid.Int64Range(0, math.MaxInt64).Draw(t, label).(int64)
}

func genString(t *rapid.T, label string) string {
	return rapid.StringMatching(`[a-zA-Z0-9 .:/]{0,24}`).Draw(t, label).(string)
}

func genKYC(t *rapid.T) []int64 {
	n := rapid.IntRange(0, 4).Draw(t, "kycLen").(int)
	if n == 0 {
		if rapid.Bool().Draw(t, "kycEmpty").(bool) {
			return []int64{}
		}
		return nil
	}
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = rapid.Int64Range(0, 1<<40).Draw(t, "kyc").(int64)
	}
	return ids
}

func genMsg(t *rapid.T) payload.Msg {
	all := payload.AllTypes()
	typ := all[rapid.IntRange(0, len(all)-1).Draw(t, "type").(int)]

	switch typ {
	case payload.TypeSimpleSend:
		return &payload.SimpleSend{PropertyID: genProperty(t, "pid"), Amount: genAmount(t, "amount")}
	case payload.TypeDExOffer:
		return &payload.DExOffer{
			PropertyID:    genProperty(t, "pid"),
			Amount:        genAmount(t, "amount"),
			LTCDesired:    genAmount(t, "ltc"),
			PaymentWindow: rapid.Uint64().Draw(t, "window").(uint64),
			MinFee:        genAmount(t, "fee"),
			Action:        rapid.Uint64Range(1, 3).Draw(t, "action").(uint64),
		}
	case payload.TypeMetaDExTrade:
		return &payload.MetaDExTrade{
			PropertyForSale: genProperty(t, "forSale"),
			AmountForSale:   genAmount(t, "amountForSale"),
			PropertyDesired: genProperty(t, "desired"),
			AmountDesired:   genAmount(t, "amountDesired"),
		}
	case payload.TypeMetaDExCancelOrder:
		return &payload.MetaDExCancelOrder{TxID: genString(t, "txid")}
	case payload.TypeContractTrade:
		return &payload.ContractTrade{
			ContractID: genProperty(t, "cid"),
			Amount:     genAmount(t, "amount"),
			Price:      rapid.Uint64().Draw(t, "price").(uint64),
			Action:     rapid.Uint64Range(1, 2).Draw(t, "action").(uint64),
			Leverage:   rapid.Uint64Range(1, 10).Draw(t, "leverage").(uint64),
		}
	case payload.TypeCreateContract:
		return &payload.CreateContract{
			Name:                  genString(t, "name"),
			Kind:                  rapid.Uint64Range(1, 2).Draw(t, "kind").(uint64),
			Inverse:               rapid.Bool().Draw(t, "inverse").(bool),
			NotionalSize:          rapid.Uint64().Draw(t, "notional").(uint64),
			Collateral:            genProperty(t, "collateral"),
			MarginRequirement:     rapid.Uint64().Draw(t, "mr").(uint64),
			BlocksUntilExpiration: genAmount(t, "expiry"),
			NativeBase:            genProperty(t, "base"),
			NativeQuote:           genProperty(t, "quote"),
			KYC:                   genKYC(t),
		}
	case payload.TypeSetOracle:
		return &payload.SetOracle{
			ContractID: genProperty(t, "cid"),
			High:       rapid.Uint64().Draw(t, "high").(uint64),
			Low:        rapid.Uint64().Draw(t, "low").(uint64),
			Close:      rapid.Uint64().Draw(t, "close").(uint64),
		}
	case payload.TypeCreatePropertyFixed:
		return &payload.CreatePropertyFixed{
			PropertyType: rapid.Uint64Range(1, 2).Draw(t, "ptype").(uint64),
			Name:         genString(t, "name"),
			URL:          genString(t, "url"),
			Data:         genString(t, "data"),
			Amount:       genAmount(t, "amount"),
			KYC:          genKYC(t),
		}
	case payload.TypeTransferChannel:
		return &payload.TransferChannel{SourceChannel: types.Address(genString(t, "channel"))}
	case payload.TypeInstantContractTrade:
		return &payload.InstantContractTrade{
			ContractID:  genProperty(t, "cid"),
			Amount:      genAmount(t, "amount"),
			Price:       rapid.Uint64().Draw(t, "price").(uint64),
			Leverage:    rapid.Uint64Range(1, 10).Draw(t, "leverage").(uint64),
			PartyABuys:  rapid.Bool().Draw(t, "aBuys").(bool),
			BlockExpiry: genAmount(t, "expiry"),
		}
	case payload.TypeSubmitNodeAddress:
		return &payload.SubmitNodeAddress{Receiver: genString(t, "receiver")}
	case payload.TypeRegisterKYC:
		return &payload.RegisterKYC{Name: genString(t, "name"), Website: genString(t, "website")}
	case payload.TypeActivation:
		return &payload.Activation{
			FeatureID:        rapid.Uint64().Draw(t, "feature").(uint64),
			ActivationBlock:  genAmount(t, "block"),
			MinClientVersion: rapid.Uint64().Draw(t, "version").(uint64),
		}
	default:
		return payload.NewMsg(typ)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := genMsg(t)

		bz, err := payload.Encode(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		decoded, err := payload.Decode(bz)
		if err != nil {
			t.Fatalf("decode %T: %v", msg, err)
		}
		// an empty allow list decodes as nil
		if diff := cmp.Diff(msg, decoded, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("decoded %T differs (-want +got):\n%s", msg, diff)
		}

		again, err := payload.Encode(decoded)
		require.NoError(t, err)
		require.Equal(t, bz, again)
	})
}

func TestDecodeNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bz := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "payload").([]byte)
		msg, err := payload.Decode(bz)
		if err != nil {
			return
		}
		// anything that decodes must re-encode to the same bytes
		again, err := payload.Encode(msg)
		require.NoError(t, err)
		require.Equal(t, bz, again)
	})
}
