package commands

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/dex"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/internal/query"
	"github.com/tradelayer/tradelayer/types"
)

// MakePayloadCommand returns the command family printing hex encoded
// payloads, ready to be embedded in a chain transaction by a wallet.
func MakePayloadCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "payload <kind>",
		Short:       "Print the hex payload of a transaction",
		Annotations: offline(),
	}
	cmd.AddCommand(
		simpleSendCmd(),
		sendAllCmd(),
		issuanceFixedCmd(),
		issuanceManagedCmd(),
		dexOfferCmd(),
		dexAcceptCmd(conf),
		metaDExTradeCmd(),
		contractTradeCmd(),
		commitCmd(),
		attestationCmd(),
		activationCmd(),
	)
	return cmd
}

func offline() map[string]string { return map[string]string{annotationOffline: "true"} }

// payloadCmd builds a command printing the encoding of the message build
// returns.
func payloadCmd(use, short string, build func() (payload.Msg, error)) *cobra.Command {
	return &cobra.Command{
		Use:         use,
		Short:       short,
		Args:        cobra.NoArgs,
		Annotations: offline(),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := build()
			if err != nil {
				return err
			}
			bz, err := payload.Encode(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(bz))
			return nil
		},
	}
}

type amountFlag struct {
	value       string
	indivisible bool
}

func (f *amountFlag) register(cmd *cobra.Command, name, usage string) {
	cmd.Flags().StringVar(&f.value, name, "", usage)
	cmd.Flags().BoolVar(&f.indivisible, "indivisible", false, "the property is indivisible")
	_ = cmd.MarkFlagRequired(name)
}

func (f *amountFlag) units() (int64, error) {
	v, err := types.ParseAmount(f.value, !f.indivisible)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("amount must be positive (got %s)", f.value)
	}
	return v, nil
}

func propertyFlag(cmd *cobra.Command, id *uint32, name string) {
	cmd.Flags().Uint32Var(id, name, 0, "property id")
	_ = cmd.MarkFlagRequired(name)
}

func propertyType(indivisible bool) uint64 {
	if indivisible {
		return payload.PropertyTypeIndivisible
	}
	return payload.PropertyTypeDivisible
}

func simpleSendCmd() *cobra.Command {
	var (
		id     uint32
		amount amountFlag
	)
	cmd := payloadCmd("simplesend", "Send tokens to the reference address", func() (payload.Msg, error) {
		v, err := amount.units()
		if err != nil {
			return nil, err
		}
		return &payload.SimpleSend{PropertyID: types.PropertyID(id), Amount: v}, nil
	})
	propertyFlag(cmd, &id, "property")
	amount.register(cmd, "amount", "amount of tokens")
	return cmd
}

func sendAllCmd() *cobra.Command {
	return payloadCmd("sendall", "Send every balance of the sender to the reference address", func() (payload.Msg, error) {
		return &payload.SendAll{}, nil
	})
}

type issuanceFlags struct {
	name, url, data string
	indivisible     bool
	kyc             []int64
}

func (f *issuanceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "property name")
	cmd.Flags().StringVar(&f.url, "url", "", "property url")
	cmd.Flags().StringVar(&f.data, "data", "", "free form property data")
	cmd.Flags().BoolVar(&f.indivisible, "indivisible", false, "issue an indivisible property")
	cmd.Flags().Int64SliceVar(&f.kyc, "kyc", nil, "KYC ids allowed to hold the property")
	_ = cmd.MarkFlagRequired("name")
}

func issuanceFixedCmd() *cobra.Command {
	var (
		f      issuanceFlags
		amount string
	)
	cmd := payloadCmd("issuancefixed", "Issue a property with a fixed supply", func() (payload.Msg, error) {
		v, err := types.ParseAmount(amount, !f.indivisible)
		if err != nil {
			return nil, err
		}
		return &payload.CreatePropertyFixed{
			PropertyType: propertyType(f.indivisible),
			Name:         f.name,
			URL:          f.url,
			Data:         f.data,
			Amount:       v,
			KYC:          f.kyc,
		}, nil
	})
	f.register(cmd)
	cmd.Flags().StringVar(&amount, "amount", "", "number of tokens issued")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func issuanceManagedCmd() *cobra.Command {
	var f issuanceFlags
	cmd := payloadCmd("issuancemanaged", "Register a property with a managed supply", func() (payload.Msg, error) {
		return &payload.CreatePropertyManaged{
			PropertyType: propertyType(f.indivisible),
			Name:         f.name,
			URL:          f.url,
			Data:         f.data,
			KYC:          f.kyc,
		}, nil
	})
	f.register(cmd)
	return cmd
}

var dexActions = map[string]uint64{
	"new":    payload.DExActionNew,
	"update": payload.DExActionUpdate,
	"cancel": payload.DExActionCancel,
}

func dexOfferCmd() *cobra.Command {
	var (
		id              uint32
		amount          amountFlag
		desired, minFee string
		window          uint64
		action          string
	)
	cmd := payloadCmd("dexoffer", "Create, update or cancel a DEx sell offer", func() (payload.Msg, error) {
		act, ok := dexActions[strings.ToLower(action)]
		if !ok {
			return nil, fmt.Errorf("unknown action %q (new | update | cancel)", action)
		}
		v, err := amount.units()
		if err != nil {
			return nil, err
		}
		ltc, err := types.ParseAmount(desired, true)
		if err != nil {
			return nil, fmt.Errorf("desired: %w", err)
		}
		fee, err := types.ParseAmount(minFee, true)
		if err != nil {
			return nil, fmt.Errorf("min-fee: %w", err)
		}
		return &payload.DExOffer{
			PropertyID:    types.PropertyID(id),
			Amount:        v,
			LTCDesired:    ltc,
			PaymentWindow: window,
			MinFee:        fee,
			Action:        act,
		}, nil
	})
	propertyFlag(cmd, &id, "property")
	amount.register(cmd, "amount", "amount of tokens offered")
	cmd.Flags().StringVar(&desired, "desired", "", "base currency asked for the whole amount")
	cmd.Flags().StringVar(&minFee, "min-fee", "0.0001", "minimum transaction fee of an accept")
	cmd.Flags().Uint64Var(&window, "payment-window", 10, "blocks a buyer has to pay")
	cmd.Flags().StringVar(&action, "action", "new", "new | update | cancel")
	_ = cmd.MarkFlagRequired("desired")
	return cmd
}

// dexAcceptCmd refuses to build an accept whose fee is below the offer's
// minimum fee unless --override is given. The offer is looked up in the
// persisted state, so the node must be stopped.
func dexAcceptCmd(conf *config.Config) *cobra.Command {
	var (
		id       uint32
		amount   string
		seller   string
		fee      string
		override bool
	)
	cmd := &cobra.Command{
		Use:   "dexaccept",
		Short: "Accept a DEx sell offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txFee, err := types.ParseAmount(fee, true)
			if err != nil {
				return fmt.Errorf("fee: %w", err)
			}
			var msg *payload.DExAccept
			err = withEnvironment(conf, func(env *query.Environment) error {
				res, err := env.GetOffer(cmd.Context(), types.Address(seller), types.PropertyID(id))
				if err != nil {
					return err
				}
				if err := dex.ValidateAcceptFee(res.Offer, txFee, override); err != nil {
					return fmt.Errorf("%w; pass --override to accept anyway", err)
				}
				prop, err := env.GetProperty(cmd.Context(), types.PropertyID(id))
				if err != nil {
					return err
				}
				v, err := types.ParseAmount(amount, prop.Divisible)
				if err != nil {
					return err
				}
				msg = &payload.DExAccept{PropertyID: types.PropertyID(id), Amount: v}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(payload.MustEncode(msg)))
			return nil
		},
	}
	propertyFlag(cmd, &id, "property")
	cmd.Flags().StringVar(&amount, "amount", "", "amount of tokens to buy")
	cmd.Flags().StringVar(&seller, "seller", "", "address of the offer's seller")
	cmd.Flags().StringVar(&fee, "fee", "", "fee the accept transaction pays")
	cmd.Flags().BoolVar(&override, "override", false, "accept even when the fee is below the offer minimum")
	for _, name := range []string{"amount", "seller", "fee"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func metaDExTradeCmd() *cobra.Command {
	var (
		forSale, desired         uint32
		amountForSale, amountDes amountFlag
	)
	cmd := payloadCmd("metadextrade", "Place a token-for-token order", func() (payload.Msg, error) {
		a, err := amountForSale.units()
		if err != nil {
			return nil, err
		}
		b, err := amountDes.units()
		if err != nil {
			return nil, err
		}
		return &payload.MetaDExTrade{
			PropertyForSale: types.PropertyID(forSale),
			AmountForSale:   a,
			PropertyDesired: types.PropertyID(desired),
			AmountDesired:   b,
		}, nil
	})
	propertyFlag(cmd, &forSale, "property-for-sale")
	propertyFlag(cmd, &desired, "property-desired")
	cmd.Flags().StringVar(&amountForSale.value, "amount-for-sale", "", "amount offered")
	cmd.Flags().BoolVar(&amountForSale.indivisible, "indivisible-for-sale", false, "the offered property is indivisible")
	cmd.Flags().StringVar(&amountDes.value, "amount-desired", "", "amount asked for")
	cmd.Flags().BoolVar(&amountDes.indivisible, "indivisible-desired", false, "the desired property is indivisible")
	for _, name := range []string{"amount-for-sale", "amount-desired"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

var tradeActions = map[string]uint64{
	"buy":  payload.ActionBuy,
	"sell": payload.ActionSell,
}

func contractTradeCmd() *cobra.Command {
	var (
		id       uint32
		amount   int64
		price    string
		action   string
		leverage uint64
	)
	cmd := payloadCmd("contracttrade", "Place an order on a futures contract", func() (payload.Msg, error) {
		act, ok := tradeActions[strings.ToLower(action)]
		if !ok {
			return nil, fmt.Errorf("unknown action %q (buy | sell)", action)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("amount must be positive (got %d)", amount)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		fixed, err := types.PriceToFixed(d)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		return &payload.ContractTrade{
			ContractID: types.PropertyID(id),
			Amount:     amount,
			Price:      fixed,
			Action:     act,
			Leverage:   leverage,
		}, nil
	})
	propertyFlag(cmd, &id, "contract")
	cmd.Flags().Int64Var(&amount, "amount", 0, "number of contracts")
	cmd.Flags().StringVar(&price, "price", "", "limit price")
	cmd.Flags().StringVar(&action, "action", "buy", "buy | sell")
	cmd.Flags().Uint64Var(&leverage, "leverage", 1, "leverage of the position")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func commitCmd() *cobra.Command {
	var (
		id     uint32
		amount amountFlag
	)
	cmd := payloadCmd("commit", "Commit tokens to the channel at the reference address", func() (payload.Msg, error) {
		v, err := amount.units()
		if err != nil {
			return nil, err
		}
		return &payload.CommitChannel{PropertyID: types.PropertyID(id), Amount: v}, nil
	})
	propertyFlag(cmd, &id, "property")
	amount.register(cmd, "amount", "amount of tokens committed")
	return cmd
}

func attestationCmd() *cobra.Command {
	return payloadCmd("attestation", "Attest the reference address", func() (payload.Msg, error) {
		return &payload.Attestation{}, nil
	})
}

func activationCmd() *cobra.Command {
	var (
		feature    string
		block      int64
		minVersion uint64
	)
	cmd := payloadCmd("activation", "Schedule the activation of a feature", func() (payload.Msg, error) {
		f, err := activation.ParseFeature(feature)
		if err != nil {
			return nil, err
		}
		return &payload.Activation{
			FeatureID:        uint64(f),
			ActivationBlock:  block,
			MinClientVersion: minVersion,
		}, nil
	})
	cmd.Flags().StringVar(&feature, "feature", "", "feature name")
	cmd.Flags().Int64Var(&block, "block", 0, "activation height")
	cmd.Flags().Uint64Var(&minVersion, "min-client-version", 0, "oldest client allowed past the activation")
	_ = cmd.MarkFlagRequired("feature")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}
