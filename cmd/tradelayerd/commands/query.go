package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/query"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/types"
)

// withEnvironment runs fn against the persisted state of a stopped node.
func withEnvironment(conf *config.Config, fn func(env *query.Environment) error) error {
	stateStore, genDoc, err := openStateStore(conf)
	if err != nil {
		return err
	}
	defer stateStore.Close()

	state, err := sm.LoadState(stateStore, genDoc)
	if err != nil {
		return err
	}
	return fn(query.NewEnvironment(state, nil))
}

// MakeHashCommand returns the command printing the consensus hash of the
// persisted state.
func MakeHashCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print the consensus hash of the last applied block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(conf, func(env *query.Environment) error {
				res, err := env.GetConsensusHash(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

// MakeBalanceCommand returns the command printing the balances of an
// address, for one property or for all of them.
func MakeBalanceCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address> [property-id]",
		Short: "Print the balances of an address",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := types.Address(args[0])
			var id types.PropertyID
			if len(args) == 2 {
				v, err := strconv.ParseUint(args[1], 10, 32)
				if err != nil {
					return err
				}
				id = types.PropertyID(v)
			}

			return withEnvironment(conf, func(env *query.Environment) error {
				if id == 0 {
					res, err := env.GetAllBalances(cmd.Context(), addr)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				}
				res, err := env.GetBalance(cmd.Context(), addr, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
