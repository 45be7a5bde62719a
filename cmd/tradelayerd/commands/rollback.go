package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/internal/state/indexer/sink"
)

// MakeRollbackStateCommand returns the command rewinding the persisted
// state, and the indexed results, to an earlier height.
func MakeRollbackStateCommand(conf *config.Config) *cobra.Command {
	var height int64
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "rollback the protocol state to an earlier height",
		Long: `
A node whose underlying chain reorganized while it was down can be rolled
back by hand. Only heights within max_reorg_depth of the last applied
block can be restored. Without --height the last block is undone.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			height, hash, err := RollbackState(conf, height)
			if err != nil {
				return fmt.Errorf("failed to rollback state: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back state to height %d and hash %X\n", height, hash)
			return nil
		},
	}
	cmd.Flags().Int64Var(&height, "height", 0, "height to roll back to (default: one block back)")
	return cmd
}

// RollbackState rewinds the state of the node configured by conf to height,
// or one block back when height is 0, and drops the indexed results above
// it. It returns the restored height and consensus hash.
func RollbackState(conf *config.Config, height int64) (int64, []byte, error) {
	stateStore, genDoc, err := openStateStore(conf)
	if err != nil {
		return -1, nil, err
	}
	defer stateStore.Close()

	if height == 0 {
		state, err := sm.LoadState(stateStore, genDoc)
		if err != nil {
			return -1, nil, err
		}
		height = state.LastBlockHeight - 1
	}
	state, err := sm.Rollback(stateStore, genDoc, height)
	if err != nil {
		return -1, nil, err
	}

	eventSinks, err := sink.EventSinksFromConfig(conf, config.DefaultDBProvider, genDoc.ChainID)
	if err != nil {
		return -1, nil, err
	}
	for _, es := range eventSinks {
		if err := es.Rollback(state.LastBlockHeight); err != nil {
			return -1, nil, fmt.Errorf("rolling back %s index: %w", es.Type(), err)
		}
		if err := es.Stop(); err != nil {
			return -1, nil, err
		}
	}
	return state.LastBlockHeight, state.ConsensusHash, nil
}
