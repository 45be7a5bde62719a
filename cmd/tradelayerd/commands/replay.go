package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/chain"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/libs/log"
)

// MakeReplayCommand constructs a command applying a blocks file to the
// genesis state in memory and printing the resulting consensus hash. The
// persisted state is left untouched.
func MakeReplayCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [blocks-file]",
		Short: "Replay a blocks file from genesis and print the consensus hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := conf.Chain.BlocksFilePath()
			if len(args) == 1 {
				path = args[0]
			}
			genDoc, err := sm.GenesisDocFromFile(conf.GenesisFile())
			if err != nil {
				return err
			}
			state, err := ReplayFile(cmd.Context(), genDoc, path, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s %s\n", state.LastBlockHeight, state.LastBlockHash, state.ConsensusHash)
			return nil
		},
	}
}

// ReplayFile applies the blocks of path on top of the genesis state.
// Blocks below the genesis height are skipped.
func ReplayFile(ctx context.Context, genDoc *sm.GenesisDoc, path string, logger log.Logger) (*sm.State, error) {
	blocks, err := chain.ReadBlocks(path)
	if err != nil {
		return nil, err
	}
	state, err := sm.MakeGenesisState(genDoc)
	if err != nil {
		return nil, err
	}
	blockExec := sm.NewBlockExecutor(nil, logger.With("module", "replay"))
	for _, block := range blocks {
		if block.Height <= state.LastBlockHeight {
			continue
		}
		if state, _, err = blockExec.ApplyBlock(ctx, state, block); err != nil {
			return nil, fmt.Errorf("replaying %v: %w", block, err)
		}
	}
	logger.Info("replayed blocks", "file", path, "blocks", len(blocks), "height", state.LastBlockHeight)
	return state, nil
}
