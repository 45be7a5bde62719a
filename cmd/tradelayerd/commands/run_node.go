package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")
	cmd.Flags().String("chain.blocks-file", conf.Chain.BlocksFile, "JSON-lines file the chain adapter writes blocks to")
	cmd.Flags().Duration("chain.poll-interval", conf.Chain.PollInterval, "how often to look for new blocks")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve prometheus metrics")
	addDBFlags(cmd, conf)
}

func addDBFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String(
		"db-backend",
		conf.DBBackend,
		"database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb")
	cmd.Flags().String(
		"db-dir",
		conf.DBPath,
		"database directory")
}

// NewRunNodeCmd returns the command that follows the chain until it is
// interrupted or the node halts.
func NewRunNodeCmd(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the TradeLayer node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := node.New(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			ctx := cmd.Context()
			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("started node", "chain_id", n.GenesisDoc().ChainID, "blocks_file", conf.Chain.BlocksFilePath())

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case <-n.Halted():
			}
			if err := n.Stop(); err != nil {
				logger.Error("unable to stop the node", "error", err)
			}
			if err := n.Err(); err != nil {
				return fmt.Errorf("node halted: %w", err)
			}
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
