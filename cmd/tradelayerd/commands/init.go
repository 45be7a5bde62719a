package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tradelayer/tradelayer/config"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/libs/log"
	tmos "github.com/tradelayer/tradelayer/libs/os"
)

// MakeInitCommand returns the command writing a fresh home directory: the
// node configuration, a genesis with the default protocol parameters and an
// empty blocks file.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var vals config.GenesisValues
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initializes a TradeLayer home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFilesWithConfig(conf, vals, logger)
		},
	}
	cmd.Flags().StringVar(&vals.ChainID, "chain-id", "tradelayer-main", "chain id written to the genesis")
	cmd.Flags().StringVar(&vals.Admin, "admin", "", "address allowed to activate features")
	cmd.Flags().Int64Var(&vals.GenesisHeight, "genesis-height", 0, "first block applied by the protocol")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}

func initFilesWithConfig(conf *config.Config, vals config.GenesisValues, logger log.Logger) error {
	configFile := filepath.Join(conf.RootDir, "config", "config.toml")
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
	} else {
		if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", configFile)
	}

	genFile := conf.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
	} else {
		if err := config.WriteGenesisFile(genFile, vals); err != nil {
			return err
		}
		// refuse to leave a genesis behind the node cannot start from
		if _, err := sm.GenesisDocFromFile(genFile); err != nil {
			return err
		}
		logger.Info("Generated genesis file", "path", genFile)
	}

	blocksFile := conf.Chain.BlocksFilePath()
	if tmos.FileExists(blocksFile) {
		logger.Info("Found blocks file", "path", blocksFile)
		return nil
	}
	if err := tmos.EnsureDir(filepath.Dir(blocksFile), 0700); err != nil {
		return err
	}
	if err := tmos.WriteFile(blocksFile, nil, 0644); err != nil {
		return err
	}
	logger.Info("Generated blocks file", "path", blocksFile)
	return nil
}
