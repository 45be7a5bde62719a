package sink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/internal/state/indexer/sink"
)

func memProvider(*config.DBContext) (dbm.DB, error) { return dbm.NewMemDB(), nil }

func TestEventSinksFromConfig(t *testing.T) {
	cfg := config.TestConfig()

	cfg.TxIndex.Indexer = nil
	sinks, err := sink.EventSinksFromConfig(cfg, memProvider, "test")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, indexer.NULL, sinks[0].Type())

	cfg.TxIndex.Indexer = []string{"kv"}
	sinks, err = sink.EventSinksFromConfig(cfg, memProvider, "test")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, indexer.KV, sinks[0].Type())

	cfg.TxIndex.Indexer = []string{"kv", "null"}
	sinks, err = sink.EventSinksFromConfig(cfg, memProvider, "test")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, indexer.NULL, sinks[0].Type())

	cfg.TxIndex.Indexer = []string{"kv", "kv"}
	_, err = sink.EventSinksFromConfig(cfg, memProvider, "test")
	assert.Error(t, err)

	cfg.TxIndex.Indexer = []string{"psql"}
	cfg.TxIndex.PsqlConn = ""
	_, err = sink.EventSinksFromConfig(cfg, memProvider, "test")
	assert.Error(t, err)
}
