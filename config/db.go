package config

import (
	dbm "github.com/tendermint/tm-db"
)

// IDs of the databases a node opens.
const (
	StateDBID   = "state"
	TxIndexDBID = "tx_index"
)

// DBContext names a database of the node configured by Config.
type DBContext struct {
	ID     string
	Config *Config
}

// DBProvider opens the database described by a DBContext.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider opens ID under DBDir with the configured backend. The
// memdb backend gives every call a fresh, empty database.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	dbType := dbm.BackendType(ctx.Config.DBBackend)

	return dbm.NewDB(ctx.ID, dbType, ctx.Config.DBDir())
}
