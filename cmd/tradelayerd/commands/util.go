package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tradelayer/tradelayer/config"
	sm "github.com/tradelayer/tradelayer/internal/state"
)

// openStateStore opens the persisted state of the node configured by conf.
// The caller closes the store.
func openStateStore(conf *config.Config) (sm.Store, *sm.GenesisDoc, error) {
	genDoc, err := sm.GenesisDocFromFile(conf.GenesisFile())
	if err != nil {
		return nil, nil, err
	}
	db, err := config.DefaultDBProvider(&config.DBContext{ID: config.StateDBID, Config: conf})
	if err != nil {
		return nil, nil, fmt.Errorf("opening state db: %w", err)
	}
	return sm.NewStore(db, sm.StoreOptions{SyncWrites: conf.Storage.SyncWrites}), genDoc, nil
}

func printJSON(w io.Writer, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bz))
	return err
}
