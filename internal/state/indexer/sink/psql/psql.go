// Package psql implements an event sink backed by a PostgreSQL database.
package psql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/types"

	// Register the Postgres database driver.
	_ "github.com/lib/pq"
)

const (
	tableTxResults = "tx_results"
	driverName     = "postgres"
)

// EventSink is an indexer backend providing the tx result store on a
// PostgreSQL database.
type EventSink struct {
	store   *sql.DB
	chainID string
}

// NewEventSink constructs an event sink associated with the PostgreSQL
// database specified by connStr. Results written to the sink are stamped
// with the given chainID.
func NewEventSink(connStr, chainID string) (*EventSink, error) {
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, err
	}

	return &EventSink{
		store:   db,
		chainID: chainID,
	}, nil
}

// DB returns the underlying Postgres connection used by the sink.
// This is exported to support testing.
func (es *EventSink) DB() *sql.DB { return es.store }

// Type returns the structure type for this sink, which is Postgres.
func (es *EventSink) Type() indexer.EventSinkType { return indexer.PSQL }

// runInTransaction executes query in a fresh database transaction.
// If query reports an error, the transaction is rolled back and the
// error from query is reported to the caller.
// Otherwise, the result of committing the transaction is returned.
func runInTransaction(db *sql.DB, query func(*sql.Tx) error) error {
	dbtx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := query(dbtx); err != nil {
		_ = dbtx.Rollback() // report the initial error, not the rollback
		return err
	}
	return dbtx.Commit()
}

// IndexTxResults indexes the specified results. Re-indexing a txid is a
// no-op.
func (es *EventSink) IndexTxResults(txrs []*types.TxResult) error {
	ts := time.Now().UTC()

	return runInTransaction(es.store, func(dbtx *sql.Tx) error {
		for _, txr := range txrs {
			resultData, err := json.Marshal(txr)
			if err != nil {
				return fmt.Errorf("marshaling tx_result: %w", err)
			}
			_, err = dbtx.Exec(`
INSERT INTO `+tableTxResults+` (chain_id, height, index, created_at, txid, sender, reference, type, status, reason, tx_result)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
  ON CONFLICT DO NOTHING;
`, es.chainID, txr.Height, txr.Index, ts, txr.TxID, string(txr.Sender), string(txr.Reference),
				txr.Type, txr.Status.String(), txr.Reason, resultData)
			if err != nil {
				return fmt.Errorf("indexing transaction result: %w", err)
			}
		}
		return nil
	})
}

// GetTxResult is not implemented by this sink, and reports an error for all
// queries.
func (es *EventSink) GetTxResult(string) (*types.TxResult, error) {
	return nil, fmt.Errorf("getTxResult is %w via the postgres event sink", indexer.ErrNotSupported)
}

// Rollback deletes the results indexed above height.
func (es *EventSink) Rollback(height int64) error {
	_, err := es.store.Exec(`DELETE FROM `+tableTxResults+` WHERE chain_id = $1 AND height > $2;`,
		es.chainID, height)
	return err
}

// Stop closes the underlying PostgreSQL database.
func (es *EventSink) Stop() error { return es.store.Close() }
