package repository

import (
	"database/sql"
	"errors"
	"meditrust/internal/ledger/model"
	"meditrust/pkg/logger"
)

type LedgerRepository struct {
	DB *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{DB: db}
}

func (r *LedgerRepository) Begin() (*sql.Tx, error) {
	dbTx, err := r.DB.Begin()
	if err != nil {
		logger.Sugar.Errorf("Failed to begin ledger transaction: %v", err)
	}
	return dbTx, err
}

// Insert writes entry inside dbTx; it becomes visible on commit.
func (r *LedgerRepository) Insert(dbTx *sql.Tx, entry model.Tx) error {
	_, err := dbTx.Exec(`INSERT INTO ledger_entries (seq, kind, record_id, actor, subject, cid, prev_hash, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Seq, entry.Kind, entry.RecordID, entry.Actor, entry.Subject, entry.CID, entry.PrevHash, entry.Hash, entry.Timestamp)
	if err != nil {
		logger.Sugar.Errorf("Failed to append ledger entry %d: %v", entry.Seq, err)
	}
	return err
}

// Last returns the head of the chain, or nil when the chain is empty.
func (r *LedgerRepository) Last() (*model.Tx, error) {
	var tx model.Tx
	err := r.DB.QueryRow(`SELECT seq, kind, record_id, actor, subject, cid, prev_hash, hash, created_at
		FROM ledger_entries ORDER BY seq DESC LIMIT 1`).
		Scan(&tx.Seq, &tx.Kind, &tx.RecordID, &tx.Actor, &tx.Subject, &tx.CID, &tx.PrevHash, &tx.Hash, &tx.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to read ledger head: %v", err)
		return nil, err
	}
	return &tx, nil
}

func (r *LedgerRepository) ListByRecord(recordID int64) ([]model.Tx, error) {
	return r.list(`SELECT seq, kind, record_id, actor, subject, cid, prev_hash, hash, created_at
		FROM ledger_entries WHERE record_id = $1 ORDER BY seq ASC`, recordID)
}

func (r *LedgerRepository) ListAll() ([]model.Tx, error) {
	return r.list(`SELECT seq, kind, record_id, actor, subject, cid, prev_hash, hash, created_at
		FROM ledger_entries ORDER BY seq ASC`)
}

func (r *LedgerRepository) list(query string, args ...interface{}) ([]model.Tx, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to list ledger entries: %v", err)
		return nil, err
	}
	defer rows.Close()

	txs := []model.Tx{}
	for rows.Next() {
		var tx model.Tx
		if err := rows.Scan(&tx.Seq, &tx.Kind, &tx.RecordID, &tx.Actor, &tx.Subject, &tx.CID, &tx.PrevHash, &tx.Hash, &tx.Timestamp); err != nil {
			logger.Sugar.Errorf("Failed to scan ledger entry: %v", err)
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
