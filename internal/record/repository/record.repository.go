package repository

import (
	"database/sql"
	"meditrust/internal/record/model"
	"meditrust/pkg/logger"
	"time"
)

type RecordRepository struct {
	DB *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{DB: db}
}

func (r *RecordRepository) Create(cid, owner, fileName, contentType string, size int64) (int64, time.Time, error) {
	var id int64
	var createdAt time.Time
	err := r.DB.QueryRow(`INSERT INTO records (cid, owner, file_name, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`,
		cid, owner, fileName, contentType, size,
	).Scan(&id, &createdAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create record for %s: %v", owner, err)
	}
	return id, createdAt, err
}

func (r *RecordRepository) SetTxHash(id int64, txHash string) error {
	_, err := r.DB.Exec(`UPDATE records SET tx_hash = $1 WHERE id = $2`, txHash, id)
	if err != nil {
		logger.Sugar.Errorf("Failed to set tx hash for record %d: %v", id, err)
	}
	return err
}

// GetByID returns sql.ErrNoRows when the record does not exist.
func (r *RecordRepository) GetByID(id int64) (*model.Record, error) {
	var rec model.Record
	err := r.DB.QueryRow(`SELECT id, cid, owner, file_name, content_type, size, tx_hash, created_at
		FROM records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.CID, &rec.Owner, &rec.FileName, &rec.ContentType, &rec.Size, &rec.TxHash, &rec.Timestamp)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get record %d: %v", id, err)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RecordRepository) ListByOwner(owner string) ([]model.Record, error) {
	rows, err := r.DB.Query(`SELECT id, cid, owner, file_name, content_type, size, tx_hash, created_at
		FROM records WHERE owner = $1 ORDER BY id ASC`, owner)
	if err != nil {
		logger.Sugar.Errorf("Failed to get records for %s: %v", owner, err)
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *RecordRepository) ListSharedWith(grantee string) ([]model.Record, error) {
	rows, err := r.DB.Query(`SELECT r.id, r.cid, r.owner, r.file_name, r.content_type, r.size, r.tx_hash, r.created_at
		FROM records r JOIN access_grants g ON r.id = g.record_id
		WHERE g.grantee = $1 ORDER BY r.id ASC`, grantee)
	if err != nil {
		logger.Sugar.Errorf("Failed to get records shared with %s: %v", grantee, err)
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AddGrant reports whether the grantee was newly added.
func (r *RecordRepository) AddGrant(dbTx *sql.Tx, recordID int64, grantee string) (bool, error) {
	result, err := dbTx.Exec(`INSERT INTO access_grants (record_id, grantee, granted_at) VALUES ($1, $2, NOW())
		ON CONFLICT (record_id, grantee) DO NOTHING`, recordID, grantee)
	if err != nil {
		logger.Sugar.Errorf("Failed to grant %s access to record %d: %v", grantee, recordID, err)
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// RemoveGrant reports whether a grant was actually removed.
func (r *RecordRepository) RemoveGrant(dbTx *sql.Tx, recordID int64, grantee string) (bool, error) {
	result, err := dbTx.Exec(`DELETE FROM access_grants WHERE record_id = $1 AND grantee = $2`, recordID, grantee)
	if err != nil {
		logger.Sugar.Errorf("Failed to revoke %s from record %d: %v", grantee, recordID, err)
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *RecordRepository) HasGrant(recordID int64, grantee string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM access_grants WHERE record_id = $1 AND grantee = $2)`,
		recordID, grantee).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check grant of %s on record %d: %v", grantee, recordID, err)
	}
	return exists, err
}

func (r *RecordRepository) ListGrants(recordID int64) ([]model.Grant, error) {
	rows, err := r.DB.Query(`SELECT grantee, granted_at FROM access_grants WHERE record_id = $1 ORDER BY granted_at ASC`, recordID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list grants for record %d: %v", recordID, err)
		return nil, err
	}
	defer rows.Close()

	grants := []model.Grant{}
	for rows.Next() {
		var g model.Grant
		if err := rows.Scan(&g.Grantee, &g.GrantedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	records := []model.Record{}
	for rows.Next() {
		var rec model.Record
		if err := rows.Scan(&rec.ID, &rec.CID, &rec.Owner, &rec.FileName, &rec.ContentType, &rec.Size, &rec.TxHash, &rec.Timestamp); err != nil {
			logger.Sugar.Errorf("Failed to scan record: %v", err)
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
