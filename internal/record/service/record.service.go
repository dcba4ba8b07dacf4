package service

import (
	"database/sql"
	"errors"
	"fmt"
	ledgerModel "meditrust/internal/ledger/model"
	ledgerService "meditrust/internal/ledger/service"
	"meditrust/internal/record/model"
	"meditrust/internal/record/repository"
	"meditrust/internal/storage"
	"meditrust/pkg/logger"
	"meditrust/pkg/wallet"
	"meditrust/socket"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrNotAuthorized  = errors.New("not authorized")
	ErrEmptyFile      = errors.New("file is empty")
)

// Notifier pushes events to a wallet's open connections.
type Notifier interface {
	Notify(address, eventType string, payload interface{})
}

type RecordService struct {
	Repo     *repository.RecordRepository
	Store    *storage.ContentStore
	Ledger   *ledgerService.LedgerService
	Notifier Notifier
}

func NewRecordService(repo *repository.RecordRepository, store *storage.ContentStore, ledger *ledgerService.LedgerService, notifier Notifier) *RecordService {
	return &RecordService{Repo: repo, Store: store, Ledger: ledger, Notifier: notifier}
}

// UploadRecord stores the content, appends the record and returns its ledger transaction.
func (s *RecordService) UploadRecord(owner, fileName, contentType string, data []byte) (*model.UploadResponse, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	put, err := s.Store.Put(data)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	id, createdAt, err := s.Repo.Create(put.CID, owner, fileName, contentType, put.Size)
	if err != nil {
		return nil, err
	}

	tx, err := s.Ledger.Append(ledgerModel.KindRecordCreated, id, owner, "", put.CID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SetTxHash(id, tx.Hash); err != nil {
		return nil, err
	}

	rec := model.Record{
		ID:          id,
		CID:         put.CID,
		Owner:       owner,
		FileName:    fileName,
		ContentType: contentType,
		Size:        put.Size,
		TxHash:      tx.Hash,
		Timestamp:   createdAt,
	}
	s.notify(owner, socket.RecordCreatedType, rec)
	logger.Sugar.Infof("Record %d uploaded by %s (%s)", id, wallet.Short(owner), put.CID)

	return &model.UploadResponse{RecordID: id, CID: put.CID, TxHash: tx.Hash, Size: put.Size}, nil
}

func (s *RecordService) GetMyRecords(owner string) ([]model.Record, error) {
	return s.Repo.ListByOwner(owner)
}

// GetDoctorAccessibleRecords lists every record whose access list contains address.
func (s *RecordService) GetDoctorAccessibleRecords(address string) ([]model.SharedRecord, error) {
	records, err := s.Repo.ListSharedWith(address)
	if err != nil {
		return nil, err
	}
	shared := make([]model.SharedRecord, 0, len(records))
	for _, rec := range records {
		shared = append(shared, model.SharedRecord{Record: rec, AccessType: model.AccessTypeGranted})
	}
	return shared, nil
}

func (s *RecordService) GrantAccess(recordID int64, owner, grantee string) (*model.GrantResponse, error) {
	rec, grantee, err := s.ownedRecord(recordID, owner, grantee)
	if err != nil {
		return nil, err
	}
	// The owner always has access; listing them changes nothing.
	if grantee == rec.Owner {
		return &model.GrantResponse{Changed: false}, nil
	}

	tx, err := s.Ledger.AppendWith(ledgerModel.KindAccessGranted, recordID, owner, grantee, rec.CID,
		func(dbTx *sql.Tx) (bool, error) {
			return s.Repo.AddGrant(dbTx, recordID, grantee)
		})
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &model.GrantResponse{Changed: false}, nil
	}
	shared := model.SharedRecord{Record: *rec, AccessType: model.AccessTypeGranted}
	s.notify(grantee, socket.AccessGrantedType, shared)
	s.notify(owner, socket.AccessGrantedType, map[string]interface{}{"record_id": recordID, "address": grantee, "tx_hash": tx.Hash})
	logger.Sugar.Infof("Record %d: access granted to %s", recordID, wallet.Short(grantee))

	return &model.GrantResponse{Changed: true, TxHash: tx.Hash}, nil
}

func (s *RecordService) RevokeAccess(recordID int64, owner, grantee string) (*model.GrantResponse, error) {
	rec, grantee, err := s.ownedRecord(recordID, owner, grantee)
	if err != nil {
		return nil, err
	}

	tx, err := s.Ledger.AppendWith(ledgerModel.KindAccessRevoked, recordID, owner, grantee, rec.CID,
		func(dbTx *sql.Tx) (bool, error) {
			return s.Repo.RemoveGrant(dbTx, recordID, grantee)
		})
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &model.GrantResponse{Changed: false}, nil
	}
	payload := map[string]interface{}{"record_id": recordID, "address": grantee, "tx_hash": tx.Hash}
	s.notify(grantee, socket.AccessRevokedType, payload)
	s.notify(owner, socket.AccessRevokedType, payload)
	logger.Sugar.Infof("Record %d: access revoked from %s", recordID, wallet.Short(grantee))

	return &model.GrantResponse{Changed: true, TxHash: tx.Hash}, nil
}

func (s *RecordService) CheckAccess(recordID int64, address string) (*model.AccessResponse, error) {
	_, access, err := s.access(recordID, address)
	return access, err
}

func (s *RecordService) ListGrantees(recordID int64, owner string) ([]model.Grant, error) {
	rec, err := s.getRecord(recordID)
	if err != nil {
		return nil, err
	}
	if rec.Owner != owner {
		return nil, ErrNotAuthorized
	}
	return s.Repo.ListGrants(recordID)
}

// History returns the ledger transactions of a record to anyone who can read it.
func (s *RecordService) History(recordID int64, caller string) ([]ledgerModel.Tx, error) {
	_, access, err := s.access(recordID, caller)
	if err != nil {
		return nil, err
	}
	if !access.HasAccess {
		return nil, ErrNotAuthorized
	}
	return s.Ledger.History(recordID)
}

// Download returns the record and its decrypted content to anyone who can read it.
func (s *RecordService) Download(recordID int64, caller string) (*model.Record, []byte, error) {
	rec, access, err := s.access(recordID, caller)
	if err != nil {
		return nil, nil, err
	}
	if !access.HasAccess {
		logger.Sugar.Warnf("Download of record %d denied for %s", recordID, wallet.Short(caller))
		return nil, nil, ErrNotAuthorized
	}
	data, err := s.Store.Get(rec.CID)
	if err != nil {
		return nil, nil, fmt.Errorf("load content %s: %w", rec.CID, err)
	}
	return rec, data, nil
}

func (s *RecordService) access(recordID int64, address string) (*model.Record, *model.AccessResponse, error) {
	rec, err := s.getRecord(recordID)
	if err != nil {
		return nil, &model.AccessResponse{}, err
	}
	if rec.Owner == address {
		return rec, &model.AccessResponse{HasAccess: true, IsOwner: true}, nil
	}
	granted, err := s.Repo.HasGrant(recordID, address)
	if err != nil {
		return nil, nil, err
	}
	return rec, &model.AccessResponse{HasAccess: granted}, nil
}

func (s *RecordService) ownedRecord(recordID int64, owner, grantee string) (*model.Record, string, error) {
	grantee, err := wallet.Normalize(grantee)
	if err != nil {
		return nil, "", err
	}
	rec, err := s.getRecord(recordID)
	if err != nil {
		return nil, "", err
	}
	if rec.Owner != owner {
		return nil, "", ErrNotAuthorized
	}
	return rec, grantee, nil
}

func (s *RecordService) getRecord(recordID int64) (*model.Record, error) {
	rec, err := s.Repo.GetByID(recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

func (s *RecordService) notify(address, eventType string, payload interface{}) {
	if s.Notifier != nil {
		s.Notifier.Notify(address, eventType, payload)
	}
}
