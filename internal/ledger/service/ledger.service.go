package service

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"meditrust/internal/ledger/model"
	"meditrust/internal/ledger/repository"
	"meditrust/pkg/logger"
	"strings"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first transaction.
var GenesisHash = "0x" + strings.Repeat("0", 64)

// LedgerService appends hash-chained transactions. Appends are serialised
// within the process; the unique seq column rejects a concurrent writer.
type LedgerService struct {
	Repo *repository.LedgerRepository

	mu   sync.Mutex
	head *model.Tx
	now  func() time.Time
}

func NewLedgerService(repo *repository.LedgerRepository) *LedgerService {
	return &LedgerService{Repo: repo, now: time.Now}
}

// Mutation changes state inside dbTx and reports whether anything changed.
type Mutation func(dbTx *sql.Tx) (bool, error)

func (s *LedgerService) Append(kind string, recordID int64, actor, subject, cid string) (*model.Tx, error) {
	return s.AppendWith(kind, recordID, actor, subject, cid, nil)
}

// AppendWith runs mutate and the ledger insert in one database transaction,
// holding the append lock across both so the chain orders changes the way
// they were committed. It returns nil, nil when mutate reports no change.
func (s *LedgerService) AppendWith(kind string, recordID int64, actor, subject, cid string, mutate Mutation) (*model.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == nil {
		head, err := s.Repo.Last()
		if err != nil {
			return nil, err
		}
		s.head = head
	}

	dbTx, err := s.Repo.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}

	if mutate != nil {
		changed, err := mutate(dbTx)
		if err != nil || !changed {
			dbTx.Rollback()
			return nil, err
		}
	}

	tx := model.Tx{
		Kind:      kind,
		RecordID:  recordID,
		Actor:     actor,
		Subject:   subject,
		CID:       cid,
		PrevHash:  GenesisHash,
		Timestamp: s.now().UTC().Truncate(time.Microsecond),
	}
	if s.head != nil {
		tx.Seq = s.head.Seq + 1
		tx.PrevHash = s.head.Hash
	}
	tx.Hash = HashTx(tx)

	if err := s.Repo.Insert(dbTx, tx); err != nil {
		dbTx.Rollback()
		// Someone else may have moved the head; reload it next time.
		s.head = nil
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		s.head = nil
		return nil, fmt.Errorf("commit ledger entry: %w", err)
	}
	s.head = &tx
	return &tx, nil
}

func (s *LedgerService) History(recordID int64) ([]model.Tx, error) {
	return s.Repo.ListByRecord(recordID)
}

// Verify walks the whole chain and recomputes every link.
func (s *LedgerService) Verify() (*model.VerifyReport, error) {
	txs, err := s.Repo.ListAll()
	if err != nil {
		return nil, err
	}
	return VerifyChain(txs), nil
}

// VerifyWorker re-checks the chain on every tick until stop is closed.
func (s *LedgerService) VerifyWorker(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			report, err := s.Verify()
			if err != nil {
				logger.Sugar.Errorf("Ledger verification could not run: %v", err)
				continue
			}
			if !report.Valid {
				logger.Sugar.Errorf("Ledger chain broken at seq %d: %s", *report.BrokenAt, report.Reason)
				continue
			}
			logger.Sugar.Infof("Ledger verified: %d entries, head %s", report.Length, report.HeadHash)
		}
	}
}

// VerifyChain checks ordering, links and hashes of txs, which must be sorted by seq.
func VerifyChain(txs []model.Tx) *model.VerifyReport {
	report := &model.VerifyReport{Length: int64(len(txs)), HeadHash: GenesisHash, Valid: true}
	prev := GenesisHash
	for i, tx := range txs {
		reason := ""
		switch {
		case tx.Seq != int64(i):
			reason = fmt.Sprintf("expected seq %d", i)
		case tx.PrevHash != prev:
			reason = "prev_hash does not link to previous entry"
		case HashTx(tx) != tx.Hash:
			reason = "hash does not match contents"
		}
		if reason != "" {
			seq := tx.Seq
			report.Valid = false
			report.BrokenAt = &seq
			report.Reason = reason
			return report
		}
		prev = tx.Hash
	}
	report.HeadHash = prev
	return report
}

// HashTx hashes every field of tx except Hash itself.
func HashTx(tx model.Tx) string {
	hdr := struct {
		Seq       int64  `json:"seq"`
		Kind      string `json:"kind"`
		RecordID  int64  `json:"record_id"`
		Actor     string `json:"actor"`
		Subject   string `json:"subject"`
		CID       string `json:"cid"`
		PrevHash  string `json:"prev_hash"`
		Timestamp string `json:"timestamp"`
	}{
		Seq:       tx.Seq,
		Kind:      tx.Kind,
		RecordID:  tx.RecordID,
		Actor:     tx.Actor,
		Subject:   tx.Subject,
		CID:       tx.CID,
		PrevHash:  tx.PrevHash,
		Timestamp: tx.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(hdr)
	sum := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(sum[:])
}
