package model

import "time"

const (
	KindRecordCreated = "RECORD_CREATED"
	KindAccessGranted = "ACCESS_GRANTED"
	KindAccessRevoked = "ACCESS_REVOKED"
)

// Tx is one link of the access ledger chain.
type Tx struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	RecordID  int64     `json:"record_id"`
	Actor     string    `json:"actor"`
	Subject   string    `json:"subject,omitempty"`
	CID       string    `json:"cid,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

type VerifyReport struct {
	Length   int64  `json:"length"`
	HeadHash string `json:"head_hash"`
	Valid    bool   `json:"valid"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
