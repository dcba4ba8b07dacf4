package model

import "time"

const AccessTypeGranted = "Granted"

type Record struct {
	ID          int64     `json:"id"`
	CID         string    `json:"cid"`
	Owner       string    `json:"owner"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	TxHash      string    `json:"tx_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

type SharedRecord struct {
	Record
	AccessType string `json:"access_type"`
}

type Grant struct {
	Grantee   string    `json:"address"`
	GrantedAt time.Time `json:"granted_at"`
}

type UploadResponse struct {
	RecordID int64  `json:"record_id"`
	CID      string `json:"cid"`
	TxHash   string `json:"tx_hash"`
	Size     int64  `json:"size"`
}

type GrantRequest struct {
	RecordID int64  `json:"record_id"`
	Address  string `json:"address"`
}

// GrantResponse carries no tx hash when the access list did not change.
type GrantResponse struct {
	Changed bool   `json:"changed"`
	TxHash  string `json:"tx_hash,omitempty"`
}

type AccessResponse struct {
	HasAccess bool `json:"has_access"`
	IsOwner   bool `json:"is_owner"`
}
