// Package storage is the content-addressed blob store behind medical records.
//
// Blobs are sealed before they are written, and the identifier handed back is
// a CIDv0 over the sealed bytes, so a lookup can always re-check integrity.
package storage

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"meditrust/pkg/logger"

	"github.com/mr-tron/base58"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	ErrNotFound     = errors.New("content not found")
	ErrIntegrity    = errors.New("content failed integrity check")
	ErrInvalidCID   = errors.New("invalid content identifier")
	ErrEmptyContent = errors.New("content is empty")
	ErrWrongSecret  = errors.New("storage secret does not match this store")
)

const (
	blobPrefix = "blob_"
	saltKey    = "meta_salt"
	checkKey   = "meta_check"

	// multihash header for sha2-256 with a 32 byte digest
	mhSHA256 = 0x12
	mhLen    = 0x20
)

var checkValue = []byte("meditrust")

type ContentStore struct {
	db        *leveldb.DB
	masterKey []byte
}

type PutResult struct {
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

// Open opens (or creates) a LevelDB-backed store at path.
func Open(path, secret string) (*ContentStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	s, err := New(db, secret)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Sugar.Infof("Content store opened at %s", path)
	return s, nil
}

// New wraps an already open LevelDB handle. The first call against an empty
// database generates the key-derivation salt and a check value.
func New(db *leveldb.DB, secret string) (*ContentStore, error) {
	salt, err := db.Get([]byte(saltKey), nil)
	fresh := false
	if errors.Is(err, leveldb.ErrNotFound) {
		if salt, err = randomBytes(saltSize); err != nil {
			return nil, err
		}
		fresh = true
	} else if err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	mk, err := deriveMasterKey(secret, salt)
	if err != nil {
		return nil, err
	}

	if fresh {
		check, err := seal(mk, checkValue)
		if err != nil {
			return nil, err
		}
		batch := new(leveldb.Batch)
		batch.Put([]byte(saltKey), salt)
		batch.Put([]byte(checkKey), check)
		if err := db.Write(batch, nil); err != nil {
			return nil, fmt.Errorf("initialise content store: %w", err)
		}
	} else {
		check, err := db.Get([]byte(checkKey), nil)
		if err != nil {
			return nil, fmt.Errorf("read check value: %w", err)
		}
		pt, err := open(mk, check)
		if err != nil || !bytes.Equal(pt, checkValue) {
			return nil, ErrWrongSecret
		}
	}

	return &ContentStore{db: db, masterKey: mk}, nil
}

func (s *ContentStore) Close() error {
	return s.db.Close()
}

// Put seals data and stores it under its content identifier.
func (s *ContentStore) Put(data []byte) (PutResult, error) {
	if len(data) == 0 {
		return PutResult{}, ErrEmptyContent
	}
	sealed, err := seal(s.masterKey, data)
	if err != nil {
		logger.Sugar.Errorf("Failed to seal content: %v", err)
		return PutResult{}, err
	}
	cid := computeCID(sealed)
	if err := s.db.Put([]byte(blobPrefix+cid), sealed, nil); err != nil {
		logger.Sugar.Errorf("Failed to write blob %s: %v", cid, err)
		return PutResult{}, err
	}
	logger.Sugar.Debugf("Stored blob %s (%d bytes)", cid, len(data))
	return PutResult{CID: cid, Size: int64(len(data))}, nil
}

// Get returns the plaintext stored under cid.
func (s *ContentStore) Get(cid string) ([]byte, error) {
	digest, err := ParseCID(cid)
	if err != nil {
		return nil, err
	}
	sealed, err := s.db.Get([]byte(blobPrefix+cid), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to read blob %s: %v", cid, err)
		return nil, err
	}

	sum := sha256.Sum256(sealed)
	if !bytes.Equal(sum[:], digest) {
		logger.Sugar.Warnf("Blob %s does not match its identifier", cid)
		return nil, ErrIntegrity
	}

	plaintext, err := open(s.masterKey, sealed)
	if err != nil {
		logger.Sugar.Warnf("Blob %s could not be opened: %v", cid, err)
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func (s *ContentStore) Has(cid string) (bool, error) {
	if _, err := ParseCID(cid); err != nil {
		return false, err
	}
	return s.db.Has([]byte(blobPrefix+cid), nil)
}

// ParseCID checks that cid is a base58 sha2-256 multihash and returns the digest.
func ParseCID(cid string) ([]byte, error) {
	raw, err := base58.Decode(cid)
	if err != nil || len(raw) != 2+sha256.Size || raw[0] != mhSHA256 || raw[1] != mhLen {
		return nil, ErrInvalidCID
	}
	return raw[2:], nil
}

func computeCID(data []byte) string {
	sum := sha256.Sum256(data)
	mh := make([]byte, 0, 2+len(sum))
	mh = append(mh, mhSHA256, mhLen)
	mh = append(mh, sum[:]...)
	return base58.Encode(mh)
}
