package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
	"golang.org/x/crypto/scrypt"
)

const (
	envelopeVersion = 1
	keySize         = 32
	saltSize        = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var additionalData = []byte("meditrust/content/v1")

// envelope is the on-disk form of a blob. The data key is random per blob
// and only ever stored wrapped by the master key.
type envelope struct {
	Version    uint8
	KeyNonce   []byte
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func deriveMasterKey(secret string, salt []byte) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("storage secret is empty")
	}
	return scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func gcmSeal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = randomBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, additionalData), nil
}

func gcmOpen(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("bad nonce length")
	}
	return aead.Open(nil, nonce, ciphertext, additionalData)
}

func seal(masterKey, plaintext []byte) ([]byte, error) {
	dataKey, err := randomBytes(keySize)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := gcmSeal(dataKey, plaintext)
	if err != nil {
		return nil, err
	}
	keyNonce, wrapped, err := gcmSeal(masterKey, dataKey)
	if err != nil {
		return nil, err
	}
	return encodeMsgpack(&envelope{
		Version:    envelopeVersion,
		KeyNonce:   keyNonce,
		WrappedKey: wrapped,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
}

func open(masterKey, sealed []byte) ([]byte, error) {
	var env envelope
	if err := decodeMsgpack(sealed, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	dataKey, err := gcmOpen(masterKey, env.KeyNonce, env.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	plaintext, err := gcmOpen(dataKey, env.Nonce, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt content: %w", err)
	}
	return plaintext, nil
}

func encodeMsgpack(v interface{}) ([]byte, error) {
	var (
		out []byte
		mh  codec.MsgpackHandle
	)
	if err := codec.NewEncoderBytes(&out, &mh).Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMsgpack(data []byte, v interface{}) error {
	var mh codec.MsgpackHandle
	return codec.NewDecoderBytes(data, &mh).Decode(v)
}
