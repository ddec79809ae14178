package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into a size-byte key with HKDF-SHA256.
func DeriveKey(secret, salt, info []byte, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, err
	}
	return key, nil
}
