package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

const (
	gcmMagic        = "GCM3NCR0"
	saltSize        = 16
	nonceSize       = 12
	tagSize         = 16
	pbkdf2Iters     = 100000
	encryptedHeader = len(gcmMagic) + saltSize + nonceSize
)

// encryptedStore seals blobs before handing them to the inner store.
type encryptedStore struct {
	inner    Store
	password string
}

// WithEncryption wraps inner so every blob is stored in the GCM envelope.
func WithEncryption(inner Store, password string) Store {
	return &encryptedStore{inner: inner, password: password}
}

func (e *encryptedStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	sealed, err := encryptGCM(data, e.password)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}
	if meta.Extra == nil {
		meta.Extra = map[string]string{}
	}
	meta.Extra["encryption-format"] = gcmMagic
	return e.inner.Put(ctx, key, sealed, meta)
}

func (e *encryptedStore) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	sealed, meta, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, meta, err
	}
	data, err := decryptGCM(sealed, e.password)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return data, meta, nil
}

func (e *encryptedStore) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

func (e *encryptedStore) Ping(ctx context.Context) error { return e.inner.Ping(ctx) }

// encryptGCM produces magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func encryptGCM(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, encryptedHeader+len(data)+tagSize)
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func decryptGCM(encrypted []byte, password string) ([]byte, error) {
	if len(encrypted) < encryptedHeader+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(encrypted))
	}
	if string(encrypted[:len(gcmMagic)]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format")
	}
	salt := encrypted[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := encrypted[len(gcmMagic)+saltSize : encryptedHeader]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, encrypted[encryptedHeader:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	log.Debug().Int("size", len(plaintext)).Msg("decrypted blob")
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iters, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
