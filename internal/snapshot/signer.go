package snapshot

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"mcpguard/internal/model"

	"github.com/zalando/go-keyring"
)

const (
	// Service name for OS credential store
	keyringService = "mcpguard"
	// Key for the snapshot signing secret
	signingKeyUser = "snapshot-key"
)

// Signer authenticates snapshot records so that edits made directly to the
// store are detected.
type Signer interface {
	Sign(path string, hash model.Digest) (string, error)
	Verify(path string, hash model.Digest, mac string) error
}

// KeyringSigner signs records with HMAC-SHA256 using a random key kept in the
// OS credential store. The key is created on first use.
type KeyringSigner struct {
	service string

	mu  sync.Mutex
	key []byte
}

// NewKeyringSigner creates a signer bound to the default keyring service.
func NewKeyringSigner() *KeyringSigner {
	return &KeyringSigner{service: keyringService}
}

func (k *KeyringSigner) loadKey() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key != nil {
		return k.key, nil
	}

	stored, err := keyring.Get(k.service, signingKeyUser)
	switch {
	case err == nil:
		key, err := hex.DecodeString(stored)
		if err != nil || len(key) < 32 {
			return nil, fmt.Errorf("stored signing key is invalid")
		}
		k.key = key
		return key, nil

	case errors.Is(err, keyring.ErrNotFound):
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		if err := keyring.Set(k.service, signingKeyUser, hex.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("failed to store signing key in credential store: %w", err)
		}
		k.key = key
		return key, nil

	default:
		return nil, fmt.Errorf("failed to retrieve signing key from credential store: %w", err)
	}
}

func (k *KeyringSigner) mac(key []byte, path string, hash model.Digest) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(hash))
	return h.Sum(nil)
}

func (k *KeyringSigner) Sign(path string, hash model.Digest) (string, error) {
	key, err := k.loadKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(k.mac(key, path, hash)), nil
}

func (k *KeyringSigner) Verify(path string, hash model.Digest, mac string) error {
	key, err := k.loadKey()
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(mac)
	if err != nil || !hmac.Equal(got, k.mac(key, path, hash)) {
		return errors.New("record signature does not verify")
	}
	return nil
}
