package vault

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/pysugar/outlook-relay/internal/logging"
)

const (
	keyringService = "outlook-relay"
	keyringItem    = "token-encryption-key"
)

// KeyOptions selects where the vault key comes from.
type KeyOptions struct {
	Secret          string // TOKEN_ENCRYPTION_KEY
	KeyringDir      string // TOKEN_KEYRING_DIR
	KeyringPassword string
}

// LoadCipher resolves the vault key in priority order: explicit secret, file
// keyring, then a process-lifetime ephemeral key.
func LoadCipher(opts KeyOptions, log logging.Logger) (*Cipher, error) {
	if opts.Secret != "" {
		key, err := DeriveKey(opts.Secret)
		if err != nil {
			return nil, err
		}
		return NewCipher(key)
	}

	if opts.KeyringDir != "" {
		key, created, err := keyringKey(opts.KeyringDir, opts.KeyringPassword)
		if err != nil {
			return nil, err
		}
		if created {
			log.Info("Generated token encryption key in keyring", logging.String("dir", opts.KeyringDir))
		}
		return NewCipher(key)
	}

	log.Warn("TOKEN_ENCRYPTION_KEY is not set; using an ephemeral key. " +
		"Stored tokens will be unreadable after restart and every user must sign in again.")
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

func openKeyring(dir, password string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      keyringService,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// keyringKey loads the persisted key, generating and storing one on first use.
func keyringKey(dir, password string) ([]byte, bool, error) {
	ring, err := openKeyring(dir, password)
	if err != nil {
		return nil, false, err
	}

	item, err := ring.Get(keyringItem)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(item.Data))
		if decErr != nil || len(key) != KeySize {
			return nil, false, fmt.Errorf("keyring item %q is not a valid key", keyringItem)
		}
		return key, false, nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, false, fmt.Errorf("getting keyring item %q: %w", keyringItem, err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, false, err
	}
	err = ring.Set(keyring.Item{
		Key:  keyringItem,
		Data: []byte(base64.StdEncoding.EncodeToString(key)),
	})
	if err != nil {
		return nil, false, fmt.Errorf("setting keyring item %q: %w", keyringItem, err)
	}
	return key, true, nil
}
