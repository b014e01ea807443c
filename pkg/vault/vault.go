// Package vault stores endpoint credentials encrypted at rest.
//
// Entries are sealed with XChaCha20-Poly1305. The cipher key is derived
// from a caller-supplied secret via Argon2id with a random salt that is
// generated on first use and persisted alongside the entries.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

const (
	entriesScope = "vault"
	metaScope    = "vault_meta"
	saltKey      = "salt"
	saltLen      = 16
)

// Argon2id parameters. Tuned for an interactive client, not a server
// fending off offline attacks on weak passwords.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrNoSecret is returned by New when the sealing secret is empty.
var ErrNoSecret = errors.New("vault: empty secret")

// envelope is the persisted form of a sealed entry: ciphertext alongside
// the nonce it was sealed with.
type envelope struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Vault encrypts and persists credentials keyed by endpoint address.
type Vault struct {
	entries kv.Store
	aead    cipher.AEAD
}

// New opens the vault backed by db, deriving the cipher key from secret.
// The salt is created and persisted on first use, so the same secret
// yields the same key across restarts.
func New(db kv.DB, secret []byte) (*Vault, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	meta, err := db.Store(metaScope)
	if err != nil {
		return nil, fmt.Errorf("open vault meta: %w", err)
	}
	entries, err := db.Store(entriesScope)
	if err != nil {
		return nil, fmt.Errorf("open vault entries: %w", err)
	}

	salt, ok, err := meta.Get(saltKey)
	if err != nil {
		return nil, fmt.Errorf("load vault salt: %w", err)
	}
	if !ok {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate vault salt: %w", err)
		}
		if err := meta.Put(saltKey, salt); err != nil {
			return nil, fmt.Errorf("store vault salt: %w", err)
		}
	}

	key := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	return &Vault{entries: entries, aead: aead}, nil
}

// Store seals creds and persists them under addr, replacing any previous
// entry for that address.
func (v *Vault) Store(addr string, creds models.Credentials) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	env := envelope{
		Nonce:      nonce,
		Ciphertext: v.aead.Seal(nil, nonce, plain, []byte(addr)),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := v.entries.Put(addr, raw); err != nil {
		return fmt.Errorf("store credentials for %s: %w", addr, err)
	}
	return nil
}

// Lookup returns the credentials stored for addr. The second return is
// false when no entry exists.
func (v *Vault) Lookup(addr string) (models.Credentials, bool, error) {
	raw, ok, err := v.entries.Get(addr)
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("load credentials for %s: %w", addr, err)
	}
	if !ok {
		return models.Credentials{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Credentials{}, false, fmt.Errorf("decode envelope for %s: %w", addr, err)
	}
	plain, err := v.aead.Open(nil, env.Nonce, env.Ciphertext, []byte(addr))
	if err != nil {
		return models.Credentials{}, false, fmt.Errorf("unseal credentials for %s: %w", addr, err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return models.Credentials{}, false, fmt.Errorf("decode credentials for %s: %w", addr, err)
	}
	return creds, true, nil
}

// Has reports whether an entry exists for addr without unsealing it.
func (v *Vault) Has(addr string) (bool, error) {
	_, ok, err := v.entries.Get(addr)
	if err != nil {
		return false, fmt.Errorf("check credentials for %s: %w", addr, err)
	}
	return ok, nil
}

// Delete removes the entry for addr. Deleting an absent entry is not an
// error.
func (v *Vault) Delete(addr string) error {
	if err := v.entries.Delete(addr); err != nil {
		return fmt.Errorf("delete credentials for %s: %w", addr, err)
	}
	return nil
}
