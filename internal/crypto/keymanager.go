// Package crypto stores the local signing keypair encrypted at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 2
	// keypairLen is the ed25519 secret+public key length.
	keypairLen = 64
)

// encryptedKeyJSON is the on-disk format for an encrypted keypair.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKey needs to resolve a keypair.
type KeyConfig struct {
	// RawPrivateKey is a base58 keypair. If non-empty, LoadKey uses it.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string
	KeyPassword      string

	// KeypairPath is a plain solana-keygen JSON file.
	KeypairPath string
}

// EncryptKey encrypts a keypair with a password using PBKDF2-HMAC-SHA256 key
// derivation and AES-256-GCM. The public key is stored in clear so the wallet
// can be identified without the password.
func EncryptKey(key solana.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(key) != keypairLen {
		return nil, fmt.Errorf("crypto: expected %d-byte keypair, got %d bytes", keypairLen, len(key))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedKeyJSON{
		Version:    currentVersion,
		PublicKey:  key.PublicKey().String(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, key, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey decrypts a JSON blob produced by EncryptKey and checks that the
// keypair matches the stored public key.
func DecryptKey(encryptedJSON []byte, password string) (solana.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}

	key := solana.PrivateKey(plaintext)
	if got := key.PublicKey().String(); stored.PublicKey != "" && got != stored.PublicKey {
		return nil, fmt.Errorf("crypto: keypair public key %s does not match %s", got, stored.PublicKey)
	}
	return key, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadKey resolves a keypair from the provided configuration.
//
// Resolution order:
//  1. RawPrivateKey (base58).
//  2. EncryptedKeyPath decrypted with KeyPassword.
//  3. KeypairPath in solana-keygen format.
func LoadKey(cfg KeyConfig) (solana.PrivateKey, error) {
	if cfg.RawPrivateKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.RawPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("crypto: RawPrivateKey is not a base58 keypair: %w", err)
		}
		return key, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	if cfg.KeypairPath != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading keypair file: %w", err)
		}
		return key, nil
	}

	return nil, errors.New("crypto: no private key source configured (set RawPrivateKey, EncryptedKeyPath or KeypairPath)")
}
