package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// minSigningKeyBits rejects keys Cloud Storage would refuse for V4 signatures.
const minSigningKeyBits = 2048

// ErrNoSigningKey reports that neither an inline key nor a key file was configured.
var ErrNoSigningKey = errors.New("storage: no upload signing key configured")

// Signer signs upload and download URLs on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// KeySigner signs with a service account RSA key held in memory.
type KeySigner struct {
	email string
	key   *rsa.PrivateKey
}

// LoadKeySigner reads the service account JSON from inline when set and from path otherwise.
func LoadKeySigner(inline, path string) (*KeySigner, error) {
	var raw []byte
	switch {
	case strings.TrimSpace(inline) != "":
		raw = []byte(inline)
	case strings.TrimSpace(path) != "":
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return nil, fmt.Errorf("storage: read signing key: %w", err)
		}
		raw = data
	default:
		return nil, ErrNoSigningKey
	}
	return ParseKeySigner(raw)
}

// ParseKeySigner builds a signer from a service account JSON document.
func ParseKeySigner(raw []byte) (*KeySigner, error) {
	var doc struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("storage: signing key is not service account json: %w", err)
	}
	email := strings.TrimSpace(doc.ClientEmail)
	if email == "" {
		return nil, errors.New("storage: signing key has no client_email")
	}
	key, err := decodeRSAKey(doc.PrivateKey)
	if err != nil {
		return nil, err
	}
	if bits := key.N.BitLen(); bits < minSigningKeyBits {
		return nil, fmt.Errorf("storage: signing key is %d bits, need at least %d", bits, minSigningKeyBits)
	}
	return &KeySigner{email: email, key: key}, nil
}

func (s *KeySigner) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

// SignBytes returns an RSASSA-PKCS1-v1_5 SHA-256 signature, the scheme GOOG4-RSA-SHA256 expects.
func (s *KeySigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("storage: signer has no key")
	}
	if len(payload) == 0 {
		return nil, errors.New("storage: nothing to sign")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign url: %w", err)
	}
	return sig, nil
}

// decodeRSAKey accepts PKCS#8 (what Google issues) and PKCS#1 PEM blocks.
func decodeRSAKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemText)))
	if block == nil {
		return nil, errors.New("storage: signing key has no PEM private_key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("storage: parse pkcs1 key: %w", err)
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("storage: parse pkcs8 key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("storage: signing key is %T, not RSA", parsed)
		}
		return key, nil
	}
}
