package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrSigningKeyNotImplemented = errors.New("signing key not implemented in production mode")
	ErrKeyNotFound              = errors.New("key not found")
)

// KeyProvider defines the interface for providing cryptographic keys.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// DevKeyProvider implements KeyProvider for development environment.
// It reads PEM keys from a directory; the first private key found becomes the
// signing key and its file name (minus extension) becomes the active kid.
type DevKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
	signingKid string
}

// NewDevKeyProvider creates a new DevKeyProvider.
func NewDevKeyProvider(keyDir string) (*DevKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &DevKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))

		// Try PKCS#1 format (RSA PRIVATE KEY)
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			if provider.signingKey == nil {
				provider.signingKey = key
				provider.signingKid = kid
			}
			provider.keys[kid] = &key.PublicKey
			continue
		}

		// Try PKCS#8 format (PRIVATE KEY)
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				if provider.signingKey == nil {
					provider.signingKey = rsaKey
					provider.signingKid = kid
				}
				provider.keys[kid] = &rsaKey.PublicKey
				continue
			}
		}

		// Try to parse as public key (PKCS#1)
		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			provider.keys[kid] = key
			continue
		}

		// Try to parse as public key (PKIX/X.509)
		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("failed to parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

// GetSigningKey returns the private key for signing tokens.
func (p *DevKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.signingKey, nil
}

// GetVerificationKey returns the public key for verifying tokens.
func (p *DevKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// SigningKeyID returns the kid of the active signing key.
func (p *DevKeyProvider) SigningKeyID() string {
	return p.signingKid
}

// ListVerificationKeys returns all loaded public keys keyed by kid.
func (p *DevKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// ProdKeyProvider implements KeyProvider for production environment, where
// signing keys live in an external vault.
type ProdKeyProvider struct{}

// NewProdKeyProvider creates a new ProdKeyProvider.
func NewProdKeyProvider() (*ProdKeyProvider, error) {
	return &ProdKeyProvider{}, nil
}

// GetSigningKey returns an error as signing is not implemented in production mode directly.
func (p *ProdKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return nil, ErrSigningKeyNotImplemented
}

// GetVerificationKey would fetch the public key from a trusted source.
func (p *ProdKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	return nil, fmt.Errorf("verification for kid %s not implemented", kid)
}

// NewKeyProvider creates a KeyProvider based on the environment.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	switch env {
	case "development":
		return NewDevKeyProvider(keyDir)
	case "production":
		return NewProdKeyProvider()
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}
}
