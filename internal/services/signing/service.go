// Package signing holds the process-wide ECDSA key pair used to sign
// relayed chat payloads. Clients fetch the exported public key once and
// verify signatures out-of-band.
package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/storage"
)

const (
	privatePEMType = "EC PRIVATE KEY"
	publicPEMType  = "PUBLIC KEY"
)

// Service is the signature authority. The key pair is immutable after
// Initialize and safely shared by reference across all connections.
type Service struct {
	storage storage.Storage
	logger  *slog.Logger

	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	publicKey string // cached base64 PKIX export
}

// New creates a new signing service. Initialize must run before Sign.
func New(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger.With(slog.String("component", "signing")),
	}
}

// Initialize loads the persisted key pair, or generates and persists a
// fresh P-256 pair when none exists. Exactly one of load/generate runs.
// Corrupt persisted key material is fatal: the process cannot serve
// authenticated relay without its signing identity.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.storage.GetSigningKeyPair(ctx)
	switch {
	case err == nil:
		key, parseErr := parsePrivatePEM(pair.PrivatePEM)
		if parseErr != nil {
			return fmt.Errorf("%w: %w", model.ErrKeyMaterialCorrupt, parseErr)
		}
		s.key = key
		s.logger.Info("loaded persisted signing key")
	case errors.Is(err, model.ErrNoSigningKey):
		key, genErr := s.generateAndPersist(ctx)
		if genErr != nil {
			return genErr
		}
		s.key = key
		s.logger.Info("generated new signing key")
	default:
		return fmt.Errorf("reading signing key: %w", err)
	}

	export, err := exportPublicKey(&s.key.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrKeyMaterialCorrupt, err)
	}
	s.publicKey = export
	return nil
}

func (s *Service) generateAndPersist(ctx context.Context) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	pair := &model.SigningKeyPair{
		PrivatePEM: pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: privDER}),
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: pubDER}),
	}
	if err := s.storage.SaveSigningKeyPair(ctx, pair); err != nil {
		return nil, fmt.Errorf("persisting signing key: %w", err)
	}
	return key, nil
}

// Sign produces an ASN.1 ECDSA signature over the SHA-256 digest of the
// payload. Returns ErrSigningUnavailable before Initialize completes.
func (s *Service) Sign(payload []byte) ([]byte, error) {
	s.mu.RLock()
	key := s.key
	s.mu.RUnlock()

	if key == nil {
		return nil, model.ErrSigningUnavailable
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing payload: %w", err)
	}
	return sig, nil
}

// PublicKey returns the cached base64 PKIX export of the public half.
func (s *Service) PublicKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.publicKey == "" {
		return "", model.ErrSigningUnavailable
	}
	return s.publicKey, nil
}

// Verify checks a signature against an exported public key, the same
// check clients perform with the key they fetched out-of-band.
func Verify(publicKey string, payload, signature []byte) (bool, error) {
	der, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("decoding public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return false, fmt.Errorf("parsing public key: %w", err)
	}
	ecKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false, errors.New("public key is not ECDSA")
	}

	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(ecKey, digest[:], signature), nil
}

func parsePrivatePEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privatePEMType {
		return nil, errors.New("no EC private key block")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func exportPublicKey(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
