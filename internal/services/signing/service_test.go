package signing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/storage/memory"
	"github.com/arcadelink/relay/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.service = New(s.storage, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) TestSignBeforeInitialize() {
	_, err := s.service.Sign([]byte("payload"))
	s.ErrorIs(err, model.ErrSigningUnavailable)

	_, err = s.service.PublicKey()
	s.ErrorIs(err, model.ErrSigningUnavailable)
}

func (s *ServiceSuite) TestInitializeGeneratesAndPersists() {
	s.Require().NoError(s.service.Initialize(s.ctx))

	pair, err := s.storage.GetSigningKeyPair(s.ctx)
	s.Require().NoError(err)
	s.Contains(string(pair.PrivatePEM), "EC PRIVATE KEY")
	s.Contains(string(pair.PublicPEM), "PUBLIC KEY")
}

func (s *ServiceSuite) TestInitializeLoadsPersistedKey() {
	s.Require().NoError(s.service.Initialize(s.ctx))
	firstExport, err := s.service.PublicKey()
	s.Require().NoError(err)

	// A second service over the same storage must load, not regenerate.
	other := New(s.storage, testutil.NopLogger())
	s.Require().NoError(other.Initialize(s.ctx))
	secondExport, err := other.PublicKey()
	s.Require().NoError(err)

	s.Equal(firstExport, secondExport)
}

func (s *ServiceSuite) TestInitializeFailsOnCorruptKey() {
	s.Require().NoError(s.storage.SaveSigningKeyPair(s.ctx, &model.SigningKeyPair{
		PrivatePEM: []byte("garbage, not PEM"),
		PublicPEM:  []byte("garbage"),
	}))

	err := s.service.Initialize(s.ctx)
	s.ErrorIs(err, model.ErrKeyMaterialCorrupt)
}

func (s *ServiceSuite) TestSignatureRoundTrip() {
	s.Require().NoError(s.service.Initialize(s.ctx))

	payload := []byte("hello relay")
	sig, err := s.service.Sign(payload)
	s.Require().NoError(err)

	export, err := s.service.PublicKey()
	s.Require().NoError(err)

	ok, err := Verify(export, payload, sig)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestVerifyFailsOnTamperedPayload() {
	s.Require().NoError(s.service.Initialize(s.ctx))

	payload := []byte("hello relay")
	sig, err := s.service.Sign(payload)
	s.Require().NoError(err)
	export, _ := s.service.PublicKey()

	// Flip a single bit of the payload.
	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0x01
	ok, err := Verify(export, tampered, sig)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestVerifyFailsOnTamperedSignature() {
	s.Require().NoError(s.service.Initialize(s.ctx))

	payload := []byte("hello relay")
	sig, err := s.service.Sign(payload)
	s.Require().NoError(err)
	export, _ := s.service.PublicKey()

	tampered := append([]byte(nil), sig...)
	tampered[len(tampered)-1] ^= 0x01
	ok, _ := Verify(export, payload, tampered)
	s.False(ok)
}

func (s *ServiceSuite) TestPublicKeyIsStable() {
	s.Require().NoError(s.service.Initialize(s.ctx))

	first, err := s.service.PublicKey()
	s.Require().NoError(err)
	second, err := s.service.PublicKey()
	s.Require().NoError(err)
	s.Equal(first, second)
}
