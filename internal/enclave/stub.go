package enclave

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// Stub is a local stand-in for the confidential-computation gateway, used by
// dev mode and tests. Ciphertexts carry the plaintext XORed with a random
// pad plus the pad itself, so re-encryption of the same value yields a
// different ciphertext, and the proof is an HMAC binding ciphertext,
// context, and plaintext. It provides none of the real scheme's secrecy and
// must never back a production deployment.
type Stub struct {
	key []byte
}

// NewStub creates a Stub with the given HMAC key. An empty key gets a fixed
// default, convenient for tests.
func NewStub(key []byte) *Stub {
	if len(key) == 0 {
		key = []byte("convictiond-dev-enclave")
	}
	return &Stub{key: key}
}

const stubCiphertextLen = 16 // 8-byte pad || 8-byte masked value

// Encrypt wraps plaintext into a pad-masked ciphertext plus an HMAC proof.
func (s *Stub) Encrypt(_ context.Context, plaintext int64, ec domain.EncryptionContext) (domain.Ciphertext, domain.Proof, error) {
	ct := make([]byte, stubCiphertextLen)
	if _, err := rand.Read(ct[:8]); err != nil {
		return nil, nil, fmt.Errorf("enclave stub: pad: %w", err)
	}
	pad := binary.BigEndian.Uint64(ct[:8])
	binary.BigEndian.PutUint64(ct[8:], uint64(plaintext)^pad)

	return ct, s.proof(ct, ec, plaintext), nil
}

// VerifyProof recomputes the HMAC and checks the ciphertext decodes to the
// expected plaintext.
func (s *Stub) VerifyProof(_ context.Context, ct domain.Ciphertext, proof domain.Proof, ec domain.EncryptionContext, expected int64) error {
	if len(ct) != stubCiphertextLen {
		return domain.ErrInvalidProof
	}
	if !hmac.Equal(proof, s.proof(ct, ec, expected)) {
		return domain.ErrInvalidProof
	}
	return nil
}

// RevealAggregate sums the masked values. Individual plaintexts are decoded
// internally, mirroring what the real gateway does inside its trust domain.
func (s *Stub) RevealAggregate(_ context.Context, cts []domain.Ciphertext) (int64, error) {
	var sum int64
	for _, ct := range cts {
		if len(ct) != stubCiphertextLen {
			return 0, fmt.Errorf("enclave stub: malformed ciphertext: %w", domain.ErrDecryptionUnavailable)
		}
		pad := binary.BigEndian.Uint64(ct[:8])
		sum += int64(binary.BigEndian.Uint64(ct[8:]) ^ pad)
	}
	return sum, nil
}

func (s *Stub) proof(ct domain.Ciphertext, ec domain.EncryptionContext, plaintext int64) domain.Proof {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(ct)
	mac.Write([]byte(ec.MarketID))
	mac.Write([]byte(ec.Voter))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(plaintext))
	mac.Write(buf[:])
	return mac.Sum(nil)
}

// Compile-time interface check.
var _ domain.Enclave = (*Stub)(nil)
