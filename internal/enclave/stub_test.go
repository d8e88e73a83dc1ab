package enclave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

func TestStubEncryptVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewStub(nil)
	ctx := context.Background()
	ec := domain.EncryptionContext{MarketID: "m-1", Voter: "0xabc"}

	ct, proof, err := s.Encrypt(ctx, 10, ec)
	require.NoError(t, err)

	assert.NoError(t, s.VerifyProof(ctx, ct, proof, ec, 10))
}

func TestStubVerifyRejectsWrongContext(t *testing.T) {
	t.Parallel()

	s := NewStub(nil)
	ctx := context.Background()
	ec := domain.EncryptionContext{MarketID: "m-1", Voter: "0xabc"}

	ct, proof, err := s.Encrypt(ctx, 10, ec)
	require.NoError(t, err)

	other := domain.EncryptionContext{MarketID: "m-1", Voter: "0xdef"}
	assert.ErrorIs(t, s.VerifyProof(ctx, ct, proof, other, 10), domain.ErrInvalidProof)
	assert.ErrorIs(t, s.VerifyProof(ctx, ct, proof, ec, 11), domain.ErrInvalidProof)
}

func TestStubCiphertextsAreNotDeterministic(t *testing.T) {
	t.Parallel()

	s := NewStub(nil)
	ctx := context.Background()
	ec := domain.EncryptionContext{MarketID: "m-1", Voter: "0xabc"}

	a, _, err := s.Encrypt(ctx, 10, ec)
	require.NoError(t, err)
	b, _, err := s.Encrypt(ctx, 10, ec)
	require.NoError(t, err)

	// Same plaintext, fresh pad: equal ciphertexts would leak vote timing
	// correlations.
	assert.NotEqual(t, a, b)
}

func TestStubRevealAggregateSums(t *testing.T) {
	t.Parallel()

	s := NewStub(nil)
	ctx := context.Background()

	var cts []domain.Ciphertext
	for i, amount := range []int64{10, 10, 10} {
		ct, _, err := s.Encrypt(ctx, amount, domain.EncryptionContext{MarketID: "m-1", Voter: string(rune('a' + i))})
		require.NoError(t, err)
		cts = append(cts, ct)
	}

	sum, err := s.RevealAggregate(ctx, cts)
	require.NoError(t, err)
	assert.Equal(t, int64(30), sum)
}

func TestStubRevealRejectsMalformedCiphertext(t *testing.T) {
	t.Parallel()

	s := NewStub(nil)

	_, err := s.RevealAggregate(context.Background(), []domain.Ciphertext{{0x01, 0x02}})
	assert.ErrorIs(t, err, domain.ErrDecryptionUnavailable)
}
