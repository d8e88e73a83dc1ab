package domain

import "context"

// Ciphertext is an opaque confidential representation of a stake amount.
// The engine never inspects it; it only stores, forwards, and aggregates.
type Ciphertext []byte

// Proof is the opaque validity proof accompanying a ciphertext.
type Proof []byte

// EncryptionContext binds a ciphertext to the market and voter it was
// produced for, so a ciphertext cannot be replayed elsewhere.
type EncryptionContext struct {
	MarketID string
	Voter    string
}

// Enclave is the confidential-computation capability boundary. The engine
// treats encryption, proof checking, and aggregate reveal as external calls
// with their own failure domain; it never implements the primitives and
// never sees an individual plaintext stake -- only the per-option aggregate,
// once, during resolution.
type Enclave interface {
	// Encrypt wraps a plaintext stake for submission. Re-encrypting the same
	// value may yield a different ciphertext; the proof always validates
	// against the same plaintext. Fails with ErrEncodingUnavailable when the
	// service cannot be reached.
	Encrypt(ctx context.Context, plaintext int64, ec EncryptionContext) (Ciphertext, Proof, error)

	// VerifyProof checks that proof validates ciphertext as an encryption of
	// expected under the given context. Returns ErrInvalidProof on a failed
	// check and ErrEncodingUnavailable on a transport failure.
	VerifyProof(ctx context.Context, ct Ciphertext, proof Proof, ec EncryptionContext, expected int64) error

	// RevealAggregate decrypts the sum of the given ciphertexts. Individual
	// values are never exposed. Fails with ErrDecryptionUnavailable when the
	// service cannot be reached.
	RevealAggregate(ctx context.Context, cts []Ciphertext) (int64, error)
}
