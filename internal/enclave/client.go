// Package enclave talks to the external confidential-computation gateway.
// The engine never implements the cryptographic primitives; it encrypts
// stakes, verifies proofs, and reveals per-option aggregates through this
// boundary, and only ever sees aggregate plaintexts.
package enclave

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// Client is the REST client for the confidential-computation gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL is the gateway root, e.g.
// "https://fhe-gateway.internal:8443". Timeouts surface as the boundary
// errors domain.ErrEncodingUnavailable / domain.ErrDecryptionUnavailable so
// callers retry instead of misreading them as outcomes.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type encryptRequest struct {
	Plaintext int64  `json:"plaintext"`
	MarketID  string `json:"market_id"`
	Voter     string `json:"voter"`
}

type encryptResponse struct {
	Ciphertext string `json:"ciphertext"` // base64
	Proof      string `json:"proof"`      // base64
}

// Encrypt wraps a plaintext stake into a ciphertext and validity proof.
func (c *Client) Encrypt(ctx context.Context, plaintext int64, ec domain.EncryptionContext) (domain.Ciphertext, domain.Proof, error) {
	req := encryptRequest{Plaintext: plaintext, MarketID: ec.MarketID, Voter: ec.Voter}

	var resp encryptResponse
	if err := c.doPost(ctx, "/v1/encrypt", req, &resp); err != nil {
		return nil, nil, fmt.Errorf("enclave: encrypt: %w", errors.Join(domain.ErrEncodingUnavailable, err))
	}

	ct, err := base64.StdEncoding.DecodeString(resp.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("enclave: decode ciphertext: %w", err)
	}
	proof, err := base64.StdEncoding.DecodeString(resp.Proof)
	if err != nil {
		return nil, nil, fmt.Errorf("enclave: decode proof: %w", err)
	}
	return ct, proof, nil
}

type verifyRequest struct {
	Ciphertext string `json:"ciphertext"`
	Proof      string `json:"proof"`
	MarketID   string `json:"market_id"`
	Voter      string `json:"voter"`
	Expected   int64  `json:"expected"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// VerifyProof checks a ciphertext's validity proof against the expected
// plaintext under the given context.
func (c *Client) VerifyProof(ctx context.Context, ct domain.Ciphertext, proof domain.Proof, ec domain.EncryptionContext, expected int64) error {
	req := verifyRequest{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		Proof:      base64.StdEncoding.EncodeToString(proof),
		MarketID:   ec.MarketID,
		Voter:      ec.Voter,
		Expected:   expected,
	}

	var resp verifyResponse
	if err := c.doPost(ctx, "/v1/verify", req, &resp); err != nil {
		return fmt.Errorf("enclave: verify: %w", errors.Join(domain.ErrEncodingUnavailable, err))
	}
	if !resp.Valid {
		return domain.ErrInvalidProof
	}
	return nil
}

type revealRequest struct {
	Ciphertexts []string `json:"ciphertexts"`
}

type revealResponse struct {
	Sum int64 `json:"sum"`
}

// RevealAggregate decrypts the sum of the given ciphertexts. The gateway
// refuses single-value reveals smaller than its anonymity threshold; the
// engine only ever asks for full per-option aggregates.
func (c *Client) RevealAggregate(ctx context.Context, cts []domain.Ciphertext) (int64, error) {
	req := revealRequest{Ciphertexts: make([]string, len(cts))}
	for i, ct := range cts {
		req.Ciphertexts[i] = base64.StdEncoding.EncodeToString(ct)
	}

	var resp revealResponse
	if err := c.doPost(ctx, "/v1/reveal", req, &resp); err != nil {
		return 0, fmt.Errorf("enclave: reveal aggregate: %w", errors.Join(domain.ErrDecryptionUnavailable, err))
	}
	return resp.Sum, nil
}

func (c *Client) doPost(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Enclave = (*Client)(nil)
