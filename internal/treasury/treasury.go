package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// Treasury implements domain.Treasury by signing payout vouchers and
// submitting them to a relayer, which executes the on-chain transfer.
type Treasury struct {
	signer     *Signer
	relayerURL string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	nonce uint64
}

// New creates a Treasury submitting vouchers to the relayer at relayerURL.
func New(signer *Signer, relayerURL string, timeout time.Duration, logger *slog.Logger) *Treasury {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Treasury{
		signer:     signer,
		relayerURL: relayerURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "treasury")),
		nonce:      uint64(time.Now().UnixNano()),
	}
}

type relayResponse struct {
	TxHash string `json:"tx_hash"`
}

// Transfer signs a payout voucher for recipient and submits it. The returned
// reference is the relayer's transaction hash.
func (t *Treasury) Transfer(ctx context.Context, recipient string, amount int64, memo string) (string, error) {
	t.mu.Lock()
	t.nonce++
	nonce := t.nonce
	t.mu.Unlock()

	v := PayoutVoucher{
		Recipient: recipient,
		Amount:    strconv.FormatInt(amount, 10),
		Memo:      memo,
		Nonce:     strconv.FormatUint(nonce, 10),
	}
	if err := t.signer.Sign(&v); err != nil {
		return "", fmt.Errorf("treasury: sign voucher: %w", err)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("treasury: marshal voucher: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.relayerURL+"/v1/payouts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("treasury: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("treasury: submit voucher: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("treasury: read relayer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("treasury: relayer status %d: %s", resp.StatusCode, string(body))
	}

	var rr relayResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", fmt.Errorf("treasury: decode relayer response: %w", err)
	}

	t.logger.InfoContext(ctx, "payout submitted",
		slog.String("recipient", recipient),
		slog.Int64("amount", amount),
		slog.String("tx_hash", rr.TxHash),
	)
	return rr.TxHash, nil
}

// Nop is a no-op treasury for dev mode: it records nothing and reports every
// transfer as settled.
type Nop struct{}

// Transfer acknowledges the payment without moving value.
func (Nop) Transfer(_ context.Context, recipient string, amount int64, memo string) (string, error) {
	return fmt.Sprintf("nop:%s:%d", recipient, amount), nil
}

// Compile-time interface checks.
var (
	_ domain.Treasury = (*Treasury)(nil)
	_ domain.Treasury = Nop{}
)
