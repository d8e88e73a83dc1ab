package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/convictiond/internal/domain"
)

// settlementReport is the archived record of one resolution: everything an
// auditor needs to recompute entitlements without touching the live ledger.
type settlementReport struct {
	MarketID   string          `json:"market_id"`
	Creator    string          `json:"creator"`
	MinStake   int64           `json:"min_stake"`
	PrizePool  int64           `json:"prize_pool"`
	Outcome    *domain.Outcome `json:"outcome"`
	Tally      *domain.Tally   `json:"tally"`
	ExpiresAt  time.Time       `json:"expires_at"`
	ResolvedAt *time.Time      `json:"resolved_at"`
	ResolvedBy string          `json:"resolved_by"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// Archiver writes settlement reports to the configured bucket.
type Archiver struct {
	client *s3.Client
	bucket string
}

// NewArchiver creates an Archiver backed by the given Client.
func NewArchiver(c *Client) *Archiver {
	return &Archiver{
		client: c.s3,
		bucket: c.bucket,
	}
}

// reportKey shards reports by resolution date for easy lifecycle policies.
func reportKey(m domain.Market) string {
	day := time.Now().UTC()
	if m.ResolvedAt != nil {
		day = m.ResolvedAt.UTC()
	}
	return fmt.Sprintf("settlements/%s/%s.json", day.Format("2006/01/02"), m.ID)
}

// ArchiveResolution uploads the settlement report for a resolved market as a
// single PutObject.
func (a *Archiver) ArchiveResolution(ctx context.Context, m domain.Market) error {
	report := settlementReport{
		MarketID:   m.ID,
		Creator:    m.Creator,
		MinStake:   m.MinStake,
		PrizePool:  m.PrizePool,
		Outcome:    m.Outcome,
		Tally:      m.Tally,
		ExpiresAt:  m.ExpiresAt,
		ResolvedAt: m.ResolvedAt,
		ResolvedBy: m.ResolvedBy,
		ArchivedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement report %s: %w", m.ID, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(reportKey(m)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put settlement report %s: %w", m.ID, err)
	}
	return nil
}
