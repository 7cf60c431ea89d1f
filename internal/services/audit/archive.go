package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Record is one accepted receipt together with the mint authorization it
// produced.
type Record struct {
	Provider      string          `json:"provider"`
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	ToAddress     string          `json:"to_address"`
	Contract      string          `json:"contract"`
	Amount        string          `json:"amount"`
	MintResponse  json.RawMessage `json:"mint_response,omitempty"`
	AcceptedAt    time.Time       `json:"accepted_at"`
}

// Service archives accepted receipts to object storage, one JSON object per
// mint. Archiving is best effort; failures are logged by the caller's logger
// here and never fail the request.
type Service struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewService(client *minio.Client, bucket string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, bucket: bucket, logger: logger}
}

func (s *Service) ArchiveMint(ctx context.Context, record Record) error {
	if s.client == nil || s.bucket == "" {
		return nil
	}
	if record.Provider == "" || record.TransactionID == "" {
		return fmt.Errorf("invalid archive record")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	object := fmt.Sprintf("receipts/%s/%s.json", record.Provider, record.TransactionID)
	_, err = s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		s.logger.Warn("archive receipt failed",
			zap.String("object", object),
			zap.Error(err),
		)
		return fmt.Errorf("put archive object: %w", err)
	}

	return nil
}
