package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/rajlabs/tallybridge/internal/backend"
	"github.com/rajlabs/tallybridge/internal/record"
)

// DefaultBatchSize is the number of records per upload batch.
const DefaultBatchSize = 100

// BatchError reports the batch at which an upload aborted. Batches after
// the failing one are never submitted; the whole pass is retried on the
// next cycle, which is safe because the backend upserts by key.
type BatchError struct {
	// Batch is the 1-based index of the failed batch.
	Batch int
	// Batches is the total number of batches in the upload.
	Batches int
	// Status is the HTTP status of the rejection, 0 for transport errors.
	Status int
	// Err is the underlying error.
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upload failed at batch %d/%d: %v", e.Batch, e.Batches, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// UploadClient is the slice of the backend client the uploader needs.
type UploadClient interface {
	UploadBatch(ctx context.Context, companyID string, clients any) (backend.BatchSummary, error)
}

// Uploader pushes records to the backend in fixed-size sequential batches.
// Sequential by design: failure attribution stays simple and the backend is
// never hammered with parallel bulk inserts.
type Uploader struct {
	client    UploadClient
	companyID string
	batchSize int
	logger    *log.Logger
}

// NewUploader creates an uploader for one company. A batchSize <= 0 falls
// back to DefaultBatchSize.
func NewUploader(client UploadClient, companyID string, batchSize int, logger *log.Logger) *Uploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[upload] ", log.LstdFlags)
	}
	return &Uploader{
		client:    client,
		companyID: companyID,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Upload sends records in ceil(n/batchSize) contiguous batches, in order.
//
// An empty input returns a zero summary without any network call. Any batch
// failure aborts the remaining batches and returns a *BatchError; the
// partial summary accumulated so far is returned alongside it for logging,
// but callers must treat the pass as failed and must not persist the
// snapshot.
func (u *Uploader) Upload(ctx context.Context, records []record.Record) (backend.BatchSummary, error) {
	var summary backend.BatchSummary
	if len(records) == 0 {
		return summary, nil
	}

	batches := (len(records) + u.batchSize - 1) / u.batchSize
	u.logger.Printf("Uploading %d records in %d batches (batch size %d)",
		len(records), batches, u.batchSize)

	for i := 0; i < batches; i++ {
		start := i * u.batchSize
		end := min(start+u.batchSize, len(records))

		payloads := make([]record.UploadPayload, 0, end-start)
		for j := start; j < end; j++ {
			payloads = append(payloads, records[j].ForUpload())
		}

		batchSummary, err := u.client.UploadBatch(ctx, u.companyID, payloads)
		if err != nil {
			var statusErr *backend.StatusError
			status := 0
			if errors.As(err, &statusErr) {
				status = statusErr.Status
			}
			return summary, &BatchError{Batch: i + 1, Batches: batches, Status: status, Err: err}
		}

		summary.Add(batchSummary)
		u.logger.Printf("Batch %d/%d: new=%d updated=%d failed=%d",
			i+1, batches, batchSummary.New, batchSummary.Updated, batchSummary.Failed)
	}

	return summary, nil
}
