// Package worker processes archive upload jobs: spooled segments are read
// from disk, uploaded to S3, and removed.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aura-stream/relay/pkg/queue"
	"github.com/aura-stream/relay/pkg/storage"
)

// Uploader is the subset of the S3 client the processor needs.
type Uploader interface {
	ArchiveBucket() string
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error)
}

// ArchiveProcessor uploads spooled segments to S3 and deletes the spool
// files.
type ArchiveProcessor struct {
	s3     Uploader
	queue  *queue.Queue
	logger *zap.Logger
}

// NewArchiveProcessor creates an archive upload processor.
func NewArchiveProcessor(s3 Uploader, q *queue.Queue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{s3: s3, queue: q, logger: logger}
}

// Process executes one archive upload job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeArchiveUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ArchiveUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	file, err := os.Open(payload.Path)
	if err != nil {
		return fmt.Errorf("open spooled segment: %w", err)
	}
	defer file.Close()

	key := storage.ArchiveKey(payload.RoomKey, payload.Sequence)
	url, err := p.s3.Upload(ctx, p.s3.ArchiveBucket(), key, "video/webm", file)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := os.Remove(payload.Path); err != nil {
		// Upload succeeded; a leftover spool file is not worth a retry.
		p.logger.Warn("remove spooled segment", zap.String("path", payload.Path), zap.Error(err))
	}

	p.logger.Info("segment archived",
		zap.String("room", payload.RoomKey),
		zap.Int("sequence", payload.Sequence),
		zap.String("url", url))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
