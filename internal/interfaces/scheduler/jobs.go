package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"nivesh/internal/domain/batch"
	"nivesh/internal/domain/consent"
	"nivesh/internal/domain/ingestion"
)

const batchRetryLimit = 100

// ConsentPollJob polls the provider for the status of one PENDING consent.
// It covers the case where the status webhook never arrived.
type ConsentPollJob struct {
	handle   string
	consents *consent.Service
}

func NewConsentPollJob(handle string, consents *consent.Service) *ConsentPollJob {
	return &ConsentPollJob{handle: handle, consents: consents}
}

func (j *ConsentPollJob) Execute(ctx context.Context) error {
	c, err := j.consents.PollStatus(ctx, j.handle)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}
	if c.Status != consent.StatusPending {
		log.Printf("Consent %s resolved to %s via poll", j.handle, c.Status)
	}
	return nil
}

func (j *ConsentPollJob) Ref() string { return j.handle }

func (j *ConsentPollJob) Description() string { return "consent status poll" }

// BatchRetryJob reprocesses one stored ingestion batch. Idempotency keys make
// the retry safe: records already ingested dedupe instead of duplicating.
type BatchRetryJob struct {
	batch    *batch.Batch
	ingestor *ingestion.Service
}

func NewBatchRetryJob(b *batch.Batch, ingestor *ingestion.Service) *BatchRetryJob {
	return &BatchRetryJob{batch: b, ingestor: ingestor}
}

func (j *BatchRetryJob) Execute(ctx context.Context) error {
	result, err := j.ingestor.ProcessBatch(ctx, j.batch)
	if errors.Is(err, ingestion.ErrConsentUnresolved) {
		// Still no matching consent; leave the batch for the next run.
		log.Printf("Batch %s still waiting on consent %q", j.batch.ID, j.batch.ConsentHandle)
		return nil
	}
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	if !result.Success() {
		return fmt.Errorf("retry completed with %d record errors", len(result.Errors))
	}
	return nil
}

func (j *BatchRetryJob) Ref() string { return j.batch.ID }

func (j *BatchRetryJob) Description() string { return "ingestion batch retry" }

// NewJobProvider builds the scheduler's job list: a status poll for every
// consent stuck in PENDING past the cutoff, plus a retry for every batch left
// READY or FAILED.
func NewJobProvider(
	consents *consent.Service,
	batches batch.Repository,
	ingestor *ingestion.Service,
	consentPollAfter time.Duration,
) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		var jobs []Job

		cutoff := time.Now().UTC().Add(-consentPollAfter)
		pending, err := consents.ListPendingOlderThan(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending consents: %w", err)
		}
		for _, c := range pending {
			jobs = append(jobs, NewConsentPollJob(c.Handle, consents))
		}

		for _, status := range []batch.Status{batch.StatusReady, batch.StatusFailed} {
			stale, err := batches.ListByStatus(ctx, status, batchRetryLimit)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s batches: %w", status, err)
			}
			for _, b := range stale {
				jobs = append(jobs, NewBatchRetryJob(b, ingestor))
			}
		}

		return jobs, nil
	}
}
