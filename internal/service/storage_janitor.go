package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-lms-api/internal/dto"
	"github.com/noah-isme/gema-lms-api/internal/observability"
	"github.com/noah-isme/gema-lms-api/pkg/storage"
)

const defaultDeleteConcurrency = 8

// cleanupBatch pairs a set of keys with the one store that owns them.
type cleanupBatch struct {
	gateway storage.Gateway
	refs    []storage.ObjectRef
}

// storageJanitor issues best-effort physical deletes. Every ref is attempted
// and every outcome is counted; no single failure stops the others.
type storageJanitor struct {
	concurrency int
	logger      zerolog.Logger
}

func newStorageJanitor(concurrency int, logger zerolog.Logger) *storageJanitor {
	if concurrency <= 0 {
		concurrency = defaultDeleteConcurrency
	}
	return &storageJanitor{
		concurrency: concurrency,
		logger:      logger.With().Str("component", "storage_janitor").Logger(),
	}
}

// purge deletes every batch concurrently, one bounded worker group per store.
// It runs detached from the caller's cancellation because the relational
// delete has already committed.
func (j *storageJanitor) purge(ctx context.Context, batches ...cleanupBatch) dto.DeletionReport {
	ctx = context.WithoutCancel(ctx)

	var (
		mu     sync.Mutex
		report = dto.DeletionReport{RelationalDeleteOK: true, Failures: []dto.DeletionFailure{}}
	)

	record := func(store, key string, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err == nil {
			report.FilesDeleted++
			return
		}
		report.FilesFailed++
		report.Failures = append(report.Failures, dto.DeletionFailure{
			Store:  store,
			Key:    key,
			Reason: deleteFailureReason(err),
		})
	}

	var stores errgroup.Group
	for _, batch := range batches {
		if batch.gateway == nil {
			continue
		}
		refs := dedupeRefs(batch.refs)
		report.FilesAttempted += len(refs)

		batch := batch
		stores.Go(func() error {
			store := batch.gateway.Name()

			var workers errgroup.Group
			workers.SetLimit(j.concurrency)
			for _, ref := range refs {
				ref := ref
				workers.Go(func() error {
					err := j.deleteOne(ctx, batch.gateway, ref)
					record(store, ref.Key, err)
					return nil
				})
			}
			return workers.Wait()
		})
	}
	_ = stores.Wait()

	if report.FilesFailed > 0 {
		j.logger.Warn().
			Int("attempted", report.FilesAttempted).
			Int("failed", report.FilesFailed).
			Msg("physical cleanup left orphaned objects")
	}

	return report
}

// deleteOne removes a single object. A key that is already gone counts as deleted.
func (j *storageJanitor) deleteOne(ctx context.Context, gateway storage.Gateway, ref storage.ObjectRef) error {
	store := gateway.Name()
	err := observeStorage(store, "delete", func() error {
		return gateway.Delete(ctx, ref)
	})

	switch {
	case err == nil:
		observability.DeletionFiles().WithLabelValues(store, "deleted").Inc()
		return nil
	case storage.IsNotFound(err):
		observability.DeletionFiles().WithLabelValues(store, "missing").Inc()
		return nil
	default:
		observability.DeletionFiles().WithLabelValues(store, "failed").Inc()
		j.logger.Warn().Err(err).Str("store", store).Str("key", ref.Key).Msg("physical delete failed")
		return err
	}
}

// rollback removes objects uploaded during a request that did not persist them.
func (j *storageJanitor) rollback(ctx context.Context, gateway storage.Gateway, objects []storage.Object) {
	if len(objects) == 0 {
		return
	}
	refs := make([]storage.ObjectRef, 0, len(objects))
	for _, object := range objects {
		refs = append(refs, storage.ObjectRef{Key: object.Key, ExternalID: object.ExternalID})
	}
	report := j.purge(ctx, cleanupBatch{gateway: gateway, refs: refs})
	if report.FilesFailed > 0 {
		j.logger.Error().
			Str("store", gateway.Name()).
			Int("failed", report.FilesFailed).
			Msg("rollback of uploaded objects incomplete")
	}
}

func deleteFailureReason(err error) string {
	var storageErr *storage.Error
	if errors.As(err, &storageErr) && storageErr.Err != nil {
		if errors.Is(storageErr.Err, context.DeadlineExceeded) {
			return "timeout"
		}
		return storageErr.Kind.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return storage.ErrDeleteFailed.Error()
}

func dedupeRefs(refs []storage.ObjectRef) []storage.ObjectRef {
	seen := make(map[string]struct{}, len(refs))
	unique := make([]storage.ObjectRef, 0, len(refs))
	for _, ref := range refs {
		if ref.Key == "" {
			continue
		}
		if _, ok := seen[ref.Key]; ok {
			continue
		}
		seen[ref.Key] = struct{}{}
		unique = append(unique, ref)
	}
	return unique
}

// observeStorage times a gateway call and counts its result.
func observeStorage(store, operation string, call func() error) error {
	start := time.Now()
	err := call()
	observability.StorageLatency().WithLabelValues(store, operation).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.StorageOperations().WithLabelValues(store, operation, result).Inc()
	return err
}
