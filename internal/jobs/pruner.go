package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilehub/api/internal/storage"
)

const pruneLockKey = "lock:archive-prune"

// BlobStore is the slice of the object store the pruner needs.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, objectName string) bool
}

// Pruner removes archive copies older than the configured retention. Active
// objects are never touched. Deletes are best-effort; a failed delete is
// retried on the next run.
type Pruner struct {
	store     BlobStore
	retention time.Duration
	locker    *redis.Client
	log       zerolog.Logger
	now       func() time.Time
}

func NewPruner(store BlobStore, retention time.Duration, locker *redis.Client, log zerolog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		locker:    locker,
		log:       log,
		now:       time.Now,
	}
}

// Run prunes expired archive objects and returns how many were removed.
// When multiple instances share a redis, a lock keeps them from racing over
// the same listing.
func (p *Pruner) Run(ctx context.Context) (int, error) {
	if p.locker != nil {
		acquired, err := p.locker.SetNX(ctx, pruneLockKey, "1", 10*time.Minute).Result()
		if err != nil {
			return 0, err
		}
		if !acquired {
			p.log.Debug().Msg("archive prune already running elsewhere")
			return 0, nil
		}
		defer p.locker.Del(context.WithoutCancel(ctx), pruneLockKey)
	}

	names, err := p.store.List(ctx, storage.RootPrefix())
	if err != nil {
		return 0, err
	}

	cutoff := p.now().UTC().Add(-p.retention)
	pruned := 0
	for _, name := range names {
		uploadedAt, ok := storage.ArchiveTimestamp(name)
		if !ok || !uploadedAt.Before(cutoff) {
			continue
		}
		if p.store.Delete(ctx, name) {
			pruned++
		} else {
			p.log.Warn().Str("object", name).Msg("archive prune delete failed")
		}
	}

	p.log.Info().
		Int("pruned", pruned).
		Time("cutoff", cutoff).
		Msg("archive prune finished")
	return pruned, nil
}
