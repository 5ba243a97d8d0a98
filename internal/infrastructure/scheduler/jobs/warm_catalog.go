package jobs

import (
	"context"
	"fmt"

	"github.com/learnhub/learnhub/pkg/logger"
)

// CatalogWarmer reloads the achievement catalog into the cache.
// redis.CatalogCache implements it.
type CatalogWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// WarmCatalogJob keeps the cached achievement catalog fresh so API reads
// rarely fall through to Postgres.
type WarmCatalogJob struct {
	cache CatalogWarmer
	log   *logger.Logger
}

// NewWarmCatalogJob creates the job.
func NewWarmCatalogJob(cache CatalogWarmer, log *logger.Logger) *WarmCatalogJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmCatalogJob{cache: cache, log: log}
}

// Name implements scheduler.Job.
func (j *WarmCatalogJob) Name() string { return "warm_catalog_cache" }

// Description implements scheduler.Job.
func (j *WarmCatalogJob) Description() string {
	return "Reload the achievement catalog into Redis"
}

// Run implements scheduler.Job.
func (j *WarmCatalogJob) Run(ctx context.Context) error {
	n, err := j.cache.Warm(ctx)
	if err != nil {
		return fmt.Errorf("warm_catalog_cache: %w", err)
	}
	j.log.Debug("achievement catalog cached", logger.Int("entries", n))
	return nil
}
