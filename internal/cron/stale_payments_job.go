package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/learnhub-backend/pkg/logger"
)

const (
	defaultStaleAfter = 24 * time.Hour
	defaultStaleBatch = 100
)

type staleExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type StalePaymentsJobParams struct {
	Logger     *logger.Logger
	Expirer    staleExpirer
	StaleAfter time.Duration
	BatchSize  int
}

// NewStalePaymentsJob fails created payments nobody paid for within
// StaleAfter. It drains in batches until a short batch comes back.
func NewStalePaymentsJob(params StalePaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("payment expirer required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &stalePaymentsJob{
		logg:       params.Logger,
		expirer:    params.Expirer,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type stalePaymentsJob struct {
	logg       *logger.Logger
	expirer    staleExpirer
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *stalePaymentsJob) Name() string { return "stale-payments" }

func (j *stalePaymentsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	total := 0
	for {
		n, err := j.expirer.ExpireStale(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("expire stale payments: %w", err)
		}
		if n < j.batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": total,
	}), "stale payments expired")
	return nil
}
