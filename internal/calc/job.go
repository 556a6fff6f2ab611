package calc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// JobConfig tunes the scheduled derivation sweep's lookback window.
type JobConfig struct {
	Days          int
	Denominations []domain.Denomination
}

func (c JobConfig) withDefaults() JobConfig {
	if c.Days <= 0 {
		c.Days = 7
	}
	if len(c.Denominations) == 0 {
		c.Denominations = []domain.Denomination{domain.DenomAVAX, domain.DenomUSD}
	}
	return c
}

// Job runs CalculationService.UpdateAll for every
// tracked asset on a cron trigger, implementing schedule.Job.
type Job struct {
	svc    *Service
	assets []domain.Address
	cfg    JobConfig
	log    zerolog.Logger
}

// NewJob builds a scheduled derivation sweep over assets.
func NewJob(svc *Service, assets []domain.Address, cfg JobConfig, log zerolog.Logger) *Job {
	return &Job{svc: svc, assets: assets, cfg: cfg.withDefaults(), log: log.With().Str("job", "calculation_sweep").Logger()}
}

// Name identifies this job in scheduler logs.
func (j *Job) Name() string { return "calculation_sweep" }

// Run executes update_all for every tracked asset and denomination.
func (j *Job) Run() error {
	ctx := context.Background()
	now := time.Now().Unix()
	for _, asset := range j.assets {
		for _, denom := range j.cfg.Denominations {
			if err := j.svc.UpdateAll(ctx, asset, j.cfg.Days, denom, now); err != nil {
				j.log.Error().Err(err).Str("asset", string(asset)).Str("denom", string(denom)).Msg("update_all failed")
			}
		}
	}
	return nil
}
