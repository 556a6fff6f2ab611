package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// BlockFrontier resolves the highest block already indexed, the upper
// bound ApplyCanonicalPricingToGlobalEvents sweeps up to each run.
type BlockFrontier interface {
	HighestProcessedBlock() (blockNumber uint64, ok bool, err error)
}

// JobConfig tunes the scheduled sweep's lookback window.
type JobConfig struct {
	// SinceDays bounds CalculateSwapPricing/CalculateTradePricing's scan
	// of unpriced events.
	SinceDays int
	// BackfillBlocks bounds the block range ApplyCanonicalPricingToGlobalEvents
	// sweeps on each run, trailing the current frontier.
	BackfillBlocks uint64
	// VWAPLookbackMinutes bounds how many trailing minutes
	// GenerateCanonicalPrices recomputes on each run.
	VWAPLookbackMinutes int64
	Denominations       []domain.Denomination
}

func (c JobConfig) withDefaults() JobConfig {
	if c.SinceDays <= 0 {
		c.SinceDays = 7
	}
	if c.BackfillBlocks == 0 {
		c.BackfillBlocks = 5000
	}
	if c.VWAPLookbackMinutes <= 0 {
		c.VWAPLookbackMinutes = 15
	}
	if len(c.Denominations) == 0 {
		c.Denominations = []domain.Denomination{domain.DenomAVAX, domain.DenomUSD}
	}
	return c
}

// Job runs PricingService's five phases for every
// tracked asset on a cron trigger, implementing schedule.Job.
type Job struct {
	svc    *Service
	assets []domain.Address
	blocks BlockFrontier
	cfg    JobConfig
	log    zerolog.Logger
}

// NewJob builds a scheduled pricing sweep over assets.
func NewJob(svc *Service, assets []domain.Address, blocks BlockFrontier, cfg JobConfig, log zerolog.Logger) *Job {
	return &Job{svc: svc, assets: assets, blocks: blocks, cfg: cfg.withDefaults(), log: log.With().Str("job", "pricing_sweep").Logger()}
}

// Name identifies this job in scheduler logs.
func (j *Job) Name() string { return "pricing_sweep" }

// Run executes P0-P4 in dependency order for every tracked asset (spec
// §4.9 "P2 before P4 for a given minute; P3 before P4 always").
func (j *Job) Run() error {
	ctx := context.Background()
	now := time.Now().Unix()

	periodTypes := []domain.PeriodType{domain.Period1Min, domain.Period5Min, domain.Period1Hr, domain.Period4Hr, domain.Period1Day}
	if err := j.svc.UpdatePeriods(ctx, periodTypes, now); err != nil {
		return fmt.Errorf("update_periods_to_present: %w", err)
	}
	if _, err := j.svc.UpdateBlockPrices(ctx, now); err != nil {
		return fmt.Errorf("update_minute_prices_to_present: %w", err)
	}

	floorNow := now - now%60
	minutes := make([]int64, 0, j.cfg.VWAPLookbackMinutes)
	for m := floorNow - (j.cfg.VWAPLookbackMinutes-1)*60; m <= floorNow; m += 60 {
		minutes = append(minutes, m)
	}

	var startBlock, endBlock uint64
	if j.blocks != nil {
		if tip, ok, err := j.blocks.HighestProcessedBlock(); err == nil && ok {
			endBlock = tip
			if tip > j.cfg.BackfillBlocks {
				startBlock = tip - j.cfg.BackfillBlocks
			}
		}
	}

	for _, asset := range j.assets {
		if _, _, err := j.svc.CalculateSwapPricing(ctx, asset, j.cfg.SinceDays); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("calculate_swap_pricing failed")
		}
		if _, _, err := j.svc.CalculateTradePricing(ctx, asset, j.cfg.SinceDays); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("calculate_trade_pricing failed")
		}
		if err := j.svc.GenerateCanonicalPrices(ctx, minutes, asset, j.cfg.Denominations); err != nil {
			j.log.Error().Err(err).Str("asset", string(asset)).Msg("generate_canonical_prices failed")
		}
		if endBlock > 0 {
			if _, _, err := j.svc.ApplyCanonicalPricingToGlobalEvents(ctx, startBlock, endBlock, asset, j.cfg.Denominations); err != nil {
				j.log.Error().Err(err).Str("asset", string(asset)).Msg("apply_canonical_pricing_to_global_events failed")
			}
		}
	}
	return nil
}
