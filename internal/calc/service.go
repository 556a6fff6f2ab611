// Package calc implements CalculationService: event valuations, OHLC
// candles, and protocol volume, all derived from PricingService's output.
package calc

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// PeriodStore resolves the period window gap-driven wrappers operate over.
type PeriodStore interface {
	PeriodsInRange(periodType domain.PeriodType, start, end int64) ([]domain.Period, error)
}

// DetailStore is the subset of model.DetailsRepository CalculationService
// needs for event valuation.
type DetailStore interface {
	UnpricedEventsForAsset(asset domain.Address, denom domain.Denomination, start, end int64) ([]modeldb.UnpricedEvent, error)
	InsertEventDetail(tx *sql.Tx, d domain.EventDetail) error
}

// AnalyticsStore is the subset of model.AnalyticsRepository
// CalculationService needs for OHLC candles and protocol volume.
type AnalyticsStore interface {
	HasAssetPrice(periodID domain.PeriodID, asset domain.Address, denom domain.Denomination) (bool, error)
	UpsertAssetPrice(p domain.AssetPrice) error
	UpsertAssetVolume(v domain.AssetVolume) error
	TradePricesInPeriod(asset domain.Address, denom domain.Denomination, start, end int64) ([]float64, float64, error)
	PoolSwapValuesInPeriod(asset domain.Address, denom domain.Denomination, start, end int64) (map[domain.Address]float64, error)
}

// CanonicalPriceSource reads the canonical per-minute price PricingService
// produced, the input calculate_event_valuations prices
// Transfer/Liquidity/Reward/Position legs against.
type CanonicalPriceSource interface {
	CanonicalPrice(asset domain.Address, minute int64, denom domain.Denomination) (domain.PriceVwap, bool, error)
}

// TokenLookup resolves the decimals needed to convert a raw Amount to its
// human-readable value.
type TokenLookup interface {
	GetToken(addr domain.Address) (domain.Token, error)
}

// ProjectLookup resolves the project label a pool belongs to, the
// aggregation key calculate_asset_volume_by_protocol groups by.
type ProjectLookup interface {
	ProjectForPool(addr domain.Address) (string, error)
}

// Config tunes CalculationService's gap-driven wrappers.
type Config struct {
	// GapPeriodType is the resolution update_event_valuations/
	// update_analytics/update_all resolve their period window against.
	GapPeriodType domain.PeriodType
}

// Service is CalculationService.
type Service struct {
	modelDB *sql.DB

	details   DetailStore
	analytics AnalyticsStore
	prices    CanonicalPriceSource
	periods   PeriodStore
	tokens    TokenLookup
	projects  ProjectLookup

	cfg Config
	log zerolog.Logger
}

// NewService builds a CalculationService.
func NewService(modelDB *sql.DB, details DetailStore, analytics AnalyticsStore, prices CanonicalPriceSource, periods PeriodStore, tokens TokenLookup, projects ProjectLookup, cfg Config, log zerolog.Logger) *Service {
	if cfg.GapPeriodType == "" {
		cfg.GapPeriodType = domain.Period5Min
	}
	return &Service{
		modelDB:   modelDB,
		details:   details,
		analytics: analytics,
		prices:    prices,
		periods:   periods,
		tokens:    tokens,
		projects:  projects,
		cfg:       cfg,
		log:       log.With().Str("component", "calculation_service").Logger(),
	}
}

// CalculateEventValuations prices each Transfer/Liquidity/Reward/Position
// leg in periods that lacks an EventDetail for denom, using the canonical
// price at the event's minute.
func (s *Service) CalculateEventValuations(ctx context.Context, periods []domain.Period, asset domain.Address, denom domain.Denomination) (valued, skipped int, err error) {
	token, err := s.tokens.GetToken(asset)
	if err != nil {
		return 0, 0, fmt.Errorf("looking up asset %s: %w", asset, err)
	}

	tx, err := s.modelDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning event valuation transaction: %w", err)
	}
	defer tx.Rollback()

	for _, period := range periods {
		events, err := s.details.UnpricedEventsForAsset(asset, denom, period.TimeOpen, period.TimeClose)
		if err != nil {
			return valued, skipped, fmt.Errorf("querying unpriced events for %s: %w", period.Type, err)
		}
		for _, ev := range events {
			minute := ev.Timestamp - ev.Timestamp%60
			cp, ok, err := s.prices.CanonicalPrice(asset, minute, denom)
			if err != nil {
				return valued, skipped, fmt.Errorf("reading canonical price at %d: %w", minute, err)
			}
			if !ok {
				skipped++
				continue // not yet priced: next scheduled run catches up
			}

			amountHuman := humanAmount(string(ev.Amount), token.Decimals)
			detail := domain.EventDetail{
				ContentID:     ev.ContentID,
				Denomination:  denom,
				Value:         amountHuman * cp.PriceVWAP,
				PricingMethod: domain.PricingMethodCanonical,
			}
			if err := s.details.InsertEventDetail(tx, detail); err != nil {
				return valued, skipped, &apperr.PersistError{Op: "insert_event_detail", Err: err}
			}
			valued++
		}
	}

	if err := tx.Commit(); err != nil {
		return valued, skipped, &apperr.PersistError{Op: "commit_event_valuations", Err: err}
	}
	return valued, skipped, nil
}

// GenerateAssetOHLCCandles builds one OHLC candle per (period,denom)
// lacking one, from that period's DIRECT/GLOBAL TradeDetail prices.
func (s *Service) GenerateAssetOHLCCandles(ctx context.Context, periods []domain.Period, asset domain.Address, denom domain.Denomination) (generated, skipped int, err error) {
	for _, period := range periods {
		periodID := domain.NewPeriodID(period.Type, period.TimeOpen)
		has, err := s.analytics.HasAssetPrice(periodID, asset, denom)
		if err != nil {
			return generated, skipped, fmt.Errorf("checking existing candle for %s: %w", periodID, err)
		}
		if has {
			skipped++
			continue
		}

		prices, _, err := s.analytics.TradePricesInPeriod(asset, denom, period.TimeOpen, period.TimeClose)
		if err != nil {
			return generated, skipped, fmt.Errorf("reading trade prices for %s: %w", periodID, err)
		}
		if len(prices) == 0 {
			skipped++
			continue // no trades in this period: skip silently
		}

		high, low := prices[0], prices[0]
		for _, p := range prices {
			if p > high {
				high = p
			}
			if p < low {
				low = p
			}
		}
		candle := domain.AssetPrice{
			PeriodID: periodID,
			Asset:    asset,
			Denom:    denom,
			Open:     prices[0],
			High:     high,
			Low:      low,
			Close:    prices[len(prices)-1],
		}
		if err := s.analytics.UpsertAssetPrice(candle); err != nil {
			return generated, skipped, &apperr.PersistError{Op: "upsert_asset_price", Err: err}
		}
		generated++
	}
	return generated, skipped, nil
}

// CalculateAssetVolumeByProtocol sums PoolSwapDetail.value per (period,
// denom), grouped by the pool's project, and upserts AssetVolume rows.
func (s *Service) CalculateAssetVolumeByProtocol(ctx context.Context, periods []domain.Period, asset domain.Address, denom domain.Denomination) (int, error) {
	written := 0
	for _, period := range periods {
		periodID := domain.NewPeriodID(period.Type, period.TimeOpen)
		valuesByPool, err := s.analytics.PoolSwapValuesInPeriod(asset, denom, period.TimeOpen, period.TimeClose)
		if err != nil {
			return written, fmt.Errorf("reading swap values for %s: %w", periodID, err)
		}

		byProject := make(map[string]float64)
		for pool, value := range valuesByPool {
			project, err := s.projects.ProjectForPool(pool)
			if err != nil {
				if err == sql.ErrNoRows {
					s.log.Warn().Str("pool", string(pool)).Msg("no contract row for pool, grouping under unknown project")
					project = "unknown"
				} else {
					return written, fmt.Errorf("resolving project for pool %s: %w", pool, err)
				}
			}
			byProject[project] += value
		}

		for project, volume := range byProject {
			v := domain.AssetVolume{PeriodID: periodID, Asset: asset, Denom: denom, Protocol: project, Volume: volume}
			if err := s.analytics.UpsertAssetVolume(v); err != nil {
				return written, &apperr.PersistError{Op: "upsert_asset_volume", Err: err}
			}
			written++
		}
	}
	return written, nil
}

// gapWindow resolves the [start,end) window update_event_valuations/
// update_analytics/update_all operate over: the last `days` of periods at
// cfg.GapPeriodType resolution.
func (s *Service) gapWindow(days int, now int64) (int64, int64) {
	end := now
	start := now - int64(days)*86400
	return start, end
}

// UpdateEventValuations is the gap-driven wrapper around
// CalculateEventValuations.
func (s *Service) UpdateEventValuations(ctx context.Context, asset domain.Address, days int, denom domain.Denomination, now int64) (valued, skipped int, err error) {
	start, end := s.gapWindow(days, now)
	periods, err := s.periods.PeriodsInRange(s.cfg.GapPeriodType, start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving gap window periods: %w", err)
	}
	return s.CalculateEventValuations(ctx, periods, asset, denom)
}

// UpdateAnalytics is the gap-driven wrapper running both OHLC candle
// generation and protocol volume calculation.
func (s *Service) UpdateAnalytics(ctx context.Context, asset domain.Address, days int, denom domain.Denomination, now int64) (generated int, volumeRows int, err error) {
	start, end := s.gapWindow(days, now)
	periods, err := s.periods.PeriodsInRange(s.cfg.GapPeriodType, start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving gap window periods: %w", err)
	}
	generated, _, err = s.GenerateAssetOHLCCandles(ctx, periods, asset, denom)
	if err != nil {
		return generated, 0, err
	}
	volumeRows, err = s.CalculateAssetVolumeByProtocol(ctx, periods, asset, denom)
	return generated, volumeRows, err
}

// UpdateAll runs UpdateEventValuations followed by UpdateAnalytics.
func (s *Service) UpdateAll(ctx context.Context, asset domain.Address, days int, denom domain.Denomination, now int64) error {
	if _, _, err := s.UpdateEventValuations(ctx, asset, days, denom, now); err != nil {
		return fmt.Errorf("update_event_valuations: %w", err)
	}
	if _, _, err := s.UpdateAnalytics(ctx, asset, days, denom, now); err != nil {
		return fmt.Errorf("update_analytics: %w", err)
	}
	return nil
}
