// Package pricing implements PricingService, the five-phase state machine
// that turns raw swaps/trades into priced details and canonical per-minute
// prices.
package pricing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/chain"
	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// periodDurations maps each tiled resolution to its length in seconds.
var periodDurations = map[domain.PeriodType]int64{
	domain.Period1Min: 60,
	domain.Period5Min: 300,
	domain.Period1Hr:  3600,
	domain.Period4Hr:  14400,
	domain.Period1Day: 86400,
}

// PeriodStore is the subset of shared.PricingRepository PricingService
// needs for P0/P1/P3 upkeep.
type PeriodStore interface {
	LastPeriod(periodType domain.PeriodType) (domain.Period, bool, error)
	InsertPeriod(p domain.Period) error
	LastBlockPrice() (domain.BlockPrice, bool, error)
	InsertBlockPrice(bp domain.BlockPrice) error
	CanonicalPrice(asset domain.Address, minute int64, denom domain.Denomination) (domain.PriceVwap, bool, error)
	UpsertCanonicalPrice(pv domain.PriceVwap) error
	PricingPoolsForAsset(asset domain.Address, asOf int64) ([]domain.Address, error)
}

// DetailStore is the subset of model.DetailsRepository PricingService
// needs for P2/P4.
type DetailStore interface {
	UnpricedSwapsForAsset(asset domain.Address, sinceDays int) ([]modeldb.UnpricedSwap, error)
	UnpricedTradesForAsset(asset domain.Address, sinceDays int) ([]modeldb.UnpricedTrade, error)
	UnpricedSwapsInBlockRange(asset domain.Address, denom domain.Denomination, startBlock, endBlock uint64) ([]modeldb.UnpricedSwap, error)
	UnpricedTradesInBlockRange(asset domain.Address, denom domain.Denomination, startBlock, endBlock uint64) ([]modeldb.UnpricedTrade, error)
	SwapDetailsForTrade(tradeID domain.ContentID, denom domain.Denomination) ([]domain.PoolSwapDetail, error)
	PoolSwapDetailsInPoolsAtMinute(pools []domain.Address, minute int64, denom domain.Denomination) (modeldb.CanonicalMinuteInputs, error)
	InsertPoolSwapDetail(tx *sql.Tx, d domain.PoolSwapDetail) error
	InsertTradeDetail(tx *sql.Tx, d domain.TradeDetail) error
}

// TokenLookup resolves global token metadata (decimals, stable/native
// classification) needed to convert raw amounts into priced values.
type TokenLookup interface {
	GetToken(addr domain.Address) (domain.Token, error)
}

// ChainHeaders resolves block numbers and timestamps for period/block-price
// upkeep.
type ChainHeaders interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number uint64) (chain.Header, error)
}

// Oracle reads a Chainlink-like AVAX/USD feed.
type Oracle interface {
	RoundDataAt(ctx context.Context, blockNumber uint64) (priceUSD float64, roundID string, updatedAt int64, err error)
}

// Config tunes PricingService's tunable behaviour.
type Config struct {
	// WrappedNative is the WAVAX address: a swap's counter-asset being
	// this address means it prices DIRECT_AVAX.
	WrappedNative domain.Address
	// StableTokenType is the Token.Type value identifying USD stablecoins.
	StableTokenType string
	// AvgBlockSeconds estimates block number from elapsed time when no
	// binary search over headers is warranted; Avalanche C-chain averages ~2s per block.
	AvgBlockSeconds int64
	// VWAPWindowMinutes is the trailing window width for canonical
	// pricing; fixed at 5.
	VWAPWindowMinutes int64
}

// Service is PricingService.
type Service struct {
	modelDB *sql.DB

	periods PeriodStore
	details DetailStore
	tokens  TokenLookup
	headers ChainHeaders
	oracle  Oracle

	cfg Config
	log zerolog.Logger
}

// NewService builds a PricingService. modelDB is used to scope the write
// transaction each P2/P4 batch runs inside.
func NewService(modelDB *sql.DB, periods PeriodStore, details DetailStore, tokens TokenLookup, headers ChainHeaders, oracle Oracle, cfg Config, log zerolog.Logger) *Service {
	if cfg.VWAPWindowMinutes == 0 {
		cfg.VWAPWindowMinutes = 5
	}
	if cfg.AvgBlockSeconds == 0 {
		cfg.AvgBlockSeconds = 2
	}
	return &Service{
		modelDB: modelDB,
		periods: periods,
		details: details,
		tokens:  tokens,
		headers: headers,
		oracle:  oracle,
		cfg:     cfg,
		log:     log.With().Str("component", "pricing_service").Logger(),
	}
}

// estimateBlock approximates the block number at targetTS given a known
// (header.Number, header.Timestamp) anchor and the configured average
// block time. This is an estimate, not an exact reverse index — adequate
// for reference pricing, not for settlement.
func (s *Service) estimateBlock(header chain.Header, targetTS int64) uint64 {
	deltaSeconds := header.Timestamp - targetTS
	deltaBlocks := deltaSeconds / s.cfg.AvgBlockSeconds
	estimate := int64(header.Number) - deltaBlocks
	if estimate < 0 {
		return 0
	}
	return uint64(estimate)
}

// UpdatePeriods extends each period type's tiling from its last time_close
// up to floor(now).
func (s *Service) UpdatePeriods(ctx context.Context, types []domain.PeriodType, now int64) error {
	latestBlock, err := s.headers.LatestBlockNumber(ctx)
	if err != nil {
		return &apperr.BlockFetchError{Err: fmt.Errorf("resolving latest block for period upkeep: %w", err)}
	}
	anchor, err := s.headers.HeaderByNumber(ctx, latestBlock)
	if err != nil {
		return &apperr.BlockFetchError{Err: fmt.Errorf("resolving anchor header for period upkeep: %w", err)}
	}

	for _, pt := range types {
		duration, ok := periodDurations[pt]
		if !ok {
			return &apperr.ConfigInvalid{Reason: fmt.Sprintf("unknown period type %q", pt)}
		}

		last, hasLast, err := s.periods.LastPeriod(pt)
		if err != nil {
			return fmt.Errorf("reading last period for %s: %w", pt, err)
		}
		start := now - now%duration - duration
		if hasLast {
			start = last.TimeClose
		}

		for open := start; open+duration <= now; open += duration {
			close := open + duration
			period := domain.Period{
				Type:       pt,
				TimeOpen:   open,
				TimeClose:  close,
				BlockOpen:  s.estimateBlock(anchor, open),
				BlockClose: s.estimateBlock(anchor, close),
				IsComplete: close < now,
			}
			if err := s.periods.InsertPeriod(period); err != nil {
				return fmt.Errorf("inserting period %s@%d: %w", pt, open, err)
			}
		}
	}
	return nil
}

// UpdateBlockPrices pulls AVAX/USD from the oracle for every minute
// boundary since the last stored BlockPrice, up to floor(now).
func (s *Service) UpdateBlockPrices(ctx context.Context, now int64) (int, error) {
	latestBlock, err := s.headers.LatestBlockNumber(ctx)
	if err != nil {
		return 0, &apperr.BlockFetchError{Err: fmt.Errorf("resolving latest block for block-price upkeep: %w", err)}
	}
	anchor, err := s.headers.HeaderByNumber(ctx, latestBlock)
	if err != nil {
		return 0, &apperr.BlockFetchError{Err: fmt.Errorf("resolving anchor header for block-price upkeep: %w", err)}
	}

	floorNow := now - now%60
	start := floorNow - 60
	last, ok, err := s.periods.LastBlockPrice()
	if err != nil {
		return 0, fmt.Errorf("reading last block price: %w", err)
	}
	if ok {
		start = last.Timestamp + 60
	}

	inserted := 0
	for minute := start; minute <= floorNow; minute += 60 {
		blockNumber := s.estimateBlock(anchor, minute)
		price, roundID, updatedAt, err := s.oracle.RoundDataAt(ctx, blockNumber)
		if err != nil {
			s.log.Warn().Err(err).Int64("minute", minute).Uint64("block", blockNumber).Msg("oracle read failed, skipping minute")
			continue
		}
		bp := domain.BlockPrice{
			BlockNumber:        blockNumber,
			Timestamp:          minute,
			PriceUSD:           price,
			ChainlinkRoundID:   &roundID,
			ChainlinkUpdatedAt: &updatedAt,
		}
		if err := s.periods.InsertBlockPrice(bp); err != nil {
			return inserted, fmt.Errorf("inserting block price at minute %d: %w", minute, err)
		}
		inserted++
	}
	return inserted, nil
}

// counterAssetDenom classifies a swap's quote token as AVAX, USD, or
// "unsupported" (ok=false).
func (s *Service) counterAssetDenom(quoteToken domain.Address) (domain.Denomination, bool, error) {
	if quoteToken == s.cfg.WrappedNative {
		return domain.DenomAVAX, true, nil
	}
	tok, err := s.tokens.GetToken(quoteToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up counter-asset token %s: %w", quoteToken, err)
	}
	if tok.Type == s.cfg.StableTokenType {
		return domain.DenomUSD, true, nil
	}
	return "", false, nil
}

// CalculateSwapPricing direct-prices every PoolSwap with base_token=asset
// that has no DIRECT_* detail yet.
func (s *Service) CalculateSwapPricing(ctx context.Context, asset domain.Address, sinceDays int) (priced, skipped int, err error) {
	baseToken, err := s.tokens.GetToken(asset)
	if err != nil {
		return 0, 0, fmt.Errorf("looking up base asset %s: %w", asset, err)
	}

	swaps, err := s.details.UnpricedSwapsForAsset(asset, sinceDays)
	if err != nil {
		return 0, 0, fmt.Errorf("querying unpriced swaps: %w", err)
	}

	tx, err := s.modelDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning direct swap pricing transaction: %w", err)
	}
	defer tx.Rollback()

	quoteDecimalsCache := make(map[domain.Address]int)
	for _, swap := range swaps {
		denom, ok, err := s.counterAssetDenom(swap.QuoteToken)
		if err != nil {
			return priced, skipped, err
		}
		if !ok {
			skipped++
			continue
		}

		decimals, cached := quoteDecimalsCache[swap.QuoteToken]
		if !cached {
			quoteToken, err := s.tokens.GetToken(swap.QuoteToken)
			if err != nil {
				return priced, skipped, fmt.Errorf("looking up quote token %s: %w", swap.QuoteToken, err)
			}
			decimals = quoteToken.Decimals
			quoteDecimalsCache[swap.QuoteToken] = decimals
		}

		baseHuman := humanAmount(string(swap.BaseAmount), baseToken.Decimals)
		quoteHuman := humanAmount(string(swap.QuoteAmount), decimals)
		if baseHuman == 0 {
			skipped++
			continue
		}

		price := quoteHuman / baseHuman
		method := domain.PriceMethodDirectAVAX
		if denom == domain.DenomUSD {
			method = domain.PriceMethodDirectUSD
		}
		detail := domain.PoolSwapDetail{
			ContentID:    swap.ContentID,
			Denomination: denom,
			Value:        baseHuman * price,
			Price:        price,
			PriceMethod:  method,
		}
		if err := s.details.InsertPoolSwapDetail(tx, detail); err != nil {
			return priced, skipped, &apperr.PersistError{Op: "insert_poolswap_detail", Err: err}
		}
		priced++
	}

	if err := tx.Commit(); err != nil {
		return priced, skipped, &apperr.PersistError{Op: "commit_swap_pricing", Err: err}
	}
	return priced, skipped, nil
}

// CalculateTradePricing volume-weight-averages each Trade's constituent
// PoolSwapDetails into a DIRECT TradeDetail, per denomination.
func (s *Service) CalculateTradePricing(ctx context.Context, asset domain.Address, sinceDays int) (priced, skipped int, err error) {
	trades, err := s.details.UnpricedTradesForAsset(asset, sinceDays)
	if err != nil {
		return 0, 0, fmt.Errorf("querying unpriced trades: %w", err)
	}

	tx, err := s.modelDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning trade pricing transaction: %w", err)
	}
	defer tx.Rollback()

	denoms := []domain.Denomination{domain.DenomAVAX, domain.DenomUSD}
	for _, trade := range trades {
		tradePriced := false
		for _, denom := range denoms {
			legs, err := s.details.SwapDetailsForTrade(trade.ContentID, denom)
			if err != nil {
				return priced, skipped, fmt.Errorf("reading swap details for trade %s: %w", trade.ContentID, err)
			}
			if len(legs) == 0 {
				continue
			}
			var totalValue, totalVolume float64
			for _, leg := range legs {
				if leg.Price == 0 {
					continue
				}
				totalValue += leg.Value
				totalVolume += leg.Value / leg.Price
			}
			price, ok := volumeWeightedAverage(totalValue, totalVolume)
			if !ok {
				continue
			}
			detail := domain.TradeDetail{
				ContentID:    trade.ContentID,
				Denomination: denom,
				Value:        totalValue,
				Price:        price,
				PriceMethod:  domain.PriceMethodDirect,
			}
			if err := s.details.InsertTradeDetail(tx, detail); err != nil {
				return priced, skipped, &apperr.PersistError{Op: "insert_trade_detail", Err: err}
			}
			tradePriced = true
		}
		if tradePriced {
			priced++
		} else {
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return priced, skipped, &apperr.PersistError{Op: "commit_trade_pricing", Err: err}
	}
	return priced, skipped, nil
}

// GenerateCanonicalPrices computes the per-minute and 5-minute-trailing
// canonical price for asset/denom over minutes.
func (s *Service) GenerateCanonicalPrices(ctx context.Context, minutes []int64, asset domain.Address, denoms []domain.Denomination) error {
	for _, denom := range denoms {
		for _, minute := range minutes {
			pools, err := s.periods.PricingPoolsForAsset(asset, minute)
			if err != nil {
				return fmt.Errorf("resolving pricing pools for %s@%d: %w", asset, minute, err)
			}
			if len(pools) == 0 {
				s.log.Warn().Str("asset", string(asset)).Int64("minute", minute).Msg("no pricing pool configured, skipping minute")
				continue
			}

			inputs, err := s.details.PoolSwapDetailsInPoolsAtMinute(pools, minute, denom)
			if err != nil {
				return fmt.Errorf("aggregating canonical inputs for %s@%d: %w", asset, minute, err)
			}
			pricePeriod, ok := volumeWeightedAverage(inputs.TotalValue, inputs.TotalVolume)
			if !ok {
				continue // zero volume: skip the minute silently
			}

			points := make([]minutePoint, 0, s.cfg.VWAPWindowMinutes)
			windowStart := minute - (s.cfg.VWAPWindowMinutes-1)*60
			for m := windowStart; m < minute; m += 60 {
				cp, ok, err := s.periods.CanonicalPrice(asset, m, denom)
				if err != nil {
					return fmt.Errorf("reading canonical price at %d: %w", m, err)
				}
				if ok {
					points = append(points, minutePoint{price: cp.PricePeriod, volume: cp.BaseVolume})
				}
			}
			points = append(points, minutePoint{price: pricePeriod, volume: inputs.TotalVolume})

			pv := domain.PriceVwap{
				Asset:           asset,
				TimestampMinute: minute,
				Denomination:    denom,
				PricePeriod:     pricePeriod,
				PriceVWAP:       trailingVWAP(points),
				BaseVolume:      inputs.TotalVolume,
				QuoteVolume:     inputs.TotalValue,
				PoolCount:       inputs.PoolCount,
				SwapCount:       inputs.SwapCount,
			}
			if err := s.periods.UpsertCanonicalPrice(pv); err != nil {
				return fmt.Errorf("upserting canonical price for %s@%d: %w", asset, minute, err)
			}
		}
	}
	return nil
}

// ApplyCanonicalPricingToGlobalEvents fills in a GLOBAL detail for every
// PoolSwap and Trade in [startBlock,endBlock] that still has no detail for
// denom, using the canonical price at the event's minute.
func (s *Service) ApplyCanonicalPricingToGlobalEvents(ctx context.Context, startBlock, endBlock uint64, asset domain.Address, denoms []domain.Denomination) (priced, skipped int, err error) {
	baseToken, err := s.tokens.GetToken(asset)
	if err != nil {
		return 0, 0, fmt.Errorf("looking up base asset %s: %w", asset, err)
	}

	tx, err := s.modelDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning global pricing transaction: %w", err)
	}
	defer tx.Rollback()

	for _, denom := range denoms {
		swaps, err := s.details.UnpricedSwapsInBlockRange(asset, denom, startBlock, endBlock)
		if err != nil {
			return priced, skipped, fmt.Errorf("querying unpriced swaps in range: %w", err)
		}
		for _, swap := range swaps {
			minute := swap.Timestamp - swap.Timestamp%60
			cp, ok, err := s.periods.CanonicalPrice(asset, minute, denom)
			if err != nil {
				return priced, skipped, fmt.Errorf("reading canonical price at %d: %w", minute, err)
			}
			if !ok {
				skipped++
				continue // canonical not yet available, retry on a later pass
			}
			baseHuman := humanAmount(string(swap.BaseAmount), baseToken.Decimals)
			detail := domain.PoolSwapDetail{
				ContentID:    swap.ContentID,
				Denomination: denom,
				Value:        baseHuman * cp.PriceVWAP,
				Price:        cp.PriceVWAP,
				PriceMethod:  domain.PriceMethodGlobal,
			}
			if err := s.details.InsertPoolSwapDetail(tx, detail); err != nil {
				return priced, skipped, &apperr.PersistError{Op: "insert_poolswap_detail_global", Err: err}
			}
			priced++
		}

		trades, err := s.details.UnpricedTradesInBlockRange(asset, denom, startBlock, endBlock)
		if err != nil {
			return priced, skipped, fmt.Errorf("querying unpriced trades in range: %w", err)
		}
		for _, trade := range trades {
			minute := trade.Timestamp - trade.Timestamp%60
			cp, ok, err := s.periods.CanonicalPrice(asset, minute, denom)
			if err != nil {
				return priced, skipped, fmt.Errorf("reading canonical price at %d: %w", minute, err)
			}
			if !ok {
				skipped++
				continue
			}
			baseHuman := humanAmount(string(trade.BaseAmount), baseToken.Decimals)
			detail := domain.TradeDetail{
				ContentID:    trade.ContentID,
				Denomination: denom,
				Value:        baseHuman * cp.PriceVWAP,
				Price:        cp.PriceVWAP,
				PriceMethod:  domain.PriceMethodGlobal,
			}
			if err := s.details.InsertTradeDetail(tx, detail); err != nil {
				return priced, skipped, &apperr.PersistError{Op: "insert_trade_detail_global", Err: err}
			}
			priced++
		}
	}

	if err := tx.Commit(); err != nil {
		return priced, skipped, &apperr.PersistError{Op: "commit_global_pricing", Err: err}
	}
	return priced, skipped, nil
}
