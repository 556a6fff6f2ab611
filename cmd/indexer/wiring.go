// Command indexer runs the model-scoped block indexer: fetch, decode,
// transform, and persist blocks for one configured model, plus the
// downstream pricing/calculation passes. Wiring loads env config,
// constructs the concrete repositories/services by hand, and starts the
// long-running loop.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/quick-xyz/indexer-sub000/internal/calc"
	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/config"
	"github.com/quick-xyz/indexer-sub000/internal/contracts"
	"github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/db/shared"
	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/pricing"
	"github.com/quick-xyz/indexer-sub000/internal/queue"
	"github.com/quick-xyz/indexer-sub000/internal/schedule"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
	"github.com/quick-xyz/indexer-sub000/internal/transformers"
	"github.com/quick-xyz/indexer-sub000/internal/worker"
	"github.com/quick-xyz/indexer-sub000/internal/write"
	"github.com/quick-xyz/indexer-sub000/pkg/logger"
)

// app bundles every wired component a CLI command needs. Built once per
// process invocation from the loaded EnvConfig and Snapshot.
type app struct {
	cfg      *config.EnvConfig
	snapshot *domain.Snapshot
	log      zerolog.Logger

	sharedDB *sql.DB
	modelDB  *sql.DB

	pricingRepo *shared.PricingRepository
	details     *model.DetailsRepository
	analytics   *model.AnalyticsRepository
	processing  *model.ProcessingRepository
	configRepo  *shared.ConfigRepository

	rpc    *chain.RPCClient
	oracle *chain.ChainlinkOracle

	jobQueue     *queue.Queue
	pricingSvc   *pricing.Service
	calcSvc      *calc.Service
	orchestrator *worker.Orchestrator
	scheduler    *schedule.Scheduler
}

// buildApp opens both databases, migrates them, loads the model's
// Snapshot, and wires every downstream component. startBlock seeds the
// orchestrator's auto-enqueue fallback when block_processing is still
// empty. Callers must call close() when done.
func buildApp(ctx context.Context, startBlock uint64) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading environment config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogDir == ""})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	sharedDB, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, cfg.DBName+".db"))
	if err != nil {
		return nil, fmt.Errorf("opening shared database: %w", err)
	}
	if err := shared.Migrate(sharedDB); err != nil {
		return nil, fmt.Errorf("migrating shared database: %w", err)
	}

	configRepo := shared.NewConfigRepository(sharedDB, log)
	snapshot, err := config.NewService(configRepo).Load(cfg.ModelName)
	if err != nil {
		sharedDB.Close()
		return nil, fmt.Errorf("loading model snapshot: %w", err)
	}

	modelDB, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, snapshot.Model.ModelDBName+".db"))
	if err != nil {
		sharedDB.Close()
		return nil, fmt.Errorf("opening model database: %w", err)
	}
	if err := model.Migrate(modelDB); err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("migrating model database: %w", err)
	}

	abiCache := contracts.NewABICache(cfg.ABIBaseDir)
	registry, err := contracts.NewRegistry(snapshot.ContractsByAddr, abiCache)
	if err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("building contract registry: %w", err)
	}

	rpcClient, err := chain.NewRPCClient(ctx, cfg.AvaxRPC)
	if err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("dialing RPC: %w", err)
	}

	objectStore, err := chain.NewS3ObjectStore(ctx, cfg.GCSBucket)
	if err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("building object store client: %w", err)
	}

	blockSource := chain.NewBlockSource(objectStore, rpcClient, snapshot.Sources, log)

	logDecoder := decode.NewLogDecoder(registry)
	blockDecoder := decode.NewBlockDecoder(logDecoder)

	transformerRegistry := transform.NewRegistry()
	transformers.Register(transformerRegistry)

	pipeline := transform.NewPipeline(registry, transformerRegistry, log)
	writer := write.NewWriter(modelDB, log)

	jobQueue := queue.New(modelDB, log)
	processing := model.NewProcessingRepository(modelDB, log)
	details := model.NewDetailsRepository(modelDB, log)
	analytics := model.NewAnalyticsRepository(modelDB, log)
	pricingRepo := shared.NewPricingRepository(sharedDB, log)

	oracle := chain.NewChainlinkOracle(rpcClient, cfg.ChainlinkAggregator)

	pricingSvc := pricing.NewService(modelDB, pricingRepo, details, configRepo, rpcClient, oracle, pricing.Config{
		WrappedNative:   domain.NewAddress(cfg.WrappedNativeAddress),
		StableTokenType: cfg.StableTokenType,
	}, log)

	calcSvc := calc.NewService(modelDB, details, analytics, pricingRepo, pricingRepo, configRepo, configRepo, calc.Config{}, log)

	blockProcessor := worker.NewBlockProcessor(blockSource, blockDecoder, pipeline, writer, log)
	health := worker.NewHealthSampler(100 * time.Millisecond)
	orchestrator := worker.NewOrchestrator(jobQueue, blockProcessor, rpcClient, processing, health, worker.Config{
		NumWorkers: cfg.Workers,
		StartBlock: startBlock,
	}, log)

	trackedAssets := make([]domain.Address, 0, len(snapshot.TrackedTokens))
	for addr := range snapshot.TrackedTokens {
		trackedAssets = append(trackedAssets, addr)
	}
	scheduler := schedule.New(log)
	pricingJob := pricing.NewJob(pricingSvc, trackedAssets, processing, pricing.JobConfig{}, log)
	calcJob := calc.NewJob(calcSvc, trackedAssets, calc.JobConfig{}, log)
	if err := scheduler.AddJob("0 * * * * *", pricingJob); err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("registering pricing sweep job: %w", err)
	}
	if err := scheduler.AddJob("0 */5 * * * *", calcJob); err != nil {
		sharedDB.Close()
		modelDB.Close()
		return nil, fmt.Errorf("registering calculation sweep job: %w", err)
	}

	return &app{
		cfg:          cfg,
		snapshot:     snapshot,
		log:          log,
		sharedDB:     sharedDB,
		modelDB:      modelDB,
		pricingRepo:  pricingRepo,
		details:      details,
		analytics:    analytics,
		processing:   processing,
		configRepo:   configRepo,
		rpc:          rpcClient,
		oracle:       oracle,
		jobQueue:     jobQueue,
		pricingSvc:   pricingSvc,
		calcSvc:      calcSvc,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}, nil
}

func (a *app) close() {
	a.modelDB.Close()
	a.sharedDB.Close()
}
