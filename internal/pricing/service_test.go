package pricing

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	shareddb "github.com/quick-xyz/indexer-sub000/internal/db/shared"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

const (
	avax  = domain.Address("0xwavax")
	usdc  = domain.Address("0xusdc")
	asset = domain.Address("0xasset")
	pool  = domain.Address("0xpool")
)

// newModelDB and newSharedDB use named shared-cache in-memory databases:
// the services read through a second pool connection while a write
// transaction is open, and with a plain ":memory:" DSN every connection
// would get its own empty database.
func newModelDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"_model?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, modeldb.Migrate(db))
	return db
}

func newSharedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"_shared?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shareddb.Migrate(db))
	return db
}

// fakeTokens is an in-memory TokenLookup fixed at 18 decimals unless overridden.
type fakeTokens struct {
	tokens map[domain.Address]domain.Token
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: map[domain.Address]domain.Token{
		avax:  {Address: avax, Decimals: 18, Type: "wrapped_native"},
		usdc:  {Address: usdc, Decimals: 6, Type: "stablecoin"},
		asset: {Address: asset, Decimals: 18, Type: "erc20"},
	}}
}

func (f *fakeTokens) GetToken(addr domain.Address) (domain.Token, error) {
	tok, ok := f.tokens[addr]
	if !ok {
		return domain.Token{}, sql.ErrNoRows
	}
	return tok, nil
}

// fakeHeaders always reports the same anchor block/timestamp.
type fakeHeaders struct {
	latest uint64
	header chain.Header
}

func (f *fakeHeaders) LatestBlockNumber(ctx context.Context) (uint64, error) { return f.latest, nil }
func (f *fakeHeaders) HeaderByNumber(ctx context.Context, number uint64) (chain.Header, error) {
	return f.header, nil
}

// fakeOracle returns a fixed AVAX/USD price regardless of block.
type fakeOracle struct{ price float64 }

func (f *fakeOracle) RoundDataAt(ctx context.Context, blockNumber uint64) (float64, string, int64, error) {
	return f.price, "42", 1000, nil
}

func testConfig() Config {
	return Config{WrappedNative: avax, StableTokenType: "stablecoin", AvgBlockSeconds: 2, VWAPWindowMinutes: 5}
}

func insertSwap(t *testing.T, db *sql.DB, contentID, txHash string, blockNumber uint64, ts int64, poolAddr, baseToken, baseAmount, quoteToken, quoteAmount string, tradeID *string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO poolswaps (content_id, tx_hash, block_number, timestamp, pool, taker, direction, base_token, base_amount, quote_token, quote_amount, trade_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		contentID, txHash, blockNumber, ts, poolAddr, "0xtaker", "sell", baseToken, baseAmount, quoteToken, quoteAmount, tradeID)
	require.NoError(t, err)
}

func insertTrade(t *testing.T, db *sql.DB, contentID, txHash string, blockNumber uint64, ts int64, baseToken, baseAmount, quoteToken, quoteAmount string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO trades (content_id, tx_hash, block_number, timestamp, taker, direction, base_token, base_amount, quote_token, quote_amount, trade_type, swap_count, transfer_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		contentID, txHash, blockNumber, ts, "0xtaker", "sell", baseToken, baseAmount, quoteToken, quoteAmount, "user", 1, 0)
	require.NoError(t, err)
}

func TestCalculateSwapPricingDirectAVAX(t *testing.T) {
	modelDB := newModelDB(t)
	sharedDB := newSharedDB(t)
	insertSwap(t, modelDB, "0xswap1", "0xtx1", 100, 1000, string(pool), string(asset), "1000000000000000000", string(avax), "2000000000000000000", nil)

	periods := shareddb.NewPricingRepository(sharedDB, zerolog.Nop())
	details := modeldb.NewDetailsRepository(modelDB, zerolog.Nop())
	svc := NewService(modelDB, periods, details, newFakeTokens(), &fakeHeaders{}, &fakeOracle{}, testConfig(), zerolog.Nop())

	priced, skipped, err := svc.CalculateSwapPricing(context.Background(), asset, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, priced)
	assert.Equal(t, 0, skipped)

	var price, value float64
	var method string
	require.NoError(t, modelDB.QueryRow(`SELECT price, value, price_method FROM poolswap_details WHERE content_id = ? AND denomination = 'AVAX'`, "0xswap1").Scan(&price, &value, &method))
	assert.InDelta(t, 2.0, price, 1e-9)
	assert.InDelta(t, 2.0, value, 1e-9)
	assert.Equal(t, "DIRECT_AVAX", method)

	// second call is a no-op: detail already exists, swap no longer "unpriced"
	priced2, _, err := svc.CalculateSwapPricing(context.Background(), asset, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, priced2)
}

func TestCalculateTradePricingAggregatesLegs(t *testing.T) {
	modelDB := newModelDB(t)
	sharedDB := newSharedDB(t)

	tradeID := "0xtrade1"
	insertTrade(t, modelDB, tradeID, "0xtx1", 100, 1000, string(asset), "2000000000000000000", string(avax), "4000000000000000000")
	insertSwap(t, modelDB, "0xswap1", "0xtx1", 100, 1000, string(pool), string(asset), "1000000000000000000", string(avax), "2000000000000000000", &tradeID)
	insertSwap(t, modelDB, "0xswap2", "0xtx1", 100, 1000, string(pool), string(asset), "1000000000000000000", string(avax), "2000000000000000000", &tradeID)

	_, err := modelDB.Exec(`INSERT INTO poolswap_details (content_id, denomination, value, price, price_method) VALUES (?,?,?,?,?)`,
		"0xswap1", "AVAX", 2.0, 2.0, "DIRECT_AVAX")
	require.NoError(t, err)
	_, err = modelDB.Exec(`INSERT INTO poolswap_details (content_id, denomination, value, price, price_method) VALUES (?,?,?,?,?)`,
		"0xswap2", "AVAX", 2.0, 2.0, "DIRECT_AVAX")
	require.NoError(t, err)

	periods := shareddb.NewPricingRepository(sharedDB, zerolog.Nop())
	details := modeldb.NewDetailsRepository(modelDB, zerolog.Nop())
	svc := NewService(modelDB, periods, details, newFakeTokens(), &fakeHeaders{}, &fakeOracle{}, testConfig(), zerolog.Nop())

	priced, skipped, err := svc.CalculateTradePricing(context.Background(), asset, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, priced)
	assert.Equal(t, 0, skipped)

	var price, value float64
	require.NoError(t, modelDB.QueryRow(`SELECT price, value FROM trade_details WHERE content_id = ? AND denomination = 'AVAX'`, tradeID).Scan(&price, &value))
	assert.InDelta(t, 2.0, price, 1e-9)
	assert.InDelta(t, 4.0, value, 1e-9)
}

func TestCanonicalPricingThenGlobalPricing(t *testing.T) {
	modelDB := newModelDB(t)
	sharedDB := newSharedDB(t)

	minute := int64(60)
	insertSwap(t, modelDB, "0xswap1", "0xtx1", 100, minute, string(pool), string(asset), "1000000000000000000", string(avax), "2000000000000000000", nil)
	_, err := modelDB.Exec(`INSERT INTO poolswap_details (content_id, denomination, value, price, price_method) VALUES (?,?,?,?,?)`,
		"0xswap1", "AVAX", 2.0, 2.0, "DIRECT_AVAX")
	require.NoError(t, err)

	periods := shareddb.NewPricingRepository(sharedDB, zerolog.Nop())
	require.NoError(t, periods.InsertPoolPricingConfig(domain.PoolPricingConfig{ModelID: "m1", ContractID: pool, PricingPool: true, ValidFrom: 0}))
	_, err = sharedDB.Exec(`INSERT INTO contracts (address, name, project, type, abi_dir, abi_file, base_token_address) VALUES (?,?,?,?,?,?,?)`,
		string(pool), "TestPool", "test", "pool", "dir", "file.json", string(asset))
	require.NoError(t, err)

	details := modeldb.NewDetailsRepository(modelDB, zerolog.Nop())
	svc := NewService(modelDB, periods, details, newFakeTokens(), &fakeHeaders{}, &fakeOracle{}, testConfig(), zerolog.Nop())

	err = svc.GenerateCanonicalPrices(context.Background(), []int64{minute}, asset, []domain.Denomination{domain.DenomAVAX})
	require.NoError(t, err)

	cp, ok, err := periods.CanonicalPrice(asset, minute, domain.DenomAVAX)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, cp.PricePeriod, 1e-9)
	assert.InDelta(t, 2.0, cp.PriceVWAP, 1e-9)

	// a second, still-unpriced swap in the same minute should pick up the
	// canonical GLOBAL price.
	insertSwap(t, modelDB, "0xswap2", "0xtx2", 100, minute, string(pool), string(asset), "1000000000000000000", string(avax), "1000000000000000000", nil)
	priced, skipped, err := svc.ApplyCanonicalPricingToGlobalEvents(context.Background(), 100, 100, asset, []domain.Denomination{domain.DenomAVAX})
	require.NoError(t, err)
	assert.Equal(t, 1, priced)
	assert.Equal(t, 0, skipped)

	var method string
	require.NoError(t, modelDB.QueryRow(`SELECT price_method FROM poolswap_details WHERE content_id = ?`, "0xswap2").Scan(&method))
	assert.Equal(t, "GLOBAL", method)
}
