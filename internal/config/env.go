// Package config loads environment-variable configuration
// and the per-model configuration snapshot. The env-loading
// half follows trader-go/internal/config/config.go's getEnv/getEnvAsInt
// helper style; the snapshot half is new, grounded on the same repo's
// repository-construction pattern in internal/di.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvConfig holds the process-wide configuration read from the
// environment.
type EnvConfig struct {
	ModelName string

	GCPProjectID string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// DataDir holds the sqlite files cmd/indexer opens: DataDir/DBName.db
	// for the shared database, DataDir/<model_db_name>.db for the model
	// database resolved from the loaded Snapshot.
	DataDir string

	AvaxRPC string

	// ABIBaseDir roots the (abi_dir, abi_file) pairs stored on each
	// Contract row; contracts.NewABICache resolves against it.
	ABIBaseDir string

	// WrappedNativeAddress/StableTokenType/ChainlinkAggregator feed
	// PricingService.Config: the wrapped-AVAX address
	// DIRECT_AVAX pricing checks a swap's counter-asset against, the
	// Token.Type DIRECT_USD pricing matches, and the Chainlink-like
	// AVAX/USD feed address update_minute_prices_to_present() reads.
	WrappedNativeAddress string
	StableTokenType      string
	ChainlinkAggregator  string

	GCSBucket     string
	GCSCredPath   string

	LogLevel string
	LogDir   string

	Workers int
}

// Load reads configuration from the environment, applying documented
// defaults for every optional setting.
func Load() (*EnvConfig, error) {
	_ = godotenv.Load()

	cfg := &EnvConfig{
		ModelName:            getEnv("INDEXER_MODEL_NAME", ""),
		GCPProjectID:         getEnv("INDEXER_GCP_PROJECT_ID", ""),
		DBHost:               getEnv("INDEXER_DB_HOST", "localhost"),
		DBPort:               getEnvAsInt("INDEXER_DB_PORT", 5432),
		DBUser:               getEnv("INDEXER_DB_USER", ""),
		DBPassword:           getEnv("INDEXER_DB_PASSWORD", ""),
		DBName:               getEnv("INDEXER_DB_NAME", "indexer_shared"),
		DataDir:              getEnv("INDEXER_DATA_DIR", "./data"),
		AvaxRPC:              getEnv("INDEXER_AVAX_RPC", ""),
		ABIBaseDir:           getEnv("INDEXER_ABI_DIR", "./abis"),
		WrappedNativeAddress: getEnv("INDEXER_WRAPPED_NATIVE_ADDRESS", ""),
		StableTokenType:      getEnv("INDEXER_STABLE_TOKEN_TYPE", "stablecoin"),
		ChainlinkAggregator:  getEnv("INDEXER_CHAINLINK_AGGREGATOR", ""),
		GCSBucket:            getEnv("INDEXER_GCS_BUCKET", ""),
		GCSCredPath:          getEnv("INDEXER_GCS_CREDENTIALS", ""),
		LogLevel:             getEnv("INDEXER_LOG_LEVEL", "info"),
		LogDir:               getEnv("INDEXER_LOG_DIR", ""),
		Workers:              getEnvAsInt("WORKERS", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required fields are present.
func (c *EnvConfig) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("INDEXER_MODEL_NAME is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
