package domain

// ModelStatus is the lifecycle state of a configured Model.
type ModelStatus string

const (
	ModelStatusActive   ModelStatus = "active"
	ModelStatusInactive ModelStatus = "inactive"
)

// Model is a named, versioned indexing configuration.
type Model struct {
	Name             string
	Version          int
	ModelDBName      string
	ModelTokenAddr   Address
	Status           ModelStatus
}

// Contract binds an address to an ABI and, optionally, a named
// transformer.
type Contract struct {
	Address           Address
	Name              string
	Project           string
	Type              string
	ABIDir            string
	ABIFile           string
	TransformerName   string
	TransformerConfig map[string]any
	BaseTokenAddress  *Address
}

// Token is global token metadata, independent of any model.
type Token struct {
	Address  Address
	Type     string
	Symbol   string
	Name     string
	Decimals int
	Project  string
}

// Source is an object-store prefix + key-format template.
type Source struct {
	ID     int64
	Name   string
	Path   string
	Format string
}

// Period is one closed time bucket for a given resolution.
type Period struct {
	Type        PeriodType
	TimeOpen    int64
	TimeClose   int64
	BlockOpen   uint64
	BlockClose  uint64
	IsComplete  bool
}

// BlockPrice is the AVAX/USD reference price at a given block.
type BlockPrice struct {
	BlockNumber        uint64
	Timestamp          int64
	PriceUSD           float64
	ChainlinkRoundID   *string
	ChainlinkUpdatedAt *int64
}

// PriceVwap is the canonical per-minute price for an asset/denom.
type PriceVwap struct {
	Asset           Address
	TimestampMinute int64
	Denomination    Denomination
	PricePeriod     float64
	PriceVWAP       float64
	BaseVolume      float64
	QuoteVolume     float64
	PoolCount       int
	SwapCount       int
}

// PoolPricingConfig designates a pool as canonical for an asset over an
// interval.
type PoolPricingConfig struct {
	ModelID     string
	ContractID  Address
	PricingPool bool
	ValidFrom   int64
	ValidTo     *int64
}

// Snapshot is the fully materialised, immutable configuration for one
// model.
type Snapshot struct {
	Model          Model
	ContractsByAddr map[Address]Contract
	TrackedTokens  map[Address]struct{}
	Sources        []Source
}
