package domain

// Event is implemented by every domain event and position type. The
// writer calls Serialize exclusively — it never inspects struct fields
// reflectively.
type Event interface {
	Kind() EventKind
	GetContentID() ContentID
	Serialize() map[string]any
}

// base carries the fields every event shares.
type base struct {
	ContentID   ContentID
	TxHash      Hash
	BlockNumber uint64
	Timestamp   int64
}

func (b base) serializeBase(m map[string]any) map[string]any {
	m["content_id"] = string(b.ContentID)
	m["tx_hash"] = string(b.TxHash)
	m["block_number"] = b.BlockNumber
	m["timestamp"] = b.Timestamp
	return m
}

// Trade aggregates one or more PoolSwaps sharing a taker within one
// transaction; the swaps' directions may differ (a multi-hop route).
type Trade struct {
	base
	Taker         Address
	Direction     Direction
	BaseToken     Address
	BaseAmount    Amount
	QuoteToken    Address
	QuoteAmount   Amount
	TradeType     TradeType
	SwapCount     int
	TransferCount int
	Swaps         []*PoolSwap // flattened by the writer, never persisted directly on Trade
}

func (t *Trade) Kind() EventKind          { return KindTrade }
func (t *Trade) GetContentID() ContentID  { return t.ContentID }

func (t *Trade) Serialize() map[string]any {
	m := t.serializeBase(map[string]any{
		"taker":          string(t.Taker),
		"direction":      string(t.Direction),
		"base_token":     string(t.BaseToken),
		"base_amount":    string(t.BaseAmount),
		"quote_token":    string(t.QuoteToken),
		"quote_amount":   string(t.QuoteAmount),
		"trade_type":     string(t.TradeType),
		"swap_count":     t.SwapCount,
		"transfer_count": t.TransferCount,
	})
	return m
}

// PoolSwap is a single pool-level swap leg, optionally linked to a parent
// Trade via TradeID.
type PoolSwap struct {
	base
	Pool        Address
	Taker       Address
	Direction   Direction
	BaseToken   Address
	BaseAmount  Amount
	QuoteToken  Address
	QuoteAmount Amount
	TradeID     *ContentID
}

func (p *PoolSwap) Kind() EventKind         { return KindPoolSwap }
func (p *PoolSwap) GetContentID() ContentID { return p.ContentID }

func (p *PoolSwap) Serialize() map[string]any {
	m := p.serializeBase(map[string]any{
		"pool":         string(p.Pool),
		"taker":        string(p.Taker),
		"direction":    string(p.Direction),
		"base_token":   string(p.BaseToken),
		"base_amount":  string(p.BaseAmount),
		"quote_token":  string(p.QuoteToken),
		"quote_amount": string(p.QuoteAmount),
	})
	if p.TradeID != nil {
		m["trade_id"] = string(*p.TradeID)
	} else {
		m["trade_id"] = nil
	}
	return m
}

// Transfer is a plain ERC-20/native-token movement not already captured
// as part of a swap.
type Transfer struct {
	base
	From   Address
	To     Address
	Token  Address
	Amount Amount
}

func (t *Transfer) Kind() EventKind         { return KindTransfer }
func (t *Transfer) GetContentID() ContentID { return t.ContentID }

func (t *Transfer) Serialize() map[string]any {
	return t.serializeBase(map[string]any{
		"from_address": string(t.From),
		"to_address":   string(t.To),
		"token":        string(t.Token),
		"amount":       string(t.Amount),
	})
}

// Liquidity represents an add/remove liquidity event on a pool.
type Liquidity struct {
	base
	Pool      Address
	Provider  Address
	IsAdd     bool
	Token0    Address
	Amount0   Amount
	Token1    Address
	Amount1   Amount
}

func (l *Liquidity) Kind() EventKind         { return KindLiquidity }
func (l *Liquidity) GetContentID() ContentID { return l.ContentID }

func (l *Liquidity) Serialize() map[string]any {
	return l.serializeBase(map[string]any{
		"pool":     string(l.Pool),
		"provider": string(l.Provider),
		"is_add":   l.IsAdd,
		"token0":   string(l.Token0),
		"amount0":  string(l.Amount0),
		"token1":   string(l.Token1),
		"amount1":  string(l.Amount1),
	})
}

// Reward is an emission/claim event (farming rewards, staking yield).
type Reward struct {
	base
	Recipient Address
	Token     Address
	Amount    Amount
	Source    Address
}

func (r *Reward) Kind() EventKind         { return KindReward }
func (r *Reward) GetContentID() ContentID { return r.ContentID }

func (r *Reward) Serialize() map[string]any {
	return r.serializeBase(map[string]any{
		"recipient": string(r.Recipient),
		"token":     string(r.Token),
		"amount":    string(r.Amount),
		"source":    string(r.Source),
	})
}

// ParentType names the event kind a Position's balance change is derived
// from; stored as an opaque string rather than a pointer.
type ParentType string

// Position is a point-in-time balance delta, never deleted.
type Position struct {
	base
	Holder     Address
	Token      Address
	Delta      Amount
	ParentID   *ContentID
	ParentType *ParentType
}

func (p *Position) Kind() EventKind         { return KindPosition }
func (p *Position) GetContentID() ContentID { return p.ContentID }

func (p *Position) Serialize() map[string]any {
	m := p.serializeBase(map[string]any{
		"holder": string(p.Holder),
		"token":  string(p.Token),
		"delta":  string(p.Delta),
	})
	if p.ParentID != nil {
		m["parent_id"] = string(*p.ParentID)
	} else {
		m["parent_id"] = nil
	}
	if p.ParentType != nil {
		m["parent_type"] = string(*p.ParentType)
	} else {
		m["parent_type"] = nil
	}
	return m
}

// EventMeta carries the shared fields every event needs at construction
// time; transformers build one of these per decoded log and pass it to
// the kind-specific constructor below. Kept as an exported struct (rather
// than exposing the unexported `base` embed) so transformer packages can
// build events without reaching into domain internals.
type EventMeta struct {
	ContentID   ContentID
	TxHash      Hash
	BlockNumber uint64
	Timestamp   int64
}

func (m EventMeta) toBase() base {
	return base{ContentID: m.ContentID, TxHash: m.TxHash, BlockNumber: m.BlockNumber, Timestamp: m.Timestamp}
}

// NewTrade constructs a Trade from shared metadata and kind fields.
func NewTrade(m EventMeta, taker Address, dir Direction, baseToken Address, baseAmount Amount, quoteToken Address, quoteAmount Amount) *Trade {
	return &Trade{base: m.toBase(), Taker: taker, Direction: dir, BaseToken: baseToken, BaseAmount: baseAmount, QuoteToken: quoteToken, QuoteAmount: quoteAmount}
}

// NewPoolSwap constructs a PoolSwap from shared metadata and kind fields.
func NewPoolSwap(m EventMeta, pool, taker Address, dir Direction, baseToken Address, baseAmount Amount, quoteToken Address, quoteAmount Amount) *PoolSwap {
	return &PoolSwap{base: m.toBase(), Pool: pool, Taker: taker, Direction: dir, BaseToken: baseToken, BaseAmount: baseAmount, QuoteToken: quoteToken, QuoteAmount: quoteAmount}
}

// NewTransfer constructs a Transfer from shared metadata and kind fields.
func NewTransfer(m EventMeta, from, to, token Address, amount Amount) *Transfer {
	return &Transfer{base: m.toBase(), From: from, To: to, Token: token, Amount: amount}
}

// NewLiquidity constructs a Liquidity event from shared metadata and kind fields.
func NewLiquidity(m EventMeta, pool, provider Address, isAdd bool, token0 Address, amount0 Amount, token1 Address, amount1 Amount) *Liquidity {
	return &Liquidity{base: m.toBase(), Pool: pool, Provider: provider, IsAdd: isAdd, Token0: token0, Amount0: amount0, Token1: token1, Amount1: amount1}
}

// NewReward constructs a Reward from shared metadata and kind fields.
func NewReward(m EventMeta, recipient, token Address, amount Amount, source Address) *Reward {
	return &Reward{base: m.toBase(), Recipient: recipient, Token: token, Amount: amount, Source: source}
}

// NewPosition constructs a Position from shared metadata and kind fields.
func NewPosition(m EventMeta, holder, token Address, delta Amount, parentID *ContentID, parentType *ParentType) *Position {
	return &Position{base: m.toBase(), Holder: holder, Token: token, Delta: delta, ParentID: parentID, ParentType: parentType}
}
