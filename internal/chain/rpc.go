package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// RPCClient is the fallback chain-data source used when no object-store
// source has the block.
type RPCClient struct {
	client *rpc.Client
}

// NewRPCClient dials the Avalanche C-chain RPC endpoint.
func NewRPCClient(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing RPC %s: %w", url, err)
	}
	return &RPCClient{client: c}, nil
}

// LatestBlockNumber calls eth_blockNumber.
func (c *RPCClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.client.CallContext(ctx, &hex, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return hexToUint64(hex)
}

// rawRPCBlock is the shape returned by eth_getBlockByNumber(number, true).
type rawRPCBlock struct {
	Hash         string        `json:"hash"`
	Number       string        `json:"number"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// FetchBlock calls eth_getBlockByNumber(number, true) followed by
// eth_getBlockReceipts(number), and combines them into a Block.
func (c *RPCClient) FetchBlock(ctx context.Context, number uint64) (*Block, error) {
	var rb rawRPCBlock
	if err := c.client.CallContext(ctx, &rb, "eth_getBlockByNumber", hexUint(number), true); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber(%d): %w", number, err)
	}
	if rb.Hash == "" {
		return nil, fmt.Errorf("eth_getBlockByNumber(%d): block not found", number)
	}

	var receipts []Receipt
	if err := c.client.CallContext(ctx, &receipts, "eth_getBlockReceipts", hexUint(number)); err != nil {
		return nil, fmt.Errorf("eth_getBlockReceipts(%d): %w", number, err)
	}

	header := Header{Hash: rb.Hash, Number: number}
	if ts, err := hexToUint64(rb.Timestamp); err == nil {
		header.Timestamp = int64(ts)
	}

	return &Block{Header: header, Transactions: rb.Transactions, Receipts: receipts}, nil
}

// Call performs eth_call against contract addr with calldata, returning
// the raw hex result. Used only during admin token-metadata loading
//; the pipeline itself never calls this.
func (c *RPCClient) Call(ctx context.Context, to string, data string) (string, error) {
	return c.CallAt(ctx, to, data, "latest")
}

// CallAt performs eth_call against contract addr at a specific block tag
// (a hex block number or "latest"/"earliest"/"pending"). Used by
// PricingService's Chainlink-like oracle client to read a feed's round
// data near a target block.
func (c *RPCClient) CallAt(ctx context.Context, to, data, blockTag string) (string, error) {
	params := map[string]any{"to": to, "data": data}
	var result string
	if err := c.client.CallContext(ctx, &result, "eth_call", json.RawMessage(mustMarshal(params)), blockTag); err != nil {
		return "", fmt.Errorf("eth_call: %w", err)
	}
	return result, nil
}

// HeaderByNumber calls eth_getBlockByNumber(number, false), returning
// just the header — used by PricingService's period upkeep to resolve a
// block number's timestamp without paying for the full transaction list.
func (c *RPCClient) HeaderByNumber(ctx context.Context, number uint64) (Header, error) {
	var rb rawRPCBlock
	if err := c.client.CallContext(ctx, &rb, "eth_getBlockByNumber", hexUint(number), false); err != nil {
		return Header{}, fmt.Errorf("eth_getBlockByNumber(%d): %w", number, err)
	}
	if rb.Hash == "" {
		return Header{}, fmt.Errorf("eth_getBlockByNumber(%d): block not found", number)
	}
	header := Header{Hash: rb.Hash, Number: number}
	if ts, err := hexToUint64(rb.Timestamp); err == nil {
		header.Timestamp = int64(ts)
	}
	return header, nil
}

func hexUint(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
