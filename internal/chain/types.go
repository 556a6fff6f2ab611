// Package chain fetches blocks-with-receipts from object storage with an
// RPC fallback and exposes the neutral record shape every
// later pipeline stage decodes against.
package chain

// Log is one EVM log entry as it appears in a transaction receipt.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	LogIndex    int      `json:"logIndex"`
	Removed     bool     `json:"removed"`
	TxHash      string   `json:"transactionHash"`
	BlockNumber uint64   `json:"blockNumber"`
}

// Receipt is the subset of an EVM transaction receipt the pipeline needs.
type Receipt struct {
	TxHash  string `json:"transactionHash"`
	Status  string `json:"status"` // hex "0x1" success, "0x0" failure
	Logs    []Log  `json:"logs"`
	TxIndex int    `json:"transactionIndex"`
}

// Transaction is the subset of an EVM transaction the pipeline needs.
type Transaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Index int    `json:"transactionIndex"`
}

// Header is the subset of an EVM block header the pipeline needs.
type Header struct {
	Hash      string `json:"hash"`
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"`
}

// Block is the neutral "block with receipts" shape BlockSource produces,
// whether it came from object storage or the RPC fallback.
type Block struct {
	Header       Header
	Transactions []Transaction
	Receipts     []Receipt
}

// Success reports whether the receipt's status indicates the transaction
// succeeded (status == "0x1").
func (r Receipt) Success() bool {
	return r.Status == "0x1" || r.Status == "1"
}
