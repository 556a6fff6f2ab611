package chain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rawBlockJSON mirrors the object-store wire shape: { hash, number (hex),
// timestamp (hex), transactions: [...], receipts: [...] }.
type rawBlockJSON struct {
	Hash         string          `json:"hash"`
	Number       string          `json:"number"`
	Timestamp    string          `json:"timestamp"`
	Transactions []Transaction   `json:"transactions"`
	Receipts     []Receipt       `json:"receipts"`
}

// ParseBlockJSON decodes the object-store block-with-receipts payload.
func ParseBlockJSON(raw []byte) (*Block, error) {
	var rb rawBlockJSON
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, fmt.Errorf("unmarshal block JSON: %w", err)
	}

	number, err := hexToUint64(rb.Number)
	if err != nil {
		return nil, fmt.Errorf("parsing block number %q: %w", rb.Number, err)
	}
	timestamp, err := hexToUint64(rb.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing block timestamp %q: %w", rb.Timestamp, err)
	}

	return &Block{
		Header: Header{
			Hash:      strings.ToLower(rb.Hash),
			Number:    number,
			Timestamp: int64(timestamp),
		},
		Transactions: rb.Transactions,
		Receipts:     rb.Receipts,
	}, nil
}

func hexToUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}
