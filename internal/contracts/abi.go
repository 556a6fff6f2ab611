// Package contracts loads and caches contract ABIs and resolves
// addresses and event signatures against them, using go-ethereum's
// accounts/abi package and supporting both on-disk ABI shapes (a bare
// array of entries, or an object with an "abi" field).
package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// rawABIObject matches the `{"abi": [...]}` shape some ABI files use;
// the bare-array shape is unmarshalled directly into abi.ABI.
type rawABIObject struct {
	ABI json.RawMessage `json:"abi"`
}

// ABICache loads ABI JSON files from disk once and caches the compiled
// abi.ABI, keyed by resolved file path (not by the declared (dir,file)
// pair) so two contracts referencing the same file via different
// declared paths share one parse.
type ABICache struct {
	baseDir string

	mu    sync.RWMutex
	byPath map[string]*abi.ABI
}

// NewABICache builds a cache that resolves abi_dir/abi_file entries
// relative to baseDir.
func NewABICache(baseDir string) *ABICache {
	return &ABICache{baseDir: baseDir, byPath: make(map[string]*abi.ABI)}
}

// Load returns the parsed ABI for (abiDir, abiFile), parsing and caching
// it on first use.
func (c *ABICache) Load(abiDir, abiFile string) (*abi.ABI, error) {
	path := filepath.Join(c.baseDir, abiDir, abiFile)

	c.mu.RLock()
	if cached, ok := c.byPath[path]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under write lock: another goroutine may have loaded it
	// between the RUnlock above and this Lock.
	if cached, ok := c.byPath[path]; ok {
		return cached, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ABI file %s: %w", path, err)
	}

	parsed, err := parseABIJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing ABI file %s: %w", path, err)
	}

	c.byPath[path] = parsed
	return parsed, nil
}

// parseABIJSON accepts either a bare array of ABI entries or an object
// with an "abi" field.
func parseABIJSON(raw []byte) (*abi.ABI, error) {
	trimmed := trimLeadingWhitespace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj rawABIObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("unmarshalling {abi:...} wrapper: %w", err)
		}
		if len(obj.ABI) == 0 {
			return nil, fmt.Errorf("object ABI shape missing \"abi\" field")
		}
		raw = obj.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI entries: %w", err)
	}
	return &parsed, nil
}

func trimLeadingWhitespace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
