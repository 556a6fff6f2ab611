package transformers

import (
	"fmt"
	"math/big"

	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
)

// ERC20TransferTransformerName is the transformer_name a token Contract
// row binds to, to turn its raw Transfer logs into Transfer events plus
// the two Position deltas it implies.
const ERC20TransferTransformerName = "erc20_transfer"

// erc20TransferTransformer decodes the standard
// Transfer(address indexed from, address indexed to, uint256 value)
// event. It is stateless: transformer_config is unused.
type erc20TransferTransformer struct{}

// NewERC20TransferTransformer is the Factory for ERC20TransferTransformerName.
func NewERC20TransferTransformer(map[string]any) (transform.Transformer, error) {
	return &erc20TransferTransformer{}, nil
}

func (t *erc20TransferTransformer) Transform(tx transform.TxContext, log decode.DecodedLog, _ *transform.TxState) (transform.Result, error) {
	if log.EventName != "Transfer" {
		return transform.Result{}, nil
	}

	from, ok := log.Attributes["from"].(string)
	if !ok {
		return transform.Result{}, fmt.Errorf("erc20_transfer: missing from attribute")
	}
	to, ok := log.Attributes["to"].(string)
	if !ok {
		return transform.Result{}, fmt.Errorf("erc20_transfer: missing to attribute")
	}
	value := bigIntAttr(log.Attributes["value"])

	meta := domain.EventMeta{
		ContentID:   domain.NewContentID(string(tx.TxHash), fmt.Sprintf("%d", log.LogIndex), "transfer"),
		TxHash:      tx.TxHash,
		BlockNumber: tx.BlockNumber,
		Timestamp:   tx.Timestamp,
	}
	fromAddr, toAddr := domain.NewAddress(from), domain.NewAddress(to)
	transfer := domain.NewTransfer(meta, fromAddr, toAddr, log.Address, domain.Amount(value.String()))

	var positions []*domain.Position
	parentID := meta.ContentID
	parentType := domain.ParentType(domain.KindTransfer)
	if !isZeroAddress(fromAddr) {
		delta := new(big.Int).Neg(value)
		positions = append(positions, domain.NewPosition(
			domain.EventMeta{ContentID: domain.NewContentID(string(tx.TxHash), fmt.Sprintf("%d", log.LogIndex), "position", string(fromAddr)), TxHash: tx.TxHash, BlockNumber: tx.BlockNumber, Timestamp: tx.Timestamp},
			fromAddr, log.Address, domain.Amount(delta.String()), &parentID, &parentType,
		))
	}
	if !isZeroAddress(toAddr) {
		positions = append(positions, domain.NewPosition(
			domain.EventMeta{ContentID: domain.NewContentID(string(tx.TxHash), fmt.Sprintf("%d", log.LogIndex), "position", string(toAddr)), TxHash: tx.TxHash, BlockNumber: tx.BlockNumber, Timestamp: tx.Timestamp},
			toAddr, log.Address, domain.Amount(value.String()), &parentID, &parentType,
		))
	}

	return transform.Result{Events: []domain.Event{transfer}, Positions: positions}, nil
}

func isZeroAddress(a domain.Address) bool {
	return a == domain.NewAddress("0x0000000000000000000000000000000000000000")
}

// Register binds every transformer this package provides into registry,
// under the fixed names their Contract rows reference.
func Register(registry *transform.Registry) {
	registry.Register(UniswapV2SwapTransformerName, NewUniswapV2SwapTransformer)
	registry.Register(ERC20TransferTransformerName, NewERC20TransferTransformer)
}
