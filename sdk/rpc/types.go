package rpc

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/manifest-network/trampoline/sdk/types"
)

// Transaction statuses reported by get_transaction.
const (
	StatusPending   = "pending"
	StatusProposed  = "proposed"
	StatusCommitted = "committed"
	StatusUnknown   = "unknown"
	StatusRejected  = "rejected"
)

// Live cell statuses reported by get_live_cell.
const (
	CellStatusLive    = "live"
	CellStatusDead    = "dead"
	CellStatusUnknown = "unknown"
)

// Header is a block header as returned by the node.
type Header struct {
	Version          hexutil.Uint64 `json:"version"`
	CompactTarget    hexutil.Uint64 `json:"compact_target"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	Number           hexutil.Uint64 `json:"number"`
	Epoch            hexutil.Uint64 `json:"epoch"`
	ParentHash       types.H256     `json:"parent_hash"`
	TransactionsRoot types.H256     `json:"transactions_root"`
	ProposalsHash    types.H256     `json:"proposals_hash"`
	ExtraHash        types.H256     `json:"extra_hash"`
	Dao              types.H256     `json:"dao"`
	Nonce            *hexutil.Big   `json:"nonce"`
	Hash             types.H256     `json:"hash"`
}

// Block is a full block with its transactions.
type Block struct {
	Header       Header              `json:"header"`
	Uncles       []json.RawMessage   `json:"uncles"`
	Transactions []types.Transaction `json:"transactions"`
	Proposals    []string            `json:"proposals"`
}

// TxStatus is the inclusion status of a transaction.
type TxStatus struct {
	Status    string      `json:"status"`
	BlockHash *types.H256 `json:"block_hash"`
	Reason    *string     `json:"reason,omitempty"`
}

// TransactionWithStatus is the get_transaction response.
type TransactionWithStatus struct {
	Transaction *types.Transaction `json:"transaction"`
	TxStatus    TxStatus           `json:"tx_status"`
}

// CellData is the data of a live cell.
type CellData struct {
	Content types.Bytes `json:"content"`
	Hash    types.H256  `json:"hash"`
}

// CellInfo is a live cell output with its optional data.
type CellInfo struct {
	Output types.CellOutput `json:"output"`
	Data   *CellData        `json:"data"`
}

// CellWithStatus is the get_live_cell response.
type CellWithStatus struct {
	Cell   *CellInfo `json:"cell"`
	Status string    `json:"status"`
}

// BlockchainInfo is the get_blockchain_info response.
type BlockchainInfo struct {
	Chain                  string         `json:"chain"`
	MedianTime             hexutil.Uint64 `json:"median_time"`
	Epoch                  hexutil.Uint64 `json:"epoch"`
	Difficulty             *hexutil.Big   `json:"difficulty"`
	IsInitialBlockDownload bool           `json:"is_initial_block_download"`
}

// Cycles is the estimate_cycles response.
type Cycles struct {
	Cycles hexutil.Uint64 `json:"cycles"`
}

// Script types accepted in an indexer search key.
const (
	ScriptTypeLock = "lock"
	ScriptTypeType = "type"
)

// SearchKeyFilter narrows indexer results.
type SearchKeyFilter struct {
	Script              *types.Script      `json:"script,omitempty"`
	OutputDataLenRange  *[2]hexutil.Uint64 `json:"output_data_len_range,omitempty"`
	OutputCapacityRange *[2]hexutil.Uint64 `json:"output_capacity_range,omitempty"`
	BlockRange          *[2]hexutil.Uint64 `json:"block_range,omitempty"`
}

// SearchKey selects indexed cells by lock or type script.
type SearchKey struct {
	Script     types.Script     `json:"script"`
	ScriptType string           `json:"script_type"`
	Filter     *SearchKeyFilter `json:"filter,omitempty"`
}

// IndexerTip is the last block processed by the indexer.
type IndexerTip struct {
	BlockHash   types.H256     `json:"block_hash"`
	BlockNumber hexutil.Uint64 `json:"block_number"`
}

// IndexerCell is a live cell found by the indexer.
type IndexerCell struct {
	Output      types.CellOutput `json:"output"`
	OutputData  types.Bytes      `json:"output_data"`
	OutPoint    types.OutPoint   `json:"out_point"`
	BlockNumber hexutil.Uint64   `json:"block_number"`
	TxIndex     hexutil.Uint64   `json:"tx_index"`
}

// CellMeta converts the indexed cell into resolved cell metadata.
func (c IndexerCell) CellMeta() types.CellMeta {
	return types.CellMeta{OutPoint: c.OutPoint, Output: c.Output, Data: c.OutputData}
}

// Cells is one page of get_cells results.
type Cells struct {
	Objects    []IndexerCell `json:"objects"`
	LastCursor string        `json:"last_cursor"`
}

// CellsCapacity is the get_cells_capacity response.
type CellsCapacity struct {
	Capacity    hexutil.Uint64 `json:"capacity"`
	BlockHash   types.H256     `json:"block_hash"`
	BlockNumber hexutil.Uint64 `json:"block_number"`
}
