package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/sdk/rpc"
	"github.com/manifest-network/trampoline/sdk/types"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer serves JSON-RPC results from handlers keyed by method name.
func newRPCServer(t *testing.T, handlers map[string]func(params []json.RawMessage) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if h, ok := handlers[req.Method]; ok {
			resp["result"] = h(req.Params)
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientTipAndBlock(t *testing.T) {
	srv := newRPCServer(t, map[string]func([]json.RawMessage) any{
		"get_tip_block_number": func([]json.RawMessage) any { return "0x10" },
		"get_block_by_number": func(params []json.RawMessage) any {
			if string(params[0]) != `"0x2"` {
				return nil
			}
			return map[string]any{
				"header":       map[string]any{"number": "0x2", "timestamp": "0x5", "hash": common.Hash{9}.Hex()},
				"transactions": []any{map[string]any{"version": "0x0"}},
			}
		},
	})

	c, err := rpc.Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	tip, err := c.TipBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), tip)

	block, err := c.BlockByNumber(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), uint64(block.Header.Number))
	assert.Equal(t, common.Hash{9}, block.Header.Hash)
	assert.Len(t, block.Transactions, 1)

	_, err = c.BlockByNumber(context.Background(), 3)
	assert.ErrorIs(t, err, rpc.ErrNotFound)

	_, err = c.BlockchainInfo(context.Background())
	assert.ErrorContains(t, err, "method not found")
}

func TestIndexerCollectCells(t *testing.T) {
	lock := types.NewScript(types.SighashAllTypeHash, types.HashTypeType, []byte{1})
	cell := func(idx uint32, capacity types.Capacity, data string) map[string]any {
		return map[string]any{
			"output":      types.CellOutput{Capacity: capacity, Lock: lock},
			"output_data": data,
			"out_point":   types.OutPoint{Index: idx},
		}
	}
	srv := newRPCServer(t, map[string]func([]json.RawMessage) any{
		"get_cells": func(params []json.RawMessage) any {
			if string(params[3]) == "null" {
				return map[string]any{
					"objects":     []any{cell(0, types.MustCKB(100), "0x"), cell(1, types.MustCKB(100), "0x01")},
					"last_cursor": "0xaa",
				}
			}
			return map[string]any{
				"objects":     []any{cell(2, types.MustCKB(200), "0x")},
				"last_cursor": "0xbb",
			}
		},
	})

	c, err := rpc.DialIndexer(context.Background(), srv.URL)
	require.NoError(t, err)
	defer c.Close()

	key := rpc.SearchKey{Script: lock, ScriptType: rpc.ScriptTypeLock}
	cells, total, err := c.CollectCells(context.Background(), key, types.MustCKB(250))
	require.NoError(t, err)
	assert.Equal(t, types.MustCKB(300), total)
	require.Len(t, cells, 2)
	assert.Equal(t, uint32(0), cells[0].OutPoint.Index)
	assert.Equal(t, uint32(2), cells[1].OutPoint.Index)
}

type fakeNode struct {
	mu       sync.Mutex
	calls    int
	failures int
	tx       *rpc.TransactionWithStatus
	cell     *rpc.CellWithStatus
}

func (f *fakeNode) called() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeNode) Transaction(_ context.Context, hash types.H256) (*rpc.TransactionWithStatus, error) {
	if err := f.called(); err != nil {
		return nil, err
	}
	if f.tx == nil {
		return nil, rpc.ErrNotFound
	}
	return f.tx, nil
}

func (f *fakeNode) LiveCell(_ context.Context, _ types.OutPoint, _ bool) (*rpc.CellWithStatus, error) {
	if err := f.called(); err != nil {
		return nil, err
	}
	return f.cell, nil
}

func (f *fakeNode) Header(_ context.Context, hash types.H256) (*rpc.Header, error) {
	if err := f.called(); err != nil {
		return nil, err
	}
	return &rpc.Header{Hash: hash}, nil
}

func TestProviderCachesLiveCells(t *testing.T) {
	node := &fakeNode{cell: &rpc.CellWithStatus{
		Status: rpc.CellStatusLive,
		Cell: &rpc.CellInfo{
			Output: types.CellOutput{Capacity: types.MustCKB(61)},
			Data:   &rpc.CellData{Content: types.Bytes{1, 2}},
		},
	}}
	p, err := rpc.NewProvider(node, 1)
	require.NoError(t, err)

	op := types.OutPoint{TxHash: common.Hash{1}, Index: 0}
	cell, err := p.LiveCell(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, types.Bytes{1, 2}, cell.Data)

	_, err = p.LiveCell(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, 1, node.calls)

	node.cell = &rpc.CellWithStatus{Status: rpc.CellStatusDead}
	_, err = p.LiveCell(context.Background(), types.OutPoint{Index: 1})
	assert.ErrorIs(t, err, rpc.ErrCellNotLive)
}

func TestProviderCommittedTransaction(t *testing.T) {
	node := &fakeNode{tx: &rpc.TransactionWithStatus{
		Transaction: &types.Transaction{},
		TxStatus:    rpc.TxStatus{Status: rpc.StatusPending},
	}}
	p, err := rpc.NewProvider(node, 3)
	require.NoError(t, err)

	_, err = p.CommittedTransaction(context.Background(), common.Hash{2})
	assert.ErrorIs(t, err, rpc.ErrTransactionNotFound)

	node.tx = nil
	node.calls = 0
	_, err = p.CommittedTransaction(context.Background(), common.Hash{3})
	assert.ErrorIs(t, err, rpc.ErrNotFound)
	assert.Equal(t, 1, node.calls, "not found is not retried")
}

func TestProviderRetries(t *testing.T) {
	node := &fakeNode{failures: 2}
	p, err := rpc.NewProvider(node, 3)
	require.NoError(t, err)
	p.SetRetryDelay(time.Millisecond)

	h, err := p.Header(context.Background(), common.Hash{4})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{4}, h.Hash)
	assert.Equal(t, 3, node.calls)

	node.failures = 5
	_, err = p.Header(context.Background(), common.Hash{5})
	assert.ErrorContains(t, err, "Failed after 3 retries")
}
