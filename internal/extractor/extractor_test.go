package extractor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/trampoline/internal/config"
	"github.com/manifest-network/trampoline/internal/models"
	"github.com/manifest-network/trampoline/sdk/rpc"
	"github.com/manifest-network/trampoline/sdk/types"
)

func init() {
	retryDelay = time.Millisecond
}

type fakeSource struct {
	mu       sync.Mutex
	tip      uint64
	failures map[uint64]int
	fetched  []uint64
}

func (f *fakeSource) TipBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, nil
}

func (f *fakeSource) BlockByNumber(_ context.Context, n uint64) (*rpc.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[n] > 0 {
		f.failures[n]--
		return nil, errors.New("connection reset")
	}
	f.fetched = append(f.fetched, n)
	return &rpc.Block{
		Header: rpc.Header{Number: hexutil.Uint64(n)},
		Transactions: []types.Transaction{{
			Version: uint32(n),
			Outputs: []types.CellOutput{{Capacity: 100}},
		}},
	}, nil
}

type memoryOutput struct {
	mu      sync.Mutex
	blocks  map[uint64]*models.Block
	txs     map[string]*models.Transaction
	missing []uint64
}

func newMemoryOutput() *memoryOutput {
	return &memoryOutput{blocks: map[uint64]*models.Block{}, txs: map[string]*models.Transaction{}}
}

func (m *memoryOutput) WriteBlockWithTransactions(_ context.Context, b *models.Block, txs []*models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.ID] = b
	for _, tx := range txs {
		m.txs[tx.Hash] = tx
	}
	return nil
}

func (m *memoryOutput) GetLatestBlock(context.Context) (*models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Block
	for _, b := range m.blocks {
		if latest == nil || b.ID > latest.ID {
			latest = b
		}
	}
	return latest, nil
}

func (m *memoryOutput) GetMissingBlockIds(context.Context) ([]uint64, error) {
	return m.missing, nil
}

func (m *memoryOutput) Close() error { return nil }

func (m *memoryOutput) ids() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for id := range m.blocks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func baseConfig() config.ExtractConfig {
	return config.ExtractConfig{RpcURL: "http://127.0.0.1:8114", MaxConcurrency: 3, MaxRetries: 3, BlockTime: 1}
}

func TestRunFromGenesis(t *testing.T) {
	src := &fakeSource{tip: 4}
	out := newMemoryOutput()
	require.NoError(t, Run(context.Background(), src, out, baseConfig()))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, out.ids())
	assert.Len(t, out.txs, 5)
}

func TestRunResumesAfterLatest(t *testing.T) {
	src := &fakeSource{tip: 6}
	out := newMemoryOutput()
	out.blocks[3] = &models.Block{ID: 3}
	out.missing = []uint64{1}

	require.NoError(t, Run(context.Background(), src, out, baseConfig()))
	assert.Equal(t, []uint64{1, 3, 4, 5, 6}, out.ids())
}

func TestRunUpToDate(t *testing.T) {
	src := &fakeSource{tip: 3}
	out := newMemoryOutput()
	out.blocks[3] = &models.Block{ID: 3}

	require.NoError(t, Run(context.Background(), src, out, baseConfig()))
	assert.Empty(t, src.fetched)
}

func TestRunExplicitRange(t *testing.T) {
	src := &fakeSource{tip: 10}
	out := newMemoryOutput()
	out.missing = []uint64{0}
	cfg := baseConfig()
	cfg.BlockStart, cfg.BlockStop = 2, 4

	require.NoError(t, Run(context.Background(), src, out, cfg))
	assert.Equal(t, []uint64{2, 3, 4}, out.ids())
}

func TestRunStartPastTip(t *testing.T) {
	cfg := baseConfig()
	cfg.BlockStart = 20
	err := Run(context.Background(), &fakeSource{tip: 10}, newMemoryOutput(), cfg)
	assert.ErrorContains(t, err, "greater than the tip")
}

func TestRunReindex(t *testing.T) {
	src := &fakeSource{tip: 2}
	out := newMemoryOutput()
	out.blocks[2] = &models.Block{ID: 2}
	cfg := baseConfig()
	cfg.ReIndex = true

	require.NoError(t, Run(context.Background(), src, out, cfg))
	assert.ElementsMatch(t, []uint64{0, 1, 2}, src.fetched)
}

func TestRetry(t *testing.T) {
	src := &fakeSource{tip: 1, failures: map[uint64]int{1: 2}}
	out := newMemoryOutput()
	require.NoError(t, Run(context.Background(), src, out, baseConfig()))
	assert.Equal(t, []uint64{0, 1}, out.ids())

	src = &fakeSource{tip: 1, failures: map[uint64]int{1: 5}}
	err := Run(context.Background(), src, newMemoryOutput(), baseConfig())
	assert.ErrorContains(t, err, "after 3 retries")
}

func TestLiveStopsOnCancel(t *testing.T) {
	src := &fakeSource{tip: 1}
	out := newMemoryOutput()
	cfg := baseConfig()
	cfg.LiveMonitoring = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, src, out, cfg) }()

	require.Eventually(t, func() bool { return len(out.ids()) == 2 }, 5*time.Second, 10*time.Millisecond)
	src.mu.Lock()
	src.tip = 3
	src.mu.Unlock()
	require.Eventually(t, func() bool { return len(out.ids()) == 4 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("live extraction did not stop")
	}
}
