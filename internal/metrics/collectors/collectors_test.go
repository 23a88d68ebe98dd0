package collectors

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveCellsCollector(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(LiveCellsQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(2, "150000000"))

	expected := `
# HELP trampoline_cells_live_capacity_ckb Sum of the capacity of live cells, in CKB
# TYPE trampoline_cells_live_capacity_ckb gauge
trampoline_cells_live_capacity_ckb{source="postgres"} 1.5
# HELP trampoline_cells_live_count Number of live cells
# TYPE trampoline_cells_live_count gauge
trampoline_cells_live_count{source="postgres"} 2
`
	require.NoError(t, testutil.CollectAndCompare(NewLiveCellsCollector(db), strings.NewReader(expected)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalTransactionCountCollectorError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(TotalTransactionCountQuery)).WillReturnError(errors.New("relation does not exist"))
	_, err = testutil.CollectAndLint(NewTotalTransactionCountCollector(db))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	_, err := DefaultRegistry.CreateCollectors(nil)
	assert.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	cs, err := DefaultRegistry.CreateCollectors(db)
	require.NoError(t, err)
	assert.Len(t, cs, 3)
}

func TestToCkb(t *testing.T) {
	v, err := toCkb("12345600000000")
	require.NoError(t, err)
	assert.InDelta(t, 123456.0, v, 1e-9)
	_, err = toCkb("nope")
	assert.Error(t, err)
}
