package collectors

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

const TotalBlockCountQuery = `SELECT COUNT(*), COALESCE(MAX(id), 0) FROM api.blocks_raw`

type TotalBlockCountCollector struct {
	db          *sql.DB
	totalBlocks *prometheus.Desc
	latestBlock *prometheus.Desc
}

func NewTotalBlockCountCollector(db *sql.DB) *TotalBlockCountCollector {
	return &TotalBlockCountCollector{
		db: db,
		totalBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "blocks", "total_count"),
			"Total indexed block count",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
		latestBlock: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "blocks", "latest_number"),
			"Highest indexed block number",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *TotalBlockCountCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalBlocks
	ch <- c.latestBlock
}

func (c *TotalBlockCountCollector) Collect(ch chan<- prometheus.Metric) {
	var count, latest int64
	if err := c.db.QueryRow(TotalBlockCountQuery).Scan(&count, &latest); err != nil {
		ch <- prometheus.NewInvalidMetric(c.totalBlocks, err)
		ch <- prometheus.NewInvalidMetric(c.latestBlock, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.totalBlocks, prometheus.CounterValue, float64(count))
	ch <- prometheus.MustNewConstMetric(c.latestBlock, prometheus.GaugeValue, float64(latest))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB) (prometheus.Collector, error) {
		return NewTotalBlockCountCollector(db), nil
	})
}
