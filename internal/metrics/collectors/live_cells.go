package collectors

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// Capacity is summed in shannons; the NUMERIC sum is read back as text.
const LiveCellsQuery = `SELECT COUNT(*), COALESCE(SUM(capacity), 0)::TEXT FROM api.live_cells`

const shannonsPerCkb = 100_000_000

type LiveCellsCollector struct {
	db       *sql.DB
	count    *prometheus.Desc
	capacity *prometheus.Desc
}

func NewLiveCellsCollector(db *sql.DB) *LiveCellsCollector {
	return &LiveCellsCollector{
		db: db,
		count: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cells", "live_count"),
			"Number of live cells",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
		capacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cells", "live_capacity_ckb"),
			"Sum of the capacity of live cells, in CKB",
			nil,
			prometheus.Labels{"source": "postgres"},
		),
	}
}

func (c *LiveCellsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.capacity
}

func (c *LiveCellsCollector) Collect(ch chan<- prometheus.Metric) {
	var count int64
	var shannons string
	if err := c.db.QueryRow(LiveCellsQuery).Scan(&count, &shannons); err != nil {
		ch <- prometheus.NewInvalidMetric(c.count, err)
		ch <- prometheus.NewInvalidMetric(c.capacity, err)
		return
	}

	ckb, err := toCkb(shannons)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.capacity, err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, ckb)
	}
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(count))
}

func init() {
	RegisterCollectorFactory(func(db *sql.DB) (prometheus.Collector, error) {
		return NewLiveCellsCollector(db), nil
	})
}
