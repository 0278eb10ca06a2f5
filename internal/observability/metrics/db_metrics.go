package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const dbGaugeTimeout = 2 * time.Second

// dbGauges are evaluated on every scrape.
var dbGauges = []struct {
	name  string
	help  string
	query string
}{
	{"pledges_active", "Active pledges", "SELECT COUNT(*) FROM pledges WHERE is_active"},
	{"pledges_overdue", "Active pledges whose next payment date has passed",
		"SELECT COUNT(*) FROM pledges WHERE is_active AND next_payment_date < CURRENT_DATE"},
	{"receipts_issued_current_month", "Receipt numbers allocated in the current UTC month",
		"SELECT COALESCE(MAX(last_value), 0) FROM receipt_sequences WHERE period = to_char(now() AT TIME ZONE 'UTC', 'YYYYMM')"},
}

func registerDBMetrics(db *sql.DB, logger logrus.FieldLogger) {
	for _, gauge := range dbGauges {
		query, name := gauge.query, gauge.name
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + name, Help: gauge.help},
			func() float64 { return queryCount(db, logger.WithField("gauge", name), query) },
		))
	}
}

func queryCount(db *sql.DB, logger logrus.FieldLogger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbGaugeTimeout)
	defer cancel()
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		logger.WithError(err).Warn("metrics query failed")
		return 0
	}
	return float64(max(count, 0))
}
