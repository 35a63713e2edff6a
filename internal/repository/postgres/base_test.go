package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Xianghbb/au-email-marketing-saas/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "postgres")

func TestBaseRepository_ObserveCountsOperations(t *testing.T) {
	r := BaseRepository{metrics: testMetrics}

	r.observe("campaign.get", nil)
	r.observe("campaign.get", nil)
	r.observe("campaign.get", errors.New("connection reset"))
	r.observe("quota.get", sql.ErrNoRows)

	ops := testMetrics.DatabaseOperations
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("campaign.get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("campaign.get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("quota.get", "ok")),
		"absent rows are a normal lookup outcome")
}

func TestBaseRepository_ObserveWithoutMetricsIsNoop(t *testing.T) {
	r := BaseRepository{}
	assert.NotPanics(t, func() { r.observe("campaign.get", nil) })
}
