package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.ObserveEdit(OutcomeCommitted, 20*time.Millisecond)
	m.ObserveEdit(OutcomeCommitted, 10*time.Millisecond)
	m.ObserveEdit(OutcomeRejected, time.Millisecond)
	m.AddAuditRecords(2)
	m.AddAuditRecords(0)
	m.IncVersionsCreated()
	m.LotFailures().Inc()
	m.IncNotifyFailures()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.edits.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.edits.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.auditRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.versionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lotUpsertFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.editDuration))
}

func TestMetrics_ReRegisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg, "test")
	second := NewMetrics(reg, "test")

	first.IncVersionsCreated()
	second.IncVersionsCreated()
	assert.Equal(t, 2.0, testutil.ToFloat64(second.versionsCreated))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEdit(OutcomeAborted, time.Second)
		m.AddAuditRecords(3)
		m.IncVersionsCreated()
		m.IncNotifyFailures()
	})
	assert.Nil(t, m.LotFailures())
}
