// Package monitoring 提供修订引擎的 Prometheus 指标。
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 编辑结果标签值
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeAborted   = "aborted"
)

// Metrics 引擎指标集合。nil *Metrics 的全部方法都是空操作。
type Metrics struct {
	edits             *prometheus.CounterVec
	editDuration      prometheus.Histogram
	auditRecords      prometheus.Counter
	versionsCreated   prometheus.Counter
	lotUpsertFailures prometheus.Counter
	notifyFailures    prometheus.Counter
}

// NewMetrics 创建并注册指标；reg 为 nil 时使用 prometheus.DefaultRegisterer。
// 重复注册同名指标时复用已注册的收集器。
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "recipetrail"
	}

	m := &Metrics{
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Recipe edit submissions by outcome",
		}, []string{"outcome"}),
		editDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "edit_duration_seconds",
			Help:      "Duration of recipe edit submissions",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		auditRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_total",
			Help:      "Audit records written by committed edits",
		}),
		versionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Recipe version snapshots created",
		}),
		lotUpsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lot_upsert_failures_total",
			Help:      "Lot reference upserts that failed and were ignored",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Post-commit revision notifications that failed to publish",
		}),
	}

	m.edits = register(reg, m.edits)
	m.editDuration = register(reg, m.editDuration)
	m.auditRecords = register(reg, m.auditRecords)
	m.versionsCreated = register(reg, m.versionsCreated)
	m.lotUpsertFailures = register(reg, m.lotUpsertFailures)
	m.notifyFailures = register(reg, m.notifyFailures)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveEdit 记录一次编辑提交的结果与耗时
func (m *Metrics) ObserveEdit(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(outcome).Inc()
	m.editDuration.Observe(elapsed.Seconds())
}

// AddAuditRecords 累加已提交的审计记录数
func (m *Metrics) AddAuditRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.auditRecords.Add(float64(n))
}

// IncVersionsCreated 版本创建计数
func (m *Metrics) IncVersionsCreated() {
	if m == nil {
		return
	}
	m.versionsCreated.Inc()
}

// IncNotifyFailures 通知发布失败计数
func (m *Metrics) IncNotifyFailures() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// LotFailures 返回批次引用失败计数器，满足 lot.FailureCounter
func (m *Metrics) LotFailures() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.lotUpsertFailures
}
