package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/txn"
)

const namespace = "social_graph"

// Metrics 事务端口的指标
type Metrics struct {
	TransactionsTotal *prometheus.CounterVec   // mode, outcome
	OpsTotal          *prometheus.CounterVec   // kind
	Duration          *prometheus.HistogramVec // mode
	AppendOutcomes    *prometheus.CounterVec   // feed, outcome
}

// NewMetrics 注册到 reg；测试传 prometheus.NewRegistry()
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions executed, by consistency mode and outcome.",
		}, []string{"mode", "outcome"}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_total",
			Help:      "Index operations submitted, by op kind.",
		}, []string{"kind"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Transaction execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"mode"}),
		AppendOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_outcomes_total",
			Help:      "Idempotent append results, by feed and outcome.",
		}, []string{"feed", "outcome"}),
	}
	reg.MustRegister(m.TransactionsTotal, m.OpsTotal, m.Duration, m.AppendOutcomes)
	return m
}

func (m *Metrics) RecordAppend(feed, outcome string) {
	m.AppendOutcomes.WithLabelValues(feed, outcome).Inc()
}

// Executor 记录每个事务的结果和耗时
type Executor struct {
	next    repo.Executor
	metrics *Metrics
}

func NewExecutor(next repo.Executor, m *Metrics) *Executor {
	return &Executor{next: next, metrics: m}
}

func (e *Executor) Execute(ctx context.Context, tx *txn.Transaction) txn.Result {
	start := time.Now()
	res := e.next.Execute(ctx, tx)
	mode := tx.Mode.String()
	e.metrics.Duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	e.metrics.TransactionsTotal.WithLabelValues(mode, res.Outcome.String()).Inc()
	for _, op := range tx.Ops() {
		e.metrics.OpsTotal.WithLabelValues(op.Kind.String()).Inc()
	}
	return res
}
