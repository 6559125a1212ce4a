// Package metrics exposes accrual and ledger activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Recorder is what the run, refund and api layers report into
type Recorder interface {
	RunStarted()
	RunEnded(reason string)
	ChunkCredited(amount decimal.Decimal)
	RefundProcessed(amount decimal.Decimal)
	WithdrawalRecorded(amount decimal.Decimal)
	HeartbeatThrottled()
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	runsStarted        prometheus.Counter
	runsEnded          *prometheus.CounterVec
	chunksCredited     prometheus.Counter
	earningsCredited   prometheus.Counter
	refundsProcessed   prometheus.Counter
	refundedPrincipal  prometheus.Counter
	withdrawals        prometheus.Counter
	withdrawnAmount    prometheus.Counter
	heartbeatThrottled prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_runs_started_total",
			Help: "Run sessions started",
		}),
		runsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contractrun_runs_ended_total",
			Help: "Run sessions finalized, by end reason",
		}, []string{"reason"}),
		chunksCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_chunks_credited_total",
			Help: "Accrual chunks credited to the ledger",
		}),
		earningsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_earnings_credited_total",
			Help: "Sum of accrual chunk amounts credited",
		}),
		refundsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_refunds_processed_total",
			Help: "Matured contracts refunded",
		}),
		refundedPrincipal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_refunded_principal_total",
			Help: "Sum of refunded principal",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_withdrawals_total",
			Help: "Withdrawals recorded",
		}),
		withdrawnAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_withdrawn_amount_total",
			Help: "Sum of withdrawn amounts",
		}),
		heartbeatThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contractrun_heartbeats_throttled_total",
			Help: "Heartbeats rejected by the per-user rate limit",
		}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsEnded,
		c.chunksCredited,
		c.earningsCredited,
		c.refundsProcessed,
		c.refundedPrincipal,
		c.withdrawals,
		c.withdrawnAmount,
		c.heartbeatThrottled,
	)

	return c
}

func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
}

func (c *Collector) RunEnded(reason string) {
	c.runsEnded.WithLabelValues(reason).Inc()
}

func (c *Collector) ChunkCredited(amount decimal.Decimal) {
	c.chunksCredited.Inc()
	c.earningsCredited.Add(amount.InexactFloat64())
}

func (c *Collector) RefundProcessed(amount decimal.Decimal) {
	c.refundsProcessed.Inc()
	c.refundedPrincipal.Add(amount.InexactFloat64())
}

func (c *Collector) WithdrawalRecorded(amount decimal.Decimal) {
	c.withdrawals.Inc()
	c.withdrawnAmount.Add(amount.InexactFloat64())
}

func (c *Collector) HeartbeatThrottled() {
	c.heartbeatThrottled.Inc()
}

// Noop discards everything
type Noop struct{}

func (Noop) RunStarted()                        {}
func (Noop) RunEnded(string)                    {}
func (Noop) ChunkCredited(decimal.Decimal)      {}
func (Noop) RefundProcessed(decimal.Decimal)    {}
func (Noop) WithdrawalRecorded(decimal.Decimal) {}
func (Noop) HeartbeatThrottled()                {}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
