package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lua_inspector"

// Collector 把控制器事件记录为 prometheus 指标，实现 debugger.Observer
type Collector struct {
	sessions      prometheus.Gauge
	connects      prometheus.Counter
	dispatched    prometheus.Counter
	queued        prometheus.Counter
	queueDepth    prometheus.Gauge
	pauses        prometheus.Counter
	paused        prometheus.Gauge
	pauseDuration prometheus.Histogram
}

// NewCollector 创建并注册指标，reg 为空时只创建不注册
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected debug sessions.",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connects_total",
			Help:      "Total number of debug sessions established.",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Total number of protocol messages handed to the agent.",
		}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_queued_total",
			Help:      "Total number of protocol messages queued for the client.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_queue_depth",
			Help:      "Outbound messages waiting to be collected, sampled on enqueue.",
		}),
		pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pauses_total",
			Help:      "Total number of times the script was paused.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while the script is paused.",
		}),
		pauseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pause_duration_seconds",
			Help:      "Time spent in the pause loop.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		}),
	}
	if reg != nil {
		reg.MustRegister(c.sessions, c.connects, c.dispatched, c.queued,
			c.queueDepth, c.pauses, c.paused, c.pauseDuration)
	}
	return c
}

func (c *Collector) SessionConnected() {
	c.sessions.Inc()
	c.connects.Inc()
}

func (c *Collector) SessionDisconnected() {
	c.sessions.Dec()
}

func (c *Collector) MessageDispatched() {
	c.dispatched.Inc()
}

func (c *Collector) MessageQueued(depth int) {
	c.queued.Inc()
	c.queueDepth.Set(float64(depth))
}

func (c *Collector) PauseStarted() {
	c.pauses.Inc()
	c.paused.Set(1)
}

func (c *Collector) PauseFinished(duration time.Duration) {
	c.paused.Set(0)
	c.pauseDuration.Observe(duration.Seconds())
}
