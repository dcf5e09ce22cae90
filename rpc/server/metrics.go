package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics groups the metrics of one server instance. All of them live
// in their own set so several servers in one process do not collide.
type serverMetrics struct {
	set               *metrics.Set
	activeConnections *metrics.Counter
	activeStreams     *metrics.Counter
	protocolErrors    *metrics.Counter
}

func newServerMetrics() *serverMetrics {
	set := metrics.NewSet()
	return &serverMetrics{
		set:               set,
		activeConnections: set.NewCounter("skv_active_connections"),
		activeStreams:     set.NewCounter("skv_active_streams"),
		protocolErrors:    set.NewCounter("skv_protocol_errors_total"),
	}
}

// observeBroadcaster exports the subscription count and publish counter
func (m *serverMetrics) observeBroadcaster(b *Broadcaster) {
	m.set.NewGauge("skv_subscriptions", func() float64 { return float64(b.Len()) })
	m.set.NewGauge("skv_published_total", func() float64 { return float64(b.Published()) })
}

// observe records one executed command
func (m *serverMetrics) observe(kind common.RequestKind, status uint32, start time.Time) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`skv_requests_total{cmd=%q}`, kind)).Inc()
	if status >= 400 {
		m.set.GetOrCreateCounter(fmt.Sprintf(`skv_request_errors_total{cmd=%q}`, kind)).Inc()
	}
	m.set.GetOrCreateHistogram(fmt.Sprintf(`skv_request_duration_seconds{cmd=%q}`, kind)).UpdateDuration(start)
}
