package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	// counters
	repostsSubmitted uint64
	repostsExecuted  uint64
	repostsFailed    uint64
	repostsCanceled  uint64
	feedRefreshes    uint64

	// gauges
	pending int64
}

func New() *Metrics {
	return &Metrics{}
}

// counters
func (m *Metrics) IncSubmitted()     { atomic.AddUint64(&m.repostsSubmitted, 1) }
func (m *Metrics) IncExecuted()      { atomic.AddUint64(&m.repostsExecuted, 1) }
func (m *Metrics) IncFailed()        { atomic.AddUint64(&m.repostsFailed, 1) }
func (m *Metrics) IncCanceled()      { atomic.AddUint64(&m.repostsCanceled, 1) }
func (m *Metrics) IncFeedRefreshes() { atomic.AddUint64(&m.feedRefreshes, 1) }

// gauges
func (m *Metrics) IncPending() { atomic.AddInt64(&m.pending, 1) }
func (m *Metrics) DecPending() { atomic.AddInt64(&m.pending, -1) }

func (m *Metrics) Pending() int64 { return atomic.LoadInt64(&m.pending) }

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("content-type", "text/plain; version=0.0.4")
		fmt.Fprintf(w,
			"reposts_submitted_total %d\n"+
				"reposts_executed_total %d\n"+
				"reposts_failed_total %d\n"+
				"reposts_canceled_total %d\n"+
				"feed_refreshes_total %d\n"+
				"reposts_pending %d\n",
			atomic.LoadUint64(&m.repostsSubmitted),
			atomic.LoadUint64(&m.repostsExecuted),
			atomic.LoadUint64(&m.repostsFailed),
			atomic.LoadUint64(&m.repostsCanceled),
			atomic.LoadUint64(&m.feedRefreshes),
			atomic.LoadInt64(&m.pending),
		)
	})
}
