package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pilosa/wdhistory"
)

// WorkerSample is what a worker reports after each page.
type WorkerSample struct {
	Worker    int
	Pages     int64
	Revisions int64
	Changes   int64
	Busy      time.Duration
}

// Monitor periodically reports throughput and queue depths. Workers hand it
// samples without blocking; samples that don't fit are dropped, so the
// Monitor never slows down or affects the pipeline.
type Monitor struct {
	samples  chan WorkerSample
	interval time.Duration
	stats    wdhistory.Statter
	log      wdhistory.Logger
	queue    func() int
	results  func() int

	dropped int64

	Pages     int64
	Revisions int64
	Changes   int64
}

// NewMonitor returns a Monitor sampling queue and results depths with the
// given functions every interval.
func NewMonitor(interval time.Duration, queue, results func() int, stats wdhistory.Statter, log wdhistory.Logger) *Monitor {
	return &Monitor{
		samples:  make(chan WorkerSample, 1024),
		interval: interval,
		stats:    stats,
		log:      log,
		queue:    queue,
		results:  results,
	}
}

// Sample records s if there is room.
func (m *Monitor) Sample(s WorkerSample) {
	select {
	case m.samples <- s:
	default:
		atomic.AddInt64(&m.dropped, 1)
	}
}

// Dropped returns the number of samples dropped so far.
func (m *Monitor) Dropped() int64 { return atomic.LoadInt64(&m.dropped) }

// Run aggregates samples and reports every interval until ctx is done,
// then drains pending samples and reports once more.
func (m *Monitor) Run(ctx context.Context) {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	last := time.Now()
	var pages, changes int64
	for {
		select {
		case s := <-m.samples:
			m.add(s)
		case now := <-tick.C:
			m.report(now.Sub(last), m.Pages-pages, m.Changes-changes)
			last, pages, changes = now, m.Pages, m.Changes
		case <-ctx.Done():
		drain:
			for {
				select {
				case s := <-m.samples:
					m.add(s)
				default:
					break drain
				}
			}
			m.report(time.Since(last), m.Pages-pages, m.Changes-changes)
			return
		}
	}
}

func (m *Monitor) add(s WorkerSample) {
	m.Pages += s.Pages
	m.Revisions += s.Revisions
	m.Changes += s.Changes
	m.stats.Timing("worker.busy", s.Busy, 1)
}

func (m *Monitor) report(elapsed time.Duration, pages, changes int64) {
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	q, r := m.queue(), m.results()
	m.stats.Gauge("queue.depth", float64(q), 1)
	m.stats.Gauge("results.depth", float64(r), 1)
	m.stats.Gauge("pages.rate", float64(pages)/secs, 1)
	m.stats.Gauge("changes.rate", float64(changes)/secs, 1)
	m.log.Printf("pages=%d revisions=%d changes=%d pages/s=%.1f changes/s=%.1f queue=%d results=%d dropped=%d",
		m.Pages, m.Revisions, m.Changes, float64(pages)/secs, float64(changes)/secs, q, r, m.Dropped())
}
