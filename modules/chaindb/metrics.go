// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.
//
// The ledgerstore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgerstore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgerstore library. If not, see <http://www.gnu.org/licenses/>.

package chaindb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics groups the counters and gauges a Database exposes. A nil
// *metrics (the zero value returned by newMetrics(nil)) makes every method
// a no-op, so callers that don't want a registry don't pay for one.
type metrics struct {
	writes       prometheus.Counter
	writeErrors  prometheus.Counter
	blocksPushed prometheus.Counter
	blocksPopped prometheus.Counter
	reorgDepth   prometheus.Histogram
	candidateTop prometheus.Gauge
	confirmedTop prometheus.Gauge
}

// newMetrics registers the facade's metrics against reg. A nil reg skips
// registration entirely; every metric method becomes a safe no-op.
func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		writes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chaindb", Name: "writes_total", Help: "Completed write transactions.",
		}),
		writeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chaindb", Name: "write_errors_total", Help: "Write transactions that returned before end_write.",
		}),
		blocksPushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chaindb", Name: "blocks_pushed_total", Help: "Headers and blocks pushed by PushHeader and PushBlock.",
		}),
		blocksPopped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chaindb", Name: "blocks_popped_total", Help: "Entries popped off the candidate or confirmed index by PopAbove.",
		}),
		reorgDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chaindb", Name: "reorg_depth", Help: "Number of blocks popped per reorganize call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		candidateTop: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chaindb", Name: "candidate_height", Help: "Current top of the candidate index.",
		}),
		confirmedTop: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chaindb", Name: "confirmed_height", Help: "Current top of the confirmed index.",
		}),
	}
}

func (m *metrics) observeWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.writeErrors.Inc()
		return
	}
	m.writes.Inc()
}

func (m *metrics) observePush() {
	if m == nil {
		return
	}
	m.blocksPushed.Inc()
}

func (m *metrics) observeReorg(depth int) {
	if m == nil {
		return
	}
	m.blocksPopped.Add(float64(depth))
	m.reorgDepth.Observe(float64(depth))
}

func (m *metrics) setTops(candidate, confirmed uint32) {
	if m == nil {
		return
	}
	m.candidateTop.Set(float64(candidate))
	m.confirmedTop.Set(float64(confirmed))
}
