/*
Copyright © 2019 the nctiff authors.
This file is part of nctiff.

nctiff is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

nctiff is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with nctiff.  If not, see <http://www.gnu.org/licenses/>.
*/

package nctiff

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "nctiff_"

// Metrics holds the counters of one batch run. Each Batch has its own
// registry so that concurrent batches do not share state.
type Metrics struct {
	Registry *prometheus.Registry

	jobs          *prometheus.CounterVec
	skipped       prometheus.Counter
	missingPixels prometheus.Counter
	jobDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
}

// NewMetrics returns metrics registered on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "jobs_total",
				Help: "Number of conversion jobs by result",
			},
			[]string{"result", "token"},
		),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "skipped_sources_total",
			Help: "Number of source files that could not be opened",
		}),
		missingPixels: f.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "nodata_pixels_total",
			Help: "Number of pixels written as nodata",
		}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    metricsPrefix + "job_duration_seconds",
			Help:    "Time taken to extract and encode one raster",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "last_run_timestamp_seconds",
			Help: "Time the last batch run completed",
		}),
	}
}

func (m *Metrics) recordOutcome(o *Outcome, d time.Duration) {
	result := "success"
	if !o.OK() {
		result = "failure"
	}
	m.jobs.WithLabelValues(result, o.Token).Inc()
	m.jobDuration.Observe(d.Seconds())
	if o.OK() {
		m.missingPixels.Add(float64(o.Stats.Missing))
	}
}

func (m *Metrics) recordSkipped() { m.skipped.Inc() }

func (m *Metrics) recordCompletion() { m.lastRun.SetToCurrentTime() }

// WriteTextfile writes the metrics in the Prometheus text format to
// path, for collection by the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
