// Copyright 2024-2025 Ali Sufyan Baig
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the aggregator's snapshot as Prometheus metrics.
// Values are computed on scrape; there is no separate metrics state to
// keep in sync with the registry.
type Collector struct {
	aggregator *Aggregator

	activeConns   *prometheus.Desc
	successTotal  *prometheus.Desc
	failureTotal  *prometheus.Desc
	bytesSent     *prometheus.Desc
	bytesReceived *prometheus.Desc
	successRate   *prometheus.Desc
	avgResponse   *prometheus.Desc
	status        *prometheus.Desc
	outcomeTotal  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(aggregator *Aggregator) *Collector {
	labels := []string{"interface", "ip"}
	return &Collector{
		aggregator: aggregator,
		activeConns: prometheus.NewDesc(
			"lb_interface_active_connections",
			"Current number of in-flight sessions bound to the interface",
			labels, nil,
		),
		successTotal: prometheus.NewDesc(
			"lb_interface_success_total",
			"Total number of successful sessions and probes",
			labels, nil,
		),
		failureTotal: prometheus.NewDesc(
			"lb_interface_failure_total",
			"Total number of failed sessions and probes",
			labels, nil,
		),
		bytesSent: prometheus.NewDesc(
			"lb_interface_bytes_sent_total",
			"Total bytes relayed from clients to upstreams",
			labels, nil,
		),
		bytesReceived: prometheus.NewDesc(
			"lb_interface_bytes_received_total",
			"Total bytes relayed from upstreams to clients",
			labels, nil,
		),
		successRate: prometheus.NewDesc(
			"lb_interface_success_rate",
			"Success ratio over all recorded outcomes",
			labels, nil,
		),
		avgResponse: prometheus.NewDesc(
			"lb_interface_avg_response_seconds",
			"Average session response time",
			labels, nil,
		),
		status: prometheus.NewDesc(
			"lb_interface_status",
			"Interface status as a numeric code (-1 healthy, 0 unknown, 1 degraded, 2 failed)",
			labels, nil,
		),
		outcomeTotal: prometheus.NewDesc(
			"lb_outcomes_total",
			"Total recorded session and probe outcomes across all interfaces",
			[]string{"result"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConns
	ch <- c.successTotal
	ch <- c.failureTotal
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.successRate
	ch <- c.avgResponse
	ch <- c.status
	ch <- c.outcomeTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var successes, failures uint64
	for _, rec := range c.aggregator.registry.List() {
		successes += rec.SuccessCount
		failures += rec.FailureCount
		labels := []string{rec.Identity.Name, rec.Identity.IP}
		ch <- prometheus.MustNewConstMetric(c.activeConns, prometheus.GaugeValue,
			float64(rec.ActiveConnections), labels...)
		ch <- prometheus.MustNewConstMetric(c.successTotal, prometheus.CounterValue,
			float64(rec.SuccessCount), labels...)
		ch <- prometheus.MustNewConstMetric(c.failureTotal, prometheus.CounterValue,
			float64(rec.FailureCount), labels...)
		ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue,
			float64(rec.BytesSent), labels...)
		ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue,
			float64(rec.BytesReceived), labels...)
		ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue,
			rec.SuccessRate(), labels...)
		ch <- prometheus.MustNewConstMetric(c.avgResponse, prometheus.GaugeValue,
			rec.AvgResponseTime().Seconds(), labels...)
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue,
			float64(rec.Status), labels...)
	}
	ch <- prometheus.MustNewConstMetric(c.outcomeTotal, prometheus.CounterValue,
		float64(successes), "success")
	ch <- prometheus.MustNewConstMetric(c.outcomeTotal, prometheus.CounterValue,
		float64(failures), "failure")
}
