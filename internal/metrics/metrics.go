// Package metrics adapts the teacher repo's Prometheus collector shape
// (pkg/exporter.TCPInfoCollector: a Describe/Collect pair over a
// mutex-guarded map of polled entries, each yielding one
// prometheus.Metric per tracked stat) from per-connection TCP_INFO
// polling to the channel event counters spec §3 defines.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lovasko-rewrite/nemo/pkg/channel"
)

type stat struct {
	description *prometheus.Desc
	supplier    func(snap channel.Snapshot) float64
}

// ChannelCollector exports one Channel's Counters as a Prometheus
// counter set, labeled by the channel's address family.
type ChannelCollector struct {
	mu      sync.Mutex
	entries map[string]*channel.Channel
	stats   []stat
}

// NewChannelCollector builds the collector with constLabels applied to
// every exported series (e.g. {role="requester"} or
// {role="responder"}), mirroring the teacher's constLabels parameter.
func NewChannelCollector(constLabels prometheus.Labels) *ChannelCollector {
	c := &ChannelCollector{entries: make(map[string]*channel.Channel)}
	c.addStats(constLabels)
	return c
}

func (c *ChannelCollector) addStats(constLabels prometheus.Labels) {
	def := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("nemo_channel_"+name, help, []string{"family"}, constLabels)
	}
	c.stats = []stat{
		{def("recv_total", "Total datagrams received."), func(s channel.Snapshot) float64 { return float64(s.RecvTotal) }},
		{def("recv_network_error_total", "Receive-path network errors."), func(s channel.Snapshot) float64 { return float64(s.RecvNetworkError) }},
		{def("recv_size_mismatch_total", "Datagrams rejected for short length or payload_length mismatch."), func(s channel.Snapshot) float64 { return float64(s.RecvSizeMismatch) }},
		{def("recv_magic_mismatch_total", "Datagrams rejected for bad magic."), func(s channel.Snapshot) float64 { return float64(s.RecvMagicMismatch) }},
		{def("recv_version_mismatch_total", "Datagrams rejected for bad format_version."), func(s channel.Snapshot) float64 { return float64(s.RecvVersionMismatch) }},
		{def("recv_type_mismatch_total", "Datagrams rejected for unexpected msg_type."), func(s channel.Snapshot) float64 { return float64(s.RecvTypeMismatch) }},
		{def("sent_total", "Total datagrams sent."), func(s channel.Snapshot) float64 { return float64(s.SentTotal) }},
		{def("sent_network_error_total", "Send-path network errors."), func(s channel.Snapshot) float64 { return float64(s.SentNetworkError) }},
	}
}

// Add registers a Channel for export under its family's label.
func (c *ChannelCollector) Add(ch *channel.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ch.Family().String()] = ch
}

// Describe implements prometheus.Collector.
func (c *ChannelCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		descs <- s.description
	}
}

// Collect implements prometheus.Collector.
func (c *ChannelCollector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for family, ch := range c.entries {
		snap := ch.Counters.Snapshot()
		for _, s := range c.stats {
			out <- prometheus.MustNewConstMetric(s.description, prometheus.CounterValue, s.supplier(snap), family)
		}
	}
}
