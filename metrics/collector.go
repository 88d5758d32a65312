// Package metrics exposes session counters to Prometheus.
//
// The Collector reads Stats at scrape time, so the audio path only ever does
// the atomic adds it already does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwbudde/algo-elem/bridge"
)

const namespace = "elem"

// Source is anything that reports session stats, typically a bridge.Handle.
type Source interface {
	Stats() bridge.Stats
}

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(st bridge.Stats) float64
}

// Collector implements prometheus.Collector for one session.
type Collector struct {
	src     Source
	metrics []metric
}

func newDesc(subsystem, name, help string, labels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, labels)
}

// NewCollector returns a collector for src. constLabels are attached to
// every metric and distinguish sessions sharing a registry.
func NewCollector(src Source, constLabels prometheus.Labels) *Collector {
	counter := func(subsystem, name, help string, value func(st bridge.Stats) float64) metric {
		return metric{desc: newDesc(subsystem, name, help, constLabels), kind: prometheus.CounterValue, value: value}
	}

	gauge := func(subsystem, name, help string, value func(st bridge.Stats) float64) metric {
		return metric{desc: newDesc(subsystem, name, help, constLabels), kind: prometheus.GaugeValue, value: value}
	}

	return &Collector{
		src: src,
		metrics: []metric{
			gauge("runtime", "sample_rate_hz", "Session sample rate.",
				func(st bridge.Stats) float64 { return st.SampleRate }),
			gauge("runtime", "block_size_frames", "Maximum frames evaluated per graph pass.",
				func(st bridge.Stats) float64 { return float64(st.BlockSize) }),
			gauge("runtime", "nodes", "Nodes in the committed graph.",
				func(st bridge.Stats) float64 { return float64(st.Nodes) }),
			gauge("runtime", "active_nodes", "Nodes evaluated by the audio path.",
				func(st bridge.Stats) float64 { return float64(st.ActiveNodes) }),
			gauge("runtime", "roots", "Active root nodes.",
				func(st bridge.Stats) float64 { return float64(st.Roots) }),
			gauge("runtime", "shared_resources", "Registered shared resources.",
				func(st bridge.Stats) float64 { return float64(st.Resources) }),
			counter("runtime", "frames_total", "Frames processed.",
				func(st bridge.Stats) float64 { return float64(st.FramesProcessed) }),
			counter("runtime", "blocks_total", "Graph passes evaluated.",
				func(st bridge.Stats) float64 { return float64(st.BlocksProcessed) }),
			counter("runtime", "faults_total", "Blocks silenced by a node fault.",
				func(st bridge.Stats) float64 { return float64(st.Faults) }),
			counter("runtime", "events_dropped_total", "Audio events lost to a full queue.",
				func(st bridge.Stats) float64 { return float64(st.EventsDropped) }),
			counter("runtime", "analysis_dropped_total", "Analysis samples lost to a full node queue.",
				func(st bridge.Stats) float64 { return float64(st.AnalysisDropped) }),
			counter("runtime", "batches_total", "Instruction batches applied.",
				func(st bridge.Stats) float64 { return float64(st.Batches) }),
			counter("runtime", "instructions_applied_total", "Instructions that validated.",
				func(st bridge.Stats) float64 { return float64(st.InstructionsApplied) }),
			counter("runtime", "instructions_rejected_total", "Instructions that were rejected.",
				func(st bridge.Stats) float64 { return float64(st.InstructionsRejected) }),
			counter("runtime", "snapshots_published_total", "Compiled graphs handed to the audio path.",
				func(st bridge.Stats) float64 { return float64(st.SnapshotsPublished) }),
			counter("runtime", "resources_registered_total", "Shared resource registrations.",
				func(st bridge.Stats) float64 { return float64(st.ResourcesRegistered) }),
			counter("bridge", "event_batches_truncated_total", "Drains cut at the batch size limit.",
				func(st bridge.Stats) float64 { return float64(st.EventsTruncated) }),
			counter("bridge", "events_discarded_total", "Events that could not be encoded.",
				func(st bridge.Stats) float64 { return float64(st.EventsDiscarded) }),
			counter("bridge", "decode_errors_total", "Instruction batches that did not decode.",
				func(st bridge.Stats) float64 { return float64(st.DecodeErrors) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(st))
	}
}
