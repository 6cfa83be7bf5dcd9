// Package exposition renders probe results in the Prometheus text format.
package exposition

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/pingsantohq/iperf-exporter/internal/iperf"
)

const (
	MetricName = "iperf_metrics"
	metricHelp = "Metrics from iperf3"

	// ContentType is the media type of Render's output.
	ContentType = "text/plain; version=0.0.4; charset=utf-8"
)

var labelNames = []string{"direction", "field", "unit"}

// Observation is one labelled sample of a Result.
type Observation struct {
	Direction string
	Field     string
	Unit      string
	Value     float64
}

type field struct {
	name  string
	unit  string
	value func(iperf.Summary) float64
}

// fields is the fixed emission order within a direction.
var fields = []field{
	{"bytes", "B", func(s iperf.Summary) float64 { return float64(s.Bytes) }},
	{"bitrate", "bit/s", func(s iperf.Summary) float64 { return s.BitsPerSecond }},
	{"jitter", "ms", func(s iperf.Summary) float64 { return s.JitterMilliseconds }},
	{"lost_packets", "packets", func(s iperf.Summary) float64 { return float64(s.LostPackets) }},
	{"packets", "packets", func(s iperf.Summary) float64 { return float64(s.Packets) }},
	{"lost_percent", "%", func(s iperf.Summary) float64 { return s.LostPercent }},
}

var directions = []string{"sent", "received"}

// Observations flattens r into twelve samples: every field of the sent
// section followed by every field of the received section.
func Observations(r iperf.Result) []Observation {
	out := make([]Observation, 0, len(directions)*len(fields))
	for _, dir := range directions {
		summary := r.Sent
		if dir == "received" {
			summary = r.Received
		}
		for _, f := range fields {
			out = append(out, Observation{
				Direction: dir,
				Field:     f.name,
				Unit:      f.unit,
				Value:     f.value(summary),
			})
		}
	}
	return out
}

// Render encodes r as a single gauge family. Samples keep the order of
// Observations regardless of how the registry sorts them.
func Render(r iperf.Result) ([]byte, error) {
	obs := Observations(r)

	registry := prometheus.NewRegistry()
	gauges := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: MetricName,
		Help: metricHelp,
	}, labelNames)
	if err := registry.Register(gauges); err != nil {
		return nil, errors.Wrap(err, "register gauges")
	}
	for _, o := range obs {
		gauges.WithLabelValues(o.Direction, o.Field, o.Unit).Set(o.Value)
	}

	families, err := registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gather gauges")
	}
	if len(families) != 1 {
		return nil, errors.Errorf("expected one metric family, gathered %d", len(families))
	}
	family := families[0]
	family.Metric = inObservationOrder(family.Metric, obs)

	var buf bytes.Buffer
	if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
		return nil, errors.Wrap(err, "encode gauges")
	}
	return buf.Bytes(), nil
}

func inObservationOrder(metrics []*dto.Metric, obs []Observation) []*dto.Metric {
	byKey := make(map[[3]string]*dto.Metric, len(metrics))
	for _, m := range metrics {
		byKey[labelKey(m)] = m
	}
	ordered := make([]*dto.Metric, 0, len(obs))
	for _, o := range obs {
		if m, ok := byKey[[3]string{o.Direction, o.Field, o.Unit}]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func labelKey(m *dto.Metric) [3]string {
	var key [3]string
	for _, lp := range m.GetLabel() {
		for i, name := range labelNames {
			if lp.GetName() == name {
				key[i] = lp.GetValue()
			}
		}
	}
	return key
}
