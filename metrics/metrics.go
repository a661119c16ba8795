// Package metrics instruments one transfer's lifetime counters and an RTT
// histogram using github.com/prometheus/client_golang: plain counters and a
// histogram registered in a private prometheus.Registry, a simplified form
// of the custom-Collector metric set in
// runZeroInc-sockstats/pkg/exporter/exporter.go. This protocol's CLI
// contract (spec.md §6) fixes argv exactly and rules out extra flags or env
// vars, so there is no HTTP listener here: the registry is gathered once at
// teardown and logged as a single structured line instead of being scraped
// live.
//
// Each run also gets a short correlation ID from github.com/rs/xid, the
// same library runZeroInc-sockstats uses to tag connections, attached as
// run_id to the summary line that LogSummary emits.
package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
)

// Transfer holds the counters and histogram for one sender or receiver run.
type Transfer struct {
	ID string

	segmentsSent     prometheus.Counter
	segmentsReceived prometheus.Counter
	retransmissions  prometheus.Counter
	timeouts         prometheus.Counter
	bytesAcked       prometheus.Counter
	rttMicros        prometheus.Histogram

	registry *prometheus.Registry
}

// NewTransfer constructs a fresh, independently registered metric set
// scoped to role ("sender" or "receiver"), with a new correlation ID.
func NewTransfer(role string) *Transfer {
	reg := prometheus.NewRegistry()
	t := &Transfer{
		ID:       xid.New().String(),
		registry: reg,
		segmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "udpltcp_segments_sent_total",
			Help:        "Segments transmitted, including retransmissions.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		segmentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "udpltcp_segments_received_total",
			Help:        "Segments received and passed checksum validation.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "udpltcp_retransmissions_total",
			Help:        "Segments re-sent after a retransmission timeout.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "udpltcp_timeouts_total",
			Help:        "Retransmission timer expirations.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		bytesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "udpltcp_bytes_acked_total",
			Help:        "Payload bytes cumulatively acknowledged.",
			ConstLabels: prometheus.Labels{"role": role},
		}),
		rttMicros: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "udpltcp_rtt_micros",
			Help:        "Sampled round-trip times, in microseconds.",
			ConstLabels: prometheus.Labels{"role": role},
			Buckets:     prometheus.ExponentialBuckets(1000, 2, 12),
		}),
	}
	reg.MustRegister(t.segmentsSent, t.segmentsReceived, t.retransmissions,
		t.timeouts, t.bytesAcked, t.rttMicros)
	return t
}

func (t *Transfer) SegmentSent()       { t.segmentsSent.Inc() }
func (t *Transfer) SegmentReceived()   { t.segmentsReceived.Inc() }
func (t *Transfer) Retransmission()    { t.retransmissions.Inc() }
func (t *Transfer) Timeout()           { t.timeouts.Inc() }
func (t *Transfer) BytesAcked(n int)   { t.bytesAcked.Add(float64(n)) }
func (t *Transfer) RTTSample(micros int64) { t.rttMicros.Observe(float64(micros)) }

// LogSummary gathers the registry once and emits a single structured log
// line with the final counter values, tagged with the run's correlation ID.
func (t *Transfer) LogSummary(logger *slog.Logger) {
	if logger == nil {
		return
	}
	mfs, err := t.registry.Gather()
	if err != nil {
		logger.Warn("metrics gather failed", "run_id", t.ID, "error", err)
		return
	}
	attrs := make([]any, 0, 2*len(mfs)+2)
	attrs = append(attrs, "run_id", t.ID)
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, mf.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				attrs = append(attrs, mf.GetName()+"_count", h.GetSampleCount())
				attrs = append(attrs, mf.GetName()+"_sum", h.GetSampleSum())
			}
		}
	}
	logger.Info("transfer complete", attrs...)
}
