package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "soultalk"

// Metrics holds the Prometheus collectors of the chat view pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Recording metrics
	RecordingsStarted  prometheus.Counter
	RecordingsRejected *prometheus.CounterVec
	SamplesCaptured    prometheus.Counter
	ContainersEncoded  prometheus.Counter
	EncodeFailures     prometheus.Counter
	RecordingSeconds   prometheus.Histogram

	// Backend metrics
	MessagesSent     *prometheus.CounterVec
	PendingUploads   prometheus.Gauge
	Reconciliations  *prometheus.CounterVec
	StaleCompletions prometheus.Counter

	// Speech metrics
	UtterancesStarted   prometheus.Counter
	UtterancesPreempted prometheus.Counter
}

// New registers every collector on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of recordings that acquired the capture device",
		}),
		RecordingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_rejected_total",
			Help:      "Total number of recording starts that were refused",
		}, []string{"reason"}),
		SamplesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_captured_total",
			Help:      "Total number of samples accumulated from the capture device",
		}),
		ContainersEncoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "containers_encoded_total",
			Help:      "Total number of WAV containers produced",
		}),
		EncodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_failures_total",
			Help:      "Total number of recordings that failed to encode",
		}),
		RecordingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Length of encoded recordings",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent to the backend",
		}, []string{"kind", "outcome"}),
		PendingUploads: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_uploads",
			Help:      "Number of voice uploads awaiting a backend response",
		}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Timeline reconciliations by pairing rule",
		}, []string{"rule"}),
		StaleCompletions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_total",
			Help:      "Backend completions dropped because the session changed",
		}),
		UtterancesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_started_total",
			Help:      "Total number of spoken replies started",
		}),
		UtterancesPreempted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_preempted_total",
			Help:      "Total number of spoken replies cut off by a newer one",
		}),
	}
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

func (m *Metrics) RecordingRejected(reason string) {
	if m == nil {
		return
	}
	m.RecordingsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) BlockCaptured(samples int) {
	if m == nil {
		return
	}
	m.SamplesCaptured.Add(float64(samples))
}

// ContainerEncoded records a finished recording of the given length
func (m *Metrics) ContainerEncoded(samples, sampleRate int) {
	if m == nil {
		return
	}
	m.ContainersEncoded.Inc()
	if sampleRate > 0 {
		m.RecordingSeconds.Observe(float64(samples) / float64(sampleRate))
	}
}

func (m *Metrics) EncodeFailed() {
	if m == nil {
		return
	}
	m.EncodeFailures.Inc()
}

// MessageSent records a completed backend call. kind is "text" or "voice".
func (m *Metrics) MessageSent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.MessagesSent.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) UploadStarted() {
	if m == nil {
		return
	}
	m.PendingUploads.Inc()
}

func (m *Metrics) UploadFinished() {
	if m == nil {
		return
	}
	m.PendingUploads.Dec()
}

// Reconciled records which rule paired a response with its entries
func (m *Metrics) Reconciled(rule string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(rule).Inc()
}

func (m *Metrics) StaleCompletion() {
	if m == nil {
		return
	}
	m.StaleCompletions.Inc()
}

// UtteranceStarted records a new utterance and whether it cut off another
func (m *Metrics) UtteranceStarted(preempted bool) {
	if m == nil {
		return
	}
	m.UtterancesStarted.Inc()
	if preempted {
		m.UtterancesPreempted.Inc()
	}
}
