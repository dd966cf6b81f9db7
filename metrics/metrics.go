package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// StreamsTotal counts finished chat streams by provider and outcome.
	StreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "streams_total",
		Help:      "Total number of chat streams relayed, labeled by provider and result (completed, error, aborted).",
	}, []string{"provider", "result"})

	// StreamDurationSeconds is the wall time from user message to stream_ended.
	StreamDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatrelay",
		Name:      "stream_duration_seconds",
		Help:      "Time spent relaying a chat stream, from the stored user message to the final frame.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"provider"})

	ChunksSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "chunks_sent_total",
		Help:      "Total number of batched chunk events written to clients.",
	}, []string{"provider"})

	ProviderRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "provider_retries_total",
		Help:      "Total number of provider request retries after a retryable failure.",
	}, []string{"provider"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "notifications_total",
		Help:      "Total number of conference notifications sent, labeled by channel (email, sms) and result.",
	}, []string{"channel", "result"})

	// EventsPublishErrorTotal counts message events that could not be published to RabbitMQ.
	EventsPublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chatrelay",
		Name:      "events_publish_error_total",
		Help:      "Total number of chat message events that failed to publish.",
	})
)

// Register registers relay metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			StreamsTotal,
			StreamDurationSeconds,
			ChunksSentTotal,
			ProviderRetriesTotal,
			NotificationsTotal,
			EventsPublishErrorTotal,
		)
	})
}
