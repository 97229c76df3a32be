package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	pulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulls_total",
			Help:      "Pull operations by conflict decision (or error).",
		},
		[]string{"decision"},
	)

	pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Push operations by outcome.",
		},
		[]string{"outcome"},
	)

	writeTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_tasks_total",
			Help:      "Write tasks executed by the serializer, by outcome.",
		},
		[]string{"outcome"},
	)

	retryQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_length",
			Help:      "Write tasks waiting in the retry queue.",
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the connectivity monitor reports online.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, pulls, pushes, writeTasks, retryQueueLength, online)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncPull(decision string) {
	pulls.WithLabelValues(decision).Inc()
}

func IncPush(outcome string) {
	pushes.WithLabelValues(outcome).Inc()
}

func IncWriteTask(outcome string) {
	writeTasks.WithLabelValues(outcome).Inc()
}

func SetQueueLength(n int) {
	retryQueueLength.Set(float64(n))
}

func SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
		return
	}
	online.Set(0)
}
