package provision

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/scttfrdmn/barkuni/pkg/types"
)

// Metrics records provisioning outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provisions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	attempts   *prometheus.HistogramVec
}

// NewMetrics creates the provisioning collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		provisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "barkuni",
				Subsystem: "provision",
				Name:      "total",
				Help:      "Provisioning attempts by terminal result and error kind",
			},
			[]string{"provider", "result", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "barkuni",
				Subsystem: "provision",
				Name:      "duration_seconds",
				Help:      "Time from launch request to terminal result",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
			},
			[]string{"provider", "result"},
		),
		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "barkuni",
				Subsystem: "provision",
				Name:      "describe_attempts",
				Help:      "Describe calls made before a terminal result",
				Buckets:   prometheus.LinearBuckets(1, 5, 12),
			},
			[]string{"provider"},
		),
	}

	for _, c := range []prometheus.Collector{m.provisions, m.duration, m.attempts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register provisioning metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(provider string, result *types.ProvisionResult) {
	if m == nil || result == nil {
		return
	}
	outcome := string(result.FinalState)
	m.provisions.WithLabelValues(provider, outcome, string(result.ErrorKind())).Inc()
	m.duration.WithLabelValues(provider, outcome).Observe(result.Duration.Seconds())
	m.attempts.WithLabelValues(provider).Observe(float64(result.Attempts))
}

// PushMetrics sends everything gathered by g to a Prometheus Pushgateway.
// An empty url is a no-op.
func PushMetrics(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
