// Package stats exposes the agent's own counters to Prometheus.
package stats

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "odytelem"

// Drop reasons
const (
	ReasonEncode  = "encode"
	ReasonPublish = "publish"
)

const (
	ErrListenFailed = errors.ErrorCode("stats_listen_failed")
	ErrRegister     = errors.ErrorCode("stats_register_failed")
)

var (
	MeasurementsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "measurements_enqueued_total",
		Help:      "Measurements handed from the sampler to the publish queue",
	}, []string{"topic"})
	SensorReadFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sensor_read_failures_total",
		Help:      "Sampler ticks skipped because a reading failed",
	}, []string{"sensor"})

	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_published_total",
		Help:      "Measurements handed to the broker transport",
	}, []string{"topic"})
	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_dropped_total",
		Help:      "Outbound measurements dropped, by reason",
	}, []string{"reason"})
	TransportErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_errors_total",
		Help:      "Errors reported by the broker transport",
	})

	InboundFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_frames_total",
		Help:      "Inbound frames decoded successfully",
	})
	InboundDecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_decode_failures_total",
		Help:      "Inbound frames that could not be decoded",
	})
	InboundEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_dropped_total",
		Help:      "Transport events dropped because the event buffer was full",
	})

	JournalFlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "journal_flush_duration_seconds",
		Help:      "Duration of publish journal flushes",
		Buckets:   prometheus.DefBuckets,
	})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MeasurementsEnqueued,
			SensorReadFailures,
			MessagesPublished,
			MessagesDropped,
			TransportErrors,
			InboundFrames,
			InboundDecodeFailures,
			InboundEventsDropped,
			JournalFlushDuration,
		)
	})
}

// RegisterSignal exposes the latest inbound signal value as a gauge. Only
// the first registration takes effect.
func RegisterSignal(topic string, read func() float32) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "inbound_signal",
		Help:        "Latest value received on the inbound topic",
		ConstLabels: prometheus.Labels{"topic": topic},
	}, func() float64 {
		return float64(read())
	})

	if err := prometheus.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return errors.New().Wrap(ErrRegister, err)
	}

	return nil
}

// RecordJournalFlush tracks a completed journal flush.
func RecordJournalFlush(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	JournalFlushDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler that exposes the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled. The listener is
// opened before Serve returns so that a bad address fails at startup; the
// bound address is returned.
func Serve(ctx context.Context, addr string) (net.Addr, error) {
	log := logger.For("stats")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.New().Wrap(ErrListenFailed, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("Metrics server shutdown")
		}
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	log.Info().Str("addr", listener.Addr().String()).Msg("Serving metrics")
	return listener.Addr(), nil
}
