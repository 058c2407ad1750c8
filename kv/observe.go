package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// metrics 封装 prometheus 指标
type metrics struct {
	operationCounter   *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	activeOperations   *prometheus.GaugeVec
	batchSizeHistogram *prometheus.HistogramVec
	commitCounter      *prometheus.CounterVec
}

// newMetrics 注册指标，同名指标已注册时复用已有的收集器
func newMetrics(name string, registerer prometheus.Registerer) *metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &metrics{
		operationCounter: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of key-value operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of key-value operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
		activeOperations: register(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active key-value operations",
			},
			[]string{"operation"},
		)),
		batchSizeHistogram: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_batch_size",
				Help:    "Size of batch writes",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		)),
		commitCounter: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_commits_total",
				Help: "Total number of transaction commits",
			},
			[]string{"status"},
		)),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

func (s *Store) observeOperation(ctx context.Context, operation string, namespace string, fn func(context.Context) error) error {
	return s.observeBatchOperation(ctx, operation, namespace, -1, fn)
}

// observeBatchOperation batchSize < 0 表示非批量操作
func (s *Store) observeBatchOperation(ctx context.Context, operation string, namespace string, batchSize int, fn func(context.Context) error) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var span trace.Span
	if s.tracer != nil {
		attrs := []attribute.KeyValue{
			attribute.String("component", s.name),
			attribute.String("operation", operation),
		}
		if namespace != "" {
			attrs = append(attrs, attribute.String("namespace", namespace))
		}
		if batchSize >= 0 {
			attrs = append(attrs, attribute.Int("batch_size", batchSize))
		}
		ctx, span = s.tracer.Start(ctx, fmt.Sprintf("%s.%s", s.name, operation), trace.WithAttributes(attrs...))
		defer span.End()
	}

	if s.metrics != nil {
		if batchSize >= 0 {
			s.metrics.batchSizeHistogram.WithLabelValues(operation).Observe(float64(batchSize))
		}
		s.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer s.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		s.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		s.logger.ErrorContext(ctx, "operation failed",
			"operation", operation,
			"namespace", namespace,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
	} else {
		s.logger.DebugContext(ctx, "operation completed",
			"operation", operation,
			"namespace", namespace,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return err
}

func (s *Store) observeCommit(err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.commitCounter.WithLabelValues(status).Inc()
}

func newTracer(name string) trace.Tracer {
	return otel.Tracer(fmt.Sprintf("github.com/hatlonely/sqlkv/kv.%s", name))
}
