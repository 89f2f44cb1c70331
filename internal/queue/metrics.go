package queue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/phrazzld/kbase-api/internal/queue"

type metrics struct {
	storeErrors     metric.Int64Counter
	enqueued        metric.Int64Counter
	completed       metric.Int64Counter
	failed          metric.Int64Counter
	retried         metric.Int64Counter
	admissionDenied metric.Int64Counter
}

func newMetrics() *metrics {
	m := otel.Meter(meterName)
	return &metrics{
		storeErrors:     counter(m, "kbase.queue.store_errors", "Failed calls to the queue store, including retried ones"),
		enqueued:        counter(m, "kbase.queue.jobs_enqueued", "Jobs accepted by Enqueue"),
		completed:       counter(m, "kbase.queue.jobs_completed", "Jobs that reached the completed state"),
		failed:          counter(m, "kbase.queue.jobs_failed", "Jobs that reached the failed state"),
		retried:         counter(m, "kbase.queue.jobs_retried", "Failed attempts scheduled for retry"),
		admissionDenied: counter(m, "kbase.queue.admission_denied", "Claims deferred by admission control"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

func inc(ctx context.Context, c metric.Int64Counter, name Name, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("queue", string(name)))
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
