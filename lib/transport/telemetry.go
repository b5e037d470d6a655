package transport

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("certimages.lib.transport")
var meter = otel.Meter("certimages.lib.transport")

var (
	requestCounter, _ = meter.Int64Counter(
		"transport.requests",
		metric.WithDescription("requests sent, including retries and probes"),
	)
	retryCounter, _ = meter.Int64Counter(
		"transport.retries",
		metric.WithDescription("requests retried after a transient failure"),
	)
	blockedCounter, _ = meter.Int64Counter(
		"transport.blocked",
		metric.WithDescription("responses classified as a block (429, 403 or challenge page)"),
	)
	fallbackCounter, _ = meter.Int64Counter(
		"transport.fallbacks",
		metric.WithDescription("proxy and certificate verification fallbacks"),
	)
)
