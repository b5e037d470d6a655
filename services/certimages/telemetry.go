package certimages

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("certimages.services.certimages")
var meter = otel.Meter("certimages.services.certimages")

var (
	lookupCounter, _ = meter.Int64Counter(
		"certimages.lookups",
		metric.WithDescription("image lookups by outcome"),
	)
	partialTransformCounter, _ = meter.Int64Counter(
		"certimages.partial_transforms",
		metric.WithDescription("urls dropped because they could not be mapped to the requested tier"),
	)
)
