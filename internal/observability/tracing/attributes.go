package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/mrpledger/internal/apperror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"request_id":              {},
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"schedule_id":             {},
	"part_number":             {},
	"alert_id":                {},
	"alert_type":              {},
	"movement_type":           {},
}

// ExtractContext pulls the upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops keys outside the allow-list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError reduces err to its classification so raw SQL and values do not
// leak into span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(string(apperror.KindOf(err)))
}
