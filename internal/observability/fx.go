package observability

import (
	"github.com/smallbiznis/mrpledger/internal/observability/logger"
	"github.com/smallbiznis/mrpledger/internal/observability/metrics"
	"github.com/smallbiznis/mrpledger/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// tracer provider and scheduler collectors must exist before the first
	// request or job, even when nothing asks for them by type
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)
