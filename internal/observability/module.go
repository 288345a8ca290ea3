package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopfloor-ops/change-relay/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		// [ISOLATED_REGISTRY] One registry per process; /metrics serves it.
		func() *prometheus.Registry {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return reg
		},
		func(reg *prometheus.Registry) *RelayMetrics { return NewRelayMetrics(reg) },
		fx.Annotate(
			func(m *RelayMetrics) service.Observer { return m },
			fx.As(new(service.Observer)),
		),
	),
)
