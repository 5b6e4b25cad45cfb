package providers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"

	"github.com/quotevault/quotevault-server/internal/metrics"
)

// MetricsHandle pairs the lifecycle collectors with the registry that serves them.
type MetricsHandle struct {
	*metrics.Metrics
	Registry *prometheus.Registry
}

// Handler serves the registry in the Prometheus exposition format.
func (h *MetricsHandle) Handler() http.Handler {
	return promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{Registry: h.Registry})
}

// ProvideMetrics registers runtime and lifecycle collectors on a private registry.
func ProvideMetrics(i do.Injector) (*MetricsHandle, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsHandle{
		Metrics:  metrics.New(reg),
		Registry: reg,
	}, nil
}
