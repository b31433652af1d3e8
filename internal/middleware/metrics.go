package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP request metrics of one server.
type Metrics struct {
	registry *prometheus.Registry
	prom     *fiberprometheus.FiberPrometheus
}

// InitMetrics creates request metrics for serviceName on a private registry,
// so several servers can live in one process.
func InitMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	return &Metrics{
		registry: registry,
		prom:     fiberprometheus.NewWithRegistry(registry, serviceName, "http", "", nil),
	}
}

// Middleware records request counts and latencies.
func (m *Metrics) Middleware() fiber.Handler {
	return m.prom.Middleware
}

// Handler serves the request metrics together with the process-wide
// application metrics.
func (m *Metrics) Handler() fiber.Handler {
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, m.registry}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
}
