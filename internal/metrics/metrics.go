// Package metrics exposes store sizes and pruning activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/alexjbarnes/openid-store/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openid_store"

// Entity kinds used as the kind label.
const (
	KindApplication   = "application"
	KindAuthorization = "authorization"
	KindScope         = "scope"
	KindToken         = "token"
)

type counter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector owns a private Prometheus registry with one record gauge per
// entity kind and a counter of pruned records.
type Collector struct {
	registry *prometheus.Registry
	records  map[string]prometheus.GaugeFunc
	pruned   *prometheus.CounterVec
}

// NewCollector registers gauges reading the record counts of the
// registry's base stores, plus the Go runtime and process collectors.
func NewCollector(reg *store.Registry) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		records:  make(map[string]prometheus.GaugeFunc),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pruned_total",
			Help:      "Records removed by maintenance pruning.",
		}, []string{"kind"}),
	}

	for kind, s := range map[string]counter{
		KindApplication:   reg.ApplicationStore(),
		KindAuthorization: reg.AuthorizationStore(),
		KindScope:         reg.ScopeStore(),
		KindToken:         reg.TokenStore(),
	} {
		c.records[kind] = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "records",
			Help:        "Records currently held in memory.",
			ConstLabels: prometheus.Labels{"kind": kind},
		}, func() float64 {
			n, err := s.Count(context.Background())
			if err != nil {
				return 0
			}
			return float64(n)
		})
	}

	for _, g := range c.records {
		c.registry.MustRegister(g)
	}

	c.registry.MustRegister(
		c.pruned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// ObservePruned adds n to the pruned counter of kind.
func (c *Collector) ObservePruned(kind string, n int) {
	if n <= 0 {
		return
	}
	c.pruned.WithLabelValues(kind).Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
