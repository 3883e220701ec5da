package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lyzr/flowctl/internal/model"
)

// MetricHandler implements the `metric` action kind: it emits a counter,
// gauge, or histogram observation to a shared Prometheus registry. Unlike
// the teacher's metrics (one static promauto var per concern), the set of
// metric names here is workflow-defined, so collectors are created and
// cached lazily by metric name on first use.
//
// implementation shape:
//
//	name: string               metric name (must be a valid Prometheus name)
//	type: string               "counter" | "gauge" | "histogram" (default counter)
//	help: string               optional description
//	value: number              value to add/set/observe; read from input["value"] if absent
//	labels: []string           label names; values resolved from input by the same key
type MetricHandler struct {
	registry prometheus.Registerer
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hists    map[string]*prometheus.HistogramVec
}

func NewMetricHandler(registry prometheus.Registerer) *MetricHandler {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &MetricHandler{
		registry: registry,
		counters: map[string]*prometheus.CounterVec{},
		gauges:   map[string]*prometheus.GaugeVec{},
		hists:    map[string]*prometheus.HistogramVec{},
	}
}

func (h *MetricHandler) Handle(_ context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation

	name, _ := impl["name"].(string)
	if name == "" {
		return Failf("invalid_implementation", false, "metric action missing required name")
	}
	kind, _ := impl["type"].(string)
	if kind == "" {
		kind = "counter"
	}
	help, _ := impl["help"].(string)
	labelNames := toStringSlice(impl["labels"])

	value, err := h.resolveValue(impl, input)
	if err != nil {
		return Failf("invalid_implementation", false, "%v", err)
	}
	labelValues := make([]string, len(labelNames))
	for i, ln := range labelNames {
		if v, ok := input[ln]; ok {
			labelValues[i] = fmt.Sprintf("%v", v)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch kind {
	case "gauge":
		g, err := h.gaugeFor(name, help, labelNames)
		if err != nil {
			return Failf("metric_registration_failed", false, "%v", err)
		}
		g.WithLabelValues(labelValues...).Set(value)
	case "histogram":
		hv, err := h.histogramFor(name, help, labelNames)
		if err != nil {
			return Failf("metric_registration_failed", false, "%v", err)
		}
		hv.WithLabelValues(labelValues...).Observe(value)
	case "counter":
		c, err := h.counterFor(name, help, labelNames)
		if err != nil {
			return Failf("metric_registration_failed", false, "%v", err)
		}
		c.WithLabelValues(labelValues...).Add(value)
	default:
		return Failf("invalid_implementation", false, "metric action has unknown type %q", kind)
	}

	return ActionResult{Success: true, Output: map[string]interface{}{"name": name, "value": value}}
}

func (h *MetricHandler) resolveValue(impl map[string]interface{}, input map[string]interface{}) (float64, error) {
	raw, ok := impl["value"]
	if !ok {
		raw, ok = input["value"]
	}
	if !ok {
		return 1, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("metric value must be numeric, got %T", raw)
	}
}

func (h *MetricHandler) counterFor(name, help string, labels []string) (*prometheus.CounterVec, error) {
	if c, ok := h.counters[name]; ok {
		return c, nil
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: defaultHelp(help, name)}, labels)
	if err := h.registry.Register(c); err != nil {
		return nil, err
	}
	h.counters[name] = c
	return c, nil
}

func (h *MetricHandler) gaugeFor(name, help string, labels []string) (*prometheus.GaugeVec, error) {
	if g, ok := h.gauges[name]; ok {
		return g, nil
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: defaultHelp(help, name)}, labels)
	if err := h.registry.Register(g); err != nil {
		return nil, err
	}
	h.gauges[name] = g
	return g, nil
}

func (h *MetricHandler) histogramFor(name, help string, labels []string) (*prometheus.HistogramVec, error) {
	if hv, ok := h.hists[name]; ok {
		return hv, nil
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    defaultHelp(help, name),
		Buckets: prometheus.DefBuckets,
	}, labels)
	if err := h.registry.Register(hv); err != nil {
		return nil, err
	}
	h.hists[name] = hv
	return hv, nil
}

func defaultHelp(help, name string) string {
	if help != "" {
		return help
	}
	return fmt.Sprintf("workflow-defined metric %s", name)
}
