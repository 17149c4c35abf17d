package observability

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/artprint-backend/internal/platform/logger"
)

// Metrics is nil-safe: every Observe* method is a no-op on a nil receiver so
// components can call Current() unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	admissionDecisions *prometheus.CounterVec
	routingSelections  *prometheus.CounterVec
	compositeDuration  *prometheus.HistogramVec
	compositeFailures  *prometheus.CounterVec
	assetResolutions   *prometheus.CounterVec
	assetUploads       *prometheus.CounterVec
	storageBootstrap   *prometheus.CounterVec
	storageModeActive  *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics(prometheus.NewRegistry())
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		admissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_admission_decisions_total",
			Help: "Admission checks by backend and outcome.",
		}, []string{"backend", "outcome"}),
		routingSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_routing_selections_total",
			Help: "Model router decisions by style and decision path.",
		}, []string{"style", "route"}),
		compositeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artprint_composite_duration_seconds",
			Help:    "Time spent compositing a print asset.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"size_id"}),
		compositeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_composite_failures_total",
			Help: "Compositor failures by stage.",
		}, []string{"stage"}),
		assetResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_asset_resolutions_total",
			Help: "Resolved asset URLs by asset kind and source tier.",
		}, []string{"asset", "tier"}),
		assetUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_asset_uploads_total",
			Help: "Final asset uploads by outcome.",
		}, []string{"outcome"}),
		storageBootstrap: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artprint_object_storage_bootstrap_total",
			Help: "Object storage provider bootstrap attempts.",
		}, []string{"mode", "status", "code"}),
		storageModeActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "artprint_object_storage_mode_active",
			Help: "1 for the object storage mode in use.",
		}, []string{"mode"}),
	}
	reg.MustRegister(
		m.admissionDecisions,
		m.routingSelections,
		m.compositeDuration,
		m.compositeFailures,
		m.assetResolutions,
		m.assetUploads,
		m.storageBootstrap,
		m.storageModeActive,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in the text exposition format for the
// node_exporter textfile collector. One-shot runs exit before any scrape.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return errors.New("metrics disabled")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAdmission(backend, outcome string) {
	if m == nil {
		return
	}
	m.admissionDecisions.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) ObserveRouting(style, route string) {
	if m == nil {
		return
	}
	m.routingSelections.WithLabelValues(style, route).Inc()
}

func (m *Metrics) ObserveComposite(sizeID string, d time.Duration) {
	if m == nil {
		return
	}
	m.compositeDuration.WithLabelValues(sizeID).Observe(d.Seconds())
}

func (m *Metrics) ObserveCompositeFailure(stage string) {
	if m == nil {
		return
	}
	m.compositeFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveAssetResolution(asset, tier string) {
	if m == nil {
		return
	}
	m.assetResolutions.WithLabelValues(asset, tier).Inc()
}

func (m *Metrics) ObserveAssetUpload(outcome string) {
	if m == nil {
		return
	}
	m.assetUploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveObjectStorageProviderBootstrap(mode, status, code string) {
	if m == nil {
		return
	}
	m.storageBootstrap.WithLabelValues(mode, status, code).Inc()
}

func (m *Metrics) SetObjectStorageModeActive(mode string) {
	if m == nil {
		return
	}
	m.storageModeActive.Reset()
	m.storageModeActive.WithLabelValues(mode).Set(1)
}
