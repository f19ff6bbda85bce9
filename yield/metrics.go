package yield

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
)

const namespace = "tofhir"

// Metrics holds the gauges exported after a run
type Metrics struct {
	registry     *prometheus.Registry
	testYield    *prometheus.GaugeVec
	overallYield prometheus.Gauge
	boards       prometheus.Gauge
	skipped      *prometheus.GaugeVec
}

func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		testYield: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_yield_ratio",
			Help:      "Fraction of measured boards passing a calibration test.",
		}, []string{"test"}),
		overallYield: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overall_yield_ratio",
			Help:      "Fraction of boards passing every calibration test.",
		}),
		boards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boards_total",
			Help:      "Number of boards in the yield table.",
		}),
		skipped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Number of skipped directories or tests, by reason.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.testYield, m.overallYield, m.boards, m.skipped} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// Observe sets the gauges from a yield table and skip list
func (m *Metrics) Observe(yt *models.YieldTable, skips []models.Skip) {
	for _, test := range yt.Tests {
		m.testYield.WithLabelValues(test).Set(TestYield(yt, test).Ratio())
	}
	m.overallYield.Set(OverallYield(yt).Ratio())
	m.boards.Set(float64(len(yt.Boards)))

	for _, kind := range []string{models.SkipMissingData, models.SkipFormat, models.SkipUnresolvedSerial} {
		m.skipped.WithLabelValues(kind).Set(0)
	}
	for _, s := range skips {
		m.skipped.WithLabelValues(s.Kind).Inc()
	}
}

// Encode writes the gathered metrics in the text exposition format
func (m *Metrics) Encode(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the metrics as a node exporter textfile
func (m *Metrics) WriteFile(fs afero.Fs, path string) error {
	return writeWith(fs, path, m.Encode)
}
