package observability

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics exposes collectors for the stock ledger.
type StockMetrics struct {
	adjustments  *prometheus.CounterVec
	insufficient prometheus.Counter
	lowStock     prometheus.Gauge
	outOfStock   prometheus.Gauge
}

// NewStockMetrics registers ledger collectors against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewStockMetrics(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warewise_stock_adjustments_total",
		Help: "Ledgered stock adjustments partitioned by movement kind and overdraft policy.",
	}, []string{"kind", "policy"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warewise_stock_insufficient_total",
		Help: "Strict deductions rejected because the balance was too low.",
	})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warewise_stock_low_products",
		Help: "Products with at least one cell at or below its reorder point.",
	})
	outOfStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warewise_stock_out_products",
		Help: "Products with at least one cell at zero quantity.",
	})
	registerer.MustRegister(adjustments, insufficient, lowStock, outOfStock)
	return &StockMetrics{
		adjustments:  adjustments,
		insufficient: insufficient,
		lowStock:     lowStock,
		outOfStock:   outOfStock,
	}
}

// ObserveAdjustment counts one committed adjustment.
func (m *StockMetrics) ObserveAdjustment(kind, policy string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(kind, policy).Inc()
}

// ObserveInsufficient counts one rejected strict deduction.
func (m *StockMetrics) ObserveInsufficient() {
	if m == nil {
		return
	}
	m.insufficient.Inc()
}

// SetStockLevels records the low/out-of-stock product counts from the latest scan.
func (m *StockMetrics) SetStockLevels(low, out int) {
	if m == nil {
		return
	}
	m.lowStock.Set(float64(low))
	m.outOfStock.Set(float64(out))
}
