package object

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics counts object store traffic. Reads counts successful
// fetches, Misses counts lookups of absent ids and Writes counts objects
// that were newly stored.
type StoreMetrics struct {
	Reads  prometheus.Counter
	Writes prometheus.Counter
	Misses prometheus.Counter
}

// NewStoreMetrics creates unregistered counters labelled with the store
// name.
func NewStoreMetrics(store string) *StoreMetrics {
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   "geograft",
			Subsystem:   "objects",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"store": store},
		}
	}
	return &StoreMetrics{
		Reads:  prometheus.NewCounter(opts("reads_total", "Objects read from the store.")),
		Writes: prometheus.NewCounter(opts("writes_total", "Objects newly written to the store.")),
		Misses: prometheus.NewCounter(opts("misses_total", "Lookups of ids absent from the store.")),
	}
}

// Collectors returns the counters for registration.
func (m *StoreMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Reads, m.Writes, m.Misses}
}

// Register adds the counters to reg.
func (m *StoreMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
