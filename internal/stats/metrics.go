package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the tuner's view of the device as prometheus gauges,
// labeled by device identity.
type Metrics struct {
	hashrate  *prometheus.GaugeVec
	temp      *prometheus.GaugeVec
	power     *prometheus.GaugeVec
	voltage   *prometheus.GaugeVec
	frequency *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bitaxepid",
			Name:      "hashrate_ghs",
			Help:      "Reported hashrate, GH/s",
		}, []string{"device"}),
		temp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bitaxepid",
			Name:      "temperature_celsius",
			Help:      "Reported chip temperature",
		}, []string{"device"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bitaxepid",
			Name:      "power_watts",
			Help:      "Reported power draw",
		}, []string{"device"}),
		voltage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bitaxepid",
			Name:      "core_voltage_millivolts",
			Help:      "Target core voltage",
		}, []string{"device"}),
		frequency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "bitaxepid",
			Name:      "frequency_mhz",
			Help:      "Target frequency",
		}, []string{"device"}),
	}
	reg.MustRegister(m.hashrate, m.temp, m.power, m.voltage, m.frequency)
	return m
}

func (m *Metrics) Observe(s DeviceSnapshot) {
	labels := prometheus.Labels{"device": s.Device}
	m.hashrate.With(labels).Set(s.Hashrate)
	m.temp.With(labels).Set(s.Temp)
	m.power.With(labels).Set(s.Power)
	m.voltage.With(labels).Set(float64(s.Voltage))
	m.frequency.With(labels).Set(float64(s.Frequency))
}
