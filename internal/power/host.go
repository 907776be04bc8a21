package power

import (
	"time"

	"codeberg.org/mutker/hostmon/internal/connector"
	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Enclosure metrics carrying measured power.
const (
	MetricEnclosurePower  = "hw.enclosure.power"
	MetricEnclosureEnergy = "hw.enclosure.energy"
)

// Host power quality.
const (
	QualityMeasured  = "measured"
	QualityEstimated = "estimated"
)

// HostPowerMetric is the host's power metric of one quality, in W.
func HostPowerMetric(quality string) string {
	return telemetry.MetricName("hw.host.power", map[string]string{"quality": quality})
}

// HostEnergyMetric is the host's energy counter of one quality, in J.
func HostEnergyMetric(quality string) string {
	return telemetry.MetricName("hw.host.energy", map[string]string{"quality": quality})
}

// Aggregation is the host power outcome of one cycle.
type Aggregation struct {
	Quality   string
	Power     float64
	HasPower  bool
	Energy    float64
	HasEnergy bool
}

// AggregateHost sets the host power and energy of this cycle. Measured
// values win when any enclosure reported power or energy at at; otherwise
// components are estimated bottom-up. Only the chosen family stays on the
// host monitor.
func AggregateHost(host *telemetry.HostTelemetry, at time.Time) Aggregation {
	root := host.HostMonitor()

	agg, measured := measure(host, at)
	if !measured {
		agg = Aggregation{
			Quality:  QualityEstimated,
			Power:    EstimateComponents(host, at),
			HasPower: true,
		}
	}

	other := QualityEstimated
	if agg.Quality == QualityEstimated {
		other = QualityMeasured
	}
	root.RemoveMetric(HostPowerMetric(other))
	root.RemoveMetric(HostEnergyMetric(other))

	powerName, energyName := HostPowerMetric(agg.Quality), HostEnergyMetric(agg.Quality)
	if agg.HasPower {
		collect(root, powerName, agg.Power, at)
	}
	if !agg.HasEnergy && agg.HasPower {
		agg.Energy, agg.HasEnergy = EstimateEnergyFromPower(root, powerName, energyName, agg.Power, at)
	}
	if agg.HasEnergy {
		collect(root, energyName, agg.Energy, at)
	}
	return agg
}

func measure(host *telemetry.HostTelemetry, at time.Time) (Aggregation, bool) {
	agg := Aggregation{Quality: QualityMeasured}
	measured := false

	for _, enclosure := range host.ByDiscoveryOrder(connector.MonitorTypeEnclosure) {
		if enclosure.IsMissing() {
			continue
		}
		energy, hasEnergy := updatedValue(enclosure, MetricEnclosureEnergy, at)
		power, hasPower := updatedValue(enclosure, MetricEnclosurePower, at)
		if !hasPower && hasEnergy {
			power, hasPower = EstimatePowerFromEnergy(enclosure, MetricEnclosureEnergy)
		}

		if hasPower {
			agg.Power += power
			agg.HasPower = true
		}
		if hasEnergy {
			agg.Energy += energy
			agg.HasEnergy = true
		}
		measured = measured || hasEnergy || hasPower
	}
	return agg, measured
}

func updatedValue(m *telemetry.Monitor, name string, at time.Time) (float64, bool) {
	metric, ok := m.NumberMetric(name)
	if !ok || !metric.IsUpdatedAt(at) {
		return 0, false
	}
	return metric.Value(), true
}
