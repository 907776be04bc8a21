// Package power derives power and energy metrics: counter rates, energy
// integrated from power, per-component power estimates and the host-level
// measured or estimated totals.
package power

import (
	"time"

	"codeberg.org/mutker/hostmon/internal/telemetry"
)

const millisPerSecond = 1000

// Rate returns the per-second rate of the named counter over its last two
// collects. It is absent when the metric lacks a previous value or time,
// or when both collects share a timestamp.
func Rate(m *telemetry.Monitor, counterName string) (float64, bool) {
	counter, ok := m.NumberMetric(counterName)
	if !ok {
		return 0, false
	}
	previous, ok := counter.PreviousValue()
	if !ok {
		return 0, false
	}
	current, previousTime := counter.CollectTime(), counter.PreviousCollectTime()
	if current.IsZero() || previousTime.IsZero() {
		return 0, false
	}
	elapsedMillis := current.Sub(previousTime).Milliseconds()
	if elapsedMillis == 0 {
		return 0, false
	}
	return (counter.Value() - previous) / (float64(elapsedMillis) / millisPerSecond), true
}

// EstimateEnergyFromPower integrates power, in watts, over the time since
// the previous collect of the power metric and adds it to the energy
// counter, in joules. The power metric must already hold this cycle's
// value. The result is absent on the first collect, in which case the
// energy metric must not be collected.
func EstimateEnergyFromPower(m *telemetry.Monitor, powerMetricName, energyMetricName string, power float64, at time.Time) (float64, bool) {
	powerMetric, ok := m.NumberMetric(powerMetricName)
	if !ok {
		return 0, false
	}
	previousTime := powerMetric.PreviousCollectTime()
	if previousTime.IsZero() || at.IsZero() {
		return 0, false
	}
	elapsedMillis := at.Sub(previousTime).Milliseconds()
	if elapsedMillis <= 0 {
		return 0, false
	}

	delta := power * float64(elapsedMillis) / millisPerSecond
	if energy, ok := m.NumberMetric(energyMetricName); ok && !energy.CollectTime().IsZero() {
		if energy.IsUpdatedAt(at) {
			// Already accumulated this cycle.
			return energy.Value(), true
		}
		return energy.Value() + delta, true
	}
	return delta, true
}

// EstimatePowerFromEnergy derives watts from the energy counter's last two
// collects.
func EstimatePowerFromEnergy(m *telemetry.Monitor, energyMetricName string) (float64, bool) {
	power, ok := Rate(m, energyMetricName)
	if !ok || power < 0 {
		return 0, false
	}
	return power, true
}
