package power

import (
	"strings"
	"time"

	"codeberg.org/mutker/hostmon/internal/telemetry"
)

// Component monitor types with a power estimator.
const (
	TypeCPU          = "cpu"
	TypeMemory       = "memory"
	TypePhysicalDisk = "physical_disk"
	TypeFan          = "fan"
	TypeNetwork      = "network"
	TypeRobotics     = "robotics"
	TypeTapeDrive    = "tape_drive"
)

// Metrics read by the estimators.
const (
	MetricCPUMaxSpeed         = `hw.cpu.speed.limit{limit_type="max"}`
	MetricCPUSpeed            = "hw.cpu.speed"
	MetricFanSpeed            = "hw.fan.speed"
	MetricFanSpeedRatio       = "hw.fan.speed_ratio"
	MetricNetworkUp           = "hw.network.up"
	MetricNetworkLinkSpeed    = "hw.network.bandwidth.limit"
	MetricNetworkUtilization  = "hw.network.bandwidth.utilization"
	MetricRoboticsMoves       = "hw.robotics.moves"
	MetricTapeDriveOperations = "hw.tape_drive.operations"
)

// Typical draws, in watts unless noted.
const (
	defaultCPUSpeedHz    = 2.5e9
	hertzPerGigahertz    = 1e9
	cpuWattsPerGigahertz = 19

	memoryModuleWatts = 4

	diskNVMeWatts    = 6
	diskSSDWatts     = 3
	disk15kWatts     = 14
	disk10kWatts     = 10
	disk5400Watts    = 7
	diskDefaultWatts = 11

	fanWattsAtFullSpeed = 5
	fanFullSpeedRPM     = 10000

	networkWattsPerPort        = 10
	networkFastLinkBitsPerSec  = 10e9
	networkIdleFraction        = 0.5
	networkUtilizationFraction = 0.5

	roboticsMovingWatts  = 154
	roboticsIdleWatts    = 48
	tapeDriveActiveWatts = 46
	tapeDriveIdleWatts   = 15
)

// ComponentPowerMetric is the power metric of a component monitor, in W.
func ComponentPowerMetric(monitorType string) string {
	return telemetry.MetricName("hw.power", map[string]string{"hw.type": monitorType})
}

// ComponentEnergyMetric is the energy counter of a component monitor, in J.
func ComponentEnergyMetric(monitorType string) string {
	return telemetry.MetricName("hw.energy", map[string]string{"hw.type": monitorType})
}

// Estimator returns the power draw of one component monitor, in watts.
type Estimator func(m *telemetry.Monitor) float64

// Estimators maps monitor types to their power estimator.
var Estimators = map[string]Estimator{
	TypeCPU:          estimateCPU,
	TypeMemory:       func(*telemetry.Monitor) float64 { return memoryModuleWatts },
	TypePhysicalDisk: estimateDisk,
	TypeFan:          estimateFan,
	TypeNetwork:      estimateNetwork,
	TypeRobotics:     estimateRobotics,
	TypeTapeDrive:    estimateTapeDrive,
}

// EstimateComponents estimates power and energy on every component monitor
// of host that did not report its own power this cycle. It returns the
// summed power of all components, measured or estimated.
func EstimateComponents(host *telemetry.HostTelemetry, at time.Time) float64 {
	total := 0.0
	for monitorType, estimate := range Estimators {
		powerName := ComponentPowerMetric(monitorType)
		energyName := ComponentEnergyMetric(monitorType)
		for _, m := range host.ByDiscoveryOrder(monitorType) {
			if m.IsMissing() {
				continue
			}
			if reported, ok := m.NumberMetric(powerName); ok && reported.IsUpdatedAt(at) {
				total += reported.Value()
				continue
			}

			watts := estimate(m)
			collect(m, powerName, watts, at)
			if energy, ok := EstimateEnergyFromPower(m, powerName, energyName, watts, at); ok {
				collect(m, energyName, energy, at)
			}
			total += watts
		}
	}
	return total
}

func collect(m *telemetry.Monitor, name string, value float64, at time.Time) {
	(&telemetry.MetricFactory{}).CollectNumber(m, name, value, at)
}

func metricValue(m *telemetry.Monitor, name string) (float64, bool) {
	metric, ok := m.NumberMetric(name)
	if !ok || metric.CollectTime().IsZero() {
		return 0, false
	}
	return metric.Value(), true
}

func estimateCPU(m *telemetry.Monitor) float64 {
	speed, ok := metricValue(m, MetricCPUMaxSpeed)
	if !ok || speed <= 0 {
		if speed, ok = metricValue(m, MetricCPUSpeed); !ok || speed <= 0 {
			speed = defaultCPUSpeedHz
		}
	}
	return speed / hertzPerGigahertz * cpuWattsPerGigahertz
}

func estimateDisk(m *telemetry.Monitor) float64 {
	text := strings.ToLower(strings.Join([]string{
		m.Attribute("name"), m.Attribute("model"), m.Attribute("type"), m.Attribute("device_type"),
	}, " "))
	switch {
	case strings.Contains(text, "nvme"):
		return diskNVMeWatts
	case strings.Contains(text, "ssd"), strings.Contains(text, "flash"), strings.Contains(text, "solid"):
		return diskSSDWatts
	case strings.Contains(text, "15k"), strings.Contains(text, "15000"):
		return disk15kWatts
	case strings.Contains(text, "10k"), strings.Contains(text, "10000"):
		return disk10kWatts
	case strings.Contains(text, "5400"):
		return disk5400Watts
	default:
		return diskDefaultWatts
	}
}

func estimateFan(m *telemetry.Monitor) float64 {
	if rpm, ok := metricValue(m, MetricFanSpeed); ok && rpm >= 0 {
		return rpm / fanFullSpeedRPM * fanWattsAtFullSpeed
	}
	if ratio, ok := metricValue(m, MetricFanSpeedRatio); ok && ratio >= 0 {
		return ratio * fanWattsAtFullSpeed
	}
	return fanWattsAtFullSpeed
}

func estimateNetwork(m *telemetry.Monitor) float64 {
	if up, ok := metricValue(m, MetricNetworkUp); ok && up == 0 {
		return 0
	}
	watts := float64(networkWattsPerPort)
	if speed, ok := metricValue(m, MetricNetworkLinkSpeed); ok && speed > 0 && speed < networkFastLinkBitsPerSec {
		watts /= 2
	}
	utilization, ok := metricValue(m, MetricNetworkUtilization)
	if !ok || utilization < 0 {
		return watts
	}
	if utilization > 1 {
		utilization = 1
	}
	return watts * (networkIdleFraction + networkUtilizationFraction*utilization)
}

func estimateRobotics(m *telemetry.Monitor) float64 {
	if moves, ok := Rate(m, MetricRoboticsMoves); ok && moves > 0 {
		return roboticsMovingWatts
	}
	return roboticsIdleWatts
}

func estimateTapeDrive(m *telemetry.Monitor) float64 {
	if ops, ok := Rate(m, MetricTapeDriveOperations); ok && ops > 0 {
		return tapeDriveActiveWatts
	}
	return tapeDriveIdleWatts
}
