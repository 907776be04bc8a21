package gpu

import (
	"sync"

	"codeberg.org/mutker/hostmon/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Reading is one sample of a GPU. Fields the device does not report are
// left nil.
type Reading struct {
	Index       int
	UUID        string
	Name        string
	PowerWatts  *float64
	EnergyJoule *float64
	Temperature *float64
	FanPercent  *float64
	Utilization *float64
	MemoryUsed  *float64
	MemoryTotal *float64
}

// Library is the slice of NVML the executor reads.
type Library interface {
	Initialize() error
	Shutdown() error
	Readings() ([]Reading, error)
}

const (
	milliWattsPerWatt    = 1000
	milliJoulesPerJoule  = 1000
	percent              = 100
	temperatureSensorGPU = nvml.TEMPERATURE_GPU
)

type nvmlLibrary struct {
	mu          sync.Mutex
	initialized bool
}

// NewLibrary returns the NVML binding of the local driver.
func NewLibrary() Library {
	return &nvmlLibrary{}
}

func (l *nvmlLibrary) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}
	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}
	l.initialized = true
	return nil
}

func (l *nvmlLibrary) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil
	}
	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	l.initialized = false
	return nil
}

func (l *nvmlLibrary) Readings() ([]Reading, error) {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	readings := make([]Reading, 0, count)
	for i := 0; i < count; i++ {
		device, ret := nvml.DeviceGetHandleByIndex(i)
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret)).WithData(i)
		}
		readings = append(readings, readDevice(i, device))
	}
	return readings, nil
}

func readDevice(index int, device nvml.Device) Reading {
	r := Reading{Index: index}

	if uuid, ret := device.GetUUID(); IsNVMLSuccess(ret) {
		r.UUID = uuid
	}
	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		r.Name = name
	}
	if mw, ret := device.GetPowerUsage(); IsNVMLSuccess(ret) {
		r.PowerWatts = value(float64(mw) / milliWattsPerWatt)
	}
	if mj, ret := device.GetTotalEnergyConsumption(); IsNVMLSuccess(ret) {
		r.EnergyJoule = value(float64(mj) / milliJoulesPerJoule)
	}
	if temp, ret := device.GetTemperature(temperatureSensorGPU); IsNVMLSuccess(ret) {
		r.Temperature = value(float64(temp))
	}
	if speed, ret := device.GetFanSpeed(); IsNVMLSuccess(ret) {
		r.FanPercent = value(float64(speed))
	}
	if util, ret := device.GetUtilizationRates(); IsNVMLSuccess(ret) {
		r.Utilization = value(float64(util.Gpu) / percent)
	}
	if mem, ret := device.GetMemoryInfo(); IsNVMLSuccess(ret) {
		r.MemoryUsed = value(float64(mem.Used))
		r.MemoryTotal = value(float64(mem.Total))
	}
	return r
}

func value(v float64) *float64 {
	return &v
}
