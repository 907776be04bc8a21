package gpu

import (
	"codeberg.org/mutker/hostmon/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrNotInitialized    = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed        = errors.ErrorCode("gpu_init_failed")
	ErrShutdownFailed    = errors.ErrorCode("gpu_shutdown_failed")
	ErrDeviceNotFound    = errors.ErrorCode("gpu_device_not_found")
	ErrDeviceCountFailed = errors.ErrorCode("gpu_device_count_failed")
	ErrRemoteResource    = errors.ErrorCode("gpu_remote_resource")
	ErrUnknownQuery      = errors.ErrorCode("gpu_unknown_query")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNotInitialized:    "NVML is not initialized",
		ErrInitFailed:        "Failed to initialize NVML",
		ErrShutdownFailed:    "Failed to shut down NVML",
		ErrDeviceNotFound:    "GPU device not found",
		ErrDeviceCountFailed: "Failed to count GPU devices",
		ErrRemoteResource:    "NVML only reaches the local host",
		ErrUnknownQuery:      "Unknown NVML query",
	})
}

// nvmlError carries an NVML return code.
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success.
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
