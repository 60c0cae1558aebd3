package hal

import "fmt"

// Result is a driver status code. Values equal the Vulkan VkResult codes so a
// backend can convert with a plain cast. Negative values are errors.
type Result int32

const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	Incomplete                Result = 5
	Suboptimal                Result = 1000001003
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorMemoryMapFailed      Result = -5
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorTooManyObjects       Result = -10
	ErrorFormatNotSupported   Result = -11
	ErrorSurfaceLost          Result = -1000000000
	ErrorOutOfDate            Result = -1000001004
)

var resultNames = map[Result]string{
	Success:                   "success",
	NotReady:                  "not ready",
	Timeout:                   "timeout",
	Incomplete:                "incomplete",
	Suboptimal:                "suboptimal",
	ErrorOutOfHostMemory:      "out of host memory",
	ErrorOutOfDeviceMemory:    "out of device memory",
	ErrorInitializationFailed: "initialization failed",
	ErrorDeviceLost:           "device lost",
	ErrorMemoryMapFailed:      "memory map failed",
	ErrorLayerNotPresent:      "layer not present",
	ErrorExtensionNotPresent:  "extension not present",
	ErrorFeatureNotPresent:    "feature not present",
	ErrorIncompatibleDriver:   "incompatible driver",
	ErrorTooManyObjects:       "too many objects",
	ErrorFormatNotSupported:   "format not supported",
	ErrorSurfaceLost:          "surface lost",
	ErrorOutOfDate:            "surface out of date",
}

func (r Result) Error() string {
	if name, ok := resultNames[r]; ok {
		return fmt.Sprintf("vulkan error: %s (%d)", name, int32(r))
	}
	return fmt.Sprintf("vulkan error: unknown result (%d)", int32(r))
}

// IsError reports whether r is a failure code.
func (r Result) IsError() bool { return r < 0 }

// Err returns r as an error, or nil for non-error codes.
func (r Result) Err() error {
	if r.IsError() {
		return r
	}
	return nil
}
