package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

// Raw VkResult codes the frame loop reacts to.
const (
	resultSuccess    int32 = 0
	resultTimeout    int32 = 2
	resultSuboptimal int32 = 1000001003
	resultDeviceLost int32 = -4
	resultOutOfDate  int32 = -1000001004
)

var resultNames = map[int32]string{
	0:           "VK_SUCCESS",
	1:           "VK_NOT_READY",
	2:           "VK_TIMEOUT",
	3:           "VK_EVENT_SET",
	4:           "VK_EVENT_RESET",
	5:           "VK_INCOMPLETE",
	-1:          "VK_ERROR_OUT_OF_HOST_MEMORY",
	-2:          "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	-3:          "VK_ERROR_INITIALIZATION_FAILED",
	-4:          "VK_ERROR_DEVICE_LOST",
	-5:          "VK_ERROR_MEMORY_MAP_FAILED",
	-6:          "VK_ERROR_LAYER_NOT_PRESENT",
	-7:          "VK_ERROR_EXTENSION_NOT_PRESENT",
	-8:          "VK_ERROR_FEATURE_NOT_PRESENT",
	-9:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	-10:         "VK_ERROR_TOO_MANY_OBJECTS",
	-11:         "VK_ERROR_FORMAT_NOT_SUPPORTED",
	-12:         "VK_ERROR_FRAGMENTED_POOL",
	-13:         "VK_ERROR_UNKNOWN",
	-1000069000: "VK_ERROR_OUT_OF_POOL_MEMORY",
	-1000072003: "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	-1000161000: "VK_ERROR_FRAGMENTATION",
	-1000257000: "VK_ERROR_INVALID_OPAQUE_CAPTURE_ADDRESS",
	-1000000000: "VK_ERROR_SURFACE_LOST_KHR",
	-1000000001: "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	1000001003:  "VK_SUBOPTIMAL_KHR",
	-1000001004: "VK_ERROR_OUT_OF_DATE_KHR",
	-1000003001: "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	-1000011001: "VK_ERROR_VALIDATION_FAILED_EXT",
	-1000012000: "VK_ERROR_INVALID_SHADER_NV",
	-1000255000: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
}

// ResultName returns the symbolic name of a VkResult code.
func ResultName(code int32) string {
	if name, ok := resultNames[code]; ok {
		return name
	}
	return "VK_RESULT_UNKNOWN"
}

func resultKind(code int32) error {
	switch code {
	case resultOutOfDate:
		return driver.ErrOutOfDate
	case resultSuboptimal:
		return driver.ErrSuboptimal
	case resultDeviceLost:
		return driver.ErrDeviceLost
	case resultTimeout:
		return driver.ErrTimeout
	}
	return nil
}

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError translates a native result into a *driver.Error, or nil on
// success.
func newError(op string, ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	return resultError(op, int32(ret))
}

func resultError(op string, code int32) error {
	return &driver.Error{
		Op:   op,
		Code: code,
		Name: ResultName(code),
		Kind: resultKind(code),
	}
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = errors.Errorf("%+v", v)
	}
}
