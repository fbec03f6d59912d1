package driver

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOutOfDate means the surface changed and the swapchain must be
	// recreated before it can be used again.
	ErrOutOfDate = errors.New("driver: swapchain out of date")

	// ErrSuboptimal means the swapchain still works but no longer
	// matches the surface exactly.
	ErrSuboptimal = errors.New("driver: swapchain suboptimal")

	// ErrDeviceLost means the device is in an unrecoverable state.
	ErrDeviceLost = errors.New("driver: device lost")

	// ErrTimeout means a wait expired before its condition was met.
	ErrTimeout = errors.New("driver: timeout")
)

// Error is a failed native call. Name holds the symbolic name of the native
// result code (e.g. VK_ERROR_OUT_OF_DATE_KHR).
type Error struct {
	Op   string
	Code int32
	Name string
	// Kind is one of the sentinel errors above, or nil.
	Kind error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s (%d)", e.Name, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Name, e.Code)
}

func (e *Error) Unwrap() error { return e.Kind }

// ResultName extracts the symbolic result name from err, if any.
func ResultName(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Name, true
	}
	return "", false
}
