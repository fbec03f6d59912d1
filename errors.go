package vkframe

import (
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

var (
	// ErrNoSuitableDevice is returned when no physical device meets the
	// requirements. The wrapping error names the first missing feature.
	ErrNoSuitableDevice = errors.New("vkframe: no suitable physical device")

	// ErrNoQueueFamily is returned when a device lacks a graphics or a
	// present capable queue family.
	ErrNoQueueFamily = errors.New("vkframe: no suitable queue family")

	// ErrZeroExtent is returned by SwapchainManager.Recreate while the
	// surface has a zero dimension, typically a minimized window.
	ErrZeroExtent = errors.New("vkframe: surface extent is zero")

	// ErrWindowClosed is returned when the window stops running while
	// waiting for a usable surface.
	ErrWindowClosed = errors.New("vkframe: window closed")

	// ErrNoFrame means no frame was produced this iteration because the
	// swapchain had to be recreated. The caller records again next time.
	ErrNoFrame = errors.New("vkframe: no frame produced")

	// ErrFailed is returned by every call after a fatal error.
	ErrFailed = errors.New("vkframe: renderer failed")

	// ErrStaleFrame is returned when writing a double-buffered resource
	// through a frame whose parity is no longer current.
	ErrStaleFrame = errors.New("vkframe: stale frame")

	// ErrOutOfRange is returned for writes beyond a resource's capacity.
	ErrOutOfRange = errors.New("vkframe: write out of range")

	// ErrFrameState is returned when a frame is driven out of order.
	ErrFrameState = errors.New("vkframe: frame used out of order")
)

// MissingFeatureError reports the first required feature a device lacks.
type MissingFeatureError struct {
	Device  string
	Feature string
}

func (e *MissingFeatureError) Error() string {
	return "vkframe: device " + e.Device + " lacks " + e.Feature
}

func (e *MissingFeatureError) Unwrap() error { return ErrNoSuitableDevice }

// fatalError marks an error as unrecoverable for the renderer.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

func (e *fatalError) Is(target error) bool { return target == ErrFailed }

// IsFatal reports whether err left the renderer unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFailed)
}

// Reporter receives fatal errors. It is called at most once per Renderer.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }

// LogReporter writes fatal errors to a logger, prefixed with the native
// result name when the error carries one.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) Report(err error) {
	l := r.Logger
	if l == nil {
		l = log.Default()
	}
	if name, ok := driver.ResultName(err); ok {
		l.Printf("vulkan error: %s: %v", name, err)
		return
	}
	l.Printf("vulkan error: %v", err)
}

// FileReporter appends fatal errors to a log file.
type FileReporter struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *log.Logger
}

// NewFileReporter opens path for appending, creating it when missing.
func NewFileReporter(path string) (*FileReporter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open fatal log %s", path)
	}
	return &FileReporter{
		path: path,
		file: file,
		log:  log.New(file, "FATAL: ", log.Ldate|log.Ltime|log.Lshortfile),
	}, nil
}

func (r *FileReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	LogReporter{Logger: r.log}.Report(err)
}

func (r *FileReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
