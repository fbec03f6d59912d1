package vkframe

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/andewx/vkframe/internal/fakegpu"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	rep := LogReporter{Logger: log.New(&buf, "", 0)}

	rep.Report(errors.Wrap(fakegpu.OutOfDate("vkQueuePresentKHR"), "present"))
	rep.Report(errors.New("plain"))
	assert.Equal(t,
		"vulkan error: VK_ERROR_OUT_OF_DATE_KHR: present: vkQueuePresentKHR: VK_ERROR_OUT_OF_DATE_KHR (-1000001004)\n"+
			"vulkan error: plain\n",
		buf.String())
}

func TestFatalErrorMatchesErrFailed(t *testing.T) {
	cause := errors.New("cause")
	err := error(&fatalError{err: cause})
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "cause", err.Error())
	assert.False(t, IsFatal(cause))
}

func TestMissingFeatureError(t *testing.T) {
	err := error(&MissingFeatureError{Device: "gpu", Feature: "meshShader"})
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
	assert.Equal(t, "vkframe: device gpu lacks meshShader", err.Error())
}
