package vulkan

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

func TestNewError(t *testing.T) {
	assert.NoError(t, newError("vkQueueSubmit", vk.Success))

	tests := []struct {
		code int32
		name string
		kind error
	}{
		{resultOutOfDate, "VK_ERROR_OUT_OF_DATE_KHR", driver.ErrOutOfDate},
		{resultSuboptimal, "VK_SUBOPTIMAL_KHR", driver.ErrSuboptimal},
		{resultDeviceLost, "VK_ERROR_DEVICE_LOST", driver.ErrDeviceLost},
		{resultTimeout, "VK_TIMEOUT", driver.ErrTimeout},
		{-2, "VK_ERROR_OUT_OF_DEVICE_MEMORY", nil},
		{-424242, "VK_RESULT_UNKNOWN", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newError("vkOp", vk.Result(tt.code))
			require.Error(t, err)
			name, ok := driver.ResultName(err)
			assert.True(t, ok)
			assert.Equal(t, tt.name, name)
			if tt.kind != nil {
				assert.True(t, errors.Is(err, tt.kind))
			}
		})
	}
	assert.Equal(t, "vkQueuePresentKHR: VK_ERROR_OUT_OF_DATE_KHR (-1000001004)",
		resultError("vkQueuePresentKHR", resultOutOfDate).Error())
}

func TestCheckErrRecovers(t *testing.T) {
	sentinel := resultError("vkCreateDevice", resultDeviceLost)
	f := func() (err error) {
		defer checkErr(&err)
		orPanic(sentinel)
		return nil
	}
	assert.Equal(t, sentinel, f())

	g := func() (err error) {
		defer checkErr(&err)
		panic("boom")
	}
	assert.EqualError(t, g(), "boom")
}
