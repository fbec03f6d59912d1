package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

func TestFindMemoryType(t *testing.T) {
	types := []vk.MemoryPropertyFlags{
		memDeviceLocal,
		memHostVisible | memHostCoherent,
		memDeviceLocal | memHostVisible | memHostCoherent,
		memHostVisible,
	}
	tests := []struct {
		name string
		bits uint32
		kind driver.MemoryKind
		want uint32
		ok   bool
	}{
		{"device local", 0xf, driver.MemoryDeviceLocal, 0, true},
		{"device local fallback", 0x2, driver.MemoryDeviceLocal, 1, true},
		{"host visible prefers unified", 0xf, driver.MemoryHostVisible, 2, true},
		{"host visible coherent", 0x3, driver.MemoryHostVisible, 1, true},
		{"host visible non coherent", 0x9, driver.MemoryHostVisible, 3, true},
		{"staging", 0xf, driver.MemoryStaging, 1, true},
		{"no host visible type", 0x1, driver.MemoryStaging, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findMemoryType(types, tt.bits, tt.kind)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMemoryInfo(t *testing.T) {
	info := memoryInfo(memHostVisible, 64)
	assert.Equal(t, driver.MemoryInfo{Size: 64, HostVisible: true}, info)
	info = memoryInfo(memDeviceLocal|memHostVisible|memHostCoherent, 8)
	assert.True(t, info.DeviceLocal && info.HostVisible && info.HostCoherent)
}

func TestFlushRange(t *testing.T) {
	start, size := flushRange(70, 10, 64, 256)
	assert.Equal(t, uint64(64), start)
	assert.Equal(t, uint64(64), size)

	start, size = flushRange(0, 200, 64, 200)
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(200), size)

	start, size = flushRange(16, 16, 1, 64)
	assert.Equal(t, uint64(16), start)
	assert.Equal(t, uint64(16), size)
}

func TestQueueFamily(t *testing.T) {
	f := queueFamily(2, vk.QueueFlags(vk.QueueGraphicsBit|vk.QueueComputeBit), 4, true)
	assert.Equal(t, driver.QueueFamily{
		Index: 2, QueueCount: 4, Graphics: true, Compute: true, Transfer: true, Present: true,
	}, f)

	f = queueFamily(1, vk.QueueFlags(vk.QueueTransferBit), 1, false)
	assert.False(t, f.Graphics)
	assert.True(t, f.Transfer)
}

func TestDeviceType(t *testing.T) {
	assert.Equal(t, driver.DeviceDiscrete, deviceType(vk.PhysicalDeviceTypeDiscreteGpu))
	assert.Equal(t, driver.DeviceIntegrated, deviceType(vk.PhysicalDeviceTypeIntegratedGpu))
	assert.Equal(t, driver.DeviceCPU, deviceType(vk.PhysicalDeviceTypeCpu))
	assert.Equal(t, driver.DeviceOther, deviceType(vk.PhysicalDeviceTypeOther))
}

func TestCompositeAlpha(t *testing.T) {
	assert.Equal(t, vk.CompositeAlphaOpaqueBit,
		compositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit|vk.CompositeAlphaInheritBit)))
	assert.Equal(t, vk.CompositeAlphaInheritBit,
		compositeAlpha(vk.CompositeAlphaFlags(vk.CompositeAlphaInheritBit)))
}

func TestCoreFeatures(t *testing.T) {
	f := coreFeatures(driver.Features{MultiDrawIndirect: true, SamplerAnisotropy: true})
	assert.Equal(t, vk.Bool32(vk.True), f.MultiDrawIndirect)
	assert.Equal(t, vk.Bool32(vk.False), f.FillModeNonSolid)
	assert.Equal(t, vk.Bool32(vk.True), f.SamplerAnisotropy)
}

func TestSliceUint32(t *testing.T) {
	words := sliceUint32([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	assert.Equal(t, []uint32{0x07230203, 1}, words)
}

func TestDebugSeverity(t *testing.T) {
	assert.Equal(t, "ERROR", debugSeverity(vk.DebugReportFlags(vk.DebugReportErrorBit|vk.DebugReportWarningBit)))
	assert.Equal(t, "WARNING", debugSeverity(vk.DebugReportFlags(vk.DebugReportWarningBit)))
	assert.Equal(t, "INFORMATION", debugSeverity(0))
}
