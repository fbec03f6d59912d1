package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestCheckExisting(t *testing.T) {
	actual := []string{"VK_KHR_surface", "VK_KHR_xcb_surface\x00", "VK_EXT_debug_report"}
	existing, missing := checkExisting(actual, []string{"VK_KHR_surface", "VK_KHR_xcb_surface", "VK_KHR_wayland_surface"})
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00"}, existing)
	assert.Equal(t, 1, missing)

	existing, missing = checkExisting(actual, nil)
	assert.Empty(t, existing)
	assert.Zero(t, missing)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "abc\x00", safeString("abc"))
	assert.Equal(t, "abc\x00", safeString("abc\x00"))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func TestHasName(t *testing.T) {
	list := []string{"VK_KHR_swapchain\x00", "VK_EXT_mesh_shader"}
	assert.True(t, hasName(list, "VK_KHR_swapchain"))
	assert.True(t, hasName(list, "VK_EXT_mesh_shader\x00"))
	assert.False(t, hasName(list, "VK_KHR_present_wait"))
}

func TestEnumerateRetriesIncomplete(t *testing.T) {
	avail := []string{"a"}
	calls := 0
	query := func(count *uint32, list []string) vk.Result {
		calls++
		if list == nil {
			*count = uint32(len(avail))
			return vk.Success
		}
		if calls == 2 {
			// A layer showed up between the two calls.
			avail = append(avail, "b")
			return vk.Incomplete
		}
		*count = uint32(copy(list, avail))
		return vk.Success
	}
	names, err := enumerate("vkEnumerateTest", query, func(p *string) string { return *p })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, 4, calls)

	_, err = enumerate("vkEnumerateTest", func(count *uint32, list []string) vk.Result {
		return vk.ErrorOutOfHostMemory
	}, func(p *string) string { return *p })
	assert.EqualError(t, err, "vkEnumerateTest: VK_ERROR_OUT_OF_HOST_MEMORY (-1)")
}
