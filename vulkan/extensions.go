package vulkan

import (
	vk "github.com/vulkan-go/vulkan"
)

// enumerate runs the two-call count/fill pattern of a vkEnumerate* entry
// point and returns the names it reports. VK_INCOMPLETE restarts the query.
func enumerate[T any](op string, query func(count *uint32, list []T) vk.Result, name func(p *T) string) (names []string, err error) {
	defer checkErr(&err)

	for {
		var count uint32
		orPanic(newError(op, query(&count, nil)))
		list := make([]T, count)
		ret := query(&count, list)
		if ret == vk.Incomplete {
			continue
		}
		orPanic(newError(op, ret))
		names = make([]string, 0, count)
		for i := range list[:count] {
			names = append(names, name(&list[i]))
		}
		return names, nil
	}
}

func extensionName(p *vk.ExtensionProperties) string {
	p.Deref()
	return vk.ToString(p.ExtensionName[:])
}

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() ([]string, error) {
	return enumerate("vkEnumerateInstanceExtensionProperties",
		func(count *uint32, list []vk.ExtensionProperties) vk.Result {
			return vk.EnumerateInstanceExtensionProperties("", count, list)
		}, extensionName)
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) ([]string, error) {
	return enumerate("vkEnumerateDeviceExtensionProperties",
		func(count *uint32, list []vk.ExtensionProperties) vk.Result {
			return vk.EnumerateDeviceExtensionProperties(gpu, "", count, list)
		}, extensionName)
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() ([]string, error) {
	return enumerate("vkEnumerateInstanceLayerProperties",
		func(count *uint32, list []vk.LayerProperties) vk.Result {
			return vk.EnumerateInstanceLayerProperties(count, list)
		}, func(p *vk.LayerProperties) string {
			p.Deref()
			return vk.ToString(p.LayerName[:])
		})
}

// checkExisting returns the null terminated names of required that appear
// in actual, and how many did not.
func checkExisting(actual, required []string) (existing []string, missing int) {
	existing = make([]string, 0, len(required))
	for j := range required {
		req := safeString(required[j])
		found := false
		for i := range actual {
			if safeString(actual[i]) == req {
				existing = append(existing, req)
				found = true
				break
			}
		}
		if !found {
			missing++
		}
	}
	return existing, missing
}

func hasName(list []string, name string) bool {
	name = safeString(name)
	for _, s := range list {
		if safeString(s) == name {
			return true
		}
	}
	return false
}

// safeString appends the terminator vulkan-go expects on C strings.
func safeString(s string) string {
	if len(s) == 0 {
		return "\x00"
	}
	if s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}
