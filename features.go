package vkframe

import (
	"github.com/pkg/errors"

	"github.com/andewx/vkframe/driver"
)

// Requirements is the capability set a physical device is selected against.
type Requirements struct {
	APIVersion driver.Version
	Required   driver.Features
	// Preferred features break ties between qualifying devices and are
	// enabled when present.
	Preferred driver.Features
	// Extensions are device extensions enabled on the logical device.
	Extensions []string
}

// DefaultRequirements asks for a Vulkan 1.3 device able to run a bindless,
// render-pass-free frame loop. Mesh shading is preferred.
func DefaultRequirements() Requirements {
	return Requirements{
		APIVersion: driver.MakeVersion(1, 3, 0),
		Required: driver.Features{
			Synchronization2:    true,
			DynamicRendering:    true,
			BufferDeviceAddress: true,
			DescriptorIndexing:  true,
			MultiDrawIndirect:   true,
			FillModeNonSolid:    true,
			SamplerAnisotropy:   true,
		},
		Preferred: driver.Features{
			MeshShader: true,
		},
		Extensions: []string{"VK_KHR_swapchain"},
	}
}

type featureBit struct {
	name string
	get  func(f *driver.Features) *bool
}

// featureOrder is the order features are checked and reported in.
var featureOrder = []featureBit{
	{"synchronization2", func(f *driver.Features) *bool { return &f.Synchronization2 }},
	{"dynamicRendering", func(f *driver.Features) *bool { return &f.DynamicRendering }},
	{"bufferDeviceAddress", func(f *driver.Features) *bool { return &f.BufferDeviceAddress }},
	{"descriptorIndexing", func(f *driver.Features) *bool { return &f.DescriptorIndexing }},
	{"multiDrawIndirect", func(f *driver.Features) *bool { return &f.MultiDrawIndirect }},
	{"fillModeNonSolid", func(f *driver.Features) *bool { return &f.FillModeNonSolid }},
	{"samplerAnisotropy", func(f *driver.Features) *bool { return &f.SamplerAnisotropy }},
	{"meshShader", func(f *driver.Features) *bool { return &f.MeshShader }},
}

// MissingFeature returns the name of the first feature set in want but not
// in have, or "" when have covers want.
func MissingFeature(have, want driver.Features) string {
	for _, b := range featureOrder {
		if *b.get(&want) && !*b.get(&have) {
			return b.name
		}
	}
	return ""
}

// Intersect returns the features set in both a and b.
func Intersect(a, b driver.Features) driver.Features {
	var out driver.Features
	for _, bit := range featureOrder {
		*bit.get(&out) = *bit.get(&a) && *bit.get(&b)
	}
	return out
}

// Union returns the features set in a or b.
func Union(a, b driver.Features) driver.Features {
	var out driver.Features
	for _, bit := range featureOrder {
		*bit.get(&out) = *bit.get(&a) || *bit.get(&b)
	}
	return out
}

// SelectPhysicalDevice picks the device to open. Devices below the API
// version or lacking a required feature are skipped. The first qualifying
// device that also has every preferred feature wins; otherwise the last
// qualifying device scanned is taken. When nothing qualifies the error
// names the first missing capability encountered.
func SelectPhysicalDevice(devs []driver.PhysicalDeviceInfo, req Requirements) (driver.PhysicalDeviceInfo, error) {
	var (
		chosen   driver.PhysicalDeviceInfo
		found    bool
		firstErr error
	)
	for _, dev := range devs {
		if dev.APIVersion < req.APIVersion {
			if firstErr == nil {
				firstErr = &MissingFeatureError{Device: dev.Name, Feature: "api version " + req.APIVersion.String()}
			}
			continue
		}
		if name := MissingFeature(dev.Features, req.Required); name != "" {
			if firstErr == nil {
				firstErr = &MissingFeatureError{Device: dev.Name, Feature: name}
			}
			continue
		}
		if !hasFamily(dev, func(f driver.QueueFamily) bool { return f.Graphics }) ||
			!hasFamily(dev, func(f driver.QueueFamily) bool { return f.Present }) {
			if firstErr == nil {
				firstErr = &MissingFeatureError{Device: dev.Name, Feature: "graphics and present queues"}
			}
			continue
		}
		chosen, found = dev, true
		if req.Preferred != (driver.Features{}) && MissingFeature(dev.Features, req.Preferred) == "" {
			return dev, nil
		}
	}
	if found {
		return chosen, nil
	}
	if firstErr == nil {
		return driver.PhysicalDeviceInfo{}, errors.Wrap(ErrNoSuitableDevice, "no physical devices")
	}
	return driver.PhysicalDeviceInfo{}, firstErr
}

func hasFamily(dev driver.PhysicalDeviceInfo, pred func(driver.QueueFamily) bool) bool {
	for _, f := range dev.QueueFamilies {
		if f.QueueCount > 0 && pred(f) {
			return true
		}
	}
	return false
}
