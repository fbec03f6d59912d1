package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	ret := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)
	if isError(ret) {
		return 0, newError("vkCreateFence", ret)
	}
	return d.fences.add(fence), nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	if fence, ok := d.fences.remove(f); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) fenceList(fences []driver.Fence) []vk.Fence {
	out := make([]vk.Fence, len(fences))
	for i, f := range fences {
		out[i] = d.fences.lookup(f)
	}
	return out
}

// WaitFences implements driver.SyncDevice. An expired timeout returns an
// error matching driver.ErrTimeout.
func (d *Device) WaitFences(fences []driver.Fence, timeout uint64) error {
	if len(fences) == 0 {
		return nil
	}
	list := d.fenceList(fences)
	return newError("vkWaitForFences", vk.WaitForFences(d.device, uint32(len(list)), list, vk.True, timeout))
}

func (d *Device) ResetFences(fences ...driver.Fence) error {
	if len(fences) == 0 {
		return nil
	}
	list := d.fenceList(fences)
	return newError("vkResetFences", vk.ResetFences(d.device, uint32(len(list)), list))
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if isError(ret) {
		return 0, newError("vkCreateSemaphore", ret)
	}
	return d.semaphores.add(sem), nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	if sem, ok := d.semaphores.remove(s); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}

func (d *Device) semaphoreList(sems []driver.Semaphore) []vk.Semaphore {
	if len(sems) == 0 {
		return nil
	}
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		out[i] = d.semaphores.lookup(s)
	}
	return out
}
