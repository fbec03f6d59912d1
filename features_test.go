package vkframe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/driver"
	"github.com/andewx/vkframe/internal/fakegpu"
)

func testDevice(name string, mod func(d *driver.PhysicalDeviceInfo)) driver.PhysicalDeviceInfo {
	d := fakegpu.DefaultDevice(fakegpu.Config{})
	d.Name = name
	if mod != nil {
		mod(&d)
	}
	return d
}

func TestSelectPhysicalDevice(t *testing.T) {
	req := DefaultRequirements()

	noMesh := testDevice("a", nil)
	mesh := testDevice("b", func(d *driver.PhysicalDeviceInfo) { d.Features.MeshShader = true })
	old := testDevice("old", func(d *driver.PhysicalDeviceInfo) { d.APIVersion = driver.MakeVersion(1, 2, 0) })
	noBDA := testDevice("nobda", func(d *driver.PhysicalDeviceInfo) { d.Features.BufferDeviceAddress = false })
	noAniso := testDevice("noaniso", func(d *driver.PhysicalDeviceInfo) { d.Features.SamplerAnisotropy = false })

	got, err := SelectPhysicalDevice([]driver.PhysicalDeviceInfo{noMesh, mesh}, req)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	// Without a preferred device the last qualifying one wins.
	second := testDevice("c", nil)
	got, err = SelectPhysicalDevice([]driver.PhysicalDeviceInfo{noMesh, second, old}, req)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Name)

	// The first preferred device wins over later ones.
	mesh2 := testDevice("d", func(d *driver.PhysicalDeviceInfo) { d.Features.MeshShader = true })
	got, err = SelectPhysicalDevice([]driver.PhysicalDeviceInfo{mesh, mesh2}, req)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	_, err = SelectPhysicalDevice([]driver.PhysicalDeviceInfo{noBDA, noAniso}, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
	var mf *MissingFeatureError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "nobda", mf.Device)
	assert.Equal(t, "bufferDeviceAddress", mf.Feature)

	_, err = SelectPhysicalDevice([]driver.PhysicalDeviceInfo{old}, req)
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "api version 1.3.0", mf.Feature)

	_, err = SelectPhysicalDevice(nil, req)
	assert.True(t, errors.Is(err, ErrNoSuitableDevice))
}

func TestSelectRejectsDeviceWithoutPresent(t *testing.T) {
	d := testDevice("headless", func(d *driver.PhysicalDeviceInfo) { d.QueueFamilies[0].Present = false })
	_, err := SelectPhysicalDevice([]driver.PhysicalDeviceInfo{d}, DefaultRequirements())
	var mf *MissingFeatureError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, "graphics and present queues", mf.Feature)
}

func TestFeatureSets(t *testing.T) {
	a := driver.Features{Synchronization2: true, MeshShader: true}
	b := driver.Features{Synchronization2: true, DynamicRendering: true}
	assert.Equal(t, driver.Features{Synchronization2: true}, Intersect(a, b))
	assert.Equal(t, driver.Features{Synchronization2: true, DynamicRendering: true, MeshShader: true}, Union(a, b))
	assert.Equal(t, "dynamicRendering", MissingFeature(a, b))
	assert.Equal(t, "", MissingFeature(Union(a, b), b))
}

func TestResolveQueues(t *testing.T) {
	family := func(idx, count uint32, graphics, present bool) driver.QueueFamily {
		return driver.QueueFamily{Index: idx, QueueCount: count, Graphics: graphics, Present: present}
	}
	tests := []struct {
		name     string
		families []driver.QueueFamily
		want     QueuePlan
		unified  bool
	}{
		{
			name:     "shared family one queue",
			families: []driver.QueueFamily{family(0, 1, true, true)},
			want:     QueuePlan{},
			unified:  true,
		},
		{
			name:     "shared family two queues",
			families: []driver.QueueFamily{family(0, 4, true, true)},
			want:     QueuePlan{PresentIndex: 1},
			unified:  true,
		},
		{
			name:     "separate present family preferred",
			families: []driver.QueueFamily{family(0, 1, true, true), family(1, 1, false, true)},
			want:     QueuePlan{GraphicsFamily: 0, PresentFamily: 1},
		},
		{
			name:     "graphics found later",
			families: []driver.QueueFamily{family(0, 2, false, true), family(1, 1, true, false)},
			want:     QueuePlan{GraphicsFamily: 1, PresentFamily: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ResolveQueues(driver.PhysicalDeviceInfo{Name: "gpu", QueueFamilies: tt.families})
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
			assert.Equal(t, tt.unified, plan.Unified())
		})
	}

	_, err := ResolveQueues(driver.PhysicalDeviceInfo{QueueFamilies: []driver.QueueFamily{family(0, 1, false, true)}})
	assert.True(t, errors.Is(err, ErrNoQueueFamily))
	_, err = ResolveQueues(driver.PhysicalDeviceInfo{QueueFamilies: []driver.QueueFamily{family(0, 1, true, false)}})
	assert.True(t, errors.Is(err, ErrNoQueueFamily))
}

func TestQueuePlanRequests(t *testing.T) {
	assert.Equal(t, []driver.QueueRequest{{Family: 0, Count: 2}}, QueuePlan{PresentIndex: 1}.Requests())
	assert.Equal(t, []driver.QueueRequest{{Family: 0, Count: 1}, {Family: 2, Count: 1}},
		QueuePlan{PresentFamily: 2}.Requests())
}

func TestDeviceContextUsesSecondQueue(t *testing.T) {
	win := fakegpu.NewWindow(100, 100)
	inst := fakegpu.New(win, fakegpu.Config{GraphicsQueues: 2})
	ctx, err := NewDeviceContext(inst, DefaultRequirements(), nil)
	require.NoError(t, err)
	defer inst.Destroy()
	defer ctx.Destroy()

	assert.True(t, ctx.Unified())
	assert.NotEqual(t, ctx.GraphicsQueue, ctx.PresentQueue)
	assert.False(t, ctx.Enabled.MeshShader)
	assert.True(t, ctx.Enabled.DynamicRendering)
	assert.Empty(t, inst.Device().Violations())
}

func TestDeviceContextCreateFailure(t *testing.T) {
	inst := fakegpu.New(fakegpu.NewWindow(1, 1), fakegpu.Config{})
	inst.FailCreateDevice = fakegpu.DeviceLost("vkCreateDevice")
	_, err := NewDeviceContext(inst, DefaultRequirements(), nil)
	require.Error(t, err)
	name, ok := driver.ResultName(err)
	assert.True(t, ok)
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", name)
	assert.Contains(t, err.Error(), "create device on fakegpu")
}
