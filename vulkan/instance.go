// Package vulkan implements the driver interfaces on top of vulkan-go. The
// few Vulkan 1.2 and 1.3 entry points the binding lacks (dynamic rendering,
// buffer device addresses and the feature query chain) go through a small
// cgo shim linked against the system loader.
package vulkan

import (
	"log"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe/driver"
)

// SurfaceSource is the window side of instance creation.
type SurfaceSource interface {
	// RequiredInstanceExtensions lists the instance extensions the
	// window system needs for presentation.
	RequiredInstanceExtensions() []string
	// CreateSurface creates the presentation surface for inst.
	CreateSurface(inst vk.Instance) (vk.Surface, error)
}

// ProcAddrSource is implemented by window systems that load the Vulkan
// loader themselves, like GLFW.
type ProcAddrSource interface {
	ProcAddr() unsafe.Pointer
}

// InstanceConfig parameterizes NewInstance.
type InstanceConfig struct {
	AppName    string
	AppVersion uint32
	APIVersion driver.Version
	// Debug enables the validation layers in Layers and installs a debug
	// report callback that forwards messages to Logger.
	Debug      bool
	Layers     []string
	Extensions []string
	Logger     *log.Logger
}

var (
	initOnce sync.Once
	initErr  error
)

func initLoader(src SurfaceSource) error {
	initOnce.Do(func() {
		if pa, ok := src.(ProcAddrSource); ok {
			vk.SetGetInstanceProcAddr(pa.ProcAddr())
		} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			initErr = errors.Wrap(err, "vulkan: locate loader")
			return
		}
		initErr = errors.Wrap(vk.Init(), "vulkan: loader init")
	})
	return initErr
}

// Instance is a driver.Instance bound to one presentation surface.
type Instance struct {
	log           *log.Logger
	instance      vk.Instance
	surface       vk.Surface
	debugCallback vk.DebugReportCallback
	layers        []string

	gpus   table[driver.PhysicalDevice, vk.PhysicalDevice]
	byGPU  map[vk.PhysicalDevice]driver.PhysicalDevice
	device *Device
}

// NewInstance creates the Vulkan instance and the surface of src.
func NewInstance(src SurfaceSource, cfg InstanceConfig) (inst *Instance, err error) {
	p := &Instance{
		log:   cfg.Logger,
		byGPU: make(map[vk.PhysicalDevice]driver.PhysicalDevice),
	}
	if p.log == nil {
		p.log = log.Default()
	}
	defer func() {
		if err != nil {
			p.Destroy()
			inst = nil
		}
	}()
	defer checkErr(&err)
	orPanic(initLoader(src))

	// Select instance extensions
	required := append(safeStrings(src.RequiredInstanceExtensions()), safeStrings(cfg.Extensions)...)
	if cfg.Debug {
		required = append(required, "VK_EXT_debug_report\x00")
	}
	actualInstanceExtensions, err := InstanceExtensions()
	orPanic(err)
	instanceExtensions, missing := checkExisting(actualInstanceExtensions, required)
	if missing > 0 {
		p.log.Println("vulkan warning: missing", missing, "required instance extensions during init")
	}
	p.log.Printf("vulkan: enabling %d instance extensions", len(instanceExtensions))

	// Select instance layers
	if cfg.Debug && len(cfg.Layers) > 0 {
		actualValidationLayers, err := ValidationLayers()
		orPanic(err)
		p.layers, missing = checkExisting(actualValidationLayers, cfg.Layers)
		if missing > 0 {
			p.log.Println("vulkan warning: missing", missing, "required validation layers during init")
		}
	}

	api := cfg.APIVersion
	if api == 0 {
		api = driver.MakeVersion(1, 3, 0)
	}
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(api),
			ApplicationVersion: cfg.AppVersion,
			PApplicationName:   safeString(cfg.AppName),
			PEngineName:        "vkframe\x00",
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(p.layers)),
		PpEnabledLayerNames:     p.layers,
	}, nil, &p.instance)
	orPanic(newError("vkCreateInstance", ret))
	vk.InitInstance(p.instance)

	if cfg.Debug && hasName(instanceExtensions, "VK_EXT_debug_report") {
		logger := p.log
		ret := vk.CreateDebugReportCallback(p.instance, &vk.DebugReportCallbackCreateInfo{
			SType: vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit),
			PfnCallback: func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
				object uint64, location uint, messageCode int32, pLayerPrefix string,
				pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
				logger.Printf("%s: [%s] Code %d : %s", debugSeverity(flags), pLayerPrefix, messageCode, pMessage)
				return vk.Bool32(vk.False)
			},
		}, nil, &p.debugCallback)
		orPanic(newError("vkCreateDebugReportCallbackEXT", ret))
		p.log.Println("vulkan: DebugReportCallback enabled")
	}

	p.surface, err = src.CreateSurface(p.instance)
	orPanic(errors.Wrap(err, "vulkan: create surface"))
	if p.surface == vk.NullSurface {
		return nil, errors.New("vulkan error: surface required but not provided")
	}
	return p, nil
}

func debugSeverity(flags vk.DebugReportFlags) string {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return "ERROR"
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		return "WARNING"
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		return "PERFORMANCE WARNING"
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		return "DEBUG"
	}
	return "INFORMATION"
}

// Handle returns the native instance.
func (p *Instance) Handle() vk.Instance { return p.instance }

func (p *Instance) Surface() driver.Surface {
	if p.surface == vk.NullSurface {
		return 0
	}
	return 1
}

// PhysicalDevices implements driver.Instance.
func (p *Instance) PhysicalDevices() (infos []driver.PhysicalDeviceInfo, err error) {
	defer checkErr(&err)

	var gpuCount uint32
	ret := vk.EnumeratePhysicalDevices(p.instance, &gpuCount, nil)
	orPanic(newError("vkEnumeratePhysicalDevices", ret))
	gpus := make([]vk.PhysicalDevice, gpuCount)
	ret = vk.EnumeratePhysicalDevices(p.instance, &gpuCount, gpus)
	orPanic(newError("vkEnumeratePhysicalDevices", ret))

	for _, gpu := range gpus[:gpuCount] {
		info, err := p.describe(gpu)
		orPanic(err)
		infos = append(infos, info)
	}
	return infos, nil
}

func (p *Instance) handleOf(gpu vk.PhysicalDevice) driver.PhysicalDevice {
	if h, ok := p.byGPU[gpu]; ok {
		return h
	}
	h := p.gpus.add(gpu)
	p.byGPU[gpu] = h
	return h
}

func (p *Instance) describe(gpu vk.PhysicalDevice) (driver.PhysicalDeviceInfo, error) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()

	exts, err := DeviceExtensions(gpu)
	if err != nil {
		return driver.PhysicalDeviceInfo{}, err
	}
	api := driver.Version(props.ApiVersion)
	info := driver.PhysicalDeviceInfo{
		Device:     p.handleOf(gpu),
		Name:       vk.ToString(props.DeviceName[:]),
		Type:       deviceType(props.DeviceType),
		APIVersion: api,
		Features:   queryFeatures(gpu, api, hasName(exts, "VK_EXT_mesh_shader")),
	}

	var queueCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, nil)
	queueProperties := make([]vk.QueueFamilyProperties, queueCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &queueCount, queueProperties)
	for i := uint32(0); i < queueCount; i++ {
		queueProperties[i].Deref()
		var supportsPresent vk.Bool32
		if p.surface != vk.NullSurface {
			ret := vk.GetPhysicalDeviceSurfaceSupport(gpu, i, p.surface, &supportsPresent)
			if err := newError("vkGetPhysicalDeviceSurfaceSupportKHR", ret); err != nil {
				return info, err
			}
		}
		info.QueueFamilies = append(info.QueueFamilies,
			queueFamily(i, queueProperties[i].QueueFlags, queueProperties[i].QueueCount, supportsPresent.B()))
	}
	return info, nil
}

func deviceType(t vk.PhysicalDeviceType) driver.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return driver.DeviceIntegrated
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return driver.DeviceDiscrete
	case vk.PhysicalDeviceTypeVirtualGpu:
		return driver.DeviceVirtual
	case vk.PhysicalDeviceTypeCpu:
		return driver.DeviceCPU
	}
	return driver.DeviceOther
}

func queueFamily(index uint32, flags vk.QueueFlags, count uint32, present bool) driver.QueueFamily {
	graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
	compute := flags&vk.QueueFlags(vk.QueueComputeBit) != 0
	return driver.QueueFamily{
		Index:      index,
		QueueCount: count,
		Graphics:   graphics,
		Compute:    compute,
		// Graphics and compute queues implicitly support transfers.
		Transfer: graphics || compute || flags&vk.QueueFlags(vk.QueueTransferBit) != 0,
		Present:  present,
	}
}

// CreateDevice implements driver.Instance.
func (p *Instance) CreateDevice(req driver.DeviceRequest) (dev driver.Device, err error) {
	defer checkErr(&err)

	gpu, ok := p.gpus.get(req.PhysicalDevice)
	if !ok {
		return nil, errors.Errorf("vulkan: unknown physical device %d", req.PhysicalDevice)
	}
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()
	api := driver.Version(props.ApiVersion)

	// Select device extensions
	wanted := req.Extensions
	if req.Features.MeshShader && !hasName(wanted, "VK_EXT_mesh_shader") {
		wanted = append(append([]string(nil), wanted...), "VK_EXT_mesh_shader")
	}
	actualDeviceExtensions, err := DeviceExtensions(gpu)
	orPanic(err)
	deviceExtensions, missing := checkExisting(actualDeviceExtensions, wanted)
	if missing > 0 {
		p.log.Println("vulkan warning: missing", missing, "required device extensions during init")
	}
	if !hasName(deviceExtensions, "VK_KHR_swapchain") {
		return nil, errors.New("vulkan error: VK_KHR_swapchain not supported by the device")
	}
	p.log.Printf("vulkan: enabling %d device extensions", len(deviceExtensions))

	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(req.Queues))
	for _, q := range req.Queues {
		priorities := make([]float32, q.Count)
		for i := range priorities {
			priorities[i] = 1.0
		}
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: q.Family,
			QueueCount:       q.Count,
			PQueuePriorities: priorities,
		})
	}

	chain := newFeatureChain(req.Features, api)
	defer chain.free()

	var device vk.Device
	ret := vk.CreateDevice(gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   chain.next(),
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
		EnabledLayerCount:       uint32(len(p.layers)),
		PpEnabledLayerNames:     p.layers,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{coreFeatures(req.Features)},
	}, nil, &device)
	orPanic(newError("vkCreateDevice", ret))

	d := newDevice(p, gpu, device, uint64(props.Limits.NonCoherentAtomSize))
	if req.Features.DynamicRendering && !d.funcs.hasRendering() {
		p.log.Println("vulkan warning: dynamic rendering requested but vkCmdBeginRendering is missing")
	}
	for _, q := range req.Queues {
		for i := uint32(0); i < q.Count; i++ {
			var queue vk.Queue
			vk.GetDeviceQueue(device, q.Family, i, &queue)
			d.queueHandles[[2]uint32{q.Family, i}] = d.queues.add(queue)
		}
	}
	p.device = d
	return d, nil
}

func coreFeatures(f driver.Features) vk.PhysicalDeviceFeatures {
	b := func(v bool) vk.Bool32 {
		if v {
			return vk.True
		}
		return vk.False
	}
	return vk.PhysicalDeviceFeatures{
		MultiDrawIndirect: b(f.MultiDrawIndirect),
		FillModeNonSolid:  b(f.FillModeNonSolid),
		SamplerAnisotropy: b(f.SamplerAnisotropy),
	}
}

// Destroy implements driver.Instance. The device must be destroyed first.
func (p *Instance) Destroy() {
	if p.device != nil && p.device.device != nil {
		p.log.Println("vulkan warning: instance destroyed before its device")
		p.device.Destroy()
	}
	p.device = nil
	if p.surface != vk.NullSurface {
		vk.DestroySurface(p.instance, p.surface, nil)
		p.surface = vk.NullSurface
	}
	if p.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(p.instance, p.debugCallback, nil)
		p.debugCallback = vk.NullDebugReportCallback
	}
	if p.instance != nil {
		vk.DestroyInstance(p.instance, nil)
		p.instance = nil
	}
}
