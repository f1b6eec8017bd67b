// Package display owns the Vulkan presentation path: instance, device,
// swapchain and the device-resident frame image the decode path uploads
// into. It lends its device context to the keystone corrector and blits
// whichever image the frame loop hands it (corrected output or the
// untouched frame) to the screen.
package display

import (
	"log"

	"github.com/pkg/errors"
	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/mjdilworth/pickle-sub002/pkg/keystone"
)

// frameFormat matches the format the keystone corrector assumes for every
// image in the chain.
const frameFormat = vk.FormatR8g8b8a8Unorm

// Display drives a fullscreen Vulkan swapchain on one monitor.
type Display struct {
	window *sdl.Window

	instance vk.Instance
	surface  vk.Surface
	gpu      vk.PhysicalDevice
	device   vk.Device

	queueFamily uint32
	queue       vk.Queue
	commandPool vk.CommandPool

	swapchain       vk.Swapchain
	swapchainImages []vk.Image
	surfaceFormat   vk.Format
	extent          vk.Extent2D

	imageAvailable vk.Semaphore
	renderDone     vk.Semaphore

	frameImage    vk.Image
	frameMemory   vk.DeviceMemory
	frameWidth    uint32
	frameHeight   uint32
	stagingBuffer vk.Buffer
	stagingMemory vk.DeviceMemory
	stagingSize   vk.DeviceSize
}

// New brings up the full presentation stack for an SDL window that was
// created with sdl.WINDOW_VULKAN.
func New(window *sdl.Window) (*Display, error) {
	d := &Display{window: window}

	vk.SetGetInstanceProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "initialize vulkan loader")
	}

	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if err := d.createSurface(); err != nil {
		d.Cleanup()
		return nil, err
	}
	if err := d.pickPhysicalDevice(); err != nil {
		d.Cleanup()
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		d.Cleanup()
		return nil, err
	}
	if err := d.createSwapchain(); err != nil {
		d.Cleanup()
		return nil, err
	}
	if err := d.createSyncObjects(); err != nil {
		d.Cleanup()
		return nil, err
	}

	log.Printf("display: vulkan ready, swapchain %dx%d", d.extent.Width, d.extent.Height)
	return d, nil
}

// DeviceContext returns the handles the keystone corrector borrows. The
// display keeps ownership; the corrector must never destroy them.
func (d *Display) DeviceContext() keystone.DeviceContext {
	return keystone.DeviceContext{
		Physical:    d.gpu,
		Device:      d.device,
		Queue:       d.queue,
		CommandPool: d.commandPool,
	}
}

// FrameImage returns the device-resident image holding the current decoded
// frame, resting in the presentable layout between uploads.
func (d *Display) FrameImage() vk.Image {
	return d.frameImage
}

func (d *Display) createInstance() error {
	extensions := d.window.VulkanGetInstanceExtensions()

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "pickle\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "pickle\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: terminatedStrings(extensions),
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create instance")
	}
	d.instance = instance

	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "load instance procs")
	}
	return nil
}

func (d *Display) createSurface() error {
	surfacePtr, err := d.window.VulkanCreateSurface(d.instance)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}
	d.surface = vk.SurfaceFromPointer(uintptr(surfacePtr))
	return nil
}

func (d *Display) pickPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success {
		return errors.Wrap(vk.Error(res), "enumerate devices")
	}
	if count == 0 {
		return errors.New("no vulkan-capable device found")
	}

	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, gpu := range devices {
		family, ok := d.findPresentQueueFamily(gpu)
		if !ok {
			continue
		}
		d.gpu = gpu
		d.queueFamily = family

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		log.Printf("display: using device %s (queue family %d)",
			vk.ToString(props.DeviceName[:]), family)
		return nil
	}
	return errors.New("no device with a graphics+present queue family")
}

// findPresentQueueFamily looks for a family that can both render and
// present to the surface. Distinct graphics and present families exist in
// theory but not on the single-GPU boards this player targets.
func (d *Display) findPresentQueueFamily(gpu vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)

	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), d.surface, &supported)
		if supported == vk.True {
			return uint32(i), true
		}
	}
	return 0, false
}

func (d *Display) createDevice() error {
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   1,
		PpEnabledExtensionNames: terminatedStrings([]string{"VK_KHR_swapchain"}),
	}

	var device vk.Device
	if res := vk.CreateDevice(d.gpu, &createInfo, nil, &device); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create device")
	}
	d.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.queueFamily, 0, &queue)
	d.queue = queue

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: d.queueFamily,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolInfo, nil, &pool); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create command pool")
	}
	d.commandPool = pool
	return nil
}

func (d *Display) createSwapchain() error {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps); res != vk.Success {
		return errors.Wrap(vk.Error(res), "query surface capabilities")
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &formatCount, formats)

	d.surfaceFormat = vk.FormatB8g8r8a8Unorm
	colorSpace := vk.ColorSpaceSrgbNonlinear
	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm || formats[i].Format == frameFormat {
			d.surfaceFormat = formats[i].Format
			colorSpace = formats[i].ColorSpace
			break
		}
	}

	d.extent = caps.CurrentExtent
	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   imageCount,
		ImageFormat:     d.surfaceFormat,
		ImageColorSpace: colorSpace,
		ImageExtent:     d.extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) |
			vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		// FIFO is always available and vsync-locked, which is what a
		// fullscreen player wants.
		PresentMode: vk.PresentModeFifo,
		Clipped:     vk.True,
	}

	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(d.device, &createInfo, nil, &swapchain); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create swapchain")
	}
	d.swapchain = swapchain

	var actualCount uint32
	vk.GetSwapchainImages(d.device, swapchain, &actualCount, nil)
	d.swapchainImages = make([]vk.Image, actualCount)
	vk.GetSwapchainImages(d.device, swapchain, &actualCount, d.swapchainImages)
	return nil
}

func (d *Display) createSyncObjects() error {
	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}

	var imageAvailable, renderDone vk.Semaphore
	if res := vk.CreateSemaphore(d.device, &semInfo, nil, &imageAvailable); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create acquire semaphore")
	}
	d.imageAvailable = imageAvailable
	if res := vk.CreateSemaphore(d.device, &semInfo, nil, &renderDone); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create present semaphore")
	}
	d.renderDone = renderDone
	return nil
}

// Cleanup tears the presentation stack down in reverse creation order.
// Safe to call on a partially constructed display.
func (d *Display) Cleanup() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
	}
	d.destroyFrameImage()
	if d.renderDone != vk.NullSemaphore {
		vk.DestroySemaphore(d.device, d.renderDone, nil)
		d.renderDone = vk.NullSemaphore
	}
	if d.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(d.device, d.imageAvailable, nil)
		d.imageAvailable = vk.NullSemaphore
	}
	if d.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(d.device, d.swapchain, nil)
		d.swapchain = vk.NullSwapchain
	}
	if d.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.device, d.commandPool, nil)
		d.commandPool = vk.NullCommandPool
	}
	if d.device != nil {
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = vk.NullSurface
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// terminatedStrings appends the NUL terminator cgo string passing requires.
func terminatedStrings(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s + "\x00"
	}
	return out
}
