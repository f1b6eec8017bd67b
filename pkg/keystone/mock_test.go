package keystone

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// fakeAPI is an in-memory device layer. It counts live objects per kind,
// records recorded commands and submissions, and can be told to fail the
// nth call of any method so every rollback path can be exercised.
type fakeAPI struct {
	queueFlags []vk.QueueFlags

	nextHandle uint64
	live       map[string]int
	calls      map[string]int
	failAt     map[string]int

	lastUniform []byte
	scratch     [uniformSize]byte

	barriers    []fakeBarrier
	copies      int
	dispatches  [][3]uint32
	submissions int
	boundSets   int
	cmdLive     int

	descriptorWrites []vk.WriteDescriptorSet
}

// Vulkan handles are notinheap pointer types under cgo: reflect.DeepEqual
// (used by testify) panics on such pointers when they point into the Go heap,
// and dereferences them when comparing unequal handles. Fake handles therefore
// point at distinct slots of a global (data-segment) array holding distinct
// values.
var fakeHandleArena [1 << 16]uint64

// fakeSourceImage stands in for the presenter-owned frame image.
var (
	fakeSourceImageSlot = uint64(0xfeed)
	fakeSourceImage     = vk.Image(unsafe.Pointer(&fakeSourceImageSlot))
)

type fakeBarrier struct {
	image     vk.Image
	oldLayout vk.ImageLayout
	newLayout vk.ImageLayout
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		queueFlags: []vk.QueueFlags{
			vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit),
		},
		live:   map[string]int{},
		calls:  map[string]int{},
		failAt: map[string]int{},
	}
}

// failOn makes the nth call (1-based) of the named method return an error.
func (f *fakeAPI) failOn(method string, nth int) *fakeAPI {
	f.failAt[method] = nth
	return f
}

func (f *fakeAPI) shouldFail(method string) bool {
	f.calls[method]++
	return f.failAt[method] == f.calls[method]
}

// liveObjects is the total number of device objects currently alive,
// command buffers included.
func (f *fakeAPI) liveObjects() int {
	total := f.cmdLive
	for _, n := range f.live {
		total += n
	}
	return total
}

// totalCalls counts every API invocation, queries included.
func (f *fakeAPI) totalCalls() int {
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeAPI) handle() unsafe.Pointer {
	f.nextHandle++
	fakeHandleArena[f.nextHandle] = f.nextHandle
	return unsafe.Pointer(&fakeHandleArena[f.nextHandle])
}

func (f *fakeAPI) QueueFamilyFlags(vk.PhysicalDevice) []vk.QueueFlags {
	f.calls["QueueFamilyFlags"]++
	return f.queueFlags
}

func (f *fakeAPI) CreateShaderModule(_ vk.Device, code []byte) (vk.ShaderModule, error) {
	if f.shouldFail("CreateShaderModule") {
		return vk.NullShaderModule, errInjected
	}
	f.live["shaderModule"]++
	return vk.ShaderModule(f.handle()), nil
}

func (f *fakeAPI) DestroyShaderModule(vk.Device, vk.ShaderModule) { f.live["shaderModule"]-- }

func (f *fakeAPI) CreateDescriptorSetLayout(_ vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	if f.shouldFail("CreateDescriptorSetLayout") {
		return vk.NullDescriptorSetLayout, errInjected
	}
	f.live["setLayout"]++
	return vk.DescriptorSetLayout(f.handle()), nil
}

func (f *fakeAPI) DestroyDescriptorSetLayout(vk.Device, vk.DescriptorSetLayout) {
	f.live["setLayout"]--
}

func (f *fakeAPI) CreatePipelineLayout(_ vk.Device, _ vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	if f.shouldFail("CreatePipelineLayout") {
		return vk.NullPipelineLayout, errInjected
	}
	f.live["pipelineLayout"]++
	return vk.PipelineLayout(f.handle()), nil
}

func (f *fakeAPI) DestroyPipelineLayout(vk.Device, vk.PipelineLayout) { f.live["pipelineLayout"]-- }

func (f *fakeAPI) CreateComputePipeline(_ vk.Device, _ vk.PipelineLayout, _ vk.ShaderModule, _ string) (vk.Pipeline, error) {
	if f.shouldFail("CreateComputePipeline") {
		return vk.NullPipeline, errInjected
	}
	f.live["pipeline"]++
	return vk.Pipeline(f.handle()), nil
}

func (f *fakeAPI) DestroyPipeline(vk.Device, vk.Pipeline) { f.live["pipeline"]-- }

func (f *fakeAPI) CreateDescriptorPool(_ vk.Device, _ []vk.DescriptorPoolSize, _ uint32) (vk.DescriptorPool, error) {
	if f.shouldFail("CreateDescriptorPool") {
		return vk.NullDescriptorPool, errInjected
	}
	f.live["descriptorPool"]++
	return vk.DescriptorPool(f.handle()), nil
}

func (f *fakeAPI) DestroyDescriptorPool(vk.Device, vk.DescriptorPool) { f.live["descriptorPool"]-- }

func (f *fakeAPI) CreateSampler(vk.Device) (vk.Sampler, error) {
	if f.shouldFail("CreateSampler") {
		return vk.NullSampler, errInjected
	}
	f.live["sampler"]++
	return vk.Sampler(f.handle()), nil
}

func (f *fakeAPI) DestroySampler(vk.Device, vk.Sampler) { f.live["sampler"]-- }

func (f *fakeAPI) CreateBuffer(_ vk.Device, _ vk.DeviceSize, _ vk.BufferUsageFlags) (vk.Buffer, error) {
	if f.shouldFail("CreateBuffer") {
		return vk.NullBuffer, errInjected
	}
	f.live["buffer"]++
	return vk.Buffer(f.handle()), nil
}

func (f *fakeAPI) DestroyBuffer(vk.Device, vk.Buffer) { f.live["buffer"]-- }

func (f *fakeAPI) AllocateBufferMemory(_ vk.Device, _ vk.PhysicalDevice, _ vk.Buffer, _ vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	if f.shouldFail("AllocateBufferMemory") {
		return vk.NullDeviceMemory, errInjected
	}
	f.live["memory"]++
	return vk.DeviceMemory(f.handle()), nil
}

func (f *fakeAPI) CreateImage(_ vk.Device, _, _ uint32, _ vk.ImageUsageFlags) (vk.Image, error) {
	if f.shouldFail("CreateImage") {
		return vk.NullImage, errInjected
	}
	f.live["image"]++
	return vk.Image(f.handle()), nil
}

func (f *fakeAPI) DestroyImage(vk.Device, vk.Image) { f.live["image"]-- }

func (f *fakeAPI) AllocateImageMemory(_ vk.Device, _ vk.PhysicalDevice, _ vk.Image, _ vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	if f.shouldFail("AllocateImageMemory") {
		return vk.NullDeviceMemory, errInjected
	}
	f.live["memory"]++
	return vk.DeviceMemory(f.handle()), nil
}

func (f *fakeAPI) FreeMemory(vk.Device, vk.DeviceMemory) { f.live["memory"]-- }

func (f *fakeAPI) CreateImageView(_ vk.Device, _ vk.Image) (vk.ImageView, error) {
	if f.shouldFail("CreateImageView") {
		return vk.NullImageView, errInjected
	}
	f.live["imageView"]++
	return vk.ImageView(f.handle()), nil
}

func (f *fakeAPI) DestroyImageView(vk.Device, vk.ImageView) { f.live["imageView"]-- }

func (f *fakeAPI) MapMemory(_ vk.Device, _ vk.DeviceMemory, _ vk.DeviceSize) (unsafe.Pointer, error) {
	if f.shouldFail("MapMemory") {
		return nil, errInjected
	}
	return unsafe.Pointer(&f.scratch[0]), nil
}

func (f *fakeAPI) UnmapMemory(vk.Device, vk.DeviceMemory) {}

func (f *fakeAPI) WriteMapped(_ unsafe.Pointer, data []byte) {
	f.lastUniform = append([]byte(nil), data...)
}

func (f *fakeAPI) AllocateDescriptorSet(_ vk.Device, _ vk.DescriptorPool, _ vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	if f.shouldFail("AllocateDescriptorSet") {
		return vk.NullDescriptorSet, errInjected
	}
	f.live["descriptorSet"]++
	return vk.DescriptorSet(f.handle()), nil
}

func (f *fakeAPI) ResetDescriptorPool(vk.Device, vk.DescriptorPool) {
	f.live["descriptorSet"] = 0
}

func (f *fakeAPI) UpdateDescriptorSets(_ vk.Device, writes []vk.WriteDescriptorSet) {
	f.descriptorWrites = append(f.descriptorWrites, writes...)
}

func (f *fakeAPI) AllocateCommandBuffer(_ vk.Device, _ vk.CommandPool) (vk.CommandBuffer, error) {
	if f.shouldFail("AllocateCommandBuffer") {
		return nil, errInjected
	}
	f.cmdLive++
	return nil, nil
}

func (f *fakeAPI) FreeCommandBuffer(vk.Device, vk.CommandPool, vk.CommandBuffer) { f.cmdLive-- }

func (f *fakeAPI) BeginCommandBuffer(vk.CommandBuffer) error {
	if f.shouldFail("BeginCommandBuffer") {
		return errInjected
	}
	return nil
}

func (f *fakeAPI) EndCommandBuffer(vk.CommandBuffer) error {
	if f.shouldFail("EndCommandBuffer") {
		return errInjected
	}
	return nil
}

func (f *fakeAPI) CmdPipelineBarrier(_ vk.CommandBuffer, _, _ vk.PipelineStageFlags, b vk.ImageMemoryBarrier) {
	f.barriers = append(f.barriers, fakeBarrier{
		image:     b.Image,
		oldLayout: b.OldLayout,
		newLayout: b.NewLayout,
	})
}

func (f *fakeAPI) CmdCopyImage(_ vk.CommandBuffer, _, _ vk.Image, _, _ uint32) { f.copies++ }

func (f *fakeAPI) CmdBindComputePipeline(vk.CommandBuffer, vk.Pipeline) {}

func (f *fakeAPI) CmdBindDescriptorSet(_ vk.CommandBuffer, _ vk.PipelineLayout, _ vk.DescriptorSet) {
	f.boundSets++
}

func (f *fakeAPI) CmdDispatch(_ vk.CommandBuffer, gx, gy, gz uint32) {
	f.dispatches = append(f.dispatches, [3]uint32{gx, gy, gz})
}

func (f *fakeAPI) SubmitAndWait(vk.Queue, vk.CommandBuffer) error {
	if f.shouldFail("SubmitAndWait") {
		return errInjected
	}
	f.submissions++
	return nil
}
