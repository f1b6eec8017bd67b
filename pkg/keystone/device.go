package keystone

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceContext bundles the Vulkan handles the corrector borrows from the
// display layer. The display owns every handle in here for the whole process
// lifetime; the corrector never destroys them.
type DeviceContext struct {
	Physical    vk.PhysicalDevice
	Device      vk.Device
	Queue       vk.Queue
	CommandPool vk.CommandPool
}

// API is the narrow slice of the Vulkan device interface the corrector
// needs. Production code uses VulkanAPI, which forwards straight to the
// vulkan-go bindings; tests substitute an object-counting fake with per-call
// failure injection so every allocation path can be exercised without a GPU.
type API interface {
	// QueueFamilyFlags returns the capability flags of every queue family
	// on the physical device, in family order.
	QueueFamilyFlags(pd vk.PhysicalDevice) []vk.QueueFlags

	CreateShaderModule(dev vk.Device, code []byte) (vk.ShaderModule, error)
	DestroyShaderModule(dev vk.Device, m vk.ShaderModule)
	CreateDescriptorSetLayout(dev vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(dev vk.Device, l vk.DescriptorSetLayout)
	CreatePipelineLayout(dev vk.Device, setLayout vk.DescriptorSetLayout) (vk.PipelineLayout, error)
	DestroyPipelineLayout(dev vk.Device, l vk.PipelineLayout)
	CreateComputePipeline(dev vk.Device, layout vk.PipelineLayout, shader vk.ShaderModule, entryPoint string) (vk.Pipeline, error)
	DestroyPipeline(dev vk.Device, p vk.Pipeline)
	CreateDescriptorPool(dev vk.Device, sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error)
	DestroyDescriptorPool(dev vk.Device, p vk.DescriptorPool)
	CreateSampler(dev vk.Device) (vk.Sampler, error)
	DestroySampler(dev vk.Device, s vk.Sampler)

	CreateBuffer(dev vk.Device, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error)
	DestroyBuffer(dev vk.Device, b vk.Buffer)
	AllocateBufferMemory(dev vk.Device, pd vk.PhysicalDevice, b vk.Buffer, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error)
	CreateImage(dev vk.Device, width, height uint32, usage vk.ImageUsageFlags) (vk.Image, error)
	DestroyImage(dev vk.Device, img vk.Image)
	AllocateImageMemory(dev vk.Device, pd vk.PhysicalDevice, img vk.Image, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error)
	FreeMemory(dev vk.Device, mem vk.DeviceMemory)
	CreateImageView(dev vk.Device, img vk.Image) (vk.ImageView, error)
	DestroyImageView(dev vk.Device, v vk.ImageView)

	MapMemory(dev vk.Device, mem vk.DeviceMemory, size vk.DeviceSize) (unsafe.Pointer, error)
	UnmapMemory(dev vk.Device, mem vk.DeviceMemory)
	WriteMapped(dst unsafe.Pointer, data []byte)

	AllocateDescriptorSet(dev vk.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error)
	ResetDescriptorPool(dev vk.Device, pool vk.DescriptorPool)
	UpdateDescriptorSets(dev vk.Device, writes []vk.WriteDescriptorSet)

	AllocateCommandBuffer(dev vk.Device, pool vk.CommandPool) (vk.CommandBuffer, error)
	FreeCommandBuffer(dev vk.Device, pool vk.CommandPool, cmd vk.CommandBuffer)
	BeginCommandBuffer(cmd vk.CommandBuffer) error
	EndCommandBuffer(cmd vk.CommandBuffer) error
	CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier)
	CmdCopyImage(cmd vk.CommandBuffer, src, dst vk.Image, width, height uint32)
	CmdBindComputePipeline(cmd vk.CommandBuffer, p vk.Pipeline)
	CmdBindDescriptorSet(cmd vk.CommandBuffer, layout vk.PipelineLayout, set vk.DescriptorSet)
	CmdDispatch(cmd vk.CommandBuffer, gx, gy, gz uint32)

	// SubmitAndWait submits the command buffer to the queue and blocks
	// until the queue drains. Correction is synchronous: one in-flight
	// command sequence at a time, no cross-frame fences.
	SubmitAndWait(queue vk.Queue, cmd vk.CommandBuffer) error
}

// DeviceSupportsCompute reports whether at least one queue family on the
// physical device advertises compute capability. Pure query, no side
// effects. A false result is a supported configuration, not an error: the
// caller keeps playing video with correction permanently disabled.
func DeviceSupportsCompute(api API, pd vk.PhysicalDevice) bool {
	for _, flags := range api.QueueFamilyFlags(pd) {
		if flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			return true
		}
	}
	return false
}
