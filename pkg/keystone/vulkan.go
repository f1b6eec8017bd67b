package keystone

import (
	"encoding/binary"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// frameFormat is the pixel format of every image the corrector touches. The
// decoder path uploads RGBA and the presenter blits RGBA, so the whole chain
// stays in one format and the input copy needs no conversion.
const frameFormat = vk.FormatR8g8b8a8Unorm

// VulkanAPI is the production implementation of API. Every method is a thin
// forwarder to the vulkan-go bindings; no state lives here, so one value can
// be shared by every component that borrows the device.
type VulkanAPI struct{}

var _ API = VulkanAPI{}

func (VulkanAPI) QueueFamilyFlags(pd vk.PhysicalDevice) []vk.QueueFlags {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	flags := make([]vk.QueueFlags, count)
	for i := range families {
		families[i].Deref()
		flags[i] = families[i].QueueFlags
	}
	return flags
}

func (VulkanAPI) CreateShaderModule(dev vk.Device, code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}

	var module vk.ShaderModule
	if res := vk.CreateShaderModule(dev, &createInfo, nil, &module); res != vk.Success {
		return vk.NullShaderModule, errors.Wrap(vk.Error(res), "create shader module")
	}
	return module, nil
}

func (VulkanAPI) DestroyShaderModule(dev vk.Device, m vk.ShaderModule) {
	vk.DestroyShaderModule(dev, m, nil)
}

func (VulkanAPI) CreateDescriptorSetLayout(dev vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(dev, &createInfo, nil, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, errors.Wrap(vk.Error(res), "create descriptor set layout")
	}
	return layout, nil
}

func (VulkanAPI) DestroyDescriptorSetLayout(dev vk.Device, l vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(dev, l, nil)
}

func (VulkanAPI) CreatePipelineLayout(dev vk.Device, setLayout vk.DescriptorSetLayout) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(dev, &createInfo, nil, &layout); res != vk.Success {
		return vk.NullPipelineLayout, errors.Wrap(vk.Error(res), "create pipeline layout")
	}
	return layout, nil
}

func (VulkanAPI) DestroyPipelineLayout(dev vk.Device, l vk.PipelineLayout) {
	vk.DestroyPipelineLayout(dev, l, nil)
}

func (VulkanAPI) CreateComputePipeline(dev vk.Device, layout vk.PipelineLayout, shader vk.ShaderModule, entryPoint string) (vk.Pipeline, error) {
	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: shader,
			PName:  entryPoint + "\x00",
		},
		Layout: layout,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(dev, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{createInfo}, nil, pipelines)
	if res != vk.Success {
		return vk.NullPipeline, errors.Wrap(vk.Error(res), "create compute pipeline")
	}
	return pipelines[0], nil
}

func (VulkanAPI) DestroyPipeline(dev vk.Device, p vk.Pipeline) {
	vk.DestroyPipeline(dev, p, nil)
}

func (VulkanAPI) CreateDescriptorPool(dev vk.Device, sizes []vk.DescriptorPoolSize, maxSets uint32) (vk.DescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
		MaxSets:       maxSets,
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(dev, &createInfo, nil, &pool); res != vk.Success {
		return vk.NullDescriptorPool, errors.Wrap(vk.Error(res), "create descriptor pool")
	}
	return pool, nil
}

func (VulkanAPI) DestroyDescriptorPool(dev vk.Device, p vk.DescriptorPool) {
	vk.DestroyDescriptorPool(dev, p, nil)
}

func (VulkanAPI) CreateSampler(dev vk.Device) (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(dev, &createInfo, nil, &sampler); res != vk.Success {
		return vk.NullSampler, errors.Wrap(vk.Error(res), "create sampler")
	}
	return sampler, nil
}

func (VulkanAPI) DestroySampler(dev vk.Device, s vk.Sampler) {
	vk.DestroySampler(dev, s, nil)
}

func (VulkanAPI) CreateBuffer(dev vk.Device, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if res := vk.CreateBuffer(dev, &createInfo, nil, &buffer); res != vk.Success {
		return vk.NullBuffer, errors.Wrap(vk.Error(res), "create buffer")
	}
	return buffer, nil
}

func (VulkanAPI) DestroyBuffer(dev vk.Device, b vk.Buffer) {
	vk.DestroyBuffer(dev, b, nil)
}

func (VulkanAPI) AllocateBufferMemory(dev vk.Device, pd vk.PhysicalDevice, b vk.Buffer, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, b, &memReq)
	memReq.Deref()

	mem, err := allocateMemory(dev, pd, memReq, props)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	if res := vk.BindBufferMemory(dev, b, mem, 0); res != vk.Success {
		vk.FreeMemory(dev, mem, nil)
		return vk.NullDeviceMemory, errors.Wrap(vk.Error(res), "bind buffer memory")
	}
	return mem, nil
}

func (VulkanAPI) CreateImage(dev vk.Device, width, height uint32, usage vk.ImageUsageFlags) (vk.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    frameFormat,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var image vk.Image
	if res := vk.CreateImage(dev, &createInfo, nil, &image); res != vk.Success {
		return vk.NullImage, errors.Wrap(vk.Error(res), "create image")
	}
	return image, nil
}

func (VulkanAPI) DestroyImage(dev vk.Device, img vk.Image) {
	vk.DestroyImage(dev, img, nil)
}

func (VulkanAPI) AllocateImageMemory(dev vk.Device, pd vk.PhysicalDevice, img vk.Image, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, img, &memReq)
	memReq.Deref()

	mem, err := allocateMemory(dev, pd, memReq, props)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	if res := vk.BindImageMemory(dev, img, mem, 0); res != vk.Success {
		vk.FreeMemory(dev, mem, nil)
		return vk.NullDeviceMemory, errors.Wrap(vk.Error(res), "bind image memory")
	}
	return mem, nil
}

func (VulkanAPI) FreeMemory(dev vk.Device, mem vk.DeviceMemory) {
	vk.FreeMemory(dev, mem, nil)
}

func (VulkanAPI) CreateImageView(dev vk.Device, img vk.Image) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   frameFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(dev, &createInfo, nil, &view); res != vk.Success {
		return vk.NullImageView, errors.Wrap(vk.Error(res), "create image view")
	}
	return view, nil
}

func (VulkanAPI) DestroyImageView(dev vk.Device, v vk.ImageView) {
	vk.DestroyImageView(dev, v, nil)
}

func (VulkanAPI) MapMemory(dev vk.Device, mem vk.DeviceMemory, size vk.DeviceSize) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	if res := vk.MapMemory(dev, mem, 0, size, 0, &ptr); res != vk.Success {
		return nil, errors.Wrap(vk.Error(res), "map memory")
	}
	return ptr, nil
}

func (VulkanAPI) UnmapMemory(dev vk.Device, mem vk.DeviceMemory) {
	vk.UnmapMemory(dev, mem)
}

func (VulkanAPI) WriteMapped(dst unsafe.Pointer, data []byte) {
	vk.Memcopy(dst, data)
}

func (VulkanAPI) AllocateDescriptorSet(dev vk.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	sets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(dev, &allocInfo, &sets[0]); res != vk.Success {
		return vk.NullDescriptorSet, errors.Wrap(vk.Error(res), "allocate descriptor set")
	}
	return sets[0], nil
}

func (VulkanAPI) ResetDescriptorPool(dev vk.Device, pool vk.DescriptorPool) {
	vk.ResetDescriptorPool(dev, pool, 0)
}

func (VulkanAPI) UpdateDescriptorSets(dev vk.Device, writes []vk.WriteDescriptorSet) {
	vk.UpdateDescriptorSets(dev, uint32(len(writes)), writes, 0, nil)
}

func (VulkanAPI) AllocateCommandBuffer(dev vk.Device, pool vk.CommandPool) (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        pool,
		CommandBufferCount: 1,
	}

	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(dev, &allocInfo, buffers); res != vk.Success {
		return nil, errors.Wrap(vk.Error(res), "allocate command buffer")
	}
	return buffers[0], nil
}

func (VulkanAPI) FreeCommandBuffer(dev vk.Device, pool vk.CommandPool, cmd vk.CommandBuffer) {
	vk.FreeCommandBuffers(dev, pool, 1, []vk.CommandBuffer{cmd})
}

func (VulkanAPI) BeginCommandBuffer(cmd vk.CommandBuffer) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return errors.Wrap(vk.Error(res), "begin command buffer")
	}
	return nil
}

func (VulkanAPI) EndCommandBuffer(cmd vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return errors.Wrap(vk.Error(res), "end command buffer")
	}
	return nil
}

func (VulkanAPI) CmdPipelineBarrier(cmd vk.CommandBuffer, srcStage, dstStage vk.PipelineStageFlags, barrier vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (VulkanAPI) CmdCopyImage(cmd vk.CommandBuffer, src, dst vk.Image, width, height uint32) {
	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
	}
	vk.CmdCopyImage(cmd, src, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{region})
}

func (VulkanAPI) CmdBindComputePipeline(cmd vk.CommandBuffer, p vk.Pipeline) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointCompute, p)
}

func (VulkanAPI) CmdBindDescriptorSet(cmd vk.CommandBuffer, layout vk.PipelineLayout, set vk.DescriptorSet) {
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointCompute, layout, 0, 1,
		[]vk.DescriptorSet{set}, 0, nil)
}

func (VulkanAPI) CmdDispatch(cmd vk.CommandBuffer, gx, gy, gz uint32) {
	vk.CmdDispatch(cmd, gx, gy, gz)
}

func (VulkanAPI) SubmitAndWait(queue vk.Queue, cmd vk.CommandBuffer) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}

	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return errors.Wrap(vk.Error(res), "queue submit")
	}
	if res := vk.QueueWaitIdle(queue); res != vk.Success {
		return errors.Wrap(vk.Error(res), "queue wait idle")
	}
	return nil
}

func allocateMemory(dev vk.Device, pd vk.PhysicalDevice, memReq vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	typeIndex, err := findMemoryType(pd, memReq.MemoryTypeBits, props)
	if err != nil {
		return vk.NullDeviceMemory, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}

	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(dev, &allocInfo, nil, &mem); res != vk.Success {
		return vk.NullDeviceMemory, errors.Wrap(vk.Error(res), "allocate memory")
	}
	return mem, nil
}

func findMemoryType(pd vk.PhysicalDevice, typeFilter uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memProps)
	memProps.Deref()

	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memType := memProps.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}
		if memType.PropertyFlags&props != props {
			continue
		}
		return i, nil
	}
	return 0, errors.New("no suitable memory type")
}

// repackUint32 reinterprets SPIR-V bytes as the uint32 words the shader
// module create info expects. SPIR-V is little endian by definition.
func repackUint32(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}
