package keystone

import (
	vk "github.com/vulkan-go/vulkan"
)

// resourceSet is the per-resolution bundle: the uniform parameter buffer,
// the input and output images with their memory and views, and the one
// descriptor set binding all three. At most one resourceSet is live at a
// time; a resolution change destroys the old bundle completely before the
// new one is created.
type resourceSet struct {
	width  uint32
	height uint32

	uniformBuffer vk.Buffer
	uniformMemory vk.DeviceMemory

	inputImage  vk.Image
	inputMemory vk.DeviceMemory
	inputView   vk.ImageView

	outputImage  vk.Image
	outputMemory vk.DeviceMemory
	outputView   vk.ImageView

	set vk.DescriptorSet
}

// buildResources allocates a fully-bound resourceSet for the given frame
// dimensions. Any failing step rolls back everything allocated by this call
// and only this call; a previously live bundle must already have been
// destroyed by the caller.
func buildResources(api API, dev DeviceContext, p *computePipeline, width, height uint32) (*resourceSet, error) {
	var undo rollback
	r := &resourceSet{width: width, height: height}

	// Parameters are a handful of floats rewritten from the CPU every
	// frame, so the buffer lives in host-visible coherent memory and no
	// staging copy is needed.
	buf, err := api.CreateBuffer(dev.Device, uniformSize,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		return nil, wrapDeviceError(err, "uniform buffer")
	}
	r.uniformBuffer = buf
	undo = append(undo, func() { api.DestroyBuffer(dev.Device, buf) })

	bufMem, err := api.AllocateBufferMemory(dev.Device, dev.Physical, buf,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "uniform buffer memory")
	}
	r.uniformMemory = bufMem
	undo = append(undo, func() { api.FreeMemory(dev.Device, bufMem) })

	inputImage, err := api.CreateImage(dev.Device, width, height,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)|
			vk.ImageUsageFlags(vk.ImageUsageStorageBit))
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "input image")
	}
	r.inputImage = inputImage
	undo = append(undo, func() { api.DestroyImage(dev.Device, inputImage) })

	inputMem, err := api.AllocateImageMemory(dev.Device, dev.Physical, inputImage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "input image memory")
	}
	r.inputMemory = inputMem
	undo = append(undo, func() { api.FreeMemory(dev.Device, inputMem) })

	inputView, err := api.CreateImageView(dev.Device, inputImage)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "input image view")
	}
	r.inputView = inputView
	undo = append(undo, func() { api.DestroyImageView(dev.Device, inputView) })

	// The output image is later blitted to the swapchain, so it also
	// carries transfer-src and sampled usage for the presenter.
	outputImage, err := api.CreateImage(dev.Device, width, height,
		vk.ImageUsageFlags(vk.ImageUsageStorageBit)|
			vk.ImageUsageFlags(vk.ImageUsageSampledBit)|
			vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit))
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "output image")
	}
	r.outputImage = outputImage
	undo = append(undo, func() { api.DestroyImage(dev.Device, outputImage) })

	outputMem, err := api.AllocateImageMemory(dev.Device, dev.Physical, outputImage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "output image memory")
	}
	r.outputMemory = outputMem
	undo = append(undo, func() { api.FreeMemory(dev.Device, outputMem) })

	outputView, err := api.CreateImageView(dev.Device, outputImage)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "output image view")
	}
	r.outputView = outputView
	undo = append(undo, func() { api.DestroyImageView(dev.Device, outputView) })

	set, err := api.AllocateDescriptorSet(dev.Device, p.pool, p.setLayout)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "descriptor set")
	}
	r.set = set

	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buf,
				Offset: 0,
				Range:  uniformSize,
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   inputView,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      2,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   outputView,
				ImageLayout: vk.ImageLayoutGeneral,
			}},
		},
	}
	api.UpdateDescriptorSets(dev.Device, writes)

	return r, nil
}

// destroy releases the bundle in dependency order: views before images,
// then memory and the uniform buffer, and finally the descriptor pool reset
// that invalidates the set.
func (r *resourceSet) destroy(api API, dev DeviceContext, p *computePipeline) {
	if r.inputView != vk.NullImageView {
		api.DestroyImageView(dev.Device, r.inputView)
	}
	if r.outputView != vk.NullImageView {
		api.DestroyImageView(dev.Device, r.outputView)
	}
	if r.inputImage != vk.NullImage {
		api.DestroyImage(dev.Device, r.inputImage)
	}
	if r.outputImage != vk.NullImage {
		api.DestroyImage(dev.Device, r.outputImage)
	}
	if r.inputMemory != vk.NullDeviceMemory {
		api.FreeMemory(dev.Device, r.inputMemory)
	}
	if r.outputMemory != vk.NullDeviceMemory {
		api.FreeMemory(dev.Device, r.outputMemory)
	}
	if r.uniformBuffer != vk.NullBuffer {
		api.DestroyBuffer(dev.Device, r.uniformBuffer)
	}
	if r.uniformMemory != vk.NullDeviceMemory {
		api.FreeMemory(dev.Device, r.uniformMemory)
	}
	if r.set != vk.NullDescriptorSet {
		api.ResetDescriptorPool(dev.Device, p.pool)
	}
	*r = resourceSet{}
}
