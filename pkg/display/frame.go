package display

import (
	"log"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// PrepareFrameImage (re)creates the device-resident frame image at the
// given video dimensions, plus the host-visible staging buffer uploads go
// through. The image rests in the presentable layout so the corrector and
// the blit path always find it in a known state.
func (d *Display) PrepareFrameImage(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.New("frame image dimensions must be non-zero")
	}
	if d.frameImage != vk.NullImage && d.frameWidth == width && d.frameHeight == height {
		return nil
	}
	d.destroyFrameImage()

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    frameFormat,
		Extent:    vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels: 1,
		ArrayLayers: 1,
		Samples:   vk.SampleCount1Bit,
		Tiling:    vk.ImageTilingOptimal,
		Usage: vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) |
			vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(d.device, &imageInfo, nil, &image); res != vk.Success {
		return errors.Wrap(vk.Error(res), "create frame image")
	}
	d.frameImage = image

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memReq)
	memReq.Deref()
	memory, err := d.allocate(memReq, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		d.destroyFrameImage()
		return errors.Wrap(err, "allocate frame image memory")
	}
	d.frameMemory = memory
	vk.BindImageMemory(d.device, image, memory, 0)

	d.stagingSize = vk.DeviceSize(width * height * 4)
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        d.stagingSize,
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(d.device, &bufferInfo, nil, &buffer); res != vk.Success {
		d.destroyFrameImage()
		return errors.Wrap(vk.Error(res), "create staging buffer")
	}
	d.stagingBuffer = buffer

	var bufReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &bufReq)
	bufReq.Deref()
	stagingMemory, err := d.allocate(bufReq,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		d.destroyFrameImage()
		return errors.Wrap(err, "allocate staging memory")
	}
	d.stagingMemory = stagingMemory
	vk.BindBufferMemory(d.device, buffer, stagingMemory, 0)

	d.frameWidth = width
	d.frameHeight = height

	// Move the fresh image into its rest layout once so every later
	// transition starts from a defined state.
	err = d.oneTimeCommands(func(cmd vk.CommandBuffer) {
		d.transition(cmd, image, vk.ImageLayoutUndefined, vk.ImageLayoutPresentSrc,
			0, 0,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
	})
	if err != nil {
		d.destroyFrameImage()
		return err
	}

	log.Printf("display: frame image ready at %dx%d", width, height)
	return nil
}

// FrameSize returns the dimensions of the current frame image.
func (d *Display) FrameSize() (uint32, uint32) {
	return d.frameWidth, d.frameHeight
}

// UploadFrame copies tightly packed RGBA pixels into the frame image.
func (d *Display) UploadFrame(pixels []byte) error {
	if d.frameImage == vk.NullImage {
		return errors.New("no frame image prepared")
	}
	if vk.DeviceSize(len(pixels)) != d.stagingSize {
		return errors.Errorf("frame size mismatch: got %d bytes, want %d",
			len(pixels), d.stagingSize)
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(d.device, d.stagingMemory, 0, d.stagingSize, 0, &mapped); res != vk.Success {
		return errors.Wrap(vk.Error(res), "map staging memory")
	}
	vk.Memcopy(mapped, pixels)
	vk.UnmapMemory(d.device, d.stagingMemory)

	return d.oneTimeCommands(func(cmd vk.CommandBuffer) {
		d.transition(cmd, d.frameImage,
			vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit))

		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: d.frameWidth, Height: d.frameHeight, Depth: 1},
		}
		vk.CmdCopyBufferToImage(cmd, d.stagingBuffer, d.frameImage,
			vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

		d.transition(cmd, d.frameImage,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc,
			vk.AccessFlags(vk.AccessTransferWriteBit), 0,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
	})
}

// Present acquires a swapchain image, blits the given source onto it with
// scaling, and queues it for presentation. The source is returned to
// fromLayout afterwards so its owner sees no layout change.
func (d *Display) Present(source vk.Image, fromLayout vk.ImageLayout, width, height uint32) error {
	if source == vk.NullImage {
		return errors.New("present called with null image")
	}

	var index uint32
	res := vk.AcquireNextImage(d.device, d.swapchain, vk.MaxUint64,
		d.imageAvailable, vk.NullFence, &index)
	if res != vk.Success && res != vk.Suboptimal {
		return errors.Wrap(vk.Error(res), "acquire swapchain image")
	}
	target := d.swapchainImages[index]

	cmd, err := d.beginCommands()
	if err != nil {
		return err
	}

	d.transition(cmd, target, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		0, vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit))
	d.transition(cmd, source, fromLayout, vk.ImageLayoutTransferSrcOptimal,
		0, vk.AccessFlags(vk.AccessTransferReadBit),
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(width), Y: int32(height), Z: 1},
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(d.extent.Width), Y: int32(d.extent.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(cmd, source, vk.ImageLayoutTransferSrcOptimal,
		target, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, vk.FilterLinear)

	d.transition(cmd, source, vk.ImageLayoutTransferSrcOptimal, fromLayout,
		vk.AccessFlags(vk.AccessTransferReadBit), 0,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
	d.transition(cmd, target, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessFlags(vk.AccessTransferWriteBit), 0,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))

	if err := d.submitCommands(cmd, d.imageAvailable, d.renderDone); err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.renderDone},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain},
		PImageIndices:      []uint32{index},
	}
	res = vk.QueuePresent(d.queue, &presentInfo)
	if res != vk.Success && res != vk.Suboptimal {
		return errors.Wrap(vk.Error(res), "queue present")
	}
	vk.QueueWaitIdle(d.queue)
	return nil
}

func (d *Display) destroyFrameImage() {
	if d.stagingBuffer != vk.NullBuffer {
		vk.DestroyBuffer(d.device, d.stagingBuffer, nil)
		d.stagingBuffer = vk.NullBuffer
	}
	if d.stagingMemory != vk.NullDeviceMemory {
		vk.FreeMemory(d.device, d.stagingMemory, nil)
		d.stagingMemory = vk.NullDeviceMemory
	}
	if d.frameImage != vk.NullImage {
		vk.DestroyImage(d.device, d.frameImage, nil)
		d.frameImage = vk.NullImage
	}
	if d.frameMemory != vk.NullDeviceMemory {
		vk.FreeMemory(d.device, d.frameMemory, nil)
		d.frameMemory = vk.NullDeviceMemory
	}
	d.frameWidth, d.frameHeight = 0, 0
}

func (d *Display) allocate(req vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &memProps)
	memProps.Deref()

	typeIndex := int32(-1)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if req.MemoryTypeBits&(1<<i) == 0 {
			continue
		}
		if memProps.MemoryTypes[i].PropertyFlags&props == props {
			typeIndex = int32(i)
			break
		}
	}
	if typeIndex < 0 {
		return vk.NullDeviceMemory, errors.New("no suitable memory type")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typeIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &allocInfo, nil, &memory); res != vk.Success {
		return vk.NullDeviceMemory, vk.Error(res)
	}
	return memory, nil
}

func (d *Display) beginCommands() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.device, &allocInfo, buffers); res != vk.Success {
		return nil, errors.Wrap(vk.Error(res), "allocate command buffer")
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(buffers[0], &beginInfo); res != vk.Success {
		vk.FreeCommandBuffers(d.device, d.commandPool, 1, buffers)
		return nil, errors.Wrap(vk.Error(res), "begin command buffer")
	}
	return buffers[0], nil
}

func (d *Display) submitCommands(cmd vk.CommandBuffer, wait, signal vk.Semaphore) error {
	defer vk.FreeCommandBuffers(d.device, d.commandPool, 1, []vk.CommandBuffer{cmd})

	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return errors.Wrap(vk.Error(res), "end command buffer")
	}

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd},
	}
	if wait != vk.NullSemaphore {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{wait}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		}
	}
	if signal != vk.NullSemaphore {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{signal}
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, vk.NullFence); res != vk.Success {
		return errors.Wrap(vk.Error(res), "queue submit")
	}
	return nil
}

// oneTimeCommands records, submits and waits out a throwaway command buffer.
func (d *Display) oneTimeCommands(record func(vk.CommandBuffer)) error {
	cmd, err := d.beginCommands()
	if err != nil {
		return err
	}
	record(cmd)
	if err := d.submitCommands(cmd, vk.NullSemaphore, vk.NullSemaphore); err != nil {
		return err
	}
	if res := vk.QueueWaitIdle(d.queue); res != vk.Success {
		return errors.Wrap(vk.Error(res), "wait for queue")
	}
	return nil
}

func (d *Display) transition(cmd vk.CommandBuffer, image vk.Image,
	oldLayout, newLayout vk.ImageLayout,
	srcAccess, dstAccess vk.AccessFlags,
	srcStage, dstStage vk.PipelineStageFlags) {

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{barrier})
}
