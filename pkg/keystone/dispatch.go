package keystone

import (
	vk "github.com/vulkan-go/vulkan"
)

// localGroupSize matches the local_size_x/y declared in keystone.comp.
const localGroupSize = 16

// layoutPresentable is the rest layout of the borrowed source image. The
// presenter owns the source and expects it back in this layout after every
// Apply call, successful or not.
const layoutPresentable = vk.ImageLayoutPresentSrc

// UpdateParameters writes the corner coordinates and frame dimensions into
// the mapped uniform buffer. The same buffer is reused on every call; no
// reallocation happens here.
func (c *Corrector) UpdateParameters(p Params) error {
	if c.state == StateUnsupported {
		return ErrUnsupported
	}
	if c.state != StateResourceBound {
		return ErrNotInitialized
	}

	ptr, err := c.api.MapMemory(c.dev.Device, c.res.uniformMemory, uniformSize)
	if err != nil {
		return wrapDeviceError(err, "map parameter buffer")
	}
	c.api.WriteMapped(ptr, p.pack(c.res.width, c.res.height))
	c.api.UnmapMemory(c.dev.Device, c.res.uniformMemory)
	return nil
}

// Apply runs one correction pass over the borrowed source image and returns
// the image the presenter should display: the corrected output on success,
// or the untouched source when correction is disabled.
//
// The pass is synchronous: the one-shot command sequence is submitted and
// the call blocks until the queue drains, so at most one dispatch is ever in
// flight and no cross-frame fencing is needed. On a device failure the frame
// is dropped for correction purposes; the caller presents the uncorrected
// source and may retry next frame, the resource bundle stays valid.
func (c *Corrector) Apply(source vk.Image, p Params) (vk.Image, error) {
	if !p.Enabled {
		// Pass-through: no device work at all.
		return source, nil
	}
	if c.state == StateUnsupported {
		return source, ErrUnsupported
	}
	if c.state != StateResourceBound {
		return source, ErrNotInitialized
	}
	if source == vk.NullImage {
		return source, ErrInvalidParameter
	}

	if err := c.UpdateParameters(p); err != nil {
		return source, err
	}

	cmd, err := c.api.AllocateCommandBuffer(c.dev.Device, c.dev.CommandPool)
	if err != nil {
		return source, wrapDeviceError(err, "allocate command buffer")
	}
	defer c.api.FreeCommandBuffer(c.dev.Device, c.dev.CommandPool, cmd)

	if err := c.api.BeginCommandBuffer(cmd); err != nil {
		return source, wrapDeviceError(err, "begin command buffer")
	}

	r := c.res

	// Input image receives the frame copy. Its previous contents are
	// irrelevant, so the transition starts from Undefined.
	c.api.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		imageBarrier(r.inputImage,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessFlags(vk.AccessTransferWriteBit)))

	// The source is borrowed from the presenter in its presentable layout.
	c.api.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		imageBarrier(source,
			layoutPresentable, vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessMemoryReadBit), vk.AccessFlags(vk.AccessTransferReadBit)))

	// Same format, same dimensions: a straight copy, no blit or scaling.
	c.api.CmdCopyImage(cmd, source, r.inputImage, r.width, r.height)

	c.api.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		imageBarrier(r.inputImage,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutGeneral,
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.AccessFlags(vk.AccessShaderReadBit)|vk.AccessFlags(vk.AccessShaderWriteBit)))

	// Return the borrowed source to the layout the presenter expects.
	c.api.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		imageBarrier(source,
			vk.ImageLayoutTransferSrcOptimal, layoutPresentable,
			vk.AccessFlags(vk.AccessTransferReadBit), vk.AccessFlags(vk.AccessMemoryReadBit)))

	c.api.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		imageBarrier(r.outputImage,
			vk.ImageLayoutUndefined, vk.ImageLayoutGeneral,
			0, vk.AccessFlags(vk.AccessShaderWriteBit)))

	c.api.CmdBindComputePipeline(cmd, c.pipeline.pipeline)
	c.api.CmdBindDescriptorSet(cmd, c.pipeline.layout, r.set)
	c.api.CmdDispatch(cmd,
		groupCount(r.width), groupCount(r.height), 1)

	if err := c.api.EndCommandBuffer(cmd); err != nil {
		return source, wrapDeviceError(err, "end command buffer")
	}
	if err := c.api.SubmitAndWait(c.dev.Queue, cmd); err != nil {
		return source, wrapDeviceError(err, "submit correction pass")
	}

	return r.outputImage, nil
}

// groupCount is the ceiling division of a dimension by the work-group size.
func groupCount(dim uint32) uint32 {
	return (dim + localGroupSize - 1) / localGroupSize
}

func imageBarrier(img vk.Image, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}
}
