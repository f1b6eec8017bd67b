package keystone

import (
	"os"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// shaderEntryPoint is the entry point name in the compiled compute shader.
const shaderEntryPoint = "main"

// computePipeline holds every resolution-independent GPU object the keystone
// shader needs. Built exactly once per process; never rebuilt while a
// resourceSet exists.
type computePipeline struct {
	setLayout vk.DescriptorSetLayout
	layout    vk.PipelineLayout
	shader    vk.ShaderModule
	pipeline  vk.Pipeline
	pool      vk.DescriptorPool
	sampler   vk.Sampler
}

// rollback is an explicit list of release actions accumulated during a
// multi-step construction. On failure it is unwound in reverse acquisition
// order; on success ownership of the built objects transfers to the owning
// struct and the list is discarded.
type rollback []func()

func (r rollback) unwind() {
	for i := len(r) - 1; i >= 0; i-- {
		r[i]()
	}
}

// buildPipeline constructs the fixed pipeline objects: descriptor set layout
// (uniform buffer + input storage image + output storage image), pipeline
// layout, shader module from the compiled artifact at shaderPath, compute
// pipeline, a descriptor pool sized for exactly one set, and a linear
// clamp-to-edge sampler. A failing step tears down everything this call
// created, in reverse order, and nothing is left reachable.
//
// The pool holds one set only: resize is the sole source of change and the
// old set is always released before a new one is allocated, so a second
// concurrent resolution never exists.
func buildPipeline(api API, dev DeviceContext, shaderPath string) (*computePipeline, error) {
	var undo rollback
	p := &computePipeline{}

	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		},
		{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		},
		{
			Binding:         2,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		},
	}

	setLayout, err := api.CreateDescriptorSetLayout(dev.Device, bindings)
	if err != nil {
		return nil, wrapDeviceError(err, "descriptor set layout")
	}
	p.setLayout = setLayout
	undo = append(undo, func() { api.DestroyDescriptorSetLayout(dev.Device, setLayout) })

	layout, err := api.CreatePipelineLayout(dev.Device, setLayout)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "pipeline layout")
	}
	p.layout = layout
	undo = append(undo, func() { api.DestroyPipelineLayout(dev.Device, layout) })

	code, err := loadShaderCode(shaderPath)
	if err != nil {
		undo.unwind()
		return nil, err
	}

	shader, err := api.CreateShaderModule(dev.Device, code)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "shader module")
	}
	p.shader = shader
	undo = append(undo, func() { api.DestroyShaderModule(dev.Device, shader) })

	pipeline, err := api.CreateComputePipeline(dev.Device, layout, shader, shaderEntryPoint)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "compute pipeline")
	}
	p.pipeline = pipeline
	undo = append(undo, func() { api.DestroyPipeline(dev.Device, pipeline) })

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 2},
	}
	pool, err := api.CreateDescriptorPool(dev.Device, poolSizes, 1)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "descriptor pool")
	}
	p.pool = pool
	undo = append(undo, func() { api.DestroyDescriptorPool(dev.Device, pool) })

	// Held for a future sampled-read path; the storage-image dispatch does
	// not use it, but it belongs to the fixed resource set.
	sampler, err := api.CreateSampler(dev.Device)
	if err != nil {
		undo.unwind()
		return nil, wrapDeviceError(err, "sampler")
	}
	p.sampler = sampler

	return p, nil
}

// destroy releases the fixed pipeline objects in reverse creation order.
func (p *computePipeline) destroy(api API, dev DeviceContext) {
	if p.sampler != vk.NullSampler {
		api.DestroySampler(dev.Device, p.sampler)
		p.sampler = vk.NullSampler
	}
	if p.pool != vk.NullDescriptorPool {
		api.DestroyDescriptorPool(dev.Device, p.pool)
		p.pool = vk.NullDescriptorPool
	}
	if p.pipeline != vk.NullPipeline {
		api.DestroyPipeline(dev.Device, p.pipeline)
		p.pipeline = vk.NullPipeline
	}
	if p.shader != vk.NullShaderModule {
		api.DestroyShaderModule(dev.Device, p.shader)
		p.shader = vk.NullShaderModule
	}
	if p.layout != vk.NullPipelineLayout {
		api.DestroyPipelineLayout(dev.Device, p.layout)
		p.layout = vk.NullPipelineLayout
	}
	if p.setLayout != vk.NullDescriptorSetLayout {
		api.DestroyDescriptorSetLayout(dev.Device, p.setLayout)
		p.setLayout = vk.NullDescriptorSetLayout
	}
}

// loadShaderCode reads the compiled SPIR-V artifact. A missing or truncated
// artifact disables the subsystem but must not crash playback.
func loadShaderCode(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceResourceFailure, "load shader %s: %v", path, err)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Wrapf(ErrDeviceResourceFailure, "shader %s is not valid SPIR-V (%d bytes)", path, len(code))
	}
	return code, nil
}

func wrapDeviceError(err error, what string) error {
	return errors.Wrapf(ErrDeviceResourceFailure, "%s: %v", what, err)
}
