// Package keystone implements GPU-accelerated projective (four corner)
// geometry correction for decoded video frames.
//
// The corrector borrows a Vulkan device context from the display layer,
// copies each decoded frame into a private input image, runs a compute
// shader that warps it into an output image, and hands the output to the
// presenter. Devices without a compute-capable queue family are a supported
// configuration: the subsystem stays disabled and every frame passes through
// untouched.
package keystone

import (
	"log"

	vk "github.com/vulkan-go/vulkan"
)

// State tracks the corrector lifecycle for one device context.
type State int

const (
	// StateUnprobed is the initial state before capability detection.
	StateUnprobed State = iota
	// StateUnsupported is terminal: the device has no compute queue family.
	StateUnsupported
	// StatePipelineReady means the fixed pipeline objects exist but no
	// per-resolution resources do.
	StatePipelineReady
	// StateResourceBound means a resource bundle exists and frames can be
	// corrected. Re-entered on every resolution change.
	StateResourceBound
	// StateDestroyed is terminal: Cleanup has run.
	StateDestroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnprobed:
		return "Unprobed"
	case StateUnsupported:
		return "Unsupported"
	case StatePipelineReady:
		return "PipelineReady"
	case StateResourceBound:
		return "ResourceBound"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// Corrector owns the keystone compute pipeline and its per-resolution
// resources. It is driven by a single-threaded frame loop; the caller is
// responsible for never resizing while an Apply call is in flight.
type Corrector struct {
	api        API
	dev        DeviceContext
	shaderPath string

	state    State
	pipeline *computePipeline
	res      *resourceSet
}

// New creates a corrector bound to a borrowed device context. No device
// work happens until Probe and InitPipeline.
func New(api API, dev DeviceContext, shaderPath string) *Corrector {
	return &Corrector{
		api:        api,
		dev:        dev,
		shaderPath: shaderPath,
		state:      StateUnprobed,
	}
}

// State returns the current lifecycle state.
func (c *Corrector) State() State {
	return c.state
}

// Probe checks the device for compute capability. A false result moves the
// corrector to the terminal Unsupported state; every later call then
// short-circuits without touching the device.
func (c *Corrector) Probe() bool {
	if c.state != StateUnprobed {
		return c.state != StateUnsupported && c.state != StateDestroyed
	}
	if !DeviceSupportsCompute(c.api, c.dev.Physical) {
		log.Printf("keystone: device has no compute queue family, correction disabled")
		c.state = StateUnsupported
		return false
	}
	return true
}

// InitPipeline builds the resolution-independent pipeline objects. It must
// run after a successful Probe and before any BuildResources. A failure
// tears down its own partial work and marks the subsystem unsupported so
// playback continues in pass-through mode.
func (c *Corrector) InitPipeline() error {
	switch c.state {
	case StateUnsupported:
		return ErrUnsupported
	case StateDestroyed:
		return ErrNotInitialized
	case StatePipelineReady, StateResourceBound:
		// Already built; the pipeline is never rebuilt while live.
		return nil
	}

	p, err := buildPipeline(c.api, c.dev, c.shaderPath)
	if err != nil {
		log.Printf("keystone: pipeline init failed, correction disabled: %v", err)
		c.state = StateUnsupported
		return err
	}
	c.pipeline = p
	c.state = StatePipelineReady
	return nil
}

// BuildResources (re)allocates the per-resolution bundle for the given
// frame dimensions. The previous bundle, if any, is destroyed completely
// first; on failure no bundle exists and the state reverts to
// PipelineReady, so the caller must not Apply until a later build succeeds.
func (c *Corrector) BuildResources(width, height uint32) error {
	switch c.state {
	case StateUnsupported:
		return ErrUnsupported
	case StateUnprobed, StateDestroyed:
		return ErrNotInitialized
	}
	if width == 0 || height == 0 {
		return ErrInvalidParameter
	}

	if c.res != nil {
		c.res.destroy(c.api, c.dev, c.pipeline)
		c.res = nil
		c.state = StatePipelineReady
	}

	r, err := buildResources(c.api, c.dev, c.pipeline, width, height)
	if err != nil {
		return err
	}
	c.res = r
	c.state = StateResourceBound
	log.Printf("keystone: resources bound for %dx%d", width, height)
	return nil
}

// OutputImage returns the current corrected-output image, or a null handle
// when no resource bundle is live. Callers must check before consuming.
func (c *Corrector) OutputImage() vk.Image {
	if c.state != StateResourceBound || c.res == nil {
		return vk.NullImage
	}
	return c.res.outputImage
}

// Size returns the dimensions the live resource bundle was built for, or
// zero when none is live.
func (c *Corrector) Size() (uint32, uint32) {
	if c.res == nil {
		return 0, 0
	}
	return c.res.width, c.res.height
}

// Cleanup tears down everything in reverse creation order. It is safe to
// call after a partial initialization failure and safe to call twice; the
// corrector is unusable afterwards.
func (c *Corrector) Cleanup() {
	if c.state == StateDestroyed {
		return
	}
	if c.res != nil {
		c.res.destroy(c.api, c.dev, c.pipeline)
		c.res = nil
	}
	if c.pipeline != nil {
		c.pipeline.destroy(c.api, c.dev)
		c.pipeline = nil
	}
	c.state = StateDestroyed
}
