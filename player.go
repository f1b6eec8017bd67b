package main

import (
	"io"
	"log"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	vk "github.com/vulkan-go/vulkan"

	"github.com/mjdilworth/pickle-sub002/pkg/display"
	"github.com/mjdilworth/pickle-sub002/pkg/input"
	"github.com/mjdilworth/pickle-sub002/pkg/keystone"
	"github.com/mjdilworth/pickle-sub002/pkg/performance"
	"github.com/mjdilworth/pickle-sub002/pkg/settings"
	"github.com/mjdilworth/pickle-sub002/pkg/video"
)

// applyFailureLimit is how many consecutive dispatch failures the player
// tolerates before tearing the corrector down for good. Transient device
// memory pressure on 1-2GB boards clears within a frame or two, and the
// resource bundle stays valid across a failed dispatch.
const applyFailureLimit = 3

// lowMemoryMB is the available-memory floor below which the frame loop
// hands freed heap back to the OS so the GPU driver can have it.
const lowMemoryMB = 128

// failureGate counts consecutive failures against a limit.
type failureGate struct {
	failures int
	limit    int
}

// fail records one failure and reports whether the limit is reached.
func (g *failureGate) fail() bool {
	g.failures++
	return g.failures >= g.limit
}

func (g *failureGate) ok() {
	g.failures = 0
}

// player owns the frame loop: decode, keystone correction, presentation,
// and the alignment controls.
type player struct {
	disp      *display.Display
	source    video.FrameSource
	corrector *keystone.Corrector
	handler   *input.Handler
	monitor   *performance.Monitor
	skipper   *video.Skipper
	applyGate failureGate

	tuning settings.Tuning
	stored settings.Settings

	width  uint32
	height uint32
	loop   bool
}

func newPlayer(disp *display.Display, source video.FrameSource, tuning settings.Tuning) (*player, error) {
	width, height := source.Size()
	if width == 0 || height == 0 {
		width, height = fallbackWidth, fallbackHeight
	}

	if err := disp.PrepareFrameImage(width, height); err != nil {
		return nil, err
	}

	stored := settings.Load(tuning.SettingsFile, width, height)

	p := &player{
		disp:      disp,
		source:    source,
		monitor:   performance.NewMonitor(120),
		skipper:   video.NewSkipper(),
		applyGate: failureGate{limit: applyFailureLimit},
		tuning:    tuning,
		stored:    stored,
		width:     width,
		height:    height,
		loop:      stored.Loop,
	}

	params := stored.Keystone.Params()
	p.handler = input.NewHandler(params, width, height)
	p.corrector = p.bringUpCorrector()
	return p, nil
}

// bringUpCorrector probes and initializes keystone correction. Any
// failure along the way leaves the player running uncorrected.
func (p *player) bringUpCorrector() *keystone.Corrector {
	if p.tuning.DisableKeystone {
		log.Printf("keystone correction disabled, playing pass-through")
		return nil
	}

	c := keystone.New(keystone.VulkanAPI{}, p.disp.DeviceContext(), p.tuning.ShaderPath)
	if !c.Probe() {
		log.Printf("keystone correction unavailable, playing pass-through")
		return nil
	}
	if err := c.InitPipeline(); err != nil {
		log.Printf("keystone pipeline init failed, playing pass-through: %v", err)
		return nil
	}
	if err := c.BuildResources(p.width, p.height); err != nil {
		log.Printf("keystone resource build failed, playing pass-through: %v", err)
		c.Cleanup()
		return nil
	}
	return c
}

// Run drives the frame loop until the user quits or the source ends with
// looping off.
func (p *player) Run() {
	budget := frameBudget()
	frameCount := 0
	lastReport := time.Now()

	for {
		frameStart := time.Now()

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			p.handler.HandleEvent(event)
		}
		p.handler.Update()
		if p.handler.QuitRequested() {
			return
		}
		if p.handler.ConsumeSaveRequest() {
			p.saveSettings()
		}

		if err := p.frame(); err == io.EOF {
			if !p.loop {
				return
			}
			if err := p.source.Rewind(); err != nil {
				log.Printf("Rewind failed: %v", err)
				return
			}
			p.skipper.Reset()
		} else if err != nil {
			log.Printf("Frame error: %v", err)
			return
		}

		total := time.Since(frameStart)
		p.monitor.FrameDone(total)

		frameCount++
		if frameCount%60 == 0 {
			runtime.GC()
		}
		if frameCount%300 == 0 && performance.LowMemory(lowMemoryMB) {
			log.Printf("Low system memory, releasing heap to the OS")
			debug.FreeOSMemory()
		}
		if p.tuning.ShowTiming && time.Since(lastReport) >= 5*time.Second {
			p.monitor.Snapshot().Log()
			performance.LogMemory()
			lastReport = time.Now()
		}

		if total < budget {
			time.Sleep(budget - total)
		}
	}
}

// frame decodes, uploads, corrects and presents one frame.
func (p *player) frame() error {
	if p.tuning.AdaptiveDecode && !p.skipper.Observe(p.monitor.Snapshot().Total) {
		p.monitor.FrameDropped()
		// Re-present the previous frame so the display keeps refreshing.
		return p.present(p.disp.FrameImage(), vk.ImageLayoutPresentSrc)
	}

	decodeStart := time.Now()
	frame, err := p.source.Next()
	if err != nil {
		return err
	}
	p.monitor.Record(performance.StageDecode, time.Since(decodeStart))

	uploadStart := time.Now()
	if err := p.disp.UploadFrame(frame.Pixels); err != nil {
		return err
	}
	p.monitor.Record(performance.StageUpload, time.Since(uploadStart))

	image := p.disp.FrameImage()
	layout := vk.ImageLayoutPresentSrc

	if p.corrector != nil {
		correctStart := time.Now()
		corrected, err := p.corrector.Apply(image, p.handler.Params())
		p.monitor.Record(performance.StageCorrect, time.Since(correctStart))
		if err != nil {
			if p.applyGate.fail() {
				log.Printf("Keystone dispatch failed %d frames running, dropping to pass-through: %v",
					p.applyGate.failures, err)
				p.corrector.Cleanup()
				p.corrector = nil
			} else {
				log.Printf("Keystone dispatch failed, retrying next frame: %v", err)
			}
		} else {
			p.applyGate.ok()
			if corrected != image {
				image = corrected
				layout = vk.ImageLayoutGeneral
			}
		}
	}

	return p.present(image, layout)
}

func (p *player) present(image vk.Image, layout vk.ImageLayout) error {
	presentStart := time.Now()
	err := p.disp.Present(image, layout, p.width, p.height)
	p.monitor.Record(performance.StagePresent, time.Since(presentStart))
	return err
}

func (p *player) saveSettings() {
	p.stored.SetParams(p.handler.Params())
	p.stored.Loop = p.loop
	if err := settings.Save(p.tuning.SettingsFile, p.stored); err != nil {
		log.Printf("Failed to save settings: %v", err)
		return
	}
	log.Printf("Settings saved to %s", p.tuning.SettingsFile)
}

// Close releases the corrector before the display tears down the device
// it borrows.
func (p *player) Close() {
	if p.corrector != nil {
		p.corrector.Cleanup()
		p.corrector = nil
	}
}
