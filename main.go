// Command pickle is a fullscreen video player for single-board computers
// driving a projector, with GPU keystone correction of every frame.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/mjdilworth/pickle-sub002/pkg/display"
	"github.com/mjdilworth/pickle-sub002/pkg/settings"
	"github.com/mjdilworth/pickle-sub002/pkg/video"
	"github.com/mjdilworth/pickle-sub002/pkg/videoFs"
)

const (
	targetFPS      = 60
	fallbackWidth  = 1920
	fallbackHeight = 1080
)

func main() {
	// SDL and the Vulkan loader both require the main OS thread.
	runtime.LockOSThread()

	setupARMMemoryManagement()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}
	tuning := settings.TuningFromEnv()

	if err := initializeSDL(); err != nil {
		log.Fatalf("Failed to initialize SDL2: %v", err)
	}
	defer func() {
		log.Println("Shutting down SDL2...")
		sdl.Quit()
		runtime.GC()
	}()

	screenWidth, screenHeight := displayDimensions()
	log.Printf("Starting pickle | Resolution: %dx%d", screenWidth, screenHeight)

	window, err := createWindow(screenWidth, screenHeight)
	if err != nil {
		log.Fatalf("Failed to create window: %v", err)
	}
	defer window.Destroy()

	disp, err := display.New(window)
	if err != nil {
		log.Fatalf("Failed to bring up Vulkan display: %v", err)
	}
	defer disp.Cleanup()

	source := openSource(tuning, screenWidth, screenHeight)
	defer source.Close()

	player, err := newPlayer(disp, source, tuning)
	if err != nil {
		log.Fatalf("Failed to initialize player: %v", err)
	}
	defer player.Close()

	player.Run()
	log.Println("pickle shutting down...")
}

// openSource finds something to play: a synced media library if
// configured, the local library otherwise, and the generated test pattern
// when neither holds a playable file.
func openSource(tuning settings.Tuning, screenWidth, screenHeight int32) video.FrameSource {
	if tuning.SyncFromS3 {
		if _, err := videoFs.SyncFromS3(tuning.S3Bucket, tuning.S3Prefix, tuning.VideoDir); err != nil {
			log.Printf("S3 sync failed, playing local library: %v", err)
		}
	}

	files, err := videoFs.ListPlayable(tuning.VideoDir)
	if err != nil {
		log.Printf("Cannot read media directory: %v", err)
	}
	for _, file := range files {
		demux, err := video.NewDemuxer(file)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			continue
		}
		if _, err := demux.Next(); err == nil || err != video.ErrNoDecoder {
			return demux
		}
		demux.Close()
	}

	log.Printf("No decodable media, showing alignment pattern")
	pattern, err := video.NewPatternSource(uint32(screenWidth), uint32(screenHeight))
	if err != nil {
		log.Fatalf("Failed to create pattern source: %v", err)
	}
	return pattern
}

// setupARMMemoryManagement keeps the Go heap small and predictable on
// 1-2GB boards where the GPU shares system memory.
func setupARMMemoryManagement() {
	os.Setenv("GODEBUG", "madvdontneed=1")
	os.Setenv("GOGC", "25")
	os.Setenv("GOMEMLIMIT", "256MiB")

	debug.SetGCPercent(25)
	debug.SetMemoryLimit(256 << 20)
	runtime.GC()

	log.Printf("ARM memory management configured: GOGC=25, GOMEMLIMIT=256MiB")
}

// initializeSDL tries the video drivers in preference order until one
// comes up. Vulkan needs a real display driver, so kmsdrm leads on the
// target boards.
func initializeSDL() error {
	var drivers []string
	if envDriver := os.Getenv("SDL_VIDEODRIVER"); envDriver != "" {
		log.Printf("Using environment SDL_VIDEODRIVER: %s", envDriver)
		drivers = []string{envDriver, "kmsdrm", "wayland", "x11"}
	} else {
		drivers = []string{"kmsdrm", "wayland", "x11"}
	}

	for _, driver := range drivers {
		os.Setenv("SDL_VIDEODRIVER", driver)
		sdl.SetHint(sdl.HINT_VIDEODRIVER, driver)
		if driver == "kmsdrm" {
			sdl.SetHint("SDL_VIDEO_KMSDRM_DEVINDEX", "0")
		}

		if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
			log.Printf("SDL2 initialization failed with %s driver: %v", driver, err)
			sdl.Quit()
			continue
		}
		log.Printf("SDL2 initialized with %s driver", driver)
		return nil
	}
	return fmt.Errorf("all SDL2 video drivers failed")
}

func displayDimensions() (int32, int32) {
	mode, err := sdl.GetCurrentDisplayMode(0)
	if err != nil {
		log.Printf("Warning: failed to get display mode, using fallback: %v", err)
		return fallbackWidth, fallbackHeight
	}
	return mode.W, mode.H
}

func createWindow(width, height int32) (*sdl.Window, error) {
	return sdl.CreateWindow(
		"pickle",
		0, 0,
		width, height,
		sdl.WINDOW_SHOWN|sdl.WINDOW_FULLSCREEN|sdl.WINDOW_VULKAN,
	)
}

// frameBudget is the wall-clock budget per frame at the target rate.
func frameBudget() time.Duration {
	return time.Second / targetFPS
}
