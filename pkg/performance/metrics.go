// Package performance tracks per-stage frame timing so the decode rate
// controller and the timing overlay log have live numbers to work from.
package performance

import (
	"log"
	"sync"
	"time"
)

// Stage is one timed section of the frame loop.
type Stage int

const (
	StageDecode  Stage = iota // pulling a frame from the source
	StageUpload               // copying pixels to the device
	StageCorrect              // keystone compute dispatch
	StagePresent              // blit and swapchain present
	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageDecode:
		return "decode"
	case StageUpload:
		return "upload"
	case StageCorrect:
		return "correct"
	case StagePresent:
		return "present"
	default:
		return "unknown"
	}
}

// window is a fixed-size ring of duration samples with a running sum.
type window struct {
	samples []time.Duration
	sum     time.Duration
	next    int
	count   int
}

func newWindow(size int) *window {
	return &window{samples: make([]time.Duration, size)}
}

func (w *window) add(d time.Duration) {
	if w.count == len(w.samples) {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = d
	w.sum += d
	w.next = (w.next + 1) % len(w.samples)
}

func (w *window) average() time.Duration {
	if w.count == 0 {
		return 0
	}
	return w.sum / time.Duration(w.count)
}

func (w *window) reset() {
	w.sum = 0
	w.next = 0
	w.count = 0
}

// Monitor aggregates rolling frame timings per stage.
type Monitor struct {
	mu sync.Mutex

	stages  [stageCount]*window
	total   *window
	frames  uint64
	dropped uint64
	started time.Time
}

// NewMonitor averages over the given number of frames. 120 covers two
// seconds at full rate.
func NewMonitor(windowSize int) *Monitor {
	m := &Monitor{
		total:   newWindow(windowSize),
		started: time.Now(),
	}
	for i := range m.stages {
		m.stages[i] = newWindow(windowSize)
	}
	return m
}

// Record adds one timing sample for a stage.
func (m *Monitor) Record(stage Stage, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage].add(d)
}

// FrameDone closes out one frame with its wall-clock total.
func (m *Monitor) FrameDone(total time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.add(total)
	m.frames++
}

// FrameDropped counts a frame that was skipped rather than shown.
func (m *Monitor) FrameDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
	m.frames++
}

// Report is a point-in-time snapshot of the rolling averages.
type Report struct {
	Decode  time.Duration
	Upload  time.Duration
	Correct time.Duration
	Present time.Duration
	Total   time.Duration

	Frames   uint64
	Dropped  uint64
	DropRate float64
	Uptime   time.Duration
}

// Snapshot returns current averages and counters.
func (m *Monitor) Snapshot() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Decode:  m.stages[StageDecode].average(),
		Upload:  m.stages[StageUpload].average(),
		Correct: m.stages[StageCorrect].average(),
		Present: m.stages[StagePresent].average(),
		Total:   m.total.average(),
		Frames:  m.frames,
		Dropped: m.dropped,
		Uptime:  time.Since(m.started),
	}
	if m.frames > 0 {
		r.DropRate = float64(m.dropped) / float64(m.frames) * 100
	}
	return r
}

// Log writes one timing line, for the PICKLE_SHOW_TIMING overlay-in-logs
// mode.
func (r Report) Log() {
	log.Printf("performance: decode=%.1fms upload=%.1fms correct=%.1fms present=%.1fms total=%.1fms drops=%.1f%%",
		ms(r.Decode), ms(r.Upload), ms(r.Correct), ms(r.Present), ms(r.Total), r.DropRate)
}

// Reset clears every window and counter, for media switches.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.stages {
		w.reset()
	}
	m.total.reset()
	m.frames = 0
	m.dropped = 0
	m.started = time.Now()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
