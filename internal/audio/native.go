package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

const (
	SpeakerBufferSize   = 100 * time.Millisecond
	ResampleQuality     = 4
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	VisualizerSamples   = 512
	MaxStreamBytes      = 64 << 20
)

// memStream is an in-memory MP3 that the decoder can seek in.
type memStream struct {
	*bytes.Reader
}

func (memStream) Close() error { return nil }

// Native decodes MP3 streams in-process and plays them on the default
// output device.
type Native struct {
	mu         sync.Mutex
	httpClient *http.Client
	logger     zerolog.Logger

	speakerInit bool
	speakerRate beep.SampleRate

	stream        beep.StreamSeekCloser
	format        beep.Format
	ctrl          *beep.Ctrl
	volume        *effects.Volume
	tap           *sampleTap
	volumePercent int
	onChange      func()
}

// NewNative creates a native backend. httpClient may be nil.
func NewNative(httpClient *http.Client, logger zerolog.Logger) *Native {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Native{
		httpClient:    httpClient,
		logger:        logger.With().Str("component", "native").Logger(),
		volumePercent: 100,
		tap:           newSampleTap(VisualizerSamples),
	}
}

// LoadTrack downloads the whole stream, decodes it and starts playback.
// The download is kept in memory so the decoder can seek.
func (n *Native) LoadTrack(ctx context.Context, url string) error {
	data, err := n.fetch(ctx, url)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(memStream{bytes.NewReader(data)})
	if err != nil {
		return fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	if err := n.initSpeaker(format.SampleRate); err != nil {
		streamer.Close()
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	speaker.Clear()
	if n.stream != nil {
		_ = n.stream.Close()
	}

	var source beep.Streamer = streamer
	if format.SampleRate != n.speakerRate {
		source = beep.Resample(ResampleQuality, format.SampleRate, n.speakerRate, streamer)
	}
	n.tap.reset(source)

	n.stream = streamer
	n.format = format
	n.volume = &effects.Volume{
		Streamer: n.tap,
		Base:     2,
		Volume:   percentToExponent(float64(n.volumePercent)),
		Silent:   n.volumePercent == 0,
	}
	n.ctrl = &beep.Ctrl{Streamer: n.volume, Paused: false}

	done := streamer
	// The callback runs with the speaker lock held.
	speaker.Play(beep.Seq(n.ctrl, beep.Callback(func() {
		go n.finished(done)
	})))

	n.logger.Debug().
		Int("sample_rate", int(format.SampleRate)).
		Dur("length", format.SampleRate.D(streamer.Len())).
		Msg("Stream loaded")
	return nil
}

func (n *Native) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to open stream: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxStreamBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to open stream: empty body")
	}
	return data, nil
}

func (n *Native) initSpeaker(rate beep.SampleRate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.speakerInit {
		return nil
	}
	if err := speaker.Init(rate, rate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	n.speakerInit = true
	n.speakerRate = rate
	n.logger.Debug().Int("sample_rate", int(rate)).Msg("Speaker initialized")
	return nil
}

// finished fires the state change callback when stream drains, unless it
// has been replaced in the meantime.
func (n *Native) finished(stream beep.StreamSeekCloser) {
	n.mu.Lock()
	current := n.stream == stream
	fn := n.onChange
	n.mu.Unlock()

	if current && fn != nil {
		fn()
	}
}

// SetPaused pauses or resumes playback.
func (n *Native) SetPaused(paused bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctrl == nil {
		return nil
	}
	speaker.Lock()
	n.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// IsPaused reports whether playback is paused.
func (n *Native) IsPaused() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctrl == nil {
		return false
	}
	speaker.Lock()
	defer speaker.Unlock()
	return n.ctrl.Paused
}

// State reports the playback state.
func (n *Native) State() PlayState {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.ctrl == nil {
		return StateStopped
	}
	speaker.Lock()
	defer speaker.Unlock()
	if n.ctrl.Paused {
		return StatePaused
	}
	return StatePlaying
}

// Stop unloads the current stream.
func (n *Native) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.speakerInit {
		speaker.Clear()
	}
	if n.stream != nil {
		_ = n.stream.Close()
	}
	n.stream = nil
	n.ctrl = nil
	n.volume = nil
	n.tap.reset(nil)
	return nil
}

// Seek moves to seconds from the start of the stream.
func (n *Native) Seek(seconds float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stream == nil {
		return nil
	}

	pos := n.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if pos < 0 {
		pos = 0
	}
	if length := n.stream.Len(); length > 0 && pos >= length {
		pos = length - 1
	}

	speaker.Lock()
	defer speaker.Unlock()
	if err := n.stream.Seek(pos); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// Time returns the playback offset in seconds.
func (n *Native) Time() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stream == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return n.format.SampleRate.D(n.stream.Position()).Seconds()
}

// SetVolume sets volume in percent.
func (n *Native) SetVolume(percent int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.volumePercent = clampVolume(percent)
	if n.volume == nil {
		return nil
	}

	speaker.Lock()
	n.volume.Volume = percentToExponent(float64(n.volumePercent))
	n.volume.Silent = n.volumePercent == 0
	speaker.Unlock()
	return nil
}

// Volume returns volume in percent.
func (n *Native) Volume() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volumePercent
}

// Samples returns the most recent mono output samples.
func (n *Native) Samples() []float64 {
	return n.tap.snapshot()
}

// OnStateChange registers fn to run when a stream finishes.
func (n *Native) OnStateChange(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = fn
}

// Close stops playback.
func (n *Native) Close() error {
	return n.Stop()
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

// sampleTap passes audio through and remembers the last few samples.
type sampleTap struct {
	mu     sync.Mutex
	source beep.Streamer
	ring   []float64
	next   int
}

func newSampleTap(size int) *sampleTap {
	return &sampleTap{ring: make([]float64, size)}
}

func (t *sampleTap) reset(source beep.Streamer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = source
	for i := range t.ring {
		t.ring[i] = 0
	}
	t.next = 0
}

func (t *sampleTap) Stream(samples [][2]float64) (int, bool) {
	t.mu.Lock()
	source := t.source
	t.mu.Unlock()

	if source == nil {
		return 0, false
	}
	n, ok := source.Stream(samples)

	t.mu.Lock()
	for _, s := range samples[:n] {
		t.ring[t.next] = (s[0] + s[1]) / 2
		t.next = (t.next + 1) % len(t.ring)
	}
	t.mu.Unlock()
	return n, ok
}

func (t *sampleTap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.source == nil {
		return nil
	}
	return t.source.Err()
}

// snapshot returns the ring in chronological order.
func (t *sampleTap) snapshot() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]float64, len(t.ring))
	copy(out, t.ring[t.next:])
	copy(out[len(t.ring)-t.next:], t.ring[:t.next])
	return out
}
