package synth

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

type SampleSource interface {
	Process(dst []float32)
}

// StreamReader turns a SampleSource into float32 little endian stereo bytes.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

var (
	audioOnce    sync.Once
	audioContext *oto.Context
	audioErr     error
	audioRate    int
)

// oto allows a single context per process.
func sharedContext(sampleRate int) (*oto.Context, error) {
	audioOnce.Do(func() {
		var ready chan struct{}
		audioContext, ready, audioErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if audioErr == nil {
			<-ready
			audioRate = sampleRate
		}
	})
	if audioErr != nil {
		return nil, audioErr
	}
	if audioRate != sampleRate {
		return nil, errors.New("audio context already running at another sample rate")
	}
	return audioContext, nil
}

// Synth plays an Engine on the default audio device.
type Synth struct {
	*Engine
	player *oto.Player
}

func Open(sampleRate int, gain float64) (*Synth, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(sampleRate, gain)
	player := ctx.NewPlayer(NewStreamReader(engine))
	player.Play()
	return &Synth{Engine: engine, player: player}, nil
}

func (s *Synth) String() string {
	return "built-in synth"
}

func (s *Synth) Close() error {
	s.player.Pause()
	return s.player.Close()
}
