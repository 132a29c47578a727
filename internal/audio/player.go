package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	oto "github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// RenderFunc fills an interleaved stereo block. On error the block it wrote
// is played anyway.
type RenderFunc func(dst []float32) error

type Player struct {
	context    *oto.Context
	player     *oto.Player
	sampleRate int
	bufferSize int
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewPlayer opens the default output device. bufferSize is the number of
// frames rendered per call.
func NewPlayer(sampleRate, bufferSize int) (*Player, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", bufferSize)
	}
	otoContext, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}

	<-readyChan

	return &Player{
		context:    otoContext,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		stopChan:   make(chan struct{}),
	}, nil
}

func (p *Player) Start(render RenderFunc) {
	p.player = p.context.NewPlayer(newRenderReader(render, p.bufferSize, p.stopChan))
	p.player.Play()
	logrus.WithFields(logrus.Fields{
		"sample_rate": p.sampleRate,
		"frames":      p.bufferSize,
	}).Info("Audio output started")
}

func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.player != nil {
			p.player.Pause()
		}
	})
}

func (p *Player) Close() {
	p.Stop()
	if p.player != nil {
		if err := p.player.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close audio player")
		}
	}
}

// renderReader adapts a RenderFunc to the io.Reader oto pulls from. Its
// buffers are allocated once.
type renderReader struct {
	render   RenderFunc
	stopChan <-chan struct{}
	samples  []float32
	buffer   []byte
	bufPos   int
}

func newRenderReader(render RenderFunc, frames int, stop <-chan struct{}) *renderReader {
	return &renderReader{
		render:   render,
		stopChan: stop,
		samples:  make([]float32, frames*2),
		buffer:   make([]byte, frames*2*4),
		bufPos:   frames * 2 * 4,
	}
}

func (r *renderReader) Read(buf []byte) (int, error) {
	totalRead := 0

	for totalRead < len(buf) {
		if r.bufPos >= len(r.buffer) {
			select {
			case <-r.stopChan:
				return totalRead, nil
			default:
			}

			// The renderer silences what it could not produce and logs it.
			_ = r.render(r.samples)
			encodeFloat32LE(r.buffer, r.samples)
			r.bufPos = 0
		}

		n := copy(buf[totalRead:], r.buffer[r.bufPos:])
		r.bufPos += n
		totalRead += n
	}

	return totalRead, nil
}

func encodeFloat32LE(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
