// Package pipeline is the host render loop: source, equalizer, spatializer,
// analyzer tap.
package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/agusx1211/spatial-eq/internal/analyzer"
	"github.com/agusx1211/spatial-eq/internal/engine"
	"github.com/agusx1211/spatial-eq/internal/source"
)

// Pipeline renders interleaved stereo blocks. Render is called from the audio
// output goroutine; RequestReset may be called from anywhere.
type Pipeline struct {
	bridge *engine.Bridge
	src    source.Source
	tap    *analyzer.Analyzer

	resetPending atomic.Bool
	failing      bool
	blocks       atomic.Uint64
}

// New wires src through b. b must run its equalizer on two channels. tap may
// be nil.
func New(b *engine.Bridge, src source.Source, tap *analyzer.Analyzer) (*Pipeline, error) {
	if b.EqChannels() != 2 {
		return nil, fmt.Errorf("pipeline needs a stereo equalizer, got %d channels", b.EqChannels())
	}
	return &Pipeline{bridge: b, src: src, tap: tap}, nil
}

// RequestReset clears filter and reverb state before the next block.
func (p *Pipeline) RequestReset() {
	p.resetPending.Store(true)
}

// Blocks is the number of blocks rendered so far.
func (p *Pipeline) Blocks() uint64 {
	return p.blocks.Load()
}

// Render fills dst, which holds interleaved stereo samples. On failure the
// rest of dst is silence and the error is returned; it is logged once until
// rendering recovers.
func (p *Pipeline) Render(dst []float32) error {
	if p.resetPending.CompareAndSwap(true, false) {
		if err := p.bridge.Reset(); err != nil {
			return p.fail(dst, err)
		}
	}

	chunk := p.bridge.MaxFrames() * 2
	for off := 0; off < len(dst); off += chunk {
		block := dst[off:min(off+chunk, len(dst))]
		if err := p.renderBlock(block); err != nil {
			return p.fail(dst[off:], err)
		}
	}
	p.blocks.Add(1)

	if p.failing {
		p.failing = false
		logrus.Info("Rendering recovered")
	}
	if p.tap != nil {
		p.tap.Write(dst)
	}
	return nil
}

func (p *Pipeline) renderBlock(block []float32) error {
	frames := len(block) / 2
	if err := p.src.Read(block); err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}
	if err := p.bridge.CopyIn(block, len(block)); err != nil {
		return err
	}
	if err := p.bridge.ProcessEq(frames); err != nil {
		return err
	}
	if err := p.bridge.ProcessSpatial(frames); err != nil {
		return err
	}
	return p.bridge.CopyOut(block, len(block))
}

func (p *Pipeline) fail(rest []float32, err error) error {
	clear(rest)
	if !p.failing {
		p.failing = true
		logrus.WithError(err).Error("Rendering failed, output is silent")
	}
	return err
}
