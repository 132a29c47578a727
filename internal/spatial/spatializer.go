// Package spatial implements the stereo widener and reverb stage.
//
// The signal path per frame is: L/R to mid/side, side scaled by width, back to
// L/R (the dry signal), mid fed into a stereo Freeverb (the wet signal), then
// out = dry*(1-wet) + reverb*wet. The reverb always runs, even when bypassed,
// so enabling it again resumes from a live tail instead of silence.
package spatial

import (
	"errors"
	"fmt"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
)

const (
	MinWidth = 0.5
	MaxWidth = 2.0
)

// Params are the user-facing spatial controls.
type Params struct {
	Width   float64 `json:"width"`
	Decay   float64 `json:"decay"`
	Damping float64 `json:"damping"`
	Mix     float64 `json:"mix"`
	Enabled bool    `json:"enabled"`
}

// DefaultParams is an audible but subtle room.
var DefaultParams = Params{
	Width:   1.0,
	Decay:   0.5,
	Damping: 0.5,
	Mix:     0.25,
	Enabled: true,
}

// WetFactor is the share of reverb in the output.
func (p Params) WetFactor() float64 {
	if !p.Enabled {
		return 0
	}
	return p.Mix
}

// Sanitize clamps every field into range. ok is false if any field is not
// finite.
func (p Params) Sanitize() (out Params, ok bool, err error) {
	var wok, dok, dmok, mok bool
	var werr, derr, dmerr, merr error
	out.Enabled = p.Enabled
	out.Width, wok, werr = dsperr.Clamp("width", p.Width, MinWidth, MaxWidth)
	out.Decay, dok, derr = dsperr.Clamp("decay", p.Decay, 0, 1)
	out.Damping, dmok, dmerr = dsperr.Clamp("damping", p.Damping, 0, 1)
	out.Mix, mok, merr = dsperr.Clamp("mix", p.Mix, 0, 1)
	err = errors.Join(werr, derr, dmerr, merr)
	if !wok || !dok || !dmok || !mok {
		return Params{}, false, err
	}
	return out, true, err
}

// Spatializer is not safe for concurrent use.
type Spatializer struct {
	maxFrames int
	params    Params
	reverb    *Reverb

	// Values the previous block ended on and the ones the next block ramps to.
	width, targetWidth float64
	wet, targetWet     float64
}

func New(sampleRate float64, maxFrames int, p Params) (*Spatializer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %g", dsperr.ErrInvalidParameter, sampleRate)
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("%w: max block size %d", dsperr.ErrInvalidParameter, maxFrames)
	}
	sp, ok, err := p.Sanitize()
	if !ok {
		return nil, err
	}

	s := &Spatializer{
		maxFrames: maxFrames,
		params:    sp,
		reverb:    NewReverb(sampleRate, sp.Decay, sp.Damping),
	}
	s.width, s.targetWidth = sp.Width, sp.Width
	s.wet, s.targetWet = sp.WetFactor(), sp.WetFactor()
	return s, nil
}

func (s *Spatializer) Params() Params { return s.params }

// SetParams validates p and applies it from the next block on.
func (s *Spatializer) SetParams(p Params) error {
	sp, ok, err := p.Sanitize()
	if !ok {
		return err
	}
	s.params = sp
	s.Apply(sp.Width, sp.Decay, sp.Damping, sp.WetFactor())
	return err
}

func (s *Spatializer) SetWidth(v float64) error {
	p := s.params
	p.Width = v
	return s.SetParams(p)
}

func (s *Spatializer) SetDecay(v float64) error {
	p := s.params
	p.Decay = v
	return s.SetParams(p)
}

func (s *Spatializer) SetDamping(v float64) error {
	p := s.params
	p.Damping = v
	return s.SetParams(p)
}

func (s *Spatializer) SetMix(v float64) error {
	p := s.params
	p.Mix = v
	return s.SetParams(p)
}

func (s *Spatializer) SetEnabled(on bool) {
	p := s.params
	p.Enabled = on
	_ = s.SetParams(p)
}

// Apply sets already-validated values directly. The wet factor is passed
// separately so a smoothed bypass can fade it without touching Mix.
func (s *Spatializer) Apply(width, decay, damping, wet float64) {
	s.targetWidth = width
	s.targetWet = wet
	if decay != s.reverb.Decay() {
		s.reverb.SetDecay(decay)
	}
	if damping != s.reverb.Damping() {
		s.reverb.SetDamping(damping)
	}
}

// Process transforms numFrames interleaved L,R frames of buf in place.
func (s *Spatializer) Process(buf []float64, numFrames int) error {
	if numFrames < 0 {
		return fmt.Errorf("%w: negative frame count %d", dsperr.ErrInvalidParameter, numFrames)
	}
	if numFrames > s.maxFrames || numFrames*2 > len(buf) {
		return fmt.Errorf("%w: %d frames exceeds capacity %d", dsperr.ErrBufferSizeMismatch, numFrames, s.maxFrames)
	}
	if numFrames == 0 {
		return nil
	}

	n := float64(numFrames)
	widthStep := (s.targetWidth - s.width) / n
	wetStep := (s.targetWet - s.wet) / n

	for i := 0; i < numFrames; i++ {
		width := s.width + widthStep*float64(i+1)
		wet := s.wet + wetStep*float64(i+1)
		if i == numFrames-1 {
			width, wet = s.targetWidth, s.targetWet
		}

		l, r := buf[2*i], buf[2*i+1]
		mid := (l + r) * 0.5
		side := (l - r) * 0.5 * width
		dryL := mid + side
		dryR := mid - side

		wetL, wetR := s.reverb.ProcessSample(mid)

		buf[2*i] = dryL*(1-wet) + wetL*wet
		buf[2*i+1] = dryR*(1-wet) + wetR*wet
	}

	s.width, s.wet = s.targetWidth, s.targetWet
	return nil
}

// Reset clears the reverb tail.
func (s *Spatializer) Reset() {
	s.reverb.Reset()
}
