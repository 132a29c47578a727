package spatial

import "math"

const (
	numCombs     = 8
	numAllpasses = 4

	// stereoSpread detunes the right channel's delay lines.
	stereoSpread = 23

	fixedGain       = 0.015
	scaleWet        = 3.0
	scaleDamp       = 0.4
	scaleRoom       = 0.28
	offsetRoom      = 0.7
	allpassFeedback = 0.5

	// Delay tunings are in samples at this rate and scaled to the engine rate.
	tuningRate = 44100.0

	denormalFloor = 1e-23
)

var (
	combTuning    = [numCombs]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTuning = [numAllpasses]int{556, 441, 341, 225}
)

// Reverb is a stereo Freeverb: eight lowpass-feedback comb filters in
// parallel feeding four all-pass filters in series, once per channel.
// All delay memory is allocated by NewReverb.
type Reverb struct {
	combL, combR       [numCombs]comb
	allpassL, allpassR [numAllpasses]allpass

	decay   float64
	damping float64
}

type comb struct {
	feedback    float64
	filterStore float64
	dampA       float64
	dampB       float64
	buffer      []float64
	index       int
}

func (c *comb) process(input float64) float64 {
	output := c.buffer[c.index]
	c.filterStore = output*c.dampB + c.filterStore*c.dampA
	if math.Abs(c.filterStore) < denormalFloor {
		c.filterStore = 0
	}
	c.buffer[c.index] = input + c.filterStore*c.feedback
	c.index++
	if c.index >= len(c.buffer) {
		c.index = 0
	}
	return output
}

func (c *comb) reset() {
	clear(c.buffer)
	c.index = 0
	c.filterStore = 0
}

type allpass struct {
	buffer []float64
	index  int
}

func (a *allpass) process(input float64) float64 {
	bufOut := a.buffer[a.index]
	if math.Abs(bufOut) < denormalFloor {
		bufOut = 0
	}
	output := bufOut - input
	a.buffer[a.index] = input + bufOut*allpassFeedback
	a.index++
	if a.index >= len(a.buffer) {
		a.index = 0
	}
	return output
}

func (a *allpass) reset() {
	clear(a.buffer)
	a.index = 0
}

func scaledLength(tuning int, sampleRate float64) int {
	n := int(math.Round(float64(tuning) * sampleRate / tuningRate))
	return max(n, 1)
}

func NewReverb(sampleRate float64, decay, damping float64) *Reverb {
	r := &Reverb{}
	for i, t := range combTuning {
		r.combL[i].buffer = make([]float64, scaledLength(t, sampleRate))
		r.combR[i].buffer = make([]float64, scaledLength(t+stereoSpread, sampleRate))
	}
	for i, t := range allpassTuning {
		r.allpassL[i].buffer = make([]float64, scaledLength(t, sampleRate))
		r.allpassR[i].buffer = make([]float64, scaledLength(t+stereoSpread, sampleRate))
	}
	r.SetDecay(decay)
	r.SetDamping(damping)
	return r
}

// SetDecay maps decay in [0,1] to the comb feedback, which stays below 1.
func (r *Reverb) SetDecay(decay float64) {
	r.decay = decay
	fb := offsetRoom + scaleRoom*decay
	for i := range r.combL {
		r.combL[i].feedback = fb
		r.combR[i].feedback = fb
	}
}

// SetDamping maps damping in [0,1] to the one-pole lowpass inside each comb.
func (r *Reverb) SetDamping(damping float64) {
	r.damping = damping
	d := scaleDamp * damping
	for i := range r.combL {
		r.combL[i].dampA, r.combL[i].dampB = d, 1-d
		r.combR[i].dampA, r.combR[i].dampB = d, 1-d
	}
}

func (r *Reverb) Decay() float64   { return r.decay }
func (r *Reverb) Damping() float64 { return r.damping }

// ProcessSample feeds one mono sample and returns the wet left and right.
func (r *Reverb) ProcessSample(input float64) (float64, float64) {
	x := input * fixedGain

	var outL, outR float64
	for i := range r.combL {
		outL += r.combL[i].process(x)
		outR += r.combR[i].process(x)
	}
	for i := range r.allpassL {
		outL = r.allpassL[i].process(outL)
		outR = r.allpassR[i].process(outR)
	}
	return outL * scaleWet, outR * scaleWet
}

// Reset clears every delay line.
func (r *Reverb) Reset() {
	for i := range r.combL {
		r.combL[i].reset()
		r.combR[i].reset()
	}
	for i := range r.allpassL {
		r.allpassL[i].reset()
		r.allpassR[i].reset()
	}
}
