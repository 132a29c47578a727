package source

import (
	"math"
	"math/rand"
	"sync/atomic"
)

type Color string

const (
	White  Color = "white"
	Pink   Color = "pink"
	Brown  Color = "brown"
	Blue   Color = "blue"
	Violet Color = "violet"
)

// colorAnchors maps slider position to Color: 0=Brown, 25=Pink, 50=White, 75=Blue, 100=Violet
var colorAnchors = []struct {
	pos   float64
	color Color
}{
	{0, Brown},
	{25, Pink},
	{50, White},
	{75, Blue},
	{100, Violet},
}

var pinkCoeffs = [7]float64{0.1294, 0.1875, 0.2414, 0.3026, 0.3830, 0.4962, 0.7195}

// shaper turns white noise into one color. Each channel and each side of a
// blend keeps its own.
type shaper struct {
	pink            [7]float64
	brown           float64
	bluePrev        float64
	violetPrevWhite float64
	violetPrevBlue  float64
}

func (s *shaper) next(color Color, white float64) float64 {
	switch color {
	case Pink:
		var sum float64
		for i, c := range pinkCoeffs {
			s.pink[i] += c * (white - s.pink[i])
			sum += s.pink[i]
		}
		return sum / 2.5
	case Brown:
		s.brown = (s.brown + 0.02*white) / 1.02
		return s.brown * 3.5
	case Blue:
		out := white - s.bluePrev
		s.bluePrev = white
		return out
	case Violet:
		blue := white - s.violetPrevWhite
		out := blue - s.violetPrevBlue
		s.violetPrevBlue = blue
		s.violetPrevWhite = white
		return out
	default:
		return white
	}
}

// Noise is a colored noise source with independent left and right channels.
type Noise struct {
	rng   *rand.Rand
	level float64

	slider  atomic.Uint64 // float64 bits
	reseed  atomic.Bool
	nextRNG atomic.Int64

	left, right [2]shaper
}

func NewNoise(level float64) *Noise {
	n := &Noise{
		rng:   rand.New(rand.NewSource(rand.Int63())),
		level: level,
	}
	n.SetColor(25)
	return n
}

// SetColor sets the color slider from 0 to 100. Safe from any goroutine.
func (n *Noise) SetColor(slider float64) {
	if math.IsNaN(slider) {
		return
	}
	n.slider.Store(math.Float64bits(math.Max(0, math.Min(100, slider))))
}

func (n *Noise) Color() float64 {
	return math.Float64frombits(n.slider.Load())
}

// Reseed replaces the random source before the next Read. Safe from any
// goroutine.
func (n *Noise) Reseed(seed int64) {
	n.nextRNG.Store(seed)
	n.reseed.Store(true)
}

// blend returns the two anchors around slider and the weight of the second.
func blend(slider float64) (Color, Color, float64) {
	if slider <= 0 {
		return Brown, Brown, 0
	}
	if slider >= 100 {
		return Violet, Violet, 0
	}
	for i := 0; i < len(colorAnchors)-1; i++ {
		lo, hi := colorAnchors[i], colorAnchors[i+1]
		if slider >= lo.pos && slider <= hi.pos {
			t := (slider - lo.pos) / (hi.pos - lo.pos)
			if t <= 0.001 {
				return lo.color, lo.color, 0
			}
			if t >= 0.999 {
				return hi.color, hi.color, 0
			}
			return lo.color, hi.color, t
		}
	}
	return White, White, 0
}

func (n *Noise) Read(dst []float32) error {
	if n.reseed.CompareAndSwap(true, false) {
		n.rng = rand.New(rand.NewSource(n.nextRNG.Load()))
	}

	a, b, t := blend(n.Color())
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i] = float32(n.sample(&n.left, a, b, t))
		dst[i+1] = float32(n.sample(&n.right, a, b, t))
	}
	return nil
}

func (n *Noise) sample(s *[2]shaper, a, b Color, t float64) float64 {
	white := n.rng.Float64()*2 - 1
	v := s[0].next(a, white)
	if t > 0 {
		v = v*(1-t) + s[1].next(b, white)*t
	}
	return math.Max(-1, math.Min(1, v*n.level))
}

func (n *Noise) Close() error { return nil }
