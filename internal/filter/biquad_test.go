package filter

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responseDB evaluates the committed transfer function at f.
func responseDB(b *Biquad, f, sampleRate float64) float64 {
	c := b.Coefficients()
	z := cmplx.Exp(complex(0, -2*math.Pi*f/sampleRate))
	num := complex(c[0], 0) + complex(c[1], 0)*z + complex(c[2], 0)*z*z
	den := 1 + complex(c[3], 0)*z + complex(c[4], 0)*z*z
	return 20 * math.Log10(cmplx.Abs(num/den))
}

func TestPeakingGainAtCenter(t *testing.T) {
	for _, g := range []float64{-12, -6, 0, 3, 6, 12} {
		b := NewPeaking(1000, g, 1, 48000)
		assert.InDelta(t, g, responseDB(b, 1000, 48000), 1e-6, "gain %g", g)
	}
}

func TestFlatPeakingIsIdentity(t *testing.T) {
	b := NewPeaking(440, 0, 0.7, 44100)
	in := []float64{1, -0.5, 0.25, 0, 0.8, -1, 0.1}
	out := append([]float64(nil), in...)
	b.Process(out)
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-12)
	}
}

func TestCoefficientsStableAcrossDomain(t *testing.T) {
	for _, sr := range []float64{22050, 44100, 48000, 96000} {
		for _, kind := range []Type{Peaking, LowShelf, HighShelf, LowPass, HighPass} {
			for _, f := range []float64{20, 100, 1000, 10000, 20000} {
				for _, g := range []float64{-12, 0, 12} {
					for _, q := range []float64{0.1, 1, 10} {
						b := New(kind, f, g, q, sr)
						c := b.Coefficients()
						for _, v := range c {
							require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s f=%g g=%g q=%g sr=%g", kind, f, g, q, sr)
						}
						// Poles inside the unit circle.
						a1, a2 := c[3], c[4]
						assert.Less(t, math.Abs(a2), 1.0)
						assert.Less(t, math.Abs(a1), 1+a2)
					}
				}
			}
		}
	}
}

func TestWhiteNoiseStaysFinite(t *testing.T) {
	const sr = 44100
	rng := rand.New(rand.NewSource(1))
	noise := make([]float64, 100000)
	for i := range noise {
		noise[i] = rng.Float64()*2 - 1
	}

	buf := make([]float64, len(noise))
	for _, kind := range []Type{Peaking, LowShelf, HighShelf, LowPass, HighPass} {
		for _, f := range []float64{20, 1000, 20000} {
			for _, g := range []float64{-12, 12} {
				for _, q := range []float64{0.1, 10} {
					b := New(kind, f, g, q, sr)
					copy(buf, noise)
					b.Process(buf)

					finite := true
					for _, v := range buf {
						if math.IsNaN(v) || math.IsInf(v, 0) {
							finite = false
							break
						}
					}
					assert.True(t, finite, "%s f=%g g=%g q=%g", kind, f, g, q)
				}
			}
		}
	}
}

func TestConfigureClampsFrequency(t *testing.T) {
	b := NewPeaking(30000, 6, 1, 44100)
	f, _, _ := b.Design()
	assert.Less(t, f, 22050.0)

	b.Configure(-5, 6, 1, 44100)
	f, _, _ = b.Design()
	assert.Greater(t, f, 0.0)
}

func TestCommitIsDeferred(t *testing.T) {
	b := NewPeaking(1000, 0, 1, 48000)
	before := b.Coefficients()

	b.Configure(1000, 6, 1, 48000)
	assert.True(t, b.Dirty())
	assert.Equal(t, before, b.Coefficients())

	assert.True(t, b.Commit())
	assert.False(t, b.Dirty())
	assert.NotEqual(t, before, b.Coefficients())
	assert.False(t, b.Commit())
}

func TestConfigureSameDesignStaysClean(t *testing.T) {
	b := NewPeaking(1000, 3, 1, 48000)
	b.Configure(1000, 3, 1, 48000)
	assert.False(t, b.Dirty())
	b.SetType(Peaking)
	assert.False(t, b.Dirty())
	b.SetType(HighShelf)
	assert.True(t, b.Dirty())
}

func TestLowPassAttenuatesHighs(t *testing.T) {
	b := New(LowPass, 1000, 0, 0.707, 48000)
	assert.InDelta(t, 0, responseDB(b, 20, 48000), 0.1)
	assert.Less(t, responseDB(b, 10000, 48000), -30.0)
}

func TestProcessStridedLeavesOtherChannels(t *testing.T) {
	b := NewPeaking(1000, 12, 1, 48000)
	buf := []float64{1, 7, 0, 7, 0, 7, 0, 7}
	b.ProcessStrided(buf, 0, 2)
	for i := 1; i < len(buf); i += 2 {
		assert.Equal(t, 7.0, buf[i])
	}
	assert.NotEqual(t, 0.0, buf[2])
}

func TestResetClearsState(t *testing.T) {
	b := NewPeaking(1000, 12, 1, 48000)
	b.ProcessSample(1)
	b.Reset()
	assert.Equal(t, 0.0, b.ProcessSample(0))
}

func TestTypeText(t *testing.T) {
	var k Type
	require.NoError(t, k.UnmarshalText([]byte(" HighShelf ")))
	assert.Equal(t, HighShelf, k)
	assert.Error(t, k.UnmarshalText([]byte("notch")))

	_, err := Type(42).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Type(42)", Type(42).String())
}
