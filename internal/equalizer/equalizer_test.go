package equalizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/dsptest"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

const sampleRate = 48000.0

// run pushes x through eq in blocks of blockSize and returns the output.
// bandAt reads one configured band.
func bandAt(t *testing.T, eq *Equalizer, i int) Band {
	t.Helper()
	b, err := eq.Band(i)
	require.NoError(t, err)
	return b
}

func run(t *testing.T, eq *Equalizer, x []float64, blockSize int) []float64 {
	t.Helper()
	out := append([]float64(nil), x...)
	step := blockSize * eq.Channels()
	for off := 0; off < len(out); off += step {
		end := min(off+step, len(out))
		require.NoError(t, eq.Process(out[off:end], (end-off)/eq.Channels()))
	}
	return out
}

func TestFlatIsTransparent(t *testing.T) {
	eq, err := New(sampleRate, 512)
	require.NoError(t, err)

	for _, f := range []float64{50, 440, 1000, 5000, 12000} {
		eq.Reset()
		in := dsptest.Sine(f, 0.5, sampleRate, 48000)
		out := run(t, eq, in, 512)
		assert.Less(t, math.Abs(dsptest.DB(dsptest.RMS(out), dsptest.RMS(in))), 0.1, "%g Hz", f)
	}
}

func TestBoostAtBandCenter(t *testing.T) {
	for _, sr := range []float64{44100, 48000} {
		eq, err := New(sr, 256)
		require.NoError(t, err)
		require.NoError(t, eq.SetBand(5, 1000, 6, 1))

		in := dsptest.Sine(1000, 0.25, sr, 44100)
		out := run(t, eq, in, 256)

		// Skip the transient.
		tail := len(in) / 2
		got := dsptest.DB(dsptest.RMS(out[tail:]), dsptest.RMS(in[tail:]))
		assert.InDelta(t, 6, got, 0.5, "%g Hz", sr)
	}
}

func TestStereoChannelsAreIndependent(t *testing.T) {
	eq, err := New(sampleRate, 128, WithChannels(2))
	require.NoError(t, err)
	require.NoError(t, eq.SetBand(5, 1000, 12, 1))

	buf := make([]float64, 256)
	buf[0] = 1 // impulse on the left only
	require.NoError(t, eq.Process(buf, 128))
	for i := 1; i < len(buf); i += 2 {
		require.Equal(t, 0.0, buf[i])
	}
}

func TestSetBandRejectsIndex(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)

	for _, i := range []int{-1, eq.NumBands()} {
		err := eq.SetBand(i, 1000, 3, 1)
		assert.ErrorIs(t, err, dsperr.ErrInvalidParameter)
	}
	assert.Equal(t, DefaultBands(10), eq.Bands())
}

func TestBandRejectsIndex(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)

	for _, i := range []int{-1, eq.NumBands()} {
		_, err := eq.Band(i)
		assert.ErrorIs(t, err, dsperr.ErrInvalidParameter, "index %d", i)
	}
	b, err := eq.Band(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBands(10)[0], b)
}

func TestSetBandClampsAndReports(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)

	err = eq.SetBand(2, 125, 30, 50)
	assert.ErrorIs(t, err, dsperr.ErrInvalidParameter)
	b := bandAt(t, eq, 2)
	assert.Equal(t, MaxGainDB, b.GainDB)
	assert.Equal(t, MaxQ, b.Q)

	err = eq.SetBand(2, math.NaN(), 0, 1)
	assert.ErrorIs(t, err, dsperr.ErrInvalidParameter)
	assert.Equal(t, MaxGainDB, bandAt(t, eq, 2).GainDB, "non-finite input must not be stored")
}

func TestProcessBounds(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)

	buf := make([]float64, 128)
	assert.ErrorIs(t, eq.Process(buf, 65), dsperr.ErrBufferSizeMismatch)
	assert.ErrorIs(t, eq.Process(buf, -1), dsperr.ErrInvalidParameter)
	assert.NoError(t, eq.Process(buf, 0))
	assert.NoError(t, eq.Process(buf, 64))
}

func TestSetPresetAllOrNothing(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)

	assert.ErrorIs(t, eq.SetPreset(DefaultBands(9)), dsperr.ErrInvalidParameter)

	bands := DefaultBands(10)
	bands[3].GainDB = 4
	bands[7].GainDB = math.Inf(1)
	assert.Error(t, eq.SetPreset(bands))
	assert.Equal(t, 0.0, bandAt(t, eq, 3).GainDB)

	bands[7].GainDB = 40
	require.NoError(t, eq.SetPreset(bands))
	assert.Equal(t, 4.0, bandAt(t, eq, 3).GainDB)
	assert.Equal(t, MaxGainDB, bandAt(t, eq, 7).GainDB)
}

func TestMasterGainRampHasNoStep(t *testing.T) {
	eq, err := New(sampleRate, 256)
	require.NoError(t, err)

	in := make([]float64, 256)
	for i := range in {
		in[i] = 0.5
	}
	require.NoError(t, eq.SetMasterGain(0))
	out := run(t, eq, in, 256)

	assert.InDelta(t, 0, out[len(out)-1], 1e-12)
	assert.Less(t, dsptest.MaxAbsStep(out, 0, 1), 0.01)
}

func TestBandTypeChangesResponse(t *testing.T) {
	eq, err := New(sampleRate, 512, WithBands([]Band{{Frequency: 1000, Q: 0.707}}))
	require.NoError(t, err)
	require.NoError(t, eq.SetBandType(0, filter.HighPass))
	assert.ErrorIs(t, eq.SetBandType(0, filter.Type(9)), dsperr.ErrInvalidParameter)

	in := dsptest.Sine(50, 0.5, sampleRate, 48000)
	out := run(t, eq, in, 512)
	assert.Less(t, dsptest.DB(dsptest.RMS(out[24000:]), dsptest.RMS(in[24000:])), -30.0)
}

func TestResetSilencesTail(t *testing.T) {
	eq, err := New(sampleRate, 64)
	require.NoError(t, err)
	require.NoError(t, eq.SetBand(0, 32, 12, 5))

	buf := make([]float64, 64)
	buf[0] = 1
	require.NoError(t, eq.Process(buf, 64))
	eq.Reset()

	clear(buf)
	require.NoError(t, eq.Process(buf, 64))
	assert.Equal(t, make([]float64, 64), buf)
}

func TestDefaultBands(t *testing.T) {
	assert.Len(t, DefaultBands(10), 10)
	assert.Equal(t, 1000.0, DefaultBands(10)[5].Frequency)

	b := DefaultBands(16)
	require.Len(t, b, 16)
	assert.InDelta(t, 32, b[0].Frequency, 1e-9)
	assert.InDelta(t, 16000, b[15].Frequency, 1e-6)
	for i := 1; i < len(b); i++ {
		assert.Greater(t, b[i].Frequency, b[i-1].Frequency)
	}
}
