package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReaderEncodesBlocks(t *testing.T) {
	calls := 0
	render := func(dst []float32) error {
		calls++
		for i := range dst {
			dst[i] = float32(calls) / 10
		}
		return nil
	}
	r := newRenderReader(render, 4, make(chan struct{}))

	// Two and a half blocks of 4 frames * 2 channels * 4 bytes.
	buf := make([]byte, 80)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 80, n)
	assert.Equal(t, 3, calls)

	first := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:]))
	third := math.Float32frombits(binary.LittleEndian.Uint32(buf[64:]))
	assert.Equal(t, float32(0.1), first)
	assert.Equal(t, float32(0.3), third)
}

func TestRenderReaderPlaysFailedBlocks(t *testing.T) {
	render := func(dst []float32) error {
		clear(dst)
		return errors.New("boom")
	}
	r := newRenderReader(render, 2, make(chan struct{}))

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, make([]byte, 16), buf)
}

func TestRenderReaderStops(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	r := newRenderReader(func([]float32) error { return nil }, 2, stop)

	n, err := r.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
