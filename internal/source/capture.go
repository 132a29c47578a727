package source

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Capture reads stereo input from the default PortAudio device.
type Capture struct {
	stream *portaudio.Stream
	buf    []float32
	pos    int
}

func NewCapture(sampleRate float64, frames int) (*Capture, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid capture block size %d", frames)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	buf := make([]float32, frames*2)
	stream, err := portaudio.OpenDefaultStream(2, 0, sampleRate, frames, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	return &Capture{stream: stream, buf: buf, pos: len(buf)}, nil
}

// Read blocks until len(dst) samples have been captured.
func (c *Capture) Read(dst []float32) error {
	for filled := 0; filled < len(dst); {
		if c.pos == len(c.buf) {
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read input stream: %w", err)
			}
			c.pos = 0
		}
		n := copy(dst[filled:], c.buf[c.pos:])
		c.pos += n
		filled += n
	}
	return nil
}

func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	stopErr := c.stream.Stop()
	closeErr := c.stream.Close()
	c.stream = nil
	termErr := portaudio.Terminate()
	if stopErr != nil {
		return fmt.Errorf("failed to stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close input stream: %w", closeErr)
	}
	return termErr
}
