package equalizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/agusx1211/spatial-eq/internal/dsperr"
	"github.com/agusx1211/spatial-eq/internal/filter"
)

const (
	MinFrequency = 20.0
	MaxFrequency = 20000.0
	MinGainDB    = -12.0
	MaxGainDB    = 12.0
	MinQ         = 0.1
	MaxQ         = 10.0

	MinMasterGain = 0.0
	MaxMasterGain = 2.0

	DefaultQ = 1.0
)

// DefaultFrequencies is the 10-band graphic layout.
var DefaultFrequencies = []float64{32, 64, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// Band is one peaking (or shelf/pass) stage. Its identity is its index.
type Band struct {
	Frequency float64     `json:"frequency"`
	GainDB    float64     `json:"gain"`
	Q         float64     `json:"q"`
	Type      filter.Type `json:"type,omitempty"`
}

// DefaultBands returns n flat bands. Ten bands use DefaultFrequencies, any
// other count is spread logarithmically over the same span.
func DefaultBands(n int) []Band {
	bands := make([]Band, n)
	if n == len(DefaultFrequencies) {
		for i, f := range DefaultFrequencies {
			bands[i] = Band{Frequency: f, Q: DefaultQ}
		}
		return bands
	}

	lo, hi := DefaultFrequencies[0], DefaultFrequencies[len(DefaultFrequencies)-1]
	for i := range bands {
		t := 0.5
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		bands[i] = Band{Frequency: lo * math.Pow(hi/lo, t), Q: DefaultQ}
	}
	return bands
}

// Sanitize clamps every field of b into its declared range. ok is false if a
// field is not finite or the type is unknown, in which case b must not be used.
// err reports every field that was out of range.
func Sanitize(b Band) (out Band, ok bool, err error) {
	out.Type = b.Type
	if b.Type < filter.Peaking || b.Type > filter.HighPass {
		return Band{}, false, fmt.Errorf("%w: unknown filter type %d", dsperr.ErrInvalidParameter, int(b.Type))
	}

	var fok, gok, qok bool
	var ferr, gerr, qerr error
	out.Frequency, fok, ferr = dsperr.Clamp("frequency", b.Frequency, MinFrequency, MaxFrequency)
	out.GainDB, gok, gerr = dsperr.Clamp("gain", b.GainDB, MinGainDB, MaxGainDB)
	out.Q, qok, qerr = dsperr.Clamp("q", b.Q, MinQ, MaxQ)
	err = errors.Join(ferr, gerr, qerr)

	if !fok || !gok || !qok {
		return Band{}, false, err
	}
	return out, true, err
}
