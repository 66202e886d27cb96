package chatkit

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/gen2brain/beeep"
)

// ============================================================================
// Alert Tone
// ============================================================================

// The alert is synthesized, not a decoded asset: two sequential sine
// bursts with a fast exponential fade-out, about 200 ms total.
const (
	chimeHighFreq     = 880.0  // A5
	chimeLowFreq      = 587.33 // D5
	chimeToneDuration = 100 * time.Millisecond
	chimeSampleRate   = 44100
	chimeFadeRate     = 18.0
	chimeGain         = 0.6
)

// chimeSamples renders the two-tone alert as 16-bit PCM at the given
// sample rate.
func chimeSamples(rate int) []int16 {
	perTone := int(float64(rate) * chimeToneDuration.Seconds())
	out := make([]int16, 0, perTone*2)
	for _, freq := range []float64{chimeHighFreq, chimeLowFreq} {
		for n := 0; n < perTone; n++ {
			t := float64(n) / float64(rate)
			envelope := math.Exp(-chimeFadeRate * t)
			v := math.Sin(2*math.Pi*freq*t) * envelope * chimeGain
			out = append(out, int16(v*math.MaxInt16))
		}
	}
	return out
}

// BeeepSounder plays the alert through the system beeper.
type BeeepSounder struct{}

func (BeeepSounder) PlayAlert() error {
	ms := int(chimeToneDuration.Milliseconds())
	if err := beeep.Beep(chimeHighFreq, ms); err != nil {
		return err
	}
	return beeep.Beep(chimeLowFreq, ms)
}

// PCMSounder writes the synthesized alert as raw little-endian 16-bit PCM,
// for hosts that route audio through an external pipe.
type PCMSounder struct {
	W io.Writer
	// SampleRate defaults to 44100.
	SampleRate int
}

func (p PCMSounder) PlayAlert() error {
	rate := p.SampleRate
	if rate == 0 {
		rate = chimeSampleRate
	}
	samples := chimeSamples(rate)
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	_, err := p.W.Write(buf)
	return err
}
