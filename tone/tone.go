// Package tone generates local DTMF feedback tones as 16-bit PCM.
package tone

//go:generate go tool errtrace -w .

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/log"
)

const ErrInvalidArgument = errorutil.ErrInvalidArgument

// Hz is a tone frequency.
type Hz uint32

// DigitFreqs maps DTMF digits to their row and column frequencies.
var DigitFreqs = map[byte][2]Hz{
	'1': {697, 1209}, '2': {697, 1336}, '3': {697, 1477}, 'A': {697, 1633},
	'4': {770, 1209}, '5': {770, 1336}, '6': {770, 1477}, 'B': {770, 1633},
	'7': {852, 1209}, '8': {852, 1336}, '9': {852, 1477}, 'C': {852, 1633},
	'*': {941, 1209}, '0': {941, 1336}, '#': {941, 1477}, 'D': {941, 1633},
}

// Generate fills buf with the sum of sine waves of freq starting at ts,
// spreading dur over the whole buffer. It returns the timestamp after the buffer.
func Generate(buf []int16, ts, dur time.Duration, amp int16, freq []Hz) time.Duration {
	for i := range buf {
		if len(freq) == 0 {
			buf[i] = 0
			continue
		}
		phi := ts + (dur*time.Duration(i))/time.Duration(len(buf))
		var sum float64
		for _, hz := range freq {
			sum += math.Sin((phi * time.Duration(hz) * 2).Seconds() * math.Pi)
		}
		buf[i] = int16(float64(amp) * sum / float64(len(freq)))
	}
	return ts + dur
}

// Defaults of [PlayerOptions].
const (
	DefaultSampleRate = 8000
	DefaultDuration   = 150 * time.Millisecond
)

// PlayerOptions are options of the [Player].
type PlayerOptions struct {
	// SampleRate is the output sample rate.
	// If zero, [DefaultSampleRate] is used.
	SampleRate int
	// Duration is the length of each digit tone.
	// If zero, [DefaultDuration] is used.
	Duration time.Duration
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *PlayerOptions) sampleRate() int {
	if o == nil || o.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return o.SampleRate
}

func (o *PlayerOptions) duration() time.Duration {
	if o == nil || o.Duration <= 0 {
		return DefaultDuration
	}
	return o.Duration
}

func (o *PlayerOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Player writes digit tones as little-endian 16-bit mono PCM to an output.
type Player struct {
	rate int
	dur  time.Duration
	log  *slog.Logger

	mu      sync.Mutex
	out     io.Writer
	ambient bool
}

// NewPlayer creates a player writing to out.
func NewPlayer(out io.Writer, opts *PlayerOptions) *Player {
	return &Player{
		out:  out,
		rate: opts.sampleRate(),
		dur:  opts.duration(),
		log:  opts.log(),
	}
}

// SetAmbientOutput marks the output as ambient, mixed with other audio of the host.
func (p *Player) SetAmbientOutput() error {
	p.mu.Lock()
	p.ambient = true
	p.mu.Unlock()

	p.log.LogAttrs(context.Background(), slog.LevelDebug, "tone output set to ambient")
	return nil
}

// Ambient reports whether the output was set to ambient.
func (p *Player) Ambient() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ambient
}

// PlayDigit writes the tone of the DTMF digit at volume in range (0, 1].
func (p *Player) PlayDigit(digit string, volume float64) error {
	if len(digit) != 1 {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid digit %q", digit))
	}
	freqs, ok := DigitFreqs[digit[0]]
	if !ok {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid digit %q", digit))
	}
	if volume <= 0 || volume > 1 {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("volume %v is out of range (0, 1]", volume))
	}

	n := int(int64(p.rate) * int64(p.dur) / int64(time.Second))
	buf := make([]int16, n)
	Generate(buf, 0, p.dur, int16(volume*math.MaxInt16), freqs[:])

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := binary.Write(p.out, binary.LittleEndian, buf); err != nil {
		return errtrace.Wrap(err)
	}
	p.log.LogAttrs(context.Background(), slog.LevelDebug, "tone played",
		slog.String("digit", digit),
		slog.Float64("volume", volume),
		slog.Int("samples", n),
	)
	return nil
}
